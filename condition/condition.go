// Package condition evaluates declarative boolean filter expressions
// against submission data to decide whether an event qualifies for a
// subscriber.
package condition

import (
	"encoding/json"
	"fmt"
)

// LogicOperator combines the per-rule results of a Condition.
type LogicOperator string

// Supported logic operators. AND is the default when unspecified.
const (
	LogicAnd LogicOperator = "AND"
	LogicOr  LogicOperator = "OR"
)

// Operator compares one field value against a rule's reference value.
type Operator string

// Supported rule operators.
const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "notEquals"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "greaterThan"
	OpLessThan    Operator = "lessThan"
)

// Rule is a single field comparison.
type Rule struct {
	FieldID  string   `json:"fieldId"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value"`
}

// Condition is a boolean filter over submission data: a logic operator
// applied to a list of field comparison rules.
type Condition struct {
	LogicOperator LogicOperator `json:"logicOperator,omitempty"`
	Rules         []Rule        `json:"rules"`
}

// Parse decodes a stored condition. Empty input yields a nil condition
// (no filtering). Malformed input is a configuration error; callers are
// expected to fail closed.
func Parse(raw json.RawMessage) (*Condition, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var c Condition
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("condition: parse: %w", err)
	}
	return &c, nil
}
