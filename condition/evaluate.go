package condition

import (
	"fmt"
	"strconv"
	"strings"
)

// Evaluate applies the condition to the submission data.
//
// Rules over absent fields are false, as are rules with unknown operators.
// A condition with no rules is vacuously true. AND requires every rule to
// hold; OR requires at least one.
func (c *Condition) Evaluate(data map[string]any) bool {
	if c == nil || len(c.Rules) == 0 {
		return true
	}

	if c.LogicOperator == LogicOr {
		for _, r := range c.Rules {
			if r.matches(data) {
				return true
			}
		}
		return false
	}

	for _, r := range c.Rules {
		if !r.matches(data) {
			return false
		}
	}
	return true
}

func (r Rule) matches(data map[string]any) bool {
	v, ok := data[r.FieldID]
	if !ok {
		return false
	}

	switch r.Operator {
	case OpEquals:
		return stringify(v) == r.Value
	case OpNotEquals:
		return stringify(v) != r.Value
	case OpContains:
		return strings.Contains(stringify(v), r.Value)
	case OpGreaterThan:
		got, want, ok := numericPair(v, r.Value)
		return ok && got > want
	case OpLessThan:
		got, want, ok := numericPair(v, r.Value)
		return ok && got < want
	default:
		return false
	}
}

// stringify renders a field value the way it would appear in JSON text,
// so "25", 25 and 25.0 compare equal under the string operators.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// numericPair coerces both sides of a numeric comparison.
func numericPair(v any, ref string) (got, want float64, ok bool) {
	want, err := strconv.ParseFloat(strings.TrimSpace(ref), 64)
	if err != nil {
		return 0, 0, false
	}

	switch t := v.(type) {
	case float64:
		return t, want, true
	case int:
		return float64(t), want, true
	case int64:
		return float64(t), want, true
	case string:
		got, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, 0, false
		}
		return got, want, true
	default:
		return 0, 0, false
	}
}
