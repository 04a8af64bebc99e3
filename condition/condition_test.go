package condition_test

import (
	"encoding/json"
	"testing"

	"github.com/xraph/courier/condition"
)

func mustParse(t *testing.T, raw string) *condition.Condition {
	t.Helper()
	c, err := condition.Parse(json.RawMessage(raw))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestParseEmpty(t *testing.T) {
	c, err := condition.Parse(nil)
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Fatal("expected nil condition for empty input")
	}
}

func TestParseMalformed(t *testing.T) {
	if _, err := condition.Parse(json.RawMessage(`{"rules": not json`)); err == nil {
		t.Fatal("expected parse error for malformed input")
	}
}

func TestEvaluateNilCondition(t *testing.T) {
	var c *condition.Condition
	if !c.Evaluate(map[string]any{"x": 1}) {
		t.Fatal("nil condition should match everything")
	}
}

func TestEvaluateNoRules(t *testing.T) {
	c := mustParse(t, `{"rules":[]}`)
	if !c.Evaluate(map[string]any{"x": 1}) {
		t.Fatal("empty rule set should match everything")
	}
}

func TestEvaluateOperators(t *testing.T) {
	data := map[string]any{
		"plan":   "premium",
		"email":  "alice@example.com",
		"age":    float64(30), // decoded JSON numbers are float64
		"count":  "7",
		"active": true,
	}

	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"equals match", `{"rules":[{"fieldId":"plan","operator":"equals","value":"premium"}]}`, true},
		{"equals mismatch", `{"rules":[{"fieldId":"plan","operator":"equals","value":"free"}]}`, false},
		{"equals bool", `{"rules":[{"fieldId":"active","operator":"equals","value":"true"}]}`, true},
		{"equals number as string", `{"rules":[{"fieldId":"age","operator":"equals","value":"30"}]}`, true},
		{"notEquals match", `{"rules":[{"fieldId":"plan","operator":"notEquals","value":"free"}]}`, true},
		{"notEquals mismatch", `{"rules":[{"fieldId":"plan","operator":"notEquals","value":"premium"}]}`, false},
		{"contains match", `{"rules":[{"fieldId":"email","operator":"contains","value":"@example."}]}`, true},
		{"contains mismatch", `{"rules":[{"fieldId":"email","operator":"contains","value":"@other."}]}`, false},
		{"greaterThan match", `{"rules":[{"fieldId":"age","operator":"greaterThan","value":"18"}]}`, true},
		{"greaterThan equal is false", `{"rules":[{"fieldId":"age","operator":"greaterThan","value":"30"}]}`, false},
		{"lessThan match", `{"rules":[{"fieldId":"age","operator":"lessThan","value":"65"}]}`, true},
		{"numeric string coerces", `{"rules":[{"fieldId":"count","operator":"greaterThan","value":"5"}]}`, true},
		{"non-numeric comparison is false", `{"rules":[{"fieldId":"plan","operator":"greaterThan","value":"5"}]}`, false},
		{"absent field is false", `{"rules":[{"fieldId":"missing","operator":"equals","value":""}]}`, false},
		{"absent field notEquals is false", `{"rules":[{"fieldId":"missing","operator":"notEquals","value":"x"}]}`, false},
		{"unknown operator is false", `{"rules":[{"fieldId":"plan","operator":"matches","value":"premium"}]}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := mustParse(t, tt.raw)
			if got := c.Evaluate(data); got != tt.want {
				t.Fatalf("Evaluate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluateAnd(t *testing.T) {
	data := map[string]any{"plan": "premium", "age": float64(30)}

	all := mustParse(t, `{"logicOperator":"AND","rules":[
		{"fieldId":"plan","operator":"equals","value":"premium"},
		{"fieldId":"age","operator":"greaterThan","value":"18"}]}`)
	if !all.Evaluate(data) {
		t.Fatal("expected AND of two true rules to match")
	}

	oneFalse := mustParse(t, `{"logicOperator":"AND","rules":[
		{"fieldId":"plan","operator":"equals","value":"premium"},
		{"fieldId":"age","operator":"lessThan","value":"18"}]}`)
	if oneFalse.Evaluate(data) {
		t.Fatal("expected AND with one false rule to not match")
	}
}

func TestEvaluateOr(t *testing.T) {
	data := map[string]any{"plan": "free"}

	oneTrue := mustParse(t, `{"logicOperator":"OR","rules":[
		{"fieldId":"plan","operator":"equals","value":"premium"},
		{"fieldId":"plan","operator":"equals","value":"free"}]}`)
	if !oneTrue.Evaluate(data) {
		t.Fatal("expected OR with one true rule to match")
	}

	allFalse := mustParse(t, `{"logicOperator":"OR","rules":[
		{"fieldId":"plan","operator":"equals","value":"premium"},
		{"fieldId":"plan","operator":"equals","value":"trial"}]}`)
	if allFalse.Evaluate(data) {
		t.Fatal("expected OR with no true rules to not match")
	}
}

func TestEvaluateDefaultLogicIsAnd(t *testing.T) {
	data := map[string]any{"a": "1", "b": "2"}

	c := mustParse(t, `{"rules":[
		{"fieldId":"a","operator":"equals","value":"1"},
		{"fieldId":"b","operator":"equals","value":"wrong"}]}`)
	if c.Evaluate(data) {
		t.Fatal("unspecified logic operator should behave as AND")
	}
}
