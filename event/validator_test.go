package event_test

import (
	"encoding/json"
	"testing"

	"github.com/xraph/courier/event"
)

func TestValidatorEmptySchema(t *testing.T) {
	v := event.NewValidator()
	if err := v.Validate(nil, map[string]any{"anything": true}); err != nil {
		t.Fatal(err)
	}
}

func TestValidatorAcceptsValidData(t *testing.T) {
	v := event.NewValidator()
	schema := json.RawMessage(`{"type":"object","required":["email"],"properties":{"email":{"type":"string"}}}`)

	if err := v.Validate(schema, map[string]any{"email": "a@b.com"}); err != nil {
		t.Fatal(err)
	}
}

func TestValidatorRejectsInvalidData(t *testing.T) {
	v := event.NewValidator()
	schema := json.RawMessage(`{"type":"object","required":["email"]}`)

	if err := v.Validate(schema, map[string]any{"name": "no email"}); err == nil {
		t.Fatal("expected validation error for missing required field")
	}
}

func TestValidatorRejectsWrongType(t *testing.T) {
	v := event.NewValidator()
	schema := json.RawMessage(`{"type":"object"}`)

	if err := v.Validate(schema, "not an object"); err == nil {
		t.Fatal("expected validation error for non-object data")
	}
}

func TestValidatorMalformedSchema(t *testing.T) {
	v := event.NewValidator()

	if err := v.Validate(json.RawMessage(`{"type":`), map[string]any{}); err == nil {
		t.Fatal("expected error for malformed schema")
	}
}

func TestValidatorCachesCompiledSchemas(t *testing.T) {
	v := event.NewValidator()
	schema := json.RawMessage(`{"type":"object"}`)

	// Second call hits the cache; both must agree.
	for i := 0; i < 2; i++ {
		if err := v.Validate(schema, map[string]any{"ok": true}); err != nil {
			t.Fatal(err)
		}
	}
}
