package event

import "encoding/json"

// Definition describes one registered event type.
type Definition struct {
	// Name is the wire event type name.
	Name Type `json:"name"`

	// Description explains when the event fires.
	Description string `json:"description"`

	// Schema is an optional JSON Schema (draft-07) for the submission data.
	// When set, Publish validates the event data against it and fails
	// closed on violation.
	Schema json.RawMessage `json:"schema,omitempty"`
}

// definitions is the built-in event type registry.
var definitions = map[Type]Definition{
	SubmissionCreated: {
		Name:        SubmissionCreated,
		Description: "A form submission was created.",
		Schema:      json.RawMessage(`{"type":"object"}`),
	},
	SubmissionUpdated: {
		Name:        SubmissionUpdated,
		Description: "A form submission was updated.",
		Schema:      json.RawMessage(`{"type":"object"}`),
	},
	FormPublished: {
		Name:        FormPublished,
		Description: "A form was published.",
	},
	FormUnpublished: {
		Name:        FormUnpublished,
		Description: "A form was unpublished.",
	},
}

// Lookup returns the definition for an event type.
func Lookup(t Type) (Definition, bool) {
	def, ok := definitions[t]
	return def, ok
}

// Types returns all registered event type names.
func Types() []Type {
	out := make([]Type, 0, len(definitions))
	for t := range definitions {
		out = append(out, t)
	}
	return out
}
