// Package event defines the domain events Courier delivers and builds the
// outbound webhook payloads for them.
package event

import "time"

// Type is the wire name of a domain event.
type Type string

// The event types Courier delivers.
const (
	SubmissionCreated Type = "SUBMISSION_CREATED"
	SubmissionUpdated Type = "SUBMISSION_UPDATED"
	FormPublished     Type = "FORM_PUBLISHED"
	FormUnpublished   Type = "FORM_UNPUBLISHED"
)

// Valid reports whether t is a registered event type.
func (t Type) Valid() bool {
	_, ok := definitions[t]
	return ok
}

// Event is one domain occurrence handed to Courier by the application
// layer: a form changed state, or a submission was created or updated.
type Event struct {
	// Type is the wire event type name.
	Type Type

	// FormID identifies the owning form.
	FormID string

	// SubmissionID identifies the submission, when the event concerns one.
	SubmissionID string

	// SubmissionStatus is the submission's status at event time.
	SubmissionStatus string

	// OccurredAt is when the submission was created or the form changed.
	OccurredAt time.Time

	// Data is the submitted field data keyed by field ID.
	Data map[string]any
}
