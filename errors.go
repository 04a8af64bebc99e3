package courier

import "errors"

// Sentinel errors returned by Courier operations.
var (
	// ErrNoStore is returned when a Courier is created without a store.
	ErrNoStore = errors.New("courier: store is required")

	// ErrSubscriberNotFound is returned when a subscriber cannot be found.
	ErrSubscriberNotFound = errors.New("courier: subscriber not found")

	// ErrDeliveryNotFound is returned when a delivery cannot be found.
	ErrDeliveryNotFound = errors.New("courier: delivery not found")

	// ErrUnknownEventType is returned when publishing an event whose type is
	// not in the built-in catalog.
	ErrUnknownEventType = errors.New("courier: unknown event type")

	// ErrPayloadValidationFailed is returned when event data fails JSON
	// Schema validation.
	ErrPayloadValidationFailed = errors.New("courier: payload validation failed")

	// ErrInvalidTestPayload is returned when a test delivery payload is not
	// valid JSON.
	ErrInvalidTestPayload = errors.New("courier: invalid test payload")

	// ErrStoreClosed is returned when a store operation is attempted after
	// the store is closed.
	ErrStoreClosed = errors.New("courier: store is closed")

	// ErrMigrationFailed is returned when a database migration fails.
	ErrMigrationFailed = errors.New("courier: migration failed")
)
