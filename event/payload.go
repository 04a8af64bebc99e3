package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Payload is the JSON body POSTed to a subscriber URL.
type Payload struct {
	Event      Type               `json:"event"`
	Timestamp  string             `json:"timestamp"`
	WebhookID  string             `json:"webhook_id"`
	Form       FormRef            `json:"form"`
	Submission *SubmissionPayload `json:"submission,omitempty"`
}

// FormRef identifies the form an event belongs to.
type FormRef struct {
	ID string `json:"id"`
}

// SubmissionPayload carries the submission portion of a payload.
type SubmissionPayload struct {
	ID        string         `json:"id"`
	CreatedAt string         `json:"createdAt"`
	Status    string         `json:"status"`
	Data      map[string]any `json:"data"`
}

// BuildPayload renders the outbound body for one subscriber, applying the
// subscriber's include/exclude field lists to the submission data.
// The returned bytes are what gets persisted on the delivery record and
// what the signature covers.
func BuildPayload(evt *Event, webhookID string, includeFields, excludeFields []string) ([]byte, error) {
	p := Payload{
		Event:     evt.Type,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		WebhookID: webhookID,
		Form:      FormRef{ID: evt.FormID},
	}

	if evt.SubmissionID != "" {
		p.Submission = &SubmissionPayload{
			ID:        evt.SubmissionID,
			CreatedAt: evt.OccurredAt.UTC().Format(time.RFC3339),
			Status:    evt.SubmissionStatus,
			Data:      FilterFields(evt.Data, includeFields, excludeFields),
		}
	}

	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("event: marshal payload: %w", err)
	}
	return body, nil
}

// FilterFields applies include/exclude field lists to submission data.
// A non-empty include list wins over any exclude list; with neither set
// the data passes through unchanged.
func FilterFields(data map[string]any, include, exclude []string) map[string]any {
	if len(data) == 0 {
		return map[string]any{}
	}

	if len(include) > 0 {
		out := make(map[string]any, len(include))
		for _, f := range include {
			if v, ok := data[f]; ok {
				out[f] = v
			}
		}
		return out
	}

	if len(exclude) > 0 {
		dropped := make(map[string]struct{}, len(exclude))
		for _, f := range exclude {
			dropped[f] = struct{}{}
		}
		out := make(map[string]any, len(data))
		for k, v := range data {
			if _, drop := dropped[k]; !drop {
				out[k] = v
			}
		}
		return out
	}

	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
