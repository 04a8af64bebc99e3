package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxResponseBody = 1024 // 1KB cap on response body storage

// Result holds the outcome of a single HTTP attempt.
//
// Delivered means the transport call completed and a response arrived;
// the HTTP status code is recorded but does not itself gate success.
// Timeouts, connection refusals and DNS failures are the failures that
// drive retries.
type Result struct {
	Delivered  bool
	StatusCode int
	Body       string
	Error      string
	LatencyMs  int
}

// Sender performs HTTP webhook delivery.
type Sender struct {
	client *http.Client
}

// NewSender creates a sender with the given per-attempt HTTP timeout.
func NewSender(timeout time.Duration) *Sender {
	return &Sender{
		client: &http.Client{Timeout: timeout},
	}
}

// Send POSTs the persisted body to the subscriber URL with the prepared
// headers and classifies the transport outcome.
func (s *Sender) Send(ctx context.Context, url string, body []byte, headers http.Header) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{Error: fmt.Sprintf("create request: %v", err)}
	}
	req.Header = headers

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return Result{
			Error:     err.Error(),
			LatencyMs: int(latency),
		}
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if readErr != nil {
		// The endpoint answered; a truncated body read does not fail the
		// delivery.
		return Result{
			Delivered:  true,
			StatusCode: resp.StatusCode,
			Error:      fmt.Sprintf("read response: %v", readErr),
			LatencyMs:  int(latency),
		}
	}

	return Result{
		Delivered:  true,
		StatusCode: resp.StatusCode,
		Body:       string(respBody),
		LatencyMs:  int(latency),
	}
}
