package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/xraph/courier"
	"github.com/xraph/courier/api"
	"github.com/xraph/courier/store/memory"
)

// testServer creates a Handler backed by a memory store and returns the test server.
func testServer(t *testing.T) *httptest.Server {
	t.Helper()

	c, err := courier.New(courier.WithStore(memory.New()))
	if err != nil {
		t.Fatal(err)
	}

	h := api.NewHandler(c, nil)
	return httptest.NewServer(h)
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func createSubscriber(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp := doJSON(t, "POST", srv.URL+"/subscribers", map[string]any{
		"form_id":     "form-1",
		"url":         "https://example.com/hook",
		"event_types": []string{"SUBMISSION_CREATED"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	var sub map[string]any
	decodeBody(t, resp, &sub)
	id, _ := sub["id"].(string)
	if id == "" {
		t.Fatalf("expected id in response, got %v", sub)
	}
	return id
}

// --- Subscribers ---

func TestSubscribers_CRUD(t *testing.T) {
	srv := testServer(t)
	defer srv.Close()

	id := createSubscriber(t, srv)

	// Get
	resp := doJSON(t, "GET", srv.URL+"/subscribers/"+id, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", resp.StatusCode)
	}
	var sub map[string]any
	decodeBody(t, resp, &sub)
	if sub["form_id"] != "form-1" {
		t.Fatalf("expected form_id form-1, got %v", sub["form_id"])
	}
	if sub["approval"] != "pending" {
		t.Fatalf("new subscribers start pending, got %v", sub["approval"])
	}
	if _, leaked := sub["signing_secret"]; leaked {
		t.Fatal("signing secret must never serialize")
	}

	// List
	resp = doJSON(t, "GET", srv.URL+"/subscribers?form_id=form-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", resp.StatusCode)
	}
	var list []map[string]any
	decodeBody(t, resp, &list)
	if len(list) != 1 {
		t.Fatalf("expected 1 subscriber, got %d", len(list))
	}

	// Update
	resp = doJSON(t, "PUT", srv.URL+"/subscribers/"+id, map[string]any{
		"url": "https://example.com/v2",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", resp.StatusCode)
	}
	var updated map[string]any
	decodeBody(t, resp, &updated)
	if updated["url"] != "https://example.com/v2" {
		t.Fatalf("expected updated url, got %v", updated["url"])
	}

	// Delete
	resp = doJSON(t, "DELETE", srv.URL+"/subscribers/"+id, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, "GET", srv.URL+"/subscribers/"+id, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete: expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSubscribers_CreateInvalid(t *testing.T) {
	srv := testServer(t)
	defer srv.Close()

	resp := doJSON(t, "POST", srv.URL+"/subscribers", map[string]any{
		"url": "https://example.com/hook",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing form_id, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSubscribers_BadID(t *testing.T) {
	srv := testServer(t)
	defer srv.Close()

	resp := doJSON(t, "GET", srv.URL+"/subscribers/not-a-typeid", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSubscribers_RotateSecret(t *testing.T) {
	srv := testServer(t)
	defer srv.Close()

	id := createSubscriber(t, srv)

	resp := doJSON(t, "POST", srv.URL+"/subscribers/"+id+"/rotate-secret", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if body["signing_secret"] == "" {
		t.Fatal("expected rotated secret in response")
	}
}

func TestSubscribers_EnableDisable(t *testing.T) {
	srv := testServer(t)
	defer srv.Close()

	id := createSubscriber(t, srv)

	resp := doJSON(t, "PATCH", srv.URL+"/subscribers/"+id+"/disable", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("disable: expected 204, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, "GET", srv.URL+"/subscribers/"+id, nil)
	var sub map[string]any
	decodeBody(t, resp, &sub)
	if sub["active"] != false {
		t.Fatal("expected subscriber to be disabled")
	}

	resp = doJSON(t, "PATCH", srv.URL+"/subscribers/"+id+"/enable", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("enable: expected 204, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

// --- Administrator actions ---

func TestAdmin_ApprovalFlow(t *testing.T) {
	srv := testServer(t)
	defer srv.Close()

	id := createSubscriber(t, srv)

	resp := doJSON(t, "POST", srv.URL+"/subscribers/"+id+"/approve", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("approve: expected 204, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, "GET", srv.URL+"/subscribers/"+id, nil)
	var sub map[string]any
	decodeBody(t, resp, &sub)
	if sub["approval"] != "approved" {
		t.Fatalf("expected approved, got %v", sub["approval"])
	}

	resp = doJSON(t, "POST", srv.URL+"/subscribers/"+id+"/reject", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("reject: expected 204, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAdmin_DeactivateRequiresAdminID(t *testing.T) {
	srv := testServer(t)
	defer srv.Close()

	id := createSubscriber(t, srv)

	resp := doJSON(t, "POST", srv.URL+"/subscribers/"+id+"/deactivate", map[string]any{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without admin_id, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, "POST", srv.URL+"/subscribers/"+id+"/deactivate", map[string]any{
		"admin_id": "admin-1",
	})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// The owner cannot re-enable while deactivated.
	resp = doJSON(t, "PATCH", srv.URL+"/subscribers/"+id+"/enable", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, "POST", srv.URL+"/subscribers/"+id+"/reactivate", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("reactivate: expected 204, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, "PATCH", srv.URL+"/subscribers/"+id+"/enable", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("enable after reactivate: expected 204, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAdmin_LockBlocksOwnerEdits(t *testing.T) {
	srv := testServer(t)
	defer srv.Close()

	id := createSubscriber(t, srv)

	resp := doJSON(t, "PATCH", srv.URL+"/subscribers/"+id+"/lock", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("lock: expected 204, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, "PUT", srv.URL+"/subscribers/"+id, map[string]any{
		"url": "https://example.com/v2",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("update while locked: expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, "PATCH", srv.URL+"/subscribers/"+id+"/unlock", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("unlock: expected 204, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

// --- Test deliveries ---

func TestSubscribers_TestDelivery(t *testing.T) {
	var hit bool
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hit = true
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	c, err := courier.New(courier.WithStore(memory.New()))
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(api.NewHandler(c, nil))
	defer srv.Close()

	resp := doJSON(t, "POST", srv.URL+"/subscribers", map[string]any{
		"form_id":     "form-1",
		"url":         target.URL,
		"event_types": []string{"SUBMISSION_CREATED"},
	})
	var sub map[string]any
	decodeBody(t, resp, &sub)
	id := sub["id"].(string)

	resp = doJSON(t, "POST", srv.URL+"/subscribers/"+id+"/approve", nil)
	resp.Body.Close()

	resp = doJSON(t, "POST", srv.URL+"/subscribers/"+id+"/test", map[string]any{
		"payload": map[string]any{"ping": true},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("test: expected 200, got %d", resp.StatusCode)
	}
	var result map[string]any
	decodeBody(t, resp, &result)
	if result["success"] != true || result["request_sent"] != true {
		t.Fatalf("expected successful test, got %v", result)
	}
	if !hit {
		t.Fatal("target endpoint was not called")
	}
}

func TestSubscribers_TestDeliveryUnapproved(t *testing.T) {
	srv := testServer(t)
	defer srv.Close()

	id := createSubscriber(t, srv)

	resp := doJSON(t, "POST", srv.URL+"/subscribers/"+id+"/test", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var result map[string]any
	decodeBody(t, resp, &result)
	if result["success"] == true || result["request_sent"] == true {
		t.Fatalf("unapproved subscriber should not be reachable, got %v", result)
	}
	if result["error"] == "" {
		t.Fatal("expected a reason")
	}
}

// --- Deliveries ---

func TestDeliveries_ListEmpty(t *testing.T) {
	srv := testServer(t)
	defer srv.Close()

	id := createSubscriber(t, srv)

	resp := doJSON(t, "GET", srv.URL+"/subscribers/"+id+"/deliveries", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var list []map[string]any
	decodeBody(t, resp, &list)
	if len(list) != 0 {
		t.Fatalf("expected no deliveries, got %d", len(list))
	}
}

func TestDeliveries_SubscriberStats(t *testing.T) {
	srv := testServer(t)
	defer srv.Close()

	id := createSubscriber(t, srv)

	resp := doJSON(t, "GET", srv.URL+"/subscribers/"+id+"/stats?days=3", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var stats map[string]any
	decodeBody(t, resp, &stats)
	days, _ := stats["days"].([]any)
	if len(days) != 3 {
		t.Fatalf("expected 3 day buckets, got %d", len(days))
	}
}

func TestDeliveries_RetryUnknown(t *testing.T) {
	srv := testServer(t)
	defer srv.Close()

	resp := doJSON(t, "POST", srv.URL+"/deliveries/del_01h455vb4pex5vsknk084sn02q/retry", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

// --- Event types & stats ---

func TestEventTypes_List(t *testing.T) {
	srv := testServer(t)
	defer srv.Close()

	resp := doJSON(t, "GET", srv.URL+"/event-types", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var list []map[string]any
	decodeBody(t, resp, &list)
	if len(list) != 4 {
		t.Fatalf("expected 4 event types, got %d", len(list))
	}
	for _, et := range list {
		if et["name"] == "" || et["description"] == "" {
			t.Fatalf("expected name and description, got %v", et)
		}
	}
}

func TestStats_Global(t *testing.T) {
	srv := testServer(t)
	defer srv.Close()

	resp := doJSON(t, "GET", srv.URL+"/stats", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var stats map[string]any
	decodeBody(t, resp, &stats)
	if _, ok := stats["pending_deliveries"]; !ok {
		t.Fatalf("expected pending_deliveries, got %v", stats)
	}
}
