// Package api provides the Admin HTTP API for Courier webhook management.
//
// Mount the handler under a prefix of your choosing (e.g. /webhooks).
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/xraph/courier"
)

// Handler is the root HTTP handler for the Courier admin API.
type Handler struct {
	courier *courier.Courier
	logger  *slog.Logger
	mux     *http.ServeMux
}

// NewHandler creates a new admin API handler.
func NewHandler(c *courier.Courier, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		courier: c,
		logger:  logger,
		mux:     http.NewServeMux(),
	}

	h.registerRoutes()
	return h
}

func (h *Handler) registerRoutes() {
	// Subscribers
	h.mux.HandleFunc("POST /subscribers", h.createSubscriber)
	h.mux.HandleFunc("GET /subscribers", h.listSubscribers)
	h.mux.HandleFunc("GET /subscribers/{id}", h.getSubscriber)
	h.mux.HandleFunc("PUT /subscribers/{id}", h.updateSubscriber)
	h.mux.HandleFunc("DELETE /subscribers/{id}", h.deleteSubscriber)
	h.mux.HandleFunc("PATCH /subscribers/{id}/enable", h.enableSubscriber)
	h.mux.HandleFunc("PATCH /subscribers/{id}/disable", h.disableSubscriber)
	h.mux.HandleFunc("POST /subscribers/{id}/rotate-secret", h.rotateSecret)
	h.mux.HandleFunc("POST /subscribers/{id}/test", h.testSubscriber)

	// Administrator actions
	h.mux.HandleFunc("POST /subscribers/{id}/approve", h.approveSubscriber)
	h.mux.HandleFunc("POST /subscribers/{id}/reject", h.rejectSubscriber)
	h.mux.HandleFunc("POST /subscribers/{id}/deactivate", h.deactivateSubscriber)
	h.mux.HandleFunc("POST /subscribers/{id}/reactivate", h.reactivateSubscriber)
	h.mux.HandleFunc("PATCH /subscribers/{id}/lock", h.lockSubscriber)
	h.mux.HandleFunc("PATCH /subscribers/{id}/unlock", h.unlockSubscriber)

	// Deliveries
	h.mux.HandleFunc("GET /subscribers/{id}/deliveries", h.listDeliveries)
	h.mux.HandleFunc("GET /subscribers/{id}/stats", h.subscriberStats)
	h.mux.HandleFunc("POST /deliveries/{id}/retry", h.retryDelivery)

	// Event types
	h.mux.HandleFunc("GET /event-types", h.listEventTypes)

	// Stats
	h.mux.HandleFunc("GET /stats", h.getStats)
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.withMiddleware(h.mux).ServeHTTP(w, r)
}

func (h *Handler) withMiddleware(next http.Handler) http.Handler {
	return h.panicRecovery(h.logging(next))
}

func (h *Handler) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		h.logger.Info("api request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (h *Handler) panicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("panic recovered",
					"error", rec,
					"stack", string(debug.Stack()),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// JSON helpers.

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best effort
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// queryParam returns a query parameter value, or empty string if not present.
func queryParam(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// maxQueryInt caps numeric query parameters so a runaway value cannot turn
// into an unbounded limit or offset.
const maxQueryInt = 10000

// queryInt returns a query parameter as a non-negative int, falling back to
// the default when the value is absent, malformed, negative or overflows.
func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return defaultVal
	}
	if n > maxQueryInt {
		return maxQueryInt
	}
	return n
}
