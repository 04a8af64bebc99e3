package api

import (
	"net/http"

	"github.com/xraph/courier/event"
)

type eventTypeResponse struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// listEventTypes returns the built-in event type catalog.
func (h *Handler) listEventTypes(w http.ResponseWriter, _ *http.Request) {
	types := event.Types()
	result := make([]eventTypeResponse, 0, len(types))
	for _, t := range types {
		def, ok := event.Lookup(t)
		if !ok {
			continue
		}
		result = append(result, eventTypeResponse{
			Name:        string(def.Name),
			Description: def.Description,
		})
	}
	writeJSON(w, http.StatusOK, result)
}
