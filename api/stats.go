package api

import (
	"net/http"

	"github.com/xraph/courier/delivery"
)

type statsResponse struct {
	PendingDeliveries   int64 `json:"pending_deliveries"`
	ScheduledDeliveries int64 `json:"scheduled_deliveries"`
	FailedDeliveries    int64 `json:"failed_deliveries"`
}

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	store := h.courier.Store()

	pending, err := store.CountByState(ctx, delivery.StatePending)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	scheduled, err := store.CountByState(ctx, delivery.StateScheduled)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	failed, err := store.CountByState(ctx, delivery.StateFailed)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		PendingDeliveries:   pending,
		ScheduledDeliveries: scheduled,
		FailedDeliveries:    failed,
	})
}
