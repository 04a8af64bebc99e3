package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xraph/courier"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/subscriber"
)

func (h *Handler) createSubscriber(w http.ResponseWriter, r *http.Request) {
	var in subscriber.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := h.courier.Subscribers().Create(r.Context(), in)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, sub)
}

func (h *Handler) listSubscribers(w http.ResponseWriter, r *http.Request) {
	opts := subscriber.ListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", 50),
	}
	if v := queryParam(r, "active"); v != "" {
		active := v == "true"
		opts.Active = &active
	}
	if v := queryParam(r, "approval"); v != "" {
		approval := subscriber.Approval(v)
		opts.Approval = &approval
	}

	subs, err := h.courier.Subscribers().List(r.Context(), queryParam(r, "form_id"), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, subs)
}

func (h *Handler) getSubscriber(w http.ResponseWriter, r *http.Request) {
	subID, ok := h.subscriberID(w, r)
	if !ok {
		return
	}

	sub, err := h.courier.Subscribers().Get(r.Context(), subID)
	if err != nil {
		h.subscriberError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sub)
}

func (h *Handler) updateSubscriber(w http.ResponseWriter, r *http.Request) {
	subID, ok := h.subscriberID(w, r)
	if !ok {
		return
	}

	var in subscriber.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := h.courier.Subscribers().Update(r.Context(), subID, in)
	if err != nil {
		if errors.Is(err, subscriber.ErrAdminLocked) {
			writeError(w, http.StatusForbidden, err.Error())
			return
		}
		h.subscriberError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sub)
}

func (h *Handler) deleteSubscriber(w http.ResponseWriter, r *http.Request) {
	subID, ok := h.subscriberID(w, r)
	if !ok {
		return
	}

	if err := h.courier.Subscribers().Delete(r.Context(), subID); err != nil {
		h.subscriberError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) enableSubscriber(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *Handler) disableSubscriber(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	subID, ok := h.subscriberID(w, r)
	if !ok {
		return
	}

	if err := h.courier.Subscribers().SetActive(r.Context(), subID, active); err != nil {
		if errors.Is(err, subscriber.ErrAdminDeactivated) {
			writeError(w, http.StatusForbidden, err.Error())
			return
		}
		h.subscriberError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) rotateSecret(w http.ResponseWriter, r *http.Request) {
	subID, ok := h.subscriberID(w, r)
	if !ok {
		return
	}

	secret, err := h.courier.Subscribers().RotateSecret(r.Context(), subID)
	if err != nil {
		h.subscriberError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"signing_secret": secret})
}

type testRequest struct {
	Payload map[string]any `json:"payload,omitempty"`
}

func (h *Handler) testSubscriber(w http.ResponseWriter, r *http.Request) {
	subID, ok := h.subscriberID(w, r)
	if !ok {
		return
	}

	var payload []byte
	if r.ContentLength != 0 {
		var req testRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid test payload")
			return
		}
		if req.Payload != nil {
			var err error
			payload, err = json.Marshal(req.Payload)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid test payload")
				return
			}
		}
	}

	result, err := h.courier.TestDeliver(r.Context(), subID, payload)
	if err != nil {
		if errors.Is(err, courier.ErrInvalidTestPayload) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.subscriberError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) approveSubscriber(w http.ResponseWriter, r *http.Request) {
	subID, ok := h.subscriberID(w, r)
	if !ok {
		return
	}
	if err := h.courier.Subscribers().Approve(r.Context(), subID); err != nil {
		h.subscriberError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) rejectSubscriber(w http.ResponseWriter, r *http.Request) {
	subID, ok := h.subscriberID(w, r)
	if !ok {
		return
	}
	if err := h.courier.Subscribers().Reject(r.Context(), subID); err != nil {
		h.subscriberError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type deactivateRequest struct {
	AdminID string `json:"admin_id"`
}

func (h *Handler) deactivateSubscriber(w http.ResponseWriter, r *http.Request) {
	subID, ok := h.subscriberID(w, r)
	if !ok {
		return
	}

	var req deactivateRequest
	if err := decodeJSON(r, &req); err != nil || req.AdminID == "" {
		writeError(w, http.StatusBadRequest, "admin_id is required")
		return
	}

	if err := h.courier.Subscribers().AdminDeactivate(r.Context(), subID, req.AdminID); err != nil {
		h.subscriberError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) reactivateSubscriber(w http.ResponseWriter, r *http.Request) {
	subID, ok := h.subscriberID(w, r)
	if !ok {
		return
	}
	if err := h.courier.Subscribers().AdminReactivate(r.Context(), subID); err != nil {
		h.subscriberError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) lockSubscriber(w http.ResponseWriter, r *http.Request) {
	h.setLocked(w, r, true)
}

func (h *Handler) unlockSubscriber(w http.ResponseWriter, r *http.Request) {
	h.setLocked(w, r, false)
}

func (h *Handler) setLocked(w http.ResponseWriter, r *http.Request, locked bool) {
	subID, ok := h.subscriberID(w, r)
	if !ok {
		return
	}
	if err := h.courier.Subscribers().SetLocked(r.Context(), subID, locked); err != nil {
		h.subscriberError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// subscriberID parses the {id} path value, writing a 400 on failure.
func (h *Handler) subscriberID(w http.ResponseWriter, r *http.Request) (id.ID, bool) {
	subID, err := id.ParseSubscriberID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid subscriber ID")
		return id.ID{}, false
	}
	return subID, true
}

// subscriberError maps service errors onto HTTP statuses.
func (h *Handler) subscriberError(w http.ResponseWriter, err error) {
	if errors.Is(err, courier.ErrSubscriberNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
