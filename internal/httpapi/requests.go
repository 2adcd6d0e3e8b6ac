package httpapi

import (
	"net/http"

	"github.com/rx3lixir/ewm-service/internal/validation"
)

// listUserRequests GET /users/{userId}/requests
func (h *Handler) listUserRequests(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	ps, err := h.svc.Admission.ListByRequester(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toParticipationDTOs(ps))
}

// addRequest POST /users/{userId}/requests?eventId=
func (h *Handler) addRequest(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	q := newQuery(r)
	eventID := q.requiredID("eventId")
	if q.err != nil {
		h.writeError(w, r, q.err)
		return
	}

	p, err := h.svc.Admission.Request(r.Context(), userID, eventID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toParticipationDTO(p))
}

// cancelRequest PATCH /users/{userId}/requests/{requestId}/cancel
func (h *Handler) cancelRequest(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	requestID, err := pathID(r, "requestId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	p, err := h.svc.Admission.Cancel(r.Context(), userID, requestID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toParticipationDTO(p))
}

// listEventRequests GET /users/{userId}/events/{eventId}/requests
func (h *Handler) listEventRequests(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	eventID, err := pathID(r, "eventId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	ps, err := h.svc.Admission.ListForEvent(r.Context(), userID, eventID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toParticipationDTOs(ps))
}

// updateRequestStatuses PATCH /users/{userId}/events/{eventId}/requests
func (h *Handler) updateRequestStatuses(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	eventID, err := pathID(r, "eventId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req statusUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := validation.Struct(req); err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.svc.Admission.BulkUpdateStatus(r.Context(), userID, eventID, req.toUpdate())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusUpdateResult{
		ConfirmedRequests: toParticipationDTOs(result.Confirmed),
		RejectedRequests:  toParticipationDTOs(result.Rejected),
	})
}
