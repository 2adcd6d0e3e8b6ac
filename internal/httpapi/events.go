package httpapi

import (
	"net/http"

	"github.com/rx3lixir/ewm-service/internal/db"
	"github.com/rx3lixir/ewm-service/internal/lifecycle"
	"github.com/rx3lixir/ewm-service/internal/validation"
)

// createEvent POST /users/{userId}/events
func (h *Handler) createEvent(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req newEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := validation.Struct(req); err != nil {
		h.writeError(w, r, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	event, err := h.svc.Lifecycle.Create(r.Context(), userID, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventDTO(event))
}

// listOwnedEvents GET /users/{userId}/events
func (h *Handler) listOwnedEvents(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	q := newQuery(r)
	page := lifecycle.Page{From: q.number("from", 0), Size: q.number("size", 10)}
	if q.err != nil {
		h.writeError(w, r, q.err)
		return
	}

	events, err := h.svc.Lifecycle.ListOwned(r.Context(), userID, page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTOs(events))
}

// getOwnedEvent GET /users/{userId}/events/{eventId}
func (h *Handler) getOwnedEvent(w http.ResponseWriter, r *http.Request) {
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

	event, err := h.svc.Lifecycle.GetOwned(r.Context(), userID, eventID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTO(event))
}

// updateOwnedEvent PATCH /users/{userId}/events/{eventId}
func (h *Handler) updateOwnedEvent(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	eventID, patch, err := h.readPatch(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	event, err := h.svc.Lifecycle.UpdateByOwner(r.Context(), userID, eventID, patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTO(event))
}

// adminUpdateEvent PATCH /admin/events/{eventId}
func (h *Handler) adminUpdateEvent(w http.ResponseWriter, r *http.Request) {
	eventID, patch, err := h.readPatch(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	event, err := h.svc.Lifecycle.UpdateByAdmin(r.Context(), eventID, patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTO(event))
}

func (h *Handler) readPatch(w http.ResponseWriter, r *http.Request) (int64, lifecycle.EventPatch, error) {
	eventID, err := pathID(r, "eventId")
	if err != nil {
		return 0, lifecycle.EventPatch{}, err
	}
	var req updateEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return 0, lifecycle.EventPatch{}, err
	}
	if err := validation.Struct(req); err != nil {
		return 0, lifecycle.EventPatch{}, err
	}
	patch, err := req.toPatch()
	return eventID, patch, err
}

// adminListEvents GET /admin/events
func (h *Handler) adminListEvents(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	f := lifecycle.AdminFilter{
		Users:      q.ids("users"),
		Categories: q.ids("categories"),
		RangeStart: q.date("rangeStart"),
		RangeEnd:   q.date("rangeEnd"),
		Page:       lifecycle.Page{From: q.number("from", 0), Size: q.number("size", 10)},
	}
	for _, s := range q.values("states") {
		f.States = append(f.States, db.EventState(s))
	}
	if q.err != nil {
		h.writeError(w, r, q.err)
		return
	}

	events, err := h.svc.Lifecycle.ListAdmin(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTOs(events))
}

// publicListEvents GET /events
func (h *Handler) publicListEvents(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	f := lifecycle.PublicFilter{
		Text:       r.URL.Query().Get("text"),
		Categories: q.ids("categories"),
		Paid:       q.boolPtr("paid"),
		RangeStart: q.date("rangeStart"),
		RangeEnd:   q.date("rangeEnd"),
		Sort:       lifecycle.PublicSort(r.URL.Query().Get("sort")),
		Page:       lifecycle.Page{From: q.number("from", 0), Size: q.number("size", 10)},
	}
	if onlyAvailable := q.boolPtr("onlyAvailable"); onlyAvailable != nil {
		f.OnlyAvailable = *onlyAvailable
	}
	if q.err != nil {
		h.writeError(w, r, q.err)
		return
	}

	events, err := h.svc.Lifecycle.ListPublic(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTOs(events))
}

// publicGetEvent GET /events/{eventId}
func (h *Handler) publicGetEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := pathID(r, "eventId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	event, err := h.svc.Lifecycle.GetPublished(r.Context(), eventID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTO(event))
}
