package httpapi

import (
	"net/http"

	"github.com/rx3lixir/ewm-service/internal/db"
	"github.com/rx3lixir/ewm-service/internal/moderation"
)

// addComment POST /users/{userId}/events/{eventId}/comments
func (h *Handler) addComment(w http.ResponseWriter, r *http.Request) {
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

	var req commentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	in := moderation.NewComment{Rate: req.Rate}
	if req.Text != nil {
		in.Text = *req.Text
	}

	c, err := h.svc.Moderation.Add(r.Context(), userID, eventID, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCommentDTO(c))
}

// updateComment PATCH /users/{userId}/comments/{commentId}
func (h *Handler) updateComment(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	commentID, err := pathID(r, "commentId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req commentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	c, err := h.svc.Moderation.Update(r.Context(), userID, commentID, moderation.CommentPatch{Text: req.Text, Rate: req.Rate})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCommentDTO(c))
}

// deleteComment DELETE /users/{userId}/comments/{commentId}
func (h *Handler) deleteComment(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	commentID, err := pathID(r, "commentId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.svc.Moderation.Delete(r.Context(), userID, commentID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// moderateComment PATCH /admin/comments/{commentId}?status=
func (h *Handler) moderateComment(w http.ResponseWriter, r *http.Request) {
	commentID, err := pathID(r, "commentId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := r.URL.Query().Get("status")
	if status == "" {
		h.writeError(w, r, badRequest("parameter status is required"))
		return
	}

	c, err := h.svc.Moderation.Moderate(r.Context(), commentID, db.CommentStatus(status))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCommentDTO(c))
}

// adminDeleteComment DELETE /admin/comments/{commentId}
func (h *Handler) adminDeleteComment(w http.ResponseWriter, r *http.Request) {
	commentID, err := pathID(r, "commentId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.svc.Moderation.DeleteByAdmin(r.Context(), commentID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// getComment GET /comments/{commentId}
func (h *Handler) getComment(w http.ResponseWriter, r *http.Request) {
	commentID, err := pathID(r, "commentId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	c, err := h.svc.Moderation.Get(r.Context(), commentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCommentDTO(c))
}

// listEventComments GET /events/{eventId}/comments
func (h *Handler) listEventComments(w http.ResponseWriter, r *http.Request) {
	eventID, err := pathID(r, "eventId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	filter, err := commentFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	cs, err := h.svc.Moderation.ListByEvent(r.Context(), eventID, filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCommentDTOs(cs))
}

// listUserComments GET /users/{userId}/comments
func (h *Handler) listUserComments(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	filter, err := commentFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	cs, err := h.svc.Moderation.ListByUser(r.Context(), userID, filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCommentDTOs(cs))
}

func commentFilter(r *http.Request) (moderation.ListFilter, error) {
	q := newQuery(r)
	f := moderation.ListFilter{
		Rated: q.boolPtr("rated"),
		From:  q.number("from", 0),
		Size:  q.number("size", 10),
	}
	for _, s := range q.values("status") {
		f.Statuses = append(f.Statuses, db.CommentStatus(s))
	}
	return f, q.err
}
