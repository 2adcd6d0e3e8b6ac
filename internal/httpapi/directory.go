package httpapi

import (
	"net/http"

	"github.com/rx3lixir/ewm-service/internal/db"
	"github.com/rx3lixir/ewm-service/internal/directory"
)

func toUserDTO(u *db.User) userDTO {
	return userDTO{ID: u.ID, Name: u.Name, Email: u.Email}
}

func toCategoryDTO(c *db.Category) categoryDTO {
	return categoryDTO{ID: c.ID, Name: c.Name}
}

// createUser POST /admin/users
func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	u, err := h.svc.Directory.CreateUser(r.Context(), directory.NewUser{Name: req.Name, Email: req.Email})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(u))
}

// listUsers GET /admin/users
func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	ids := q.ids("ids")
	from, size := q.number("from", 0), q.number("size", 10)
	if q.err != nil {
		h.writeError(w, r, q.err)
		return
	}

	users, err := h.svc.Directory.ListUsers(r.Context(), ids, from, size)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]userDTO, 0, len(users))
	for _, u := range users {
		out = append(out, toUserDTO(u))
	}
	writeJSON(w, http.StatusOK, out)
}

// deleteUser DELETE /admin/users/{userId}
func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.Directory.DeleteUser(r.Context(), userID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// createCategory POST /admin/categories
func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	c, err := h.svc.Directory.CreateCategory(r.Context(), directory.CategoryInput{Name: req.Name})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCategoryDTO(c))
}

// updateCategory PATCH /admin/categories/{catId}
func (h *Handler) updateCategory(w http.ResponseWriter, r *http.Request) {
	catID, err := pathID(r, "catId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	c, err := h.svc.Directory.UpdateCategory(r.Context(), catID, directory.CategoryInput{Name: req.Name})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryDTO(c))
}

// deleteCategory DELETE /admin/categories/{catId}
func (h *Handler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	catID, err := pathID(r, "catId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.Directory.DeleteCategory(r.Context(), catID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listCategories GET /categories
func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	from, size := q.number("from", 0), q.number("size", 10)
	if q.err != nil {
		h.writeError(w, r, q.err)
		return
	}

	cats, err := h.svc.Directory.ListCategories(r.Context(), from, size)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]categoryDTO, 0, len(cats))
	for _, c := range cats {
		out = append(out, toCategoryDTO(c))
	}
	writeJSON(w, http.StatusOK, out)
}

// getCategory GET /categories/{catId}
func (h *Handler) getCategory(w http.ResponseWriter, r *http.Request) {
	catID, err := pathID(r, "catId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	c, err := h.svc.Directory.GetCategory(r.Context(), catID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryDTO(c))
}
