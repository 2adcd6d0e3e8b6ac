package httpapi

import (
	"net/http"

	"github.com/rx3lixir/ewm-service/internal/compilation"
)

// createCompilation POST /admin/compilations
func (h *Handler) createCompilation(w http.ResponseWriter, r *http.Request) {
	var req newCompilationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	v, err := h.svc.Compilations.Create(r.Context(), compilation.NewCompilation{
		Title:  req.Title,
		Pinned: req.Pinned,
		Events: req.Events,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCompilationDTO(v))
}

// updateCompilation PATCH /admin/compilations/{compId}
func (h *Handler) updateCompilation(w http.ResponseWriter, r *http.Request) {
	compID, err := pathID(r, "compId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req updateCompilationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	v, err := h.svc.Compilations.Update(r.Context(), compID, compilation.Patch{
		Title:  req.Title,
		Pinned: req.Pinned,
		Events: req.Events,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCompilationDTO(v))
}

// deleteCompilation DELETE /admin/compilations/{compId}
func (h *Handler) deleteCompilation(w http.ResponseWriter, r *http.Request) {
	compID, err := pathID(r, "compId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.Compilations.Delete(r.Context(), compID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listCompilations GET /compilations
func (h *Handler) listCompilations(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	pinned := q.boolPtr("pinned")
	from, size := q.number("from", 0), q.number("size", 10)
	if q.err != nil {
		h.writeError(w, r, q.err)
		return
	}

	views, err := h.svc.Compilations.List(r.Context(), pinned, from, size)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]compilationDTO, 0, len(views))
	for _, v := range views {
		out = append(out, toCompilationDTO(v))
	}
	writeJSON(w, http.StatusOK, out)
}

// getCompilation GET /compilations/{compId}
func (h *Handler) getCompilation(w http.ResponseWriter, r *http.Request) {
	compID, err := pathID(r, "compId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	v, err := h.svc.Compilations.Get(r.Context(), compID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCompilationDTO(v))
}
