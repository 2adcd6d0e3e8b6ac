// Package httpapi - тонкий REST адаптер над сервисами событий, заявок,
// комментариев, подборок и справочников.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rx3lixir/ewm-service/internal/admission"
	"github.com/rx3lixir/ewm-service/internal/compilation"
	"github.com/rx3lixir/ewm-service/internal/directory"
	"github.com/rx3lixir/ewm-service/internal/lifecycle"
	"github.com/rx3lixir/ewm-service/internal/moderation"
	"github.com/rx3lixir/ewm-service/pkg/logger"
	"github.com/rx3lixir/ewm-service/pkg/metrics"
)

// Services - сервисы, которые обслуживает API
type Services struct {
	Lifecycle    *lifecycle.Service
	Admission    *admission.Service
	Moderation   *moderation.Service
	Directory    *directory.Service
	Compilations *compilation.Service
}

// Handler держит все HTTP обработчики
type Handler struct {
	svc Services
	log logger.Logger
}

// NewRouter собирает chi роутер со всеми маршрутами: /admin, /users/{userId} и публичные
func NewRouter(svc Services, log logger.Logger) http.Handler {
	h := &Handler{svc: svc, log: log.With("component", "http")}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(h.accessLog)
	r.Use(chimiddleware.Recoverer)
	r.Use(metrics.HTTPMiddleware)

	r.Route("/admin", func(r chi.Router) {
		r.Get("/events", h.adminListEvents)
		r.Patch("/events/{eventId}", h.adminUpdateEvent)

		r.Post("/users", h.createUser)
		r.Get("/users", h.listUsers)
		r.Delete("/users/{userId}", h.deleteUser)

		r.Post("/categories", h.createCategory)
		r.Patch("/categories/{catId}", h.updateCategory)
		r.Delete("/categories/{catId}", h.deleteCategory)

		r.Post("/compilations", h.createCompilation)
		r.Patch("/compilations/{compId}", h.updateCompilation)
		r.Delete("/compilations/{compId}", h.deleteCompilation)

		r.Patch("/comments/{commentId}", h.moderateComment)
		r.Delete("/comments/{commentId}", h.adminDeleteComment)
	})

	r.Route("/users/{userId}", func(r chi.Router) {
		r.Post("/events", h.createEvent)
		r.Get("/events", h.listOwnedEvents)
		r.Get("/events/{eventId}", h.getOwnedEvent)
		r.Patch("/events/{eventId}", h.updateOwnedEvent)

		r.Get("/events/{eventId}/requests", h.listEventRequests)
		r.Patch("/events/{eventId}/requests", h.updateRequestStatuses)

		r.Get("/requests", h.listUserRequests)
		r.Post("/requests", h.addRequest)
		r.Patch("/requests/{requestId}/cancel", h.cancelRequest)

		r.Post("/events/{eventId}/comments", h.addComment)
		r.Get("/comments", h.listUserComments)
		r.Patch("/comments/{commentId}", h.updateComment)
		r.Delete("/comments/{commentId}", h.deleteComment)
	})

	r.Get("/events", h.publicListEvents)
	r.Get("/events/{eventId}", h.publicGetEvent)
	r.Get("/events/{eventId}/comments", h.listEventComments)
	r.Get("/comments/{commentId}", h.getComment)
	r.Get("/categories", h.listCategories)
	r.Get("/categories/{catId}", h.getCategory)
	r.Get("/compilations", h.listCompilations)
	r.Get("/compilations/{compId}", h.getCompilation)

	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		h.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
	})
}
