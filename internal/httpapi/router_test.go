package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rx3lixir/ewm-service/internal/admission"
	"github.com/rx3lixir/ewm-service/internal/compilation"
	"github.com/rx3lixir/ewm-service/internal/db"
	"github.com/rx3lixir/ewm-service/internal/directory"
	"github.com/rx3lixir/ewm-service/internal/lifecycle"
	"github.com/rx3lixir/ewm-service/internal/moderation"
	"github.com/rx3lixir/ewm-service/pkg/logger"
)

type apiFixture struct {
	t      *testing.T
	router http.Handler
}

func newFixture(t *testing.T) *apiFixture {
	t.Helper()
	store := db.NewMemoryStore()
	log := logger.NewNop()
	now := func() time.Time { return time.Date(2030, 1, 1, 12, 0, 0, 0, time.Local) }

	svc := Services{
		Lifecycle:    lifecycle.NewService(store, log, lifecycle.WithClock(now)),
		Admission:    admission.NewService(store, log, admission.WithClock(now)),
		Moderation:   moderation.NewService(store, log, moderation.WithClock(now)),
		Directory:    directory.NewService(store, log),
		Compilations: compilation.NewService(store, log),
	}
	return &apiFixture{t: t, router: NewRouter(svc, log)}
}

func (f *apiFixture) do(method, path string, body any, wantStatus int, out any) {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			f.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	f.router.ServeHTTP(rec, req)

	if rec.Code != wantStatus {
		f.t.Fatalf("%s %s: status = %d, want %d, body: %s", method, path, rec.Code, wantStatus, rec.Body.String())
	}
	if out != nil {
		if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
			f.t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
}

func (f *apiFixture) user(name string) int64 {
	var u userDTO
	f.do(http.MethodPost, "/admin/users", map[string]string{"name": name, "email": name + "@example.com"}, http.StatusCreated, &u)
	return u.ID
}

func (f *apiFixture) publishedEvent(owner, category int64, limit int) eventDTO {
	var e eventDTO
	f.do(http.MethodPost, fmt.Sprintf("/users/%d/events", owner), map[string]any{
		"annotation":        "An evening of chamber music by the river",
		"category":          category,
		"description":       "Three quartets and a short lecture about the composers",
		"eventDate":         "2030-01-05 18:00:00",
		"location":          map[string]float64{"lat": 55.75, "lon": 37.61},
		"participantLimit":  limit,
		"requestModeration": false,
		"title":             "Quartet night",
	}, http.StatusCreated, &e)
	if e.State != "PENDING" {
		f.t.Fatalf("new event state = %s", e.State)
	}

	f.do(http.MethodPatch, fmt.Sprintf("/admin/events/%d", e.ID), map[string]string{"stateAction": "PUBLISH_EVENT"}, http.StatusOK, &e)
	return e
}

func TestParticipationAndRatingFlow(t *testing.T) {
	f := newFixture(t)
	owner := f.user("owner")
	guest := f.user("guest")

	var cat categoryDTO
	f.do(http.MethodPost, "/admin/categories", map[string]string{"name": "Concerts"}, http.StatusCreated, &cat)

	event := f.publishedEvent(owner, cat.ID, 1)
	if event.State != "PUBLISHED" || event.PublishedOn == nil {
		t.Fatalf("event not published: %+v", event)
	}

	var p participationDTO
	f.do(http.MethodPost, fmt.Sprintf("/users/%d/requests?eventId=%d", guest, event.ID), nil, http.StatusCreated, &p)
	if p.Status != "CONFIRMED" {
		t.Fatalf("participation status = %s, want CONFIRMED", p.Status)
	}

	var c commentDTO
	f.do(http.MethodPost, fmt.Sprintf("/users/%d/events/%d/comments", guest, event.ID),
		map[string]any{"text": "Wonderful evening", "rate": 4}, http.StatusCreated, &c)
	f.do(http.MethodPatch, fmt.Sprintf("/admin/comments/%d?status=APPROVED", c.ID), nil, http.StatusOK, &c)

	var got eventDTO
	f.do(http.MethodGet, fmt.Sprintf("/events/%d", event.ID), nil, http.StatusOK, &got)
	if got.ConfirmedRequests != 1 || got.Rating != 4 {
		t.Fatalf("confirmed = %d, rating = %v", got.ConfirmedRequests, got.Rating)
	}

	var comments []commentDTO
	f.do(http.MethodGet, fmt.Sprintf("/events/%d/comments?rated=true", event.ID), nil, http.StatusOK, &comments)
	if len(comments) != 1 || comments[0].Status != "APPROVED" {
		t.Fatalf("unexpected comments: %+v", comments)
	}

	var list []eventDTO
	f.do(http.MethodGet, "/events?onlyAvailable=true", nil, http.StatusOK, &list)
	if len(list) != 0 {
		t.Fatalf("full event must not be listed as available, got %d", len(list))
	}
	f.do(http.MethodGet, "/events?sort=RATING", nil, http.StatusOK, &list)
	if len(list) != 1 || list[0].ID != event.ID {
		t.Fatalf("public listing = %+v", list)
	}
}

func TestErrorResponses(t *testing.T) {
	f := newFixture(t)
	owner := f.user("owner")
	guest := f.user("guest")

	var cat categoryDTO
	f.do(http.MethodPost, "/admin/categories", map[string]string{"name": "Talks"}, http.StatusCreated, &cat)
	event := f.publishedEvent(owner, cat.ID, 1)

	var body errorResponse
	f.do(http.MethodPost, fmt.Sprintf("/users/%d/requests?eventId=%d", owner, event.ID), nil, http.StatusConflict, &body)
	if body.Code != "PARTICIPATION_OWNS_EVENT" || body.Status != "CONFLICT" {
		t.Fatalf("unexpected error body: %+v", body)
	}

	f.do(http.MethodPost, fmt.Sprintf("/users/%d/requests?eventId=%d", guest, event.ID), nil, http.StatusCreated, nil)
	third := f.user("third")
	f.do(http.MethodPost, fmt.Sprintf("/users/%d/requests?eventId=%d", third, event.ID), nil, http.StatusConflict, &body)
	if body.Code != "PARTICIPATION_LIMIT_EXPIRED" {
		t.Fatalf("code = %s", body.Code)
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"missing event id", http.MethodPost, fmt.Sprintf("/users/%d/requests", guest), nil, http.StatusBadRequest},
		{"bad path id", http.MethodGet, "/events/abc", nil, http.StatusBadRequest},
		{"unknown event", http.MethodGet, "/events/999", nil, http.StatusNotFound},
		{"bad date", http.MethodGet, "/events?rangeStart=yesterday", nil, http.StatusBadRequest},
		{"reversed range", http.MethodGet, "/events?rangeStart=2030-02-01%2000:00:00&rangeEnd=2030-01-01%2000:00:00", nil, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/admin/categories", map[string]string{"title": "x"}, http.StatusBadRequest},
		{"duplicate category", http.MethodPost, "/admin/categories", map[string]string{"name": "Talks"}, http.StatusConflict},
		{"category in use", http.MethodDelete, fmt.Sprintf("/admin/categories/%d", cat.ID), nil, http.StatusConflict},
		{"edit published", http.MethodPatch, fmt.Sprintf("/users/%d/events/%d", owner, event.ID), map[string]string{"title": "New title"}, http.StatusConflict},
		{"event without location", http.MethodPost, fmt.Sprintf("/users/%d/events", owner), map[string]any{
			"annotation": "An evening of chamber music by the river", "category": cat.ID,
			"description": "Three quartets and a short lecture about the composers",
			"eventDate": "2030-01-05 18:00:00", "title": "No place",
		}, http.StatusBadRequest},
		{"bad moderation status", http.MethodPatch, "/admin/comments/1?status=PENDING", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.t = t
			f.do(tt.method, tt.path, tt.body, tt.status, nil)
		})
	}
}

func TestBulkStatusUpdate(t *testing.T) {
	f := newFixture(t)
	owner := f.user("owner")
	var cat categoryDTO
	f.do(http.MethodPost, "/admin/categories", map[string]string{"name": "Workshops"}, http.StatusCreated, &cat)

	var e eventDTO
	f.do(http.MethodPost, fmt.Sprintf("/users/%d/events", owner), map[string]any{
		"annotation":       "Hands-on pottery for beginners, all materials included",
		"category":         cat.ID,
		"description":      "Two hours with a ceramicist, tea and snacks provided",
		"eventDate":        "2030-01-10 11:00:00",
		"location":         map[string]float64{"lat": 1, "lon": 2},
		"participantLimit": 1,
		"title":            "Pottery",
	}, http.StatusCreated, &e)
	f.do(http.MethodPatch, fmt.Sprintf("/users/%d/events/%d", owner, e.ID), map[string]string{"stateAction": "SEND_TO_REVIEW"}, http.StatusOK, nil)
	f.do(http.MethodPatch, fmt.Sprintf("/admin/events/%d", e.ID), map[string]string{"stateAction": "PUBLISH_EVENT"}, http.StatusOK, nil)

	var ids []int64
	for _, name := range []string{"anna", "boris"} {
		var p participationDTO
		f.do(http.MethodPost, fmt.Sprintf("/users/%d/requests?eventId=%d", f.user(name), e.ID), nil, http.StatusCreated, &p)
		if p.Status != "PENDING" {
			t.Fatalf("moderated event must keep request pending, got %s", p.Status)
		}
		ids = append(ids, p.ID)
	}

	var res statusUpdateResult
	f.do(http.MethodPatch, fmt.Sprintf("/users/%d/events/%d/requests", owner, e.ID),
		map[string]any{"requestIds": ids, "status": "CONFIRMED"}, http.StatusOK, &res)
	if len(res.ConfirmedRequests) != 1 || len(res.RejectedRequests) != 1 {
		t.Fatalf("confirmed = %d, rejected = %d", len(res.ConfirmedRequests), len(res.RejectedRequests))
	}
	if res.ConfirmedRequests[0].ID != ids[0] || res.RejectedRequests[0].ID != ids[1] {
		t.Fatalf("unexpected split: %+v", res)
	}

	var list []participationDTO
	f.do(http.MethodGet, fmt.Sprintf("/users/%d/events/%d/requests", owner, e.ID), nil, http.StatusOK, &list)
	if len(list) != 2 {
		t.Fatalf("requests = %d", len(list))
	}
}

func TestCompilationRoutes(t *testing.T) {
	f := newFixture(t)
	owner := f.user("owner")

	var cat categoryDTO
	f.do(http.MethodPost, "/admin/categories", map[string]string{"name": "Festivals"}, http.StatusCreated, &cat)
	event := f.publishedEvent(owner, cat.ID, 0)

	var comp compilationDTO
	f.do(http.MethodPost, "/admin/compilations",
		map[string]any{"title": "Summer", "pinned": true, "events": []int64{event.ID}}, http.StatusCreated, &comp)
	if comp.ID == 0 || !comp.Pinned || len(comp.Events) != 1 || comp.Events[0].ID != event.ID {
		t.Fatalf("unexpected compilation: %+v", comp)
	}

	var body errorResponse
	f.do(http.MethodPost, "/admin/compilations", map[string]any{"title": "Summer"}, http.StatusConflict, &body)
	if body.Code != "COMPILATION_DUPLICATE_TITLE" {
		t.Fatalf("code = %s", body.Code)
	}
	f.do(http.MethodPost, "/admin/compilations", map[string]any{"title": ""}, http.StatusBadRequest, nil)

	// без events состав не меняется
	f.do(http.MethodPatch, fmt.Sprintf("/admin/compilations/%d", comp.ID),
		map[string]any{"pinned": false}, http.StatusOK, &comp)
	if comp.Pinned || len(comp.Events) != 1 {
		t.Fatalf("unexpected compilation after patch: %+v", comp)
	}

	var list []compilationDTO
	f.do(http.MethodGet, "/compilations?pinned=true", nil, http.StatusOK, &list)
	if len(list) != 0 {
		t.Fatalf("pinned list = %+v, want empty", list)
	}
	f.do(http.MethodGet, "/compilations?pinned=false&from=0&size=5", nil, http.StatusOK, &list)
	if len(list) != 1 || list[0].Title != "Summer" {
		t.Fatalf("unpinned list = %+v", list)
	}
	f.do(http.MethodGet, "/compilations?pinned=maybe", nil, http.StatusBadRequest, nil)

	f.do(http.MethodGet, fmt.Sprintf("/compilations/%d", comp.ID), nil, http.StatusOK, &comp)
	f.do(http.MethodDelete, fmt.Sprintf("/admin/compilations/%d", comp.ID), nil, http.StatusNoContent, nil)
	f.do(http.MethodGet, fmt.Sprintf("/compilations/%d", comp.ID), nil, http.StatusNotFound, nil)
}
