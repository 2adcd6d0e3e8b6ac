package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/rx3lixir/ewm-service/internal/apperr"
	"github.com/rx3lixir/ewm-service/internal/db"
	"github.com/rx3lixir/ewm-service/pkg/logger"
)

var fixedNow = time.Date(2030, 3, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store    *db.MemoryStore
	svc      *Service
	owner    *db.User
	other    *db.User
	category *db.Category
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	store := db.NewMemoryStore()

	owner := &db.User{Name: "Owner", Email: "owner@example.com"}
	other := &db.User{Name: "Other", Email: "other@example.com"}
	category := &db.Category{Name: "Concerts"}
	for _, u := range []*db.User{owner, other} {
		if err := store.CreateUser(ctx, u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	if err := store.CreateCategory(ctx, category); err != nil {
		t.Fatalf("create category: %v", err)
	}

	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return &fixture{
		store:    store,
		svc:      NewService(store, logger.NewNop(), opts...),
		owner:    owner,
		other:    other,
		category: category,
	}
}

func (f *fixture) draft(eventDate time.Time) NewEvent {
	return NewEvent{
		CategoryID:  f.category.ID,
		Title:       "Jazz night",
		Annotation:  "An evening of live jazz in the old town",
		Description: "Quartet plays standards from the fifties and sixties",
		Location:    db.Location{Lat: 55.75, Lon: 37.61},
		EventDate:   eventDate,
	}
}

func (f *fixture) create(t *testing.T) *db.Event {
	t.Helper()
	e, err := f.svc.Create(context.Background(), f.owner.ID, f.draft(fixedNow.Add(3*time.Hour)))
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	return e
}

func action(a StateAction) *StateAction { return &a }

func TestCreate(t *testing.T) {
	f := newFixture(t)
	e := f.create(t)

	if e.State != db.EventPending {
		t.Fatalf("state = %s, want PENDING", e.State)
	}
	if !e.CreatedOn.Equal(fixedNow) {
		t.Fatalf("createdOn = %s", e.CreatedOn)
	}
	if e.ConfirmedRequests != 0 || e.Rating != 0 || e.PublishedOn != nil {
		t.Fatalf("unexpected derived fields: %+v", e)
	}
	if !e.RequestModeration {
		t.Fatal("request moderation should default to true")
	}
}

func TestCreateRejectsEarlyDate(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), f.owner.ID, f.draft(fixedNow.Add(2*time.Hour-time.Second)))
	if apperr.CodeOf(err) != apperr.CodeEventDateTooEarly {
		t.Fatalf("err = %v, want date too early", err)
	}

	if _, err := f.svc.Create(context.Background(), f.owner.ID, f.draft(fixedNow.Add(2*time.Hour))); err != nil {
		t.Fatalf("exactly two hours ahead should be allowed: %v", err)
	}
}

func TestCreateUnknownReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, 999, f.draft(fixedNow.Add(3*time.Hour))); !apperr.IsNotFound(err) {
		t.Fatalf("unknown initiator: err = %v", err)
	}

	draft := f.draft(fixedNow.Add(3 * time.Hour))
	draft.CategoryID = 999
	if _, err := f.svc.Create(ctx, f.owner.ID, draft); !apperr.IsNotFound(err) {
		t.Fatalf("unknown category: err = %v", err)
	}
}

func TestCreateValidatesFields(t *testing.T) {
	f := newFixture(t)
	draft := f.draft(fixedNow.Add(3 * time.Hour))
	draft.Annotation = "too short"
	if _, err := f.svc.Create(context.Background(), f.owner.ID, draft); !apperr.IsValidation(err) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestAdminPublishThenOwnerUpdateConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.create(t)

	published, err := f.svc.UpdateByAdmin(ctx, e.ID, EventPatch{StateAction: action(PublishEvent)})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if published.State != db.EventPublished {
		t.Fatalf("state = %s, want PUBLISHED", published.State)
	}
	if published.PublishedOn == nil || !published.PublishedOn.Equal(fixedNow) {
		t.Fatalf("publishedOn = %v", published.PublishedOn)
	}

	title := "New title"
	_, err = f.svc.UpdateByOwner(ctx, f.owner.ID, e.ID, EventPatch{Title: &title})
	if apperr.CodeOf(err) != apperr.CodeEventPublished {
		t.Fatalf("err = %v, want published conflict", err)
	}
}

func TestAdminTransitionsOnlyFromPending(t *testing.T) {
	tests := []struct {
		name   string
		first  StateAction
		second StateAction
	}{
		{"publish twice", PublishEvent, PublishEvent},
		{"reject after publish", PublishEvent, RejectEvent},
		{"publish after reject", RejectEvent, PublishEvent},
		{"reject twice", RejectEvent, RejectEvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			e := f.create(t)

			if _, err := f.svc.UpdateByAdmin(ctx, e.ID, EventPatch{StateAction: action(tt.first)}); err != nil {
				t.Fatalf("first action: %v", err)
			}
			_, err := f.svc.UpdateByAdmin(ctx, e.ID, EventPatch{StateAction: action(tt.second)})
			if apperr.CodeOf(err) != apperr.CodeEventInvalidTransition {
				t.Fatalf("err = %v, want invalid transition", err)
			}
		})
	}
}

func TestAdminRejectCancelsEvent(t *testing.T) {
	f := newFixture(t)
	e := f.create(t)

	got, err := f.svc.UpdateByAdmin(context.Background(), e.ID, EventPatch{StateAction: action(RejectEvent)})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got.State != db.EventCanceled || got.PublishedOn != nil {
		t.Fatalf("unexpected event after reject: %+v", got)
	}
}

func TestAdminFieldsApplyInAnyState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.create(t)

	if _, err := f.svc.UpdateByAdmin(ctx, e.ID, EventPatch{StateAction: action(PublishEvent)}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	title := "Edited by admin"
	got, err := f.svc.UpdateByAdmin(ctx, e.ID, EventPatch{Title: &title})
	if err != nil {
		t.Fatalf("admin edit: %v", err)
	}
	if got.Title != title || got.State != db.EventPublished {
		t.Fatalf("unexpected event: %+v", got)
	}
}

func TestOwnerStateActions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.create(t)

	got, err := f.svc.UpdateByOwner(ctx, f.owner.ID, e.ID, EventPatch{StateAction: action(CancelReview)})
	if err != nil {
		t.Fatalf("cancel review: %v", err)
	}
	if got.State != db.EventCanceled {
		t.Fatalf("state = %s, want CANCELED", got.State)
	}

	got, err = f.svc.UpdateByOwner(ctx, f.owner.ID, e.ID, EventPatch{StateAction: action(SendToReview)})
	if err != nil {
		t.Fatalf("send to review: %v", err)
	}
	if got.State != db.EventPending || got.PublishedOn != nil {
		t.Fatalf("unexpected event: %+v", got)
	}
}

func TestOwnerCannotUseAdminActions(t *testing.T) {
	f := newFixture(t)
	e := f.create(t)

	_, err := f.svc.UpdateByOwner(context.Background(), f.owner.ID, e.ID, EventPatch{StateAction: action(PublishEvent)})
	if apperr.CodeOf(err) != apperr.CodeEventInvalidAction {
		t.Fatalf("err = %v, want invalid action", err)
	}

	_, err = f.svc.UpdateByAdmin(context.Background(), e.ID, EventPatch{StateAction: action(SendToReview)})
	if apperr.CodeOf(err) != apperr.CodeEventInvalidAction {
		t.Fatalf("err = %v, want invalid action", err)
	}
}

func TestOwnerUpdateByStrangerConflicts(t *testing.T) {
	f := newFixture(t)
	e := f.create(t)

	title := "Hijacked"
	_, err := f.svc.UpdateByOwner(context.Background(), f.other.ID, e.ID, EventPatch{Title: &title})
	if apperr.CodeOf(err) != apperr.CodeEventNotOwner {
		t.Fatalf("err = %v, want not owner", err)
	}
}

func TestUpdateRejectsEarlyDateBeforeMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.create(t)

	early := fixedNow.Add(time.Hour)
	title := "Should not be saved"
	_, err := f.svc.UpdateByOwner(ctx, f.owner.ID, e.ID, EventPatch{Title: &title, EventDate: &early})
	if !apperr.IsValidation(err) {
		t.Fatalf("err = %v, want validation", err)
	}

	stored, _ := f.store.GetEventByID(ctx, e.ID)
	if stored.Title == title {
		t.Fatal("title was saved despite validation error")
	}
}

func TestLimitBelowConfirmedConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.create(t)

	if err := f.store.SetConfirmedRequests(ctx, e.ID, 3); err != nil {
		t.Fatalf("set confirmed: %v", err)
	}

	limit := 2
	_, err := f.svc.UpdateByAdmin(ctx, e.ID, EventPatch{ParticipantLimit: &limit})
	if apperr.CodeOf(err) != apperr.CodeEventLimitBelowCount {
		t.Fatalf("err = %v, want limit below confirmed", err)
	}

	unlimited := 0
	got, err := f.svc.UpdateByAdmin(ctx, e.ID, EventPatch{ParticipantLimit: &unlimited})
	if err != nil {
		t.Fatalf("unlimited: %v", err)
	}
	if got.ConfirmedRequests != 3 {
		t.Fatalf("lifecycle update changed the counter: %d", got.ConfirmedRequests)
	}
}

func TestGetOwnedHidesForeignEvents(t *testing.T) {
	f := newFixture(t)
	e := f.create(t)

	if _, err := f.svc.GetOwned(context.Background(), f.other.ID, e.ID); !apperr.IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
	got, err := f.svc.GetOwned(context.Background(), f.owner.ID, e.ID)
	if err != nil || got.ID != e.ID {
		t.Fatalf("get owned: %v %+v", err, got)
	}
}

func TestGetPublishedRequiresPublishedState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.create(t)

	if _, err := f.svc.GetPublished(ctx, e.ID); !apperr.IsNotFound(err) {
		t.Fatalf("err = %v, want not found for pending event", err)
	}
	if _, err := f.svc.UpdateByAdmin(ctx, e.ID, EventPatch{StateAction: action(PublishEvent)}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := f.svc.GetPublished(ctx, e.ID); err != nil {
		t.Fatalf("get published: %v", err)
	}
}

type stubSearcher struct {
	ids    []int64
	err    error
	called bool
}

func (s *stubSearcher) SearchEventIDs(context.Context, *db.EventFilter) ([]int64, error) {
	s.called = true
	return s.ids, s.err
}

func TestListPublic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	later := f.draft(fixedNow.Add(48 * time.Hour))
	later.Annotation = "Open-air cinema under the summer stars"
	first := f.create(t)
	second, err := f.svc.Create(ctx, f.owner.ID, later)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	hidden := f.create(t)

	for _, id := range []int64{first.ID, second.ID} {
		if _, err := f.svc.UpdateByAdmin(ctx, id, EventPatch{StateAction: action(PublishEvent)}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	events, err := f.svc.ListPublic(ctx, PublicFilter{})
	if err != nil {
		t.Fatalf("list public: %v", err)
	}
	if len(events) != 2 || events[0].ID != first.ID || events[1].ID != second.ID {
		t.Fatalf("unexpected listing: %+v", events)
	}
	for _, e := range events {
		if e.ID == hidden.ID {
			t.Fatal("pending event leaked into public listing")
		}
	}

	events, _ = f.svc.ListPublic(ctx, PublicFilter{Text: "CINEMA"})
	if len(events) != 1 || events[0].ID != second.ID {
		t.Fatalf("text filter returned %+v", events)
	}

	start, end := fixedNow.Add(72*time.Hour), fixedNow
	if _, err := f.svc.ListPublic(ctx, PublicFilter{RangeStart: &start, RangeEnd: &end}); apperr.CodeOf(err) != apperr.CodeEventInvalidRange {
		t.Fatalf("err = %v, want invalid range", err)
	}
}

func TestListPublicUsesSearcherOrder(t *testing.T) {
	searcher := &stubSearcher{}
	f := newFixture(t, WithSearcher(searcher))
	ctx := context.Background()

	a, b := f.create(t), f.create(t)
	for _, id := range []int64{a.ID, b.ID} {
		if _, err := f.svc.UpdateByAdmin(ctx, id, EventPatch{StateAction: action(PublishEvent)}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	searcher.ids = []int64{b.ID, a.ID}

	events, err := f.svc.ListPublic(ctx, PublicFilter{Sort: SortRating})
	if err != nil {
		t.Fatalf("list public: %v", err)
	}
	if !searcher.called {
		t.Fatal("searcher was not used")
	}
	if len(events) != 2 || events[0].ID != b.ID || events[1].ID != a.ID {
		t.Fatalf("order not preserved: %+v", events)
	}
}

func TestListAdminFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := f.create(t)
	f.create(t)
	if _, err := f.svc.UpdateByAdmin(ctx, e.ID, EventPatch{StateAction: action(PublishEvent)}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	events, err := f.svc.ListAdmin(ctx, AdminFilter{States: []db.EventState{db.EventPublished}, Users: []int64{f.owner.ID}})
	if err != nil {
		t.Fatalf("list admin: %v", err)
	}
	if len(events) != 1 || events[0].ID != e.ID {
		t.Fatalf("unexpected listing: %+v", events)
	}

	owned, err := f.svc.ListOwned(ctx, f.owner.ID, Page{Size: 1})
	if err != nil {
		t.Fatalf("list owned: %v", err)
	}
	if len(owned) != 1 {
		t.Fatalf("page size not applied: %d", len(owned))
	}
}
