package admission

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rx3lixir/ewm-service/internal/apperr"
	"github.com/rx3lixir/ewm-service/internal/db"
	"github.com/rx3lixir/ewm-service/pkg/logger"
)

type fixture struct {
	t     *testing.T
	store *db.MemoryStore
	svc   *Service
	owner *db.User
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:     t,
		store: db.NewMemoryStore(),
		clock: time.Date(2030, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	// Каждый вызов now сдвигает часы, чтобы порядок создания заявок был однозначным
	f.svc = NewService(f.store, logger.NewNop(), WithClock(func() time.Time {
		f.clock = f.clock.Add(time.Second)
		return f.clock
	}))
	f.owner = f.user("owner")
	return f
}

func (f *fixture) user(name string) *db.User {
	f.t.Helper()
	u := &db.User{Name: name, Email: name + "@example.com"}
	if err := f.store.CreateUser(context.Background(), u); err != nil {
		f.t.Fatalf("create user: %v", err)
	}
	return u
}

func (f *fixture) event(limit int, moderation bool, state db.EventState) *db.Event {
	f.t.Helper()
	e := &db.Event{
		InitiatorID:       f.owner.ID,
		CategoryID:        1,
		Title:             "Workshop",
		Annotation:        "Hands-on workshop for beginners",
		Description:       "Bring your own laptop and curiosity",
		EventDate:         f.clock.Add(72 * time.Hour),
		ParticipantLimit:  limit,
		RequestModeration: moderation,
		State:             state,
		CreatedOn:         f.clock,
	}
	if err := f.store.CreateEvent(context.Background(), e); err != nil {
		f.t.Fatalf("create event: %v", err)
	}
	return e
}

func (f *fixture) request(requesterID, eventID int64) *db.Participation {
	f.t.Helper()
	p, err := f.svc.Request(context.Background(), requesterID, eventID)
	if err != nil {
		f.t.Fatalf("request: %v", err)
	}
	return p
}

// assertCounter проверяет, что счетчик события равен числу подтвержденных заявок
func (f *fixture) assertCounter(eventID int64, want int) {
	f.t.Helper()
	ctx := context.Background()
	e, err := f.store.GetEventByID(ctx, eventID)
	if err != nil {
		f.t.Fatalf("get event: %v", err)
	}
	live, err := f.store.CountConfirmed(ctx, eventID)
	if err != nil {
		f.t.Fatalf("count confirmed: %v", err)
	}
	if e.ConfirmedRequests != want || live != want {
		f.t.Fatalf("confirmedRequests = %d, live CONFIRMED = %d, want %d", e.ConfirmedRequests, live, want)
	}
}

func TestBulkConfirmCascadesToRejected(t *testing.T) {
	f := newFixture(t)
	e := f.event(2, true, db.EventPublished)

	var requests []*db.Participation
	for i := 0; i < 3; i++ {
		p := f.request(f.user(fmt.Sprintf("u%d", i)).ID, e.ID)
		if p.Status != db.ParticipationPending {
			t.Fatalf("status = %s, want PENDING", p.Status)
		}
		requests = append(requests, p)
	}
	f.assertCounter(e.ID, 0)

	res, err := f.svc.BulkUpdateStatus(context.Background(), f.owner.ID, e.ID, BulkStatusUpdate{Status: db.ParticipationConfirmed})
	if err != nil {
		t.Fatalf("bulk update: %v", err)
	}
	if len(res.Confirmed) != 2 || len(res.Rejected) != 1 {
		t.Fatalf("confirmed = %d, rejected = %d, want 2 and 1", len(res.Confirmed), len(res.Rejected))
	}
	if res.Rejected[0].ID != requests[2].ID {
		t.Fatalf("cascade rejected request %d, want the last one %d", res.Rejected[0].ID, requests[2].ID)
	}
	f.assertCounter(e.ID, 2)
}

func TestBulkFollowsExplicitIDOrder(t *testing.T) {
	f := newFixture(t)
	e := f.event(1, true, db.EventPublished)

	first := f.request(f.user("a").ID, e.ID)
	second := f.request(f.user("b").ID, e.ID)

	res, err := f.svc.BulkUpdateStatus(context.Background(), f.owner.ID, e.ID, BulkStatusUpdate{
		IDs:    []int64{second.ID, first.ID},
		Status: db.ParticipationConfirmed,
	})
	if err != nil {
		t.Fatalf("bulk update: %v", err)
	}
	if len(res.Confirmed) != 1 || res.Confirmed[0].ID != second.ID {
		t.Fatalf("expected request %d to be confirmed first, got %+v", second.ID, res.Confirmed)
	}
	if len(res.Rejected) != 1 || res.Rejected[0].ID != first.ID {
		t.Fatalf("expected request %d to be rejected, got %+v", first.ID, res.Rejected)
	}
	f.assertCounter(e.ID, 1)
}

func TestBulkRejectLeavesCounter(t *testing.T) {
	f := newFixture(t)
	e := f.event(5, true, db.EventPublished)
	f.request(f.user("a").ID, e.ID)
	f.request(f.user("b").ID, e.ID)

	res, err := f.svc.BulkUpdateStatus(context.Background(), f.owner.ID, e.ID, BulkStatusUpdate{Status: db.ParticipationRejected})
	if err != nil {
		t.Fatalf("bulk reject: %v", err)
	}
	if len(res.Confirmed) != 0 || len(res.Rejected) != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	f.assertCounter(e.ID, 0)
}

func TestBulkConfirmOnFullEventConflicts(t *testing.T) {
	f := newFixture(t)
	e := f.event(1, true, db.EventPublished)
	a := f.request(f.user("a").ID, e.ID)
	f.request(f.user("b").ID, e.ID)

	ctx := context.Background()
	if _, err := f.svc.BulkUpdateStatus(ctx, f.owner.ID, e.ID, BulkStatusUpdate{IDs: []int64{a.ID}, Status: db.ParticipationConfirmed}); err != nil {
		t.Fatalf("first confirm: %v", err)
	}

	_, err := f.svc.BulkUpdateStatus(ctx, f.owner.ID, e.ID, BulkStatusUpdate{Status: db.ParticipationConfirmed})
	if apperr.CodeOf(err) != apperr.CodeParticipationLimit {
		t.Fatalf("err = %v, want limit expired", err)
	}
}

func TestBulkNotAllPendingAppliesNothing(t *testing.T) {
	f := newFixture(t)
	e := f.event(10, true, db.EventPublished)
	ctx := context.Background()

	a := f.request(f.user("a").ID, e.ID)
	b := f.request(f.user("b").ID, e.ID)
	if _, err := f.svc.BulkUpdateStatus(ctx, f.owner.ID, e.ID, BulkStatusUpdate{IDs: []int64{a.ID}, Status: db.ParticipationRejected}); err != nil {
		t.Fatalf("reject a: %v", err)
	}

	_, err := f.svc.BulkUpdateStatus(ctx, f.owner.ID, e.ID, BulkStatusUpdate{IDs: []int64{b.ID, a.ID}, Status: db.ParticipationConfirmed})
	if apperr.CodeOf(err) != apperr.CodeParticipationNotPending {
		t.Fatalf("err = %v, want not all pending", err)
	}

	got, _ := f.store.GetParticipationByID(ctx, b.ID)
	if got.Status != db.ParticipationPending {
		t.Fatalf("request b = %s, want untouched PENDING", got.Status)
	}
	f.assertCounter(e.ID, 0)
}

func TestBulkValidation(t *testing.T) {
	f := newFixture(t)
	e := f.event(10, true, db.EventPublished)
	stranger := f.user("stranger")
	ctx := context.Background()

	_, err := f.svc.BulkUpdateStatus(ctx, f.owner.ID, e.ID, BulkStatusUpdate{Status: db.ParticipationCanceled})
	if apperr.CodeOf(err) != apperr.CodeParticipationBadStatus {
		t.Fatalf("err = %v, want bad status", err)
	}

	_, err = f.svc.BulkUpdateStatus(ctx, stranger.ID, e.ID, BulkStatusUpdate{Status: db.ParticipationConfirmed})
	if apperr.CodeOf(err) != apperr.CodeEventNotOwner {
		t.Fatalf("err = %v, want not owner", err)
	}

	other := f.event(10, true, db.EventPublished)
	foreign := f.request(stranger.ID, other.ID)
	_, err = f.svc.BulkUpdateStatus(ctx, f.owner.ID, e.ID, BulkStatusUpdate{IDs: []int64{foreign.ID}, Status: db.ParticipationConfirmed})
	if !apperr.IsNotFound(err) {
		t.Fatalf("err = %v, want not found for foreign request", err)
	}
}

func TestRequestAutoConfirms(t *testing.T) {
	tests := []struct {
		name       string
		limit      int
		moderation bool
		want       db.ParticipationStatus
		counter    int
	}{
		{"unlimited", 0, true, db.ParticipationConfirmed, 1},
		{"no moderation", 5, false, db.ParticipationConfirmed, 1},
		{"moderated with limit", 5, true, db.ParticipationPending, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			e := f.event(tt.limit, tt.moderation, db.EventPublished)
			p := f.request(f.user("guest").ID, e.ID)
			if p.Status != tt.want {
				t.Fatalf("status = %s, want %s", p.Status, tt.want)
			}
			f.assertCounter(e.ID, tt.counter)
		})
	}
}

func TestRequestPreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	guest := f.user("guest")

	published := f.event(0, true, db.EventPublished)
	pending := f.event(0, true, db.EventPending)

	if _, err := f.svc.Request(ctx, f.owner.ID, published.ID); apperr.CodeOf(err) != apperr.CodeParticipationOwnsEvent {
		t.Fatalf("owner request: err = %v", err)
	}

	f.request(guest.ID, published.ID)
	if _, err := f.svc.Request(ctx, guest.ID, published.ID); apperr.CodeOf(err) != apperr.CodeParticipationDuplicate {
		t.Fatalf("duplicate: err = %v", err)
	}

	if _, err := f.svc.Request(ctx, guest.ID, pending.ID); apperr.CodeOf(err) != apperr.CodeParticipationNotPublished {
		t.Fatalf("not published: err = %v", err)
	}

	if _, err := f.svc.Request(ctx, guest.ID, 9999); !apperr.IsNotFound(err) {
		t.Fatalf("missing event: err = %v", err)
	}
}

func TestRequestAtLimitAlwaysConflicts(t *testing.T) {
	f := newFixture(t)
	e := f.event(1, false, db.EventPublished)
	f.request(f.user("first").ID, e.ID)
	f.assertCounter(e.ID, 1)

	_, err := f.svc.Request(context.Background(), f.user("second").ID, e.ID)
	if apperr.CodeOf(err) != apperr.CodeParticipationLimit {
		t.Fatalf("err = %v, want limit expired", err)
	}
	f.assertCounter(e.ID, 1)
}

func TestCancelConfirmedDecrementsCounter(t *testing.T) {
	f := newFixture(t)
	e := f.event(0, true, db.EventPublished)
	guest := f.user("guest")
	p := f.request(guest.ID, e.ID)
	f.assertCounter(e.ID, 1)

	got, err := f.svc.Cancel(context.Background(), guest.ID, p.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != db.ParticipationCanceled {
		t.Fatalf("status = %s, want CANCELED", got.Status)
	}
	f.assertCounter(e.ID, 0)
}

func TestCancelRejectedIsIdempotent(t *testing.T) {
	f := newFixture(t)
	e := f.event(3, true, db.EventPublished)
	guest := f.user("guest")
	p := f.request(guest.ID, e.ID)
	ctx := context.Background()

	if _, err := f.svc.BulkUpdateStatus(ctx, f.owner.ID, e.ID, BulkStatusUpdate{Status: db.ParticipationRejected}); err != nil {
		t.Fatalf("reject: %v", err)
	}

	first, err := f.svc.Cancel(ctx, guest.ID, p.ID)
	if err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	second, err := f.svc.Cancel(ctx, guest.ID, p.ID)
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if first.Status != db.ParticipationRejected || *first != *second {
		t.Fatalf("cancel of rejected request changed it: %+v then %+v", first, second)
	}
	f.assertCounter(e.ID, 0)
}

func TestCancelTwiceIsNoop(t *testing.T) {
	f := newFixture(t)
	e := f.event(3, true, db.EventPublished)
	guest := f.user("guest")
	p := f.request(guest.ID, e.ID)
	ctx := context.Background()

	if _, err := f.svc.Cancel(ctx, guest.ID, p.ID); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	got, err := f.svc.Cancel(ctx, guest.ID, p.ID)
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if got.Status != db.ParticipationCanceled {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestCancelForeignRequestIsNotFound(t *testing.T) {
	f := newFixture(t)
	e := f.event(0, true, db.EventPublished)
	p := f.request(f.user("guest").ID, e.ID)

	_, err := f.svc.Cancel(context.Background(), f.user("intruder").ID, p.ID)
	if !apperr.IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
	f.assertCounter(e.ID, 1)
}

func TestConcurrentRequestsNeverExceedLimit(t *testing.T) {
	f := newFixture(t)
	const limit = 5
	e := f.event(limit, false, db.EventPublished)

	users := make([]*db.User, 40)
	for i := range users {
		users[i] = f.user(fmt.Sprintf("racer%d", i))
	}

	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, _ = f.svc.Request(context.Background(), id, e.ID)
		}(u.ID)
	}
	wg.Wait()

	f.assertCounter(e.ID, limit)
}

func TestListings(t *testing.T) {
	f := newFixture(t)
	e := f.event(0, true, db.EventPublished)
	guest := f.user("guest")
	f.request(guest.ID, e.ID)
	ctx := context.Background()

	mine, err := f.svc.ListByRequester(ctx, guest.ID)
	if err != nil || len(mine) != 1 {
		t.Fatalf("list by requester: %v %d", err, len(mine))
	}

	forEvent, err := f.svc.ListForEvent(ctx, f.owner.ID, e.ID)
	if err != nil || len(forEvent) != 1 {
		t.Fatalf("list for event: %v %d", err, len(forEvent))
	}

	if _, err := f.svc.ListForEvent(ctx, guest.ID, e.ID); apperr.CodeOf(err) != apperr.CodeEventNotOwner {
		t.Fatalf("err = %v, want not owner", err)
	}
}
