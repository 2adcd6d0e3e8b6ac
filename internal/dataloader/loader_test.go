package dataloader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rx3lixir/ewm-service/internal/db"
	"github.com/rx3lixir/ewm-service/pkg/logger"
)

type fakeIndex struct {
	count   int64
	batches [][]int64
	failOn  int // номер пачки (с 1), которая падает
}

func (f *fakeIndex) CountDocuments(context.Context) (int64, error) {
	return f.count, nil
}

func (f *fakeIndex) BulkIndexEvents(_ context.Context, events []*db.Event) error {
	ids := make([]int64, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	f.batches = append(f.batches, ids)
	if len(f.batches) == f.failOn {
		return errors.New("bulk rejected")
	}
	f.count += int64(len(events))
	return nil
}

func seed(t *testing.T, published, pending int) *db.MemoryStore {
	t.Helper()
	store := db.NewMemoryStore()
	ctx := context.Background()
	add := func(state db.EventState) {
		e := &db.Event{InitiatorID: 1, CategoryID: 1, Title: "Event", EventDate: time.Now().Add(time.Hour), State: state}
		if err := store.CreateEvent(ctx, e); err != nil {
			t.Fatalf("create event: %v", err)
		}
	}
	for i := 0; i < published; i++ {
		add(db.EventPublished)
	}
	for i := 0; i < pending; i++ {
		add(db.EventPending)
	}
	return store
}

func TestInitializeLoadsPublishedInBatches(t *testing.T) {
	store := seed(t, 5, 3)
	index := &fakeIndex{}
	loader := NewLoader(store, index, 2, logger.NewNop())

	res, err := loader.InitializeOpenSearchData(context.Background())
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if len(index.batches) != 3 {
		t.Fatalf("batches = %v, want 3 batches", index.batches)
	}
	if res.EventsSucceeded != 5 || !res.Success {
		t.Fatalf("unexpected result %+v", res)
	}

	status, err := loader.CheckSyncStatus(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.InSync || status.PostgreSQLCount != 5 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestInitializeSkipsNonEmptyIndex(t *testing.T) {
	index := &fakeIndex{count: 10}
	loader := NewLoader(seed(t, 3, 0), index, 2, logger.NewNop())

	if _, err := loader.InitializeOpenSearchData(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if len(index.batches) != 0 {
		t.Fatalf("expected no indexing, got %v", index.batches)
	}
}

func TestPartialFailureIsNotAnError(t *testing.T) {
	index := &fakeIndex{failOn: 1}
	loader := NewLoader(seed(t, 4, 0), index, 2, logger.NewNop())

	res, err := loader.ForceSyncData(context.Background())
	if err != nil {
		t.Fatalf("force sync: %v", err)
	}
	if res.EventsFailed != 2 || res.EventsSucceeded != 2 {
		t.Fatalf("unexpected result %+v", res)
	}

	status, _ := loader.CheckSyncStatus(context.Background())
	if status.InSync || status.Difference != 2 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestTotalFailureIsAnError(t *testing.T) {
	index := &fakeIndex{failOn: 1}
	loader := NewLoader(seed(t, 1, 0), index, 10, logger.NewNop())

	res, err := loader.ForceSyncData(context.Background())
	if err == nil || res.Success {
		t.Fatalf("expected failure, got %+v", res)
	}
}
