package opensearch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rx3lixir/ewm-service/internal/db"
	"github.com/rx3lixir/ewm-service/pkg/logger"
)

func publishedEvent() *db.Event {
	published := time.Date(2030, 1, 2, 10, 0, 0, 0, time.UTC)
	return &db.Event{
		ID:                7,
		InitiatorID:       1,
		CategoryID:        2,
		Title:             "Jazz night",
		Annotation:        "Live jazz in the old town",
		Description:       "Quartet plays standards all night",
		Location:          db.Location{Lat: 55.75, Lon: 37.61},
		EventDate:         time.Date(2030, 2, 1, 19, 0, 0, 0, time.UTC),
		ParticipantLimit:  2,
		ConfirmedRequests: 2,
		Rating:            4.5,
		State:             db.EventPublished,
		PublishedOn:       &published,
	}
}

func TestFromEvent(t *testing.T) {
	e := publishedEvent()
	doc := FromEvent(e)

	if doc.Available {
		t.Fatal("expected full event to be unavailable")
	}
	if doc.Location.Lat != 55.75 || doc.State != "PUBLISHED" || doc.Rating != 4.5 {
		t.Fatalf("unexpected document %+v", doc)
	}
	if err := doc.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	e.ParticipantLimit = 0
	if !FromEvent(e).Available {
		t.Fatal("expected unlimited event to be available")
	}

	e.State = db.EventCanceled
	if err := FromEvent(e).Validate(); err == nil {
		t.Fatal("expected canceled event to be rejected for indexing")
	}
}

func TestBuildSearchQuery(t *testing.T) {
	from := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	filter := db.NewEventFilter(
		db.WithStates(db.EventPublished),
		db.WithCategory(1, 2),
		db.WithPaid(false),
		db.WithText("JaZz"),
		db.WithDateFrom(from),
		db.WithOnlyAvailable(),
		db.WithSort(db.SortByRating),
		db.WithPagination(5, 10),
	)

	raw, err := json.Marshal(buildSearchQuery(filter))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	query := string(raw)

	for _, want := range []string{
		`"from":10`,
		`"size":5`,
		`"_source":false`,
		`{"terms":{"state":["PUBLISHED"]}}`,
		`{"terms":{"category_id":[1,2]}}`,
		`{"term":{"paid":false}}`,
		`{"term":{"available":true}}`,
		`{"range":{"event_date":{"gte":"2030-01-01T00:00:00Z"}}}`,
		`"annotation.lower":{"value":"*jazz*"}`,
		`"sort":[{"rating":{"order":"desc"}},{"id":{"order":"asc"}}]`,
	} {
		if !strings.Contains(query, want) {
			t.Fatalf("query %s does not contain %s", query, want)
		}
	}
	if strings.Contains(query, "match_all") || strings.Contains(query, "multi_match") {
		t.Fatalf("expected pure filter context, got %s", query)
	}
}

func TestBuildSearchQueryDefaults(t *testing.T) {
	raw, _ := json.Marshal(buildSearchQuery(db.NewEventFilter()))
	query := string(raw)

	if !strings.Contains(query, `"match_all":{}`) {
		t.Fatalf("expected match_all for empty filter: %s", query)
	}
	if !strings.Contains(query, `"sort":[{"id":{"order":"asc"}}]`) {
		t.Fatalf("expected id sort: %s", query)
	}
	if !strings.Contains(query, `"size":100`) {
		t.Fatalf("expected default size: %s", query)
	}
}

func TestEscapeWildcard(t *testing.T) {
	if got := escapeWildcard(`50%*off?`); got != `50%\*off\?` {
		t.Fatalf("escapeWildcard = %q", got)
	}
}

func TestBuildBulkBody(t *testing.T) {
	docs := FromEvents([]*db.Event{publishedEvent()})
	body, err := buildBulkBody("events", docs)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(body))
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if lines[0] != `{"index":{"_id":"7","_index":"events"}}` {
		t.Fatalf("action line = %s", lines[0])
	}

	var doc EventDocument
	if err := json.Unmarshal([]byte(lines[1]), &doc); err != nil {
		t.Fatalf("document line: %v", err)
	}
	if doc.ID != 7 || doc.ConfirmedRequests != 2 {
		t.Fatalf("unexpected document %+v", doc)
	}
}

func TestParseSearchIDs(t *testing.T) {
	body := `{"hits":{"total":{"value":3},"hits":[{"_id":"3"},{"_id":"1"},{"_id":"2"}]}}`
	ids, err := parseSearchIDs(strings.NewReader(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(ids) != 3 || ids[0] != 3 || ids[1] != 1 || ids[2] != 2 {
		t.Fatalf("ids = %v", ids)
	}

	if _, err := parseSearchIDs(strings.NewReader(`{"hits":{"hits":[{"_id":"abc"}]}}`)); err == nil {
		t.Fatal("expected error for non-numeric id")
	}
}

func TestCheckBulkResponse(t *testing.T) {
	s := &Service{log: logger.NewNop()}

	partial := `{"errors":true,"items":[{"index":{"_id":"1","status":201}},{"index":{"_id":"2","status":400,"error":{"type":"mapper_parsing_exception","reason":"bad"}}}]}`
	if err := s.checkBulkResponse(strings.NewReader(partial)); err != nil {
		t.Fatalf("partial failure should not fail the batch: %v", err)
	}

	failed := `{"errors":true,"items":[{"index":{"_id":"2","status":400,"error":{"type":"x","reason":"y"}}}]}`
	if err := s.checkBulkResponse(strings.NewReader(failed)); err == nil {
		t.Fatal("expected error when every item failed")
	}
}

func TestRetryLogic(t *testing.T) {
	r := NewRetryLogic(logger.NewNop()).WithMaxRetries(3).WithBaseDelay(time.Millisecond)

	calls := 0
	err := r.ExecuteWithRetry(context.Background(), func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("temporary")
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("err = %v, calls = %d", err, calls)
	}

	calls = 0
	err = r.ExecuteWithRetry(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Fatalf("first-try success: err = %v, calls = %d", err, calls)
	}

	calls = 0
	err = r.ExecuteWithRetry(context.Background(), func(context.Context) error {
		calls++
		return errors.New("down")
	})
	if err == nil || calls != 3 {
		t.Fatalf("err = %v, calls = %d", err, calls)
	}
}
