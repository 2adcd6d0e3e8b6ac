package db

import (
	"strings"
	"testing"
	"time"
)

func TestBuildFilteredQueryPublicListing(t *testing.T) {
	s := &PostgresStore{}
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	filter := NewEventFilter(
		WithStates(EventPublished),
		WithCategory(1, 2),
		WithText("Jazz_50%"),
		WithPaid(false),
		WithDateFrom(from),
		WithOnlyAvailable(),
		WithSort(SortByRating),
		WithPagination(10, 20),
	)

	query, args := s.buildFilteredQuery(filter)

	wantParts := []string{
		"state = ANY($1)",
		"category_id = ANY($2)",
		"(annotation ILIKE $3 OR description ILIKE $3)",
		"paid = $4",
		"event_date >= $5",
		"(participant_limit = 0 OR confirmed_requests < participant_limit)",
		"ORDER BY rating DESC, id ASC",
		"LIMIT $6 OFFSET $7",
	}
	for _, part := range wantParts {
		if !strings.Contains(query, part) {
			t.Fatalf("query %q does not contain %q", query, part)
		}
	}

	if len(args) != 7 {
		t.Fatalf("args = %d, want 7", len(args))
	}
	if args[2] != `%Jazz\_50\%%` {
		t.Fatalf("text pattern = %v", args[2])
	}
	if args[5] != 10 || args[6] != 20 {
		t.Fatalf("pagination args = %v %v", args[5], args[6])
	}
}

func TestBuildFilteredQueryDefaults(t *testing.T) {
	s := &PostgresStore{}
	query, args := s.buildFilteredQuery(NewEventFilter())

	if strings.Contains(query, "WHERE") {
		t.Fatalf("empty filter produced WHERE: %q", query)
	}
	if !strings.Contains(query, "ORDER BY id ASC LIMIT $1 OFFSET $2") {
		t.Fatalf("unexpected query tail: %q", query)
	}
	if args[0] != defaultLimit || args[1] != 0 {
		t.Fatalf("args = %v", args)
	}
}

func TestBuildCountQuerySharesConditions(t *testing.T) {
	s := &PostgresStore{}
	query, args := s.buildCountQuery(NewEventFilter(WithInitiators(5), WithStates(EventPending, EventCanceled)))

	if query != "SELECT COUNT(*) FROM events WHERE initiator_id = ANY($1) AND state = ANY($2)" {
		t.Fatalf("query = %q", query)
	}
	states, ok := args[1].([]string)
	if !ok || len(states) != 2 || states[0] != "PENDING" {
		t.Fatalf("states arg = %#v", args[1])
	}
}

func TestBuildCommentQueryRatedFilter(t *testing.T) {
	s := &PostgresStore{}
	eventID := int64(3)
	rated := true
	query, args := s.buildCommentQuery(&CommentFilter{EventID: &eventID, Rated: &rated})

	if !strings.Contains(query, "WHERE event_id = $1 AND rate IS NOT NULL ORDER BY created ASC, id ASC LIMIT $2 OFFSET $3") {
		t.Fatalf("query = %q", query)
	}
	if len(args) != 3 {
		t.Fatalf("args = %v", args)
	}
}

func TestValidateEventFilter(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Hour)

	tests := []struct {
		name    string
		filter  *EventFilter
		wantErr bool
	}{
		{"empty", NewEventFilter(), false},
		{"valid range", NewEventFilter(WithDateRange(&earlier, &now)), false},
		{"inverted range", NewEventFilter(WithDateRange(&now, &earlier)), true},
		{"negative category", NewEventFilter(WithCategory(-1)), true},
		{"huge limit", NewEventFilter(WithLimit(5000)), true},
		{"unknown sort", NewEventFilter(WithSort("VIEWS")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEventFilter(tt.filter)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
