package grpcserver

import (
	"math"
	"time"

	"github.com/rx3lixir/ewm-service/internal/apperr"
	"github.com/rx3lixir/ewm-service/internal/db"
	"github.com/rx3lixir/ewm-service/pkg/consistency"
	"google.golang.org/protobuf/types/known/structpb"
)

func idField(s *structpb.Struct, name string) (int64, error) {
	v, ok := s.GetFields()[name]
	if !ok {
		return 0, apperr.Validation(apperr.CodeInvalidArgument, "field %s is required", name)
	}
	n := v.GetNumberValue()
	if n <= 0 || n != math.Trunc(n) || n > math.MaxInt64 {
		return 0, apperr.Validation(apperr.CodeInvalidArgument, "field %s must be a positive integer", name)
	}
	return int64(n), nil
}

func stringField(s *structpb.Struct, name string) (string, error) {
	v := s.GetFields()[name].GetStringValue()
	if v == "" {
		return "", apperr.Validation(apperr.CodeInvalidArgument, "field %s is required", name)
	}
	return v, nil
}

func eventToStruct(e *db.Event) (*structpb.Struct, error) {
	m := map[string]any{
		"id":                 e.ID,
		"initiator_id":       e.InitiatorID,
		"category_id":        e.CategoryID,
		"title":              e.Title,
		"state":              string(e.State),
		"event_date":         e.EventDate.Format(time.RFC3339),
		"participant_limit":  e.ParticipantLimit,
		"confirmed_requests": e.ConfirmedRequests,
		"request_moderation": e.RequestModeration,
		"rating":             e.Rating,
	}
	if e.PublishedOn != nil {
		m["published_on"] = e.PublishedOn.Format(time.RFC3339)
	}
	return structpb.NewStruct(m)
}

func commentToStruct(c *db.Comment) (*structpb.Struct, error) {
	m := map[string]any{
		"id":           c.ID,
		"event_id":     c.EventID,
		"commenter_id": c.CommenterID,
		"text":         c.Text,
		"status":       string(c.Status),
		"created":      c.Created.Format(time.RFC3339),
	}
	if c.Rate != nil {
		m["rate"] = *c.Rate
	}
	return structpb.NewStruct(m)
}

func checkResultToStruct(r *consistency.CheckResult) (*structpb.Struct, error) {
	mismatches := make([]any, 0, len(r.Mismatches))
	for _, mm := range r.Mismatches {
		mismatches = append(mismatches, map[string]any{
			"event_id": mm.EventID,
			"field":    mm.Field,
			"stored":   mm.Stored,
			"actual":   mm.Actual,
		})
	}
	return structpb.NewStruct(map[string]any{
		"is_consistent":     r.IsConsistent,
		"events_checked":    r.EventsChecked,
		"inconsistencies":   r.Inconsistencies(),
		"mismatches":        mismatches,
		"missing_in_index":  int64sToAny(r.MissingInIndex),
		"orphaned_in_index": int64sToAny(r.OrphanedInIdx),
		"check_duration_ms": r.CheckDuration.Milliseconds(),
		"timestamp":         r.Timestamp.Format(time.RFC3339),
	})
}

func int64sToAny(ids []int64) []any {
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, id)
	}
	return out
}
