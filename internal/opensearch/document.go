package opensearch

import (
	"fmt"
	"strings"
	"time"

	"github.com/rx3lixir/ewm-service/internal/db"
)

// EventDocument представляет документ опубликованного события в OpenSearch
type EventDocument struct {
	ID                int64      `json:"id"`
	InitiatorID       int64      `json:"initiator_id"`
	CategoryID        int64      `json:"category_id"`
	Title             string     `json:"title"`
	Annotation        string     `json:"annotation"`
	Description       string     `json:"description"`
	Location          GeoPoint   `json:"location"`
	Paid              bool       `json:"paid"`
	EventDate         time.Time  `json:"event_date"`
	ParticipantLimit  int        `json:"participant_limit"`
	ConfirmedRequests int        `json:"confirmed_requests"`
	Available         bool       `json:"available"`
	Rating            float64    `json:"rating"`
	State             string     `json:"state"`
	PublishedOn       *time.Time `json:"published_on,omitempty"`
}

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// FromEvent строит документ из события. Available вычисляется здесь,
// поэтому документ нужно переиндексировать при каждом изменении счетчика.
func FromEvent(e *db.Event) *EventDocument {
	return &EventDocument{
		ID:                e.ID,
		InitiatorID:       e.InitiatorID,
		CategoryID:        e.CategoryID,
		Title:             e.Title,
		Annotation:        e.Annotation,
		Description:       e.Description,
		Location:          GeoPoint{Lat: e.Location.Lat, Lon: e.Location.Lon},
		Paid:              e.Paid,
		EventDate:         e.EventDate.UTC(),
		ParticipantLimit:  e.ParticipantLimit,
		ConfirmedRequests: e.ConfirmedRequests,
		Available:         !e.LimitReached(),
		Rating:            e.Rating,
		State:             string(e.State),
		PublishedOn:       e.PublishedOn,
	}
}

// FromEvents конвертирует пачку событий
func FromEvents(events []*db.Event) []*EventDocument {
	docs := make([]*EventDocument, 0, len(events))
	for _, e := range events {
		docs = append(docs, FromEvent(e))
	}
	return docs
}

// Validate проверяет готовность документа к индексации
func (d *EventDocument) Validate() error {
	var errs []string

	if d.ID <= 0 {
		errs = append(errs, "id must be positive")
	}
	if d.CategoryID <= 0 {
		errs = append(errs, "category_id must be positive")
	}
	if strings.TrimSpace(d.Title) == "" {
		errs = append(errs, "title is required")
	}
	if d.State != string(db.EventPublished) {
		errs = append(errs, "only published events are indexed")
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors: %s", strings.Join(errs, ", "))
	}
	return nil
}
