package lifecycle

import (
	"context"
	"time"

	"github.com/rx3lixir/ewm-service/internal/apperr"
	"github.com/rx3lixir/ewm-service/internal/db"
	"github.com/rx3lixir/ewm-service/internal/validation"
	"github.com/rx3lixir/ewm-service/pkg/metrics"
)

// GetOwned возвращает событие его инициатору. Чужое событие - NotFound.
func (s *Service) GetOwned(ctx context.Context, initiatorID, eventID int64) (*db.Event, error) {
	if _, err := s.store.GetUserByID(ctx, initiatorID); err != nil {
		return nil, err
	}
	event, err := s.store.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.InitiatorID != initiatorID {
		return nil, apperr.NotFound("Event with id=%d owned by user %d was not found", eventID, initiatorID)
	}
	return event, nil
}

// ListOwned возвращает события инициатора
func (s *Service) ListOwned(ctx context.Context, initiatorID int64, page Page) ([]*db.Event, error) {
	if err := validation.Struct(page); err != nil {
		return nil, err
	}
	if _, err := s.store.GetUserByID(ctx, initiatorID); err != nil {
		return nil, err
	}
	return s.store.ListEvents(ctx, db.NewEventFilter(
		db.WithInitiators(initiatorID),
		db.WithPagination(page.size(), page.From),
	))
}

// ListAdmin - админский листинг без ограничений по состоянию
func (s *Service) ListAdmin(ctx context.Context, f AdminFilter) ([]*db.Event, error) {
	if err := validation.Struct(f); err != nil {
		return nil, err
	}

	filter := db.NewEventFilter(
		db.WithInitiators(f.Users...),
		db.WithStates(f.States...),
		db.WithCategory(f.Categories...),
		db.WithDateRange(f.RangeStart, f.RangeEnd),
		db.WithPagination(f.size(), f.From),
	)
	return s.store.ListEvents(ctx, filter)
}

// ListPublic - публичный листинг опубликованных событий.
// Если подключен поиск, фильтрация идет в индексе, а события читаются из базы.
func (s *Service) ListPublic(ctx context.Context, f PublicFilter) ([]*db.Event, error) {
	if err := validation.Struct(f); err != nil {
		return nil, err
	}

	opts := []db.FilterOption{
		db.WithStates(db.EventPublished),
		db.WithCategory(f.Categories...),
		db.WithPagination(f.size(), f.From),
	}
	if f.Text != "" {
		opts = append(opts, db.WithText(f.Text))
	}
	if f.Paid != nil {
		opts = append(opts, db.WithPaid(*f.Paid))
	}
	if f.RangeStart == nil && f.RangeEnd == nil {
		opts = append(opts, db.WithDateFrom(s.now()))
	} else {
		opts = append(opts, db.WithDateRange(f.RangeStart, f.RangeEnd))
	}
	if f.OnlyAvailable {
		opts = append(opts, db.WithOnlyAvailable())
	}
	switch f.Sort {
	case SortRating:
		opts = append(opts, db.WithSort(db.SortByRating))
	default:
		opts = append(opts, db.WithSort(db.SortByEventDate))
	}

	filter := db.NewEventFilter(opts...)
	if err := db.ValidateEventFilter(filter); err != nil {
		return nil, err
	}

	if s.searcher != nil {
		events, err := s.searchPublic(ctx, filter)
		if err == nil {
			return events, nil
		}
		s.log.Warn("search index unavailable, falling back to database", "error", err)
	}

	start := time.Now()
	events, err := s.store.ListEvents(ctx, filter)
	metrics.RecordSearch("postgres", time.Since(start))
	return events, err
}

func (s *Service) searchPublic(ctx context.Context, filter *db.EventFilter) ([]*db.Event, error) {
	start := time.Now()
	defer func() { metrics.RecordSearch("opensearch", time.Since(start)) }()

	ids, err := s.searcher.SearchEventIDs(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*db.Event{}, nil
	}

	// Страница уже выбрана индексом, из базы читаем только эти события
	found, err := s.store.ListEvents(ctx, db.NewEventFilter(db.WithIDs(ids...), db.WithLimit(len(ids))))
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*db.Event, len(found))
	for _, e := range found {
		byID[e.ID] = e
	}

	events := make([]*db.Event, 0, len(ids))
	for _, id := range ids {
		if e, ok := byID[id]; ok && e.State == db.EventPublished {
			events = append(events, e)
		}
	}
	return events, nil
}

// GetPublished возвращает опубликованное событие; неопубликованное - NotFound
func (s *Service) GetPublished(ctx context.Context, eventID int64) (*db.Event, error) {
	event, err := s.store.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.State != db.EventPublished {
		return nil, apperr.NotFound("Event with id=%d was not found", eventID)
	}
	return event, nil
}
