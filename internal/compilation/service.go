// Package compilation ведет подборки событий: админ собирает их из
// существующих событий, публичный API показывает только опубликованные.
package compilation

import (
	"context"

	"github.com/rx3lixir/ewm-service/internal/apperr"
	"github.com/rx3lixir/ewm-service/internal/db"
	"github.com/rx3lixir/ewm-service/internal/validation"
	"github.com/rx3lixir/ewm-service/pkg/logger"
)

// eventBatchSize - сколько событий читается одним запросом
const eventBatchSize = 500

// NewCompilation новая подборка
type NewCompilation struct {
	Title  string `validate:"notblank,min=1,max=50"`
	Pinned bool
	Events []int64
}

// Patch частичное обновление. Events == nil оставляет состав как есть,
// пустой срез очищает подборку.
type Patch struct {
	Title  *string `validate:"omitempty,notblank,min=1,max=50"`
	Pinned *bool
	Events *[]int64
}

// View подборка с развернутыми событиями в порядке добавления
type View struct {
	*db.Compilation
	Events []*db.Event
}

type Service struct {
	store db.Store
	log   logger.Logger
}

func NewService(store db.Store, log logger.Logger) *Service {
	return &Service{store: store, log: log.With("component", "compilation")}
}

// Create создает подборку и сразу заполняет ее событиями
func (s *Service) Create(ctx context.Context, in NewCompilation) (*View, error) {
	s.log.Info("starting Create", "method", "Create", "title", in.Title, "events", len(in.Events))

	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	eventIDs, err := normalizeIDs(in.Events)
	if err != nil {
		return nil, err
	}

	c := &db.Compilation{Title: in.Title, Pinned: in.Pinned}
	var events []*db.Event
	err = s.store.WithTx(ctx, func(q db.Queries) error {
		if err := q.CreateCompilation(ctx, c); err != nil {
			return err
		}
		events, err = s.replaceEvents(ctx, q, c, eventIDs)
		return err
	})
	if err != nil {
		s.log.Warn("failed to create compilation", "title", in.Title, "error", err)
		return nil, err
	}

	s.log.Info("compilation created", "compilation_id", c.ID, "events", len(events))
	return &View{Compilation: c, Events: events}, nil
}

// Update меняет заголовок, закрепление и, если передан, состав подборки
func (s *Service) Update(ctx context.Context, id int64, patch Patch) (*View, error) {
	s.log.Info("starting Update", "method", "Update", "compilation_id", id)

	if err := validation.Struct(patch); err != nil {
		return nil, err
	}
	var eventIDs []int64
	if patch.Events != nil {
		var err error
		if eventIDs, err = normalizeIDs(*patch.Events); err != nil {
			return nil, err
		}
	}

	var view *View
	err := s.store.WithTx(ctx, func(q db.Queries) error {
		c, err := q.GetCompilationByID(ctx, id)
		if err != nil {
			return err
		}
		if patch.Title != nil {
			c.Title = *patch.Title
		}
		if patch.Pinned != nil {
			c.Pinned = *patch.Pinned
		}
		if err := q.UpdateCompilation(ctx, c); err != nil {
			return err
		}

		var events []*db.Event
		if patch.Events != nil {
			events, err = s.replaceEvents(ctx, q, c, eventIDs)
		} else {
			events, err = loadEvents(ctx, q, c.EventIDs, false)
		}
		if err != nil {
			return err
		}
		view = &View{Compilation: c, Events: events}
		return nil
	})
	if err != nil {
		s.log.Warn("failed to update compilation", "compilation_id", id, "error", err)
		return nil, err
	}

	s.log.Info("compilation updated", "compilation_id", id, "events", len(view.Events))
	return view, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeleteCompilation(ctx, id); err != nil {
		s.log.Warn("failed to delete compilation", "compilation_id", id, "error", err)
		return err
	}
	s.log.Info("compilation deleted", "compilation_id", id)
	return nil
}

// Get возвращает подборку для публичного API
func (s *Service) Get(ctx context.Context, id int64) (*View, error) {
	c, err := s.store.GetCompilationByID(ctx, id)
	if err != nil {
		return nil, err
	}
	views, err := s.expand(ctx, []*db.Compilation{c})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

// List возвращает страницу подборок; pinned == nil - все
func (s *Service) List(ctx context.Context, pinned *bool, from, size int) ([]*View, error) {
	if from < 0 || size < 0 {
		return nil, apperr.Validation(apperr.CodeInvalidArgument, "from and size must not be negative")
	}
	if size == 0 {
		size = 10
	}

	compilations, err := s.store.ListCompilations(ctx, pinned, db.Page{Limit: size, Offset: from})
	if err != nil {
		return nil, err
	}
	return s.expand(ctx, compilations)
}

// expand одним проходом загружает события всех подборок страницы
func (s *Service) expand(ctx context.Context, compilations []*db.Compilation) ([]*View, error) {
	var all []int64
	for _, c := range compilations {
		all = append(all, c.EventIDs...)
	}
	events, err := loadEvents(ctx, s.store, all, true)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*db.Event, len(events))
	for _, e := range events {
		byID[e.ID] = e
	}

	views := make([]*View, 0, len(compilations))
	for _, c := range compilations {
		v := &View{Compilation: c, Events: []*db.Event{}}
		for _, id := range c.EventIDs {
			if e, ok := byID[id]; ok {
				v.Events = append(v.Events, e)
			}
		}
		views = append(views, v)
	}
	return views, nil
}

// replaceEvents проверяет, что все события существуют, и заменяет ими состав подборки
func (s *Service) replaceEvents(ctx context.Context, q db.Queries, c *db.Compilation, eventIDs []int64) ([]*db.Event, error) {
	events, err := loadEvents(ctx, q, eventIDs, false)
	if err != nil {
		return nil, err
	}
	if len(events) != len(eventIDs) {
		found := make(map[int64]bool, len(events))
		for _, e := range events {
			found[e.ID] = true
		}
		for _, id := range eventIDs {
			if !found[id] {
				return nil, apperr.NotFound("Event with id=%d was not found", id)
			}
		}
	}

	if err := q.SetCompilationEvents(ctx, c.ID, eventIDs); err != nil {
		return nil, err
	}
	c.EventIDs = eventIDs
	return events, nil
}

// loadEvents читает события пачками и возвращает их в порядке ids.
// publishedOnly отбрасывает неопубликованные.
func loadEvents(ctx context.Context, q db.Queries, ids []int64, publishedOnly bool) ([]*db.Event, error) {
	if len(ids) == 0 {
		return []*db.Event{}, nil
	}

	byID := make(map[int64]*db.Event, len(ids))
	for start := 0; start < len(ids); start += eventBatchSize {
		end := min(start+eventBatchSize, len(ids))
		opts := []db.FilterOption{db.WithIDs(ids[start:end]...), db.WithLimit(end - start)}
		if publishedOnly {
			opts = append(opts, db.WithStates(db.EventPublished))
		}
		batch, err := q.ListEvents(ctx, db.NewEventFilter(opts...))
		if err != nil {
			return nil, err
		}
		for _, e := range batch {
			byID[e.ID] = e
		}
	}

	events := make([]*db.Event, 0, len(byID))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			events = append(events, e)
			delete(byID, id)
		}
	}
	return events, nil
}

// normalizeIDs убирает повторы, сохраняя порядок
func normalizeIDs(ids []int64) ([]int64, error) {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return nil, apperr.Validation(apperr.CodeInvalidArgument, "Field: events. Error: event id must be positive, got: %d", id)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}
