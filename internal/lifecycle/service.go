// Package lifecycle управляет созданием событий, их редактированием
// и переходами состояний PENDING / PUBLISHED / CANCELED.
package lifecycle

import (
	"context"
	"time"

	"github.com/rx3lixir/ewm-service/internal/apperr"
	"github.com/rx3lixir/ewm-service/internal/db"
	"github.com/rx3lixir/ewm-service/internal/validation"
	"github.com/rx3lixir/ewm-service/pkg/logger"
	"github.com/rx3lixir/ewm-service/pkg/metrics"
)

const defaultMinLeadTime = 2 * time.Hour

// EventIndexer зеркалит событие в поисковый индекс
type EventIndexer interface {
	SyncEvent(ctx context.Context, event *db.Event) error
}

// EventSearcher ищет опубликованные события и возвращает их ID в нужном порядке
type EventSearcher interface {
	SearchEventIDs(ctx context.Context, filter *db.EventFilter) ([]int64, error)
}

// Service - жизненный цикл событий
type Service struct {
	store       db.Store
	log         logger.Logger
	now         func() time.Time
	minLeadTime time.Duration
	indexer     EventIndexer
	searcher    EventSearcher
}

// Option настраивает Service
type Option func(*Service)

// WithClock подменяет источник текущего времени
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMinLeadTime задает минимальный запас между текущим моментом и датой события
func WithMinLeadTime(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.minLeadTime = d
		}
	}
}

// WithIndexer включает синхронизацию с поисковым индексом
func WithIndexer(idx EventIndexer) Option {
	return func(s *Service) { s.indexer = idx }
}

// WithSearcher включает публичный листинг через поисковый индекс
func WithSearcher(srch EventSearcher) Option {
	return func(s *Service) { s.searcher = srch }
}

func NewService(store db.Store, log logger.Logger, opts ...Option) *Service {
	s := &Service{
		store:       store,
		log:         log.With("component", "lifecycle"),
		now:         time.Now,
		minLeadTime: defaultMinLeadTime,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) checkEventDate(date time.Time) error {
	minDate := s.now().Add(s.minLeadTime)
	if date.Before(minDate) {
		return apperr.Validation(apperr.CodeEventDateTooEarly,
			"event date must be not earlier than %s from now, got: %s", s.minLeadTime, date.Format(time.DateTime))
	}
	return nil
}

// Create создает событие в состоянии PENDING
func (s *Service) Create(ctx context.Context, initiatorID int64, in NewEvent) (*db.Event, error) {
	s.log.Info("starting Create", "method", "Create", "initiator_id", initiatorID, "category_id", in.CategoryID)

	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if err := s.checkEventDate(in.EventDate); err != nil {
		return nil, err
	}

	if _, err := s.store.GetUserByID(ctx, initiatorID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetCategoryByID(ctx, in.CategoryID); err != nil {
		return nil, err
	}

	moderation := true
	if in.RequestModeration != nil {
		moderation = *in.RequestModeration
	}

	event := &db.Event{
		InitiatorID:       initiatorID,
		CategoryID:        in.CategoryID,
		Title:             in.Title,
		Annotation:        in.Annotation,
		Description:       in.Description,
		Location:          in.Location,
		Paid:              in.Paid,
		EventDate:         in.EventDate,
		ParticipantLimit:  in.ParticipantLimit,
		RequestModeration: moderation,
		State:             db.EventPending,
		CreatedOn:         s.now(),
	}

	if err := s.store.CreateEvent(ctx, event); err != nil {
		s.log.Error("failed to create event", "initiator_id", initiatorID, "error", err)
		return nil, err
	}

	metrics.RecordEventTransition("CREATE", string(event.State))
	s.log.Info("event created", "event_id", event.ID, "title", event.Title)
	return event, nil
}

// UpdateByOwner обновляет событие от имени инициатора. Опубликованные события менять нельзя.
func (s *Service) UpdateByOwner(ctx context.Context, initiatorID, eventID int64, patch EventPatch) (*db.Event, error) {
	s.log.Info("starting UpdateByOwner", "method", "UpdateByOwner", "initiator_id", initiatorID, "event_id", eventID)

	if err := s.validatePatch(actorOwner, patch); err != nil {
		return nil, err
	}
	if _, err := s.store.GetUserByID(ctx, initiatorID); err != nil {
		return nil, err
	}

	var event *db.Event
	err := s.store.WithTx(ctx, func(q db.Queries) error {
		var err error
		event, err = q.LockEventByID(ctx, eventID)
		if err != nil {
			return err
		}

		if event.State == db.EventPublished {
			return apperr.Conflict(apperr.CodeEventPublished, "only pending or canceled events can be changed")
		}
		if event.InitiatorID != initiatorID {
			return apperr.Conflict(apperr.CodeEventNotOwner, "user %d is not the initiator of event %d", initiatorID, eventID)
		}

		return s.applyAndSave(ctx, q, actorOwner, event, patch)
	})
	if err != nil {
		s.log.Warn("UpdateByOwner rejected", "event_id", eventID, "error", err)
		return nil, err
	}

	recordTransition(patch, event)
	s.syncIndex(ctx, event)
	s.log.Info("event updated by owner", "event_id", event.ID, "state", event.State)
	return event, nil
}

// UpdateByAdmin обновляет событие от имени администратора: публикация или отклонение
// возможны только из PENDING, остальные поля применяются без ограничений по состоянию.
func (s *Service) UpdateByAdmin(ctx context.Context, eventID int64, patch EventPatch) (*db.Event, error) {
	s.log.Info("starting UpdateByAdmin", "method", "UpdateByAdmin", "event_id", eventID)

	if err := s.validatePatch(actorAdmin, patch); err != nil {
		return nil, err
	}

	var event *db.Event
	err := s.store.WithTx(ctx, func(q db.Queries) error {
		var err error
		event, err = q.LockEventByID(ctx, eventID)
		if err != nil {
			return err
		}
		return s.applyAndSave(ctx, q, actorAdmin, event, patch)
	})
	if err != nil {
		s.log.Warn("UpdateByAdmin rejected", "event_id", eventID, "error", err)
		return nil, err
	}

	recordTransition(patch, event)
	s.syncIndex(ctx, event)
	s.log.Info("event updated by admin", "event_id", event.ID, "state", event.State)
	return event, nil
}

// validatePatch - все проверки входа до каких-либо изменений
func (s *Service) validatePatch(a actor, patch EventPatch) error {
	if err := validation.Struct(patch); err != nil {
		return err
	}
	if patch.StateAction != nil {
		if err := checkAction(a, *patch.StateAction); err != nil {
			return err
		}
	}
	if patch.EventDate != nil {
		if err := s.checkEventDate(*patch.EventDate); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) applyAndSave(ctx context.Context, q db.Queries, a actor, event *db.Event, patch EventPatch) error {
	if patch.CategoryID != nil && *patch.CategoryID != event.CategoryID {
		if _, err := q.GetCategoryByID(ctx, *patch.CategoryID); err != nil {
			return err
		}
		event.CategoryID = *patch.CategoryID
	}
	if patch.ParticipantLimit != nil {
		limit := *patch.ParticipantLimit
		if limit > 0 && limit < event.ConfirmedRequests {
			return apperr.Conflict(apperr.CodeEventLimitBelowCount,
				"participant limit %d is below confirmed requests %d", limit, event.ConfirmedRequests)
		}
		event.ParticipantLimit = limit
	}
	if patch.Title != nil {
		event.Title = *patch.Title
	}
	if patch.Annotation != nil {
		event.Annotation = *patch.Annotation
	}
	if patch.Description != nil {
		event.Description = *patch.Description
	}
	if patch.Location != nil {
		event.Location = *patch.Location
	}
	if patch.Paid != nil {
		event.Paid = *patch.Paid
	}
	if patch.EventDate != nil {
		event.EventDate = *patch.EventDate
	}
	if patch.RequestModeration != nil {
		event.RequestModeration = *patch.RequestModeration
	}

	if patch.StateAction != nil {
		action := *patch.StateAction
		next, err := nextState(a, action, event.State)
		if err != nil {
			return err
		}
		event.State = next
		if action == PublishEvent {
			now := s.now()
			event.PublishedOn = &now
		}
	}

	return q.UpdateEventDetails(ctx, event)
}

// syncIndex обновляет зеркало в поиске. Ошибка индекса не отменяет операцию:
// расхождение подберет перестроение индекса.
func (s *Service) syncIndex(ctx context.Context, event *db.Event) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.SyncEvent(ctx, event); err != nil {
		s.log.Warn("failed to sync event to search index", "event_id", event.ID, "error", err)
	}
}

func recordTransition(patch EventPatch, event *db.Event) {
	if patch.StateAction != nil {
		metrics.RecordEventTransition(string(*patch.StateAction), string(event.State))
	}
}
