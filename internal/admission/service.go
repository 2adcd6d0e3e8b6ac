// Package admission принимает заявки на участие в событиях с учетом лимита
// участников и поддерживает счетчик confirmedRequests события.
//
// Счетчик меняется только здесь и только внутри транзакции, которая держит
// блокировку строки события, поэтому проверка лимита и его изменение атомарны.
package admission

import (
	"context"
	"time"

	"github.com/rx3lixir/ewm-service/internal/apperr"
	"github.com/rx3lixir/ewm-service/internal/db"
	"github.com/rx3lixir/ewm-service/pkg/logger"
	"github.com/rx3lixir/ewm-service/pkg/metrics"
)

// EventIndexer зеркалит событие в поисковый индекс
type EventIndexer interface {
	SyncEvent(ctx context.Context, event *db.Event) error
}

// BulkStatusUpdate запрос владельца события на смену статуса заявок.
// Пустой IDs означает все заявки события.
type BulkStatusUpdate struct {
	IDs    []int64
	Status db.ParticipationStatus
}

// BulkResult итог пакетного обновления, разбитый по финальным статусам
type BulkResult struct {
	Confirmed []*db.Participation
	Rejected  []*db.Participation
}

type Service struct {
	store   db.Store
	log     logger.Logger
	now     func() time.Time
	indexer EventIndexer
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIndexer(idx EventIndexer) Option {
	return func(s *Service) { s.indexer = idx }
}

func NewService(store db.Store, log logger.Logger, opts ...Option) *Service {
	s := &Service{
		store: store,
		log:   log.With("component", "admission"),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request создает заявку. Проверки идут в порядке: владелец события, дубликат,
// публикация, лимит. Без модерации или без лимита заявка сразу подтверждается.
func (s *Service) Request(ctx context.Context, requesterID, eventID int64) (*db.Participation, error) {
	s.log.Info("starting Request", "method", "Request", "requester_id", requesterID, "event_id", eventID)

	if _, err := s.store.GetUserByID(ctx, requesterID); err != nil {
		return nil, err
	}

	var (
		p     *db.Participation
		event *db.Event
	)
	err := s.store.WithTx(ctx, func(q db.Queries) error {
		var err error
		event, err = q.LockEventByID(ctx, eventID)
		if err != nil {
			return err
		}

		if event.InitiatorID == requesterID {
			return apperr.Conflict(apperr.CodeParticipationOwnsEvent,
				"user %d owns event %d and cannot request participation", requesterID, eventID)
		}

		exists, err := q.ParticipationExists(ctx, eventID, requesterID)
		if err != nil {
			return err
		}
		if exists {
			return apperr.Conflict(apperr.CodeParticipationDuplicate,
				"request from user %d to event %d already exists", requesterID, eventID)
		}

		if event.State != db.EventPublished {
			return apperr.Conflict(apperr.CodeParticipationNotPublished, "event %d is not published", eventID)
		}

		if event.LimitReached() {
			return apperr.Conflict(apperr.CodeParticipationLimit,
				"event %d has reached participant limit %d", eventID, event.ParticipantLimit)
		}

		p = &db.Participation{
			EventID:     eventID,
			RequesterID: requesterID,
			Status:      db.ParticipationPending,
			Created:     s.now(),
		}
		if event.ParticipantLimit == 0 || !event.RequestModeration {
			p.Status = db.ParticipationConfirmed
			event.ConfirmedRequests++
			if err := q.SetConfirmedRequests(ctx, eventID, event.ConfirmedRequests); err != nil {
				return err
			}
		}

		return q.CreateParticipation(ctx, p)
	})
	if err != nil {
		s.log.Warn("participation request rejected", "requester_id", requesterID, "event_id", eventID, "error", err)
		return nil, err
	}

	metrics.RecordParticipationDecision("request", string(p.Status))
	if p.Status == db.ParticipationConfirmed {
		s.syncIndex(ctx, event)
	}
	s.log.Info("participation requested", "request_id", p.ID, "status", p.Status)
	return p, nil
}

// Cancel отменяет заявку ее автором. Подтвержденная заявка освобождает место,
// отклоненная и уже отмененная возвращаются без изменений.
func (s *Service) Cancel(ctx context.Context, requesterID, participationID int64) (*db.Participation, error) {
	s.log.Info("starting Cancel", "method", "Cancel", "requester_id", requesterID, "request_id", participationID)

	if _, err := s.store.GetUserByID(ctx, requesterID); err != nil {
		return nil, err
	}

	var (
		p       *db.Participation
		event   *db.Event
		changed bool
	)
	err := s.store.WithTx(ctx, func(q db.Queries) error {
		var err error
		p, err = q.GetParticipationByID(ctx, participationID)
		if err != nil {
			return err
		}
		if p.RequesterID != requesterID {
			return apperr.NotFound("Request with id=%d of user %d was not found", participationID, requesterID)
		}

		// Сначала блокируем событие, затем перечитываем заявку под блокировкой
		event, err = q.LockEventByID(ctx, p.EventID)
		if err != nil {
			return err
		}
		p, err = q.GetParticipationByID(ctx, participationID)
		if err != nil {
			return err
		}

		out, err := transit(opCancel, p.Status)
		if err != nil {
			return err
		}
		if out.noop {
			return nil
		}

		if out.counterDelta != 0 {
			event.ConfirmedRequests += out.counterDelta
			if err := q.SetConfirmedRequests(ctx, event.ID, event.ConfirmedRequests); err != nil {
				return err
			}
		}
		p.Status = out.to
		changed = true
		return q.UpdateParticipationStatuses(ctx, []*db.Participation{p})
	})
	if err != nil {
		s.log.Warn("cancel rejected", "request_id", participationID, "error", err)
		return nil, err
	}

	if changed {
		metrics.RecordParticipationDecision("cancel", string(p.Status))
		s.syncIndex(ctx, event)
	}
	s.log.Info("participation canceled", "request_id", p.ID, "status", p.Status, "changed", changed)
	return p, nil
}

// BulkUpdateStatus подтверждает или отклоняет заявки на событие владельца.
//
// Все выбранные заявки должны быть в PENDING, иначе ничего не применяется.
// Заявки обрабатываются строго по порядку: как только счетчик достигает лимита,
// все оставшиеся заявки пакета отклоняются. Это штатный результат, а не ошибка.
func (s *Service) BulkUpdateStatus(ctx context.Context, ownerID, eventID int64, update BulkStatusUpdate) (*BulkResult, error) {
	s.log.Info("starting BulkUpdateStatus", "method", "BulkUpdateStatus",
		"owner_id", ownerID, "event_id", eventID, "status", update.Status, "ids", len(update.IDs))

	if update.Status != db.ParticipationConfirmed && update.Status != db.ParticipationRejected {
		return nil, apperr.Validation(apperr.CodeParticipationBadStatus,
			"status must be CONFIRMED or REJECTED, got: %q", update.Status)
	}
	if _, err := s.store.GetUserByID(ctx, ownerID); err != nil {
		return nil, err
	}

	var (
		result         *BulkResult
		event          *db.Event
		counterChanged bool
		cascaded       int
	)
	err := s.store.WithTx(ctx, func(q db.Queries) error {
		var err error
		event, err = q.LockEventByID(ctx, eventID)
		if err != nil {
			return err
		}
		if event.InitiatorID != ownerID {
			return apperr.Conflict(apperr.CodeEventNotOwner, "event %d does not belong to user %d", eventID, ownerID)
		}

		if update.Status == db.ParticipationConfirmed && event.LimitReached() {
			return apperr.Conflict(apperr.CodeParticipationLimit,
				"event %d has reached participant limit %d", eventID, event.ParticipantLimit)
		}

		selection, err := s.selectRequests(ctx, q, eventID, update.IDs)
		if err != nil {
			return err
		}
		for _, p := range selection {
			if p.Status != db.ParticipationPending {
				return apperr.Conflict(apperr.CodeParticipationNotPending,
					"not all requests are pending: request %d is %s", p.ID, p.Status)
			}
		}

		before := event.ConfirmedRequests
		cascaded = applyCascade(event, selection, update.Status)
		counterChanged = event.ConfirmedRequests != before

		if counterChanged {
			if err := q.SetConfirmedRequests(ctx, event.ID, event.ConfirmedRequests); err != nil {
				return err
			}
		}
		if err := q.UpdateParticipationStatuses(ctx, selection); err != nil {
			return err
		}

		result = partition(selection)
		return nil
	})
	if err != nil {
		s.log.Warn("bulk status update rejected", "event_id", eventID, "error", err)
		return nil, err
	}

	for _, p := range result.Confirmed {
		metrics.RecordParticipationDecision("bulk", string(p.Status))
	}
	for _, p := range result.Rejected {
		metrics.RecordParticipationDecision("bulk", string(p.Status))
	}
	metrics.RecordCascadeRejections(cascaded)
	if counterChanged {
		s.syncIndex(ctx, event)
	}

	s.log.Info("bulk status update applied", "event_id", eventID,
		"confirmed", len(result.Confirmed), "rejected", len(result.Rejected), "cascade_rejected", cascaded)
	return result, nil
}

// applyCascade проходит заявки по порядку и применяет текущий целевой статус.
// Когда при подтверждении счетчик достигает лимита, цель для оставшихся
// заявок становится REJECTED. Возвращает количество заявок, отклоненных каскадом.
func applyCascade(event *db.Event, selection []*db.Participation, status db.ParticipationStatus) int {
	target := status
	cascaded := 0

	for _, p := range selection {
		// Все заявки уже проверены на PENDING, ошибки здесь быть не может
		out, _ := transit(operationFor(target), p.Status)
		p.Status = out.to
		event.ConfirmedRequests += out.counterDelta

		if target != status {
			cascaded++
		}
		if target == db.ParticipationConfirmed && event.LimitReached() {
			target = db.ParticipationRejected
		}
	}

	return cascaded
}

// selectRequests возвращает заявки события в порядке выборки: порядок ids,
// либо порядок создания, если ids пуст
func (s *Service) selectRequests(ctx context.Context, q db.Queries, eventID int64, ids []int64) ([]*db.Participation, error) {
	if len(ids) == 0 {
		return q.ListParticipations(ctx, &db.ParticipationFilter{EventID: &eventID})
	}

	unique := make([]int64, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	found, err := q.ListParticipations(ctx, &db.ParticipationFilter{IDs: unique, EventID: &eventID})
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*db.Participation, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}

	selection := make([]*db.Participation, 0, len(unique))
	for _, id := range unique {
		p, ok := byID[id]
		if !ok {
			return nil, apperr.NotFound("Request with id=%d for event %d was not found", id, eventID)
		}
		selection = append(selection, p)
	}
	return selection, nil
}

func partition(selection []*db.Participation) *BulkResult {
	result := &BulkResult{
		Confirmed: []*db.Participation{},
		Rejected:  []*db.Participation{},
	}
	for _, p := range selection {
		switch p.Status {
		case db.ParticipationConfirmed:
			result.Confirmed = append(result.Confirmed, p)
		case db.ParticipationRejected:
			result.Rejected = append(result.Rejected, p)
		}
	}
	return result
}

// ListByRequester возвращает заявки пользователя
func (s *Service) ListByRequester(ctx context.Context, requesterID int64) ([]*db.Participation, error) {
	if _, err := s.store.GetUserByID(ctx, requesterID); err != nil {
		return nil, err
	}
	return s.store.ListParticipations(ctx, &db.ParticipationFilter{RequesterID: &requesterID})
}

// ListForEvent возвращает заявки на событие его владельцу
func (s *Service) ListForEvent(ctx context.Context, ownerID, eventID int64) ([]*db.Participation, error) {
	if _, err := s.store.GetUserByID(ctx, ownerID); err != nil {
		return nil, err
	}
	event, err := s.store.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.InitiatorID != ownerID {
		return nil, apperr.Conflict(apperr.CodeEventNotOwner, "event %d does not belong to user %d", eventID, ownerID)
	}
	return s.store.ListParticipations(ctx, &db.ParticipationFilter{EventID: &eventID})
}

func (s *Service) syncIndex(ctx context.Context, event *db.Event) {
	if s.indexer == nil || event == nil {
		return
	}
	if err := s.indexer.SyncEvent(ctx, event); err != nil {
		s.log.Warn("failed to sync event to search index", "event_id", event.ID, "error", err)
	}
}
