// Package moderation ведет комментарии к событиям и рейтинг события.
//
// Рейтинг события всегда пересчитывается целиком как среднее оценок
// одобренных комментариев, под блокировкой строки события.
package moderation

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
		log:   log.With("component", "moderation"),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add создает комментарий в статусе PENDING. Оценку может поставить только
// подтвержденный участник события.
func (s *Service) Add(ctx context.Context, commenterID, eventID int64, in NewComment) (*db.Comment, error) {
	s.log.Info("starting Add", "method", "Add", "commenter_id", commenterID, "event_id", eventID)

	if err := checkText(in.Text); err != nil {
		return nil, err
	}
	if err := checkRate(in.Rate); err != nil {
		return nil, err
	}
	if _, err := s.store.GetUserByID(ctx, commenterID); err != nil {
		return nil, err
	}

	c := &db.Comment{
		EventID:     eventID,
		CommenterID: commenterID,
		Text:        in.Text,
		Rate:        in.Rate,
		Status:      db.CommentPending,
		Created:     s.now(),
	}
	err := s.store.WithTx(ctx, func(q db.Queries) error {
		// проверки и вставка идут под блокировкой события
		event, err := q.LockEventByID(ctx, eventID)
		if err != nil {
			return err
		}
		if event.State != db.EventPublished {
			return apperr.Conflict(apperr.CodeCommentNotPublished, "event %d is not published", eventID)
		}

		exists, err := q.CommentExists(ctx, eventID, commenterID)
		if err != nil {
			return err
		}
		if exists {
			return apperr.Conflict(apperr.CodeCommentDuplicate,
				"user %d has already commented on event %d", commenterID, eventID)
		}

		if in.Rate != nil {
			if err := s.checkCanRate(ctx, q, eventID, commenterID); err != nil {
				return err
			}
		}
		return q.CreateComment(ctx, c)
	})
	if err != nil {
		s.log.Warn("comment rejected", "event_id", eventID, "commenter_id", commenterID, "error", err)
		return nil, err
	}

	metrics.RecordCommentModeration("add", string(c.Status))
	s.log.Info("comment added", "comment_id", c.ID, "rated", c.Rate != nil)
	return c, nil
}

// Update меняет текст и/или оценку. Любая правка возвращает комментарий на модерацию.
func (s *Service) Update(ctx context.Context, commenterID, commentID int64, patch CommentPatch) (*db.Comment, error) {
	s.log.Info("starting Update", "method", "Update", "commenter_id", commenterID, "comment_id", commentID)

	if patch.Text != nil {
		if err := checkText(*patch.Text); err != nil {
			return nil, err
		}
	}
	if err := checkRate(patch.Rate); err != nil {
		return nil, err
	}
	if _, err := s.store.GetUserByID(ctx, commenterID); err != nil {
		return nil, err
	}

	var (
		c     *db.Comment
		event *db.Event
	)
	err := s.store.WithTx(ctx, func(q db.Queries) error {
		var err error
		if c, event, err = lockComment(ctx, q, commentID); err != nil {
			return err
		}
		if c.CommenterID != commenterID {
			return apperr.Conflict(apperr.CodeCommentNotOwner,
				"comment %d does not belong to user %d", commentID, commenterID)
		}

		if patch.Rate != nil && !sameRate(patch.Rate, c.Rate) {
			if err := s.checkCanRate(ctx, q, c.EventID, commenterID); err != nil {
				return err
			}
		}

		next, err := transit(opEdit, c.Status)
		if err != nil {
			return err
		}
		wasCounted := c.Counted()

		if patch.Text != nil {
			c.Text = *patch.Text
		}
		if patch.Rate != nil {
			c.Rate = patch.Rate
		}
		c.Status = next
		if err := q.UpdateComment(ctx, c); err != nil {
			return err
		}

		if !wasCounted {
			event = nil
			return nil
		}
		return recomputeRating(ctx, q, event)
	})
	if err != nil {
		s.log.Warn("comment update rejected", "comment_id", commentID, "error", err)
		return nil, err
	}

	metrics.RecordCommentModeration("update", string(c.Status))
	s.afterRecompute(ctx, event)
	s.log.Info("comment updated", "comment_id", c.ID, "status", c.Status)
	return c, nil
}

// Moderate одобряет или отклоняет комментарий в статусе PENDING
func (s *Service) Moderate(ctx context.Context, commentID int64, target db.CommentStatus) (*db.Comment, error) {
	s.log.Info("starting Moderate", "method", "Moderate", "comment_id", commentID, "status", target)

	op, err := moderationOp(target)
	if err != nil {
		return nil, err
	}

	var (
		c     *db.Comment
		event *db.Event
	)
	err = s.store.WithTx(ctx, func(q db.Queries) error {
		var err error
		if c, event, err = lockComment(ctx, q, commentID); err != nil {
			return err
		}

		next, err := transit(op, c.Status)
		if err != nil {
			return err
		}
		c.Status = next
		if err := q.UpdateComment(ctx, c); err != nil {
			return err
		}

		if !c.Counted() {
			event = nil
			return nil
		}
		return recomputeRating(ctx, q, event)
	})
	if err != nil {
		s.log.Warn("moderation rejected", "comment_id", commentID, "error", err)
		return nil, err
	}

	metrics.RecordCommentModeration(string(op), string(c.Status))
	s.afterRecompute(ctx, event)
	s.log.Info("comment moderated", "comment_id", c.ID, "status", c.Status)
	return c, nil
}

// Delete удаляет комментарий автором. Разрешено только пока комментарий на модерации.
func (s *Service) Delete(ctx context.Context, commenterID, commentID int64) error {
	s.log.Info("starting Delete", "method", "Delete", "commenter_id", commenterID, "comment_id", commentID)

	if _, err := s.store.GetUserByID(ctx, commenterID); err != nil {
		return err
	}

	err := s.store.WithTx(ctx, func(q db.Queries) error {
		c, err := q.GetCommentByID(ctx, commentID)
		if err != nil {
			return err
		}
		if c.CommenterID != commenterID {
			return apperr.Conflict(apperr.CodeCommentNotOwner,
				"comment %d does not belong to user %d", commentID, commenterID)
		}
		if _, err := transit(opDelete, c.Status); err != nil {
			return err
		}
		return q.DeleteComment(ctx, commentID)
	})
	if err != nil {
		s.log.Warn("comment delete rejected", "comment_id", commentID, "error", err)
		return err
	}

	metrics.RecordCommentModeration("delete", string(db.CommentPending))
	s.log.Info("comment deleted", "comment_id", commentID)
	return nil
}

// DeleteByAdmin удаляет комментарий в любом статусе
func (s *Service) DeleteByAdmin(ctx context.Context, commentID int64) error {
	s.log.Info("starting DeleteByAdmin", "method", "DeleteByAdmin", "comment_id", commentID)

	var (
		status db.CommentStatus
		event  *db.Event
	)
	err := s.store.WithTx(ctx, func(q db.Queries) error {
		c, ev, err := lockComment(ctx, q, commentID)
		if err != nil {
			return err
		}
		status = c.Status
		if err := q.DeleteComment(ctx, commentID); err != nil {
			return err
		}
		if !c.Counted() {
			return nil
		}
		event = ev
		return recomputeRating(ctx, q, event)
	})
	if err != nil {
		s.log.Warn("admin comment delete rejected", "comment_id", commentID, "error", err)
		return err
	}

	metrics.RecordCommentModeration("admin_delete", string(status))
	s.afterRecompute(ctx, event)
	s.log.Info("comment deleted by admin", "comment_id", commentID, "status", status)
	return nil
}

// Get возвращает комментарий по ID
func (s *Service) Get(ctx context.Context, commentID int64) (*db.Comment, error) {
	return s.store.GetCommentByID(ctx, commentID)
}

// ListByEvent возвращает комментарии события в порядке создания
func (s *Service) ListByEvent(ctx context.Context, eventID int64, filter ListFilter) ([]*db.Comment, error) {
	if _, err := s.store.GetEventByID(ctx, eventID); err != nil {
		return nil, err
	}
	f := filter.toDB()
	f.EventID = &eventID
	return s.store.ListComments(ctx, f)
}

// ListByUser возвращает комментарии пользователя в порядке создания
func (s *Service) ListByUser(ctx context.Context, userID int64, filter ListFilter) ([]*db.Comment, error) {
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}
	f := filter.toDB()
	f.CommenterID = &userID
	return s.store.ListComments(ctx, f)
}

func (s *Service) checkCanRate(ctx context.Context, q db.Queries, eventID, userID int64) error {
	ok, err := q.HasConfirmedParticipation(ctx, eventID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Conflict(apperr.CodeCommentRateForbidden,
			"user %d needs a confirmed participation in event %d to rate it", userID, eventID)
	}
	return nil
}

// afterRecompute вызывается после коммита, если рейтинг события пересчитывался
func (s *Service) afterRecompute(ctx context.Context, event *db.Event) {
	if event == nil {
		return
	}
	metrics.RecordRatingRecompute()
	s.log.Info("event rating recomputed", "event_id", event.ID, "rating", event.Rating)
	if s.indexer == nil {
		return
	}
	if err := s.indexer.SyncEvent(ctx, event); err != nil {
		s.log.Warn("failed to sync event to search index", "event_id", event.ID, "error", err)
	}
}

// lockComment блокирует событие комментария и перечитывает комментарий под блокировкой
func lockComment(ctx context.Context, q db.Queries, commentID int64) (*db.Comment, *db.Event, error) {
	c, err := q.GetCommentByID(ctx, commentID)
	if err != nil {
		return nil, nil, err
	}
	event, err := q.LockEventByID(ctx, c.EventID)
	if err != nil {
		return nil, nil, err
	}
	c, err = q.GetCommentByID(ctx, commentID)
	if err != nil {
		return nil, nil, err
	}
	return c, event, nil
}

// recomputeRating пересчитывает рейтинг с нуля по одобренным оценкам
func recomputeRating(ctx context.Context, q db.Queries, event *db.Event) error {
	rating, err := q.AverageApprovedRate(ctx, event.ID)
	if err != nil {
		return err
	}
	event.Rating = rating
	return q.SetRating(ctx, event.ID, rating)
}
