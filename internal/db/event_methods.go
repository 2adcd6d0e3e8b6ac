package db

import (
	"context"
	"fmt"

	"github.com/rx3lixir/ewm-service/pkg/metrics"
)

const (
	selectEventFields = `SELECT id, initiator_id, category_id, title, annotation, description, lat, lon, paid,
		event_date, participant_limit, request_moderation, confirmed_requests, rating, state, created_on, published_on
		FROM events`

	createEventQuery = `INSERT INTO events (initiator_id, category_id, title, annotation, description, lat, lon, paid,
						event_date, participant_limit, request_moderation, confirmed_requests, rating, state, created_on)
						VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 0, 0, $12, $13)
						RETURNING id`

	// Счетчик и рейтинг здесь не обновляются: у них свои владельцы
	updateEventDetailsQuery = `UPDATE events
						SET category_id = $1, title = $2, annotation = $3, description = $4, lat = $5, lon = $6,
						    paid = $7, event_date = $8, participant_limit = $9, request_moderation = $10,
						    state = $11, published_on = $12
						WHERE id = $13`

	getEventByIDQuery  = selectEventFields + ` WHERE id = $1`
	lockEventByIDQuery = selectEventFields + ` WHERE id = $1 FOR UPDATE`

	setConfirmedRequestsQuery = `UPDATE events SET confirmed_requests = $1 WHERE id = $2`
	setRatingQuery            = `UPDATE events SET rating = $1 WHERE id = $2`
)

// CreateEvent создает новое событие. ID заполняется из базы.
func (s *PostgresStore) CreateEvent(parentCtx context.Context, event *Event) error {
	ctx, cancel := context.WithTimeout(parentCtx, s.timeout)
	defer cancel()

	return metrics.DatabaseInterceptor("insert", "events", func() error {
		err := s.db.QueryRow(
			ctx,
			createEventQuery,
			event.InitiatorID,
			event.CategoryID,
			event.Title,
			event.Annotation,
			event.Description,
			event.Location.Lat,
			event.Location.Lon,
			event.Paid,
			event.EventDate,
			event.ParticipantLimit,
			event.RequestModeration,
			string(event.State),
			event.CreatedOn,
		).Scan(&event.ID)
		if err != nil {
			return fmt.Errorf("failed to create event: %w", err)
		}
		return nil
	})
}

// GetEventByID извлекает событие по ID.
func (s *PostgresStore) GetEventByID(parentCtx context.Context, id int64) (*Event, error) {
	return s.getEvent(parentCtx, getEventByIDQuery, "select", id)
}

// LockEventByID извлекает событие с блокировкой строки (SELECT ... FOR UPDATE).
// Имеет смысл только внутри WithTx.
func (s *PostgresStore) LockEventByID(parentCtx context.Context, id int64) (*Event, error) {
	return s.getEvent(parentCtx, lockEventByIDQuery, "lock", id)
}

func (s *PostgresStore) getEvent(parentCtx context.Context, query, op string, id int64) (*Event, error) {
	ctx, cancel := context.WithTimeout(parentCtx, s.timeout)
	defer cancel()

	var event *Event
	err := metrics.DatabaseInterceptor(op, "events", func() error {
		var err error
		event, err = scanEvent(s.db.QueryRow(ctx, query, id))
		if err != nil {
			return notFoundOr(err, "Event", id)
		}
		return nil
	})
	return event, err
}

// UpdateEventDetails обновляет поля, которыми владеет жизненный цикл события.
func (s *PostgresStore) UpdateEventDetails(parentCtx context.Context, event *Event) error {
	ctx, cancel := context.WithTimeout(parentCtx, s.timeout)
	defer cancel()

	return metrics.DatabaseInterceptor("update", "events", func() error {
		cmdTag, err := s.db.Exec(
			ctx,
			updateEventDetailsQuery,
			event.CategoryID,
			event.Title,
			event.Annotation,
			event.Description,
			event.Location.Lat,
			event.Location.Lon,
			event.Paid,
			event.EventDate,
			event.ParticipantLimit,
			event.RequestModeration,
			string(event.State),
			event.PublishedOn,
			event.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update event %d: %w", event.ID, err)
		}
		if cmdTag.RowsAffected() == 0 {
			return notFoundOr(errNoRowsAffected, "Event", event.ID)
		}
		return nil
	})
}

// SetConfirmedRequests записывает счетчик подтвержденных заявок
func (s *PostgresStore) SetConfirmedRequests(parentCtx context.Context, eventID int64, confirmed int) error {
	ctx, cancel := context.WithTimeout(parentCtx, s.timeout)
	defer cancel()

	return metrics.DatabaseInterceptor("update_counter", "events", func() error {
		cmdTag, err := s.db.Exec(ctx, setConfirmedRequestsQuery, confirmed, eventID)
		if err != nil {
			return fmt.Errorf("failed to set confirmed requests for event %d: %w", eventID, err)
		}
		if cmdTag.RowsAffected() == 0 {
			return notFoundOr(errNoRowsAffected, "Event", eventID)
		}
		return nil
	})
}

// SetRating записывает рейтинг события
func (s *PostgresStore) SetRating(parentCtx context.Context, eventID int64, rating float64) error {
	ctx, cancel := context.WithTimeout(parentCtx, s.timeout)
	defer cancel()

	return metrics.DatabaseInterceptor("update_rating", "events", func() error {
		cmdTag, err := s.db.Exec(ctx, setRatingQuery, rating, eventID)
		if err != nil {
			return fmt.Errorf("failed to set rating for event %d: %w", eventID, err)
		}
		if cmdTag.RowsAffected() == 0 {
			return notFoundOr(errNoRowsAffected, "Event", eventID)
		}
		return nil
	})
}

// ListEvents возвращает события по фильтру
func (s *PostgresStore) ListEvents(parentCtx context.Context, filter *EventFilter) ([]*Event, error) {
	if filter == nil {
		filter = NewEventFilter()
	}
	if err := ValidateEventFilter(filter); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(parentCtx, s.timeout)
	defer cancel()

	query, args := s.buildFilteredQuery(filter)

	events := []*Event{}
	err := metrics.DatabaseInterceptor("select", "events", func() error {
		rows, err := s.db.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to query events: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			event, err := scanEvent(rows)
			if err != nil {
				return fmt.Errorf("failed to scan event: %w", err)
			}
			events = append(events, event)
		}
		if err = rows.Err(); err != nil {
			return fmt.Errorf("error iterating event rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return events, nil
}

// CountEvents возвращает количество событий по фильтру (без пагинации)
func (s *PostgresStore) CountEvents(parentCtx context.Context, filter *EventFilter) (int64, error) {
	if filter == nil {
		filter = NewEventFilter()
	}

	ctx, cancel := context.WithTimeout(parentCtx, s.timeout)
	defer cancel()

	query, args := s.buildCountQuery(filter)

	var count int64
	err := metrics.DatabaseInterceptor("count", "events", func() error {
		if err := s.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
			return fmt.Errorf("failed to count events: %w", err)
		}
		return nil
	})
	return count, err
}

// scanEvent сканирует одну строку в структуру Event.
// Работает как с pgx.Rows, так и с pgx.Row.
func scanEvent(scanner pgxScanner) (*Event, error) {
	event := new(Event)
	var state string
	err := scanner.Scan(
		&event.ID,
		&event.InitiatorID,
		&event.CategoryID,
		&event.Title,
		&event.Annotation,
		&event.Description,
		&event.Location.Lat,
		&event.Location.Lon,
		&event.Paid,
		&event.EventDate,
		&event.ParticipantLimit,
		&event.RequestModeration,
		&event.ConfirmedRequests,
		&event.Rating,
		&state,
		&event.CreatedOn,
		&event.PublishedOn,
	)
	if err != nil {
		return nil, err
	}
	event.State = EventState(state)
	return event, nil
}
