package db

import (
	"context"
	"fmt"

	"github.com/rx3lixir/ewm-service/internal/apperr"
	"github.com/rx3lixir/ewm-service/pkg/metrics"
)

const (
	selectParticipationFields = `SELECT id, event_id, requester_id, status, created FROM participations`

	createParticipationQuery = `INSERT INTO participations (event_id, requester_id, status, created)
								VALUES ($1, $2, $3, $4) RETURNING id`
	getParticipationByIDQuery      = selectParticipationFields + ` WHERE id = $1`
	participationExistsQuery       = `SELECT EXISTS(SELECT 1 FROM participations WHERE event_id = $1 AND requester_id = $2)`
	hasConfirmedParticipationQuery = `SELECT EXISTS(SELECT 1 FROM participations WHERE event_id = $1 AND requester_id = $2 AND status = 'CONFIRMED')`
	updateParticipationStatusQuery = `UPDATE participations SET status = $1 WHERE id = $2`
	countConfirmedQuery            = `SELECT COUNT(*) FROM participations WHERE event_id = $1 AND status = 'CONFIRMED'`
)

// CreateParticipation сохраняет новую заявку. Повторная заявка на то же событие - Conflict.
func (s *PostgresStore) CreateParticipation(parentCtx context.Context, p *Participation) error {
	ctx, cancel := context.WithTimeout(parentCtx, s.timeout)
	defer cancel()

	return metrics.DatabaseInterceptor("insert", "participations", func() error {
		err := s.db.QueryRow(ctx, createParticipationQuery, p.EventID, p.RequesterID, string(p.Status), p.Created).Scan(&p.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return apperr.Wrap(apperr.Conflict(apperr.CodeParticipationDuplicate,
					"user %d has already requested participation in event %d", p.RequesterID, p.EventID), err)
			}
			return fmt.Errorf("failed to create participation: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) GetParticipationByID(parentCtx context.Context, id int64) (*Participation, error) {
	ctx, cancel := context.WithTimeout(parentCtx, s.timeout)
	defer cancel()

	var p *Participation
	err := metrics.DatabaseInterceptor("select", "participations", func() error {
		var err error
		p, err = scanParticipation(s.db.QueryRow(ctx, getParticipationByIDQuery, id))
		if err != nil {
			return notFoundOr(err, "Request", id)
		}
		return nil
	})
	return p, err
}

func (s *PostgresStore) ParticipationExists(parentCtx context.Context, eventID, requesterID int64) (bool, error) {
	return s.exists(parentCtx, "participations", participationExistsQuery, eventID, requesterID)
}

func (s *PostgresStore) HasConfirmedParticipation(parentCtx context.Context, eventID, userID int64) (bool, error) {
	return s.exists(parentCtx, "participations", hasConfirmedParticipationQuery, eventID, userID)
}

// ListParticipations возвращает заявки по фильтру в порядке создания
func (s *PostgresStore) ListParticipations(parentCtx context.Context, filter *ParticipationFilter) ([]*Participation, error) {
	if filter == nil {
		filter = &ParticipationFilter{}
	}

	ctx, cancel := context.WithTimeout(parentCtx, s.timeout)
	defer cancel()

	query, args := s.buildParticipationQuery(filter)

	participations := []*Participation{}
	err := metrics.DatabaseInterceptor("select", "participations", func() error {
		rows, err := s.db.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to query participations: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			p, err := scanParticipation(rows)
			if err != nil {
				return fmt.Errorf("failed to scan participation: %w", err)
			}
			participations = append(participations, p)
		}
		if err = rows.Err(); err != nil {
			return fmt.Errorf("error iterating participation rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return participations, nil
}

// UpdateParticipationStatuses сохраняет статусы всех переданных заявок
func (s *PostgresStore) UpdateParticipationStatuses(parentCtx context.Context, ps []*Participation) error {
	ctx, cancel := context.WithTimeout(parentCtx, s.timeout)
	defer cancel()

	return metrics.DatabaseInterceptor("update", "participations", func() error {
		for _, p := range ps {
			cmdTag, err := s.db.Exec(ctx, updateParticipationStatusQuery, string(p.Status), p.ID)
			if err != nil {
				return fmt.Errorf("failed to update participation %d: %w", p.ID, err)
			}
			if cmdTag.RowsAffected() == 0 {
				return notFoundOr(errNoRowsAffected, "Request", p.ID)
			}
		}
		return nil
	})
}

// CountConfirmed считает подтвержденные заявки события по самим строкам
func (s *PostgresStore) CountConfirmed(parentCtx context.Context, eventID int64) (int, error) {
	ctx, cancel := context.WithTimeout(parentCtx, s.timeout)
	defer cancel()

	var count int
	err := metrics.DatabaseInterceptor("count", "participations", func() error {
		if err := s.db.QueryRow(ctx, countConfirmedQuery, eventID).Scan(&count); err != nil {
			return fmt.Errorf("failed to count confirmed participations for event %d: %w", eventID, err)
		}
		return nil
	})
	return count, err
}

func (s *PostgresStore) exists(parentCtx context.Context, table, query string, args ...any) (bool, error) {
	ctx, cancel := context.WithTimeout(parentCtx, s.timeout)
	defer cancel()

	var exists bool
	err := metrics.DatabaseInterceptor("exists", table, func() error {
		if err := s.db.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check existence in %s: %w", table, err)
		}
		return nil
	})
	return exists, err
}

func scanParticipation(scanner pgxScanner) (*Participation, error) {
	p := new(Participation)
	var status string
	if err := scanner.Scan(&p.ID, &p.EventID, &p.RequesterID, &status, &p.Created); err != nil {
		return nil, err
	}
	p.Status = ParticipationStatus(status)
	return p, nil
}
