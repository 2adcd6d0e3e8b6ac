package db

import (
	"context"
	"fmt"

	"github.com/rx3lixir/ewm-service/internal/apperr"
	"github.com/rx3lixir/ewm-service/pkg/metrics"
)

const (
	selectCommentFields = `SELECT id, event_id, commenter_id, text, rate, status, created FROM comments`

	createCommentQuery = `INSERT INTO comments (event_id, commenter_id, text, rate, status, created)
						  VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	getCommentByIDQuery = selectCommentFields + ` WHERE id = $1`
	commentExistsQuery  = `SELECT EXISTS(SELECT 1 FROM comments WHERE event_id = $1 AND commenter_id = $2)`
	updateCommentQuery  = `UPDATE comments SET text = $1, rate = $2, status = $3 WHERE id = $4`
	deleteCommentQuery  = `DELETE FROM comments WHERE id = $1`

	averageApprovedRateQuery = `SELECT COALESCE(AVG(rate), 0)::float8 FROM comments
								WHERE event_id = $1 AND status = 'APPROVED' AND rate IS NOT NULL`
)

func (s *PostgresStore) CreateComment(parentCtx context.Context, c *Comment) error {
	ctx, cancel := context.WithTimeout(parentCtx, s.timeout)
	defer cancel()

	return metrics.DatabaseInterceptor("insert", "comments", func() error {
		err := s.db.QueryRow(ctx, createCommentQuery, c.EventID, c.CommenterID, c.Text, c.Rate, string(c.Status), c.Created).Scan(&c.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return apperr.Wrap(apperr.Conflict(apperr.CodeCommentDuplicate,
					"user %d has already commented on event %d", c.CommenterID, c.EventID), err)
			}
			return fmt.Errorf("failed to create comment: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) GetCommentByID(parentCtx context.Context, id int64) (*Comment, error) {
	ctx, cancel := context.WithTimeout(parentCtx, s.timeout)
	defer cancel()

	var c *Comment
	err := metrics.DatabaseInterceptor("select", "comments", func() error {
		var err error
		c, err = scanComment(s.db.QueryRow(ctx, getCommentByIDQuery, id))
		if err != nil {
			return notFoundOr(err, "Comment", id)
		}
		return nil
	})
	return c, err
}

func (s *PostgresStore) CommentExists(parentCtx context.Context, eventID, commenterID int64) (bool, error) {
	return s.exists(parentCtx, "comments", commentExistsQuery, eventID, commenterID)
}

// UpdateComment сохраняет текст, оценку и статус комментария
func (s *PostgresStore) UpdateComment(parentCtx context.Context, c *Comment) error {
	ctx, cancel := context.WithTimeout(parentCtx, s.timeout)
	defer cancel()

	return metrics.DatabaseInterceptor("update", "comments", func() error {
		cmdTag, err := s.db.Exec(ctx, updateCommentQuery, c.Text, c.Rate, string(c.Status), c.ID)
		if err != nil {
			return fmt.Errorf("failed to update comment %d: %w", c.ID, err)
		}
		if cmdTag.RowsAffected() == 0 {
			return notFoundOr(errNoRowsAffected, "Comment", c.ID)
		}
		return nil
	})
}

func (s *PostgresStore) DeleteComment(parentCtx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(parentCtx, s.timeout)
	defer cancel()

	return metrics.DatabaseInterceptor("delete", "comments", func() error {
		cmdTag, err := s.db.Exec(ctx, deleteCommentQuery, id)
		if err != nil {
			return fmt.Errorf("failed to delete comment %d: %w", id, err)
		}
		if cmdTag.RowsAffected() == 0 {
			return notFoundOr(errNoRowsAffected, "Comment", id)
		}
		return nil
	})
}

func (s *PostgresStore) ListComments(parentCtx context.Context, filter *CommentFilter) ([]*Comment, error) {
	if filter == nil {
		filter = &CommentFilter{}
	}

	ctx, cancel := context.WithTimeout(parentCtx, s.timeout)
	defer cancel()

	query, args := s.buildCommentQuery(filter)

	comments := []*Comment{}
	err := metrics.DatabaseInterceptor("select", "comments", func() error {
		rows, err := s.db.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to query comments: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			c, err := scanComment(rows)
			if err != nil {
				return fmt.Errorf("failed to scan comment: %w", err)
			}
			comments = append(comments, c)
		}
		if err = rows.Err(); err != nil {
			return fmt.Errorf("error iterating comment rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return comments, nil
}

// AverageApprovedRate считает рейтинг события целиком по набору комментариев
func (s *PostgresStore) AverageApprovedRate(parentCtx context.Context, eventID int64) (float64, error) {
	ctx, cancel := context.WithTimeout(parentCtx, s.timeout)
	defer cancel()

	var avg float64
	err := metrics.DatabaseInterceptor("aggregate", "comments", func() error {
		if err := s.db.QueryRow(ctx, averageApprovedRateQuery, eventID).Scan(&avg); err != nil {
			return fmt.Errorf("failed to compute rating for event %d: %w", eventID, err)
		}
		return nil
	})
	return avg, err
}

func scanComment(scanner pgxScanner) (*Comment, error) {
	c := new(Comment)
	var status string
	var rate *int16
	if err := scanner.Scan(&c.ID, &c.EventID, &c.CommenterID, &c.Text, &rate, &status, &c.Created); err != nil {
		return nil, err
	}
	if rate != nil {
		r := int(*rate)
		c.Rate = &r
	}
	c.Status = CommentStatus(status)
	return c, nil
}
