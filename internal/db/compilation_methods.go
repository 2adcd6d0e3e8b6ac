package db

import (
	"context"
	"fmt"

	"github.com/rx3lixir/ewm-service/internal/apperr"
	"github.com/rx3lixir/ewm-service/pkg/metrics"
)

const (
	compilationEventsQuery = `SELECT compilation_id, event_id FROM compiled_events
		WHERE compilation_id = ANY($1) ORDER BY id`

	// Порядок событий в подборке задается порядком вставки
	insertCompiledEventsQuery = `INSERT INTO compiled_events (compilation_id, event_id)
		SELECT $1, e.id FROM unnest($2::bigint[]) WITH ORDINALITY AS e(id, ord) ORDER BY e.ord`
)

func duplicateCompilation(title string, err error) error {
	return apperr.Wrap(apperr.Conflict(apperr.CodeCompilationDuplicateTitle, "compilation title %q is already used", title), err)
}

func (s *PostgresStore) CreateCompilation(parentCtx context.Context, c *Compilation) error {
	ctx, cancel := context.WithTimeout(parentCtx, s.timeout)
	defer cancel()

	return metrics.DatabaseInterceptor("insert", "compilations", func() error {
		err := s.db.QueryRow(ctx, "INSERT INTO compilations (title, pinned) VALUES ($1, $2) RETURNING id", c.Title, c.Pinned).Scan(&c.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return duplicateCompilation(c.Title, err)
			}
			return fmt.Errorf("failed to create compilation: %w", err)
		}
		return nil
	})
}

// GetCompilationByID возвращает подборку вместе с ID ее событий
func (s *PostgresStore) GetCompilationByID(parentCtx context.Context, id int64) (*Compilation, error) {
	ctx, cancel := context.WithTimeout(parentCtx, s.timeout)
	defer cancel()

	c := new(Compilation)
	err := metrics.DatabaseInterceptor("select", "compilations", func() error {
		err := s.db.QueryRow(ctx, "SELECT id, title, pinned FROM compilations WHERE id = $1", id).Scan(&c.ID, &c.Title, &c.Pinned)
		if err != nil {
			return notFoundOr(err, "Compilation", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.attachCompiledEvents(ctx, []*Compilation{c}); err != nil {
		return nil, err
	}
	return c, nil
}

// ListCompilations возвращает подборки в порядке id; pinned == nil означает все
func (s *PostgresStore) ListCompilations(parentCtx context.Context, pinned *bool, page Page) ([]*Compilation, error) {
	ctx, cancel := context.WithTimeout(parentCtx, s.timeout)
	defer cancel()

	page = page.Normalize()
	b := &whereBuilder{}
	if pinned != nil {
		b.add("pinned = %s", *pinned)
	}
	query := "SELECT id, title, pinned FROM compilations" + b.where() +
		fmt.Sprintf(" ORDER BY id LIMIT %s OFFSET %s", b.arg(page.Limit), b.arg(page.Offset))

	compilations := []*Compilation{}
	err := metrics.DatabaseInterceptor("select", "compilations", func() error {
		rows, err := s.db.Query(ctx, query, b.args...)
		if err != nil {
			return fmt.Errorf("failed to query compilations: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			c := new(Compilation)
			if err := rows.Scan(&c.ID, &c.Title, &c.Pinned); err != nil {
				return fmt.Errorf("failed to scan compilation: %w", err)
			}
			compilations = append(compilations, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	if err := s.attachCompiledEvents(ctx, compilations); err != nil {
		return nil, err
	}
	return compilations, nil
}

// attachCompiledEvents одним запросом заполняет EventIDs у всех подборок
func (s *PostgresStore) attachCompiledEvents(ctx context.Context, compilations []*Compilation) error {
	if len(compilations) == 0 {
		return nil
	}

	byID := make(map[int64]*Compilation, len(compilations))
	ids := make([]int64, 0, len(compilations))
	for _, c := range compilations {
		c.EventIDs = []int64{}
		byID[c.ID] = c
		ids = append(ids, c.ID)
	}

	return metrics.DatabaseInterceptor("select", "compiled_events", func() error {
		rows, err := s.db.Query(ctx, compilationEventsQuery, ids)
		if err != nil {
			return fmt.Errorf("failed to query compiled events: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var compilationID, eventID int64
			if err := rows.Scan(&compilationID, &eventID); err != nil {
				return fmt.Errorf("failed to scan compiled event: %w", err)
			}
			c := byID[compilationID]
			c.EventIDs = append(c.EventIDs, eventID)
		}
		return rows.Err()
	})
}

// UpdateCompilation пишет заголовок и признак закрепления, состав событий не трогает
func (s *PostgresStore) UpdateCompilation(parentCtx context.Context, c *Compilation) error {
	ctx, cancel := context.WithTimeout(parentCtx, s.timeout)
	defer cancel()

	return metrics.DatabaseInterceptor("update", "compilations", func() error {
		cmdTag, err := s.db.Exec(ctx, "UPDATE compilations SET title = $1, pinned = $2 WHERE id = $3", c.Title, c.Pinned, c.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return duplicateCompilation(c.Title, err)
			}
			return fmt.Errorf("failed to update compilation %d: %w", c.ID, err)
		}
		if cmdTag.RowsAffected() == 0 {
			return notFoundOr(errNoRowsAffected, "Compilation", c.ID)
		}
		return nil
	})
}

// SetCompilationEvents заменяет состав подборки. Вызывать внутри WithTx.
func (s *PostgresStore) SetCompilationEvents(parentCtx context.Context, compilationID int64, eventIDs []int64) error {
	ctx, cancel := context.WithTimeout(parentCtx, s.timeout)
	defer cancel()

	return metrics.DatabaseInterceptor("replace", "compiled_events", func() error {
		if _, err := s.db.Exec(ctx, "DELETE FROM compiled_events WHERE compilation_id = $1", compilationID); err != nil {
			return fmt.Errorf("failed to clear compilation %d: %w", compilationID, err)
		}
		if len(eventIDs) == 0 {
			return nil
		}
		if _, err := s.db.Exec(ctx, insertCompiledEventsQuery, compilationID, eventIDs); err != nil {
			return fmt.Errorf("failed to fill compilation %d: %w", compilationID, err)
		}
		return nil
	})
}

// DeleteCompilation удаляет подборку, связи с событиями удаляются каскадом
func (s *PostgresStore) DeleteCompilation(parentCtx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(parentCtx, s.timeout)
	defer cancel()

	return metrics.DatabaseInterceptor("delete", "compilations", func() error {
		cmdTag, err := s.db.Exec(ctx, "DELETE FROM compilations WHERE id = $1", id)
		if err != nil {
			return fmt.Errorf("failed to delete compilation %d: %w", id, err)
		}
		if cmdTag.RowsAffected() == 0 {
			return notFoundOr(errNoRowsAffected, "Compilation", id)
		}
		return nil
	})
}
