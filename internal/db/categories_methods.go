package db

import (
	"context"
	"fmt"

	"github.com/rx3lixir/ewm-service/internal/apperr"
	"github.com/rx3lixir/ewm-service/pkg/metrics"
)

func duplicateCategory(name string, err error) error {
	return apperr.Wrap(apperr.Conflict(apperr.CodeCategoryDuplicateName, "category name %q is already used", name), err)
}

func (s *PostgresStore) CreateCategory(parentCtx context.Context, category *Category) error {
	ctx, cancel := context.WithTimeout(parentCtx, s.timeout)
	defer cancel()

	query := `INSERT INTO categories (name) VALUES ($1) RETURNING id`

	return metrics.DatabaseInterceptor("insert", "categories", func() error {
		err := s.db.QueryRow(ctx, query, category.Name).Scan(&category.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return duplicateCategory(category.Name, err)
			}
			return fmt.Errorf("failed to create category: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) ListCategories(parentCtx context.Context, page Page) ([]*Category, error) {
	ctx, cancel := context.WithTimeout(parentCtx, s.timeout)
	defer cancel()

	page = page.Normalize()
	categories := []*Category{}

	err := metrics.DatabaseInterceptor("select", "categories", func() error {
		rows, err := s.db.Query(ctx,
			"SELECT id, name FROM categories ORDER BY id LIMIT $1 OFFSET $2", page.Limit, page.Offset)
		if err != nil {
			return fmt.Errorf("failed to query categories: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			category := new(Category)
			if err := rows.Scan(&category.ID, &category.Name); err != nil {
				return err
			}
			categories = append(categories, category)
		}
		if err = rows.Err(); err != nil {
			return fmt.Errorf("error iterating category rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return categories, nil
}

func (s *PostgresStore) GetCategoryByID(parentCtx context.Context, id int64) (*Category, error) {
	ctx, cancel := context.WithTimeout(parentCtx, s.timeout)
	defer cancel()

	category := new(Category)
	err := metrics.DatabaseInterceptor("select", "categories", func() error {
		err := s.db.QueryRow(ctx, "SELECT id, name FROM categories WHERE id = $1", id).Scan(&category.ID, &category.Name)
		if err != nil {
			return notFoundOr(err, "Category", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return category, nil
}

func (s *PostgresStore) UpdateCategory(parentCtx context.Context, category *Category) error {
	ctx, cancel := context.WithTimeout(parentCtx, s.timeout)
	defer cancel()

	return metrics.DatabaseInterceptor("update", "categories", func() error {
		cmdTag, err := s.db.Exec(ctx, "UPDATE categories SET name = $1 WHERE id = $2", category.Name, category.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return duplicateCategory(category.Name, err)
			}
			return fmt.Errorf("failed to update category %d: %w", category.ID, err)
		}
		if cmdTag.RowsAffected() == 0 {
			return notFoundOr(errNoRowsAffected, "Category", category.ID)
		}
		return nil
	})
}

func (s *PostgresStore) DeleteCategory(parentCtx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(parentCtx, s.timeout)
	defer cancel()

	return metrics.DatabaseInterceptor("delete", "categories", func() error {
		cmdTag, err := s.db.Exec(ctx, "DELETE FROM categories WHERE id = $1", id)
		if err != nil {
			return fmt.Errorf("failed to delete category %d: %w", id, err)
		}
		if cmdTag.RowsAffected() == 0 {
			return notFoundOr(errNoRowsAffected, "Category", id)
		}
		return nil
	})
}

// CategoryInUse - есть ли события в категории
func (s *PostgresStore) CategoryInUse(parentCtx context.Context, id int64) (bool, error) {
	return s.exists(parentCtx, "events", "SELECT EXISTS(SELECT 1 FROM events WHERE category_id = $1)", id)
}
