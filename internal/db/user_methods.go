package db

import (
	"context"
	"fmt"

	"github.com/rx3lixir/ewm-service/internal/apperr"
	"github.com/rx3lixir/ewm-service/pkg/metrics"
)

const userHasDependentsQuery = `SELECT EXISTS(SELECT 1 FROM events WHERE initiator_id = $1)
	OR EXISTS(SELECT 1 FROM participations WHERE requester_id = $1)
	OR EXISTS(SELECT 1 FROM comments WHERE commenter_id = $1)`

func (s *PostgresStore) CreateUser(parentCtx context.Context, user *User) error {
	ctx, cancel := context.WithTimeout(parentCtx, s.timeout)
	defer cancel()

	return metrics.DatabaseInterceptor("insert", "users", func() error {
		err := s.db.QueryRow(ctx, "INSERT INTO users (name, email) VALUES ($1, $2) RETURNING id", user.Name, user.Email).Scan(&user.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return apperr.Wrap(apperr.Conflict(apperr.CodeUserDuplicateEmail, "email %q is already registered", user.Email), err)
			}
			return fmt.Errorf("failed to create user: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) GetUserByID(parentCtx context.Context, id int64) (*User, error) {
	ctx, cancel := context.WithTimeout(parentCtx, s.timeout)
	defer cancel()

	user := new(User)
	err := metrics.DatabaseInterceptor("select", "users", func() error {
		err := s.db.QueryRow(ctx, "SELECT id, name, email FROM users WHERE id = $1", id).Scan(&user.ID, &user.Name, &user.Email)
		if err != nil {
			return notFoundOr(err, "User", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ListUsers возвращает пользователей; пустой ids означает всех
func (s *PostgresStore) ListUsers(parentCtx context.Context, ids []int64, page Page) ([]*User, error) {
	ctx, cancel := context.WithTimeout(parentCtx, s.timeout)
	defer cancel()

	page = page.Normalize()
	b := &whereBuilder{}
	if len(ids) > 0 {
		b.addIn("id", ids)
	}
	query := "SELECT id, name, email FROM users" + b.where() +
		fmt.Sprintf(" ORDER BY id LIMIT %s OFFSET %s", b.arg(page.Limit), b.arg(page.Offset))

	users := []*User{}
	err := metrics.DatabaseInterceptor("select", "users", func() error {
		rows, err := s.db.Query(ctx, query, b.args...)
		if err != nil {
			return fmt.Errorf("failed to query users: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			user := new(User)
			if err := rows.Scan(&user.ID, &user.Name, &user.Email); err != nil {
				return fmt.Errorf("failed to scan user: %w", err)
			}
			users = append(users, user)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (s *PostgresStore) DeleteUser(parentCtx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(parentCtx, s.timeout)
	defer cancel()

	return metrics.DatabaseInterceptor("delete", "users", func() error {
		cmdTag, err := s.db.Exec(ctx, "DELETE FROM users WHERE id = $1", id)
		if err != nil {
			return fmt.Errorf("failed to delete user %d: %w", id, err)
		}
		if cmdTag.RowsAffected() == 0 {
			return notFoundOr(errNoRowsAffected, "User", id)
		}
		return nil
	})
}

// UserHasDependents - пользователь создавал события, заявки или комментарии
func (s *PostgresStore) UserHasDependents(parentCtx context.Context, id int64) (bool, error) {
	return s.exists(parentCtx, "users", userHasDependentsQuery, id)
}
