// Package directory - справочники пользователей и категорий
package directory

import (
	"context"
	"strings"

	"github.com/rx3lixir/ewm-service/internal/apperr"
	"github.com/rx3lixir/ewm-service/internal/db"
	"github.com/rx3lixir/ewm-service/internal/validation"
	"github.com/rx3lixir/ewm-service/pkg/logger"
)

type NewUser struct {
	Name  string `validate:"notblank,min=2,max=250"`
	Email string `validate:"required,email,min=6,max=254"`
}

type CategoryInput struct {
	Name string `validate:"notblank,min=1,max=50"`
}

type Service struct {
	store db.Store
	log   logger.Logger
}

func NewService(store db.Store, log logger.Logger) *Service {
	return &Service{store: store, log: log.With("component", "directory")}
}

// CreateUser регистрирует пользователя, email уникален без учета регистра
func (s *Service) CreateUser(ctx context.Context, in NewUser) (*db.User, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	user := &db.User{Name: strings.TrimSpace(in.Name), Email: strings.ToLower(in.Email)}
	if err := s.store.CreateUser(ctx, user); err != nil {
		s.log.Warn("failed to create user", "email", user.Email, "error", err)
		return nil, err
	}

	s.log.Info("user created", "user_id", user.ID)
	return user, nil
}

// ListUsers возвращает пользователей по ID, либо всех, если ids пуст
func (s *Service) ListUsers(ctx context.Context, ids []int64, from, size int) ([]*db.User, error) {
	return s.store.ListUsers(ctx, ids, db.Page{Limit: size, Offset: from}.Normalize())
}

// DeleteUser удаляет пользователя без событий и заявок
func (s *Service) DeleteUser(ctx context.Context, id int64) error {
	err := s.store.WithTx(ctx, func(q db.Queries) error {
		if _, err := q.GetUserByID(ctx, id); err != nil {
			return err
		}
		busy, err := q.UserHasDependents(ctx, id)
		if err != nil {
			return err
		}
		if busy {
			return apperr.Conflict(apperr.CodeUserInUse, "user %d has events or participation requests", id)
		}
		return q.DeleteUser(ctx, id)
	})
	if err != nil {
		s.log.Warn("failed to delete user", "user_id", id, "error", err)
		return err
	}

	s.log.Info("user deleted", "user_id", id)
	return nil
}

func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (*db.Category, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	category := &db.Category{Name: strings.TrimSpace(in.Name)}
	if err := s.store.CreateCategory(ctx, category); err != nil {
		s.log.Warn("failed to create category", "name", category.Name, "error", err)
		return nil, err
	}

	s.log.Info("category created", "category_id", category.ID, "name", category.Name)
	return category, nil
}

func (s *Service) UpdateCategory(ctx context.Context, id int64, in CategoryInput) (*db.Category, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	category := &db.Category{ID: id, Name: strings.TrimSpace(in.Name)}
	if err := s.store.UpdateCategory(ctx, category); err != nil {
		s.log.Warn("failed to update category", "category_id", id, "error", err)
		return nil, err
	}
	return category, nil
}

// DeleteCategory удаляет категорию, если на нее не ссылается ни одно событие
func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	err := s.store.WithTx(ctx, func(q db.Queries) error {
		if _, err := q.GetCategoryByID(ctx, id); err != nil {
			return err
		}
		used, err := q.CategoryInUse(ctx, id)
		if err != nil {
			return err
		}
		if used {
			return apperr.Conflict(apperr.CodeCategoryInUse, "category %d is not empty", id)
		}
		return q.DeleteCategory(ctx, id)
	})
	if err != nil {
		s.log.Warn("failed to delete category", "category_id", id, "error", err)
		return err
	}

	s.log.Info("category deleted", "category_id", id)
	return nil
}

func (s *Service) GetCategory(ctx context.Context, id int64) (*db.Category, error) {
	return s.store.GetCategoryByID(ctx, id)
}

func (s *Service) ListCategories(ctx context.Context, from, size int) ([]*db.Category, error) {
	return s.store.ListCategories(ctx, db.Page{Limit: size, Offset: from}.Normalize())
}
