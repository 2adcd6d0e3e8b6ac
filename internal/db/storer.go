package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rx3lixir/ewm-service/internal/apperr"
)

const defaultQueryTimeout = 3 * time.Second

// Интерфейс для абстракции методов базы данных от pgxpool и pgx.Tx
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxBeginner - источник транзакций (pgxpool.Pool)
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Queries определяет методы работы с хранилищем. Одни и те же методы доступны
// как вне транзакции, так и внутри WithTx.
type Queries interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id int64) (*User, error)
	ListUsers(ctx context.Context, ids []int64, page Page) ([]*User, error)
	DeleteUser(ctx context.Context, id int64) error
	UserHasDependents(ctx context.Context, id int64) (bool, error)

	CreateCategory(ctx context.Context, category *Category) error
	GetCategoryByID(ctx context.Context, id int64) (*Category, error)
	ListCategories(ctx context.Context, page Page) ([]*Category, error)
	UpdateCategory(ctx context.Context, category *Category) error
	DeleteCategory(ctx context.Context, id int64) error
	CategoryInUse(ctx context.Context, id int64) (bool, error)

	CreateEvent(ctx context.Context, event *Event) error
	GetEventByID(ctx context.Context, id int64) (*Event, error)
	// LockEventByID читает событие и блокирует строку до конца транзакции
	LockEventByID(ctx context.Context, id int64) (*Event, error)
	// UpdateEventDetails пишет только поля жизненного цикла, счетчик и рейтинг не трогает
	UpdateEventDetails(ctx context.Context, event *Event) error
	SetConfirmedRequests(ctx context.Context, eventID int64, confirmed int) error
	SetRating(ctx context.Context, eventID int64, rating float64) error
	ListEvents(ctx context.Context, filter *EventFilter) ([]*Event, error)
	CountEvents(ctx context.Context, filter *EventFilter) (int64, error)

	CreateParticipation(ctx context.Context, p *Participation) error
	GetParticipationByID(ctx context.Context, id int64) (*Participation, error)
	ParticipationExists(ctx context.Context, eventID, requesterID int64) (bool, error)
	HasConfirmedParticipation(ctx context.Context, eventID, userID int64) (bool, error)
	ListParticipations(ctx context.Context, filter *ParticipationFilter) ([]*Participation, error)
	UpdateParticipationStatuses(ctx context.Context, ps []*Participation) error
	CountConfirmed(ctx context.Context, eventID int64) (int, error)

	CreateComment(ctx context.Context, c *Comment) error
	GetCommentByID(ctx context.Context, id int64) (*Comment, error)
	CommentExists(ctx context.Context, eventID, commenterID int64) (bool, error)
	UpdateComment(ctx context.Context, c *Comment) error
	DeleteComment(ctx context.Context, id int64) error
	ListComments(ctx context.Context, filter *CommentFilter) ([]*Comment, error)
	// AverageApprovedRate среднее по одобренным комментариям с оценкой, 0 если таких нет
	AverageApprovedRate(ctx context.Context, eventID int64) (float64, error)

	CreateCompilation(ctx context.Context, c *Compilation) error
	GetCompilationByID(ctx context.Context, id int64) (*Compilation, error)
	ListCompilations(ctx context.Context, pinned *bool, page Page) ([]*Compilation, error)
	UpdateCompilation(ctx context.Context, c *Compilation) error
	SetCompilationEvents(ctx context.Context, compilationID int64, eventIDs []int64) error
	DeleteCompilation(ctx context.Context, id int64) error
}

// Store - хранилище с единицей работы. Все изменения внутри fn применяются атомарно.
type Store interface {
	Queries
	WithTx(ctx context.Context, fn func(q Queries) error) error
}

// PostgresStore реализует Store с использованием PostgreSQL.
type PostgresStore struct {
	db      DBTX
	txer    TxBeginner
	timeout time.Duration
}

// NewPostgresStore создает новый экземпляр PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, queryTimeout time.Duration) *PostgresStore {
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}
	return &PostgresStore{
		db:      pool,
		txer:    pool,
		timeout: queryTimeout,
	}
}

// WithTx выполняет fn в транзакции. Ошибка из fn откатывает транзакцию.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(q Queries) error) error {
	if s.txer == nil {
		return errors.New("nested transactions are not supported")
	}

	tx, err := s.txer.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	q := &PostgresStore{db: tx, timeout: s.timeout}
	if err := fn(q); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreatePostgresPool создает и проверяет пул соединений к PostgreSQL.
func CreatePostgresPool(parentCtx context.Context, dburl string, maxConns, minConns int32, maxConnLifetime time.Duration) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(parentCtx, time.Second*3)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(dburl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}
	if minConns > 0 {
		poolCfg.MinConns = minConns
	}
	if maxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = maxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}

	// Проверяем соединение
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// pgxScanner интерфейс для абстракции pgx.Rows и pgx.Row.
type pgxScanner interface {
	Scan(dest ...any) error
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// notFoundOr переводит pgx.ErrNoRows в доменную NotFound, остальные ошибки оборачивает
func notFoundOr(err error, entity string, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("%s with id=%d was not found", entity, id)
	}
	return fmt.Errorf("failed to get %s %d: %w", entity, id, err)
}

// errNoRowsAffected - UPDATE/DELETE не затронул ни одной строки
var errNoRowsAffected = pgx.ErrNoRows

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
