// Package consistency сверяет производные поля событий с исходными данными
// и зеркало в поисковом индексе с PostgreSQL.
package consistency

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/rx3lixir/ewm-service/internal/db"
	"github.com/rx3lixir/ewm-service/pkg/logger"
	"github.com/rx3lixir/ewm-service/pkg/metrics"
)

const (
	FieldConfirmedRequests = "confirmed_requests"
	FieldRating            = "rating"
	FieldIndex             = "index"

	scanPageSize  = 500
	ratingEpsilon = 1e-9
	defaultTTL    = time.Minute
)

// Index - зеркало событий, которое тоже сверяется. Необязательно.
type Index interface {
	SearchEventIDs(ctx context.Context, filter *db.EventFilter) ([]int64, error)
	SyncEvent(ctx context.Context, event *db.Event) error
	DeleteEvent(ctx context.Context, eventID int64) error
}

// Manager отвечает за проверку консистентности данных
type Manager struct {
	store db.Store
	index Index
	log   logger.Logger

	mu            sync.RWMutex
	lastCheck     *CheckResult
	lastCheckTime time.Time
	checkCacheTTL time.Duration
}

// CheckResult результат проверки консистентности
type CheckResult struct {
	IsConsistent   bool            `json:"is_consistent"`
	EventsChecked  int             `json:"events_checked"`
	Mismatches     []EventMismatch `json:"mismatches,omitempty"`
	MissingInIndex []int64         `json:"missing_in_index,omitempty"`
	OrphanedInIdx  []int64         `json:"orphaned_in_index,omitempty"`
	CheckDuration  time.Duration   `json:"check_duration"`
	Timestamp      time.Time       `json:"timestamp"`
}

// Inconsistencies общее число найденных расхождений
func (r *CheckResult) Inconsistencies() int {
	return len(r.Mismatches) + len(r.MissingInIndex) + len(r.OrphanedInIdx)
}

// EventMismatch описывает расхождение сохраненного значения с пересчитанным
type EventMismatch struct {
	EventID int64  `json:"event_id"`
	Field   string `json:"field"`
	Stored  string `json:"stored"`
	Actual  string `json:"actual"`
}

type Option func(*Manager)

// WithIndex добавляет сверку с поисковым индексом
func WithIndex(idx Index) Option {
	return func(m *Manager) { m.index = idx }
}

// WithCacheTTL устанавливает время жизни кэша результатов
func WithCacheTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.checkCacheTTL = ttl }
}

// New создает новый менеджер консистентности
func New(store db.Store, log logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:         store,
		log:           log.With("component", "consistency"),
		checkCacheTTL: defaultTTL,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CheckConsistency выполняет полную проверку. Результат кэшируется на checkCacheTTL.
func (m *Manager) CheckConsistency(ctx context.Context) (*CheckResult, error) {
	if result := m.getCachedResult(); result != nil {
		m.log.Debug("returning cached consistency check result")
		return result, nil
	}

	m.log.Info("starting consistency check")
	start := time.Now()
	result := &CheckResult{Timestamp: start}

	var published []int64
	for offset := 0; ; offset += scanPageSize {
		events, err := m.store.ListEvents(ctx, db.NewEventFilter(
			db.WithSort(db.SortByID),
			db.WithPagination(scanPageSize, offset),
		))
		if err != nil {
			return nil, fmt.Errorf("failed to get events from database: %w", err)
		}

		for _, e := range events {
			mismatches, err := m.compareEvent(ctx, e)
			if err != nil {
				return nil, err
			}
			result.Mismatches = append(result.Mismatches, mismatches...)
			if e.State == db.EventPublished {
				published = append(published, e.ID)
			}
		}
		result.EventsChecked += len(events)

		if len(events) < scanPageSize {
			break
		}
	}

	if m.index != nil {
		if err := m.compareIndex(ctx, published, result); err != nil {
			return nil, err
		}
	}

	result.IsConsistent = result.Inconsistencies() == 0
	result.CheckDuration = time.Since(start)
	m.reportDrift(result)
	m.setCachedResult(result)

	m.log.Info("consistency check completed",
		"is_consistent", result.IsConsistent,
		"events_checked", result.EventsChecked,
		"mismatches", len(result.Mismatches),
		"missing_in_index", len(result.MissingInIndex),
		"orphaned_in_index", len(result.OrphanedInIdx),
		"duration", result.CheckDuration,
	)

	return result, nil
}

// compareEvent пересчитывает счетчик и рейтинг события из заявок и комментариев
func (m *Manager) compareEvent(ctx context.Context, e *db.Event) ([]EventMismatch, error) {
	var mismatches []EventMismatch

	confirmed, err := m.store.CountConfirmed(ctx, e.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count confirmed requests of event %d: %w", e.ID, err)
	}
	if confirmed != e.ConfirmedRequests {
		mismatches = append(mismatches, EventMismatch{
			EventID: e.ID,
			Field:   FieldConfirmedRequests,
			Stored:  strconv.Itoa(e.ConfirmedRequests),
			Actual:  strconv.Itoa(confirmed),
		})
	}

	rating, err := m.store.AverageApprovedRate(ctx, e.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute rating of event %d: %w", e.ID, err)
	}
	if math.Abs(rating-e.Rating) > ratingEpsilon {
		mismatches = append(mismatches, EventMismatch{
			EventID: e.ID,
			Field:   FieldRating,
			Stored:  strconv.FormatFloat(e.Rating, 'f', -1, 64),
			Actual:  strconv.FormatFloat(rating, 'f', -1, 64),
		})
	}

	return mismatches, nil
}

func (m *Manager) compareIndex(ctx context.Context, published []int64, result *CheckResult) error {
	indexed := make(map[int64]bool, len(published))
	for offset := 0; ; offset += scanPageSize {
		ids, err := m.index.SearchEventIDs(ctx, db.NewEventFilter(
			db.WithSort(db.SortByID),
			db.WithPagination(scanPageSize, offset),
		))
		if err != nil {
			return fmt.Errorf("failed to get events from search index: %w", err)
		}
		for _, id := range ids {
			indexed[id] = true
		}
		if len(ids) < scanPageSize {
			break
		}
	}

	for _, id := range published {
		if !indexed[id] {
			result.MissingInIndex = append(result.MissingInIndex, id)
		}
		delete(indexed, id)
	}
	for id := range indexed {
		result.OrphanedInIdx = append(result.OrphanedInIdx, id)
	}
	return nil
}

// RepairInconsistencies пересчитывает разошедшиеся поля под блокировкой события
// и досинхронизирует индекс
func (m *Manager) RepairInconsistencies(ctx context.Context, result *CheckResult) error {
	if result.IsConsistent {
		m.log.Info("data is consistent, no repair needed")
		return nil
	}

	m.log.Info("starting data repair",
		"mismatches", len(result.Mismatches),
		"missing_in_index", len(result.MissingInIndex),
		"orphaned_in_index", len(result.OrphanedInIdx),
	)

	var repairErrors []error

	processed := make(map[int64]bool)
	for _, mismatch := range result.Mismatches {
		if processed[mismatch.EventID] {
			continue
		}
		processed[mismatch.EventID] = true

		if err := m.recompute(ctx, mismatch.EventID); err != nil {
			repairErrors = append(repairErrors, fmt.Errorf("event %d: %w", mismatch.EventID, err))
			continue
		}
		m.log.Info("recomputed derived fields", "event_id", mismatch.EventID)
	}

	if m.index != nil {
		for _, id := range result.MissingInIndex {
			processed[id] = true
		}
		for id := range processed {
			event, err := m.store.GetEventByID(ctx, id)
			if err != nil {
				repairErrors = append(repairErrors, fmt.Errorf("failed to get event %d from db: %w", id, err))
				continue
			}
			if err := m.index.SyncEvent(ctx, event); err != nil {
				repairErrors = append(repairErrors, fmt.Errorf("failed to sync event %d: %w", id, err))
			}
		}
		for _, id := range result.OrphanedInIdx {
			if err := m.index.DeleteEvent(ctx, id); err != nil {
				repairErrors = append(repairErrors, fmt.Errorf("failed to delete orphaned event %d: %w", id, err))
			}
		}
	}

	m.invalidate()

	if len(repairErrors) > 0 {
		return fmt.Errorf("repair completed with %d errors: %w", len(repairErrors), errors.Join(repairErrors...))
	}

	m.log.Info("data repair completed successfully")
	return nil
}

func (m *Manager) recompute(ctx context.Context, eventID int64) error {
	return m.store.WithTx(ctx, func(q db.Queries) error {
		if _, err := q.LockEventByID(ctx, eventID); err != nil {
			return err
		}
		confirmed, err := q.CountConfirmed(ctx, eventID)
		if err != nil {
			return err
		}
		if err := q.SetConfirmedRequests(ctx, eventID, confirmed); err != nil {
			return err
		}
		rating, err := q.AverageApprovedRate(ctx, eventID)
		if err != nil {
			return err
		}
		return q.SetRating(ctx, eventID, rating)
	})
}

func (m *Manager) reportDrift(result *CheckResult) {
	counts := map[string]int{FieldConfirmedRequests: 0, FieldRating: 0}
	for _, mm := range result.Mismatches {
		counts[mm.Field]++
	}
	counts[FieldIndex] = len(result.MissingInIndex) + len(result.OrphanedInIdx)
	for field, n := range counts {
		metrics.SetConsistencyDrift(field, n)
	}
}

// getCachedResult возвращает закэшированный результат, если он еще актуален
func (m *Manager) getCachedResult() *CheckResult {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.lastCheck == nil || time.Since(m.lastCheckTime) > m.checkCacheTTL {
		return nil
	}
	return m.lastCheck
}

func (m *Manager) setCachedResult(result *CheckResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastCheck = result
	m.lastCheckTime = time.Now()
}

func (m *Manager) invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCheck = nil
}

// SetCacheTTL устанавливает время жизни кэша результатов
func (m *Manager) SetCacheTTL(ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkCacheTTL = ttl
}
