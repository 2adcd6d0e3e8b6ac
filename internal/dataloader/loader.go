// Package dataloader наполняет поисковый индекс опубликованными событиями из PostgreSQL
package dataloader

import (
	"context"
	"fmt"
	"time"

	"github.com/rx3lixir/ewm-service/internal/db"
	"github.com/rx3lixir/ewm-service/pkg/logger"
)

// Index - то, что загрузчику нужно от поискового индекса
type Index interface {
	CountDocuments(ctx context.Context) (int64, error)
	BulkIndexEvents(ctx context.Context, events []*db.Event) error
}

type Loader struct {
	store     db.Queries
	index     Index
	batchSize int
	logger    logger.Logger
	now       func() time.Time
}

func NewLoader(store db.Queries, index Index, batchSize int, logger logger.Logger) *Loader {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Loader{
		store:     store,
		index:     index,
		batchSize: batchSize,
		logger:    logger.With("component", "dataloader"),
		now:       time.Now,
	}
}

// InitializeOpenSearchData загружает опубликованные события в пустой индекс.
// Непустой индекс не трогается: его поддерживает синхронизация при изменениях.
func (l *Loader) InitializeOpenSearchData(ctx context.Context) (*SyncResult, error) {
	l.logger.Info("Initializing OpenSearch data from PostgreSQL...")

	existing, err := l.index.CountDocuments(ctx)
	if err != nil {
		l.logger.Warn("Failed to check existing OpenSearch data, proceeding with initialization", "error", err)
	} else if existing > 0 {
		l.logger.Info("OpenSearch already contains data, skipping bulk initialization", "existing_count", existing)
		return &SyncResult{Success: true, StartedAt: l.now(), CompletedAt: l.now()}, nil
	}

	return l.load(ctx)
}

// ForceSyncData переиндексирует все опубликованные события независимо от состояния индекса
func (l *Loader) ForceSyncData(ctx context.Context) (*SyncResult, error) {
	l.logger.Info("Starting forced data synchronization...")
	return l.load(ctx)
}

// load читает опубликованные события страницами по batchSize и индексирует каждую.
// Ошибка одной страницы не останавливает загрузку остальных.
func (l *Loader) load(ctx context.Context) (*SyncResult, error) {
	result := &SyncResult{StartedAt: l.now()}

	for offset, batchNum := 0, 1; ; offset, batchNum = offset+l.batchSize, batchNum+1 {
		batch, err := l.store.ListEvents(ctx, db.NewEventFilter(
			db.WithStates(db.EventPublished),
			db.WithSort(db.SortByID),
			db.WithPagination(l.batchSize, offset),
		))
		if err != nil {
			return l.finish(result, fmt.Errorf("failed to get events from PostgreSQL: %w", err))
		}
		if len(batch) == 0 {
			break
		}

		result.EventsProcessed += len(batch)
		if err := l.index.BulkIndexEvents(ctx, batch); err != nil {
			l.logger.Error("Failed to index batch", "batch", batchNum, "batch_size", len(batch), "error", err)
			result.EventsFailed += len(batch)
		} else {
			result.EventsSucceeded += len(batch)
			l.logger.Debug("Batch indexed successfully", "batch", batchNum, "events_in_batch", len(batch))
		}

		if len(batch) < l.batchSize {
			break
		}
	}

	if result.EventsProcessed == 0 {
		l.logger.Info("No published events found in PostgreSQL, nothing to index")
		return l.finish(result, nil)
	}

	if result.EventsFailed > 0 {
		l.logger.Warn("OpenSearch initialization completed with errors",
			"total_events", result.EventsProcessed,
			"successfully_indexed", result.EventsSucceeded,
			"failed_to_index", result.EventsFailed,
			"success_rate", fmt.Sprintf("%.1f%%", float64(result.EventsSucceeded)/float64(result.EventsProcessed)*100))

		// Ошибка только если не загрузилось ничего
		if result.EventsSucceeded == 0 {
			return l.finish(result, fmt.Errorf("failed to index any events: %d total failures", result.EventsFailed))
		}
		return l.finish(result, nil)
	}

	l.logger.Info("OpenSearch initialization completed successfully", "events_indexed", result.EventsSucceeded)
	return l.finish(result, nil)
}

func (l *Loader) finish(result *SyncResult, err error) (*SyncResult, error) {
	result.CompletedAt = l.now()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)
	result.Success = err == nil
	if err != nil {
		result.Error = err.Error()
	}
	return result, err
}

// CheckSyncStatus сравнивает число опубликованных событий с числом документов в индексе
func (l *Loader) CheckSyncStatus(ctx context.Context) (*SyncStatus, error) {
	pgCount, err := l.store.CountEvents(ctx, db.NewEventFilter(db.WithStates(db.EventPublished)))
	if err != nil {
		return nil, fmt.Errorf("failed to get PostgreSQL events count: %w", err)
	}

	osCount, err := l.index.CountDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get OpenSearch events count: %w", err)
	}

	return &SyncStatus{
		PostgreSQLCount: pgCount,
		OpenSearchCount: osCount,
		InSync:          pgCount == osCount,
		Difference:      pgCount - osCount,
		LastChecked:     l.now(),
	}, nil
}
