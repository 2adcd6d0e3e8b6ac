// Package opensearch держит зеркало опубликованных событий в OpenSearch
// и отвечает на публичный поиск по нему. Источник истины - PostgreSQL.
package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rx3lixir/ewm-service/internal/db"
	"github.com/rx3lixir/ewm-service/pkg/logger"
	"github.com/rx3lixir/ewm-service/pkg/metrics"
)

// Service индексирует события и ищет по индексу
type Service struct {
	client    *Client
	retry     *RetryLogic
	batchSize int
	log       logger.Logger
}

// NewService создает сервис поверх клиента. batchSize <= 0 означает значение по умолчанию.
func NewService(client *Client, batchSize, maxRetries int, log logger.Logger) *Service {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Service{
		client:    client,
		retry:     NewRetryLogic(log).WithMaxRetries(maxRetries),
		batchSize: batchSize,
		log:       log.With("component", "opensearch"),
	}
}

// SyncEvent приводит документ в индексе к состоянию события:
// опубликованное индексируется, остальные удаляются из индекса.
func (s *Service) SyncEvent(ctx context.Context, event *db.Event) error {
	if event.State != db.EventPublished {
		return s.DeleteEvent(ctx, event.ID)
	}
	return s.IndexEvent(ctx, event)
}

// IndexEvent индексирует событие в OpenSearch
func (s *Service) IndexEvent(ctx context.Context, event *db.Event) error {
	doc := FromEvent(event)
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("event %d: %w", event.ID, err)
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal event document: %w", err)
	}

	native := s.client.os
	err = metrics.OpenSearchInterceptor("index", s.client.Index(), func() error {
		return s.retry.ExecuteWithRetry(ctx, func(ctx context.Context) error {
			res, err := native.Index(
				s.client.Index(),
				bytes.NewReader(body),
				native.Index.WithDocumentID(strconv.FormatInt(doc.ID, 10)),
				native.Index.WithContext(ctx),
				native.Index.WithRefresh("true"),
			)
			if err != nil {
				return fmt.Errorf("failed to index event: %w", err)
			}
			defer res.Body.Close()

			if res.IsError() {
				return fmt.Errorf("opensearch indexing failed: %s", res.Status())
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	s.log.Debug("Event indexed successfully", "event_id", event.ID, "index", s.client.Index())
	return nil
}

// DeleteEvent удаляет событие из индекса. Отсутствие документа не ошибка.
func (s *Service) DeleteEvent(ctx context.Context, eventID int64) error {
	native := s.client.os
	err := metrics.OpenSearchInterceptor("delete", s.client.Index(), func() error {
		return s.retry.ExecuteWithRetry(ctx, func(ctx context.Context) error {
			res, err := native.Delete(
				s.client.Index(),
				strconv.FormatInt(eventID, 10),
				native.Delete.WithContext(ctx),
				native.Delete.WithRefresh("true"),
			)
			if err != nil {
				return fmt.Errorf("failed to delete event: %w", err)
			}
			defer res.Body.Close()

			if res.IsError() && res.StatusCode != 404 {
				return fmt.Errorf("opensearch deletion failed: %s", res.Status())
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	s.log.Debug("Event deleted from opensearch", "event_id", eventID)
	return nil
}

// BulkIndexEvents массово индексирует опубликованные события, остальные пропускает
func (s *Service) BulkIndexEvents(ctx context.Context, events []*db.Event) error {
	docs := make([]*EventDocument, 0, len(events))
	for _, doc := range FromEvents(events) {
		if err := doc.Validate(); err != nil {
			s.log.Warn("skipping event for bulk index", "event_id", doc.ID, "error", err)
			continue
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return nil
	}

	err := metrics.OpenSearchInterceptor("bulk", s.client.Index(), func() error {
		return s.BulkIndex(ctx, docs)
	})
	if err != nil {
		return err
	}

	s.log.Info("Bulk indexing completed", "events_count", len(docs))
	return nil
}

// SearchEventIDs возвращает ID событий в порядке сортировки фильтра
func (s *Service) SearchEventIDs(ctx context.Context, filter *db.EventFilter) ([]int64, error) {
	queryBody, err := json.Marshal(buildSearchQuery(filter))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search query: %w", err)
	}

	s.log.Debug("Executing OpenSearch query", "index", s.client.Index(), "query", string(queryBody))

	var ids []int64
	native := s.client.os
	start := time.Now()
	err = metrics.OpenSearchInterceptor("search", s.client.Index(), func() error {
		res, err := native.Search(
			native.Search.WithContext(ctx),
			native.Search.WithIndex(s.client.Index()),
			native.Search.WithBody(bytes.NewReader(queryBody)),
		)
		if err != nil {
			return fmt.Errorf("failed to execute search: %w", err)
		}
		defer res.Body.Close()

		if res.IsError() {
			body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
			s.log.Error("OpenSearch query failed", "status", res.Status(), "error_body", string(body))
			return fmt.Errorf("failed to search via opensearch: %s", res.Status())
		}

		ids, err = parseSearchIDs(res.Body)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Debug("Search completed", "returned", len(ids), "search_time", time.Since(start))
	return ids, nil
}

func parseSearchIDs(body io.Reader) ([]int64, error) {
	var response struct {
		Hits struct {
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	ids := make([]int64, 0, len(response.Hits.Hits))
	for _, hit := range response.Hits.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("unexpected document id %q: %w", hit.ID, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// CountDocuments возвращает число документов и обновляет метрику
func (s *Service) CountDocuments(ctx context.Context) (int64, error) {
	count, err := s.client.CountDocuments(ctx)
	if err != nil {
		return 0, err
	}
	metrics.UpdateOpenSearchDocuments(s.client.Index(), count)
	return count, nil
}

// Health проверяет состояние OpenSearch
func (s *Service) Health(ctx context.Context) error {
	return s.client.Ping(ctx)
}
