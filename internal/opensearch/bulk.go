package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

const defaultBatchSize = 100

// BulkIndex индексирует документы пачками, каждая пачка с повторами
func (s *Service) BulkIndex(ctx context.Context, docs []*EventDocument) error {
	for i := 0; i < len(docs); i += s.batchSize {
		end := min(i+s.batchSize, len(docs))
		batch := docs[i:end]

		err := s.retry.ExecuteWithRetry(ctx, func(ctx context.Context) error {
			return s.executeBulkRequest(ctx, batch)
		})
		if err != nil {
			return fmt.Errorf("failed to process batch %d-%d: %w", i, end-1, err)
		}

		s.log.Debug("Batch processed successfully", "batch_start", i, "batch_end", end-1, "batch_size", len(batch))
	}
	return nil
}

func (s *Service) executeBulkRequest(ctx context.Context, docs []*EventDocument) error {
	body, err := buildBulkBody(s.client.Index(), docs)
	if err != nil {
		return fmt.Errorf("failed to build bulk body: %w", err)
	}

	native := s.client.os
	res, err := native.Bulk(
		bytes.NewReader(body),
		native.Bulk.WithContext(ctx),
		native.Bulk.WithRefresh("true"),
	)
	if err != nil {
		return fmt.Errorf("failed to execute bulk request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("bulk request failed with status: %s", res.Status())
	}

	return s.checkBulkResponse(res.Body)
}

// buildBulkBody собирает NDJSON тело: строка действия, затем строка документа
func buildBulkBody(index string, docs []*EventDocument) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	for _, doc := range docs {
		action := map[string]any{
			"index": map[string]any{
				"_index": index,
				"_id":    strconv.FormatInt(doc.ID, 10),
			},
		}
		if err := enc.Encode(action); err != nil {
			return nil, fmt.Errorf("failed to marshal action line: %w", err)
		}
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("failed to marshal document %d: %w", doc.ID, err)
		}
	}

	return buf.Bytes(), nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Index struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error,omitempty"`
		} `json:"index"`
	} `json:"items"`
}

// checkBulkResponse считает пачку неуспешной, если не прошла ни одна операция.
// Частичные ошибки логируются, их подберет следующая переиндексация.
func (s *Service) checkBulkResponse(body io.Reader) error {
	var response bulkResponse
	if err := json.NewDecoder(body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if !response.Errors {
		return nil
	}

	var failures []string
	for _, item := range response.Items {
		if item.Index.Error != nil {
			failures = append(failures, fmt.Sprintf("%s: %s - %s", item.Index.ID, item.Index.Error.Type, item.Index.Error.Reason))
		}
	}

	s.log.Warn("Bulk operation completed with errors",
		"total_operations", len(response.Items),
		"failed", len(failures),
		"sample", failures[:min(5, len(failures))],
	)

	if len(failures) == len(response.Items) {
		return fmt.Errorf("all %d bulk operations failed", len(failures))
	}
	return nil
}
