package opensearch

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go"
	"github.com/rx3lixir/ewm-service/internal/config"
	"github.com/rx3lixir/ewm-service/pkg/logger"
)

// Client представляет клиент для работы с OpenSearch
type Client struct {
	os    *opensearch.Client
	index string
	log   logger.Logger
}

// NewClient создает новый клиент OpenSearch
func NewClient(cfg config.OpenSearchParams, log logger.Logger) (*Client, error) {
	osConfig := opensearch.Config{
		Addresses: []string{cfg.URL},
		Transport: &http.Transport{
			MaxIdleConnsPerHost:   10,
			ResponseHeaderTimeout: cfg.Timeout,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.InsecureSkipVerify,
			},
		},
		RetryOnStatus: []int{502, 503, 504, 429},
		MaxRetries:    cfg.MaxRetries,
	}

	os, err := opensearch.NewClient(osConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	return &Client{
		os:    os,
		index: cfg.Index,
		log:   log.With("component", "opensearch"),
	}, nil
}

// Ping проверяет подключение к OpenSearch
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.os.Ping(
		c.os.Ping.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to ping opensearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch ping failed with status: %s", res.Status())
	}

	c.log.Debug("OpenSearch ping success", "status", res.Status())
	return nil
}

// WaitForHealthy ждет, пока OpenSearch начнет отвечать на ping
func (c *Client) WaitForHealthy(ctx context.Context, attempts int, interval time.Duration) error {
	for i := 0; i < attempts; i++ {
		if err := c.Ping(ctx); err == nil {
			return nil
		}

		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for OpenSearch: %w", ctx.Err())
			case <-time.After(interval):
			}
		}
	}

	return fmt.Errorf("opensearch not healthy after %d attempts", attempts)
}

// EnsureIndex создает индекс с маппингом событий, если его еще нет
func (c *Client) EnsureIndex(ctx context.Context) error {
	res, err := c.os.Indices.Exists(
		[]string{c.index},
		c.os.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to check if index exists: %w", err)
	}
	res.Body.Close()

	if res.StatusCode == http.StatusOK {
		c.log.Info("OpenSearch index already exists", "index", c.index)
		return nil
	}

	res, err = c.os.Indices.Create(
		c.index,
		c.os.Indices.Create.WithContext(ctx),
		c.os.Indices.Create.WithBody(strings.NewReader(eventsMapping)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		c.log.Error("OpenSearch index creation failed", "status", res.Status(), "response", string(body))
		return fmt.Errorf("failed to create index, status: %s", res.Status())
	}

	c.log.Info("OpenSearch index created successfully", "index", c.index)
	return nil
}

// CountDocuments возвращает число документов в индексе
func (c *Client) CountDocuments(ctx context.Context) (int64, error) {
	res, err := c.os.Count(
		c.os.Count.WithContext(ctx),
		c.os.Count.WithIndex(c.index),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, fmt.Errorf("count request failed with status: %s", res.Status())
	}

	var body struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to decode count response: %w", err)
	}
	return body.Count, nil
}

// Index возвращает имя индекса
func (c *Client) Index() string {
	return c.index
}
