package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rx3lixir/ewm-service/pkg/logger"
)

const uptimeInterval = 30 * time.Second

// MetricsServer HTTP сервер для метрик Prometheus
type MetricsServer struct {
	server    *http.Server
	logger    logger.Logger
	startTime time.Time
}

// NewMetricsServer создает новый сервер метрик
func NewMetricsServer(port string, logger logger.Logger) *MetricsServer {
	if port == "" {
		port = ":8091"
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	})

	server := &http.Server{
		Addr:         port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &MetricsServer{
		server:    server,
		logger:    logger.With("component", "metrics"),
		startTime: time.Now(),
	}
}

// Start запускает сервер метрик
func (ms *MetricsServer) Start() error {
	ms.logger.Info("Starting metrics server",
		"address", ms.server.Addr,
		"endpoints", []string{"/metrics", "/ready"},
	)

	if err := ms.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server failed: %w", err)
	}

	return nil
}

// Shutdown грациозно останавливает сервер
func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	ms.logger.Info("Shutting down metrics server")
	return ms.server.Shutdown(ctx)
}

// GetUptime возвращает время работы сервера
func (ms *MetricsServer) GetUptime() time.Duration {
	return time.Since(ms.startTime)
}

// StartUptimeUpdater обновляет метрику uptime до отмены ctx
func (ms *MetricsServer) StartUptimeUpdater(ctx context.Context, serviceName string) {
	go func() {
		ticker := time.NewTicker(uptimeInterval)
		defer ticker.Stop()

		UpdateServiceUptime(serviceName, ms.startTime)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				UpdateServiceUptime(serviceName, ms.startTime)
			}
		}
	}()
}

// PoolStats источник статистики пула соединений
type PoolStats func() (acquired, idle, total int32)

// StartPoolUpdater периодически выгружает статистику пула соединений
func (ms *MetricsServer) StartPoolUpdater(ctx context.Context, interval time.Duration, stats PoolStats) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				UpdateDatabasePoolMetrics(stats())
			}
		}
	}()
}
