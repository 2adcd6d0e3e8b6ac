package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/rx3lixir/ewm-service/pkg/logger"
)

// Server структура для healthcheck сервера
type Server struct {
	config    Config
	health    *Health
	server    *http.Server
	log       logger.Logger
	startedAt time.Time
}

// NewServer создает новый healthcheck сервер. Проверки добавляются через Health().AddCheck.
func NewServer(log logger.Logger, opts ...Option) *Server {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	s := &Server{
		config:    config,
		health:    New(config.ServiceName, config.Version, WithTimeout(config.Timeout)),
		log:       log.With("component", "health"),
		startedAt: time.Now(),
	}
	s.setupRoutes()
	return s
}

// Health возвращает реестр проверок
func (s *Server) Health() *Health {
	return s.health
}

// Config возвращает итоговую конфигурацию сервера
func (s *Server) Config() Config {
	return s.config
}

func (s *Server) setupRoutes() {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/live", s.liveHandler)
	mux.HandleFunc("/info", s.infoHandler)

	s.server = &http.Server{
		Addr:         s.config.Port,
		Handler:      mux,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// Handler возвращает HTTP обработчик сервера
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	response := s.health.Check(r.Context())

	statusCode := http.StatusOK
	if response.Status == StatusDown {
		statusCode = http.StatusServiceUnavailable
		s.log.Warn("health check is failing", "checks", len(response.Checks))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// liveHandler простая проверка живости сервиса
func (s *Server) liveHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ALIVE"))
}

func (s *Server) infoHandler(w http.ResponseWriter, _ *http.Request) {
	info := map[string]any{
		"service":    s.config.ServiceName,
		"version":    s.config.Version,
		"started_at": s.startedAt.Format(time.RFC3339),
		"go_version": runtime.Version(),
		"endpoints": map[string]string{
			"health": "/health",
			"live":   "/live",
			"info":   "/info",
		},
	}
	if len(s.config.RequiredTables) > 0 {
		info["required_tables"] = s.config.RequiredTables
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(info)
}

// Start запускает healthcheck сервер
func (s *Server) Start() error {
	s.log.Info("Starting health check server",
		"address", s.server.Addr,
		"service", s.config.ServiceName,
		"version", s.config.Version,
	)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("health server error: %w", err)
	}
	return nil
}

// Shutdown грациозно останавливает сервер
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down health check server")
	return s.server.Shutdown(ctx)
}

// IsHealthy возвращает true если все проверки проходят
func (s *Server) IsHealthy(ctx context.Context) bool {
	return s.health.Check(ctx).Status == StatusUp
}
