// Package health агрегирует проверки зависимостей сервиса в один статус
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusUp   Status = "UP"
	StatusDown Status = "DOWN"
)

// CheckResult результат одной проверки
type CheckResult struct {
	Status  Status         `json:"status"`
	Error   string         `json:"error,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Response агрегированный ответ всех проверок
type Response struct {
	Status    Status                 `json:"status"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

type Checker interface {
	Check(ctx context.Context) CheckResult
}

// CheckerFunc позволяет использовать функцию как Checker
type CheckerFunc func(ctx context.Context) CheckResult

func (f CheckerFunc) Check(ctx context.Context) CheckResult {
	return f(ctx)
}

// Health реестр проверок
type Health struct {
	service string
	version string
	timeout time.Duration

	mu     sync.RWMutex
	checks map[string]Checker
}

// New создает реестр проверок сервиса
func New(service, version string, opts ...Option) *Health {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Health{
		service: service,
		version: version,
		timeout: cfg.Timeout,
		checks:  make(map[string]Checker),
	}
}

// AddCheck регистрирует проверку под именем name, повторная регистрация заменяет прежнюю
func (h *Health) AddCheck(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = checker
}

// Check выполняет все проверки параллельно, каждую со своим таймаутом.
// Общий статус DOWN, если упала хотя бы одна проверка.
func (h *Health) Check(ctx context.Context) Response {
	h.mu.RLock()
	checks := make(map[string]Checker, len(h.checks))
	for name, c := range h.checks {
		checks[name] = c
	}
	h.mu.RUnlock()

	var (
		mu      sync.Mutex
		results = make(map[string]CheckResult, len(checks))
		g       errgroup.Group
	)
	for name, checker := range checks {
		name, checker := name, checker
		g.Go(func() error {
			res := h.runCheck(ctx, checker)
			mu.Lock()
			results[name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	status := StatusUp
	for _, res := range results {
		if res.Status != StatusUp {
			status = StatusDown
		}
	}

	return Response{
		Status:    status,
		Service:   h.service,
		Version:   h.version,
		Timestamp: time.Now().UTC(),
		Checks:    results,
	}
}

func (h *Health) runCheck(ctx context.Context, checker Checker) (res CheckResult) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	done := make(chan CheckResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- CheckResult{Status: StatusDown, Error: fmt.Sprintf("check panicked: %v", r)}
			}
		}()
		done <- checker.Check(ctx)
	}()

	select {
	case res = <-done:
		return res
	case <-ctx.Done():
		return CheckResult{Status: StatusDown, Error: fmt.Sprintf("check timed out after %s", h.timeout)}
	}
}
