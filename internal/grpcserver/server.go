// Package grpcserver поднимает gRPC сервер: административный сервис,
// grpc health, который повторяет агрегированный статус проверок, и reflection.
package grpcserver

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rx3lixir/ewm-service/pkg/health"
	"github.com/rx3lixir/ewm-service/pkg/logger"
	"github.com/rx3lixir/ewm-service/pkg/metrics"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const defaultHealthInterval = 10 * time.Second

// Server - gRPC сервер сервиса
type Server struct {
	grpc    *grpc.Server
	health  *grpchealth.Server
	service string
	log     logger.Logger
}

// New создает gRPC сервер с цепочкой интерцепторов: recovery, метрики, ошибки
func New(service string, admin AdminServer, log logger.Logger) *Server {
	log = log.With("component", "grpc")

	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			recoveryInterceptor(log),
			metrics.UnaryServerInterceptor(),
			errorInterceptor(log),
		),
		grpc.ChainStreamInterceptor(
			metrics.StreamServerInterceptor(),
		),
	)

	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	if admin != nil {
		RegisterAdminServer(srv, admin)
	}
	reflection.Register(srv)

	return &Server{grpc: srv, health: hs, service: service, log: log}
}

// Serve слушает addr до остановки сервера
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.ServeListener(lis)
}

// ServeListener обслуживает уже открытый listener
func (s *Server) ServeListener(lis net.Listener) error {
	s.log.Info("gRPC server is listening", "address", lis.Addr().String())
	if err := s.grpc.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("failed to serve gRPC: %w", err)
	}
	return nil
}

// SetServing выставляет статус для всего сервера и для сервиса
func (s *Server) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(s.service, st)
	s.health.SetServingStatus(AdminServiceName, st)
}

// MirrorHealth периодически выполняет проверки h и отражает итог в grpc health до отмены ctx
func (s *Server) MirrorHealth(ctx context.Context, h *health.Health, interval time.Duration) {
	if interval <= 0 {
		interval = defaultHealthInterval
	}

	update := func() {
		resp := h.Check(ctx)
		if ctx.Err() != nil {
			return
		}
		s.SetServing(resp.Status == health.StatusUp)
		if resp.Status != health.StatusUp {
			s.log.Warn("service is not serving", "checks", len(resp.Checks))
		}
	}

	update()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}

// Shutdown останавливает сервер: сначала grpc health переходит в NOT_SERVING,
// затем текущие вызовы дорабатывают до ctx.
func (s *Server) Shutdown(ctx context.Context) {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("graceful stop timed out, forcing gRPC stop")
		s.grpc.Stop()
	}
}
