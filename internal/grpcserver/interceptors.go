package grpcserver

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/rx3lixir/ewm-service/internal/apperr"
	"github.com/rx3lixir/ewm-service/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// recoveryInterceptor превращает панику обработчика в codes.Internal
func recoveryInterceptor(log logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic in grpc handler", "method", info.FullMethod, "panic", r, "stack", string(debug.Stack()))
				err = status.Error(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

// errorInterceptor переводит доменные ошибки в gRPC статусы
func errorInterceptor(log logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err == nil {
			log.Debug("grpc request completed", "method", info.FullMethod, "duration_ms", time.Since(start).Milliseconds())
			return resp, nil
		}

		if apperr.KindOf(err) == apperr.KindInternal {
			log.Error("grpc request failed", "method", info.FullMethod, "error", err)
		} else {
			log.Warn("grpc request rejected", "method", info.FullMethod, "code", apperr.CodeOf(err), "error", err)
		}
		return nil, apperr.ToGRPCStatus(err)
	}
}
