package metrics

import (
	"context"
	"strings"
	"time"

	"github.com/rx3lixir/ewm-service/internal/apperr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// UnaryServerInterceptor пишет метрики unary вызовов. Сервис и метод берутся
// из полного имени, поэтому health, reflection и Admin считаются раздельно.
// Должен стоять в цепочке после перевода доменных ошибок в gRPC статус.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		service, method := SplitFullMethod(info.FullMethod)
		st := status.Convert(err)
		RecordGrpcRequest(service, method, StatusFromGrpcCode(st.Code()), time.Since(start))
		if err != nil {
			RecordGrpcError(service, method, reasonOf(err, st))
		}

		return resp, err
	}
}

// StreamServerInterceptor считает открытые стримы (health Watch, reflection)
// и пишет длительность стрима при закрытии
func StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv any,
		stream grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		service, method := SplitFullMethod(info.FullMethod)
		active := GrpcActiveStreams.WithLabelValues(service, method)
		active.Inc()
		defer active.Dec()

		start := time.Now()
		err := handler(srv, stream)

		st := status.Convert(err)
		RecordGrpcRequest(service, method, StatusFromGrpcCode(st.Code()), time.Since(start))
		return err
	}
}

// SplitFullMethod разбирает "/ewm.v1.Admin/ModerateComment" на сервис и метод
func SplitFullMethod(fullMethod string) (service, method string) {
	trimmed := strings.TrimPrefix(fullMethod, "/")
	if i := strings.LastIndex(trimmed, "/"); i > 0 {
		return trimmed[:i], trimmed[i+1:]
	}
	return "unknown", fullMethod
}

// reasonOf возвращает код доменной ошибки, для прочих ошибок имя gRPC кода
func reasonOf(err error, st *status.Status) string {
	if reason := apperr.ReasonOf(err); reason != "" {
		return string(reason)
	}
	return st.Code().String()
}

// DatabaseInterceptor обертка для database операций
func DatabaseInterceptor(operation, table string, fn func() error) error {
	start := time.Now()
	err := fn()
	RecordDatabaseOperation(operation, table, StatusFromError(err), time.Since(start))
	return err
}

// OpenSearchInterceptor обертка для OpenSearch операций
func OpenSearchInterceptor(operation, index string, fn func() error) error {
	start := time.Now()
	err := fn()
	RecordOpenSearchOperation(operation, index, StatusFromError(err), time.Since(start))
	return err
}
