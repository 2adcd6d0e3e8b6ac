package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rx3lixir/ewm-service/internal/apperr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
)

func TestHTTPMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(HTTPMiddleware)
	r.Get("/events/{eventId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	counter := HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/events/{eventId}", "404")
	before := testutil.ToFloat64(counter)

	for _, path := range []string{"/events/1", "/events/2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Fatalf("counter grew by %v, want 2", got)
	}
}

func TestRecordCascadeRejectionsIgnoresZero(t *testing.T) {
	before := testutil.ToFloat64(CascadeRejectionsTotal)
	RecordCascadeRejections(0)
	RecordCascadeRejections(3)
	if got := testutil.ToFloat64(CascadeRejectionsTotal) - before; got != 3 {
		t.Fatalf("cascade rejections grew by %v, want 3", got)
	}
}

func TestSplitFullMethod(t *testing.T) {
	tests := []struct {
		full, service, method string
	}{
		{"/ewm.v1.Admin/ModerateComment", "ewm.v1.Admin", "ModerateComment"},
		{"/grpc.health.v1.Health/Watch", "grpc.health.v1.Health", "Watch"},
		{"broken", "unknown", "broken"},
	}
	for _, tt := range tests {
		service, method := SplitFullMethod(tt.full)
		if service != tt.service || method != tt.method {
			t.Fatalf("SplitFullMethod(%q) = %q, %q", tt.full, service, method)
		}
	}
}

func TestStatusFromError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "success"},
		{apperr.NotFound("Event with id=%d was not found", 1), "not_found"},
		{apperr.Conflict(apperr.CodeCommentDuplicate, "duplicate"), "conflict"},
		{apperr.Validation(apperr.CodeInvalidArgument, "bad"), "invalid"},
		{errors.New("connection reset"), "error"},
	}
	for _, tt := range tests {
		if got := StatusFromError(tt.err); got != tt.want {
			t.Fatalf("StatusFromError(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
	if got := StatusFromGrpcCode(codes.FailedPrecondition); got != "FailedPrecondition" {
		t.Fatalf("status = %q", got)
	}
}

func TestDatabaseInterceptorSeparatesNotFound(t *testing.T) {
	counter := DatabaseOperationsTotal.WithLabelValues("select", "compilations", "not_found")
	before := testutil.ToFloat64(counter)

	err := DatabaseInterceptor("select", "compilations", func() error {
		return apperr.NotFound("Compilation with id=%d was not found", 7)
	})
	if !apperr.IsNotFound(err) {
		t.Fatalf("err = %v, want it passed through", err)
	}
	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Fatalf("not_found counter grew by %v, want 1", got)
	}
}

func TestUnaryInterceptorRecordsReason(t *testing.T) {
	interceptor := UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/ewm.v1.Admin/ModerateComment"}
	handlerErr := apperr.ToGRPCStatus(apperr.Conflict(apperr.CodeCommentNotPending, "comment is not pending"))

	requests := GrpcRequestsTotal.WithLabelValues("ewm.v1.Admin", "ModerateComment", "FailedPrecondition")
	reasons := GrpcErrorsTotal.WithLabelValues("ewm.v1.Admin", "ModerateComment", string(apperr.CodeCommentNotPending))
	beforeRequests, beforeReasons := testutil.ToFloat64(requests), testutil.ToFloat64(reasons)

	_, err := interceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return nil, handlerErr
	})
	if err != handlerErr {
		t.Fatalf("err = %v, want handler error", err)
	}
	if got := testutil.ToFloat64(requests) - beforeRequests; got != 1 {
		t.Fatalf("requests grew by %v, want 1", got)
	}
	if got := testutil.ToFloat64(reasons) - beforeReasons; got != 1 {
		t.Fatalf("reason counter grew by %v, want 1", got)
	}
}

func TestStreamInterceptorTracksActiveStreams(t *testing.T) {
	interceptor := StreamServerInterceptor()
	info := &grpc.StreamServerInfo{FullMethod: "/grpc.health.v1.Health/Watch", IsServerStream: true}
	active := GrpcActiveStreams.WithLabelValues("grpc.health.v1.Health", "Watch")
	before := testutil.ToFloat64(active)

	var during float64
	err := interceptor(nil, nil, info, func(any, grpc.ServerStream) error {
		during = testutil.ToFloat64(active)
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if during-before != 1 {
		t.Fatalf("active streams during handler = %v, want %v", during, before+1)
	}
	if got := testutil.ToFloat64(active); got != before {
		t.Fatalf("active streams after close = %v, want %v", got, before)
	}
}
