package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rx3lixir/ewm-service/internal/apperr"
	"google.golang.org/grpc/codes"
)

// Метрики для HTTP запросов
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Метрики для gRPC запросов
var (
	// Счетчик всех gRPC запросов
	GrpcRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grpc_requests_total",
			Help: "Total number of gRPC requests",
		},
		[]string{"service", "method", "status"},
	)

	// Гистограмма времени выполнения gRPC запросов
	GrpcRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grpc_request_duration_seconds",
			Help:    "Duration of gRPC requests in seconds",
			Buckets: prometheus.DefBuckets, // 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10
		},
		[]string{"service", "method"},
	)

	// Ошибки gRPC по коду доменной ошибки
	GrpcErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grpc_errors_total",
			Help: "Total number of failed gRPC requests by error reason",
		},
		[]string{"service", "method", "reason"},
	)

	GrpcActiveStreams = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "grpc_active_streams",
			Help: "Number of open gRPC server streams",
		},
		[]string{"service", "method"},
	)
)

// Метрики для базы данных
var (
	// Счетчик database операций
	DatabaseOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_operations_total",
			Help: "Total number of database operations",
		},
		[]string{"operation", "table", "status"},
	)

	// Время выполнения database запросов
	DatabaseOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation", "table"},
	)

	// Размер connection pool
	DatabasePoolConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "database_pool_connections",
			Help: "Number of database pool connections",
		},
		[]string{"state"}, // active, idle, total
	)
)

// Метрики для OpenSearch
var (
	// Счетчик OpenSearch операций
	OpenSearchOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opensearch_operations_total",
			Help: "Total number of OpenSearch operations",
		},
		[]string{"operation", "index", "status"},
	)

	// Время выполнения OpenSearch операций
	OpenSearchOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opensearch_operation_duration_seconds",
			Help:    "Duration of OpenSearch operations in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"operation", "index"},
	)

	// Количество документов в индексе
	OpenSearchDocumentsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "opensearch_documents_total",
			Help: "Total number of documents in OpenSearch index",
		},
		[]string{"index"},
	)
)

// Бизнес метрики
var (
	// Переходы жизненного цикла событий
	EventTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_transitions_total",
			Help: "Total number of event lifecycle transitions",
		},
		[]string{"action", "state"},
	)

	// Итоговые статусы заявок на участие
	ParticipationDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "participation_decisions_total",
			Help: "Total number of participation status decisions",
		},
		[]string{"operation", "status"},
	)

	// Заявки, отклоненные из-за заполнения события посреди пакетного подтверждения
	CascadeRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "participation_cascade_rejections_total",
			Help: "Total number of participation requests rejected by the capacity cascade",
		},
	)

	CommentModerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comment_moderations_total",
			Help: "Total number of comment status changes",
		},
		[]string{"operation", "status"},
	)

	RatingRecomputesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "event_rating_recomputes_total",
			Help: "Total number of event rating recomputations",
		},
	)

	// Расхождения производных полей, найденные проверкой консистентности
	ConsistencyDriftEvents = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "consistency_drift_events",
			Help: "Number of events whose derived fields differ from the recomputed values",
		},
		[]string{"field"}, // confirmed_requests, rating
	)

	// Время выполнения поиска
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "search_duration_seconds",
			Help:    "Duration of public event listing",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"backend"}, // postgres, opensearch
	)
)

// Системные метрики
var (
	// Информация о сервисе
	ServiceInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "service_info",
			Help: "Information about the service",
		},
		[]string{"version", "service", "environment"},
	)

	// Время работы сервиса
	ServiceUptime = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "service_uptime_seconds",
			Help: "Service uptime in seconds",
		},
		[]string{"service"},
	)
)

// Хелперы для удобного использования метрик

// RecordHTTPRequest записывает метрику HTTP запроса
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordGrpcRequest записывает метрику gRPC запроса
func RecordGrpcRequest(service, method, status string, duration time.Duration) {
	GrpcRequestsTotal.WithLabelValues(service, method, status).Inc()
	GrpcRequestDuration.WithLabelValues(service, method).Observe(duration.Seconds())
}

// RecordGrpcError записывает неуспешный gRPC запрос с кодом доменной ошибки
func RecordGrpcError(service, method, reason string) {
	GrpcErrorsTotal.WithLabelValues(service, method, reason).Inc()
}

// RecordDatabaseOperation записывает метрику database операции
func RecordDatabaseOperation(operation, table, status string, duration time.Duration) {
	DatabaseOperationsTotal.WithLabelValues(operation, table, status).Inc()
	DatabaseOperationDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordOpenSearchOperation записывает метрику OpenSearch операции
func RecordOpenSearchOperation(operation, index, status string, duration time.Duration) {
	OpenSearchOperationsTotal.WithLabelValues(operation, index, status).Inc()
	OpenSearchOperationDuration.WithLabelValues(operation, index).Observe(duration.Seconds())
}

// RecordSearch записывает время публичного листинга
func RecordSearch(backend string, duration time.Duration) {
	SearchDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordEventTransition записывает переход состояния события
func RecordEventTransition(action, state string) {
	EventTransitionsTotal.WithLabelValues(action, state).Inc()
}

// RecordParticipationDecision записывает статус, в котором оказалась заявка
func RecordParticipationDecision(operation, status string) {
	ParticipationDecisionsTotal.WithLabelValues(operation, status).Inc()
}

// RecordCascadeRejections записывает заявки, отклоненные каскадом
func RecordCascadeRejections(n int) {
	if n > 0 {
		CascadeRejectionsTotal.Add(float64(n))
	}
}

// RecordCommentModeration записывает изменение статуса комментария
func RecordCommentModeration(operation, status string) {
	CommentModerationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordRatingRecompute записывает пересчет рейтинга
func RecordRatingRecompute() {
	RatingRecomputesTotal.Inc()
}

// SetConsistencyDrift обновляет количество событий с расхождениями
func SetConsistencyDrift(field string, count int) {
	ConsistencyDriftEvents.WithLabelValues(field).Set(float64(count))
}

// SetServiceInfo устанавливает информацию о сервисе
func SetServiceInfo(version, service, environment string) {
	ServiceInfo.WithLabelValues(version, service, environment).Set(1)
}

// UpdateServiceUptime обновляет время работы сервиса
func UpdateServiceUptime(service string, startTime time.Time) {
	ServiceUptime.WithLabelValues(service).Set(time.Since(startTime).Seconds())
}

// UpdateDatabasePoolMetrics обновляет метрики connection pool
func UpdateDatabasePoolMetrics(active, idle, total int32) {
	DatabasePoolConnections.WithLabelValues("active").Set(float64(active))
	DatabasePoolConnections.WithLabelValues("idle").Set(float64(idle))
	DatabasePoolConnections.WithLabelValues("total").Set(float64(total))
}

// UpdateOpenSearchDocuments обновляет количество документов в индексе
func UpdateOpenSearchDocuments(index string, count int64) {
	OpenSearchDocumentsTotal.WithLabelValues(index).Set(float64(count))
}

// StatusFromError возвращает статус операции. Доменные not found и conflict
// отделены от настоящих сбоев хранилища.
func StatusFromError(err error) string {
	if err == nil {
		return "success"
	}
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return "not_found"
	case apperr.KindConflict:
		return "conflict"
	case apperr.KindValidation:
		return "invalid"
	default:
		return "error"
	}
}

// StatusFromGrpcCode возвращает имя gRPC кода: OK, NotFound, FailedPrecondition...
func StatusFromGrpcCode(code codes.Code) string {
	return code.String()
}
