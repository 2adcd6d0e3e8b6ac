package dataloader

import "time"

const DefaultBatchSize = 100

// SyncStatus представляет состояние синхронизации между PostgreSQL и OpenSearch
type SyncStatus struct {
	PostgreSQLCount int64     `json:"postgresql_count"`
	OpenSearchCount int64     `json:"opensearch_count"`
	InSync          bool      `json:"in_sync"`
	Difference      int64     `json:"difference"`
	LastChecked     time.Time `json:"last_checked"`
}

// SyncResult содержит результаты операции синхронизации
type SyncResult struct {
	Success         bool          `json:"success"`
	EventsProcessed int           `json:"events_processed"`
	EventsSucceeded int           `json:"events_succeeded"`
	EventsFailed    int           `json:"events_failed"`
	Duration        time.Duration `json:"duration"`
	Error           string        `json:"error,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	CompletedAt     time.Time     `json:"completed_at"`
}
