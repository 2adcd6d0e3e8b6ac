package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rx3lixir/ewm-service/pkg/consistency"
)

// RowQuerier - часть pgxpool.Pool, нужная проверкам схемы
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pinger - внешняя зависимость, которую достаточно пропинговать
type Pinger interface {
	Health(ctx context.Context) error
}

// ConsistencyReporter источник результата сверки данных
type ConsistencyReporter interface {
	CheckConsistency(ctx context.Context) (*consistency.CheckResult, error)
}

// PostgresChecker проверка PostgreSQL через pgxpool
func PostgresChecker(pool *pgxpool.Pool) Checker {
	return CheckerFunc(func(ctx context.Context) CheckResult {
		start := time.Now()

		err := pool.Ping(ctx)
		duration := time.Since(start)

		if err != nil {
			return down(err, map[string]any{"duration_ms": duration.Milliseconds()})
		}

		stats := pool.Stat()
		return CheckResult{
			Status: StatusUp,
			Details: map[string]any{
				"duration_ms":    duration.Milliseconds(),
				"total_conns":    stats.TotalConns(),
				"idle_conns":     stats.IdleConns(),
				"acquired_conns": stats.AcquiredConns(),
			},
		}
	})
}

// MigrationChecker проверяет последнюю примененную версию схемы.
// Пустой expected означает, что достаточно любой примененной миграции.
func MigrationChecker(db RowQuerier, expected string) Checker {
	return CheckerFunc(func(ctx context.Context) CheckResult {
		var current string
		err := db.QueryRow(ctx, `SELECT version FROM schema_migrations ORDER BY version DESC LIMIT 1`).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return down(errors.New("no migrations applied"), nil)
		}
		if err != nil {
			return down(fmt.Errorf("failed to read schema version: %w", err), nil)
		}

		details := map[string]any{"current_version": current}
		if expected != "" {
			details["expected_version"] = expected
			if current != expected {
				return down(fmt.Errorf("schema version %s, expected %s", current, expected), details)
			}
		}
		return CheckResult{Status: StatusUp, Details: details}
	})
}

// SimpleTableChecker проверяет наличие обязательных таблиц
func SimpleTableChecker(db RowQuerier, tables []string) Checker {
	return CheckerFunc(func(ctx context.Context) CheckResult {
		var missing []string
		for _, table := range tables {
			var exists bool
			if err := db.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, table).Scan(&exists); err != nil {
				return down(fmt.Errorf("failed to check table %s: %w", table, err), nil)
			}
			if !exists {
				missing = append(missing, table)
			}
		}

		details := map[string]any{"tables": tables}
		if len(missing) > 0 {
			details["missing"] = missing
			return down(fmt.Errorf("missing tables: %v", missing), details)
		}
		return CheckResult{Status: StatusUp, Details: details}
	})
}

// ConsistencyChecker переводит результат сверки в статус. Расхождения сверх
// maxInconsistencies дают DOWN, меньшее число только отражается в деталях.
func ConsistencyChecker(reporter ConsistencyReporter, maxInconsistencies int) Checker {
	return CheckerFunc(func(ctx context.Context) CheckResult {
		result, err := reporter.CheckConsistency(ctx)
		if err != nil {
			return down(fmt.Errorf("consistency check failed: %w", err), nil)
		}

		details := map[string]any{
			"is_consistent":     result.IsConsistent,
			"events_checked":    result.EventsChecked,
			"mismatches":        len(result.Mismatches),
			"missing_in_index":  len(result.MissingInIndex),
			"orphaned_in_index": len(result.OrphanedInIdx),
			"checked_at":        result.Timestamp.Format(time.RFC3339),
		}
		if n := result.Inconsistencies(); n > maxInconsistencies {
			return down(fmt.Errorf("%d inconsistencies found, allowed %d", n, maxInconsistencies), details)
		}
		return CheckResult{Status: StatusUp, Details: details}
	})
}

// PingChecker проверка внешней зависимости по ее Health
func PingChecker(p Pinger) Checker {
	return CheckerFunc(func(ctx context.Context) CheckResult {
		start := time.Now()
		err := p.Health(ctx)
		details := map[string]any{"duration_ms": time.Since(start).Milliseconds()}
		if err != nil {
			return down(err, details)
		}
		return CheckResult{Status: StatusUp, Details: details}
	})
}

func down(err error, details map[string]any) CheckResult {
	return CheckResult{Status: StatusDown, Error: err.Error(), Details: details}
}
