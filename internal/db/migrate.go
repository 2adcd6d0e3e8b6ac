package db

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const migrationTable = "schema_migrations"

// ApplyMigrations выполняет встроенные миграции, каждую не более одного раза.
// Возвращает имя последней примененной миграции.
func ApplyMigrations(ctx context.Context, pool *pgxpool.Pool, migrationFS fs.FS) (string, error) {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return "", fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	createSQL := `CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`
	if _, err := pool.Exec(ctx, createSQL); err != nil {
		return "", fmt.Errorf("ensure migration table: %w", err)
	}

	var latest string
	for _, file := range files {
		version := strings.TrimSuffix(file, ".sql")
		latest = version

		var applied bool
		err := pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM "+migrationTable+" WHERE version = $1)", version).Scan(&applied)
		if err != nil {
			return "", fmt.Errorf("check migration %s: %w", file, err)
		}
		if applied {
			continue
		}

		content, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return "", fmt.Errorf("read migration %s: %w", file, err)
		}

		upSQL := extractUpMigration(string(content))
		if strings.TrimSpace(upSQL) == "" {
			continue
		}

		err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, upSQL); err != nil {
				return fmt.Errorf("exec migration %s: %w", file, err)
			}
			if _, err := tx.Exec(ctx, "INSERT INTO "+migrationTable+" (version) VALUES ($1) ON CONFLICT DO NOTHING", version); err != nil {
				return fmt.Errorf("record migration %s: %w", file, err)
			}
			return nil
		})
		if err != nil {
			return "", err
		}
	}

	return latest, nil
}

// extractUpMigration возвращает SQL из секции "-- +migrate Up"
func extractUpMigration(content string) string {
	upIdx := strings.Index(content, "-- +migrate Up")
	if upIdx == -1 {
		return content
	}
	downIdx := strings.Index(content, "-- +migrate Down")
	if downIdx == -1 {
		return content[upIdx+len("-- +migrate Up"):]
	}
	return content[upIdx+len("-- +migrate Up") : downIdx]
}
