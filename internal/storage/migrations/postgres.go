package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"daily-feature-store/internal/storage"
	"daily-feature-store/internal/storage/postgres"
)

// RunPostgresMigrations applies all embedded SQL files in lexical order,
// with schema placeholders rendered from schemas.
// Migrations are expected to be idempotent.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool, schemas storage.Schemas, extraSchemas ...string) error {
	files, err := sqlFiles(PostgresFS, "postgres")
	if err != nil {
		return fmt.Errorf("read embedded postgres migrations: %w", err)
	}

	for _, file := range files {
		data, err := fs.ReadFile(PostgresFS, "postgres/"+file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		sql, err := postgres.RenderSchemas(string(data), schemas, extraSchemas...)
		if err != nil {
			return fmt.Errorf("render migration %s: %w", file, err)
		}
		if _, err := pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
	}

	return nil
}

// sqlFiles lists .sql files under dir, sorted by name (001_, 002_, etc.).
func sqlFiles(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}
