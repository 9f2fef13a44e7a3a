package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"daily-feature-store/internal/observability"
	"daily-feature-store/internal/storage"
)

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
}

// NewPool creates a new Postgres connection pool.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() {
	p.Pool.Close()
}

// Table names are fixed; schemas come from configuration and are allow-listed.
const (
	pricesTable   = "prices_daily"
	featuresTable = "daily_features"
)

// qualified returns a quoted schema.table identifier after validating the schema.
func qualified(schema, table string, extraSchemas []string) (string, error) {
	if err := storage.ValidateSchema(schema, extraSchemas...); err != nil {
		return "", err
	}
	return pgx.Identifier{schema, table}.Sanitize(), nil
}

// RenderSchemas substitutes {{raw_schema}} and {{analytics_schema}} in migration
// SQL with quoted identifiers. Schemas are validated first.
func RenderSchemas(sql string, schemas storage.Schemas, extraSchemas ...string) (string, error) {
	if err := schemas.Validate(extraSchemas...); err != nil {
		return "", err
	}
	r := strings.NewReplacer(
		"{{raw_schema}}", pgx.Identifier{schemas.Raw}.Sanitize(),
		"{{analytics_schema}}", pgx.Identifier{schemas.Analytics}.Sanitize(),
	)
	return r.Replace(sql), nil
}

// PostgreSQL error codes
const (
	pgErrUniqueViolation = "23505" // unique_violation
)

// isDuplicateKeyError checks if error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}

	return false
}

// observe records query duration and errors for one store operation.
func observe(operation string, start time.Time, err error) {
	observability.RecordDBQuery("postgres", operation, time.Since(start).Seconds(), err)
}
