package db

import (
	"context"
	"fmt"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
)

type NewDBPoolParams struct {
	DBHost         string
	DBPort         string
	DBName         string
	TracingEnabled bool
}

func NewDBPool(ctx context.Context, params NewDBPoolParams) (*pgxpool.Pool, error) {
	connString := fmt.Sprintf(
		"postgres://postgres@%s:%s/%s",
		params.DBHost, params.DBPort, params.DBName,
	)
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	if params.TracingEnabled {
		poolConfig.ConnConfig.Tracer = otelpgx.NewTracer()
	}

	db, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	return db, nil
}

// postsTableSQL creates the table backing the JSONB document store.
// gen_random_uuid is built in since postgres 13.
const postsTableSQL = `
CREATE TABLE IF NOT EXISTS posts
(
    id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    doc          JSONB       NOT NULL,
    publish_date TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_posts_publish_date ON posts USING btree (publish_date);
`

// EnsurePostsTable is idempotent and runs on every service start
func EnsurePostsTable(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, postsTableSQL); err != nil {
		return fmt.Errorf("create posts table: %w", err)
	}
	return nil
}
