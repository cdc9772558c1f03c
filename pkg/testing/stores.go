package testing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/2beens/blogposts/internal/db"
)

// GetMongoClient connects to MONGO_URI (mongodb://localhost:27017 by default)
// and returns the client with a database name unique to the calling test.
// The client is disconnected on test cleanup.
func GetMongoClient(t *testing.T) (*mongo.Client, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	uri := envOr("MONGO_URI", "mongodb://localhost:27017")
	t.Logf("using mongo: [%s]", uri)

	client, err := db.NewMongoClient(ctx, db.NewMongoClientParams{
		URI:     uri,
		AppName: "blogposts-test",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := client.Disconnect(context.Background()); err != nil {
			t.Logf("mongo disconnect: %s", err)
		}
	})

	return client, fmt.Sprintf("blogposts_test_%d", time.Now().UnixNano())
}

// GetPostgresPool opens a pool to POSTGRES_HOST/POSTGRES_PORT, database
// POSTGRES_DB (blogposts_test by default), and makes sure the posts table exists.
func GetPostgresPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	host := envOr("POSTGRES_HOST", "localhost")
	t.Logf("using postres host: %s", host)

	pool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		DBHost: host,
		DBPort: envOr("POSTGRES_PORT", "5432"),
		DBName: envOr("POSTGRES_DB", "blogposts_test"),
	})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.EnsurePostsTable(ctx, pool))
	return pool
}
