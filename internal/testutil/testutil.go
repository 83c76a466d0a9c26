// Package testutil holds helpers shared by integration tests. Tests that
// need PostgreSQL or Redis are skipped unless TEST_DATABASE_URL or
// TEST_REDIS_URL is set; TEST_REQUIRE_INFRA=true turns the skip into a
// failure.
package testutil

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"jobmate/discovery-service/internal/db"
)

func requireInfra() bool {
	v := strings.ToLower(os.Getenv("TEST_REQUIRE_INFRA"))
	return v == "1" || v == "true" || v == "yes"
}

func skipOrFail(t testing.TB, format string, args ...any) {
	t.Helper()
	if requireInfra() {
		t.Fatalf(format, args...)
	}
	t.Skipf(format, args...)
}

// SetupTestPostgres connects to TEST_DATABASE_URL and truncates the
// pipeline tables once the caller has migrated. The pool is closed on
// cleanup.
func SetupTestPostgres(t testing.TB) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		skipOrFail(t, "TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := db.NewPostgresPool(ctx, url)
	if err != nil {
		skipOrFail(t, "postgres not available for testing: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// TruncateAll empties every pipeline table.
func TruncateAll(t testing.TB, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`TRUNCATE posting_embeddings, applications, job_feed, search_configs, user_profiles`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

// SetupTestRedis connects to TEST_REDIS_URL and flushes the selected DB.
func SetupTestRedis(t testing.TB) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		skipOrFail(t, "TEST_REDIS_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := db.NewRedisClient(ctx, url)
	if err != nil {
		skipOrFail(t, "redis not available for testing: %v", err)
	}
	client.FlushDB(ctx)
	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Logf("warning: close redis client: %v", err)
		}
	})
	return client
}

// Day returns midnight UTC of 2025-01-01 plus n days. Scenario tests count
// in days from it.
func Day(n int) time.Time {
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}
