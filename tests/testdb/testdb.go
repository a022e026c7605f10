//go:build integration

// Package testdb runs the PostgreSQL the integration tests talk to.
package testdb

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/trezcool/escola/storage/database"
)

// Handle is a migrated database inside a disposable container.
type Handle struct {
	DB        *sqlx.DB
	DSN       string
	container *postgres.PostgresContainer
}

// Start boots postgres, opens it through `driver` ("postgres" or "pgx") and applies the migrations.
func Start(ctx context.Context, driver string) (*Handle, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	pg, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("escola"),
		postgres.WithUsername("escola"),
		postgres.WithPassword("escola"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	if err != nil {
		return nil, errors.Wrap(err, "starting postgres")
	}
	h := &Handle{container: pg}

	if h.DSN, err = pg.ConnectionString(ctx, "sslmode=disable", "timezone=utc"); err != nil {
		h.Close()
		return nil, errors.Wrap(err, "building dsn")
	}
	if h.DB, err = database.OpenDSN(driver, h.DSN); err != nil {
		h.Close()
		return nil, err
	}
	if err = database.Migrate(ctx, h.DB.DB); err != nil {
		h.Close()
		return nil, err
	}
	return h, nil
}

// Truncate empties every table but the seeded fee tiers.
func (h *Handle) Truncate(t *testing.T) {
	t.Helper()
	q := `TRUNCATE activity, presence_session, account_grant, permission, account, student, school, grade, timeslot
	RESTART IDENTITY CASCADE`
	if _, err := h.DB.Exec(q); err != nil {
		t.Fatalf("Truncate(): %v", err)
	}
}

func (h *Handle) Close() {
	if h.DB != nil {
		_ = h.DB.Close()
	}
	if h.container != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = h.container.Terminate(ctx)
	}
}
