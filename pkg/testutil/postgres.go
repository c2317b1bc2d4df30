package testutil

import (
	"context"
	"io/fs"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	pgutil "github.com/bibbank/invoice-anomaly/pkg/postgres"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance.
type PostgresContainer struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	DSN       string
}

// NewPostgresContainer starts a PostgreSQL container and registers its cleanup with t.
func NewPostgresContainer(ctx context.Context, t *testing.T) *PostgresContainer {
	t.Helper()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("anomalydb"),
		postgres.WithUsername("anomaly"),
		postgres.WithPassword("anomaly"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	pc := &PostgresContainer{Container: pgContainer}
	t.Cleanup(func() { pc.cleanup(t) })

	pc.DSN, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	pc.Pool, err = pgutil.NewPoolFromDSN(ctx, pc.DSN, 4, 0)
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}

	return pc
}

// Migrate applies the migrations in dir of fsys through golang-migrate.
func (pc *PostgresContainer) Migrate(t *testing.T, fsys fs.FS, dir string) {
	t.Helper()
	if err := pgutil.RunMigrations(pc.DSN, fsys, dir); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
}

func (pc *PostgresContainer) cleanup(t *testing.T) {
	if pc.Pool != nil {
		pc.Pool.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := pc.Container.Terminate(ctx); err != nil {
		t.Logf("warning: failed to terminate postgres container: %v", err)
	}
}
