package infra

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Harness owns the database used by integration and stress tests: a container,
// a reused DSN or a local PostgreSQL, with migrations applied.
type Harness struct {
	container *PGContainer
	pool      *pgxpool.Pool
	teardown  func(context.Context) error
	dsn       string
}

// NewHarness resolves a database in this order: overrideDSN, STRESS_TEST_PG_DSN,
// a Docker container, a local PostgreSQL. Reused databases get an isolated
// schema that is dropped on Close.
func NewHarness(ctx context.Context, overrideDSN string) (*Harness, error) {
	var (
		pgC *PGContainer
		dsn string
		err error
	)
	switch {
	case overrideDSN != "" || os.Getenv("STRESS_TEST_PG_DSN") != "":
		pgC, dsn, err = StartPostgres16(ctx, overrideDSN)
	case dockerAvailable(ctx):
		pgC, dsn, err = StartPostgres16(ctx, "")
	default:
		pgC = &PGContainer{}
		dsn, err = InitLocalDatabase(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve database: %w", err)
	}

	pool, teardown, err := ApplyMigrations(ctx, dsn, pgC.Shared())
	if err != nil {
		_ = pgC.Terminate(ctx)
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &Harness{
		container: pgC,
		pool:      pool,
		teardown:  teardown,
		dsn:       dsn,
	}, nil
}

// Pool exposes the configured pgx pool.
func (h *Harness) Pool() *pgxpool.Pool {
	return h.pool
}

// DSN returns the connection string for direct connections (e.g., chaos).
func (h *Harness) DSN() string {
	return h.dsn
}

// Close tears down resources.
func (h *Harness) Close(ctx context.Context) error {
	if h.pool != nil {
		h.pool.Close()
	}
	var err error
	if h.teardown != nil {
		err = h.teardown(ctx)
	}
	if termErr := h.container.Terminate(ctx); termErr != nil && err == nil {
		err = termErr
	}
	return err
}

// Reset empties the dispute tables between scenarios.
func (h *Harness) Reset(ctx context.Context) error {
	tx, err := h.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("reset begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "TRUNCATE TABLE dispute_evidence, dispute_notes, dispute_tasks, dispute_cases"); err != nil {
		return fmt.Errorf("truncate dispute tables: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("reset commit: %w", err)
	}
	return nil
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}
