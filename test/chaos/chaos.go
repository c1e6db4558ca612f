package chaos

import (
	"context"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TerminateRandomBackend occasionally kills a backend serving this database so
// in-flight transactions fail mid-operation.
func TerminateRandomBackend(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if rand.Intn(5) == 0 {
				_, _ = pool.Exec(ctx, `SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = current_database() AND pid <> pg_backend_pid() ORDER BY random() LIMIT 1`)
			}
		}
	}
}

// HoldCaseLock grabs a random case FOR UPDATE and sits on it, forcing writers
// of that case to queue behind the lock.
func HoldCaseLock(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		var id string
		if err := tx.QueryRow(ctx, `SELECT id FROM dispute_cases ORDER BY random() LIMIT 1 FOR UPDATE`).Scan(&id); err == nil {
			time.Sleep(time.Duration(50+rand.Intn(150)) * time.Millisecond)
		}
		_ = tx.Rollback(ctx)
		time.Sleep(time.Duration(200+rand.Intn(300)) * time.Millisecond)
	}
}
