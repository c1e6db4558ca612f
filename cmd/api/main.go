package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"disputedesk/audit"
	"disputedesk/casenumber"
	"disputedesk/config"
	"disputedesk/db"
	"disputedesk/dispute"
	"disputedesk/logging"
)

func main() {
	if err := run(context.Background(), os.Getenv("DISPUTEDESK_CONFIG")); err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(cfg.Log)

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("bootstrap database pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	emitter, closeEmitter, err := audit.FromConfig(cfg.Audit, logger)
	if err != nil {
		return fmt.Errorf("audit sink: %w", err)
	}
	defer closeEmitter(ctx)

	gateway := dispute.NewGateway()
	numbers := casenumber.New(gateway, cfg.CaseNumber.Allocator(), logger)
	svc := dispute.NewService(pool, gateway, numbers, emitter, logger)

	logger.Info("dispute workspace service ready",
		"service_ready", svc != nil,
		"audit_sink", cfg.Audit.Sink,
		"case_number_prefix", numbers.Config().Prefix,
		"case_number_attempts", numbers.Config().MaxAttempts,
	)
	return nil
}
