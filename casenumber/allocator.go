// Package casenumber resolves the short, human-shareable codes that identify
// dispute cases across every owner.
package casenumber

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"disputedesk/retry"
)

var (
	// ErrConflict signals an explicitly proposed number is already held by another case.
	ErrConflict = errors.New("casenumber: already in use")
	// ErrExhausted signals random generation kept colliding until the attempt bound.
	ErrExhausted = errors.New("casenumber: allocation exhausted")
)

const (
	DefaultPrefix      = "SD-"
	DefaultLength      = 8
	DefaultMaxAttempts = 8

	// MaxLength keeps every generated character inside the random part of a v4 UUID.
	MaxLength = 12
)

// Config controls the shape of generated numbers and the retry bound.
type Config struct {
	Prefix      string
	Length      int
	MaxAttempts int
}

// DefaultConfig mirrors the codes already issued in production: SD- plus 8 hex chars.
func DefaultConfig() Config {
	return Config{
		Prefix:      DefaultPrefix,
		Length:      DefaultLength,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// Reserver checks whether number belongs to any case other than excludeID and
// holds a lock on that number until tx ends, whether or not a row exists.
type Reserver interface {
	ReserveCaseNumber(ctx context.Context, tx pgx.Tx, number, excludeID string) (taken bool, err error)
}

// Allocator hands out case numbers. Every call must share the transaction that
// writes the case, otherwise the reservation is released before the insert.
type Allocator struct {
	store    Reserver
	cfg      Config
	generate func(length int) string
	logger   *slog.Logger
}

// New builds an Allocator. Zero fields in cfg fall back to DefaultConfig.
func New(store Reserver, cfg Config, logger *slog.Logger) *Allocator {
	def := DefaultConfig()
	if cfg.Prefix == "" {
		cfg.Prefix = def.Prefix
	}
	if cfg.Length <= 0 || cfg.Length > MaxLength {
		cfg.Length = def.Length
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Allocator{
		store:    store,
		cfg:      cfg,
		generate: RandomHex,
		logger:   logger.With("component", "casenumber"),
	}
}

// WithGenerator swaps the random body generator, mainly for tests.
func (a *Allocator) WithGenerator(fn func(length int) string) *Allocator {
	a.generate = fn
	return a
}

// Config returns the effective configuration.
func (a *Allocator) Config() Config {
	return a.cfg
}

// Resolve returns proposed (trimmed) when no other case holds it, excluding
// excludeID so a case may keep its own number. A blank proposal allocates.
func (a *Allocator) Resolve(ctx context.Context, tx pgx.Tx, proposed, excludeID string) (string, error) {
	number := strings.TrimSpace(proposed)
	if number == "" {
		return a.Allocate(ctx, tx)
	}

	taken, err := a.store.ReserveCaseNumber(ctx, tx, number, excludeID)
	if err != nil {
		return "", fmt.Errorf("casenumber: check %q: %w", number, err)
	}
	if taken {
		return "", fmt.Errorf("%w: %s", ErrConflict, number)
	}
	return number, nil
}

// Allocate generates candidates until one is free or the attempt bound is hit.
func (a *Allocator) Allocate(ctx context.Context, tx pgx.Tx) (string, error) {
	number, err := retry.Attempt(ctx, a.cfg.MaxAttempts, func(ctx context.Context, n int) (string, error) {
		candidate := a.cfg.Prefix + a.generate(a.cfg.Length)
		taken, err := a.store.ReserveCaseNumber(ctx, tx, candidate, "")
		if err != nil {
			return "", fmt.Errorf("casenumber: check %q: %w", candidate, err)
		}
		if taken {
			a.logger.Debug("case number candidate taken", "candidate", candidate, "attempt", n)
			return "", fmt.Errorf("candidate %s: %w", candidate, retry.ErrAgain)
		}
		return candidate, nil
	})
	if err != nil {
		if errors.Is(err, retry.ErrExhausted) {
			a.logger.Error("case number allocation exhausted", "attempts", a.cfg.MaxAttempts, "prefix", a.cfg.Prefix)
			return "", fmt.Errorf("%w: %w", ErrExhausted, err)
		}
		return "", err
	}
	return number, nil
}

// RandomHex returns length upper-case hex characters drawn from a random UUID.
func RandomHex(length int) string {
	id := uuid.New()
	body := strings.ToUpper(hex.EncodeToString(id[:6]))
	if length > len(body) {
		length = len(body)
	}
	return body[:length]
}
