package dispute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"disputedesk/audit"
	"disputedesk/casenumber"
)

const (
	resourceCase     = "dispute_case"
	resourceTask     = "dispute_task"
	resourceNote     = "dispute_note"
	resourceEvidence = "dispute_evidence"
)

// NumberResolver returns a unique case number inside tx, either the trimmed
// proposal or a generated one when the proposal is blank.
type NumberResolver interface {
	Resolve(ctx context.Context, tx pgx.Tx, proposed, excludeID string) (string, error)
}

// Service runs every dispute workspace operation inside a single transaction
// scoped to the owning serviceman.
type Service struct {
	pool        TxBeginner
	store       Gateway
	numbers     NumberResolver
	emitter     audit.Emitter
	logger      *slog.Logger
	idGenerator func() string
	now         func() time.Time
}

// NewService wires the service. A nil store defaults to the PostgreSQL
// gateway, a nil numbers resolver to a default casenumber.Allocator over the
// store, and a nil emitter to audit.Nop.
func NewService(pool TxBeginner, store Gateway, numbers NumberResolver, emitter audit.Emitter, logger *slog.Logger) *Service {
	if store == nil {
		store = NewGateway()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if numbers == nil {
		if r, ok := store.(casenumber.Reserver); ok {
			numbers = casenumber.New(r, casenumber.DefaultConfig(), logger)
		}
	}
	if emitter == nil {
		emitter = audit.Nop{}
	}
	return &Service{
		pool:        pool,
		store:       store,
		numbers:     numbers,
		emitter:     emitter,
		logger:      logger.With("component", "dispute"),
		idGenerator: func() string { return uuid.NewString() },
		now:         time.Now,
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) inTx(ctx context.Context, opts pgx.TxOptions, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("dispute: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("dispute: commit tx: %w", err)
	}
	return nil
}

// LoadWorkspace returns every case the owner holds, children attached, with
// metrics computed at the current instant.
func (s *Service) LoadWorkspace(ctx context.Context, ownerID string) (Workspace, error) {
	if err := requireOwner(ownerID); err != nil {
		return Workspace{}, err
	}

	var cases []Case
	err := s.inTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		var err error
		cases, err = s.store.ListCases(ctx, tx, CaseFilter{OwnerID: ownerID})
		return err
	})
	if err != nil {
		return Workspace{}, err
	}

	now := s.now()
	return Workspace{
		Cases:       cases,
		Metrics:     Summarize(cases, now),
		GeneratedAt: now,
	}, nil
}

// GetCase returns one case with its children.
func (s *Service) GetCase(ctx context.Context, ownerID, caseID string) (Case, error) {
	if err := requireOwner(ownerID); err != nil {
		return Case{}, err
	}
	if !validID(caseID) {
		return Case{}, notFound(CodeCaseNotFound, "dispute case", caseID)
	}

	var cases []Case
	err := s.inTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		var err error
		cases, err = s.store.ListCases(ctx, tx, CaseFilter{OwnerID: ownerID, CaseID: caseID})
		return err
	})
	if err != nil {
		return Case{}, err
	}
	if len(cases) == 0 {
		return Case{}, notFound(CodeCaseNotFound, "dispute case", caseID)
	}
	return cases[0], nil
}

func (s *Service) CreateCase(ctx context.Context, ownerID string, in CaseInput, actx audit.Context) (Case, error) {
	if err := requireOwner(ownerID); err != nil {
		return Case{}, err
	}
	c, err := in.build(ownerID)
	if err != nil {
		return Case{}, err
	}

	var created Case
	err = s.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		number, err := s.resolveNumber(ctx, tx, in.CaseNumber, "")
		if err != nil {
			return err
		}
		c.ID = s.idGenerator()
		c.CaseNumber = number

		created, err = s.store.InsertCase(ctx, tx, c)
		if err != nil {
			return caseWriteError(err, number)
		}
		return nil
	})
	if err != nil {
		return Case{}, err
	}

	s.emit(ctx, actx, ownerID, resourceCase, "create", map[string]any{
		"caseId":     created.ID,
		"caseNumber": created.CaseNumber,
		"status":     string(created.Status),
	})
	return created, nil
}

// UpdateCase applies patch to the owner's case under a row lock. A case
// number change is re-checked against every other case.
func (s *Service) UpdateCase(ctx context.Context, ownerID, caseID string, patch CasePatch, actx audit.Context) (Case, error) {
	if err := requireOwner(ownerID); err != nil {
		return Case{}, err
	}
	if !validID(caseID) {
		return Case{}, notFound(CodeCaseNotFound, "dispute case", caseID)
	}

	var updated Case
	err := s.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		current, err := s.findCase(ctx, tx, ownerID, caseID, LockForUpdate)
		if err != nil {
			return err
		}

		next, err := patch.apply(current)
		if err != nil {
			return err
		}
		if proposed := patch.proposedNumber(); proposed != "" && proposed != current.CaseNumber {
			number, err := s.resolveNumber(ctx, tx, proposed, current.ID)
			if err != nil {
				return err
			}
			next.CaseNumber = number
		}

		updated, err = s.store.UpdateCase(ctx, tx, next)
		switch {
		case errors.Is(err, ErrNoRecord):
			return notFound(CodeCaseNotFound, "dispute case", caseID)
		case err != nil:
			return caseWriteError(err, next.CaseNumber)
		}
		return nil
	})
	if err != nil {
		return Case{}, err
	}

	s.emit(ctx, actx, ownerID, resourceCase, "update", map[string]any{
		"caseId":     updated.ID,
		"caseNumber": updated.CaseNumber,
		"status":     string(updated.Status),
	})
	return updated, nil
}

// DeleteCase removes the case together with its tasks, notes and evidence.
func (s *Service) DeleteCase(ctx context.Context, ownerID, caseID string, actx audit.Context) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}
	if !validID(caseID) {
		return notFound(CodeCaseNotFound, "dispute case", caseID)
	}

	var deleted Case
	err := s.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var err error
		deleted, err = s.findCase(ctx, tx, ownerID, caseID, LockForUpdate)
		if err != nil {
			return err
		}
		err = s.store.DeleteCase(ctx, tx, ownerID, caseID)
		if errors.Is(err, ErrNoRecord) {
			return notFound(CodeCaseNotFound, "dispute case", caseID)
		}
		return err
	})
	if err != nil {
		return err
	}

	s.emit(ctx, actx, ownerID, resourceCase, "delete", map[string]any{
		"caseId":     deleted.ID,
		"caseNumber": deleted.CaseNumber,
		"status":     string(deleted.Status),
	})
	return nil
}

func (s *Service) findCase(ctx context.Context, tx pgx.Tx, ownerID, caseID string, lock LockMode) (Case, error) {
	c, err := s.store.FindCase(ctx, tx, ownerID, caseID, lock)
	if errors.Is(err, ErrNoRecord) {
		return Case{}, notFound(CodeCaseNotFound, "dispute case", caseID)
	}
	return c, err
}

// requireCase is the parent check for child mutations. It takes no lock.
func (s *Service) requireCase(ctx context.Context, tx pgx.Tx, ownerID, caseID string) (Case, error) {
	return s.findCase(ctx, tx, ownerID, caseID, LockNone)
}

func (s *Service) resolveNumber(ctx context.Context, tx pgx.Tx, proposed, excludeID string) (string, error) {
	if s.numbers == nil {
		return "", errors.New("dispute: no case number resolver configured")
	}
	number, err := s.numbers.Resolve(ctx, tx, proposed, excludeID)
	switch {
	case err == nil:
		return number, nil
	case errors.Is(err, casenumber.ErrConflict):
		return "", &Error{
			Kind:    ErrConflict,
			Code:    CodeCaseNumberConflict,
			Message: fmt.Sprintf("case number %s is already in use", strings.TrimSpace(proposed)),
			Err:     err,
		}
	case errors.Is(err, casenumber.ErrExhausted):
		s.logger.ErrorContext(ctx, "case number allocation exhausted", "error", err)
		return "", &Error{
			Kind:    ErrAllocationExhausted,
			Code:    CodeCaseNumberExhausted,
			Message: "could not allocate a unique case number",
			Err:     err,
		}
	default:
		return "", err
	}
}

// caseWriteError turns a unique index rejection into the same Conflict an
// explicit proposal would have produced.
func caseWriteError(err error, number string) error {
	if errors.Is(err, ErrDuplicateCaseNumber) {
		return &Error{
			Kind:    ErrConflict,
			Code:    CodeCaseNumberConflict,
			Message: fmt.Sprintf("case number %s is already in use", number),
			Err:     err,
		}
	}
	return err
}

func (s *Service) emit(ctx context.Context, actx audit.Context, ownerID, resource, verb string, metadata map[string]any) {
	if actx.ActorID == "" {
		actx.ActorID = ownerID
	}
	metadata["ownerId"] = ownerID

	ev := audit.NewEvent(actx, resource, actionName(resource, verb), audit.DecisionAllow, metadata)
	ev.OccurredAt = s.now()
	s.logger.DebugContext(ctx, "dispute mutation", "action", ev.Action, "owner_id", ownerID, "actor_id", actx.ActorID)
	s.emitter.Emit(ctx, ev)
}

// actionName builds dispute.<kind>.<verb>, e.g. dispute.task.update.
func actionName(resource, verb string) string {
	return "dispute." + strings.TrimPrefix(resource, "dispute_") + "." + verb
}

func requireOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return &Error{Kind: ErrValidation, Code: CodeOwnerRequired, Message: "owner id is required"}
	}
	return nil
}

// validID rejects identifiers the database could never hold, so they read as
// absent instead of surfacing a cast error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
