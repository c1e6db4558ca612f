package dispute

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// LockMode selects whether a read takes a row lock held until the
// transaction ends.
type LockMode int

const (
	LockNone LockMode = iota
	LockForUpdate
)

func (m LockMode) clause() string {
	if m == LockForUpdate {
		return " FOR UPDATE"
	}
	return ""
}

// CaseFilter scopes ListCases. OwnerID is required; CaseID narrows to one case.
type CaseFilter struct {
	OwnerID string
	CaseID  string
}

// Gateway is the persistence boundary for the four dispute tables. Every call
// runs inside the caller's transaction. Reads that match nothing return
// ErrNoRecord; writes that collide on the case-number index return
// ErrDuplicateCaseNumber.
type Gateway interface {
	// CaseNumberInUse reports whether number belongs to a case other than
	// excludeID. With LockForUpdate the number stays reserved until tx ends.
	CaseNumberInUse(ctx context.Context, tx pgx.Tx, number, excludeID string, lock LockMode) (bool, error)

	InsertCase(ctx context.Context, tx pgx.Tx, c Case) (Case, error)
	FindCase(ctx context.Context, tx pgx.Tx, ownerID, caseID string, lock LockMode) (Case, error)
	UpdateCase(ctx context.Context, tx pgx.Tx, c Case) (Case, error)
	DeleteCase(ctx context.Context, tx pgx.Tx, ownerID, caseID string) error
	// ListCases returns matching cases newest first with children attached
	// oldest first.
	ListCases(ctx context.Context, tx pgx.Tx, filter CaseFilter) ([]Case, error)

	InsertTask(ctx context.Context, tx pgx.Tx, t Task) (Task, error)
	FindTask(ctx context.Context, tx pgx.Tx, caseID, taskID string, lock LockMode) (Task, error)
	UpdateTask(ctx context.Context, tx pgx.Tx, t Task) (Task, error)
	DeleteTask(ctx context.Context, tx pgx.Tx, caseID, taskID string) error

	InsertNote(ctx context.Context, tx pgx.Tx, n Note) (Note, error)
	FindNote(ctx context.Context, tx pgx.Tx, caseID, noteID string, lock LockMode) (Note, error)
	UpdateNote(ctx context.Context, tx pgx.Tx, n Note) (Note, error)
	DeleteNote(ctx context.Context, tx pgx.Tx, caseID, noteID string) error

	InsertEvidence(ctx context.Context, tx pgx.Tx, e Evidence) (Evidence, error)
	FindEvidence(ctx context.Context, tx pgx.Tx, caseID, evidenceID string, lock LockMode) (Evidence, error)
	UpdateEvidence(ctx context.Context, tx pgx.Tx, e Evidence) (Evidence, error)
	DeleteEvidence(ctx context.Context, tx pgx.Tx, caseID, evidenceID string) error
}
