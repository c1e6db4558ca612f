package dispute

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	uniqueViolation         = "23505"
	caseNumberConstraint    = "dispute_cases_case_number_key"
	caseNumberAdvisorySpace = "dispute_case_number:"
)

const caseColumns = `
	id, owner_id, case_number, dispute_id, title, category, status, severity,
	summary, next_step, resolution_notes, external_reference, amount_disputed, currency,
	opened_at, due_at, resolved_at, sla_due_at, last_reviewed_at, requires_follow_up,
	created_at, updated_at`

const taskColumns = `id, case_id, label, status, assigned_to, due_at, completed_at, instructions, created_at, updated_at`

const noteColumns = `id, case_id, note_type, visibility, body, next_steps, pinned, created_by, created_at, updated_at`

const evidenceColumns = `id, case_id, label, file_url, file_type, thumbnail_url, notes, uploaded_by, created_at, updated_at`

// PGGateway implements Gateway on PostgreSQL.
type PGGateway struct{}

func NewGateway() *PGGateway {
	return &PGGateway{}
}

// CaseNumberInUse takes a transaction-scoped advisory lock on the number when
// locking, so a concurrent allocator probing the same candidate waits for this
// transaction to commit even though no row exists yet.
func (g *PGGateway) CaseNumberInUse(ctx context.Context, tx pgx.Tx, number, excludeID string, lock LockMode) (bool, error) {
	if lock == LockForUpdate {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, caseNumberAdvisorySpace+number); err != nil {
			return false, fmt.Errorf("dispute: lock case number: %w", err)
		}
	}

	query := `
		SELECT id
		FROM dispute_cases
		WHERE case_number = $1
		  AND ($2 = '' OR id::text <> $2)
		LIMIT 1` + lock.clause()

	var id string
	err := tx.QueryRow(ctx, query, number, excludeID).Scan(&id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	default:
		return false, fmt.Errorf("dispute: check case number: %w", err)
	}
}

// ReserveCaseNumber satisfies casenumber.Reserver.
func (g *PGGateway) ReserveCaseNumber(ctx context.Context, tx pgx.Tx, number, excludeID string) (bool, error) {
	return g.CaseNumberInUse(ctx, tx, number, excludeID, LockForUpdate)
}

func (g *PGGateway) InsertCase(ctx context.Context, tx pgx.Tx, c Case) (Case, error) {
	query := `
		INSERT INTO dispute_cases (
			id, owner_id, case_number, dispute_id, title, category, status, severity,
			summary, next_step, resolution_notes, external_reference, amount_disputed, currency,
			opened_at, due_at, resolved_at, sla_due_at, last_reviewed_at, requires_follow_up
		) VALUES (
			COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20
		)
		RETURNING` + caseColumns

	created, err := scanCase(tx.QueryRow(ctx, query,
		c.ID, c.OwnerID, c.CaseNumber, c.DisputeID, c.Title, c.Category, c.Status, c.Severity,
		c.Summary, c.NextStep, c.ResolutionNotes, c.ExternalReference, c.AmountDisputed, c.Currency,
		c.OpenedAt, c.DueAt, c.ResolvedAt, c.SLADueAt, c.LastReviewedAt, c.RequiresFollowUp,
	))
	if err != nil {
		if isCaseNumberViolation(err) {
			return Case{}, ErrDuplicateCaseNumber
		}
		return Case{}, fmt.Errorf("dispute: insert case: %w", err)
	}
	return created, nil
}

func (g *PGGateway) FindCase(ctx context.Context, tx pgx.Tx, ownerID, caseID string, lock LockMode) (Case, error) {
	query := `SELECT` + caseColumns + `
		FROM dispute_cases
		WHERE id = $1 AND owner_id = $2` + lock.clause()

	c, err := scanCase(tx.QueryRow(ctx, query, caseID, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Case{}, ErrNoRecord
		}
		return Case{}, fmt.Errorf("dispute: find case: %w", err)
	}
	return c, nil
}

func (g *PGGateway) UpdateCase(ctx context.Context, tx pgx.Tx, c Case) (Case, error) {
	query := `
		UPDATE dispute_cases
		SET case_number = $3,
		    dispute_id = $4,
		    title = $5,
		    category = $6,
		    status = $7,
		    severity = $8,
		    summary = $9,
		    next_step = $10,
		    resolution_notes = $11,
		    external_reference = $12,
		    amount_disputed = $13,
		    currency = $14,
		    opened_at = $15,
		    due_at = $16,
		    resolved_at = $17,
		    sla_due_at = $18,
		    last_reviewed_at = $19,
		    requires_follow_up = $20,
		    updated_at = now()
		WHERE id = $1 AND owner_id = $2
		RETURNING` + caseColumns

	updated, err := scanCase(tx.QueryRow(ctx, query,
		c.ID, c.OwnerID, c.CaseNumber, c.DisputeID, c.Title, c.Category, c.Status, c.Severity,
		c.Summary, c.NextStep, c.ResolutionNotes, c.ExternalReference, c.AmountDisputed, c.Currency,
		c.OpenedAt, c.DueAt, c.ResolvedAt, c.SLADueAt, c.LastReviewedAt, c.RequiresFollowUp,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Case{}, ErrNoRecord
		}
		if isCaseNumberViolation(err) {
			return Case{}, ErrDuplicateCaseNumber
		}
		return Case{}, fmt.Errorf("dispute: update case: %w", err)
	}
	return updated, nil
}

// DeleteCase removes the case; tasks, notes and evidence go with it through
// ON DELETE CASCADE.
func (g *PGGateway) DeleteCase(ctx context.Context, tx pgx.Tx, ownerID, caseID string) error {
	tag, err := tx.Exec(ctx, `DELETE FROM dispute_cases WHERE id = $1 AND owner_id = $2`, caseID, ownerID)
	if err != nil {
		return fmt.Errorf("dispute: delete case: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRecord
	}
	return nil
}

func (g *PGGateway) ListCases(ctx context.Context, tx pgx.Tx, filter CaseFilter) ([]Case, error) {
	where := "c.owner_id = $1"
	args := []any{filter.OwnerID}
	if filter.CaseID != "" {
		where += " AND c.id = $2"
		args = append(args, filter.CaseID)
	}

	rows, err := tx.Query(ctx, `SELECT`+prefixed("c", caseColumns)+`
		FROM dispute_cases c
		WHERE `+where+`
		ORDER BY c.created_at DESC, c.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("dispute: list cases: %w", err)
	}
	cases, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Case, error) { return scanCase(row) })
	if err != nil {
		return nil, fmt.Errorf("dispute: scan cases: %w", err)
	}
	if len(cases) == 0 {
		return cases, nil
	}

	index := make(map[string]int, len(cases))
	for i := range cases {
		index[cases[i].ID] = i
	}

	tasks, err := listChildren(ctx, tx, "dispute_tasks", taskColumns, where, args, scanTask)
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		if i, ok := index[t.CaseID]; ok {
			cases[i].Tasks = append(cases[i].Tasks, t)
		}
	}

	notes, err := listChildren(ctx, tx, "dispute_notes", noteColumns, where, args, scanNote)
	if err != nil {
		return nil, err
	}
	for _, n := range notes {
		if i, ok := index[n.CaseID]; ok {
			cases[i].Notes = append(cases[i].Notes, n)
		}
	}

	evidence, err := listChildren(ctx, tx, "dispute_evidence", evidenceColumns, where, args, scanEvidence)
	if err != nil {
		return nil, err
	}
	for _, e := range evidence {
		if i, ok := index[e.CaseID]; ok {
			cases[i].Evidence = append(cases[i].Evidence, e)
		}
	}

	return cases, nil
}

func listChildren[T any](ctx context.Context, tx pgx.Tx, table, columns, where string, args []any, scan func(pgx.Row) (T, error)) ([]T, error) {
	query := `SELECT ` + prefixed("x", columns) + `
		FROM ` + table + ` x
		JOIN dispute_cases c ON c.id = x.case_id
		WHERE ` + where + `
		ORDER BY x.created_at ASC, x.id`

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("dispute: list %s: %w", table, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (T, error) { return scan(row) })
	if err != nil {
		return nil, fmt.Errorf("dispute: scan %s: %w", table, err)
	}
	return out, nil
}

func (g *PGGateway) InsertTask(ctx context.Context, tx pgx.Tx, t Task) (Task, error) {
	query := `
		INSERT INTO dispute_tasks (id, case_id, label, status, assigned_to, due_at, completed_at, instructions)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + taskColumns

	created, err := scanTask(tx.QueryRow(ctx, query,
		t.ID, t.CaseID, t.Label, t.Status, t.AssignedTo, t.DueAt, t.CompletedAt, t.Instructions,
	))
	if err != nil {
		return Task{}, fmt.Errorf("dispute: insert task: %w", err)
	}
	return created, nil
}

func (g *PGGateway) FindTask(ctx context.Context, tx pgx.Tx, caseID, taskID string, lock LockMode) (Task, error) {
	query := `SELECT ` + taskColumns + ` FROM dispute_tasks WHERE id = $1 AND case_id = $2` + lock.clause()

	t, err := scanTask(tx.QueryRow(ctx, query, taskID, caseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, ErrNoRecord
		}
		return Task{}, fmt.Errorf("dispute: find task: %w", err)
	}
	return t, nil
}

func (g *PGGateway) UpdateTask(ctx context.Context, tx pgx.Tx, t Task) (Task, error) {
	query := `
		UPDATE dispute_tasks
		SET label = $3,
		    status = $4,
		    assigned_to = $5,
		    due_at = $6,
		    completed_at = $7,
		    instructions = $8,
		    updated_at = now()
		WHERE id = $1 AND case_id = $2
		RETURNING ` + taskColumns

	updated, err := scanTask(tx.QueryRow(ctx, query,
		t.ID, t.CaseID, t.Label, t.Status, t.AssignedTo, t.DueAt, t.CompletedAt, t.Instructions,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, ErrNoRecord
		}
		return Task{}, fmt.Errorf("dispute: update task: %w", err)
	}
	return updated, nil
}

func (g *PGGateway) DeleteTask(ctx context.Context, tx pgx.Tx, caseID, taskID string) error {
	return deleteChild(ctx, tx, "dispute_tasks", caseID, taskID)
}

func (g *PGGateway) InsertNote(ctx context.Context, tx pgx.Tx, n Note) (Note, error) {
	query := `
		INSERT INTO dispute_notes (id, case_id, note_type, visibility, body, next_steps, pinned, created_by)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + noteColumns

	created, err := scanNote(tx.QueryRow(ctx, query,
		n.ID, n.CaseID, n.Type, n.Visibility, n.Body, n.NextSteps, n.Pinned, n.CreatedBy,
	))
	if err != nil {
		return Note{}, fmt.Errorf("dispute: insert note: %w", err)
	}
	return created, nil
}

func (g *PGGateway) FindNote(ctx context.Context, tx pgx.Tx, caseID, noteID string, lock LockMode) (Note, error) {
	query := `SELECT ` + noteColumns + ` FROM dispute_notes WHERE id = $1 AND case_id = $2` + lock.clause()

	n, err := scanNote(tx.QueryRow(ctx, query, noteID, caseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Note{}, ErrNoRecord
		}
		return Note{}, fmt.Errorf("dispute: find note: %w", err)
	}
	return n, nil
}

func (g *PGGateway) UpdateNote(ctx context.Context, tx pgx.Tx, n Note) (Note, error) {
	query := `
		UPDATE dispute_notes
		SET note_type = $3,
		    visibility = $4,
		    body = $5,
		    next_steps = $6,
		    pinned = $7,
		    updated_at = now()
		WHERE id = $1 AND case_id = $2
		RETURNING ` + noteColumns

	updated, err := scanNote(tx.QueryRow(ctx, query,
		n.ID, n.CaseID, n.Type, n.Visibility, n.Body, n.NextSteps, n.Pinned,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Note{}, ErrNoRecord
		}
		return Note{}, fmt.Errorf("dispute: update note: %w", err)
	}
	return updated, nil
}

func (g *PGGateway) DeleteNote(ctx context.Context, tx pgx.Tx, caseID, noteID string) error {
	return deleteChild(ctx, tx, "dispute_notes", caseID, noteID)
}

func (g *PGGateway) InsertEvidence(ctx context.Context, tx pgx.Tx, e Evidence) (Evidence, error) {
	query := `
		INSERT INTO dispute_evidence (id, case_id, label, file_url, file_type, thumbnail_url, notes, uploaded_by)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + evidenceColumns

	created, err := scanEvidence(tx.QueryRow(ctx, query,
		e.ID, e.CaseID, e.Label, e.FileURL, e.FileType, e.ThumbnailURL, e.Notes, e.UploadedBy,
	))
	if err != nil {
		return Evidence{}, fmt.Errorf("dispute: insert evidence: %w", err)
	}
	return created, nil
}

func (g *PGGateway) FindEvidence(ctx context.Context, tx pgx.Tx, caseID, evidenceID string, lock LockMode) (Evidence, error) {
	query := `SELECT ` + evidenceColumns + ` FROM dispute_evidence WHERE id = $1 AND case_id = $2` + lock.clause()

	e, err := scanEvidence(tx.QueryRow(ctx, query, evidenceID, caseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Evidence{}, ErrNoRecord
		}
		return Evidence{}, fmt.Errorf("dispute: find evidence: %w", err)
	}
	return e, nil
}

func (g *PGGateway) UpdateEvidence(ctx context.Context, tx pgx.Tx, e Evidence) (Evidence, error) {
	query := `
		UPDATE dispute_evidence
		SET label = $3,
		    file_url = $4,
		    file_type = $5,
		    thumbnail_url = $6,
		    notes = $7,
		    updated_at = now()
		WHERE id = $1 AND case_id = $2
		RETURNING ` + evidenceColumns

	updated, err := scanEvidence(tx.QueryRow(ctx, query,
		e.ID, e.CaseID, e.Label, e.FileURL, e.FileType, e.ThumbnailURL, e.Notes,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Evidence{}, ErrNoRecord
		}
		return Evidence{}, fmt.Errorf("dispute: update evidence: %w", err)
	}
	return updated, nil
}

func (g *PGGateway) DeleteEvidence(ctx context.Context, tx pgx.Tx, caseID, evidenceID string) error {
	return deleteChild(ctx, tx, "dispute_evidence", caseID, evidenceID)
}

func deleteChild(ctx context.Context, tx pgx.Tx, table, caseID, id string) error {
	tag, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1 AND case_id = $2`, id, caseID)
	if err != nil {
		return fmt.Errorf("dispute: delete from %s: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRecord
	}
	return nil
}

// prefixed qualifies every column in a column list with alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, col := range parts {
		parts[i] = alias + "." + strings.TrimSpace(col)
	}
	return " " + strings.Join(parts, ", ")
}

func isCaseNumberViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == caseNumberConstraint
}

func scanCase(row pgx.Row) (Case, error) {
	var c Case
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.CaseNumber, &c.DisputeID, &c.Title, &c.Category, &c.Status, &c.Severity,
		&c.Summary, &c.NextStep, &c.ResolutionNotes, &c.ExternalReference, &c.AmountDisputed, &c.Currency,
		&c.OpenedAt, &c.DueAt, &c.ResolvedAt, &c.SLADueAt, &c.LastReviewedAt, &c.RequiresFollowUp,
		&c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

func scanTask(row pgx.Row) (Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.CaseID, &t.Label, &t.Status, &t.AssignedTo, &t.DueAt, &t.CompletedAt, &t.Instructions, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func scanNote(row pgx.Row) (Note, error) {
	var n Note
	err := row.Scan(&n.ID, &n.CaseID, &n.Type, &n.Visibility, &n.Body, &n.NextSteps, &n.Pinned, &n.CreatedBy, &n.CreatedAt, &n.UpdatedAt)
	return n, err
}

func scanEvidence(row pgx.Row) (Evidence, error) {
	var e Evidence
	err := row.Scan(&e.ID, &e.CaseID, &e.Label, &e.FileURL, &e.FileType, &e.ThumbnailURL, &e.Notes, &e.UploadedBy, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}
