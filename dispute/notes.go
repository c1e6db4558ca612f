package dispute

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"disputedesk/audit"
)

// CreateNote records a note on the case. The author is the payload's
// CreatedBy, else the acting user, else the owner.
func (s *Service) CreateNote(ctx context.Context, ownerID, caseID string, in NoteInput, actx audit.Context) (Note, error) {
	if err := requireOwner(ownerID); err != nil {
		return Note{}, err
	}
	if !validID(caseID) {
		return Note{}, notFound(CodeCaseNotFound, "dispute case", caseID)
	}
	note, err := in.build(caseID)
	if err != nil {
		return Note{}, err
	}
	note.CreatedBy = authorOf(in.CreatedBy, actx.ActorID, ownerID)

	var created Note
	err = s.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := s.requireCase(ctx, tx, ownerID, caseID); err != nil {
			return err
		}
		note.ID = s.idGenerator()
		var err error
		created, err = s.store.InsertNote(ctx, tx, note)
		return err
	})
	if err != nil {
		return Note{}, err
	}

	s.emitNote(ctx, actx, ownerID, "create", created)
	return created, nil
}

func (s *Service) UpdateNote(ctx context.Context, ownerID, caseID, noteID string, patch NotePatch, actx audit.Context) (Note, error) {
	if err := requireOwner(ownerID); err != nil {
		return Note{}, err
	}
	if !validID(caseID) {
		return Note{}, notFound(CodeCaseNotFound, "dispute case", caseID)
	}
	if !validID(noteID) {
		return Note{}, notFound(CodeNoteNotFound, "dispute note", noteID)
	}

	var updated Note
	err := s.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := s.requireCase(ctx, tx, ownerID, caseID); err != nil {
			return err
		}
		current, err := s.store.FindNote(ctx, tx, caseID, noteID, LockForUpdate)
		if errors.Is(err, ErrNoRecord) {
			return notFound(CodeNoteNotFound, "dispute note", noteID)
		}
		if err != nil {
			return err
		}
		next, err := patch.apply(current)
		if err != nil {
			return err
		}
		updated, err = s.store.UpdateNote(ctx, tx, next)
		if errors.Is(err, ErrNoRecord) {
			return notFound(CodeNoteNotFound, "dispute note", noteID)
		}
		return err
	})
	if err != nil {
		return Note{}, err
	}

	s.emitNote(ctx, actx, ownerID, "update", updated)
	return updated, nil
}

func (s *Service) DeleteNote(ctx context.Context, ownerID, caseID, noteID string, actx audit.Context) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}
	if !validID(caseID) {
		return notFound(CodeCaseNotFound, "dispute case", caseID)
	}
	if !validID(noteID) {
		return notFound(CodeNoteNotFound, "dispute note", noteID)
	}

	var deleted Note
	err := s.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := s.requireCase(ctx, tx, ownerID, caseID); err != nil {
			return err
		}
		var err error
		deleted, err = s.store.FindNote(ctx, tx, caseID, noteID, LockForUpdate)
		if errors.Is(err, ErrNoRecord) {
			return notFound(CodeNoteNotFound, "dispute note", noteID)
		}
		if err != nil {
			return err
		}
		err = s.store.DeleteNote(ctx, tx, caseID, noteID)
		if errors.Is(err, ErrNoRecord) {
			return notFound(CodeNoteNotFound, "dispute note", noteID)
		}
		return err
	})
	if err != nil {
		return err
	}

	s.emitNote(ctx, actx, ownerID, "delete", deleted)
	return nil
}

func (s *Service) emitNote(ctx context.Context, actx audit.Context, ownerID, verb string, n Note) {
	s.emit(ctx, actx, ownerID, resourceNote, verb, map[string]any{
		"caseId":     n.CaseID,
		"childId":    n.ID,
		"noteType":   string(n.Type),
		"visibility": string(n.Visibility),
	})
}
