package dispute

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"disputedesk/audit"
)

// CreateEvidence attaches an evidence item. The uploader is the payload's
// UploadedBy, else the acting user, else the owner.
func (s *Service) CreateEvidence(ctx context.Context, ownerID, caseID string, in EvidenceInput, actx audit.Context) (Evidence, error) {
	if err := requireOwner(ownerID); err != nil {
		return Evidence{}, err
	}
	if !validID(caseID) {
		return Evidence{}, notFound(CodeCaseNotFound, "dispute case", caseID)
	}
	item, err := in.build(caseID)
	if err != nil {
		return Evidence{}, err
	}
	item.UploadedBy = authorOf(in.UploadedBy, actx.ActorID, ownerID)

	var created Evidence
	err = s.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := s.requireCase(ctx, tx, ownerID, caseID); err != nil {
			return err
		}
		item.ID = s.idGenerator()
		var err error
		created, err = s.store.InsertEvidence(ctx, tx, item)
		return err
	})
	if err != nil {
		return Evidence{}, err
	}

	s.emitEvidence(ctx, actx, ownerID, "create", created)
	return created, nil
}

func (s *Service) UpdateEvidence(ctx context.Context, ownerID, caseID, evidenceID string, patch EvidencePatch, actx audit.Context) (Evidence, error) {
	if err := requireOwner(ownerID); err != nil {
		return Evidence{}, err
	}
	if !validID(caseID) {
		return Evidence{}, notFound(CodeCaseNotFound, "dispute case", caseID)
	}
	if !validID(evidenceID) {
		return Evidence{}, notFound(CodeEvidenceNotFound, "dispute evidence", evidenceID)
	}

	var updated Evidence
	err := s.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := s.requireCase(ctx, tx, ownerID, caseID); err != nil {
			return err
		}
		current, err := s.store.FindEvidence(ctx, tx, caseID, evidenceID, LockForUpdate)
		if errors.Is(err, ErrNoRecord) {
			return notFound(CodeEvidenceNotFound, "dispute evidence", evidenceID)
		}
		if err != nil {
			return err
		}
		next, err := patch.apply(current)
		if err != nil {
			return err
		}
		updated, err = s.store.UpdateEvidence(ctx, tx, next)
		if errors.Is(err, ErrNoRecord) {
			return notFound(CodeEvidenceNotFound, "dispute evidence", evidenceID)
		}
		return err
	})
	if err != nil {
		return Evidence{}, err
	}

	s.emitEvidence(ctx, actx, ownerID, "update", updated)
	return updated, nil
}

func (s *Service) DeleteEvidence(ctx context.Context, ownerID, caseID, evidenceID string, actx audit.Context) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}
	if !validID(caseID) {
		return notFound(CodeCaseNotFound, "dispute case", caseID)
	}
	if !validID(evidenceID) {
		return notFound(CodeEvidenceNotFound, "dispute evidence", evidenceID)
	}

	var deleted Evidence
	err := s.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := s.requireCase(ctx, tx, ownerID, caseID); err != nil {
			return err
		}
		var err error
		deleted, err = s.store.FindEvidence(ctx, tx, caseID, evidenceID, LockForUpdate)
		if errors.Is(err, ErrNoRecord) {
			return notFound(CodeEvidenceNotFound, "dispute evidence", evidenceID)
		}
		if err != nil {
			return err
		}
		err = s.store.DeleteEvidence(ctx, tx, caseID, evidenceID)
		if errors.Is(err, ErrNoRecord) {
			return notFound(CodeEvidenceNotFound, "dispute evidence", evidenceID)
		}
		return err
	})
	if err != nil {
		return err
	}

	s.emitEvidence(ctx, actx, ownerID, "delete", deleted)
	return nil
}

func (s *Service) emitEvidence(ctx context.Context, actx audit.Context, ownerID, verb string, e Evidence) {
	metadata := map[string]any{
		"caseId":  e.CaseID,
		"childId": e.ID,
	}
	if e.FileType != nil {
		metadata["fileType"] = *e.FileType
	}
	s.emit(ctx, actx, ownerID, resourceEvidence, verb, metadata)
}
