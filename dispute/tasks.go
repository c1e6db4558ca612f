package dispute

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"disputedesk/audit"
)

func (s *Service) CreateTask(ctx context.Context, ownerID, caseID string, in TaskInput, actx audit.Context) (Task, error) {
	if err := requireOwner(ownerID); err != nil {
		return Task{}, err
	}
	if !validID(caseID) {
		return Task{}, notFound(CodeCaseNotFound, "dispute case", caseID)
	}
	task, err := in.build(caseID)
	if err != nil {
		return Task{}, err
	}

	var created Task
	err = s.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := s.requireCase(ctx, tx, ownerID, caseID); err != nil {
			return err
		}
		task.ID = s.idGenerator()
		var err error
		created, err = s.store.InsertTask(ctx, tx, task)
		return err
	})
	if err != nil {
		return Task{}, err
	}

	s.emitTask(ctx, actx, ownerID, "create", created)
	return created, nil
}

func (s *Service) UpdateTask(ctx context.Context, ownerID, caseID, taskID string, patch TaskPatch, actx audit.Context) (Task, error) {
	if err := requireOwner(ownerID); err != nil {
		return Task{}, err
	}
	if !validID(caseID) {
		return Task{}, notFound(CodeCaseNotFound, "dispute case", caseID)
	}
	if !validID(taskID) {
		return Task{}, notFound(CodeTaskNotFound, "dispute task", taskID)
	}

	var updated Task
	err := s.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := s.requireCase(ctx, tx, ownerID, caseID); err != nil {
			return err
		}
		current, err := s.store.FindTask(ctx, tx, caseID, taskID, LockForUpdate)
		if errors.Is(err, ErrNoRecord) {
			return notFound(CodeTaskNotFound, "dispute task", taskID)
		}
		if err != nil {
			return err
		}
		next, err := patch.apply(current)
		if err != nil {
			return err
		}
		updated, err = s.store.UpdateTask(ctx, tx, next)
		if errors.Is(err, ErrNoRecord) {
			return notFound(CodeTaskNotFound, "dispute task", taskID)
		}
		return err
	})
	if err != nil {
		return Task{}, err
	}

	s.emitTask(ctx, actx, ownerID, "update", updated)
	return updated, nil
}

func (s *Service) DeleteTask(ctx context.Context, ownerID, caseID, taskID string, actx audit.Context) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}
	if !validID(caseID) {
		return notFound(CodeCaseNotFound, "dispute case", caseID)
	}
	if !validID(taskID) {
		return notFound(CodeTaskNotFound, "dispute task", taskID)
	}

	var deleted Task
	err := s.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := s.requireCase(ctx, tx, ownerID, caseID); err != nil {
			return err
		}
		var err error
		deleted, err = s.store.FindTask(ctx, tx, caseID, taskID, LockForUpdate)
		if errors.Is(err, ErrNoRecord) {
			return notFound(CodeTaskNotFound, "dispute task", taskID)
		}
		if err != nil {
			return err
		}
		err = s.store.DeleteTask(ctx, tx, caseID, taskID)
		if errors.Is(err, ErrNoRecord) {
			return notFound(CodeTaskNotFound, "dispute task", taskID)
		}
		return err
	})
	if err != nil {
		return err
	}

	s.emitTask(ctx, actx, ownerID, "delete", deleted)
	return nil
}

func (s *Service) emitTask(ctx context.Context, actx audit.Context, ownerID, verb string, t Task) {
	s.emit(ctx, actx, ownerID, resourceTask, verb, map[string]any{
		"caseId":  t.CaseID,
		"childId": t.ID,
		"status":  string(t.Status),
	})
}
