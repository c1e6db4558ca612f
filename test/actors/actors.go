package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"disputedesk/audit"
	"disputedesk/dispute"
)

// Registry tracks the case ids each owner may target.
type Registry struct {
	mu    sync.Mutex
	cases map[string][]string
}

func NewRegistry() *Registry {
	return &Registry{cases: map[string][]string{}}
}

func (r *Registry) Add(owner, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cases[owner] = append(r.cases[owner], id)
}

func (r *Registry) Remove(owner, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.cases[owner]
	for i, v := range ids {
		if v == id {
			r.cases[owner] = append(ids[:i:i], ids[i+1:]...)
			return
		}
	}
}

func (r *Registry) Pick(owner string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.cases[owner]
	if len(ids) == 0 {
		return "", false
	}
	return ids[rand.Intn(len(ids))], true
}

// Stats counts expected outcomes under contention.
type Stats struct {
	Created   atomic.Int64
	Conflicts atomic.Int64
	NotFound  atomic.Int64
	Failures  atomic.Int64
}

func (s *Stats) String() string {
	return fmt.Sprintf("created=%d conflicts=%d not_found=%d failures=%d",
		s.Created.Load(), s.Conflicts.Load(), s.NotFound.Load(), s.Failures.Load())
}

// classify absorbs outcomes that concurrent actors legitimately produce and
// returns the rest. Validation errors and allocator exhaustion never should.
func classify(err error, stats *Stats) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, dispute.ErrConflict):
		stats.Conflicts.Add(1)
		return nil
	case errors.Is(err, dispute.ErrNotFound):
		stats.NotFound.Add(1)
		return nil
	case errors.Is(err, dispute.ErrValidation), errors.Is(err, dispute.ErrAllocationExhausted):
		return err
	default:
		// chaos kills backends; the service reports those as plain persistence errors
		stats.Failures.Add(1)
		return nil
	}
}

func stopped(ctx context.Context, stop <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return true
	case <-stop:
		return true
	default:
		return false
	}
}

func proposal() string {
	return fmt.Sprintf("SD-P%07d", rand.Intn(50))
}

// Creator opens cases for owner, sometimes proposing a number from a small
// shared pool so proposals collide across owners.
func Creator(ctx context.Context, svc *dispute.Service, reg *Registry, owner string, stats *Stats, stop <-chan struct{}) error {
	for !stopped(ctx, stop) {
		in := dispute.CaseInput{Title: "Stress case", AmountDisputed: ptr(float64(rand.Intn(50000)) / 100)}
		if rand.Intn(4) == 0 {
			in.CaseNumber = proposal()
		}
		c, err := svc.CreateCase(ctx, owner, in, audit.Context{ActorID: owner, CorrelationID: "stress"})
		if err == nil {
			stats.Created.Add(1)
			reg.Add(owner, c.ID)
		} else if err := classify(err, stats); err != nil {
			return fmt.Errorf("creator %s: %w", owner, err)
		}
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
	return nil
}

// Updater mutates status, due date and occasionally the case number.
func Updater(ctx context.Context, svc *dispute.Service, reg *Registry, owner string, stats *Stats, stop <-chan struct{}) error {
	for !stopped(ctx, stop) {
		id, ok := reg.Pick(owner)
		if !ok {
			time.Sleep(20 * time.Millisecond)
			continue
		}
		status := dispute.CaseStatuses[rand.Intn(len(dispute.CaseStatuses))]
		due := time.Now().Add(time.Duration(rand.Intn(96)-48) * time.Hour)
		patch := dispute.CasePatch{Status: &status, DueAt: dispute.Set(due)}
		if rand.Intn(5) == 0 {
			n := proposal()
			patch.CaseNumber = &n
		}
		_, err := svc.UpdateCase(ctx, owner, id, patch, audit.Context{ActorID: owner})
		if err := classify(err, stats); err != nil {
			return fmt.Errorf("updater %s: %w", owner, err)
		}
		time.Sleep(time.Duration(15+rand.Intn(30)) * time.Millisecond)
	}
	return nil
}

// ChildWriter adds and removes tasks, notes and evidence on random cases.
func ChildWriter(ctx context.Context, svc *dispute.Service, reg *Registry, owner string, stats *Stats, stop <-chan struct{}) error {
	for !stopped(ctx, stop) {
		id, ok := reg.Pick(owner)
		if !ok {
			time.Sleep(20 * time.Millisecond)
			continue
		}
		var err error
		switch rand.Intn(4) {
		case 0:
			_, err = svc.CreateNote(ctx, owner, id, dispute.NoteInput{Body: "Spoke to customer", Type: dispute.NoteCall}, audit.Context{})
		case 1:
			_, err = svc.CreateEvidence(ctx, owner, id, dispute.EvidenceInput{Label: "Receipt", FileURL: "https://files.example/receipt.pdf"}, audit.Context{})
		default:
			var task dispute.Task
			task, err = svc.CreateTask(ctx, owner, id, dispute.TaskInput{Label: "Collect receipts"}, audit.Context{})
			if err == nil {
				if rand.Intn(2) == 0 {
					_, err = svc.UpdateTask(ctx, owner, id, task.ID, dispute.TaskPatch{Status: ptr(dispute.TaskCompleted)}, audit.Context{})
				} else {
					err = svc.DeleteTask(ctx, owner, id, task.ID, audit.Context{})
				}
			}
		}
		if err := classify(err, stats); err != nil {
			return fmt.Errorf("child writer %s: %w", owner, err)
		}
		time.Sleep(time.Duration(10+rand.Intn(25)) * time.Millisecond)
	}
	return nil
}

// Deleter removes a random case now and then, racing the other writers.
func Deleter(ctx context.Context, svc *dispute.Service, reg *Registry, owner string, stats *Stats, stop <-chan struct{}) error {
	for !stopped(ctx, stop) {
		time.Sleep(time.Duration(150+rand.Intn(200)) * time.Millisecond)
		id, ok := reg.Pick(owner)
		if !ok {
			continue
		}
		err := svc.DeleteCase(ctx, owner, id, audit.Context{})
		if err == nil {
			reg.Remove(owner, id)
		}
		if err := classify(err, stats); err != nil {
			return fmt.Errorf("deleter %s: %w", owner, err)
		}
	}
	return nil
}

// Reader loads the workspace and checks that metrics agree with the cases
// returned alongside them and that no foreign case leaks in.
func Reader(ctx context.Context, svc *dispute.Service, owner string, stats *Stats, stop <-chan struct{}) error {
	for !stopped(ctx, stop) {
		ws, err := svc.LoadWorkspace(ctx, owner)
		if err != nil {
			if err := classify(err, stats); err != nil {
				return fmt.Errorf("reader %s: %w", owner, err)
			}
			continue
		}
		if err := checkWorkspace(owner, ws); err != nil {
			return fmt.Errorf("reader %s: %w", owner, err)
		}
		time.Sleep(time.Duration(30+rand.Intn(50)) * time.Millisecond)
	}
	return nil
}

func checkWorkspace(owner string, ws dispute.Workspace) error {
	m := ws.Metrics
	if m.TotalCases != len(ws.Cases) {
		return fmt.Errorf("totalCases %d for %d cases", m.TotalCases, len(ws.Cases))
	}
	histogram := 0
	for _, n := range m.StatusCounts {
		histogram += n
	}
	if histogram != m.TotalCases {
		return fmt.Errorf("status histogram sums to %d, want %d", histogram, m.TotalCases)
	}
	for _, c := range ws.Cases {
		if c.OwnerID != owner {
			return fmt.Errorf("case %s of owner %s leaked into workspace", c.ID, c.OwnerID)
		}
	}
	if again := dispute.Summarize(ws.Cases, ws.GeneratedAt); again.Overdue != m.Overdue || again.ActiveTasks != m.ActiveTasks {
		return fmt.Errorf("metrics not reproducible: overdue %d/%d active %d/%d", m.Overdue, again.Overdue, m.ActiveTasks, again.ActiveTasks)
	}
	return nil
}

func ptr[T any](v T) *T { return &v }
