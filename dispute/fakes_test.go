package dispute

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"disputedesk/audit"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakePool serialises transactions: a transaction holds the pool lock from
// BeginTx until Commit or Rollback, which stands in for row locks.
type fakePool struct {
	mu      sync.Mutex
	txMu    sync.Mutex
	txs     []*fakeTx
	beginFn func() error
}

func (f *fakePool) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	if f.beginFn != nil {
		if err := f.beginFn(); err != nil {
			return nil, err
		}
	}
	f.txMu.Lock()
	tx := &fakeTx{opts: opts, release: f.txMu.Unlock}

	f.mu.Lock()
	f.txs = append(f.txs, tx)
	f.mu.Unlock()
	return tx, nil
}

func (f *fakePool) last() *fakeTx {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.txs) == 0 {
		return nil
	}
	return f.txs[len(f.txs)-1]
}

type fakeTx struct {
	opts      pgx.TxOptions
	release   func()
	once      sync.Once
	rolled    bool
	committed bool
}

func (f *fakeTx) done() {
	f.once.Do(f.release)
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	if !f.rolled {
		f.committed = true
	}
	f.done()
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	if !f.committed {
		f.rolled = true
	}
	f.done()
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}

// memGateway is an in-memory Gateway that enforces the case number index and
// cascades case deletes the way the schema does.
type memGateway struct {
	mu       sync.Mutex
	seq      int
	cases    map[string]Case
	tasks    map[string]Task
	notes    map[string]Note
	evidence map[string]Evidence
	order    map[string]int
	locks    []string
}

func newMemGateway() *memGateway {
	return &memGateway{
		cases:    map[string]Case{},
		tasks:    map[string]Task{},
		notes:    map[string]Note{},
		evidence: map[string]Evidence{},
		order:    map[string]int{},
	}
}

func (g *memGateway) stamp(id string) time.Time {
	g.seq++
	g.order[id] = g.seq
	return time.Unix(int64(g.seq), 0).UTC()
}

func (g *memGateway) numberHolder(number, excludeID string) bool {
	for id, c := range g.cases {
		if c.CaseNumber == number && id != excludeID {
			return true
		}
	}
	return false
}

func (g *memGateway) CaseNumberInUse(ctx context.Context, tx pgx.Tx, number, excludeID string, lock LockMode) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if lock == LockForUpdate {
		g.locks = append(g.locks, "number:"+number)
	}
	return g.numberHolder(number, excludeID), nil
}

func (g *memGateway) ReserveCaseNumber(ctx context.Context, tx pgx.Tx, number, excludeID string) (bool, error) {
	return g.CaseNumberInUse(ctx, tx, number, excludeID, LockForUpdate)
}

func (g *memGateway) InsertCase(ctx context.Context, tx pgx.Tx, c Case) (Case, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.numberHolder(c.CaseNumber, "") {
		return Case{}, ErrDuplicateCaseNumber
	}
	c.CreatedAt = g.stamp(c.ID)
	c.UpdatedAt = c.CreatedAt
	c.Tasks, c.Notes, c.Evidence = nil, nil, nil
	g.cases[c.ID] = c
	return c, nil
}

func (g *memGateway) FindCase(ctx context.Context, tx pgx.Tx, ownerID, caseID string, lock LockMode) (Case, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if lock == LockForUpdate {
		g.locks = append(g.locks, "case:"+caseID)
	}
	c, ok := g.cases[caseID]
	if !ok || c.OwnerID != ownerID {
		return Case{}, ErrNoRecord
	}
	return c, nil
}

func (g *memGateway) UpdateCase(ctx context.Context, tx pgx.Tx, c Case) (Case, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	stored, ok := g.cases[c.ID]
	if !ok || stored.OwnerID != c.OwnerID {
		return Case{}, ErrNoRecord
	}
	if g.numberHolder(c.CaseNumber, c.ID) {
		return Case{}, ErrDuplicateCaseNumber
	}
	c.CreatedAt = stored.CreatedAt
	c.UpdatedAt = stored.UpdatedAt.Add(time.Second)
	c.Tasks, c.Notes, c.Evidence = nil, nil, nil
	g.cases[c.ID] = c
	return c, nil
}

func (g *memGateway) DeleteCase(ctx context.Context, tx pgx.Tx, ownerID, caseID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.cases[caseID]
	if !ok || c.OwnerID != ownerID {
		return ErrNoRecord
	}
	delete(g.cases, caseID)
	for id, t := range g.tasks {
		if t.CaseID == caseID {
			delete(g.tasks, id)
		}
	}
	for id, n := range g.notes {
		if n.CaseID == caseID {
			delete(g.notes, id)
		}
	}
	for id, e := range g.evidence {
		if e.CaseID == caseID {
			delete(g.evidence, id)
		}
	}
	return nil
}

func (g *memGateway) ListCases(ctx context.Context, tx pgx.Tx, filter CaseFilter) ([]Case, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []Case
	for _, c := range g.cases {
		if c.OwnerID != filter.OwnerID {
			continue
		}
		if filter.CaseID != "" && c.ID != filter.CaseID {
			continue
		}
		for _, t := range g.tasks {
			if t.CaseID == c.ID {
				c.Tasks = append(c.Tasks, t)
			}
		}
		for _, n := range g.notes {
			if n.CaseID == c.ID {
				c.Notes = append(c.Notes, n)
			}
		}
		for _, e := range g.evidence {
			if e.CaseID == c.ID {
				c.Evidence = append(c.Evidence, e)
			}
		}
		sort.Slice(c.Tasks, func(i, j int) bool { return g.order[c.Tasks[i].ID] < g.order[c.Tasks[j].ID] })
		sort.Slice(c.Notes, func(i, j int) bool { return g.order[c.Notes[i].ID] < g.order[c.Notes[j].ID] })
		sort.Slice(c.Evidence, func(i, j int) bool { return g.order[c.Evidence[i].ID] < g.order[c.Evidence[j].ID] })
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return g.order[out[i].ID] > g.order[out[j].ID] })
	return out, nil
}

func (g *memGateway) InsertTask(ctx context.Context, tx pgx.Tx, t Task) (Task, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.cases[t.CaseID]; !ok {
		return Task{}, errors.New("foreign key violation")
	}
	t.CreatedAt = g.stamp(t.ID)
	t.UpdatedAt = t.CreatedAt
	g.tasks[t.ID] = t
	return t, nil
}

func (g *memGateway) FindTask(ctx context.Context, tx pgx.Tx, caseID, taskID string, lock LockMode) (Task, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tasks[taskID]
	if !ok || t.CaseID != caseID {
		return Task{}, ErrNoRecord
	}
	return t, nil
}

func (g *memGateway) UpdateTask(ctx context.Context, tx pgx.Tx, t Task) (Task, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	stored, ok := g.tasks[t.ID]
	if !ok || stored.CaseID != t.CaseID {
		return Task{}, ErrNoRecord
	}
	t.CreatedAt = stored.CreatedAt
	g.tasks[t.ID] = t
	return t, nil
}

func (g *memGateway) DeleteTask(ctx context.Context, tx pgx.Tx, caseID, taskID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tasks[taskID]
	if !ok || t.CaseID != caseID {
		return ErrNoRecord
	}
	delete(g.tasks, taskID)
	return nil
}

func (g *memGateway) InsertNote(ctx context.Context, tx pgx.Tx, n Note) (Note, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.cases[n.CaseID]; !ok {
		return Note{}, errors.New("foreign key violation")
	}
	n.CreatedAt = g.stamp(n.ID)
	n.UpdatedAt = n.CreatedAt
	g.notes[n.ID] = n
	return n, nil
}

func (g *memGateway) FindNote(ctx context.Context, tx pgx.Tx, caseID, noteID string, lock LockMode) (Note, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.notes[noteID]
	if !ok || n.CaseID != caseID {
		return Note{}, ErrNoRecord
	}
	return n, nil
}

func (g *memGateway) UpdateNote(ctx context.Context, tx pgx.Tx, n Note) (Note, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	stored, ok := g.notes[n.ID]
	if !ok || stored.CaseID != n.CaseID {
		return Note{}, ErrNoRecord
	}
	n.CreatedAt = stored.CreatedAt
	n.CreatedBy = stored.CreatedBy
	g.notes[n.ID] = n
	return n, nil
}

func (g *memGateway) DeleteNote(ctx context.Context, tx pgx.Tx, caseID, noteID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.notes[noteID]
	if !ok || n.CaseID != caseID {
		return ErrNoRecord
	}
	delete(g.notes, noteID)
	return nil
}

func (g *memGateway) InsertEvidence(ctx context.Context, tx pgx.Tx, e Evidence) (Evidence, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.cases[e.CaseID]; !ok {
		return Evidence{}, errors.New("foreign key violation")
	}
	e.CreatedAt = g.stamp(e.ID)
	e.UpdatedAt = e.CreatedAt
	g.evidence[e.ID] = e
	return e, nil
}

func (g *memGateway) FindEvidence(ctx context.Context, tx pgx.Tx, caseID, evidenceID string, lock LockMode) (Evidence, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.evidence[evidenceID]
	if !ok || e.CaseID != caseID {
		return Evidence{}, ErrNoRecord
	}
	return e, nil
}

func (g *memGateway) UpdateEvidence(ctx context.Context, tx pgx.Tx, e Evidence) (Evidence, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	stored, ok := g.evidence[e.ID]
	if !ok || stored.CaseID != e.CaseID {
		return Evidence{}, ErrNoRecord
	}
	e.CreatedAt = stored.CreatedAt
	e.UploadedBy = stored.UploadedBy
	g.evidence[e.ID] = e
	return e, nil
}

func (g *memGateway) DeleteEvidence(ctx context.Context, tx pgx.Tx, caseID, evidenceID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.evidence[evidenceID]
	if !ok || e.CaseID != caseID {
		return ErrNoRecord
	}
	delete(g.evidence, evidenceID)
	return nil
}

func (g *memGateway) caseCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.cases)
}

func (g *memGateway) childCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tasks) + len(g.notes) + len(g.evidence)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingEmitter) Emit(_ context.Context, ev audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingEmitter) snapshot() []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Event(nil), r.events...)
}
