package test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"disputedesk/audit"
	"disputedesk/casenumber"
	"disputedesk/dispute"
)

// TestPostgresWorkspace runs the service against a migrated PostgreSQL so the
// gateway's SQL, locking and cascades are exercised for real.
func TestPostgresWorkspace(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	h := openHarness(t, ctx)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gateway := dispute.NewGateway()

	reset := func(t *testing.T) {
		t.Helper()
		require.NoError(t, h.Reset(ctx))
	}

	t.Run("create applies defaults and round-trips columns", func(t *testing.T) {
		reset(t)
		svc := newService(h.Pool())
		due := time.Date(2026, 4, 1, 10, 30, 0, 0, time.UTC)

		created, err := svc.CreateCase(ctx, "U1", dispute.CaseInput{
			Title:          "Billing dispute",
			AmountDisputed: ptr(250.0),
			DueAt:          &due,
			Summary:        ptr("Charged twice"),
		}, audit.Context{})
		require.NoError(t, err)

		assert.Regexp(t, regexp.MustCompile(`^SD-[0-9A-F]{8}$`), created.CaseNumber)
		assert.Equal(t, dispute.StatusDraft, created.Status)
		assert.Equal(t, "GBP", created.Currency)
		require.NotNil(t, created.AmountDisputed)
		assert.InDelta(t, 250.0, *created.AmountDisputed, 1e-9)
		require.NotNil(t, created.DueAt)
		assert.True(t, created.DueAt.Equal(due))
		assert.False(t, created.CreatedAt.IsZero())

		got, err := svc.GetCase(ctx, "U1", created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.CaseNumber, got.CaseNumber)
		assert.Equal(t, "Charged twice", *got.Summary)
	})

	t.Run("concurrent allocation with colliding candidates stays unique", func(t *testing.T) {
		reset(t)
		var n atomic.Int64
		numbers := casenumber.New(gateway, casenumber.Config{MaxAttempts: 16}, logger).
			WithGenerator(func(int) string { return fmt.Sprintf("%08X", n.Add(1)/3) })
		svc := dispute.NewService(h.Pool(), gateway, numbers, audit.Nop{}, logger)

		const writers = 24
		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < writers; i++ {
			owner := fmt.Sprintf("owner-%d", i%3)
			g.Go(func() error {
				_, err := svc.CreateCase(gctx, owner, dispute.CaseInput{Title: "Concurrent"}, audit.Context{})
				return err
			})
		}
		require.NoError(t, g.Wait())

		var total, distinct int
		require.NoError(t, h.Pool().QueryRow(ctx, `SELECT COUNT(*), COUNT(DISTINCT case_number) FROM dispute_cases`).Scan(&total, &distinct))
		assert.Equal(t, writers, total)
		assert.Equal(t, writers, distinct)
	})

	t.Run("racing explicit proposals yield one winner", func(t *testing.T) {
		reset(t)
		svc := newService(h.Pool())

		const racers = 8
		var wins, conflicts atomic.Int64
		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < racers; i++ {
			owner := fmt.Sprintf("owner-%d", i)
			g.Go(func() error {
				_, err := svc.CreateCase(gctx, owner, dispute.CaseInput{Title: "Race", CaseNumber: "SD-RACE0001"}, audit.Context{})
				switch {
				case err == nil:
					wins.Add(1)
				case dispute.CodeOf(err) == dispute.CodeCaseNumberConflict:
					conflicts.Add(1)
				default:
					return err
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())
		assert.Equal(t, int64(1), wins.Load())
		assert.Equal(t, int64(racers-1), conflicts.Load())
	})

	t.Run("ownership isolation and partial update", func(t *testing.T) {
		reset(t)
		svc := newService(h.Pool())
		created, err := svc.CreateCase(ctx, "U1", dispute.CaseInput{Title: "Mine", Severity: dispute.SeverityHigh, ExternalReference: ptr("EXT-1")}, audit.Context{})
		require.NoError(t, err)

		_, err = svc.UpdateCase(ctx, "U2", created.ID, dispute.CasePatch{Title: ptr("Hijack")}, audit.Context{})
		require.ErrorIs(t, err, dispute.ErrNotFound)
		require.ErrorIs(t, svc.DeleteCase(ctx, "U2", created.ID, audit.Context{}), dispute.ErrNotFound)

		updated, err := svc.UpdateCase(ctx, "U1", created.ID, dispute.CasePatch{Status: ptr(dispute.StatusResolved)}, audit.Context{})
		require.NoError(t, err)
		assert.Equal(t, dispute.StatusResolved, updated.Status)
		assert.Equal(t, "Mine", updated.Title)
		assert.Equal(t, dispute.SeverityHigh, updated.Severity)
		assert.Equal(t, "EXT-1", *updated.ExternalReference)
		assert.Equal(t, created.CaseNumber, updated.CaseNumber)
		assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))
	})

	t.Run("delete cascades to children", func(t *testing.T) {
		reset(t)
		svc := newService(h.Pool())
		c, err := svc.CreateCase(ctx, "U1", dispute.CaseInput{Title: "Cascade"}, audit.Context{})
		require.NoError(t, err)
		_, err = svc.CreateTask(ctx, "U1", c.ID, dispute.TaskInput{Label: "Collect receipts"}, audit.Context{})
		require.NoError(t, err)
		_, err = svc.CreateNote(ctx, "U1", c.ID, dispute.NoteInput{Body: "Called"}, audit.Context{ActorID: "agent-1"})
		require.NoError(t, err)
		_, err = svc.CreateEvidence(ctx, "U1", c.ID, dispute.EvidenceInput{Label: "Invoice", FileURL: "https://files.example/i.pdf"}, audit.Context{})
		require.NoError(t, err)

		ws, err := svc.LoadWorkspace(ctx, "U1")
		require.NoError(t, err)
		require.Len(t, ws.Cases, 1)
		assert.Len(t, ws.Cases[0].Tasks, 1)
		require.Len(t, ws.Cases[0].Notes, 1)
		assert.Equal(t, "agent-1", *ws.Cases[0].Notes[0].CreatedBy)
		assert.Len(t, ws.Cases[0].Evidence, 1)
		assert.Equal(t, 1, ws.Metrics.ActiveTasks)

		require.NoError(t, svc.DeleteCase(ctx, "U1", c.ID, audit.Context{}))

		var children int
		require.NoError(t, h.Pool().QueryRow(ctx, `
			SELECT (SELECT COUNT(*) FROM dispute_tasks) + (SELECT COUNT(*) FROM dispute_notes) + (SELECT COUNT(*) FROM dispute_evidence)`).Scan(&children))
		assert.Zero(t, children)
	})

	t.Run("child lookups are scoped to their case", func(t *testing.T) {
		reset(t)
		svc := newService(h.Pool())
		a, err := svc.CreateCase(ctx, "U1", dispute.CaseInput{Title: "A"}, audit.Context{})
		require.NoError(t, err)
		b, err := svc.CreateCase(ctx, "U1", dispute.CaseInput{Title: "B"}, audit.Context{})
		require.NoError(t, err)
		task, err := svc.CreateTask(ctx, "U1", a.ID, dispute.TaskInput{Label: "On A"}, audit.Context{})
		require.NoError(t, err)

		_, err = svc.UpdateTask(ctx, "U1", b.ID, task.ID, dispute.TaskPatch{Status: ptr(dispute.TaskCompleted)}, audit.Context{})
		assert.Equal(t, dispute.CodeTaskNotFound, dispute.CodeOf(err))
	})
}

func ptr[T any](v T) *T { return &v }
