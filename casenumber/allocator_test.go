package casenumber

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
)

type fakeReserver struct {
	taken   map[string]string // number -> owning case id
	checked []string
	err     error
}

func (f *fakeReserver) ReserveCaseNumber(_ context.Context, _ pgx.Tx, number, excludeID string) (bool, error) {
	f.checked = append(f.checked, number)
	if f.err != nil {
		return false, f.err
	}
	owner, ok := f.taken[number]
	if !ok {
		return false, nil
	}
	return owner != excludeID, nil
}

func sequence(values ...string) func(int) string {
	i := 0
	return func(int) string {
		v := values[i%len(values)]
		i++
		return v
	}
}

func TestAllocate_Format(t *testing.T) {
	alloc := New(&fakeReserver{}, DefaultConfig(), nil)

	number, err := alloc.Allocate(context.Background(), nil)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if !regexp.MustCompile(`^SD-[0-9A-F]{8}$`).MatchString(number) {
		t.Fatalf("unexpected case number format %q", number)
	}
}

func TestAllocate_SkipsTakenCandidates(t *testing.T) {
	store := &fakeReserver{taken: map[string]string{"SD-AAAAAAAA": "c1", "SD-BBBBBBBB": "c2"}}
	alloc := New(store, DefaultConfig(), nil).WithGenerator(sequence("AAAAAAAA", "BBBBBBBB", "CCCCCCCC"))

	number, err := alloc.Allocate(context.Background(), nil)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if number != "SD-CCCCCCCC" {
		t.Fatalf("expected third candidate, got %q", number)
	}
	if len(store.checked) != 3 {
		t.Fatalf("expected 3 locking checks, got %d", len(store.checked))
	}
}

func TestAllocate_ExhaustsAfterBound(t *testing.T) {
	store := &fakeReserver{taken: map[string]string{"X-DEAD": "c1"}}
	alloc := New(store, Config{Prefix: "X-", Length: 4, MaxAttempts: 3}, nil).WithGenerator(sequence("DEAD"))

	_, err := alloc.Allocate(context.Background(), nil)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if len(store.checked) != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", len(store.checked))
	}
}

func TestAllocate_PropagatesStoreError(t *testing.T) {
	boom := fmt.Errorf("lock timeout")
	alloc := New(&fakeReserver{err: boom}, DefaultConfig(), nil)

	_, err := alloc.Allocate(context.Background(), nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
	if errors.Is(err, ErrExhausted) {
		t.Fatalf("store failure must not look like exhaustion")
	}
}

func TestResolve_TrimsAndAcceptsFreeNumber(t *testing.T) {
	store := &fakeReserver{}
	alloc := New(store, DefaultConfig(), nil)

	number, err := alloc.Resolve(context.Background(), nil, "  CASE-42 ", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if number != "CASE-42" {
		t.Fatalf("expected trimmed number, got %q", number)
	}
	if len(store.checked) != 1 || store.checked[0] != "CASE-42" {
		t.Fatalf("expected locking check on trimmed number, got %v", store.checked)
	}
}

func TestResolve_ConflictIsNotRenamed(t *testing.T) {
	store := &fakeReserver{taken: map[string]string{"CASE-42": "other"}}
	alloc := New(store, DefaultConfig(), nil)

	_, err := alloc.Resolve(context.Background(), nil, "CASE-42", "mine")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if len(store.checked) != 1 {
		t.Fatalf("conflict must not fall back to generation, checks=%v", store.checked)
	}
}

func TestResolve_ExcludesOwnCase(t *testing.T) {
	store := &fakeReserver{taken: map[string]string{"CASE-42": "mine"}}
	alloc := New(store, DefaultConfig(), nil)

	number, err := alloc.Resolve(context.Background(), nil, "CASE-42", "mine")
	if err != nil {
		t.Fatalf("resolve own number: %v", err)
	}
	if number != "CASE-42" {
		t.Fatalf("unexpected number %q", number)
	}
}

func TestResolve_BlankAllocates(t *testing.T) {
	alloc := New(&fakeReserver{}, DefaultConfig(), nil).WithGenerator(sequence("0123ABCD"))

	number, err := alloc.Resolve(context.Background(), nil, "   ", "")
	if err != nil {
		t.Fatalf("resolve blank: %v", err)
	}
	if number != "SD-0123ABCD" {
		t.Fatalf("expected generated number, got %q", number)
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	alloc := New(&fakeReserver{}, Config{Length: 99}, nil)
	cfg := alloc.Config()
	if cfg.Prefix != DefaultPrefix || cfg.Length != DefaultLength || cfg.MaxAttempts != DefaultMaxAttempts {
		t.Fatalf("unexpected effective config %+v", cfg)
	}
}

func TestRandomHex_Length(t *testing.T) {
	for _, n := range []int{4, 8, 12, 40} {
		got := RandomHex(n)
		want := n
		if want > MaxLength {
			want = MaxLength
		}
		if len(got) != want {
			t.Fatalf("RandomHex(%d) length %d, want %d", n, len(got), want)
		}
	}
}
