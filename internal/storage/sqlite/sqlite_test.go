package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/michaelbrown/pairpad/internal/storage"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening memory db: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func record(t *testing.T, s *SQLiteStore, r storage.Run) {
	t.Helper()
	if err := s.RecordRun(context.Background(), &r); err != nil {
		t.Fatalf("RecordRun(%s): %v", r.ID, err)
	}
}

func TestRecordAndGetRun(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	run := &storage.Run{
		ID:         "abc12345-0000-0000-0000-000000000000",
		SessionID:  "sess-1",
		Language:   "javascript",
		Source:     `console.log("hi")`,
		Output:     "hi",
		DurationMS: 12,
	}
	if err := s.RecordRun(ctx, run); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}

	if got.Output != "hi" {
		t.Errorf("output = %q, want %q", got.Output, "hi")
	}
	if got.SessionID != "sess-1" {
		t.Errorf("session = %q, want %q", got.SessionID, "sess-1")
	}
	if got.Failed {
		t.Error("failed should be false")
	}
	if got.DurationMS != 12 {
		t.Errorf("duration = %d, want 12", got.DurationMS)
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at should not be zero")
	}
}

func TestFailedFlagRoundTrips(t *testing.T) {
	s := testStore(t)
	record(t, s, storage.Run{ID: "f1", Language: "python", Output: "Traceback", Failed: true})

	got, err := s.GetRun(context.Background(), "f1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if !got.Failed {
		t.Error("failed should be true")
	}
}

func TestGetRunByPrefix(t *testing.T) {
	s := testStore(t)
	record(t, s, storage.Run{ID: "abc12345-0000-0000-0000-000000000000", Language: "python"})

	got, err := s.GetRun(context.Background(), "abc12345")
	if err != nil {
		t.Fatalf("GetRun by prefix: %v", err)
	}
	if got.ID != "abc12345-0000-0000-0000-000000000000" {
		t.Errorf("got ID %q", got.ID)
	}
}

func TestGetRunAmbiguousPrefix(t *testing.T) {
	s := testStore(t)
	record(t, s, storage.Run{ID: "abc00000", Language: "python"})
	record(t, s, storage.Run{ID: "abc11111", Language: "python"})

	_, err := s.GetRun(context.Background(), "abc")
	if err == nil {
		t.Fatal("expected error for ambiguous prefix")
	}
	if errors.Is(err, storage.ErrNotFound) {
		t.Errorf("ambiguous prefix should not be ErrNotFound: %v", err)
	}
}

func TestGetRunNotFound(t *testing.T) {
	s := testStore(t)

	_, err := s.GetRun(context.Background(), "nope")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	s := testStore(t)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	record(t, s, storage.Run{ID: "old", Language: "python", CreatedAt: base})
	record(t, s, storage.Run{ID: "new", Language: "python", CreatedAt: base.Add(2 * time.Second)})
	record(t, s, storage.Run{ID: "mid", Language: "python", CreatedAt: base.Add(time.Second)})

	runs, err := s.ListRuns(context.Background(), storage.RunListOptions{})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("got %d runs, want 3", len(runs))
	}
	for i, want := range []string{"new", "mid", "old"} {
		if runs[i].ID != want {
			t.Errorf("runs[%d] = %q, want %q", i, runs[i].ID, want)
		}
	}
	if !runs[0].CreatedAt.Equal(base.Add(2 * time.Second)) {
		t.Errorf("created_at = %v", runs[0].CreatedAt)
	}
}

func TestListRunsFilters(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	record(t, s, storage.Run{ID: "r1", SessionID: "s1", Language: "javascript"})
	record(t, s, storage.Run{ID: "r2", SessionID: "s1", Language: "python"})
	record(t, s, storage.Run{ID: "r3", SessionID: "s2", Language: "python"})

	runs, err := s.ListRuns(ctx, storage.RunListOptions{SessionID: "s1"})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("got %d runs for s1, want 2", len(runs))
	}

	runs, err = s.ListRuns(ctx, storage.RunListOptions{Language: "python"})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("got %d python runs, want 2", len(runs))
	}

	runs, err = s.ListRuns(ctx, storage.RunListOptions{SessionID: "s2", Language: "javascript"})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("got %d runs, want 0", len(runs))
	}
}

func TestListRunsLimitOffset(t *testing.T) {
	s := testStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		record(t, s, storage.Run{ID: string(rune('a' + i)), Language: "python", CreatedAt: base.Add(time.Duration(i) * time.Second)})
	}

	runs, err := s.ListRuns(context.Background(), storage.RunListOptions{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].ID != "d" || runs[1].ID != "c" {
		t.Errorf("got %q, %q; want d, c", runs[0].ID, runs[1].ID)
	}
}

func TestDeleteRun(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	record(t, s, storage.Run{ID: "del12345", Language: "python"})

	if err := s.DeleteRun(ctx, "del1"); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	if _, err := s.GetRun(ctx, "del12345"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteRun(ctx, "del12345"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("second delete: got %v", err)
	}
}

func TestReopenKeepsRuns(t *testing.T) {
	path := t.TempDir() + "/nested/runs.db"

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	record(t, s, storage.Run{ID: "persist", Language: "python"})
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	if _, err := s.GetRun(context.Background(), "persist"); err != nil {
		t.Fatalf("GetRun after reopen: %v", err)
	}
}
