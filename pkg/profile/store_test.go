package profile

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"structura/pkg/runner"
	"structura/pkg/script"
	"structura/pkg/vm"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func report(passed bool) *runner.Report {
	ok := &script.Result{Name: "ok", Path: "ok.yaml", Passed: true, Steps: 3, Duration: time.Millisecond,
		Stats: vm.Stats{CacheHits: 3, CacheMisses: 1}}
	other := &script.Result{Name: "other", Path: "other.yaml", Strict: true, Passed: passed, Steps: 2, Duration: 2 * time.Millisecond}
	if !passed {
		other.Err = errors.New("expected 1, got 2")
	}
	r := &runner.Report{
		Results:  []*script.Result{ok, other},
		Skipped:  1,
		Totals:   vm.Stats{ShapesCreated: 12, CacheHits: 3, CacheMisses: 1},
		Pool:     runner.PoolStats{WorkerCount: 4},
		Duration: 5 * time.Millisecond,
	}
	for _, res := range r.Results {
		if res.Passed {
			r.Passed++
		} else {
			r.Failed++
		}
	}
	return r
}

func TestRecordAndRecent(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	started := time.Unix(1_700_000_000, 123)
	first, err := s.Record(ctx, report(true), started)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	second, err := s.Record(ctx, report(false), started.Add(time.Minute))
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if second <= first {
		t.Errorf("run ids not increasing: %d then %d", first, second)
	}

	runs, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != second {
		t.Fatalf("Recent returned %+v", runs)
	}
	got := runs[1]
	want := Run{
		ID:        first,
		StartedAt: started,
		Duration:  5 * time.Millisecond,
		Passed:    2,
		Skipped:   1,
		Workers:   4,
		Stats:     vm.Stats{ShapesCreated: 12, CacheHits: 3, CacheMisses: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("run mismatch (-want +got):\n%s", diff)
	}
	if runs[0].Failed != 1 {
		t.Errorf("second run failed = %d, want 1", runs[0].Failed)
	}

	limited, err := s.Recent(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Errorf("Recent(1) = %d runs, %v", len(limited), err)
	}
}

func TestResultsAndHistory(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	id, err := s.Record(ctx, report(false), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Record(ctx, report(true), time.Now()); err != nil {
		t.Fatal(err)
	}

	results, err := s.Results(ctx, id)
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	want := []ScenarioResult{
		{RunID: id, Path: "ok.yaml", Name: "ok", Mode: "sloppy", Passed: true, Steps: 3, Duration: time.Millisecond, HitRate: 75},
		{RunID: id, Path: "other.yaml", Name: "other", Mode: "strict", Steps: 2, Error: "expected 1, got 2", Duration: 2 * time.Millisecond},
	}
	if diff := cmp.Diff(want, results); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}

	history, err := s.History(ctx, "other.yaml", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 || !history[0].Passed || history[1].Passed {
		t.Errorf("history = %+v", history)
	}
}

func TestGetAndPrune(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := s.Record(ctx, report(true), time.Now())
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	if run, err := s.Get(ctx, ids[1]); err != nil || run.ID != ids[1] {
		t.Errorf("Get(%d) = %+v, %v", ids[1], run, err)
	}
	if _, err := s.Get(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(999) error = %v, want ErrNotFound", err)
	}

	n, err := s.Prune(ctx, 1)
	if err != nil || n != 2 {
		t.Fatalf("Prune = %d, %v; want 2", n, err)
	}
	runs, err := s.Recent(ctx, 10)
	if err != nil || len(runs) != 1 || runs[0].ID != ids[2] {
		t.Errorf("after prune: %+v, %v", runs, err)
	}
	// Results cascade with their run.
	if results, err := s.Results(ctx, ids[0]); err != nil || len(results) != 0 {
		t.Errorf("results of pruned run: %d, %v", len(results), err)
	}
}

func TestReopenKeepsHistory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Record(ctx, report(true), time.Now()); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	runs, err := s.Recent(ctx, 5)
	if err != nil || len(runs) != 1 {
		t.Errorf("reopened store has %d runs, %v", len(runs), err)
	}
}
