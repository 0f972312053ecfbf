// Package runner executes scenario files in parallel and summarises the
// outcome.
package runner

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/tliron/commonlog"

	"structura/pkg/script"
	"structura/pkg/vm"
)

var log = commonlog.GetLogger("structura.runner")

// Options controls a batch run.
type Options struct {
	Workers int
	Engine  vm.Options
	Timeout time.Duration // per scenario and mode

	// Filter selects scenarios by name. Nil runs everything.
	Filter func(name string) (bool, error)

	// OnResult, when set, sees every result as it arrives.
	OnResult func(*script.Result)
}

// Run executes every selected scenario in each of its modes. Results come
// back ordered by path and then mode, regardless of which worker ran them.
func Run(ctx context.Context, scenarios []*script.Scenario, opts Options) (*Report, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var jobs []*Job
	for _, s := range scenarios {
		if opts.Filter != nil {
			ok, err := opts.Filter(s.Name)
			if err != nil {
				return nil, fmt.Errorf("filter %s: %w", s.Name, err)
			}
			if !ok {
				continue
			}
		}
		for _, strict := range s.Modes() {
			jobs = append(jobs, &Job{Seq: len(jobs), Scenario: s, Strict: strict})
		}
	}

	report := &Report{Skipped: len(scenarios)}
	if len(jobs) == 0 {
		report.Duration = time.Since(start)
		return report, nil
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, len(jobs))
	pool := NewPool(PoolConfig{
		Workers: workers,
		Engine:  opts.Engine,
		Timeout: opts.Timeout,
	})
	if err := pool.Start(ctx); err != nil {
		return nil, err
	}

	var submitErr error
	submitDone := make(chan struct{})
	go func() {
		defer close(submitDone)
		for _, job := range jobs {
			if err := pool.Submit(job); err != nil {
				submitErr = err
				return
			}
		}
	}()
	// abort waits for the submitter so Shutdown never closes the queue
	// under a pending send.
	abort := func(err error) (*Report, error) {
		<-submitDone
		_ = pool.Shutdown(context.Background())
		return nil, err
	}

	results := make([]*script.Result, len(jobs))
	for received := 0; received < len(jobs); {
		select {
		case r := <-pool.Results():
			results[r.Seq] = r.Result
			received++
			if opts.OnResult != nil {
				opts.OnResult(r.Result)
			}
		case <-ctx.Done():
			return abort(ctx.Err())
		}
	}
	<-submitDone
	if submitErr != nil {
		return abort(submitErr)
	}
	if err := pool.Shutdown(ctx); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Path != results[j].Path {
			return results[i].Path < results[j].Path
		}
		return !results[i].Strict && results[j].Strict
	})
	seen := make(map[string]bool)
	for _, r := range results {
		report.add(r)
		seen[r.Path+"\x00"+r.Name] = true
	}
	report.Skipped = len(scenarios) - len(seen)
	report.Pool = pool.Stats()
	report.Duration = time.Since(start)
	log.Infof("ran %d jobs on %d workers: %d passed, %d failed", len(jobs), workers, report.Passed, report.Failed)
	return report, nil
}
