package runner

import (
	"io"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"structura/pkg/script"
	"structura/pkg/vm"
)

// Report summarises a batch run. Results are ordered by path and mode.
type Report struct {
	Results  []*script.Result
	Passed   int
	Failed   int
	Skipped  int // scenarios excluded by the filter
	Totals   vm.Stats
	Pool     PoolStats
	Duration time.Duration
}

func (r *Report) add(res *script.Result) {
	r.Results = append(r.Results, res)
	if res.Passed {
		r.Passed++
	} else {
		r.Failed++
	}
	r.Totals = r.Totals.Add(res.Stats)
}

// OK reports whether every result passed.
func (r *Report) OK() bool {
	return r.Failed == 0
}

// Failures returns the failed results in report order.
func (r *Report) Failures() []*script.Result {
	var out []*script.Result
	for _, res := range r.Results {
		if !res.Passed {
			out = append(out, res)
		}
	}
	return out
}

// Print writes a human readable summary. Counts use English digit grouping
// so large soak runs stay legible.
func (r *Report) Print(w io.Writer) error {
	p := message.NewPrinter(language.English)

	for _, res := range r.Failures() {
		if _, err := p.Fprintf(w, "FAIL %s [%s] after %d steps: %v\n", res.Path, res.Mode(), res.Steps, res.Err); err != nil {
			return err
		}
	}
	if _, err := p.Fprintf(w, "%d passed, %d failed, %d skipped in %v\n",
		r.Passed, r.Failed, r.Skipped, r.Duration.Round(time.Millisecond)); err != nil {
		return err
	}
	if r.Pool.WorkerCount > 0 {
		if _, err := p.Fprintf(w, "Workers: %d, average %v per run\n",
			r.Pool.WorkerCount, r.Pool.AverageTime.Round(time.Microsecond)); err != nil {
			return err
		}
	}
	if _, err := p.Fprintf(w, "Objects created: %d, shapes created: %d, cache lookups: %d\n",
		r.Totals.ObjectsCreated, r.Totals.ShapesCreated, r.Totals.CacheHits+r.Totals.CacheMisses); err != nil {
		return err
	}
	_, err := r.Totals.WriteTo(w)
	return err
}
