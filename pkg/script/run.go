package script

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"structura/pkg/errors"
	"structura/pkg/vm"
)

// Result is the outcome of one scenario in one mode.
type Result struct {
	Name     string
	Path     string
	Strict   bool
	Passed   bool
	Steps    int
	Err      error
	Output   string
	Stats    vm.Stats
	Duration time.Duration
}

func (r *Result) Mode() string {
	if r.Strict {
		return "strict"
	}
	return "sloppy"
}

// Run executes s in a fresh realm. A negative scenario passes only when a
// step fails with the declared error type.
func Run(ctx context.Context, s *Scenario, base vm.Options, strict bool) *Result {
	start := time.Now()
	res := &Result{Name: s.Name, Path: s.Path, Strict: strict}
	defer func() { res.Duration = time.Since(start) }()

	opts := s.Engine.Apply(base)
	if err := opts.Validate(); err != nil {
		res.Err = fmt.Errorf("%s: engine overrides: %w", s.Path, err)
		return res
	}

	cmds, errs := Parse(s.Steps, s.StepsLine, s.Path)
	if len(errs) > 0 {
		res.Err = errs[0]
		return res
	}

	var out bytes.Buffer
	in := NewInterpreter(opts, strict, &out)
	var stepErr error
	for _, cmd := range cmds {
		if err := ctx.Err(); err != nil {
			stepErr = err
			break
		}
		if _, err := in.Step(cmd); err != nil {
			stepErr = err
			break
		}
		res.Steps++
	}
	res.Output = out.String()
	res.Stats = in.Realm().Stats()

	switch {
	case s.Negative == nil:
		res.Err = stepErr
	case stepErr == nil:
		res.Err = fmt.Errorf("%s: expected %s, but every step succeeded", s.Path, s.Negative.Type)
	case errorKind(stepErr) != s.Negative.Type && errors.KindOf(stepErr) != s.Negative.Type:
		res.Err = fmt.Errorf("%s: expected %s, got %w", s.Path, s.Negative.Type, stepErr)
	}
	res.Passed = res.Err == nil
	if res.Passed {
		log.Debugf("scenario %s (%s) passed in %d steps", s.Name, res.Mode(), res.Steps)
	} else {
		log.Infof("scenario %s (%s) failed: %s", s.Name, res.Mode(), res.Err)
	}
	return res
}
