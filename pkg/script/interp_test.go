package script

import (
	"bytes"
	"context"
	stderrors "errors"
	"slices"
	"strings"
	"testing"

	"structura/pkg/errors"
	"structura/pkg/vm"
)

func TestScenarios(t *testing.T) {
	scenarios, err := LoadDir("testdata")
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(scenarios) == 0 {
		t.Fatal("no scenarios in testdata")
	}
	for _, s := range scenarios {
		for _, strict := range s.Modes() {
			res := Run(context.Background(), s, vm.DefaultOptions(), strict)
			t.Run(s.Name+"/"+res.Mode(), func(t *testing.T) {
				if !res.Passed {
					t.Fatalf("%s after %d steps: %v", s.Path, res.Steps, res.Err)
				}
			})
		}
	}
}

func newTestInterpreter(t *testing.T, strict bool) (*Interpreter, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return NewInterpreter(vm.DefaultOptions(), strict, &out), &out
}

func run(t *testing.T, in *Interpreter, src string) {
	t.Helper()
	if _, err := in.RunSource(src, 1, "inline"); err != nil {
		t.Fatalf("RunSource: %v", err)
	}
}

func TestStepResults(t *testing.T) {
	in, out := newTestInterpreter(t, false)
	run(t, in, `new o
set o.s "text"
set o.n -0
func f const 1`)

	tests := []struct {
		line string
		want string
	}{
		{"get o.s", `"text"`},
		{"get o.n", "-0"},
		{"get o.missing", "undefined"},
		{"let alias o", "o"},
		{"get o.f", "undefined"},
		{"set o.f f", "f"},
		{"proto o", "Object"},
		{"keys o", "[s, n, f]"},
		{"describe o.s", `{value: "text", writable: true, enumerable: true, configurable: true}`},
		{"print o.s 1 null", `"text" 1 null`},
		{"let inf -Infinity", "-Infinity"},
		{"let nan NaN", "NaN"},
	}
	for i, tt := range tests {
		cmd, err := ParseLine(tt.line, 100+i, "inline")
		if err != nil {
			t.Fatalf("%s: %v", tt.line, err)
		}
		got, err := in.Step(cmd)
		if err != nil {
			t.Errorf("%s: unexpected error %v", tt.line, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s = %s, want %s", tt.line, got, tt.want)
		}
	}
	if !strings.Contains(out.String(), `"text" 1 null`) {
		t.Errorf("print output = %q", out.String())
	}
}

func TestStepExpectations(t *testing.T) {
	in, _ := newTestInterpreter(t, true)
	run(t, in, "new o\nset o.a 1\nfreeze o")

	// An expected engine error is a pass and reports its kind.
	cmd, _ := ParseLine("set o.a 2 => TypeError", 4, "inline")
	if got, err := in.Step(cmd); err != nil || got != "TypeError" {
		t.Errorf("expected TypeError to match, got %q, %v", got, err)
	}

	// A mismatch names both values.
	cmd, _ = ParseLine("get o.a => 2", 5, "inline")
	_, err := in.Step(cmd)
	if err == nil || !strings.Contains(err.Error(), "expected 2, got 1") {
		t.Errorf("mismatch error = %v", err)
	}
	var se *errors.ScriptError
	if !stderrors.As(err, &se) || se.Line != 5 {
		t.Errorf("mismatch error is not a positioned script error: %v", err)
	}

	// An unexpected engine error keeps its cause.
	cmd, _ = ParseLine("set o.a 3", 6, "inline")
	_, err = in.Step(cmd)
	if !errors.IsTypeError(err) {
		t.Errorf("cause lost: %v", err)
	}
	if !stderrors.As(err, &se) || se.Line != 6 {
		t.Errorf("engine error not wrapped with its line: %v", err)
	}

	// Thrown values match with throws.
	run(t, in, "func boom throw \"bad\"\nnew p\ndefine p.x get=boom")
	cmd, _ = ParseLine(`get p.x => throws "bad"`, 7, "inline")
	if got, err := in.Step(cmd); err != nil || got != "Throw" {
		t.Errorf("thrown value did not match: %q, %v", got, err)
	}
}

func TestStepUsageErrors(t *testing.T) {
	in, _ := newTestInterpreter(t, false)
	run(t, in, "new o")
	for _, line := range []string{
		"nosuch o",
		"get",
		"get o.x site=0",
		"get o.x other=1",
		"set o.x",
		"new",
		"new o Object extra",
		"get missing.x",
		"get true.x",
		"let null 1",
		"typed t Float16Array 1",
		"site 1 color",
		"stat nosuch",
		"param o 0",
	} {
		cmd, err := ParseLine(line, 2, "inline")
		if err != nil {
			t.Fatalf("%s: %v", line, err)
		}
		if _, err := in.Step(cmd); err == nil {
			t.Errorf("%s: expected an error", line)
		}
	}
}

func TestStepRejectsOversizedInput(t *testing.T) {
	in, _ := newTestInterpreter(t, false)
	run(t, in, "new o\nbuffer small 8")

	tests := []struct {
		line     string
		rangeErr bool
	}{
		{"buffer b 4000000000000000", true},
		{"buffer b -1", true},
		{"buffer b 100000000000000000", false},
		{"typed t Int32Array 4000000000000000", true},
		{"typed t Float64Array small 8 4000000000000000", true},
		{"typed t Uint8Array small 4000000000000000", true},
		{"new c capacity=4000000000000000", true},
		{"new c capacity=-1", true},
		{"new c capacity=65", true},
		{"get o.x site=4000000000000000", false},
		{"set o.x 1 site=100000000000000000", false},
	}
	for _, tt := range tests {
		cmd, err := ParseLine(tt.line, 3, "inline")
		if err != nil {
			t.Fatalf("%s: %v", tt.line, err)
		}
		_, err = in.Step(cmd)
		if err == nil {
			t.Errorf("%s: expected an error", tt.line)
			continue
		}
		if tt.rangeErr && !errors.IsRangeError(err) {
			t.Errorf("%s: expected a RangeError, got %v", tt.line, err)
		}
	}

	// Limits themselves are usable.
	run(t, in, "new big capacity=64\nget o.x site=1048576")
	if in.Sites().Site(1<<20).Misses() != 1 {
		t.Errorf("highest site not backed by the table")
	}
}

func TestRunSurvivesOversizedInput(t *testing.T) {
	s := &Scenario{Name: "huge", Path: "huge.yaml", StepsLine: 1,
		Steps: "buffer b 4000000000000000\nnew o\nget o.x site=4000000000000000"}
	res := Run(context.Background(), s, vm.DefaultOptions(), false)
	if res.Passed || !errors.IsRangeError(res.Err) || res.Steps != 0 {
		t.Errorf("passed=%v steps=%d err=%v", res.Passed, res.Steps, res.Err)
	}
}

func TestSharedSites(t *testing.T) {
	in, _ := newTestInterpreter(t, false)
	run(t, in, `new a
set a.x 1
get a.x site=50
get a.x site=50
get a.x`)
	ic := in.Sites().Site(50)
	if ic.State() != vm.CacheStateMonomorphic || ic.Hits() != 1 {
		t.Errorf("site 50 = %s", ic)
	}
	if in.Sites().Site(5).Misses() != 1 {
		t.Errorf("line 5 did not use its own site: %s", in.Sites().Site(5))
	}
}

func TestRebindingReleasesName(t *testing.T) {
	in, _ := newTestInterpreter(t, false)
	run(t, in, "new o\nlet keep o\nnew o\nnew lone\nnew lone")
	first := in.vars["keep"].AsObject()
	if got := in.Display(vm.ObjectValue(first)); got != "keep" {
		t.Errorf("first object displays as %s, want keep", got)
	}
	if got := in.Display(in.vars["o"]); got != "o" {
		t.Errorf("new binding displays as %s", got)
	}
	if len(in.names) != 6 {
		t.Errorf("names holds %d objects, want 6 (stale entries kept alive)", len(in.names))
	}
}

func TestRunNegative(t *testing.T) {
	s := &Scenario{Name: "neg", Path: "neg.yaml", Steps: "new o\nfreeze o\nset o.a 1", StepsLine: 1,
		Negative: &Negative{Type: "TypeError"}}
	if res := Run(context.Background(), s, vm.DefaultOptions(), true); !res.Passed {
		t.Errorf("strict run should pass: %v", res.Err)
	}
	// Sloppy writes fail silently, so the expected error never comes.
	res := Run(context.Background(), s, vm.DefaultOptions(), false)
	if res.Passed || !strings.Contains(res.Err.Error(), "every step succeeded") {
		t.Errorf("sloppy run = %v, %v", res.Passed, res.Err)
	}

	s.Negative.Type = "RangeError"
	if res := Run(context.Background(), s, vm.DefaultOptions(), true); res.Passed {
		t.Error("wrong error type should fail")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &Scenario{Name: "c", Path: "c.yaml", Steps: "new o", StepsLine: 1}
	res := Run(ctx, s, vm.DefaultOptions(), false)
	if res.Passed || !stderrors.Is(res.Err, context.Canceled) || res.Steps != 0 {
		t.Errorf("cancelled run = %+v", res)
	}
}

func TestRunRejectsBadOverrides(t *testing.T) {
	limit := 99
	s := &Scenario{Name: "o", Path: "o.yaml", Steps: "new o", StepsLine: 1,
		Engine: EngineOverrides{PolymorphicLimit: &limit}}
	res := Run(context.Background(), s, vm.DefaultOptions(), false)
	if res.Passed || !strings.Contains(res.Err.Error(), "engine overrides") {
		t.Errorf("bad override accepted: %v", res.Err)
	}
}

func TestCommandsSorted(t *testing.T) {
	names := Commands()
	if !slices.IsSorted(names) {
		t.Errorf("Commands() not sorted: %v", names)
	}
	for _, want := range []string{"get", "repeat", "same-shape", "wm-set"} {
		if !slices.Contains(names, want) {
			t.Errorf("Commands() is missing %s", want)
		}
	}
}
