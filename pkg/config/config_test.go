package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"

	"structura/pkg/vm"
)

// resetViper clears all viper state between tests to avoid cross-contamination.
func resetViper(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoad_Defaults(t *testing.T) {
	resetViper(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("defaults (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(vm.DefaultOptions(), cfg.EngineOptions()); diff != "" {
		t.Errorf("engine options (-want +got):\n%s", diff)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	tests := []struct {
		name   string
		envKey string
		envVal string
		field  func(Config) any
		want   any
	}{
		{
			name:   "inline_capacity",
			envKey: "STRUCTURA_ENGINE_INLINE_CAPACITY",
			envVal: "8",
			field:  func(c Config) any { return c.Engine.InlineCapacity },
			want:   8,
		},
		{
			name:   "polymorphic_limit",
			envKey: "STRUCTURA_ENGINE_POLYMORPHIC_LIMIT",
			envVal: "6",
			field:  func(c Config) any { return c.Engine.PolymorphicLimit },
			want:   6,
		},
		{
			name:   "workers",
			envKey: "STRUCTURA_RUNNER_WORKERS",
			envVal: "3",
			field:  func(c Config) any { return c.WorkerCount() },
			want:   3,
		},
		{
			name:   "timeout",
			envKey: "STRUCTURA_RUNNER_TIMEOUT",
			envVal: "5s",
			field:  func(c Config) any { return c.Runner.Timeout },
			want:   5 * time.Second,
		},
		{
			name:   "verbose",
			envKey: "STRUCTURA_VERBOSE",
			envVal: "true",
			field:  func(c Config) any { return c.Verbose },
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper(t)
			Init("")
			t.Setenv(tt.envKey, tt.envVal)

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() returned unexpected error: %v", err)
			}
			if got := tt.field(cfg); got != tt.want {
				t.Errorf("%s: got %v (%T), want %v (%T)", tt.name, got, got, tt.want, tt.want)
			}
		})
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	resetViper(t)
	viper.Set("engine.polymorphic_limit", 1)
	if _, err := Load(); err == nil {
		t.Errorf("expected a validation error for polymorphic_limit=1")
	}

	resetViper(t)
	viper.Set("runner.workers", -2)
	if _, err := Load(); err == nil {
		t.Errorf("expected a validation error for negative workers")
	}
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	resetViper(t)
	path := filepath.Join(t.TempDir(), "conf", DefaultFileName)
	if err := WriteDefault(path, false); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}
	if err := WriteDefault(path, false); err == nil {
		t.Errorf("WriteDefault should refuse to overwrite")
	}
	if err := WriteDefault(path, true); err != nil {
		t.Errorf("WriteDefault with overwrite: %v", err)
	}

	Init(path)
	if err := ReadFile(); err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}
}

func TestReadFileMissingIsNotAnError(t *testing.T) {
	resetViper(t)
	t.Chdir(t.TempDir())
	Init("")
	if err := ReadFile(); err != nil {
		t.Errorf("missing default config should be ignored, got %v", err)
	}
}
