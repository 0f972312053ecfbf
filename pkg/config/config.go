package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"structura/pkg/vm"
)

// DefaultFileName is the config file looked up in the working directory
// and the home directory.
const DefaultFileName = ".structura.toml"

// EnvPrefix namespaces environment overrides: STRUCTURA_ENGINE_INLINE_CAPACITY
// sets engine.inline_capacity.
const EnvPrefix = "STRUCTURA"

// EngineConfig holds the realm limits.
type EngineConfig struct {
	InlineCapacity        int    `mapstructure:"inline_capacity" toml:"inline_capacity"`
	PolymorphicLimit      int    `mapstructure:"polymorphic_limit" toml:"polymorphic_limit"`
	DictionaryChurn       int    `mapstructure:"dictionary_churn" toml:"dictionary_churn"`
	MaxUniformProperties  int    `mapstructure:"max_uniform_properties" toml:"max_uniform_properties"`
	MaxTransitionFanout   int    `mapstructure:"max_transition_fanout" toml:"max_transition_fanout"`
	MaxPropertyCount      int    `mapstructure:"max_property_count" toml:"max_property_count"`
	MaxPrototypeDepth     int    `mapstructure:"max_prototype_depth" toml:"max_prototype_depth"`
	ShapeGraceGenerations uint64 `mapstructure:"shape_grace_generations" toml:"shape_grace_generations"`
}

// RunnerConfig controls scenario execution.
type RunnerConfig struct {
	Workers int           `mapstructure:"workers" toml:"workers"` // 0 means one per CPU
	Timeout time.Duration `mapstructure:"timeout" toml:"timeout"`
	Filter  string        `mapstructure:"filter" toml:"filter"`
}

// ProfileConfig locates the run history database.
type ProfileConfig struct {
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
	DBPath  string `mapstructure:"db_path" toml:"db_path"`
}

// Config holds all runtime configuration for structura.
// Values are populated from .structura.toml, STRUCTURA_* env vars, and CLI flags.
type Config struct {
	Verbose bool          `mapstructure:"verbose" toml:"verbose"`
	LogFile string        `mapstructure:"log_file" toml:"log_file"`
	Engine  EngineConfig  `mapstructure:"engine" toml:"engine"`
	Runner  RunnerConfig  `mapstructure:"runner" toml:"runner"`
	Profile ProfileConfig `mapstructure:"profile" toml:"profile"`
}

// Default returns the built-in configuration.
func Default() Config {
	opts := vm.DefaultOptions()
	return Config{
		Engine: EngineConfig{
			InlineCapacity:        opts.InlineCapacity,
			PolymorphicLimit:      opts.MaxPolymorphicEntries,
			DictionaryChurn:       opts.DictionaryChurnThreshold,
			MaxUniformProperties:  opts.MaxUniformProperties,
			MaxTransitionFanout:   opts.MaxTransitionFanout,
			MaxPropertyCount:      opts.MaxPropertyCount,
			MaxPrototypeDepth:     opts.MaxPrototypeChainDepth,
			ShapeGraceGenerations: opts.ShapeGraceGenerations,
		},
		Runner: RunnerConfig{
			Timeout: 30 * time.Second,
		},
		Profile: ProfileConfig{
			Enabled: true,
			DBPath:  filepath.Join(".structura", "history.db"),
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("engine.inline_capacity", d.Engine.InlineCapacity)
	v.SetDefault("engine.polymorphic_limit", d.Engine.PolymorphicLimit)
	v.SetDefault("engine.dictionary_churn", d.Engine.DictionaryChurn)
	v.SetDefault("engine.max_uniform_properties", d.Engine.MaxUniformProperties)
	v.SetDefault("engine.max_transition_fanout", d.Engine.MaxTransitionFanout)
	v.SetDefault("engine.max_property_count", d.Engine.MaxPropertyCount)
	v.SetDefault("engine.max_prototype_depth", d.Engine.MaxPrototypeDepth)
	v.SetDefault("engine.shape_grace_generations", d.Engine.ShapeGraceGenerations)
	v.SetDefault("runner.workers", d.Runner.Workers)
	v.SetDefault("runner.timeout", d.Runner.Timeout)
	v.SetDefault("runner.filter", d.Runner.Filter)
	v.SetDefault("profile.enabled", d.Profile.Enabled)
	v.SetDefault("profile.db_path", d.Profile.DBPath)
}

// Init points the global viper instance at the config file and the
// environment. An empty path searches the working and home directories.
func Init(path string) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName(strings.TrimSuffix(DefaultFileName, ".toml"))
		viper.SetConfigType("toml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
	}
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// ReadFile loads the configured file. A missing file is not an error when
// no explicit path was given.
func ReadFile() error {
	err := viper.ReadInConfig()
	if err == nil {
		return nil
	}
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return nil
	}
	return fmt.Errorf("reading config: %w", err)
}

// Load reads configuration from viper, applying built-in defaults for any
// values not set by config file, environment, or flags.
func Load() (Config, error) {
	setDefaults(viper.GetViper())
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// EngineOptions converts the engine section to realm options.
func (c Config) EngineOptions() vm.Options {
	e := c.Engine
	return vm.Options{
		InlineCapacity:           e.InlineCapacity,
		MaxPolymorphicEntries:    e.PolymorphicLimit,
		DictionaryChurnThreshold: e.DictionaryChurn,
		MaxUniformProperties:     e.MaxUniformProperties,
		MaxTransitionFanout:      e.MaxTransitionFanout,
		MaxPropertyCount:         e.MaxPropertyCount,
		MaxPrototypeChainDepth:   e.MaxPrototypeDepth,
		ShapeGraceGenerations:    e.ShapeGraceGenerations,
	}
}

// WorkerCount resolves the runner pool size.
func (c Config) WorkerCount() int {
	if c.Runner.Workers > 0 {
		return c.Runner.Workers
	}
	return runtime.NumCPU()
}

// Validate rejects values the engine or runner cannot use.
func (c Config) Validate() error {
	if err := c.EngineOptions().Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if c.Runner.Workers < 0 {
		return fmt.Errorf("runner: workers must not be negative, got %d", c.Runner.Workers)
	}
	if c.Runner.Timeout < 0 {
		return fmt.Errorf("runner: timeout must not be negative, got %s", c.Runner.Timeout)
	}
	if c.Profile.Enabled && c.Profile.DBPath == "" {
		return fmt.Errorf("profile: db_path is required when history is enabled")
	}
	return nil
}

// WriteDefault writes the built-in configuration to path. An existing file
// is left alone unless overwrite is set.
func WriteDefault(path string, overwrite bool) error {
	if _, err := os.Stat(path); err == nil && !overwrite {
		return fmt.Errorf("%s already exists; use --force to overwrite", path)
	}
	data, err := toml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
