package script

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	yaml "gopkg.in/yaml.v3"

	"structura/pkg/vm"
)

// EngineOverrides adjusts realm options for one scenario. Unset fields keep
// the configured value.
type EngineOverrides struct {
	InlineCapacity   *int `yaml:"inline_capacity"`
	PolymorphicLimit *int `yaml:"polymorphic_limit"`
	DictionaryChurn  *int `yaml:"dictionary_churn"`
	MaxUniform       *int `yaml:"max_uniform_properties"`
	MaxFanout        *int `yaml:"max_transition_fanout"`
	MaxPropertyCount *int `yaml:"max_property_count"`
	MaxProtoDepth    *int `yaml:"max_prototype_depth"`
}

// Apply returns base with the overrides applied.
func (e EngineOverrides) Apply(base vm.Options) vm.Options {
	set := func(dst *int, v *int) {
		if v != nil {
			*dst = *v
		}
	}
	set(&base.InlineCapacity, e.InlineCapacity)
	set(&base.MaxPolymorphicEntries, e.PolymorphicLimit)
	set(&base.DictionaryChurnThreshold, e.DictionaryChurn)
	set(&base.MaxUniformProperties, e.MaxUniform)
	set(&base.MaxTransitionFanout, e.MaxFanout)
	set(&base.MaxPropertyCount, e.MaxPropertyCount)
	set(&base.MaxPrototypeChainDepth, e.MaxProtoDepth)
	return base
}

// Negative declares that a scenario must stop with an error of Type.
type Negative struct {
	Type string `yaml:"type"`
}

// Scenario is a YAML test file: metadata plus a block of steps.
type Scenario struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Flags       []string        `yaml:"flags"`
	Engine      EngineOverrides `yaml:"engine"`
	Negative    *Negative       `yaml:"negative"`
	Steps       string          `yaml:"steps"`

	// Path is the file the scenario was loaded from and StepsLine the
	// file line of the first step.
	Path      string `yaml:"-"`
	StepsLine int    `yaml:"-"`
}

// Modes returns the strictness modes the scenario runs in: both unless
// the onlyStrict or noStrict flag restricts it.
func (s *Scenario) Modes() []bool {
	for _, f := range s.Flags {
		switch f {
		case "onlyStrict":
			return []bool{true}
		case "noStrict":
			return []bool{false}
		}
	}
	return []bool{false, true}
}

// ParseScenario decodes a scenario document.
func ParseScenario(data []byte, path string) (*Scenario, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	var s Scenario
	if err := doc.Decode(&s); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.Path = path
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	s.StepsLine = stepsLine(&doc)
	if strings.TrimSpace(s.Steps) == "" {
		return nil, fmt.Errorf("%s: scenario has no steps", path)
	}
	for _, f := range s.Flags {
		if f != "onlyStrict" && f != "noStrict" {
			return nil, fmt.Errorf("%s: unknown flag %q", path, f)
		}
	}
	return &s, nil
}

// stepsLine finds the line of the first step inside the document.
func stepsLine(doc *yaml.Node) int {
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return 1
	}
	m := doc.Content[0]
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value != "steps" {
			continue
		}
		v := m.Content[i+1]
		if v.Style&(yaml.LiteralStyle|yaml.FoldedStyle) != 0 {
			return v.Line + 1
		}
		return v.Line
	}
	return 1
}

// LoadFile reads one scenario file.
func LoadFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScenario(data, path)
}

// IsScenarioFile reports whether path has a scenario extension.
func IsScenarioFile(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".yaml" || ext == ".yml"
}

// LoadDir reads every scenario below dir in lexical path order.
func LoadDir(dir string) ([]*Scenario, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsScenarioFile(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	out := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Load accepts a mix of scenario files and directories.
func Load(paths ...string) ([]*Scenario, error) {
	var out []*Scenario
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			ss, err := LoadDir(p)
			if err != nil {
				return nil, err
			}
			out = append(out, ss...)
			continue
		}
		s, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
