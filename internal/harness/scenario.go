package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"gopkg.in/yaml.v3"

	"github.com/roach88/rulecore/internal/compiler"
	"github.com/roach88/rulecore/internal/engine"
)

// Scenario defines a conformance test scenario.
// Scenarios load rule chunks and handlers, drive status writes through
// update cycles, and assert on the resulting trace and final state.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name" json:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description" json:"description"`

	// Specs lists CUE rule files to compile and load before the inline
	// chunks. Paths are relative to the scenario file location.
	Specs []string `yaml:"specs,omitempty" json:"specs,omitempty"`

	// Chunks are loaded in order.
	Chunks []engine.ChunkDef `yaml:"chunks,omitempty" json:"chunks,omitempty"`

	// Handlers are registered after all chunks are loaded.
	Handlers []compiler.HandlerSpec `yaml:"handlers,omitempty" json:"handlers,omitempty"`

	// Steps drive the engine. Each step queues writes and runs cycles.
	Steps []Step `yaml:"steps" json:"steps"`

	// Assertions validate the final trace and state.
	// Supported types: status_equals, evaluation_equals, fired, not_fired,
	// fire_count, fire_order
	Assertions []Assertion `yaml:"assertions" json:"assertions"`

	// RunID is an optional fixed run id for deterministic tests.
	// If empty, defaults to "test-run-default" for deterministic golden file comparison.
	RunID string `yaml:"run_id,omitempty" json:"run_id,omitempty"`

	// MaxCycles bounds each settling step. Zero uses the engine default.
	MaxCycles int `yaml:"max_cycles,omitempty" json:"max_cycles,omitempty"`

	// source is the file the scenario was loaded from.
	source string
}

// Step is one unit of scenario input.
type Step struct {
	// Unload lists chunks to unload before the writes are queued.
	Unload []string `yaml:"unload,omitempty" json:"unload,omitempty"`

	// Writes are queued in order.
	Writes []compiler.WriteSpec `yaml:"writes,omitempty" json:"writes,omitempty"`

	// Ticks runs exactly this many cycles. Zero settles instead: cycles
	// run until no write is pending.
	Ticks int `yaml:"ticks,omitempty" json:"ticks,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "status_equals": Check a status's final value
	// - "evaluation_equals": Check an expression's final evaluation
	// - "fired": Check a handler fired, optionally with now/last/cycle
	// - "not_fired": Check a handler never fired
	// - "fire_count": Check a handler fired exactly N times
	// - "fire_order": Check handlers first fired in the given order
	Type string `yaml:"type" json:"type"`

	// Status is the status name (used by status_equals).
	Status string `yaml:"status,omitempty" json:"status,omitempty"`

	// Expression is the expression name (used by evaluation_equals, and
	// optionally to narrow fired, not_fired and fire_count).
	Expression string `yaml:"expression,omitempty" json:"expression,omitempty"`

	// Handler is the handler name (used by fired, not_fired, fire_count).
	Handler string `yaml:"handler,omitempty" json:"handler,omitempty"`

	// Value is the expected status value or evaluation.
	Value string `yaml:"value,omitempty" json:"value,omitempty"`

	// Now and Last narrow fired to calls with these evaluations.
	Now  string `yaml:"now,omitempty" json:"now,omitempty"`
	Last string `yaml:"last,omitempty" json:"last,omitempty"`

	// Cycle narrows fired to one cycle.
	Cycle int64 `yaml:"cycle,omitempty" json:"cycle,omitempty"`

	// Count is the expected number of fires (used by fire_count).
	Count int `yaml:"count,omitempty" json:"count,omitempty"`

	// Handlers is the expected first-fire order (used by fire_order).
	Handlers []string `yaml:"handlers,omitempty" json:"handlers,omitempty"`
}

// Assertion type constants.
const (
	AssertStatusEquals     = "status_equals"
	AssertEvaluationEquals = "evaluation_equals"
	AssertFired            = "fired"
	AssertNotFired         = "not_fired"
	AssertFireCount        = "fire_count"
	AssertFireOrder        = "fire_order"
)

// Source returns the file the scenario was loaded from, if any.
func (s *Scenario) Source() string {
	return s.source
}

// LoadScenario reads and parses a scenario file.
// Files ending in .cue are loaded as CUE, anything else as YAML.
// Spec paths are resolved relative to the scenario file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario file,
// resolving spec paths relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	var scenario *Scenario
	var err error
	if filepath.Ext(path) == ".cue" {
		scenario, err = loadCUEScenario(path)
	} else {
		scenario, err = loadYAMLScenario(path)
	}
	if err != nil {
		return nil, err
	}
	scenario.source = path

	// Resolve spec paths relative to base path BEFORE validation
	for i, specPath := range scenario.Specs {
		if !filepath.IsAbs(specPath) && basePath != "" {
			scenario.Specs[i] = filepath.Join(basePath, specPath)
		}
	}

	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return scenario, nil
}

func loadYAMLScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &scenario, nil
}

// loadCUEScenario reads a CUE file holding a scenario field plus optional
// chunk and handler fields in rule file form.
func loadCUEScenario(path string) (*Scenario, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	instances := load.Instances([]string{path}, &load.Config{})
	if len(instances) == 0 {
		return nil, fmt.Errorf("failed to load CUE scenario: no instances")
	}
	if err := instances[0].Err; err != nil {
		return nil, fmt.Errorf("failed to load CUE scenario: %w", err)
	}
	value := cuecontext.New().BuildInstance(instances[0])
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("failed to build CUE scenario: %w", err)
	}

	scenarioVal := value.LookupPath(cue.ParsePath("scenario"))
	if !scenarioVal.Exists() {
		return nil, fmt.Errorf("failed to parse CUE scenario: no scenario field")
	}
	var scenario Scenario
	if err := scenarioVal.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse CUE scenario: %w", err)
	}

	spec, errs := compiler.CompileSpec(value, true)
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to compile CUE rules: %w", errs[0])
	}
	scenario.Chunks = append(spec.Chunks, scenario.Chunks...)
	scenario.Handlers = append(spec.Handlers, scenario.Handlers...)
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Specs) == 0 && len(s.Chunks) == 0 {
		return fmt.Errorf("specs or chunks are required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.MaxCycles < 0 {
		return fmt.Errorf("max_cycles must be non-negative")
	}

	// Validate spec paths exist
	for _, specPath := range s.Specs {
		if _, err := os.Stat(specPath); os.IsNotExist(err) {
			return fmt.Errorf("spec file not found: %s", specPath)
		}
	}

	for i, step := range s.Steps {
		if step.Ticks < 0 {
			return fmt.Errorf("steps[%d]: ticks must be non-negative", i)
		}
		for j, w := range step.Writes {
			if w.Status == "" {
				return fmt.Errorf("steps[%d].writes[%d]: status is required", i, j)
			}
			if _, _, _, err := w.Parse(); err != nil {
				return fmt.Errorf("steps[%d].writes[%d]: %w", i, j, err)
			}
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertStatusEquals:
		if a.Status == "" {
			return fmt.Errorf("assertions[%d]: status is required for status_equals", index)
		}
		if a.Value == "" {
			return fmt.Errorf("assertions[%d]: value is required for status_equals", index)
		}
	case AssertEvaluationEquals:
		if a.Expression == "" {
			return fmt.Errorf("assertions[%d]: expression is required for evaluation_equals", index)
		}
		if a.Value == "" {
			return fmt.Errorf("assertions[%d]: value is required for evaluation_equals", index)
		}
	case AssertFired, AssertNotFired:
		if a.Handler == "" && a.Expression == "" {
			return fmt.Errorf("assertions[%d]: handler or expression is required for %s", index, a.Type)
		}
	case AssertFireCount:
		if a.Handler == "" && a.Expression == "" {
			return fmt.Errorf("assertions[%d]: handler or expression is required for fire_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for fire_count", index)
		}
	case AssertFireOrder:
		if len(a.Handlers) == 0 {
			return fmt.Errorf("assertions[%d]: handlers list is required for fire_order", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
