package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines an import scenario: entities already in the permanent
// store, a sequence of steps driving the engine, and assertions on the
// queue and store afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Graph is an optional CUE dependency graph. The embedded graph is used
	// when empty. Relative paths are resolved against the scenario file.
	Graph string `yaml:"graph,omitempty"`

	// Workers bounds parallel solver calls inside a depth group.
	// Defaults to 1 so traces are reproducible.
	Workers int `yaml:"workers,omitempty"`

	// StuckAfter is the stall threshold as a Go duration ("90m").
	// Defaults to the engine's threshold.
	StuckAfter string `yaml:"stuck_after,omitempty"`

	// Seed lists entities inserted before the first step, bypassing the
	// natural-key uniqueness a solver would enforce.
	Seed []SeedEntity `yaml:"seed,omitempty"`

	// Steps run in order. Each step performs exactly one action.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final queue and store.
	Assertions []Assertion `yaml:"assertions"`
}

// SeedEntity inserts Count copies of one entity.
type SeedEntity struct {
	Kind   string         `yaml:"kind"`
	Fields map[string]any `yaml:"fields"`
	Count  int            `yaml:"count,omitempty"`
}

// Step is one engine action.
type Step struct {
	// Enqueue submits requests, one call per request unless Batch is set.
	Enqueue []EnqueueRequest `yaml:"enqueue,omitempty"`

	// Batch submits all of Enqueue through one EnqueueBatch call.
	Batch bool `yaml:"batch,omitempty"`

	// Passes runs that many orchestrator passes.
	Passes int `yaml:"passes,omitempty"`

	// UntilIdle runs passes until the queue stops progressing.
	UntilIdle bool `yaml:"until_idle,omitempty"`

	// Advance moves the scenario clock forward by a Go duration.
	Advance string `yaml:"advance,omitempty"`

	// Digest runs one digest.
	Digest bool `yaml:"digest,omitempty"`
}

// EnqueueRequest is a request plus the alias assertions use to refer to
// the record it produced.
type EnqueueRequest struct {
	As      string         `yaml:"as,omitempty"`
	Owner   string         `yaml:"owner,omitempty"`
	Kind    string         `yaml:"kind"`
	Batch   string         `yaml:"batch,omitempty"`
	Payload map[string]any `yaml:"payload"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "record": a record's depths, done flag, attempts or outcome
	// - "entity_count": number of entities of a kind
	// - "same_ref": records resolved the same ID for a reference field
	// - "stuck": exactly these records are stuck at the end
	// - "removed": these records were digested out of the queue
	Type string `yaml:"type"`

	// Record is the alias of the record under test (used by record).
	Record string `yaml:"record,omitempty"`

	// Records lists aliases (used by same_ref, stuck, removed).
	Records []string `yaml:"records,omitempty"`

	// Kind is the entity kind (used by entity_count).
	Kind string `yaml:"kind,omitempty"`

	// Count is the expected number of entities (used by entity_count).
	Count int `yaml:"count,omitempty"`

	// Field is the solved payload field compared (used by same_ref).
	Field string `yaml:"field,omitempty"`

	// Expect lists the expected record state (used by record).
	Expect *RecordExpect `yaml:"expect,omitempty"`
}

// RecordExpect is a subset match on one record. Unset fields are ignored.
type RecordExpect struct {
	Done        *bool    `yaml:"done,omitempty"`
	Requested   *int     `yaml:"requested,omitempty"`
	Processed   *int     `yaml:"processed,omitempty"`
	Solvable    *int     `yaml:"solvable,omitempty"`
	Attempts    *int     `yaml:"attempts,omitempty"`
	LastOutcome string   `yaml:"last_outcome,omitempty"`
	Solved      []string `yaml:"solved,omitempty"` // fields present in the solved payload
}

// Assertion type constants.
const (
	AssertRecord      = "record"
	AssertEntityCount = "entity_count"
	AssertSameRef     = "same_ref"
	AssertStuck       = "stuck"
	AssertRemoved     = "removed"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Graph != "" && !filepath.IsAbs(scenario.Graph) {
		scenario.Graph = filepath.Join(filepath.Dir(path), scenario.Graph)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
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
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.Workers < 0 {
		return fmt.Errorf("workers must be non-negative")
	}
	if s.StuckAfter != "" {
		if _, err := parseDuration(s.StuckAfter); err != nil {
			return fmt.Errorf("stuck_after: %w", err)
		}
	}
	if s.Graph != "" {
		if _, err := os.Stat(s.Graph); os.IsNotExist(err) {
			return fmt.Errorf("graph file not found: %s", s.Graph)
		}
	}

	for i, seed := range s.Seed {
		if seed.Kind == "" {
			return fmt.Errorf("seed[%d]: kind is required", i)
		}
		if seed.Count < 0 {
			return fmt.Errorf("seed[%d]: count must be non-negative", i)
		}
	}

	aliases := make(map[string]bool)
	for i, step := range s.Steps {
		if err := validateStep(i, &step, aliases); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, aliases); err != nil {
			return err
		}
	}
	return nil
}

// validateStep checks that a step performs exactly one action and records
// the aliases it declares.
func validateStep(index int, step *Step, aliases map[string]bool) error {
	actions := 0
	if len(step.Enqueue) > 0 {
		actions++
	}
	if step.Passes != 0 {
		actions++
	}
	if step.UntilIdle {
		actions++
	}
	if step.Advance != "" {
		actions++
	}
	if step.Digest {
		actions++
	}
	if actions != 1 {
		return fmt.Errorf("steps[%d]: exactly one of enqueue, passes, until_idle, advance, digest is required", index)
	}

	if step.Batch && len(step.Enqueue) == 0 {
		return fmt.Errorf("steps[%d]: batch only applies to enqueue", index)
	}
	if step.Passes < 0 {
		return fmt.Errorf("steps[%d]: passes must be positive", index)
	}
	if step.Advance != "" {
		d, err := parseDuration(step.Advance)
		if err != nil {
			return fmt.Errorf("steps[%d].advance: %w", index, err)
		}
		if d <= 0 {
			return fmt.Errorf("steps[%d].advance: duration must be positive", index)
		}
	}

	for j, req := range step.Enqueue {
		if req.Kind == "" {
			return fmt.Errorf("steps[%d].enqueue[%d]: kind is required", index, j)
		}
		if req.Payload == nil {
			return fmt.Errorf("steps[%d].enqueue[%d]: payload is required", index, j)
		}
		if req.As != "" {
			aliases[req.As] = true
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, aliases map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	known := func(alias string) error {
		if !aliases[alias] {
			return fmt.Errorf("assertions[%d]: unknown record alias %q", index, alias)
		}
		return nil
	}

	switch a.Type {
	case AssertRecord:
		if a.Record == "" {
			return fmt.Errorf("assertions[%d]: record is required for record", index)
		}
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for record", index)
		}
		return known(a.Record)
	case AssertEntityCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for entity_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for entity_count", index)
		}
	case AssertSameRef:
		if len(a.Records) < 2 {
			return fmt.Errorf("assertions[%d]: at least two records are required for same_ref", index)
		}
		if a.Field == "" {
			return fmt.Errorf("assertions[%d]: field is required for same_ref", index)
		}
	case AssertStuck:
		// An empty list asserts nothing is stuck.
	case AssertRemoved:
		if len(a.Records) == 0 {
			return fmt.Errorf("assertions[%d]: records list is required for removed", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	for _, alias := range a.Records {
		if err := known(alias); err != nil {
			return err
		}
	}
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}
