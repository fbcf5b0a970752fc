package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/resmodel/internal/ir"
)

// Scenario defines a conformance scenario: management operations executed
// against a freshly bootstrapped registry, followed by assertions on the
// resulting tree.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Specs is the directory of CUE resource definitions, relative to the
	// scenario file when loaded with LoadScenarioWithBasePath.
	Specs string `yaml:"specs"`

	// Builders names the builders bound to a recording stub. Resources
	// whose definition names one of them show up as "built" in the trace.
	Builders []string `yaml:"builders,omitempty"`

	// Setup steps establish the initial tree and must succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow contains the operations under test with their expectations.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final tree and the flow outcomes.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one management operation.
type Step struct {
	// Op is the operation name (add, remove, read-resource, ...).
	Op string `yaml:"op"`

	// Address of the target resource; unused by composite.
	Address string `yaml:"address,omitempty"`

	// Version is the client's model version; empty means current.
	Version string `yaml:"version,omitempty"`

	// Name is the attribute for read/write/undefine-attribute.
	Name string `yaml:"name,omitempty"`

	Value     any            `yaml:"value,omitempty"`
	Params    map[string]any `yaml:"params,omitempty"`
	Recursive bool           `yaml:"recursive,omitempty"`

	// Steps are the nested operations of a composite.
	Steps []Step `yaml:"steps,omitempty"`

	// Expect specifies the expected outcome. If nil, the step must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies expected operation behavior.
type ExpectClause struct {
	// Outcome is OutcomeSuccess or OutcomeFailure.
	Outcome string `yaml:"outcome"`

	// ErrorKind is the expected ir.ErrorKind of a failure.
	ErrorKind string `yaml:"error_kind,omitempty"`

	// Result is matched against the operation's result value. Objects
	// match as a subset; everything else must be equal.
	Result any `yaml:"result,omitempty"`
}

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Assertion validates the final tree or a flow outcome.
type Assertion struct {
	// Type specifies the assertion type:
	// - "resource_exists": a resource exists at Address
	// - "resource_absent": no resource exists at Address
	// - "model_equals": the stored model at Address equals Model
	// - "error_kind": flow step Step (1-based) failed with Kind
	// - "replay_matches": replaying the journal reproduces the snapshot
	Type string `yaml:"type"`

	Address string         `yaml:"address,omitempty"`
	Model   map[string]any `yaml:"model,omitempty"`
	Step    int            `yaml:"step,omitempty"`
	Kind    string         `yaml:"kind,omitempty"`
}

// Assertion type constants.
const (
	AssertResourceExists = "resource_exists"
	AssertResourceAbsent = "resource_absent"
	AssertModelEquals    = "model_equals"
	AssertErrorKind      = "error_kind"
	AssertReplayMatches  = "replay_matches"
)

// LoadScenario reads and parses a scenario YAML file. The specs directory
// is taken as written.
func LoadScenario(path string) (*Scenario, error) {
	return load(path, "")
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving a relative specs directory against basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	return load(path, basePath)
}

func load(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Specs != "" && !filepath.IsAbs(scenario.Specs) && basePath != "" {
		scenario.Specs = filepath.Join(basePath, scenario.Specs)
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
	if s.Specs == "" {
		return fmt.Errorf("specs directory is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	info, err := os.Stat(s.Specs)
	if err != nil {
		return fmt.Errorf("specs directory not found: %s", s.Specs)
	}
	if !info.IsDir() {
		return fmt.Errorf("specs is not a directory: %s", s.Specs)
	}

	for i, step := range s.Setup {
		if err := validateStep(fmt.Sprintf("setup[%d]", i), step); err != nil {
			return err
		}
		if step.Expect != nil {
			return fmt.Errorf("setup[%d]: setup steps cannot carry expect", i)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(fmt.Sprintf("flow[%d]", i), step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a, len(s.Flow)); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(where string, step Step) error {
	if step.Op == "" {
		return fmt.Errorf("%s: op is required", where)
	}
	if ir.OperationName(step.Op) != ir.OpComposite && step.Address == "" {
		return fmt.Errorf("%s: address is required", where)
	}
	for i, nested := range step.Steps {
		if err := validateStep(fmt.Sprintf("%s.steps[%d]", where, i), nested); err != nil {
			return err
		}
	}
	if e := step.Expect; e != nil {
		switch e.Outcome {
		case OutcomeSuccess:
			if e.ErrorKind != "" {
				return fmt.Errorf("%s.expect: error_kind requires outcome %s", where, OutcomeFailure)
			}
		case OutcomeFailure:
			if e.Result != nil {
				return fmt.Errorf("%s.expect: result requires outcome %s", where, OutcomeSuccess)
			}
		default:
			return fmt.Errorf("%s.expect: outcome must be %s or %s", where, OutcomeSuccess, OutcomeFailure)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion, flowLen int) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertResourceExists, AssertResourceAbsent:
		if a.Address == "" {
			return fmt.Errorf("assertions[%d]: address is required for %s", index, a.Type)
		}
	case AssertModelEquals:
		if a.Address == "" {
			return fmt.Errorf("assertions[%d]: address is required for model_equals", index)
		}
		if a.Model == nil {
			return fmt.Errorf("assertions[%d]: model is required for model_equals", index)
		}
	case AssertErrorKind:
		if a.Step < 1 || a.Step > flowLen {
			return fmt.Errorf("assertions[%d]: step must name a flow step (1-%d)", index, flowLen)
		}
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for error_kind", index)
		}
	case AssertReplayMatches:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// operation converts a scenario step into an ir.Operation.
func (s Step) operation() (ir.Operation, error) {
	op := ir.Operation{
		Name:      ir.OperationName(s.Op),
		Version:   s.Version,
		Attribute: s.Name,
		Recursive: s.Recursive,
	}
	if s.Address != "" {
		addr, err := ir.ParseAddress(s.Address)
		if err != nil {
			return op, err
		}
		op.Address = addr
	}
	if s.Value != nil {
		v, err := ir.FromAny(s.Value)
		if err != nil {
			return op, fmt.Errorf("value: %w", err)
		}
		op.Value = v
	}
	if s.Params != nil {
		params, err := ir.ObjectFromAny(s.Params)
		if err != nil {
			return op, fmt.Errorf("params: %w", err)
		}
		op.Params = params
	}
	for i, nested := range s.Steps {
		step, err := nested.operation()
		if err != nil {
			return op, fmt.Errorf("steps[%d]: %w", i, err)
		}
		op.Steps = append(op.Steps, step)
	}
	return op, nil
}
