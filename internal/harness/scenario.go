package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines one end-to-end run.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Catalog is the directory of catalog files to load and apply.
	// LoadScenario resolves it relative to the scenario file.
	Catalog string `yaml:"catalog"`

	Subscriptions []SubscriptionStep `yaml:"subscriptions,omitempty"`

	// Responses maps recorder paths to the status they answer with.
	// Unlisted paths answer 200.
	Responses map[string]int `yaml:"responses,omitempty"`

	Dispatch DispatchSettings `yaml:"dispatch,omitempty"`

	Flow []FlowStep `yaml:"flow"`

	Assertions []Assertion `yaml:"assertions"`
}

// SubscriptionStep subscribes a recorder path to an event.
type SubscriptionStep struct {
	// Event is "application/event".
	Event string `yaml:"event"`
	Path  string `yaml:"path"`
}

// DispatchSettings tune the dispatcher. Zero values keep the defaults:
// one second pacing and a single attempt.
type DispatchSettings struct {
	Pacing       time.Duration `yaml:"pacing,omitempty"`
	MaxAttempts  int           `yaml:"max_attempts,omitempty"`
	RetryBackoff time.Duration `yaml:"retry_backoff,omitempty"`
}

// FlowStep ingests one data point.
type FlowStep struct {
	// Ingest is "application/resource".
	Ingest string         `yaml:"ingest"`
	Data   map[string]any `yaml:"data"`

	// Expect checks the outcome. Nil expects success.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause names the expected ingest error kind.
type ExpectClause struct {
	// Error is one of the Error* kinds; empty means success.
	Error string `yaml:"error"`
}

// Ingest error kinds.
const (
	ErrorTypeMismatch   = "type_mismatch"
	ErrorUnknownField   = "unknown_field"
	ErrorNotFound       = "not_found"
	ErrorInvalidPayload = "invalid_payload"
	ErrorOther          = "error"
)

var errorKinds = map[string]bool{
	"":                  true,
	ErrorTypeMismatch:   true,
	ErrorUnknownField:   true,
	ErrorNotFound:       true,
	ErrorInvalidPayload: true,
	ErrorOther:          true,
}

// Assertion validates the deliveries or the final state.
type Assertion struct {
	Type string `yaml:"type"`

	// Count is used by delivery_count and stored_points.
	Count int `yaml:"count,omitempty"`

	// Paths is used by delivery_order.
	Paths []string `yaml:"paths,omitempty"`

	// Gap is used by delivery_gap.
	Gap time.Duration `yaml:"gap,omitempty"`

	// Resource is "application/resource", used by stored_points.
	Resource string `yaml:"resource,omitempty"`

	// States maps job state to expected count, used by job_states.
	States map[string]int `yaml:"states,omitempty"`
}

// Assertion type constants.
const (
	AssertDeliveryCount = "delivery_count"
	AssertDeliveryOrder = "delivery_order"
	AssertDeliveryGap   = "delivery_gap"
	AssertStoredPoints  = "stored_points"
	AssertJobStates     = "job_states"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if s.Catalog != "" && !filepath.IsAbs(s.Catalog) {
		s.Catalog = filepath.Join(filepath.Dir(path), s.Catalog)
	}
	return s, nil
}

// ParseScenario parses scenario YAML. Catalog paths are left as written.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Catalog == "" {
		return fmt.Errorf("catalog is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, sub := range s.Subscriptions {
		if _, _, err := splitRef(sub.Event); err != nil {
			return fmt.Errorf("subscriptions[%d]: event: %w", i, err)
		}
		if !strings.HasPrefix(sub.Path, "/") {
			return fmt.Errorf("subscriptions[%d]: path must start with /", i)
		}
	}

	for path, code := range s.Responses {
		if code < 100 || code > 599 {
			return fmt.Errorf("responses[%s]: status %d out of range", path, code)
		}
	}

	if s.Dispatch.MaxAttempts < 0 {
		return fmt.Errorf("dispatch: max_attempts must not be negative")
	}

	for i, step := range s.Flow {
		if _, _, err := splitRef(step.Ingest); err != nil {
			return fmt.Errorf("flow[%d]: ingest: %w", i, err)
		}
		if step.Expect != nil && !errorKinds[step.Expect.Error] {
			return fmt.Errorf("flow[%d]: unknown error kind %q", i, step.Expect.Error)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertDeliveryCount:
		if a.Count < 0 {
			return fmt.Errorf("delivery_count: count must not be negative")
		}
	case AssertDeliveryOrder:
		if len(a.Paths) == 0 {
			return fmt.Errorf("delivery_order: paths is required")
		}
	case AssertDeliveryGap:
		if a.Gap <= 0 {
			return fmt.Errorf("delivery_gap: gap must be positive")
		}
	case AssertStoredPoints:
		if _, _, err := splitRef(a.Resource); err != nil {
			return fmt.Errorf("stored_points: resource: %w", err)
		}
	case AssertJobStates:
		if len(a.States) == 0 {
			return fmt.Errorf("job_states: states is required")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// splitRef splits "application/name".
func splitRef(ref string) (string, string, error) {
	app, name, ok := strings.Cut(ref, "/")
	if !ok || app == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("%q must be application/name", ref)
	}
	return app, name, nil
}
