package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted offline session.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// InitialOnline is the connectivity when the session starts.
	InitialOnline bool `yaml:"initial_online"`

	// Server scripts the fake PocketBizz server.
	Server ServerScript `yaml:"server,omitempty"`

	// Flow is executed in order.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and queue.
	Assertions []Assertion `yaml:"assertions"`
}

// ServerScript configures the fake server.
type ServerScript struct {
	// Reject lists descriptions the server always refuses with 422.
	Reject []string `yaml:"reject,omitempty"`
}

// Step is one action in the flow. Exactly one field besides Expect is set.
type Step struct {
	// Submit posts these form fields to the interceptor.
	Submit map[string]string `yaml:"submit,omitempty"`

	// Online flips connectivity.
	Online *bool `yaml:"online,omitempty"`

	// Server is "up" or "down".
	Server string `yaml:"server,omitempty"`

	// Drain runs a drain outside of any connectivity change.
	Drain bool `yaml:"drain,omitempty"`

	// Expect checks the submit response.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected submit response.
type ExpectClause struct {
	Status int `yaml:"status"`
}

// Server states.
const (
	ServerUp   = "up"
	ServerDown = "down"
)

// Assertion validates the trace or the final queue.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Kinds is the expected notice order (notice_order).
	Kinds []string `yaml:"kinds,omitempty"`

	// Kind and Count are used by notice_count.
	Kind  string `yaml:"kind,omitempty"`
	Count int    `yaml:"count,omitempty"`

	// Descriptions is the exact list the server accepted (received).
	Descriptions []string `yaml:"descriptions,omitempty"`

	// Total and Unsynced are the final queue counts (queue_state).
	Total    *int `yaml:"total,omitempty"`
	Unsynced *int `yaml:"unsynced,omitempty"`
}

// Assertion type constants.
const (
	AssertNoticeOrder = "notice_order"
	AssertNoticeCount = "notice_count"
	AssertReceived    = "received"
	AssertQueueState  = "queue_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
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
		return errors.New("name is required")
	}
	if s.Description == "" {
		return errors.New("description is required")
	}
	if len(s.Flow) == 0 {
		return errors.New("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return errors.New("assertions list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, s Step) error {
	actions := 0
	if s.Submit != nil {
		actions++
	}
	if s.Online != nil {
		actions++
	}
	if s.Server != "" {
		actions++
		if s.Server != ServerUp && s.Server != ServerDown {
			return fmt.Errorf("flow[%d]: server must be %q or %q, got %q", index, ServerUp, ServerDown, s.Server)
		}
	}
	if s.Drain {
		actions++
	}

	if actions != 1 {
		return fmt.Errorf("flow[%d]: exactly one of submit, online, server, drain is required", index)
	}
	if s.Expect != nil && s.Submit == nil {
		return fmt.Errorf("flow[%d]: expect is only valid on submit", index)
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertNoticeOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for notice_order", index)
		}
	case AssertNoticeCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for notice_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for notice_count", index)
		}
	case AssertReceived:
		if a.Descriptions == nil {
			return fmt.Errorf("assertions[%d]: descriptions is required for received (use [] for none)", index)
		}
	case AssertQueueState:
		if a.Total == nil && a.Unsynced == nil {
			return fmt.Errorf("assertions[%d]: total or unsynced is required for queue_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
