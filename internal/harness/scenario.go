package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/pushsub/internal/model"
)

// Scenario defines one subscription lifecycle to replay.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Topic is the feed URL every step operates on.
	Topic string `yaml:"topic"`

	// LeaseSeconds is requested by subscribe steps that do not set one.
	// Zero uses the manager default.
	LeaseSeconds int `yaml:"lease_seconds,omitempty"`

	// Steps run in order against a single subscription.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final record and observed events.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one action in the lifecycle.
type Step struct {
	// Action is one of the Action* constants.
	Action string `yaml:"action"`

	// HubStatus is the status the hub answers with from this step on.
	// Zero keeps the previous response.
	HubStatus int    `yaml:"hub_status,omitempty"`
	HubBody   string `yaml:"hub_body,omitempty"`

	// Mode is the hub.mode of a verify step. Defaults to subscribe.
	Mode string `yaml:"mode,omitempty"`

	// LeaseSeconds is sent as hub.lease_seconds by verify steps and
	// requested by subscribe steps.
	LeaseSeconds int `yaml:"lease_seconds,omitempty"`

	// Token selects the hub.verify_token of a verify step: empty sends the
	// stored token, "tampered" alters it and "missing" omits it.
	Token string `yaml:"token,omitempty"`

	// Reason is sent as hub.reason by denied verify steps.
	Reason string `yaml:"reason,omitempty"`

	// Duration is how far an advance step moves the clock.
	Duration string `yaml:"duration,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect checks the outcome of a step. Unset fields are not checked.
type Expect struct {
	Accepted   *bool  `yaml:"accepted,omitempty"`
	HTTPStatus int    `yaml:"http_status,omitempty"`
	State      string `yaml:"state,omitempty"`
	Renewed    *int   `yaml:"renewed,omitempty"`
	Failed     *int   `yaml:"failed,omitempty"`

	// Error expects the step to return an error.
	Error bool `yaml:"error,omitempty"`
}

// Assertion validates the final record or the event log.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Expect holds record fields for final_state.
	Expect map[string]interface{} `yaml:"expect,omitempty"`

	// Events is the expected relative order for event_order.
	Events []string `yaml:"events,omitempty"`

	// Event and Count are used by event_count; Count and Mode by
	// hub_requests.
	Event string `yaml:"event,omitempty"`
	Count int    `yaml:"count,omitempty"`
	Mode  string `yaml:"mode,omitempty"`
}

// Step actions.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionVerify      = "verify"
	ActionContent     = "content"
	ActionAdvance     = "advance"
	ActionRenew       = "renew"
)

// Assertion type constants.
const (
	AssertFinalState  = "final_state"
	AssertEventOrder  = "event_order"
	AssertEventCount  = "event_count"
	AssertHubRequests = "hub_requests"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // catches "assertion:" vs "assertions:"
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
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
	if s.Topic == "" {
		return fmt.Errorf("topic is required")
	}
	if s.LeaseSeconds < 0 {
		return fmt.Errorf("lease_seconds must be non-negative")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	switch st.Action {
	case ActionSubscribe, ActionUnsubscribe, ActionContent, ActionRenew:
	case ActionVerify:
		switch model.Mode(st.Mode) {
		case "", model.ModeSubscribe, model.ModeUnsubscribe, model.ModeDenied:
		default:
			return fmt.Errorf("steps[%d]: unknown mode %q", index, st.Mode)
		}
		switch st.Token {
		case "", "tampered", "missing":
		default:
			return fmt.Errorf("steps[%d]: token must be tampered or missing, got %q", index, st.Token)
		}
	case ActionAdvance:
		d, err := time.ParseDuration(st.Duration)
		if err != nil {
			return fmt.Errorf("steps[%d]: invalid duration %q: %w", index, st.Duration, err)
		}
		if d <= 0 {
			return fmt.Errorf("steps[%d]: duration must be positive", index)
		}
	case "":
		return fmt.Errorf("steps[%d]: action is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown action %q", index, st.Action)
	}
	if st.HubStatus < 0 || st.LeaseSeconds < 0 {
		return fmt.Errorf("steps[%d]: hub_status and lease_seconds must be non-negative", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertFinalState:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
		for field := range a.Expect {
			if _, ok := stateFields[field]; !ok {
				return fmt.Errorf("assertions[%d]: unknown final_state field %q", index, field)
			}
		}
	case AssertEventOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for event_order", index)
		}
	case AssertEventCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for event_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertHubRequests:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for hub_requests", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
