package harness

import "github.com/roach88/pushsub/internal/lease"

// TraceEvent records the observable outcome of one step.
type TraceEvent struct {
	Seq    int    `json:"seq"`
	Action string `json:"action"`
	Mode   string `json:"mode,omitempty"`

	// HubStatus is the hub's answer to a subscribe or unsubscribe.
	HubStatus *int  `json:"hub_status,omitempty"`
	Accepted  *bool `json:"accepted,omitempty"`

	// HTTPStatus is the callback endpoint's answer to a verify or content step.
	HTTPStatus int `json:"http_status,omitempty"`

	Renewal *lease.Report `json:"renewal,omitempty"`

	// State and LeaseExpires describe the stored record after the step.
	State        string `json:"state,omitempty"`
	LeaseExpires string `json:"lease_expires,omitempty"`

	// Events are the observer notifications emitted during the step.
	Events []string `json:"events,omitempty"`

	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace has one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the final subscription record as compared by final_state.
	State map[string]string `json:"state,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]string),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
