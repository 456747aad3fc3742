package harness

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/roach88/pushsub/internal/model"
)

// AssertionContext carries what assertions evaluate against besides the
// result itself.
type AssertionContext struct {
	// Events are the observer notifications in order.
	Events []string

	// Hub holds every form the hub received.
	Hub []url.Values

	// Found is false when no subscription record exists.
	Found bool
}

// stateFields are the record fields final_state can compare.
var stateFields = map[string]struct{}{
	"state":         {},
	"active":        {},
	"verified":      {},
	"last_status":   {},
	"denied_reason": {},
	"lease_expires": {},
}

// stateOf flattens sub into the string form final_state compares against.
func stateOf(sub model.Subscription, now time.Time) map[string]string {
	state := map[string]string{
		"state":         string(sub.State(now)),
		"active":        strconv.FormatBool(sub.Active),
		"verified":      strconv.FormatBool(sub.Verified),
		"last_status":   strconv.Itoa(sub.LastStatus),
		"denied_reason": sub.DeniedReason,
		"lease_expires": "",
	}
	if !sub.LeaseExpires.IsZero() {
		state["lease_expires"] = sub.LeaseExpires.UTC().Format(time.RFC3339)
	}
	return state
}

// EvaluateAssertions runs every assertion and returns one message per
// failure. An empty slice means all assertions passed.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluateAssertion(result, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d] %s: %v", i, a.Type, err))
		}
	}
	return errs
}

func evaluateAssertion(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertFinalState:
		return assertFinalState(result.State, a.Expect, actx.Found)
	case AssertEventOrder:
		return assertEventOrder(actx.Events, a.Events)
	case AssertEventCount:
		return assertEventCount(actx.Events, a.Event, a.Count)
	case AssertHubRequests:
		return assertHubRequests(actx.Hub, a.Mode, a.Count)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertFinalState compares expected fields by their string form, so YAML
// scalars (true, 204, verified) match without type juggling.
func assertFinalState(state map[string]string, expect map[string]interface{}, found bool) error {
	if !found {
		return fmt.Errorf("no subscription record exists")
	}
	for field, want := range expect {
		got, ok := state[field]
		if !ok {
			return fmt.Errorf("unknown field %q", field)
		}
		if wantStr := fmt.Sprint(want); got != wantStr {
			return fmt.Errorf("field %q: expected %q, got %q", field, wantStr, got)
		}
	}
	return nil
}

// assertEventOrder checks that want appears as a subsequence of events.
// Other events may be interleaved.
func assertEventOrder(events, want []string) error {
	next := 0
	for _, e := range events {
		if next < len(want) && e == want[next] {
			next++
		}
	}
	if next < len(want) {
		return fmt.Errorf("event %q not found in order (events: %v)", want[next], events)
	}
	return nil
}

func assertEventCount(events []string, event string, want int) error {
	got := 0
	for _, e := range events {
		if e == event {
			got++
		}
	}
	if got != want {
		return fmt.Errorf("expected %d %q events, got %d", want, event, got)
	}
	return nil
}

func assertHubRequests(forms []url.Values, mode string, want int) error {
	got := 0
	for _, form := range forms {
		if mode == "" || form.Get("hub.mode") == mode {
			got++
		}
	}
	if got != want {
		if mode == "" {
			return fmt.Errorf("expected %d hub requests, got %d", want, got)
		}
		return fmt.Errorf("expected %d %s hub requests, got %d", want, mode, got)
	}
	return nil
}

// checkExpect validates a step against its expect clause. A step error is
// a failure unless the clause expects one.
func checkExpect(seq int, step Step, event TraceEvent, stepErr error) []string {
	var errs []string
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf("steps[%d] %s: ", seq, step.Action)+fmt.Sprintf(format, args...))
	}

	exp := step.Expect
	if stepErr != nil && (exp == nil || !exp.Error) {
		fail("unexpected error: %v", stepErr)
	}
	if exp == nil {
		return errs
	}
	if exp.Error && stepErr == nil {
		fail("expected an error")
	}
	if exp.Accepted != nil && (event.Accepted == nil || *event.Accepted != *exp.Accepted) {
		fail("expected accepted=%t", *exp.Accepted)
	}
	if exp.HTTPStatus != 0 && event.HTTPStatus != exp.HTTPStatus {
		fail("expected http status %d, got %d", exp.HTTPStatus, event.HTTPStatus)
	}
	if exp.State != "" && event.State != exp.State {
		fail("expected state %q, got %q", exp.State, event.State)
	}
	if exp.Renewed != nil && (event.Renewal == nil || event.Renewal.Renewed != *exp.Renewed) {
		fail("expected %d renewed", *exp.Renewed)
	}
	if exp.Failed != nil && (event.Renewal == nil || event.Renewal.Failed != *exp.Failed) {
		fail("expected %d failed renewals", *exp.Failed)
	}
	return errs
}
