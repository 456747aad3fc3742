package harness

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/roach88/pushsub/internal/callback"
	"github.com/roach88/pushsub/internal/lease"
	"github.com/roach88/pushsub/internal/model"
	"github.com/roach88/pushsub/internal/push"
	"github.com/roach88/pushsub/internal/store"
	"github.com/roach88/pushsub/internal/testutil"
)

// Start is the wall clock reading every scenario begins at.
var Start = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

const (
	callbackBase     = "https://subscriber.example/push"
	callbackPrefix   = "/push"
	scenarioSecret   = "harness-secret"
	initialHubStatus = http.StatusAccepted
	contentBody      = `{"items":[]}`
)

// Harness wires one scenario's components together.
type Harness struct {
	scenario  *Scenario
	store     *store.Store
	hub       *testutil.FakeHub
	clock     *testutil.FakeClock
	events    *testutil.Recorder
	manager   *push.Manager
	scheduler *lease.Scheduler
	router    *mux.Router
	feed      *store.Feed

	// subID is the subscription the scenario operates on, set by the first
	// successful subscribe.
	subID string
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh SQLite database under t.TempDir. Step
// failures are reported in the result; an error is returned only when the
// harness itself cannot be set up.
func Run(t testing.TB, scenario *Scenario) (*Result, error) {
	t.Helper()

	h, err := newHarness(t, scenario)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	result := NewResult()

	for i, step := range scenario.Steps {
		before := len(h.events.Kinds())

		event, stepErr := h.execute(ctx, i, step)
		if stepErr != nil {
			event.Error = stepErr.Error()
		}
		if err := h.describe(ctx, &event); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		event.Events = h.events.Kinds()[before:]

		result.Trace = append(result.Trace, event)
		for _, msg := range checkExpect(i, step, event, stepErr) {
			result.AddError(msg)
		}
	}

	sub, ok, err := h.current(ctx)
	if err != nil {
		return nil, fmt.Errorf("final state: %w", err)
	}
	if ok {
		result.State = stateOf(sub, h.clock.Now())
	}

	actx := &AssertionContext{
		Events: h.events.Kinds(),
		Hub:    h.hub.Requests(),
		Found:  ok,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(t testing.TB, scenario *Scenario) (*Harness, error) {
	clock := testutil.NewFakeClock(Start)

	st, err := store.Open(filepath.Join(t.TempDir(), "harness.db"), store.WithClock(clock.Now))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	t.Cleanup(func() { st.Close() })

	tokens, err := push.NewTokenGenerator([]byte(scenarioSecret), push.HashSHA256)
	if err != nil {
		return nil, err
	}

	feed, err := st.EnsureFeed(context.Background(), scenario.Topic)
	if err != nil {
		return nil, fmt.Errorf("failed to create feed: %w", err)
	}

	events := &testutil.Recorder{}
	opts := []push.Option{
		push.WithClock(clock),
		push.WithObservers(events),
		push.WithCallback(push.CallbackTemplate(callbackBase)),
	}
	manager := push.NewManager(st, tokens, opts...)
	verifier := push.NewVerifier(st, tokens, opts...)

	router := mux.NewRouter()
	callback.NewHandler(verifier, st, callback.WithClock(clock)).
		RegisterRoutes(router.PathPrefix(callbackPrefix).Subrouter())

	h := &Harness{
		scenario: scenario,
		store:    st,
		hub:      testutil.NewFakeHub(t, initialHubStatus),
		clock:    clock,
		events:   events,
		manager:  manager,
		router:   router,
		feed:     feed,
	}

	schedOpts := []lease.Option{lease.WithClock(clock), lease.WithObserver(events)}
	if scenario.LeaseSeconds > 0 {
		schedOpts = append(schedOpts, lease.WithLeaseSeconds(scenario.LeaseSeconds))
	}
	h.scheduler = lease.NewScheduler(st, manager, h.loadFeed, schedOpts...)
	return h, nil
}

func (h *Harness) loadFeed(ctx context.Context, id string) (push.Feed, error) {
	feed, err := h.store.LoadFeed(ctx, id)
	if err != nil {
		return nil, err
	}
	return feed, nil
}

// execute runs one step. The returned event carries the step's direct
// outcome; describe fills in the resulting record state.
func (h *Harness) execute(ctx context.Context, seq int, step Step) (TraceEvent, error) {
	event := TraceEvent{Seq: seq, Action: step.Action}
	if step.HubStatus != 0 {
		h.hub.Respond(step.HubStatus, step.HubBody)
	}

	switch step.Action {
	case ActionSubscribe:
		leaseSeconds := step.LeaseSeconds
		if leaseSeconds == 0 {
			leaseSeconds = h.scenario.LeaseSeconds
		}
		res, err := h.manager.Subscribe(ctx, push.SubscribeRequest{
			Topic:        h.scenario.Topic,
			Hub:          h.hub.URL,
			Feed:         h.feed,
			LeaseSeconds: leaseSeconds,
		})
		if err != nil {
			return event, err
		}
		h.subID = res.Subscription.ID
		event.HubStatus = &res.StatusCode
		event.Accepted = &res.Accepted

	case ActionUnsubscribe:
		res, err := h.manager.Unsubscribe(ctx, push.UnsubscribeRequest{
			Hub:   h.hub.URL,
			Topic: h.scenario.Topic,
		})
		if err != nil {
			return event, err
		}
		event.HubStatus = &res.StatusCode
		event.Accepted = &res.Accepted

	case ActionVerify:
		mode := step.Mode
		if mode == "" {
			mode = string(model.ModeSubscribe)
		}
		event.Mode = mode
		status, err := h.verify(ctx, seq, step, mode)
		event.HTTPStatus = status
		if err != nil {
			return event, err
		}

	case ActionContent:
		req := httptest.NewRequest(http.MethodPost, h.callbackPath(), strings.NewReader(contentBody))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h.router.ServeHTTP(rec, req)
		event.HTTPStatus = rec.Code

	case ActionAdvance:
		d, err := time.ParseDuration(step.Duration)
		if err != nil {
			return event, err
		}
		h.clock.Advance(d)

	case ActionRenew:
		report, err := h.scheduler.RunOnce(ctx)
		if err != nil {
			return event, err
		}
		event.Renewal = &report

	default:
		return event, fmt.Errorf("unknown action %q", step.Action)
	}
	return event, nil
}

// verify plays the hub's side of intent verification against the
// callback endpoint.
func (h *Harness) verify(ctx context.Context, seq int, step Step, mode string) (int, error) {
	q := url.Values{}
	q.Set("hub.mode", mode)
	q.Set("hub.topic", h.scenario.Topic)
	if mode != string(model.ModeDenied) {
		q.Set("hub.challenge", fmt.Sprintf("challenge-%d", seq))
	}
	if step.LeaseSeconds > 0 {
		q.Set("hub.lease_seconds", strconv.Itoa(step.LeaseSeconds))
	}
	if step.Reason != "" {
		q.Set("hub.reason", step.Reason)
	}

	var token string
	sub, ok, err := h.current(ctx)
	if err != nil {
		return 0, err
	}
	if ok {
		token = sub.VerifyToken
	}
	switch step.Token {
	case "tampered":
		token += "x"
	case "missing":
		token = ""
	}
	if token != "" {
		q.Set("hub.verify_token", token)
	}

	req := httptest.NewRequest(http.MethodGet, h.callbackPath()+"?"+q.Encode(), nil)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	if rec.Code == http.StatusOK {
		if got := rec.Body.String(); got != q.Get("hub.challenge") {
			return rec.Code, fmt.Errorf("challenge not echoed: got %q", got)
		}
	}
	return rec.Code, nil
}

func (h *Harness) callbackPath() string {
	id := h.subID
	if id == "" {
		id = "unknown"
	}
	return callbackPrefix + "/" + id
}

// current loads the scenario's subscription. ok is false before the first
// subscribe.
func (h *Harness) current(ctx context.Context) (model.Subscription, bool, error) {
	if h.subID == "" {
		return model.Subscription{}, false, nil
	}
	sub, err := h.store.FindByID(ctx, h.subID)
	if errors.Is(err, model.ErrNotFound) {
		return model.Subscription{}, false, nil
	}
	if err != nil {
		return model.Subscription{}, false, err
	}
	return sub, true, nil
}

func (h *Harness) describe(ctx context.Context, event *TraceEvent) error {
	sub, ok, err := h.current(ctx)
	if err != nil || !ok {
		return err
	}
	event.State = string(sub.State(h.clock.Now()))
	if !sub.LeaseExpires.IsZero() {
		event.LeaseExpires = sub.LeaseExpires.UTC().Format(time.RFC3339)
	}
	return nil
}
