package push

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pushsub/internal/model"
	"github.com/roach88/pushsub/internal/store"
	"github.com/roach88/pushsub/internal/testutil"
)

const (
	testTopic        = "https://feed.example/rss"
	testCallbackBase = "https://subscriber.example/push"
	testSecret       = "test-secret"
)

var testStart = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

type fakeResolver struct {
	hub   string
	err   error
	calls int
}

func (r *fakeResolver) ResolveHub(ctx context.Context, topic string) (string, error) {
	r.calls++
	return r.hub, r.err
}

type fixture struct {
	store    *store.Store
	hub      *testutil.FakeHub
	clock    *testutil.FakeClock
	recorder *testutil.Recorder
	feed     *testutil.MemoryFeed
	tokens   *TokenGenerator
	manager  *Manager
	verifier *Verifier
}

func newFixture(t *testing.T, hubStatus int, opts ...Option) *fixture {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"),
		store.WithIDGenerator(store.NewFixedGenerator("sub-1", "sub-2", "sub-3")))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	tokens, err := NewTokenGenerator([]byte(testSecret), HashSHA256)
	require.NoError(t, err)

	f := &fixture{
		store:    st,
		hub:      testutil.NewFakeHub(t, hubStatus),
		clock:    testutil.NewFakeClock(testStart),
		recorder: &testutil.Recorder{},
		feed:     testutil.NewMemoryFeed("feed-1"),
		tokens:   tokens,
	}

	base := []Option{
		WithClock(f.clock),
		WithObservers(f.recorder),
		WithCallback(CallbackTemplate(testCallbackBase)),
	}
	all := append(base, opts...)
	f.manager = NewManager(st, tokens, all...)
	f.verifier = NewVerifier(st, tokens, all...)
	return f
}

func (f *fixture) subscribe(t *testing.T, leaseSeconds int) *Result {
	t.Helper()
	result, err := f.manager.Subscribe(context.Background(), SubscribeRequest{
		Topic:        testTopic,
		Feed:         f.feed,
		Hub:          f.hub.URL,
		LeaseSeconds: leaseSeconds,
	})
	require.NoError(t, err)
	return result
}

func TestSubscribe_SyncVerification(t *testing.T) {
	f := newFixture(t, http.StatusNoContent)

	result := f.subscribe(t, 3600)

	assert.True(t, result.Accepted)
	assert.True(t, result.Created)
	assert.Equal(t, http.StatusNoContent, result.StatusCode)
	assert.Empty(t, result.Failure)

	sub := result.Subscription
	assert.Equal(t, "sub-1", sub.ID)
	assert.True(t, sub.Verified)
	assert.True(t, sub.Active)
	assert.Equal(t, model.StateVerified, sub.State(f.clock.Now()))
	assert.True(t, testStart.Add(time.Hour).Equal(sub.LeaseExpires))

	stored, err := f.store.FindByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.True(t, stored.Verified)
	assert.True(t, testStart.Add(time.Hour).Equal(stored.LeaseExpires))
	assert.Equal(t, http.StatusNoContent, stored.LastStatus)
	assert.True(t, f.tokens.Validate(stored, model.ModeSubscribe, stored.VerifyToken))

	assert.Equal(t, 1, f.feed.SetupCount())
	assert.Equal(t, []string{"pre_subscribe", "verified"}, f.recorder.Kinds())
	assert.True(t, f.recorder.Events()[0].Created)
}

func TestSubscribe_RequestForm(t *testing.T) {
	f := newFixture(t, http.StatusNoContent)

	f.subscribe(t, 3600)

	form := f.hub.LastRequest()
	require.NotNil(t, form)
	assert.Equal(t, "subscribe", form.Get("hub.mode"))
	assert.Equal(t, testTopic, form.Get("hub.topic"))
	assert.Equal(t, testCallbackBase+"/sub-1", form.Get("hub.callback"))
	assert.Equal(t, []string{"async", "sync"}, form["hub.verify"])
	assert.Equal(t, "3600", form.Get("hub.lease_seconds"))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "subscribe_request", []byte(form.Encode()))
}

func TestSubscribe_AsyncVerificationPending(t *testing.T) {
	f := newFixture(t, http.StatusAccepted)

	result := f.subscribe(t, 3600)

	assert.True(t, result.Accepted)
	assert.False(t, result.Subscription.Verified)
	assert.Equal(t, model.StatePending, result.Subscription.State(f.clock.Now()))
	assert.Equal(t, []string{"pre_subscribe"}, f.recorder.Kinds())
	assert.Equal(t, 1, f.feed.SetupCount())
}

func TestSubscribe_HubRejectsIsNotAnError(t *testing.T) {
	f := newFixture(t, http.StatusBadRequest)
	f.hub.Respond(http.StatusBadRequest, "topic not allowed")

	result := f.subscribe(t, 3600)

	assert.False(t, result.Accepted)
	assert.Equal(t, http.StatusBadRequest, result.StatusCode)
	assert.Equal(t, "topic not allowed", result.Failure)
	assert.False(t, result.Subscription.Verified)

	stored, err := f.store.FindByID(context.Background(), result.Subscription.ID)
	require.NoError(t, err)
	assert.False(t, stored.Verified)
	assert.Equal(t, http.StatusBadRequest, stored.LastStatus)

	events := f.recorder.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "subscribe_failed", events[1].Kind)
	assert.Equal(t, http.StatusBadRequest, events[1].Status)
	assert.Equal(t, "topic not allowed", events[1].Reason)
	assert.Equal(t, 1, f.feed.SetupCount(), "feed is still told push was requested")
}

func TestSubscribe_TransportFailureIsNotAnError(t *testing.T) {
	f := newFixture(t, http.StatusNoContent)
	f.hub.Close()

	result := f.subscribe(t, 3600)

	assert.False(t, result.Accepted)
	assert.Equal(t, 0, result.StatusCode)
	assert.NotEmpty(t, result.Failure)
	assert.False(t, result.Subscription.Verified)
}

func TestSubscribe_FailedRenewalClearsVerified(t *testing.T) {
	f := newFixture(t, http.StatusNoContent)
	f.subscribe(t, 3600)

	f.hub.Respond(http.StatusInternalServerError, "")
	f.clock.Advance(30 * time.Minute)
	result := f.subscribe(t, 3600)

	assert.False(t, result.Subscription.Verified)
	assert.Equal(t, http.StatusInternalServerError, result.StatusCode)
	assert.Equal(t, "500 Internal Server Error", result.Failure)
}

func TestSubscribe_Idempotent(t *testing.T) {
	f := newFixture(t, http.StatusNoContent)

	first := f.subscribe(t, 3600)
	f.clock.Advance(time.Minute)
	second := f.subscribe(t, 7200)

	assert.True(t, first.Created)
	assert.False(t, second.Created)
	assert.Equal(t, first.Subscription.ID, second.Subscription.ID)
	assert.True(t, testStart.Add(time.Minute+2*time.Hour).Equal(second.Subscription.LeaseExpires))

	all, err := f.store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Len(t, f.hub.Requests(), 2)
}

func TestSubscribe_DefaultLeaseSeconds(t *testing.T) {
	f := newFixture(t, http.StatusNoContent)

	result := f.subscribe(t, 0)

	assert.Equal(t, "2592000", f.hub.LastRequest().Get("hub.lease_seconds"))
	assert.True(t, testStart.Add(30*24*time.Hour).Equal(result.Subscription.LeaseExpires))
}

func TestSubscribe_ConfiguredLeaseSeconds(t *testing.T) {
	f := newFixture(t, http.StatusNoContent, WithLeaseSeconds(86400))

	f.subscribe(t, 0)

	assert.Equal(t, "86400", f.hub.LastRequest().Get("hub.lease_seconds"))
}

func TestSubscribe_ResolvesHubFromTopic(t *testing.T) {
	resolver := &fakeResolver{}
	f := newFixture(t, http.StatusNoContent, WithResolver(resolver))
	resolver.hub = f.hub.URL

	result, err := f.manager.Subscribe(context.Background(), SubscribeRequest{
		Topic: testTopic,
		Feed:  f.feed,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, resolver.calls)
	assert.Equal(t, f.hub.URL, result.Subscription.Hub)
	assert.Len(t, f.hub.Requests(), 1)
}

func TestSubscribe_ExplicitHubSkipsResolver(t *testing.T) {
	resolver := &fakeResolver{hub: "https://unused.example/"}
	f := newFixture(t, http.StatusNoContent, WithResolver(resolver))

	f.subscribe(t, 3600)

	assert.Equal(t, 0, resolver.calls)
}

func TestSubscribe_NoHubIsConfigurationError(t *testing.T) {
	resolver := &fakeResolver{}
	f := newFixture(t, http.StatusNoContent, WithResolver(resolver))

	_, err := f.manager.Subscribe(context.Background(), SubscribeRequest{
		Topic: testTopic,
		Feed:  f.feed,
	})
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))

	all, err := f.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all, "no record is created without a hub")
	assert.Empty(t, f.recorder.Events())
}

func TestSubscribe_NoResolverNoHub(t *testing.T) {
	f := newFixture(t, http.StatusNoContent)

	_, err := f.manager.Subscribe(context.Background(), SubscribeRequest{
		Topic: testTopic,
		Feed:  f.feed,
	})
	assert.True(t, IsConfigurationError(err))
}

func TestSubscribe_DiscoveryFailure(t *testing.T) {
	cause := errors.New("connection refused")
	f := newFixture(t, http.StatusNoContent, WithResolver(&fakeResolver{err: cause}))

	_, err := f.manager.Subscribe(context.Background(), SubscribeRequest{
		Topic: testTopic,
		Feed:  f.feed,
	})
	require.Error(t, err)
	assert.True(t, IsDiscoveryError(err))
	assert.ErrorIs(t, err, cause)
}

func TestSubscribe_NoCallbackDerivable(t *testing.T) {
	f := newFixture(t, http.StatusNoContent, WithCallback(CallbackTemplate("")))

	_, err := f.manager.Subscribe(context.Background(), SubscribeRequest{
		Topic: testTopic,
		Feed:  f.feed,
		Hub:   f.hub.URL,
	})
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.Empty(t, f.hub.Requests())
}

func TestSubscribe_ExplicitCallback(t *testing.T) {
	f := newFixture(t, http.StatusNoContent, WithCallback(CallbackTemplate("")))

	_, err := f.manager.Subscribe(context.Background(), SubscribeRequest{
		Topic:    testTopic,
		Feed:     f.feed,
		Hub:      f.hub.URL,
		Callback: "https://elsewhere.example/cb",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://elsewhere.example/cb", f.hub.LastRequest().Get("hub.callback"))
}

func TestSubscribe_InvalidRequests(t *testing.T) {
	f := newFixture(t, http.StatusNoContent)

	tests := []struct {
		name string
		req  SubscribeRequest
	}{
		{"empty topic", SubscribeRequest{Feed: f.feed, Hub: f.hub.URL}},
		{"relative topic", SubscribeRequest{Topic: "/rss", Feed: f.feed, Hub: f.hub.URL}},
		{"missing feed", SubscribeRequest{Topic: testTopic, Hub: f.hub.URL}},
		{"feed without id", SubscribeRequest{Topic: testTopic, Feed: testutil.NewMemoryFeed(""), Hub: f.hub.URL}},
		{"negative lease", SubscribeRequest{Topic: testTopic, Feed: f.feed, Hub: f.hub.URL, LeaseSeconds: -1}},
		{"bad hub", SubscribeRequest{Topic: testTopic, Feed: f.feed, Hub: "ftp://hub.example/"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.manager.Subscribe(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, IsInvalidRequestError(err), "got %v", err)
		})
	}
	assert.Empty(t, f.hub.Requests())
}

func TestSubscribe_NormalizesTopic(t *testing.T) {
	f := newFixture(t, http.StatusNoContent)

	first := f.subscribe(t, 3600)
	second, err := f.manager.Subscribe(context.Background(), SubscribeRequest{
		Topic:        "  " + testTopic + "\n",
		Feed:         f.feed,
		Hub:          f.hub.URL,
		LeaseSeconds: 3600,
	})
	require.NoError(t, err)
	assert.Equal(t, first.Subscription.ID, second.Subscription.ID)
}

func TestSubscribe_FeedSetupFailure(t *testing.T) {
	f := newFixture(t, http.StatusNoContent)
	f.feed.Err = errors.New("feed locked")

	_, err := f.manager.Subscribe(context.Background(), SubscribeRequest{
		Topic: testTopic,
		Feed:  f.feed,
		Hub:   f.hub.URL,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feed locked")

	stored, err := f.store.FindByHubTopic(context.Background(), f.hub.URL, testTopic)
	require.NoError(t, err)
	assert.True(t, stored.Verified, "record is saved before the feed is notified")
}

func TestUnsubscribe_Sync(t *testing.T) {
	f := newFixture(t, http.StatusNoContent)
	f.subscribe(t, 3600)

	result, err := f.manager.Unsubscribe(context.Background(), UnsubscribeRequest{
		Hub:   f.hub.URL,
		Topic: testTopic,
	})
	require.NoError(t, err)

	assert.True(t, result.Accepted)
	assert.False(t, result.Subscription.Active)
	assert.Equal(t, model.StateDenied, result.Subscription.State(f.clock.Now()))

	form := f.hub.LastRequest()
	assert.Equal(t, "unsubscribe", form.Get("hub.mode"))
	assert.Empty(t, form.Get("hub.lease_seconds"))
	assert.True(t, f.tokens.Validate(result.Subscription, model.ModeUnsubscribe, form.Get("hub.verify_token")))

	assert.Equal(t, []string{"pre_subscribe", "verified", "unsubscribed"}, f.recorder.Kinds())
}

func TestUnsubscribe_AsyncLeavesRecordActive(t *testing.T) {
	f := newFixture(t, http.StatusNoContent)
	f.subscribe(t, 3600)
	f.hub.Respond(http.StatusAccepted, "")

	result, err := f.manager.Unsubscribe(context.Background(), UnsubscribeRequest{
		Hub:   f.hub.URL,
		Topic: testTopic,
	})
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.True(t, result.Subscription.Active)
	assert.True(t, result.Subscription.Verified)
}

func TestUnsubscribe_Unknown(t *testing.T) {
	f := newFixture(t, http.StatusNoContent)

	_, err := f.manager.Unsubscribe(context.Background(), UnsubscribeRequest{
		Hub:   f.hub.URL,
		Topic: testTopic,
	})
	assert.ErrorIs(t, err, model.ErrNotFound)
}
