package push

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/roach88/pushsub/internal/model"
)

// maxReasonBytes bounds how much of a rejecting hub response is kept.
const maxReasonBytes = 1024

// SubscribeRequest describes one subscribe call. Topic and Feed are required.
type SubscribeRequest struct {
	Topic string
	Feed  Feed

	// Hub is resolved from the topic when empty.
	Hub string

	// Callback is derived from the subscription ID when empty.
	Callback string

	// LeaseSeconds falls back to the manager default when zero.
	LeaseSeconds int
}

// UnsubscribeRequest describes one unsubscribe call.
type UnsubscribeRequest struct {
	Hub      string
	Topic    string
	Callback string
}

// Result is the outcome of a hub handshake.
//
// A hub that does not accept the request is not an error: Accepted is false,
// Failure carries the hub's reason, and the record stays unverified.
type Result struct {
	Subscription model.Subscription
	Created      bool
	StatusCode   int
	Accepted     bool
	Failure      string
}

// Manager runs the subscriber side of the subscribe and unsubscribe
// handshakes.
//
// Thread-safety: Manager holds no mutable state; concurrent calls serialize
// only at the store.
type Manager struct {
	store  Store
	tokens *TokenGenerator
	opts   options
}

// NewManager creates a Manager over store, signing tokens with tokens.
func NewManager(store Store, tokens *TokenGenerator, opts ...Option) *Manager {
	return &Manager{
		store:  store,
		tokens: tokens,
		opts:   buildOptions(opts),
	}
}

// Subscribe requests a subscription to req.Topic.
//
// The record is created on first use of a (hub, topic) pair and reused
// afterwards, so repeated calls (including lease renewals) never duplicate
// it. Store failures abort the call; the caller retries from the top.
func (m *Manager) Subscribe(ctx context.Context, req SubscribeRequest) (*Result, error) {
	topic := normalizeURL(req.Topic)
	if !validateURL(topic) {
		return nil, NewInvalidRequestError(req.Topic, "topic must be an absolute http(s) URL")
	}
	if req.Feed == nil || req.Feed.FeedID() == "" {
		return nil, NewInvalidRequestError(topic, "feed with a persisted id is required")
	}
	if req.LeaseSeconds < 0 {
		return nil, NewInvalidRequestError(topic, "lease seconds must be positive")
	}
	leaseSeconds := req.LeaseSeconds
	if leaseSeconds == 0 {
		leaseSeconds = m.opts.leaseSeconds
	}

	hub := normalizeURL(req.Hub)
	if hub == "" {
		resolved, err := m.resolveHub(ctx, topic)
		if err != nil {
			return nil, err
		}
		hub = normalizeURL(resolved)
	}
	if hub == "" {
		return nil, NewConfigurationError("", topic, "hub cannot be empty if the feed does not provide it")
	}
	if !validateURL(hub) {
		return nil, NewInvalidRequestError(topic, fmt.Sprintf("hub %q is not an absolute http(s) URL", hub))
	}

	sub, created, err := m.store.GetOrCreate(ctx, hub, topic, req.Feed.FeedID())
	if err != nil {
		return nil, fmt.Errorf("subscribe: get or create: %w", err)
	}
	m.opts.observer.PreSubscribe(sub, created)

	sub.SetExpiration(m.opts.clock.Now(), leaseSeconds)
	sub.Active = true
	if err := m.store.Save(ctx, sub); err != nil {
		return nil, fmt.Errorf("subscribe: save lease: %w", err)
	}

	callback, err := m.callbackFor(sub, req.Callback)
	if err != nil {
		return nil, err
	}

	token, err := m.tokens.Generate(sub, model.ModeSubscribe)
	if err != nil {
		return nil, err
	}
	sub.VerifyToken = token
	if err := m.store.Save(ctx, sub); err != nil {
		return nil, fmt.Errorf("subscribe: save token: %w", err)
	}

	status, reason := m.send(ctx, hub, url.Values{
		"hub.mode":          {string(model.ModeSubscribe)},
		"hub.callback":      {callback},
		"hub.topic":         {topic},
		"hub.verify":        {"async", "sync"},
		"hub.verify_token":  {token},
		"hub.lease_seconds": {strconv.Itoa(leaseSeconds)},
	})

	result := &Result{Created: created, StatusCode: status}
	switch status {
	case http.StatusNoContent:
		sub.Verified = true
		sub.DeniedReason = ""
		result.Accepted = true
	case http.StatusAccepted:
		sub.Verified = false
		sub.DeniedReason = ""
		result.Accepted = true
	default:
		sub.Verified = false
		result.Failure = reason
	}
	sub.LastStatus = status

	if err := m.store.Save(ctx, sub); err != nil {
		return nil, fmt.Errorf("subscribe: save result: %w", err)
	}
	result.Subscription = sub

	if err := req.Feed.SetupPush(ctx, sub); err != nil {
		return nil, fmt.Errorf("subscribe: setup push: %w", err)
	}

	if result.Accepted {
		slog.Info("subscription requested",
			"id", sub.ID,
			"hub", hub,
			"topic", topic,
			"status", status,
			"verified", sub.Verified,
		)
	} else {
		slog.Warn("feed failed to subscribe to push",
			"id", sub.ID,
			"hub", hub,
			"topic", topic,
			"status", status,
			"reason", reason,
		)
		m.opts.observer.SubscribeFailed(sub, status, reason)
	}

	if sub.Verified {
		m.opts.observer.Verified(sub)
	}
	return result, nil
}

// Unsubscribe asks the hub to end the subscription for (hub, topic).
//
// A 204 response deactivates the record immediately; a 202 leaves it as is
// until the hub's unsubscribe verification arrives at the callback.
func (m *Manager) Unsubscribe(ctx context.Context, req UnsubscribeRequest) (*Result, error) {
	hub := normalizeURL(req.Hub)
	topic := normalizeURL(req.Topic)

	sub, err := m.store.FindByHubTopic(ctx, hub, topic)
	if err != nil {
		return nil, fmt.Errorf("unsubscribe: %w", err)
	}

	callback, err := m.callbackFor(sub, req.Callback)
	if err != nil {
		return nil, err
	}

	token, err := m.tokens.Generate(sub, model.ModeUnsubscribe)
	if err != nil {
		return nil, err
	}
	sub.VerifyToken = token

	status, reason := m.send(ctx, hub, url.Values{
		"hub.mode":         {string(model.ModeUnsubscribe)},
		"hub.callback":     {callback},
		"hub.topic":        {topic},
		"hub.verify":       {"async", "sync"},
		"hub.verify_token": {token},
	})

	result := &Result{StatusCode: status}
	switch status {
	case http.StatusNoContent:
		sub.Active = false
		sub.Verified = false
		result.Accepted = true
	case http.StatusAccepted:
		result.Accepted = true
	default:
		result.Failure = reason
	}
	sub.LastStatus = status

	if err := m.store.Save(ctx, sub); err != nil {
		return nil, fmt.Errorf("unsubscribe: save: %w", err)
	}
	result.Subscription = sub

	switch {
	case status == http.StatusNoContent:
		slog.Info("unsubscribed", "id", sub.ID, "hub", hub, "topic", topic)
		m.opts.observer.Unsubscribed(sub)
	case !result.Accepted:
		slog.Warn("hub did not accept unsubscribe", "id", sub.ID, "hub", hub, "status", status, "reason", reason)
		m.opts.observer.SubscribeFailed(sub, status, reason)
	}
	return result, nil
}

func (m *Manager) resolveHub(ctx context.Context, topic string) (string, error) {
	if m.opts.resolver == nil {
		return "", nil
	}
	hub, err := m.opts.resolver.ResolveHub(ctx, topic)
	if err != nil {
		return "", NewDiscoveryError(topic, err)
	}
	slog.Debug("resolved hub", "topic", topic, "hub", hub)
	return hub, nil
}

func (m *Manager) callbackFor(sub model.Subscription, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	callback, err := m.opts.callback(sub.ID)
	if err != nil {
		return "", &Error{
			Code:    ErrCodeConfiguration,
			Message: "callback cannot be empty if it cannot be derived",
			Hub:     sub.Hub,
			Topic:   sub.Topic,
			Err:     err,
		}
	}
	return callback, nil
}

// send posts form to the hub and returns the status code and, for
// non-accepted responses, a short reason. A transport failure yields
// status 0.
func (m *Manager) send(ctx context.Context, hub string, form url.Values) (int, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hub, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, err.Error()
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	slog.Debug("sending hub request", "hub", hub, "mode", form.Get("hub.mode"), "topic", form.Get("hub.topic"))

	resp, err := m.opts.client.Do(req)
	if err != nil {
		return 0, err.Error()
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusAccepted {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, ""
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxReasonBytes))
	reason := strings.TrimSpace(string(body))
	if reason == "" {
		reason = resp.Status
	}
	return resp.StatusCode, reason
}
