package push

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/pushsub/internal/model"
)

// Callback is an inbound hub verification request.
type Callback struct {
	// SubscriptionID comes from the callback URL path. When empty the
	// record is looked up by (Hub, Topic).
	SubscriptionID string
	Hub            string

	Mode      model.Mode
	Topic     string
	Challenge string
	Token     string

	// LeaseSeconds is the lease granted by the hub, 0 when absent.
	LeaseSeconds int

	// Reason is the hub's explanation for a denial.
	Reason string
}

// Verifier validates inbound hub callbacks and applies the resulting state
// transitions:
//
//	pending  --subscribe-->   verified
//	pending  --denied-->      denied
//	verified --unsubscribe--> denied (inactive)
//	verified --lease ends-->  expired --renewal--> pending
//
// A callback token must equal the token of the subscriber's latest request
// for the record, so a subscribe token replayed after an unsubscribe is
// rejected. Rejected callbacks never mutate the stored record. Re-delivering
// a valid callback is safe: the lease is recomputed from the current time.
type Verifier struct {
	store  Store
	tokens *TokenGenerator
	opts   options
}

// NewVerifier creates a Verifier over store. Only WithClock and
// WithObservers apply.
func NewVerifier(store Store, tokens *TokenGenerator, opts ...Option) *Verifier {
	return &Verifier{
		store:  store,
		tokens: tokens,
		opts:   buildOptions(opts),
	}
}

// Verify checks cb against the stored subscription and returns the
// challenge to echo back to the hub. Denials return an empty challenge.
func (v *Verifier) Verify(ctx context.Context, cb Callback) (string, error) {
	topic := normalizeURL(cb.Topic)
	if topic == "" {
		return "", v.reject(cb, "missing topic")
	}

	sub, err := v.lookup(ctx, cb.SubscriptionID, normalizeURL(cb.Hub), topic)
	if errors.Is(err, model.ErrNotFound) {
		return "", v.reject(cb, "unknown subscription")
	}
	if err != nil {
		return "", fmt.Errorf("verify callback: %w", err)
	}
	if sub.Topic != topic {
		return "", v.reject(cb, "topic does not match subscription")
	}

	now := v.opts.clock.Now()

	switch cb.Mode {
	case model.ModeSubscribe:
		if !v.matches(sub, model.ModeSubscribe, cb.Token) {
			return "", v.reject(cb, "verify token mismatch")
		}
		if !sub.Active {
			return "", v.reject(cb, "subscription is not active")
		}
		sub.Verified = true
		sub.Active = true
		sub.DeniedReason = ""
		if cb.LeaseSeconds > 0 {
			sub.SetExpiration(now, cb.LeaseSeconds)
		}
		if err := v.store.Save(ctx, sub); err != nil {
			return "", fmt.Errorf("verify callback: save: %w", err)
		}
		slog.Info("subscription verified", "id", sub.ID, "topic", sub.Topic, "lease_expires", sub.LeaseExpires)
		v.opts.observer.Verified(sub)
		return cb.Challenge, nil

	case model.ModeUnsubscribe:
		if !v.matches(sub, model.ModeUnsubscribe, cb.Token) {
			return "", v.reject(cb, "verify token mismatch")
		}
		sub.Verified = false
		sub.Active = false
		if err := v.store.Save(ctx, sub); err != nil {
			return "", fmt.Errorf("verify callback: save: %w", err)
		}
		slog.Info("unsubscribe verified", "id", sub.ID, "topic", sub.Topic)
		v.opts.observer.Unsubscribed(sub)
		return cb.Challenge, nil

	case model.ModeDenied:
		// Hubs do not send a token with denials; one that is present must match.
		if cb.Token != "" && !v.matches(sub, model.ModeSubscribe, cb.Token) {
			return "", v.reject(cb, "verify token mismatch")
		}
		if sub.Verified {
			return "", v.reject(cb, "denial for a verified subscription")
		}
		sub.Verified = false
		sub.Active = false
		sub.DeniedReason = cb.Reason
		if err := v.store.Save(ctx, sub); err != nil {
			return "", fmt.Errorf("verify callback: save: %w", err)
		}
		slog.Warn("subscription denied by hub", "id", sub.ID, "topic", sub.Topic, "reason", cb.Reason)
		v.opts.observer.Denied(sub)
		return "", nil

	default:
		return "", v.reject(cb, fmt.Sprintf("unsupported mode %q", cb.Mode))
	}
}

// matches reports whether token is the token stored with sub and was issued
// for mode.
func (v *Verifier) matches(sub model.Subscription, mode model.Mode, token string) bool {
	if sub.VerifyToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(sub.VerifyToken)) != 1 {
		return false
	}
	return v.tokens.Validate(sub, mode, token)
}

func (v *Verifier) lookup(ctx context.Context, id, hub, topic string) (model.Subscription, error) {
	if id != "" {
		return v.store.FindByID(ctx, id)
	}
	return v.store.FindByHubTopic(ctx, hub, topic)
}

// reject logs the rejected callback for audit and returns a verification error.
func (v *Verifier) reject(cb Callback, reason string) error {
	slog.Warn("rejected hub callback",
		"subscription", cb.SubscriptionID,
		"mode", cb.Mode,
		"topic", cb.Topic,
		"reason", reason,
	)
	return NewVerificationError(cb.Hub, cb.Topic, reason)
}
