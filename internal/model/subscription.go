package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by store lookups that match no subscription.
var ErrNotFound = errors.New("subscription not found")

// DefaultLeaseSeconds is the lease requested when neither the caller nor the
// configuration supplies one (30 days).
const DefaultLeaseSeconds = 2592000

// Mode is the hub.mode value of a handshake or callback.
type Mode string

const (
	ModeSubscribe   Mode = "subscribe"
	ModeUnsubscribe Mode = "unsubscribe"
	ModeDenied      Mode = "denied"
)

// State is the lifecycle position of a subscription at a point in time.
type State string

const (
	// StatePending means a subscribe was issued and the hub has not confirmed it.
	StatePending State = "pending"

	// StateVerified means the hub confirmed the subscription and the lease is live.
	StateVerified State = "verified"

	// StateExpired means the hub confirmed it once but the lease has elapsed.
	StateExpired State = "expired"

	// StateDenied means the hub denied the subscription or it was unsubscribed.
	StateDenied State = "denied"
)

// Subscription is the subscriber-side record of one hub subscription.
type Subscription struct {
	ID     string `json:"id"`
	Hub    string `json:"hub"`
	Topic  string `json:"topic"`
	FeedID string `json:"feed_id"`

	Verified     bool      `json:"verified"`
	VerifyToken  string    `json:"-"`
	LeaseExpires time.Time `json:"lease_expires"`

	// LeaseSeconds is the length of the lease LeaseExpires was computed
	// from. Renewals request it again.
	LeaseSeconds int `json:"lease_seconds"`

	Active       bool   `json:"active"`
	DeniedReason string `json:"denied_reason,omitempty"`

	// LastStatus is the HTTP status of the most recent hub request, 0 when
	// the request never completed.
	LastStatus int `json:"last_status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SetExpiration sets LeaseExpires to now plus leaseSeconds and remembers
// the lease length.
func (s *Subscription) SetExpiration(now time.Time, leaseSeconds int) {
	s.LeaseSeconds = leaseSeconds
	s.LeaseExpires = now.Add(time.Duration(leaseSeconds) * time.Second)
}

// State reports the lifecycle state at now.
func (s Subscription) State(now time.Time) State {
	switch {
	case !s.Active:
		return StateDenied
	case s.Verified && s.LeaseExpires.After(now):
		return StateVerified
	case s.Verified:
		return StateExpired
	default:
		return StatePending
	}
}

// IsActive reports whether the subscription is verified with a live lease.
func (s Subscription) IsActive(now time.Time) bool {
	return s.State(now) == StateVerified
}

func (s Subscription) String() string {
	verified := "unverified"
	if s.Verified {
		verified = "verified"
	}
	return fmt.Sprintf("to %s on %s: %s", s.Topic, s.Hub, verified)
}
