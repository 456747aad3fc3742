package testutil

import (
	"sync"

	"github.com/roach88/pushsub/internal/model"
)

// Event is one observer notification captured by Recorder.
type Event struct {
	Kind    string
	Sub     model.Subscription
	Created bool
	Status  int
	Reason  string
}

// Recorder captures lifecycle notifications in order. It satisfies
// push.Observer.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) add(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) PreSubscribe(sub model.Subscription, created bool) {
	r.add(Event{Kind: "pre_subscribe", Sub: sub, Created: created})
}

func (r *Recorder) Verified(sub model.Subscription) {
	r.add(Event{Kind: "verified", Sub: sub})
}

func (r *Recorder) Unsubscribed(sub model.Subscription) {
	r.add(Event{Kind: "unsubscribed", Sub: sub})
}

func (r *Recorder) Denied(sub model.Subscription) {
	r.add(Event{Kind: "denied", Sub: sub})
}

func (r *Recorder) SubscribeFailed(sub model.Subscription, status int, reason string) {
	r.add(Event{Kind: "subscribe_failed", Sub: sub, Status: status, Reason: reason})
}

// Events returns a copy of the captured events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds returns the captured event kinds in order.
func (r *Recorder) Kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]string, len(r.events))
	for i, e := range r.events {
		kinds[i] = e.Kind
	}
	return kinds
}

// Renewed records a lease scheduler outcome. It satisfies lease.Observer.
func (r *Recorder) Renewed(sub model.Subscription, ok bool) {
	kind := "renewed"
	if !ok {
		kind = "renewal_failed"
	}
	r.add(Event{Kind: kind, Sub: sub})
}
