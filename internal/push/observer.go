package push

import "github.com/roach88/pushsub/internal/model"

// Observer receives lifecycle notifications from Manager and Verifier.
//
// Observers are registered explicitly at construction. Hooks run
// synchronously on the calling goroutine and must not block.
type Observer interface {
	// PreSubscribe fires after get-or-create, before the hub request.
	// created reports whether the record was newly inserted.
	PreSubscribe(sub model.Subscription, created bool)

	// Verified fires when a subscription becomes verified, either from a
	// synchronous 204 or an asynchronous callback.
	Verified(sub model.Subscription)

	// Unsubscribed fires when the hub confirms an unsubscribe.
	Unsubscribed(sub model.Subscription)

	// Denied fires when the hub denies a subscription.
	Denied(sub model.Subscription)

	// SubscribeFailed fires when the hub did not accept a subscribe or
	// unsubscribe request. status is 0 when no response was received.
	SubscribeFailed(sub model.Subscription, status int, reason string)
}

// NopObserver implements Observer with no-op hooks. Embed it to implement
// only the hooks you need.
type NopObserver struct{}

func (NopObserver) PreSubscribe(model.Subscription, bool)           {}
func (NopObserver) Verified(model.Subscription)                     {}
func (NopObserver) Unsubscribed(model.Subscription)                 {}
func (NopObserver) Denied(model.Subscription)                       {}
func (NopObserver) SubscribeFailed(model.Subscription, int, string) {}

// Observers fans each hook out to every member in order.
type Observers []Observer

func (o Observers) PreSubscribe(sub model.Subscription, created bool) {
	for _, ob := range o {
		ob.PreSubscribe(sub, created)
	}
}

func (o Observers) Verified(sub model.Subscription) {
	for _, ob := range o {
		ob.Verified(sub)
	}
}

func (o Observers) Unsubscribed(sub model.Subscription) {
	for _, ob := range o {
		ob.Unsubscribed(sub)
	}
}

func (o Observers) Denied(sub model.Subscription) {
	for _, ob := range o {
		ob.Denied(sub)
	}
}

func (o Observers) SubscribeFailed(sub model.Subscription, status int, reason string) {
	for _, ob := range o {
		ob.SubscribeFailed(sub, status, reason)
	}
}
