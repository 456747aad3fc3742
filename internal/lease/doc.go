// Package lease keeps subscriptions alive by re-subscribing before their
// leases run out.
//
// Each pass selects active subscriptions whose lease ends inside the renew
// window, plus active unverified ones that have been pending too long, and
// renews them through the subscription manager with bounded parallelism.
// A subscription whose renewal fails is held back by its own exponential
// backoff; a successful renewal resets it.
package lease
