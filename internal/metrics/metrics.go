// Package metrics exposes subscription lifecycle counters to Prometheus.
//
// Recorder satisfies push.Observer and lease.Observer and provides a
// callback.ContentFunc, so one value can be registered with every
// component that reports events.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/pushsub/internal/model"
)

const namespace = "pushsub"

// Recorder counts lifecycle events.
//
// Thread-safety: Recorder is safe for concurrent use.
type Recorder struct {
	subscribe     *prometheus.CounterVec
	created       prometheus.Counter
	verifications *prometheus.CounterVec
	renewals      *prometheus.CounterVec
	content       *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates a Recorder with its collectors registered on a fresh
// registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		subscribe: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscribe_total",
			Help:      "Subscribe requests sent to hubs, by outcome.",
		}, []string{"outcome"}),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriptions_created_total",
			Help:      "Subscription records created.",
		}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Completed hub verifications, by mode.",
		}, []string{"mode"}),
		renewals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renewals_total",
			Help:      "Lease renewal attempts, by result.",
		}, []string{"result"}),
		content: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "content_requests_total",
			Help:      "Content distribution requests received, by result.",
		}, []string{"result"}),
		gatherer: reg,
	}
	reg.MustRegister(r.subscribe, r.created, r.verifications, r.renewals, r.content)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

// Gatherer returns the underlying registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.gatherer
}

func (r *Recorder) PreSubscribe(sub model.Subscription, created bool) {
	r.subscribe.WithLabelValues("requested").Inc()
	if created {
		r.created.Inc()
	}
}

func (r *Recorder) Verified(sub model.Subscription) {
	r.verifications.WithLabelValues(string(model.ModeSubscribe)).Inc()
}

func (r *Recorder) Unsubscribed(sub model.Subscription) {
	r.verifications.WithLabelValues(string(model.ModeUnsubscribe)).Inc()
}

func (r *Recorder) Denied(sub model.Subscription) {
	r.verifications.WithLabelValues(string(model.ModeDenied)).Inc()
}

func (r *Recorder) SubscribeFailed(sub model.Subscription, status int, reason string) {
	r.subscribe.WithLabelValues("failed").Inc()
}

// Renewed counts a renewal attempt.
func (r *Recorder) Renewed(sub model.Subscription, ok bool) {
	if ok {
		r.renewals.WithLabelValues("ok").Inc()
		return
	}
	r.renewals.WithLabelValues("failed").Inc()
}

// Content counts a content distribution request.
func (r *Recorder) Content(sub model.Subscription, accepted bool) {
	if accepted {
		r.content.WithLabelValues("accepted").Inc()
		return
	}
	r.content.WithLabelValues("rejected").Inc()
}
