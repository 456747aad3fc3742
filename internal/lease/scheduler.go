package lease

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/pushsub/internal/model"
	"github.com/roach88/pushsub/internal/push"
)

const (
	// DefaultWindow is how far ahead of expiry a lease is renewed.
	DefaultWindow = 24 * time.Hour

	// DefaultInterval is the time between passes in Run.
	DefaultInterval = time.Hour

	// DefaultConcurrency bounds renewals in flight during one pass.
	DefaultConcurrency = 4

	// DefaultPendingAfter is how long a subscription may wait for hub
	// verification before it is requested again.
	DefaultPendingAfter = time.Hour
)

// Source lists subscriptions that need renewal. *store.Store implements it.
type Source interface {
	FindExpiringBefore(ctx context.Context, t time.Time) ([]model.Subscription, error)
	FindPendingSince(ctx context.Context, t time.Time) ([]model.Subscription, error)
	FindByID(ctx context.Context, id string) (model.Subscription, error)
}

// Subscriber sends subscribe requests. *push.Manager implements it.
type Subscriber interface {
	Subscribe(ctx context.Context, req push.SubscribeRequest) (*push.Result, error)
}

// FeedLoader loads the feed a subscription delivers to.
type FeedLoader func(ctx context.Context, feedID string) (push.Feed, error)

// Observer is notified of every renewal attempt.
type Observer interface {
	Renewed(sub model.Subscription, ok bool)
}

// Report summarizes one pass.
type Report struct {
	// Due is the number of subscriptions selected for renewal.
	Due int `json:"due"`

	// Renewed counts renewals the hub accepted.
	Renewed int `json:"renewed"`

	// Failed counts renewals that errored or that the hub did not accept.
	Failed int `json:"failed"`

	// Deferred counts due subscriptions skipped because of backoff.
	Deferred int `json:"deferred"`
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithWindow sets how far ahead of expiry leases are renewed.
//
// Default: 24h (DefaultWindow)
func WithWindow(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithInterval sets the time between passes in Run.
//
// Default: 1h (DefaultInterval)
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithConcurrency bounds concurrent renewals.
//
// Default: 4 (DefaultConcurrency)
func WithConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithPendingAfter sets how long an unverified subscription waits before it
// is requested again.
//
// Default: 1h (DefaultPendingAfter)
func WithPendingAfter(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.pendingAfter = d
		}
	}
}

// WithLeaseSeconds sets the lease requested on renewal. Zero requests the
// subscription's previous lease length, or the manager default when that is
// unknown.
func WithLeaseSeconds(seconds int) Option {
	return func(s *Scheduler) { s.leaseSeconds = seconds }
}

// WithClock overrides the wall clock (tests).
func WithClock(c push.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithObserver registers a renewal observer.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observer = o }
}

// WithBackoff overrides the backoff bounds used after failed renewals.
//
// Default: 1m initial, 6h max.
func WithBackoff(initial, maxInterval time.Duration) Option {
	return func(s *Scheduler) {
		s.backoffInitial = initial
		s.backoffMax = maxInterval
	}
}

// Scheduler renews subscriptions before their leases expire.
//
// Thread-safety: RunOnce may be called concurrently with itself; backoff
// state is guarded by an internal mutex.
type Scheduler struct {
	source   Source
	manager  Subscriber
	loadFeed FeedLoader
	clock    push.Clock
	observer Observer

	window         time.Duration
	interval       time.Duration
	pendingAfter   time.Duration
	concurrency    int
	leaseSeconds   int
	backoffInitial time.Duration
	backoffMax     time.Duration

	mu      sync.Mutex
	retries map[string]*retry
}

// retry is the backoff state of one subscription.
type retry struct {
	backoff *backoff.ExponentialBackOff
	next    time.Time
}

// NewScheduler creates a Scheduler renewing subscriptions from source
// through manager.
func NewScheduler(source Source, manager Subscriber, loadFeed FeedLoader, opts ...Option) *Scheduler {
	s := &Scheduler{
		source:         source,
		manager:        manager,
		loadFeed:       loadFeed,
		clock:          push.SystemClock(),
		window:         DefaultWindow,
		interval:       DefaultInterval,
		pendingAfter:   DefaultPendingAfter,
		concurrency:    DefaultConcurrency,
		backoffInitial: time.Minute,
		backoffMax:     6 * time.Hour,
		retries:        make(map[string]*retry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run performs a pass immediately and then once per interval until ctx is
// cancelled. Pass failures are logged and do not stop the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("lease scheduler starting", "interval", s.interval, "window", s.window)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			slog.Error("renewal pass failed", "error", err)
		}

		select {
		case <-ctx.Done():
			slog.Info("lease scheduler stopping: context cancelled")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce renews every due subscription that is not held back by backoff.
// Individual renewal failures are counted in the report, not returned.
func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	now := s.clock.Now()

	due, err := s.due(ctx, now)
	if err != nil {
		return Report{}, err
	}

	var (
		report Report
		mu     sync.Mutex
	)
	report.Due = len(due)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, sub := range due {
		if s.deferred(sub.ID, now) {
			slog.Debug("renewal deferred by backoff", "id", sub.ID, "topic", sub.Topic)
			report.Deferred++
			continue
		}
		sub := sub
		g.Go(func() error {
			ok := s.renew(gctx, sub)
			mu.Lock()
			defer mu.Unlock()
			if ok {
				report.Renewed++
			} else {
				report.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	slog.Info("renewal pass complete",
		"due", report.Due,
		"renewed", report.Renewed,
		"failed", report.Failed,
		"deferred", report.Deferred,
	)
	return report, ctx.Err()
}

// due returns expiring, stale pending and backed-off subscriptions, in that
// order, without duplicates.
func (s *Scheduler) due(ctx context.Context, now time.Time) ([]model.Subscription, error) {
	expiring, err := s.source.FindExpiringBefore(ctx, now.Add(s.window))
	if err != nil {
		return nil, fmt.Errorf("find expiring: %w", err)
	}
	pending, err := s.source.FindPendingSince(ctx, now.Add(-s.pendingAfter))
	if err != nil {
		return nil, fmt.Errorf("find pending: %w", err)
	}

	seen := make(map[string]bool, len(expiring)+len(pending))
	due := make([]model.Subscription, 0, len(expiring)+len(pending))
	for _, sub := range append(expiring, pending...) {
		if seen[sub.ID] {
			continue
		}
		seen[sub.ID] = true
		due = append(due, sub)
	}

	// A failed attempt still moves the lease and updated_at forward, so a
	// backed-off record may match neither query. Track it by ID instead.
	for _, id := range s.retrying() {
		if seen[id] {
			continue
		}
		sub, err := s.source.FindByID(ctx, id)
		if errors.Is(err, model.ErrNotFound) {
			s.reset(id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("find retry %s: %w", id, err)
		}
		if !sub.Active {
			s.reset(id)
			continue
		}
		seen[id] = true
		due = append(due, sub)
	}
	return due, nil
}

// retrying returns the backed-off subscription IDs in a stable order.
func (s *Scheduler) retrying() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.retries))
	for id := range s.retries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Scheduler) renew(ctx context.Context, sub model.Subscription) bool {
	ok := s.attempt(ctx, sub)
	if ok {
		s.reset(sub.ID)
	} else {
		s.backOff(sub.ID)
	}
	if s.observer != nil {
		s.observer.Renewed(sub, ok)
	}
	return ok
}

func (s *Scheduler) attempt(ctx context.Context, sub model.Subscription) bool {
	feed, err := s.loadFeed(ctx, sub.FeedID)
	if err != nil {
		slog.Warn("renewal skipped: feed unavailable", "id", sub.ID, "feed", sub.FeedID, "error", err)
		return false
	}

	leaseSeconds := s.leaseSeconds
	if leaseSeconds == 0 {
		leaseSeconds = sub.LeaseSeconds
	}
	result, err := s.manager.Subscribe(ctx, push.SubscribeRequest{
		Topic:        sub.Topic,
		Hub:          sub.Hub,
		Feed:         feed,
		LeaseSeconds: leaseSeconds,
	})
	if err != nil {
		slog.Warn("renewal failed", "id", sub.ID, "topic", sub.Topic, "error", err)
		return false
	}
	if !result.Accepted {
		return false
	}
	slog.Debug("renewal accepted", "id", sub.ID, "topic", sub.Topic, "status", result.StatusCode)
	return true
}

func (s *Scheduler) deferred(id string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.retries[id]
	return ok && now.Before(r.next)
}

func (s *Scheduler) backOff(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.retries[id]
	if !ok {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = s.backoffInitial
		b.MaxInterval = s.backoffMax
		b.MaxElapsedTime = 0
		b.Clock = s.clock
		b.Reset()
		r = &retry{backoff: b}
		s.retries[id] = r
	}
	r.next = s.clock.Now().Add(r.backoff.NextBackOff())
}

func (s *Scheduler) reset(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.retries, id)
}

// NextAttempt returns when a backed-off subscription may be retried, and
// false when it is not backed off.
func (s *Scheduler) NextAttempt(id string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.retries[id]
	if !ok {
		return time.Time{}, false
	}
	return r.next, true
}
