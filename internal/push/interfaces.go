package push

import (
	"context"
	"net/http"
	"time"

	"github.com/roach88/pushsub/internal/model"
)

// Store is the durable map of (hub, topic) to subscription records.
//
// GetOrCreate must be atomic on the (hub, topic) key: concurrent calls for
// the same pair return the same record and at most one reports created.
// Lookups that match nothing return model.ErrNotFound.
type Store interface {
	GetOrCreate(ctx context.Context, hub, topic, feedID string) (sub model.Subscription, created bool, err error)
	Save(ctx context.Context, sub model.Subscription) error
	FindByHubTopic(ctx context.Context, hub, topic string) (model.Subscription, error)
	FindByID(ctx context.Context, id string) (model.Subscription, error)
	FindExpiringBefore(ctx context.Context, t time.Time) ([]model.Subscription, error)
}

// Feed is the feed a subscription delivers to.
type Feed interface {
	FeedID() string

	// SetupPush tells the feed that push delivery has been requested.
	SetupPush(ctx context.Context, sub model.Subscription) error
}

// HubResolver finds the hub advertised by a topic. It returns "" and a nil
// error when the topic advertises no hub.
type HubResolver interface {
	ResolveHub(ctx context.Context, topic string) (string, error)
}

// Doer sends HTTP requests. *http.Client implements it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }
