package push

import (
	"net/http"
	"time"

	"github.com/roach88/pushsub/internal/model"
)

// DefaultHTTPTimeout bounds a single hub request when no client is supplied.
const DefaultHTTPTimeout = 30 * time.Second

type options struct {
	resolver     HubResolver
	client       Doer
	callback     CallbackFunc
	clock        Clock
	observer     Observer
	leaseSeconds int
}

// Option configures a Manager or a Verifier. Options that do not apply to
// the component being built are ignored.
type Option func(*options)

// WithResolver sets the hub resolver used when a subscribe request carries
// no hub.
func WithResolver(r HubResolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithHTTPClient sets the client used for hub requests.
func WithHTTPClient(c Doer) Option {
	return func(o *options) { o.client = c }
}

// WithCallback sets the callback URL derivation.
func WithCallback(f CallbackFunc) Option {
	return func(o *options) { o.callback = f }
}

// WithClock overrides the wall clock (tests).
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithObservers registers lifecycle observers.
func WithObservers(obs ...Observer) Option {
	return func(o *options) { o.observer = Observers(obs) }
}

// WithLeaseSeconds sets the lease requested when a subscribe request does
// not specify one.
//
// Default: 2592000 (model.DefaultLeaseSeconds)
func WithLeaseSeconds(seconds int) Option {
	return func(o *options) {
		if seconds > 0 {
			o.leaseSeconds = seconds
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		client:       &http.Client{Timeout: DefaultHTTPTimeout},
		callback:     CallbackTemplate(""),
		clock:        SystemClock(),
		observer:     NopObserver{},
		leaseSeconds: model.DefaultLeaseSeconds,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
