// Package callback serves the subscriber's callback URL.
//
// Hubs reach the subscriber here twice: with GET requests that verify a
// subscribe, unsubscribe or denial, and with POST requests that distribute
// content. Verification is delegated to push.Verifier; content is
// acknowledged for live subscriptions and otherwise discarded.
package callback

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/roach88/pushsub/internal/model"
	"github.com/roach88/pushsub/internal/push"
)

// maxContentBytes bounds how much of a distributed payload is drained.
const maxContentBytes = 10 << 20

// Verifier checks hub verification requests. *push.Verifier implements it.
type Verifier interface {
	Verify(ctx context.Context, cb push.Callback) (string, error)
}

// Lookup finds subscriptions by ID. *store.Store implements it.
type Lookup interface {
	FindByID(ctx context.Context, id string) (model.Subscription, error)
}

// ContentFunc is called for every content request with whether it was
// accepted.
type ContentFunc func(sub model.Subscription, accepted bool)

// Option configures a Handler.
type Option func(*Handler)

// WithClock overrides the wall clock (tests).
func WithClock(c push.Clock) Option {
	return func(h *Handler) { h.clock = c }
}

// WithContentFunc registers a content hook.
func WithContentFunc(f ContentFunc) Option {
	return func(h *Handler) { h.onContent = f }
}

// Handler adapts hub HTTP requests to the verifier.
type Handler struct {
	verifier  Verifier
	subs      Lookup
	clock     push.Clock
	onContent ContentFunc
}

// NewHandler creates a Handler.
func NewHandler(verifier Verifier, subs Lookup, opts ...Option) *Handler {
	h := &Handler{
		verifier:  verifier,
		subs:      subs,
		clock:     push.SystemClock(),
		onContent: func(model.Subscription, bool) {},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes mounts the callback routes on router. The subscription ID
// is the last path segment, matching push.CallbackTemplate.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/{id}", h.HandleVerify).Methods(http.MethodGet)
	router.HandleFunc("/{id}", h.HandleContent).Methods(http.MethodPost)
}

// HandleVerify answers a hub verification request. The challenge is echoed
// as text/plain on success; denials are acknowledged with an empty body.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	q := r.URL.Query()

	mode := model.Mode(q.Get("hub.mode"))
	challenge := q.Get("hub.challenge")
	if (mode == model.ModeSubscribe || mode == model.ModeUnsubscribe) && challenge == "" {
		http.Error(w, "missing hub.challenge", http.StatusBadRequest)
		return
	}

	var leaseSeconds int
	if raw := q.Get("hub.lease_seconds"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid hub.lease_seconds", http.StatusBadRequest)
			return
		}
		leaseSeconds = n
	}

	echo, err := h.verifier.Verify(r.Context(), push.Callback{
		SubscriptionID: id,
		Mode:           mode,
		Topic:          q.Get("hub.topic"),
		Challenge:      challenge,
		Token:          q.Get("hub.verify_token"),
		LeaseSeconds:   leaseSeconds,
		Reason:         q.Get("hub.reason"),
	})
	switch {
	case push.IsVerificationError(err):
		http.Error(w, "not found", http.StatusNotFound)
		return
	case err != nil:
		slog.Error("callback verification failed", "id", id, "mode", mode, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, echo)
}

// HandleContent acknowledges a content distribution for a live
// subscription. The payload is drained and dropped.
func (h *Handler) HandleContent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, maxContentBytes))

	sub, err := h.subs.FindByID(r.Context(), id)
	if errors.Is(err, model.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("content lookup failed", "id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if !sub.IsActive(h.clock.Now()) {
		slog.Debug("content for inactive subscription", "id", id, "state", sub.State(h.clock.Now()))
		h.onContent(sub, false)
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	slog.Debug("content received", "id", id, "topic", sub.Topic, "content_type", r.Header.Get("Content-Type"))
	h.onContent(sub, true)
	w.WriteHeader(http.StatusAccepted)
}
