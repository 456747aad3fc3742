package testutil

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
)

// FakeHub is an httptest hub that records subscription requests and answers
// with a configurable status.
type FakeHub struct {
	*httptest.Server

	mu       sync.Mutex
	status   int
	body     string
	requests []url.Values
}

// NewFakeHub starts a hub answering every request with status. The server
// is closed when the test ends.
func NewFakeHub(t testing.TB, status int) *FakeHub {
	t.Helper()
	h := &FakeHub{status: status}
	h.Server = httptest.NewServer(http.HandlerFunc(h.serve))
	t.Cleanup(h.Server.Close)
	return h
}

func (h *FakeHub) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "only POST is supported", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	h.requests = append(h.requests, r.PostForm)
	status, body := h.status, h.body
	h.mu.Unlock()

	w.WriteHeader(status)
	if body != "" {
		_, _ = w.Write([]byte(body))
	}
}

// Respond changes the status and body returned for later requests.
func (h *FakeHub) Respond(status int, body string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = status
	h.body = body
}

// Requests returns the forms received so far.
func (h *FakeHub) Requests() []url.Values {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]url.Values(nil), h.requests...)
}

// LastRequest returns the most recent form, or nil.
func (h *FakeHub) LastRequest() url.Values {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.requests) == 0 {
		return nil
	}
	return h.requests[len(h.requests)-1]
}
