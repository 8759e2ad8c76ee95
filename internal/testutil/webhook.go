package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// Delivery is one request received by a WebhookRecorder.
type Delivery struct {
	Path    string
	Header  http.Header
	Body    []byte
	Arrived time.Time
}

// WebhookRecorder is an httptest server that records every request.
//
// Responses default to 200. Use RespondWith to make a path fail.
type WebhookRecorder struct {
	Server *httptest.Server

	mu         sync.Mutex
	deliveries []Delivery
	status     map[string]int
	now        func() time.Time
}

// NewWebhookRecorder starts a recorder that is closed with the test.
// now timestamps arrivals; nil uses time.Now.
func NewWebhookRecorder(t testing.TB, now func() time.Time) *WebhookRecorder {
	t.Helper()
	r := StartWebhookRecorder(now)
	t.Cleanup(r.Close)
	return r
}

// StartWebhookRecorder starts a recorder outside a test. Call Close when done.
func StartWebhookRecorder(now func() time.Time) *WebhookRecorder {
	if now == nil {
		now = time.Now
	}
	r := &WebhookRecorder{
		status: make(map[string]int),
		now:    now,
	}
	r.Server = httptest.NewServer(http.HandlerFunc(r.serve))
	return r
}

// Close shuts the server down.
func (r *WebhookRecorder) Close() {
	r.Server.Close()
}

func (r *WebhookRecorder) serve(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)

	r.mu.Lock()
	r.deliveries = append(r.deliveries, Delivery{
		Path:    req.URL.Path,
		Header:  req.Header.Clone(),
		Body:    body,
		Arrived: r.now(),
	})
	code, ok := r.status[req.URL.Path]
	r.mu.Unlock()

	if !ok {
		code = http.StatusOK
	}
	w.WriteHeader(code)
}

// URL returns the absolute URL for a path on the recorder.
func (r *WebhookRecorder) URL(path string) string {
	return r.Server.URL + path
}

// RespondWith makes requests to path answer with code.
func (r *WebhookRecorder) RespondWith(path string, code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status[path] = code
}

// Deliveries returns a copy of the recorded requests in arrival order.
func (r *WebhookRecorder) Deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Delivery, len(r.deliveries))
	copy(out, r.deliveries)
	return out
}

// Paths returns the request paths in arrival order.
func (r *WebhookRecorder) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.deliveries))
	for i, d := range r.deliveries {
		out[i] = d.Path
	}
	return out
}
