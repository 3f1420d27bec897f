package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

type httpObservation struct {
	method string
	route  string
	status int
}

type mockHTTPObserver struct {
	mu   sync.Mutex
	seen []httpObservation
}

func (m *mockHTTPObserver) ObserveHTTPRequest(method, route string, status int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, httpObservation{method, route, status})
}

func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	obs := &mockHTTPObserver{}
	r := chi.NewRouter()
	r.Use(NewMetricsMiddleware(obs))
	r.Put("/api/update/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/api/update/123", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/no/such/route", nil))

	if len(obs.seen) != 2 {
		t.Fatalf("observations = %d, want 2", len(obs.seen))
	}
	if got := obs.seen[0]; got != (httpObservation{http.MethodPut, "/api/update/{id}", http.StatusNotFound}) {
		t.Errorf("first observation = %+v", got)
	}
	if got := obs.seen[1]; got.route != unmatchedRoute || got.status != http.StatusNotFound {
		t.Errorf("unmatched observation = %+v, want route %q and 404", got, unmatchedRoute)
	}
}
