package port_test

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// rawServer answers every request with 200 and the given body.
func rawServer(t *testing.T, body string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

// unauthorizedServer answers every request, the token endpoint included,
// with 401. It returns the URL and a counter of access token requests.
func unauthorizedServer(t *testing.T) (string, *atomic.Int32) {
	t.Helper()
	var tokenRequests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/v1/auth/access_token" {
			tokenRequests.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"ok":false,"error":"unauthorized"}`))
	}))
	t.Cleanup(srv.Close)
	return srv.URL, &tokenRequests
}
