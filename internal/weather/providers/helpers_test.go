package providers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// fastConfig removes pacing and shrinks backoff so tests run quickly.
func fastConfig(cfg HTTPClientConfig) HTTPClientConfig {
	cfg.Limiter = nil
	cfg.Backoff.InitialInterval = time.Millisecond
	cfg.Backoff.MaxInterval = 2 * time.Millisecond
	return cfg
}

func jsonHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/geo+json")
		_, _ = w.Write([]byte(body))
	}
}

func newServer(t *testing.T, mux *http.ServeMux) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}
