package attestation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/i474232898/weather-markets/internal/logging"
)

const node1 = "0x0000000000000000000000000000000000000000000000000000000000000001"

func fastOptions(url string) Options {
	return Options{
		BaseURL:        url,
		APIKey:         "secret",
		MaxAttempts:    3,
		PollInterval:   time.Millisecond,
		PollTimeout:    200 * time.Millisecond,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func TestAttestSubmitRetriesThenFinalizes(t *testing.T) {
	var submits, polls int32
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/attestations":
			keys = append(keys, r.Header.Get("Idempotency-Key"))
			if atomic.AddInt32(&submits, 1) < 2 {
				http.Error(w, "busy", http.StatusServiceUnavailable)
				return
			}
			var req submitRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Timestamp != 1700000000 {
				http.Error(w, "bad body", http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(`{"id":"req-1"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/attestations/req-1":
			if atomic.AddInt32(&polls, 1) < 3 {
				_, _ = w.Write([]byte(`{"status":"pending"}`))
				return
			}
			_, _ = w.Write([]byte(`{"status":"finalized","proof":["` + node1 + `"],"attestationData":"0xdeadbeef"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.Client(), fastOptions(srv.URL+"/"), logging.Discard())
	proof, err := c.Attest(context.Background(), 40.7, -74.0, 1700000000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proof.RequestID != "req-1" || len(proof.Nodes) != 1 || proof.Nodes[0][31] != 1 {
		t.Fatalf("unexpected proof %+v", proof)
	}
	if len(proof.Data) != 4 || proof.Data[0] != 0xde {
		t.Fatalf("unexpected data %x", proof.Data)
	}
	if len(keys) != 2 || keys[0] == "" || keys[0] != keys[1] {
		t.Fatalf("expected a stable idempotency key across retries, got %v", keys)
	}
}

func TestSubmitGivesUpAfterMaxAttempts(t *testing.T) {
	var submits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&submits, 1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.Client(), fastOptions(srv.URL), logging.Discard())
	if _, err := c.Submit(context.Background(), 1, 2, 3); err == nil {
		t.Fatal("expected error")
	}
	if atomic.LoadInt32(&submits) != 3 {
		t.Fatalf("expected 3 attempts, got %d", submits)
	}
}

func TestAwaitTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"pending"}`))
	}))
	defer srv.Close()

	opts := fastOptions(srv.URL)
	opts.PollTimeout = 20 * time.Millisecond
	c := New(srv.Client(), opts, logging.Discard())

	_, err := c.Await(context.Background(), "req-9")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestAwaitRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"failed","error":"no station data"}`))
	}))
	defer srv.Close()

	c := New(srv.Client(), fastOptions(srv.URL), logging.Discard())
	_, err := c.Await(context.Background(), "req-2")
	if !errors.Is(err, ErrRejected) || !strings.Contains(err.Error(), "no station data") {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestAwaitRejectsNonHexPayload(t *testing.T) {
	cases := []string{
		`{"status":"finalized","proof":["` + node1 + `"],"attestationData":"mock-data"}`,
		`{"status":"finalized","proof":["0x1234"],"attestationData":"0x00"}`,
		`{"status":"finalized","proof":["not-hex"],"attestationData":"0x00"}`,
	}
	for _, body := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		c := New(srv.Client(), fastOptions(srv.URL), logging.Discard())
		_, err := c.Await(context.Background(), "req-3")
		srv.Close()
		if !errors.Is(err, ErrInvalidPayload) {
			t.Fatalf("body %s: expected ErrInvalidPayload, got %v", body, err)
		}
	}
}
