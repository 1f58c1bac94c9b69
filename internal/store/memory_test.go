package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreGetSet(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "missing"); ok || err != nil {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	if err := s.Set(ctx, "a", "1", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, ok, err := s.Get(ctx, "a")
	if err != nil || !ok || v != "1" {
		t.Fatalf("expected hit 1, got %q ok=%v err=%v", v, ok, err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore(0)
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	_ = s.Set(ctx, "k", "v", time.Minute)

	now = now.Add(59 * time.Second)
	if _, ok, _ := s.Get(ctx, "k"); !ok {
		t.Fatal("expected key to be live before ttl")
	}

	now = now.Add(time.Second)
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatal("expected key to expire at ttl")
	}
	if s.Len() != 0 {
		t.Fatalf("expected expired key to be removed, len=%d", s.Len())
	}
}

func TestMemoryStoreBound(t *testing.T) {
	s := NewMemoryStore(2)
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	_ = s.Set(ctx, "soon", "1", time.Second)
	_ = s.Set(ctx, "later", "2", time.Hour)
	_ = s.Set(ctx, "forever", "3", 0)

	if s.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", s.Len())
	}
	if _, ok, _ := s.Get(ctx, "soon"); ok {
		t.Fatal("expected the entry closest to expiry to be evicted")
	}
	if _, ok, _ := s.Get(ctx, "forever"); !ok {
		t.Fatal("expected non-expiring entry to survive")
	}
}

func TestJSONHelpers(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()

	var out struct{ N int }
	if err := GetJSON(ctx, s, "k", &out); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := SetJSON(ctx, s, "k", struct{ N int }{N: 7}, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := GetJSON(ctx, s, "k", &out); err != nil || out.N != 7 {
		t.Fatalf("expected N=7, got %+v err=%v", out, err)
	}

	_ = s.Set(ctx, "bad", "{", 0)
	if err := GetJSON(ctx, s, "bad", &out); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected decode error, got %v", err)
	}
}
