package broker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestOriginProbe_IsLive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":0,"streams":[{"name":"cam1"},{"name":"other"}]}`))
	}))
	defer srv.Close()

	p := NewOriginProbe(srv.URL, testLogger())

	if !p.IsLive(context.Background(), "cam1") {
		t.Error("listed stream should read as live")
	}
	if p.IsLive(context.Background(), "missing") {
		t.Error("unlisted stream should read as not live")
	}
}

func TestOriginProbe_IsLive_tolerates_failures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}},
		{"empty list", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"streams":[]}`))
		}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			srv := httptest.NewServer(c.handler)
			defer srv.Close()
			p := NewOriginProbe(srv.URL, testLogger())
			if p.IsLive(context.Background(), "cam1") {
				t.Error("expected not live")
			}
		})
	}
}

func TestOriginProbe_IsLive_unreachable_origin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	p := NewOriginProbe(srv.URL, testLogger())
	if p.IsLive(context.Background(), "cam1") {
		t.Error("unreachable origin should read as not live")
	}
}

func TestOriginProbe_WaitUntilLive_succeeds_after_polling(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			_, _ = w.Write([]byte(`{"streams":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"streams":[{"name":"cam1"}]}`))
	}))
	defer srv.Close()

	p := NewOriginProbe(srv.URL, testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.WaitUntilLive(ctx, "cam1"); err != nil {
		t.Fatalf("WaitUntilLive: %v", err)
	}
	if n := calls.Load(); n < 3 {
		t.Errorf("expected at least 3 polls, got %d", n)
	}
}

func TestOriginProbe_WaitUntilLive_times_out(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"streams":[]}`))
	}))
	defer srv.Close()

	p := NewOriginProbe(srv.URL, testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := p.WaitUntilLive(ctx, "cam1")
	if !errors.Is(err, ErrProbeTimeout) {
		t.Errorf("expected ErrProbeTimeout, got %v", err)
	}
}
