package rates

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func rateServer(rate string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"rate": ` + rate + `}`))
	}))
}

func TestHTTPProvider_FetchesAndCaches(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"rate": 2500.5}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, time.Minute)

	for i := 0; i < 3; i++ {
		rate, err := p.Rate(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rate != 2500.5 {
			t.Errorf("got %v, want 2500.5", rate)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 upstream call within TTL, got %d", got)
	}
}

func TestHTTPProvider_ServesStaleOnUpstreamFailure(t *testing.T) {
	srv := rateServer("100")
	p := NewHTTPProvider(srv.URL, time.Nanosecond) // immediately stale

	if _, err := p.Rate(context.Background()); err != nil {
		t.Fatalf("warm-up fetch failed: %v", err)
	}
	srv.Close()

	rate, err := p.Rate(context.Background())
	if err != nil {
		t.Fatalf("stale cache must be served, got error: %v", err)
	}
	if rate != 100 {
		t.Errorf("got %v, want stale 100", rate)
	}
}

func TestHTTPProvider_ColdCacheError(t *testing.T) {
	p := NewHTTPProvider("http://127.0.0.1:1", time.Minute)
	if _, err := p.Rate(context.Background()); !errors.Is(err, ErrNoRate) {
		t.Errorf("expected ErrNoRate, got %v", err)
	}
}

func TestHTTPProvider_RejectsBadRates(t *testing.T) {
	for _, body := range []string{`{"rate": 0}`, `{"rate": -3}`, `not json`} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		p := NewHTTPProvider(srv.URL, time.Minute)
		if _, err := p.Rate(context.Background()); err == nil {
			t.Errorf("body %q: expected error", body)
		}
		srv.Close()
	}
}

func TestHTTPProvider_UpstreamErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, time.Minute)
	if _, err := p.Rate(context.Background()); err == nil {
		t.Error("expected error for 502 upstream")
	}
}
