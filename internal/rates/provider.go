// Package rates supplies the ledger-currency to local-currency display
// rate. A stale or missing rate must never block reconciliation or the
// donation flow, so callers treat errors as "omit the conversion".
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrNoRate is returned when no rate has ever been fetched successfully.
var ErrNoRate = errors.New("rates: no rate available")

// Provider supplies the current display-conversion rate.
type Provider interface {
	Rate(ctx context.Context) (float64, error)
}

// HTTPProvider pulls the rate from a JSON endpoint of the shape
// {"rate": 123.45} and caches the last good value. Concurrent cache-miss
// fetches are collapsed into one upstream request.
type HTTPProvider struct {
	url        string
	ttl        time.Duration
	httpClient *http.Client
	group      singleflight.Group

	mu        sync.RWMutex
	rate      float64
	fetchedAt time.Time
}

// NewHTTPProvider creates a Provider against url, caching results for ttl.
func NewHTTPProvider(url string, ttl time.Duration) *HTTPProvider {
	return &HTTPProvider{
		url:        url,
		ttl:        ttl,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Rate returns a fresh rate when the cache is valid, refreshes it when
// expired, and falls back to the stale cached value (with a warning) when
// the upstream is unreachable. Only a cold cache plus a dead upstream is
// an error.
func (p *HTTPProvider) Rate(ctx context.Context) (float64, error) {
	p.mu.RLock()
	rate, fetchedAt := p.rate, p.fetchedAt
	p.mu.RUnlock()

	if !fetchedAt.IsZero() && time.Since(fetchedAt) < p.ttl {
		return rate, nil
	}

	fresh, err, _ := p.group.Do("rate", func() (any, error) {
		return p.fetch(ctx)
	})
	if err == nil {
		return fresh.(float64), nil
	}

	if !fetchedAt.IsZero() {
		slog.Warn("rates: serving stale rate", "age", time.Since(fetchedAt).String(), "error", err)
		return rate, nil
	}
	return 0, fmt.Errorf("%w: %v", ErrNoRate, err)
}

func (p *HTTPProvider) fetch(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("rates: upstream status %d", resp.StatusCode)
	}

	var body struct {
		Rate float64 `json:"rate"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, err
	}
	if body.Rate <= 0 {
		return 0, fmt.Errorf("rates: non-positive rate %v", body.Rate)
	}

	p.mu.Lock()
	p.rate = body.Rate
	p.fetchedAt = time.Now()
	p.mu.Unlock()
	return body.Rate, nil
}
