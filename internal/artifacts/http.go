package artifacts

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/serverforge/serverforge/infrastructure/cache"
	"github.com/serverforge/serverforge/infrastructure/errors"
	"github.com/serverforge/serverforge/infrastructure/metrics"
	"github.com/serverforge/serverforge/infrastructure/resilience"
)

// versionCacheTTL bounds how long a provider's version list is trusted
// before the Artifact Pipeline re-queries the upstream API.
const versionCacheTTL = 10 * time.Minute

// client is the shared HTTP+cache+resilience layer every Provider uses to
// query its upstream metadata API. Each provider gets its own circuit
// breaker so a misbehaving API (e.g. Forge's promotions endpoint being
// down) can't trip requests to an unrelated one.
type client struct {
	http    *http.Client
	cache   *cache.Cache
	metrics *metrics.Metrics
}

func newClient(c *cache.Cache, m *metrics.Metrics) *client {
	return &client{
		http:    &http.Client{Timeout: 30 * time.Second},
		cache:   c,
		metrics: m,
	}
}

// newBreaker builds a per-provider circuit breaker: trips after 5
// consecutive failures, half-opens after 30s (spec's "ensure artifacts"
// path should fail fast on a known-down provider rather than hang the
// Supervisor's Installing state for the full backoff budget).
func newBreaker(name string) *resilience.CircuitBreaker {
	return resilience.New(resilience.DefaultConfig())
}

// getJSON fetches url, decoding the body into out. Results are memoized in
// the shared cache under cacheKey for ttl; concurrent/duplicate queries for
// the same key are deduplicated by the cache's own singleflight layer
// (infrastructure/cache.FetchWithCache). breaker and provider are the
// calling provider's own circuit breaker and name, used for retry/backoff
// and metrics labeling.
func (c *client) getJSON(ctx context.Context, breaker *resilience.CircuitBreaker, provider, cacheKey, url string, out interface{}) error {
	raw, err := c.cache.FetchWithCache(ctx, cacheKey, versionCacheTTL, func(ctx context.Context) (json.RawMessage, error) {
		body, err := c.fetchWithRetry(ctx, breaker, provider, url)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(body), nil
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrap(errors.ErrCodeNetwork, "decode provider response", err).WithDetails("provider", provider)
	}
	return nil
}

// getText is getJSON's counterpart for providers (NeoForge's Maven
// metadata.xml) whose response isn't JSON.
func (c *client) getText(ctx context.Context, breaker *resilience.CircuitBreaker, provider, url string) (string, error) {
	body, err := c.fetchWithRetry(ctx, breaker, provider, url)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// fetchWithRetry performs one HTTP GET, retried with exponential backoff
// (infrastructure/resilience.Retry, backed by cenkalti/backoff/v4) and
// gated by the provider's circuit breaker (infrastructure/resilience.
// CircuitBreaker, backed by sony/gobreaker/v2). A non-2xx status or
// transport error counts as a breaker failure; a 404 is permanent and
// skips the remaining retry attempts.
func (c *client) fetchWithRetry(ctx context.Context, breaker *resilience.CircuitBreaker, provider, url string) ([]byte, error) {
	var result []byte
	err := breaker.Execute(ctx, func() error {
		return resilience.Retry(ctx, resilience.DefaultRetryConfig(), func() error {
			b, err := c.get(ctx, url)
			if err != nil {
				if err == errNotFoundUpstream {
					return backoff.Permanent(err)
				}
				return err
			}
			result = b
			return nil
		})
	})
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordDownloadFailure(provider)
		}
		return nil, errors.Network(fmt.Sprintf("%s version query", provider), err)
	}
	return result, nil
}

func (c *client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, errNotFoundUpstream
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("upstream returned %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// errNotFoundUpstream distinguishes "the provider has no versions for this
// Minecraft release" (a normal, non-retryable outcome per the Rust
// original's NOT_FOUND handling in get_fabric_versions/get_quilt_versions)
// from a transient network failure.
var errNotFoundUpstream = fmt.Errorf("artifacts: upstream 404")

// isUpstreamNotFound reports whether err is (or wraps) a 404 from the
// upstream API, in which case callers should return an empty version list
// rather than propagating a failure.
func isUpstreamNotFound(err error) bool {
	return stderrors.Is(err, errNotFoundUpstream)
}
