package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/serverforge/serverforge/infrastructure/cache"
	"github.com/serverforge/serverforge/infrastructure/errors"
	"github.com/serverforge/serverforge/infrastructure/resilience"
	"github.com/serverforge/serverforge/internal/downloader"
)

// marketplaceCacheTTL bounds how long a project's version list is trusted
// before CheckUpdates re-queries the marketplace. It is longer than the
// Artifact Pipeline's 10-minute loader-version TTL.
const marketplaceCacheTTL = time.Hour

// marketplaceClient is the shared HTTP+cache+resilience layer every
// MarketplaceProvider uses, mirroring internal/artifacts.client's shape
// (infrastructure/resilience's circuit breaker + retry) since marketplace
// APIs are exactly the same kind of "external metadata service" concern.
type marketplaceClient struct {
	http    *http.Client
	cache   *cache.Cache
	dl      *downloader.Downloader
	userAgent string
}

func newMarketplaceClient(c *cache.Cache, dl *downloader.Downloader) *marketplaceClient {
	return &marketplaceClient{
		http:      &http.Client{Timeout: 30 * time.Second},
		cache:     c,
		dl:        dl,
		userAgent: "serverforge/1.0",
	}
}

func newMarketplaceBreaker(name string) *resilience.CircuitBreaker {
	return resilience.New(resilience.DefaultConfig())
}

func (c *marketplaceClient) getJSON(ctx context.Context, breaker *resilience.CircuitBreaker, provider, cacheKey, url string, headers map[string]string, out interface{}) error {
	raw, err := c.cache.FetchWithCache(ctx, cacheKey, marketplaceCacheTTL, func(ctx context.Context) (json.RawMessage, error) {
		body, err := c.fetchWithRetry(ctx, breaker, provider, url, headers)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(body), nil
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrap(errors.ErrCodeNetwork, "decode marketplace response", err).WithDetails("provider", provider)
	}
	return nil
}

func (c *marketplaceClient) fetchWithRetry(ctx context.Context, breaker *resilience.CircuitBreaker, provider, url string, headers map[string]string) ([]byte, error) {
	var result []byte
	err := breaker.Execute(ctx, func() error {
		return resilience.Retry(ctx, resilience.DefaultRetryConfig(), func() error {
			b, err := c.get(ctx, url, headers)
			if err != nil {
				return err
			}
			result = b
			return nil
		})
	})
	return result, err
}

func (c *marketplaceClient) get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("marketplace returned %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
