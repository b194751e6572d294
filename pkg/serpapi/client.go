// Package serpapi searches business listings through the SerpAPI
// google_maps engine.
package serpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/resilience"
)

const (
	defaultBaseURL = "https://serpapi.com"
	// PageSize is the number of results google_maps returns per page.
	PageSize       = 20
	defaultTimeout = 20 * time.Second
)

// ErrMissingAPIKey is returned when neither the request nor the client
// carries an API key.
var ErrMissingAPIKey = eris.New("serpapi: missing api key")

// Client searches listings.
type Client interface {
	Search(ctx context.Context, req SearchRequest) ([]Result, error)
}

// SearchRequest is one search phrase. APIKey overrides the client key.
type SearchRequest struct {
	Query  string
	Limit  int
	APIKey string
}

// Result is one listing as returned by the search engine.
type Result struct {
	Name    string  `json:"title"`
	Phone   string  `json:"phone"`
	Address string  `json:"address"`
	Website string  `json:"website"`
	PlaceID string  `json:"place_id"`
	Type    string  `json:"type"`
	Rating  float64 `json:"rating"`
	Reviews int     `json:"reviews"`
	// Raw is the untouched result object.
	Raw json.RawMessage `json:"-"`
}

type searchResponse struct {
	LocalResults []json.RawMessage `json:"local_results"`
	Error        string            `json:"error"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout bounds a whole Search call, all pages included.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit caps page requests per second.
func WithRateLimit(perSecond float64) Option {
	return func(c *httpClient) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithRetry sets the retry policy for transient page failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates a SerpAPI client. apiKey may be empty when every
// request carries its own.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		timeout: defaultTimeout,
		http:    &http.Client{},
		limiter: rate.NewLimiter(rate.Inf, 1),
		retry:   resilience.WithRetries(2),
	}
	for _, o := range opts {
		o(c)
	}
	c.retry.OnRetry = resilience.RetryLogger("serpapi", "search")
	return c
}

// Search pages through results until limit is reached or the engine runs
// dry. The configured timeout bounds the whole call.
func (c *httpClient) Search(ctx context.Context, req SearchRequest) ([]Result, error) {
	key := req.APIKey
	if key == "" {
		key = c.apiKey
	}
	if key == "" {
		return nil, ErrMissingAPIKey
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, eris.New("serpapi: empty query")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = PageSize
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out []Result
	for start := 0; len(out) < limit; start += PageSize {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "serpapi: rate limit wait")
		}
		page, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]Result, error) {
			return c.fetchPage(ctx, req.Query, key, start)
		})
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < PageSize {
			break
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}

	zap.L().Debug("serpapi: search complete",
		zap.String("query", req.Query),
		zap.Int("results", len(out)),
	)
	return out, nil
}

func (c *httpClient) fetchPage(ctx context.Context, query, key string, start int) ([]Result, error) {
	q := url.Values{}
	q.Set("engine", "google_maps")
	q.Set("type", "search")
	q.Set("q", query)
	q.Set("hl", "pt-br")
	q.Set("gl", "br")
	q.Set("start", strconv.Itoa(start))
	q.Set("api_key", key)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search.json?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "serpapi: create request")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "serpapi: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "serpapi: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.ClassifyResponse(
			eris.Errorf("serpapi: unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200)),
			resp,
		)
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, eris.Wrap(err, "serpapi: unmarshal response")
	}
	if sr.Error != "" {
		if strings.Contains(strings.ToLower(sr.Error), "hasn't returned any results") {
			return nil, nil
		}
		return nil, eris.Errorf("serpapi: %s", sr.Error)
	}

	results := make([]Result, 0, len(sr.LocalResults))
	for _, raw := range sr.LocalResults {
		var r Result
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, eris.Wrap(err, "serpapi: unmarshal result")
		}
		r.Raw = raw
		results = append(results, r)
	}
	return results, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
