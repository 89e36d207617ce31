package coingecko

// Client for the CoinGecko simple price API
// Every request: retry loop -> 429 cooldown -> rate limiter -> circuit breaker -> HTTP
// A 429 Retry-After pauses every caller of the client until it has passed
// One batched /simple/price call covers all requested ids

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"ticker-bot/internal/features/prices"
	logging "ticker-bot/internal/infra/log"
	"ticker-bot/internal/infra/retry"

	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	PublicAPI = "https://api.coingecko.com/api/v3"
	ProAPI    = "https://pro-api.coingecko.com/api/v3"

	SourceName = "coingecko"
)

type Options struct {
	BaseURL        string
	APIKey         string
	APITier        string // "demo" or "pro"
	VsCurrency     string
	RequestsPerMin int
	Burst          int
	Timeout        time.Duration
	Retry          retry.Options
	// Symbol maps a pricing id to its display symbol
	Symbol func(id string) string
}

type Client struct {
	baseURL         string
	apiKey          string
	apiKeyHeader    string
	vsCurrency      string
	httpClient      *http.Client
	rateLimiter     *rate.Limiter
	circuitBreaker  *gobreaker.CircuitBreaker
	retry           retry.Options
	maxResponseSize int64
	symbol          func(string) string
	now             func() time.Time

	cooldownMu    sync.Mutex
	cooldownUntil time.Time
}

func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	headerName := "x-cg-demo-api-key"
	if opts.APITier == "pro" {
		headerName = "x-cg-pro-api-key"
		if baseURL == "" {
			baseURL = ProAPI
		}
	}
	if baseURL == "" {
		baseURL = PublicAPI
	}

	vs := strings.ToLower(opts.VsCurrency)
	if vs == "" {
		vs = "usd"
	}

	perMin := opts.RequestsPerMin
	if perMin <= 0 {
		perMin = 10
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	symbol := opts.Symbol
	if symbol == nil {
		symbol = strings.ToUpper
	}

	retryOpts := opts.Retry
	if retryOpts == (retry.Options{}) {
		retryOpts = retry.DefaultOptions
	}

	circuitBreaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "CoinGeckoAPI",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.LogWarn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Client{
		baseURL:         baseURL,
		apiKey:          opts.APIKey,
		apiKeyHeader:    headerName,
		vsCurrency:      vs,
		rateLimiter:     rate.NewLimiter(rate.Limit(float64(perMin)/60.0), burst),
		circuitBreaker:  circuitBreaker,
		retry:           retryOpts,
		maxResponseSize: 2 * 1024 * 1024,
		symbol:          symbol,
		now:             time.Now,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
		},
	}
}

func (c *Client) Name() string { return SourceName }

// Supports claims every id; on-chain sources are consulted before this one.
func (c *Client) Supports(id string) bool { return id != "" }

// FetchQuotes prices all ids with a single request.
func (c *Client) FetchQuotes(ctx context.Context, ids []string) (map[string]prices.Quote, error) {
	ids = uniqueSorted(ids)
	if len(ids) == 0 {
		return map[string]prices.Quote{}, nil
	}

	params := url.Values{}
	params.Set("ids", strings.Join(ids, ","))
	params.Set("vs_currencies", c.vsCurrency)
	params.Set("include_24hr_change", "true")

	body, err := c.MakeRequest(ctx, "/simple/price?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to get simple price: %w", err)
	}

	quotes, err := c.parseSimplePrice(body)
	if err != nil {
		return nil, err
	}

	if missing := prices.MissingIDs(ids, quotes); len(missing) > 0 {
		logging.LogWarn("CoinGecko did not return some ids", zap.Strings("ids", missing))
		return quotes, &prices.NotFoundError{IDs: missing}
	}
	return quotes, nil
}

// parseSimplePrice reads {"<id>": {"usd": 1.23, "usd_24h_change": -0.5}}
func (c *Client) parseSimplePrice(body []byte) (map[string]prices.Quote, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("failed to parse simple price response: invalid json")
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, fmt.Errorf("failed to parse simple price response: expected object")
	}

	fetchedAt := c.now()
	quotes := make(map[string]prices.Quote)
	root.ForEach(func(key, value gjson.Result) bool {
		id := key.String()
		price := value.Get(c.vsCurrency)
		if price.Type != gjson.Number {
			return true
		}
		change := value.Get(c.vsCurrency + "_24h_change")
		quotes[id] = prices.Quote{
			ID:        id,
			Symbol:    c.symbol(id),
			Price:     price.Float(),
			Change24h: change.Float(),
			HasChange: change.Type == gjson.Number,
			Source:    SourceName,
			FetchedAt: fetchedAt,
		}
		return true
	})
	return quotes, nil
}

// Ping checks the API is reachable (GET /ping).
func (c *Client) Ping(ctx context.Context) error {
	body, err := c.MakeRequest(ctx, "/ping")
	if err != nil {
		return fmt.Errorf("coingecko ping failed: %w", err)
	}
	if !gjson.GetBytes(body, "gecko_says").Exists() {
		return fmt.Errorf("coingecko ping failed: unexpected response")
	}
	return nil
}

// MakeRequest sends a GET with retries, rate limiting and the circuit breaker.
func (c *Client) MakeRequest(ctx context.Context, endpoint string) ([]byte, error) {
	requestID := logging.GenerateRequestID()

	var respBody []byte
	err := retry.Do(ctx, c.retry, func() error {
		if err := c.waitCooldown(ctx); err != nil {
			return err
		}
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}

		_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
			body, err := c.doRequest(ctx, requestID, endpoint)
			if err != nil {
				return nil, err
			}
			respBody = body
			return body, nil
		})
		if wait := retry.RateLimited(err); wait > 0 {
			c.startCooldown(wait)
		}
		return err
	})
	if err != nil {
		logging.LogError("CoinGecko request failed",
			zap.String("request_id", requestID),
			zap.String("endpoint", endpoint),
			zap.Error(err))
		return nil, err
	}
	return respBody, nil
}

func (c *Client) startCooldown(d time.Duration) {
	c.cooldownMu.Lock()
	defer c.cooldownMu.Unlock()
	if until := time.Now().Add(d); until.After(c.cooldownUntil) {
		c.cooldownUntil = until
		logging.LogWarn("CoinGecko rate limit hit, pausing requests", zap.Duration("retry_after", d))
	}
}

// waitCooldown blocks until a previous Retry-After has passed. A pause longer than the
// retry ceiling fails at once so callers fall back to cached quotes.
func (c *Client) waitCooldown(ctx context.Context) error {
	c.cooldownMu.Lock()
	remaining := time.Until(c.cooldownUntil)
	c.cooldownMu.Unlock()
	if remaining <= 0 {
		return nil
	}
	if remaining > c.retry.RetryAfterCeiling() {
		return &retry.HTTPError{StatusCode: http.StatusTooManyRequests, RetryAfter: remaining}
	}

	t := time.NewTimer(remaining)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) doRequest(ctx context.Context, requestID, endpoint string) ([]byte, error) {
	startTime := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "ticker-bot/1.0")
	if c.apiKey != "" {
		req.Header.Set(c.apiKeyHeader, c.apiKey)
	}

	logging.LogRequest(requestID, http.MethodGet, endpoint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logging.LogResponse(requestID, 0, time.Since(startTime).Milliseconds(), zap.String("endpoint", endpoint), zap.Error(err))
		return nil, fmt.Errorf("failed to perform request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize))
	if err != nil {
		logging.LogResponse(requestID, resp.StatusCode, time.Since(startTime).Milliseconds(), zap.String("endpoint", endpoint), zap.Error(err))
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	duration := time.Since(startTime).Milliseconds()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logging.LogResponse(requestID, resp.StatusCode, duration, zap.String("endpoint", endpoint), zap.String("error", "API error response received"))
		return nil, &retry.HTTPError{
			StatusCode: resp.StatusCode,
			Body:       body,
			RetryAfter: retry.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	logging.LogResponse(requestID, resp.StatusCode, duration, zap.String("endpoint", endpoint))
	return body, nil
}

func uniqueSorted(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
