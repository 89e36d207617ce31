package tracker

// TTL cache in front of the price source
// Identical concurrent fetches share one call; failed ids fall back to the last known quote marked Stale

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"ticker-bot/internal/features/prices"
	logging "ticker-bot/internal/infra/log"
	"ticker-bot/internal/infra/metrics"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type QuoteCache struct {
	source PriceSource
	name   string
	ttl    time.Duration
	now    func() time.Time

	mu      sync.RWMutex
	entries map[string]prices.Quote

	group singleflight.Group
}

func NewQuoteCache(source PriceSource, ttl time.Duration) *QuoteCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	name := "source"
	if named, ok := source.(interface{ Name() string }); ok {
		name = named.Name()
	}
	return &QuoteCache{
		source:  source,
		name:    name,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]prices.Quote),
	}
}

// Get returns quotes for ids, fetching only the missing or expired ones.
// The error describes the failed fetch; the map still carries fresh, cached and stale quotes.
func (c *QuoteCache) Get(ctx context.Context, ids []string) (map[string]prices.Quote, error) {
	return c.get(ctx, ids, false)
}

// Refresh fetches every id regardless of the TTL.
func (c *QuoteCache) Refresh(ctx context.Context, ids []string) (map[string]prices.Quote, error) {
	return c.get(ctx, ids, true)
}

// Peek returns the last known quote without fetching.
func (c *QuoteCache) Peek(id string) (prices.Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.entries[id]
	return q, ok
}

func (c *QuoteCache) get(ctx context.Context, ids []string, force bool) (map[string]prices.Quote, error) {
	ids = normalizeIDs(ids)
	out := make(map[string]prices.Quote, len(ids))
	now := c.now()

	var need []string
	c.mu.RLock()
	for _, id := range ids {
		q, ok := c.entries[id]
		if ok && !force && now.Sub(q.FetchedAt) < c.ttl {
			out[id] = q
			continue
		}
		need = append(need, id)
	}
	c.mu.RUnlock()
	metrics.RecordCacheHits(len(out))

	if len(need) == 0 {
		return out, nil
	}

	key := strings.Join(need, ",")
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		fetched, err := c.source.FetchQuotes(ctx, need)
		metrics.RecordFetch(c.name, fetchStatusErr(err))
		c.store(fetched)
		return fetched, err
	})
	fetched, _ := v.(map[string]prices.Quote)

	stale := 0
	c.mu.RLock()
	for _, id := range need {
		if q, ok := fetched[id]; ok {
			out[id] = q
			continue
		}
		if last, ok := c.entries[id]; ok {
			last.Stale = true
			out[id] = last
			stale++
		}
	}
	c.mu.RUnlock()

	if stale > 0 {
		metrics.RecordStaleQuotes(stale)
		logging.LogWarn("Serving stale quotes",
			zap.Int("stale", stale),
			zap.Strings("ids", need),
			zap.Error(err))
	}
	return out, err
}

func (c *QuoteCache) store(quotes map[string]prices.Quote) {
	if len(quotes) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, q := range quotes {
		q.Stale = false
		c.entries[id] = q
	}
}

// an unknown id is a user problem, not a provider failure
func fetchStatusErr(err error) error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if fetchStatusErr(e) != nil {
				return err
			}
		}
		return nil
	}
	if errors.Is(err, prices.ErrTokenNotFound) {
		return nil
	}
	return err
}

func normalizeIDs(ids []string) []string {
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
