package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"
)

const (
	overviewCacheKey = "analytics:overview"
	trendsCacheKey   = "analytics:trends"
)

// Overview returns public aggregate stats. No credential is needed.
func (c *Client) Overview(ctx context.Context) (Overview, error) {
	var out Overview
	err := c.cached(ctx, overviewCacheKey, &out, func() error {
		return c.do(ctx, request{
			op:     "overview",
			method: http.MethodGet,
			path:   "/analytics/overview",
			auth:   authOptional,
		}, &out)
	})
	return out, err
}

// Trends returns events scraped per day, most recent first.
func (c *Client) Trends(ctx context.Context) ([]Trend, error) {
	var out []Trend
	err := c.cached(ctx, trendsCacheKey, &out, func() error {
		return c.do(ctx, request{
			op:     "trends",
			method: http.MethodGet,
			path:   "/analytics/trends",
			auth:   authOptional,
		}, &out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// InvalidateAnalytics drops cached analytics, e.g. after an ingest run.
func (c *Client) InvalidateAnalytics(ctx context.Context) {
	if c.cache == nil {
		return
	}
	for _, k := range []string{overviewCacheKey, trendsCacheKey} {
		if err := c.cache.Delete(ctx, k); err != nil {
			c.logger.Debug("cache delete failed", zap.String("key", k), zap.Error(err))
		}
	}
}

// cached serves out from the cache when possible, else runs fetch and stores
// the result. Cache failures are logged and never fail the call.
func (c *Client) cached(ctx context.Context, key string, out any, fetch func() error) error {
	if c.cache == nil {
		return fetch()
	}
	if b, ok, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Debug("cache get failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		if err := json.Unmarshal(b, out); err == nil {
			c.metrics.CacheLookup(true)
			return nil
		}
	}
	c.metrics.CacheLookup(false)
	if err := fetch(); err != nil {
		return err
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil
	}
	if err := c.cache.Set(ctx, key, b, c.cacheTTL); err != nil {
		c.logger.Debug("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return nil
}

const (
	defaultIngestLimit = 10
	maxIngestLimit     = 50
)

// TriggerIngest starts a scrape run on the backend. limit is clamped to the
// backend's accepted range [1, 50]; limit <= 0 means the default of 10.
func (c *Client) TriggerIngest(ctx context.Context, limit int) (IngestResult, error) {
	if limit <= 0 {
		limit = defaultIngestLimit
	}
	if limit > maxIngestLimit {
		limit = maxIngestLimit
	}
	var out IngestResult
	err := c.do(ctx, request{
		op:     "trigger ingest",
		method: http.MethodPost,
		path:   "/ingest",
		query:  url.Values{"limit": []string{strconv.Itoa(limit)}},
		auth:   authRequired,
	}, &out)
	if err != nil {
		return IngestResult{}, err
	}
	c.InvalidateAnalytics(ctx)
	return out, nil
}
