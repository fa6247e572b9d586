package price

import (
	"context"
	"sync"
	"time"

	"github.com/chainwatch/go-whale-monitor/entities"
	"github.com/jellydator/ttlcache/v3"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Source provides the current USD price of a network's native token.
type Source interface {
	FetchPrice(ctx context.Context) (decimal.Decimal, error)
}

// Quote is a USD price together with its provenance. Verified is false when
// the price is a configured fallback seed that was never confirmed by the
// source.
type Quote struct {
	Price    decimal.Decimal
	Verified bool
}

// MetricsRecorder receives successful price refreshes. Optional.
type MetricsRecorder interface {
	SetPrice(network string, usd float64)
}

const usdKey = "usd"

// Cache caches the USD price of one network's token for a fixed TTL.
// Within the TTL the source is never contacted. After expiry one refresh is
// attempted; on refresh failure the last known verified value (or, lacking
// one, a configured unverified fallback) is stamped back into the cache for
// a full TTL, so a failing source is retried at most once per TTL.
type Cache struct {
	network   string
	source    Source
	prices    *ttlcache.Cache[string, Quote]
	fallback  decimal.Decimal
	lastKnown decimal.Decimal
	hasKnown  bool
	mu        sync.Mutex
	metrics   MetricsRecorder
	logger    *zap.SugaredLogger
}

func NewCache(network string, source Source, ttl time.Duration, fallback decimal.Decimal, metricsRecorder MetricsRecorder, logger *zap.SugaredLogger) *Cache {
	prices := ttlcache.New[string, Quote](
		ttlcache.WithTTL[string, Quote](ttl),
		ttlcache.WithDisableTouchOnHit[string, Quote](), // don't refresh ttl upon getting the item from cache
	)
	go prices.Start()

	return &Cache{
		network:  network,
		source:   source,
		prices:   prices,
		fallback: fallback,
		metrics:  metricsRecorder,
		logger:   logger,
	}
}

// Quote returns the current USD price. It returns entities.ErrPriceUnavailable
// only when no value was ever obtained and no fallback is configured.
func (c *Cache) Quote(ctx context.Context) (Quote, error) {
	c.mu.Lock() // lock so that we do not get multiple callers refreshing at once
	defer c.mu.Unlock()

	if item := c.prices.Get(usdKey); item != nil {
		return item.Value(), nil
	}

	fetched, err := c.source.FetchPrice(ctx)
	if err == nil && !fetched.IsPositive() {
		err = errors.Errorf("source returned non-positive price %s", fetched)
	}
	if err == nil {
		quote := Quote{Price: fetched, Verified: true}
		c.prices.Set(usdKey, quote, ttlcache.DefaultTTL)
		c.lastKnown = fetched
		c.hasKnown = true
		if c.metrics != nil {
			c.metrics.SetPrice(c.network, fetched.InexactFloat64())
		}
		c.logger.Infow("price updated", "network", c.network, "usd", fetched)
		return quote, nil
	}

	c.logger.Warnw("price refresh failed", "network", c.network, "error", err)

	if c.hasKnown {
		quote := Quote{Price: c.lastKnown, Verified: true}
		c.prices.Set(usdKey, quote, ttlcache.DefaultTTL)
		return quote, nil
	}
	if c.fallback.IsPositive() {
		quote := Quote{Price: c.fallback, Verified: false}
		c.prices.Set(usdKey, quote, ttlcache.DefaultTTL)
		c.logger.Warnw("using fallback price", "network", c.network, "usd", c.fallback)
		return quote, nil
	}

	return Quote{}, entities.ErrPriceUnavailable
}

// Stop terminates the cache's expiration loop.
func (c *Cache) Stop() {
	c.prices.Stop()
}
