// Package oracle exposes validated mark prices. Price ingestion itself is an
// external concern; this layer caches the latest observation per market and
// enforces staleness and confidence bounds at read time.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrNoPrice       = errors.New("no price for market")
	ErrPriceStale    = errors.New("price exceeds staleness bound")
	ErrPriceWideConf = errors.New("price confidence interval too wide")
	ErrPriceNonPos   = errors.New("price is not positive")
)

// Bounds are the validation limits applied when a price is read.
// Production: 60s staleness, confidence ≤ 1% of price (100 bps).
type Bounds struct {
	MaxAge           time.Duration
	MaxConfidenceBps int64
}

// ProductionBounds are the strict limits used outside test environments.
func ProductionBounds() Bounds {
	return Bounds{MaxAge: 60 * time.Second, MaxConfidenceBps: 100}
}

// RelaxedBounds loosen staleness for test environments where the price
// feed ticks slowly. Confidence stays bounded.
func RelaxedBounds() Bounds {
	return Bounds{MaxAge: 24 * time.Hour, MaxConfidenceBps: 1_000}
}

// ValidatedPrice is a price observation that passed the bounds at read time.
type ValidatedPrice struct {
	Market      string
	Price       int64 // fixed-point, price scale
	Confidence  int64 // absolute, same scale as Price
	PublishedAt time.Time
	Sequence    int64
}

// Source is the collaborator contract consumed by the engine.
type Source interface {
	Price(ctx context.Context, market string) (ValidatedPrice, error)
}

// Cache is the NATS-fed price cache. Updates arrive as oracle events;
// sequence ordering tolerates gaps but drops stale observations.
type Cache struct {
	mu     sync.RWMutex
	bounds Bounds
	prices map[string]ValidatedPrice
	now    func() time.Time
}

func NewCache(bounds Bounds) *Cache {
	return &Cache{
		bounds: bounds,
		prices: make(map[string]ValidatedPrice),
		now:    time.Now,
	}
}

// Observe records a price update. Out-of-sequence observations are ignored
// (idempotent), gaps are tolerated.
func (c *Cache) Observe(market string, price, confidence int64, publishedAt time.Time, sequence int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.prices[market]
	if ok && sequence <= current.Sequence {
		return
	}
	c.prices[market] = ValidatedPrice{
		Market:      market,
		Price:       price,
		Confidence:  confidence,
		PublishedAt: publishedAt,
		Sequence:    sequence,
	}
}

// Price returns the latest observation if it passes the validation bounds.
func (c *Cache) Price(_ context.Context, market string) (ValidatedPrice, error) {
	c.mu.RLock()
	now := c.now()
	c.mu.RUnlock()
	return c.PriceAt(market, now)
}

// PriceAt validates against a caller-supplied clock. The deterministic
// core uses the triggering event's timestamp, never the wall clock.
func (c *Cache) PriceAt(market string, now time.Time) (ValidatedPrice, error) {
	c.mu.RLock()
	p, ok := c.prices[market]
	bounds := c.bounds
	c.mu.RUnlock()

	if !ok {
		return ValidatedPrice{}, fmt.Errorf("%w: %s", ErrNoPrice, market)
	}
	if p.Price <= 0 {
		return ValidatedPrice{}, fmt.Errorf("%w: %s", ErrPriceNonPos, market)
	}
	if age := now.Sub(p.PublishedAt); age > bounds.MaxAge {
		return ValidatedPrice{}, fmt.Errorf("%w: %s age=%s max=%s",
			ErrPriceStale, market, age, bounds.MaxAge)
	}
	// confidence/price in bps must stay under the bound
	if p.Confidence > 0 {
		confBps := p.Confidence * 10_000 / p.Price
		if confBps > bounds.MaxConfidenceBps {
			return ValidatedPrice{}, fmt.Errorf("%w: %s conf=%dbps max=%dbps",
				ErrPriceWideConf, market, confBps, bounds.MaxConfidenceBps)
		}
	}
	return p, nil
}

// SetClock overrides the wall clock. Test hook.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}
