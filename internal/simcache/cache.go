// Package simcache memoizes simulation runs by input fingerprint.
//
// Each distinct fingerprint is computed at most once per TTL window no matter
// how many callers ask for it concurrently. Results are shared read-only by
// every caller; failures are never stored.
package simcache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nvandessel/simdash/internal/constants"
	"github.com/nvandessel/simdash/internal/results"
	"github.com/nvandessel/simdash/internal/simulation"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
)

var errNilResult = errors.New("simulator returned no result")

type entry struct {
	result  *results.Result
	expires time.Time
}

// Stats is a point-in-time copy of the cache counters.
type Stats struct {
	Hits         int64 `json:"hits"`
	Misses       int64 `json:"misses"`
	Computations int64 `json:"computations"`
	Failures     int64 `json:"failures"`
	Entries      int   `json:"entries"`
}

// Cache is a TTL cache in front of a Simulator with single-flight
// computation per key. Safe for concurrent use.
type Cache struct {
	sim    simulation.Simulator
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
	m      *metrics

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]entry
	stats   Stats
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets how long a result stays valid. Non-positive values are ignored.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithRegisterer registers the cache metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Cache) {
		c.m = newMetrics(reg)
	}
}

// WithLogger sets the logger used for computation events.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a cache in front of sim.
func New(sim simulation.Simulator, opts ...Option) *Cache {
	c := &Cache{
		sim:     sim,
		ttl:     constants.DefaultCacheTTL,
		now:     time.Now,
		logger:  slog.New(slog.DiscardHandler),
		entries: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.m == nil {
		c.m = newMetrics(nil)
	}
	return c
}

// Compute returns the result for fp, running the simulation if no live entry
// exists. Concurrent calls for the same fingerprint share one run. The run
// itself is detached from ctx so a caller that gives up does not discard
// work other callers are waiting on; ctx only bounds how long this caller
// waits. Failures are returned as *simulation.ComputationError.
func (c *Cache) Compute(ctx context.Context, fp simulation.Fingerprint) (*results.Result, error) {
	key := fp.Key()

	if res, ok := c.lookup(key); ok {
		return res, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		// A previous flight may have stored the entry between our lookup
		// and this flight starting.
		if res, ok := c.peek(key); ok {
			return res, nil
		}
		return c.run(context.WithoutCancel(ctx), fp)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*results.Result), nil
	}
}

// TryCompute is Compute for passive views: any failure means "no data".
func (c *Cache) TryCompute(ctx context.Context, fp simulation.Fingerprint) (*results.Result, bool) {
	res, err := c.Compute(ctx, fp)
	if err != nil {
		c.logger.Debug("no simulation data", "fingerprint", fp.String(), "error", err)
		return nil, false
	}
	return res, true
}

// Peek returns a live cached result without computing.
func (c *Cache) Peek(fp simulation.Fingerprint) (*results.Result, bool) {
	return c.peek(fp.Key())
}

// Invalidate drops the entry for fp, if any.
func (c *Cache) Invalidate(fp simulation.Fingerprint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, fp.Key())
	c.m.entries.Set(float64(len(c.entries)))
}

// Prune removes expired entries and returns how many were dropped.
func (c *Cache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pruneLocked(c.now())
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// TTL returns the configured time-to-live.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Stats returns a copy of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = len(c.entries)
	return s
}

func (c *Cache) lookup(key string) (*results.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if ok && c.now().Before(e.expires) {
		c.stats.Hits++
		c.m.hits.Inc()
		return e.result, true
	}
	c.stats.Misses++
	c.m.misses.Inc()
	return nil, false
}

func (c *Cache) peek(key string) (*results.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expires) {
		return nil, false
	}
	return e.result, true
}

func (c *Cache) run(ctx context.Context, fp simulation.Fingerprint) (*results.Result, error) {
	c.mu.Lock()
	c.stats.Computations++
	c.mu.Unlock()
	c.m.computations.Inc()

	c.logger.Info("running simulation", "fingerprint", fp.String())
	start := c.now()
	res, err := c.sim.Simulate(ctx, fp)
	elapsed := c.now().Sub(start)
	c.m.duration.Observe(elapsed.Seconds())

	if err == nil && res == nil {
		err = simulation.AsComputationError(fp.Key(), errNilResult)
	}
	if err != nil {
		c.mu.Lock()
		c.stats.Failures++
		c.mu.Unlock()
		c.m.failures.Inc()
		c.logger.Warn("simulation failed", "fingerprint", fp.String(), "elapsed", elapsed, "error", err)
		return nil, simulation.AsComputationError(fp.Key(), err)
	}
	if res.Local == nil {
		res.Local = results.NewTree()
	}

	c.mu.Lock()
	now := c.now()
	c.pruneLocked(now)
	c.entries[fp.Key()] = entry{result: res, expires: now.Add(c.ttl)}
	c.m.entries.Set(float64(len(c.entries)))
	c.mu.Unlock()

	c.logger.Debug("simulation cached", "fingerprint", fp.String(), "elapsed", elapsed, "ttl", c.ttl)
	return res, nil
}

func (c *Cache) pruneLocked(now time.Time) int {
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
			n++
		}
	}
	if n > 0 {
		c.m.entries.Set(float64(len(c.entries)))
	}
	return n
}
