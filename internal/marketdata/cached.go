package marketdata

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/sawpanic/folio/internal/data/cache"
)

// Store is a shared second-level cache behind the in-process TTL table. Load reports the
// entry's remaining lifetime, or 0 when the store cannot tell.
type Store interface {
	Load(ctx context.Context, key string) (res *Result, remaining time.Duration, found bool, err error)
	Save(ctx context.Context, key string, res *Result, ttl time.Duration) error
}

// CacheObserver receives cache hit/miss notifications per layer ("memory", "redis").
type CacheObserver interface {
	CacheHit(layer string)
	CacheMiss(layer string)
}

const (
	LayerMemory = "memory"
	LayerRedis  = "redis"
)

// DefaultFetchTimeout bounds one shared upstream fetch.
const DefaultFetchTimeout = 30 * time.Second

// CachedProvider wraps a Provider with a TTL cache keyed by range and the sorted symbol
// set. Concurrent misses for the same key share one upstream call.
type CachedProvider struct {
	inner        Provider
	ttl          time.Duration
	fetchTimeout time.Duration
	table        *cache.TTLCache
	store        Store
	observer     CacheObserver
	group        singleflight.Group
	logger       zerolog.Logger
}

// CachedOption configures a CachedProvider.
type CachedOption func(*CachedProvider)

// WithStore adds a shared second-level cache.
func WithStore(store Store) CachedOption {
	return func(p *CachedProvider) { p.store = store }
}

// WithObserver reports hits and misses, usually to metrics.
func WithObserver(o CacheObserver) CachedOption {
	return func(p *CachedProvider) { p.observer = o }
}

// WithTable replaces the in-process table, e.g. to share one across providers or to
// control its clock in tests.
func WithTable(t *cache.TTLCache) CachedOption {
	return func(p *CachedProvider) { p.table = t }
}

// WithFetchTimeout bounds the upstream call shared by coalesced callers. It runs detached
// from any single caller's cancellation.
func WithFetchTimeout(d time.Duration) CachedOption {
	return func(p *CachedProvider) {
		if d > 0 {
			p.fetchTimeout = d
		}
	}
}

// WithCacheLogger sets the logger.
func WithCacheLogger(l zerolog.Logger) CachedOption {
	return func(p *CachedProvider) { p.logger = l }
}

// NewCachedProvider wraps inner; ttl <= 0 uses cache.DefaultTTL.
func NewCachedProvider(inner Provider, ttl time.Duration, opts ...CachedOption) *CachedProvider {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	p := &CachedProvider{
		inner:        inner,
		ttl:          ttl,
		fetchTimeout: DefaultFetchTimeout,
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.table == nil {
		p.table = cache.NewTTLCache(0, ttl)
	}
	return p
}

// GetReturns serves from cache when fresh (FromCache=true), otherwise calls the wrapped
// provider, stores the payload and returns it with FromCache=false. Errors are not cached.
// A caller whose ctx ends while waiting gets ctx.Err(); the shared fetch keeps running for
// the other waiters.
func (p *CachedProvider) GetReturns(ctx context.Context, req Request) (*Result, error) {
	req.Range = req.Range.OrDefault()
	key := CacheKey(req.Symbols, req.Range)

	if v, ok := p.table.Get(key); ok {
		p.hit(LayerMemory)
		return hitCopy(v.(*Result)), nil
	}
	p.miss(LayerMemory)

	if p.store != nil {
		res, remaining, found, err := p.store.Load(ctx, key)
		switch {
		case err != nil:
			p.logger.Warn().Err(err).Str("key", key).Msg("shared cache load failed")
		case found:
			p.hit(LayerRedis)
			p.table.Set(key, res.Clone(), p.memoryTTL(remaining))
			return hitCopy(res), nil
		default:
			p.miss(LayerRedis)
		}
	}

	ch := p.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.fetchTimeout)
		defer cancel()

		res, err := p.inner.GetReturns(fetchCtx, req)
		if err != nil {
			return nil, err
		}
		stored := res.Clone()
		stored.Meta.FromCache = false
		p.table.Set(key, stored, p.ttl)

		if p.store != nil {
			if err := p.store.Save(fetchCtx, key, stored, p.ttl); err != nil {
				p.logger.Warn().Err(err).Str("key", key).Msg("shared cache save failed")
			}
		}
		return stored, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		if r.Shared {
			p.logger.Debug().Str("key", key).Msg("coalesced market data fetch")
		}
		return r.Val.(*Result).Clone(), nil
	}
}

// memoryTTL caps a shared-store entry's local lifetime at what it has left upstream.
func (p *CachedProvider) memoryTTL(remaining time.Duration) time.Duration {
	if remaining > 0 && remaining < p.ttl {
		return remaining
	}
	return p.ttl
}

// Invalidate drops every cached payload.
func (p *CachedProvider) Invalidate() {
	p.table.Clear()
}

// Close stops the table's cleanup goroutine.
func (p *CachedProvider) Close() {
	p.table.Stop()
}

// Stats exposes the in-process table counters.
func (p *CachedProvider) Stats() cache.Stats {
	return p.table.Stats()
}

func hitCopy(res *Result) *Result {
	out := res.Clone()
	out.Meta.FromCache = true
	return out
}

func (p *CachedProvider) hit(layer string) {
	if p.observer != nil {
		p.observer.CacheHit(layer)
	}
}

func (p *CachedProvider) miss(layer string) {
	if p.observer != nil {
		p.observer.CacheMiss(layer)
	}
}
