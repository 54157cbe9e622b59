package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ZanzyTHEbar/automation-analyzer/analyzer/cache/adapters"
	ports "github.com/ZanzyTHEbar/automation-analyzer/analyzer/cache/ports"
)

// ErrListUnsupported is returned by maintenance operations on stores that cannot list keys.
var ErrListUnsupported = errors.New("cache: store does not support listing keys")

const (
	defaultWriteQueue   = 64
	defaultWriteTimeout = 5 * time.Second
)

// Options configures a Cache. Namespace, TTL and Store are required.
type Options struct {
	Namespace string        // versioned area name, see Namespace()
	TTL       time.Duration // entries older than this are treated as absent
	Store     ports.Store
	Tracer    ports.Tracer     // defaults to a no-op tracer
	Logger    zerolog.Logger   // zero value logs nowhere
	Clock     func() time.Time // defaults to time.Now

	// AsyncWrites hands store writes to a background writer so Set never waits on
	// slow backends. Writes are applied in order; when the queue is full they are dropped.
	AsyncWrites  bool
	WriteQueue   int
	WriteTimeout time.Duration
}

// Cache is a content-addressed cache for payloads of type T within one namespace.
// It is safe for concurrent use.
type Cache[T any] struct {
	namespace string
	ttl       time.Duration
	store     ports.Store
	tracer    ports.Tracer
	logger    zerolog.Logger
	now       func() time.Time

	flights singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64

	writes       chan pendingWrite
	writeTimeout time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

type pendingWrite struct {
	key  string
	data []byte
}

// New constructs a cache. Misconfiguration is reported here rather than on each call.
func New[T any](opts Options) (*Cache[T], error) {
	if opts.Namespace == "" {
		return nil, fmt.Errorf("cache namespace is required")
	}
	if opts.TTL <= 0 {
		return nil, fmt.Errorf("cache %s: ttl must be positive, got %s", opts.Namespace, opts.TTL)
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("cache %s: store is required", opts.Namespace)
	}

	c := &Cache[T]{
		namespace:    opts.Namespace,
		ttl:          opts.TTL,
		store:        opts.Store,
		tracer:       opts.Tracer,
		logger:       opts.Logger.With().Str("namespace", opts.Namespace).Logger(),
		now:          opts.Clock,
		writeTimeout: opts.WriteTimeout,
	}
	if c.tracer == nil {
		c.tracer = adapters.NoopTracer{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.writeTimeout <= 0 {
		c.writeTimeout = defaultWriteTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	if opts.AsyncWrites {
		size := opts.WriteQueue
		if size <= 0 {
			size = defaultWriteQueue
		}
		c.writes = make(chan pendingWrite, size)
		c.wg.Add(1)
		go c.writeLoop(ctx)
	}

	return c, nil
}

// Namespace returns the area this cache reads and writes.
func (c *Cache[T]) Namespace() string { return c.namespace }

// TTL returns the fixed freshness window.
func (c *Cache[T]) TTL() time.Duration { return c.ttl }

// Get returns the payload stored under key if it exists and is within the TTL.
// Every failure mode reports as a miss.
func (c *Cache[T]) Get(ctx context.Context, key string) (T, bool) {
	r := c.lookup(ctx, key)
	if !r.ok() {
		c.misses.Add(1)
		attrs := map[string]any{
			"namespace": c.namespace,
			"key":       key,
			"reason":    string(r.err.Kind),
		}
		if r.err.Kind == KindDecode || r.err.Kind == KindStore {
			attrs["error"] = r.err.Error()
		}
		c.tracer.Event(ctx, "cache_miss", attrs)
		var zero T
		return zero, false
	}

	c.hits.Add(1)
	c.tracer.Event(ctx, "cache_hit", map[string]any{
		"namespace":  c.namespace,
		"key":        key,
		"created_at": r.createdAt,
	})
	return r.value, true
}

// lookup reads and validates one entry; validity is checked against the clock on every call.
func (c *Cache[T]) lookup(ctx context.Context, key string) result[T] {
	data, err := c.store.Get(ctx, storeKey(c.namespace, key))
	if errors.Is(err, ports.ErrNotFound) {
		return result[T]{err: &CacheError{Kind: KindAbsent, Key: key}}
	}
	if err != nil {
		return result[T]{err: &CacheError{Kind: KindStore, Key: key, Err: err}}
	}

	header, err := decodeHeader(data)
	if err != nil {
		return result[T]{err: &CacheError{Kind: KindDecode, Key: key, Err: err}}
	}

	createdAt := time.Time(*header.CreatedAt)
	if c.expired(createdAt) {
		return result[T]{createdAt: createdAt, err: &CacheError{Kind: KindExpired, Key: key}}
	}

	value, err := decodePayload[T](header.Payload)
	if err != nil {
		return result[T]{err: &CacheError{Kind: KindDecode, Key: key, Err: err}}
	}

	return result[T]{value: value, createdAt: createdAt}
}

func (c *Cache[T]) expired(createdAt time.Time) bool {
	return c.now().Sub(createdAt) > c.ttl
}

// Set overwrites the entry under key with payload stamped at the current time.
// Failures are logged and dropped.
func (c *Cache[T]) Set(ctx context.Context, key string, payload T) {
	if err := c.set(ctx, key, payload); err != nil {
		c.tracer.Event(ctx, "cache_write_failed", map[string]any{
			"namespace": c.namespace,
			"key":       key,
			"reason":    string(err.Kind),
			"error":     err.Error(),
		})
	}
}

func (c *Cache[T]) set(ctx context.Context, key string, payload T) *CacheError {
	data, err := encodeEntry(c.now(), payload)
	if err != nil {
		return &CacheError{Kind: KindEncode, Key: key, Err: err}
	}

	if c.writes != nil {
		return c.enqueue(key, data)
	}

	if err := c.store.Set(ctx, storeKey(c.namespace, key), data); err != nil {
		return &CacheError{Kind: KindStore, Key: key, Err: err}
	}
	return nil
}

func (c *Cache[T]) enqueue(key string, data []byte) (cerr *CacheError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return &CacheError{Kind: KindStore, Key: key, Err: errors.New("cache is closed")}
	}

	select {
	case c.writes <- pendingWrite{key: key, data: data}:
		return nil
	default:
		return &CacheError{Kind: KindStore, Key: key, Err: errors.New("write queue full")}
	}
}

// writeLoop applies queued writes in order until the queue is closed.
func (c *Cache[T]) writeLoop(ctx context.Context) {
	defer c.wg.Done()

	for w := range c.writes {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.writeTimeout)
		if err := c.store.Set(wctx, storeKey(c.namespace, w.key), w.data); err != nil {
			c.tracer.Event(wctx, "cache_write_failed", map[string]any{
				"namespace": c.namespace,
				"key":       w.key,
				"reason":    string(KindStore),
				"error":     err.Error(),
			})
		}
		cancel()
	}
}

// Delete removes the entry under key. Failures are logged and dropped.
func (c *Cache[T]) Delete(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, storeKey(c.namespace, key)); err != nil {
		c.tracer.Event(ctx, "cache_delete_failed", map[string]any{
			"namespace": c.namespace,
			"key":       key,
			"error":     err.Error(),
		})
	}
}

// GetOrCompute returns the cached payload for input or runs compute at most once per
// key across concurrent callers, storing a successful result. Compute errors are
// returned to every waiting caller and are never cached. hit reports a cache hit.
func (c *Cache[T]) GetOrCompute(ctx context.Context, input string, compute func(ctx context.Context) (T, error)) (value T, hit bool, err error) {
	key := ComputeKey(input)
	if v, ok := c.Get(ctx, key); ok {
		return v, true, nil
	}

	// The flight outlives any single caller; compute bounds its own duration.
	fctx := context.WithoutCancel(ctx)
	ch := c.flights.DoChan(key, func() (any, error) {
		// A flight that finished between our miss and joining the group may have stored it.
		if r := c.lookup(fctx, key); r.ok() {
			return r.value, nil
		}

		v, err := compute(fctx)
		if err != nil {
			return nil, err
		}
		c.Set(fctx, key, v)
		return v, nil
	})

	select {
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, false, res.Err
		}
		v, _ := res.Val.(T)
		return v, false, nil
	}
}

// Stats describes the cache's namespace and its hit/miss counters.
type Stats struct {
	Namespace string        `json:"namespace"`
	TTL       time.Duration `json:"ttl"`
	Hits      int64         `json:"hits"`
	Misses    int64         `json:"misses"`
	Entries   int           `json:"entries"`
	Expired   int           `json:"expired"`
	Corrupt   int           `json:"corrupt"`
}

// Stats reports counters and, when the store can list keys, entry health.
// Without a listing store only the counters are filled in.
func (c *Cache[T]) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{
		Namespace: c.namespace,
		TTL:       c.ttl,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
	}

	err := c.walk(ctx, func(_ string, _ []byte, state entryState) {
		stats.Entries++
		switch state {
		case stateExpired:
			stats.Expired++
		case stateCorrupt:
			stats.Corrupt++
		}
	})
	if errors.Is(err, ErrListUnsupported) {
		return stats, nil
	}
	return stats, err
}

// Sweep deletes expired and undecodable entries in this namespace and returns how
// many were removed. Reads never depend on it having run. An entry rewritten after
// it was classified is left in place.
func (c *Cache[T]) Sweep(ctx context.Context) (int, error) {
	type staleEntry struct {
		key  string
		data []byte
	}
	var stale []staleEntry
	err := c.walk(ctx, func(key string, data []byte, state entryState) {
		if state != stateLive {
			stale = append(stale, staleEntry{key: key, data: data})
		}
	})
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, e := range stale {
		deleted, err := c.deleteIfUnchanged(ctx, e.key, e.data)
		if err != nil {
			return removed, fmt.Errorf("failed to delete %s: %w", e.key, err)
		}
		if deleted {
			removed++
		}
	}
	return removed, nil
}

// deleteIfUnchanged removes key only while it still holds seen. Stores without a
// conditional delete get a read-compare-delete, which narrows but cannot close the window.
func (c *Cache[T]) deleteIfUnchanged(ctx context.Context, key string, seen []byte) (bool, error) {
	if cd, ok := c.store.(ports.ConditionalDeleter); ok {
		return cd.DeleteIf(ctx, key, seen)
	}

	current, err := c.store.Get(ctx, key)
	if errors.Is(err, ports.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !bytes.Equal(current, seen) {
		return false, nil
	}
	return true, c.store.Delete(ctx, key)
}

// Clear deletes every entry in this namespace, leaving other namespaces alone.
func (c *Cache[T]) Clear(ctx context.Context) (int, error) {
	lister, ok := c.store.(ports.Lister)
	if !ok {
		return 0, ErrListUnsupported
	}
	keys, err := lister.Keys(ctx, storeKey(c.namespace, ""))
	if err != nil {
		return 0, fmt.Errorf("failed to list %s: %w", c.namespace, err)
	}

	removed := 0
	for _, key := range keys {
		if err := c.store.Delete(ctx, key); err != nil {
			return removed, fmt.Errorf("failed to delete %s: %w", key, err)
		}
		removed++
	}
	return removed, nil
}

type entryState int

const (
	stateLive entryState = iota
	stateExpired
	stateCorrupt
)

// walk classifies every stored entry in the namespace. fn receives full store keys
// and the bytes that were classified.
func (c *Cache[T]) walk(ctx context.Context, fn func(storeKey string, data []byte, state entryState)) error {
	lister, ok := c.store.(ports.Lister)
	if !ok {
		return ErrListUnsupported
	}
	keys, err := lister.Keys(ctx, storeKey(c.namespace, ""))
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", c.namespace, err)
	}

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := c.store.Get(ctx, key)
		if errors.Is(err, ports.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", key, err)
		}

		header, err := decodeHeader(data)
		switch {
		case err != nil:
			fn(key, data, stateCorrupt)
		case c.expired(time.Time(*header.CreatedAt)):
			fn(key, data, stateExpired)
		default:
			if _, err := decodePayload[T](header.Payload); err != nil {
				fn(key, data, stateCorrupt)
			} else {
				fn(key, data, stateLive)
			}
		}
	}
	return nil
}

// StartSweeper runs Sweep every interval until Close. It is a no-op for interval <= 0
// or when already closed.
func (c *Cache[T]) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	prev := c.cancel
	c.cancel = func() {
		cancel()
		prev()
	}

	c.wg.Add(1)
	go c.sweepLoop(ctx, interval)
}

func (c *Cache[T]) sweepLoop(ctx context.Context, interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := c.Sweep(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				c.logger.Warn().Err(err).Msg("Cache sweep failed")
				continue
			}
			if removed > 0 {
				c.logger.Debug().Int("removed", removed).Msg("Swept stale cache entries")
			}
		}
	}
}

// Close stops the sweeper, flushes queued writes and waits for background work.
// Close is safe to call multiple times.
func (c *Cache[T]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.writes != nil {
		close(c.writes)
	}
	cancel := c.cancel
	c.mu.Unlock()

	cancel()
	c.wg.Wait()
	return nil
}
