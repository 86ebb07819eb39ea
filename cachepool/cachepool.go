// Package cachepool implements the keyed, bounded, TTL-refreshing,
// single-flight in-memory cache of fetched byte blobs (component D),
// grounded on swiftstream's caching::cache_pool::CachePool. Admission
// uses the same sync.Map/LoadOrStore idiom as the teacher's
// proxy/stream/buffer/registry.go StreamRegistry in place of the
// original's single RwLock<HashMap<...>>.
package cachepool

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"hlsproxy/backoff"
	"hlsproxy/downloader"
	"hlsproxy/logger"
)

// Resource is the cached payload: the downloaded bytes and the
// upstream Content-Type they were served with.
type Resource struct {
	Body        []byte
	ContentType string
}

var (
	// ErrOutOfMemory is returned by Get when origin is not already
	// cached and the pool's size cap has been reached. Callers should
	// redirect the client straight to origin.
	ErrOutOfMemory = errors.New("cachepool: size limit reached")
	// ErrInterrupted is returned by Get when the item's loader gave up
	// (expired before it finished, or failed terminally) without ever
	// populating data.
	ErrInterrupted = errors.New("cachepool: failed to load resource")
)

// Pool is the single-flight, size-capped cache of origin resources.
type Pool struct {
	items      sync.Map // string -> *item
	sizeLimit  uint64
	ttl        time.Duration
	downloader *downloader.Downloader
	log        logger.Logger
}

// New builds a Pool with the given admission cap (bytes) and per-item
// idle TTL, backed by downloader for misses.
func New(sizeLimit uint64, ttl time.Duration, dl *downloader.Downloader, log logger.Logger) *Pool {
	return &Pool{sizeLimit: sizeLimit, ttl: ttl, downloader: dl, log: log}
}

// Prepare ensures origin has a cache item and its lifecycle worker is
// running, without waiting for the load to finish or blocking on the
// admission cap's outcome.
func (p *Pool) Prepare(origin string) {
	go func() {
		if _, err := p.admit(origin); err != nil {
			p.log.Debugf("cachepool: prepare skipped for %s: %v", origin, err)
		}
	}()
}

// Get returns the cached resource for origin, blocking until the
// item's worker has populated it. Every call extends the item's
// expiry by ttl first.
func (p *Pool) Get(ctx context.Context, origin string) (Resource, error) {
	it, err := p.admit(origin)
	if err != nil {
		return Resource{}, err
	}

	it.setExpire(time.Now().Add(p.ttl))

	// Give a freshly spawned lifecycle worker a chance to acquire the
	// data write lock before we try to read it, mirroring the
	// yield_now() call in the original before get_resource().
	runtime.Gosched()

	it.mu.RLock()
	defer it.mu.RUnlock()
	if it.data == nil {
		return Resource{}, ErrInterrupted
	}
	return *it.data, nil
}

// admit implements the single-flight admission algorithm: map lookup,
// else size-check, else LoadOrStore-and-spawn.
func (p *Pool) admit(origin string) (*item, error) {
	if v, ok := p.items.Load(origin); ok {
		return v.(*item), nil
	}

	if p.totalSize() > p.sizeLimit {
		return nil, ErrOutOfMemory
	}

	candidate := newItem(origin)
	actual, loaded := p.items.LoadOrStore(origin, candidate)
	it := actual.(*item)
	if !loaded {
		go p.runLifecycle(it)
	}
	return it, nil
}

func (p *Pool) totalSize() uint64 {
	var total uint64
	p.items.Range(func(_, v any) bool {
		total += v.(*item).size()
		return true
	})
	return total
}

// Stats reports the current item count and best-effort total
// populated size, for periodic janitor logging.
func (p *Pool) Stats() (count int, totalBytes uint64) {
	p.items.Range(func(_, v any) bool {
		count++
		totalBytes += v.(*item).size()
		return true
	})
	return count, totalBytes
}

func (p *Pool) drop(origin string) {
	p.items.Delete(origin)
	p.log.Debugf("cachepool: resource %s dropped", origin)
}

// runLifecycle is the per-item worker: load, then wait for expiry,
// then self-remove.
func (p *Pool) runLifecycle(it *item) {
	p.loadResource(it)
	it.waitExpire(context.Background())
	p.drop(it.origin)
}

// loadResource holds the item's write lock for the duration of the
// load, racing a "cancel on expiry" watcher against the retry loop
// exactly as the original's tokio::select! does.
func (p *Pool) loadResource(it *item) {
	it.mu.Lock()
	defer it.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		it.waitExpire(ctx)
		cancel()
	}()

	retry := backoff.New(500*time.Millisecond, 30*time.Second)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if it.expired() {
			return
		}

		p.log.Debugf("cachepool: start downloading for %s", it.origin)
		res, err := p.tryLoad(ctx, it.origin)
		if err == nil {
			it.data = &res
			p.log.Debugf("cachepool: finished downloading for %s with mime %s", it.origin, res.ContentType)
			return
		}

		p.log.Errorf("cachepool: error loading resource %s: %v", it.origin, err)
		retry.Sleep(ctx)
	}
}

// tryLoad downloads origin with the pool's default thread count,
// falling back to a single-threaded fetch when the origin can't serve
// ranges or doesn't report Content-Length.
func (p *Pool) tryLoad(ctx context.Context, origin string) (Resource, error) {
	res, err := p.downloader.Download(ctx, origin, 0)
	if err == nil {
		return Resource{Body: res.Body, ContentType: res.ContentType}, nil
	}

	kind, ok := downloader.ErrorKindOf(err)
	if !ok || (kind != downloader.ErrKindRangeNotSupported && kind != downloader.ErrKindContentLengthMissing) {
		return Resource{}, err
	}

	p.log.Warnf("cachepool: range not supported (%v), falling back to single-threaded for %s", err, origin)
	res, err = p.downloader.Download(ctx, origin, 1)
	if err != nil {
		return Resource{}, err
	}
	return Resource{Body: res.Body, ContentType: res.ContentType}, nil
}

// item is one cache entry's lifecycle state.
type item struct {
	origin string

	mu   sync.RWMutex
	data *Resource

	expireAt atomic.Int64 // unix nano
}

func newItem(origin string) *item {
	it := &item{origin: origin}
	it.expireAt.Store(time.Now().Add(30 * time.Second).UnixNano())
	return it
}

func (it *item) setExpire(t time.Time) { it.expireAt.Store(t.UnixNano()) }

func (it *item) expired() bool {
	return time.Now().UnixNano() > it.expireAt.Load()
}

// waitExpire blocks until the item's expiry has elapsed, re-reading
// expireAt on each wakeup since Get extends it forward concurrently.
func (it *item) waitExpire(ctx context.Context) {
	for {
		expireAt := time.Unix(0, it.expireAt.Load())
		remaining := time.Until(expireAt)
		if remaining <= 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(remaining):
		}
	}
}

// size reports the item's current payload size, treating lock
// contention (an in-flight load) as zero rather than blocking. This is
// the Go equivalent of the original's RwLock::try_read-based
// best-effort accounting: in-flight downloads don't count toward the
// pool's size cap.
func (it *item) size() uint64 {
	if !it.mu.TryRLock() {
		return 0
	}
	defer it.mu.RUnlock()
	if it.data == nil {
		return 0
	}
	return uint64(len(it.data.Body))
}
