// Package trackingpool implements the Stream Tracking Pool (component
// E): a periodic playlist re-poll that pre-warms the Cache Pool with
// every media location a tracked playlist references. Grounded on
// swiftstream's caching::stream_tracking::StreamTrackingPool, using
// the same sync.Map admission idiom as cachepool.
package trackingpool

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"hlsproxy/cachepool"
	"hlsproxy/logger"
	"hlsproxy/m3u8"
)

// Pool tracks a set of playlist origins, re-fetching and re-parsing
// each on a fixed interval to keep the cache pool warm with its
// referenced media.
type Pool struct {
	tracking   sync.Map // string -> *item
	ttl        time.Duration
	interval   time.Duration
	cachePool  *cachepool.Pool
	httpClient *http.Client
	log        logger.Logger
}

// New builds a Pool. ttl is how long a tracked origin survives without
// a Track call; interval bounds how often a tracked playlist is
// re-polled even while still alive.
func New(ttl, interval time.Duration, cachePool *cachepool.Pool, httpClient *http.Client, log logger.Logger) *Pool {
	return &Pool{
		ttl:        ttl,
		interval:   interval,
		cachePool:  cachePool,
		httpClient: httpClient,
		log:        log,
	}
}

// Track marks origin as tracked, idempotently creating its worker if
// this is the first call and extending its expiry either way.
func (p *Pool) Track(origin string) {
	it := p.admit(origin)
	it.setExpire(time.Now().Add(p.ttl))
}

func (p *Pool) admit(origin string) *item {
	if v, ok := p.tracking.Load(origin); ok {
		return v.(*item)
	}

	candidate := newItem(origin)
	actual, loaded := p.tracking.LoadOrStore(origin, candidate)
	it := actual.(*item)
	if !loaded {
		go p.manage(it)
	}
	return it
}

// Stats reports the current count of tracked origins, for periodic
// janitor logging.
func (p *Pool) Stats() (count int) {
	p.tracking.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

func (p *Pool) drop(origin string) {
	p.tracking.Delete(origin)
}

// manage is the per-item worker: poll-and-prewarm on each wakeup,
// sleeping for the lesser of the remaining TTL and the poll interval,
// until the TTL lapses without a fresh Track call.
func (p *Pool) manage(it *item) {
	for {
		expireAt := it.expireTime()
		now := time.Now()
		if !expireAt.After(now) {
			break
		}

		if err := p.keepTrack(it.origin); err != nil {
			p.log.Warnf("trackingpool: error tracking %s: %v", it.origin, err)
		} else {
			p.log.Debugf("trackingpool: kept track of %s", it.origin)
		}

		remaining := expireAt.Sub(now)
		wait := remaining
		if p.interval < wait {
			wait = p.interval
		}
		time.Sleep(wait)
	}

	p.drop(it.origin)
}

// keepTrack re-fetches and re-parses the tracked playlist and
// pre-warms the cache pool with every media location it references.
func (p *Pool) keepTrack(origin string) error {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, origin, nil)
	if err != nil {
		return err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.New("trackingpool: unexpected status fetching playlist")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	playlist, err := m3u8.Parse(body)
	if err != nil {
		return err
	}

	return p.prepareAll(origin, playlist)
}

func (p *Pool) prepareAll(origin string, playlist m3u8.Playlist) error {
	base, err := url.Parse(origin)
	if err != nil {
		return err
	}

	for _, media := range playlist.Medias {
		location, err := resolveLocation(base, media.Location)
		if err != nil {
			return err
		}
		p.cachePool.Prepare(location)
	}
	return nil
}

// resolveLocation resolves a media's location against the playlist's
// own URL when it is relative, mirroring url::Url::join's fallback in
// the original.
func resolveLocation(base *url.URL, location string) (string, error) {
	ref, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

// item is one tracked origin's lifecycle state.
type item struct {
	origin   string
	expireAt atomic.Int64
}

func newItem(origin string) *item {
	it := &item{origin: origin}
	it.expireAt.Store(time.Now().Add(30 * time.Second).UnixNano())
	return it
}

func (it *item) setExpire(t time.Time)    { it.expireAt.Store(t.UnixNano()) }
func (it *item) expireTime() time.Time    { return time.Unix(0, it.expireAt.Load()) }
