// Package codectask dispatches M3U8 parsing onto a small, bounded
// goroutine pool instead of running it inline on the calling
// goroutine, the Go analog of the original's
// tokio::task::spawn_blocking wrapper around the parser (component G).
// The parse itself never blocks on I/O; the point of the pool is to
// cap how much CPU-bound parsing work can run concurrently.
package codectask

import (
	"context"
	"errors"

	"hlsproxy/m3u8"
)

// ErrPoolExhausted is returned when the job queue is full: every
// worker is busy and no more work can be buffered.
var ErrPoolExhausted = errors.New("codectask: worker pool exhausted")

type job struct {
	ctx    context.Context
	data   []byte
	result chan parseResult
}

type parseResult struct {
	playlist m3u8.Playlist
	err      error
}

// Pool is a fixed-size worker pool fed by a buffered job channel.
type Pool struct {
	jobs chan job
}

// NewPool starts workers goroutines consuming from a queue of the
// given capacity. A submission that would overflow the queue fails
// immediately with ErrPoolExhausted rather than blocking the caller.
func NewPool(workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	p := &Pool{jobs: make(chan job, queueSize)}
	for i := 0; i < workers; i++ {
		go p.run()
	}
	return p
}

func (p *Pool) run() {
	for j := range p.jobs {
		select {
		case <-j.ctx.Done():
			j.result <- parseResult{err: j.ctx.Err()}
			continue
		default:
		}

		playlist, err := m3u8.Parse(j.data)
		j.result <- parseResult{playlist: playlist, err: err}
	}
}

// Parse submits data for parsing and blocks until a worker has
// processed it, the queue was full (ErrPoolExhausted), or ctx was
// cancelled first.
func (p *Pool) Parse(ctx context.Context, data []byte) (m3u8.Playlist, error) {
	result := make(chan parseResult, 1)

	select {
	case p.jobs <- job{ctx: ctx, data: data, result: result}:
	default:
		return m3u8.Playlist{}, ErrPoolExhausted
	}

	select {
	case <-ctx.Done():
		return m3u8.Playlist{}, ctx.Err()
	case r := <-result:
		return r.playlist, r.err
	}
}
