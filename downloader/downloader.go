// Package downloader fetches a whole origin resource into memory, either
// as a single GET or as N parallel ranged GETs reassembled in order. It
// is the Go analog of swiftstream's caching::download::Downloader
// (component C), using golang.org/x/sync/errgroup in place of
// tokio::spawn + futures::join_all for the parallel-chunk fan-out.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"

	"golang.org/x/sync/errgroup"

	"hlsproxy/logger"
)

// Resource is the outcome of a successful download: the reassembled
// bytes and the upstream Content-Type, passed straight through to the
// cache pool for storage.
type Resource struct {
	Body        []byte
	ContentType string
}

// Error is the downloader's error enum, mirroring swiftstream's
// DownloadError variants.
type Error struct {
	Kind   ErrorKind
	Status int
	err    error
}

type ErrorKind int

const (
	// ErrKindRequest wraps a transport-level failure (dial, TLS, etc).
	ErrKindRequest ErrorKind = iota
	// ErrKindNotSuccess means the upstream responded with a non-2xx status.
	ErrKindNotSuccess
	// ErrKindContentLengthMissing means a HEAD preflight had no usable Content-Length.
	ErrKindContentLengthMissing
	// ErrKindRangeNotSupported means multiple threads were requested but
	// the origin didn't advertise Accept-Ranges.
	ErrKindRangeNotSupported
	// ErrKindReassembly means the downloaded chunks didn't tile the
	// full byte range with no gaps or overlaps.
	ErrKindReassembly
)

func (e *Error) Error() string {
	switch e.Kind {
	case ErrKindNotSuccess:
		return fmt.Sprintf("downloader: upstream responded with status %d", e.Status)
	case ErrKindContentLengthMissing:
		return "downloader: Content-Length header is missing"
	case ErrKindRangeNotSupported:
		return "downloader: origin does not support range requests"
	case ErrKindReassembly:
		return "downloader: error reassembling downloaded chunks"
	default:
		return "downloader: request error"
	}
}

func (e *Error) IsRangeNotSupported() bool    { return e.Kind == ErrKindRangeNotSupported }
func (e *Error) IsContentLengthMissing() bool { return e.Kind == ErrKindContentLengthMissing }
func (e *Error) Unwrap() error                { return e.err }

func wrapRequestErr(err error) error { return &Error{Kind: ErrKindRequest, err: err} }

// Downloader performs single- or multi-threaded fetches of an origin
// resource using a shared *http.Client (already configured with the
// proxy selector and User-Agent per SPEC_FULL.md §4.J).
type Downloader struct {
	client         *http.Client
	defaultThreads int
	log            logger.Logger
}

// New builds a Downloader. defaultThreads is used whenever a caller
// passes threads <= 0 to Download.
func New(client *http.Client, defaultThreads int, log logger.Logger) *Downloader {
	if defaultThreads < 1 {
		defaultThreads = 1
	}
	return &Downloader{client: client, defaultThreads: defaultThreads, log: log}
}

// Download fetches origin in full. threads <= 0 selects the
// Downloader's configured default; threads == 1 always takes the
// single-GET path regardless of what the origin advertises.
func (d *Downloader) Download(ctx context.Context, origin string, threads int) (Resource, error) {
	if threads <= 0 {
		threads = d.defaultThreads
	}
	if threads <= 1 {
		return d.downloadSingle(ctx, origin)
	}
	return d.downloadRanged(ctx, origin, threads)
}

func (d *Downloader) downloadSingle(ctx context.Context, origin string) (Resource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin, nil)
	if err != nil {
		return Resource{}, wrapRequestErr(err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return Resource{}, wrapRequestErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Resource{}, &Error{Kind: ErrKindNotSuccess, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Resource{}, wrapRequestErr(err)
	}

	return Resource{Body: body, ContentType: contentTypeOf(resp.Header)}, nil
}

func (d *Downloader) downloadRanged(ctx context.Context, origin string, threads int) (Resource, error) {
	headReq, err := http.NewRequestWithContext(ctx, http.MethodHead, origin, nil)
	if err != nil {
		return Resource{}, wrapRequestErr(err)
	}
	headResp, err := d.client.Do(headReq)
	if err != nil {
		return Resource{}, wrapRequestErr(err)
	}
	headResp.Body.Close()

	if headResp.StatusCode < 200 || headResp.StatusCode >= 300 {
		return Resource{}, &Error{Kind: ErrKindNotSuccess, Status: headResp.StatusCode}
	}

	contentLength, err := strconv.ParseUint(headResp.Header.Get("Content-Length"), 10, 64)
	if err != nil || contentLength == 0 {
		return Resource{}, &Error{Kind: ErrKindContentLengthMissing}
	}

	if headResp.Header.Get("Accept-Ranges") == "" {
		return Resource{}, &Error{Kind: ErrKindRangeNotSupported}
	}

	contentType := contentTypeOf(headResp.Header)

	// A segment smaller than the thread count would otherwise divide down
	// to a zero chunkSize, underflowing the "end = start + chunkSize - 1"
	// arithmetic below.
	if uint64(threads) > contentLength {
		threads = int(contentLength)
	}

	type chunk struct {
		start uint64
		data  []byte
	}
	chunkSize := contentLength / uint64(threads)
	chunks := make([]chunk, threads)

	group, gctx := errgroup.WithContext(ctx)
	for i := 0; i < threads; i++ {
		i := i
		start := uint64(i) * chunkSize
		end := start + chunkSize - 1
		if i == threads-1 {
			end = contentLength - 1
		}
		chunks[i].start = start

		group.Go(func() error {
			data, err := d.downloadRange(gctx, origin, start, end)
			if err != nil {
				return err
			}
			chunks[i].data = data
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		d.log.Warnf("downloader: ranged fetch of %s aborted: %v", origin, err)
		return Resource{}, err
	}

	sort.Slice(chunks, func(i, j int) bool { return chunks[i].start < chunks[j].start })

	buffer := make([]byte, 0, contentLength)
	var pos uint64
	for _, c := range chunks {
		if c.start != pos {
			return Resource{}, &Error{Kind: ErrKindReassembly}
		}
		buffer = append(buffer, c.data...)
		pos += uint64(len(c.data))
	}
	if pos != contentLength {
		return Resource{}, &Error{Kind: ErrKindReassembly}
	}

	return Resource{Body: buffer, ContentType: contentType}, nil
}

func (d *Downloader) downloadRange(ctx context.Context, origin string, start, end uint64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin, nil)
	if err != nil {
		return nil, wrapRequestErr(err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, wrapRequestErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{Kind: ErrKindNotSuccess, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapRequestErr(err)
	}
	return body, nil
}

func contentTypeOf(h http.Header) string {
	if ct := h.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// ErrorKindOf reports the Kind of err if it is (or wraps) a *Error.
func ErrorKindOf(err error) (ErrorKind, bool) {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Kind, true
	}
	return 0, false
}
