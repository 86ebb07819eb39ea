// Package httpapi implements the proxy's HTTP surface (component F):
// /playlist, /media and /stream. Grounded on swiftstream's
// routes::{playlist,media,stream} for per-route behavior and the
// teacher's handlers package for the handler-struct-with-logger shape
// and http.HandleFunc wiring style.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"hlsproxy/cachepool"
	"hlsproxy/codectask"
	"hlsproxy/httprange"
	"hlsproxy/logger"
	"hlsproxy/m3u8"
	"hlsproxy/trackingpool"
)

// Handler serves the playlist/media/stream endpoints over a shared
// set of collaborators, constructed once in main and registered on a
// standard net/http mux.
type Handler struct {
	baseURL      string
	httpClient   *http.Client
	cachePool    *cachepool.Pool
	trackingPool *trackingpool.Pool
	codec        *codectask.Pool
	log          logger.Logger
}

// New builds a Handler. baseURL is used to rewrite playlist/media
// locations into same-proxy URLs.
func New(baseURL string, httpClient *http.Client, cachePool *cachepool.Pool, trackingPool *trackingpool.Pool, codec *codectask.Pool, log logger.Logger) *Handler {
	return &Handler{
		baseURL:      baseURL,
		httpClient:   httpClient,
		cachePool:    cachePool,
		trackingPool: trackingPool,
		codec:        codec,
		log:          log,
	}
}

// Register wires the handler's routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/playlist", h.handlePlaylist)
	mux.HandleFunc("/media", h.handleMedia)
	mux.HandleFunc("/stream", h.handleStream)
}

// requestID returns a short per-request identifier for log
// correlation, reusing the teacher's uuid-per-request convention.
func requestID() string {
	return uuid.New().String()
}

func originParam(r *http.Request) (string, bool) {
	origin := r.URL.Query().Get("origin")
	return origin, origin != ""
}

func (h *Handler) fetchBody(ctx context.Context, origin string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("httpapi: upstream responded with status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// resolveLocation resolves a media location against base when it is
// relative; absolute locations pass through unchanged. On any parse
// failure the raw location is returned unchanged, letting the caller
// url-encode it directly, per §4.F.
func resolveLocation(base *url.URL, location string) (string, bool) {
	ref, err := url.Parse(location)
	if err != nil {
		return location, false
	}
	if ref.IsAbs() {
		return ref.String(), true
	}
	return base.ResolveReference(ref).String(), true
}

func (h *Handler) internalError(w http.ResponseWriter, reqID string, context string, err error) {
	h.log.Errorf("httpapi[%s]: %s: %v", reqID, context, err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func (h *Handler) badRequest(w http.ResponseWriter, reqID string, context string, err error) {
	h.log.Warnf("httpapi[%s]: %s: %v", reqID, context, err)
	http.Error(w, "bad request", http.StatusBadRequest)
}

// handlePlaylist implements GET /playlist?origin=U.
func (h *Handler) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	reqID := requestID()

	origin, ok := originParam(r)
	if !ok {
		h.badRequest(w, reqID, "playlist", errors.New("missing origin parameter"))
		return
	}

	body, err := h.fetchBody(r.Context(), origin)
	if err != nil {
		h.internalError(w, reqID, "fetching playlist", err)
		return
	}

	playlist, err := h.codec.Parse(r.Context(), body)
	if err != nil {
		h.internalError(w, reqID, "parsing playlist", err)
		return
	}

	base, err := url.Parse(origin)
	if err != nil {
		h.internalError(w, reqID, "parsing origin", err)
		return
	}

	for i := range playlist.Medias {
		media := &playlist.Medias[i]
		resolved, ok := resolveLocation(base, media.Location)
		if !ok {
			h.log.Warnf("httpapi[%s]: location %q failed to parse, rewriting raw", reqID, media.Location)
		}
		media.Location = fmt.Sprintf("%s/media?origin=%s", h.baseURL, url.QueryEscape(resolved))
	}

	h.log.Debugf("httpapi[%s]: served playlist for %s", reqID, origin)

	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Write(m3u8.Serialize(playlist))
}

// handleMedia implements GET /media?origin=U.
func (h *Handler) handleMedia(w http.ResponseWriter, r *http.Request) {
	reqID := requestID()

	origin, ok := originParam(r)
	if !ok {
		h.badRequest(w, reqID, "media", errors.New("missing origin parameter"))
		return
	}

	body, err := h.fetchBody(r.Context(), origin)
	if err != nil {
		h.internalError(w, reqID, "fetching media playlist", err)
		return
	}

	h.trackingPool.Track(origin)

	playlist, err := h.codec.Parse(r.Context(), body)
	if err != nil {
		h.internalError(w, reqID, "parsing media playlist", err)
		return
	}

	base, err := url.Parse(origin)
	if err != nil {
		h.internalError(w, reqID, "parsing origin", err)
		return
	}

	for i := range playlist.Medias {
		media := &playlist.Medias[i]
		resolved, ok := resolveLocation(base, media.Location)
		if ok {
			h.cachePool.Prepare(resolved)
		}
		media.Location = fmt.Sprintf("%s/stream?origin=%s", h.baseURL, url.QueryEscape(resolved))
	}

	h.log.Debugf("httpapi[%s]: served media for %s", reqID, origin)

	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Write(m3u8.Serialize(playlist))
}

// handleStream implements GET and HEAD /stream?origin=U.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	reqID := requestID()

	origin, ok := originParam(r)
	if !ok {
		h.badRequest(w, reqID, "stream", errors.New("missing origin parameter"))
		return
	}

	resource, err := h.cachePool.Get(r.Context(), origin)
	if err != nil {
		if errors.Is(err, cachepool.ErrOutOfMemory) {
			w.Header().Set("Location", origin)
			w.WriteHeader(http.StatusTemporaryRedirect)
			return
		}
		h.internalError(w, reqID, "fetching stream resource", err)
		return
	}

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", resource.ContentType)

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(resource.Body)))
		if r.Method != http.MethodHead {
			w.Write(resource.Body)
		}
		return
	}

	ranges, err := httprange.Parse(rangeHeader)
	if err != nil {
		h.badRequest(w, reqID, "parsing range header", err)
		return
	}

	body, ok := sliceRanges(resource.Body, ranges)
	if !ok {
		h.badRequest(w, reqID, "range out of bounds", fmt.Errorf("range outside resource of length %d", len(resource.Body)))
		return
	}

	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(body)))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method != http.MethodHead {
		w.Write(body)
	}
}

// sliceRanges concatenates the requested ranges from body in request
// order. This proxy does not emit multipart/byteranges: multiple
// ranges are simply concatenated into one body.
func sliceRanges(body []byte, ranges []httprange.Range) ([]byte, bool) {
	total := uint64(len(body))
	var out []byte

	for _, rg := range ranges {
		var from, to uint64
		switch rg.Kind {
		case httprange.KindSuffix:
			if rg.To > total {
				from, to = 0, total
			} else {
				from, to = total-rg.To, total
			}
		case httprange.KindPrefix:
			if rg.From >= total {
				return nil, false
			}
			from, to = rg.From, total
		default:
			if rg.From > rg.To || rg.To >= total {
				return nil, false
			}
			from, to = rg.From, rg.To+1
		}
		out = append(out, body[from:to]...)
	}

	return out, true
}
