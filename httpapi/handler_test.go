package httpapi

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"hlsproxy/cachepool"
	"hlsproxy/codectask"
	"hlsproxy/downloader"
	"hlsproxy/logger"
	"hlsproxy/trackingpool"
)

func newTestHandler(origin *httptest.Server) (*Handler, *httptest.Server) {
	mux := http.NewServeMux()
	dl := downloader.New(origin.Client(), 1, logger.Default)
	cp := cachepool.New(1<<30, time.Second, dl, logger.Default)
	tp := trackingpool.New(time.Second, 100*time.Millisecond, cp, origin.Client(), logger.Default)
	codec := codectask.NewPool(2, 4)

	proxySrv := httptest.NewServer(mux)
	h := New(proxySrv.URL, origin.Client(), cp, tp, codec, logger.Default)
	h.Register(mux)

	return h, proxySrv
}

func TestHandlePlaylistRewritesMediaLocations(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("#EXTM3U\n#EXTINF:1,seg\nsegment1.ts\n"))
	}))
	defer origin.Close()

	_, proxySrv := newTestHandler(origin)
	defer proxySrv.Close()

	resp, err := http.Get(proxySrv.URL + "/playlist?origin=" + url.QueryEscape(origin.URL+"/playlist.m3u8"))
	if err != nil {
		t.Fatalf("GET /playlist: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	body := string(raw)

	if !strings.Contains(body, proxySrv.URL+"/media?origin=") {
		t.Errorf("body does not contain rewritten /media location: %s", body)
	}
}

func TestHandleStreamRedirectsOnOutOfMemory(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123456789"))
	}))
	defer origin.Close()

	mux := http.NewServeMux()
	dl := downloader.New(origin.Client(), 1, logger.Default)
	cp := cachepool.New(1, time.Second, dl, logger.Default) // tiny cap forces ErrOutOfMemory on a second distinct origin
	tp := trackingpool.New(time.Second, time.Second, cp, origin.Client(), logger.Default)
	codec := codectask.NewPool(1, 2)

	proxySrv := httptest.NewServer(mux)
	defer proxySrv.Close()
	h := New(proxySrv.URL, origin.Client(), cp, tp, codec, logger.Default)
	h.Register(mux)

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	first, err := client.Get(proxySrv.URL + "/stream?origin=" + url.QueryEscape(origin.URL+"/a.ts"))
	if err != nil {
		t.Fatalf("GET /stream (first): %v", err)
	}
	first.Body.Close()
	if first.StatusCode != http.StatusOK {
		t.Fatalf("first status = %d, want 200", first.StatusCode)
	}

	time.Sleep(20 * time.Millisecond)

	second, err := client.Get(proxySrv.URL + "/stream?origin=" + url.QueryEscape(origin.URL+"/b.ts"))
	if err != nil {
		t.Fatalf("GET /stream (second): %v", err)
	}
	defer second.Body.Close()

	if second.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("second status = %d, want 307", second.StatusCode)
	}
	if loc := second.Header.Get("Location"); loc != origin.URL+"/b.ts" {
		t.Errorf("Location = %q, want %q", loc, origin.URL+"/b.ts")
	}
}

func TestHandleStreamHonorsRange(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123456789"))
	}))
	defer origin.Close()

	_, proxySrv := newTestHandler(origin)
	defer proxySrv.Close()

	req, err := http.NewRequest(http.MethodGet, proxySrv.URL+"/stream?origin="+url.QueryEscape(origin.URL+"/a.ts"), nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Range", "bytes=2-4")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /stream: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if string(raw) != "234" {
		t.Errorf("body = %q, want %q", raw, "234")
	}
}

func TestHandleStreamMalformedRangeIsBadRequest(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123456789"))
	}))
	defer origin.Close()

	_, proxySrv := newTestHandler(origin)
	defer proxySrv.Close()

	req, err := http.NewRequest(http.MethodGet, proxySrv.URL+"/stream?origin="+url.QueryEscape(origin.URL+"/a.ts"), nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Range", "not-a-range")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /stream: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandleStreamHeadHasNoBody(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123456789"))
	}))
	defer origin.Close()

	_, proxySrv := newTestHandler(origin)
	defer proxySrv.Close()

	req, err := http.NewRequest(http.MethodHead, proxySrv.URL+"/stream?origin="+url.QueryEscape(origin.URL+"/a.ts"), nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("HEAD /stream: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("Content-Length") != "10" {
		t.Errorf("Content-Length = %q, want 10", resp.Header.Get("Content-Length"))
	}
}
