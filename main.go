package main

import (
	"flag"
	"log"
	"net/http"

	"hlsproxy/cachepool"
	"hlsproxy/codectask"
	"hlsproxy/config"
	"hlsproxy/downloader"
	"hlsproxy/httpapi"
	"hlsproxy/janitor"
	"hlsproxy/logger"
	"hlsproxy/proxyselector"
	"hlsproxy/trackingpool"
)

const (
	codecWorkers   = 4
	codecQueueSize = 64
	statsSchedule  = "@every 5m"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("hlsproxy: loading config: %v", err)
	}

	log := logger.NewDefault(cfg.Logging.Debug, cfg.Logging.Safe)

	selector, err := proxyselector.New(cfg.HTTP.Proxy, cfg.HTTP.Proxies)
	if err != nil {
		log.Fatalf("hlsproxy: building proxy selector: %v", err)
	}

	httpClient := &http.Client{
		Timeout: cfg.UpstreamTimeoutDuration(),
		Transport: &http.Transport{
			Proxy: selector.Proxy,
		},
	}
	if cfg.HTTP.UserAgent != "" {
		httpClient.Transport = &userAgentTransport{
			base:      httpClient.Transport,
			userAgent: cfg.HTTP.UserAgent,
		}
	}

	dl := downloader.New(httpClient, cfg.DownloadThreads, log)
	cachePool := cachepool.New(cfg.SizeLimit, cfg.CacheExpireDuration(), dl, log)
	trackingPool := trackingpool.New(cfg.TrackExpireDuration(), cfg.TrackIntervalDuration(), cachePool, httpClient, log)
	codecPool := codectask.NewPool(codecWorkers, codecQueueSize)

	statsJanitor, err := janitor.New(statsSchedule, cachePool, trackingPool, log)
	if err != nil {
		log.Fatalf("hlsproxy: building janitor: %v", err)
	}
	statsJanitor.Start()

	handler := httpapi.New(cfg.BaseURL, httpClient, cachePool, trackingPool, codecPool, log)

	mux := http.NewServeMux()
	handler.Register(mux)

	log.Logf("hlsproxy: listening on %s", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, mux); err != nil {
		log.Fatalf("hlsproxy: server error: %v", err)
	}
}

// userAgentTransport sets a fixed User-Agent on every outbound
// request, following redirects, before delegating to base.
type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(req)
}
