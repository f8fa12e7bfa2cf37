// Package harvester turns third-party app pages into structured item records:
// it classifies and extracts one fetched HTML document, discovers further item
// URLs from listing pages, and rehosts content images through an asset store.
package harvester

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/appvault/harvester/keywords"
)

// Config contains harvester configuration
type Config struct {
	HTTPTimeout          time.Duration
	UserAgent            string
	MinContentLength     int           // Minimum post-strip length for a body candidate
	FingerprintThreshold int           // Fingerprint matches needed to strip a metadata block
	FingerprintMaxChars  int           // Blocks longer than this are never fingerprint-stripped
	MaxImageSizeBytes    int64         // Maximum image size to download (bytes)
	ImageTimeout         time.Duration // Timeout for downloading individual images
	AssetFolder          string        // Asset store folder for rehosted images
	CrawlDelay           time.Duration // Politeness delay between listing page fetches
	UploadDelay          time.Duration // Politeness delay between image uploads
	Keywords             keywords.Config
}

// DefaultConfig returns default harvester configuration
func DefaultConfig() Config {
	return Config{
		HTTPTimeout:          30 * time.Second,
		UserAgent:            "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
		MinContentLength:     200, // Shorter candidates are usually misidentified sidebars
		FingerprintThreshold: 3,
		FingerprintMaxChars:  500,
		MaxImageSizeBytes:    10 * 1024 * 1024, // 10MB max image size
		ImageTimeout:         15 * time.Second,
		AssetFolder:          "items",
		CrawlDelay:           500 * time.Millisecond,
		UploadDelay:          250 * time.Millisecond,
		Keywords:             keywords.DefaultConfig(),
	}
}

// Fetcher fetches one page and returns its raw HTML.
// Implementations must honor the context and report non-2xx statuses as errors.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// AssetStore durably hosts binary image data and returns a stable URL.
// A nil store disables rehosting without failing extraction.
type AssetStore interface {
	Upload(ctx context.Context, data []byte, folder string) (string, error)
}

// Harvester handles item extraction and link discovery
type Harvester struct {
	config        Config
	fetcher       Fetcher
	assets        AssetStore
	httpClient    *http.Client // Image downloads
	keywords      *keywords.Extractor
	crawlLimiter  *rate.Limiter
	uploadLimiter *rate.Limiter
}

// New creates a new Harvester instance.
// assets can be nil if image rehosting is not needed.
func New(config Config, fetcher Fetcher, assets AssetStore) *Harvester {
	if config.MinContentLength == 0 {
		config.MinContentLength = 200
	}
	if config.FingerprintThreshold == 0 {
		config.FingerprintThreshold = 3
	}
	if config.FingerprintMaxChars == 0 {
		config.FingerprintMaxChars = 500
	}
	if config.MaxImageSizeBytes == 0 {
		config.MaxImageSizeBytes = 10 * 1024 * 1024
	}
	if config.ImageTimeout == 0 {
		config.ImageTimeout = 15 * time.Second
	}

	if fetcher == nil {
		fetcher = NewHTTPFetcher(config.HTTPTimeout, config.UserAgent)
	}

	return &Harvester{
		config:        config,
		fetcher:       fetcher,
		assets:        assets,
		httpClient:    newInstrumentedClient(config.HTTPTimeout),
		keywords:      keywords.New(config.Keywords),
		crawlLimiter:  limiterForDelay(config.CrawlDelay),
		uploadLimiter: limiterForDelay(config.UploadDelay),
	}
}

// limiterForDelay builds a politeness gate from a fixed delay.
// A zero delay yields an unlimited limiter, which tests rely on.
func limiterForDelay(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// HTTPFetcher is the default Fetcher: a timeout-bounded HTTP client with a
// realistic User-Agent and otel-instrumented transport.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPFetcher creates a new HTTPFetcher instance
func NewHTTPFetcher(timeout time.Duration, userAgent string) *HTTPFetcher {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFetcher{
		client:    newInstrumentedClient(timeout),
		userAgent: userAgent,
	}
}

// Fetch retrieves a page and returns its raw HTML
func (f *HTTPFetcher) Fetch(ctx context.Context, targetURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	return string(body), nil
}

// newInstrumentedClient builds an HTTP client whose transport propagates trace
// context on outbound requests.
func newInstrumentedClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}
