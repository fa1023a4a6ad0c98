// Package httpsource is the http(s) media.Source: HEAD for the freshness
// probe, GET for the payload.
package httpsource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hazyhaar/vitrine/connectivity"
	"github.com/hazyhaar/vitrine/horosafe"
	"github.com/hazyhaar/vitrine/media"
)

// Config configures a Source.
type Config struct {
	Timeout  time.Duration // per request. Default: 30s.
	MaxBytes int64         // payload cap. Default: 25MB.
	// UserAgent sent with requests.
	UserAgent string
	// URLValidator runs before every request and redirect.
	// Default: horosafe.ValidateURL.
	URLValidator func(string) error
	// Client overrides the HTTP client. Its CheckRedirect is replaced.
	Client *http.Client
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 25 << 20
	}
	if c.UserAgent == "" {
		c.UserAgent = "vitrine/1.0"
	}
	if c.URLValidator == nil {
		c.URLValidator = horosafe.ValidateURL
	}
}

// Source fetches media over HTTP.
type Source struct {
	client *http.Client
	config Config
}

var _ media.Source = (*Source)(nil)

// New creates a Source that re-validates every redirect target.
func New(cfg Config) *Source {
	cfg.defaults()
	client := &http.Client{Timeout: cfg.Timeout}
	if cfg.Client != nil {
		c := *cfg.Client
		client = &c
	}
	validate := cfg.URLValidator
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 5 {
			return fmt.Errorf("too many redirects (%d)", len(via))
		}
		if err := validate(req.URL.String()); err != nil {
			return fmt.Errorf("redirect blocked: %w", err)
		}
		return nil
	}
	return &Source{client: client, config: cfg}
}

// Probe sends a HEAD request and returns the Last-Modified header. Servers
// that refuse HEAD yield an empty token and no error.
func (s *Source) Probe(ctx context.Context, url string) (string, error) {
	resp, err := s.do(ctx, http.MethodHead, url)
	if err != nil {
		return "", fmt.Errorf("%w: %w", media.ErrProbeFailed, err)
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusMethodNotAllowed, resp.StatusCode == http.StatusNotImplemented:
		return "", nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", statusError(media.ErrProbeFailed, resp.StatusCode)
	}
	return strings.TrimSpace(resp.Header.Get("Last-Modified")), nil
}

// Download GETs url. Only 2xx responses count as success.
func (s *Source) Download(ctx context.Context, url string) (*media.Payload, error) {
	resp, err := s.do(ctx, http.MethodGet, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", media.ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(media.ErrDownloadFailed, resp.StatusCode)
	}
	// An oversized payload stays oversized: fail without retrying.
	if resp.ContentLength > s.config.MaxBytes {
		return nil, connectivity.Permanentf("%w: %w: declared %d bytes, limit %d",
			media.ErrDownloadFailed, horosafe.ErrResponseTooLarge, resp.ContentLength, s.config.MaxBytes)
	}
	body, err := horosafe.LimitedReadAll(resp.Body, s.config.MaxBytes)
	if errors.Is(err, horosafe.ErrResponseTooLarge) {
		return nil, connectivity.Permanentf("%w: read body: %w", media.ErrDownloadFailed, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", media.ErrDownloadFailed, err)
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(body)
	}
	return &media.Payload{
		Bytes:       body,
		ContentType: ct,
		Token:       strings.TrimSpace(resp.Header.Get("Last-Modified")),
	}, nil
}

func (s *Source) do(ctx context.Context, method, url string) (*http.Response, error) {
	if err := s.config.URLValidator(url); err != nil {
		return nil, connectivity.Permanentf("URL blocked: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", s.config.UserAgent)
	return s.client.Do(req)
}

// statusError wraps sentinel with the HTTP status. Client errors other than
// 408 and 429 will not change on retry.
func statusError(sentinel error, code int) error {
	err := fmt.Errorf("%w: http %d", sentinel, code)
	if code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests {
		return connectivity.Permanent(err)
	}
	return err
}
