// Package imagefetch resolves embedded image references to decoded images.
package imagefetch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/hosseinMsh/QRCodeRenderSystem/internal/circuitbreaker"
)

var (
	// ErrHostBlocked is returned for hosts refused by the private address guard
	ErrHostBlocked = errors.New("image host not allowed")
	// ErrCircuitOpen is returned while a host's breaker is open
	ErrCircuitOpen = errors.New("image host circuit open")
	// ErrInvalidDataURL is returned for undecodable data URLs
	ErrInvalidDataURL = errors.New("invalid image data URL")
	// ErrTooLarge is returned when a download exceeds the size cap
	ErrTooLarge = errors.New("image exceeds size limit")
)

// Config holds fetcher settings
type Config struct {
	Timeout           time.Duration
	ConnectTimeout    time.Duration
	MaxBytes          int64
	BlockPrivateHosts bool
	// AllowedHosts are exempt from BlockPrivateHosts
	AllowedHosts []string
}

const maxRedirects = 10

// Fetcher loads images from data URLs or over HTTP
type Fetcher struct {
	client   *http.Client
	cfg      Config
	breakers *circuitbreaker.Registry
	allowed  allowList
	logger   hclog.Logger
}

// New creates a new fetcher. breakers may be nil to disable short-circuiting.
func New(cfg Config, breakers *circuitbreaker.Registry, logger hclog.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 3 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10 << 20
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	allowed := newAllowList(cfg.AllowedHosts)
	return &Fetcher{
		client:   newClient(cfg, allowed),
		cfg:      cfg,
		breakers: breakers,
		allowed:  allowed,
		logger:   logger,
	}
}

// newClient creates an HTTP client with the configured timeouts. With
// BlockPrivateHosts every dial and redirect goes through the guard.
func newClient(cfg Config, allowed allowList) *http.Client {
	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		DialContext:           dialer.DialContext,
		ResponseHeaderTimeout: cfg.Timeout,
	}
	if cfg.BlockPrivateHosts {
		// a proxy would be dialed instead of the image host
		transport.Proxy = nil
		transport.DialContext = guardedDial(dialer, allowed)
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			if cfg.BlockPrivateHosts && !allowed.allows(req.URL.Host) {
				return checkHostSafety(req.URL.Hostname())
			}
			return nil
		},
	}
}

// Fetch resolves ref to an image
func (f *Fetcher) Fetch(ctx context.Context, ref string) (image.Image, error) {
	if strings.HasPrefix(ref, "data:") {
		return decodeDataURL(ref)
	}

	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("parse image url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported image url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("image url has no host")
	}
	if f.cfg.BlockPrivateHosts && !f.allowed.allows(u.Host) {
		if err := checkHostSafety(u.Hostname()); err != nil {
			return nil, err
		}
	}

	host := strings.ToLower(u.Host)
	var cb *circuitbreaker.CircuitBreaker
	if f.breakers != nil {
		cb = f.breakers.Get(host)
		if !cb.AllowRequest() {
			return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, host)
		}
	}

	img, err := f.download(ctx, u.String())
	if cb != nil {
		// decode errors count against the host as well
		if err != nil && ctx.Err() == nil {
			cb.RecordFailure()
		} else if err == nil {
			cb.RecordSuccess()
		}
	}
	if err != nil {
		f.logger.Debug("image fetch failed", "host", host, "error", err)
		return nil, err
	}
	return img, nil
}

func (f *Fetcher) download(ctx context.Context, rawURL string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch image: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if int64(len(body)) > f.cfg.MaxBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, f.cfg.MaxBytes)
	}

	return decodeImage(body)
}

// CloseIdleConnections releases pooled connections
func (f *Fetcher) CloseIdleConnections() {
	f.client.CloseIdleConnections()
}
