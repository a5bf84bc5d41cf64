package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"

	"github.com/ppiankov/thumbsieve/internal/model"
	"github.com/ppiankov/thumbsieve/internal/phash"
	"github.com/ppiankov/thumbsieve/internal/util"
)

var (
	// ErrBadStatus is returned for non-2xx thumbnail responses
	ErrBadStatus = errors.New("unexpected status")

	// ErrTooLarge is returned when a thumbnail exceeds the configured size limit
	ErrTooLarge = errors.New("image exceeds size limit")

	// ErrDisallowed is returned when robots.txt forbids the thumbnail URL
	ErrDisallowed = errors.New("disallowed by robots.txt")
)

// HostLimiter paces requests per host
type HostLimiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// FetchedImage is a downloaded and decoded thumbnail
type FetchedImage struct {
	Data     []byte
	MIMEType string
	Format   string // decoder name: jpeg, png, gif, webp
	Image    image.Image
	FinalURL string
}

// Fetcher downloads thumbnails
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	robots     *util.RobotsChecker // nil = robots.txt not consulted
	limiter    HostLimiter         // nil = no pacing
}

// NewFetcher creates a Fetcher from the HTTP section of the config
func NewFetcher(cfg model.HTTPConfig) *Fetcher {
	client := util.NewHTTPClient(cfg.Timeout, cfg.HTTPProxy, cfg.HTTPSProxy)
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 3 {
			return fmt.Errorf("stopped after 3 redirects")
		}
		return nil
	}
	f := &Fetcher{
		httpClient: client,
		userAgent:  cfg.UserAgent,
		maxBytes:   cfg.MaxBodyBytes,
	}
	if cfg.RespectRobots {
		f.robots = util.NewRobotsChecker(client, cfg.UserAgent)
	}
	return f
}

// WithLimiter paces downloads per host
func (f *Fetcher) WithLimiter(l HostLimiter) *Fetcher {
	f.limiter = l
	return f
}

// Payload is a raw HTTP response body
type Payload struct {
	Data        []byte
	ContentType string
	FinalURL    string
}

// Download retrieves the raw bytes at rawURL
func (f *Fetcher) Download(ctx context.Context, rawURL string) (*Payload, error) {
	if f.robots != nil {
		if allowed, err := f.robots.Allowed(ctx, rawURL); err == nil && !allowed {
			return nil, fmt.Errorf("%w: %s", ErrDisallowed, rawURL)
		}
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, rawURL); err != nil {
			return nil, fmt.Errorf("wait for host limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.maxBytes)
	}

	return &Payload{
		Data:        data,
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    resp.Request.URL.String(),
	}, nil
}

// FetchImage downloads and decodes the thumbnail at rawURL
func (f *Fetcher) FetchImage(ctx context.Context, rawURL string) (*FetchedImage, error) {
	payload, err := f.Download(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	img, format, err := phash.Decode(payload.Data)
	if err != nil {
		return nil, err
	}

	mime := "image/" + format
	if format == "" {
		mime, _, _ = strings.Cut(payload.ContentType, ";")
	}

	return &FetchedImage{
		Data:     payload.Data,
		MIMEType: strings.TrimSpace(mime),
		Format:   format,
		Image:    img,
		FinalURL: payload.FinalURL,
	}, nil
}
