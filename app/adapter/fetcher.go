package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
	"golang.org/x/time/rate"
)

const (
	DefaultUserAgent    = "Mozilla/5.0 (compatible; EventFinder/1.0)"
	DefaultFetchTimeout = 15 * time.Second
	DefaultRetryCount   = 1
)

// PageFetcher retrieves one document by URL.
type PageFetcher interface {
	Get(ctx context.Context, url string) (Payload, error)
}

var _ PageFetcher = (*HTTPFetcher)(nil)

type FetcherOptions struct {
	UserAgent     string
	Timeout       time.Duration
	RetryCount    int
	RatePerSecond float64 // 0 disables rate limiting
}

type HTTPFetcher struct {
	client  *resty.Client
	limiter *rate.Limiter
}

func NewHTTPFetcher(opts FetcherOptions) *HTTPFetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultFetchTimeout
	}
	if opts.RetryCount < 0 {
		opts.RetryCount = 0
	}

	client := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", opts.UserAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml,application/json,text/calendar;q=0.9,*/*;q=0.8").
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return r != nil && (r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500)
		})

	f := &HTTPFetcher{client: client}
	if opts.RatePerSecond > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	}

	return f
}

func (f *HTTPFetcher) Get(ctx context.Context, url string) (Payload, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return Payload{}, fmt.Errorf("%w: %s: %v", ErrTransport, url, err)
		}
	}

	start := time.Now()
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %s: %v", ErrTransport, url, err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return Payload{}, fmt.Errorf("%w: HTTP %d: %s", ErrTransport, resp.StatusCode(), url)
	}

	contentType := resp.Header().Get("Content-Type")
	body, err := decodeBody(resp.Body(), contentType)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %s: %v", ErrTransport, url, err)
	}

	finalURL := url
	if resp.RawResponse != nil && resp.RawResponse.Request != nil && resp.RawResponse.Request.URL != nil {
		finalURL = resp.RawResponse.Request.URL.String()
	}

	slog.Debug("Page fetched", "url", finalURL, "status", resp.StatusCode(), "bytes", len(body), "duration", time.Since(start))

	return Payload{URL: finalURL, ContentType: contentType, Body: body}, nil
}

// decodeBody converts a body in a non-UTF-8 charset named by the
// Content-Type header to UTF-8.
func decodeBody(body []byte, contentType string) ([]byte, error) {
	if contentType == "" {
		return body, nil
	}

	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return body, nil
	}

	charset := strings.ToLower(strings.TrimSpace(params["charset"]))
	if charset == "" || charset == "utf-8" || charset == "utf8" {
		return body, nil
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		slog.Debug("Unknown charset, using body as-is", "charset", charset)
		return body, nil
	}

	decoded, _, err := transform.Bytes(enc.NewDecoder(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s body: %w", charset, err)
	}

	return decoded, nil
}
