package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"
)

var _ PageFetcher = (*BrowserFetcher)(nil)

// BrowserFetcher renders pages in headless Chromium. It serves sources that
// reject plain HTTP clients or build their listings with JavaScript.
type BrowserFetcher struct {
	userAgent string
	timeout   time.Duration
}

func NewBrowserFetcher(userAgent string, timeout time.Duration) *BrowserFetcher {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &BrowserFetcher{userAgent: userAgent, timeout: timeout}
}

func (f *BrowserFetcher) Get(ctx context.Context, url string) (Payload, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(f.userAgent),
		chromedp.NoSandbox,
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, f.timeout)
	defer cancelTimeout()

	start := time.Now()
	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: browser fetch %s: %v", ErrTransport, url, err)
	}

	slog.Debug("Page rendered", "url", url, "bytes", len(html), "duration", time.Since(start))

	return Payload{URL: url, ContentType: "text/html; charset=utf-8", Body: []byte(html)}, nil
}
