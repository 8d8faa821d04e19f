// Package headless renders the marketplace pages that only fill in their
// freelancer rows and review cards client side.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/freelance-crawler/internal/crawler"
)

const (
	defaultNavTimeout = 45 * time.Second
	defaultSettle     = 500 * time.Millisecond
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	// MaxParallel bounds open tabs; 0 means unbounded.
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// DefaultWait is the settle time used when a request does not set one.
	DefaultWait time.Duration
	// ExecPath points at a Chrome binary; empty uses the chromedp lookup.
	ExecPath string
}

// Fetcher renders pages in tabs of one shared headless Chrome.
type Fetcher struct {
	cfg     Config
	tabs    *semaphore.Weighted
	browser context.Context
	stop    context.CancelFunc
}

// NewChromedp creates a headless fetcher backed by chromedp. Chrome itself
// starts on the first fetch.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("headless max parallel must be >= 0, got %d", cfg.MaxParallel)
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	if cfg.DefaultWait <= 0 {
		cfg.DefaultWait = defaultSettle
	}
	f := &Fetcher{cfg: cfg}
	if cfg.MaxParallel > 0 {
		f.tabs = semaphore.NewWeighted(int64(cfg.MaxParallel))
	}
	f.browser, f.stop = chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	return f, nil
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		// Thumbnails and portfolio pictures are read from src attributes.
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// Close shuts the browser down.
func (f *Fetcher) Close() {
	f.stop()
}

// Fetch opens request.URL in a new tab, lets scripts run for the settle
// time and returns the rendered DOM.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	if f.tabs != nil {
		if err := f.tabs.Acquire(ctx, 1); err != nil {
			return crawler.FetchResponse{}, fmt.Errorf("wait for headless tab: %w", err)
		}
		defer f.tabs.Release(1)
	}

	tab, closeTab := chromedp.NewContext(f.browser)
	defer closeTab()
	settle := f.settle(request)
	// Settling counts against the navigation budget.
	tab, cancel := context.WithTimeout(tab, f.cfg.NavigationTimeout+settle)
	defer cancel()
	defer context.AfterFunc(ctx, cancel)()

	doc := &document{}
	chromedp.ListenTarget(tab, doc.observe)

	start := time.Now()
	var html, location string
	err := chromedp.Run(tab,
		prepare(request.Headers),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settle),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return crawler.FetchResponse{}, fmt.Errorf("render %s: %w", request.URL, err)
	}
	return doc.response(request.URL, location, []byte(html), time.Since(start)), nil
}

// settle is how long scripts get to populate the page after body is ready.
// Sites ask for longer waits through the request.
func (f *Fetcher) settle(request crawler.FetchRequest) time.Duration {
	switch {
	case request.Wait > 0:
		return request.Wait
	case f.cfg.DefaultWait > 0:
		return f.cfg.DefaultWait
	default:
		return defaultSettle
	}
}

// prepare enables the network domain so the document response is observed
// and forwards request headers.
func prepare(headers http.Header) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network: %w", err)
		}
		if len(headers) == 0 {
			return nil
		}
		if err := network.SetExtraHTTPHeaders(networkHeaders(headers)).Do(ctx); err != nil {
			return fmt.Errorf("set extra headers: %w", err)
		}
		return nil
	})
}

// document records the main frame response. Its status is what tells a
// listing engine that a page number ran past the last page.
type document struct {
	mu     sync.Mutex
	status int
	url    string
	header http.Header
}

func (d *document) observe(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	header := httpHeaders(resp.Response.Headers)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = int(resp.Response.Status)
	d.url = resp.Response.URL
	d.header = header
}

// response builds the fetch result. Without an observed document response
// it falls back to the tab location and a 200.
func (d *document) response(requestURL, location string, body []byte, took time.Duration) crawler.FetchResponse {
	d.mu.Lock()
	defer d.mu.Unlock()

	url := d.url
	if url == "" {
		url = location
	}
	if url == "" {
		url = requestURL
	}
	status := d.status
	if status == 0 {
		status = http.StatusOK
	}
	header := d.header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", "text/html; charset=utf-8")
	}
	return crawler.FetchResponse{
		URL:          url,
		StatusCode:   status,
		Headers:      header,
		Body:         body,
		Duration:     took,
		UsedHeadless: true,
	}
}

func httpHeaders(src network.Headers) http.Header {
	out := make(http.Header, len(src))
	for key, value := range src {
		switch v := value.(type) {
		case string:
			out.Add(key, v)
		case []any:
			for _, entry := range v {
				out.Add(key, fmt.Sprint(entry))
			}
		default:
			out.Add(key, fmt.Sprint(v))
		}
	}
	return out
}

// networkHeaders folds repeated values into one comma separated value, the
// only shape the DevTools protocol accepts.
func networkHeaders(h http.Header) network.Headers {
	out := network.Headers{}
	for key, values := range h {
		if len(values) > 0 {
			out[key] = strings.Join(values, ", ")
		}
	}
	return out
}
