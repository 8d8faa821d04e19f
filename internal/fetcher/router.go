// Package fetcher routes crawl requests to the static or rendering fetcher,
// applying per-host rate limits and retries on the way.
package fetcher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/freelance-crawler/internal/crawler"
	"github.com/JakeFAU/freelance-crawler/internal/metrics"
)

// Waiter blocks until the URL's host may be fetched again.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Promoter decides whether a static response must be fetched again with
// rendering.
type Promoter interface {
	ShouldPromote(resp crawler.FetchResponse) bool
}

// Router implements crawler.Fetcher over a static and a rendering fetcher.
type Router struct {
	static   crawler.Fetcher
	rendered crawler.Fetcher
	limiter  Waiter
	retry    crawler.RetryPolicy
	promoter Promoter
	logger   *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// RouterOption customizes a Router.
type RouterOption func(*Router)

// WithPromoter re-fetches static responses that p flags through the
// rendering fetcher.
func WithPromoter(p Promoter) RouterOption {
	return func(r *Router) { r.promoter = p }
}

// NewRouter builds a Router. limiter and retry may be nil.
func NewRouter(
	static, rendered crawler.Fetcher,
	limiter Waiter,
	retry crawler.RetryPolicy,
	logger *zap.Logger,
	opts ...RouterOption,
) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		static:   static,
		rendered: rendered,
		limiter:  limiter,
		retry:    retry,
		logger:   logger,
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fetch picks the fetcher for request.RenderJS and retries transient
// failures. A response with an error status is returned without an error
// once retries are spent; the caller decides what a 404 means.
func (r *Router) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	f := r.static
	if request.RenderJS {
		f = r.rendered
	}
	if f == nil {
		return crawler.FetchResponse{}, fmt.Errorf("no fetcher for %s (render=%t): %w", request.URL, request.RenderJS, crawler.ErrFetchFailed)
	}

	resp, err := r.fetchWith(ctx, f, request)
	if err != nil || request.RenderJS || r.promoter == nil || r.rendered == nil || !r.promoter.ShouldPromote(resp) {
		return resp, err
	}
	r.logger.Info("static response looks unrendered, promoting to headless", zap.String("url", request.URL))
	metrics.ObservePromotion(metrics.SanitizeHost(request.URL))
	request.RenderJS = true
	return r.fetchWith(ctx, r.rendered, request)
}

func (r *Router) fetchWith(ctx context.Context, f crawler.Fetcher, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	for attempt := 1; ; attempt++ {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx, request.URL); err != nil {
				return crawler.FetchResponse{}, err
			}
		}
		resp, err := f.Fetch(ctx, request)
		retryErr := err
		if err == nil && !resp.OK() {
			retryErr = &crawler.StatusError{URL: request.URL, Code: resp.StatusCode}
		}
		if err == nil {
			metrics.ObserveBytes(request.URL, len(resp.Body))
		}
		if retryErr == nil || r.retry == nil || !r.retry.ShouldRetry(retryErr, attempt) {
			if err != nil {
				return crawler.FetchResponse{}, fmt.Errorf("fetch %s: %w", request.URL, err)
			}
			return resp, nil
		}

		delay := r.retry.Backoff(attempt)
		r.logger.Debug("retrying fetch",
			zap.String("url", request.URL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(retryErr),
		)
		if err := r.sleep(ctx, delay); err != nil {
			return crawler.FetchResponse{}, err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry backoff canceled: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}
