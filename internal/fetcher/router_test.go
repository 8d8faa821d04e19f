package fetcher

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/freelance-crawler/internal/crawler"
	"github.com/JakeFAU/freelance-crawler/internal/fetcher/headless"
)

type scriptedFetcher struct {
	mu        sync.Mutex
	responses []crawler.FetchResponse
	errs      []error
	calls     int
}

func (s *scriptedFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	resp := s.responses[i]
	resp.URL = req.URL
	return resp, s.errs[i]
}

type countingWaiter struct{ n int }

func (w *countingWaiter) Wait(context.Context, string) error {
	w.n++
	return nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func html(code int) crawler.FetchResponse {
	return crawler.FetchResponse{
		StatusCode: code,
		Headers:    http.Header{"Content-Type": {"text/html"}},
		Body:       []byte("<html></html>"),
	}
}

func TestRouterPicksFetcherByRenderFlag(t *testing.T) {
	t.Parallel()

	static := &scriptedFetcher{responses: []crawler.FetchResponse{html(200)}, errs: []error{nil}}
	rendered := &scriptedFetcher{responses: []crawler.FetchResponse{html(200)}, errs: []error{nil}}
	waiter := &countingWaiter{}
	r := NewRouter(static, rendered, waiter, nil, nil)

	_, err := r.Fetch(context.Background(), crawler.FetchRequest{URL: "https://www.peopleperhour.com/hire-freelancers"})
	require.NoError(t, err)
	_, err = r.Fetch(context.Background(), crawler.FetchRequest{URL: "https://www.truelancer.com/freelancers", RenderJS: true})
	require.NoError(t, err)

	assert.Equal(t, 1, static.calls)
	assert.Equal(t, 1, rendered.calls)
	assert.Equal(t, 2, waiter.n)
}

func TestRouterRetriesServerErrors(t *testing.T) {
	t.Parallel()

	static := &scriptedFetcher{
		responses: []crawler.FetchResponse{html(503), {}, html(200)},
		errs:      []error{nil, errors.New("connection reset"), nil},
	}
	r := NewRouter(static, nil, nil, crawler.NewExponentialRetryPolicy(3, time.Millisecond, time.Millisecond), nil)
	r.sleep = noSleep

	resp, err := r.Fetch(context.Background(), crawler.FetchRequest{URL: "https://x.example.com"})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 3, static.calls)
}

func TestRouterReturnsNotFoundWithoutRetry(t *testing.T) {
	t.Parallel()

	static := &scriptedFetcher{responses: []crawler.FetchResponse{html(404)}, errs: []error{nil}}
	r := NewRouter(static, nil, nil, crawler.NewExponentialRetryPolicy(3, time.Millisecond, time.Millisecond), nil)
	r.sleep = noSleep

	resp, err := r.Fetch(context.Background(), crawler.FetchRequest{URL: "https://x.example.com"})
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, 1, static.calls)
}

func TestRouterGivesUpOnTransportErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("dial tcp: refused")
	static := &scriptedFetcher{responses: []crawler.FetchResponse{{}}, errs: []error{boom}}
	r := NewRouter(static, nil, nil, crawler.NewExponentialRetryPolicy(2, time.Millisecond, time.Millisecond), nil)
	r.sleep = noSleep

	_, err := r.Fetch(context.Background(), crawler.FetchRequest{URL: "https://x.example.com"})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 2, static.calls)
}

func TestRouterMissingRenderer(t *testing.T) {
	t.Parallel()

	r := NewRouter(&scriptedFetcher{}, nil, nil, nil, nil)
	_, err := r.Fetch(context.Background(), crawler.FetchRequest{URL: "https://x.example.com", RenderJS: true})
	assert.ErrorIs(t, err, crawler.ErrFetchFailed)
}

type countingFetcher struct {
	next  crawler.Fetcher
	calls int
}

func (c *countingFetcher) Fetch(ctx context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	c.calls++
	return c.next.Fetch(ctx, req)
}

func TestRouterDoesNotRetryDisabledRenderer(t *testing.T) {
	t.Parallel()

	rendered := &countingFetcher{next: headless.NewNoop()}
	r := NewRouter(&scriptedFetcher{}, rendered, nil, crawler.NewExponentialRetryPolicy(3, time.Millisecond, time.Millisecond), nil)
	r.sleep = noSleep

	_, err := r.Fetch(context.Background(), crawler.FetchRequest{URL: "https://www.freelancer.com/freelancers/france/php", RenderJS: true})
	require.ErrorIs(t, err, headless.ErrDisabled)
	assert.Equal(t, 1, rendered.calls)
}

type promoteIf func(crawler.FetchResponse) bool

func (p promoteIf) ShouldPromote(resp crawler.FetchResponse) bool { return p(resp) }

func TestRouterPromotesUnrenderedStaticPages(t *testing.T) {
	t.Parallel()

	shell := html(http.StatusOK)
	shell.Body = []byte(`<app-root></app-root>`)
	static := &scriptedFetcher{responses: []crawler.FetchResponse{shell}, errs: []error{nil}}
	rendered := &scriptedFetcher{responses: []crawler.FetchResponse{html(http.StatusOK)}, errs: []error{nil}}
	isShell := promoteIf(func(resp crawler.FetchResponse) bool { return string(resp.Body) == `<app-root></app-root>` })
	r := NewRouter(static, rendered, nil, nil, nil, WithPromoter(isShell))

	resp, err := r.Fetch(context.Background(), crawler.FetchRequest{URL: "https://www.peopleperhour.com/hire-freelancers"})
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(resp.Body))
	assert.Equal(t, 1, static.calls)
	assert.Equal(t, 1, rendered.calls)

	// Rendered requests are never promoted twice.
	_, err = r.Fetch(context.Background(), crawler.FetchRequest{URL: "https://www.freelancer.com/u/jane", RenderJS: true})
	require.NoError(t, err)
	assert.Equal(t, 1, static.calls)
	assert.Equal(t, 2, rendered.calls)
}

func TestRouterKeepsStaticPageWhenNotPromoted(t *testing.T) {
	t.Parallel()

	static := &scriptedFetcher{responses: []crawler.FetchResponse{html(http.StatusOK)}, errs: []error{nil}}
	rendered := &scriptedFetcher{responses: []crawler.FetchResponse{html(http.StatusOK)}, errs: []error{nil}}
	never := promoteIf(func(crawler.FetchResponse) bool { return false })
	r := NewRouter(static, rendered, nil, nil, nil, WithPromoter(never))

	_, err := r.Fetch(context.Background(), crawler.FetchRequest{URL: "https://www.peopleperhour.com/freelancer/x"})
	require.NoError(t, err)
	assert.Zero(t, rendered.calls)
}
