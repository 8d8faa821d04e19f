package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/freelance-crawler/internal/crawler"
)

func TestFetchReturnsBodyAndStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "freelance-crawler-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "en", r.Header.Get("Accept-Language"))
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{UserAgent: "freelance-crawler-test", Timeout: time.Second})
	req := crawler.FetchRequest{URL: srv.URL + "/hire", Headers: http.Header{"Accept-Language": {"en"}}}

	resp, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.True(t, resp.IsHTML())
	assert.Contains(t, string(resp.Body), "ok")
	assert.False(t, resp.UsedHeadless)

	// Same URL twice: retries must not be rejected as revisits.
	_, err = f.Fetch(context.Background(), req)
	require.NoError(t, err)

	missing, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/missing", Headers: req.Headers})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
	assert.False(t, missing.OK())
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { <-block }))
	t.Cleanup(func() {
		close(block)
		srv.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := New(Config{Timeout: 5 * time.Second}).Fetch(ctx, crawler.FetchRequest{URL: srv.URL})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	req := crawler.FetchRequest{
		URL:     "https://www.peopleperhour.com/hire-freelancers",
		Headers: http.Header{"X-Trace": {"yes"}},
	}
	var result crawler.FetchResponse
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, time.Unix(0, 0), &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	assert.Equal(t, "yes", collyReq.Headers.Get("X-Trace"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request:    &colly.Request{URL: mustParseURL(t, req.URL)},
	})
	assert.Equal(t, http.StatusCreated, result.StatusCode)
	assert.Equal(t, "body", string(result.Body))
	assert.Equal(t, "ok", result.Headers.Get("X-Resp"))

	hooks.onError(nil, errors.New("boom"))
	assert.EqualError(t, fetchErr, "boom")
}

func TestCopyHeadersHandlesNil(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	collyReq := &colly.Request{Headers: &http.Header{}}
	f.copyHeaders(crawler.FetchRequest{}, collyReq)
	assert.Empty(t, *collyReq.Headers)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
