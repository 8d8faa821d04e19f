package headless

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/freelance-crawler/internal/crawler"
)

// ErrDisabled is returned when a rendered fetch is requested but headless
// Chrome is switched off in config.
var ErrDisabled = errors.New("headless fetcher disabled")

// Noop stands in for the chromedp fetcher when headless.enabled is false.
// Sites that need rendering then fail their fetches and are treated as
// exhausted.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch always fails with ErrDisabled. The error also matches
// crawler.ErrFetchFailed so the router does not retry it.
func (Noop) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	return crawler.FetchResponse{}, fmt.Errorf("render %s: %w: %w", req.URL, crawler.ErrFetchFailed, ErrDisabled)
}

// Close is a no-op.
func (Noop) Close() {}
