package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/freelance-crawler/internal/metrics"
	"github.com/JakeFAU/freelance-crawler/internal/record"
	"github.com/JakeFAU/freelance-crawler/internal/site"
	"github.com/JakeFAU/freelance-crawler/internal/traversal"
)

const defaultEnrichConcurrency = 4

// Engine crawls one site: it walks the cursor, fetches each listing page and
// enriches the candidates it finds.
type Engine struct {
	site        site.Site
	fetcher     Fetcher
	sink        RecordSink
	budget      *Budget
	concurrency int64
	logger      *zap.Logger
}

// NewEngine builds an engine for s. concurrency bounds in-flight profile
// enrichments; non-positive values fall back to 4.
func NewEngine(s site.Site, fetcher Fetcher, sink RecordSink, budget *Budget, concurrency int, logger *zap.Logger) *Engine {
	if concurrency <= 0 {
		concurrency = defaultEnrichConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		site:        s,
		fetcher:     fetcher,
		sink:        sink,
		budget:      budget,
		concurrency: int64(concurrency),
		logger:      logger.With(zap.String("site", s.ID())),
	}
}

type counters struct {
	listingPages    atomic.Int64
	failedListings  atomic.Int64
	candidates      atomic.Int64
	freelancers     atomic.Int64
	reviews         atomic.Int64
	services        atomic.Int64
	detailFailures  atomic.Int64
	persistFailures atomic.Int64
}

func (c *counters) snapshot(siteID string) Stats {
	return Stats{
		Site:            siteID,
		ListingPages:    int(c.listingPages.Load()),
		FailedListings:  int(c.failedListings.Load()),
		Candidates:      int(c.candidates.Load()),
		Freelancers:     int(c.freelancers.Load()),
		Reviews:         int(c.reviews.Load()),
		Services:        int(c.services.Load()),
		DetailFailures:  int(c.detailFailures.Load()),
		PersistFailures: int(c.persistFailures.Load()),
	}
}

// Run walks cursor until every pair is exhausted, the budget runs out or ctx
// is canceled. In-flight enrichments always drain before Run returns. The
// returned error is only ever the context's.
func (e *Engine) Run(ctx context.Context, cursor *traversal.Cursor) (Stats, error) {
	start := time.Now()
	var (
		c       counters
		wg      sync.WaitGroup
		sem     = semaphore.NewWeighted(e.concurrency)
		reached bool
	)

	target := cursor.Start()
	e.logger.Info("site crawl started", zap.Int("pairs", cursor.Pairs()))

walk:
	for ctx.Err() == nil {
		if e.budget.Exhausted() {
			reached = true
			break
		}
		listing := e.listing(ctx, target, &c)
		for _, cand := range listing.Candidates {
			if !e.budget.Take() {
				reached = true
				break walk
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				break walk
			}
			c.candidates.Add(1)
			wg.Add(1)
			go func(cand site.Candidate) {
				defer wg.Done()
				defer sem.Release(1)
				metrics.IncActiveEnrichments()
				defer metrics.DecActiveEnrichments()
				// Enrichment outlives cancellation so accepted work is persisted.
				e.enrich(context.WithoutCancel(ctx), cand, &c)
			}(cand)
		}
		next, more := cursor.Next(target, listing.Outcome())
		if !more {
			break
		}
		target = next
	}
	wg.Wait()

	stats := c.snapshot(e.site.ID())
	stats.BudgetReached = reached
	stats.Duration = time.Since(start)
	e.logger.Info("site crawl finished",
		zap.Int("listing_pages", stats.ListingPages),
		zap.Int("candidates", stats.Candidates),
		zap.Int("freelancers", stats.Freelancers),
		zap.Int("persist_failures", stats.PersistFailures),
		zap.Bool("budget_reached", reached),
		zap.Duration("duration", stats.Duration),
	)
	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("crawl %s: %w", e.site.ID(), err)
	}
	return stats, nil
}

// listing fetches and extracts one listing page. Any failure yields an empty
// listing, which the cursor treats as an exhausted pair.
func (e *Engine) listing(ctx context.Context, t traversal.Target, c *counters) site.Listing {
	url := e.site.ListingURL(t)
	page, err := e.fetchPage(ctx, url, true)
	if err != nil {
		c.failedListings.Add(1)
		metrics.ObservePage(e.site.ID(), "listing", "error")
		if !errors.Is(err, context.Canceled) {
			e.logger.Warn("listing fetch failed",
				zap.String("target", t.String()),
				zap.String("url", url),
				zap.Error(err),
			)
		}
		return site.Listing{}
	}
	c.listingPages.Add(1)
	metrics.ObservePage(e.site.ID(), "listing", "ok")
	listing := e.site.ExtractListing(page, t)
	e.logger.Debug("listing extracted",
		zap.String("target", t.String()),
		zap.Int("candidates", len(listing.Candidates)),
		zap.Bool("has_next", listing.HasNext),
	)
	return listing
}

func (e *Engine) enrich(ctx context.Context, cand site.Candidate, c *counters) {
	var result site.Enrichment
	page, err := e.fetchPage(ctx, cand.Freelancer.URL, false)
	if err != nil {
		c.detailFailures.Add(1)
		metrics.ObservePage(e.site.ID(), "detail", "error")
		e.logger.Warn("profile fetch failed, keeping listing data",
			zap.String("url", cand.Freelancer.URL),
			zap.Error(err),
		)
		result = site.Enrichment{Freelancer: cand.Freelancer}
	} else {
		metrics.ObservePage(e.site.ID(), "detail", "ok")
		result = e.site.EnrichDetail(page, cand)
	}

	if !e.persist(ctx, &result.Freelancer, c) {
		return
	}
	c.freelancers.Add(1)
	for i := range result.Reviews {
		if e.persist(ctx, &result.Reviews[i], c) {
			c.reviews.Add(1)
		}
	}
	for i := range result.Services {
		if e.persist(ctx, &result.Services[i], c) {
			c.services.Add(1)
		}
	}
}

func (e *Engine) persist(ctx context.Context, rec record.Record, c *counters) bool {
	kind := string(rec.Kind())
	if err := e.sink.Upsert(ctx, rec); err != nil {
		c.persistFailures.Add(1)
		metrics.ObserveRecord(e.site.ID(), kind, "error")
		e.logger.Error("persist record failed", zap.String("kind", kind), zap.Error(err))
		return false
	}
	metrics.ObserveRecord(e.site.ID(), kind, "ok")
	return true
}

// fetchPage fetches url and parses it. Listing extractors see 404 pages
// since some sites end pagination that way.
func (e *Engine) fetchPage(ctx context.Context, url string, allowNotFound bool) (*site.Page, error) {
	opts := e.site.FetchOptions()
	resp, err := e.fetcher.Fetch(ctx, FetchRequest{URL: url, RenderJS: opts.RenderJS, Wait: opts.Wait})
	if err != nil {
		return nil, err
	}
	if !resp.OK() && !(allowNotFound && resp.StatusCode == http.StatusNotFound) {
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}
	if !resp.IsHTML() {
		return nil, fmt.Errorf("%s is not html: %w", url, ErrFetchFailed)
	}
	page, err := site.NewPage(url, resp.StatusCode, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	return page, nil
}
