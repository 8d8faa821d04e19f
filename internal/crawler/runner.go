package crawler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/freelance-crawler/internal/metrics"
	"github.com/JakeFAU/freelance-crawler/internal/site"
	"github.com/JakeFAU/freelance-crawler/internal/taxonomy"
	"github.com/JakeFAU/freelance-crawler/internal/traversal"
)

// Reference is the taxonomy surface the runner plans from.
type Reference interface {
	traversal.Countries
	Categories(siteName string) []taxonomy.Category
}

// RunConfig selects what one run crawls.
type RunConfig struct {
	// Sites lists site ids; empty means every registered site.
	Sites    []string
	Country  string
	Category string
	// Limit caps dispatched candidates across all sites; 0 is unlimited.
	Limit       int
	Shuffle     bool
	Concurrency int
	// Topic receives the run summary when a publisher is configured.
	Topic string
}

// Runner plans and runs one engine per selected site.
type Runner struct {
	registry  *site.Registry
	ref       Reference
	fetcher   Fetcher
	publisher Publisher
	clock     Clock
	ids       IDGenerator
	logger    *zap.Logger
}

// NewRunner wires a Runner. publisher may be nil.
func NewRunner(
	registry *site.Registry,
	ref Reference,
	fetcher Fetcher,
	publisher Publisher,
	clock Clock,
	ids IDGenerator,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		registry:  registry,
		ref:       ref,
		fetcher:   fetcher,
		publisher: publisher,
		clock:     clock,
		ids:       ids,
		logger:    logger,
	}
}

// Run crawls the selected sites concurrently, persisting through sink.
// Cancellation stops dispatch on every site; the summary still reports what
// was done.
func (r *Runner) Run(ctx context.Context, cfg RunConfig, sink RecordSink) (RunSummary, error) {
	sites, err := r.registry.Select(cfg.Sites)
	if err != nil {
		return RunSummary{}, fmt.Errorf("select sites: %w", err)
	}
	runID, err := r.ids.NewID()
	if err != nil {
		return RunSummary{}, fmt.Errorf("run id: %w", err)
	}
	logger := r.logger.With(zap.String("run_id", runID))
	summary := RunSummary{RunID: runID, StartedAt: r.clock.Now()}

	var ordering traversal.Ordering = traversal.Identity{}
	if cfg.Shuffle {
		ordering = traversal.NewShuffle(nil)
	}
	budget := NewBudget(cfg.Limit)

	stats := make([]Stats, len(sites))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range sites {
		cursor, ok := r.plan(s, cfg, ordering, logger)
		if !ok {
			stats[i] = Stats{Site: s.ID()}
			continue
		}
		engine := NewEngine(s, r.fetcher, sink, budget, cfg.Concurrency, logger)
		g.Go(func() error {
			st, err := engine.Run(gctx, cursor)
			stats[i] = st
			return err
		})
	}
	runErr := g.Wait()

	summary.Sites = stats
	summary.FinishedAt = r.clock.Now()
	status := "ok"
	if runErr != nil {
		status = "canceled"
		summary.Error = runErr.Error()
	}
	metrics.ObserveRun(status)
	logger.Info("crawl run finished",
		zap.String("status", status),
		zap.Int("dispatched", budget.Used()),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	r.publish(context.WithoutCancel(ctx), cfg.Topic, summary, logger)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return summary, runErr
	}
	return summary, nil
}

// plan builds the cursor for s. The boolean is false when the category
// override leaves nothing to crawl.
func (r *Runner) plan(s site.Site, cfg RunConfig, ordering traversal.Ordering, logger *zap.Logger) (*traversal.Cursor, bool) {
	logger = logger.With(zap.String("site", s.ID()))
	all := s.Categories(r.ref.Categories(s.Source().Name))
	categories, matched := traversal.FilterCategories(all, cfg.Category, ordering)
	if !matched {
		if adhoc, ok := s.AdHocCategory(cfg.Category); ok {
			logger.Info("category override matched nothing, searching ad hoc", zap.String("category", adhoc.Key))
			categories = []traversal.Category{adhoc}
		} else {
			logger.Warn("category override matched nothing, using default categories", zap.String("category", cfg.Category))
			categories = all
		}
	}
	locations := traversal.Locations(r.ref, cfg.Country, ordering, logger)
	cursor, err := traversal.NewCursor(categories, locations, logger)
	if err != nil {
		logger.Warn("empty traversal plan, skipping site",
			zap.Int("categories", len(categories)),
			zap.Int("locations", len(locations)),
			zap.Error(err),
		)
		return nil, false
	}
	return cursor, true
}

func (r *Runner) publish(ctx context.Context, topic string, summary RunSummary, logger *zap.Logger) {
	if r.publisher == nil {
		return
	}
	id, err := r.publisher.Publish(ctx, topic, summary)
	if err != nil {
		logger.Error("publish run summary failed", zap.Error(err))
		return
	}
	logger.Debug("run summary published", zap.String("message_id", id))
}
