// Package app initializes and holds long-lived application services, acting
// as the dependency injection container shared by every command.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/freelance-crawler/internal/clock/system"
	"github.com/JakeFAU/freelance-crawler/internal/config"
	"github.com/JakeFAU/freelance-crawler/internal/crawler"
	"github.com/JakeFAU/freelance-crawler/internal/fetcher"
	collyfetcher "github.com/JakeFAU/freelance-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/freelance-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/freelance-crawler/internal/hash/sha256"
	"github.com/JakeFAU/freelance-crawler/internal/headless/detector"
	"github.com/JakeFAU/freelance-crawler/internal/id/uuid"
	"github.com/JakeFAU/freelance-crawler/internal/output/jsonl"
	"github.com/JakeFAU/freelance-crawler/internal/policy/ratelimit"
	publishermemory "github.com/JakeFAU/freelance-crawler/internal/publisher/memory"
	"github.com/JakeFAU/freelance-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/freelance-crawler/internal/record"
	"github.com/JakeFAU/freelance-crawler/internal/sink"
	"github.com/JakeFAU/freelance-crawler/internal/site"
	"github.com/JakeFAU/freelance-crawler/internal/site/freelancer"
	"github.com/JakeFAU/freelance-crawler/internal/site/peopleperhour"
	"github.com/JakeFAU/freelance-crawler/internal/site/truelancer"
	"github.com/JakeFAU/freelance-crawler/internal/storage/gcs"
	"github.com/JakeFAU/freelance-crawler/internal/storage/local"
	"github.com/JakeFAU/freelance-crawler/internal/store"
	storememory "github.com/JakeFAU/freelance-crawler/internal/store/memory"
	"github.com/JakeFAU/freelance-crawler/internal/store/mongo"
	"github.com/JakeFAU/freelance-crawler/internal/store/postgres"
	"github.com/JakeFAU/freelance-crawler/internal/taxonomy"
)

// App holds all the shared, long-lived services for the application.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	clock    crawler.Clock
	ids      *uuid.Generator
	taxonomy *taxonomy.Taxonomy
	registry *site.Registry
	store    store.Store

	// Crawl services are built on first use; serve and stats never need them.
	mu        sync.Mutex
	fetcher   crawler.Fetcher
	publisher crawler.Publisher
	exporter  crawler.BlobStore
	runner    *crawler.Runner
	closers   []func(context.Context) error
}

// Option overrides a service, mainly for tests.
type Option func(*App)

// WithStore replaces the configured store backend.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithFetcher replaces the colly/chromedp fetch stack.
func WithFetcher(f crawler.Fetcher) Option {
	return func(a *App) { a.fetcher = f }
}

// WithPublisher replaces the run summary publisher.
func WithPublisher(p crawler.Publisher) Option {
	return func(a *App) { a.publisher = p }
}

// WithExporter replaces the JSONL export target.
func WithExporter(b crawler.BlobStore) Option {
	return func(a *App) { a.exporter = b }
}

// WithClock replaces the system clock.
func WithClock(c crawler.Clock) Option {
	return func(a *App) { a.clock = c }
}

// New loads the reference data and opens the store. Missing or malformed
// reference files are fatal.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
		ids:    uuid.New(),
	}
	for _, opt := range opts {
		opt(a)
	}

	tax, err := taxonomy.Load(taxonomy.Paths{
		Dir:           cfg.Taxonomy.Dir,
		Countries:     cfg.Taxonomy.Countries,
		Sources:       cfg.Taxonomy.Sources,
		FilterMapping: cfg.Taxonomy.FilterMapping,
	})
	if err != nil {
		return nil, fmt.Errorf("load taxonomy: %w", err)
	}
	a.taxonomy = tax
	a.registry = site.NewRegistry(
		freelancer.New(tax, a.clock),
		peopleperhour.New(tax, a.clock),
		truelancer.New(tax, a.clock),
	)

	if a.store == nil {
		st, err := openStore(ctx, cfg.Store, a.ids)
		if err != nil {
			return nil, err
		}
		a.store = st
	}
	a.closers = append(a.closers, a.store.Close)

	logger.Info("application services initialized",
		zap.String("store", cfg.Store.Backend),
		zap.Int("countries", len(tax.Countries())),
		zap.Strings("sites", a.registry.IDs()),
	)
	return a, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig, ids store.IDGenerator) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return storememory.New(ids), nil
	case config.BackendMongo:
		st, err := mongo.New(ctx, mongo.Config{
			URI:            cfg.Mongo.URI,
			Database:       cfg.Mongo.Database,
			ConnectTimeout: time.Duration(cfg.Mongo.ConnectTimeoutSeconds) * time.Second,
		}, ids)
		if err != nil {
			return nil, fmt.Errorf("open mongo store: %w", err)
		}
		return st, nil
	case config.BackendPostgres:
		st, err := postgres.New(ctx, postgres.Config{
			DSN:         cfg.Postgres.DSN,
			TablePrefix: cfg.Postgres.TablePrefix,
			MaxConns:    cfg.Postgres.MaxConns,
			MinConns:    cfg.Postgres.MinConns,
		}, ids)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store returns the record store.
func (a *App) Store() store.Store { return a.store }

// Taxonomy returns the reference data.
func (a *App) Taxonomy() *taxonomy.Taxonomy { return a.taxonomy }

// Registry returns the registered sites.
func (a *App) Registry() *site.Registry { return a.registry }

// Runner builds the crawl services on first use.
func (a *App) Runner(ctx context.Context) (*crawler.Runner, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runner != nil {
		return a.runner, nil
	}
	if a.fetcher == nil {
		f, err := a.newFetcher()
		if err != nil {
			return nil, err
		}
		a.fetcher = f
	}
	if a.publisher == nil {
		p, err := a.newPublisher(ctx)
		if err != nil {
			return nil, err
		}
		a.publisher = p
	}
	if a.exporter == nil {
		e, err := a.newExporter(ctx)
		if err != nil {
			return nil, err
		}
		a.exporter = e
	}
	a.runner = crawler.NewRunner(a.registry, a.taxonomy, a.fetcher, a.publisher, a.clock, a.ids, a.logger)
	return a.runner, nil
}

func (a *App) newFetcher() (crawler.Fetcher, error) {
	static := collyfetcher.New(collyfetcher.Config{
		UserAgent: a.cfg.Crawler.UserAgent,
		Timeout:   a.cfg.FetchTimeout(),
	})
	var rendered crawler.Fetcher = headless.NewNoop()
	if a.cfg.Headless.Enabled {
		hf, err := headless.NewChromedp(headless.Config{
			MaxParallel:       a.cfg.Headless.MaxParallel,
			UserAgent:         a.cfg.Crawler.UserAgent,
			NavigationTimeout: time.Duration(a.cfg.Headless.NavTimeoutSec) * time.Second,
			DefaultWait:       time.Duration(a.cfg.Headless.WaitMs) * time.Millisecond,
			ExecPath:          a.cfg.Headless.ExecPath,
		})
		if err != nil {
			return nil, fmt.Errorf("init headless fetcher: %w", err)
		}
		rendered = hf
		a.closers = append(a.closers, func(context.Context) error {
			hf.Close()
			return nil
		})
	} else {
		a.logger.Warn("headless rendering disabled; sites that need it will fetch nothing")
	}
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   a.cfg.Crawler.RPS,
		DefaultBurst: a.cfg.Crawler.Burst,
		HostRPS:      a.cfg.Crawler.HostRPS(),
	})
	retry := crawler.NewExponentialRetryPolicy(
		a.cfg.HTTP.MaxRetries+1,
		time.Duration(a.cfg.HTTP.BackoffInitialMs)*time.Millisecond,
		time.Duration(a.cfg.HTTP.BackoffMaxMs)*time.Millisecond,
	)
	var opts []fetcher.RouterOption
	if a.cfg.Headless.Enabled && a.cfg.Headless.Promote {
		opts = append(opts, fetcher.WithPromoter(
			detector.NewHeuristic(a.cfg.Headless.PromoteTextThreshold, a.cfg.Headless.PromoteMarkers...),
		))
	}
	return fetcher.NewRouter(static, rendered, limiter, retry, a.logger, opts...), nil
}

func (a *App) newPublisher(ctx context.Context) (crawler.Publisher, error) {
	if a.cfg.PubSub.ProjectID == "" {
		a.logger.Info("pubsub not configured; run summaries stay in memory")
		return publishermemory.New(), nil
	}
	p, err := pubsub.Dial(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.Topic)
	if err != nil {
		return nil, fmt.Errorf("init pubsub publisher: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return p.Close() })
	return p, nil
}

// newExporter returns nil when no export provider is configured.
func (a *App) newExporter(ctx context.Context) (crawler.BlobStore, error) {
	switch a.cfg.Export.Provider {
	case config.ExportGCS:
		bs, err := gcs.Dial(ctx, gcs.Config{Bucket: a.cfg.Export.Bucket, Prefix: a.cfg.Export.Prefix})
		if err != nil {
			return nil, fmt.Errorf("init gcs exporter: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return bs.Close() })
		return bs, nil
	case config.ExportLocal:
		bs, err := local.New(local.Config{BaseDir: a.cfg.Export.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("init local exporter: %w", err)
		}
		return bs, nil
	default:
		return nil, nil
	}
}

// CrawlOptions are one crawl's parameters.
type CrawlOptions struct {
	crawler.RunConfig
	// Output is config.OutputStore or config.OutputJSONL.
	Output string
}

// CrawlResult reports a finished crawl.
type CrawlResult struct {
	Summary crawler.RunSummary
	// File is the JSONL file written, and ExportURI where it was uploaded.
	File      string
	Lines     int
	ExportURI string
	// SHA256 is the hex digest of the exported file.
	SHA256 string
}

// DefaultCrawlOptions fills run parameters from configuration.
func (a *App) DefaultCrawlOptions() CrawlOptions {
	return CrawlOptions{
		RunConfig: crawler.RunConfig{
			Sites:       a.cfg.Crawler.Sites,
			Limit:       a.cfg.Crawler.Limit,
			Shuffle:     a.cfg.Crawler.Shuffle,
			Concurrency: a.cfg.Crawler.Concurrency,
			Topic:       a.cfg.PubSub.Topic,
		},
		Output: a.cfg.Output.Mode,
	}
}

// Crawl runs the selected sites into the store or a JSONL file.
func (a *App) Crawl(ctx context.Context, opts CrawlOptions) (CrawlResult, error) {
	if err := config.ValidateOutput(opts.Output); err != nil {
		return CrawlResult{}, err
	}
	runner, err := a.Runner(ctx)
	if err != nil {
		return CrawlResult{}, err
	}
	normalizer := record.NewNormalizer(a.clock)

	if opts.Output == config.OutputStore {
		summary, err := runner.Run(ctx, opts.RunConfig, sink.New(a.store, normalizer, a.logger))
		return CrawlResult{Summary: summary}, err
	}

	w, err := jsonl.Create(a.cfg.Output.Dir, a.clock.Now(), a.ids, a.taxonomy)
	if err != nil {
		return CrawlResult{}, err
	}
	summary, runErr := runner.Run(ctx, opts.RunConfig, sink.New(w, normalizer, a.logger))
	res := CrawlResult{Summary: summary, File: w.Path(), Lines: w.Lines()}
	if err := w.Close(); err != nil {
		return res, errors.Join(runErr, fmt.Errorf("close %s: %w", w.Path(), err))
	}
	if runErr != nil {
		return res, runErr
	}
	if a.exporter == nil {
		return res, nil
	}
	res.ExportURI, res.SHA256, err = a.export(context.WithoutCancel(ctx), res.File)
	return res, err
}

// export uploads file and returns its URI and digest.
func (a *App) export(ctx context.Context, file string) (string, string, error) {
	f, err := os.Open(file) //nolint:gosec // path is produced by the jsonl writer
	if err != nil {
		return "", "", fmt.Errorf("open export %s: %w", file, err)
	}
	defer f.Close() //nolint:errcheck // read-only
	body := sha256.NewReader(f)
	uri, err := a.exporter.PutObject(ctx, filepath.Base(file), "application/x-ndjson", body)
	if err != nil {
		return "", "", fmt.Errorf("export %s: %w", file, err)
	}
	a.logger.Info("crawl output exported",
		zap.String("uri", uri),
		zap.Int64("bytes", body.Size()),
		zap.String("sha256", body.Sum()),
	)
	return uri, body.Sum(), nil
}

// FixtureResult counts reference documents written by LoadFixtures.
type FixtureResult struct {
	Countries int
	Sources   int
}

// LoadFixtures seeds countries and sources into empty collections and
// ensures the store's indexes. Collections that already hold documents are
// left alone.
func (a *App) LoadFixtures(ctx context.Context) (FixtureResult, error) {
	var res FixtureResult
	if err := a.store.EnsureIndexes(ctx); err != nil {
		return res, fmt.Errorf("ensure indexes: %w", err)
	}

	n, err := a.store.Count(ctx, record.KindCountry)
	if err != nil {
		return res, fmt.Errorf("count countries: %w", err)
	}
	if n == 0 {
		countries := a.taxonomy.Countries()
		if err := a.store.InsertCountries(ctx, countries); err != nil {
			return res, fmt.Errorf("insert countries: %w", err)
		}
		res.Countries = len(countries)
	} else {
		a.logger.Info("countries already loaded", zap.Int64("count", n))
	}

	n, err = a.store.Count(ctx, record.KindSource)
	if err != nil {
		return res, fmt.Errorf("count sources: %w", err)
	}
	if n == 0 {
		for _, src := range a.taxonomy.Sources() {
			if err := a.store.InsertSource(ctx, &src); err != nil {
				return res, fmt.Errorf("insert source %s: %w", src.Name, err)
			}
			res.Sources++
		}
	} else {
		a.logger.Info("sources already loaded", zap.Int64("count", n))
	}

	a.logger.Info("fixtures loaded", zap.Int("countries", res.Countries), zap.Int("sources", res.Sources))
	return res, nil
}

// ImportResult counts records imported per kind.
type ImportResult map[record.Kind]int

// Import upserts every record of a JSONL stream into the store. A record
// that fails to persist aborts the import with its line number.
func (a *App) Import(ctx context.Context, r io.Reader) (ImportResult, error) {
	s := sink.New(a.store, record.NewNormalizer(a.clock), a.logger)
	res := make(ImportResult)
	err := jsonl.ReadAll(r, func(line int, raw map[string]any) error {
		kind, err := s.UpsertRaw(ctx, raw)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		res[kind]++
		return nil
	})
	return res, err
}

// Close shuts services down in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error closing application services", zap.Error(err))
		return err
	}
	return nil
}
