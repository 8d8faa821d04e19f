// Package app_test contains unit tests for the app package.
package app_test

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/freelance-crawler/internal/app"
	"github.com/JakeFAU/freelance-crawler/internal/config"
	"github.com/JakeFAU/freelance-crawler/internal/crawler"
	"github.com/JakeFAU/freelance-crawler/internal/hash/sha256"
	publishermemory "github.com/JakeFAU/freelance-crawler/internal/publisher/memory"
	"github.com/JakeFAU/freelance-crawler/internal/record"
	storagememory "github.com/JakeFAU/freelance-crawler/internal/storage/memory"
	"github.com/JakeFAU/freelance-crawler/internal/store"
)

const (
	listingURL = "https://www.freelancer.com/freelancers/france/php"
	janeURL    = "https://www.freelancer.com/u/jane"
)

const listingHTML = `<html><body><ul>
<li class="ns_result">
  <a class="freelancer-profile-wrapper" href="/u/jane"></a>
  <a class="find-freelancer-username">Jane Doe</a>
  <span class="Rating-review">4.5 (12 reviews)</span>
  <span class="freelancer-hourlyrate" data-hourlyrate="$25/hr"></span>
  <div class="top-skills"><a>PHP</a><a>Laravel</a></div>
</li>
<li class="ns_result">
  <a class="freelancer-profile-wrapper" href="/u/bob"></a>
  <a class="find-freelancer-username">Bob</a>
</li>
</ul></body></html>`

const profileHTML = `<html><body>
<h3 class="Username-displayName">Jane D.</h3>
<fl-review-card>
  <div class="ReviewInfoContainer"><fl-text><div>acme</div></fl-text></div>
  <fl-rating aria-label="Rating: 5.0 out of 5"></fl-rating>
  <div class="ReviewDescription"><div>Great work</div></div>
</fl-review-card>
</body></html>`

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// pageFetcher serves canned pages and 404s everything else.
type pageFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	seen  []string
}

func (f *pageFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, req.URL)
	headers := http.Header{"Content-Type": {"text/html; charset=utf-8"}}
	body, ok := f.pages[req.URL]
	if !ok {
		return crawler.FetchResponse{URL: req.URL, StatusCode: http.StatusNotFound, Headers: headers, Body: []byte("<html></html>")}, nil
	}
	return crawler.FetchResponse{URL: req.URL, StatusCode: http.StatusOK, Headers: headers, Body: []byte(body)}, nil
}

func newFetcher() *pageFetcher {
	return &pageFetcher{pages: map[string]string{
		listingURL: listingHTML,
		janeURL:    profileHTML,
	}}
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Crawler:  config.CrawlerConfig{Concurrency: 2},
		Taxonomy: config.TaxonomyConfig{Dir: filepath.Join("..", "..", "fixtures")},
		Store:    config.StoreConfig{Backend: config.BackendMemory},
		Output:   config.OutputConfig{Mode: config.OutputStore, Dir: t.TempDir()},
		PubSub:   config.PubSubConfig{Topic: "crawl-runs"},
	}
}

func newApp(t *testing.T, cfg config.Config, opts ...app.Option) *app.App {
	t.Helper()
	opts = append([]app.Option{
		app.WithFetcher(newFetcher()),
		app.WithClock(fixedClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}),
	}, opts...)
	a, err := app.New(context.Background(), cfg, zap.NewNop(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close(context.Background())) })
	return a
}

func crawlOptions(a *app.App, output string) app.CrawlOptions {
	opts := a.DefaultCrawlOptions()
	opts.Sites = []string{"freelancer"}
	opts.Country = "FR"
	opts.Category = "PHP"
	opts.Output = output
	return opts
}

func TestNew_LoadsReferenceData(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(t))
	assert.Equal(t, []string{"freelancer", "peopleperhour", "truelancer"}, a.Registry().IDs())
	fr, ok := a.Taxonomy().CountryByCode("fr")
	require.True(t, ok)
	assert.Equal(t, "France", fr.Name)
	require.NoError(t, a.Store().Ping(context.Background()))
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Taxonomy.Dir = t.TempDir()
	_, err := app.New(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "load taxonomy")

	cfg = testConfig(t)
	cfg.Store.Backend = "sqlite"
	_, err = app.New(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, `unknown store backend "sqlite"`)
}

func TestCrawl_IntoStore(t *testing.T) {
	t.Parallel()

	pub := publishermemory.New()
	fetcher := newFetcher()
	a := newApp(t, testConfig(t), app.WithFetcher(fetcher), app.WithPublisher(pub))
	ctx := context.Background()

	res, err := a.Crawl(ctx, crawlOptions(a, config.OutputStore))
	require.NoError(t, err)
	assert.Empty(t, res.File)
	require.Len(t, res.Summary.Sites, 1)
	assert.Equal(t, 2, res.Summary.Sites[0].Freelancers)
	assert.Equal(t, 1, res.Summary.Sites[0].Reviews)
	assert.Contains(t, fetcher.seen, listingURL)

	found, err := a.Store().FindFreelancers(ctx, store.FreelancerFilter{URLs: []string{janeURL}})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Jane D.", found[0].Name)
	assert.Equal(t, "France", found[0].CountryName)
	assert.Equal(t, "Freelancer", found[0].Source)

	reviews, total, err := a.Store().ListReviews(ctx, store.ReviewFilter{FreelancerID: janeURL}, store.Page{})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, "Great work", reviews[0].Text)

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "crawl-runs", msgs[0].Topic)
}

func TestCrawl_JSONLExport(t *testing.T) {
	t.Parallel()

	exporter := storagememory.NewBlobStore()
	cfg := testConfig(t)
	a := newApp(t, cfg, app.WithExporter(exporter), app.WithPublisher(publishermemory.New()))

	res, err := a.Crawl(context.Background(), crawlOptions(a, config.OutputJSONL))
	require.NoError(t, err)
	require.NotEmpty(t, res.File)
	assert.Equal(t, cfg.Output.Dir, filepath.Dir(res.File))
	assert.Positive(t, res.Lines)
	assert.Equal(t, "memory://"+filepath.Base(res.File), res.ExportURI)

	obj, ok := exporter.Get(filepath.Base(res.File))
	require.True(t, ok)
	assert.Equal(t, "application/x-ndjson", obj.ContentType)
	onDisk, err := os.ReadFile(res.File)
	require.NoError(t, err)
	assert.Equal(t, onDisk, obj.Data)
	assert.Equal(t, sha256.Hash(onDisk), res.SHA256)
	assert.Contains(t, string(obj.Data), janeURL)

	// The store is untouched in file mode.
	n, err := a.Store().Count(context.Background(), record.KindFreelancer)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCrawl_RejectsUnknownOutput(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(t))
	_, err := a.Crawl(context.Background(), crawlOptions(a, "csv"))
	require.Error(t, err)
}

func TestLoadFixtures_OnlyFillsEmptyCollections(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(t))
	ctx := context.Background()

	res, err := a.LoadFixtures(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(a.Taxonomy().Countries()), res.Countries)
	assert.Equal(t, 3, res.Sources)

	again, err := a.LoadFixtures(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Countries)
	assert.Zero(t, again.Sources)

	n, err := a.Store().Count(ctx, record.KindCountry)
	require.NoError(t, err)
	assert.EqualValues(t, res.Countries, n)
}

func TestImport_RoundTripsJSONL(t *testing.T) {
	t.Parallel()

	src := newApp(t, testConfig(t), app.WithPublisher(publishermemory.New()))
	res, err := src.Crawl(context.Background(), crawlOptions(src, config.OutputJSONL))
	require.NoError(t, err)

	f, err := os.Open(res.File)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck // test

	dst := newApp(t, testConfig(t))
	counts, err := dst.Import(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[record.KindFreelancer])
	assert.Equal(t, 1, counts[record.KindReview])

	found, err := dst.Store().FindFreelancers(context.Background(), store.FreelancerFilter{URLs: []string{janeURL}})
	require.NoError(t, err)
	require.Len(t, found, 1)
}

func TestImport_ReportsBadLine(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(t))
	_, err := a.Import(context.Background(), strings.NewReader("{\"_type\":\"country\",\"code\":\"FR\",\"name\":\"France\"}\n{not json}\n"))
	require.ErrorContains(t, err, "line 2")
}
