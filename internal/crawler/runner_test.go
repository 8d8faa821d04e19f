package crawler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/freelance-crawler/internal/publisher/memory"
	"github.com/JakeFAU/freelance-crawler/internal/record"
	"github.com/JakeFAU/freelance-crawler/internal/site"
	"github.com/JakeFAU/freelance-crawler/internal/taxonomy"
)

type fakeRef struct {
	countries  []record.Country
	categories map[string][]taxonomy.Category
}

func (r fakeRef) Countries() []record.Country { return r.countries }

func (r fakeRef) CountryByCode(code string) (record.Country, bool) {
	for _, c := range r.countries {
		if strings.EqualFold(c.Code, code) {
			return c, true
		}
	}
	return record.Country{}, false
}

func (r fakeRef) Categories(name string) []taxonomy.Category {
	return r.categories[strings.ToLower(name)]
}

type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

type seqIDs struct{ n int }

func (g *seqIDs) NewID() (string, error) {
	g.n++
	return "run-" + string(rune('0'+g.n)), nil
}

var testRef = fakeRef{
	countries: []record.Country{
		{ID: "c-fr", Code: "FR", Name: "France"},
		{ID: "c-gb", Code: "GB", Name: "United Kingdom"},
	},
	categories: map[string][]taxonomy.Category{
		"alpha": {{Main: "IT", Sub: "PHP", ID: "1"}, {Main: "IT", Sub: "Go", ID: "2"}},
		"beta":  {{Main: "IT", Sub: "PHP", ID: "7"}},
	},
}

func TestRunnerRunsSitesAndPublishesSummary(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{
		fakeBase + "/alpha/php/FR/1": listingBody(false, "ann"),
		fakeBase + "/beta/php/FR/1":  listingBody(false, "ben"),
		fakeBase + "/u/ann":          profileBody("Ann"),
		fakeBase + "/u/ben":          profileBody("Ben"),
	}}
	pub := memory.New()
	registry := site.NewRegistry(fakeSite{id: "alpha"}, fakeSite{id: "beta"})
	r := NewRunner(registry, testRef, fetcher, pub, &stepClock{}, &seqIDs{}, nil)
	sink := &recordingSink{}

	summary, err := r.Run(context.Background(), RunConfig{Country: "FR", Category: "php", Topic: "crawl-runs"}, sink)
	require.NoError(t, err)

	assert.Equal(t, "run-1", summary.RunID)
	require.Len(t, summary.Sites, 2)
	assert.Equal(t, "alpha", summary.Sites[0].Site)
	assert.Equal(t, 1, summary.Sites[0].Freelancers)
	assert.Equal(t, 1, summary.Sites[1].Freelancers)
	assert.True(t, summary.FinishedAt.After(summary.StartedAt))
	assert.Len(t, sink.freelancers(), 2)
	// Category override narrowed alpha to php only.
	assert.False(t, fetcher.requested(fakeBase+"/alpha/go/FR/1"))

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "crawl-runs", msgs[0].Topic)
	assert.Equal(t, summary, msgs[0].Payload)
}

func TestRunnerUnknownSite(t *testing.T) {
	t.Parallel()

	r := NewRunner(site.NewRegistry(fakeSite{id: "alpha"}), testRef, &fakeFetcher{}, nil, &stepClock{}, &seqIDs{}, nil)
	_, err := r.Run(context.Background(), RunConfig{Sites: []string{"gamma"}}, &recordingSink{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gamma")
}

func TestRunnerCategoryOverrideWithoutMatch(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{
		fakeBase + "/alpha/rust/GB/1": listingBody(false, "cat"),
		fakeBase + "/beta/php/GB/1":   listingBody(false, "dan"),
	}}
	registry := site.NewRegistry(fakeSite{id: "alpha", adhoc: true}, fakeSite{id: "beta"})
	r := NewRunner(registry, testRef, fetcher, nil, &stepClock{}, &seqIDs{}, nil)
	sink := &recordingSink{}

	summary, err := r.Run(context.Background(), RunConfig{Country: "GB", Category: "rust"}, sink)
	require.NoError(t, err)

	require.Len(t, summary.Sites, 2)
	assert.Equal(t, 1, summary.Sites[0].Candidates)
	// beta cannot search ad hoc and keeps its default categories.
	assert.Equal(t, 1, summary.Sites[1].Candidates)
	assert.True(t, fetcher.requested(fakeBase+"/beta/php/GB/1"))
	assert.Contains(t, sink.freelancers(), fakeBase+"/u/dan")
	cat := sink.freelancers()[fakeBase+"/u/cat"]
	assert.Equal(t, "Other", cat.MainCategory)
	assert.Equal(t, "999", cat.CategoryID)
	assert.Equal(t, "c-gb", cat.CountryID)
}

func TestRunnerSharedBudget(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{
		fakeBase + "/alpha/php/FR/1": listingBody(false, "a1", "a2", "a3"),
		fakeBase + "/beta/php/FR/1":  listingBody(false, "b1", "b2", "b3"),
	}}
	registry := site.NewRegistry(fakeSite{id: "alpha"}, fakeSite{id: "beta"})
	r := NewRunner(registry, testRef, fetcher, nil, &stepClock{}, &seqIDs{}, nil)

	summary, err := r.Run(context.Background(), RunConfig{Country: "FR", Category: "php", Limit: 4}, &recordingSink{})
	require.NoError(t, err)

	total := 0
	for _, st := range summary.Sites {
		total += st.Candidates
	}
	assert.Equal(t, 4, total)
}
