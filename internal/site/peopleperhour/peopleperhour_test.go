package peopleperhour

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/freelance-crawler/internal/record"
	"github.com/JakeFAU/freelance-crawler/internal/site"
	"github.com/JakeFAU/freelance-crawler/internal/taxonomy"
	"github.com/JakeFAU/freelance-crawler/internal/traversal"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type reference struct{}

func (reference) CountryByName(name string) (record.Country, bool) {
	if name == "Germany" {
		return record.Country{ID: "c-de", Code: "DE", Name: "Germany"}, true
	}
	return record.Country{}, false
}

func (reference) SourceByName(name string) (record.Source, bool) {
	return record.Source{ID: "src-pph", Name: name}, name == sourceName
}

var now = time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)

var target = traversal.Target{
	Category: traversal.Category{Key: "Logo Design-12", Main: "Design", Sub: "Logo Design", ID: "12"},
	Location: traversal.Location{Code: "GB", CountryID: "c-gb", Name: "United Kingdom"},
	Page:     1,
}

func page(t *testing.T, status int, url, body string) *site.Page {
	t.Helper()
	p, err := site.NewPage(url, status, []byte(body))
	require.NoError(t, err)
	return p
}

const listingHTML = `<html><body>
<div class="freelancer-card">
  <a class="card__title-wrapper" href="/freelancer/design/anna-logo-expert-abc"><h2 class="card__title">Anna</h2></a>
  <p class="card__job-title"><span>Logo designer</span></p>
  <div class="card__country"><span class="card__country-icon"></span><span>Germany</span></div>
  <div class="card__freelancer-ratings"><a>4.9</a><span class="card__freelancer-reviews">(87)</span></div>
  <img class="user-avatar" src="https://cdn.pph.com/anna.jpg">
  <a class="Tag"><span class="Tag__label___x1">Logo</span></a><a class="Tag"><span class="Tag__label___x1">Branding</span></a>
  <span class="card__price"><span>£1,200</span><span>/hr</span></span>
</div>
<div class="freelancer-card"><h2 class="card__title">No link</h2></div>
<a class="pagination-next" href="?page=2">›</a>
</body></html>`

func TestListingURL(t *testing.T) {
	t.Parallel()

	s := New(nil, nil)
	assert.Equal(t, "https://www.peopleperhour.com/hire-freelancers?industries=12&location=GB", s.ListingURL(target))
	next := target
	next.Page = 3
	assert.Equal(t, "https://www.peopleperhour.com/hire-freelancers?industries=12&location=GB&page=3", s.ListingURL(next))
}

func TestExtractListing(t *testing.T) {
	t.Parallel()

	s := New(reference{}, nil)
	listing := s.ExtractListing(page(t, http.StatusOK, s.ListingURL(target), listingHTML), target)

	require.Len(t, listing.Candidates, 1)
	assert.True(t, listing.HasNext)

	c := listing.Candidates[0]
	f := c.Freelancer
	assert.Equal(t, "https://www.peopleperhour.com/freelancer/design/anna-logo-expert-abc", f.URL)
	assert.Equal(t, "Anna", f.Name)
	assert.Equal(t, "Logo designer", f.Title)
	assert.InDelta(t, 4.9, *f.Rating, 1e-9)
	assert.Equal(t, 87, *f.ReviewsCount)
	assert.InDelta(t, 1200.0, *f.HourlyRate, 1e-9)
	assert.Equal(t, []string{"Logo", "Branding"}, f.Skills)
	assert.Equal(t, "src-pph", f.SourceID)
	assert.Equal(t, "Germany", c.Extra["displayed_country"])
}

func TestExtractListingNotFoundIsExhausted(t *testing.T) {
	t.Parallel()

	s := New(nil, nil)
	listing := s.ExtractListing(page(t, http.StatusNotFound, s.ListingURL(target), listingHTML), target)
	assert.Equal(t, traversal.Exhausted, listing.Outcome())
}

const detailHTML = `<html><body>
<div class="member-name clearfix"><h1>Anna Schmidt</h1></div>
<p class="member-job">Brand identity designer</p>
<div class="member-location"><p>Berlin, Germany</p></div>
<span class="member-cost"><div>£45</div><div>per hour</div></span>
<div class="total-rating"></div>
<div class="total-reviews">(90)</div>
<div class="about-container">
  <p>I design   logos.</p>
  <p>Fast delivery.</p>
</div>
<div class="skill-tags"><a class="tag-item">Logo Design</a><a class="tag-item">Illustrator</a></div>
<div id="portfolio"><div class="portfolio-item-container"><div class="portfolio-image-preview" style="background-image: url('https://cdn.pph.com/p1.jpg')"></div></div></div>
<ul>
<li class="item participant feedback">
  <div class="left-col"><img class="user-avatar" src="https://cdn.pph.com/bob.jpg"><time title="Wed, 23 Apr 2025 at 1:15pm">Apr</time></div>
  <h6 class="participant-name">Bob</h6>
  <div class="feedback-rating"><span class="active"></span><span class="active"></span><span class="active"></span><span class="active"></span><span></span></div>
  <div class="right-col"><p>Lovely</p><p>work.</p></div>
</li>
</ul>
<div id="offers">
  <div class="hourlie-item"><h6 class="hourlie__title"><a href="/hourlie/logo/123">A logo in 24h</a></h6><div class="hourlie__price"><span>£60</span></div></div>
  <div class="hourlie-item"><h6 class="hourlie__title"><a>No link</a></h6></div>
</div>
</body></html>`

func TestEnrichDetail(t *testing.T) {
	t.Parallel()

	s := New(reference{}, fixedClock{now})
	listing := s.ExtractListing(page(t, http.StatusOK, s.ListingURL(target), listingHTML), target)
	c := listing.Candidates[0]

	out := s.EnrichDetail(page(t, http.StatusOK, c.Freelancer.URL, detailHTML), c)
	f := out.Freelancer
	assert.Equal(t, "Anna Schmidt", f.Name)
	assert.Equal(t, "Brand identity designer", f.Title)
	assert.Equal(t, "c-de", f.CountryID)
	assert.Equal(t, "Germany", f.CountryName)
	assert.InDelta(t, 45.0, *f.HourlyRate, 1e-9)
	assert.InDelta(t, 45.0, *f.MinPrice, 1e-9)
	assert.InDelta(t, 4.9, *f.Rating, 1e-9, "listing rating kept when the profile shows none")
	assert.Equal(t, 90, *f.ReviewsCount)
	assert.Equal(t, "I design logos. Fast delivery.", f.Description)
	assert.Equal(t, []string{"Logo Design", "Illustrator"}, f.Skills)
	assert.Equal(t, []string{"https://cdn.pph.com/p1.jpg"}, f.Pictures)
	assert.True(t, f.IsVerified)

	require.Len(t, out.Reviews, 1)
	r := out.Reviews[0]
	assert.Equal(t, "Bob", r.Author)
	assert.InDelta(t, 4.0, *r.Rating, 1e-9)
	assert.Equal(t, "Lovely work.", r.Text)
	assert.Equal(t, "https://cdn.pph.com/bob.jpg", r.Picture)
	assert.Equal(t, time.Date(2025, 4, 23, 0, 0, 0, 0, time.UTC), r.CreatedAt)
	assert.Equal(t, f.URL, r.FreelancerID)

	require.Len(t, out.Services, 1)
	assert.Equal(t, "A logo in 24h", out.Services[0].Title)
	assert.Equal(t, "https://www.peopleperhour.com/hourlie/logo/123", out.Services[0].URL)
	assert.InDelta(t, 60.0, *out.Services[0].Price, 1e-9)
}

func TestEnrichDetailUnknownCountryKeepsSearchLocation(t *testing.T) {
	t.Parallel()

	s := New(reference{}, fixedClock{now})
	c := site.Candidate{Freelancer: site.NewCandidate(target, s.Source(), "u")}
	c.Freelancer.URL = "https://www.peopleperhour.com/freelancer/x"
	out := s.EnrichDetail(page(t, http.StatusOK, c.Freelancer.URL,
		`<div class="member-location"><p>Atlantis, Nowhere</p></div>`), c)
	assert.Equal(t, "c-gb", out.Freelancer.CountryID)
	assert.Equal(t, "United Kingdom", out.Freelancer.CountryName)
	assert.Nil(t, out.Freelancer.HourlyRate)
}

func TestEnrichDetailZeroRatingReplacesListing(t *testing.T) {
	t.Parallel()

	s := New(reference{}, fixedClock{now})
	c := site.Candidate{Freelancer: site.NewCandidate(target, s.Source(), "u")}
	c.Freelancer.URL = "https://www.peopleperhour.com/freelancer/x"
	c.Freelancer.Rating = record.Float(4.5)
	c.Freelancer.ReviewsCount = record.Int(9)
	out := s.EnrichDetail(page(t, http.StatusOK, c.Freelancer.URL,
		`<div class="total-rating">0</div><div class="total-reviews">(0)</div>`), c)

	require.NotNil(t, out.Freelancer.Rating)
	assert.Zero(t, *out.Freelancer.Rating)
	require.NotNil(t, out.Freelancer.ReviewsCount)
	assert.Zero(t, *out.Freelancer.ReviewsCount)
}

func TestCategories(t *testing.T) {
	t.Parallel()

	s := New(nil, nil)
	got := s.Categories([]taxonomy.Category{{Main: "Design", Sub: "Logo Design", ID: "12"}})
	require.Len(t, got, 1)
	assert.Equal(t, "Logo Design-12", got[0].Key)
	_, ok := s.AdHocCategory("plumbing")
	assert.False(t, ok)
}
