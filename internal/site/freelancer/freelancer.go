// Package freelancer extracts profiles from freelancer.com.
package freelancer

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/freelance-crawler/internal/parse"
	"github.com/JakeFAU/freelance-crawler/internal/record"
	"github.com/JakeFAU/freelance-crawler/internal/site"
	"github.com/JakeFAU/freelance-crawler/internal/taxonomy"
	"github.com/JakeFAU/freelance-crawler/internal/traversal"
)

// ID identifies the site on the command line.
const ID = "freelancer"

const (
	baseURL         = "https://www.freelancer.com"
	sourceName      = "Freelancer"
	defaultSourceID = "607f1f77bcf86cd799439001"
	renderWait      = 3 * time.Second
)

var (
	ratingRe      = regexp.MustCompile(`^\s*(\d(?:\.\d+)?)(?:\s|\(|$)`)
	reviewsRe     = regexp.MustCompile(`(\d+)\s+reviews?`)
	ariaRatingRe  = regexp.MustCompile(`Rating:\s*([\d.]+)`)
	countRe       = regexp.MustCompile(`(\d+)`)
	hourlyRateRe  = regexp.MustCompile(`\$\s*([\d,.]+)`)
	verifiedBadge = `fl-badge[mattooltip*="Verified Freelancer"], fl-badge[data-tooltip*="Verified Freelancer"]`
)

// Site implements site.Site for freelancer.com.
type Site struct {
	source record.Source
	clock  record.Clock
}

// New builds the site using ref for the source record.
func New(ref site.Reference, clock record.Clock) *Site {
	return &Site{
		source: site.ResolveSource(ref, sourceName, defaultSourceID, baseURL),
		clock:  clock,
	}
}

// ID implements site.Site.
func (*Site) ID() string { return ID }

// Source implements site.Site.
func (s *Site) Source() record.Source { return s.source }

// FetchOptions implements site.Site. Listing and profile pages are rendered
// client-side.
func (*Site) FetchOptions() site.FetchOptions {
	return site.FetchOptions{RenderJS: true, Wait: renderWait}
}

// Categories keys each category by its skill slug, which is how the search
// URL addresses it.
func (*Site) Categories(mapping []taxonomy.Category) []traversal.Category {
	out := make([]traversal.Category, 0, len(mapping))
	for _, c := range mapping {
		out = append(out, traversal.Category{Key: parse.Slug(c.Sub), Main: c.Main, Sub: c.Sub, ID: c.ID})
	}
	return out
}

// AdHocCategory accepts any skill slug.
func (*Site) AdHocCategory(name string) (traversal.Category, bool) {
	slug := parse.Slug(name)
	if slug == "" {
		return traversal.Category{}, false
	}
	return traversal.Category{Key: slug, Main: "Other", Sub: strings.TrimSpace(name), ID: "999"}, true
}

// ListingURL implements site.Site.
func (*Site) ListingURL(t traversal.Target) string {
	var u string
	if country := parse.Slug(t.Location.Name); country != "" {
		u = fmt.Sprintf("%s/freelancers/%s/%s", baseURL, country, t.Category.Key)
	} else {
		u = fmt.Sprintf("%s/freelancers/skills/%s", baseURL, t.Category.Key)
	}
	if t.Page > 1 {
		u = fmt.Sprintf("%s/%d", u, t.Page)
	}
	return u
}

// ExtractListing implements site.Site.
func (s *Site) ExtractListing(page *site.Page, t traversal.Target) site.Listing {
	var listing site.Listing
	page.Doc.Find("li.ns_result").Each(func(_ int, row *goquery.Selection) {
		href := parse.Attr(row.Find("a.freelancer-profile-wrapper"), "href")
		if href == "" {
			return
		}
		f := site.NewCandidate(t, s.source, page.URL)
		f.URL = parse.Absolute(page.URL, href)
		f.Name = parse.Text(row.Find("a.find-freelancer-username"))
		f.Thumbnail = parse.Attr(row.Find("img.ImageThumbnail-image"), "src")
		f.Title = parse.Text(row.Find(".user-tagline"))
		f.Description = parse.Text(row.Find(".bio span.profile_text"))
		reviewText := parse.Text(row.Find("span.Rating-review"))
		f.Rating = parse.MatchFloat(ratingRe, reviewText)
		f.ReviewsCount = parse.MatchInt(reviewsRe, reviewText)
		f.HourlyRate = parse.Float(parse.Attr(row.Find("span.freelancer-hourlyrate"), "data-hourlyrate"))
		f.Skills = parse.Texts(row.Find(".top-skills a"))
		f.MainSkill = t.Category.Sub
		listing.Candidates = append(listing.Candidates, site.Candidate{
			Freelancer: f,
			Target:     t,
			Extra:      map[string]string{"location_text": parse.Text(row.Find(".user-location"))},
		})
	})

	listing.HasNext = page.Doc.Find(`a[rel="next"], [data-target="pagination-next"], .Pagination a`).
		FilterFunction(func(_ int, a *goquery.Selection) bool {
			rel, _ := a.Attr("rel")
			return rel == "next" || strings.Contains(strings.ToLower(a.Text()), "next") || a.Is(`[data-target="pagination-next"]`)
		}).Length() > 0
	return listing
}

// EnrichDetail implements site.Site.
func (s *Site) EnrichDetail(page *site.Page, c site.Candidate) site.Enrichment {
	doc := page.Doc
	f := c.Freelancer

	f.Name = parse.FirstString(parse.Text(doc.Find("h3.Username-displayName")), f.Name)
	f.Title = parse.FirstString(parse.Text(doc.Find("app-user-profile-summary-tagline-redesign h2")), f.Title)
	f.Description = parse.FirstString(
		parse.Text(doc.Find("app-user-profile-summary-description-redesign fl-text div")),
		f.Description,
	)
	profileRating := doc.Find("fl-rating").FilterFunction(func(_ int, r *goquery.Selection) bool {
		return r.ParentsFiltered("fl-review-card").Length() == 0
	})
	f.Rating = parse.FirstFloat(parse.MatchFloat(ariaRatingRe, parse.Attr(profileRating, "aria-label")), f.Rating)
	f.ReviewsCount = parse.FirstInt(
		parse.MatchInt(countRe, parse.Text(doc.Find("fl-review-count .NativeElement, fl-review-count"))),
		f.ReviewsCount,
	)
	f.HourlyRate = parse.FirstFloat(parse.MatchFloat(hourlyRateRe, parse.Text(doc.Find(`[class*="HourlyRate"]`))), f.HourlyRate)
	f.IsVerified = doc.Find(verifiedBadge).Length() > 0
	if skills := parse.Texts(doc.Find("app-user-profile-summary-skill-list-redesign .SkillsList fl-bit div")); len(skills) > 0 {
		f.Skills = skills
	}
	f.Pictures = append(f.Pictures, parse.Attrs(doc.Find("app-portfolio-item img.ProjectImage"), "src")...)

	out := site.Enrichment{Freelancer: f}
	now := s.now()
	doc.Find("fl-review-card").Each(func(_ int, card *goquery.Selection) {
		out.Reviews = append(out.Reviews, record.Review{
			FreelancerID: f.URL,
			Author:       parse.Text(card.Find(`[class*="InfoContainer"] fl-text div`)),
			Rating:       parse.MatchFloat(ariaRatingRe, parse.Attr(card.Find("fl-rating"), "aria-label")),
			Picture:      parse.Attr(card.Find("fl-user-avatar img"), "src"),
			Title:        parse.Text(card.Find(`[class*="ReviewTitle"] div`)),
			Text:         parse.Text(card.Find(`[class*="ReviewDescription"] div`)),
			CreatedAt:    parse.Date(parse.Text(card.Find("fl-relative-time span")), now),
			Source:       f.Source,
			SourceID:     f.SourceID,
		})
	})
	return out
}

func (s *Site) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}
