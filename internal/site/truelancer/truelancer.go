// Package truelancer extracts profiles and reviews from truelancer.com.
package truelancer

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
const ID = "truelancer"

const (
	baseURL         = "https://www.truelancer.com"
	sourceName      = "Truelancer"
	defaultSourceID = "607f1f77bcf86cd799439003"
	renderWait      = 5 * time.Second
	filledStar      = "span.MuiRating-iconFilled"
)

var (
	countRe       = regexp.MustCompile(`(\d+)`)
	totalReviewRe = regexp.MustCompile(`\((\d+)\)`)
	reviewDateRe  = regexp.MustCompile(`on (.+)$`)
	verifiedRe    = regexp.MustCompile(`(?i)\bverified\b`)
)

// Site implements site.Site for truelancer.com.
type Site struct {
	ref    site.Reference
	source record.Source
	clock  record.Clock
}

// New builds the site. ref resolves the country flag shown on listing rows.
func New(ref site.Reference, clock record.Clock) *Site {
	return &Site{
		ref:    ref,
		source: site.ResolveSource(ref, sourceName, defaultSourceID, baseURL),
		clock:  clock,
	}
}

// ID implements site.Site.
func (*Site) ID() string { return ID }

// Source implements site.Site.
func (s *Site) Source() record.Source { return s.source }

// FetchOptions implements site.Site.
func (*Site) FetchOptions() site.FetchOptions {
	return site.FetchOptions{RenderJS: true, Wait: renderWait}
}

// Categories keys each category by its numeric skill list id.
func (*Site) Categories(mapping []taxonomy.Category) []traversal.Category {
	out := make([]traversal.Category, 0, len(mapping))
	for _, c := range mapping {
		out = append(out, traversal.Category{Key: c.ID, Main: c.Main, Sub: c.Sub, ID: c.ID})
	}
	return out
}

// AdHocCategory implements site.Site.
func (*Site) AdHocCategory(string) (traversal.Category, bool) {
	return traversal.Category{}, false
}

// ListingURL implements site.Site.
func (*Site) ListingURL(t traversal.Target) string {
	page := t.Page
	if page < 1 {
		page = 1
	}
	u := fmt.Sprintf("%s/freelancers?page=%d&slist=%s", baseURL, page, t.Category.ID)
	if t.Location.Code != "" {
		u += "&clist=" + t.Location.Code
	}
	return u
}

// ExtractListing implements site.Site.
func (s *Site) ExtractListing(page *site.Page, t traversal.Target) site.Listing {
	var listing site.Listing
	page.Doc.Find(`div[id^="user-"]`).Each(func(_ int, row *goquery.Selection) {
		link := row.Find("h3 a")
		href := parse.Attr(link, "href")
		if href == "" {
			return
		}
		f := site.NewCandidate(t, s.source, page.URL)
		f.URL = parse.Absolute(page.URL, href)
		f.Name = parse.Text(link)
		f.Thumbnail = parse.Attr(row.Find(`img[alt*="-Freelancer"]`), "src")
		f.Title = parse.Text(row.Find("p.fontBold"))
		f.Description = parse.Text(row.Find("p.textLabel"))
		f.HourlyRate = parse.MatchFloat(countRe, parse.Text(row.Find("p").FilterFunction(containsText("$"))))
		f.Rating = stars(row)
		f.ReviewsCount = parse.MatchInt(countRe, parse.Text(row.Find("p span").FilterFunction(containsText("project"))))
		if name := parse.Attr(row.Find("p.fl_location img"), "title"); name != "" {
			f.CountryName = name
			if s.ref != nil {
				if c, ok := s.ref.CountryByName(name); ok {
					f.CountryID = c.ID
				}
			}
		}
		listing.Candidates = append(listing.Candidates, site.Candidate{Freelancer: f, Target: t})
	})
	listing.HasNext = page.Doc.Find("a").FilterFunction(containsText("Next")).Length() > 0
	return listing
}

// EnrichDetail implements site.Site.
func (s *Site) EnrichDetail(page *site.Page, c site.Candidate) site.Enrichment {
	doc := page.Doc
	f := c.Freelancer

	f.Description = parse.FirstString(parse.Text(doc.Find("#overview p.MuiTypography-body1").Not(".textLabel")), f.Description)
	if skills := parse.Texts(doc.Find(".fl_skills span")); len(skills) > 0 {
		f.Skills = skills
	}
	f.Pictures = append(f.Pictures, parse.Attrs(doc.Find(`img[src*="cdn.truelancer.com/project-pictures"]`), "src")...)

	detailRating := parse.Float(parse.Text(doc.Find("div.total-rating")))
	if detailRating == nil {
		if n := doc.Find("ul.rating li a span.active").Length(); n > 0 {
			detailRating = record.Float(float64(n))
		}
	}
	f.Rating = parse.FirstFloat(detailRating, f.Rating)
	f.ReviewsCount = parse.FirstInt(
		parse.MatchInt(totalReviewRe, parse.Text(doc.Find("div.total-reviews"))),
		insight(doc, "Projects"),
		parse.MatchInt(totalReviewRe, parse.Text(doc.Find(`a[role="tab"]`).FilterFunction(containsText("Portfolio")))),
		feedbackCount(doc),
		f.ReviewsCount,
	)
	if len(f.Skills) > 0 {
		f.MainSkill = f.Skills[0]
	}
	f.IsVerified = verifiedRe.MatchString(doc.Text())

	out := site.Enrichment{Freelancer: f}
	now := s.now()
	doc.Find("#reviews .feedbackItemContainer").Each(func(_ int, r *goquery.Selection) {
		img := r.Find("img")
		text := r.Find("p[style]").Not(".textLabel")
		out.Reviews = append(out.Reviews, record.Review{
			FreelancerID: f.URL,
			Author:       parse.FirstString(parse.Attr(img, "alt"), "Unknown"),
			Rating:       record.Float(float64(r.Find(filledStar).Length())),
			Picture:      parse.Attr(img, "src"),
			Text:         parse.Text(text),
			Title:        parse.Text(r.Find("p.textSmall")),
			CreatedAt:    parse.Date(parse.Match(reviewDateRe, parse.Text(r.Find("p.textLabel"))), now),
			Source:       f.Source,
			SourceID:     f.SourceID,
		})
	})
	return out
}

// insight reads the value next to a member stats label such as "Projects".
func insight(doc *goquery.Document, label string) *int {
	value := doc.Find("div.memberStats-item .insights-label").
		FilterFunction(containsText(label)).
		First().
		NextFiltered(".insights-value")
	return parse.MatchInt(countRe, parse.Text(value))
}

func feedbackCount(doc *goquery.Document) *int {
	n := doc.Find("li.item.participant.feedback").Length()
	if n == 0 {
		return nil
	}
	return &n
}

func stars(sel *goquery.Selection) *float64 {
	n := sel.Find(filledStar).Length()
	if n == 0 {
		return nil
	}
	return record.Float(float64(n))
}

func containsText(s string) func(int, *goquery.Selection) bool {
	return func(_ int, sel *goquery.Selection) bool {
		return strings.Contains(sel.Text(), s)
	}
}

func (s *Site) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}
