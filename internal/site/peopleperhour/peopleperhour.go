// Package peopleperhour extracts profiles, reviews and hourlies from
// peopleperhour.com. Pages are served as static HTML.
package peopleperhour

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
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
const ID = "peopleperhour"

const (
	baseURL         = "https://www.peopleperhour.com"
	sourceName      = "PeoplePerHour"
	defaultSourceID = "607f1f77bcf86cd799439002"
)

var (
	ratingRe     = regexp.MustCompile(`([\d.]+)`)
	reviewsRe    = regexp.MustCompile(`\((\d+)\)`)
	backgroundRe = regexp.MustCompile(`url\(['"]?(.+?)['"]?\)`)
)

// Site implements site.Site for peopleperhour.com.
type Site struct {
	ref    site.Reference
	source record.Source
	clock  record.Clock
}

// New builds the site. ref resolves the country named on a profile page.
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
func (*Site) FetchOptions() site.FetchOptions { return site.FetchOptions{} }

// Categories keys each category as "{subcategory}-{id}".
func (*Site) Categories(mapping []taxonomy.Category) []traversal.Category {
	out := make([]traversal.Category, 0, len(mapping))
	for _, c := range mapping {
		out = append(out, traversal.Category{
			Key:  fmt.Sprintf("%s-%s", c.Sub, c.ID),
			Main: c.Main,
			Sub:  c.Sub,
			ID:   c.ID,
		})
	}
	return out
}

// AdHocCategory implements site.Site. Industries are addressed by numeric id
// only, so unknown names cannot be searched.
func (*Site) AdHocCategory(string) (traversal.Category, bool) {
	return traversal.Category{}, false
}

// ListingURL implements site.Site.
func (*Site) ListingURL(t traversal.Target) string {
	q := url.Values{}
	q.Set("location", t.Location.Code)
	if t.Category.ID != "" {
		q.Set("industries", t.Category.ID)
	}
	if t.Page > 1 {
		q.Set("page", strconv.Itoa(t.Page))
	}
	return baseURL + "/hire-freelancers?" + q.Encode()
}

// ExtractListing implements site.Site. A 404 listing is treated as empty.
func (s *Site) ExtractListing(page *site.Page, t traversal.Target) site.Listing {
	var listing site.Listing
	if page.StatusCode == http.StatusNotFound {
		return listing
	}
	page.Doc.Find("div.freelancer-card, div.FreelancerCard").Each(func(_ int, card *goquery.Selection) {
		href := parse.Attr(card.Find(`a.card__title-wrapper, a[href*="/freelancer/"]`), "href")
		if href == "" {
			return
		}
		f := site.NewCandidate(t, s.source, page.URL)
		f.URL = parse.Absolute(page.URL, href)
		f.Name = parse.Text(card.Find("h2.card__title, h2.freelancer-name"))
		f.Title = parse.Text(card.Find("p.card__job-title span, p.freelancer-title span"))
		f.Rating = parse.MatchFloat(ratingRe, parse.Text(card.Find(".card__freelancer-ratings a, .freelancer-rating a")))
		f.ReviewsCount = parse.MatchInt(reviewsRe, parse.Text(card.Find("span.card__freelancer-reviews, span.freelancer-reviews-count")))
		f.Thumbnail = parse.Attr(card.Find(`img.user-avatar, img[alt*="avatar"]`), "src")
		f.Skills = parse.Texts(card.Find(`span[class*="Tag__label"]`))
		f.HourlyRate = parse.Float(parse.Text(card.Find("span.card__price > span, span.freelancer-price > span")))
		f.MinPrice = f.HourlyRate

		country := parse.Text(card.Find(".card__country span, .freelancer-country span").
			Not(`[class*="card__country-icon"]`))
		if country == "" {
			country = parse.Text(card.Find(".card__country svg title"))
		}
		listing.Candidates = append(listing.Candidates, site.Candidate{
			Freelancer: f,
			Target:     t,
			Extra:      map[string]string{"displayed_country": country},
		})
	})
	listing.HasNext = page.Doc.Find("a.pagination-next, a.next").Length() > 0 ||
		page.Doc.Find("a").FilterFunction(func(_ int, a *goquery.Selection) bool {
			return strings.Contains(a.Text(), "Next")
		}).Length() > 0
	return listing
}

// EnrichDetail implements site.Site.
func (s *Site) EnrichDetail(page *site.Page, c site.Candidate) site.Enrichment {
	doc := page.Doc
	f := c.Freelancer

	f.Name = parse.FirstString(parse.Text(doc.Find("div.member-name h1")), f.Name)
	f.Title = parse.FirstString(parse.Text(doc.Find("p.member-job")), f.Title)
	f.Thumbnail = parse.FirstString(parse.Attr(doc.Find("div.user-avatar img"), "src"), f.Thumbnail)
	s.resolveCountry(&f, parse.Text(doc.Find("div.member-location p")), c.Extra["displayed_country"])

	if rate := parse.Float(parse.Text(doc.Find("span.member-cost > div"))); rate != nil {
		f.HourlyRate = rate
		f.MinPrice = rate
	}
	f.Rating = parse.FirstFloat(parse.Float(parse.Text(doc.Find("div.total-rating"))), f.Rating)
	f.ReviewsCount = parse.FirstInt(parse.MatchInt(reviewsRe, parse.Text(doc.Find("div.total-reviews"))), f.ReviewsCount)

	description := strings.Join(strings.Fields(doc.Find(".about-container").First().Text()), " ")
	f.Description = parse.FirstString(parse.Text(doc.Find("span.js-about-full-text")), description, f.Description)
	if skills := parse.Texts(doc.Find(".skill-tags a.tag-item")); len(skills) > 0 {
		f.Skills = skills
	}
	doc.Find("#portfolio .portfolio-item-container .portfolio-image-preview").Each(func(_ int, p *goquery.Selection) {
		if img := parse.Match(backgroundRe, parse.Attr(p, "style")); img != "" {
			f.Pictures = append(f.Pictures, img)
		}
	})
	f.IsVerified = true

	out := site.Enrichment{Freelancer: f}
	now := s.now()
	doc.Find("li.item.participant.feedback, div.review-card").Each(func(_ int, r *goquery.Selection) {
		var rating *float64
		if stars := r.Find(".feedback-rating span.active").Length(); stars > 0 {
			rating = record.Float(float64(stars))
		}
		date := parse.Attr(r.Find("time.message-time, .left-col time"), "title")
		out.Reviews = append(out.Reviews, record.Review{
			FreelancerID: f.URL,
			Author:       parse.Text(r.Find("h6.participant-name, span.review-author")),
			Rating:       rating,
			Picture:      parse.Attr(r.Find(".left-col img.user-avatar"), "src"),
			Text:         strings.Join(parse.Texts(r.Find(".right-col > p")), " "),
			CreatedAt:    parse.Date(date, now),
			Source:       f.Source,
			SourceID:     f.SourceID,
		})
	})
	doc.Find("#offers .hourlie-item").Each(func(_ int, h *goquery.Selection) {
		link := h.Find("h6.hourlie__title a")
		title, href := parse.Text(link), parse.Attr(link, "href")
		if title == "" || href == "" {
			return
		}
		out.Services = append(out.Services, record.Service{
			FreelancerID: f.URL,
			URL:          parse.Absolute(page.URL, href),
			Title:        title,
			Price:        parse.Float(parse.Text(h.Find(".hourlie__price span"))),
			CreatedAt:    now,
		})
	})
	return out
}

// resolveCountry maps the "City, Country" line to a reference country,
// keeping the search location when the name is unknown.
func (s *Site) resolveCountry(f *record.Freelancer, location, displayed string) {
	if i := strings.LastIndex(location, ","); i >= 0 && s.ref != nil {
		if c, ok := s.ref.CountryByName(strings.TrimSpace(location[i+1:])); ok {
			f.CountryID = c.ID
			f.CountryName = c.Name
			return
		}
	}
	if f.CountryName == "" {
		f.CountryName = displayed
	}
}

func (s *Site) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}
