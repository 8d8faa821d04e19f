// Package site defines the per-marketplace extraction contract. Each site
// turns a rendered listing page into candidates and a rendered profile page
// into a finished freelancer plus its reviews and services.
package site

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/freelance-crawler/internal/record"
	"github.com/JakeFAU/freelance-crawler/internal/taxonomy"
	"github.com/JakeFAU/freelance-crawler/internal/traversal"
)

// Page is a fetched and parsed HTML document.
type Page struct {
	URL        string
	StatusCode int
	Doc        *goquery.Document
}

// NewPage parses body into a Page.
func NewPage(url string, status int, body []byte) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Page{URL: url, StatusCode: status, Doc: doc}, nil
}

// Candidate is a partially filled freelancer found on a listing page.
type Candidate struct {
	Freelancer record.Freelancer
	Target     traversal.Target
	// Extra carries listing-only hints a site needs during enrichment.
	Extra map[string]string
}

// Listing is the result of one listing page.
type Listing struct {
	Candidates []Candidate
	HasNext    bool
}

// Outcome converts the listing into the cursor's advance input.
func (l Listing) Outcome() traversal.Outcome {
	return traversal.Outcome{Candidates: len(l.Candidates), HasNext: l.HasNext}
}

// Enrichment is the output of a profile page.
type Enrichment struct {
	Freelancer record.Freelancer
	Reviews    []record.Review
	Services   []record.Service
}

// FetchOptions tells the fetch layer how a site's pages must be retrieved.
type FetchOptions struct {
	RenderJS bool
	Wait     time.Duration
}

// Site is one marketplace.
type Site interface {
	// ID is the stable identifier used on the command line and in metrics.
	ID() string
	// Source is the marketplace's source record.
	Source() record.Source
	FetchOptions() FetchOptions
	// Categories turns the taxonomy mapping into traversal categories.
	Categories(mapping []taxonomy.Category) []traversal.Category
	// AdHocCategory builds a category for an override that matched nothing.
	// Sites that cannot search arbitrary categories return false.
	AdHocCategory(name string) (traversal.Category, bool)
	ListingURL(t traversal.Target) string
	ExtractListing(page *Page, t traversal.Target) Listing
	EnrichDetail(page *Page, c Candidate) Enrichment
}

// Reference is the read-only reference data a site consults.
type Reference interface {
	CountryByName(name string) (record.Country, bool)
	SourceByName(name string) (record.Source, bool)
}

// ResolveSource returns the reference source named name, falling back to
// the given defaults when the reference data lacks it.
func ResolveSource(ref Reference, name, defaultID, url string) record.Source {
	if ref != nil {
		if s, ok := ref.SourceByName(name); ok {
			return s
		}
	}
	return record.Source{ID: defaultID, Name: name, URL: url}
}

// NewCandidate seeds a freelancer with the search context of t.
func NewCandidate(t traversal.Target, src record.Source, searchURL string) record.Freelancer {
	return record.Freelancer{
		URLOfSearch:  searchURL,
		CountryID:    t.Location.CountryID,
		CountryName:  t.Location.Name,
		Source:       src.Name,
		SourceID:     src.ID,
		CategoryID:   t.Category.ID,
		MainCategory: t.Category.Main,
		Subcategory:  t.Category.Sub,
		Skills:       []string{},
		Pictures:     []string{},
	}
}

// Registry resolves sites by id.
type Registry struct {
	sites map[string]Site
}

// NewRegistry indexes the given sites.
func NewRegistry(sites ...Site) *Registry {
	r := &Registry{sites: make(map[string]Site, len(sites))}
	for _, s := range sites {
		r.sites[s.ID()] = s
	}
	return r
}

// Get returns the site registered under id.
func (r *Registry) Get(id string) (Site, bool) {
	s, ok := r.sites[strings.ToLower(strings.TrimSpace(id))]
	return s, ok
}

// IDs returns the registered ids, sorted.
func (r *Registry) IDs() []string {
	out := make([]string, 0, len(r.sites))
	for id := range r.sites {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Select resolves ids, or every site when ids is empty.
func (r *Registry) Select(ids []string) ([]Site, error) {
	if len(ids) == 0 {
		ids = r.IDs()
	}
	out := make([]Site, 0, len(ids))
	for _, id := range ids {
		s, ok := r.Get(id)
		if !ok {
			return nil, fmt.Errorf("unknown site %q (known: %s)", id, strings.Join(r.IDs(), ", "))
		}
		out = append(out, s)
	}
	return out, nil
}
