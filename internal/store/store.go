package store

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/JakeFAU/freelance-crawler/internal/record"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("store: not found")

// Paging limits.
const (
	DefaultLimit = 20
	MaxLimit     = 200
)

// IDGenerator assigns ids to inserted documents.
type IDGenerator interface {
	NewID() (string, error)
}

// Writer is the write side used by the sink.
type Writer interface {
	// SaveFreelancer upserts by URL, or inserts when URL is empty. The
	// stored id is written back to f.
	SaveFreelancer(ctx context.Context, f *record.Freelancer) error
	SaveReview(ctx context.Context, r *record.Review) error
	SaveService(ctx context.Context, s *record.Service) error
	FindSourceByName(ctx context.Context, name string) (record.Source, error)
	InsertSource(ctx context.Context, s *record.Source) error
}

// Reader serves the reporting queries.
type Reader interface {
	ListFreelancers(ctx context.Context, f FreelancerFilter, p Page) ([]record.Freelancer, int64, error)
	// FindFreelancers returns every match, unpaged.
	FindFreelancers(ctx context.Context, f FreelancerFilter) ([]record.Freelancer, error)
	GetFreelancer(ctx context.Context, id string) (record.Freelancer, error)
	ListCountries(ctx context.Context) ([]record.Country, error)
	GetCountry(ctx context.Context, id string) (record.Country, error)
	FindCountryByCode(ctx context.Context, code string) (record.Country, error)
	ListServices(ctx context.Context, f ServiceFilter, p Page) ([]record.Service, int64, error)
	GetService(ctx context.Context, id string) (record.Service, error)
	ListReviews(ctx context.Context, f ReviewFilter, p Page) ([]record.Review, int64, error)
	GetReview(ctx context.Context, id string) (record.Review, error)
	Count(ctx context.Context, kind record.Kind) (int64, error)
	Ping(ctx context.Context) error
}

// Admin covers bootstrap operations.
type Admin interface {
	// InsertCountries upserts reference countries by id.
	InsertCountries(ctx context.Context, countries []record.Country) error
	EnsureIndexes(ctx context.Context) error
	Close(ctx context.Context) error
}

// Store is a complete backend.
type Store interface {
	Writer
	Reader
	Admin
}

// Page selects a window of a list result. Page is 1-based.
type Page struct {
	Page  int
	Limit int
}

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

// Offset is the number of rows skipped.
func (p Page) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.Limit
}

// Pages returns the number of pages needed for total rows.
func (p Page) Pages(total int64) int64 {
	n := p.Normalize()
	return (total + int64(n.Limit) - 1) / int64(n.Limit)
}

// FreelancerFilter narrows freelancer queries. Zero values do not filter.
type FreelancerFilter struct {
	CountryID string
	Skill     string
	// IncludeMainSkill makes Skill also match main_skill.
	IncludeMainSkill bool
	Source           string
	MinRate          *float64
	MaxRate          *float64
	MinRating        *float64
	// URLs restricts matches to the given profile URLs when non-empty.
	URLs []string
}

// Match applies the filter in memory.
func (f FreelancerFilter) Match(fr record.Freelancer) bool {
	if len(f.URLs) > 0 && !slices.Contains(f.URLs, fr.URL) {
		return false
	}
	if f.CountryID != "" && fr.CountryID != f.CountryID {
		return false
	}
	if f.Skill != "" && !slices.Contains(fr.Skills, f.Skill) &&
		(!f.IncludeMainSkill || fr.MainSkill != f.Skill) {
		return false
	}
	if f.Source != "" && fr.Source != f.Source {
		return false
	}
	if !between(fr.HourlyRate, f.MinRate, f.MaxRate) {
		return false
	}
	return f.MinRating == nil || (fr.Rating != nil && *fr.Rating >= *f.MinRating)
}

// ServiceFilter narrows service queries.
type ServiceFilter struct {
	FreelancerID string
	MinPrice     *float64
	MaxPrice     *float64
	MaxDuration  *int
}

// Match applies the filter in memory.
func (f ServiceFilter) Match(s record.Service) bool {
	if f.FreelancerID != "" && s.FreelancerID != f.FreelancerID {
		return false
	}
	if !between(s.Price, f.MinPrice, f.MaxPrice) {
		return false
	}
	return f.MaxDuration == nil || (s.Duration != nil && *s.Duration <= *f.MaxDuration)
}

// ReviewFilter narrows review queries. FreelancerID is the freelancer URL.
type ReviewFilter struct {
	FreelancerID string
	MinRating    *float64
}

// Match applies the filter in memory.
func (f ReviewFilter) Match(r record.Review) bool {
	if f.FreelancerID != "" && r.FreelancerID != f.FreelancerID {
		return false
	}
	return f.MinRating == nil || (r.Rating != nil && *r.Rating >= *f.MinRating)
}

func between(v, lo, hi *float64) bool {
	if lo == nil && hi == nil {
		return true
	}
	if v == nil {
		return false
	}
	return (lo == nil || *v >= *lo) && (hi == nil || *v <= *hi)
}

// NormalizeCode canonicalizes a country code for lookups.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
