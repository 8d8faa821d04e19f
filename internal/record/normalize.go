package record

import (
	"strings"
	"time"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Normalizer shapes records into the shared schema before they are persisted.
type Normalizer struct {
	clock Clock
}

// NewNormalizer builds a Normalizer using clock for created_at defaults.
func NewNormalizer(clock Clock) *Normalizer {
	return &Normalizer{clock: clock}
}

// Normalize applies defaulting, trimming and list rules in place.
func (n *Normalizer) Normalize(rec Record) {
	switch r := rec.(type) {
	case *Freelancer:
		n.freelancer(r)
	case *Review:
		n.review(r)
	case *Service:
		n.service(r)
	case *Country:
		r.Code = strings.ToUpper(strings.TrimSpace(r.Code))
		r.Name = strings.TrimSpace(r.Name)
	case *Source:
		r.Name = strings.TrimSpace(r.Name)
		r.URL = strings.TrimSpace(r.URL)
		r.Description = strings.TrimSpace(r.Description)
	}
}

func (n *Normalizer) freelancer(f *Freelancer) {
	trim(&f.URL, &f.URLOfSearch, &f.Name, &f.Title, &f.Description, &f.Thumbnail,
		&f.CountryID, &f.CountryName, &f.Source, &f.SourceID, &f.MainSkill,
		&f.CategoryID, &f.MainCategory, &f.Subcategory)
	f.Description = collapseSpace(f.Description)
	f.Skills = cleanList(f.Skills)
	f.Pictures = cleanList(f.Pictures)
	if f.MainSkill == "" && len(f.Skills) > 0 {
		f.MainSkill = f.Skills[0]
	}
	f.CreatedAt = n.timeOrNow(f.CreatedAt)
}

func (n *Normalizer) review(r *Review) {
	trim(&r.FreelancerID, &r.Author, &r.Picture, &r.Text, &r.Title, &r.Source, &r.SourceID)
	r.Text = collapseSpace(r.Text)
	r.CreatedAt = n.timeOrNow(r.CreatedAt)
}

func (n *Normalizer) service(s *Service) {
	trim(&s.FreelancerID, &s.URL, &s.Title, &s.Description)
	s.CreatedAt = n.timeOrNow(s.CreatedAt)
}

func (n *Normalizer) timeOrNow(t time.Time) time.Time {
	if !t.IsZero() {
		return t.UTC()
	}
	if n.clock == nil {
		return time.Now().UTC()
	}
	return n.clock.Now().UTC()
}

func trim(fields ...*string) {
	for _, f := range fields {
		*f = strings.TrimSpace(*f)
	}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cleanList trims entries, drops blanks and duplicates, and never returns nil.
func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
