// Package memory provides an in-memory store for development and tests.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/JakeFAU/freelance-crawler/internal/record"
	"github.com/JakeFAU/freelance-crawler/internal/store"
)

// Store keeps every collection in insertion order.
type Store struct {
	mu          sync.RWMutex
	ids         store.IDGenerator
	freelancers []record.Freelancer
	byURL       map[string]int
	reviews     []record.Review
	services    []record.Service
	countries   []record.Country
	sources     []record.Source
}

var _ store.Store = (*Store)(nil)

// New constructs an empty Store.
func New(ids store.IDGenerator) *Store {
	return &Store{ids: ids, byURL: make(map[string]int)}
}

func (s *Store) newID() (string, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return id, nil
}

// SaveFreelancer implements store.Writer.
func (s *Store) SaveFreelancer(_ context.Context, f *record.Freelancer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.URL != "" {
		if i, ok := s.byURL[f.URL]; ok {
			f.ID = s.freelancers[i].ID
			s.freelancers[i] = *f
			return nil
		}
	}
	id, err := s.newID()
	if err != nil {
		return err
	}
	f.ID = id
	if f.URL != "" {
		s.byURL[f.URL] = len(s.freelancers)
	}
	s.freelancers = append(s.freelancers, *f)
	return nil
}

// SaveReview implements store.Writer.
func (s *Store) SaveReview(_ context.Context, r *record.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.newID()
	if err != nil {
		return err
	}
	r.ID = id
	s.reviews = append(s.reviews, *r)
	return nil
}

// SaveService implements store.Writer. Services with a URL are upserted.
func (s *Store) SaveService(_ context.Context, svc *record.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if svc.URL != "" {
		for i := range s.services {
			if s.services[i].URL == svc.URL {
				svc.ID = s.services[i].ID
				s.services[i] = *svc
				return nil
			}
		}
	}
	id, err := s.newID()
	if err != nil {
		return err
	}
	svc.ID = id
	s.services = append(s.services, *svc)
	return nil
}

// FindSourceByName implements store.Writer.
func (s *Store) FindSourceByName(_ context.Context, name string) (record.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, src := range s.sources {
		if src.Name == name {
			return src, nil
		}
	}
	return record.Source{}, store.ErrNotFound
}

// InsertSource implements store.Writer.
func (s *Store) InsertSource(_ context.Context, src *record.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if src.ID == "" {
		id, err := s.newID()
		if err != nil {
			return err
		}
		src.ID = id
	}
	for i := range s.sources {
		if s.sources[i].ID == src.ID {
			s.sources[i] = *src
			return nil
		}
	}
	s.sources = append(s.sources, *src)
	return nil
}

// ListFreelancers implements store.Reader.
func (s *Store) ListFreelancers(ctx context.Context, f store.FreelancerFilter, p store.Page) ([]record.Freelancer, int64, error) {
	all, err := s.FindFreelancers(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return window(all, p), int64(len(all)), nil
}

// FindFreelancers implements store.Reader.
func (s *Store) FindFreelancers(_ context.Context, f store.FreelancerFilter) ([]record.Freelancer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]record.Freelancer, 0, len(s.freelancers))
	for _, fr := range s.freelancers {
		if f.Match(fr) {
			out = append(out, fr)
		}
	}
	return out, nil
}

// GetFreelancer implements store.Reader.
func (s *Store) GetFreelancer(_ context.Context, id string) (record.Freelancer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, fr := range s.freelancers {
		if fr.ID == id {
			return fr, nil
		}
	}
	return record.Freelancer{}, store.ErrNotFound
}

// ListCountries implements store.Reader.
func (s *Store) ListCountries(context.Context) ([]record.Country, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]record.Country{}, s.countries...), nil
}

// GetCountry implements store.Reader.
func (s *Store) GetCountry(_ context.Context, id string) (record.Country, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.countries {
		if c.ID == id {
			return c, nil
		}
	}
	return record.Country{}, store.ErrNotFound
}

// FindCountryByCode implements store.Reader.
func (s *Store) FindCountryByCode(_ context.Context, code string) (record.Country, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	code = store.NormalizeCode(code)
	for _, c := range s.countries {
		if strings.EqualFold(c.Code, code) {
			return c, nil
		}
	}
	return record.Country{}, store.ErrNotFound
}

// ListServices implements store.Reader.
func (s *Store) ListServices(_ context.Context, f store.ServiceFilter, p store.Page) ([]record.Service, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]record.Service, 0, len(s.services))
	for _, svc := range s.services {
		if f.Match(svc) {
			out = append(out, svc)
		}
	}
	return window(out, p), int64(len(out)), nil
}

// GetService implements store.Reader.
func (s *Store) GetService(_ context.Context, id string) (record.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, svc := range s.services {
		if svc.ID == id {
			return svc, nil
		}
	}
	return record.Service{}, store.ErrNotFound
}

// ListReviews implements store.Reader.
func (s *Store) ListReviews(_ context.Context, f store.ReviewFilter, p store.Page) ([]record.Review, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]record.Review, 0, len(s.reviews))
	for _, r := range s.reviews {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return window(out, p), int64(len(out)), nil
}

// GetReview implements store.Reader.
func (s *Store) GetReview(_ context.Context, id string) (record.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.reviews {
		if r.ID == id {
			return r, nil
		}
	}
	return record.Review{}, store.ErrNotFound
}

// Count implements store.Reader.
func (s *Store) Count(_ context.Context, kind record.Kind) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch kind {
	case record.KindFreelancer:
		return int64(len(s.freelancers)), nil
	case record.KindReview:
		return int64(len(s.reviews)), nil
	case record.KindService:
		return int64(len(s.services)), nil
	case record.KindCountry:
		return int64(len(s.countries)), nil
	case record.KindSource:
		return int64(len(s.sources)), nil
	default:
		return 0, fmt.Errorf("unknown kind %q", kind)
	}
}

// Ping implements store.Reader.
func (*Store) Ping(context.Context) error { return nil }

// InsertCountries implements store.Admin.
func (s *Store) InsertCountries(_ context.Context, countries []record.Country) error {
	s.mu.Lock()
	defer s.mu.Unlock()
next:
	for _, c := range countries {
		for i := range s.countries {
			if s.countries[i].ID == c.ID {
				s.countries[i] = c
				continue next
			}
		}
		s.countries = append(s.countries, c)
	}
	return nil
}

// EnsureIndexes implements store.Admin. The URL index is maintained inline.
func (*Store) EnsureIndexes(context.Context) error { return nil }

// Close implements store.Admin.
func (*Store) Close(context.Context) error { return nil }

func window[T any](items []T, p store.Page) []T {
	p = p.Normalize()
	start := p.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := min(start+p.Limit, len(items))
	return append([]T{}, items[start:end]...)
}
