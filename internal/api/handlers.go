package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/freelance-crawler/internal/record"
	"github.com/JakeFAU/freelance-crawler/internal/stats"
	"github.com/JakeFAU/freelance-crawler/internal/store"
)

// listResponse is the envelope of every paged endpoint.
type listResponse[T any] struct {
	Data []T      `json:"data"`
	Meta pageMeta `json:"meta"`
}

type pageMeta struct {
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Pages int64 `json:"pages"`
}

func newListResponse[T any](items []T, total int64, p store.Page) listResponse[T] {
	p = p.Normalize()
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{
		Data: items,
		Meta: pageMeta{Total: total, Page: p.Page, Limit: p.Limit, Pages: p.Pages(total)},
	}
}

// reviewWithFreelancer embeds the reviewed freelancer when requested.
type reviewWithFreelancer struct {
	record.Review
	Freelancer *record.Freelancer `json:"freelancer,omitempty"`
}

func (s *Server) listFreelancers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	q := r.URL.Query()
	page, err := parsePage(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter, err := s.freelancerFilter(ctx, q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	items, total, err := s.reader.ListFreelancers(ctx, filter, page)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(items, total, page))
}

func (s *Server) getFreelancer(w http.ResponseWriter, r *http.Request) {
	getOne(s, w, r, "freelancer", s.reader.GetFreelancer)
}

func (s *Server) listCountries(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	countries, err := s.reader.ListCountries(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if countries == nil {
		countries = []record.Country{}
	}
	writeJSON(w, http.StatusOK, countries)
}

func (s *Server) getCountry(w http.ResponseWriter, r *http.Request) {
	getOne(s, w, r, "country", s.reader.GetCountry)
}

func (s *Server) listServices(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	q := r.URL.Query()
	page, err := parsePage(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var filter store.ServiceFilter
	if filter.MaxDuration, err = intParam(q, "max_duration"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.MinPrice, err = floatParam(q, "min_price"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.MaxPrice, err = floatParam(q, "max_price"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if id := strings.TrimSpace(q.Get("freelancer_id")); id != "" {
		f, err := s.reader.GetFreelancer(ctx, id)
		if err != nil {
			s.fail(w, r, fmt.Errorf("freelancer %w", err))
			return
		}
		filter.FreelancerID = f.URL
	}

	items, total, err := s.reader.ListServices(ctx, filter, page)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(items, total, page))
}

func (s *Server) getService(w http.ResponseWriter, r *http.Request) {
	getOne(s, w, r, "service", s.reader.GetService)
}

func (s *Server) listReviews(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	q := r.URL.Query()
	page, err := parsePage(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var filter store.ReviewFilter
	if filter.MinRating, err = floatParam(q, "min_rating"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	include, err := boolParam(q, "include_freelancers")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var owner *record.Freelancer
	if id := strings.TrimSpace(q.Get("freelancer_id")); id != "" {
		f, err := s.reader.GetFreelancer(ctx, id)
		if err != nil {
			s.fail(w, r, fmt.Errorf("freelancer %w", err))
			return
		}
		owner = &f
		filter.FreelancerID = f.URL
	}

	items, total, err := s.reader.ListReviews(ctx, filter, page)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !include {
		writeJSON(w, http.StatusOK, newListResponse(items, total, page))
		return
	}

	byURL, err := s.freelancersByURL(ctx, items, owner)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]reviewWithFreelancer, 0, len(items))
	for _, rv := range items {
		entry := reviewWithFreelancer{Review: rv}
		if f, ok := byURL[rv.FreelancerID]; ok {
			entry.Freelancer = &f
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, newListResponse(out, total, page))
}

// freelancersByURL loads the freelancers referenced by reviews in one query.
func (s *Server) freelancersByURL(
	ctx context.Context,
	reviews []record.Review,
	known *record.Freelancer,
) (map[string]record.Freelancer, error) {
	out := make(map[string]record.Freelancer)
	if known != nil {
		out[known.URL] = *known
	}
	var missing []string
	seen := make(map[string]struct{})
	for _, rv := range reviews {
		if rv.FreelancerID == "" {
			continue
		}
		if _, ok := out[rv.FreelancerID]; ok {
			continue
		}
		if _, ok := seen[rv.FreelancerID]; ok {
			continue
		}
		seen[rv.FreelancerID] = struct{}{}
		missing = append(missing, rv.FreelancerID)
	}
	if len(missing) == 0 {
		return out, nil
	}
	found, err := s.reader.FindFreelancers(ctx, store.FreelancerFilter{URLs: missing})
	if err != nil {
		return nil, fmt.Errorf("load review freelancers: %w", err)
	}
	for _, f := range found {
		out[f.URL] = f
	}
	return out, nil
}

func (s *Server) getReview(w http.ResponseWriter, r *http.Request) {
	getOne(s, w, r, "review", s.reader.GetReview)
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	filter, err := s.freelancerFilter(ctx, r.URL.Query())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	report, err := stats.Compute(ctx, s.reader, filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) listSkills(w http.ResponseWriter, r *http.Request) {
	s.distinct(w, r, stats.Skills)
}

func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	s.distinct(w, r, stats.Sources)
}

func (s *Server) distinct(w http.ResponseWriter, r *http.Request, fn func([]record.Freelancer) []string) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	all, err := s.reader.FindFreelancers(ctx, store.FreelancerFilter{})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fn(all))
}

// freelancerFilter builds the shared freelancer filter of the list and stats
// endpoints. Unknown country codes do not filter.
func (s *Server) freelancerFilter(ctx context.Context, q url.Values) (store.FreelancerFilter, error) {
	f := store.FreelancerFilter{
		Skill:  strings.TrimSpace(q.Get("skill")),
		Source: strings.TrimSpace(q.Get("source")),
	}
	if code := store.NormalizeCode(q.Get("country")); code != "" {
		c, err := s.reader.FindCountryByCode(ctx, code)
		switch {
		case err == nil:
			f.CountryID = c.ID
		case errors.Is(err, store.ErrNotFound):
		default:
			return f, fmt.Errorf("resolve country %s: %w", code, err)
		}
	}
	var err error
	if f.MinRate, err = floatParam(q, "min_rate"); err != nil {
		return f, err
	}
	if f.MaxRate, err = floatParam(q, "max_rate"); err != nil {
		return f, err
	}
	if f.MinRating, err = floatParam(q, "min_rating"); err != nil {
		return f, err
	}
	return f, nil
}

func getOne[T any](
	s *Server,
	w http.ResponseWriter,
	r *http.Request,
	noun string,
	get func(context.Context, string) (T, error),
) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	item, err := get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, fmt.Errorf("%s %w", noun, err))
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// fail maps an error to a status: bad parameters are 400, missing records
// 404, and anything else 500.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var pe *paramError
	switch {
	case errors.As(err, &pe):
		writeError(w, http.StatusBadRequest, pe.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, notFoundMessage(err))
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "query timed out")
	default:
		s.logger.Error("request failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// notFoundMessage turns "freelancer store: not found" into "freelancer not found".
func notFoundMessage(err error) string {
	noun, _, ok := strings.Cut(err.Error(), " ")
	if !ok || noun == "" {
		return "not found"
	}
	return noun + " not found"
}

type paramError struct {
	name  string
	value string
}

func (e *paramError) Error() string {
	return fmt.Sprintf("invalid %s %q", e.name, e.value)
}

func parsePage(q url.Values) (store.Page, error) {
	var p store.Page
	page, err := intParam(q, "page")
	if err != nil {
		return p, err
	}
	limit, err := intParam(q, "limit")
	if err != nil {
		return p, err
	}
	if page != nil {
		p.Page = *page
	}
	if limit != nil {
		p.Limit = *limit
	}
	return p.Normalize(), nil
}

func intParam(q url.Values, name string) (*int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, &paramError{name: name, value: raw}
	}
	return &v, nil
}

func floatParam(q url.Values, name string) (*float64, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, &paramError{name: name, value: raw}
	}
	return &v, nil
}

func boolParam(q url.Values, name string) (bool, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &paramError{name: name, value: raw}
	}
	return v, nil
}
