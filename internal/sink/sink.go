// Package sink persists normalized records. It is the single write path used
// by the crawl engine, the JSONL writer and raw imports.
package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/freelance-crawler/internal/record"
	"github.com/JakeFAU/freelance-crawler/internal/store"
)

// Sink normalizes records and writes them through a store.Writer.
type Sink struct {
	writer     store.Writer
	normalizer *record.Normalizer
	logger     *zap.Logger

	mu      sync.Mutex
	sources map[string]string
}

// New constructs a Sink.
func New(w store.Writer, n *record.Normalizer, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		writer:     w,
		normalizer: n,
		logger:     logger,
		sources:    make(map[string]string),
	}
}

// Upsert normalizes rec and persists it according to its kind. Freelancers
// and services with a URL replace the stored document holding that URL.
func (s *Sink) Upsert(ctx context.Context, rec record.Record) error {
	s.normalizer.Normalize(rec)
	switch r := rec.(type) {
	case *record.Freelancer:
		id, err := s.sourceID(ctx, r.Source, r.SourceID)
		if err != nil {
			return err
		}
		r.SourceID = id
		if err := s.writer.SaveFreelancer(ctx, r); err != nil {
			return fmt.Errorf("save freelancer %s: %w", r.URL, err)
		}
	case *record.Review:
		id, err := s.sourceID(ctx, r.Source, r.SourceID)
		if err != nil {
			return err
		}
		r.SourceID = id
		if err := s.writer.SaveReview(ctx, r); err != nil {
			return fmt.Errorf("save review for %s: %w", r.FreelancerID, err)
		}
	case *record.Service:
		if err := s.writer.SaveService(ctx, r); err != nil {
			return fmt.Errorf("save service for %s: %w", r.FreelancerID, err)
		}
	case *record.Country:
		admin, ok := s.writer.(store.Admin)
		if !ok {
			return fmt.Errorf("sink: writer cannot store countries")
		}
		if err := admin.InsertCountries(ctx, []record.Country{*r}); err != nil {
			return fmt.Errorf("save country %s: %w", r.Code, err)
		}
	case *record.Source:
		if err := s.writer.InsertSource(ctx, r); err != nil {
			return fmt.Errorf("save source %s: %w", r.Name, err)
		}
		s.remember(r.Name, r.ID)
	default:
		return fmt.Errorf("sink: unsupported record kind %q", rec.Kind())
	}
	return nil
}

// UpsertRaw decodes an untyped record, inferring its kind from its shape
// when no "_type" key is present, and persists it.
func (s *Sink) UpsertRaw(ctx context.Context, raw map[string]any) (record.Kind, error) {
	rec, err := record.Decode(raw)
	if err != nil {
		return "", fmt.Errorf("decode raw record: %w", err)
	}
	return rec.Kind(), s.Upsert(ctx, rec)
}

// sourceID resolves a source name to its id, creating the source on first
// sight. Two sinks racing on a new source may both create it; the store's
// unique name index keeps one.
func (s *Sink) sourceID(ctx context.Context, name, fallbackID string) (string, error) {
	if name == "" {
		return fallbackID, nil
	}
	s.mu.Lock()
	id, ok := s.sources[name]
	s.mu.Unlock()
	if ok {
		return id, nil
	}

	src, err := s.writer.FindSourceByName(ctx, name)
	switch {
	case err == nil:
		s.remember(name, src.ID)
		return src.ID, nil
	case !errors.Is(err, store.ErrNotFound):
		return "", fmt.Errorf("lookup source %s: %w", name, err)
	}

	src = record.Source{ID: fallbackID, Name: name}
	if err := s.writer.InsertSource(ctx, &src); err != nil {
		return "", fmt.Errorf("create source %s: %w", name, err)
	}
	s.logger.Info("created source", zap.String("name", name), zap.String("id", src.ID))
	s.remember(name, src.ID)
	return src.ID, nil
}

func (s *Sink) remember(name, id string) {
	s.mu.Lock()
	s.sources[name] = id
	s.mu.Unlock()
}
