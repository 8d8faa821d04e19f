// Package jsonl writes crawled records as newline-delimited JSON, one
// "_type" tagged object per line, instead of a database.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/JakeFAU/freelance-crawler/internal/record"
	"github.com/JakeFAU/freelance-crawler/internal/store"
)

// SourceLookup resolves reference sources by name.
type SourceLookup interface {
	SourceByName(name string) (record.Source, bool)
}

// Writer implements store.Writer on an append-only stream. Upserts become
// appends; the last line for a URL wins when the file is imported.
type Writer struct {
	mu      sync.Mutex
	out     *bufio.Writer
	closer  io.Closer
	path    string
	ids     store.IDGenerator
	ref     SourceLookup
	sources map[string]record.Source
	lines   int
}

var _ store.Writer = (*Writer)(nil)

// Create opens a new crawl-<timestamp>.jsonl file under dir.
func Create(dir string, now time.Time, ids store.IDGenerator, ref SourceLookup) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, fmt.Sprintf("crawl-%s.jsonl", now.UTC().Format("20060102T150405Z")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	w := New(f, ids, ref)
	w.closer = f
	w.path = path
	return w, nil
}

// New wraps an arbitrary stream.
func New(out io.Writer, ids store.IDGenerator, ref SourceLookup) *Writer {
	return &Writer{
		out:     bufio.NewWriter(out),
		ids:     ids,
		ref:     ref,
		sources: make(map[string]record.Source),
	}
}

// Path is the file being written, empty for streams.
func (w *Writer) Path() string { return w.path }

// Lines reports how many records were written.
func (w *Writer) Lines() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lines
}

func writeTagged(w *Writer, kind record.Kind, id *string, rec any) error {
	if *id == "" {
		newID, err := w.ids.NewID()
		if err != nil {
			return fmt.Errorf("generate id: %w", err)
		}
		*id = newID
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return fmt.Errorf("flatten %s: %w", kind, err)
	}
	fields[record.TypeKey], _ = json.Marshal(kind)
	line, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.out.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write %s: %w", kind, err)
	}
	w.lines++
	return nil
}

// SaveFreelancer implements store.Writer.
func (w *Writer) SaveFreelancer(_ context.Context, f *record.Freelancer) error {
	return writeTagged(w, record.KindFreelancer, &f.ID, f)
}

// SaveReview implements store.Writer.
func (w *Writer) SaveReview(_ context.Context, r *record.Review) error {
	return writeTagged(w, record.KindReview, &r.ID, r)
}

// SaveService implements store.Writer.
func (w *Writer) SaveService(_ context.Context, s *record.Service) error {
	return writeTagged(w, record.KindService, &s.ID, s)
}

// FindSourceByName implements store.Writer using sources written so far and
// the reference data.
func (w *Writer) FindSourceByName(_ context.Context, name string) (record.Source, error) {
	w.mu.Lock()
	src, ok := w.sources[name]
	w.mu.Unlock()
	if ok {
		return src, nil
	}
	if w.ref != nil {
		if src, ok := w.ref.SourceByName(name); ok {
			return src, nil
		}
	}
	return record.Source{}, store.ErrNotFound
}

// InsertSource implements store.Writer.
func (w *Writer) InsertSource(_ context.Context, s *record.Source) error {
	if err := writeTagged(w, record.KindSource, &s.ID, s); err != nil {
		return err
	}
	w.mu.Lock()
	w.sources[s.Name] = *s
	w.mu.Unlock()
	return nil
}

// Close flushes buffered lines and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.out.Flush(); err != nil {
		return fmt.Errorf("flush jsonl: %w", err)
	}
	if w.closer != nil {
		if err := w.closer.Close(); err != nil {
			return fmt.Errorf("close jsonl: %w", err)
		}
	}
	return nil
}
