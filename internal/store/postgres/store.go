// Package postgres implements store.Store on Postgres. Crawled records are
// kept as JSONB documents keyed by id with a unique url column, so the
// upsert semantics match the document backends.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/freelance-crawler/internal/record"
	"github.com/JakeFAU/freelance-crawler/internal/store"
)

var validPrefix = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	TablePrefix     string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// Store persists records in Postgres.
type Store struct {
	pool   pool
	prefix string
	ids    store.IDGenerator
}

var _ store.Store = (*Store)(nil)

// New creates a pooled Store using cfg.
func New(ctx context.Context, cfg Config, ids store.IDGenerator) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewWithPool(p, cfg.TablePrefix, ids)
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, prefix string, ids store.IDGenerator) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if prefix != "" && !validPrefix.MatchString(prefix) {
		return nil, fmt.Errorf("invalid table prefix %q", prefix)
	}
	return &Store{pool: p, prefix: prefix, ids: ids}, nil
}

func (s *Store) table(kind record.Kind) string {
	return s.prefix + kind.Collection()
}

func (s *Store) newID() (string, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return id, nil
}

// save inserts doc, or replaces the row holding the same url. A NULL url
// never conflicts.
func (s *Store) save(ctx context.Context, kind record.Kind, id *string, url string, doc any) error {
	if *id == "" {
		newID, err := s.newID()
		if err != nil {
			return err
		}
		*id = newID
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}
	var urlArg any
	if url != "" {
		urlArg = url
	}
	query := fmt.Sprintf(`
INSERT INTO %[1]s (id, url, doc) VALUES ($1, $2, $3)
ON CONFLICT (url) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()
RETURNING id`, s.table(kind))
	if err := s.pool.QueryRow(ctx, query, *id, urlArg, body).Scan(id); err != nil {
		return fmt.Errorf("upsert %s: %w", kind, err)
	}
	return nil
}

// SaveFreelancer implements store.Writer.
func (s *Store) SaveFreelancer(ctx context.Context, f *record.Freelancer) error {
	return s.save(ctx, record.KindFreelancer, &f.ID, f.URL, f)
}

// SaveReview implements store.Writer.
func (s *Store) SaveReview(ctx context.Context, r *record.Review) error {
	return s.save(ctx, record.KindReview, &r.ID, "", r)
}

// SaveService implements store.Writer.
func (s *Store) SaveService(ctx context.Context, svc *record.Service) error {
	return s.save(ctx, record.KindService, &svc.ID, svc.URL, svc)
}

// FindSourceByName implements store.Writer.
func (s *Store) FindSourceByName(ctx context.Context, name string) (record.Source, error) {
	var src record.Source
	query := fmt.Sprintf(`SELECT id, name, url, description FROM %s WHERE name = $1`, s.table(record.KindSource))
	err := s.pool.QueryRow(ctx, query, name).Scan(&src.ID, &src.Name, &src.URL, &src.Description)
	return src, notFound(err, "find source")
}

// InsertSource implements store.Writer.
func (s *Store) InsertSource(ctx context.Context, src *record.Source) error {
	if src.ID == "" {
		id, err := s.newID()
		if err != nil {
			return err
		}
		src.ID = id
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, name, url, description) VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, url = EXCLUDED.url, description = EXCLUDED.description`,
		s.table(record.KindSource))
	if _, err := s.pool.Exec(ctx, query, src.ID, src.Name, src.URL, src.Description); err != nil {
		return fmt.Errorf("insert source: %w", err)
	}
	return nil
}

// ListFreelancers implements store.Reader.
func (s *Store) ListFreelancers(ctx context.Context, f store.FreelancerFilter, p store.Page) ([]record.Freelancer, int64, error) {
	w := freelancerWhere(f)
	total, err := s.count(ctx, record.KindFreelancer, w)
	if err != nil {
		return nil, 0, err
	}
	items, err := queryDocs[record.Freelancer](ctx, s, record.KindFreelancer, w, &p,
		func(f *record.Freelancer, id string) { f.ID = id })
	return items, total, err
}

// FindFreelancers implements store.Reader.
func (s *Store) FindFreelancers(ctx context.Context, f store.FreelancerFilter) ([]record.Freelancer, error) {
	return queryDocs[record.Freelancer](ctx, s, record.KindFreelancer, freelancerWhere(f), nil,
		func(f *record.Freelancer, id string) { f.ID = id })
}

// GetFreelancer implements store.Reader.
func (s *Store) GetFreelancer(ctx context.Context, id string) (record.Freelancer, error) {
	var f record.Freelancer
	err := s.getDoc(ctx, record.KindFreelancer, id, &f)
	f.ID = id
	return f, err
}

// ListCountries implements store.Reader.
func (s *Store) ListCountries(ctx context.Context) ([]record.Country, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT id, code, name FROM %s ORDER BY name`, s.table(record.KindCountry)))
	if err != nil {
		return nil, fmt.Errorf("list countries: %w", err)
	}
	defer rows.Close()
	out := []record.Country{}
	for rows.Next() {
		var c record.Country
		if err := rows.Scan(&c.ID, &c.Code, &c.Name); err != nil {
			return nil, fmt.Errorf("scan country: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetCountry implements store.Reader.
func (s *Store) GetCountry(ctx context.Context, id string) (record.Country, error) {
	return s.country(ctx, "id", id)
}

// FindCountryByCode implements store.Reader.
func (s *Store) FindCountryByCode(ctx context.Context, code string) (record.Country, error) {
	return s.country(ctx, "code", store.NormalizeCode(code))
}

func (s *Store) country(ctx context.Context, column, value string) (record.Country, error) {
	var c record.Country
	query := fmt.Sprintf(`SELECT id, code, name FROM %s WHERE %s = $1`, s.table(record.KindCountry), column)
	err := s.pool.QueryRow(ctx, query, value).Scan(&c.ID, &c.Code, &c.Name)
	return c, notFound(err, "get country")
}

// ListServices implements store.Reader.
func (s *Store) ListServices(ctx context.Context, f store.ServiceFilter, p store.Page) ([]record.Service, int64, error) {
	w := &where{}
	w.add("doc->>'freelancer_id' = $%d", f.FreelancerID, f.FreelancerID != "")
	w.addRange("(doc->>'price')::float8", f.MinPrice, f.MaxPrice)
	if f.MaxDuration != nil {
		w.add("(doc->>'duration')::int <= $%d", *f.MaxDuration, true)
	}
	total, err := s.count(ctx, record.KindService, w)
	if err != nil {
		return nil, 0, err
	}
	items, err := queryDocs[record.Service](ctx, s, record.KindService, w, &p,
		func(svc *record.Service, id string) { svc.ID = id })
	return items, total, err
}

// GetService implements store.Reader.
func (s *Store) GetService(ctx context.Context, id string) (record.Service, error) {
	var svc record.Service
	err := s.getDoc(ctx, record.KindService, id, &svc)
	svc.ID = id
	return svc, err
}

// ListReviews implements store.Reader.
func (s *Store) ListReviews(ctx context.Context, f store.ReviewFilter, p store.Page) ([]record.Review, int64, error) {
	w := &where{}
	w.add("doc->>'freelancer_id' = $%d", f.FreelancerID, f.FreelancerID != "")
	w.addRange("(doc->>'rating')::float8", f.MinRating, nil)
	total, err := s.count(ctx, record.KindReview, w)
	if err != nil {
		return nil, 0, err
	}
	items, err := queryDocs[record.Review](ctx, s, record.KindReview, w, &p,
		func(r *record.Review, id string) { r.ID = id })
	return items, total, err
}

// GetReview implements store.Reader.
func (s *Store) GetReview(ctx context.Context, id string) (record.Review, error) {
	var r record.Review
	err := s.getDoc(ctx, record.KindReview, id, &r)
	r.ID = id
	return r, err
}

// Count implements store.Reader.
func (s *Store) Count(ctx context.Context, kind record.Kind) (int64, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("unknown kind %q", kind)
	}
	return s.count(ctx, kind, &where{})
}

// Ping implements store.Reader.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// InsertCountries implements store.Admin.
func (s *Store) InsertCountries(ctx context.Context, countries []record.Country) error {
	query := fmt.Sprintf(`
INSERT INTO %s (id, code, name) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET code = EXCLUDED.code, name = EXCLUDED.name`, s.table(record.KindCountry))
	for _, c := range countries {
		if _, err := s.pool.Exec(ctx, query, c.ID, c.Code, c.Name); err != nil {
			return fmt.Errorf("insert country %s: %w", c.Code, err)
		}
	}
	return nil
}

// EnsureIndexes implements store.Admin. It creates the tables as well.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	var stmts []string
	for _, kind := range []record.Kind{record.KindFreelancer, record.KindReview, record.KindService} {
		t := s.table(kind)
		stmts = append(stmts,
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	url TEXT UNIQUE,
	seq BIGSERIAL,
	doc JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, t),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_doc_idx ON %[1]s USING GIN (doc jsonb_path_ops)`, t),
		)
	}
	stmts = append(stmts,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, code TEXT UNIQUE NOT NULL, name TEXT NOT NULL)`,
			s.table(record.KindCountry)),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, name TEXT UNIQUE NOT NULL, url TEXT NOT NULL DEFAULT '', description TEXT NOT NULL DEFAULT '')`,
			s.table(record.KindSource)),
	)
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Close implements store.Admin.
func (s *Store) Close(context.Context) error {
	s.pool.Close()
	return nil
}

func (s *Store) count(ctx context.Context, kind record.Kind, w *where) (int64, error) {
	var n int64
	query := fmt.Sprintf(`SELECT count(*) FROM %s%s`, s.table(kind), w.sql())
	if err := s.pool.QueryRow(ctx, query, w.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	return n, nil
}

func (s *Store) getDoc(ctx context.Context, kind record.Kind, id string, out any) error {
	var body []byte
	query := fmt.Sprintf(`SELECT doc FROM %s WHERE id = $1`, s.table(kind))
	if err := s.pool.QueryRow(ctx, query, id).Scan(&body); err != nil {
		return notFound(err, "get "+string(kind))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", kind, err)
	}
	return nil
}

// queryDocs loads documents matching w in insertion order, windowed by p
// when p is non-nil.
func queryDocs[T any](ctx context.Context, s *Store, kind record.Kind, w *where, p *store.Page, setID func(*T, string)) ([]T, error) {
	query := fmt.Sprintf(`SELECT id, doc FROM %s%s ORDER BY seq`, s.table(kind), w.sql())
	args := w.args
	if p != nil {
		n := p.Normalize()
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
		args = append(append([]any{}, args...), n.Limit, n.Offset())
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", kind, err)
	}
	defer rows.Close()
	out := []T{}
	for rows.Next() {
		var (
			id   string
			body []byte
			item T
		)
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		if err := json.Unmarshal(body, &item); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		setID(&item, id)
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", kind, err)
	}
	return out, nil
}

func freelancerWhere(f store.FreelancerFilter) *where {
	w := &where{}
	w.add("doc->>'country_id' = $%d", f.CountryID, f.CountryID != "")
	if f.Skill != "" {
		if f.IncludeMainSkill {
			w.add("(doc->'skills' ? $%[1]d OR doc->>'main_skill' = $%[1]d)", f.Skill, true)
		} else {
			w.add("doc->'skills' ? $%d", f.Skill, true)
		}
	}
	w.add("doc->>'source' = $%d", f.Source, f.Source != "")
	w.addRange("(doc->>'hourly_rate')::float8", f.MinRate, f.MaxRate)
	w.addRange("(doc->>'rating')::float8", f.MinRating, nil)
	w.add("doc->>'url' = ANY($%d)", f.URLs, len(f.URLs) > 0)
	return w
}

// where accumulates positional filter clauses. Each clause carries one %d
// verb for its placeholder number.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, arg any, ok bool) {
	if !ok {
		return
	}
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(clause, len(w.args)))
}

func (w *where) addRange(expr string, lo, hi *float64) {
	if lo != nil {
		w.add(expr+" >= $%d", *lo, true)
	}
	if hi != nil {
		w.add(expr+" <= $%d", *hi, true)
	}
}

func (w *where) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func notFound(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return store.ErrNotFound
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
