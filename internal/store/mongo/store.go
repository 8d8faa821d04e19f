// Package mongo implements store.Store on MongoDB, one collection per record
// kind.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/JakeFAU/freelance-crawler/internal/record"
	"github.com/JakeFAU/freelance-crawler/internal/store"
)

// Config controls the client connection.
type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// Store persists records in MongoDB.
type Store struct {
	db  *mongo.Database
	ids store.IDGenerator
}

var _ store.Store = (*Store)(nil)

// New connects to MongoDB and verifies the connection.
func New(ctx context.Context, cfg Config, ids store.IDGenerator) (*Store, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("store.mongo.uri is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("store.mongo.database is required")
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return NewWithDatabase(client.Database(cfg.Database), ids), nil
}

// NewWithDatabase wraps an existing database handle.
func NewWithDatabase(db *mongo.Database, ids store.IDGenerator) *Store {
	return &Store{db: db, ids: ids}
}

func (s *Store) coll(kind record.Kind) *mongo.Collection {
	return s.db.Collection(kind.Collection())
}

func (s *Store) newID() (string, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return id, nil
}

// upsertByURL sets every field of doc on the document matching url, creating
// it with a fresh id when absent. It returns the stored id.
func (s *Store) upsertByURL(ctx context.Context, kind record.Kind, url string, doc any) (string, error) {
	fields, err := toFields(doc)
	if err != nil {
		return "", err
	}
	id, err := s.newID()
	if err != nil {
		return "", err
	}
	coll := s.coll(kind)
	res, err := coll.UpdateOne(ctx,
		bson.M{"url": url},
		bson.M{"$set": fields, "$setOnInsert": bson.M{"_id": id}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return "", fmt.Errorf("upsert %s: %w", kind, err)
	}
	if res.UpsertedCount > 0 {
		return id, nil
	}
	var existing struct {
		ID string `bson:"_id"`
	}
	err = coll.FindOne(ctx, bson.M{"url": url}, options.FindOne().SetProjection(bson.M{"_id": 1})).Decode(&existing)
	if err != nil {
		return "", fmt.Errorf("read %s id: %w", kind, err)
	}
	return existing.ID, nil
}

func toFields(doc any) (bson.M, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	var fields bson.M
	if err := bson.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	delete(fields, "_id")
	return fields, nil
}

func (s *Store) insert(ctx context.Context, kind record.Kind, id *string, doc any) error {
	if *id == "" {
		newID, err := s.newID()
		if err != nil {
			return err
		}
		*id = newID
	}
	if _, err := s.coll(kind).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert %s: %w", kind, err)
	}
	return nil
}

// SaveFreelancer implements store.Writer.
func (s *Store) SaveFreelancer(ctx context.Context, f *record.Freelancer) error {
	if f.URL == "" {
		return s.insert(ctx, record.KindFreelancer, &f.ID, f)
	}
	id, err := s.upsertByURL(ctx, record.KindFreelancer, f.URL, f)
	if err != nil {
		return err
	}
	f.ID = id
	return nil
}

// SaveReview implements store.Writer. Reviews are append-only.
func (s *Store) SaveReview(ctx context.Context, r *record.Review) error {
	return s.insert(ctx, record.KindReview, &r.ID, r)
}

// SaveService implements store.Writer.
func (s *Store) SaveService(ctx context.Context, svc *record.Service) error {
	if svc.URL == "" {
		return s.insert(ctx, record.KindService, &svc.ID, svc)
	}
	id, err := s.upsertByURL(ctx, record.KindService, svc.URL, svc)
	if err != nil {
		return err
	}
	svc.ID = id
	return nil
}

// FindSourceByName implements store.Writer.
func (s *Store) FindSourceByName(ctx context.Context, name string) (record.Source, error) {
	var src record.Source
	err := s.coll(record.KindSource).FindOne(ctx, bson.M{"name": name}).Decode(&src)
	return src, notFound(err, "find source")
}

// InsertSource implements store.Writer. Sources with an id are upserted.
func (s *Store) InsertSource(ctx context.Context, src *record.Source) error {
	if src.ID == "" {
		return s.insert(ctx, record.KindSource, &src.ID, src)
	}
	_, err := s.coll(record.KindSource).ReplaceOne(ctx, bson.M{"_id": src.ID}, src, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert source: %w", err)
	}
	return nil
}

// ListFreelancers implements store.Reader.
func (s *Store) ListFreelancers(ctx context.Context, f store.FreelancerFilter, p store.Page) ([]record.Freelancer, int64, error) {
	var out []record.Freelancer
	total, err := s.page(ctx, record.KindFreelancer, freelancerQuery(f), p, &out)
	return out, total, err
}

// FindFreelancers implements store.Reader.
func (s *Store) FindFreelancers(ctx context.Context, f store.FreelancerFilter) ([]record.Freelancer, error) {
	cur, err := s.coll(record.KindFreelancer).Find(ctx, freelancerQuery(f))
	if err != nil {
		return nil, fmt.Errorf("find freelancers: %w", err)
	}
	out := []record.Freelancer{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode freelancers: %w", err)
	}
	return out, nil
}

// GetFreelancer implements store.Reader.
func (s *Store) GetFreelancer(ctx context.Context, id string) (record.Freelancer, error) {
	var f record.Freelancer
	err := s.coll(record.KindFreelancer).FindOne(ctx, bson.M{"_id": id}).Decode(&f)
	return f, notFound(err, "get freelancer")
}

// ListCountries implements store.Reader.
func (s *Store) ListCountries(ctx context.Context) ([]record.Country, error) {
	cur, err := s.coll(record.KindCountry).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("find countries: %w", err)
	}
	out := []record.Country{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode countries: %w", err)
	}
	return out, nil
}

// GetCountry implements store.Reader.
func (s *Store) GetCountry(ctx context.Context, id string) (record.Country, error) {
	var c record.Country
	err := s.coll(record.KindCountry).FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	return c, notFound(err, "get country")
}

// FindCountryByCode implements store.Reader.
func (s *Store) FindCountryByCode(ctx context.Context, code string) (record.Country, error) {
	var c record.Country
	err := s.coll(record.KindCountry).FindOne(ctx, bson.M{"code": store.NormalizeCode(code)}).Decode(&c)
	return c, notFound(err, "find country")
}

// ListServices implements store.Reader.
func (s *Store) ListServices(ctx context.Context, f store.ServiceFilter, p store.Page) ([]record.Service, int64, error) {
	var out []record.Service
	total, err := s.page(ctx, record.KindService, serviceQuery(f), p, &out)
	return out, total, err
}

// GetService implements store.Reader.
func (s *Store) GetService(ctx context.Context, id string) (record.Service, error) {
	var svc record.Service
	err := s.coll(record.KindService).FindOne(ctx, bson.M{"_id": id}).Decode(&svc)
	return svc, notFound(err, "get service")
}

// ListReviews implements store.Reader.
func (s *Store) ListReviews(ctx context.Context, f store.ReviewFilter, p store.Page) ([]record.Review, int64, error) {
	var out []record.Review
	total, err := s.page(ctx, record.KindReview, reviewQuery(f), p, &out)
	return out, total, err
}

// GetReview implements store.Reader.
func (s *Store) GetReview(ctx context.Context, id string) (record.Review, error) {
	var r record.Review
	err := s.coll(record.KindReview).FindOne(ctx, bson.M{"_id": id}).Decode(&r)
	return r, notFound(err, "get review")
}

// Count implements store.Reader.
func (s *Store) Count(ctx context.Context, kind record.Kind) (int64, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("unknown kind %q", kind)
	}
	n, err := s.coll(kind).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	return n, nil
}

// Ping implements store.Reader.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Client().Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}
	return nil
}

// InsertCountries implements store.Admin.
func (s *Store) InsertCountries(ctx context.Context, countries []record.Country) error {
	if len(countries) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(countries))
	for _, c := range countries {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": c.ID}).
			SetReplacement(c).
			SetUpsert(true))
	}
	if _, err := s.coll(record.KindCountry).BulkWrite(ctx, models); err != nil {
		return fmt.Errorf("insert countries: %w", err)
	}
	return nil
}

// EnsureIndexes implements store.Admin.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	unique := func(field string) mongo.IndexModel {
		return mongo.IndexModel{
			Keys:    bson.D{{Key: field, Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		}
	}
	plain := func(field string) mongo.IndexModel {
		return mongo.IndexModel{Keys: bson.D{{Key: field, Value: 1}}}
	}
	indexes := map[record.Kind][]mongo.IndexModel{
		record.KindFreelancer: {unique("url"), plain("country_id"), plain("skills")},
		record.KindReview:     {plain("freelancer_id")},
		record.KindService:    {unique("url"), plain("freelancer_id")},
		record.KindCountry:    {unique("code")},
		record.KindSource:     {unique("name")},
	}
	for kind, models := range indexes {
		if _, err := s.coll(kind).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", kind, err)
		}
	}
	return nil
}

// Close implements store.Admin.
func (s *Store) Close(ctx context.Context) error {
	if err := s.db.Client().Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongo: %w", err)
	}
	return nil
}

func (s *Store) page(ctx context.Context, kind record.Kind, filter bson.M, p store.Page, out any) (int64, error) {
	coll := s.coll(kind)
	total, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	p = p.Normalize()
	opts := options.Find().SetSkip(int64(p.Offset())).SetLimit(int64(p.Limit))
	cur, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return 0, fmt.Errorf("find %s: %w", kind, err)
	}
	if err := cur.All(ctx, out); err != nil {
		return 0, fmt.Errorf("decode %s: %w", kind, err)
	}
	return total, nil
}

func freelancerQuery(f store.FreelancerFilter) bson.M {
	q := bson.M{}
	if f.CountryID != "" {
		q["country_id"] = f.CountryID
	}
	if f.Skill != "" {
		if f.IncludeMainSkill {
			q["$or"] = bson.A{bson.M{"skills": f.Skill}, bson.M{"main_skill": f.Skill}}
		} else {
			q["skills"] = f.Skill
		}
	}
	if f.Source != "" {
		q["source"] = f.Source
	}
	if r := rangeQuery(f.MinRate, f.MaxRate); r != nil {
		q["hourly_rate"] = r
	}
	if f.MinRating != nil {
		q["rating"] = bson.M{"$gte": *f.MinRating}
	}
	if len(f.URLs) > 0 {
		q["url"] = bson.M{"$in": f.URLs}
	}
	return q
}

func serviceQuery(f store.ServiceFilter) bson.M {
	q := bson.M{}
	if f.FreelancerID != "" {
		q["freelancer_id"] = f.FreelancerID
	}
	if r := rangeQuery(f.MinPrice, f.MaxPrice); r != nil {
		q["price"] = r
	}
	if f.MaxDuration != nil {
		q["duration"] = bson.M{"$lte": *f.MaxDuration}
	}
	return q
}

func reviewQuery(f store.ReviewFilter) bson.M {
	q := bson.M{}
	if f.FreelancerID != "" {
		q["freelancer_id"] = f.FreelancerID
	}
	if f.MinRating != nil {
		q["rating"] = bson.M{"$gte": *f.MinRating}
	}
	return q
}

func rangeQuery(lo, hi *float64) bson.M {
	if lo == nil && hi == nil {
		return nil
	}
	r := bson.M{}
	if lo != nil {
		r["$gte"] = *lo
	}
	if hi != nil {
		r["$lte"] = *hi
	}
	return r
}

func notFound(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return store.ErrNotFound
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
