// Package record defines the normalized entities persisted by the crawler.
package record

import "time"

// Kind tags a record with the collection it belongs to.
type Kind string

// Record kinds.
const (
	KindFreelancer Kind = "freelancer"
	KindReview     Kind = "review"
	KindService    Kind = "service"
	KindCountry    Kind = "country"
	KindSource     Kind = "source"
)

// Collection returns the plural collection/table name for the kind.
func (k Kind) Collection() string {
	switch k {
	case KindFreelancer:
		return "freelancers"
	case KindReview:
		return "reviews"
	case KindService:
		return "services"
	case KindCountry:
		return "countries"
	case KindSource:
		return "sources"
	default:
		return ""
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k.Collection() != ""
}

// Record is implemented by every crawled entity.
type Record interface {
	Kind() Kind
}

// Country is immutable reference data.
type Country struct {
	ID   string `json:"id" bson:"_id" mapstructure:"_id"`
	Code string `json:"code" bson:"code" mapstructure:"code"`
	Name string `json:"name" bson:"name" mapstructure:"name"`
}

// Kind implements Record.
func (*Country) Kind() Kind { return KindCountry }

// Source is a marketplace the crawler reads from.
type Source struct {
	ID          string `json:"id" bson:"_id" mapstructure:"_id"`
	Name        string `json:"name" bson:"name" mapstructure:"name"`
	URL         string `json:"url" bson:"url" mapstructure:"url"`
	Description string `json:"description" bson:"description" mapstructure:"description"`
}

// Kind implements Record.
func (*Source) Kind() Kind { return KindSource }

// Freelancer is a marketplace profile. URL is the natural key.
type Freelancer struct {
	ID           string    `json:"id" bson:"_id,omitempty" mapstructure:"id"`
	URL          string    `json:"url" bson:"url" mapstructure:"url"`
	URLOfSearch  string    `json:"url_of_search" bson:"url_of_search" mapstructure:"url_of_search"`
	Name         string    `json:"name" bson:"name" mapstructure:"name"`
	Title        string    `json:"title" bson:"title" mapstructure:"title"`
	Description  string    `json:"description" bson:"description" mapstructure:"description"`
	Thumbnail    string    `json:"thumbnail" bson:"thumbnail" mapstructure:"thumbnail"`
	Skills       []string  `json:"skills" bson:"skills" mapstructure:"skills"`
	Rating       *float64  `json:"rating" bson:"rating" mapstructure:"rating"`
	ReviewsCount *int      `json:"reviews_count" bson:"reviews_count" mapstructure:"reviews_count"`
	HourlyRate   *float64  `json:"hourly_rate" bson:"hourly_rate" mapstructure:"hourly_rate"`
	MinPrice     *float64  `json:"min_price" bson:"min_price" mapstructure:"min_price"`
	MaxPrice     *float64  `json:"max_price" bson:"max_price" mapstructure:"max_price"`
	CountryID    string    `json:"country_id" bson:"country_id" mapstructure:"country_id"`
	CountryName  string    `json:"country_name" bson:"country_name" mapstructure:"country_name"`
	Source       string    `json:"source" bson:"source" mapstructure:"source"`
	SourceID     string    `json:"source_id" bson:"source_id" mapstructure:"source_id"`
	MainSkill    string    `json:"main_skill" bson:"main_skill" mapstructure:"main_skill"`
	CategoryID   string    `json:"category_id" bson:"category_id" mapstructure:"category_id"`
	MainCategory string    `json:"main_category" bson:"main_category" mapstructure:"main_category"`
	Subcategory  string    `json:"subcategory" bson:"subcategory" mapstructure:"subcategory"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at" mapstructure:"created_at"`
	IsVerified   bool      `json:"is_verified" bson:"is_verified" mapstructure:"is_verified"`
	Pictures     []string  `json:"pictures" bson:"pictures" mapstructure:"pictures"`
}

// Kind implements Record.
func (*Freelancer) Kind() Kind { return KindFreelancer }

// Review belongs to a freelancer; FreelancerID holds the freelancer URL.
type Review struct {
	ID           string    `json:"id" bson:"_id,omitempty" mapstructure:"id"`
	FreelancerID string    `json:"freelancer_id" bson:"freelancer_id" mapstructure:"freelancer_id"`
	Author       string    `json:"author" bson:"author" mapstructure:"author"`
	Rating       *float64  `json:"rating" bson:"rating" mapstructure:"rating"`
	Picture      string    `json:"picture" bson:"picture" mapstructure:"picture"`
	Text         string    `json:"text" bson:"text" mapstructure:"text"`
	Title        string    `json:"title" bson:"title" mapstructure:"title"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at" mapstructure:"created_at"`
	Source       string    `json:"source" bson:"source" mapstructure:"source"`
	SourceID     string    `json:"source_id" bson:"source_id" mapstructure:"source_id"`
}

// Kind implements Record.
func (*Review) Kind() Kind { return KindReview }

// Service is a fixed-price offer published by a freelancer.
type Service struct {
	ID           string    `json:"id" bson:"_id,omitempty" mapstructure:"id"`
	FreelancerID string    `json:"freelancer_id" bson:"freelancer_id" mapstructure:"freelancer_id"`
	URL          string    `json:"url,omitempty" bson:"url,omitempty" mapstructure:"url"`
	Title        string    `json:"title" bson:"title" mapstructure:"title"`
	Description  string    `json:"description" bson:"description" mapstructure:"description"`
	Price        *float64  `json:"price" bson:"price" mapstructure:"price"`
	Duration     *int      `json:"duration" bson:"duration" mapstructure:"duration"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at" mapstructure:"created_at"`
}

// Kind implements Record.
func (*Service) Kind() Kind { return KindService }

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
