// Package stats aggregates the crawled freelancers for the reporting API and
// the stats command.
package stats

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/JakeFAU/freelance-crawler/internal/record"
	"github.com/JakeFAU/freelance-crawler/internal/store"
)

const topN = 10

// Report is the full aggregate.
type Report struct {
	FreelancersCount       int64          `json:"freelancers_count"`
	CountriesCount         int64          `json:"countries_count"`
	ServicesCount          int64          `json:"services_count"`
	ReviewsCount           int64          `json:"reviews_count"`
	AvgRating              float64        `json:"avg_rating"`
	TopCountries           []CountryCount `json:"top_countries"`
	TopSkills              []NameCount    `json:"top_skills"`
	HourlyRateDistribution []RangeCount   `json:"hourly_rate_distribution"`
	RatingDistribution     []RatingCount  `json:"rating_distribution"`
	SourceDistribution     []SourceCount  `json:"source_distribution"`
	SignupByMonth          []MonthCount   `json:"signup_by_month"`
}

// CountryCount is one entry of TopCountries.
type CountryCount struct {
	Name  string `json:"name"`
	Code  string `json:"code"`
	Count int    `json:"count"`
}

// NameCount is one entry of TopSkills.
type NameCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// RangeCount is one hourly rate bucket.
type RangeCount struct {
	Range string `json:"range"`
	Count int    `json:"count"`
}

// RatingCount is one rating bucket.
type RatingCount struct {
	Rating int `json:"rating"`
	Count  int `json:"count"`
}

// SourceCount is one entry of SourceDistribution.
type SourceCount struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

// MonthCount counts freelancers created in a YYYY-MM month.
type MonthCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

type rateBucket struct {
	label    string
	min, max float64
}

var rateBuckets = []rateBucket{
	{"$0-20", 0, 20},
	{"$20-40", 20, 40},
	{"$40-60", 40, 60},
	{"$60-80", 60, 80},
	{"$80-100", 80, 100},
	{"$100-150", 100, 150},
	{"$150+", 150, math.Inf(1)},
}

// Compute loads the filtered freelancers plus the collection counts and
// aggregates them. The skill filter also matches main_skill.
func Compute(ctx context.Context, r store.Reader, f store.FreelancerFilter) (Report, error) {
	f.IncludeMainSkill = true
	freelancers, err := r.FindFreelancers(ctx, f)
	if err != nil {
		return Report{}, fmt.Errorf("find freelancers: %w", err)
	}
	countries, err := r.ListCountries(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list countries: %w", err)
	}
	rep := Summarize(freelancers, countries)

	if rep.ServicesCount, err = r.Count(ctx, record.KindService); err != nil {
		return Report{}, fmt.Errorf("count services: %w", err)
	}
	if rep.ReviewsCount, err = r.Count(ctx, record.KindReview); err != nil {
		return Report{}, fmt.Errorf("count reviews: %w", err)
	}
	return rep, nil
}

// Summarize aggregates freelancers in memory. Collection counts other than
// countries are left for the caller.
func Summarize(freelancers []record.Freelancer, countries []record.Country) Report {
	byID := make(map[string]record.Country, len(countries))
	for _, c := range countries {
		byID[c.ID] = c
	}

	rep := Report{
		FreelancersCount:       int64(len(freelancers)),
		CountriesCount:         int64(len(countries)),
		TopCountries:           []CountryCount{},
		TopSkills:              []NameCount{},
		HourlyRateDistribution: []RangeCount{},
		RatingDistribution:     make([]RatingCount, 0, 5),
		SourceDistribution:     []SourceCount{},
		SignupByMonth:          []MonthCount{},
	}

	var ratingSum float64
	var ratingN int
	perCountry := map[string]int{}
	perSkill := map[string]int{}
	perSource := map[string]int{}
	perMonth := map[string]int{}
	perBucket := make([]int, len(rateBuckets))
	perRating := make([]int, 5)
	for _, f := range freelancers {
		if f.Rating != nil {
			ratingSum += *f.Rating
			ratingN++
			for star := 1; star <= 5; star++ {
				lo, hi := float64(star)-0.5, float64(star)+0.5
				if *f.Rating >= lo && *f.Rating < hi {
					perRating[star-1]++
				}
			}
		}
		if f.HourlyRate != nil {
			for i, b := range rateBuckets {
				if *f.HourlyRate >= b.min && *f.HourlyRate < b.max {
					perBucket[i]++
					break
				}
			}
		}
		if _, ok := byID[f.CountryID]; ok {
			perCountry[f.CountryID]++
		}
		if f.MainSkill != "" {
			perSkill[f.MainSkill]++
		}
		source := f.Source
		if source == "" {
			source = "Unknown"
		}
		perSource[source]++
		if !f.CreatedAt.IsZero() {
			perMonth[f.CreatedAt.UTC().Format("2006-01")]++
		}
	}

	if ratingN > 0 {
		rep.AvgRating = math.Round(ratingSum/float64(ratingN)*100) / 100
	}
	for _, kv := range ranked(perCountry, topN) {
		c := byID[kv.key]
		rep.TopCountries = append(rep.TopCountries, CountryCount{Name: c.Name, Code: c.Code, Count: kv.count})
	}
	for _, kv := range ranked(perSkill, topN) {
		rep.TopSkills = append(rep.TopSkills, NameCount{Name: kv.key, Count: kv.count})
	}
	for i, b := range rateBuckets {
		if perBucket[i] > 0 {
			rep.HourlyRateDistribution = append(rep.HourlyRateDistribution, RangeCount{Range: b.label, Count: perBucket[i]})
		}
	}
	for i, n := range perRating {
		rep.RatingDistribution = append(rep.RatingDistribution, RatingCount{Rating: i + 1, Count: n})
	}
	for _, kv := range ranked(perSource, 0) {
		rep.SourceDistribution = append(rep.SourceDistribution, SourceCount{Source: kv.key, Count: kv.count})
	}
	months := make([]string, 0, len(perMonth))
	for m := range perMonth {
		months = append(months, m)
	}
	sort.Strings(months)
	for _, m := range months {
		rep.SignupByMonth = append(rep.SignupByMonth, MonthCount{Month: m, Count: perMonth[m]})
	}
	return rep
}

type keyCount struct {
	key   string
	count int
}

// ranked orders counts descending, ties by key. limit <= 0 keeps all.
func ranked(counts map[string]int, limit int) []keyCount {
	out := make([]keyCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, keyCount{k, n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].key < out[j].key
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Skills returns the distinct skills and main skills, sorted.
func Skills(freelancers []record.Freelancer) []string {
	seen := map[string]struct{}{}
	for _, f := range freelancers {
		for _, s := range f.Skills {
			if s != "" {
				seen[s] = struct{}{}
			}
		}
		if f.MainSkill != "" {
			seen[f.MainSkill] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// Sources returns the distinct freelancer source names, sorted.
func Sources(freelancers []record.Freelancer) []string {
	seen := map[string]struct{}{}
	for _, f := range freelancers {
		if f.Source != "" {
			seen[f.Source] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
