// Package taxonomy loads the static reference tables the crawler needs:
// countries, sources and the per-site category mapping.
package taxonomy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/JakeFAU/freelance-crawler/internal/record"
)

// Default file names inside the taxonomy directory.
const (
	CountriesFile     = "countries.json"
	SourcesFile       = "sources.json"
	FilterMappingFile = "filter_mapping.json"
)

var (
	// ErrMissingFile reports an absent reference file.
	ErrMissingFile = errors.New("taxonomy file missing")
	// ErrMalformed reports a reference file that does not match its schema.
	ErrMalformed = errors.New("taxonomy file malformed")
)

// Paths locates the three reference files. Empty fields fall back to the
// default file name inside Dir.
type Paths struct {
	Dir           string `mapstructure:"dir"`
	Countries     string `mapstructure:"countries"`
	Sources       string `mapstructure:"sources"`
	FilterMapping string `mapstructure:"filter_mapping"`
}

func (p Paths) resolve(explicit, name string) string {
	if explicit != "" {
		return explicit
	}
	return filepath.Join(p.Dir, name)
}

// Category is one leaf of a site's category tree.
type Category struct {
	Main string
	Sub  string
	ID   string
}

// Taxonomy is the in-memory view of the reference tables.
type Taxonomy struct {
	countries []record.Country
	sources   []record.Source
	mapping   map[string][]Category

	byCode       map[string]record.Country
	byName       map[string]record.Country
	sourceByName map[string]record.Source
}

type countryDoc struct {
	ID   string `json:"_id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

type sourceDoc struct {
	ID          string `json:"_id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// Load reads and indexes every reference file. Any failure is a
// configuration error and the caller must not start crawling.
func Load(p Paths) (*Taxonomy, error) {
	var countries []countryDoc
	if err := readJSON(p.resolve(p.Countries, CountriesFile), &countries); err != nil {
		return nil, err
	}
	var sources []sourceDoc
	if err := readJSON(p.resolve(p.Sources, SourcesFile), &sources); err != nil {
		return nil, err
	}
	var mapping map[string]map[string]map[string]categoryID
	if err := readJSON(p.resolve(p.FilterMapping, FilterMappingFile), &mapping); err != nil {
		return nil, err
	}

	t := &Taxonomy{
		mapping:      make(map[string][]Category, len(mapping)),
		byCode:       make(map[string]record.Country, len(countries)),
		byName:       make(map[string]record.Country, len(countries)),
		sourceByName: make(map[string]record.Source, len(sources)),
	}
	for i, c := range countries {
		if c.Code == "" || c.Name == "" {
			return nil, fmt.Errorf("%w: country #%d needs code and name", ErrMalformed, i)
		}
		country := record.Country{ID: c.ID, Code: strings.ToUpper(c.Code), Name: c.Name}
		t.countries = append(t.countries, country)
		t.byCode[country.Code] = country
		t.byName[strings.ToLower(country.Name)] = country
	}
	for i, s := range sources {
		if s.Name == "" {
			return nil, fmt.Errorf("%w: source #%d needs a name", ErrMalformed, i)
		}
		source := record.Source{ID: s.ID, Name: s.Name, URL: s.URL, Description: s.Description}
		t.sources = append(t.sources, source)
		t.sourceByName[strings.ToLower(source.Name)] = source
	}
	for site, tree := range mapping {
		t.mapping[strings.ToLower(site)] = flatten(tree)
	}
	return t, nil
}

// flatten orders categories by main category then subcategory name so the
// traversal sees a stable list.
func flatten(tree map[string]map[string]categoryID) []Category {
	out := make([]Category, 0)
	for main, subs := range tree {
		for sub, id := range subs {
			out = append(out, Category{Main: main, Sub: sub, ID: string(id)})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Main != out[j].Main {
			return out[i].Main < out[j].Main
		}
		return out[i].Sub < out[j].Sub
	})
	return out
}

// categoryID accepts both string and numeric ids.
type categoryID string

func (c *categoryID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*c = categoryID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("category id must be a string or number: %w", err)
	}
	*c = categoryID(n.String())
	return nil
}

func readJSON(path string, dst any) error {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied reference path
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrMissingFile, path)
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	return nil
}

// Countries returns every country in file order.
func (t *Taxonomy) Countries() []record.Country {
	return append([]record.Country(nil), t.countries...)
}

// Sources returns every source in file order.
func (t *Taxonomy) Sources() []record.Source {
	return append([]record.Source(nil), t.sources...)
}

// CountryCodes returns the country codes in file order.
func (t *Taxonomy) CountryCodes() []string {
	out := make([]string, 0, len(t.countries))
	for _, c := range t.countries {
		out = append(out, c.Code)
	}
	return out
}

// CountryByCode looks a country up by its (case-insensitive) code.
func (t *Taxonomy) CountryByCode(code string) (record.Country, bool) {
	c, ok := t.byCode[strings.ToUpper(strings.TrimSpace(code))]
	return c, ok
}

// CountryByName looks a country up by its (case-insensitive) name.
func (t *Taxonomy) CountryByName(name string) (record.Country, bool) {
	c, ok := t.byName[strings.ToLower(strings.TrimSpace(name))]
	return c, ok
}

// SourceByName looks a source up by its (case-insensitive) name.
func (t *Taxonomy) SourceByName(name string) (record.Source, bool) {
	s, ok := t.sourceByName[strings.ToLower(strings.TrimSpace(name))]
	return s, ok
}

// Categories returns the flattened category list for a site mapping key
// such as "Freelancer". Unknown sites yield nil.
func (t *Taxonomy) Categories(site string) []Category {
	return append([]Category(nil), t.mapping[strings.ToLower(site)]...)
}
