package traversal

import (
	"math/rand/v2"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/freelance-crawler/internal/record"
)

// DefaultLocationCodes is the development subset searched when no country
// override is given.
var DefaultLocationCodes = []string{"FR", "GB", "US", "DE", "IN"}

// Ordering decides the visiting order of a list.
type Ordering interface {
	Apply(n int, swap func(i, j int))
}

// Identity keeps lists in their given order.
type Identity struct{}

// Apply implements Ordering.
func (Identity) Apply(int, func(i, j int)) {}

// Shuffle randomizes list order to spread load across runs.
type Shuffle struct {
	rng *rand.Rand
}

// NewShuffle builds a Shuffle. A nil rng uses an unseeded source.
func NewShuffle(rng *rand.Rand) Shuffle {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) // #nosec G404 -- ordering only
	}
	return Shuffle{rng: rng}
}

// Apply implements Ordering.
func (s Shuffle) Apply(n int, swap func(i, j int)) {
	s.rng.Shuffle(n, swap)
}

// Countries is the subset of the taxonomy the planner reads.
type Countries interface {
	Countries() []record.Country
	CountryByCode(code string) (record.Country, bool)
}

// Locations builds the location list. A known override yields exactly that
// country; an unknown one is logged and widens the plan to every country.
// Ordering applies only when no override is given.
func Locations(countries Countries, override string, ordering Ordering, logger *zap.Logger) []Location {
	if logger == nil {
		logger = zap.NewNop()
	}
	override = strings.TrimSpace(override)
	if override != "" {
		if c, ok := countries.CountryByCode(override); ok {
			return []Location{toLocation(c)}
		}
		logger.Warn("country override not in reference data, using every country",
			zap.String("country", override),
		)
		all := countries.Countries()
		out := make([]Location, 0, len(all))
		for _, c := range all {
			out = append(out, toLocation(c))
		}
		return out
	}

	out := make([]Location, 0, len(DefaultLocationCodes))
	for _, code := range DefaultLocationCodes {
		c, ok := countries.CountryByCode(code)
		if !ok {
			logger.Warn("default country missing from reference data", zap.String("country", code))
			continue
		}
		out = append(out, toLocation(c))
	}
	if ordering != nil {
		ordering.Apply(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	}
	return out
}

func toLocation(c record.Country) Location {
	return Location{Code: c.Code, CountryID: c.ID, Name: c.Name}
}

// FilterCategories narrows categories to those whose key or subcategory
// contains override (case-insensitive). With no override the ordering is
// applied instead. The boolean reports whether anything matched.
func FilterCategories(categories []Category, override string, ordering Ordering) ([]Category, bool) {
	override = strings.ToLower(strings.TrimSpace(override))
	if override == "" {
		out := append([]Category(nil), categories...)
		if ordering != nil {
			ordering.Apply(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
		}
		return out, true
	}
	var out []Category
	for _, c := range categories {
		if strings.Contains(strings.ToLower(c.Key), override) ||
			strings.Contains(strings.ToLower(c.Sub), override) {
			out = append(out, c)
		}
	}
	return out, len(out) > 0
}
