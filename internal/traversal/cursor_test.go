package traversal

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/freelance-crawler/internal/record"
)

func cats(keys ...string) []Category {
	out := make([]Category, 0, len(keys))
	for _, k := range keys {
		out = append(out, Category{Key: k, Sub: k})
	}
	return out
}

func locs(codes ...string) []Location {
	out := make([]Location, 0, len(codes))
	for _, c := range codes {
		out = append(out, Location{Code: c})
	}
	return out
}

func TestNewCursorRejectsEmptyPlan(t *testing.T) {
	t.Parallel()

	_, err := NewCursor(nil, locs("FR"), nil)
	require.ErrorIs(t, err, ErrEmptyPlan)
	_, err = NewCursor(cats("a"), nil, nil)
	require.ErrorIs(t, err, ErrEmptyPlan)
}

func TestCursorVisitsEveryPairOnce(t *testing.T) {
	t.Parallel()

	c, err := NewCursor(cats("a", "b", "c"), locs("FR", "GB", "US", "DE"), nil)
	require.NoError(t, err)

	seen := map[string]int{}
	target, ok := c.Start(), true
	steps := 0
	for ok {
		seen[target.Category.Key+"/"+target.Location.Code]++
		require.Equal(t, 1, target.Page)
		target, ok = c.Next(target, Exhausted)
		steps++
		require.LessOrEqual(t, steps, c.Pairs(), "cursor did not terminate")
	}

	assert.Len(t, seen, 12)
	for pair, n := range seen {
		assert.Equal(t, 1, n, pair)
	}
}

func TestCursorPaginatesWithinPair(t *testing.T) {
	t.Parallel()

	c, err := NewCursor(cats("a"), locs("FR", "GB"), nil)
	require.NoError(t, err)

	next, ok := c.Next(c.Start(), Outcome{Candidates: 3, HasNext: true})
	require.True(t, ok)
	assert.Equal(t, Target{Category: Category{Key: "a", Sub: "a"}, Location: Location{Code: "FR"}, Page: 2}, next)

	next, ok = c.Next(next, Outcome{Candidates: 3, HasNext: false})
	require.True(t, ok)
	assert.Equal(t, "GB", next.Location.Code)
	assert.Equal(t, 1, next.Page)
}

func TestCursorEmptyPageAdvancesDespiteNextControl(t *testing.T) {
	t.Parallel()

	c, err := NewCursor(cats("A"), locs("FR", "GB"), nil)
	require.NoError(t, err)

	next, ok := c.Next(c.Start(), Outcome{Candidates: 0, HasNext: true})
	require.True(t, ok)
	assert.Equal(t, "A", next.Category.Key)
	assert.Equal(t, "GB", next.Location.Code)
	assert.Equal(t, 1, next.Page)
}

func TestCursorAdvancesCategoryAfterLastLocation(t *testing.T) {
	t.Parallel()

	c, err := NewCursor(cats("a", "b"), locs("FR", "GB"), nil)
	require.NoError(t, err)

	from := Target{Category: Category{Key: "a"}, Location: Location{Code: "GB"}, Page: 7}
	next, ok := c.Next(from, Exhausted)
	require.True(t, ok)
	assert.Equal(t, "b", next.Category.Key)
	assert.Equal(t, "FR", next.Location.Code)
	assert.Equal(t, 1, next.Page)

	_, ok = c.Next(Target{Category: Category{Key: "b"}, Location: Location{Code: "GB"}, Page: 1}, Exhausted)
	assert.False(t, ok)
}

func TestCursorRestartsOnUnknownTarget(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	c, err := NewCursor(cats("a", "b"), locs("FR", "GB"), zap.New(core))
	require.NoError(t, err)

	next, ok := c.Next(Target{Category: Category{Key: "zzz"}, Location: Location{Code: "FR"}, Page: 3}, Outcome{Candidates: 5, HasNext: true})
	require.True(t, ok)
	assert.Equal(t, c.Start(), next)
	assert.Equal(t, 1, logs.FilterMessage("traversal target not in plan, restarting").Len())
}

type fakeCountries []record.Country

func (f fakeCountries) Countries() []record.Country { return f }

func (f fakeCountries) CountryByCode(code string) (record.Country, bool) {
	for _, c := range f {
		if c.Code == code {
			return c, true
		}
	}
	return record.Country{}, false
}

var sampleCountries = fakeCountries{
	{ID: "1", Code: "DE", Name: "Germany"},
	{ID: "2", Code: "FR", Name: "France"},
	{ID: "3", Code: "GB", Name: "United Kingdom"},
	{ID: "4", Code: "IN", Name: "India"},
	{ID: "5", Code: "US", Name: "United States"},
	{ID: "6", Code: "MA", Name: "Morocco"},
}

func TestLocationsDefaultsToDevelopmentSubset(t *testing.T) {
	t.Parallel()

	got := Locations(sampleCountries, "", Identity{}, nil)
	codes := make([]string, 0, len(got))
	for _, l := range got {
		codes = append(codes, l.Code)
	}
	assert.Equal(t, []string{"FR", "GB", "US", "DE", "IN"}, codes)
	assert.Equal(t, "2", got[0].CountryID)
}

func TestLocationsOverride(t *testing.T) {
	t.Parallel()

	got := Locations(sampleCountries, "MA", NewShuffle(nil), nil)
	require.Len(t, got, 1)
	assert.Equal(t, "Morocco", got[0].Name)

	core, logs := observer.New(zap.WarnLevel)
	got = Locations(sampleCountries, "ZZ", Identity{}, zap.New(core))
	assert.Len(t, got, len(sampleCountries))
	assert.Equal(t, 1, logs.Len())
}

func TestShuffleIsDeterministicWithSeed(t *testing.T) {
	t.Parallel()

	a := Locations(sampleCountries, "", NewShuffle(rand.New(rand.NewPCG(1, 2))), nil)
	b := Locations(sampleCountries, "", NewShuffle(rand.New(rand.NewPCG(1, 2))), nil)
	assert.Equal(t, a, b)
	assert.ElementsMatch(t, Locations(sampleCountries, "", Identity{}, nil), a)
}

func TestFilterCategories(t *testing.T) {
	t.Parallel()

	all := []Category{
		{Key: "web-development-1", Sub: "Web Development"},
		{Key: "logo-design-23", Sub: "Logo Design"},
	}
	got, ok := FilterCategories(all, "logo", Identity{})
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "logo-design-23", got[0].Key)

	_, ok = FilterCategories(all, "plumbing", Identity{})
	assert.False(t, ok)

	got, ok = FilterCategories(all, "", Identity{})
	assert.True(t, ok)
	assert.Equal(t, all, got)
}
