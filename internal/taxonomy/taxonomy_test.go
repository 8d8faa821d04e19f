package taxonomy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	return dir
}

const (
	countriesJSON = `[{"_id":"c1","code":"fr","name":"France"},{"_id":"c2","code":"GB","name":"United Kingdom"}]`
	sourcesJSON   = `[{"_id":"s1","name":"Freelancer","url":"https://www.freelancer.com"}]`
	mappingJSON   = `{"PeoplePerHour":{"Tech":{"Web Development":1,"Apps":"12"},"Design":{"Logo":23}}}`
)

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := writeFiles(t, map[string]string{
		CountriesFile:     countriesJSON,
		SourcesFile:       sourcesJSON,
		FilterMappingFile: mappingJSON,
	})

	tax, err := Load(Paths{Dir: dir})
	require.NoError(t, err)

	assert.Equal(t, []string{"FR", "GB"}, tax.CountryCodes())
	fr, ok := tax.CountryByCode("fr")
	require.True(t, ok)
	assert.Equal(t, "c1", fr.ID)
	gb, ok := tax.CountryByName("united kingdom")
	require.True(t, ok)
	assert.Equal(t, "GB", gb.Code)

	src, ok := tax.SourceByName("FREELANCER")
	require.True(t, ok)
	assert.Equal(t, "s1", src.ID)

	cats := tax.Categories("peopleperhour")
	require.Len(t, cats, 3)
	assert.Equal(t, Category{Main: "Design", Sub: "Logo", ID: "23"}, cats[0])
	assert.Equal(t, Category{Main: "Tech", Sub: "Apps", ID: "12"}, cats[1])
	assert.Equal(t, Category{Main: "Tech", Sub: "Web Development", ID: "1"}, cats[2])
	assert.Nil(t, tax.Categories("unknown"))
}

func TestLoadMissingFileIsFatal(t *testing.T) {
	t.Parallel()

	dir := writeFiles(t, map[string]string{
		CountriesFile: countriesJSON,
		SourcesFile:   sourcesJSON,
	})

	_, err := Load(Paths{Dir: dir})
	require.ErrorIs(t, err, ErrMissingFile)
}

func TestLoadMalformedFileIsFatal(t *testing.T) {
	t.Parallel()

	tests := map[string]map[string]string{
		"bad json": {
			CountriesFile:     `[{"code":`,
			SourcesFile:       sourcesJSON,
			FilterMappingFile: mappingJSON,
		},
		"country without code": {
			CountriesFile:     `[{"_id":"x","name":"Nowhere"}]`,
			SourcesFile:       sourcesJSON,
			FilterMappingFile: mappingJSON,
		},
		"wrong mapping shape": {
			CountriesFile:     countriesJSON,
			SourcesFile:       sourcesJSON,
			FilterMappingFile: `{"Freelancer":["php"]}`,
		},
	}
	for name, files := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(Paths{Dir: writeFiles(t, files)})
			require.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestLoadRepositoryFixtures(t *testing.T) {
	t.Parallel()

	tax, err := Load(Paths{Dir: filepath.Join("..", "..", "fixtures")})
	require.NoError(t, err)
	for _, code := range []string{"FR", "GB", "US", "DE", "IN"} {
		_, ok := tax.CountryByCode(code)
		assert.True(t, ok, code)
	}
	assert.NotEmpty(t, tax.Categories("Freelancer"))
	assert.NotEmpty(t, tax.Categories("PeoplePerHour"))
	assert.NotEmpty(t, tax.Categories("Truelancer"))
}
