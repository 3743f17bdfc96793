package ruleset_test

import (
	"testing"

	"github.com/crawlkit/engine/internal/ruleset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_NoFilters_MatchesEverything(t *testing.T) {
	compiled, err := ruleset.Compile(ruleset.DomainRules{Domain: "https://docs.example.com"})
	require.NoError(t, err)

	assert.True(t, compiled.Matches("https://docs.example.com/anything"))
	assert.True(t, compiled.Matches("https://docs.example.com/"))
}

func TestCompile_Begins(t *testing.T) {
	compiled, err := ruleset.Compile(ruleset.DomainRules{
		Domain: "https://docs.example.com",
		URLFilters: []ruleset.URLFilter{
			{Kind: ruleset.FilterBegins, Pattern: "/guide/*"},
		},
	})
	require.NoError(t, err)

	assert.True(t, compiled.Matches("https://docs.example.com/guide/intro"))
	assert.False(t, compiled.Matches("https://docs.example.com/blog/post"))
}

func TestCompile_Ends(t *testing.T) {
	compiled, err := ruleset.Compile(ruleset.DomainRules{
		Domain: "https://docs.example.com",
		URLFilters: []ruleset.URLFilter{
			{Kind: ruleset.FilterEnds, Pattern: "*.html"},
		},
	})
	require.NoError(t, err)

	assert.True(t, compiled.Matches("https://docs.example.com/guide/intro.html"))
	assert.False(t, compiled.Matches("https://docs.example.com/guide/intro.html.bak"))
}

func TestCompile_Contains(t *testing.T) {
	compiled, err := ruleset.Compile(ruleset.DomainRules{
		Domain: "https://docs.example.com",
		URLFilters: []ruleset.URLFilter{
			{Kind: ruleset.FilterContains, Pattern: "/v2/"},
		},
	})
	require.NoError(t, err)

	assert.True(t, compiled.Matches("https://docs.example.com/api/v2/users"))
	assert.False(t, compiled.Matches("https://docs.example.com/api/v1/users"))
}

func TestCompile_Regex_Passthrough(t *testing.T) {
	compiled, err := ruleset.Compile(ruleset.DomainRules{
		Domain: "https://docs.example.com",
		URLFilters: []ruleset.URLFilter{
			{Kind: ruleset.FilterRegex, Pattern: `\Ahttps://docs\.example\.com/api/v\d+\z`},
		},
	})
	require.NoError(t, err)

	assert.True(t, compiled.Matches("https://docs.example.com/api/v3"))
	assert.False(t, compiled.Matches("https://docs.example.com/api/v3/users"))
}

func TestCompile_MultipleFilters_AnyMatch(t *testing.T) {
	compiled, err := ruleset.Compile(ruleset.DomainRules{
		Domain: "https://docs.example.com",
		URLFilters: []ruleset.URLFilter{
			{Kind: ruleset.FilterContains, Pattern: "/guide/"},
			{Kind: ruleset.FilterContains, Pattern: "/reference/"},
		},
	})
	require.NoError(t, err)

	assert.True(t, compiled.Matches("https://docs.example.com/guide/intro"))
	assert.True(t, compiled.Matches("https://docs.example.com/reference/api"))
	assert.False(t, compiled.Matches("https://docs.example.com/blog/post"))
}

func TestCompile_InvalidRegex_Errors(t *testing.T) {
	_, err := ruleset.Compile(ruleset.DomainRules{
		Domain: "https://docs.example.com",
		URLFilters: []ruleset.URLFilter{
			{Kind: ruleset.FilterRegex, Pattern: "(unclosed"},
		},
	})
	require.Error(t, err)
}

func TestNilCompiledRules_MatchesEverything(t *testing.T) {
	var compiled *ruleset.CompiledDomainRules
	assert.True(t, compiled.Matches("https://anything.example.com/"))
	assert.Equal(t, "", compiled.Domain())
}

func TestRegistry_For(t *testing.T) {
	registry, err := ruleset.NewRegistry(map[string]ruleset.DomainRules{
		"https://docs.example.com": {
			URLFilters: []ruleset.URLFilter{
				{Kind: ruleset.FilterBegins, Pattern: "/guide/*"},
			},
		},
	})
	require.NoError(t, err)

	compiled := registry.For("https://docs.example.com")
	require.NotNil(t, compiled)
	assert.True(t, compiled.Matches("https://docs.example.com/guide/intro"))

	assert.Nil(t, registry.For("https://other.example.com"))
}

func TestRegistry_CompileError_Propagates(t *testing.T) {
	_, err := ruleset.NewRegistry(map[string]ruleset.DomainRules{
		"https://docs.example.com": {
			URLFilters: []ruleset.URLFilter{
				{Kind: ruleset.FilterRegex, Pattern: "(unclosed"},
			},
		},
	})
	require.Error(t, err)
}

func TestRawRule(t *testing.T) {
	compiled, err := ruleset.Compile(ruleset.DomainRules{
		Domain:   "https://docs.example.com",
		RawRules: map[string]string{"title": "h1.page-title"},
	})
	require.NoError(t, err)

	v, ok := compiled.RawRule("title")
	assert.True(t, ok)
	assert.Equal(t, "h1.page-title", v)

	_, ok = compiled.RawRule("missing")
	assert.False(t, ok)
}
