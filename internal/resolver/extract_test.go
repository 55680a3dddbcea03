package resolver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractShortcutName(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		wantOK     bool
		wantName   string
		wantSource string
	}{
		{"pseudo host http", "http://s/foo", true, "foo", SourcePseudoHost},
		{"pseudo host https", "https://s/team-wiki", true, "team-wiki", SourcePseudoHost},
		{"pseudo host nested path", "http://s/docs/api", true, "docs/api", SourcePseudoHost},
		{"pseudo host decoded", "http://s/hello%20world", true, "hello world", SourcePseudoHost},
		{"pseudo host drops query", "http://s/foo?x=1#top", true, "foo", SourcePseudoHost},
		{"pseudo host empty", "http://s/", true, "", SourcePseudoHost},
		{"pseudo host without slash", "http://s", false, "", ""},
		{"google", "https://www.google.com/search?q=s/foo", true, "foo", "google"},
		{"google bare host", "https://google.com/search?q=s/foo", true, "foo", "google"},
		{"bing", "https://www.bing.com/search?q=s/bar", true, "bar", "bing"},
		{"baidu", "https://www.baidu.com/s?wd=s/baz", true, "baz", "baidu"},
		{"duckduckgo", "https://duckduckgo.com/?q=s/qux", true, "qux", "duckduckgo"},
		{"duckduckgo no path", "https://duckduckgo.com?q=s/qux", true, "qux", "duckduckgo"},
		{"encoded query", "https://www.google.com/search?q=s%2Fmeeting+notes", true, "meeting notes", "google"},
		{"bare prefix", "https://www.google.com/search?q=s/", true, "", "google"},
		{"google plain query", "https://www.google.com/search?q=weather", false, "", ""},
		{"google missing query", "https://www.google.com/search", false, "", ""},
		{"google wrong path", "https://www.google.com/maps?q=s/foo", false, "", ""},
		{"baidu wrong param", "https://www.baidu.com/s?q=s/baz", false, "", ""},
		{"lookalike host", "https://notgoogle.com/search?q=s/foo", false, "", ""},
		{"unrelated host", "https://example.com/s/foo", false, "", ""},
		{"relative url", "/s/foo", false, "", ""},
		{"garbage", "::not a url", false, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent, ok := ExtractShortcutName(tt.url, DefaultProviders())
			require.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantName, intent.Name)
			assert.Equal(t, tt.wantSource, intent.Source)
		})
	}
}

func TestExtractShortcutNameKeepsPlainNames(t *testing.T) {
	for _, name := range []string{"a", "go", "team_wiki", "x-1", "UPPER", "v1.2"} {
		intent, ok := ExtractShortcutName("https://s/"+name, nil)
		require.True(t, ok, name)
		assert.Equal(t, name, intent.Name)
	}
}

func TestURLPatterns(t *testing.T) {
	got := URLPatterns(DefaultProviders())
	assert.Equal(t, []string{
		"*://s/*",
		"*://*google.com/search*",
		"*://*bing.com/search*",
		"*://*baidu.com/s*",
		"*://*duckduckgo.com/*",
	}, got)
}

func TestLoadProviders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.yaml")
	data := `providers:
  - name: ecosia
    host_suffix: ecosia.org
    path: /search
    param: q
  - name: startpage
    host_suffix: startpage.com
    path: /do/search
    param: query
    url_pattern: "*://*.startpage.com/*"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	providers, err := LoadProviders(path)
	require.NoError(t, err)
	require.Len(t, providers, 2)
	assert.Equal(t, "*://*ecosia.org/search*", providers[0].Pattern())
	assert.Equal(t, "*://*.startpage.com/*", providers[1].Pattern())

	intent, ok := ExtractShortcutName("https://www.ecosia.org/search?q=s/roadmap", providers)
	require.True(t, ok)
	assert.Equal(t, Intent{Name: "roadmap", Source: "ecosia"}, intent)

	_, ok = ExtractShortcutName("https://www.google.com/search?q=s/roadmap", providers)
	assert.False(t, ok, "file replaces the default table")
}

func TestLoadProvidersRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"empty":       "providers: []\n",
		"no param":    "providers:\n  - {name: x, host_suffix: x.com, path: /}\n",
		"bad path":    "providers:\n  - {name: x, host_suffix: x.com, path: search, param: q}\n",
		"duplicate":   "providers:\n  - {name: x, host_suffix: x.com, path: /, param: q}\n  - {name: x, host_suffix: y.com, path: /, param: q}\n",
		"not yaml":    "providers: [\n",
		"no hostname": "providers:\n  - {name: x, path: /, param: q}\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "providers.yaml")
			require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
			_, err := LoadProviders(path)
			assert.Error(t, err)
		})
	}

	_, err := LoadProviders(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
