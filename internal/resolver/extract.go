package resolver

import (
	"net/url"
	"strings"
)

const (
	// PseudoHost is the host of the internal scheme://s/<name> convention.
	PseudoHost = "s"
	// PseudoHostPattern matches pseudo-host requests for any scheme.
	PseudoHostPattern = "*://s/*"
	// QueryPrefix marks a search query as a shortcut intent.
	QueryPrefix = "s/"

	// SourcePseudoHost tags intents taken from scheme://s/<name> URLs.
	SourcePseudoHost = "pseudo-host"
)

// Intent is a shortcut name extracted from a navigation URL.
type Intent struct {
	Name string `json:"name"`
	// Source is SourcePseudoHost or the matching provider name.
	Source string `json:"source"`
}

// ExtractShortcutName classifies rawURL. It reports false when the URL does
// not express a shortcut intent. An empty name is returned as a valid intent;
// callers decide what an empty name means.
func ExtractShortcutName(rawURL string, providers []SearchProvider) (Intent, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Scheme == "" {
		return Intent{}, false
	}

	if strings.EqualFold(u.Host, PseudoHost) {
		if !strings.HasPrefix(u.Path, "/") {
			return Intent{}, false
		}
		return Intent{Name: u.Path[1:], Source: SourcePseudoHost}, true
	}

	hostname := u.Hostname()
	for _, p := range providers {
		if !p.matchesHost(hostname) || !p.matchesPath(u.Path) {
			continue
		}
		q := u.Query().Get(p.Param)
		if !strings.HasPrefix(q, QueryPrefix) {
			return Intent{}, false
		}
		return Intent{Name: strings.TrimPrefix(q, QueryPrefix), Source: p.Name}, true
	}
	return Intent{}, false
}
