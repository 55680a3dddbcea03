package resolver

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SearchProvider describes a search engine whose query URLs can carry a
// shortcut intent in one of their query parameters.
type SearchProvider struct {
	Name       string `yaml:"name" json:"name"`
	HostSuffix string `yaml:"host_suffix" json:"host_suffix"`
	Path       string `yaml:"path" json:"path"`
	Param      string `yaml:"param" json:"param"`
	// URLPattern overrides the generated CDP interception pattern.
	URLPattern string `yaml:"url_pattern,omitempty" json:"url_pattern,omitempty"`
}

// DefaultProviders is the built-in search provider table.
func DefaultProviders() []SearchProvider {
	return []SearchProvider{
		{Name: "google", HostSuffix: "google.com", Path: "/search", Param: "q"},
		{Name: "bing", HostSuffix: "bing.com", Path: "/search", Param: "q"},
		{Name: "baidu", HostSuffix: "baidu.com", Path: "/s", Param: "wd"},
		{Name: "duckduckgo", HostSuffix: "duckduckgo.com", Path: "/", Param: "q"},
	}
}

// matchesHost reports whether hostname is the provider host or one of its subdomains.
func (p SearchProvider) matchesHost(hostname string) bool {
	hostname = strings.ToLower(strings.TrimSuffix(hostname, "."))
	suffix := strings.ToLower(p.HostSuffix)
	return hostname == suffix || strings.HasSuffix(hostname, "."+suffix)
}

// matchesPath treats an empty request path as the root path.
func (p SearchProvider) matchesPath(path string) bool {
	if path == "" {
		path = "/"
	}
	return path == p.Path
}

// Pattern returns the interception pattern used to filter browser requests.
func (p SearchProvider) Pattern() string {
	if p.URLPattern != "" {
		return p.URLPattern
	}
	return "*://*" + p.HostSuffix + p.Path + "*"
}

func (p SearchProvider) validate() error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return fmt.Errorf("missing name")
	case strings.TrimSpace(p.HostSuffix) == "":
		return fmt.Errorf("%s: missing host_suffix", p.Name)
	case !strings.HasPrefix(p.Path, "/"):
		return fmt.Errorf("%s: path must start with /", p.Name)
	case strings.TrimSpace(p.Param) == "":
		return fmt.Errorf("%s: missing param", p.Name)
	}
	return nil
}

type providersFile struct {
	Providers []SearchProvider `yaml:"providers"`
}

// LoadProviders reads a YAML provider table. The file replaces the defaults.
func LoadProviders(path string) ([]SearchProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("providers config: %w", err)
	}
	var cfg providersFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("providers config: %w", err)
	}
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("providers config: at least one provider is required")
	}
	seen := make(map[string]bool, len(cfg.Providers))
	for i, p := range cfg.Providers {
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("providers config: providers[%d]: %w", i, err)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("providers config: duplicate provider %q", p.Name)
		}
		seen[p.Name] = true
	}
	return cfg.Providers, nil
}

// URLPatterns returns the request patterns that can carry a shortcut intent:
// the pseudo-host pattern followed by one pattern per provider.
func URLPatterns(providers []SearchProvider) []string {
	out := make([]string, 0, len(providers)+1)
	out = append(out, PseudoHostPattern)
	for _, p := range providers {
		out = append(out, p.Pattern())
	}
	return out
}
