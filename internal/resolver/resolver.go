// Package resolver turns navigation and search URLs into shortcut redirects.
//
// Classification is pure (ExtractShortcutName). Resolver adds the side
// effects: it reads the instance URL from a key-value store and asks a
// Navigator to point the tab at <instance>/s/<name>. Every failure is absorbed
// and reported as an Outcome; nothing is surfaced to the end user.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/yourselfhosted/slash-sub001/internal/kvstore"
)

// Outcome is the result of handling one navigation.
type Outcome string

const (
	OutcomeRedirected        Outcome = "redirected"
	OutcomeNoMatch           Outcome = "no_match"
	OutcomeEmptyName         Outcome = "empty_name"
	OutcomeUnconfigured      Outcome = "unconfigured"
	OutcomeConfigUnavailable Outcome = "config_unavailable"
	OutcomeNavigationFailed  Outcome = "navigation_failed"
)

// EmptyNamePolicy decides what an intent with an empty name does.
type EmptyNamePolicy string

const (
	// EmptyNameIgnore drops intents such as http://s/ or a bare "s/" query.
	EmptyNameIgnore EmptyNamePolicy = "ignore"
	// EmptyNameRedirect sends them to <instance>/s/.
	EmptyNameRedirect EmptyNamePolicy = "redirect"
)

// ParseEmptyNamePolicy accepts "ignore" or "redirect".
func ParseEmptyNamePolicy(s string) (EmptyNamePolicy, error) {
	switch p := EmptyNamePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case EmptyNameIgnore, EmptyNameRedirect:
		return p, nil
	case "":
		return EmptyNameIgnore, nil
	default:
		return "", fmt.Errorf("unknown empty name policy %q", s)
	}
}

// NavigationEvent is one intercepted navigation or search attempt.
type NavigationEvent struct {
	RequestURL string
	TabID      string
}

// Navigator replaces a tab's location.
type Navigator interface {
	UpdateTab(ctx context.Context, tabID, url string) error
}

// Resolution describes how a navigation was handled.
type Resolution struct {
	TabID      string  `json:"tab_id"`
	RequestURL string  `json:"request_url"`
	Name       string  `json:"name,omitempty"`
	Source     string  `json:"source,omitempty"`
	Target     string  `json:"target,omitempty"`
	Outcome    Outcome `json:"outcome"`
	Error      string  `json:"error,omitempty"`
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithProviders replaces the default search provider table.
func WithProviders(providers []SearchProvider) Option {
	return func(r *Resolver) { r.providers = providers }
}

// WithEmptyNamePolicy sets the empty-name behaviour. Default: EmptyNameIgnore.
func WithEmptyNamePolicy(p EmptyNamePolicy) Option {
	return func(r *Resolver) { r.emptyName = p }
}

// WithObserver registers a callback invoked once per handled navigation.
func WithObserver(fn func(Resolution)) Option {
	return func(r *Resolver) { r.observer = fn }
}

// Resolver is stateless apart from its read-only configuration; it is safe
// for concurrent use.
type Resolver struct {
	config    kvstore.Reader
	nav       Navigator
	providers []SearchProvider
	emptyName EmptyNamePolicy
	observer  func(Resolution)
}

func New(config kvstore.Reader, nav Navigator, opts ...Option) *Resolver {
	r := &Resolver{
		config:    config,
		nav:       nav,
		providers: DefaultProviders(),
		emptyName: EmptyNameIgnore,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Providers returns the active search provider table.
func (r *Resolver) Providers() []SearchProvider {
	out := make([]SearchProvider, len(r.providers))
	copy(out, r.providers)
	return out
}

// URLPatterns returns the request patterns worth intercepting.
func (r *Resolver) URLPatterns() []string {
	return URLPatterns(r.providers)
}

func (r *Resolver) EmptyNamePolicy() EmptyNamePolicy {
	return r.emptyName
}

// Extract classifies rawURL against the resolver's provider table.
func (r *Resolver) Extract(rawURL string) (Intent, bool) {
	return ExtractShortcutName(rawURL, r.providers)
}

// HandleNavigation classifies the event and redirects the tab when it carries
// a shortcut intent.
func (r *Resolver) HandleNavigation(ctx context.Context, ev NavigationEvent) Resolution {
	res := Resolution{TabID: ev.TabID, RequestURL: ev.RequestURL, Outcome: OutcomeNoMatch}

	intent, ok := r.Extract(ev.RequestURL)
	if ok {
		res.Name = intent.Name
		res.Source = intent.Source
		var err error
		res.Target, res.Outcome, err = r.redirect(ctx, intent, ev.TabID)
		if err != nil {
			res.Error = err.Error()
		}
	}

	r.observe(res)
	return res
}

// ResolveAndRedirect navigates tabID to the shortcut named by intent. It
// issues at most one UpdateTab call. The returned error is informational;
// the Outcome already tells the caller that nothing happened.
func (r *Resolver) ResolveAndRedirect(ctx context.Context, intent Intent, tabID string) (Outcome, error) {
	_, outcome, err := r.redirect(ctx, intent, tabID)
	return outcome, err
}

func (r *Resolver) redirect(ctx context.Context, intent Intent, tabID string) (string, Outcome, error) {
	if intent.Name == "" && r.emptyName != EmptyNameRedirect {
		slog.Debug("empty shortcut name ignored", "tab_id", tabID, "source", intent.Source)
		return "", OutcomeEmptyName, nil
	}

	target, configured, err := r.TargetURL(ctx, intent.Name)
	if err != nil {
		slog.Warn("instance config unavailable", "tab_id", tabID, "name", intent.Name, "error", err)
		return "", OutcomeConfigUnavailable, err
	}
	if !configured {
		slog.Debug("shortcut ignored, no instance configured", "tab_id", tabID, "name", intent.Name)
		return "", OutcomeUnconfigured, nil
	}

	if err := r.nav.UpdateTab(ctx, tabID, target); err != nil {
		slog.Warn("shortcut redirect failed", "tab_id", tabID, "name", intent.Name, "target", target, "error", err)
		return target, OutcomeNavigationFailed, fmt.Errorf("update tab %s: %w", tabID, err)
	}
	slog.Info("shortcut redirected", "tab_id", tabID, "name", intent.Name, "source", intent.Source, "target", target)
	return target, OutcomeRedirected, nil
}

// TargetURL builds <instance>/s/<name> from the configured instance URL.
// configured is false when no usable instance URL is stored.
func (r *Resolver) TargetURL(ctx context.Context, name string) (target string, configured bool, err error) {
	raw, ok, err := r.config.Get(ctx, kvstore.KeyInstanceURL)
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", kvstore.KeyInstanceURL, err)
	}
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return "", false, nil
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		slog.Warn("stored instance url is not absolute", "instance_url", raw)
		return "", false, nil
	}
	return ShortcutURL(base, name), true, nil
}

// ShortcutURL resolves the relative path /s/<name> against base.
func ShortcutURL(base *url.URL, name string) string {
	return base.ResolveReference(&url.URL{Path: "/s/" + name}).String()
}

func (r *Resolver) observe(res Resolution) {
	if r.observer != nil {
		r.observer(res)
	}
}
