// Package controller joins the resolver, settings store, audit log and event
// broker behind the operations exposed by the control API.
package controller

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/yourselfhosted/slash-sub001/internal/cdpnav"
	"github.com/yourselfhosted/slash-sub001/internal/kvstore"
	"github.com/yourselfhosted/slash-sub001/internal/relay"
	"github.com/yourselfhosted/slash-sub001/internal/resolver"
	"github.com/yourselfhosted/slash-sub001/internal/storage"
)

// EventSettings is the broker event type for instance URL changes.
const EventSettings = "settings"

// TabSource reports the tabs the browser adapter is attached to.
type TabSource interface {
	Tabs() []cdpnav.TabInfo
	Done() <-chan struct{}
}

// AuditSink receives audit records. Dropped counts records lost to a full
// write buffer.
type AuditSink interface {
	Append(rec storage.AuditRecord) (storage.AuditRecord, error)
	Dropped() int64
}

type InstanceSettings struct {
	InstanceURL string    `json:"instance_url"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
}

// ResolvePreview reports what the daemon would do with a URL without
// touching any tab.
type ResolvePreview struct {
	URL     string           `json:"url"`
	Matched bool             `json:"matched"`
	Name    string           `json:"name,omitempty"`
	Source  string           `json:"source,omitempty"`
	Target  string           `json:"target,omitempty"`
	Outcome resolver.Outcome `json:"outcome"`
}

type Health struct {
	Status       string `json:"status"`
	CDPConnected bool   `json:"cdp_connected"`
	Tabs         int    `json:"tabs"`
}

type Stats struct {
	StartedAt      time.Time            `json:"started_at"`
	UptimeSeconds  int64                `json:"uptime_seconds"`
	Total          int64                `json:"total"`
	Outcomes       map[string]int64     `json:"outcomes"`
	LastResolution *resolver.Resolution `json:"last_resolution,omitempty"`
	AuditDropped   int64                `json:"audit_dropped"`
	StreamClients  int                  `json:"stream_clients"`
	// StreamPublished counts events; StreamDropped counts per-client
	// deliveries skipped because a subscriber was full.
	StreamPublished int64                     `json:"stream_published"`
	StreamDropped   int64                     `json:"stream_dropped"`
	Providers       []resolver.SearchProvider `json:"providers"`
}

// Service wraps the daemon's control operations.
type Service struct {
	resolver *resolver.Resolver
	store    kvstore.Store
	tabs     TabSource
	audit    AuditSink
	broker   *relay.Broker

	startedAt time.Time

	mu        sync.Mutex
	counts    map[resolver.Outcome]int64
	total     int64
	last      *resolver.Resolution
	updatedAt time.Time
}

// NewService builds a Service. tabs, audit and broker may be nil.
func NewService(r *resolver.Resolver, store kvstore.Store, tabs TabSource, audit AuditSink, broker *relay.Broker) *Service {
	return &Service{
		resolver:  r,
		store:     store,
		tabs:      tabs,
		audit:     audit,
		broker:    broker,
		startedAt: time.Now().UTC(),
		counts:    make(map[resolver.Outcome]int64),
	}
}

func (s *Service) Health(ctx context.Context) Health {
	h := Health{Status: "ok"}
	if s.tabs != nil {
		select {
		case <-s.tabs.Done():
		default:
			h.CDPConnected = true
			h.Tabs = len(s.tabs.Tabs())
		}
	}
	if !h.CDPConnected {
		h.Status = "degraded"
	}
	return h
}

func (s *Service) GetInstance(ctx context.Context) (InstanceSettings, error) {
	raw, ok, err := s.store.Get(ctx, kvstore.KeyInstanceURL)
	if err != nil {
		return InstanceSettings{}, newError(CodeStoreUnavailable, "read instance url", err)
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return InstanceSettings{}, newError(CodeNotConfigured, "instance url is not configured", nil)
	}
	s.mu.Lock()
	updated := s.updatedAt
	s.mu.Unlock()
	return InstanceSettings{InstanceURL: raw, UpdatedAt: updated}, nil
}

// SetInstance stores the instance URL after checking it is an absolute
// http(s) URL.
func (s *Service) SetInstance(ctx context.Context, rawURL string) (InstanceSettings, error) {
	value, err := ValidateInstanceURL(rawURL)
	if err != nil {
		return InstanceSettings{}, err
	}
	if err := s.store.Set(ctx, kvstore.KeyInstanceURL, value); err != nil {
		return InstanceSettings{}, newError(CodeStoreUnavailable, "write instance url", err)
	}

	now := time.Now().UTC()
	s.mu.Lock()
	s.updatedAt = now
	s.mu.Unlock()

	slog.Info("instance url updated", "instance_url", value)
	s.emit(EventSettings, storage.AuditRecord{Kind: storage.KindSettings, Target: value})
	return InstanceSettings{InstanceURL: value, UpdatedAt: now}, nil
}

func (s *Service) ClearInstance(ctx context.Context) error {
	if err := s.store.Delete(ctx, kvstore.KeyInstanceURL); err != nil {
		return newError(CodeStoreUnavailable, "delete instance url", err)
	}
	s.mu.Lock()
	s.updatedAt = time.Time{}
	s.mu.Unlock()

	slog.Info("instance url cleared")
	s.emit(EventSettings, storage.AuditRecord{Kind: storage.KindSettings})
	return nil
}

// ValidateInstanceURL trims rawURL and requires an absolute http or https URL
// without query or fragment.
func ValidateInstanceURL(rawURL string) (string, error) {
	value := strings.TrimSpace(rawURL)
	if value == "" {
		return "", newError(CodeValidation, "instance_url is required", nil)
	}
	u, err := url.Parse(value)
	if err != nil {
		return "", newError(CodeValidation, "instance_url is not a valid url", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", newError(CodeValidation, "instance_url must use http or https", nil)
	}
	if u.Host == "" {
		return "", newError(CodeValidation, "instance_url must include a host", nil)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return "", newError(CodeValidation, "instance_url must not include a query or fragment", nil)
	}
	return value, nil
}

// Resolve classifies rawURL and computes the redirect target without
// navigating.
func (s *Service) Resolve(ctx context.Context, rawURL string) (ResolvePreview, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ResolvePreview{}, newError(CodeValidation, "url is required", nil)
	}
	out := ResolvePreview{URL: rawURL, Outcome: resolver.OutcomeNoMatch}

	intent, ok := s.resolver.Extract(rawURL)
	if !ok {
		return out, nil
	}
	out.Matched = true
	out.Name = intent.Name
	out.Source = intent.Source

	if intent.Name == "" && s.resolver.EmptyNamePolicy() != resolver.EmptyNameRedirect {
		out.Outcome = resolver.OutcomeEmptyName
		return out, nil
	}
	target, configured, err := s.resolver.TargetURL(ctx, intent.Name)
	if err != nil {
		return ResolvePreview{}, newError(CodeStoreUnavailable, "read instance url", err)
	}
	if !configured {
		out.Outcome = resolver.OutcomeUnconfigured
		return out, nil
	}
	out.Target = target
	out.Outcome = resolver.OutcomeRedirected
	return out, nil
}

func (s *Service) ListTabs(ctx context.Context) ([]cdpnav.TabInfo, error) {
	if s.tabs == nil {
		return nil, newError(CodeCDPUnavailable, "browser adapter not running", nil)
	}
	select {
	case <-s.tabs.Done():
		return nil, newError(CodeCDPUnavailable, "browser connection lost", nil)
	default:
	}
	return s.tabs.Tabs(), nil
}

func (s *Service) Stats(ctx context.Context) Stats {
	s.mu.Lock()
	out := Stats{
		StartedAt:     s.startedAt,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Total:         s.total,
		Outcomes:      make(map[string]int64, len(s.counts)),
	}
	for k, v := range s.counts {
		out.Outcomes[string(k)] = v
	}
	if s.last != nil {
		last := *s.last
		out.LastResolution = &last
	}
	s.mu.Unlock()

	if s.audit != nil {
		out.AuditDropped = s.audit.Dropped()
	}
	if s.broker != nil {
		out.StreamClients = s.broker.ClientCount()
		out.StreamPublished, out.StreamDropped = s.broker.Stats()
	}
	out.Providers = s.resolver.Providers()
	return out
}

// Record counts res, appends it to the audit log and publishes it. It is
// installed as the resolver's observer.
func (s *Service) Record(res resolver.Resolution) {
	s.mu.Lock()
	s.counts[res.Outcome]++
	s.total++
	last := res
	s.last = &last
	s.mu.Unlock()

	s.emit(string(res.Outcome), storage.AuditRecord{
		Kind:       storage.KindResolution,
		TabID:      res.TabID,
		RequestURL: res.RequestURL,
		Name:       res.Name,
		Source:     res.Source,
		Target:     res.Target,
		Outcome:    string(res.Outcome),
		Error:      res.Error,
	})
}

func (s *Service) emit(eventType string, rec storage.AuditRecord) {
	rec.Time = time.Now().UTC()
	if s.audit != nil {
		stamped, err := s.audit.Append(rec)
		if err != nil {
			slog.Warn("audit append failed", "kind", rec.Kind, "error", err)
		}
		rec = stamped
	}
	if s.broker == nil {
		return
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		slog.Error("event marshal failed", "error", err)
		return
	}
	s.broker.Publish(relay.Event{Type: eventType, Payload: string(payload)})
}
