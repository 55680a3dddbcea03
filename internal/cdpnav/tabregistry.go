package cdpnav

import (
	"sort"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
)

// TabInfo describes a page target the resolver is attached to.
type TabInfo struct {
	TargetID   string    `json:"target_id"`
	URL        string    `json:"url"`
	Title      string    `json:"title,omitempty"`
	AttachedAt time.Time `json:"attached_at"`
	Redirects  int       `json:"redirects"`

	sessionID string
}

// TabRegistry maps CDP target IDs and flat session IDs to tabs.
type TabRegistry struct {
	mu        sync.RWMutex
	tabs      map[target.ID]*TabInfo
	bySession map[string]target.ID
}

func NewTabRegistry() *TabRegistry {
	return &TabRegistry{
		tabs:      make(map[target.ID]*TabInfo),
		bySession: make(map[string]target.ID),
	}
}

// Reserve claims targetID for attachment. It returns false when the target
// is already tracked or being attached.
func (r *TabRegistry) Reserve(targetID target.ID, url, title string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tabs[targetID]; ok {
		return false
	}
	r.tabs[targetID] = &TabInfo{TargetID: string(targetID), URL: url, Title: title}
	return true
}

// Bind records the flat session attached to targetID.
func (r *TabRegistry) Bind(targetID target.ID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.tabs[targetID]
	if !ok {
		return
	}
	info.sessionID = sessionID
	info.AttachedAt = time.Now().UTC()
	r.bySession[sessionID] = targetID
}

func (r *TabRegistry) SessionFor(targetID target.ID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.tabs[targetID]
	if !ok || info.sessionID == "" {
		return "", false
	}
	return info.sessionID, true
}

func (r *TabRegistry) TargetFor(sessionID string) (target.ID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.bySession[sessionID]
	return id, ok
}

// Update refreshes the URL and title of a tracked tab.
func (r *TabRegistry) Update(targetID target.ID, url, title string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if info, ok := r.tabs[targetID]; ok {
		info.URL = url
		info.Title = title
	}
}

func (r *TabRegistry) MarkRedirected(targetID target.ID, url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if info, ok := r.tabs[targetID]; ok {
		info.URL = url
		info.Redirects++
	}
}

// Remove forgets targetID and returns its session, if any.
func (r *TabRegistry) Remove(targetID target.ID) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.tabs[targetID]
	if !ok {
		return "", false
	}
	delete(r.tabs, targetID)
	if info.sessionID != "" {
		delete(r.bySession, info.sessionID)
	}
	return info.sessionID, info.sessionID != ""
}

// RemoveSession forgets the tab bound to sessionID.
func (r *TabRegistry) RemoveSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.bySession[sessionID]; ok {
		delete(r.bySession, sessionID)
		delete(r.tabs, id)
	}
}

// List returns a copy of all attached tabs sorted by target ID.
func (r *TabRegistry) List() []TabInfo {
	r.mu.RLock()
	out := make([]TabInfo, 0, len(r.tabs))
	for _, info := range r.tabs {
		if info.sessionID != "" {
			out = append(out, *info)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].TargetID < out[j].TargetID })
	return out
}

func (r *TabRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySession)
}

func (r *TabRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tabs = make(map[target.ID]*TabInfo)
	r.bySession = make(map[string]target.ID)
}
