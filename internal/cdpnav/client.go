// Package cdpnav intercepts top-level navigations in a Chromium browser over
// the Chrome DevTools Protocol and performs tab redirects.
package cdpnav

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/target"

	"github.com/yourselfhosted/slash-sub001/internal/resolver"
)

// ErrTabNotAttached is returned by UpdateTab for unknown tabs.
var ErrTabNotAttached = errors.New("tab not attached")

// Handler decides what happens to an intercepted navigation.
type Handler interface {
	HandleNavigation(ctx context.Context, ev resolver.NavigationEvent) resolver.Resolution
}

type pausedKey struct{}

// pausedRequest is a Fetch-paused document request; it is released exactly
// once, either continued or aborted.
type pausedRequest struct {
	sessionID string
	targetID  target.ID
	id        fetch.RequestID
	released  atomic.Bool
}

func (p *pausedRequest) release() bool {
	return p.released.CompareAndSwap(false, true)
}

// Client attaches to every page target of a browser, pauses document
// requests matching the resolver's URL patterns and hands them to a Handler.
type Client struct {
	cdpURL     string
	navTimeout time.Duration
	tabs       *TabRegistry

	mu         sync.Mutex
	cdp        *rawCDP
	handler    Handler
	patterns   []string
	unregister []func()

	inflight sync.WaitGroup
}

func NewClient(cdpURL string, navTimeout time.Duration) *Client {
	if navTimeout <= 0 {
		navTimeout = 5 * time.Second
	}
	return &Client{
		cdpURL:     cdpURL,
		navTimeout: navTimeout,
		tabs:       NewTabRegistry(),
	}
}

// Start connects to the browser and begins intercepting navigations that
// match patterns.
func (c *Client) Start(ctx context.Context, handler Handler, patterns []string) error {
	if len(patterns) == 0 {
		return fmt.Errorf("cdpnav: no url patterns")
	}

	c.mu.Lock()
	if c.cdp != nil {
		c.mu.Unlock()
		return fmt.Errorf("cdpnav: already started")
	}
	slog.Info("cdpnav connect start", "cdp_url", c.cdpURL, "patterns", patterns)
	cdp := newRawCDP(c.cdpURL)
	if err := cdp.connect(ctx); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("cdpnav: connect: %w", err)
	}
	c.cdp = cdp
	c.handler = handler
	c.patterns = patterns
	c.unregister = append(c.unregister,
		cdp.registerEventHandler("Target.attachedToTarget", c.onAttached),
		cdp.registerEventHandler("Target.targetInfoChanged", c.onTargetInfoChanged),
		cdp.registerEventHandler("Target.targetDestroyed", c.onTargetDestroyed),
		cdp.registerEventHandler("Target.detachedFromTarget", c.onDetached),
		cdp.registerEventHandler("Fetch.requestPaused", c.onRequestPaused),
	)
	c.mu.Unlock()

	targets, err := cdp.listTargets(ctx)
	if err != nil {
		_ = c.Close()
		return fmt.Errorf("cdpnav: failed to list targets: %w", err)
	}
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		if err := c.attach(ctx, cdp, t.TargetID, t.URL, t.Title); err != nil {
			slog.Warn("cdpnav attach failed", "target_id", t.TargetID, "url", truncateURL(t.URL), "error", err)
		}
	}

	if err := cdp.setDiscoverTargets(ctx); err != nil {
		_ = c.Close()
		return fmt.Errorf("cdpnav: discover targets: %w", err)
	}
	// New tabs start paused so Fetch is enabled before their first request.
	if err := cdp.setAutoAttach(ctx); err != nil {
		_ = c.Close()
		return fmt.Errorf("cdpnav: auto attach: %w", err)
	}

	slog.Info("cdpnav connect ok", "cdp_url", c.cdpURL, "tabs", c.tabs.Count())
	return nil
}

// Done is closed when the browser connection is lost.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cdp == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.cdp.done()
}

// Tabs returns the attached page targets.
func (c *Client) Tabs() []TabInfo {
	return c.tabs.List()
}

// UpdateTab navigates tabID to url. When called while handling a paused
// request of the same tab, that request is aborted first so the browser does
// not continue the original navigation.
func (c *Client) UpdateTab(ctx context.Context, tabID, url string) error {
	c.mu.Lock()
	cdp := c.cdp
	c.mu.Unlock()
	if cdp == nil {
		return fmt.Errorf("cdpnav: not connected")
	}

	targetID := target.ID(tabID)
	sessionID, ok := c.tabs.SessionFor(targetID)
	if !ok {
		return fmt.Errorf("cdpnav: %s: %w", tabID, ErrTabNotAttached)
	}

	if p, ok := ctx.Value(pausedKey{}).(*pausedRequest); ok && p.targetID == targetID && p.release() {
		if err := cdp.failRequest(ctx, p.sessionID, p.id); err != nil {
			slog.Debug("cdpnav abort paused request failed", "tab_id", tabID, "request_id", p.id, "error", err)
		}
	}

	if err := cdp.navigate(ctx, sessionID, url); err != nil {
		return err
	}
	c.tabs.MarkRedirected(targetID, url)
	return nil
}

// Close stops interception and detaches from all tabs without closing them.
func (c *Client) Close() error {
	c.mu.Lock()
	c.cleanupLocked()
	c.mu.Unlock()
	c.inflight.Wait()
	slog.Info("cdpnav client closed")
	return nil
}

func (c *Client) cleanupLocked() {
	for _, fn := range c.unregister {
		fn()
	}
	c.unregister = nil
	if c.cdp != nil {
		for _, tab := range c.tabs.List() {
			sessionID, ok := c.tabs.SessionFor(target.ID(tab.TargetID))
			if !ok {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			_ = c.cdp.detachFromTarget(ctx, sessionID)
			cancel()
		}
		c.cdp.close()
		c.cdp = nil
	}
	c.tabs.Reset()
}

func (c *Client) attach(ctx context.Context, cdp *rawCDP, targetID target.ID, url, title string) error {
	if !c.tabs.Reserve(targetID, url, title) {
		return nil
	}
	c.mu.Lock()
	patterns := c.patterns
	c.mu.Unlock()

	sessionID, err := cdp.attachToTarget(ctx, targetID)
	if err != nil {
		c.tabs.Remove(targetID)
		return err
	}
	c.tabs.Bind(targetID, sessionID)
	if err := cdp.enableFetch(ctx, sessionID, patterns); err != nil {
		c.tabs.Remove(targetID)
		_ = cdp.detachFromTarget(ctx, sessionID)
		return fmt.Errorf("enable fetch: %w", err)
	}
	slog.Info("cdpnav attached to tab", "target_id", targetID, "url", truncateURL(url))
	return nil
}

// Event handlers run on the read loop; anything that sends commands is moved
// to its own goroutine.

type targetInfoEvent struct {
	TargetInfo struct {
		TargetID target.ID `json:"targetId"`
		Type     string    `json:"type"`
		Title    string    `json:"title"`
		URL      string    `json:"url"`
	} `json:"targetInfo"`
}

type attachedEvent struct {
	SessionID          string `json:"sessionId"`
	WaitingForDebugger bool   `json:"waitingForDebugger"`
	TargetInfo         struct {
		TargetID target.ID `json:"targetId"`
		Type     string    `json:"type"`
		Title    string    `json:"title"`
		URL      string    `json:"url"`
	} `json:"targetInfo"`
}

func (c *Client) onAttached(_ string, params json.RawMessage) {
	var evt attachedEvent
	if err := json.Unmarshal(params, &evt); err != nil || evt.SessionID == "" {
		return
	}
	c.goInflight(func() {
		c.mu.Lock()
		cdp := c.cdp
		c.mu.Unlock()
		if cdp == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		c.adopt(ctx, cdp, evt)
	})
}

// adopt takes over an auto-attached session. Page targets not yet tracked
// get Fetch enabled before they resume; any other session is resumed and
// dropped.
func (c *Client) adopt(ctx context.Context, cdp *rawCDP, evt attachedEvent) {
	info := evt.TargetInfo
	keep := info.Type == "page" && c.tabs.Reserve(info.TargetID, info.URL, info.Title)
	if keep {
		c.tabs.Bind(info.TargetID, evt.SessionID)
		c.mu.Lock()
		patterns := c.patterns
		c.mu.Unlock()
		if err := cdp.enableFetch(ctx, evt.SessionID, patterns); err != nil {
			slog.Warn("cdpnav enable fetch on new tab failed", "target_id", info.TargetID, "error", err)
			c.tabs.Remove(info.TargetID)
			keep = false
		} else {
			slog.Info("cdpnav attached to new tab", "target_id", info.TargetID, "url", truncateURL(info.URL))
		}
	}

	if evt.WaitingForDebugger {
		if err := cdp.runIfWaitingForDebugger(ctx, evt.SessionID); err != nil {
			slog.Warn("cdpnav resume target failed", "target_id", info.TargetID, "error", err)
		}
	}
	if !keep {
		if err := cdp.detachFromTarget(ctx, evt.SessionID); err != nil {
			slog.Debug("cdpnav detach extra session failed", "target_id", info.TargetID, "error", err)
		}
	}
}

func (c *Client) onTargetInfoChanged(_ string, params json.RawMessage) {
	var evt targetInfoEvent
	if err := json.Unmarshal(params, &evt); err != nil {
		return
	}
	c.tabs.Update(evt.TargetInfo.TargetID, evt.TargetInfo.URL, evt.TargetInfo.Title)
}

func (c *Client) onTargetDestroyed(_ string, params json.RawMessage) {
	var evt struct {
		TargetID target.ID `json:"targetId"`
	}
	if err := json.Unmarshal(params, &evt); err != nil {
		return
	}
	if _, ok := c.tabs.Remove(evt.TargetID); ok {
		slog.Debug("cdpnav tab closed", "target_id", evt.TargetID)
	}
}

func (c *Client) onDetached(_ string, params json.RawMessage) {
	var evt struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(params, &evt); err != nil {
		return
	}
	c.tabs.RemoveSession(evt.SessionID)
}

type requestPausedEvent struct {
	RequestID fetch.RequestID `json:"requestId"`
	Request   struct {
		URL string `json:"url"`
	} `json:"request"`
	FrameID      string `json:"frameId"`
	ResourceType string `json:"resourceType"`
}

func (c *Client) onRequestPaused(sessionID string, params json.RawMessage) {
	var evt requestPausedEvent
	if err := json.Unmarshal(params, &evt); err != nil {
		slog.Debug("cdpnav bad requestPaused payload", "error", err)
		return
	}
	c.goInflight(func() { c.handlePaused(sessionID, evt) })
}

func (c *Client) handlePaused(sessionID string, evt requestPausedEvent) {
	c.mu.Lock()
	cdp, handler := c.cdp, c.handler
	c.mu.Unlock()
	if cdp == nil {
		return
	}

	p := &pausedRequest{sessionID: sessionID, id: evt.RequestID}
	targetID, ok := c.tabs.TargetFor(sessionID)
	// The main frame shares its ID with the page target; subframe documents
	// are never redirected.
	if ok && evt.FrameID == string(targetID) && handler != nil {
		p.targetID = targetID
		ctx, cancel := context.WithTimeout(context.Background(), c.navTimeout)
		handler.HandleNavigation(context.WithValue(ctx, pausedKey{}, p), resolver.NavigationEvent{
			RequestURL: evt.Request.URL,
			TabID:      string(targetID),
		})
		cancel()
	}
	if !p.release() {
		return
	}

	// Fresh context: a timed-out handler must not leave the tab stuck on a
	// paused request.
	releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer releaseCancel()
	if err := cdp.continueRequest(releaseCtx, sessionID, evt.RequestID); err != nil {
		slog.Debug("cdpnav continue request failed", "request_id", evt.RequestID, "error", err)
	}
}

func (c *Client) goInflight(fn func()) {
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		fn()
	}()
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
