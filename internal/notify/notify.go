// Package notify posts plain-text alerts for selected resolver outcomes to an
// ntfy-compatible endpoint.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/yourselfhosted/slash-sub001/internal/resolver"
)

// Notifier sends one message per resolution whose outcome is selected.
type Notifier struct {
	client   *http.Client
	endpoint string
	outcomes map[resolver.Outcome]bool
	timeout  time.Duration

	wg sync.WaitGroup
}

// New returns a Notifier for endpoint. A nil client uses http.DefaultClient.
func New(client *http.Client, endpoint string, outcomes []resolver.Outcome) *Notifier {
	if client == nil {
		client = http.DefaultClient
	}
	n := &Notifier{
		client:   client,
		endpoint: endpoint,
		outcomes: make(map[resolver.Outcome]bool, len(outcomes)),
		timeout:  5 * time.Second,
	}
	for _, o := range outcomes {
		n.outcomes[o] = true
	}
	return n
}

// Observe sends res in the background when its outcome is selected. It is
// safe to call from the resolver's observer.
func (n *Notifier) Observe(res resolver.Resolution) {
	if n == nil || !n.outcomes[res.Outcome] {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := Send(ctx, n.client, n.endpoint, Message(res)); err != nil {
			slog.Warn("notification failed", "outcome", res.Outcome, "error", err)
		}
	}()
}

// Wait blocks until in-flight notifications finish.
func (n *Notifier) Wait() {
	if n != nil {
		n.wg.Wait()
	}
}

// Message renders res as a one-line notification body.
func Message(res resolver.Resolution) string {
	var b strings.Builder
	fmt.Fprintf(&b, "slash %s", res.Outcome)
	if res.Name != "" {
		fmt.Fprintf(&b, " s/%s", res.Name)
	}
	if res.Target != "" {
		fmt.Fprintf(&b, " -> %s", res.Target)
	}
	if res.TabID != "" {
		fmt.Fprintf(&b, " (tab %s)", res.TabID)
	}
	if res.Error != "" {
		fmt.Fprintf(&b, ": %s", res.Error)
	}
	return b.String()
}

// ParseOutcomes splits a comma separated outcome list.
func ParseOutcomes(list string) []resolver.Outcome {
	var out []resolver.Outcome
	for _, item := range strings.Split(list, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, resolver.Outcome(item))
		}
	}
	return out
}

// Send posts message to endpoint.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
