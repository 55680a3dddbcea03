package relay

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestBrokerFanOut(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewBroker()
	id1, ch1 := b.Subscribe()
	_, ch2 := b.Subscribe()
	if b.ClientCount() != 2 {
		t.Fatalf("ClientCount() = %d; want 2", b.ClientCount())
	}

	b.Publish(Event{Type: "redirected", Payload: `{"name":"a"}`})
	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case evt := <-ch:
			if evt.Type != "redirected" || evt.Payload != `{"name":"a"}` {
				t.Fatalf("subscriber %d got %+v", i, evt)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d got nothing", i)
		}
	}

	b.Unsubscribe(id1)
	if _, ok := <-ch1; ok {
		t.Fatalf("channel not closed after Unsubscribe")
	}
	b.Unsubscribe(id1)

	b.Close()
	if _, ok := <-ch2; ok {
		t.Fatalf("channel not closed after Close")
	}
	if b.ClientCount() != 0 {
		t.Fatalf("ClientCount() = %d; want 0", b.ClientCount())
	}
}

func TestBrokerDropsForSlowSubscriber(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewBroker()
	_, ch := b.Subscribe()
	for i := 0; i < subscriberBufSize+10; i++ {
		b.Publish(Event{Type: "no_match"})
	}
	published, dropped := b.Stats()
	if published != int64(subscriberBufSize+10) || dropped != 10 {
		t.Fatalf("Stats() = %d, %d; want %d, 10", published, dropped, subscriberBufSize+10)
	}
	if len(ch) != subscriberBufSize {
		t.Fatalf("buffered = %d; want %d", len(ch), subscriberBufSize)
	}
	b.Close()
}

func TestBrokerConcurrentPublish(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewBroker()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, _ := b.Subscribe()
			b.Publish(Event{Type: "redirected"})
			b.Unsubscribe(id)
		}()
	}
	wg.Wait()
	if b.ClientCount() != 0 {
		t.Fatalf("ClientCount() = %d; want 0", b.ClientCount())
	}
}

func TestSSEHandlerFiltersTypes(t *testing.T) {
	b := NewBroker()
	srv := httptest.NewServer(SSEHandler(b, "outcomes"))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?outcomes=redirected,%20navigation_failed", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	deadline := time.Now().Add(2 * time.Second)
	for b.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("client never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	b.Publish(Event{Type: "no_match", Payload: `{"skip":true}`})
	b.Publish(Event{Type: "redirected", Payload: `{"name":"alpha"}`})

	lines := make(chan string, 8)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	var got []string
	for len(got) < 2 {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatalf("stream ended early, got %v", got)
			}
			if strings.TrimSpace(line) != "" {
				got = append(got, line)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out, got %v", got)
		}
	}
	if got[0] != "event: redirected" || got[1] != `data: {"name":"alpha"}` {
		t.Fatalf("stream = %v", got)
	}
}

func TestParseFilter(t *testing.T) {
	if parseFilter("") != nil || parseFilter(" , ") != nil {
		t.Fatalf("empty filters should accept everything")
	}
	f := parseFilter("a, b")
	if !f["a"] || !f["b"] || len(f) != 2 {
		t.Fatalf("parseFilter() = %v", f)
	}
}
