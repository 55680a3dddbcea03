package notify

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/yourselfhosted/slash-sub001/internal/resolver"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func okResponse() *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("ok")),
		Header:     make(http.Header),
	}
}

func TestSendPostsMessage(t *testing.T) {
	var method, path, contentType, body string
	client := &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			method, path, contentType = r.Method, r.URL.Path, r.Header.Get("Content-Type")
			raw, err := io.ReadAll(r.Body)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			body = string(raw)
			return okResponse(), nil
		}),
	}

	if err := Send(context.Background(), client, "http://example.com/slash", "hello"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if method != http.MethodPost || path != "/slash" || contentType != "text/plain" || body != "hello" {
		t.Fatalf("request = %s %s %s %q", method, path, contentType, body)
	}
}

func TestSendReturnsErrorForServerError(t *testing.T) {
	client := &http.Client{
		Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusInternalServerError,
				Body:       io.NopCloser(strings.NewReader("server failure")),
				Header:     make(http.Header),
			}, nil
		}),
	}

	err := Send(context.Background(), client, "http://example.com/slash", "hello")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "status=500") {
		t.Fatalf("error = %q; want to contain status=500", err)
	}
}

func TestObserveFiltersOutcomes(t *testing.T) {
	var mu sync.Mutex
	var bodies, contentTypes []string
	client := &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			raw, _ := io.ReadAll(r.Body)
			mu.Lock()
			bodies = append(bodies, string(raw))
			contentTypes = append(contentTypes, r.Header.Get("Content-Type"))
			mu.Unlock()
			return okResponse(), nil
		}),
	}

	n := New(client, "http://example.com/slash", ParseOutcomes("navigation_failed, config_unavailable"))
	n.Observe(resolver.Resolution{Outcome: resolver.OutcomeRedirected, Name: "ok"})
	n.Observe(resolver.Resolution{Outcome: resolver.OutcomeNavigationFailed, Name: "docs", Target: "https://x/s/docs", TabID: "T1", Error: "boom"})
	n.Wait()

	if len(bodies) != 1 {
		t.Fatalf("sent %d notifications; want 1: %v", len(bodies), bodies)
	}
	want := "slash navigation_failed s/docs -> https://x/s/docs (tab T1): boom"
	if bodies[0] != want {
		t.Fatalf("body = %q; want %q", bodies[0], want)
	}
	if contentTypes[0] != "text/plain" {
		t.Fatalf("Content-Type = %q; want text/plain", contentTypes[0])
	}
}

func TestNilNotifierIsNoop(t *testing.T) {
	var n *Notifier
	n.Observe(resolver.Resolution{Outcome: resolver.OutcomeNavigationFailed})
	n.Wait()
}
