package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourselfhosted/slash-sub001/internal/kvstore"
)

type navCall struct {
	TabID string
	URL   string
}

type fakeNavigator struct {
	mu    sync.Mutex
	calls []navCall
	err   error
}

func (f *fakeNavigator) UpdateTab(_ context.Context, tabID, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, navCall{TabID: tabID, URL: url})
	return f.err
}

type failingReader struct{ err error }

func (f failingReader) Get(context.Context, string) (string, bool, error) {
	return "", false, f.err
}

func configured(t *testing.T, instance string) *kvstore.Memory {
	t.Helper()
	store := kvstore.NewMemory()
	require.NoError(t, store.Set(context.Background(), kvstore.KeyInstanceURL, instance))
	return store
}

func TestResolveAndRedirect(t *testing.T) {
	nav := &fakeNavigator{}
	r := New(configured(t, "https://my.instance.example"), nav)

	outcome, err := r.ResolveAndRedirect(context.Background(), Intent{Name: "alpha"}, "tab-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRedirected, outcome)
	assert.Equal(t, []navCall{{TabID: "tab-1", URL: "https://my.instance.example/s/alpha"}}, nav.calls)
}

func TestResolveAndRedirectUnconfigured(t *testing.T) {
	nav := &fakeNavigator{}
	r := New(kvstore.NewMemory(), nav)

	outcome, err := r.ResolveAndRedirect(context.Background(), Intent{Name: "alpha"}, "tab-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnconfigured, outcome)
	assert.Empty(t, nav.calls)
}

func TestResolveAndRedirectBlankOrRelativeInstance(t *testing.T) {
	for _, instance := range []string{"   ", "my.instance.example", "/relative"} {
		nav := &fakeNavigator{}
		r := New(configured(t, instance), nav)
		outcome, err := r.ResolveAndRedirect(context.Background(), Intent{Name: "alpha"}, "tab-1")
		require.NoError(t, err)
		assert.Equal(t, OutcomeUnconfigured, outcome, instance)
		assert.Empty(t, nav.calls, instance)
	}
}

func TestResolveAndRedirectConfigReadFailure(t *testing.T) {
	nav := &fakeNavigator{}
	readErr := errors.New("disk gone")
	r := New(failingReader{err: readErr}, nav)

	outcome, err := r.ResolveAndRedirect(context.Background(), Intent{Name: "alpha"}, "tab-1")
	assert.ErrorIs(t, err, readErr)
	assert.Equal(t, OutcomeConfigUnavailable, outcome)
	assert.Empty(t, nav.calls)
}

func TestResolveAndRedirectNavigationFailure(t *testing.T) {
	navErr := errors.New("no such target")
	nav := &fakeNavigator{err: navErr}
	r := New(configured(t, "https://my.instance.example"), nav)

	outcome, err := r.ResolveAndRedirect(context.Background(), Intent{Name: "alpha"}, "tab-1")
	assert.ErrorIs(t, err, navErr)
	assert.Equal(t, OutcomeNavigationFailed, outcome)
	assert.Len(t, nav.calls, 1, "failed navigations are not retried")
}

func TestTargetURLEncoding(t *testing.T) {
	tests := []struct {
		instance string
		name     string
		want     string
	}{
		{"https://my.instance.example", "alpha", "https://my.instance.example/s/alpha"},
		{"https://my.instance.example/", "alpha", "https://my.instance.example/s/alpha"},
		{"https://my.instance.example/app/", "alpha", "https://my.instance.example/s/alpha"},
		{"http://localhost:5231", "meeting notes", "http://localhost:5231/s/meeting%20notes"},
		{"https://my.instance.example", "what?", "https://my.instance.example/s/what%3F"},
		{"https://my.instance.example", "docs/api", "https://my.instance.example/s/docs/api"},
		{"https://my.instance.example", "", "https://my.instance.example/s/"},
	}
	for _, tt := range tests {
		t.Run(tt.instance+" "+tt.name, func(t *testing.T) {
			r := New(configured(t, tt.instance), &fakeNavigator{})
			got, ok, err := r.TargetURL(context.Background(), tt.name)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHandleNavigation(t *testing.T) {
	tests := []struct {
		url     string
		outcome Outcome
		target  string
	}{
		{"https://www.google.com/search?q=s/foo", OutcomeRedirected, "https://my.instance.example/s/foo"},
		{"http://s/bar", OutcomeRedirected, "https://my.instance.example/s/bar"},
		{"https://www.google.com/search?q=weather", OutcomeNoMatch, ""},
		{"https://example.com/", OutcomeNoMatch, ""},
		{"http://s/", OutcomeEmptyName, ""},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			nav := &fakeNavigator{}
			var observed []Resolution
			r := New(configured(t, "https://my.instance.example"), nav,
				WithObserver(func(res Resolution) { observed = append(observed, res) }))

			res := r.HandleNavigation(context.Background(), NavigationEvent{RequestURL: tt.url, TabID: "tab-9"})
			assert.Equal(t, tt.outcome, res.Outcome)
			assert.Equal(t, tt.target, res.Target)
			require.Len(t, observed, 1)
			assert.Equal(t, res, observed[0])

			if tt.outcome == OutcomeRedirected {
				assert.Equal(t, []navCall{{TabID: "tab-9", URL: tt.target}}, nav.calls)
			} else {
				assert.Empty(t, nav.calls)
			}
		})
	}
}

func TestHandleNavigationEmptyNameRedirectPolicy(t *testing.T) {
	nav := &fakeNavigator{}
	r := New(configured(t, "https://my.instance.example"), nav, WithEmptyNamePolicy(EmptyNameRedirect))

	res := r.HandleNavigation(context.Background(), NavigationEvent{RequestURL: "https://www.bing.com/search?q=s/", TabID: "t"})
	assert.Equal(t, OutcomeRedirected, res.Outcome)
	assert.Equal(t, []navCall{{TabID: "t", URL: "https://my.instance.example/s/"}}, nav.calls)
}

func TestHandleNavigationConcurrent(t *testing.T) {
	nav := &fakeNavigator{}
	r := New(configured(t, "https://my.instance.example"), nav)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.HandleNavigation(context.Background(), NavigationEvent{RequestURL: "http://s/x", TabID: "tab"})
		}()
	}
	wg.Wait()
	assert.Len(t, nav.calls, 32)
}

func TestParseEmptyNamePolicy(t *testing.T) {
	p, err := ParseEmptyNamePolicy("")
	require.NoError(t, err)
	assert.Equal(t, EmptyNameIgnore, p)

	p, err = ParseEmptyNamePolicy(" Redirect ")
	require.NoError(t, err)
	assert.Equal(t, EmptyNameRedirect, p)

	_, err = ParseEmptyNamePolicy("sometimes")
	assert.Error(t, err)
}
