package httpcache

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func mustRules(t *testing.T, rules []Rule) Rules {
	t.Helper()
	compiled, err := CompileRules(rules)
	if err != nil {
		t.Fatalf("CompileRules() error = %v", err)
	}
	return compiled
}

func TestStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)

	entry := &Entry{
		StatusCode: 200,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       []byte(`{"ok":true}`),
		StoredAt:   time.Now().Truncate(time.Second),
	}
	if err := store.Set("https://mewe.com/api/v2/home/allfeed", entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := store.Get("https://mewe.com/api/v2/home/allfeed")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil {
		t.Fatal("Get() = nil, want entry")
	}
	if got.StatusCode != 200 || string(got.Body) != `{"ok":true}` {
		t.Errorf("Get() = %+v", got)
	}
	if got.Header.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", got.Header.Get("Content-Type"))
	}
	if !got.StoredAt.Equal(entry.StoredAt) {
		t.Errorf("StoredAt = %v, want %v", got.StoredAt, entry.StoredAt)
	}

	// Replacing updates in place
	entry.Body = []byte(`{"ok":false}`)
	if err := store.Set("https://mewe.com/api/v2/home/allfeed", entry); err != nil {
		t.Fatalf("Set() replace error = %v", err)
	}
	got, _ = store.Get("https://mewe.com/api/v2/home/allfeed")
	if string(got.Body) != `{"ok":false}` {
		t.Errorf("replaced body = %s", got.Body)
	}

	// Miss returns nil, nil
	miss, err := store.Get("https://mewe.com/nothing")
	if err != nil || miss != nil {
		t.Errorf("Get(miss) = %v, %v; want nil, nil", miss, err)
	}
}

func TestStorePurge(t *testing.T) {
	store := newTestStore(t)

	old := &Entry{StatusCode: 200, Header: http.Header{}, Body: []byte("old"), StoredAt: time.Now().Add(-48 * time.Hour)}
	fresh := &Entry{StatusCode: 200, Header: http.Header{}, Body: []byte("new"), StoredAt: time.Now()}
	store.Set("k-old", old)
	store.Set("k-new", fresh)

	n, err := store.Purge(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Purge() = %d, want 1", n)
	}
	if got, _ := store.Get("k-old"); got != nil {
		t.Error("k-old survived purge")
	}
	if got, _ := store.Get("k-new"); got == nil {
		t.Error("k-new purged unexpectedly")
	}
}

func TestCacheKeyStripsCredentials(t *testing.T) {
	u, _ := url.Parse("https://mewe.com/api/v2/photo/x/img?access-token=secret&cdn-exp=123&size=400")
	key := cacheKey(u)
	if strings.Contains(key, "secret") || strings.Contains(key, "cdn-exp") {
		t.Errorf("cacheKey leaked credentials: %s", key)
	}
	if !strings.Contains(key, "size=400") {
		t.Errorf("cacheKey dropped real params: %s", key)
	}
}

func TestTransportCachesWithinTTL(t *testing.T) {
	calls := 0
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Set-Cookie", "access-token=leaky")
		w.Write([]byte(`{"feed":[]}`))
	}))
	defer upstream.Close()

	transport := New(newTestStore(t), mustRules(t, []Rule{{Pattern: "*", TTL: time.Hour}}), nil)
	client := &http.Client{Transport: transport}

	for i := 0; i < 3; i++ {
		resp, err := client.Get(upstream.URL + "/api/v2/home/allfeed")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if string(body) != `{"feed":[]}` {
			t.Errorf("body = %s", body)
		}
		if i > 0 {
			if resp.Header.Get("X-From-Cache") != "1" {
				t.Errorf("request %d not served from cache", i)
			}
			if resp.Header.Get("Set-Cookie") != "" {
				t.Error("cached response leaked Set-Cookie")
			}
		}
	}
	if calls != 1 {
		t.Errorf("upstream calls = %d, want 1", calls)
	}
}

func TestTransportExpiry(t *testing.T) {
	calls := 0
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte("payload"))
	}))
	defer upstream.Close()

	transport := New(newTestStore(t), mustRules(t, []Rule{{Pattern: "*", TTL: 5 * time.Second}}), nil)
	now := time.Now()
	transport.now = func() time.Time { return now }
	client := &http.Client{Transport: transport}

	client.Get(upstream.URL + "/x")
	client.Get(upstream.URL + "/x")
	if calls != 1 {
		t.Fatalf("upstream calls = %d, want 1 before expiry", calls)
	}

	now = now.Add(6 * time.Second)
	client.Get(upstream.URL + "/x")
	if calls != 2 {
		t.Errorf("upstream calls = %d, want 2 after expiry", calls)
	}
}

func TestTransportDoNotCache(t *testing.T) {
	calls := 0
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte("{}"))
	}))
	defer upstream.Close()

	rules := mustRules(t, []Rule{
		{Pattern: "*/auth/identify", TTL: DoNotCache},
		{Pattern: "*", TTL: time.Hour},
	})
	client := &http.Client{Transport: New(newTestStore(t), rules, nil)}

	client.Get(upstream.URL + "/auth/identify")
	client.Get(upstream.URL + "/auth/identify")
	if calls != 2 {
		t.Errorf("upstream calls = %d, want 2 for uncacheable endpoint", calls)
	}
}

func TestTransportStaleIfError(t *testing.T) {
	healthy := true
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		w.Write([]byte("good data"))
	}))
	defer upstream.Close()

	transport := New(newTestStore(t), mustRules(t, []Rule{{Pattern: "*", TTL: time.Nanosecond}}), nil)
	client := &http.Client{Transport: transport}

	resp, err := client.Get(upstream.URL + "/feed")
	if err != nil {
		t.Fatalf("warm-up Get() error = %v", err)
	}
	io.ReadAll(resp.Body)
	resp.Body.Close()

	// Entry is immediately stale; upstream failure should serve it anyway
	healthy = false
	time.Sleep(time.Millisecond)

	resp, err = client.Get(upstream.URL + "/feed")
	if err != nil {
		t.Fatalf("stale Get() error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "good data" {
		t.Errorf("stale body = %q, want cached payload", body)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("stale status = %d, want 200", resp.StatusCode)
	}
}

func TestTransportPostPassesThrough(t *testing.T) {
	calls := 0
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte("{}"))
	}))
	defer upstream.Close()

	client := &http.Client{Transport: New(newTestStore(t), mustRules(t, []Rule{{Pattern: "*", TTL: time.Hour}}), nil)}

	client.Post(upstream.URL+"/x", "application/json", strings.NewReader("{}"))
	client.Post(upstream.URL+"/x", "application/json", strings.NewReader("{}"))
	if calls != 2 {
		t.Errorf("upstream calls = %d, want 2 for POST", calls)
	}
}

func TestTransportNetworkErrorWithoutStale(t *testing.T) {
	inner := roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	client := &http.Client{Transport: New(newTestStore(t), mustRules(t, []Rule{{Pattern: "*", TTL: time.Hour}}), inner)}

	if _, err := client.Get("http://mewe.invalid/feed"); err == nil {
		t.Fatal("Get() expected error with no stale entry")
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
