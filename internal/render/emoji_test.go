package render

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func emojiUpstream(t *testing.T, hits *atomic.Int64, healthy *atomic.Bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/emoji/build-info.json", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if !healthy.Load() {
			http.Error(w, "down", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"packs": {"core": {"file": "/emoji/core.abc123.json"}}}`))
	})
	mux.HandleFunc("/emoji/core.abc123.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"emoji": [
			{"shortname": ":smile:", "png": "/emoji/png/smile.png"},
			{"shortname": "wink", "png": "/emoji/png/wink.png"}
		]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestEmojiCacheLoad(t *testing.T) {
	var hits atomic.Int64
	var healthy atomic.Bool
	healthy.Store(true)
	srv := emojiUpstream(t, &hits, &healthy)

	path := filepath.Join(t.TempDir(), "emoji.json")
	cache := NewEmojiCache(srv.Client(), srv.URL, path, time.Hour)

	dict, err := cache.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if dict["smile"] != srv.URL+"/emoji/png/smile.png" {
		t.Errorf("smile = %q", dict["smile"])
	}
	if dict["wink"] == "" {
		t.Error("wink missing from dictionary")
	}

	// Second load within TTL comes from disk
	dict, err = cache.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() from cache error = %v", err)
	}
	if len(dict) != 2 {
		t.Errorf("cached dict size = %d, want 2", len(dict))
	}
	if hits.Load() != 1 {
		t.Errorf("upstream hits = %d, want 1", hits.Load())
	}
}

func TestEmojiCacheStaleFallback(t *testing.T) {
	var hits atomic.Int64
	var healthy atomic.Bool
	healthy.Store(true)
	srv := emojiUpstream(t, &hits, &healthy)

	path := filepath.Join(t.TempDir(), "emoji.json")

	// Zero TTL means every load tries the network first
	cache := NewEmojiCache(srv.Client(), srv.URL, path, 0)
	if _, err := cache.Load(context.Background()); err != nil {
		t.Fatalf("warm-up Load() error = %v", err)
	}

	healthy.Store(false)
	dict, err := cache.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() with upstream down error = %v", err)
	}
	if dict["smile"] == "" {
		t.Error("stale dictionary missing entries")
	}
}

func TestEmojiCacheErrorWithoutStale(t *testing.T) {
	var hits atomic.Int64
	var healthy atomic.Bool
	srv := emojiUpstream(t, &hits, &healthy) // never healthy

	cache := NewEmojiCache(srv.Client(), srv.URL, filepath.Join(t.TempDir(), "emoji.json"), time.Hour)
	if _, err := cache.Load(context.Background()); err == nil {
		t.Fatal("Load() expected error with no cache file")
	}
}
