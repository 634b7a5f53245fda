package render

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

// EmojiDict maps bare emoji shortcodes (no colons) to image URLs.
type EmojiDict map[string]string

// DefaultEmojiBase is the CDN origin serving the emoji pack manifests.
const DefaultEmojiBase = "https://cdn.mewe.com"

// emojiIndex is the shape of /emoji/build-info.json: pack name to the
// hash-versioned pack file path.
type emojiIndex struct {
	Packs map[string]struct {
		File string `json:"file"`
	} `json:"packs"`
}

// emojiPack is one pack file: shortcode plus the PNG asset path.
type emojiPack struct {
	Emoji []struct {
		Shortname string `json:"shortname"`
		PNG       string `json:"png"`
	} `json:"emoji"`
}

// EmojiCache fetches the emoji dictionary from the MeWe web bundle and keeps
// a copy on disk. The packs are hash-versioned so a long TTL is safe; a
// failed refresh falls back to whatever copy is on disk, however stale.
type EmojiCache struct {
	client *http.Client
	base   string
	path   string
	ttl    time.Duration
}

// NewEmojiCache builds a cache over path. A nil client means
// http.DefaultClient; an empty base means DefaultEmojiBase.
func NewEmojiCache(client *http.Client, base, path string, ttl time.Duration) *EmojiCache {
	if client == nil {
		client = http.DefaultClient
	}
	if base == "" {
		base = DefaultEmojiBase
	}
	return &EmojiCache{client: client, base: strings.TrimSuffix(base, "/"), path: path, ttl: ttl}
}

// Load returns the emoji dictionary, from disk if the cached copy is still
// within its TTL, otherwise from the CDN.
func (e *EmojiCache) Load(ctx context.Context) (EmojiDict, error) {
	if st, err := os.Stat(e.path); err == nil && time.Since(st.ModTime()) < e.ttl {
		if dict, err := e.readFile(); err == nil {
			return dict, nil
		}
		// Corrupt cache file; fall through to a fetch
	}

	dict, err := e.fetch(ctx)
	if err != nil {
		if stale, readErr := e.readFile(); readErr == nil {
			log.Printf("[render] emoji refresh failed, using stale dictionary: %v", err)
			return stale, nil
		}
		return nil, err
	}

	if err := e.writeFile(dict); err != nil {
		log.Printf("[render] failed to persist emoji dictionary: %v", err)
	}
	return dict, nil
}

func (e *EmojiCache) fetch(ctx context.Context) (EmojiDict, error) {
	var index emojiIndex
	if err := e.getJSON(ctx, e.base+"/emoji/build-info.json", &index); err != nil {
		return nil, fmt.Errorf("failed to fetch emoji index: %w", err)
	}

	dict := EmojiDict{}
	for name, pack := range index.Packs {
		var p emojiPack
		if err := e.getJSON(ctx, e.base+pack.File, &p); err != nil {
			return nil, fmt.Errorf("failed to fetch emoji pack %s: %w", name, err)
		}
		for _, item := range p.Emoji {
			dict[strings.Trim(item.Shortname, ":")] = e.base + item.PNG
		}
	}
	return dict, nil
}

func (e *EmojiCache) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (e *EmojiCache) readFile() (EmojiDict, error) {
	data, err := os.ReadFile(e.path)
	if err != nil {
		return nil, err
	}
	var dict EmojiDict
	if err := json.Unmarshal(data, &dict); err != nil {
		return nil, fmt.Errorf("corrupt emoji cache %s: %w", e.path, err)
	}
	return dict, nil
}

func (e *EmojiCache) writeFile(dict EmojiDict) error {
	data, err := json.Marshal(dict)
	if err != nil {
		return err
	}
	return os.WriteFile(e.path, data, 0644)
}
