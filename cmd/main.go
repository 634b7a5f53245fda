package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"meview/internal/config"
	"meview/internal/httpcache"
	"meview/internal/mewe"
	"meview/internal/render"
	"meview/internal/store"
	"meview/internal/web"
)

// userDirectoryTTL matches the upstream contact-info cache window.
const userDirectoryTTL = 180 * 24 * time.Hour

// emojiCacheTTL is how long the downloaded emoji dictionary stays fresh. The
// pack files are hash-versioned, so a long window is safe.
const emojiCacheTTL = 30 * 24 * time.Hour

// meweClient is everything main needs from the API client.
type meweClient interface {
	web.API
	render.FeedAPI
}

var (
	loadDotEnv = godotenv.Load
	newClient  = func(ctx context.Context, opts mewe.Options) (meweClient, error) {
		return mewe.NewClient(ctx, opts)
	}
	loadEmojis = func(ctx context.Context, cachePath string) (render.EmojiDict, error) {
		return render.NewEmojiCache(nil, "", cachePath, emojiCacheTTL).Load(ctx)
	}
	newWebHandler      = web.NewHandler
	defaultListenServe = http.ListenAndServe
)

func main() {
	if err := run(context.Background(), defaultListenServe); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func run(ctx context.Context, serve func(string, http.Handler) error) error {
	// Load .env file (ignore error if file doesn't exist)
	_ = loadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log.Printf("Starting meview server...")
	log.Printf("Port: %d", cfg.Port)
	log.Printf("Public URL: %s", cfg.PublicURL)
	log.Printf("Cookie file: %s", cfg.CookieFile)

	// Response cache sits under the API client as a transport wrapper
	var transport http.RoundTripper
	if cfg.CachePath != "" {
		rules, err := cacheRules(cfg.CacheRules)
		if err != nil {
			return fmt.Errorf("failed to load cache rules: %w", err)
		}
		cacheStore, err := httpcache.OpenStore(cfg.CachePath)
		if err != nil {
			return fmt.Errorf("failed to open response cache: %w", err)
		}
		defer cacheStore.Close()
		transport = httpcache.New(cacheStore, rules, nil)
		log.Printf("Response cache: %s", cfg.CachePath)
	}

	client, err := newClient(ctx, mewe.Options{
		CookieFile:   cfg.CookieFile,
		UserAgent:    cfg.UserAgent,
		Timeout:      cfg.HTTPTimeout,
		RefreshEarly: cfg.RefreshEarly,
		Transport:    transport,
	})
	if err != nil {
		return fmt.Errorf("failed to open MeWe session: %w", err)
	}
	if identity := client.Identity(); identity != nil {
		log.Printf("Session: %s (%s)", identity.Name, identity.ID)
	}

	// A missing dictionary only degrades emoji rendering, don't refuse to start
	emojis, err := loadEmojis(ctx, cfg.EmojiCache)
	if err != nil {
		log.Printf("Emoji dictionary unavailable, shortcodes stay literal: %v", err)
		emojis = render.EmojiDict{}
	} else {
		log.Printf("Emoji dictionary: %d entries", len(emojis))
	}

	builder := render.NewBuilder(client, render.NewMarkdown(emojis), emojis, cfg.PublicURL, cfg.ThumbSize, cfg.ImageSize)
	users := store.NewUserDirectory(userDirectoryTTL)

	webHandler, err := newWebHandler(client, builder, users, cfg.FeedLimit)
	if err != nil {
		return fmt.Errorf("failed to initialize web handler: %w", err)
	}

	r := mux.NewRouter()
	webHandler.RegisterRoutes(r)

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("Server listening on %s", addr)
	log.Printf("World feed: %s/myworld", cfg.PublicURL)
	log.Printf("Health check: %s/health", cfg.PublicURL)

	// Rotated cookies are persisted by the session refresh that precedes
	// every API call, so there is no shutdown bookkeeping to do here.
	if err := serve(addr, r); err != nil {
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

func cacheRules(path string) (httpcache.Rules, error) {
	if path == "" {
		return httpcache.CompileRules(httpcache.DefaultRules())
	}
	return httpcache.LoadRules(path)
}
