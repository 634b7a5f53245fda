package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the meview service
type Config struct {
	// Server settings
	Port      int
	PublicURL string // Public base URL, used to build proxied media links

	// Upstream session settings
	CookieFile   string // Netscape cookies.txt exported from the browser
	UserAgent    string
	HTTPTimeout  time.Duration
	RefreshEarly time.Duration // Refresh the access token this long before expiry

	// Response cache settings
	CachePath  string // SQLite cache database; empty disables caching
	CacheRules string // Optional YAML file with TTL rule overrides

	// Rendering settings
	EmojiCache string // Cached emoji shortcode dictionary
	ThumbSize  string // Requested thumbnail size, sizes below 400 are not always respected
	ImageSize  string // Full-size image request size
	FeedLimit  int    // Default page size for feed endpoints
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port: getEnvInt("PORT", 8000),
		// Not HOSTNAME: container runtimes set that to the machine name
		PublicURL:    strings.TrimRight(getEnv("PUBLIC_URL", "http://localhost:8000"), "/"),
		CookieFile:   os.Getenv("COOKIE_FILE"),
		UserAgent:    getEnv("USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; rv:102.0) Gecko/20100101 Firefox/102.0"),
		HTTPTimeout:  time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 15)) * time.Second,
		RefreshEarly: time.Duration(getEnvInt("REFRESH_EARLY_SECONDS", 60)) * time.Second,
		CachePath:    getEnv("CACHE_PATH", "meview_cache.db"),
		CacheRules:   os.Getenv("CACHE_RULES"),
		EmojiCache:   getEnv("EMOJI_CACHE", "emoji_index.json"),
		ThumbSize:    getEnv("THUMB_SIZE", "400x400"),
		ImageSize:    getEnv("IMAGE_SIZE", "2000x2000"),
		FeedLimit:    getEnvInt("FEED_LIMIT", 30),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks that all required configuration is present
func (c *Config) validate() error {
	if c.CookieFile == "" {
		return fmt.Errorf("COOKIE_FILE is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	if !strings.HasPrefix(c.PublicURL, "http://") && !strings.HasPrefix(c.PublicURL, "https://") {
		return fmt.Errorf("PUBLIC_URL must be an absolute http(s) URL")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT_SECONDS must be greater than 0")
	}
	if c.FeedLimit <= 0 {
		c.FeedLimit = 30
	}
	return nil
}

// getEnv gets environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets environment variable as int with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
