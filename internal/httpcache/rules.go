package httpcache

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TTL sentinels. Zero means the URL must never be cached; NeverExpire means a
// stored response stays fresh forever (media blobs are content-addressed
// upstream).
const (
	DoNotCache  time.Duration = 0
	NeverExpire time.Duration = -1
)

// Rule binds a URL glob to a TTL. Patterns use shell-style globs where '*'
// crosses path separators; first match wins.
type Rule struct {
	Pattern string
	TTL     time.Duration

	re *regexp.Regexp
}

// DefaultRules mirror the per-endpoint cooldowns the service has always run
// with: long-lived contact and media lookups, uncacheable auth endpoints, and
// a short cooldown everywhere else to absorb accidental re-requests such as
// loading the same preview image from the post and board views.
func DefaultRules() []Rule {
	day := 24 * time.Hour
	return []Rule{
		{Pattern: "*/api/v2/mycontacts/user/*", TTL: 180 * day},
		{Pattern: "*/api/v2/comments/*/photo/*", TTL: 30 * day},
		{Pattern: "*/api/v2/photo/cm", TTL: DoNotCache},
		{Pattern: "*/api/v2/photo/pt", TTL: DoNotCache},
		{Pattern: "*/api/v2/photo/*", TTL: NeverExpire},
		{Pattern: "*/api/v2/video/*", TTL: NeverExpire},
		{Pattern: "*/api/v3/auth/identify", TTL: DoNotCache},
		{Pattern: "*/api/v2/me/info", TTL: DoNotCache},
		{Pattern: "*/api/v2/home/post/*", TTL: 5 * time.Second},
		{Pattern: "*/api/v2/comments/*/replies", TTL: 5 * time.Second},
		{Pattern: "*/api/v2/home/allfeed", TTL: 5 * time.Second},
		{Pattern: "*/api/v2/home/user/*/postsfeed", TTL: 5 * time.Second},
		{Pattern: "*", TTL: 5 * time.Second},
	}
}

// compile turns the glob into an anchored regexp.
func (r *Rule) compile() error {
	parts := strings.Split(r.Pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	re, err := regexp.Compile("^" + strings.Join(parts, ".*") + "$")
	if err != nil {
		return fmt.Errorf("bad cache pattern %q: %w", r.Pattern, err)
	}
	r.re = re
	return nil
}

// Rules is an ordered, compiled rule set.
type Rules []Rule

// CompileRules validates and compiles a rule list.
func CompileRules(rules []Rule) (Rules, error) {
	out := make(Rules, len(rules))
	for i := range rules {
		out[i] = rules[i]
		if err := out[i].compile(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// TTLFor returns the TTL of the first matching rule. URLs matching no rule
// are not cached.
func (rs Rules) TTLFor(url string) time.Duration {
	for i := range rs {
		if rs[i].re.MatchString(url) {
			return rs[i].TTL
		}
	}
	return DoNotCache
}

// ruleFile is the YAML shape of a rule override file: a list of
// pattern/ttl pairs, where ttl is "never", "off", a Go duration, or a
// day count like "180d".
type ruleFile struct {
	Rules []struct {
		Pattern string `yaml:"pattern"`
		TTL     string `yaml:"ttl"`
	} `yaml:"rules"`
}

// LoadRules reads a YAML rule file. The loaded rules replace the defaults
// entirely so the file can also loosen the fallback rule.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache rules: %w", err)
	}

	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse cache rules: %w", err)
	}

	rules := make([]Rule, 0, len(rf.Rules))
	for _, r := range rf.Rules {
		ttl, err := parseTTL(r.TTL)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Pattern, err)
		}
		rules = append(rules, Rule{Pattern: r.Pattern, TTL: ttl})
	}
	return CompileRules(rules)
}

func parseTTL(s string) (time.Duration, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "never", "forever":
		return NeverExpire, nil
	case "off", "none", "0":
		return DoNotCache, nil
	}
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, fmt.Errorf("bad day count %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("bad ttl %q", s)
	}
	return d, nil
}
