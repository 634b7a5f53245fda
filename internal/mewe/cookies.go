package mewe

import (
	"bufio"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// cookie is one jar entry. Unlike net/http cookiejar entries it keeps the
// expiry time around so the access-token lifetime can be inspected and the
// file can be written back in Netscape format.
type cookie struct {
	Domain    string // stored with leading dot stripped
	HostOnly  bool   // entry does not apply to subdomains
	Path      string
	Secure    bool
	Expires   time.Time // zero for session cookies
	Name      string
	Value     string
	Submitted bool // received via Set-Cookie rather than loaded from disk
}

// Jar is a Netscape cookies.txt backed cookie jar. It satisfies
// http.CookieJar, and unlike the stdlib jar it can persist itself back to the
// file it was loaded from. File access is serialized across processes with a
// sidecar flock so a browser exporter and meview don't clobber each other.
type Jar struct {
	mu      sync.Mutex
	path    string
	lock    *flock.Flock
	cookies map[string]*cookie // key: domain|path|name
}

// LoadJar reads a Netscape cookies.txt export.
func LoadJar(path string) (*Jar, error) {
	j := &Jar{
		path:    path,
		lock:    flock.New(path + ".lock"),
		cookies: make(map[string]*cookie),
	}

	if err := j.lock.Lock(); err != nil {
		return nil, fmt.Errorf("failed to lock cookie file: %w", err)
	}
	defer j.lock.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cookie file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		// curl exports prefix HttpOnly entries with a pseudo-comment; real
		// comments and blank lines are skipped.
		if strings.HasPrefix(line, "#HttpOnly_") {
			line = strings.TrimPrefix(line, "#HttpOnly_")
		} else if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) != 7 {
			return nil, fmt.Errorf("cookie file line %d: expected 7 tab-separated fields, got %d", lineNo, len(fields))
		}

		expires := time.Time{}
		if ts, err := strconv.ParseInt(fields[4], 10, 64); err == nil && ts > 0 {
			expires = time.Unix(ts, 0)
		}

		c := &cookie{
			Domain:   strings.TrimPrefix(fields[0], "."),
			HostOnly: !strings.EqualFold(fields[1], "TRUE"),
			Path:     fields[2],
			Secure:   strings.EqualFold(fields[3], "TRUE"),
			Expires:  expires,
			Name:     fields[5],
			Value:    fields[6],
		}
		j.cookies[c.key()] = c
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cookie file: %w", err)
	}

	return j, nil
}

func (c *cookie) key() string {
	return c.Domain + "|" + c.Path + "|" + c.Name
}

// matches reports whether the cookie applies to the given host and path.
func (c *cookie) matches(host, path string) bool {
	if c.HostOnly {
		if host != c.Domain {
			return false
		}
	} else if host != c.Domain && !strings.HasSuffix(host, "."+c.Domain) {
		return false
	}
	return path == c.Path || strings.HasPrefix(path, strings.TrimSuffix(c.Path, "/")+"/")
}

// Cookies implements http.CookieJar.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()

	host := u.Hostname()
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	now := time.Now()

	var out []*http.Cookie
	for _, c := range j.cookies {
		if c.Secure && u.Scheme != "https" {
			continue
		}
		if !c.Expires.IsZero() && now.After(c.Expires) {
			continue
		}
		if c.matches(host, path) {
			out = append(out, &http.Cookie{Name: c.Name, Value: c.Value})
		}
	}
	// Deterministic header order keeps request cache keys stable
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

// SetCookies implements http.CookieJar.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	host := u.Hostname()
	for _, hc := range cookies {
		domain := strings.TrimPrefix(hc.Domain, ".")
		hostOnly := hc.Domain == ""
		if domain == "" {
			domain = host
		}

		path := hc.Path
		if path == "" {
			path = "/"
		}

		expires := hc.Expires
		if hc.MaxAge > 0 {
			expires = time.Now().Add(time.Duration(hc.MaxAge) * time.Second)
		}

		c := &cookie{
			Domain:    domain,
			HostOnly:  hostOnly,
			Path:      path,
			Secure:    hc.Secure,
			Expires:   expires,
			Name:      hc.Name,
			Value:     hc.Value,
			Submitted: true,
		}

		if hc.MaxAge < 0 || (hc.Value == "" && hc.Expires.Before(time.Now()) && !hc.Expires.IsZero()) {
			delete(j.cookies, c.key())
			continue
		}
		j.cookies[c.key()] = c
	}
}

// Get returns the live cookie with the given name for the domain, or nil.
// Host-only and subdomain entries are both considered; the freshest wins.
func (j *Jar) Get(domain, name string) *http.Cookie {
	c := j.getEntry(domain, name)
	if c == nil {
		return nil
	}
	return &http.Cookie{Name: c.Name, Value: c.Value, Expires: c.Expires}
}

// Expiry returns the recorded expiry of a cookie; ok is false when the cookie
// is absent. A zero time means a session cookie with no recorded expiry.
func (j *Jar) Expiry(domain, name string) (time.Time, bool) {
	c := j.getEntry(domain, name)
	if c == nil {
		return time.Time{}, false
	}
	return c.Expires, true
}

func (j *Jar) getEntry(domain, name string) *cookie {
	j.mu.Lock()
	defer j.mu.Unlock()

	domain = strings.TrimPrefix(domain, ".")
	var best *cookie
	for _, c := range j.cookies {
		if c.Name != name {
			continue
		}
		if c.Domain != domain && !strings.HasSuffix(domain, "."+c.Domain) {
			continue
		}
		if best == nil || c.Expires.After(best.Expires) {
			best = c
		}
	}
	return best
}

// Save writes the jar back in Netscape format under the file lock. Session
// cookies are written with a zero expiry, mirroring ignore_discard exports.
func (j *Jar) Save() error {
	j.mu.Lock()
	entries := make([]*cookie, 0, len(j.cookies))
	for _, c := range j.cookies {
		entries = append(entries, c)
	}
	j.mu.Unlock()

	sort.Slice(entries, func(i, k int) bool { return entries[i].key() < entries[k].key() })

	var b strings.Builder
	b.WriteString("# Netscape HTTP Cookie File\n")
	for _, c := range entries {
		domain := c.Domain
		sub := "TRUE"
		if c.HostOnly {
			sub = "FALSE"
		} else {
			domain = "." + domain
		}
		secure := "FALSE"
		if c.Secure {
			secure = "TRUE"
		}
		var ts int64
		if !c.Expires.IsZero() {
			ts = c.Expires.Unix()
		}
		fmt.Fprintf(&b, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n", domain, sub, c.Path, secure, ts, c.Name, c.Value)
	}

	if err := j.lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock cookie file: %w", err)
	}
	defer j.lock.Unlock()

	if err := os.WriteFile(j.path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("failed to write cookie file: %w", err)
	}
	return nil
}
