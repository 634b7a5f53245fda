package mewe

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// DefaultBase is the production API root.
const DefaultBase = "https://mewe.com/api"

// Options configures a Client.
type Options struct {
	// Base overrides the API root, used by tests. Defaults to DefaultBase.
	Base string
	// CookieFile is the Netscape cookies.txt export to authenticate with.
	CookieFile string
	// UserAgent is sent on every request; should match the exporting browser.
	UserAgent string
	// Timeout bounds each upstream request.
	Timeout time.Duration
	// RefreshEarly refreshes the access token this long before it expires.
	RefreshEarly time.Duration
	// Transport optionally wraps the default transport, e.g. with a response
	// cache.
	Transport http.RoundTripper
}

// Client holds the authenticated web session against the MeWe API.
//
// The session lives in the cookie jar: identify rotates the access-token
// cookie, and the csrf-token cookie has to be echoed back in the x-csrf-token
// header on every call. Refreshes are serialized by a single mutex so
// concurrent handlers cannot race the identify call.
type Client struct {
	base   string
	domain string // cookie domain, derived from base
	http   *http.Client
	stream *http.Client // no whole-body timeout, for media relays
	jar    *Jar
	ua     string

	refreshEarly time.Duration
	refreshMu    sync.Mutex

	mu       sync.RWMutex
	csrf     string
	identity *User
}

// NewClient loads the cookie export, validates the session with an identify
// call, extracts the CSRF token and fetches the current user's identity.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if opts.Base == "" {
		opts.Base = DefaultBase
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.RefreshEarly <= 0 {
		opts.RefreshEarly = time.Minute
	}

	baseURL, err := url.Parse(opts.Base)
	if err != nil {
		return nil, fmt.Errorf("bad base URL: %w", err)
	}

	jar, err := LoadJar(opts.CookieFile)
	if err != nil {
		return nil, err
	}

	c := &Client{
		base:   opts.Base,
		domain: baseURL.Hostname(),
		http: &http.Client{
			Timeout:   opts.Timeout,
			Jar:       jar,
			Transport: opts.Transport,
		},
		// http.Client.Timeout keeps counting while the body is read, which
		// would truncate large media transfers mid-stream. The stream client
		// bounds time-to-first-byte instead and leaves the body read to the
		// request context.
		stream: &http.Client{
			Jar:       jar,
			Transport: streamTransport(opts.Transport, opts.Timeout),
		},
		jar:          jar,
		ua:           opts.UserAgent,
		refreshEarly: opts.RefreshEarly,
	}

	if err := c.identify(ctx); err != nil {
		return nil, err
	}
	if err := c.extractCSRF(); err != nil {
		return nil, err
	}

	identity, err := c.Whoami(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch identity: %w", err)
	}
	c.mu.Lock()
	c.identity = identity
	c.mu.Unlock()

	return c, nil
}

// streamTransport bounds connection setup and response headers by timeout,
// leaving the body read unbounded. When a custom transport is supplied (the
// response cache) it is used as-is; its inner transport carries its own
// dial timeouts.
func streamTransport(custom http.RoundTripper, timeout time.Duration) http.RoundTripper {
	if custom != nil {
		return custom
	}
	t, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return http.DefaultTransport
	}
	t = t.Clone()
	t.ResponseHeaderTimeout = timeout
	return t
}

// Identity returns the user info cached at startup.
func (c *Client) Identity() *User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

// identify runs the auth identify call that rotates the access token.
func (c *Client) identify(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/v3/auth/identify", nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("identify request failed: %w", err)
	}
	defer resp.Body.Close()

	var ident identifyResponse
	if err := decodeBody(resp, &ident); err != nil {
		return fmt.Errorf("identify returned unreadable response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !ident.Authenticated {
		return ErrNotAuthenticated
	}
	return nil
}

// extractCSRF pulls the csrf-token cookie into the request header value.
// When the cookie is missing a previously extracted token is kept; having
// neither is fatal.
func (c *Client) extractCSRF() error {
	ck := c.jar.Get(c.domain, csrfTokenName)

	c.mu.Lock()
	defer c.mu.Unlock()
	if ck == nil || ck.Value == "" {
		if c.csrf == "" {
			return ErrNoCSRFToken
		}
		return nil
	}
	c.csrf = ck.Value
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.ua)
	req.Header.Set("Accept", "application/json")

	c.mu.RLock()
	if c.csrf != "" {
		req.Header.Set("x-csrf-token", c.csrf)
	}
	c.mu.RUnlock()
}

// RefreshSession checks the access token and re-identifies when it is about
// to lapse. This is cheaper than reloading the whole session and runs before
// every API call, so it holds a single mutex to serialize concurrent callers.
func (c *Client) RefreshSession(ctx context.Context) error {
	return c.refreshSession(ctx, false)
}

func (c *Client) refreshSession(ctx context.Context, force bool) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if !force && !c.tokenExpired(time.Now()) {
		// Token rotation may have happened on another goroutine's watch;
		// persist whatever the jar holds now.
		return c.jar.Save()
	}

	if err := c.identify(ctx); err != nil {
		return err
	}
	if err := c.extractCSRF(); err != nil {
		return err
	}
	return c.jar.Save()
}

// SessionOK reports whether the current session is still usable, e.g. no
// logout occurred due to API abuse or refresh token expiry.
func (c *Client) SessionOK(ctx context.Context) bool {
	if err := c.identify(ctx); err != nil {
		log.Printf("[mewe] Warning, unusable session: %v", err)
		return false
	}
	return true
}

// ReloadSession re-reads the cookie file and revalidates the session, for use
// after the user exports a fresh set of cookies.
func (c *Client) ReloadSession(ctx context.Context) error {
	jar, err := LoadJar(c.jar.path)
	if err != nil {
		return err
	}

	c.refreshMu.Lock()
	c.jar = jar
	c.http.Jar = jar
	c.stream.Jar = jar
	c.refreshMu.Unlock()

	if err := c.identify(ctx); err != nil {
		return err
	}
	if err := c.extractCSRF(); err != nil {
		return err
	}

	identity, err := c.Whoami(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.identity = identity
	c.mu.Unlock()
	return nil
}

// Whoami invokes the me/info method, returning info on the current user.
// Useful to check API usability.
func (c *Client) Whoami(ctx context.Context) (*User, error) {
	var user User
	if err := c.invokeGet(ctx, c.base+"/v2/me/info", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UserInfo fetches information about a user by their ID, contacts only.
func (c *Client) UserInfo(ctx context.Context, userID string) (*User, error) {
	var user User
	if err := c.invokeGet(ctx, c.base+"/v2/mycontacts/user/"+userID, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
