package httpcache

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

// ignoredParams are credential and tracing values that must never leak into
// cache keys or stored responses. Media URLs carry some of these as query
// parameters, which would otherwise make every fetch a unique key.
var ignoredParams = []string{
	"access-token", "cdn-exp", "x-csrf-token", "trace-id",
}

var ignoredHeaders = []string{
	"Set-Cookie", "Access-Token", "X-Csrf-Token", "Trace-Id",
	"Via", "X-Amz-Cf-Pop", "X-Amz-Cf-Id",
}

// Transport is a caching http.RoundTripper. GET responses are stored in
// SQLite with per-endpoint TTLs; on upstream failure a stale entry is served
// rather than surfacing the error (stale-if-error).
type Transport struct {
	store *Store
	rules Rules
	inner http.RoundTripper
	now   func() time.Time
}

// New builds a Transport around inner (nil means http.DefaultTransport).
func New(store *Store, rules Rules, inner http.RoundTripper) *Transport {
	if inner == nil {
		inner = http.DefaultTransport
	}
	return &Transport{store: store, rules: rules, inner: inner, now: time.Now}
}

// cacheKey normalizes a URL for use as a cache key: credential query
// parameters are dropped and the remainder re-encoded in sorted order.
func cacheKey(u *url.URL) string {
	clean := *u
	q := clean.Query()
	for _, p := range ignoredParams {
		q.Del(p)
	}
	clean.RawQuery = q.Encode()
	clean.Fragment = ""
	return clean.String()
}

// matchURL is the string the TTL rules run against: no query, no fragment.
func matchURL(u *url.URL) string {
	clean := *u
	clean.RawQuery = ""
	clean.Fragment = ""
	return clean.String()
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return t.inner.RoundTrip(req)
	}

	ttl := t.rules.TTLFor(matchURL(req.URL))
	if ttl == DoNotCache {
		return t.inner.RoundTrip(req)
	}

	key := cacheKey(req.URL)
	entry, err := t.store.Get(key)
	if err != nil {
		log.Printf("[httpcache] lookup error for %s: %v", req.URL.Path, err)
		entry = nil
	}

	if entry != nil && t.fresh(entry, ttl) {
		return t.synthesize(req, entry, true), nil
	}

	resp, err := t.inner.RoundTrip(req)
	if err != nil || resp.StatusCode >= http.StatusInternalServerError {
		// Upstream is unhappy; a stale copy beats an error page
		if entry != nil {
			if resp != nil {
				resp.Body.Close()
			}
			return t.synthesize(req, entry, true), nil
		}
		return resp, err
	}

	if resp.StatusCode != http.StatusOK {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}

	stored := &Entry{
		StatusCode: resp.StatusCode,
		Header:     cachedHeader(resp.Header),
		Body:       body,
		StoredAt:   t.now(),
	}
	if err := t.store.Set(key, stored); err != nil {
		log.Printf("[httpcache] store error for %s: %v", req.URL.Path, err)
	}

	return t.synthesize(req, stored, false), nil
}

func (t *Transport) fresh(e *Entry, ttl time.Duration) bool {
	if ttl == NeverExpire {
		return true
	}
	return t.now().Sub(e.StoredAt) <= ttl
}

func (t *Transport) synthesize(req *http.Request, e *Entry, fromCache bool) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if fromCache {
		header.Set("X-From-Cache", "1")
	}
	return &http.Response{
		StatusCode:    e.StatusCode,
		Status:        fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode)),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

func cachedHeader(h http.Header) http.Header {
	out := h.Clone()
	for _, name := range ignoredHeaders {
		out.Del(name)
	}
	return out
}
