package web

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
)

// handleProxy streams a MeWe media object through the authenticated session.
// Only origin-relative paths are accepted so the proxy cannot be pointed at
// arbitrary hosts.
func (h *Handler) handleProxy(w http.ResponseWriter, r *http.Request) {
	if headShort(w, r) {
		return
	}

	q := r.URL.Query()
	rawURL := q.Get("url")
	if rawURL == "" || !strings.HasPrefix(rawURL, "/") || strings.HasPrefix(rawURL, "//") {
		http.Error(w, "url must be an origin-relative path", http.StatusBadRequest)
		return
	}

	mime := q.Get("mime")
	if mime == "" {
		mime = "application/octet-stream"
	}
	name := q.Get("name")

	resp, err := h.api.Stream(r.Context(), rawURL)
	if err != nil {
		h.upstreamError(w, r, err)
		return
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", mime)
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		w.Header().Set("Content-Length", cl)
	}
	if name != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", name))
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		// Client went away mid-stream, nothing to do but note it
		log.Printf("[Web] proxy stream aborted for %s: %v", rawURL, err)
	}
}
