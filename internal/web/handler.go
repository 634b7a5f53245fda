package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"meview/internal/mewe"
	"meview/internal/render"
	"meview/internal/store"
)

//go:embed templates/*
var templatesFS embed.FS

// API is the slice of the MeWe client the handlers use.
type API interface {
	Feed(ctx context.Context, limit, pages int, before string) ([]mewe.Post, map[string]mewe.User, error)
	UserFeed(ctx context.Context, userID string, limit, pages int, before string) ([]mewe.Post, map[string]mewe.User, error)
	Post(ctx context.Context, postID string) (*mewe.Post, map[string]mewe.User, error)
	UserInfo(ctx context.Context, userID string) (*mewe.User, error)
	MediaFeed(ctx context.Context, limit, order int) (*mewe.MediaStream, error)
	Notifications(ctx context.Context, limit int) ([]mewe.Notification, error)
	MarkSeen(ctx context.Context, notifyID string) error
	MarkAllSeen(ctx context.Context) error
	Stream(ctx context.Context, path string) (*http.Response, error)
	Identity() *mewe.User
	SessionOK(ctx context.Context) bool
}

// Handler serves the feed pages, the notification page and the media proxy.
type Handler struct {
	api       API
	builder   *render.Builder
	users     *store.UserDirectory
	templates *template.Template
	feedLimit int
}

// NewHandler creates the web handler. feedLimit is the default page size for
// feed endpoints when the request carries no limit parameter.
func NewHandler(api API, builder *render.Builder, users *store.UserDirectory, feedLimit int) (*Handler, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &Handler{
		api:       api,
		builder:   builder,
		users:     users,
		templates: tmpl,
		feedLimit: feedLimit,
	}, nil
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/", h.handleIndex).Methods("GET")
	r.HandleFunc("/health", h.handleHealth).Methods("GET")
	r.HandleFunc("/myworld", h.handleMyWorld).Methods("GET", "HEAD")
	r.HandleFunc("/userfeed/{id}", h.handleUserFeed).Methods("GET", "HEAD")
	r.HandleFunc("/userfeed_rss/{id}", h.handleUserFeedRSS).Methods("GET", "HEAD")
	r.HandleFunc("/viewpost/{id}", h.handleViewPost).Methods("GET", "HEAD")
	r.HandleFunc("/mediastream", h.handleMediaStream).Methods("GET", "HEAD")
	r.HandleFunc("/notifications", h.handleNotifications).Methods("GET", "HEAD")
	r.HandleFunc("/notifications/seen", h.handleMarkSeen).Methods("POST")
	r.HandleFunc("/proxy", h.handleProxy).Methods("GET", "HEAD")
}

// headShort answers HEAD requests immediately; feed pages are expensive to
// build and feed readers poll with HEAD first.
func headShort(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodHead {
		return false
	}
	w.WriteHeader(http.StatusOK)
	return true
}

// feedParams reads the limit and pages query parameters.
func (h *Handler) feedParams(r *http.Request) (limit, pages int) {
	limit = h.feedLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	pages = 1
	if v, err := strconv.Atoi(r.URL.Query().Get("pages")); err == nil && v > 0 {
		pages = v
	}
	return limit, pages
}

// upstreamError maps client failures to response codes. Anything the
// upstream refused is a gateway problem, not ours.
func (h *Handler) upstreamError(w http.ResponseWriter, r *http.Request, err error) {
	log.Printf("[Web] %s %s failed: %v", r.Method, r.URL.Path, err)

	var statusErr *mewe.StatusError
	switch {
	case errors.As(err, &statusErr), errors.Is(err, mewe.ErrSessionDead):
		http.Error(w, "upstream request failed", http.StatusBadGateway)
	case errors.Is(err, mewe.ErrEmptyFeed):
		http.Error(w, "feed is empty", http.StatusNotFound)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) renderPage(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		log.Printf("[Web] failed to render %s: %v", name, err)
	}
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	identity := ""
	if u := h.api.Identity(); u != nil {
		identity = u.Name
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service":  "meview",
		"identity": identity,
		"endpoints": []string{
			"/myworld", "/userfeed/{id}", "/userfeed_rss/{id}",
			"/viewpost/{id}", "/mediastream", "/notifications", "/proxy", "/health",
		},
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !h.api.SessionOK(r.Context()) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Web] failed to encode response: %v", err)
	}
}
