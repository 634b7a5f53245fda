package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"meview/internal/render"
)

// feedPage is the data every feed-shaped template receives.
type feedPage struct {
	Title    string
	Info     string
	Link     string
	Avatar   string
	Build    string
	Posts    []render.PostView
	Activity []render.ActivityView
}

func (h *Handler) handleMyWorld(w http.ResponseWriter, r *http.Request) {
	if headShort(w, r) {
		return
	}
	ctx := r.Context()
	limit, pages := h.feedParams(r)

	posts, users, err := h.api.Feed(ctx, limit, pages, "")
	if err != nil {
		h.upstreamError(w, r, err)
		return
	}
	h.users.PutAll(users)
	h.users.Fill(users)

	views, err := h.builder.Posts(ctx, posts, users, false)
	if err != nil {
		h.upstreamError(w, r, err)
		return
	}

	page := feedPage{
		Link:     "https://mewe.com/myworld",
		Build:    time.Now().Format(render.RSSDate),
		Posts:    views,
		Activity: h.builder.Activity(posts, users),
	}
	if identity := h.api.Identity(); identity != nil {
		page.Title = fmt.Sprintf("%s %s's world feed", identity.FirstName, identity.LastName)
		page.Info = page.Title
		page.Avatar = h.builder.AvatarURL(identity)
	}

	h.renderPage(w, "history.html", page)
}

// userFeedPage fetches and assembles everything the user feed and its RSS
// variant share.
func (h *Handler) userFeedPage(r *http.Request) (*feedPage, error) {
	ctx := r.Context()
	userID := mux.Vars(r)["id"]
	limit, pages := h.feedParams(r)

	posts, users, err := h.api.UserFeed(ctx, userID, limit, pages, "")
	if err != nil {
		return nil, err
	}
	h.users.PutAll(users)
	h.users.Fill(users)

	user, ok := users[userID]
	if !ok {
		info, err := h.api.UserInfo(ctx, userID)
		if err != nil {
			return nil, err
		}
		user = *info
		users[userID] = user
	}

	views, err := h.builder.Posts(ctx, posts, users, true)
	if err != nil {
		return nil, err
	}

	return &feedPage{
		Title:  user.Name,
		Link:   "https://mewe.com/i/" + user.ContactInviteID,
		Avatar: h.builder.AvatarURL(&user),
		Build:  time.Now().Format(render.RSSDate),
		Posts:  views,
	}, nil
}

func (h *Handler) handleUserFeed(w http.ResponseWriter, r *http.Request) {
	if headShort(w, r) {
		return
	}
	page, err := h.userFeedPage(r)
	if err != nil {
		h.upstreamError(w, r, err)
		return
	}
	h.renderPage(w, "history.html", *page)
}

func (h *Handler) handleUserFeedRSS(w http.ResponseWriter, r *http.Request) {
	if headShort(w, r) {
		return
	}
	page, err := h.userFeedPage(r)
	if err != nil {
		h.upstreamError(w, r, err)
		return
	}
	h.writeRSS(w, page)
}

func (h *Handler) handleViewPost(w http.ResponseWriter, r *http.Request) {
	if headShort(w, r) {
		return
	}
	ctx := r.Context()
	postID := mux.Vars(r)["id"]

	post, users, err := h.api.Post(ctx, postID)
	if err != nil {
		h.upstreamError(w, r, err)
		return
	}
	h.users.PutAll(users)
	h.users.Fill(users)

	view, err := h.builder.Post(ctx, post, users, render.PostOptions{
		LoadAllComments: true,
		RetrieveMedias:  true,
	})
	if err != nil {
		h.upstreamError(w, r, err)
		return
	}

	h.renderPage(w, "post.html", struct{ Post *render.PostView }{view})
}

func (h *Handler) handleMediaStream(w http.ResponseWriter, r *http.Request) {
	if headShort(w, r) {
		return
	}
	limit, _ := h.feedParams(r)

	stream, err := h.api.MediaFeed(r.Context(), limit, 1)
	if err != nil {
		h.upstreamError(w, r, err)
		return
	}

	h.renderPage(w, "media.html", struct {
		Tiles []render.MediaTile
	}{h.builder.MediaTiles(stream)})
}

func (h *Handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if headShort(w, r) {
		return
	}

	items, err := h.api.Notifications(r.Context(), 50)
	if err != nil {
		h.upstreamError(w, r, err)
		return
	}

	h.renderPage(w, "notifications.html", struct {
		Notifications []render.NotificationView
	}{h.builder.Notifications(items)})
}

func (h *Handler) handleMarkSeen(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	var err error
	if r.PostFormValue("all") == "true" {
		err = h.api.MarkAllSeen(r.Context())
	} else if id := r.PostFormValue("notification_id"); id != "" {
		err = h.api.MarkSeen(r.Context(), id)
	} else {
		http.Error(w, "notification_id or all=true required", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.upstreamError(w, r, err)
		return
	}

	http.Redirect(w, r, "/notifications", http.StatusSeeOther)
}
