package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"meview/internal/mewe"
	"meview/internal/render"
	"meview/internal/store"
)

type fakeAPI struct {
	posts         []mewe.Post
	users         map[string]mewe.User
	post          *mewe.Post
	mediaStream   *mewe.MediaStream
	userInfo      *mewe.User
	notifications []mewe.Notification
	identity      *mewe.User
	healthy       bool
	err           error

	feedCalls   int
	streamPath  string
	streamResp  *http.Response
	seenIDs     []string
	seenAll     bool
	markSeenErr error
}

func (f *fakeAPI) Feed(ctx context.Context, limit, pages int, before string) ([]mewe.Post, map[string]mewe.User, error) {
	f.feedCalls++
	return f.posts, f.usersCopy(), f.err
}

func (f *fakeAPI) UserFeed(ctx context.Context, userID string, limit, pages int, before string) ([]mewe.Post, map[string]mewe.User, error) {
	f.feedCalls++
	return f.posts, f.usersCopy(), f.err
}

func (f *fakeAPI) Post(ctx context.Context, postID string) (*mewe.Post, map[string]mewe.User, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	p := *f.post
	return &p, f.usersCopy(), nil
}

func (f *fakeAPI) UserInfo(ctx context.Context, userID string) (*mewe.User, error) {
	if f.userInfo == nil {
		return nil, fmt.Errorf("no such user %s", userID)
	}
	return f.userInfo, nil
}

func (f *fakeAPI) MediaFeed(ctx context.Context, limit, order int) (*mewe.MediaStream, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.mediaStream == nil {
		return &mewe.MediaStream{}, nil
	}
	return f.mediaStream, nil
}

func (f *fakeAPI) Notifications(ctx context.Context, limit int) ([]mewe.Notification, error) {
	return f.notifications, f.err
}

func (f *fakeAPI) MarkSeen(ctx context.Context, notifyID string) error {
	f.seenIDs = append(f.seenIDs, notifyID)
	return f.markSeenErr
}

func (f *fakeAPI) MarkAllSeen(ctx context.Context) error {
	f.seenAll = true
	return f.markSeenErr
}

func (f *fakeAPI) Stream(ctx context.Context, path string) (*http.Response, error) {
	f.streamPath = path
	if f.streamResp == nil {
		return nil, &mewe.StatusError{StatusCode: 404, Endpoint: path}
	}
	return f.streamResp, nil
}

func (f *fakeAPI) Identity() *mewe.User { return f.identity }

func (f *fakeAPI) SessionOK(ctx context.Context) bool { return f.healthy }

func (f *fakeAPI) usersCopy() map[string]mewe.User {
	out := make(map[string]mewe.User, len(f.users))
	for k, v := range f.users {
		out[k] = v
	}
	return out
}

type feedStub struct {
	comments *mewe.CommentFeed
}

func (s *feedStub) PostMedias(ctx context.Context, post *mewe.Post, limit int) ([]mewe.Media, map[string]mewe.User, error) {
	return post.Medias, nil, nil
}

func (s *feedStub) PostComments(ctx context.Context, postID string, limit int) (*mewe.CommentFeed, error) {
	if s.comments == nil {
		return &mewe.CommentFeed{}, nil
	}
	return s.comments, nil
}

func (s *feedStub) CommentReplies(ctx context.Context, commentID string, limit int) ([]mewe.Comment, error) {
	return nil, nil
}

func newTestRouter(t *testing.T, api *fakeAPI, feeds render.FeedAPI) *mux.Router {
	t.Helper()
	if feeds == nil {
		feeds = &feedStub{}
	}
	emojis := render.EmojiDict{"smile": "https://cdn.test/smile.png"}
	builder := render.NewBuilder(feeds, render.NewMarkdown(emojis), emojis, "http://front.test", "400x400", "2000x2000")

	h, err := NewHandler(api, builder, store.NewUserDirectory(time.Hour), 30)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func get(t *testing.T, router *mux.Router, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func defaultUsers() map[string]mewe.User {
	return map[string]mewe.User{
		"u1": {ID: "u1", Name: "Alice", FirstName: "Alice", LastName: "Smith", ContactInviteID: "alice42"},
	}
}

func defaultPosts() []mewe.Post {
	return []mewe.Post{
		{PostItemID: "p1", UserID: "u1", Text: "hello feed", CreatedAt: 1600000000},
	}
}

func TestIndex(t *testing.T) {
	api := &fakeAPI{identity: &mewe.User{ID: "me", Name: "Alice Smith"}}
	rec := get(t, newTestRouter(t, api, nil), "/")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"meview"`) || !strings.Contains(body, "Alice Smith") {
		t.Errorf("body = %s", body)
	}
}

func TestHealth(t *testing.T) {
	api := &fakeAPI{healthy: true}
	router := newTestRouter(t, api, nil)

	if rec := get(t, router, "/health"); rec.Code != http.StatusOK {
		t.Errorf("healthy status = %d", rec.Code)
	}

	api.healthy = false
	if rec := get(t, router, "/health"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("degraded status = %d", rec.Code)
	}
}

func TestMyWorld(t *testing.T) {
	api := &fakeAPI{
		posts:    defaultPosts(),
		users:    defaultUsers(),
		identity: &mewe.User{ID: "me", FirstName: "Alice", LastName: "Smith"},
	}
	rec := get(t, newTestRouter(t, api, nil), "/myworld")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, "hello feed") {
		t.Errorf("post text missing: %s", body)
	}
	if !strings.Contains(body, "Alice Smith&#39;s world feed") {
		t.Errorf("title missing: %s", body)
	}
	if !strings.Contains(body, "Recent activity") {
		t.Errorf("activity sidebar missing: %s", body)
	}
}

func TestHeadShortCircuits(t *testing.T) {
	api := &fakeAPI{}
	router := newTestRouter(t, api, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/myworld", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("HEAD status = %d", rec.Code)
	}
	if api.feedCalls != 0 {
		t.Errorf("HEAD triggered %d feed fetches", api.feedCalls)
	}
}

func TestUserFeedRSS(t *testing.T) {
	api := &fakeAPI{posts: defaultPosts(), users: defaultUsers()}
	rec := get(t, newTestRouter(t, api, nil), "/userfeed_rss/u1")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "application/rss+xml") {
		t.Errorf("Content-Type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `<rss version="2.0">`) {
		t.Errorf("missing rss root: %s", body)
	}
	if !strings.Contains(body, "<title>hello feed</title>") {
		t.Errorf("item title missing: %s", body)
	}
	if !strings.Contains(body, "Alice (alice42)") {
		t.Errorf("author missing: %s", body)
	}
	if !strings.Contains(body, "<![CDATA[") {
		t.Errorf("description not CDATA-wrapped: %s", body)
	}
}

func TestUserFeedUnknownUserFallsBackToUserInfo(t *testing.T) {
	api := &fakeAPI{
		posts:    defaultPosts(),
		users:    defaultUsers(),
		userInfo: &mewe.User{ID: "u9", Name: "Mystery", ContactInviteID: "m9"},
	}
	rec := get(t, newTestRouter(t, api, nil), "/userfeed/u9")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Mystery") {
		t.Errorf("user info name missing: %s", rec.Body.String())
	}
}

func TestViewPost(t *testing.T) {
	post := &mewe.Post{
		PostItemID: "p1",
		UserID:     "u1",
		Text:       "the post",
		CreatedAt:  1600000000,
		Comments:   &mewe.CommentBlock{Total: 1, Feed: []mewe.Comment{{ID: "c1", UserID: "u1", CreatedAt: 1}}},
	}
	feeds := &feedStub{comments: &mewe.CommentFeed{
		Total: 1,
		Feed:  []mewe.Comment{{ID: "c1", UserID: "u1", Text: "first comment", CreatedAt: 1}},
	}}
	api := &fakeAPI{post: post, users: defaultUsers()}

	rec := get(t, newTestRouter(t, api, feeds), "/viewpost/p1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, "the post") || !strings.Contains(body, "first comment") {
		t.Errorf("body = %s", body)
	}
}

func TestUpstreamErrorIsBadGateway(t *testing.T) {
	api := &fakeAPI{err: &mewe.StatusError{StatusCode: 500, Endpoint: "home/allfeed"}}
	rec := get(t, newTestRouter(t, api, nil), "/myworld")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestMediaStreamPage(t *testing.T) {
	item := mewe.MediaItem{MediaID: "5f3a0000aa", PostItemID: "p7"}
	item.Photo = mewe.Photo{ID: "mph", Mime: "image/jpeg"}
	item.Photo.Links.Img.Href = "/photo/mph/{imageSize}/img"

	api := &fakeAPI{mediaStream: &mewe.MediaStream{Feed: []mewe.MediaItem{item}}}
	rec := get(t, newTestRouter(t, api, nil), "/mediastream")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, "/viewpost/p7") {
		t.Errorf("post link missing: %s", body)
	}
	if !strings.Contains(body, "/proxy?url=") {
		t.Errorf("tile image not proxied: %s", body)
	}
}

func TestNotificationsPage(t *testing.T) {
	api := &fakeAPI{notifications: []mewe.Notification{{
		ID:               "n1",
		NotificationType: "follow_request_accepted",
		ActingUsers:      []mewe.User{{ID: "u1", Name: "Bob"}},
	}}}
	rec := get(t, newTestRouter(t, api, nil), "/notifications")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Bob accepted your follow request") {
		t.Errorf("headline missing: %s", rec.Body.String())
	}
}

func TestMarkSeen(t *testing.T) {
	api := &fakeAPI{}
	router := newTestRouter(t, api, nil)

	form := url.Values{"notification_id": {"n42"}}
	req := httptest.NewRequest(http.MethodPost, "/notifications/seen", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Errorf("status = %d, want 303", rec.Code)
	}
	if len(api.seenIDs) != 1 || api.seenIDs[0] != "n42" {
		t.Errorf("seenIDs = %v", api.seenIDs)
	}

	form = url.Values{"all": {"true"}}
	req = httptest.NewRequest(http.MethodPost, "/notifications/seen", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if !api.seenAll {
		t.Error("MarkAllSeen not called")
	}

	// Neither parameter is a client error
	req = httptest.NewRequest(http.MethodPost, "/notifications/seen", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty form status = %d, want 400", rec.Code)
	}
}

func TestProxy(t *testing.T) {
	api := &fakeAPI{streamResp: &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Length": []string{"9"}},
		Body:       io.NopCloser(strings.NewReader("image bin")),
	}}
	router := newTestRouter(t, api, nil)

	target := "/proxy?url=" + url.QueryEscape("/api/v2/photo/ph1/400x400/img") + "&mime=image/jpeg&name=cat.jpg"
	rec := get(t, router, target)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if api.streamPath != "/api/v2/photo/ph1/400x400/img" {
		t.Errorf("streamed path = %q", api.streamPath)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `inline; filename="cat.jpg"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if rec.Body.String() != "image bin" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestProxyRejectsAbsoluteURLs(t *testing.T) {
	router := newTestRouter(t, &fakeAPI{}, nil)

	for _, bad := range []string{"https://evil.test/x", "//evil.test/x", ""} {
		rec := get(t, router, "/proxy?url="+url.QueryEscape(bad))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("url %q status = %d, want 400", bad, rec.Code)
		}
	}
}
