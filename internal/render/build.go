package render

import (
	"context"
	"fmt"
	"math"
	"mime"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"meview/internal/mewe"
)

// FeedAPI is the slice of the API client the builder needs for enrichment
// fetches: full media lists and comment trees.
type FeedAPI interface {
	PostMedias(ctx context.Context, post *mewe.Post, limit int) ([]mewe.Media, map[string]mewe.User, error)
	PostComments(ctx context.Context, postID string, limit int) (*mewe.CommentFeed, error)
	CommentReplies(ctx context.Context, commentID string, limit int) ([]mewe.Comment, error)
}

// replyFetchConcurrency caps parallel reply fetches when loading a post's
// full comment tree.
const replyFetchConcurrency = 4

// Post builds the view for a single post, fetching extra medias and the full
// comment tree when the options ask for them. The users map is extended with
// any participants the extra fetches return.
func (b *Builder) Post(ctx context.Context, post *mewe.Post, users map[string]mewe.User, opts PostOptions) (*PostView, error) {
	if opts.RetrieveMedias && post.MediasCount > inlineMediaLimit {
		medias, extra, err := b.api.PostMedias(ctx, post, post.MediasCount)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch medias for post %s: %w", post.PostItemID, err)
		}
		post.Medias = medias
		for id, u := range extra {
			users[id] = u
		}
	}

	if opts.LoadAllComments && post.Comments != nil {
		cf, err := b.api.PostComments(ctx, post.PostItemID, commentFetchSize)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch comments for post %s: %w", post.PostItemID, err)
		}

		feed := cf.Feed
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(replyFetchConcurrency)
		for i := range feed {
			if feed[i].RepliesCount == 0 {
				continue
			}
			i := i
			g.Go(func() error {
				replies, err := b.api.CommentReplies(gctx, feed[i].ID, commentFetchSize)
				if err != nil {
					return fmt.Errorf("failed to fetch replies for comment %s: %w", feed[i].ID, err)
				}
				feed[i].Replies = replies
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		post.Comments.Feed = feed
	}

	pv := b.postView(post, users)
	return &pv, nil
}

// Posts builds views for a whole feed page.
func (b *Builder) Posts(ctx context.Context, posts []mewe.Post, users map[string]mewe.User, retrieveMedias bool) ([]PostView, error) {
	views := make([]PostView, 0, len(posts))
	for i := range posts {
		pv, err := b.Post(ctx, &posts[i], users, PostOptions{RetrieveMedias: retrieveMedias})
		if err != nil {
			return nil, err
		}
		views = append(views, *pv)
	}
	return views, nil
}

func (b *Builder) postView(post *mewe.Post, users map[string]mewe.User) PostView {
	date := time.Unix(post.CreatedAt, 0)

	pv := PostView{
		Content:    b.Message(post, users),
		Author:     userName(post.UserID, users),
		AuthorID:   post.UserID,
		ID:         post.PostItemID,
		Date:       date.Format(DisplayDate),
		Subscribed: post.Follows,
		Categories: append([]string{}, post.HashTags...),
		AuthorRSS:  b.ResolveUser(post.UserID, users),
		DateRSS:    date.Format(RSSDate),
		Link:       b.PostURL(post.PostItemID),
	}

	if post.Comments != nil {
		pv.Comments = b.Comments(post.Comments.Feed, users)
		replies := 0
		for i := range post.Comments.Feed {
			replies += post.Comments.Feed[i].RepliesCount
		}
		pv.MissingCount = post.Comments.Total - len(post.Comments.Feed) + replies
	}
	if post.Emojis != nil {
		pv.Emojis = b.emojiViews(post.Emojis)
	}
	if post.Album != "" {
		pv.Categories = append([]string{post.Album}, pv.Categories...)
	}
	pv.Title = postTitle(post.Text, date)

	return pv
}

// postTitle derives an RSS item title: a 60-rune prefix of the text, or the
// post date when there is no text at all.
func postTitle(text string, date time.Time) string {
	if utf8.RuneCountInString(text) > 60 {
		return string([]rune(text)[:60]) + "…"
	}
	if text == "" {
		return date.Format(DisplayDate)
	}
	return text
}

// Message builds the rendered body of a post, reposts included.
func (b *Builder) Message(post *mewe.Post, users map[string]mewe.User) MessageView {
	msg := MessageView{
		Text:  b.md.Render(post.Text),
		Album: post.Album,
	}

	if post.Link != nil {
		msg.Link = b.linkView(post.Link)
	}
	if post.Poll != nil {
		msg.Poll = b.pollView(post.Poll)
	}

	for i := range post.Medias {
		m := &post.Medias[i]
		switch {
		case m.Video != nil && m.Photo != nil:
			msg.Videos = append(msg.Videos, b.videoView(m))
		case m.Photo != nil:
			msg.Images = append(msg.Images, b.imageView(m.Photo))
		}
	}

	for i := range post.Files {
		msg.Files = append(msg.Files, b.fileView(&post.Files[i]))
	}

	if post.RefPost != nil {
		ref := post.RefPost
		msg.Repost = &RepostView{
			MessageView: b.Message(ref, users),
			Author:      b.ResolveUser(ref.UserID, users),
			AuthorID:    ref.UserID,
			ID:          ref.PostItemID,
			Date:        time.Unix(ref.CreatedAt, 0).Format(DisplayDate),
		}
	}
	// A deleted reference is flagged outside the refPost object
	if post.RefRemoved {
		msg.Repost = &RepostView{Deleted: true}
	}

	return msg
}

// Comments builds the comment tree. Upstream mostly returns comments newest
// first but not reliably, so they are re-sorted by timestamp.
func (b *Builder) Comments(comments []mewe.Comment, users map[string]mewe.User) []CommentView {
	views := make([]CommentView, 0, len(comments))

	for i := range comments {
		c := &comments[i]
		cv := CommentView{
			Text:       b.md.Render(c.Text),
			ID:         c.ID,
			UserID:     c.UserID,
			Date:       time.Unix(c.CreatedAt, 0).Format(DisplayDate),
			Timestamp:  c.CreatedAt,
			ReplyCount: c.RepliesCount,
			Subscribed: c.Follows,
		}

		if c.Owner != nil {
			cv.User = c.Owner.Name
		} else {
			cv.User = userName(c.UserID, users)
		}

		if c.Photo != nil {
			cv.Images = append(cv.Images, b.commentPhoto(c.Photo))
		}
		if c.Document != nil {
			cv.Images = append(cv.Images, b.commentDocument(c.Document))
		}
		if c.Link != nil {
			cv.Link = b.linkView(c.Link)
		}
		if c.Emojis != nil {
			cv.Emojis = b.emojiViews(c.Emojis)
		}
		if len(c.Replies) > 0 {
			cv.Replies = b.Comments(c.Replies, users)
		}

		views = append(views, cv)
	}

	sort.SliceStable(views, func(i, j int) bool { return views[i].Timestamp < views[j].Timestamp })
	return views
}

// MediaTiles builds the media grid. The tile date is recovered from the
// Mongo object id: its first four octets are a big-endian unix timestamp.
func (b *Builder) MediaTiles(stream *mewe.MediaStream) []MediaTile {
	tiles := make([]MediaTile, 0, len(stream.Feed))
	for i := range stream.Feed {
		item := &stream.Feed[i]
		tiles = append(tiles, MediaTile{
			URL:     b.PhotoURL(&item.Photo, true),
			Date:    mongoDate(item.MediaID),
			PostURL: b.PostURL(item.PostItemID),
		})
	}
	return tiles
}

// Activity reduces a home feed to one row per author, keeping first-seen
// (most recent) post order.
func (b *Builder) Activity(posts []mewe.Post, users map[string]mewe.User) []ActivityView {
	seen := map[string]bool{}
	var rows []ActivityView

	for i := range posts {
		p := &posts[i]
		if seen[p.UserID] {
			continue
		}
		seen[p.UserID] = true
		rows = append(rows, ActivityView{
			Name:     userName(p.UserID, users),
			UserID:   p.UserID,
			Date:     time.Unix(p.CreatedAt, 0).Format(DisplayDate),
			LastPost: p.PostItemID,
		})
	}
	return rows
}

// ResolveUser formats a user as "Name (inviteID)", falling back to the bare
// id for users missing from the page's user list.
func (b *Builder) ResolveUser(userID string, users map[string]mewe.User) string {
	u, ok := users[userID]
	if !ok {
		return userID
	}
	return fmt.Sprintf("%s (%s)", u.Name, u.ContactInviteID)
}

func userName(userID string, users map[string]mewe.User) string {
	if u, ok := users[userID]; ok {
		return u.Name
	}
	return userID
}

// PhotoURL expands a photo href template and routes it through the proxy.
// Thumbnails are requested static so animated GIFs do not autoplay in grids.
func (b *Builder) PhotoURL(p *mewe.Photo, thumb bool) string {
	var raw string
	if thumb {
		raw = expandImage(p.Links.Img.Href, b.thumbSize, 1)
	} else {
		raw = expandImage(p.Links.Img.Href, b.imageSize, 0)
	}
	return b.proxyURL(raw, p.Mime, p.ID)
}

// AvatarURL is the proxied full-size profile picture of a user.
func (b *Builder) AvatarURL(u *mewe.User) string {
	raw := expandImage(u.Links.Avatar.Href, "1280x1280", 0)
	return b.proxyURL(raw, "image/jpeg", u.ID)
}

func (b *Builder) imageView(p *mewe.Photo) ImageView {
	return ImageView{
		URL:           b.PhotoURL(p, false),
		Thumb:         b.PhotoURL(p, true),
		ThumbVertical: p.Size.Width < p.Size.Height,
		ID:            p.ID,
		Name:          imageName(p),
		Mime:          p.Mime,
		Size:          fmt.Sprintf("%dx%d", p.Size.Width, p.Size.Height),
	}
}

// commentPhoto differs from post photos: the name field is meaningful and
// animated images get a static thumbnail variant.
func (b *Builder) commentPhoto(p *mewe.Photo) ImageView {
	return ImageView{
		URL:           b.proxyURL(expandImage(p.Links.Img.Href, b.imageSize, 0), p.Mime, p.Name),
		Thumb:         b.proxyURL(expandImage(p.Links.Img.Href, b.thumbSize, 1), p.Mime, p.Name),
		ThumbVertical: p.Size.Width < p.Size.Height,
		ID:            p.ID,
		Name:          p.Name,
		Mime:          p.Mime,
		Size:          fmt.Sprintf("%dx%d", p.Size.Width, p.Size.Height),
	}
}

// commentDocument renders a comment file attachment as an image row with the
// CDN's file-type icon for a thumbnail.
func (b *Builder) commentDocument(d *mewe.CommentDocument) ImageView {
	mt := mime.TypeByExtension("." + d.Type)
	if mt == "" {
		mt = "application/octet-stream"
	}
	return ImageView{
		URL:   b.proxyURL(d.Links.URL.Href, mt, d.Name),
		Thumb: "https://cdn.mewe.com/assets/icons/file-type/" + d.Type + ".png",
		ID:    d.ID,
		Name:  d.Name,
		Mime:  mt,
		Size:  fmt.Sprintf("%d bytes", d.Size),
	}
}

func (b *Builder) videoView(m *mewe.Media) VideoView {
	p, v := m.Photo, m.Video
	raw := strings.ReplaceAll(v.Links.LinkTemplate.Href, "{resolution}", "original")
	return VideoView{
		URL:           b.proxyURL(raw, "video/mp4", v.Name),
		Thumb:         b.PhotoURL(p, true),
		ThumbVertical: p.Size.Width < p.Size.Height,
		Name:          v.Name,
		Width:         min(p.Size.Width, maxVideoWidth),
		Size:          fmt.Sprintf("%dx%d", p.Size.Width, p.Size.Height),
		Duration:      formatDuration(v.Duration),
	}
}

func (b *Builder) fileView(d *mewe.Document) FileView {
	return FileView{
		URL:  b.proxyURL(d.Links.URL.Href, d.Mime, d.FileName),
		Name: d.FileName,
		Mime: d.Mime,
		Size: d.Length,
	}
}

func (b *Builder) linkView(l *mewe.Link) *LinkView {
	title := l.Title
	if title == "" {
		title = "No Title"
	}
	return &LinkView{
		Title: title,
		URL:   l.Links.URL.Href,
		Host:  l.Links.URLHost.Href,
		Text:  l.Description,
		Thumb: l.Links.Thumbnail.Href,
	}
}

func (b *Builder) pollView(p *mewe.Poll) *PollView {
	total := 0
	for _, o := range p.Options {
		total += o.Votes
	}

	pv := &PollView{Text: p.Question, TotalVotes: total}
	for _, o := range p.Options {
		percent := 0
		if total > 0 {
			percent = int(math.Round(float64(o.Votes) / float64(total) * 100))
		}
		pv.Options = append(pv.Options, PollOptionView{Percent: percent, Votes: o.Votes, Text: o.Text})
	}
	return pv
}

// emojiViews flattens a reaction count map, sorted by shortcode for stable
// output. Count keys keep their colons; the dictionary is keyed without.
func (b *Builder) emojiViews(c *mewe.EmojiCounts) []EmojiView {
	views := make([]EmojiView, 0, len(c.Counts))
	for code, count := range c.Counts {
		url, ok := b.emojis[strings.Trim(code, ":")]
		if !ok {
			url = "#"
		}
		views = append(views, EmojiView{Code: code, URL: url, Count: count})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Code < views[j].Code })
	return views
}

var imageExts = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

func imageName(p *mewe.Photo) string {
	if ext, ok := imageExts[p.Mime]; ok {
		return p.ID + ext
	}
	if exts, err := mime.ExtensionsByType(p.Mime); err == nil && len(exts) > 0 {
		return p.ID + exts[0]
	}
	return p.ID
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "???"
	}
	s := int(math.Round(seconds))
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

func mongoDate(id string) string {
	if len(id) < 8 {
		return ""
	}
	ts, err := strconv.ParseInt(id[:8], 16, 64)
	if err != nil {
		return ""
	}
	return time.Unix(ts, 0).Format(DisplayDate)
}
