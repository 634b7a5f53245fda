package render

import (
	"html/template"
	"net/url"
	"strconv"
	"strings"
)

// Display and RSS timestamp layouts used throughout the views.
const (
	DisplayDate = "02 Jan 2006 15:04:05"
	RSSDate     = "2006-01-02T15:04:05-0700"
)

// LinkView is a URL preview card.
type LinkView struct {
	Title string
	URL   string
	Host  string
	Text  string
	Thumb string
}

// PollOptionView is one poll choice with its share of the vote.
type PollOptionView struct {
	Percent int
	Votes   int
	Text    string
}

// PollView is a poll with vote totals resolved to percentages.
type PollView struct {
	Text       string
	TotalVotes int
	Options    []PollOptionView
}

// EmojiView is one reaction row: shortcode, image and count.
type EmojiView struct {
	Code  string
	URL   string
	Count int
}

// ImageView is a proxied image with its thumbnail.
type ImageView struct {
	URL           string
	Thumb         string
	ThumbVertical bool
	ID            string
	Name          string
	Mime          string
	Size          string
	Text          string
}

// VideoView is a proxied video with its poster thumbnail.
type VideoView struct {
	URL           string
	Thumb         string
	ThumbVertical bool
	Name          string
	Width         int
	Size          string
	Duration      string
}

// FileView is a proxied document attachment.
type FileView struct {
	URL  string
	Name string
	Mime string
	Size int64
}

// MessageView is the rendered body of a post: text plus every attachment
// kind the API can hang off it.
type MessageView struct {
	Text   template.HTML
	Album  string
	Link   *LinkView
	Poll   *PollView
	Repost *RepostView
	Images []ImageView
	Videos []VideoView
	Files  []FileView
}

// RepostView is a referenced post embedded in another. Deleted references
// arrive as a bare flag with no content.
type RepostView struct {
	MessageView
	Author   string
	AuthorID string
	ID       string
	Date     string
	Deleted  bool
}

// CommentView is a comment with its attachments and nested replies.
type CommentView struct {
	Text       template.HTML
	ID         string
	UserID     string
	User       string
	Date       string
	Timestamp  int64
	Images     []ImageView
	Link       *LinkView
	Emojis     []EmojiView
	ReplyCount int
	Subscribed bool
	Replies    []CommentView
}

// PostView is one feed item ready for the history and post templates, with
// the extra fields the RSS template needs.
type PostView struct {
	Content      MessageView
	Author       string
	AuthorID     string
	ID           string
	Date         string
	Title        string
	Comments     []CommentView
	MissingCount int
	Subscribed   bool
	Emojis       []EmojiView

	Categories []string
	AuthorRSS  string
	DateRSS    string
	Link       string
}

// NotificationView is one row of the notification page.
type NotificationView struct {
	Type      string
	New       bool
	Date      string
	NotifyID  string
	Headline  string
	Message   string
	PostURL   string
	CommentID string
}

// MediaTile is one cell of the media grid on the main page.
type MediaTile struct {
	URL     string
	Date    string
	PostURL string
}

// ActivityView is one row of the recent-activity sidebar.
type ActivityView struct {
	Name     string
	UserID   string
	Date     string
	LastPost string
}

// PostOptions control the extra fetches done while building a single post.
type PostOptions struct {
	// LoadAllComments replaces the inline comment stub with a full fetch,
	// replies included.
	LoadAllComments bool
	// RetrieveMedias fetches the full media list for posts that carry more
	// than the four inline medias.
	RetrieveMedias bool
}

const (
	inlineMediaLimit = 4
	commentFetchSize = 500
	maxVideoWidth    = 640
)

// Builder turns API responses into view structs. All media URLs are routed
// through the local proxy endpoint so the browser never needs MeWe cookies.
type Builder struct {
	api       FeedAPI
	md        *Markdown
	emojis    EmojiDict
	publicURL string
	thumbSize string
	imageSize string
}

// NewBuilder wires a Builder. publicURL is the public base URL proxied links
// are rooted at, without a trailing slash.
func NewBuilder(api FeedAPI, md *Markdown, emojis EmojiDict, publicURL, thumbSize, imageSize string) *Builder {
	return &Builder{
		api:       api,
		md:        md,
		emojis:    emojis,
		publicURL: strings.TrimSuffix(publicURL, "/"),
		thumbSize: thumbSize,
		imageSize: imageSize,
	}
}

// proxyURL routes a MeWe media URL through the local proxy with the metadata
// the proxy forwards as response headers.
func (b *Builder) proxyURL(raw, mimeType, name string) string {
	return b.publicURL + "/proxy?url=" + url.QueryEscape(raw) +
		"&mime=" + url.QueryEscape(mimeType) + "&name=" + url.QueryEscape(name)
}

// PostURL is the local permalink of a post.
func (b *Builder) PostURL(postID string) string {
	return b.publicURL + "/viewpost/" + postID
}

// UserFeedURL is the local feed page of a user.
func (b *Builder) UserFeedURL(userID string) string {
	return b.publicURL + "/userfeed/" + userID
}

// expandImage fills the {imageSize} and {static} placeholders of an image
// href template. Templates without a {static} placeholder are unaffected.
func expandImage(tmpl, size string, static int) string {
	return strings.NewReplacer(
		"{imageSize}", size,
		"{static}", strconv.Itoa(static),
	).Replace(tmpl)
}
