package mewe

// Types for the undocumented MeWe API. Only the fields the views touch are
// declared; everything else in the upstream JSON is ignored on decode.

// Href wraps the single-field link objects nested under "_links". Many hrefs
// are URI templates carrying {imageSize} and {static} placeholders.
type Href struct {
	Href string `json:"href"`
}

// User is a feed participant as returned in page-level "users" arrays and by
// the mycontacts endpoint.
type User struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	ContactInviteID string `json:"contactInviteId"`
	Links           struct {
		Avatar Href `json:"avatar"`
	} `json:"_links"`
}

// Dimensions carries pixel sizes for photos and video posters.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Photo is an image attachment on a post or comment.
type Photo struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Mime     string     `json:"mime"`
	Animated bool       `json:"animated"`
	Size     Dimensions `json:"size"`
	Links    struct {
		Img Href `json:"img"`
	} `json:"_links"`
}

// Video is the video half of a media object; the associated Photo is its
// poster frame.
type Video struct {
	Name     string  `json:"name"`
	Duration float64 `json:"duration"`
	Links    struct {
		LinkTemplate Href `json:"linkTemplate"`
	} `json:"_links"`
}

// Media pairs a photo with an optional video under a post.
type Media struct {
	PostItemID string `json:"postItemId"`
	MediaID    string `json:"mediaId"`
	Photo      *Photo `json:"photo"`
	Video      *Video `json:"video"`
}

// Document is a file attachment on a post.
type Document struct {
	ID       string `json:"id"`
	FileName string `json:"fileName"`
	Mime     string `json:"mime"`
	Length   int64  `json:"length"`
	Links    struct {
		URL Href `json:"url"`
	} `json:"_links"`
}

// Link is an URL preview card attached to a post or comment.
type Link struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Links       struct {
		URL       Href `json:"url"`
		URLHost   Href `json:"urlHost"`
		Thumbnail Href `json:"thumbnail"`
	} `json:"_links"`
}

// PollOption is a single poll choice with its vote count.
type PollOption struct {
	Text  string `json:"text"`
	Votes int    `json:"votes"`
}

// Poll is a poll attached to a post.
type Poll struct {
	Question string       `json:"question"`
	Options  []PollOption `json:"options"`
}

// EmojiCounts maps reaction shortcodes to counts.
type EmojiCounts struct {
	Counts map[string]int `json:"counts"`
}

// CommentOwner is the inline author record some comments carry.
type CommentOwner struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CommentDocument is a file attached to a comment. Unlike post documents it
// carries a bare extension in Type and an icon link.
type CommentDocument struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	Size  int64  `json:"size"`
	Links struct {
		URL     Href `json:"url"`
		IconURL Href `json:"iconUrl"`
	} `json:"_links"`
}

// Comment is a post comment or a reply to one.
type Comment struct {
	ID           string           `json:"id"`
	UserID       string           `json:"userId"`
	Text         string           `json:"text"`
	CreatedAt    int64            `json:"createdAt"`
	Follows      bool             `json:"follows"`
	RepliesCount int              `json:"repliesCount"`
	Owner        *CommentOwner    `json:"owner"`
	Photo        *Photo           `json:"photo"`
	Document     *CommentDocument `json:"document"`
	Link         *Link            `json:"link"`
	Emojis       *EmojiCounts     `json:"emojis"`
	Replies      []Comment        `json:"replies"`
}

// CommentBlock is the comment summary embedded in feed posts.
type CommentBlock struct {
	Total int       `json:"total"`
	Feed  []Comment `json:"feed"`
}

// Post is a feed item.
type Post struct {
	PostItemID  string        `json:"postItemId"`
	UserID      string        `json:"userId"`
	Text        string        `json:"text"`
	Album       string        `json:"album"`
	CreatedAt   int64         `json:"createdAt"`
	Follows     bool          `json:"follows"`
	HashTags    []string      `json:"hashTags"`
	MediasCount int           `json:"mediasCount"`
	Medias      []Media       `json:"medias"`
	Files       []Document    `json:"files"`
	Link        *Link         `json:"link"`
	Poll        *Poll         `json:"poll"`
	RefPost     *Post         `json:"refPost"`
	RefRemoved  bool          `json:"refRemoved"`
	Emojis      *EmojiCounts  `json:"emojis"`
	Comments    *CommentBlock `json:"comments"`
}

// feedPage is one page of any feed-shaped endpoint: main feed, user feed,
// media listing and post comments all share it.
type feedPage struct {
	Feed  []Post `json:"feed"`
	Users []User `json:"users"`
	Links struct {
		NextPage Href `json:"nextPage"`
	} `json:"_links"`
}

// mediaFeedPage is one page of the user media listing; its feed entries carry
// a single media each.
type mediaFeedPage struct {
	Feed []struct {
		Medias []Media `json:"medias"`
	} `json:"feed"`
	Users []User `json:"users"`
}

// CommentFeed is the response of the post comments endpoint.
type CommentFeed struct {
	Feed  []Comment `json:"feed"`
	Total int       `json:"total"`
}

// repliesPage is the response of the comment replies endpoint.
type repliesPage struct {
	Comments []Comment `json:"comments"`
}

// MediaItem is one tile of the media stream.
type MediaItem struct {
	MediaID    string `json:"mediaId"`
	PostItemID string `json:"postItemId"`
	Photo      Photo  `json:"photo"`
}

// MediaStream is the response of the mediastream endpoint.
type MediaStream struct {
	Feed []MediaItem `json:"feed"`
}

// NotifyAuthor identifies a user inside notification payloads.
type NotifyAuthor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NotifyComment is the comment fragment of a notification.
type NotifyComment struct {
	ID           string       `json:"id"`
	Snippet      string       `json:"snippet"`
	ReplyTo      string       `json:"replyTo"`
	ParentAuthor string       `json:"parentAuthor"`
	Author       NotifyAuthor `json:"author"`
}

// NotifyPost is the post fragment of a notification.
type NotifyPost struct {
	PostItemID string       `json:"postItemId"`
	Snippet    string       `json:"snippet"`
	Author     NotifyAuthor `json:"author"`
}

// NotifyPoll is the poll fragment of a poll_ended notification.
type NotifyPoll struct {
	Question     string `json:"question"`
	SharedPostID string `json:"sharedPostId"`
}

// NotifyBirthday is the date fragment of a contact_birthday notification.
type NotifyBirthday struct {
	Day   int `json:"day"`
	Month int `json:"month"`
}

// Notification is one entry of the notification feed.
type Notification struct {
	ID               string          `json:"id"`
	NotificationType string          `json:"notificationType"`
	Visited          bool            `json:"visited"`
	CreatedAt        int64           `json:"createdAt"`
	ActingUsers      []User          `json:"actingUsers"`
	CommentData      *NotifyComment  `json:"commentData"`
	PostData         *NotifyPost     `json:"postData"`
	PollData         *NotifyPoll     `json:"pollData"`
	BirthDayData     *NotifyBirthday `json:"birthDayData"`
}

// notificationPage is the response of the notifications feed endpoint.
type notificationPage struct {
	Feed []Notification `json:"feed"`
}

// UploadedMedia is the response of the photo upload endpoints.
type UploadedMedia struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// identifyResponse is the response of the auth identify endpoint.
type identifyResponse struct {
	Authenticated bool `json:"authenticated"`
}

// apiError is the error envelope upstream wraps failures in.
type apiError struct {
	Message string `json:"message"`
}
