package mewe

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

type feedQuery struct {
	Limit  int    `url:"limit,omitempty"`
	Before string `url:"b,omitempty"`
}

type maxResultsQuery struct {
	MaxResults int `url:"maxResults"`
}

type mediaListQuery struct {
	SkipVideos  int    `url:"skipVideos"`
	PostItemID  string `url:"postItemId"`
	Before      int    `url:"before"`
	MultiPostID string `url:"multiPostId"`
	After       int    `url:"after"`
	Order       int    `url:"order"`
}

type mediaStreamQuery struct {
	Limit int `url:"limit"`
	Order int `url:"order"`
}

// getFeed loops through pages of a feed-shaped endpoint. Main feed, group
// feed, user feed and post comments all return the same page structure: a
// feed array, a users array and a nextPage link whose query string seeds the
// next request.
func (c *Client) getFeed(ctx context.Context, endpoint string, limit, pages int, before string) ([]Post, map[string]User, error) {
	var feed []Post
	users := make(map[string]User)

	var payload any = feedQuery{Limit: limit, Before: before}

	for page := 0; page < pages; page++ {
		var resp feedPage
		if err := c.invokeGet(ctx, endpoint, payload, &resp); err != nil {
			return nil, nil, err
		}

		if len(resp.Feed) == 0 {
			return nil, nil, ErrEmptyFeed
		}

		feed = append(feed, resp.Feed...)
		for _, u := range resp.Users {
			users[u.ID] = u
		}

		next := resp.Links.NextPage.Href
		if next == "" {
			break
		}
		parsed, err := url.Parse(next)
		if err != nil {
			return nil, nil, fmt.Errorf("bad nextPage link %q: %w", next, err)
		}
		values := parsed.Query()
		if limit > 0 {
			values.Set("limit", strconv.Itoa(limit))
		}
		payload = values
	}

	return feed, users, nil
}

// Feed fetches the home feed (home/allfeed).
func (c *Client) Feed(ctx context.Context, limit, pages int, before string) ([]Post, map[string]User, error) {
	return c.getFeed(ctx, c.base+"/v2/home/allfeed", limit, pages, before)
}

// UserFeed fetches a single user's posts (home/user/{id}/postsfeed).
func (c *Client) UserFeed(ctx context.Context, userID string, limit, pages int, before string) ([]Post, map[string]User, error) {
	return c.getFeed(ctx, c.base+"/v2/home/user/"+userID+"/postsfeed", limit, pages, before)
}

// Post fetches a single post (home/post/{id}) along with its user directory.
func (c *Client) Post(ctx context.Context, postID string) (*Post, map[string]User, error) {
	var resp struct {
		Post  Post   `json:"post"`
		Users []User `json:"users"`
	}
	if err := c.invokeGet(ctx, c.base+"/v2/home/post/"+postID, nil, &resp); err != nil {
		return nil, nil, err
	}

	users := make(map[string]User, len(resp.Users))
	for _, u := range resp.Users {
		users[u.ID] = u
	}
	return &resp.Post, users, nil
}

// PostComments fetches comments on a post, newest first upstream.
func (c *Client) PostComments(ctx context.Context, postID string, limit int) (*CommentFeed, error) {
	var resp CommentFeed
	err := c.invokeGet(ctx, c.base+"/v2/home/post/"+postID+"/comments", maxResultsQuery{MaxResults: limit}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// CommentReplies fetches replies to a single comment.
func (c *Client) CommentReplies(ctx context.Context, commentID string, limit int) ([]Comment, error) {
	var resp repliesPage
	err := c.invokeGet(ctx, c.base+"/v2/comments/"+commentID+"/replies", maxResultsQuery{MaxResults: limit}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Comments, nil
}

// PostMedias fetches the full media list for a post that reports more medias
// than the feed embeds (home/user/{id}/media).
func (c *Client) PostMedias(ctx context.Context, post *Post, limit int) ([]Media, map[string]User, error) {
	if len(post.Medias) == 0 {
		return nil, nil, fmt.Errorf("post %s has no media to anchor the listing", post.PostItemID)
	}

	payload := mediaListQuery{
		SkipVideos:  0,
		PostItemID:  post.Medias[0].PostItemID,
		Before:      0,
		MultiPostID: post.PostItemID,
		After:       limit,
		Order:       1,
	}

	var resp mediaFeedPage
	if err := c.invokeGet(ctx, c.base+"/v2/home/user/"+post.UserID+"/media", payload, &resp); err != nil {
		return nil, nil, err
	}

	medias := make([]Media, 0, len(resp.Feed))
	for _, item := range resp.Feed {
		if len(item.Medias) > 0 {
			medias = append(medias, item.Medias[0])
		}
	}
	users := make(map[string]User, len(resp.Users))
	for _, u := range resp.Users {
		users[u.ID] = u
	}
	return medias, users, nil
}

// MediaFeed retrieves the media stream (home/mediastream).
func (c *Client) MediaFeed(ctx context.Context, limit, order int) (*MediaStream, error) {
	var resp MediaStream
	err := c.invokeGet(ctx, c.base+"/v2/home/mediastream", mediaStreamQuery{Limit: limit, Order: order}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Notifications retrieves the notification feed for recent mentions, replies
// and the like.
func (c *Client) Notifications(ctx context.Context, limit int) ([]Notification, error) {
	var resp notificationPage
	err := c.invokeGet(ctx, c.base+"/v2/notifications/feed", maxResultsQuery{MaxResults: limit}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Feed, nil
}

type markSeenPayload struct {
	NotificationID string `url:"notificationId,omitempty"`
	All            bool   `url:"all,omitempty"`
}

// MarkSeen marks a single notification as visited.
func (c *Client) MarkSeen(ctx context.Context, notifyID string) error {
	if notifyID == "" {
		return fmt.Errorf("notification id required")
	}
	return c.invokePostForm(ctx, c.base+"/v2/notifications/markVisited", markSeenPayload{NotificationID: notifyID}, nil)
}

// MarkAllSeen marks every notification as visited.
func (c *Client) MarkAllSeen(ctx context.Context) error {
	return c.invokePostForm(ctx, c.base+"/v2/notifications/markVisited", markSeenPayload{All: true}, nil)
}
