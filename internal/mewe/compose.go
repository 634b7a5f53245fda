package mewe

import (
	"context"
	"fmt"
	"io"
	"strings"
)

type newPostPayload struct {
	Text         string   `json:"text"`
	Everyone     bool     `json:"everyone"`
	CloseFriends bool     `json:"closeFriends"`
	ImageIDs     []string `json:"imageIds,omitempty"`
}

// MakePost publishes a new post to the home feed. Only image attachments are
// supported; the upload flow for other media types is still unknown.
func (c *Client) MakePost(ctx context.Context, text string, everyone, closeFriends bool, medias []UploadedMedia) (*Post, error) {
	payload := newPostPayload{
		Text:         text,
		Everyone:     everyone,
		CloseFriends: closeFriends,
	}
	for _, m := range medias {
		if !strings.Contains(m.Type, "image") {
			return nil, fmt.Errorf("unsupported media type %q, only images can be posted", m.Type)
		}
		payload.ImageIDs = append(payload.ImageIDs, m.ID)
	}

	var post Post
	if err := c.invokePostJSON(ctx, c.base+"/v2/home/post", payload, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

type threadReplyPayload struct {
	Text        string `json:"text"`
	FileID      string `json:"fileId,omitempty"`
	CommentType string `json:"commentType,omitempty"`
}

func (c *Client) postToThread(ctx context.Context, endpoint, text string, media *UploadedMedia) (*Comment, error) {
	payload := threadReplyPayload{Text: text}
	if media != nil {
		if !strings.Contains(media.Type, "image") {
			return nil, fmt.Errorf("unsupported media type %q, only photo comments are known", media.Type)
		}
		payload.FileID = media.ID
		payload.CommentType = "photo"
	}

	var comment Comment
	if err := c.invokePostJSON(ctx, endpoint, payload, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

// PostComment adds a comment to a post, optionally with an uploaded photo.
func (c *Client) PostComment(ctx context.Context, postID, text string, media *UploadedMedia) (*Comment, error) {
	return c.postToThread(ctx, c.base+"/v2/home/post/"+postID+"/comments", text, media)
}

// PostReply adds a reply to a comment, optionally with an uploaded photo.
func (c *Client) PostReply(ctx context.Context, commentID, text string, media *UploadedMedia) (*Comment, error) {
	return c.postToThread(ctx, c.base+"/v2/comments/"+commentID+"/reply", text, media)
}

// UploadPhoto uploads a photo for use in a post.
func (c *Client) UploadPhoto(ctx context.Context, filename, contentType string, r io.Reader) (*UploadedMedia, error) {
	var media UploadedMedia
	if err := c.invokePostFile(ctx, c.base+"/v2/photo/pt", filename, contentType, r, &media); err != nil {
		return nil, err
	}
	return &media, nil
}

// UploadCommentPhoto uploads a photo for use in a comment or reply.
func (c *Client) UploadCommentPhoto(ctx context.Context, filename, contentType string, r io.Reader) (*UploadedMedia, error) {
	var media UploadedMedia
	if err := c.invokePostFile(ctx, c.base+"/v2/photo/cm", filename, contentType, r, &media); err != nil {
		return nil, err
	}
	return &media, nil
}
