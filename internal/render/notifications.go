package render

import (
	"fmt"
	"time"

	"meview/internal/mewe"
)

// Notifications flattens the notification feed into headline rows. Each
// notification type gets its own phrasing; unknown types surface their kind
// and raw payload so new upstream types are at least visible.
func (b *Builder) Notifications(items []mewe.Notification) []NotificationView {
	views := make([]NotificationView, 0, len(items))
	for i := range items {
		views = append(views, b.notificationView(&items[i]))
	}
	return views
}

func (b *Builder) notificationView(n *mewe.Notification) NotificationView {
	actors := map[string]mewe.User{}
	for _, u := range n.ActingUsers {
		actors[u.ID] = u
	}

	nv := NotificationView{
		Type:     n.NotificationType,
		New:      !n.Visited,
		Date:     time.Unix(n.CreatedAt, 0).Format(DisplayDate),
		NotifyID: n.ID,
	}

	hasComment := n.CommentData != nil && n.PostData != nil

	switch {
	case n.NotificationType == "comment" && hasComment && n.CommentData.ReplyTo != "":
		author := userName(n.CommentData.ParentAuthor, actors)
		nv.Headline = fmt.Sprintf("%s replied to comment by %s", userName(n.CommentData.Author.ID, actors), author)
		nv.Message = n.CommentData.Snippet
		nv.PostURL = b.PostURL(n.PostData.PostItemID)
		nv.CommentID = n.CommentData.ID

	case n.NotificationType == "comment" && hasComment:
		nv.Headline = fmt.Sprintf("%s commented on post by %s", userName(n.CommentData.Author.ID, actors), n.PostData.Author.Name)
		nv.Message = n.CommentData.Snippet
		nv.PostURL = b.PostURL(n.PostData.PostItemID)
		nv.CommentID = n.CommentData.ID

	case n.NotificationType == "mention" && hasComment:
		nv.Headline = fmt.Sprintf("%s mentioned you in a comment", userName(n.CommentData.Author.ID, actors))
		nv.Message = n.CommentData.Snippet
		nv.PostURL = b.PostURL(n.PostData.PostItemID)
		nv.CommentID = n.CommentData.ID

	case n.NotificationType == "mention" && n.PostData != nil:
		nv.Headline = fmt.Sprintf("%s mentioned you in a post", userName(n.PostData.Author.ID, actors))
		nv.Message = n.PostData.Snippet
		nv.PostURL = b.PostURL(n.PostData.PostItemID)

	case n.NotificationType == "emojis" && hasComment:
		// The reacting user is first in the acting list; a missing author
		// means the comment is the viewer's own
		author := "you"
		if u, ok := actors[n.CommentData.Author.ID]; ok {
			author = u.Name
		}
		nv.Headline = fmt.Sprintf("%s reacted to comment by %s", firstActor(n), author)
		nv.Message = n.CommentData.Snippet
		nv.PostURL = b.PostURL(n.PostData.PostItemID)
		nv.CommentID = n.CommentData.ID

	case n.NotificationType == "emojis" && n.PostData != nil:
		author := "you"
		if u, ok := actors[n.PostData.Author.ID]; ok {
			author = u.Name
		}
		nv.Headline = fmt.Sprintf("%s reacted to post by %s", firstActor(n), author)
		nv.Message = n.PostData.Snippet
		nv.PostURL = b.PostURL(n.PostData.PostItemID)

	case n.NotificationType == "follow_request_accepted":
		nv.Headline = fmt.Sprintf("%s accepted your follow request", firstActor(n))

	case n.NotificationType == "new_follow_request":
		nv.Headline = fmt.Sprintf("%s wants to follow you!", firstActor(n))

	case n.NotificationType == "poll_ended" && n.PollData != nil:
		nv.Headline = fmt.Sprintf("Poll by %s has ended", firstActor(n))
		nv.Message = n.PollData.Question
		nv.PostURL = b.PostURL(n.PollData.SharedPostID)

	case n.NotificationType == "contact_birthday" && n.BirthDayData != nil && len(n.ActingUsers) > 0:
		nv.Headline = fmt.Sprintf("%s has a birthday on %d.%d!", firstActor(n), n.BirthDayData.Month, n.BirthDayData.Day)
		nv.PostURL = b.UserFeedURL(n.ActingUsers[0].ID)

	default:
		nv.Headline = fmt.Sprintf("Unknown notification type: %s", n.NotificationType)
		nv.Message = fmt.Sprintf("%+v", *n)
	}

	return nv
}

func firstActor(n *mewe.Notification) string {
	if len(n.ActingUsers) == 0 {
		return "Someone"
	}
	return n.ActingUsers[0].Name
}
