package normalize

import (
	"time"

	"studly/internal/model"
)

// rootSentinel is what the backend sends as parent_id for top-level comments.
const rootSentinel = "0"

// NormalizeComment maps a single raw comment, ignoring its nested replies.
// postID is used when the record does not carry its own post_id. A malformed
// timestamp falls back to now() so the comment still renders.
func NormalizeComment(raw model.RawComment, postID, currentUserID string, now func() time.Time) (model.Comment, bool) {
	id := firstID(raw.ID)
	if id == "" {
		return model.Comment{}, false
	}
	if now == nil {
		now = time.Now
	}
	author := normalizeAuthor(pickAuthor(raw.Author, raw.User), raw.Username, firstID(raw.AuthorID, raw.UserID))
	created, _ := ParseTimestamp(raw.CreatedAt)

	parent := firstID(raw.ParentID)
	if parent == rootSentinel {
		parent = ""
	}
	if pid := firstID(raw.PostID); pid != "" {
		postID = pid
	}
	likes := len(raw.Likes)
	if raw.LikeCount != nil {
		likes = *raw.LikeCount
	}
	return model.Comment{
		ID:        id,
		PostID:    postID,
		ParentID:  parent,
		AuthorID:  author.ID,
		Author:    author,
		Content:   raw.Content,
		CreatedAt: orNow(created, now),
		LikeCount: nonNegative(likes),
		Liked:     flag(raw.IsLiked, raw.Likes, currentUserID),
	}, true
}
