// Package normalize maps raw content API records into the canonical model.
// It is the only place timestamps are parsed.
package normalize

import (
	"strings"
	"time"

	"studly/internal/model"
	"studly/internal/util"
)

// NormalizePost maps raw into a Post. ok is false when the record has no
// resolvable id; callers drop such records and count them.
// An unparseable timestamp yields the zero time so the result stays stable
// across repeated calls.
func NormalizePost(raw model.RawPost, currentUserID string) (model.Post, bool) {
	id := firstID(raw.ID, raw.MongoID)
	if id == "" {
		return model.Post{}, false
	}
	author := normalizeAuthor(pickAuthor(raw.Author, raw.User), raw.Username, firstID(raw.AuthorID, raw.UserID))
	created, _ := ParseTimestamp(raw.CreatedAt)

	likes := len(raw.Likes)
	if raw.LikeCount != nil {
		likes = *raw.LikeCount
	}
	comments := 0
	if raw.CommentCount != nil {
		comments = *raw.CommentCount
	}

	return model.Post{
		ID:           id,
		AuthorID:     author.ID,
		Author:       author,
		Content:      raw.Content,
		Media:        normalizeMedia(raw.Media, raw.ImageURL),
		CreatedAt:    created,
		LikeCount:    nonNegative(likes),
		CommentCount: nonNegative(comments),
		Liked:        flag(raw.IsLiked, raw.Likes, currentUserID),
		Bookmarked:   flag(raw.IsBookmarked, raw.Bookmarks, currentUserID),
		Tags:         normalizeTags(raw.Tags, raw.Content),
	}, true
}

// NormalizePosts normalizes a batch and reports how many records were dropped.
func NormalizePosts(raws []model.RawPost, currentUserID string) ([]model.Post, int) {
	out := make([]model.Post, 0, len(raws))
	dropped := 0
	for _, r := range raws {
		p, ok := NormalizePost(r, currentUserID)
		if !ok {
			dropped++
			continue
		}
		out = append(out, p)
	}
	return out, dropped
}

func firstID(ids ...model.FlexID) string {
	for _, id := range ids {
		if s := strings.TrimSpace(id.String()); s != "" {
			return s
		}
	}
	return ""
}

func pickAuthor(candidates ...*model.RawAuthor) *model.RawAuthor {
	for _, a := range candidates {
		if a != nil {
			return a
		}
	}
	return nil
}

func normalizeAuthor(a *model.RawAuthor, username, fallbackID string) model.Author {
	out := model.Author{ID: fallbackID, Username: username}
	if a != nil {
		if id := a.ID.String(); id != "" {
			out.ID = id
		}
		if a.Username != "" {
			out.Username = a.Username
		}
		out.DisplayName = util.NormalizeWhitespace(a.DisplayName)
		if out.DisplayName == "" {
			out.DisplayName = util.NormalizeWhitespace(a.Name)
		}
		out.AvatarURL = a.AvatarURL
		if out.AvatarURL == "" {
			out.AvatarURL = a.ProfilePic
		}
	}
	if out.DisplayName == "" {
		out.DisplayName = out.Username
	}
	return out
}

func normalizeMedia(media []string, single string) []string {
	out := util.DedupeStrings(media)
	if len(out) == 0 && strings.TrimSpace(single) != "" {
		out = []string{strings.TrimSpace(single)}
	}
	return out
}

func normalizeTags(tags []string, content string) []string {
	if len(tags) == 0 {
		return util.ExtractHashtags(content)
	}
	cleaned := make([]string, 0, len(tags))
	for _, t := range tags {
		cleaned = append(cleaned, strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t), "#")))
	}
	return util.DedupeStrings(cleaned)
}

func flag(explicit *bool, ids []model.FlexID, currentUserID string) bool {
	if explicit != nil {
		return *explicit
	}
	if currentUserID == "" {
		return false
	}
	for _, id := range ids {
		if id.String() == currentUserID {
			return true
		}
	}
	return false
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// orNow returns t, or now when t is the zero time.
func orNow(t time.Time, now func() time.Time) time.Time {
	if t.IsZero() {
		return now().UTC()
	}
	return t
}
