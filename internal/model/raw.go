package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// FlexID accepts ids sent as JSON strings, numbers or null.
type FlexID string

func (f *FlexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		*f = FlexID(strconv.FormatInt(i, 10))
		return nil
	}
	*f = FlexID(n.String())
	return nil
}

func (f FlexID) String() string { return string(f) }

// RawAuthor is the author object as the backend embeds it.
type RawAuthor struct {
	ID          FlexID `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Name        string `json:"name"`
	AvatarURL   string `json:"avatar_url"`
	ProfilePic  string `json:"profile_picture"`
}

// RawPost is a post record as returned by the content API. The backend is
// inconsistent about field names, so several spellings are accepted.
type RawPost struct {
	ID           FlexID     `json:"id"`
	MongoID      FlexID     `json:"_id"`
	AuthorID     FlexID     `json:"author_id"`
	UserID       FlexID     `json:"user_id"`
	Username     string     `json:"username"`
	Author       *RawAuthor `json:"author"`
	User         *RawAuthor `json:"user"`
	Content      string     `json:"content"`
	Media        []string   `json:"media"`
	ImageURL     string     `json:"image_url"`
	CreatedAt    string     `json:"created_at"`
	LikeCount    *int       `json:"like_count"`
	CommentCount *int       `json:"comment_count"`
	IsLiked      *bool      `json:"is_liked"`
	IsBookmarked *bool      `json:"is_bookmarked"`
	Likes        []FlexID   `json:"likes"`
	Bookmarks    []FlexID   `json:"bookmarks"`
	Tags         []string   `json:"tags"`
}

// RawComment is a comment record. Replies may or may not be nested.
type RawComment struct {
	ID        FlexID       `json:"id"`
	PostID    FlexID       `json:"post_id"`
	ParentID  FlexID       `json:"parent_id"`
	AuthorID  FlexID       `json:"author_id"`
	UserID    FlexID       `json:"user_id"`
	Username  string       `json:"username"`
	Author    *RawAuthor   `json:"author"`
	User      *RawAuthor   `json:"user"`
	Content   string       `json:"content"`
	CreatedAt string       `json:"created_at"`
	LikeCount *int         `json:"like_count"`
	IsLiked   *bool        `json:"is_liked"`
	Likes     []FlexID     `json:"likes"`
	Replies   []RawComment `json:"replies"`
}
