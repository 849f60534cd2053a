package model

import "time"

// Author is the denormalized author snapshot taken at fetch time.
type Author struct {
	ID          string
	Username    string
	DisplayName string
	AvatarURL   string
}

// Post is the canonical post shape every collection in the session holds.
// Only the Liked/Bookmarked flags and the two counters are mutated locally.
type Post struct {
	ID           string
	AuthorID     string
	Author       Author
	Content      string
	Media        []string
	CreatedAt    time.Time
	LikeCount    int
	CommentCount int
	Liked        bool
	Bookmarked   bool
	Tags         []string
}

// Comment belongs to exactly one post. ParentID is empty for top-level comments.
type Comment struct {
	ID        string
	PostID    string
	ParentID  string
	AuthorID  string
	Author    Author
	Content   string
	CreatedAt time.Time
	LikeCount int
	Liked     bool
	Replies   []Comment
}

// Mode selects which content source the pager reads from.
type Mode string

const (
	ModePersonalized Mode = "personalized"
	ModeDiscovery    Mode = "discovery"
)

// LoadingState is the pager's finite state.
type LoadingState string

const (
	StateIdle        LoadingState = "idle"
	StateLoading     LoadingState = "loading"
	StateReady       LoadingState = "ready"
	StateLoadingMore LoadingState = "loadingMore"
	StateError       LoadingState = "error"
)

// PostIDs returns the ids of posts in order.
func PostIDs(posts []Post) []string {
	out := make([]string, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.ID)
	}
	return out
}
