package feed

import (
	"context"

	"github.com/pkg/errors"

	"studly/internal/comments"
	"studly/internal/logging"
	"studly/internal/metrics"
	"studly/internal/model"
	"studly/internal/normalize"
	"studly/internal/studlyapi"
)

// LoadComments fetches the comments of postID, rebuilds the tree and keeps
// it for Comments and comment-like mutations.
func (s *Session) LoadComments(ctx context.Context, postID string) ([]model.Comment, error) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil, ErrDisposed
	}
	gen, user := s.gen, s.user
	ctx, cancel := s.scoped(ctx)
	s.mu.Unlock()
	defer cancel()

	raws, err := s.api.GetComments(ctx, postID)
	if err != nil {
		return nil, s.lookupFailed(err, "fetch comments of "+postID)
	}
	tree, dropped := comments.Builder{CurrentUserID: user, Now: s.opts.Now}.Build(postID, raws)
	metrics.IncDropped("comment", dropped)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return nil, ErrSessionReset
	}
	s.comments[postID] = tree
	return tree, nil
}

// Comments returns the last loaded comment tree of postID.
func (s *Session) Comments(postID string) []model.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.comments[postID]
}

// CreateComment posts a comment (a reply when parentID is set), adds it to
// the loaded tree and bumps the post's comment count.
func (s *Session) CreateComment(ctx context.Context, postID, content, parentID string) (model.Comment, error) {
	if s.ident.UserID() == "" {
		return model.Comment{}, ErrAuthRequired
	}
	raw, err := s.api.CreateComment(ctx, postID, content, parentID)
	if err != nil {
		return model.Comment{}, s.lookupFailed(err, "create comment on "+postID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := normalize.NormalizeComment(raw, postID, s.user, s.opts.Now)
	if !ok {
		return model.Comment{}, ErrMalformedRecord
	}
	if c.ParentID == "" {
		c.ParentID = parentID
	}
	if _, exists := comments.Find(s.comments[postID], c.ID); !exists {
		s.comments[postID] = comments.Insert(s.comments[postID], c)
		bump := func(p *model.Post) { p.CommentCount++ }
		s.items, _ = updatePost(s.items, postID, bump)
		s.pending, _ = updatePost(s.pending, postID, bump)
	}
	return c, nil
}

// CreatePost publishes a post and puts it at the top of the visible items.
func (s *Session) CreatePost(ctx context.Context, content string, media []string) (model.Post, error) {
	if s.ident.UserID() == "" {
		return model.Post{}, ErrAuthRequired
	}
	raw, err := s.api.CreatePost(ctx, studlyapi.NewPost{Content: content, Media: media})
	if err != nil {
		return model.Post{}, s.lookupFailed(err, "create post")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := normalize.NormalizePost(raw, s.user)
	if !ok {
		metrics.IncDropped("post", 1)
		return model.Post{}, ErrMalformedRecord
	}
	s.items = mergeUnique([]model.Post{p}, s.items)
	return p, nil
}

// Post fetches a single post.
func (s *Session) Post(ctx context.Context, id string) (model.Post, error) {
	raw, err := s.api.GetPost(ctx, id)
	if err != nil {
		return model.Post{}, s.lookupFailed(err, "fetch post "+id)
	}
	p, ok := normalize.NormalizePost(raw, s.ident.UserID())
	if !ok {
		metrics.IncDropped("post", 1)
		return model.Post{}, ErrMalformedRecord
	}
	return p, nil
}

// UserPosts fetches the posts of username.
func (s *Session) UserPosts(ctx context.Context, username string) ([]model.Post, error) {
	raws, err := s.api.GetUserPosts(ctx, username)
	if err != nil {
		return nil, s.lookupFailed(err, "fetch posts of "+username)
	}
	return s.normalizeList(raws), nil
}

// Bookmarks fetches the current user's bookmarked posts.
func (s *Session) Bookmarks(ctx context.Context) ([]model.Post, error) {
	if s.ident.UserID() == "" {
		return nil, ErrAuthRequired
	}
	raws, err := s.api.GetBookmarks(ctx)
	if err != nil {
		return nil, s.lookupFailed(err, "fetch bookmarks")
	}
	return s.normalizeList(raws), nil
}

func (s *Session) normalizeList(raws []model.RawPost) []model.Post {
	posts, dropped := normalize.NormalizePosts(raws, s.ident.UserID())
	metrics.IncDropped("post", dropped)
	return mergeUnique(nil, posts)
}

func (s *Session) lookupFailed(err error, what string) error {
	if errors.Is(err, studlyapi.ErrIdentityGone) {
		s.handleIdentityGone(err)
	} else {
		logging.Warn("feed_lookup_failed", map[string]any{"what": what, "error": err.Error()})
	}
	return errors.Wrap(err, what)
}
