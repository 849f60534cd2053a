package sqlitestore

import (
	"context"
	"sync"

	"studly/internal/model"
	"studly/internal/studlyapi"
)

// stubAPI succeeds every mutation and serves no content.
type stubAPI struct {
	mu    sync.Mutex
	calls []string
}

var _ studlyapi.ContentAPI = (*stubAPI)(nil)

func (s *stubAPI) log(what string) error {
	s.mu.Lock()
	s.calls = append(s.calls, what)
	s.mu.Unlock()
	return nil
}

func (s *stubAPI) GetFeed(context.Context, int, int) ([]model.RawPost, error)  { return nil, nil }
func (s *stubAPI) GetPosts(context.Context, int, int) ([]model.RawPost, error) { return nil, nil }
func (s *stubAPI) GetPost(context.Context, string) (model.RawPost, error) {
	return model.RawPost{}, studlyapi.ErrNotFound
}
func (s *stubAPI) GetUserPosts(context.Context, string) ([]model.RawPost, error) { return nil, nil }
func (s *stubAPI) CreatePost(context.Context, studlyapi.NewPost) (model.RawPost, error) {
	return model.RawPost{}, nil
}
func (s *stubAPI) LikePost(_ context.Context, id string) error       { return s.log("like:" + id) }
func (s *stubAPI) UnlikePost(_ context.Context, id string) error     { return s.log("unlike:" + id) }
func (s *stubAPI) BookmarkPost(_ context.Context, id string) error   { return s.log("bookmark:" + id) }
func (s *stubAPI) UnbookmarkPost(_ context.Context, id string) error { return s.log("unbookmark:" + id) }
func (s *stubAPI) GetComments(context.Context, string) ([]model.RawComment, error) {
	return nil, nil
}
func (s *stubAPI) CreateComment(context.Context, string, string, string) (model.RawComment, error) {
	return model.RawComment{}, nil
}
func (s *stubAPI) LikeComment(_ context.Context, c, p string) error   { return s.log("like_comment:" + c) }
func (s *stubAPI) UnlikeComment(_ context.Context, c, p string) error { return s.log("unlike_comment:" + c) }
func (s *stubAPI) GetBookmarks(context.Context) ([]model.RawPost, error) { return nil, nil }
