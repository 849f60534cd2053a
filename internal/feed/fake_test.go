package feed

import (
	"context"
	"fmt"
	"sync"

	"studly/internal/model"
	"studly/internal/studlyapi"
)

// fakeAPI is an in-memory ContentAPI. Pages are keyed by page number.
type fakeAPI struct {
	mu sync.Mutex

	feed  map[int][]model.RawPost
	posts map[int][]model.RawPost

	feedErr  error
	postsErr error
	mutErr   error

	// when set, fetches/mutations block until the channel is closed
	fetchGate chan struct{}
	mutGate   chan struct{}
	entered   chan string

	// per-page fetch gates and per-call mutation gates/errors, keyed like
	// the mutation log ("like:p1"); they take precedence over the above
	pageGates map[int]chan struct{}
	mutGates  map[string]chan struct{}
	mutErrs   map[string]error

	feedCalls  []int
	postsCalls []int
	mutations  []string

	comments map[string][]model.RawComment
	nextID   int
}

var _ studlyapi.ContentAPI = (*fakeAPI)(nil)

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		feed:      map[int][]model.RawPost{},
		posts:     map[int][]model.RawPost{},
		comments:  map[string][]model.RawComment{},
		entered:   make(chan string, 64),
		pageGates: map[int]chan struct{}{},
		mutGates:  map[string]chan struct{}{},
		mutErrs:   map[string]error{},
	}
}

func rawPosts(prefix string, n int) []model.RawPost {
	out := make([]model.RawPost, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, model.RawPost{ID: model.FlexID(fmt.Sprintf("%s%d", prefix, i)), Content: "post", CreatedAt: "2024-01-01 10:00:00"})
	}
	return out
}

func (f *fakeAPI) wait(ctx context.Context, gate chan struct{}, what string) error {
	select {
	case f.entered <- what:
	default:
	}
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pageGate must be called with f.mu held.
func (f *fakeAPI) pageGate(page int) chan struct{} {
	if g, ok := f.pageGates[page]; ok {
		return g
	}
	return f.fetchGate
}

func (f *fakeAPI) GetFeed(ctx context.Context, limit, page int) ([]model.RawPost, error) {
	f.mu.Lock()
	f.feedCalls = append(f.feedCalls, page)
	gate, err, out := f.pageGate(page), f.feedErr, f.feed[page]
	f.mu.Unlock()
	if werr := f.wait(ctx, gate, "feed"); werr != nil {
		return nil, werr
	}
	return out, err
}

func (f *fakeAPI) GetPosts(ctx context.Context, limit, page int) ([]model.RawPost, error) {
	f.mu.Lock()
	f.postsCalls = append(f.postsCalls, page)
	gate, err, out := f.pageGate(page), f.postsErr, f.posts[page]
	f.mu.Unlock()
	if werr := f.wait(ctx, gate, "posts"); werr != nil {
		return nil, werr
	}
	return out, err
}

func (f *fakeAPI) GetPost(ctx context.Context, id string) (model.RawPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, pages := range []map[int][]model.RawPost{f.feed, f.posts} {
		for _, page := range pages {
			for _, p := range page {
				if p.ID.String() == id {
					return p, nil
				}
			}
		}
	}
	return model.RawPost{}, studlyapi.ErrNotFound
}

func (f *fakeAPI) GetUserPosts(ctx context.Context, username string) ([]model.RawPost, error) {
	return []model.RawPost{{ID: "u1", Username: username}, {ID: "u1", Username: username}, {Content: "no id"}}, nil
}

func (f *fakeAPI) CreatePost(ctx context.Context, in studlyapi.NewPost) (model.RawPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return model.RawPost{ID: model.FlexID(fmt.Sprintf("new%d", f.nextID)), Content: in.Content, Media: in.Media}, nil
}

func (f *fakeAPI) mutate(ctx context.Context, what string) error {
	f.mu.Lock()
	f.mutations = append(f.mutations, what)
	gate, err := f.mutGate, f.mutErr
	if g, ok := f.mutGates[what]; ok {
		gate = g
	}
	if e, ok := f.mutErrs[what]; ok {
		err = e
	}
	f.mu.Unlock()
	if werr := f.wait(ctx, gate, what); werr != nil {
		return werr
	}
	return err
}

func (f *fakeAPI) LikePost(ctx context.Context, id string) error   { return f.mutate(ctx, "like:"+id) }
func (f *fakeAPI) UnlikePost(ctx context.Context, id string) error { return f.mutate(ctx, "unlike:"+id) }
func (f *fakeAPI) BookmarkPost(ctx context.Context, id string) error {
	return f.mutate(ctx, "bookmark:"+id)
}
func (f *fakeAPI) UnbookmarkPost(ctx context.Context, id string) error {
	return f.mutate(ctx, "unbookmark:"+id)
}
func (f *fakeAPI) LikeComment(ctx context.Context, commentID, postID string) error {
	return f.mutate(ctx, "like_comment:"+postID+"/"+commentID)
}
func (f *fakeAPI) UnlikeComment(ctx context.Context, commentID, postID string) error {
	return f.mutate(ctx, "unlike_comment:"+postID+"/"+commentID)
}

func (f *fakeAPI) GetComments(ctx context.Context, postID string) ([]model.RawComment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.comments[postID], nil
}

func (f *fakeAPI) CreateComment(ctx context.Context, postID, content, parentCommentID string) (model.RawComment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return model.RawComment{ID: model.FlexID(fmt.Sprintf("c%d", f.nextID)), Content: content, CreatedAt: "2024-02-01 10:00:00"}, nil
}

func (f *fakeAPI) GetBookmarks(ctx context.Context) ([]model.RawPost, error) {
	return []model.RawPost{{ID: "b1"}}, nil
}

func (f *fakeAPI) set(fn func(f *fakeAPI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeAPI) calls() (feed, posts []int, muts []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.feedCalls...), append([]int(nil), f.postsCalls...), append([]string(nil), f.mutations...)
}

type memRecorder struct {
	mu      sync.Mutex
	records []MutationRecord
}

func (m *memRecorder) RecordMutation(ctx context.Context, r MutationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return nil
}

func (m *memRecorder) all() []MutationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MutationRecord(nil), m.records...)
}
