package feed

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"studly/internal/comments"
	"studly/internal/logging"
	"studly/internal/metrics"
	"studly/internal/model"
)

// Kind names a mutation type.
type Kind string

const (
	KindLike        Kind = "like"
	KindBookmark    Kind = "bookmark"
	KindCommentLike Kind = "comment_like"
)

// Action is one requested mutation. Desired nil means toggle the current
// local value.
type Action struct {
	Kind      Kind
	PostID    string
	CommentID string
	Desired   *bool
}

func (a Action) key() string {
	if a.Kind == KindCommentLike {
		return string(a.Kind) + ":" + a.PostID + ":" + a.CommentID
	}
	return string(a.Kind) + ":" + a.PostID
}

func (a Action) target() string {
	if a.Kind == KindCommentLike {
		return a.CommentID
	}
	return a.PostID
}

// MutationRecord is what a Recorder receives once a mutation settles.
type MutationRecord struct {
	At      time.Time
	Kind    Kind
	PostID  string
	Target  string
	Desired bool
	Err     error
}

// Recorder receives every settled mutation.
type Recorder interface {
	RecordMutation(ctx context.Context, r MutationRecord) error
}

func (s *Session) ToggleLike(ctx context.Context, postID string) <-chan error {
	return s.Mutate(ctx, Action{Kind: KindLike, PostID: postID})
}

func (s *Session) SetLike(ctx context.Context, postID string, liked bool) <-chan error {
	return s.Mutate(ctx, Action{Kind: KindLike, PostID: postID, Desired: &liked})
}

func (s *Session) ToggleBookmark(ctx context.Context, postID string) <-chan error {
	return s.Mutate(ctx, Action{Kind: KindBookmark, PostID: postID})
}

func (s *Session) SetBookmark(ctx context.Context, postID string, bookmarked bool) <-chan error {
	return s.Mutate(ctx, Action{Kind: KindBookmark, PostID: postID, Desired: &bookmarked})
}

func (s *Session) ToggleCommentLike(ctx context.Context, postID, commentID string) <-chan error {
	return s.Mutate(ctx, Action{Kind: KindCommentLike, PostID: postID, CommentID: commentID})
}

func (s *Session) SetCommentLike(ctx context.Context, postID, commentID string, liked bool) <-chan error {
	return s.Mutate(ctx, Action{Kind: KindCommentLike, PostID: postID, CommentID: commentID, Desired: &liked})
}

// snapshot holds the collection references taken before a mutation.
type snapshot struct {
	items    []model.Post
	pending  []model.Post
	comments []model.Comment
}

// Mutate applies a to the local collections before returning, then confirms
// it with the content API. The returned channel yields the outcome exactly
// once. On failure the affected entity is restored from the pre-mutation
// snapshot. Anonymous callers get ErrAuthRequired and the action is parked
// for replay after login.
func (s *Session) Mutate(ctx context.Context, a Action) <-chan error {
	out := make(chan error, 1)
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return settled(out, ErrDisposed)
	}
	desired, found := s.desiredLocked(a)
	if !found && a.Desired == nil {
		s.mu.Unlock()
		return settled(out, errors.Wrap(ErrUnknownTarget, a.key()))
	}
	a.Desired = &desired

	if s.ident.UserID() == "" {
		s.mu.Unlock()
		s.RequireAuth(a)
		return settled(out, ErrAuthRequired)
	}
	key := a.key()
	if s.inflight[key] {
		s.mu.Unlock()
		return settled(out, ErrMutationInFlight)
	}
	snap := snapshot{items: s.items, pending: s.pending, comments: s.comments[a.PostID]}
	s.applyLocked(a, desired)
	s.inflight[key] = true
	gen := s.gen
	s.mu.Unlock()

	metrics.Mutations.WithLabelValues(string(a.Kind)).Inc()
	go func() {
		err := s.send(ctx, a, desired)
		s.mu.Lock()
		if gen == s.gen {
			delete(s.inflight, key)
			if err != nil {
				s.rollbackLocked(a, snap)
			}
		}
		s.mu.Unlock()
		s.settle(ctx, a, desired, err)
		out <- err
		close(out)
	}()
	return out
}

func settled(out chan error, err error) <-chan error {
	out <- err
	close(out)
	return out
}

// desiredLocked resolves the target value for a from local state.
func (s *Session) desiredLocked(a Action) (bool, bool) {
	var current, found bool
	switch a.Kind {
	case KindLike, KindBookmark:
		for _, coll := range [][]model.Post{s.items, s.pending} {
			if p, ok := findPost(coll, a.PostID); ok {
				current, found = p.Liked, true
				if a.Kind == KindBookmark {
					current = p.Bookmarked
				}
				break
			}
		}
	case KindCommentLike:
		if c, ok := comments.Find(s.comments[a.PostID], a.CommentID); ok {
			current, found = c.Liked, true
		}
	}
	if a.Desired != nil {
		return *a.Desired, found
	}
	return !current, found
}

func (s *Session) applyLocked(a Action, desired bool) {
	switch a.Kind {
	case KindLike:
		fn := func(p *model.Post) { p.Liked, p.LikeCount = desired, adjust(p.Liked, desired, p.LikeCount) }
		s.items, _ = updatePost(s.items, a.PostID, fn)
		s.pending, _ = updatePost(s.pending, a.PostID, fn)
	case KindBookmark:
		fn := func(p *model.Post) { p.Bookmarked = desired }
		s.items, _ = updatePost(s.items, a.PostID, fn)
		s.pending, _ = updatePost(s.pending, a.PostID, fn)
	case KindCommentLike:
		if tree, ok := comments.Update(s.comments[a.PostID], a.CommentID, func(c *model.Comment) {
			c.Liked, c.LikeCount = desired, adjust(c.Liked, desired, c.LikeCount)
		}); ok {
			s.comments[a.PostID] = tree
		}
	}
}

// rollbackLocked copies the fields a changed back from the pre-mutation
// record into the current collections. Other fields, and posts merged in
// meanwhile, are left alone: a concurrent mutation of another kind on the
// same entity may already have been confirmed.
func (s *Session) rollbackLocked(a Action, snap snapshot) {
	switch a.Kind {
	case KindLike, KindBookmark:
		restore := func(prev model.Post) func(*model.Post) {
			if a.Kind == KindBookmark {
				return func(dst *model.Post) { dst.Bookmarked = prev.Bookmarked }
			}
			return func(dst *model.Post) { dst.Liked, dst.LikeCount = prev.Liked, prev.LikeCount }
		}
		if p, ok := findPost(snap.items, a.PostID); ok {
			s.items, _ = updatePost(s.items, a.PostID, restore(p))
		}
		if p, ok := findPost(snap.pending, a.PostID); ok {
			s.pending, _ = updatePost(s.pending, a.PostID, restore(p))
		}
	case KindCommentLike:
		if c, ok := comments.Find(snap.comments, a.CommentID); ok {
			if tree, ok := comments.Update(s.comments[a.PostID], a.CommentID, func(dst *model.Comment) {
				dst.Liked, dst.LikeCount = c.Liked, c.LikeCount
			}); ok {
				s.comments[a.PostID] = tree
			}
		}
	}
}

func (s *Session) send(ctx context.Context, a Action, desired bool) error {
	var err error
	switch {
	case a.Kind == KindLike && desired:
		err = s.api.LikePost(ctx, a.PostID)
	case a.Kind == KindLike:
		err = s.api.UnlikePost(ctx, a.PostID)
	case a.Kind == KindBookmark && desired:
		err = s.api.BookmarkPost(ctx, a.PostID)
	case a.Kind == KindBookmark:
		err = s.api.UnbookmarkPost(ctx, a.PostID)
	case a.Kind == KindCommentLike && desired:
		err = s.api.LikeComment(ctx, a.CommentID, a.PostID)
	case a.Kind == KindCommentLike:
		err = s.api.UnlikeComment(ctx, a.CommentID, a.PostID)
	default:
		err = errors.Errorf("unknown mutation kind %q", a.Kind)
	}
	return errors.Wrapf(err, "%s %s", a.Kind, a.target())
}

func (s *Session) settle(ctx context.Context, a Action, desired bool, err error) {
	fields := map[string]any{"kind": string(a.Kind), "target": a.target(), "desired": desired}
	if err != nil {
		metrics.Rollbacks.WithLabelValues(string(a.Kind)).Inc()
		fields["error"] = err.Error()
		logging.Warn("mutation_rollback", fields)
		if s.opts.OnMutationError != nil {
			s.opts.OnMutationError(a, err)
		}
	} else {
		logging.Debug("mutation_ok", fields)
	}
	if s.opts.Recorder != nil {
		rec := MutationRecord{At: s.opts.Now().UTC(), Kind: a.Kind, PostID: a.PostID, Target: a.target(), Desired: desired, Err: err}
		if rerr := s.opts.Recorder.RecordMutation(context.WithoutCancel(ctx), rec); rerr != nil {
			logging.Error("mutation_record_failed", map[string]any{"error": rerr.Error()})
		}
	}
}

func adjust(current, desired bool, count int) int {
	switch {
	case desired && !current:
		return count + 1
	case !desired && current && count > 0:
		return count - 1
	}
	return count
}

func findPost(posts []model.Post, id string) (model.Post, bool) {
	for _, p := range posts {
		if p.ID == id {
			return p, true
		}
	}
	return model.Post{}, false
}

// updatePost returns a copy of posts with fn applied to the post with id.
// posts itself is never modified so earlier snapshots stay valid.
func updatePost(posts []model.Post, id string, fn func(*model.Post)) ([]model.Post, bool) {
	for i := range posts {
		if posts[i].ID == id {
			out := append([]model.Post(nil), posts...)
			fn(&out[i])
			return out, true
		}
	}
	return posts, false
}
