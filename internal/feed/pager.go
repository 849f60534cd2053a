package feed

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"studly/internal/logging"
	"studly/internal/metrics"
	"studly/internal/model"
	"studly/internal/normalize"
	"studly/internal/studlyapi"
)

type pageResult struct {
	items     []model.Post
	mode      model.Mode
	cursor    int
	hasMore   bool
	exhausted bool
}

// Initialize loads the first page for the current identity. Calls made while
// an initialization is already running return immediately. On failure the
// previously visible items are kept and the session moves to error.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	if s.state == model.StateLoading {
		s.mu.Unlock()
		return nil
	}
	if s.ident.UserID() != s.user {
		s.resetLocked()
	}
	s.state = model.StateLoading
	s.initSeq++
	s.lastErr = nil
	mode := modeFor(s.user)
	gen, user := s.gen, s.user
	ctx, cancel := s.scoped(ctx)
	s.mu.Unlock()
	defer cancel()

	res, err := s.firstPage(ctx, mode, user)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return ErrSessionReset
	}
	if err != nil {
		return s.failLocked(opInit, err)
	}
	s.items = res.items
	s.mode = res.mode
	s.cursor = res.cursor
	s.hasMore = res.hasMore
	s.exhausted = res.exhausted
	s.pending = nil
	s.hasNew = false
	s.state = model.StateReady
	s.failedOp = opNone
	n := len(s.items)
	s.mu.Unlock()

	logging.Info("feed_initialize_ok", map[string]any{"mode": string(res.mode), "items": n, "exhausted": res.exhausted})
	return nil
}

func (s *Session) firstPage(ctx context.Context, mode model.Mode, user string) (pageResult, error) {
	if mode == model.ModeDiscovery {
		batch, err := s.fetchPage(ctx, model.ModeDiscovery, 1, user)
		if err != nil {
			return pageResult{}, err
		}
		return pageResult{items: batch, mode: mode, cursor: 1, hasMore: len(batch) >= s.opts.PageSize}, nil
	}

	personal, err := s.fetchPage(ctx, model.ModePersonalized, 1, user)
	if err != nil {
		return pageResult{}, err
	}
	if len(personal) >= s.opts.PageSize || len(personal) >= s.opts.MinViable {
		return pageResult{items: personal, mode: mode, cursor: 1, hasMore: true}, nil
	}

	// under-filled: personalized is exhausted for the rest of the session
	metrics.ModeSwitches.Inc()
	logging.Info("feed_personalized_exhausted", map[string]any{"count": len(personal), "min_viable": s.opts.MinViable})
	discovery, err := s.fetchPage(ctx, model.ModeDiscovery, 1, user)
	if err != nil {
		if errors.Is(err, studlyapi.ErrIdentityGone) || errors.Is(err, context.Canceled) {
			return pageResult{}, err
		}
		// keep what we have; the next loadMore retries discovery page 1
		logging.Warn("feed_backfill_failed", map[string]any{"error": err.Error()})
		return pageResult{items: personal, mode: model.ModeDiscovery, cursor: 0, hasMore: true, exhausted: true}, nil
	}
	return pageResult{
		items:     mergeUnique(personal, discovery),
		mode:      model.ModeDiscovery,
		cursor:    1,
		hasMore:   len(discovery) >= s.opts.PageSize,
		exhausted: true,
	}, nil
}

// LoadMore fetches the next page of the current mode and appends the posts
// not already visible. It is a no-op unless the session is ready and more
// data is known to exist. An empty personalized page switches the session
// to discovery, whose pages are numbered from 1. The result is dropped when
// Initialize is called before the page arrives.
func (s *Session) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	if s.state != model.StateReady || !s.hasMore {
		s.mu.Unlock()
		return nil
	}
	s.state = model.StateLoadingMore
	mode, next := s.mode, s.cursor+1
	gen, seq, user := s.gen, s.initSeq, s.user
	ctx, cancel := s.scoped(ctx)
	s.mu.Unlock()
	defer cancel()

	batch, err := s.fetchPage(ctx, mode, next, user)
	switched := false
	if err == nil && mode == model.ModePersonalized && len(batch) == 0 {
		switched = true
		mode, next = model.ModeDiscovery, 1
		batch, err = s.fetchPage(ctx, mode, next, user)
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return ErrSessionReset
	}
	if seq != s.initSeq {
		// an initialize started meanwhile and owns the state now
		s.mu.Unlock()
		logging.Debug("feed_load_more_superseded", map[string]any{"mode": string(mode), "page": next})
		return nil
	}
	if switched {
		s.mode = model.ModeDiscovery
		s.exhausted = true
		s.cursor = 0
		metrics.ModeSwitches.Inc()
	}
	if err != nil {
		return s.failLocked(opMore, err)
	}
	before := len(s.items)
	s.items = mergeUnique(s.items, batch)
	s.cursor = next
	s.hasMore = len(batch) >= s.opts.PageSize || (s.mode == model.ModePersonalized && !s.exhausted)
	s.state = model.StateReady
	s.failedOp = opNone
	added := len(s.items) - before
	s.mu.Unlock()

	logging.Debug("feed_load_more_ok", map[string]any{"mode": string(mode), "page": next, "added": added})
	return nil
}

// Retry re-runs whichever operation moved the session to error.
func (s *Session) Retry(ctx context.Context) error {
	s.mu.Lock()
	if s.state != model.StateError {
		s.mu.Unlock()
		return nil
	}
	failed := s.failedOp
	if failed == opMore {
		s.state = model.StateReady
	}
	s.mu.Unlock()

	if failed == opMore {
		return s.LoadMore(ctx)
	}
	return s.Initialize(ctx)
}

// failLocked records a failed fetch and unlocks s.mu.
func (s *Session) failLocked(failed op, err error) error {
	switch {
	case errors.Is(err, studlyapi.ErrIdentityGone):
		s.mu.Unlock()
		s.handleIdentityGone(err)
		return err
	case errors.Is(err, context.Canceled):
		// cancelled by the caller: back to the last stable state
		if failed == opMore || len(s.items) > 0 {
			s.state = model.StateReady
		} else {
			s.state = model.StateIdle
		}
		s.mu.Unlock()
		return err
	}
	s.state = model.StateError
	s.lastErr = err
	s.failedOp = failed
	s.mu.Unlock()
	logging.Warn("feed_fetch_failed", map[string]any{"error": err.Error(), "transient": studlyapi.IsTransient(err)})
	return err
}

// fetchPage fetches and normalizes one page of mode, dropping records
// without an id and repeated ids within the page.
func (s *Session) fetchPage(ctx context.Context, mode model.Mode, page int, user string) ([]model.Post, error) {
	start := time.Now()
	var raws []model.RawPost
	var err error
	if mode == model.ModePersonalized {
		raws, err = s.api.GetFeed(ctx, s.opts.PageSize, page)
	} else {
		raws, err = s.api.GetPosts(ctx, s.opts.PageSize, page)
	}
	metrics.ObserveFetch(string(mode), start, err)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s page %d", mode, page)
	}
	posts, dropped := normalize.NormalizePosts(raws, user)
	if dropped > 0 {
		metrics.IncDropped("post", dropped)
		logging.Warn("feed_records_dropped", map[string]any{"mode": string(mode), "page": page, "dropped": dropped})
	}
	return mergeUnique(nil, posts), nil
}

// mergeUnique returns a new slice holding base followed by the posts of
// batch whose id is not already present.
func mergeUnique(base, batch []model.Post) []model.Post {
	seen := make(map[string]struct{}, len(base)+len(batch))
	out := make([]model.Post, 0, len(base)+len(batch))
	for _, p := range base {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	for _, p := range batch {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}
