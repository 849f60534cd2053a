package feed

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"studly/internal/logging"
	"studly/internal/metrics"
	"studly/internal/model"
	"studly/internal/schedule"
	"studly/internal/studlyapi"
)

type poller struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (p *poller) stop() {
	p.once.Do(p.cancel)
	<-p.done
}

// Start runs background refresh on the configured interval until ctx is
// cancelled or the session is disposed. Starting twice is a no-op.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.disposed || s.poller != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &poller{cancel: cancel, done: make(chan struct{})}
	s.poller = p
	s.mu.Unlock()

	go func() {
		defer close(p.done)
		s.pollLoop(ctx)
	}()
}

// Stop halts the background poller started by Start.
func (s *Session) Stop() {
	s.mu.Lock()
	p := s.poller
	s.poller = nil
	s.mu.Unlock()
	if p != nil {
		p.stop()
	}
}

func (s *Session) pollLoop(ctx context.Context) {
	t := time.NewTimer(schedule.NextPoll(s.opts.PollInterval, s.opts.PollJitter, nil))
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			logging.Info("feed_poll_stop", nil)
			return
		case <-t.C:
			if _, err := s.PollOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logging.Error("feed_poll_error", map[string]any{"error": err.Error()})
			}
			t.Reset(schedule.NextPoll(s.opts.PollInterval, s.opts.PollJitter, nil))
		}
	}
}

// PollOnce runs a single background refresh: page 1 of the active mode is
// fetched and posts not already visible or pending are queued. Visible items
// are never touched. It returns how many posts were newly queued.
func (s *Session) PollOnce(ctx context.Context) (int, error) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return 0, ErrDisposed
	}
	if s.state == model.StateIdle || s.state == model.StateLoading {
		s.mu.Unlock()
		return 0, nil
	}
	mode, gen, user := s.mode, s.gen, s.user
	ctx, cancel := s.scoped(ctx)
	s.mu.Unlock()
	defer cancel()

	metrics.BackgroundPolls.Inc()
	batch, err := s.fetchPage(ctx, mode, 1, user)
	if err != nil {
		if errors.Is(err, studlyapi.ErrIdentityGone) {
			s.handleIdentityGone(err)
		}
		return 0, err
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return 0, ErrSessionReset
	}
	known := idSet(s.items, s.pending)
	var fresh []model.Post
	for _, p := range batch {
		if _, ok := known[p.ID]; !ok {
			fresh = append(fresh, p)
		}
	}
	if len(fresh) > 0 {
		s.pending = mergeUnique(fresh, s.pending)
		s.hasNew = true
	}
	metrics.BackgroundPending.Set(float64(len(s.pending)))
	s.mu.Unlock()

	if len(fresh) > 0 {
		logging.Info("feed_new_posts", map[string]any{"count": len(fresh), "mode": string(mode)})
		if s.opts.OnNewPosts != nil {
			s.opts.OnNewPosts(len(fresh))
		}
	}
	return len(fresh), nil
}

// ApplyBackground moves queued posts to the front of the visible items,
// skipping any that became visible since they were fetched, and clears the
// queue. It returns the posts added, in display order.
func (s *Session) ApplyBackground() []model.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		s.hasNew = false
		return nil
	}
	visible := idSet(s.items)
	fresh := make([]model.Post, 0, len(s.pending))
	for _, p := range s.pending {
		if _, ok := visible[p.ID]; !ok {
			fresh = append(fresh, p)
		}
	}
	s.items = mergeUnique(fresh, s.items)
	s.pending = nil
	s.hasNew = false
	metrics.BackgroundPending.Set(0)
	return fresh
}

// Pending returns the queued background posts.
func (s *Session) Pending() []model.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Post(nil), s.pending...)
}

func idSet(collections ...[]model.Post) map[string]struct{} {
	out := make(map[string]struct{})
	for _, c := range collections {
		for _, p := range c {
			out[p.ID] = struct{}{}
		}
	}
	return out
}
