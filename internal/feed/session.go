// Package feed implements the feed synchronization engine: a paginated
// personalized/discovery stream, a background refresh queue that never
// reorders visible content on its own, and optimistic mutations with
// rollback.
package feed

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"studly/internal/config"
	"studly/internal/logging"
	"studly/internal/metrics"
	"studly/internal/model"
	"studly/internal/studlyapi"
)

var (
	ErrDisposed         = errors.New("feed session disposed")
	ErrSessionReset     = errors.New("feed session was reset while the request was in flight")
	ErrAuthRequired     = errors.New("authentication required")
	ErrMutationInFlight = errors.New("a mutation on this entity is already in flight")
	ErrUnknownTarget    = errors.New("mutation target not found in session")
	ErrMalformedRecord  = errors.New("record has no resolvable id")
)

// Options tunes a Session. Zero values pick the defaults from config.Default;
// PageSize is capped at config.MaxPageSize.
type Options struct {
	PageSize     int
	MinViable    int
	PollInterval time.Duration
	PollJitter   float64

	Recorder Recorder
	// OnAuthRequired fires when an anonymous user asks for a mutation.
	OnAuthRequired func(Action)
	// OnNewPosts fires after a background poll finds posts not yet visible.
	OnNewPosts func(n int)
	// OnMutationError is the transient notification for a rolled-back mutation.
	OnMutationError func(Action, error)
	Now             func() time.Time
}

// OptionsFromConfig maps the feed section of the config file.
func OptionsFromConfig(c config.FeedConfig) Options {
	return Options{
		PageSize:     c.PageSize,
		MinViable:    c.MinViable,
		PollInterval: c.PollInterval(),
		PollJitter:   c.PollJitter,
	}
}

func (o Options) withDefaults() Options {
	d := config.Default().Feed
	if o.PageSize <= 0 {
		o.PageSize = d.PageSize
	}
	o.PageSize = min(o.PageSize, config.MaxPageSize)
	if o.MinViable <= 0 {
		o.MinViable = min(d.MinViable, o.PageSize)
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type op int

const (
	opNone op = iota
	opInit
	opMore
)

// State is a read-only snapshot of the session for view code.
type State struct {
	Items        []model.Post
	Mode         model.Mode
	Cursor       int
	LoadingState model.LoadingState
	HasMore      bool
	Exhausted    bool
	Pending      int
	HasNewPosts  bool
	AuthPrompt   bool
	LastError    error
}

// Session holds the feed state for one viewer. All methods are safe for
// concurrent use; network calls run without the lock held.
type Session struct {
	api   studlyapi.ContentAPI
	ident Identity
	opts  Options

	mu         sync.Mutex
	user       string
	gen        uint64
	initSeq    uint64
	life       context.Context
	cancelLife context.CancelFunc
	disposed   bool

	items     []model.Post
	mode      model.Mode
	cursor    int
	state     model.LoadingState
	hasMore   bool
	exhausted bool
	lastErr   error
	failedOp  op

	pending []model.Post
	hasNew  bool

	comments map[string][]model.Comment
	inflight map[string]bool

	pendingAction *Action
	authPrompt    bool

	poller *poller
}

// NewSession creates a session for whoever ident currently reports.
func NewSession(api studlyapi.ContentAPI, ident Identity, opts Options) *Session {
	if ident == nil {
		ident = NewIdentity("")
	}
	s := &Session{api: api, ident: ident, opts: opts.withDefaults()}
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
	return s
}

// State returns a snapshot of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Items:        append([]model.Post(nil), s.items...),
		Mode:         s.mode,
		Cursor:       s.cursor,
		LoadingState: s.state,
		HasMore:      s.hasMore,
		Exhausted:    s.exhausted,
		Pending:      len(s.pending),
		HasNewPosts:  s.hasNew,
		AuthPrompt:   s.authPrompt,
		LastError:    s.lastErr,
	}
}

// Items returns the visible posts in display order.
func (s *Session) Items() []model.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Post(nil), s.items...)
}

// Reset discards all feed state and cancels in-flight fetches. The pending
// auth action survives so it can be replayed after login.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Session) resetLocked() {
	if s.cancelLife != nil {
		s.cancelLife()
	}
	s.life, s.cancelLife = context.WithCancel(context.Background())
	s.gen++
	s.user = s.ident.UserID()
	s.items = nil
	s.mode = modeFor(s.user)
	s.cursor = 0
	s.state = model.StateIdle
	s.hasMore = false
	s.exhausted = false
	s.lastErr = nil
	s.failedOp = opNone
	s.pending = nil
	s.hasNew = false
	s.comments = make(map[string][]model.Comment)
	s.inflight = make(map[string]bool)
	metrics.BackgroundPending.Set(0)
}

// IdentityChanged resets the session for the identity now reported and, if
// that identity is authenticated, replays the pending auth action. The
// returned channel carries the replay outcome; it is nil when nothing was
// replayed.
func (s *Session) IdentityChanged(ctx context.Context) <-chan error {
	s.mu.Lock()
	s.resetLocked()
	var replay *Action
	if s.user != "" && s.pendingAction != nil {
		replay = s.pendingAction
		s.pendingAction = nil
		s.authPrompt = false
	}
	user := s.user
	s.mu.Unlock()

	logging.Info("feed_identity_changed", map[string]any{"authenticated": user != "", "replay": replay != nil})
	if replay == nil {
		return nil
	}
	return s.Mutate(ctx, *replay)
}

// Dispose stops the background poller and cancels in-flight fetches. The
// session cannot be used afterwards.
func (s *Session) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.cancelLife()
	p := s.poller
	s.poller = nil
	s.mu.Unlock()
	if p != nil {
		p.stop()
	}
}

// scoped derives a context that is also cancelled when the session resets.
func (s *Session) scoped(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.life, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// handleIdentityGone logs the user out and wipes the session.
func (s *Session) handleIdentityGone(err error) {
	logging.Warn("feed_identity_gone", map[string]any{"error": err.Error()})
	s.ident.ForceLogout()
	s.mu.Lock()
	s.resetLocked()
	s.pendingAction = nil
	s.authPrompt = false
	s.mu.Unlock()
}

func modeFor(user string) model.Mode {
	if user != "" {
		return model.ModePersonalized
	}
	return model.ModeDiscovery
}
