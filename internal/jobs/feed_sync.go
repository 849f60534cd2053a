package jobs

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"studly/internal/feed"
	"studly/internal/logging"
	"studly/internal/model"
	"studly/internal/store/sqlitestore"
)

// CacheKey names the cached feed of a viewer; anonymous viewers share one.
func CacheKey(userID string) string {
	if userID == "" {
		return "feed:anonymous"
	}
	return "feed:" + userID
}

// SyncResult summarizes one SyncFeed run.
type SyncResult struct {
	Pages int
	Items int
	Mode  model.Mode
}

// SyncFeed initializes s, pages forward up to pages pages and caches the
// visible items with the pager position under key.
func SyncFeed(ctx context.Context, s *feed.Session, db *sqlitestore.DB, key string, pages int) (SyncResult, error) {
	if err := s.Initialize(ctx); err != nil {
		return SyncResult{}, errors.Wrap(err, "initialize feed")
	}
	res := SyncResult{Pages: 1}
	for res.Pages < pages {
		if !s.State().HasMore {
			break
		}
		if err := s.LoadMore(ctx); err != nil {
			// keep what was loaded so far
			logging.Warn("feed_sync_partial", map[string]any{"pages": res.Pages, "error": err.Error()})
			break
		}
		res.Pages++
	}
	st := s.State()
	res.Items, res.Mode = len(st.Items), st.Mode
	if err := saveSnapshot(ctx, db, key, st); err != nil {
		return res, err
	}
	logging.Info("feed_sync", map[string]any{"key": key, "pages": res.Pages, "items": res.Items, "mode": string(res.Mode)})
	return res, nil
}

// RunWatch applies queued background posts every interval, hands the added
// posts to onNew and refreshes the cache, until ctx is cancelled. The
// session's own poller must be running for anything to be queued.
func RunWatch(ctx context.Context, s *feed.Session, db *sqlitestore.DB, key string, interval time.Duration, onNew func([]model.Post)) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			logging.Info("feed_watch_stop", nil)
			return ctx.Err()
		case <-t.C:
			if err := applyOnce(ctx, s, db, key, onNew); err != nil {
				logging.Error("feed_watch_error", map[string]any{"error": err.Error()})
			}
		}
	}
}

func applyOnce(ctx context.Context, s *feed.Session, db *sqlitestore.DB, key string, onNew func([]model.Post)) error {
	if !s.State().HasNewPosts {
		return nil
	}
	added := s.ApplyBackground()
	if len(added) > 0 && onNew != nil {
		onNew(added)
	}
	return saveSnapshot(ctx, db, key, s.State())
}

func saveSnapshot(ctx context.Context, db *sqlitestore.DB, key string, st feed.State) error {
	if db == nil {
		return nil
	}
	if err := db.SavePosts(ctx, key, st.Items, time.Now().UTC()); err != nil {
		return errors.Wrap(err, "cache feed")
	}
	return errors.Wrap(db.SaveCursor(ctx, key, fmt.Sprintf("%s:%d", st.Mode, st.Cursor)), "save feed cursor")
}

// Snapshot is a cached feed as written by SyncFeed and RunWatch.
type Snapshot struct {
	Posts    []model.Post
	CachedAt time.Time
	Mode     model.Mode
	Cursor   int
}

// LoadSnapshot reads the cached feed and pager position under key. CachedAt
// is zero when nothing was cached.
func LoadSnapshot(ctx context.Context, db *sqlitestore.DB, key string) (Snapshot, error) {
	posts, at, err := db.LoadPosts(ctx, key)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "load cached feed")
	}
	snap := Snapshot{Posts: posts, CachedAt: at}
	raw, err := db.LoadCursor(ctx, key)
	if err != nil {
		return snap, errors.Wrap(err, "load feed cursor")
	}
	if raw == "" {
		return snap, nil
	}
	mode, page, ok := strings.Cut(raw, ":")
	n, perr := strconv.Atoi(page)
	if !ok || perr != nil {
		return snap, errors.Errorf("malformed feed cursor %q", raw)
	}
	snap.Mode, snap.Cursor = model.Mode(mode), n
	return snap, nil
}
