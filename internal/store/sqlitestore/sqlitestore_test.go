package sqlitestore

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studly/internal/feed"
	"studly/internal/model"
)

func openMem(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCursors(t *testing.T) {
	db := openMem(t)
	ctx := context.Background()

	v, err := db.LoadCursor(ctx, "feed:u1")
	require.NoError(t, err)
	assert.Equal(t, "", v)

	require.NoError(t, db.SaveCursor(ctx, "feed:u1", "personalized:3"))
	require.NoError(t, db.SaveCursor(ctx, "feed:u1", "discovery:1"))
	v, err = db.LoadCursor(ctx, "feed:u1")
	require.NoError(t, err)
	assert.Equal(t, "discovery:1", v)
}

func TestMutationLedger(t *testing.T) {
	db := openMem(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.RecordMutation(ctx, feed.MutationRecord{At: now, Kind: feed.KindLike, PostID: "p1", Target: "p1", Desired: true}))
	require.NoError(t, db.RecordMutation(ctx, feed.MutationRecord{At: now.Add(time.Second), Kind: feed.KindCommentLike, PostID: "p1", Target: "c9", Desired: false, Err: errors.New("503")}))

	n, err := db.CountMutationsWithin(ctx, now.Add(-time.Hour), now.Add(time.Hour), "", false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = db.CountMutationsWithin(ctx, now.Add(-time.Hour), now.Add(time.Hour), feed.KindLike, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = db.CountMutationsWithin(ctx, now.Add(-time.Hour), now.Add(time.Hour), "", true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	recent, err := db.RecentMutations(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, Mutation{At: now.Add(time.Second), Kind: feed.KindCommentLike, PostID: "p1", Target: "c9", Error: "503"}, recent[0])
	assert.True(t, recent[1].Desired)
	assert.Empty(t, recent[1].Error)
}

func TestPostCacheReplacesPreviousSnapshot(t *testing.T) {
	db := openMem(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	posts, cachedAt, err := db.LoadPosts(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, posts)
	assert.True(t, cachedAt.IsZero())

	first := []model.Post{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	require.NoError(t, db.SavePosts(ctx, "u1", first, at))
	second := []model.Post{
		{ID: "z", Content: "hi #go", Tags: []string{"go"}, LikeCount: 3, Liked: true, CreatedAt: at.Add(-time.Hour),
			Author: model.Author{ID: "9", Username: "ada", DisplayName: "Ada"}},
		{ID: "a"},
	}
	require.NoError(t, db.SavePosts(ctx, "u1", second, at.Add(time.Minute)))

	posts, cachedAt, err = db.LoadPosts(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, second, posts)
	assert.Equal(t, at.Add(time.Minute), cachedAt)

	other, _, err := db.LoadPosts(ctx, "anon")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestRecorderWiredIntoSession(t *testing.T) {
	db := openMem(t)
	api := &stubAPI{}
	s := feed.NewSession(api, feed.NewIdentity("u1"), feed.Options{Recorder: db})
	ctx := context.Background()
	require.NoError(t, <-s.SetLike(ctx, "p1", true))

	recent, err := db.RecentMutations(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "p1", recent[0].PostID)
	assert.Equal(t, []string{"like:p1"}, api.calls)
}
