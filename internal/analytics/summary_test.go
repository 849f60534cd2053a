package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studly/internal/feed"
	"studly/internal/store/sqlitestore"
)

func TestSummarizeCountsRollbacksInWindow(t *testing.T) {
	db, err := sqlitestore.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, r := range []feed.MutationRecord{
		{At: base.Add(-48 * time.Hour), Kind: feed.KindLike, PostID: "old", Target: "old", Desired: true},
		{At: base.Add(time.Minute), Kind: feed.KindLike, PostID: "p1", Target: "p1", Desired: true},
		{At: base.Add(2 * time.Minute), Kind: feed.KindBookmark, PostID: "p1", Target: "p1", Desired: true, Err: errors.New("503")},
	} {
		require.NoError(t, db.RecordMutation(ctx, r))
	}

	sum, err := Summarize(ctx, db, base.Add(-time.Hour), base.Add(time.Hour), 100)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, 1, sum.RolledBack)
	assert.Equal(t, map[time.Time]map[string]int{base: {"like": 1, "bookmark_failed": 1}}, sum.Hourly)
}
