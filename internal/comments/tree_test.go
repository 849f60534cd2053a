package comments

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studly/internal/model"
)

func ids(cs []model.Comment) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.ID)
	}
	return out
}

func TestBuildTreeFlatPayload(t *testing.T) {
	raws := []model.RawComment{
		{ID: "1", CreatedAt: "2024-01-01 10:00:00"},
		{ID: "2", CreatedAt: "2024-01-01 11:00:00"},
		{ID: "3", ParentID: "1", CreatedAt: "2024-01-01 12:30:00"},
		{ID: "4", ParentID: "1", CreatedAt: "2024-01-01 12:00:00"},
		{ID: "5", ParentID: "4", CreatedAt: "2024-01-01 13:00:00"},
	}
	tree, dropped := BuildTree("p1", raws)
	assert.Zero(t, dropped)
	assert.Equal(t, []string{"2", "1"}, ids(tree), "top level newest first")
	assert.Equal(t, []string{"4", "3"}, ids(tree[1].Replies), "replies oldest first")
	assert.Equal(t, []string{"5"}, ids(tree[1].Replies[0].Replies))
	assert.Equal(t, 5, Count(tree))
	assert.Equal(t, "p1", tree[0].PostID)
}

func TestBuildTreeNestedAndDuplicated(t *testing.T) {
	payload := `[
		{"id": 1, "created_at": "2024-01-01T10:00:00Z", "replies": [
			{"id": 2, "parent_id": 1, "created_at": "2024-01-01T11:00:00Z", "replies": [
				{"id": 3, "created_at": "2024-01-01T12:00:00Z"}
			]}
		]},
		{"id": 2, "parent_id": 1, "created_at": "2024-01-01T11:00:00Z"},
		{"id": 3, "parent_id": 2, "created_at": "2024-01-01T12:00:00Z"}
	]`
	var raws []model.RawComment
	require.NoError(t, json.Unmarshal([]byte(payload), &raws))

	tree, _ := BuildTree("p1", raws)
	require.Equal(t, []string{"1"}, ids(tree))
	require.Equal(t, []string{"2"}, ids(tree[0].Replies))
	require.Equal(t, []string{"3"}, ids(tree[0].Replies[0].Replies))
	assert.Equal(t, "2", tree[0].Replies[0].Replies[0].ParentID, "nested reply inherits its enclosing comment")
	assert.Equal(t, 3, Count(tree))
}

func TestBuildTreeKeepsOrphans(t *testing.T) {
	raws := []model.RawComment{
		{ID: "a", CreatedAt: "2024-01-01 10:00:00"},
		{ID: "b", ParentID: "missing-id", CreatedAt: "2024-01-01 09:00:00"},
	}
	tree, _ := BuildTree("p1", raws)
	assert.Equal(t, []string{"a", "b"}, ids(tree))
	assert.Equal(t, len(raws), Count(tree))
	assert.Equal(t, "missing-id", tree[1].ParentID)
}

func TestBuildTreeBreaksCycles(t *testing.T) {
	raws := []model.RawComment{
		{ID: "a", ParentID: "b", CreatedAt: "2024-01-01 10:00:00"},
		{ID: "b", ParentID: "a", CreatedAt: "2024-01-01 11:00:00"},
		{ID: "c", ParentID: "c", CreatedAt: "2024-01-01 12:00:00"},
		{ID: "d", ParentID: "a", CreatedAt: "2024-01-01 13:00:00"},
	}
	tree, _ := BuildTree("p1", raws)
	// the first comment of the a<->b loop is detached; b stays its reply
	assert.Equal(t, []string{"c", "a"}, ids(tree))
	assert.Equal(t, []string{"b", "d"}, ids(tree[1].Replies))
	assert.Equal(t, "", tree[1].ParentID)
	assert.Equal(t, 4, Count(tree))
}

func TestBuildTreeMalformedTimestampUsesClock(t *testing.T) {
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	b := Builder{Now: func() time.Time { return now }}
	tree, dropped := b.Build("p1", []model.RawComment{
		{ID: "x", CreatedAt: "???"},
		{ID: "y", CreatedAt: "2024-01-01 10:00:00"},
		{Content: "no id", Replies: []model.RawComment{{ID: "z", CreatedAt: "2024-01-01 09:00:00"}}},
	})
	assert.Equal(t, 1, dropped)
	assert.Equal(t, []string{"x", "y", "z"}, ids(tree))
	assert.Equal(t, now, tree[0].CreatedAt)
}

func TestUpdateIsCopyOnWrite(t *testing.T) {
	tree, _ := BuildTree("p1", []model.RawComment{
		{ID: "1", CreatedAt: "2024-01-01 10:00:00"},
		{ID: "2", ParentID: "1", CreatedAt: "2024-01-01 11:00:00"},
	})
	updated, ok := Update(tree, "2", func(c *model.Comment) { c.Liked = true; c.LikeCount++ })
	require.True(t, ok)
	assert.True(t, updated[0].Replies[0].Liked)
	assert.False(t, tree[0].Replies[0].Liked, "original tree untouched")

	got, ok := Find(updated, "2")
	require.True(t, ok)
	assert.Equal(t, 1, got.LikeCount)

	_, ok = Update(tree, "nope", func(*model.Comment) {})
	assert.False(t, ok)
}

func TestInsert(t *testing.T) {
	tree, _ := BuildTree("p1", []model.RawComment{{ID: "1", CreatedAt: "2024-01-01 10:00:00"}})
	tree = Insert(tree, model.Comment{ID: "2", ParentID: "1"})
	tree = Insert(tree, model.Comment{ID: "3"})
	assert.Equal(t, []string{"3", "1"}, ids(tree))
	assert.Equal(t, []string{"2"}, ids(tree[1].Replies))
}
