// Package comments rebuilds comment hierarchies from flat or partially
// nested backend payloads.
package comments

import (
	"sort"
	"time"

	"studly/internal/model"
	"studly/internal/normalize"
)

// Builder turns raw comments into a tree. Now is used for comments whose
// timestamp cannot be parsed.
type Builder struct {
	CurrentUserID string
	Now           func() time.Time
}

// BuildTree is Builder{}.Build with the wall clock.
func BuildTree(postID string, raws []model.RawComment) ([]model.Comment, int) {
	return Builder{}.Build(postID, raws)
}

type node struct {
	c        model.Comment
	order    int
	children []*node
}

// Build flattens every comment regardless of nesting depth, relinks each to
// its parent and returns the top-level comments (newest first) with replies
// sorted oldest first. Comments whose parent is missing from the batch are
// returned at the top level. The second result is the number of raw records
// dropped for lack of an id.
func (b Builder) Build(postID string, raws []model.RawComment) ([]model.Comment, int) {
	now := b.Now
	if now == nil {
		now = time.Now
	}
	nodes := make(map[string]*node)
	var order []*node
	dropped := 0

	var flatten func(rs []model.RawComment, enclosing string)
	flatten = func(rs []model.RawComment, enclosing string) {
		for _, r := range rs {
			c, ok := normalize.NormalizeComment(r, postID, b.CurrentUserID, now)
			if !ok {
				dropped++
				// keep its replies reachable, re-rooted at the enclosing comment
				flatten(r.Replies, enclosing)
				continue
			}
			if c.ParentID == "" && enclosing != "" {
				c.ParentID = enclosing
			}
			if _, seen := nodes[c.ID]; !seen {
				n := &node{c: c, order: len(order)}
				nodes[c.ID] = n
				order = append(order, n)
			}
			flatten(r.Replies, c.ID)
		}
	}
	flatten(raws, "")

	var roots []*node
	for _, n := range order {
		cyclic := loops(nodes, n.c.ID)
		parent, ok := nodes[n.c.ParentID]
		if n.c.ParentID == "" || !ok || cyclic {
			// orphans keep their declared parent id; cyclic links are cut
			if cyclic {
				n.c.ParentID = ""
			}
			roots = append(roots, n)
			continue
		}
		parent.children = append(parent.children, n)
	}

	sortNodes(roots, true)
	out := make([]model.Comment, 0, len(roots))
	for _, r := range roots {
		out = append(out, materialize(r))
	}
	return out, dropped
}

// loops reports whether following parent links from id leads back to id.
func loops(nodes map[string]*node, id string) bool {
	seen := map[string]bool{id: true}
	cur := nodes[id]
	for cur != nil && cur.c.ParentID != "" {
		if seen[cur.c.ParentID] {
			return cur.c.ParentID == id
		}
		seen[cur.c.ParentID] = true
		cur = nodes[cur.c.ParentID]
	}
	return false
}

func sortNodes(ns []*node, newestFirst bool) {
	sort.SliceStable(ns, func(i, j int) bool {
		a, b := ns[i].c.CreatedAt, ns[j].c.CreatedAt
		if !a.Equal(b) {
			if newestFirst {
				return a.After(b)
			}
			return a.Before(b)
		}
		return ns[i].order < ns[j].order
	})
	for _, n := range ns {
		sortNodes(n.children, false)
	}
}

func materialize(n *node) model.Comment {
	c := n.c
	c.Replies = nil
	if len(n.children) > 0 {
		c.Replies = make([]model.Comment, 0, len(n.children))
		for _, ch := range n.children {
			c.Replies = append(c.Replies, materialize(ch))
		}
	}
	return c
}
