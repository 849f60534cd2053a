package comments

import "studly/internal/model"

// Count returns the number of comments in the tree, replies included.
func Count(tree []model.Comment) int {
	n := 0
	for _, c := range tree {
		n += 1 + Count(c.Replies)
	}
	return n
}

// Find returns the comment with id anywhere in the tree.
func Find(tree []model.Comment, id string) (model.Comment, bool) {
	for _, c := range tree {
		if c.ID == id {
			return c, true
		}
		if found, ok := Find(c.Replies, id); ok {
			return found, true
		}
	}
	return model.Comment{}, false
}

// Update returns a copy of tree with fn applied to the comment with id.
// Only the path to that comment is copied; tree itself is never modified.
func Update(tree []model.Comment, id string, fn func(*model.Comment)) ([]model.Comment, bool) {
	for i := range tree {
		if tree[i].ID == id {
			out := append([]model.Comment(nil), tree...)
			fn(&out[i])
			return out, true
		}
		if replies, ok := Update(tree[i].Replies, id, fn); ok {
			out := append([]model.Comment(nil), tree...)
			out[i].Replies = replies
			return out, true
		}
	}
	return tree, false
}

// Insert adds c under its parent, oldest-first among siblings, or at the
// front of the top level when it has no parent present in the tree.
func Insert(tree []model.Comment, c model.Comment) []model.Comment {
	if c.ParentID != "" {
		if out, ok := Update(tree, c.ParentID, func(p *model.Comment) {
			p.Replies = append(append([]model.Comment(nil), p.Replies...), c)
		}); ok {
			return out
		}
	}
	return append([]model.Comment{c}, tree...)
}
