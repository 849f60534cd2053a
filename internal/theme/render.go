package theme

import (
	"fmt"
	"io"
	"strings"
	"time"

	"studly/internal/model"
)

// Plain disables ANSI colors in the render helpers.
var Plain = false

func paint(color, s string) string {
	if Plain {
		return s
	}
	return color + s + reset
}

// PostLine renders a post as a single line for feed listings.
func PostLine(p model.Post) string {
	marks := ""
	if p.Liked {
		marks += "♥"
	}
	if p.Bookmarked {
		marks += "★"
	}
	content := strings.ReplaceAll(p.Content, "\n", " ")
	if len([]rune(content)) > 80 {
		content = string([]rune(content)[:79]) + "…"
	}
	return fmt.Sprintf("%s %s %s likes=%d comments=%d %s",
		paint(dim, p.ID), paint(magenta, "@"+p.Author.Username), content, p.LikeCount, p.CommentCount, marks)
}

// PrintPosts writes one line per post.
func PrintPosts(w io.Writer, posts []model.Post) {
	for _, p := range posts {
		fmt.Fprintln(w, PostLine(p))
	}
}

// PrintComments writes a comment tree, indenting replies by depth.
func PrintComments(w io.Writer, tree []model.Comment) {
	printComments(w, tree, 0)
}

func printComments(w io.Writer, tree []model.Comment, depth int) {
	for _, c := range tree {
		liked := ""
		if c.Liked {
			liked = " ♥"
		}
		fmt.Fprintf(w, "%s%s %s %s (%d)%s\n", strings.Repeat("  ", depth),
			paint(cyan, "@"+c.Author.Username), c.Content, paint(dim, c.CreatedAt.Format(time.DateTime)), c.LikeCount, liked)
		printComments(w, c.Replies, depth+1)
	}
}
