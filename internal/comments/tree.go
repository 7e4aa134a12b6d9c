// Package comments turns the flat comment table into the nested thread
// shape the API serves: root comments newest-first, each carrying its reply
// chain oldest-first, with reactions, attachments, and quoted comments
// resolved in memory from single-query fetches.
package comments

import (
	"sort"

	"taskboard/internal/store"
)

// Node is one comment with its display relations resolved.
type Node struct {
	Comment     store.Comment
	Reactions   []store.Reaction
	Attachments []store.Attachment
	Quoted      *store.Comment
	Replies     []*Node
}

// TreeInput is the raw material for one task's thread forest. Comments must
// already be filtered to live rows; reactions and attachments may reference
// any of them.
type TreeInput struct {
	Comments    []store.Comment
	Reactions   []store.Reaction
	Attachments []store.Attachment
}

// BuildForest groups the flat rows by parent id and assembles the forest
// iteratively, so reply depth is unbounded and no recursive fetches happen.
//
// A reply whose parent is missing from the input (the parent was soft
// deleted) is left out of the forest entirely: the subtree is hidden from
// the listing, though each row stays individually fetchable with its
// original parent id.
func BuildForest(in TreeInput) []*Node {
	nodes := make(map[string]*Node, len(in.Comments))
	byID := make(map[string]store.Comment, len(in.Comments))
	for i := range in.Comments {
		comment := in.Comments[i]
		byID[comment.ID] = comment
		nodes[comment.ID] = &Node{
			Comment:     comment,
			Reactions:   []store.Reaction{},
			Attachments: []store.Attachment{},
			Replies:     []*Node{},
		}
	}

	for _, reaction := range in.Reactions {
		if node, ok := nodes[reaction.CommentID]; ok {
			node.Reactions = append(node.Reactions, reaction)
		}
	}
	for _, attachment := range in.Attachments {
		if node, ok := nodes[attachment.CommentID]; ok {
			node.Attachments = append(node.Attachments, attachment)
		}
	}

	roots := make([]*Node, 0)
	for _, comment := range in.Comments {
		node := nodes[comment.ID]
		if quotedID := comment.QuotedCommentID; quotedID != nil {
			if quoted, ok := byID[*quotedID]; ok {
				node.Quoted = &quoted
			}
		}
		if comment.ParentID == nil {
			roots = append(roots, node)
			continue
		}
		parent, ok := nodes[*comment.ParentID]
		if !ok {
			// Orphaned reply of a deleted parent: excluded from display.
			continue
		}
		parent.Replies = append(parent.Replies, node)
	}

	// Replies inherit the input's chronological order; roots flip to
	// newest-first for the feed view.
	sort.SliceStable(roots, func(i, j int) bool {
		a, b := roots[i].Comment, roots[j].Comment
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	return roots
}

// ThreadAnchor computes the thread id for a reply to parent: the parent's
// own thread anchor when the parent is itself a reply, else the parent's id.
// This flattens arbitrarily deep chains onto the root comment's id.
func ThreadAnchor(parent store.Comment) string {
	if parent.ThreadID != nil {
		return *parent.ThreadID
	}
	return parent.ID
}
