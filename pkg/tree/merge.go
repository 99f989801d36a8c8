package tree

import (
	"github.com/sly67/treedesk/pkg/models"
)

// ReplaceChildrenAt returns a tree in which the directory at p has exactly
// children as its listing. The input is never modified.
//
// Only the directories along p are copied; every other node in the result
// is the same pointer as in nodes. If p is the root the children become the
// new root sequence. A segment that names nothing, or names a file, leaves
// that level unchanged, and if nothing matched at all the input slice itself
// is returned.
func ReplaceChildrenAt(nodes []*models.Node, p models.Path, children []*models.Node) []*models.Node {
	if children == nil {
		children = []*models.Node{}
	}
	if p.IsRoot() {
		return children
	}
	out, _ := replaceAt(nodes, p.Directories(), children)
	return out
}

func replaceAt(nodes []*models.Node, segments []string, children []*models.Node) ([]*models.Node, bool) {
	head := segments[0]
	var out []*models.Node
	for i, n := range nodes {
		if n.Name != head {
			continue
		}

		var updated *models.Node
		switch n.Kind {
		case models.KindDirectory:
			if len(segments) == 1 {
				cp := *n
				cp.Children = children
				updated = &cp
			} else if n.Children != nil {
				// Unloaded directories are walked as empty: nothing below
				// them can match and their load state is left alone.
				sub, changed := replaceAt(n.Children, segments[1:], children)
				if changed {
					cp := *n
					cp.Children = sub
					updated = &cp
				}
			}
		case models.KindFile:
			// Stale path: a file sits where a directory was expected.
		}

		if updated == nil {
			continue
		}
		if out == nil {
			out = make([]*models.Node, len(nodes))
			copy(out, nodes)
		}
		out[i] = updated
	}
	if out == nil {
		return nodes, false
	}
	return out, true
}
