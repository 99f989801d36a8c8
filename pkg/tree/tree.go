// Package tree provides the lazily materialized directory tree cache and
// helpers for walking partially loaded trees.
package tree

import (
	"github.com/sly67/treedesk/pkg/models"
)

// Find resolves a path against a root sequence. The root path has no node
// and returns false.
func Find(nodes []*models.Node, p models.Path) (*models.Node, bool) {
	var found *models.Node
	level := nodes
	for _, name := range p.Directories() {
		found = nil
		for _, n := range level {
			if n.Name == name {
				found = n
				break
			}
		}
		if found == nil {
			return nil, false
		}
		level = found.Children
	}
	return found, found != nil
}

// Count counts all materialized nodes.
func Count(nodes []*models.Node) int {
	count := 0
	for _, n := range nodes {
		count += 1 + Count(n.Children)
	}
	return count
}

// WalkFunc is called for every materialized node with the path of the
// directory that contains it. Returning false skips the node's children.
type WalkFunc func(parent models.Path, n *models.Node) bool

// Walk visits nodes depth-first in listing order.
func Walk(nodes []*models.Node, fn WalkFunc) {
	walk(models.Root, nodes, fn)
}

func walk(parent models.Path, nodes []*models.Node, fn WalkFunc) {
	for _, n := range nodes {
		if !fn(parent, n) || !n.IsDir() {
			continue
		}
		child, err := parent.Append(n.Name)
		if err != nil {
			continue
		}
		walk(child, n.Children, fn)
	}
}

// Flatten returns all materialized nodes keyed by full path.
func Flatten(nodes []*models.Node) map[string]*models.Node {
	result := make(map[string]*models.Node)
	Walk(nodes, func(parent models.Path, n *models.Node) bool {
		p, err := parent.Append(n.Name)
		if err == nil {
			result[p.FullPath()] = n
		}
		return true
	})
	return result
}
