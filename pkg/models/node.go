// Package models contains the tree and path types shared by the server,
// the HTTP client and the workspace core.
package models

import "fmt"

// Kind discriminates the two node variants.
type Kind string

const (
	KindFile      Kind = "file"
	KindDirectory Kind = "directory"
)

// ParseKind validates a wire value.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindFile:
		return KindFile, nil
	case KindDirectory:
		return KindDirectory, nil
	default:
		return "", fmt.Errorf("invalid node type %q: use %q or %q", s, KindFile, KindDirectory)
	}
}

// Node is a file or directory in the cached tree.
//
// For directories, a nil Children slice means the listing has not been
// loaded yet. A non-nil slice, even an empty one, means it has. Files never
// carry children. Nodes held by a tree.Cache are shared between snapshots
// and must not be mutated.
type Node struct {
	Kind     Kind    `json:"type"`
	Name     string  `json:"name"`
	Children []*Node `json:"children,omitempty"`
}

// NewFile returns a file node.
func NewFile(name string) *Node {
	return &Node{Kind: KindFile, Name: name}
}

// NewDirectory returns a directory whose children are not loaded.
func NewDirectory(name string) *Node {
	return &Node{Kind: KindDirectory, Name: name}
}

// NewLoadedDirectory returns a directory with a loaded (possibly empty)
// children list.
func NewLoadedDirectory(name string, children ...*Node) *Node {
	if children == nil {
		children = []*Node{}
	}
	return &Node{Kind: KindDirectory, Name: name, Children: children}
}

// IsDir reports whether n is a directory.
func (n *Node) IsDir() bool {
	return n != nil && n.Kind == KindDirectory
}

// Loaded reports whether n is a directory with its listing materialized.
func (n *Node) Loaded() bool {
	return n.IsDir() && n.Children != nil
}

// Child returns the direct child with the given name.
func (n *Node) Child(name string) (*Node, bool) {
	if n == nil {
		return nil, false
	}
	for _, c := range n.Children {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Entry is one row of a directory listing as exchanged on the wire.
type Entry struct {
	Name string `json:"name"`
	Type Kind   `json:"type"`
}

// Node converts a listing entry into an unloaded tree node.
func (e Entry) Node() *Node {
	if e.Type == KindDirectory {
		return NewDirectory(e.Name)
	}
	return NewFile(e.Name)
}

// NodesFromEntries converts a listing into tree nodes, preserving order.
// The result is never nil.
func NodesFromEntries(entries []Entry) []*Node {
	nodes := make([]*Node, 0, len(entries))
	for _, e := range entries {
		nodes = append(nodes, e.Node())
	}
	return nodes
}
