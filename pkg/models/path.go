package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPath is matched by every InvalidPathError.
var ErrInvalidPath = errors.New("invalid path")

// InvalidPathError reports a path segment that is empty after trimming.
type InvalidPathError struct {
	Input   string
	Segment int
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("invalid path %q: segment %d is empty", e.Input, e.Segment)
}

// Is lets errors.Is(err, ErrInvalidPath) match.
func (e *InvalidPathError) Is(target error) bool {
	return target == ErrInvalidPath
}

// Path is an immutable sequence of directory names relative to the
// workspace root. The zero value is the root.
type Path struct {
	segments []string
}

// Root is the zero-segment path.
var Root = Path{}

// NewPath builds a Path from individual segments. Each segment must be a
// valid name, so it may not contain "/".
func NewPath(segments ...string) (Path, error) {
	for i, s := range segments {
		if ValidateName(s) != nil {
			return Path{}, &InvalidPathError{Input: strings.Join(segments, "/"), Segment: i}
		}
	}
	if len(segments) == 0 {
		return Root, nil
	}
	cp := make([]string, len(segments))
	copy(cp, segments)
	return Path{segments: cp}, nil
}

// ParsePath splits a slash-delimited string. The empty string is the root;
// "a//b", "/a" and "a/" are rejected.
func ParsePath(s string) (Path, error) {
	if s == "" {
		return Root, nil
	}
	segments := strings.Split(s, "/")
	for i, seg := range segments {
		if strings.TrimSpace(seg) == "" {
			return Path{}, &InvalidPathError{Input: s, Segment: i}
		}
	}
	return Path{segments: segments}, nil
}

// MustParsePath is ParsePath that panics, for tests and constants.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// ValidateName checks a single entry name with the same rules as a segment.
// Names containing "/" are rejected since they would address a different path.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" || strings.Contains(name, "/") {
		return &InvalidPathError{Input: name}
	}
	return nil
}

// Append returns a new Path with name added. The receiver is not modified.
func (p Path) Append(name string) (Path, error) {
	if err := ValidateName(name); err != nil {
		return Path{}, err
	}
	segments := make([]string, len(p.segments)+1)
	copy(segments, p.segments)
	segments[len(p.segments)] = name
	return Path{segments: segments}, nil
}

// FullPath joins the segments with "/". The root yields "".
func (p Path) FullPath() string {
	return strings.Join(p.segments, "/")
}

func (p Path) String() string {
	return p.FullPath()
}

// Directories returns a copy of the segments.
func (p Path) Directories() []string {
	out := make([]string, len(p.segments))
	copy(out, p.segments)
	return out
}

// Len returns the number of segments.
func (p Path) Len() int {
	return len(p.segments)
}

// IsRoot reports whether p has no segments.
func (p Path) IsRoot() bool {
	return len(p.segments) == 0
}

// Equal compares by full path.
func (p Path) Equal(other Path) bool {
	return p.FullPath() == other.FullPath()
}

// Parent drops the last segment. The parent of the root is the root.
func (p Path) Parent() Path {
	if len(p.segments) <= 1 {
		return Root
	}
	return Path{segments: p.segments[:len(p.segments)-1]}
}

// Base returns the last segment, or "" for the root.
func (p Path) Base() string {
	if len(p.segments) == 0 {
		return ""
	}
	return p.segments[len(p.segments)-1]
}

// HasPrefix reports whether prefix is p itself or one of its ancestors.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix.segments) > len(p.segments) {
		return false
	}
	for i, s := range prefix.segments {
		if p.segments[i] != s {
			return false
		}
	}
	return true
}

// Rebase replaces the prefix old with repl. p must have old as a prefix.
func (p Path) Rebase(old, repl Path) Path {
	rest := p.segments[len(old.segments):]
	segments := make([]string, 0, len(repl.segments)+len(rest))
	segments = append(segments, repl.segments...)
	segments = append(segments, rest...)
	if len(segments) == 0 {
		return Root
	}
	return Path{segments: segments}
}
