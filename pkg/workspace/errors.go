package workspace

import (
	"errors"
	"fmt"
)

var (
	// ErrCollaborator is matched by every CollaboratorError.
	ErrCollaborator = errors.New("collaborator call failed")

	// ErrNotFound is returned for working file operations on a (path, name)
	// pair that is not open.
	ErrNotFound = errors.New("working file not found")

	// ErrUnsavedChanges is returned when closing a touched file without
	// discarding.
	ErrUnsavedChanges = errors.New("working file has unsaved changes")

	// ErrOrphaned is returned when saving a file whose backing entry was
	// deleted.
	ErrOrphaned = errors.New("working file no longer exists on disk")

	ErrNotDirectory = errors.New("node is not a directory")
	ErrNotFile      = errors.New("node is not a file")
)

// Op names a collaborator operation.
type Op string

const (
	OpList   Op = "list"
	OpCreate Op = "create"
	OpRename Op = "rename"
	OpDelete Op = "delete"
	OpRead   Op = "read"
	OpWrite  Op = "write"
)

// CollaboratorError wraps a failed collaborator call. The cache and the
// working file set are left as they were before the call.
type CollaboratorError struct {
	Op   Op
	Path string
	Name string
	Err  error
}

func (e *CollaboratorError) Error() string {
	target := e.Path
	if e.Name != "" {
		if target == "" {
			target = e.Name
		} else {
			target += "/" + e.Name
		}
	}
	if target == "" {
		target = "<root>"
	}
	return fmt.Sprintf("%s %s: %v", e.Op, target, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrCollaborator) match.
func (e *CollaboratorError) Is(target error) bool {
	return target == ErrCollaborator
}
