// Package storage defines the Backend interface for the served file tree
// and builds backends from configuration.
package storage

import (
	"context"

	"github.com/sly67/treedesk/pkg/models"
)

// Backend is the interface for filesystem backends. Paths are "/"-joined
// and relative to the backend root; "" is the root.
//
// Errors wrap fs.ErrNotExist for missing targets, fs.ErrExist for name
// collisions and fs.ErrInvalid for operations on the wrong kind of entry.
type Backend interface {
	// List returns the entries of dir ordered by name.
	List(ctx context.Context, dir string) ([]models.Entry, error)

	// Create makes an empty file or a directory. The parent must exist.
	Create(ctx context.Context, parent, name string, kind models.Kind) error

	// Rename renames an entry within parent. It fails if newName exists.
	Rename(ctx context.Context, parent, oldName, newName string) error

	// Delete removes an entry, recursively for directories.
	Delete(ctx context.Context, parent, name string) error

	// Read returns the content of a file.
	Read(ctx context.Context, dir, name string) ([]byte, error)

	// Write replaces the content of a file, creating it if needed.
	Write(ctx context.Context, dir, name string, data []byte) error

	// Type returns the backend type identifier ("local", "s3").
	Type() string

	// Close releases any resources held by the backend.
	Close() error
}
