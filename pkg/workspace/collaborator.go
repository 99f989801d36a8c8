package workspace

import (
	"context"

	"github.com/sly67/treedesk/pkg/models"
)

// Collaborator performs the actual filesystem operations. Paths are
// "/"-joined and relative to the collaborator's root; "" is the root.
type Collaborator interface {
	// ListDirectory returns the entries of a directory as unloaded nodes.
	ListDirectory(ctx context.Context, path string) ([]*models.Node, error)

	CreateEntry(ctx context.Context, parentPath, name string, kind models.Kind) error
	RenameEntry(ctx context.Context, parentPath, oldName, newName string) error
	DeleteEntry(ctx context.Context, parentPath, name string) error

	ReadFileContent(ctx context.Context, path, name string) ([]byte, error)
	WriteFileContent(ctx context.Context, path, name string, data []byte) error
}
