package storage

import (
	"context"

	"github.com/sly67/treedesk/pkg/models"
	"github.com/sly67/treedesk/pkg/workspace"
)

// Direct lets a workspace drive a backend in-process, without a server.
type Direct struct {
	Backend Backend
}

var _ workspace.Collaborator = Direct{}

func (d Direct) ListDirectory(ctx context.Context, path string) ([]*models.Node, error) {
	entries, err := d.Backend.List(ctx, path)
	if err != nil {
		return nil, err
	}
	return models.NodesFromEntries(entries), nil
}

func (d Direct) CreateEntry(ctx context.Context, parentPath, name string, kind models.Kind) error {
	return d.Backend.Create(ctx, parentPath, name, kind)
}

func (d Direct) RenameEntry(ctx context.Context, parentPath, oldName, newName string) error {
	return d.Backend.Rename(ctx, parentPath, oldName, newName)
}

func (d Direct) DeleteEntry(ctx context.Context, parentPath, name string) error {
	return d.Backend.Delete(ctx, parentPath, name)
}

func (d Direct) ReadFileContent(ctx context.Context, path, name string) ([]byte, error) {
	return d.Backend.Read(ctx, path, name)
}

func (d Direct) WriteFileContent(ctx context.Context, path, name string, data []byte) error {
	return d.Backend.Write(ctx, path, name, data)
}
