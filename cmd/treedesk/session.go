package main

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	"github.com/sly67/treedesk/internal/logging"
	"github.com/sly67/treedesk/internal/storage"
	"github.com/sly67/treedesk/internal/storage/local"
	"github.com/sly67/treedesk/pkg/client"
	"github.com/sly67/treedesk/pkg/models"
	"github.com/sly67/treedesk/pkg/workspace"
)

// session is a workspace plus what is needed to follow server changes.
type session struct {
	ws     *workspace.Workspace
	remote bool
}

// openSession builds a workspace over the server, or over a local directory
// when --local is set, and loads the root listing.
func openSession(ctx context.Context) (*session, error) {
	var collab workspace.Collaborator
	remote := localRoot == ""
	if remote {
		collab = client.New(client.Config{
			BaseURL: cfg.ServerURL,
			Logger:  logging.L().Named("client"),
		})
	} else {
		b, err := local.New(local.Config{RootPath: localRoot})
		if err != nil {
			return nil, err
		}
		collab = storage.Direct{Backend: storage.Instrument(b)}
	}

	s := newSession(collab)
	s.remote = remote
	if err := s.ws.Start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func newSession(collab workspace.Collaborator) *session {
	ws := workspace.New(collab, workspace.WithLogger(logging.L().Named("workspace")))
	return &session{ws: ws}
}

// reveal loads and expands every directory along dir so that its entries
// can be looked up in the tree.
func (s *session) reveal(ctx context.Context, dir models.Path) error {
	segments := dir.Directories()
	for i := range segments {
		p, err := models.NewPath(segments[:i+1]...)
		if err != nil {
			return err
		}
		node, ok := s.ws.Tree.Lookup(p)
		if !ok {
			return fmt.Errorf("%s: %w", p, fs.ErrNotExist)
		}
		if !node.IsDir() {
			return fmt.Errorf("%s: %w", p, workspace.ErrNotDirectory)
		}
		if !node.Loaded() {
			if err := s.ws.Loader.Refresh(ctx, p); err != nil {
				return err
			}
		}
		if !s.ws.Expanded.IsExpanded(p.FullPath()) {
			s.ws.Expanded.Toggle(p.FullPath())
		}
	}
	return nil
}

// children returns the listing of dir, loading it first if needed.
func (s *session) children(ctx context.Context, dir models.Path) ([]*models.Node, error) {
	if dir.IsRoot() {
		return s.ws.Tree.Get(), nil
	}
	if err := s.reveal(ctx, dir); err != nil {
		return nil, err
	}
	return s.listing(dir)
}

// listing returns the cached children of dir. A background refresh may
// have removed dir since it was revealed.
func (s *session) listing(dir models.Path) ([]*models.Node, error) {
	node, ok := s.ws.Tree.Lookup(dir)
	if !ok || !node.IsDir() {
		return nil, fmt.Errorf("%s: %w", dir, fs.ErrNotExist)
	}
	return node.Children, nil
}

// entry resolves p to its containing directory and node.
func (s *session) entry(ctx context.Context, p models.Path) (models.Path, *models.Node, error) {
	if p.IsRoot() {
		return models.Root, nil, fmt.Errorf("the root has no entry: %w", models.ErrInvalidPath)
	}
	if err := s.reveal(ctx, p.Parent()); err != nil {
		return models.Root, nil, err
	}
	node, ok := s.ws.Tree.Lookup(p)
	if !ok {
		return models.Root, nil, fmt.Errorf("%s: %w", p, fs.ErrNotExist)
	}
	return p.Parent(), node, nil
}

// resolve parses arg relative to cwd. "..", "." and a leading "/" are
// understood; the result never leaves the root.
func resolve(cwd models.Path, arg string) (models.Path, error) {
	p := cwd
	if strings.HasPrefix(arg, "/") {
		p = models.Root
	}
	for _, seg := range strings.Split(arg, "/") {
		switch seg {
		case "", ".":
		case "..":
			p = p.Parent()
		default:
			next, err := p.Append(seg)
			if err != nil {
				return models.Root, err
			}
			p = next
		}
	}
	return p, nil
}
