package workspace

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sly67/treedesk/pkg/expansion"
	"github.com/sly67/treedesk/pkg/models"
	"github.com/sly67/treedesk/pkg/tree"
)

// Loader materializes directory listings on demand.
type Loader struct {
	collab   Collaborator
	cache    *tree.Cache
	expanded *expansion.Tracker
	log      *zap.Logger
}

// NewLoader wires a loader to its cache and tracker.
func NewLoader(collab Collaborator, cache *tree.Cache, expanded *expansion.Tracker, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{
		collab:   collab,
		cache:    cache,
		expanded: expanded,
		log:      log,
	}
}

// LoadRoot fetches the root listing and replaces the whole root sequence.
func (l *Loader) LoadRoot(ctx context.Context) error {
	return l.Refresh(ctx, models.Root)
}

// Activate handles a click on dir, which lives in the directory parent.
//
// A loaded directory only has its expansion toggled. An unloaded one is
// fetched first; on failure nothing changes and the next activation tries
// again.
func (l *Loader) Activate(ctx context.Context, parent models.Path, dir *models.Node) error {
	if !dir.IsDir() {
		return ErrNotDirectory
	}
	p, err := parent.Append(dir.Name)
	if err != nil {
		return err
	}

	if !l.isLoaded(p, dir) {
		if err := l.Refresh(ctx, p); err != nil {
			return err
		}
	}

	expanded := l.expanded.Toggle(p.FullPath())
	l.log.Debug("directory toggled",
		zap.String("path", p.FullPath()),
		zap.Bool("expanded", expanded))
	return nil
}

// ActivatePath is Activate for a path resolved against the current tree.
func (l *Loader) ActivatePath(ctx context.Context, p models.Path) error {
	if p.IsRoot() {
		return fmt.Errorf("activate: %w", ErrNotDirectory)
	}
	node, ok := l.cache.Lookup(p)
	if !ok {
		return fmt.Errorf("activate %s: not in tree", p)
	}
	return l.Activate(ctx, p.Parent(), node)
}

// isLoaded prefers the cache's current view over the caller's node, which
// may come from an older snapshot.
func (l *Loader) isLoaded(p models.Path, dir *models.Node) bool {
	if dir.Loaded() {
		return true
	}
	current, ok := l.cache.Lookup(p)
	return ok && current.Loaded()
}

// Refresh re-fetches the listing of p and merges it, whether or not p was
// loaded before. Expansion state is not touched.
func (l *Loader) Refresh(ctx context.Context, p models.Path) error {
	l.cache.SetLoading(true)
	nodes, err := l.collab.ListDirectory(ctx, p.FullPath())
	l.cache.SetLoading(false)

	if err != nil {
		l.log.Error("directory listing failed",
			zap.String("path", p.FullPath()),
			zap.Error(err))
		return &CollaboratorError{Op: OpList, Path: p.FullPath(), Err: err}
	}

	l.cache.ReplaceChildrenAt(p, nodes)
	l.log.Debug("directory loaded",
		zap.String("path", p.FullPath()),
		zap.Int("entries", len(nodes)))
	return nil
}
