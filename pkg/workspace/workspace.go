// Package workspace holds the stateful side of the browser: the lazy
// loader, the CRUD reconciler and the set of open files, all sharing one
// tree cache.
package workspace

import (
	"context"

	"go.uber.org/zap"

	"github.com/sly67/treedesk/internal/logging"
	"github.com/sly67/treedesk/pkg/expansion"
	"github.com/sly67/treedesk/pkg/models"
	"github.com/sly67/treedesk/pkg/protocol"
	"github.com/sly67/treedesk/pkg/tree"
)

// Workspace is one browsing session against a collaborator.
type Workspace struct {
	Tree       *tree.Cache
	Expanded   *expansion.Tracker
	Loader     *Loader
	Reconciler *Reconciler
	Files      *WorkingFiles

	log *zap.Logger
}

type options struct {
	log *zap.Logger
}

// Option configures a Workspace.
type Option func(*options)

// WithLogger sets the logger used for collaborator failures.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// New creates a workspace with an empty, unloaded tree.
func New(collab Collaborator, opts ...Option) *Workspace {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logging.L().Named("workspace")
	}

	cache := tree.NewCache()
	expanded := expansion.New()
	loader := NewLoader(collab, cache, expanded, o.log)
	reconciler := NewReconciler(collab, loader, o.log)
	files := NewWorkingFiles(collab, o.log)
	reconciler.OnMutation(files.ApplyMutation)

	return &Workspace{
		Tree:       cache,
		Expanded:   expanded,
		Loader:     loader,
		Reconciler: reconciler,
		Files:      files,
		log:        o.log,
	}
}

// Start loads the root listing.
func (w *Workspace) Start(ctx context.Context) error {
	return w.Loader.LoadRoot(ctx)
}

// Follow applies server change events until ctx is done or events is
// closed. Only directories that are already loaded are re-fetched.
func (w *Workspace) Follow(ctx context.Context, events <-chan protocol.SSEEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			w.apply(ctx, ev)
		}
	}
}

func (w *Workspace) apply(ctx context.Context, ev protocol.SSEEvent) {
	p, err := models.ParsePath(ev.Path)
	if err != nil || p.IsRoot() {
		w.log.Warn("ignoring event with bad path",
			zap.String("type", ev.Type),
			zap.String("path", ev.Path))
		return
	}

	dirs := []models.Path{p.Parent()}

	switch ev.Type {
	case protocol.EventRename:
		from, err := models.ParsePath(ev.From)
		if err != nil || from.IsRoot() {
			break
		}
		if from.Parent().Equal(p.Parent()) {
			w.Files.ApplyMutation(Mutation{
				Type:    MutationRenamed,
				Parent:  from.Parent(),
				Name:    from.Base(),
				NewName: p.Base(),
			})
			break
		}
		// Moves across directories cannot be relabeled in place.
		dirs = append(dirs, from.Parent())
		w.Files.ApplyMutation(Mutation{Type: MutationDeleted, Parent: from.Parent(), Name: from.Base()})

	case protocol.EventCreate:
		w.Files.ApplyMutation(Mutation{Type: MutationCreated, Parent: p.Parent(), Name: p.Base(), Kind: ev.Kind})

	case protocol.EventDelete:
		w.Files.ApplyMutation(Mutation{Type: MutationDeleted, Parent: p.Parent(), Name: p.Base()})

	case protocol.EventModify:
		if f, ok := w.Files.Find(p.Parent(), p.Base()); ok && !f.Touched && !f.Orphaned {
			if err := w.Files.ResetChange(ctx, f.Path, f.Node); err != nil {
				w.log.Warn("reload of modified file failed",
					zap.String("path", ev.Path),
					zap.Error(err))
			}
		}
	}

	for _, dir := range dirs {
		if !w.isLoaded(dir) {
			continue
		}
		if err := w.Loader.Refresh(ctx, dir); err != nil {
			w.log.Warn("refresh after server event failed",
				zap.String("dir", dir.FullPath()),
				zap.Error(err))
		}
	}
}

func (w *Workspace) isLoaded(dir models.Path) bool {
	if dir.IsRoot() {
		return true
	}
	n, ok := w.Tree.Lookup(dir)
	return ok && n.Loaded()
}
