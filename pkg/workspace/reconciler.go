package workspace

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/sly67/treedesk/pkg/models"
)

// MutationKind identifies a successful structural change.
type MutationKind string

const (
	MutationCreated MutationKind = "created"
	MutationRenamed MutationKind = "renamed"
	MutationDeleted MutationKind = "deleted"
)

// Mutation describes a change the reconciler applied through the
// collaborator. NewName is only set for renames; Kind only for creates.
type Mutation struct {
	Type    MutationKind
	Parent  models.Path
	Name    string
	NewName string
	Kind    models.Kind
}

// Target returns the path of the entry as it was before the mutation.
func (m Mutation) Target() models.Path {
	p, _ := m.Parent.Append(m.Name)
	return p
}

// Reconciler performs create, rename and delete through the collaborator
// and then refreshes the parent listing. It never patches the tree itself.
type Reconciler struct {
	collab Collaborator
	loader *Loader
	log    *zap.Logger

	mu        sync.RWMutex
	listeners []func(Mutation)
}

// NewReconciler creates a reconciler refreshing through loader.
func NewReconciler(collab Collaborator, loader *Loader, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{collab: collab, loader: loader, log: log}
}

// OnMutation registers fn to be called after every successful mutation,
// before the parent refresh.
func (r *Reconciler) OnMutation(fn func(Mutation)) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Create makes a new file or directory named name inside parent.
func (r *Reconciler) Create(ctx context.Context, parent models.Path, name string, kind models.Kind) error {
	if err := models.ValidateName(name); err != nil {
		return err
	}
	if _, err := models.ParseKind(string(kind)); err != nil {
		return err
	}

	if err := r.collab.CreateEntry(ctx, parent.FullPath(), name, kind); err != nil {
		return r.fail(OpCreate, parent, name, err)
	}
	r.log.Info("entry created",
		zap.String("parent", parent.FullPath()),
		zap.String("name", name),
		zap.String("kind", string(kind)))

	r.emit(Mutation{Type: MutationCreated, Parent: parent, Name: name, Kind: kind})
	return r.loader.Refresh(ctx, parent)
}

// Rename renames oldName to newName within parent.
func (r *Reconciler) Rename(ctx context.Context, parent models.Path, oldName, newName string) error {
	if err := models.ValidateName(oldName); err != nil {
		return err
	}
	if err := models.ValidateName(newName); err != nil {
		return err
	}

	if err := r.collab.RenameEntry(ctx, parent.FullPath(), oldName, newName); err != nil {
		return r.fail(OpRename, parent, oldName, err)
	}
	r.log.Info("entry renamed",
		zap.String("parent", parent.FullPath()),
		zap.String("from", oldName),
		zap.String("to", newName))

	r.emit(Mutation{Type: MutationRenamed, Parent: parent, Name: oldName, NewName: newName})
	return r.loader.Refresh(ctx, parent)
}

// Delete removes name from parent. Directories are removed recursively by
// the collaborator.
func (r *Reconciler) Delete(ctx context.Context, parent models.Path, name string) error {
	if err := models.ValidateName(name); err != nil {
		return err
	}

	if err := r.collab.DeleteEntry(ctx, parent.FullPath(), name); err != nil {
		return r.fail(OpDelete, parent, name, err)
	}
	r.log.Info("entry deleted",
		zap.String("parent", parent.FullPath()),
		zap.String("name", name))

	r.emit(Mutation{Type: MutationDeleted, Parent: parent, Name: name})
	return r.loader.Refresh(ctx, parent)
}

func (r *Reconciler) fail(op Op, parent models.Path, name string, err error) error {
	r.log.Error(fmt.Sprintf("%s failed", op),
		zap.String("parent", parent.FullPath()),
		zap.String("name", name),
		zap.Error(err))
	return &CollaboratorError{Op: op, Path: parent.FullPath(), Name: name, Err: err}
}

func (r *Reconciler) emit(m Mutation) {
	r.mu.RLock()
	listeners := make([]func(Mutation), len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.RUnlock()

	for _, fn := range listeners {
		fn(m)
	}
}
