package workspace

import (
	"bytes"
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/sly67/treedesk/pkg/models"
)

// WorkingFile is an open file with its in-memory content. Identity is the
// pair (Path.FullPath(), Node.Name).
type WorkingFile struct {
	Path    models.Path
	Node    *models.Node
	Content []byte
	Touched bool

	// Orphaned is set when the entry was deleted while the file had unsaved
	// edits. The content is kept but can no longer be saved.
	Orphaned bool
}

// Key returns the identity of the file.
func (f *WorkingFile) Key() string {
	return fileKey(f.Path, f.Node.Name)
}

// FullPath returns the path of the file itself.
func (f *WorkingFile) FullPath() models.Path {
	p, _ := f.Path.Append(f.Node.Name)
	return p
}

func (f *WorkingFile) clone() *WorkingFile {
	c := *f
	c.Content = append([]byte(nil), f.Content...)
	return &c
}

func fileKey(p models.Path, name string) string {
	if p.IsRoot() {
		return "/" + name
	}
	return p.FullPath() + "/" + name
}

// WorkingFiles is the ordered set of open files plus the current selection.
// Values handed out are copies; state only changes through these methods.
type WorkingFiles struct {
	collab Collaborator
	log    *zap.Logger

	mu      sync.RWMutex
	files   []*WorkingFile
	current string
	loading bool
}

// NewWorkingFiles creates an empty working file set.
func NewWorkingFiles(collab Collaborator, log *zap.Logger) *WorkingFiles {
	if log == nil {
		log = zap.NewNop()
	}
	return &WorkingFiles{collab: collab, log: log}
}

// Open makes the file at (p, node) current, fetching its content if it is
// not open yet.
func (w *WorkingFiles) Open(ctx context.Context, p models.Path, node *models.Node) (*WorkingFile, error) {
	if node.IsDir() {
		return nil, ErrNotFile
	}
	key := fileKey(p, node.Name)

	w.mu.Lock()
	if f := w.find(key); f != nil {
		w.current = key
		out := f.clone()
		w.mu.Unlock()
		return out, nil
	}
	w.loading = true
	w.mu.Unlock()

	content, err := w.collab.ReadFileContent(ctx, p.FullPath(), node.Name)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.loading = false
	if err != nil {
		w.log.Error("read file content failed",
			zap.String("path", p.FullPath()),
			zap.String("name", node.Name),
			zap.Error(err))
		return nil, &CollaboratorError{Op: OpRead, Path: p.FullPath(), Name: node.Name, Err: err}
	}

	// A concurrent Open of the same file may have finished first.
	f := w.find(key)
	if f == nil {
		f = &WorkingFile{
			Path:    p,
			Node:    models.NewFile(node.Name),
			Content: content,
		}
		w.files = append(w.files, f)
	}
	w.current = key
	return f.clone(), nil
}

// Edit replaces the in-memory content and marks the file touched.
func (w *WorkingFiles) Edit(p models.Path, node *models.Node, content []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	f := w.find(fileKey(p, node.Name))
	if f == nil {
		return ErrNotFound
	}
	f.Content = append([]byte(nil), content...)
	f.Touched = true
	return nil
}

// ResetChange re-reads the file from the collaborator and clears the
// touched flag. On failure the file is left as it was.
func (w *WorkingFiles) ResetChange(ctx context.Context, p models.Path, node *models.Node) error {
	key := fileKey(p, node.Name)

	w.mu.Lock()
	if w.find(key) == nil {
		w.mu.Unlock()
		return ErrNotFound
	}
	w.loading = true
	w.mu.Unlock()

	content, err := w.collab.ReadFileContent(ctx, p.FullPath(), node.Name)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.loading = false
	if err != nil {
		w.log.Error("reset file content failed",
			zap.String("path", p.FullPath()),
			zap.String("name", node.Name),
			zap.Error(err))
		return &CollaboratorError{Op: OpRead, Path: p.FullPath(), Name: node.Name, Err: err}
	}

	f := w.find(key)
	if f == nil {
		// Closed while the read was in flight.
		return ErrNotFound
	}
	f.Content = content
	f.Touched = false
	f.Orphaned = false
	return nil
}

// Close removes the file from the set. A touched file is only removed when
// discard is true.
func (w *WorkingFiles) Close(p models.Path, node *models.Node, discard bool) error {
	key := fileKey(p, node.Name)

	w.mu.Lock()
	defer w.mu.Unlock()
	f := w.find(key)
	if f == nil {
		return ErrNotFound
	}
	if f.Touched && !discard {
		return ErrUnsavedChanges
	}
	w.remove(key)
	return nil
}

// Save writes the in-memory content back and clears the touched flag if
// the content did not change while the write was in flight.
func (w *WorkingFiles) Save(ctx context.Context, p models.Path, node *models.Node) error {
	key := fileKey(p, node.Name)

	w.mu.RLock()
	f := w.find(key)
	if f == nil {
		w.mu.RUnlock()
		return ErrNotFound
	}
	if f.Orphaned {
		w.mu.RUnlock()
		return ErrOrphaned
	}
	content := append([]byte(nil), f.Content...)
	w.mu.RUnlock()

	if err := w.collab.WriteFileContent(ctx, p.FullPath(), node.Name, content); err != nil {
		w.log.Error("write file content failed",
			zap.String("path", p.FullPath()),
			zap.String("name", node.Name),
			zap.Error(err))
		return &CollaboratorError{Op: OpWrite, Path: p.FullPath(), Name: node.Name, Err: err}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if f := w.find(key); f != nil && bytes.Equal(f.Content, content) {
		f.Touched = false
	}
	w.log.Debug("file saved",
		zap.String("path", p.FullPath()),
		zap.String("name", node.Name),
		zap.Int("bytes", len(content)))
	return nil
}

// Current returns the selected file, if any.
func (w *WorkingFiles) Current() (*WorkingFile, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.current == "" {
		return nil, false
	}
	f := w.find(w.current)
	if f == nil {
		return nil, false
	}
	return f.clone(), true
}

// Find returns the open file at (p, name).
func (w *WorkingFiles) Find(p models.Path, name string) (*WorkingFile, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	f := w.find(fileKey(p, name))
	if f == nil {
		return nil, false
	}
	return f.clone(), true
}

// List returns the open files in the order they were opened.
func (w *WorkingFiles) List() []*WorkingFile {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*WorkingFile, 0, len(w.files))
	for _, f := range w.files {
		out = append(out, f.clone())
	}
	return out
}

// Loading reports whether a content fetch is in flight.
func (w *WorkingFiles) Loading() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.loading
}

// ApplyMutation keeps open files in line with a structural change made
// through the reconciler.
func (w *WorkingFiles) ApplyMutation(m Mutation) {
	w.mu.Lock()
	defer w.mu.Unlock()

	target := m.Target()
	switch m.Type {
	case MutationRenamed:
		renamed, err := m.Parent.Append(m.NewName)
		if err != nil {
			return
		}
		for _, f := range w.files {
			old := f.Key()
			switch {
			case f.Path.Equal(m.Parent) && f.Node.Name == m.Name:
				f.Node = models.NewFile(m.NewName)
			case f.Path.HasPrefix(target):
				f.Path = f.Path.Rebase(target, renamed)
			default:
				continue
			}
			if w.current == old {
				w.current = f.Key()
			}
			w.log.Debug("working file relabeled",
				zap.String("from", old),
				zap.String("to", f.Key()))
		}

	case MutationDeleted:
		var gone []string
		for _, f := range w.files {
			if !(f.Path.Equal(m.Parent) && f.Node.Name == m.Name) && !f.Path.HasPrefix(target) {
				continue
			}
			if f.Touched {
				f.Orphaned = true
				w.log.Warn("working file orphaned with unsaved changes",
					zap.String("file", f.Key()))
				continue
			}
			gone = append(gone, f.Key())
		}
		for _, key := range gone {
			w.remove(key)
		}

	case MutationCreated:
		// Recreating a deleted file makes an orphaned copy savable again.
		if f := w.find(fileKey(m.Parent, m.Name)); f != nil && m.Kind == models.KindFile {
			f.Orphaned = false
		}
	}
}

func (w *WorkingFiles) find(key string) *WorkingFile {
	for _, f := range w.files {
		if f.Key() == key {
			return f
		}
	}
	return nil
}

func (w *WorkingFiles) remove(key string) {
	for i, f := range w.files {
		if f.Key() == key {
			w.files = append(w.files[:i], w.files[i+1:]...)
			break
		}
	}
	if w.current == key {
		w.current = ""
	}
}
