// Package local provides a filesystem storage backend on afero.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"

	"github.com/spf13/afero"

	"github.com/sly67/treedesk/pkg/models"
)

// Config holds local filesystem backend settings.
type Config struct {
	RootPath   string `json:"root_path"`
	CreateDirs bool   `json:"create_dirs"`
}

// LocalBackend serves a directory tree. All access goes through a
// BasePathFs so paths cannot leave the root.
type LocalBackend struct {
	fs       afero.Fs
	rootPath string
}

// New creates a new local filesystem backend rooted at cfg.RootPath.
func New(cfg Config) (*LocalBackend, error) {
	if cfg.RootPath == "" {
		return nil, fmt.Errorf("root_path is required")
	}

	osFs := afero.NewOsFs()
	info, err := osFs.Stat(cfg.RootPath)
	if err != nil {
		if os.IsNotExist(err) && cfg.CreateDirs {
			if mkErr := osFs.MkdirAll(cfg.RootPath, 0755); mkErr != nil {
				return nil, fmt.Errorf("create root path %s: %w", cfg.RootPath, mkErr)
			}
		} else {
			return nil, fmt.Errorf("stat root path %s: %w", cfg.RootPath, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("root path %s is not a directory", cfg.RootPath)
	}

	return &LocalBackend{
		fs:       afero.NewBasePathFs(osFs, cfg.RootPath),
		rootPath: cfg.RootPath,
	}, nil
}

// NewWithFs serves an existing afero filesystem, e.g. afero.NewMemMapFs().
func NewWithFs(fsys afero.Fs) *LocalBackend {
	return &LocalBackend{fs: fsys, rootPath: "/"}
}

// NewFromJSON creates a LocalBackend from raw JSON config.
func NewFromJSON(raw json.RawMessage) (*LocalBackend, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse local config: %w", err)
	}
	return New(cfg)
}

// Fs exposes the rooted filesystem, for the change watcher.
func (b *LocalBackend) Fs() afero.Fs {
	return b.fs
}

// fsPath maps a relative "/"-joined path onto the rooted filesystem.
func fsPath(rel string) string {
	return path.Join("/", rel)
}

func fsJoin(dir, name string) string {
	return path.Join("/", dir, name)
}

func displayPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

func (b *LocalBackend) requireDir(op, dir string) error {
	info, err := b.fs.Stat(fsPath(dir))
	if err != nil {
		return &fs.PathError{Op: op, Path: dir, Err: fs.ErrNotExist}
	}
	if !info.IsDir() {
		return &fs.PathError{Op: op, Path: dir, Err: fs.ErrInvalid}
	}
	return nil
}

// List returns the entries of dir.
func (b *LocalBackend) List(_ context.Context, dir string) ([]models.Entry, error) {
	if err := b.requireDir("list", dir); err != nil {
		return nil, err
	}
	infos, err := afero.ReadDir(b.fs, fsPath(dir))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	entries := make([]models.Entry, 0, len(infos))
	for _, info := range infos {
		kind := models.KindFile
		if info.IsDir() {
			kind = models.KindDirectory
		}
		entries = append(entries, models.Entry{Name: info.Name(), Type: kind})
	}
	return entries, nil
}

// Create makes an empty file or a directory.
func (b *LocalBackend) Create(_ context.Context, parent, name string, kind models.Kind) error {
	if err := b.requireDir("create", parent); err != nil {
		return err
	}
	target := fsJoin(parent, name)
	if exists, _ := afero.Exists(b.fs, target); exists {
		return &fs.PathError{Op: "create", Path: displayPath(parent, name), Err: fs.ErrExist}
	}

	switch kind {
	case models.KindDirectory:
		if err := b.fs.Mkdir(target, 0755); err != nil {
			return fmt.Errorf("mkdir %s: %w", displayPath(parent, name), err)
		}
	case models.KindFile:
		f, err := b.fs.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("create %s: %w", displayPath(parent, name), err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close %s: %w", displayPath(parent, name), err)
		}
	default:
		return &fs.PathError{Op: "create", Path: displayPath(parent, name), Err: fs.ErrInvalid}
	}
	return nil
}

// Rename renames an entry within parent.
func (b *LocalBackend) Rename(_ context.Context, parent, oldName, newName string) error {
	from, to := fsJoin(parent, oldName), fsJoin(parent, newName)
	if exists, _ := afero.Exists(b.fs, from); !exists {
		return &fs.PathError{Op: "rename", Path: displayPath(parent, oldName), Err: fs.ErrNotExist}
	}
	if exists, _ := afero.Exists(b.fs, to); exists {
		return &fs.PathError{Op: "rename", Path: displayPath(parent, newName), Err: fs.ErrExist}
	}
	if err := b.fs.Rename(from, to); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", displayPath(parent, oldName), newName, err)
	}
	return nil
}

// Delete removes an entry, recursively for directories.
func (b *LocalBackend) Delete(_ context.Context, parent, name string) error {
	target := fsJoin(parent, name)
	if exists, _ := afero.Exists(b.fs, target); !exists {
		return &fs.PathError{Op: "delete", Path: displayPath(parent, name), Err: fs.ErrNotExist}
	}
	if err := b.fs.RemoveAll(target); err != nil {
		return fmt.Errorf("delete %s: %w", displayPath(parent, name), err)
	}
	return nil
}

// Read returns the content of a file.
func (b *LocalBackend) Read(_ context.Context, dir, name string) ([]byte, error) {
	target := fsJoin(dir, name)
	info, err := b.fs.Stat(target)
	if err != nil {
		return nil, &fs.PathError{Op: "read", Path: displayPath(dir, name), Err: fs.ErrNotExist}
	}
	if info.IsDir() {
		return nil, &fs.PathError{Op: "read", Path: displayPath(dir, name), Err: fs.ErrInvalid}
	}
	data, err := afero.ReadFile(b.fs, target)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", displayPath(dir, name), err)
	}
	return data, nil
}

// Write replaces the content of a file atomically, creating it if needed.
func (b *LocalBackend) Write(_ context.Context, dir, name string, data []byte) error {
	if err := b.requireDir("write", dir); err != nil {
		return err
	}
	target := fsJoin(dir, name)
	if info, err := b.fs.Stat(target); err == nil && info.IsDir() {
		return &fs.PathError{Op: "write", Path: displayPath(dir, name), Err: fs.ErrInvalid}
	}

	// Write to temp file then rename for atomicity
	tmp, err := afero.TempFile(b.fs, fsPath(dir), ".treedesk-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", displayPath(dir, name), err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		b.fs.Remove(tmpName)
		return fmt.Errorf("write %s: %w", displayPath(dir, name), err)
	}
	if err := tmp.Close(); err != nil {
		b.fs.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", displayPath(dir, name), err)
	}
	if err := b.fs.Rename(tmpName, target); err != nil {
		b.fs.Remove(tmpName)
		return fmt.Errorf("rename temp to %s: %w", displayPath(dir, name), err)
	}
	return nil
}

// Type returns "local".
func (b *LocalBackend) Type() string { return "local" }

// Close is a no-op for local backends.
func (b *LocalBackend) Close() error { return nil }
