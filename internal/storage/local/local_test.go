package local

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sly67/treedesk/pkg/models"
)

func newTestBackend(t *testing.T) (*LocalBackend, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "lib"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "main.go"), []byte("package main"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "lib", "util.go"), []byte("package lib"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("# readme"), 0644))

	b, err := New(Config{RootPath: root})
	require.NoError(t, err)
	return b, root
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	missing := filepath.Join(t.TempDir(), "missing")
	_, err = New(Config{RootPath: missing})
	assert.Error(t, err)

	_, err = New(Config{RootPath: missing, CreateDirs: true})
	require.NoError(t, err)
	assert.DirExists(t, missing)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	_, err = New(Config{RootPath: file})
	assert.Error(t, err)
}

func TestList(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx := context.Background()

	entries, err := b.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []models.Entry{
		{Name: "README.md", Type: models.KindFile},
		{Name: "src", Type: models.KindDirectory},
	}, entries)

	entries, err = b.List(ctx, "src")
	require.NoError(t, err)
	assert.Equal(t, []models.Entry{
		{Name: "lib", Type: models.KindDirectory},
		{Name: "main.go", Type: models.KindFile},
	}, entries)
}

func TestList_Errors(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx := context.Background()

	_, err := b.List(ctx, "nope")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = b.List(ctx, "README.md")
	assert.ErrorIs(t, err, fs.ErrInvalid)
}

func TestList_EmptyDirectoryIsNotNil(t *testing.T) {
	b, root := newTestBackend(t)
	require.NoError(t, os.Mkdir(filepath.Join(root, "empty"), 0755))

	entries, err := b.List(context.Background(), "empty")
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestCreate(t *testing.T) {
	b, root := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Create(ctx, "src", "new.go", models.KindFile))
	assert.FileExists(t, filepath.Join(root, "src", "new.go"))

	require.NoError(t, b.Create(ctx, "", "docs", models.KindDirectory))
	assert.DirExists(t, filepath.Join(root, "docs"))

	assert.ErrorIs(t, b.Create(ctx, "src", "main.go", models.KindFile), fs.ErrExist)
	assert.ErrorIs(t, b.Create(ctx, "", "src", models.KindDirectory), fs.ErrExist)
	assert.ErrorIs(t, b.Create(ctx, "nope", "x", models.KindFile), fs.ErrNotExist)
	assert.ErrorIs(t, b.Create(ctx, "", "x", models.Kind("link")), fs.ErrInvalid)
}

func TestRename(t *testing.T) {
	b, root := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Rename(ctx, "", "src", "source"))
	assert.FileExists(t, filepath.Join(root, "source", "lib", "util.go"))
	assert.NoDirExists(t, filepath.Join(root, "src"))

	assert.ErrorIs(t, b.Rename(ctx, "", "source", "README.md"), fs.ErrExist)
	assert.ErrorIs(t, b.Rename(ctx, "", "ghost", "x"), fs.ErrNotExist)
}

func TestDelete_Recursive(t *testing.T) {
	b, root := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Delete(ctx, "", "src"))
	assert.NoDirExists(t, filepath.Join(root, "src"))
	assert.ErrorIs(t, b.Delete(ctx, "", "src"), fs.ErrNotExist)
}

func TestReadWrite(t *testing.T) {
	b, root := newTestBackend(t)
	ctx := context.Background()

	data, err := b.Read(ctx, "src", "main.go")
	require.NoError(t, err)
	assert.Equal(t, "package main", string(data))

	require.NoError(t, b.Write(ctx, "src", "main.go", []byte("package main\n// v2")))
	raw, err := os.ReadFile(filepath.Join(root, "src", "main.go"))
	require.NoError(t, err)
	assert.Equal(t, "package main\n// v2", string(raw))

	require.NoError(t, b.Write(ctx, "", "new.txt", []byte("fresh")))
	assert.FileExists(t, filepath.Join(root, "new.txt"))

	entries, err := b.List(ctx, "src")
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")

	_, err = b.Read(ctx, "", "src")
	assert.ErrorIs(t, err, fs.ErrInvalid)
	_, err = b.Read(ctx, "", "ghost")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.ErrorIs(t, b.Write(ctx, "", "src", []byte("x")), fs.ErrInvalid)
	assert.ErrorIs(t, b.Write(ctx, "ghost", "a", []byte("x")), fs.ErrNotExist)
}

func TestEscapingRootIsRejected(t *testing.T) {
	b, root := newTestBackend(t)
	outside := filepath.Join(filepath.Dir(root), "outside.txt")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0644))
	t.Cleanup(func() { os.Remove(outside) })

	_, err := b.Read(context.Background(), "..", "outside.txt")
	assert.Error(t, err)
}

func TestNewWithFs(t *testing.T) {
	mem := afero.NewMemMapFs()
	require.NoError(t, mem.MkdirAll("/notes", 0755))
	require.NoError(t, afero.WriteFile(mem, "/notes/todo.txt", []byte("- ship"), 0644))

	b := NewWithFs(mem)
	entries, err := b.List(context.Background(), "notes")
	require.NoError(t, err)
	assert.Equal(t, []models.Entry{{Name: "todo.txt", Type: models.KindFile}}, entries)

	require.NoError(t, b.Write(context.Background(), "notes", "todo.txt", []byte("- shipped")))
	data, err := b.Read(context.Background(), "notes", "todo.txt")
	require.NoError(t, err)
	assert.Equal(t, "- shipped", string(data))
}
