package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sly67/treedesk/internal/config"
	"github.com/sly67/treedesk/internal/storage/local"
	"github.com/sly67/treedesk/pkg/models"
	"github.com/sly67/treedesk/pkg/workspace"
)

func TestNewBackendFromConfig(t *testing.T) {
	raw, _ := json.Marshal(local.Config{RootPath: t.TempDir()})
	b, err := NewBackendFromConfig(context.Background(), "local", raw)
	require.NoError(t, err)
	assert.Equal(t, "local", b.Type())

	_, err = NewBackendFromConfig(context.Background(), "smb", raw)
	assert.Error(t, err)

	_, err = NewBackendFromConfig(context.Background(), "local", json.RawMessage(`{`))
	assert.Error(t, err)
}

func TestOpen_Local(t *testing.T) {
	b, err := Open(context.Background(), &config.Config{StorageBackend: "local", Root: t.TempDir()})
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, "local", b.Type())
	_, wrapped := b.(*instrumented)
	assert.True(t, wrapped)
	assert.Same(t, b, Instrument(b), "instrumenting twice is a no-op")
	_, isLocal := Unwrap(b).(*local.LocalBackend)
	assert.True(t, isLocal)
}

func TestInstrument_PassesErrorsThrough(t *testing.T) {
	b := Instrument(local.NewWithFs(afero.NewMemMapFs()))
	_, err := b.List(context.Background(), "missing")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

// A workspace driven directly against a backend sees the same tree the
// server would serve.
func TestDirect_DrivesWorkspace(t *testing.T) {
	mem := afero.NewMemMapFs()
	require.NoError(t, mem.MkdirAll("/src", 0755))
	require.NoError(t, afero.WriteFile(mem, "/src/main.go", []byte("package main"), 0644))

	ws := workspace.New(Direct{Backend: Instrument(local.NewWithFs(mem))})
	ctx := context.Background()
	require.NoError(t, ws.Start(ctx))
	require.NoError(t, ws.Loader.ActivatePath(ctx, models.MustParsePath("src")))

	src := models.MustParsePath("src")
	f, err := ws.Files.Open(ctx, src, models.NewFile("main.go"))
	require.NoError(t, err)
	assert.Equal(t, "package main", string(f.Content))

	require.NoError(t, ws.Files.Edit(src, f.Node, []byte("package main // saved")))
	require.NoError(t, ws.Files.Save(ctx, src, f.Node))
	data, err := afero.ReadFile(mem, "/src/main.go")
	require.NoError(t, err)
	assert.Equal(t, "package main // saved", string(data))

	require.NoError(t, ws.Reconciler.Create(ctx, src, "util.go", models.KindFile))
	node, ok := ws.Tree.Lookup(src)
	require.True(t, ok)
	require.Len(t, node.Children, 2)
	assert.Equal(t, "util.go", node.Children[1].Name)
}
