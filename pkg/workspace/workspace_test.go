package workspace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sly67/treedesk/pkg/models"
	"github.com/sly67/treedesk/pkg/protocol"
)

// follow feeds events through Follow and waits for it to drain them.
func follow(t *testing.T, ws *Workspace, events ...protocol.SSEEvent) {
	t.Helper()
	ch := make(chan protocol.SSEEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	require.NoError(t, ws.Follow(context.Background(), ch))
}

func TestFollow_RefreshesLoadedParents(t *testing.T) {
	fs := sampleFS()
	ws := newTestWorkspace(t, fs)

	fs.addFile("", "CHANGELOG.md", "")
	follow(t, ws, protocol.SSEEvent{Type: protocol.EventCreate, Path: "CHANGELOG.md"})

	assert.Equal(t, []string{"src", "README.md", "CHANGELOG.md"}, names(ws.Tree.Get()))
	assert.Equal(t, 2, fs.count("list:"))
}

func TestFollow_IgnoresUnloadedDirectories(t *testing.T) {
	fs := sampleFS()
	ws := newTestWorkspace(t, fs)

	follow(t, ws,
		protocol.SSEEvent{Type: protocol.EventCreate, Path: "src/new.go"},
		protocol.SSEEvent{Type: protocol.EventCreate, Path: "bad//path"},
	)

	assert.Equal(t, 0, fs.count("list:src"))
	assert.False(t, rootNode(t, ws, "src").Loaded())
}

func TestFollow_ReloadsUntouchedFiles(t *testing.T) {
	fs := sampleFS()
	ws := newTestWorkspace(t, fs)
	ctx := context.Background()

	_, err := ws.Files.Open(ctx, models.Root, readme)
	require.NoError(t, err)
	_, err = ws.Files.Open(ctx, srcDir, mainGo)
	require.NoError(t, err)
	require.NoError(t, ws.Files.Edit(srcDir, mainGo, []byte("mine")))

	fs.content["README.md"] = []byte("# changed elsewhere")
	fs.content["src/main.go"] = []byte("theirs")
	follow(t, ws,
		protocol.SSEEvent{Type: protocol.EventModify, Path: "README.md"},
		protocol.SSEEvent{Type: protocol.EventModify, Path: "src/main.go"},
	)

	f, _ := ws.Files.Find(models.Root, "README.md")
	assert.Equal(t, "# changed elsewhere", string(f.Content))
	f, _ = ws.Files.Find(srcDir, "main.go")
	assert.Equal(t, "mine", string(f.Content), "local edits win")
}

func TestFollow_RenameAndDelete(t *testing.T) {
	fs := sampleFS()
	ws := newTestWorkspace(t, fs)
	ctx := context.Background()

	_, err := ws.Files.Open(ctx, models.Root, readme)
	require.NoError(t, err)
	_, err = ws.Files.Open(ctx, srcDir, mainGo)
	require.NoError(t, err)

	require.NoError(t, fs.RenameEntry(ctx, "", "README.md", "README.txt"))
	require.NoError(t, fs.DeleteEntry(ctx, "src", "main.go"))
	follow(t, ws,
		protocol.SSEEvent{Type: protocol.EventRename, Path: "README.txt", From: "README.md"},
		protocol.SSEEvent{Type: protocol.EventDelete, Path: "src/main.go"},
	)

	list := ws.Files.List()
	require.Len(t, list, 1)
	assert.Equal(t, "README.txt", list[0].Node.Name)
	assert.Equal(t, []string{"src", "README.txt"}, names(ws.Tree.Get()))
}

func TestFollow_RecreateClearsOrphaned(t *testing.T) {
	fs := sampleFS()
	ws := newTestWorkspace(t, fs)
	ctx := context.Background()

	_, err := ws.Files.Open(ctx, models.Root, readme)
	require.NoError(t, err)
	require.NoError(t, ws.Files.Edit(models.Root, readme, []byte("unsaved")))

	require.NoError(t, fs.DeleteEntry(ctx, "", "README.md"))
	follow(t, ws, protocol.SSEEvent{Type: protocol.EventDelete, Path: "README.md", Kind: models.KindFile})

	f, ok := ws.Files.Find(models.Root, "README.md")
	require.True(t, ok)
	assert.True(t, f.Orphaned)
	assert.ErrorIs(t, ws.Files.Save(ctx, models.Root, readme), ErrOrphaned)

	fs.addFile("", "README.md", "")
	follow(t, ws, protocol.SSEEvent{Type: protocol.EventCreate, Path: "README.md", Kind: models.KindFile})

	f, ok = ws.Files.Find(models.Root, "README.md")
	require.True(t, ok)
	assert.False(t, f.Orphaned)
	assert.Equal(t, "unsaved", string(f.Content))
	require.NoError(t, ws.Files.Save(ctx, models.Root, readme))
	assert.Equal(t, "unsaved", fs.file("README.md"))
}

func TestFollow_StopsOnCancel(t *testing.T) {
	ws := newTestWorkspace(t, sampleFS())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ws.Follow(ctx, make(chan protocol.SSEEvent))
	assert.ErrorIs(t, err, context.Canceled)
}
