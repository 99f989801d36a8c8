// Package watcher polls a filesystem and publishes change events.
package watcher

import (
	"context"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/sly67/treedesk/internal/events"
	"github.com/sly67/treedesk/pkg/models"
	"github.com/sly67/treedesk/pkg/protocol"
)

// Publisher receives change events.
type Publisher interface {
	Publish(events.Event)
}

type entryState struct {
	kind  models.Kind
	mtime int64
	size  int64
}

// Watcher detects creates, modifications and deletes by comparing
// successive walks of the filesystem.
type Watcher struct {
	fs       afero.Fs
	interval time.Duration
	pub      Publisher
	log      *zap.Logger

	mu    sync.Mutex
	state map[string]entryState // relative path -> state
}

// New creates a new watcher over fsys. Paths in events are relative to the
// root of fsys.
func New(fsys afero.Fs, interval time.Duration, pub Publisher, log *zap.Logger) *Watcher {
	if interval == 0 {
		interval = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{
		fs:       fsys,
		interval: interval,
		pub:      pub,
		log:      log,
		state:    make(map[string]entryState),
	}
}

// Start takes the initial snapshot and polls until ctx is done.
func (w *Watcher) Start(ctx context.Context) {
	w.Snapshot()
	go w.watchLoop(ctx)
}

// Snapshot records the current state without publishing anything.
func (w *Watcher) Snapshot() {
	state := w.scan()
	w.mu.Lock()
	w.state = state
	w.mu.Unlock()
}

func (w *Watcher) watchLoop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Poll()
		case <-ctx.Done():
			return
		}
	}
}

// skip reports whether a path is one of our own in-flight temp files.
func skip(rel string) bool {
	base := rel[strings.LastIndex(rel, "/")+1:]
	return strings.HasPrefix(base, ".treedesk-") && strings.HasSuffix(base, ".tmp")
}

func (w *Watcher) scan() map[string]entryState {
	state := make(map[string]entryState)
	afero.Walk(w.fs, "/", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // vanished mid-walk
		}
		rel := strings.TrimPrefix(p, "/")
		if rel == "" || skip(rel) {
			return nil
		}
		kind := models.KindFile
		if info.IsDir() {
			kind = models.KindDirectory
		}
		state[rel] = entryState{kind: kind, mtime: info.ModTime().UnixNano(), size: info.Size()}
		return nil
	})
	return state
}

// Poll compares the filesystem with the last snapshot and publishes the
// differences. Creates and deletes are reported for the topmost path only;
// directories never produce modify events.
func (w *Watcher) Poll() []events.Event {
	next := w.scan()

	w.mu.Lock()
	prev := w.state
	w.state = next
	w.mu.Unlock()

	now := time.Now().Unix()
	var out []events.Event

	for rel, cur := range next {
		old, existed := prev[rel]
		switch {
		case !existed || old.kind != cur.kind:
			if coveredByAncestor(rel, prev, next) {
				continue
			}
			out = append(out, events.Event{Type: protocol.EventCreate, Path: rel, Kind: cur.kind, Size: cur.size, Timestamp: now})
		case cur.kind == models.KindFile && (cur.mtime != old.mtime || cur.size != old.size):
			out = append(out, events.Event{Type: protocol.EventModify, Path: rel, Kind: cur.kind, Size: cur.size, Timestamp: now})
		}
	}
	for rel, old := range prev {
		if cur, ok := next[rel]; ok && cur.kind == old.kind {
			continue
		}
		if coveredByAncestor(rel, next, prev) {
			continue
		}
		out = append(out, events.Event{Type: protocol.EventDelete, Path: rel, Kind: old.kind, Timestamp: now})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Type < out[j].Type
	})

	for _, ev := range out {
		w.log.Debug("filesystem change",
			zap.String("type", ev.Type),
			zap.String("path", ev.Path))
		if w.pub != nil {
			w.pub.Publish(ev)
		}
	}
	return out
}

// coveredByAncestor reports whether some ancestor of rel is a directory in
// b but not in a, so the event for that ancestor already covers rel.
func coveredByAncestor(rel string, a, b map[string]entryState) bool {
	for i := strings.LastIndex(rel, "/"); i > 0; i = strings.LastIndex(rel[:i], "/") {
		parent := rel[:i]
		pb, inB := b[parent]
		pa, inA := a[parent]
		if inB && pb.kind == models.KindDirectory && (!inA || pa.kind != models.KindDirectory) {
			return true
		}
	}
	return false
}
