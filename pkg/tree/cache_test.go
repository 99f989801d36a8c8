package tree

import (
	"sync"
	"testing"
	"time"

	"github.com/sly67/treedesk/pkg/models"
)

func TestCache_ReplaceAndGet(t *testing.T) {
	c := NewCache()
	if len(c.Get()) != 0 {
		t.Fatal("new cache should be empty")
	}

	c.ReplaceChildrenAt(models.Root, []*models.Node{models.NewDirectory("a")})
	c.ReplaceChildrenAt(models.MustParsePath("a"), []*models.Node{models.NewFile("b.txt")})

	node, ok := c.Lookup(models.MustParsePath("a/b.txt"))
	if !ok || node.Kind != models.KindFile {
		t.Fatalf("Lookup(a/b.txt) = %v, %v", node, ok)
	}
	if c.Version() != 2 {
		t.Errorf("Version = %d, want 2", c.Version())
	}
}

func TestCache_SnapshotsAreStable(t *testing.T) {
	c := NewCache()
	c.ReplaceChildrenAt(models.Root, []*models.Node{models.NewDirectory("a"), models.NewDirectory("b")})
	snap := c.Get()

	c.ReplaceChildrenAt(models.MustParsePath("a"), []*models.Node{models.NewFile("x")})

	if snap[0].Loaded() {
		t.Error("earlier snapshot observed a later merge")
	}
	if c.Get()[1] != snap[1] {
		t.Error("untouched sibling not shared between snapshots")
	}
}

func TestCache_ConcurrentDisjointMerges(t *testing.T) {
	c := NewCache()
	names := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	root := make([]*models.Node, 0, len(names))
	for _, n := range names {
		root = append(root, models.NewDirectory(n))
	}
	c.ReplaceChildrenAt(models.Root, root)

	var wg sync.WaitGroup
	for _, n := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			c.ReplaceChildrenAt(models.MustParsePath(name), []*models.Node{models.NewFile(name + ".txt")})
		}(n)
	}
	wg.Wait()

	for _, n := range names {
		if _, ok := c.Lookup(models.MustParsePath(n + "/" + n + ".txt")); !ok {
			t.Errorf("merge for %s lost", n)
		}
	}
}

func TestCache_Subscribe(t *testing.T) {
	c := NewCache()
	ch := c.Subscribe()
	defer c.Unsubscribe(ch)

	c.ReplaceChildrenAt(models.Root, nil)

	select {
	case change := <-ch:
		if !change.Path.IsRoot() || change.Version != 1 {
			t.Errorf("change = %+v", change)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change")
	}
}

func TestCache_LoadingFlag(t *testing.T) {
	c := NewCache()
	if c.Loading() {
		t.Fatal("new cache should not be loading")
	}
	c.SetLoading(true)
	if !c.Loading() {
		t.Error("SetLoading(true) not observed")
	}
	c.SetLoading(false)
	if c.Loading() {
		t.Error("SetLoading(false) not observed")
	}
}
