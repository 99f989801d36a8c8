package workspace

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sly67/treedesk/pkg/models"
)

// fakeFS is an in-memory collaborator. Keys are "/"-joined full paths,
// "" being the root directory.
type fakeFS struct {
	mu      sync.Mutex
	dirs    map[string][]models.Entry
	content map[string][]byte
	calls   map[string]int
	fail    map[string]error
	gates   map[string]chan struct{}
}

func newFakeFS() *fakeFS {
	return &fakeFS{
		dirs:    map[string][]models.Entry{"": {}},
		content: make(map[string][]byte),
		calls:   make(map[string]int),
		fail:    make(map[string]error),
		gates:   make(map[string]chan struct{}),
	}
}

// sampleFS builds:
//
//	src/
//	  main.go
//	  lib/
//	    util.go
//	README.md
func sampleFS() *fakeFS {
	f := newFakeFS()
	f.addDir("", "src")
	f.addFile("src", "main.go", "package main")
	f.addDir("src", "lib")
	f.addFile("src/lib", "util.go", "package lib")
	f.addFile("", "README.md", "# readme")
	return f
}

func join(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

func (f *fakeFS) addDir(parent, name string) {
	f.dirs[parent] = append(f.dirs[parent], models.Entry{Name: name, Type: models.KindDirectory})
	f.dirs[join(parent, name)] = []models.Entry{}
}

func (f *fakeFS) addFile(parent, name, data string) {
	f.dirs[parent] = append(f.dirs[parent], models.Entry{Name: name, Type: models.KindFile})
	f.content[join(parent, name)] = []byte(data)
}

func (f *fakeFS) setFail(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, key)
		return
	}
	f.fail[key] = err
}

// gate makes the next calls for key block until the returned channel is
// closed.
func (f *fakeFS) gate(key string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[key] = ch
	return ch
}

func (f *fakeFS) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeFS) enter(key string) error {
	f.mu.Lock()
	f.calls[key]++
	gate := f.gates[key]
	err := f.fail[key]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return err
}

func (f *fakeFS) indexOf(parent, name string) int {
	for i, e := range f.dirs[parent] {
		if e.Name == name {
			return i
		}
	}
	return -1
}

func (f *fakeFS) ListDirectory(ctx context.Context, path string) ([]*models.Node, error) {
	if err := f.enter("list:" + path); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, ok := f.dirs[path]
	if !ok {
		return nil, fmt.Errorf("no such directory %q", path)
	}
	return models.NodesFromEntries(entries), nil
}

func (f *fakeFS) CreateEntry(ctx context.Context, parent, name string, kind models.Kind) error {
	if err := f.enter("create:" + join(parent, name)); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.dirs[parent]; !ok {
		return fmt.Errorf("no such directory %q", parent)
	}
	if f.indexOf(parent, name) >= 0 {
		return fmt.Errorf("%q already exists", join(parent, name))
	}
	if kind == models.KindDirectory {
		f.addDir(parent, name)
	} else {
		f.addFile(parent, name, "")
	}
	return nil
}

func (f *fakeFS) RenameEntry(ctx context.Context, parent, oldName, newName string) error {
	if err := f.enter("rename:" + join(parent, oldName)); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.indexOf(parent, oldName)
	if i < 0 {
		return fmt.Errorf("%q not found", join(parent, oldName))
	}
	if f.indexOf(parent, newName) >= 0 {
		return fmt.Errorf("%q already exists", join(parent, newName))
	}
	f.dirs[parent][i].Name = newName

	from, to := join(parent, oldName), join(parent, newName)
	for k, v := range f.dirs {
		if k == from || strings.HasPrefix(k, from+"/") {
			delete(f.dirs, k)
			f.dirs[to+strings.TrimPrefix(k, from)] = v
		}
	}
	for k, v := range f.content {
		if k == from || strings.HasPrefix(k, from+"/") {
			delete(f.content, k)
			f.content[to+strings.TrimPrefix(k, from)] = v
		}
	}
	return nil
}

func (f *fakeFS) DeleteEntry(ctx context.Context, parent, name string) error {
	if err := f.enter("delete:" + join(parent, name)); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.indexOf(parent, name)
	if i < 0 {
		return fmt.Errorf("%q not found", join(parent, name))
	}
	f.dirs[parent] = append(f.dirs[parent][:i], f.dirs[parent][i+1:]...)

	target := join(parent, name)
	for k := range f.dirs {
		if k == target || strings.HasPrefix(k, target+"/") {
			delete(f.dirs, k)
		}
	}
	for k := range f.content {
		if k == target || strings.HasPrefix(k, target+"/") {
			delete(f.content, k)
		}
	}
	return nil
}

func (f *fakeFS) ReadFileContent(ctx context.Context, path, name string) ([]byte, error) {
	if err := f.enter("read:" + join(path, name)); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.content[join(path, name)]
	if !ok {
		return nil, fmt.Errorf("%q not found", join(path, name))
	}
	return append([]byte(nil), data...), nil
}

func (f *fakeFS) WriteFileContent(ctx context.Context, path, name string, data []byte) error {
	if err := f.enter("write:" + join(path, name)); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.dirs[path]; !ok {
		return fmt.Errorf("no such directory %q", path)
	}
	if f.indexOf(path, name) < 0 {
		f.dirs[path] = append(f.dirs[path], models.Entry{Name: name, Type: models.KindFile})
	}
	f.content[join(path, name)] = append([]byte(nil), data...)
	return nil
}

func (f *fakeFS) file(full string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.content[full])
}
