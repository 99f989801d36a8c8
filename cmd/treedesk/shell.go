package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/c-bata/go-prompt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sly67/treedesk/internal/logging"
	"github.com/sly67/treedesk/pkg/client"
	"github.com/sly67/treedesk/pkg/models"
	"github.com/sly67/treedesk/pkg/tree"
	"github.com/sly67/treedesk/pkg/workspace"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Browse the tree interactively",
	Long: `shell opens an interactive session on the tree. Directories are
fetched on first visit, open files are kept in memory until saved, and
changes reported by the server refresh the directories you have loaded.

Type "help" inside the shell for the command list.`,
	Args: cobra.NoArgs,
	RunE: runShell,
}

type shellCommand struct {
	usage string
	help  string
	run   func(sh *shell, ctx context.Context, args []string) error
}

var shellCommands map[string]shellCommand

func init() {
	shellCommands = map[string]shellCommand{
		"help":   {"help", "show this list", (*shell).cmdHelp},
		"pwd":    {"pwd", "print the current directory", (*shell).cmdPwd},
		"ls":     {"ls [path]", "list a directory", (*shell).cmdLs},
		"cd":     {"cd [path]", "change directory", (*shell).cmdCd},
		"tree":   {"tree", "draw the loaded tree", (*shell).cmdTree},
		"toggle": {"toggle <dir>", "expand or collapse a directory", (*shell).cmdToggle},
		"open":   {"open <file>", "open a file and make it current", (*shell).cmdOpen},
		"cat":    {"cat", "print the current file", (*shell).cmdCat},
		"edit":   {"edit [text...]", "replace the current file's content, or edit it in $EDITOR", (*shell).cmdEdit},
		"save":   {"save", "write the current file", (*shell).cmdSave},
		"reset":  {"reset", "reload the current file, dropping edits", (*shell).cmdReset},
		"close":  {"close [-f]", "close the current file; -f discards edits", (*shell).cmdClose},
		"files":  {"files", "list open files", (*shell).cmdFiles},
		"mkdir":  {"mkdir <name>", "create a directory", (*shell).cmdMkdir},
		"touch":  {"touch <name>", "create an empty file", (*shell).cmdTouch},
		"mv":     {"mv <path> <new-name>", "rename an entry", (*shell).cmdMv},
		"rm":     {"rm <path>", "delete an entry", (*shell).cmdRm},
		"exit":   {"exit", "leave the shell", (*shell).cmdExit},
	}
}

// shell holds the interactive session state.
type shell struct {
	s      *session
	out    io.Writer
	cwd    models.Path
	editor func(name string, content []byte) ([]byte, error)

	mu      sync.Mutex
	busy    bool
	pending map[string]struct{} // directories refreshed in the background
	quit    bool
}

func newShell(s *session, out io.Writer) *shell {
	return &shell{
		s:       s,
		out:     out,
		editor:  externalEditor,
		pending: make(map[string]struct{}),
	}
}

func runShell(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	sh := newShell(s, os.Stdout)
	go sh.watchTree(ctx)

	if s.remote {
		sse := client.NewSSEClient(cfg.ServerURL, logging.L().Named("sse"))
		go func() {
			if err := s.ws.Follow(ctx, sse.Subscribe(ctx)); err != nil && !errors.Is(err, context.Canceled) {
				logging.Warn("stopped following server changes", zap.Error(err))
			}
		}()
	}

	p := prompt.New(
		func(in string) { sh.execute(ctx, in) },
		sh.complete,
		prompt.OptionTitle("treedesk"),
		prompt.OptionLivePrefix(sh.prefix),
		prompt.OptionPrefixTextColor(prompt.Blue),
		prompt.OptionInputTextColor(prompt.DefaultColor),
		prompt.OptionSetExitCheckerOnInput(func(in string, breakline bool) bool {
			return breakline && sh.done()
		}),
	)
	p.Run()
	return nil
}

// watchTree records directories refreshed while no command is running, so
// the next command can report them.
func (sh *shell) watchTree(ctx context.Context) {
	ch := sh.s.ws.Tree.Subscribe()
	defer sh.s.ws.Tree.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-ch:
			if !ok {
				return
			}
			sh.mu.Lock()
			if !sh.busy {
				sh.pending["/"+change.Path.FullPath()] = struct{}{}
			}
			sh.mu.Unlock()
		}
	}
}

func (sh *shell) done() bool {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.quit
}

func (sh *shell) prefix() (string, bool) {
	mark := ""
	if f, ok := sh.s.ws.Files.Current(); ok && f.Touched {
		mark = "*"
	}
	return fmt.Sprintf("treedesk:/%s%s> ", sh.cwd.FullPath(), mark), true
}

// execute runs one input line and prints any error.
func (sh *shell) execute(ctx context.Context, line string) {
	fields := strings.Fields(line)

	sh.mu.Lock()
	sh.busy = true
	var changed []string
	for p := range sh.pending {
		changed = append(changed, p)
	}
	sh.pending = make(map[string]struct{})
	sh.mu.Unlock()
	defer func() {
		sh.mu.Lock()
		sh.busy = false
		sh.mu.Unlock()
	}()

	if len(changed) > 0 {
		sort.Strings(changed)
		fmt.Fprintf(sh.out, "(updated from server: %s)\n", strings.Join(changed, ", "))
	}
	if len(fields) == 0 {
		return
	}

	name := fields[0]
	if name == "quit" {
		name = "exit"
	}
	c, ok := shellCommands[name]
	if !ok {
		fmt.Fprintf(sh.out, "unknown command %q, try \"help\"\n", fields[0])
		return
	}
	if err := c.run(sh, ctx, fields[1:]); err != nil {
		fmt.Fprintf(sh.out, "%s: %v\n", name, err)
	}
}

func (sh *shell) complete(d prompt.Document) []prompt.Suggest {
	before := d.TextBeforeCursor()
	if !strings.Contains(before, " ") {
		var s []prompt.Suggest
		for name, c := range shellCommands {
			s = append(s, prompt.Suggest{Text: name, Description: c.help})
		}
		sort.Slice(s, func(i, j int) bool { return s[i].Text < s[j].Text })
		return prompt.FilterHasPrefix(s, d.GetWordBeforeCursor(), true)
	}

	var nodes []*models.Node
	if sh.cwd.IsRoot() {
		nodes = sh.s.ws.Tree.Get()
	} else if n, ok := sh.s.ws.Tree.Lookup(sh.cwd); ok {
		nodes = n.Children
	}
	s := make([]prompt.Suggest, 0, len(nodes))
	for _, n := range nodes {
		desc := "file"
		if n.IsDir() {
			desc = "directory"
		}
		s = append(s, prompt.Suggest{Text: n.Name, Description: desc})
	}
	return prompt.FilterHasPrefix(s, d.GetWordBeforeCursor(), true)
}

// current returns the selected working file or an error saying there is none.
func (sh *shell) current() (*workspace.WorkingFile, error) {
	f, ok := sh.s.ws.Files.Current()
	if !ok {
		return nil, errors.New("no file is open")
	}
	return f, nil
}

func (sh *shell) arg(args []string, n int, usage string) error {
	if len(args) != n {
		return fmt.Errorf("usage: %s", usage)
	}
	return nil
}

func (sh *shell) cmdHelp(ctx context.Context, args []string) error {
	names := make([]string, 0, len(shellCommands))
	for name := range shellCommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := shellCommands[name]
		fmt.Fprintf(sh.out, "  %-22s %s\n", c.usage, c.help)
	}
	return nil
}

func (sh *shell) cmdPwd(ctx context.Context, args []string) error {
	fmt.Fprintf(sh.out, "/%s\n", sh.cwd.FullPath())
	return nil
}

func (sh *shell) cmdLs(ctx context.Context, args []string) error {
	dir := sh.cwd
	if len(args) > 0 {
		var err error
		if dir, err = resolve(sh.cwd, args[0]); err != nil {
			return err
		}
	}
	nodes, err := sh.s.children(ctx, dir)
	if err != nil {
		return err
	}
	printListing(sh.out, nodes)
	return nil
}

func (sh *shell) cmdCd(ctx context.Context, args []string) error {
	dir := models.Root
	if len(args) > 0 {
		var err error
		if dir, err = resolve(sh.cwd, args[0]); err != nil {
			return err
		}
	}
	if err := sh.s.reveal(ctx, dir); err != nil {
		return err
	}
	sh.cwd = dir
	return nil
}

func (sh *shell) cmdTree(ctx context.Context, args []string) error {
	printTree(sh.out, sh.s.ws.Tree.Get(), sh.s.ws.Expanded)
	fmt.Fprintf(sh.out, "(%d entries loaded)\n", tree.Count(sh.s.ws.Tree.Get()))
	return nil
}

func (sh *shell) cmdToggle(ctx context.Context, args []string) error {
	if err := sh.arg(args, 1, "toggle <dir>"); err != nil {
		return err
	}
	p, err := resolve(sh.cwd, args[0])
	if err != nil {
		return err
	}
	parent, node, err := sh.s.entry(ctx, p)
	if err != nil {
		return err
	}
	return sh.s.ws.Loader.Activate(ctx, parent, node)
}

func (sh *shell) cmdOpen(ctx context.Context, args []string) error {
	if err := sh.arg(args, 1, "open <file>"); err != nil {
		return err
	}
	p, err := resolve(sh.cwd, args[0])
	if err != nil {
		return err
	}
	parent, node, err := sh.s.entry(ctx, p)
	if err != nil {
		return err
	}
	f, err := sh.s.ws.Files.Open(ctx, parent, node)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "opened /%s (%d bytes)\n", f.FullPath(), len(f.Content))
	return nil
}

func (sh *shell) cmdCat(ctx context.Context, args []string) error {
	f, err := sh.current()
	if err != nil {
		return err
	}
	sh.out.Write(f.Content)
	if len(f.Content) > 0 && f.Content[len(f.Content)-1] != '\n' {
		fmt.Fprintln(sh.out)
	}
	return nil
}

func (sh *shell) cmdEdit(ctx context.Context, args []string) error {
	f, err := sh.current()
	if err != nil {
		return err
	}
	var content []byte
	if len(args) > 0 {
		content = []byte(strings.Join(args, " ") + "\n")
	} else if content, err = sh.editor(f.Node.Name, f.Content); err != nil {
		return err
	}
	return sh.s.ws.Files.Edit(f.Path, f.Node, content)
}

func (sh *shell) cmdSave(ctx context.Context, args []string) error {
	f, err := sh.current()
	if err != nil {
		return err
	}
	if err := sh.s.ws.Files.Save(ctx, f.Path, f.Node); err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "saved /%s\n", f.FullPath())
	return nil
}

func (sh *shell) cmdReset(ctx context.Context, args []string) error {
	f, err := sh.current()
	if err != nil {
		return err
	}
	return sh.s.ws.Files.ResetChange(ctx, f.Path, f.Node)
}

func (sh *shell) cmdClose(ctx context.Context, args []string) error {
	f, err := sh.current()
	if err != nil {
		return err
	}
	discard := len(args) == 1 && args[0] == "-f"
	err = sh.s.ws.Files.Close(f.Path, f.Node, discard)
	if errors.Is(err, workspace.ErrUnsavedChanges) {
		return fmt.Errorf("%w; save it or use close -f", err)
	}
	return err
}

func (sh *shell) cmdFiles(ctx context.Context, args []string) error {
	current := ""
	if f, ok := sh.s.ws.Files.Current(); ok {
		current = f.Key()
	}
	printWorkingFiles(sh.out, sh.s.ws.Files.List(), current)
	return nil
}

func (sh *shell) cmdMkdir(ctx context.Context, args []string) error {
	return sh.create(ctx, args, "mkdir <name>", models.KindDirectory)
}

func (sh *shell) cmdTouch(ctx context.Context, args []string) error {
	return sh.create(ctx, args, "touch <name>", models.KindFile)
}

func (sh *shell) create(ctx context.Context, args []string, usage string, kind models.Kind) error {
	if err := sh.arg(args, 1, usage); err != nil {
		return err
	}
	p, err := resolve(sh.cwd, args[0])
	if err != nil {
		return err
	}
	if p.IsRoot() {
		return fmt.Errorf("%q: %w", args[0], models.ErrInvalidPath)
	}
	if err := sh.s.reveal(ctx, p.Parent()); err != nil {
		return err
	}
	return sh.s.ws.Reconciler.Create(ctx, p.Parent(), p.Base(), kind)
}

func (sh *shell) cmdMv(ctx context.Context, args []string) error {
	if err := sh.arg(args, 2, "mv <path> <new-name>"); err != nil {
		return err
	}
	p, err := resolve(sh.cwd, args[0])
	if err != nil {
		return err
	}
	parent, node, err := sh.s.entry(ctx, p)
	if err != nil {
		return err
	}
	if err := sh.s.ws.Reconciler.Rename(ctx, parent, node.Name, args[1]); err != nil {
		return err
	}
	if renamed, err := parent.Append(args[1]); err == nil && sh.cwd.HasPrefix(p) {
		sh.cwd = sh.cwd.Rebase(p, renamed)
	}
	return nil
}

func (sh *shell) cmdRm(ctx context.Context, args []string) error {
	if err := sh.arg(args, 1, "rm <path>"); err != nil {
		return err
	}
	p, err := resolve(sh.cwd, args[0])
	if err != nil {
		return err
	}
	parent, node, err := sh.s.entry(ctx, p)
	if err != nil {
		return err
	}
	if err := sh.s.ws.Reconciler.Delete(ctx, parent, node.Name); err != nil {
		return err
	}
	if sh.cwd.HasPrefix(p) {
		sh.cwd = parent
	}
	return nil
}

func (sh *shell) cmdExit(ctx context.Context, args []string) error {
	for _, f := range sh.s.ws.Files.List() {
		if f.Touched {
			fmt.Fprintf(sh.out, "warning: /%s has unsaved changes\n", f.FullPath())
		}
	}
	sh.mu.Lock()
	sh.quit = true
	sh.mu.Unlock()
	return nil
}

// externalEditor edits content in $EDITOR through a temporary file.
func externalEditor(name string, content []byte) ([]byte, error) {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}

	tmp, err := os.CreateTemp("", "treedesk-*-"+name)
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}

	cmd := exec.Command(editor, tmp.Name())
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("error running %s: %w", editor, err)
	}
	return os.ReadFile(tmp.Name())
}
