package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/sly67/treedesk/pkg/expansion"
	"github.com/sly67/treedesk/pkg/models"
	"github.com/sly67/treedesk/pkg/workspace"
)

// printListing writes one entry per line, directories with a trailing "/".
func printListing(w io.Writer, nodes []*models.Node) {
	for _, n := range nodes {
		if n.IsDir() {
			fmt.Fprintf(w, "%s/\n", n.Name)
			continue
		}
		fmt.Fprintln(w, n.Name)
	}
}

// printTree draws the materialized tree. Expanded directories show their
// children; "+" marks a collapsed directory and "-" an expanded one.
func printTree(w io.Writer, nodes []*models.Node, expanded *expansion.Tracker) {
	printLevel(w, models.Root, nodes, expanded, 0)
}

func printLevel(w io.Writer, parent models.Path, nodes []*models.Node, expanded *expansion.Tracker, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, n := range nodes {
		if !n.IsDir() {
			fmt.Fprintf(w, "%s  %s\n", indent, n.Name)
			continue
		}
		p, err := parent.Append(n.Name)
		if err != nil {
			continue
		}
		open := expanded.IsExpanded(p.FullPath()) && n.Loaded()
		marker := "+"
		if open {
			marker = "-"
		}
		fmt.Fprintf(w, "%s%s %s/\n", indent, marker, n.Name)
		if open {
			printLevel(w, p, n.Children, expanded, depth+1)
		}
	}
}

// printWorkingFiles lists open files. "*" marks the current file; touched
// files are flagged "modified" and orphaned ones "deleted".
func printWorkingFiles(w io.Writer, files []*workspace.WorkingFile, current string) {
	for _, f := range files {
		mark := " "
		if f.Key() == current {
			mark = "*"
		}
		var flags []string
		if f.Touched {
			flags = append(flags, "modified")
		}
		if f.Orphaned {
			flags = append(flags, "deleted")
		}
		line := fmt.Sprintf("%s %s", mark, f.FullPath())
		if len(flags) > 0 {
			line += " [" + strings.Join(flags, ", ") + "]"
		}
		fmt.Fprintln(w, line)
	}
}
