package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sly67/treedesk/pkg/models"
)

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *session) error {
			dir := models.Root
			if len(args) > 0 {
				var err error
				if dir, err = resolve(models.Root, args[0]); err != nil {
					return err
				}
			}
			nodes, err := s.children(ctx, dir)
			if err != nil {
				return err
			}
			printListing(cmd.OutOrStdout(), nodes)
			return nil
		})
	},
}

var catCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: "Print a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTarget(cmd, args[0], func(ctx context.Context, s *session, parent models.Path, node *models.Node) error {
			f, err := s.ws.Files.Open(ctx, parent, node)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(f.Content)
			return err
		})
	},
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <path>",
	Short: "Create a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return create(cmd, args[0], models.KindDirectory)
	},
}

var touchCmd = &cobra.Command{
	Use:   "touch <path>",
	Short: "Create an empty file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return create(cmd, args[0], models.KindFile)
	},
}

var mvCmd = &cobra.Command{
	Use:   "mv <path> <new-name>",
	Short: "Rename an entry within its directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTarget(cmd, args[0], func(ctx context.Context, s *session, parent models.Path, node *models.Node) error {
			return s.ws.Reconciler.Rename(ctx, parent, node.Name, args[1])
		})
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <path>",
	Short: "Delete an entry, recursively for directories",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTarget(cmd, args[0], func(ctx context.Context, s *session, parent models.Path, node *models.Node) error {
			return s.ws.Reconciler.Delete(ctx, parent, node.Name)
		})
	},
}

func create(cmd *cobra.Command, arg string, kind models.Kind) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		p, err := resolve(models.Root, arg)
		if err != nil {
			return err
		}
		if p.IsRoot() {
			return fmt.Errorf("%q: %w", arg, models.ErrInvalidPath)
		}
		if err := s.reveal(ctx, p.Parent()); err != nil {
			return err
		}
		return s.ws.Reconciler.Create(ctx, p.Parent(), p.Base(), kind)
	})
}

func withSession(cmd *cobra.Command, fn func(context.Context, *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	return fn(ctx, s)
}

func withTarget(cmd *cobra.Command, arg string, fn func(context.Context, *session, models.Path, *models.Node) error) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		p, err := resolve(models.Root, arg)
		if err != nil {
			return err
		}
		parent, node, err := s.entry(ctx, p)
		if err != nil {
			return err
		}
		return fn(ctx, s, parent, node)
	})
}
