// treedesk serves a directory tree over HTTP and browses it from the
// command line.
//
// Commands:
//   - serve: file server with change events and metrics
//   - ls, cat, mkdir, touch, mv, rm: one-shot operations
//   - shell: interactive browser that follows server changes
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sly67/treedesk/internal/config"
	"github.com/sly67/treedesk/internal/logging"
)

var (
	serverURL string
	localRoot string
	logLevel  string
	logFormat string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "treedesk",
	Short:         "Browse and edit a directory tree served over HTTP",
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}

		flags := cmd.Flags()
		if flags.Changed("server") {
			cfg.ServerURL = serverURL
		}
		if flags.Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if flags.Changed("log-format") {
			cfg.LogFormat = logFormat
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}

		return logging.Init(logging.Config{
			Level:  cfg.LogLevel,
			Format: cfg.LogFormat,
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&serverURL, "server", "s", "", "server URL (default $TREEDESK_SERVER_URL)")
	pf.StringVar(&localRoot, "local", "", "operate on a local directory instead of a server")
	pf.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&logFormat, "log-format", "", "log format: console or json")

	rootCmd.AddCommand(serveCmd, shellCmd)
	rootCmd.AddCommand(lsCmd, catCmd, mkdirCmd, touchCmd, mvCmd, rmCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "treedesk:", err)
		os.Exit(1)
	}
}
