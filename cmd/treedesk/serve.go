package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sly67/treedesk/internal/api"
	"github.com/sly67/treedesk/internal/events"
	"github.com/sly67/treedesk/internal/logging"
	"github.com/sly67/treedesk/internal/metrics"
	"github.com/sly67/treedesk/internal/storage"
	"github.com/sly67/treedesk/internal/storage/local"
	"github.com/sly67/treedesk/internal/watcher"
)

var (
	serveListen  string
	serveRoot    string
	serveMetrics string
	serveWatch   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a directory tree over HTTP",
	Long: `serve exposes the configured storage backend through the files and
content API, streams change events on /api/v1/events and optionally serves
Prometheus metrics on a separate listener.

Examples:
  treedesk serve --root ~/notes
  treedesk serve --listen :3000 --metrics :9090 --watch
  TREEDESK_STORAGE_BACKEND=s3 TREEDESK_S3_BUCKET=docs treedesk serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveListen, "listen", "", "listen address (default $TREEDESK_LISTEN_ADDR)")
	f.StringVar(&serveRoot, "root", "", "directory to serve with the local backend (default $TREEDESK_ROOT)")
	f.StringVar(&serveMetrics, "metrics", "", "metrics listen address (default $TREEDESK_METRICS_ADDR)")
	f.BoolVar(&serveWatch, "watch", false, "poll the local root for changes made outside the server")
}

func runServe(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.ListenAddr = serveListen
	}
	if flags.Changed("root") {
		cfg.Root = serveRoot
	}
	if flags.Changed("metrics") {
		cfg.MetricsAddr = serveMetrics
	}
	if flags.Changed("watch") {
		cfg.Watch = serveWatch
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.Info("treedesk server starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("backend", cfg.StorageBackend),
		zap.String("metrics", cfg.MetricsAddr))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := storage.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()
	logging.Info("storage backend ready", zap.String("type", backend.Type()))

	broadcaster := events.NewBroadcaster()

	if cfg.Watch {
		if lb, ok := storage.Unwrap(backend).(*local.LocalBackend); ok {
			w := watcher.New(lb.Fs(), cfg.WatchInterval, broadcaster, logging.L().Named("watcher"))
			w.Start(ctx)
			logging.Info("watching for changes", zap.Duration("interval", cfg.WatchInterval))
		} else {
			logging.Warn("change watching is only supported by the local backend",
				zap.String("backend", backend.Type()))
		}
	}

	srv := api.NewServer(backend, broadcaster, cfg.MaxContentSize)

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: metrics.Handler(),
		}
		go func() {
			logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
			if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
				logging.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Event streams end when ctx is cancelled, letting Shutdown finish.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		cancel()
		if metricsServer != nil {
			metricsServer.Close()
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	logging.Info("server listening", zap.String("addr", cfg.ListenAddr))
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	logging.Info("server stopped")
	return nil
}
