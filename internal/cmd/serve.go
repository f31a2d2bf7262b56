package cmd

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/helix-kb/helixd/internal/config"
	"github.com/helix-kb/helixd/internal/observability"
	"github.com/helix-kb/helixd/pkg/daemon"
	"github.com/helix-kb/helixd/pkg/indexstore"
	"github.com/helix-kb/helixd/pkg/syncer"
	"github.com/helix-kb/helixd/pkg/syncqueue"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the helixd daemon",
	Long: `Start the daemon: bind the unix socket, open the document
index, and serve sync commands until SIGINT, SIGTERM, or a shutdown
request arrives.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("index", "", "Path to the sqlite document index (default from config)")
	serveCmd.Flags().String("log-file", "", "Also log to this rotated file")
}

func runServe(cmd *cobra.Command, _ []string) error {
	overrides := map[string]any{}
	if socket, _ := cmd.Flags().GetString("socket"); socket != "" {
		overrides["socket"] = socket
	}
	if index, _ := cmd.Flags().GetString("index"); index != "" {
		overrides["index.path"] = index
	}
	if logFile, _ := cmd.Flags().GetString("log-file"); logFile != "" {
		overrides["logging.file"] = logFile
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		overrides["logging.level"] = level
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		return err
	}

	var sink *observability.FileSink
	if cfg.Logging.File != "" {
		sink = &observability.FileSink{
			Path:       daemon.ExpandTilde(cfg.Logging.File),
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
		}
	}
	log := observability.InitDaemonLogger(cfg.Logging.Level, cfg.Logging.Format, sink)

	indexPath := daemon.ExpandTilde(cfg.Index.Path)
	if err := os.MkdirAll(filepath.Dir(indexPath), 0755); err != nil {
		return err
	}
	store, err := indexstore.Open(cmd.Context(), indexstore.Config{Path: indexPath})
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	executor := syncer.New(store, syncer.Config{
		Includes: cfg.Sync.Includes,
		Excludes: cfg.Sync.Excludes,
	}, log)
	queue := syncqueue.New(executor, log)
	srv := daemon.New(cfg.Socket, versionInfo.Version, queue, log)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting helixd",
		zap.String("version", versionInfo.Version),
		zap.String("socket", srv.SocketPath()),
		zap.String("index", indexPath))

	return srv.Run(ctx)
}
