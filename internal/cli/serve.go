package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/greenroomhq/greenroom/internal/api"
	"github.com/greenroomhq/greenroom/internal/config"
	"github.com/greenroomhq/greenroom/internal/db"
	"github.com/greenroomhq/greenroom/internal/db/driver"
	"github.com/greenroomhq/greenroom/internal/diff"
	"github.com/greenroomhq/greenroom/internal/events"
	"github.com/greenroomhq/greenroom/internal/git"
	"github.com/greenroomhq/greenroom/internal/hosting"
	"github.com/greenroomhq/greenroom/internal/orchestrator"
	"github.com/greenroomhq/greenroom/internal/workspace"
)

// newServeCmd creates the serve command for the API server.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the greenroom API server.

The server provides REST endpoints and a diff websocket for:
  • Attempt creation, follow-ups, and process control
  • Branch status, merge, rebase, push, and rename
  • Live worktree diff streaming

Example:
  greenroom serve              # Start on the configured port (default 8617)
  greenroom serve --port 3000  # Start on a custom port`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port, _ = cmd.Flags().GetInt("port")
			}

			logger := newLogger(cfg.Log)
			slog.SetDefault(logger)

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			publisher := events.NewMemoryPublisher()
			gitSvc := git.NewService()
			diffs := diff.NewService(diff.NewCache(100))

			root, err := filepath.Abs(cfg.Workspace.Root)
			if err != nil {
				return fmt.Errorf("resolve workspace root: %w", err)
			}
			container := workspace.NewContainer(root, store, gitSvc, diffs, publisher, logger)

			opts := []orchestrator.Option{
				orchestrator.WithLogger(logger),
				orchestrator.WithRemote(cfg.GitHub.DefaultRemote),
			}
			var poller *hosting.Poller
			if cfg.GitHub.Token != "" {
				provider, err := hosting.NewGitHub(cfg.GitHub.Token, "")
				if err != nil {
					return fmt.Errorf("github client: %w", err)
				}
				opts = append(opts, orchestrator.WithHosting(provider))
				poller = hosting.NewPoller(store, gitSvc, provider, publisher,
					cfg.GitHub.DefaultRemote, cfg.GitHub.PollInterval, logger)
			} else {
				logger.Info("no github token configured, PR integration disabled")
			}

			orch := orchestrator.New(store, gitSvc, container, publisher, opts...)
			server := api.New(&api.Config{
				Addr:   cfg.Server.Addr(),
				Logger: logger,
				Poller: poller,
			}, store, orch)

			fmt.Printf("Starting API server on %s\n", cfg.Server.Addr())
			fmt.Println("Press Ctrl+C to stop")

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				fmt.Println("\nShutting down...")
				cancel()
			}()

			return server.Start(ctx)
		},
	}

	cmd.Flags().Int("port", 8617, "port to listen on")
	return cmd
}

func openStore(cfg *config.Config) (*db.Store, error) {
	switch cfg.Database.Driver {
	case "postgres":
		return db.OpenWithDialect(cfg.Database.DSN, driver.DialectPostgres)
	default:
		path := cfg.Database.Path
		if !filepath.IsAbs(path) {
			abs, err := filepath.Abs(path)
			if err != nil {
				return nil, fmt.Errorf("resolve database path: %w", err)
			}
			path = abs
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		return db.Open(path)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
