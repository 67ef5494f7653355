// Package cli implements the caldora-recur command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cyp0633/caldora-recur/internal/config"
	"github.com/cyp0633/caldora-recur/internal/logging"
	"github.com/cyp0633/caldora-recur/server/occurrence"
	"github.com/cyp0633/caldora-recur/server/recurrence"
	"github.com/cyp0633/caldora-recur/server/storage"
	"github.com/cyp0633/caldora-recur/server/storage/document"
	"github.com/cyp0633/caldora-recur/server/storage/memory"
	"github.com/cyp0633/caldora-recur/server/storage/sqlite"
)

// globals holds the persistent flags shared by every command.
type globals struct {
	configFile   string
	envFile      string
	organization string
	resourcePath string
}

func (g *globals) scope() storage.Scope {
	return storage.Scope{Organization: g.organization, ResourcePath: g.resourcePath}
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "caldora-recur",
		Short: "Recurring calendar entries with per-occurrence overrides.",
		Long: `caldora-recur stores recurrence patterns and standalone instances, expands
them into occurrences on demand and records cancellations and modifications
of individual occurrences.`,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&g.configFile, "config", "", "config file (default is $HOME/.caldora-recur.yaml)")
	flags.StringVar(&g.envFile, "env-file", "", "dotenv file (default is ./.env when present)")
	flags.StringVar(&g.organization, "org", "", "organization scope")
	flags.StringVar(&g.resourcePath, "resource-path", "", "resource path scope")

	root.AddCommand(
		newPatternCommand(g),
		newInstanceCommand(g),
		newOccurrencesCommand(g),
		newUpdateCommand(g),
		newDeleteCommand(g),
		newRestoreCommand(g),
		newConfigCommand(g),
		newServeCommand(g),
	)
	return root
}

// Execute runs the root command against os.Args.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// app is one command's wiring: configuration, logger, backend and service.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	backend storage.Backend
	engine  *recurrence.Engine
	svc     *occurrence.Service
}

func (g *globals) open(ctx context.Context, stderr io.Writer) (*app, error) {
	cfg, err := config.Load(config.Options{File: g.configFile, EnvFile: g.envFile})
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, stderr)
	if err != nil {
		return nil, err
	}

	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Backend, err)
	}

	engineCfg := recurrence.DisabledCacheConfig
	if cfg.Engine.CacheEnabled {
		engineCfg = recurrence.DefaultEngineConfig
		if cfg.Engine.CacheTTL > 0 {
			engineCfg.CacheConfig.TTL = cfg.Engine.CacheTTL
		}
	}
	engineCfg.MaxCandidatesPerPattern = cfg.Engine.MaxCandidates
	engineCfg.Logger = logger
	engine := recurrence.NewEngineWithConfig(engineCfg)

	opts := []occurrence.Option{occurrence.WithLogger(logger), occurrence.WithEngine(engine)}
	if cfg.IDs.Scheme == config.SchemeULID {
		opts = append(opts, occurrence.WithIDGenerator(occurrence.NewULIDGenerator()))
	}
	svc, err := occurrence.New(backend, opts...)
	if err != nil {
		engine.Close()
		backend.Close()
		return nil, err
	}
	logger.Debug("storage opened", "backend", cfg.Storage.Backend, "path", cfg.StoragePath())
	return &app{cfg: cfg, logger: logger, backend: backend, engine: engine, svc: svc}, nil
}

func (a *app) Close() {
	a.engine.Close()
	if err := a.backend.Close(); err != nil {
		a.logger.Error("close storage", "error", err)
	}
}

func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Backend, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return memory.New(), nil
	case config.BackendDocument:
		return document.Open(document.Config{Path: cfg.StoragePath(), Logger: logger})
	default:
		return sqlite.Open(ctx, sqlite.Config{Path: cfg.StoragePath(), Driver: cfg.Storage.SQLiteDriver})
	}
}

// run opens the app around fn and logs a failure before returning it.
func (g *globals) run(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := g.open(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()
	if err := fn(ctx, a); err != nil {
		a.logger.Error("command failed", "command", cmd.CommandPath(), "error", err)
		return err
	}
	return nil
}
