// Command catalogsync imports supplier XML catalogs into the product store.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-catalog-sync/config"
	"github.com/aluiziolira/go-catalog-sync/importer"
	"github.com/aluiziolira/go-catalog-sync/logging"
	"github.com/aluiziolira/go-catalog-sync/parser"
	"github.com/aluiziolira/go-catalog-sync/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds state shared by every subcommand after PersistentPreRunE.
type app struct {
	envFile    string
	dir        string
	backend    string
	sqlitePath string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	logger zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "catalogsync",
		Short: "Import supplier XML catalogs into the product store",
		Long: `catalogsync parses supplier XML catalogs into canonical product records and stores
each stock code once. Files already represented in the store are skipped on reconciliation.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.envFile, "env-file", ".env", "dotenv file read before the environment")
	flags.StringVar(&a.dir, "dir", "", "catalog directory (overrides ASSETS_DIR_PATH)")
	flags.StringVar(&a.backend, "store", "", "store backend: mongo, sqlite, or memory (overrides STORE_BACKEND)")
	flags.StringVar(&a.sqlitePath, "sqlite-path", "", "SQLite database path (overrides SQLITE_PATH)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: auto, console, or json (overrides LOG_FORMAT)")

	root.AddCommand(
		newImportCmd(a),
		newReconcileCmd(a),
		newServeCmd(a),
		newFetchCmd(a),
		newExportCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("dir") {
		cfg.CatalogDir = a.dir
	}
	if flags.Changed("store") {
		cfg.StoreBackend = a.backend
	}
	if flags.Changed("sqlite-path") {
		cfg.SQLitePath = a.sqlitePath
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *app) newParser() *parser.Parser {
	return parser.New(parser.DefaultRules(), parser.WithExt(a.cfg.CatalogExt))
}

func (a *app) storeOptions() store.Options {
	return store.Options{
		Backend:         a.cfg.StoreBackend,
		MongoURI:        a.cfg.MongoURI,
		MongoDatabase:   a.cfg.MongoDatabase,
		MongoCollection: a.cfg.MongoCollection,
		SQLitePath:      a.cfg.SQLitePath,
	}
}

// newImporter opens the store and locker. The returned func releases both.
func (a *app) newImporter(ctx context.Context, metrics *importer.Metrics) (*importer.Importer, func(), error) {
	products, err := store.Open(ctx, a.storeOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	closers := []func() error{products.Close}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				a.logger.Error().Err(err).Msg("close resource")
			}
		}
	}

	opts := []importer.Option{
		importer.WithLogger(a.logger),
		importer.WithMetrics(metrics),
		importer.WithKnownCodeCache(a.cfg.KnownCodeCacheSize),
	}
	if a.cfg.LockBackend == "redis" {
		locker, err := importer.NewRedisLocker(ctx, a.cfg.RedisURL, a.cfg.LockTTL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect lock backend: %w", err)
		}
		closers = append(closers, locker.Close)
		opts = append(opts, importer.WithLocker(locker))
	}

	imp, err := importer.New(a.cfg.CatalogDir, a.newParser(), products, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	a.logger.Debug().
		Str("dir", a.cfg.CatalogDir).
		Str("store", a.cfg.StoreBackend).
		Str("lock", a.cfg.LockBackend).
		Msg("importer ready")
	return imp, cleanup, nil
}
