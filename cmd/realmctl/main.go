package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/ektropy/realm-authz/internal/cache"
	"github.com/ektropy/realm-authz/internal/cli"
	"github.com/ektropy/realm-authz/internal/config"
	"github.com/ektropy/realm-authz/internal/constants"
	"github.com/ektropy/realm-authz/internal/directory"
	"github.com/ektropy/realm-authz/internal/exportimport"
	"github.com/ektropy/realm-authz/internal/graph"
	"github.com/ektropy/realm-authz/internal/models"
	"github.com/ektropy/realm-authz/internal/persistence"
	"github.com/ektropy/realm-authz/internal/session"
	"github.com/ektropy/realm-authz/internal/store"
	"go.uber.org/zap"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	var (
		configFile   = flag.String("config", "", "Path to configuration file (YAML, TOML, or JSON)")
		realmName    = flag.String("realm", "", "Realm name to operate on")
		importRealm  = flag.String("import-realm", "", "Restore a full realm representation from a JSON file")
		restoreID    = flag.String("restore", "", "Restore a realm from its persisted snapshot by realm id")
		validateOnly = flag.Bool("validate-only", false, "Only validate configuration, don't run")
		importRoles  = flag.String("import", "", "Partial role import from a JSON file into -realm")
		skipExisting = flag.Bool("skip-existing", false, "Skip conflicting items on import instead of aborting")
		exportFile   = flag.String("export", "", "Write the realm's role export to this file")
		serverExport = flag.Bool("server-export", false, "Write the role export to the configured export directory")
		condensed    = flag.Bool("condensed", false, "Condensed (non-indented) JSON output")
		showVersion  = flag.Bool("version", false, "Show version information")
		showHelp     = flag.Bool("help", false, "Show usage information")
	)
	flag.Usage = cli.ShowUsage
	flag.Parse()

	if *showHelp {
		cli.ShowUsage()
		return
	}
	if *showVersion {
		cli.ShowVersion(version, commit, date)
		return
	}

	basicLogger, _ := zap.NewProduction()
	if basicLogger == nil {
		basicLogger, _ = zap.NewDevelopment()
	}
	defer basicLogger.Sync()

	cfg, err := config.LoadWithConfigFile(*configFile)
	if err != nil {
		basicLogger.Fatal("Failed to load configuration",
			zap.Error(err),
			zap.String("config_file", *configFile),
			zap.String("help", "Ensure configuration file exists or set environment variables with REALM_ prefix"))
	}

	logger, err := config.NewLogger(cfg.Environment)
	if err != nil {
		basicLogger.Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync()

	if *validateOnly {
		logger.Info("Configuration is valid",
			zap.String("environment", cfg.Environment),
			zap.Bool("storage_enabled", cfg.Storage.Enabled),
			zap.Bool("cache_enabled", cfg.Cache.Enabled))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultTimeout)
	defer cancel()

	app, err := wire(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize", zap.Error(err))
		os.Exit(1)
	}
	defer app.close()

	if err := app.run(ctx, runOptions{
		realmName:    *realmName,
		restoreID:    *restoreID,
		importRealm:  *importRealm,
		importRoles:  *importRoles,
		skipExisting: *skipExisting,
		exportFile:   *exportFile,
		serverExport: *serverExport,
		condensed:    *condensed,
	}); err != nil {
		logger.Error("Operation failed", zap.Error(err))
		os.Exit(1)
	}
}

type application struct {
	cfg         *config.Config
	logger      *zap.Logger
	dir         *directory.Directory
	coordinator *session.Coordinator
	gateway     *exportimport.Gateway
	cache       cache.Cache
	snapshots   *persistence.SnapshotStore
}

type runOptions struct {
	realmName    string
	restoreID    string
	importRealm  string
	importRoles  string
	skipExisting bool
	exportFile   string
	serverExport bool
	condensed    bool
}

func wire(cfg *config.Config, logger *zap.Logger) (*application, error) {
	app := &application{cfg: cfg, logger: logger}

	var flusher session.Flusher
	if cfg.Storage.Enabled {
		db, err := persistence.Connect(cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("storage connection failed: %w", err)
		}
		snapshots, err := persistence.NewSnapshotStore(db, logger)
		if err != nil {
			return nil, err
		}
		app.snapshots = snapshots
		flusher = snapshots
	} else {
		flusher = session.FlusherFunc(func(ctx context.Context, realmID string) error {
			logger.Debug("No storage configured, flush is a no-op", zap.String("realm_id", realmID))
			return nil
		})
	}

	if cfg.Cache.Enabled {
		valkeyCache, err := cache.NewValkeyCache(cache.Config{
			Host:     cfg.Cache.Host,
			Port:     cfg.Cache.Port,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			Prefix:   cfg.Cache.Prefix,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("cache connection failed: %w", err)
		}
		app.cache = valkeyCache
	}

	entityStore := store.New()
	roleGraph := graph.New(entityStore)
	app.coordinator = session.NewCoordinator(flusher, logger)
	app.dir = directory.New(entityStore, roleGraph, app.coordinator, logger)
	app.gateway = exportimport.New(app.dir, app.cache, logger)
	if app.snapshots != nil {
		app.snapshots.BindExporter(app.gateway)
	}
	return app, nil
}

func (a *application) close() {
	if a.cache != nil {
		a.cache.Close()
	}
}

func (a *application) run(ctx context.Context, opts runOptions) error {
	s := a.coordinator.Begin()

	var realm *models.Realm

	if opts.restoreID != "" {
		if a.snapshots == nil {
			return fmt.Errorf("-restore requires storage to be enabled")
		}
		rep, err := a.snapshots.Load(ctx, opts.restoreID)
		if err != nil {
			return err
		}
		realm, err = a.gateway.ImportRealm(ctx, s, rep)
		if err != nil {
			a.coordinator.Rollback(s)
			return err
		}
	}

	if realm == nil && opts.importRealm != "" {
		rep, err := readRealmFile(opts.importRealm)
		if err != nil {
			return err
		}
		realm, err = a.gateway.ImportRealm(ctx, s, rep)
		if err != nil {
			a.coordinator.Rollback(s)
			return err
		}
	}

	if realm == nil && opts.realmName != "" {
		var err error
		realm, err = a.dir.GetRealmByName(opts.realmName)
		if err != nil {
			if opts.importRoles == "" {
				return err
			}
			realm, err = a.dir.CreateRealm(s, opts.realmName)
			if err != nil {
				a.coordinator.Rollback(s)
				return err
			}
		}
	}
	if realm == nil {
		return fmt.Errorf("no realm selected: pass -realm or -import-realm")
	}

	if opts.importRoles != "" {
		rep, err := readRolesFile(opts.importRoles)
		if err != nil {
			return err
		}
		if err := a.gateway.ImportRoles(ctx, s, realm.ID, rep, opts.skipExisting); err != nil {
			a.coordinator.Rollback(s)
			return err
		}
	}

	commitCtx, cancel := context.WithTimeout(ctx, constants.CommitTimeout)
	defer cancel()
	if err := a.coordinator.Commit(commitCtx, s); err != nil {
		return err
	}
	if a.cache != nil {
		if err := a.gateway.InvalidateRealm(ctx, realm.ID); err != nil {
			a.logger.Warn("Cache invalidation failed", zap.String("realm_id", realm.ID), zap.Error(err))
		}
	}

	if opts.exportFile != "" {
		rep, err := a.gateway.ExportRoles(ctx, realm.ID)
		if err != nil {
			return err
		}
		if err := writeJSONFile(opts.exportFile, rep, opts.condensed); err != nil {
			return err
		}
		a.logger.Info("Roles exported", zap.String("path", opts.exportFile))
	}

	if opts.serverExport {
		path, err := a.gateway.ServerExport(ctx, realm.ID, a.cfg.Export.Dir, constants.DefaultExportFileName, opts.condensed || a.cfg.Export.Condensed)
		if err != nil {
			return err
		}
		a.logger.Info("Roles exported", zap.String("path", path))
	}

	return nil
}

func readRealmFile(path string) (*models.RealmRepresentation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read realm file: %w", err)
	}
	var rep models.RealmRepresentation
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("failed to parse realm file: %w", err)
	}
	return &rep, nil
}

func readRolesFile(path string) (*models.RolesRepresentation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roles file: %w", err)
	}
	var rep models.RolesRepresentation
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("failed to parse roles file: %w", err)
	}
	return &rep, nil
}

func writeJSONFile(path string, v interface{}, condensed bool) error {
	var (
		data []byte
		err  error
	)
	if condensed {
		data, err = json.Marshal(v)
	} else {
		data, err = json.MarshalIndent(v, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}
