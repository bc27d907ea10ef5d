package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/seantiz/modreg/internal/api"
	"github.com/seantiz/modreg/internal/config"
	"github.com/seantiz/modreg/internal/loader"
	"github.com/seantiz/modreg/internal/manifest"
	"github.com/seantiz/modreg/internal/model"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load enabled modules and serve the admin API",
		Long: `Reconcile the manifest (when MODREG_AUTO_SYNC is set), register and boot
every enabled module with a known integration, then serve the admin API
until interrupted. Manifest changes are re-synced while running.

MODREG_MODULES_ENABLED=false skips registering and booting. With
MODREG_USE_DATABASE=false, modules are loaded straight from the manifest
and the registry database is not consulted for loading.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, rootOpts, cmd.ErrOrStderr(), config.Load().LogLevel)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr != "" {
				a.cfg.ListenAddr = addr
			}
			return serve(ctx, a, rootOpts.Catalog)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default $MODREG_LISTEN_ADDR or :8080)")

	return cmd
}

func serve(ctx context.Context, a *app, catalog *loader.Catalog) error {
	if a.cfg.AutoSync && a.cfg.UseDatabase {
		if err := syncManifest(ctx, a); err != nil {
			return err
		}
	}

	ml, err := newModuleLoader(a, catalog)
	if err != nil {
		return err
	}
	ml.load(ctx)

	if a.cfg.AutoSync {
		go func() {
			err := manifest.Watch(ctx, a.cfg.Manifest, a.logger, func(declared []model.Descriptor) {
				ml.reload(ctx, declared)
			})
			if err != nil {
				a.logger.Warn("manifest watcher stopped", "error", err)
			}
		}()
	}

	srv := api.NewServer(api.Options{
		Addr:           a.cfg.ListenAddr,
		Manifest:       a.cfg.Manifest,
		AllowInstall:   a.cfg.AllowInstall,
		AllowUninstall: a.cfg.AllowUninstall,
	}, a.engine, a.logger)
	return srv.Run(ctx)
}

// moduleLoader feeds the loader from the registry, or from the manifest
// when the database is not used.
type moduleLoader struct {
	a      *app
	loader *loader.Loader
	static *loader.StaticSource
}

func newModuleLoader(a *app, catalog *loader.Catalog) (*moduleLoader, error) {
	ml := &moduleLoader{a: a}
	var source loader.Source = a.engine
	if !a.cfg.UseDatabase {
		declared, err := manifest.Load(a.cfg.Manifest)
		if err != nil {
			return nil, fmt.Errorf("load manifest: %w", err)
		}
		ml.static = loader.NewStaticSource(declared, a.engine)
		source = ml.static
	}
	ml.loader = loader.New(source, catalog, a.logger)
	return ml, nil
}

// load registers and boots every enabled module not yet loaded.
func (ml *moduleLoader) load(ctx context.Context) {
	if !ml.a.cfg.ModulesEnabled {
		ml.a.logger.Info("module loading disabled")
		return
	}
	n, err := ml.loader.RegisterAll(ctx)
	if err != nil {
		ml.a.logger.Error("module registration failed", "error", err)
		return
	}
	booted := ml.loader.BootAll(ctx)
	ml.a.logger.Info("modules loaded", "registered", n, "booted", booted)
}

// reload applies a changed manifest and loads what it newly enables.
func (ml *moduleLoader) reload(ctx context.Context, declared []model.Descriptor) {
	if ml.static != nil {
		ml.static.Replace(declared)
		ml.load(ctx)
		return
	}
	if ml.a.engine.Sync(ctx, declared).Changed() {
		ml.load(ctx)
	}
}

func syncManifest(ctx context.Context, a *app) error {
	declared, err := manifest.Load(a.cfg.Manifest)
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}
	a.engine.Sync(ctx, declared)
	return nil
}
