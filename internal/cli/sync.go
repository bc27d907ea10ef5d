package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seantiz/modreg/internal/cache"
	"github.com/seantiz/modreg/internal/engine"
	"github.com/seantiz/modreg/internal/manifest"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the manifest into the registry",
		Long: `Write every module declared in the manifest into the registry,
overwriting stored records with the same key. Modules that are not declared
are left untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app, out *OutputFormatter) error {
				declared, err := manifest.Load(a.cfg.Manifest)
				if err != nil {
					return err
				}
				report := a.engine.Sync(ctx, declared)
				if err := out.Print(report, func(w io.Writer) error {
					return writeSyncReport(w, report)
				}); err != nil {
					return err
				}
				if len(report.Failed) > 0 {
					return NewExitError(ExitFailure,
						fmt.Sprintf("%d module(s) failed to sync", len(report.Failed)))
				}
				return nil
			})
		},
	}
}

// NewClearCacheCommand creates the clear-cache command.
func NewClearCacheCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache",
		Short: "Drop every cached module entry",
		Long: `Drop every cached module entry.

Only the redis cache engine is shared with a running server. With the
memory engine each process holds its own cache, so this command cannot
reach the cache of a running "modreg serve"; use POST /v1/modules/clear-cache
against the server instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app, out *OutputFormatter) error {
				if a.cfg.CacheEngine != cache.EngineRedis {
					a.logger.Warn("cache engine is local to this process; a running server keeps its own cache",
						"engine", a.cfg.CacheEngine)
				}
				a.engine.ClearCache(ctx)
				return out.Print(map[string]bool{"cleared": true}, func(w io.Writer) error {
					_, err := fmt.Fprintln(w, "Module cache cleared.")
					return err
				})
			})
		},
	}
}

func writeSyncReport(w io.Writer, r engine.SyncReport) error {
	if r.Skipped {
		_, err := fmt.Fprintf(w, "Sync skipped: %s\n", r.Reason)
		return err
	}
	fmt.Fprintf(w, "Synced %d module(s): %d created, %d updated.\n",
		len(r.Created)+len(r.Updated), len(r.Created), len(r.Updated))
	if len(r.Created) > 0 {
		fmt.Fprintf(w, "  created: %s\n", strings.Join(r.Created, ", "))
	}
	if len(r.Updated) > 0 {
		fmt.Fprintf(w, "  updated: %s\n", strings.Join(r.Updated, ", "))
	}
	for _, f := range r.Failed {
		if _, err := fmt.Fprintf(w, "  failed: %s: %s\n", f.Key, f.Error); err != nil {
			return err
		}
	}
	return nil
}
