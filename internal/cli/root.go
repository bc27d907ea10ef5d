// Package cli implements the modreg command line.
package cli

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/seantiz/modreg/internal/config"
	"github.com/seantiz/modreg/internal/loader"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	DB       string
	Manifest string

	// Catalog resolves integrations for the serve command.
	Catalog *loader.Catalog
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command with an empty integration catalog.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWithCatalog(loader.NewCatalog())
}

// NewRootCommandWithCatalog creates the root command. Modules whose
// integrations are in catalog are registered and booted by serve.
func NewRootCommandWithCatalog(catalog *loader.Catalog) *cobra.Command {
	cfg := config.Load()
	opts := &RootOptions{Catalog: catalog}

	cmd := &cobra.Command{
		Use:   "modreg",
		Short: "modreg - module registry",
		Long: `Manage the module registry: enable, disable, install and configure
modules, reconcile the declarative manifest, and serve the admin API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", cfg.DBPath, "path to the registry database")
	cmd.PersistentFlags().StringVar(&opts.Manifest, "manifest", cfg.Manifest, "path to the module manifest")

	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewEnableCommand(opts))
	cmd.AddCommand(NewDisableCommand(opts))
	cmd.AddCommand(NewInstallCommand(opts))
	cmd.AddCommand(NewUninstallCommand(opts))
	cmd.AddCommand(NewSettingsCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewClearCacheCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

// Execute runs the command line and returns the process exit code. Errors
// are written to stderr as a single line.
func Execute(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return GetExitCode(err)
	}
	return ExitSuccess
}
