package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seantiz/modreg/internal/engine"
)

// actionResult is the data of a command that changed one module.
type actionResult struct {
	Key    string `json:"key"`
	Action string `json:"action"`
}

func (r actionResult) text(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Module %q %s.\n", r.Key, r.Action)
	return err
}

// NewEnableCommand creates the enable command.
func NewEnableCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "enable <key>",
		Short: "Enable a module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app, out *OutputFormatter) error {
				if err := a.engine.Enable(ctx, args[0]); err != nil {
					return err
				}
				res := actionResult{Key: args[0], Action: "enabled"}
				return out.Print(res, res.text)
			})
		},
	}
}

// NewDisableCommand creates the disable command.
func NewDisableCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "disable <key>",
		Short: "Disable a module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app, out *OutputFormatter) error {
				if err := a.engine.Disable(ctx, args[0]); err != nil {
					return err
				}
				res := actionResult{Key: args[0], Action: "disabled"}
				return out.Print(res, res.text)
			})
		},
	}
}

type installOptions struct {
	name        string
	description string
	integration string
	version     string
	author      string
	core        bool
	settings    string
	dependsOn   []string
	sortOrder   int
}

// NewInstallCommand creates the install command.
func NewInstallCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &installOptions{}

	cmd := &cobra.Command{
		Use:   "install <key>",
		Short: "Install a new module",
		Long: `Install a new module record. The module starts disabled; enable it
once its dependencies are enabled.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app, out *OutputFormatter) error {
				if err := a.requireInstall(); err != nil {
					return err
				}
				settings, err := parseSettings(opts.settings)
				if err != nil {
					return err
				}
				req := engine.InstallRequest{
					Key:            args[0],
					Name:           opts.name,
					Description:    opts.description,
					IntegrationRef: opts.integration,
					Settings:       settings,
					Dependencies:   opts.dependsOn,
					Version:        opts.version,
					Author:         opts.author,
					IsCore:         opts.core,
					SortOrder:      opts.sortOrder,
				}
				m, err := a.engine.Install(ctx, req)
				if err != nil {
					return err
				}
				return out.Print(m, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Module %q installed (version %s).\n", m.Key, m.Version)
					return err
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.name, "name", "", "display name (default derived from the key)")
	cmd.Flags().StringVar(&opts.description, "description", "", "module description")
	cmd.Flags().StringVar(&opts.integration, "integration", "", "integration reference (default modules/<Identifier>)")
	cmd.Flags().StringVar(&opts.version, "module-version", "", "semantic version (default 1.0.0)")
	cmd.Flags().StringVar(&opts.author, "author", "", "module author")
	cmd.Flags().BoolVar(&opts.core, "core", false, "mark as a core module")
	cmd.Flags().StringVar(&opts.settings, "settings", "", "initial settings as a JSON object")
	cmd.Flags().StringSliceVar(&opts.dependsOn, "depends-on", nil, "dependency keys (repeatable or comma separated)")
	cmd.Flags().IntVar(&opts.sortOrder, "sort-order", 0, "registration order")

	return cmd
}

// NewUninstallCommand creates the uninstall command.
func NewUninstallCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "uninstall <key>",
		Short: "Permanently remove a module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app, out *OutputFormatter) error {
				if err := a.requireUninstall(); err != nil {
					return err
				}
				if !yes && !confirm(cmd.InOrStdin(), cmd.ErrOrStderr(),
					fmt.Sprintf("Uninstall module %q? This cannot be undone. [y/N]: ", key)) {
					res := actionResult{Key: key, Action: "left installed"}
					return out.Print(res, res.text)
				}
				if err := a.engine.Uninstall(ctx, key); err != nil {
					return err
				}
				res := actionResult{Key: key, Action: "uninstalled"}
				return out.Print(res, res.text)
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")

	return cmd
}

// NewSettingsCommand creates the settings command.
func NewSettingsCommand(rootOpts *RootOptions) *cobra.Command {
	var set string

	cmd := &cobra.Command{
		Use:   "settings <key>",
		Short: "Show or merge module settings",
		Long: `Show a module's settings, or with --set merge a JSON object into them.
Keys in the object overwrite existing keys; other keys are kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app, out *OutputFormatter) error {
				if cmd.Flags().Changed("set") {
					partial, err := parseSettings(set)
					if err != nil {
						return err
					}
					if err := a.engine.UpdateSettings(ctx, key, partial); err != nil {
						return err
					}
				}
				m, err := a.engine.Module(ctx, key)
				if err != nil {
					return err
				}
				return out.Print(m.Settings, func(w io.Writer) error {
					enc := json.NewEncoder(w)
					enc.SetIndent("", "  ")
					return enc.Encode(m.Settings)
				})
			})
		},
	}

	cmd.Flags().StringVar(&set, "set", "", "JSON object to merge into the settings")

	return cmd
}

// parseSettings decodes a JSON object flag. An empty string yields nil.
func parseSettings(s string) (map[string]any, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var settings map[string]any
	if err := json.Unmarshal([]byte(s), &settings); err != nil {
		return nil, fmt.Errorf("%w: settings must be a JSON object: %v", engine.ErrInvalidSettingsPayload, err)
	}
	return settings, nil
}

// confirm prompts on w and reads a yes/no answer from r.
func confirm(r io.Reader, w io.Writer, prompt string) bool {
	fmt.Fprint(w, prompt)
	answer, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
