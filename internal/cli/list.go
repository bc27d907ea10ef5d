package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/seantiz/modreg/internal/engine"
)

// statusReport is the data of the status command.
type statusReport struct {
	Statistics engine.Statistics     `json:"statistics"`
	Modules    []engine.ModuleStatus `json:"modules"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all modules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app, out *OutputFormatter) error {
				modules, err := a.engine.Status(ctx)
				if err != nil {
					return err
				}
				return out.Print(modules, func(w io.Writer) error {
					return writeModuleTable(w, modules)
				})
			})
		},
	}
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show registry statistics and dependency health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app, out *OutputFormatter) error {
				stats, err := a.engine.Statistics(ctx)
				if err != nil {
					return err
				}
				modules, err := a.engine.Status(ctx)
				if err != nil {
					return err
				}
				report := statusReport{Statistics: stats, Modules: modules}
				return out.Print(report, func(w io.Writer) error {
					return writeStatus(w, report)
				})
			})
		},
	}
}

func writeModuleTable(w io.Writer, modules []engine.ModuleStatus) error {
	if len(modules) == 0 {
		_, err := fmt.Fprintln(w, "No modules installed.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tNAME\tSTATUS\tTYPE\tVERSION\tLOADED\tDEPENDENCIES")
	for _, m := range modules {
		deps := "-"
		if len(m.Dependencies) > 0 {
			deps = strings.Join(m.Dependencies, ",")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			m.Key, m.Name, enabledLabel(m.Enabled), typeLabel(m.IsCore), m.Version, yesNo(m.Loaded), deps)
	}
	return tw.Flush()
}

func writeStatus(w io.Writer, r statusReport) error {
	s := r.Statistics
	fmt.Fprintf(w, "Modules: %d total, %d enabled, %d disabled (%.2f%% enabled)\n",
		s.Total, s.Enabled, s.Disabled, s.EnabledPercentage)
	fmt.Fprintf(w, "Core: %d, custom: %d, loaded: %d\n", s.Core, s.Custom, s.Loaded)
	if len(r.Modules) > 0 {
		fmt.Fprintln(w)
	}

	for _, m := range r.Modules {
		mark := "[ ]"
		if m.Enabled {
			mark = "[x]"
		}
		line := fmt.Sprintf("%s %s (%s) v%s", mark, m.Key, m.Name, m.Version)
		if m.IsCore {
			line += " core"
		}
		if m.Loaded {
			line += " loaded"
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
		if m.HasUnmetDependencies {
			fmt.Fprintf(w, "    unmet dependencies: %s\n", strings.Join(m.UnmetDependencies, ", "))
		}
	}
	return nil
}

func enabledLabel(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

func typeLabel(core bool) string {
	if core {
		return "core"
	}
	return "custom"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
