package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"
)

// withApp opens the registry for the duration of fn.
func withApp(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, a *app, out *OutputFormatter) error) error {
	ctx := cmd.Context()
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	a, err := openApp(ctx, opts, cmd.ErrOrStderr(), slog.LevelWarn)
	if err != nil {
		return out.Fail(err)
	}
	defer a.Close()

	if err := fn(ctx, a, out); err != nil {
		return out.Fail(err)
	}
	return nil
}
