package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/viewsync/internal/collection"
	"github.com/roach88/viewsync/internal/engine"
)

// RefreshOptions holds flags for the refresh commands.
type RefreshOptions struct {
	*RootOptions
	User string
}

// NewRefreshCommand creates the refresh command.
func NewRefreshCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RefreshOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "refresh <views-dir> <view-id> <id>...",
		Short: "Recompute the copies of specific documents",
		Long: `Recompute the denormalized copies of the listed source documents.

Identifiers whose source document no longer exists are skipped. A failing
document does not stop the others; the command exits 1 if any failed.

Examples:
  viewsync refresh ./views DENORMALIZED_POST_COLLECTION post-1 post-2`,
		Args:          cobra.MinimumNArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefresh(opts, args[0], args[1], cmd, func(ctx context.Context, e *engine.Engine) (engine.RefreshReport, error) {
				return e.RefreshManually(ctx, args[1], args[2:])
			})
		},
	}

	cmd.Flags().StringVar(&opts.User, "user", "", "acting user passed to view fields")

	return cmd
}

// NewRefreshAllCommand creates the refresh-all command.
func NewRefreshAllCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RefreshOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "refresh-all <views-dir> <view-id>",
		Short: "Recompute every copy of a view",
		Long: `Recompute the denormalized copy of every document in the view's source
collection. Copies that already match are left untouched.

Examples:
  viewsync refresh-all ./views DENORMALIZED_POST_COLLECTION --db blog.db`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefresh(opts, args[0], args[1], cmd, func(ctx context.Context, e *engine.Engine) (engine.RefreshReport, error) {
				return e.RefreshAll(ctx, args[1])
			})
		},
	}

	cmd.Flags().StringVar(&opts.User, "user", "", "acting user passed to view fields")

	return cmd
}

type refreshFunc func(ctx context.Context, e *engine.Engine) (engine.RefreshReport, error)

func runRefresh(opts *RefreshOptions, viewsDir, viewID string, cmd *cobra.Command, refresh refreshFunc) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	ws, err := openWorkspace(opts.RootOptions, viewsDir, cmd.ErrOrStderr())
	if err != nil {
		return formatter.Fail(err)
	}
	defer ws.Close()

	if _, err := ws.view(viewID); err != nil {
		return formatter.Fail(err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.User != "" {
		ctx = collection.WithUser(ctx, opts.User)
	}

	report, err := refresh(ctx, ws.engine)
	if err != nil && report.Requested == 0 {
		return formatter.Fail(NewCodedError(ExitFailure, ErrorCode(err), "refresh failed", err))
	}
	if err != nil {
		formatter.VerboseLog("refresh errors: %v", err)
	}

	if formatter.Format == "json" {
		if err := formatter.Success(report); err != nil {
			return err
		}
	} else {
		printReport(formatter, report)
	}

	if report.Failed > 0 {
		return NewCodedError(ExitFailure, ErrorCode(err),
			fmt.Sprintf("%d document(s) failed to refresh", report.Failed), err)
	}
	return nil
}

func printReport(f *OutputFormatter, r engine.RefreshReport) {
	mark := "✓"
	if r.Failed > 0 {
		mark = "✗"
	}
	fmt.Fprintf(f.Writer, "%s %s: %d requested, %d recomputed, %d unchanged, %d skipped, %d failed\n",
		mark, r.DefinitionID, r.Requested, r.Recomputed, r.Unchanged, r.Skipped, r.Failed)
}
