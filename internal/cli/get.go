package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/viewsync/internal/engine"
	"github.com/roach88/viewsync/internal/ir"
	"github.com/roach88/viewsync/internal/store"
)

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <collection> <id>",
		Short: "Print a stored document",
		Long: `Print one document from the database as canonical JSON.

No views are installed; the command only reads.

Examples:
  viewsync get postsView post-1 --db blog.db`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(rootOpts, args[0], args[1], cmd)
		},
	}

	return cmd
}

func runGet(opts *RootOptions, name, id string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	// Opening a missing file would create an empty database.
	if _, err := os.Stat(opts.Database); err != nil {
		return formatter.Fail(NewCodedError(ExitCommandError, ErrCodeStore,
			fmt.Sprintf("database not found: %s", opts.Database), nil))
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.Fail(NewCodedError(ExitCommandError, ErrCodeStore, "failed to open database", err))
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	doc, ok, err := st.Collection(name).Find(ctx, id)
	if err != nil {
		return formatter.Fail(NewCodedError(ExitCommandError, ErrCodeStore, "failed to read document", err))
	}
	if !ok {
		return formatter.Fail(NewCodedError(ExitFailure, string(engine.CodeNotFound),
			fmt.Sprintf("no document %q in %s", id, name), nil))
	}

	if formatter.Format == "json" {
		return formatter.Success(doc)
	}

	data, err := ir.MarshalCanonical(doc)
	if err != nil {
		return formatter.Fail(err)
	}
	fmt.Fprintln(formatter.Writer, string(data))
	return nil
}
