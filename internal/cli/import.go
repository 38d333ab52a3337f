package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/viewsync/internal/collection"
	"github.com/roach88/viewsync/internal/ir"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	User string
}

// ImportResult lists the identifiers of the imported documents.
type ImportResult struct {
	Collection string   `json:"collection"`
	IDs        []string `json:"ids"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <views-dir> <collection> <file.json>",
		Short: "Insert documents with views active",
		Long: `Insert the documents of a JSON array into a collection.

Every view in <views-dir> is installed first, so each insert propagates
into the views' target collections exactly as an application write would.
Documents without an _id are assigned a fresh identifier.

Examples:
  viewsync import ./views posts posts.json
  viewsync import ./views comments comments.json --user editor --db blog.db`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args[0], args[1], args[2], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.User, "user", "", "acting user passed to view fields")

	return cmd
}

func runImport(opts *ImportOptions, viewsDir, name, file string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	docs, err := readDocuments(file)
	if err != nil {
		return formatter.Fail(err)
	}

	ws, err := openWorkspace(opts.RootOptions, viewsDir, cmd.ErrOrStderr())
	if err != nil {
		return formatter.Fail(err)
	}
	defer ws.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.User != "" {
		ctx = collection.WithUser(ctx, opts.User)
	}

	target := ws.store.Collection(name)
	result := ImportResult{Collection: name, IDs: make([]string, 0, len(docs))}
	for i, doc := range docs {
		id, err := target.Insert(ctx, doc)
		if id != "" {
			result.IDs = append(result.IDs, id)
		}
		if err != nil {
			formatter.VerboseLog("imported %d of %d document(s)", len(result.IDs), len(docs))
			code := ErrorCode(err)
			if code == ErrCodeGeneric {
				code = ErrCodeWriteFailed
			}
			return formatter.Fail(NewCodedError(ExitFailure, code, fmt.Sprintf("document %d", i), err))
		}
		ws.logger.Debug("document imported", "collection", name, "id", id)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Imported %d document(s) into %s\n", len(result.IDs), name)
	for _, id := range result.IDs {
		fmt.Fprintf(formatter.Writer, "  %s\n", id)
	}
	return nil
}

// readDocuments reads a JSON array of objects.
func readDocuments(file string) ([]ir.Object, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, NewCodedError(ExitCommandError, ErrCodeInput, "failed to read input", err)
	}

	var arr ir.Array
	if err := arr.UnmarshalJSON(data); err != nil {
		return nil, NewCodedError(ExitCommandError, ErrCodeInput, "input must be a JSON array of documents", err)
	}

	docs := make([]ir.Object, 0, len(arr))
	for i, v := range arr {
		doc, ok := v.(ir.Object)
		if !ok {
			return nil, NewCodedError(ExitCommandError, ErrCodeInput,
				fmt.Sprintf("element %d is not a JSON object", i), nil)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
