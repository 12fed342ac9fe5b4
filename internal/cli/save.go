package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/chronicle/internal/engine"
)

// SaveOptions holds flags for the save command.
type SaveOptions struct {
	*RootOptions
	Account   string
	RequestID string
	Unset     []string
	Replace   bool
}

// SaveResult reports one saved record.
type SaveResult struct {
	Key      string `json:"key"`
	DataHash string `json:"data_hash"`
	RevHash  string `json:"rev_hash"`
	Changed  bool   `json:"changed"`
}

// Text implements Texter.
func (r SaveResult) Text(w io.Writer) error {
	state := "changed"
	if !r.Changed {
		state = "unchanged"
	}
	_, err := fmt.Fprintf(w, "%s %s data=%s rev=%s\n", r.Key, state, r.DataHash, r.RevHash)
	return err
}

// NewSaveCommand creates the save command.
func NewSaveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SaveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "save <key> [name=value...]",
		Short: "Set fields on a record and save it",
		Long: `Load the record at key, apply the given fields and save it.

Values are parsed as JSON when possible (42, true, null, [1,2], {"a":1});
anything else is stored as a string. Saving unchanged content writes no
audit entry.

Example:
  chronicle save Note:n1 title=hello count=3 --account alice
  chronicle save Note:n1 --unset count --account bob`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSave(cmd.Context(), opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Account, "account", "", "author of the change (required)")
	cmd.Flags().StringVar(&opts.RequestID, "request-id", "", "correlation id (default: generated)")
	cmd.Flags().StringSliceVar(&opts.Unset, "unset", nil, "fields to remove")
	cmd.Flags().BoolVar(&opts.Replace, "replace", false, "drop fields not given instead of keeping them")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func runSave(ctx context.Context, opts *SaveOptions, rawKey string, assignments []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	if ctx == nil {
		ctx = context.Background()
	}

	key, err := parseKey(rawKey)
	if err != nil {
		return f.Fail(ExitCommandError, err)
	}
	fields, err := parseAssignments(assignments)
	if err != nil {
		return f.Fail(ExitCommandError, err)
	}

	a, err := opts.open(cmd)
	if err != nil {
		return f.Fail(ExitCommandError, err)
	}
	defer a.close()

	doc, _, err := a.engine.Load(ctx, key, opts.Account)
	if err != nil {
		return f.Fail(ExitCommandError, err)
	}
	if opts.Replace {
		for name := range doc.Fields() {
			doc.Delete(name)
		}
	}
	for _, name := range opts.Unset {
		doc.Delete(name)
	}
	if err := doc.SetAll(fields); err != nil {
		return f.Fail(ExitCommandError, err)
	}

	ctx = withRequestID(ctx, opts.RequestID)
	before := doc.RevHash()
	var requestID string
	err = a.engine.Update(ctx, func(ctx context.Context, w *engine.Writer) error {
		requestID = ""
		if err := w.Save(doc); err != nil {
			return err
		}
		if entry := w.Entry(doc); entry != nil {
			requestID = entry.RequestID
		}
		return nil
	})
	if err != nil {
		return f.Fail(ExitCommandError, err)
	}

	res := SaveResult{
		Key:      key.String(),
		DataHash: doc.DataHash(),
		RevHash:  doc.RevHash(),
		Changed:  doc.RevHash() != before,
	}
	return f.SuccessWithRequest(res, requestID)
}
