package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/chronicle/internal/datastore"
	"github.com/roach88/chronicle/internal/field"
)

// ShowResult is the committed state of one record.
type ShowResult struct {
	Key      string          `json:"key"`
	DataHash string          `json:"data_hash"`
	RevHash  string          `json:"rev_hash"`
	Fields   json.RawMessage `json:"fields"`

	fields field.Set
}

// Text implements Texter.
func (r ShowResult) Text(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s data=%s rev=%s\n  %s\n", r.Key, r.DataHash, r.RevHash, formatFields(r.fields))
	return err
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <key>",
		Short: "Print the committed fields and hashes of a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd.Context(), rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runShow(ctx context.Context, opts *RootOptions, rawKey string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	if ctx == nil {
		ctx = context.Background()
	}

	key, err := parseKey(rawKey)
	if err != nil {
		return f.Fail(ExitCommandError, err)
	}

	a, err := opts.open(cmd)
	if err != nil {
		return f.Fail(ExitCommandError, err)
	}
	defer a.close()

	doc, ok, err := a.engine.Load(ctx, key, "")
	if err != nil {
		return f.Fail(ExitCommandError, err)
	}
	if !ok {
		return f.Fail(ExitCommandError, fmt.Errorf("no record at %s: %w", key, datastore.ErrNotFound))
	}

	fields := doc.Fields()
	raw, err := field.MarshalCanonicalSet(fields)
	if err != nil {
		return f.Fail(ExitCommandError, err)
	}
	return f.Success(ShowResult{
		Key:      key.String(),
		DataHash: doc.DataHash(),
		RevHash:  doc.RevHash(),
		Fields:   raw,
		fields:   fields,
	})
}
