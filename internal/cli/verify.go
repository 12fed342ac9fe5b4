package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/chronicle/internal/audit"
	"github.com/roach88/chronicle/internal/chain"
)

// VerifyResult reports a verified history.
type VerifyResult struct {
	Key   string   `json:"key"`
	OK    bool     `json:"ok"`
	Links []string `json:"links"` // rev hashes in causal order, newest head first
}

// Text implements Texter.
func (r VerifyResult) Text(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s ok, %d revisions\n", r.Key, len(r.Links))
	return err
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <key>",
		Short: "Check a record's history for tampering",
		Long: `Re-hash every snapshot in the record's history, check every audit key
against its metadata and walk the rev hash chain. Exits 1 if anything fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd.Context(), rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runVerify(ctx context.Context, opts *RootOptions, rawKey string, cmd *cobra.Command) error {
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

	links, err := a.engine.Verify(ctx, key)
	if err != nil {
		var broken *chain.BrokenLinkError
		if errors.As(err, &broken) || errors.Is(err, audit.ErrTampered) {
			return f.Fail(ExitFailure, err)
		}
		return f.Fail(ExitCommandError, err)
	}

	res := VerifyResult{Key: key.String(), OK: true, Links: make([]string, len(links))}
	for i, l := range links {
		res.Links[i] = l.RevHash
	}
	f.VerboseLog("verified %d revisions of %s", len(links), key)
	return f.Success(res)
}
