package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/chronicle/internal/canon"
	"github.com/roach88/chronicle/internal/chain"
)

// HashResult reports the hashes of a field set.
type HashResult struct {
	Canonical string `json:"canonical"`
	DataHash  string `json:"data_hash"`
	RevHash   string `json:"rev_hash,omitempty"`
}

// Text implements Texter.
func (r HashResult) Text(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "canonical %s\ndata_hash %s\n", r.Canonical, r.DataHash); err != nil {
		return err
	}
	if r.RevHash != "" {
		_, err := fmt.Fprintf(w, "rev_hash  %s\n", r.RevHash)
		return err
	}
	return nil
}

// NewHashCommand creates the hash command.
func NewHashCommand(rootOpts *RootOptions) *cobra.Command {
	var parent, account string
	cmd := &cobra.Command{
		Use:   "hash [name=value...]",
		Short: "Print the canonical form and data hash of fields",
		Long: `Print the canonical string and data hash of the given fields using the
configured hash settings. With --account also print the rev hash of a change
from --parent to these fields. No database is opened.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHash(rootOpts, args, parent, account, cmd)
		},
	}
	cmd.Flags().StringVar(&parent, "parent", "", "parent rev hash")
	cmd.Flags().StringVar(&account, "account", "", "author, enables rev hash output")
	return cmd
}

func runHash(opts *RootOptions, args []string, parent, account string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	fields, err := parseAssignments(args)
	if err != nil {
		return f.Fail(ExitCommandError, err)
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return f.Fail(ExitCommandError, fmt.Errorf("%w: %w", errConfig, err))
	}
	h, err := canon.New(cfg.Hash)
	if err != nil {
		return f.Fail(ExitCommandError, err)
	}

	s, err := canon.Canonicalize(fields)
	if err != nil {
		return f.Fail(ExitCommandError, err)
	}
	res := HashResult{Canonical: s, DataHash: h.Digest(s)}
	if account != "" {
		res.RevHash = chain.New(h).NextRevHash(parent, account, res.DataHash)
	}
	return f.Success(res)
}
