package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/chronicle/internal/audit"
	"github.com/roach88/chronicle/internal/field"
)

// HistoryEntry is one audit entry as reported by the CLI. Fields is the
// canonical JSON of the snapshot.
type HistoryEntry struct {
	Key        string          `json:"key"`
	Kind       string          `json:"kind"`
	DataHash   string          `json:"data_hash"`
	ParentHash string          `json:"parent_hash"`
	RevHash    string          `json:"rev_hash"`
	Account    string          `json:"account"`
	RequestID  string          `json:"request_id"`
	Timestamp  string          `json:"timestamp"`
	Fields     json.RawMessage `json:"fields"`

	snapshot field.Set
}

func newHistoryEntry(e *audit.Entry) (HistoryEntry, error) {
	fields, err := field.MarshalCanonicalSet(e.Fields)
	if err != nil {
		return HistoryEntry{}, err
	}
	return HistoryEntry{
		Key:        e.Key.String(),
		Kind:       e.SourceKind,
		DataHash:   e.DataHash,
		ParentHash: e.ParentHash,
		RevHash:    e.RevHash,
		Account:    e.Account,
		RequestID:  e.RequestID,
		Timestamp:  e.Timestamp.UTC().Format(time.RFC3339Nano),
		Fields:     fields,
		snapshot:   e.Fields,
	}, nil
}

// History is the result of the history command, newest first.
type History []HistoryEntry

// Text implements Texter.
func (h History) Text(w io.Writer) error {
	if len(h) == 0 {
		_, err := fmt.Fprintln(w, "no history")
		return err
	}
	for _, e := range h {
		parent := e.ParentHash
		if parent == "" {
			parent = "-"
		}
		if _, err := fmt.Fprintf(w, "%s rev=%s parent=%s data=%s account=%s request=%s\n  %s\n",
			e.Timestamp, e.RevHash, parent, e.DataHash, e.Account, e.RequestID, formatFields(e.snapshot)); err != nil {
			return err
		}
	}
	return nil
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <key>",
		Short: "List the audit entries of a record, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd.Context(), rootOpts, args[0], limit, cmd)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most n entries (0 for all)")
	return cmd
}

func runHistory(ctx context.Context, opts *RootOptions, rawKey string, limit int, cmd *cobra.Command) error {
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

	entries, err := a.engine.History(ctx, key)
	if err != nil {
		return f.Fail(ExitCommandError, err)
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	out := make(History, 0, len(entries))
	for _, e := range entries {
		he, err := newHistoryEntry(e)
		if err != nil {
			return f.Fail(ExitCommandError, err)
		}
		out = append(out, he)
	}
	return f.Success(out)
}
