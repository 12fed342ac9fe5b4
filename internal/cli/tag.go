package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/chronicle/internal/tag"
)

// TagResult reports one tag pointer.
type TagResult struct {
	Key       string `json:"key"`
	Label     string `json:"label"`
	DataHash  string `json:"data_hash"`
	Timestamp string `json:"timestamp"`
}

func newTagResult(p *tag.Pointer) TagResult {
	return TagResult{
		Key:       p.Key.Parent().String(),
		Label:     p.Label(),
		DataHash:  p.DataHash,
		Timestamp: p.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

// Text implements Texter.
func (r TagResult) Text(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s tag %s -> %s\n", r.Key, r.Label, r.DataHash)
	return err
}

// TagList is the result of the tags command.
type TagList []TagResult

// Text implements Texter.
func (l TagList) Text(w io.Writer) error {
	if len(l) == 0 {
		_, err := fmt.Fprintln(w, "no tags")
		return err
	}
	for _, t := range l {
		if _, err := fmt.Fprintf(w, "%-20s %s %s\n", t.Label, t.DataHash, t.Timestamp); err != nil {
			return err
		}
	}
	return nil
}

// NewTagCommand creates the tag command.
func NewTagCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tag <key> <label> [data_hash]",
		Short: "Point a label at a content hash of a record",
		Long: `Point label on the record at key to a data hash. Without a data hash the
record's current committed hash is used. Tagging the same label again moves it.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var dataHash string
			if len(args) == 3 {
				dataHash = args[2]
			}
			return runTag(cmd.Context(), rootOpts, args[0], args[1], dataHash, cmd)
		},
	}
	return cmd
}

func runTag(ctx context.Context, opts *RootOptions, rawKey, label, dataHash string, cmd *cobra.Command) error {
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

	// The loaded document carries the committed hash for an empty dataHash.
	doc, _, err := a.engine.Load(ctx, key, "")
	if err != nil {
		return f.Fail(ExitCommandError, err)
	}
	p, err := a.engine.Tag(ctx, doc, label, dataHash)
	if err != nil {
		return f.Fail(ExitCommandError, err)
	}
	return f.Success(newTagResult(p))
}

// NewTagsCommand creates the tags command.
func NewTagsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tags <key>",
		Short: "List the tags of a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTags(cmd.Context(), rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runTags(ctx context.Context, opts *RootOptions, rawKey string, cmd *cobra.Command) error {
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

	pointers, err := a.engine.Tags(ctx, key)
	if err != nil {
		return f.Fail(ExitCommandError, err)
	}
	out := make(TagList, len(pointers))
	for i, p := range pointers {
		out[i] = newTagResult(p)
	}
	return f.Success(out)
}
