package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/chronicle/internal/audit"
	"github.com/roach88/chronicle/internal/engine"
	"github.com/roach88/chronicle/internal/field"
)

// BatchFile is the YAML form of one atomic batch.
//
//	request_id: import-42
//	records:
//	  - key: Note:n1
//	    account: alice
//	    fields: {title: hello, count: 3}
//	    unset: [draft]
//	tags:
//	  - key: Note:n1
//	    label: published
type BatchFile struct {
	RequestID string        `yaml:"request_id"`
	Records   []BatchRecord `yaml:"records"`
	Tags      []BatchTag    `yaml:"tags"`
}

// BatchRecord is one record change in a batch.
type BatchRecord struct {
	Key     string         `yaml:"key"`
	Account string         `yaml:"account"`
	Fields  map[string]any `yaml:"fields"`
	Unset   []string       `yaml:"unset"`
	Replace bool           `yaml:"replace"`
}

// BatchTag points a label at a record. An empty data_hash tags the hash the
// record has after the batch.
type BatchTag struct {
	Key      string `yaml:"key"`
	Label    string `yaml:"label"`
	DataHash string `yaml:"data_hash"`
}

// BatchResult reports a committed batch.
type BatchResult struct {
	Records []SaveResult `json:"records"`
	Tags    []TagResult  `json:"tags"`
}

// Text implements Texter.
func (r BatchResult) Text(w io.Writer) error {
	for _, rec := range r.Records {
		if err := rec.Text(w); err != nil {
			return err
		}
	}
	for _, t := range r.Tags {
		if err := t.Text(w); err != nil {
			return err
		}
	}
	return nil
}

// ParseBatch decodes a batch file. Unknown keys are rejected.
func ParseBatch(r io.Reader) (*BatchFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var b BatchFile
	if err := dec.Decode(&b); err != nil {
		if err == io.EOF {
			return &b, nil
		}
		return nil, audit.Errorf(audit.CodeInvalidArgument, nil, "parse batch: %v", err)
	}
	return &b, nil
}

// NewBatchCommand creates the batch command.
func NewBatchCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <file.yaml>",
		Short: "Apply several record changes and tags in one transaction",
		Long: `Apply every record change and tag of a YAML batch file atomically.

Either all records, their audit entries and the tags are written, or none
are. Use "-" to read the batch from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd.Context(), rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runBatch(ctx context.Context, opts *RootOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	if ctx == nil {
		ctx = context.Background()
	}

	var in io.Reader = cmd.InOrStdin()
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return f.Fail(ExitCommandError, err)
		}
		defer file.Close()
		in = file
	}
	batch, err := ParseBatch(in)
	if err != nil {
		return f.Fail(ExitCommandError, err)
	}

	a, err := opts.open(cmd)
	if err != nil {
		return f.Fail(ExitCommandError, err)
	}
	defer a.close()

	docs, err := prepareBatch(ctx, a, batch)
	if err != nil {
		return f.Fail(ExitCommandError, err)
	}
	before := make([]string, len(docs))
	for i, d := range docs {
		before[i] = d.RevHash()
	}

	ctx = withRequestID(ctx, batch.RequestID)
	var requestID string
	res := BatchResult{Records: []SaveResult{}, Tags: []TagResult{}}
	err = a.engine.Update(ctx, func(ctx context.Context, w *engine.Writer) error {
		res.Tags = res.Tags[:0]
		recs := make([]audit.Record, len(docs))
		for i, d := range docs {
			recs[i] = d
		}
		if err := w.Save(recs...); err != nil {
			return err
		}
		requestID = ""
		for _, d := range docs {
			if entry := w.Entry(d); entry != nil {
				requestID = entry.RequestID
				break
			}
		}

		for _, t := range batch.Tags {
			key, err := parseKey(t.Key)
			if err != nil {
				return err
			}
			p, err := w.Tag(key, t.Label, t.DataHash)
			if err != nil {
				return err
			}
			res.Tags = append(res.Tags, newTagResult(p))
		}
		return nil
	})
	if err != nil {
		return f.Fail(ExitCommandError, err)
	}

	for i, d := range docs {
		res.Records = append(res.Records, SaveResult{
			Key:      d.Key().String(),
			DataHash: d.DataHash(),
			RevHash:  d.RevHash(),
			Changed:  d.RevHash() != before[i],
		})
	}
	return f.SuccessWithRequest(res, requestID)
}

// prepareBatch loads each record and applies its changes in memory.
func prepareBatch(ctx context.Context, a *app, batch *BatchFile) ([]*audit.Document, error) {
	docs := make([]*audit.Document, 0, len(batch.Records))
	for i, r := range batch.Records {
		key, err := parseKey(r.Key)
		if err != nil {
			return nil, fmt.Errorf("records[%d]: %w", i, err)
		}
		fields, err := field.SetFromGo(r.Fields)
		if err != nil {
			return nil, audit.Errorf(audit.CodeInvalidArgument, key, "records[%d]: %v", i, err)
		}
		fields = field.NFCSet(fields)

		doc, _, err := a.engine.Load(ctx, key, r.Account)
		if err != nil {
			return nil, fmt.Errorf("records[%d]: %w", i, err)
		}
		if r.Replace {
			for name := range doc.Fields() {
				doc.Delete(name)
			}
		}
		for _, name := range r.Unset {
			doc.Delete(name)
		}
		if err := doc.SetAll(fields); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
