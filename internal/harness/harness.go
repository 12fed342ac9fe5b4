package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/chronicle/internal/audit"
	"github.com/roach88/chronicle/internal/datastore"
	"github.com/roach88/chronicle/internal/engine"
	"github.com/roach88/chronicle/internal/field"
	"github.com/roach88/chronicle/internal/kvstore"
	"github.com/roach88/chronicle/internal/store"
	"github.com/roach88/chronicle/internal/testutil"
)

// Run executes a scenario against a fresh in-memory database and returns
// the trace and result. A non-nil error means the harness itself could not
// run; scenario failures are reported in Result.Errors.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	ds, closeFn, err := openBackend(scenario.Backend)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s backend: %w", backendName(scenario.Backend), err)
	}
	defer closeFn()

	eng := engine.New(ds,
		engine.WithClock(testutil.NewStepClock(testutil.Epoch, time.Second)),
		engine.WithRequestIDs(&sequentialIDs{}),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	r := &runner{eng: eng, docs: map[string]*audit.Document{}}
	result := &Result{Pass: true}

	for i, step := range scenario.Flow {
		event, stepErr := r.runStep(ctx, i, step)
		if stepErr != nil {
			event.Error = errorCode(stepErr)
		}
		result.Trace = append(result.Trace, event)

		switch {
		case step.Expect == nil && stepErr != nil:
			result.AddError(fmt.Sprintf("flow[%d]: unexpected error: %v", i, stepErr))
		case step.Expect != nil && stepErr == nil:
			result.AddError(fmt.Sprintf("flow[%d]: expected error %s, step succeeded", i, step.Expect.Error))
		case step.Expect != nil && event.Error != step.Expect.Error:
			result.AddError(fmt.Sprintf("flow[%d]: expected error %s, got %s: %v", i, step.Expect.Error, event.Error, stepErr))
		}
	}

	for i, a := range scenario.Assertions {
		if err := evaluateAssertion(ctx, eng, a); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return result, nil
}

func backendName(b string) string {
	if b == "" {
		return "sqlite"
	}
	return b
}

func openBackend(backend string) (datastore.Datastore, func(), error) {
	switch backendName(backend) {
	case "badger":
		s, err := kvstore.Open(kvstore.Options{
			InMemory: true,
			Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		})
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	default:
		s, err := store.Open(":memory:")
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	}
}

// sequentialIDs yields req-0001, req-0002, ...
type sequentialIDs struct {
	mu sync.Mutex
	n  int
}

func (g *sequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("req-%04d", g.n)
}

// runner holds the live record instances shared by the steps of one run.
type runner struct {
	eng  *engine.Engine
	docs map[string]*audit.Document
}

func (r *runner) runStep(ctx context.Context, i int, step Step) (TraceEvent, error) {
	if step.RequestID != "" {
		ctx = engine.WithRequestID(ctx, step.RequestID)
	}
	if step.Tag != nil {
		return r.runTag(ctx, i, step.Tag)
	}
	return r.runSave(ctx, i, step.Save)
}

func (r *runner) runSave(ctx context.Context, i int, changes []RecordChange) (TraceEvent, error) {
	event := TraceEvent{Step: i, Type: "save"}

	docs := make([]*audit.Document, 0, len(changes))
	before := make([]string, 0, len(changes))
	for _, c := range changes {
		doc, err := r.apply(c)
		if err != nil {
			return event, err
		}
		docs = append(docs, doc)
		before = append(before, audit.State(doc).DataHash)
	}

	err := r.eng.Update(ctx, func(ctx context.Context, w *engine.Writer) error {
		event.RequestID = ""
		for _, doc := range docs {
			if err := w.Save(doc); err != nil {
				return err
			}
			if entry := w.Entry(doc); entry != nil && event.RequestID == "" {
				event.RequestID = entry.RequestID
			}
		}
		return nil
	})
	if err != nil {
		event.RequestID = ""
		return event, err
	}

	for j, doc := range docs {
		rev := audit.State(doc)
		changed := rev.DataHash != before[j]
		r.docs[doc.Key().String()] = doc
		event.Records = append(event.Records, RecordTrace{
			Key:      doc.Key().String(),
			DataHash: rev.DataHash,
			RevHash:  rev.RevHash,
			Changed:  changed,
		})
	}
	return event, nil
}

// apply returns the instance for c.Key with the change applied. Instances
// persist across steps unless the change asks for a fresh one.
func (r *runner) apply(c RecordChange) (*audit.Document, error) {
	key, err := datastore.ParseKey(c.Key)
	if err != nil {
		return nil, audit.Errorf(audit.CodeInvalidArgument, nil, "key %q: %v", c.Key, err)
	}

	doc, ok := r.docs[key.String()]
	if !ok || c.Fresh {
		doc = audit.NewDocument(key, c.Account)
	}
	doc.SetAccount(c.Account)

	fields, err := field.SetFromGo(c.Fields)
	if err != nil {
		return nil, audit.Errorf(audit.CodeInvalidArgument, key, "%v", err)
	}
	if err := doc.SetAll(fields); err != nil {
		return nil, err
	}
	for _, name := range c.Unset {
		doc.Delete(name)
	}
	return doc, nil
}

func (r *runner) runTag(ctx context.Context, i int, t *TagStep) (TraceEvent, error) {
	event := TraceEvent{Step: i, Type: "tag"}

	key, err := datastore.ParseKey(t.Key)
	if err != nil {
		return event, audit.Errorf(audit.CodeInvalidArgument, nil, "key %q: %v", t.Key, err)
	}

	var ks audit.KeySource = key
	if doc, ok := r.docs[key.String()]; ok && t.DataHash == "" {
		ks = doc
	}

	p, err := r.eng.Tag(ctx, ks, t.Label, t.DataHash)
	if err != nil {
		return event, err
	}
	event.Tag = &TagTrace{Key: key.String(), Label: p.Label(), DataHash: p.DataHash}
	return event, nil
}
