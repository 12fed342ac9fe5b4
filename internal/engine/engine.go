package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/chronicle/internal/audit"
	"github.com/roach88/chronicle/internal/canon"
	"github.com/roach88/chronicle/internal/chain"
	"github.com/roach88/chronicle/internal/datastore"
	"github.com/roach88/chronicle/internal/field"
	"github.com/roach88/chronicle/internal/tag"
)

// Validator checks a record's fields before they are hashed.
// Implemented by schema.Registry.
type Validator interface {
	Validate(kind string, fields field.Set) error
}

// Engine coordinates audited writes against one datastore.
//
// Thread-safety: an Engine is safe for concurrent use. Records are not:
// a record must not be mutated while a save of it is in flight.
type Engine struct {
	ds        datastore.Datastore
	chain     *chain.Chain
	auditor   *audit.Auditor
	clock     Clock
	ids       RequestIDGenerator
	log       *slog.Logger
	validator Validator
}

// Option configures an Engine.
type Option func(*Engine)

// WithHasher sets the hasher used for data and rev hashes.
// Ignored when WithAuditor is also given.
func WithHasher(h *canon.Hasher) Option {
	return func(e *Engine) { e.chain = chain.New(h) }
}

// WithAuditor sets the auditor, and with it the hasher, request id length
// and rev hash storage policy.
func WithAuditor(a *audit.Auditor) Option {
	return func(e *Engine) { e.auditor = a }
}

// WithClock sets the timestamp source. Default: SystemClock.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithRequestIDs sets the request id source for contexts without one.
// Default: UUIDv7Generator.
func WithRequestIDs(g RequestIDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithValidator rejects records whose fields fail v before hashing.
func WithValidator(v Validator) Option {
	return func(e *Engine) { e.validator = v }
}

// New creates an Engine writing through ds.
func New(ds datastore.Datastore, opts ...Option) *Engine {
	e := &Engine{
		ds:    ds,
		clock: SystemClock{},
		ids:   UUIDv7Generator{},
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.auditor == nil {
		if e.chain == nil {
			e.chain = chain.New(nil)
		}
		e.auditor = audit.NewAuditor(e.chain, audit.Options{Now: e.clock.Now})
	}
	e.chain = e.auditor.Chain()
	return e
}

// Datastore returns the underlying store.
func (e *Engine) Datastore() datastore.Datastore { return e.ds }

// Auditor returns the auditor the engine builds entries with.
func (e *Engine) Auditor() *audit.Auditor { return e.auditor }

// Save writes rec and, if its content changed, one audit entry, atomically.
func (e *Engine) Save(ctx context.Context, rec audit.Record) error {
	return e.SaveAll(ctx, []audit.Record{rec})
}

// SaveAll writes every record and all of their audit entries in one
// transaction. Either everything lands or nothing does.
func (e *Engine) SaveAll(ctx context.Context, recs []audit.Record) error {
	if len(recs) == 0 {
		return nil
	}
	return e.Update(ctx, func(ctx context.Context, w *Writer) error {
		return w.Save(recs...)
	})
}

// Update runs fn in one transaction. Records staged with w.Save and tags
// staged with w.Tag are written together when fn returns nil.
//
// fn may run again if the caller retries Update after an error; it must
// re-read any state it depends on.
func (e *Engine) Update(ctx context.Context, fn func(ctx context.Context, w *Writer) error) error {
	// Resolved on first use so transactions without audits consume no id.
	var requestID string
	resolve := func() string {
		if requestID == "" {
			if id, ok := RequestIDFrom(ctx); ok {
				requestID = id
			} else {
				requestID = e.ids.Generate()
			}
		}
		return requestID
	}

	var w *Writer
	err := e.ds.RunInTransaction(ctx, func(ctx context.Context, tx datastore.Tx) error {
		if w != nil {
			// The datastore re-ran the function; drop the earlier staging.
			w.finish(false)
		}
		w = newWriter(e, tx, resolve)
		if err := fn(ctx, w); err != nil {
			return err
		}
		return w.flush(ctx)
	})

	if w != nil {
		w.finish(err == nil)
	}
	if err != nil {
		e.log.Debug("transaction failed", "request_id", requestID, "error", err)
		return err
	}
	return nil
}

// History returns the audit entries of the record named by ks, newest
// first by timestamp.
func (e *Engine) History(ctx context.Context, ks audit.KeySource) ([]*audit.Entry, error) {
	return e.auditor.History(ctx, e.ds, ks)
}

// Tag points label on the record named by ks at dataHash. An empty
// dataHash selects the committed data hash of ks, which must then be a
// saved Record.
func (e *Engine) Tag(ctx context.Context, ks audit.KeySource, label, dataHash string) (*tag.Pointer, error) {
	var p *tag.Pointer
	err := e.Update(ctx, func(ctx context.Context, w *Writer) error {
		var err error
		p, err = w.Tag(ks, label, dataHash)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Tags lists the tag pointers of the record named by ks.
func (e *Engine) Tags(ctx context.Context, ks audit.KeySource) ([]*tag.Pointer, error) {
	return tag.List(ctx, e.ds, ks)
}

// TagNamed reads the pointer for label on the record named by ks.
func (e *Engine) TagNamed(ctx context.Context, ks audit.KeySource, label string) (*tag.Pointer, bool, error) {
	return tag.Get(ctx, e.ds, ks, label)
}

// Load reads the committed schema-less document at key.
func (e *Engine) Load(ctx context.Context, key *datastore.Key, account string) (*audit.Document, bool, error) {
	return audit.LoadDocument(ctx, e.ds, key, account)
}

// Verify checks the stored history of the record named by ks: every
// snapshot must hash to its data hash, every key must match its metadata,
// and the rev hashes must chain. It returns the links in causal order,
// newest head first.
func (e *Engine) Verify(ctx context.Context, ks audit.KeySource) ([]chain.Link, error) {
	entries, err := e.History(ctx, ks)
	if err != nil {
		return nil, err
	}

	links := make([]chain.Link, 0, len(entries))
	for _, entry := range entries {
		if err := entry.Verify(e.chain.Hasher()); err != nil {
			return nil, err
		}
		links = append(links, entry.Link())
	}
	if err := e.chain.Verify(links); err != nil {
		return nil, fmt.Errorf("verify %s: %w", ks.Key(), err)
	}

	live, err := e.ds.Get(ctx, ks.Key())
	switch {
	case err == nil:
		if err := checkLiveHead(live, links); err != nil {
			return nil, err
		}
	case !isNotFound(err):
		return nil, fmt.Errorf("verify %s: %w", ks.Key(), err)
	}

	return chain.CausalOrder(links), nil
}

// checkLiveHead confirms the live record's rev hash is one of the links.
func checkLiveHead(live *datastore.Entity, links []chain.Link) error {
	rev, _ := live.Properties[canon.RevHashField].(field.String)
	if rev == "" {
		return nil
	}
	for _, l := range links {
		if l.RevHash == string(rev) {
			return nil
		}
	}
	return &chain.BrokenLinkError{Index: -1, RevHash: string(rev), Reason: "live record points at a revision missing from history"}
}
