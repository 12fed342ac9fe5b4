package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/chronicle/internal/audit"
	"github.com/roach88/chronicle/internal/datastore"
	"github.com/roach88/chronicle/internal/tag"
)

// Writer stages audited writes inside one Engine.Update transaction.
// A Writer is only valid inside the function passed to Update.
type Writer struct {
	engine    *Engine
	tx        datastore.Tx
	requestID func() string
	done      bool

	attempts []*attempt
	pending  map[string]*attempt
	tags     []*tag.Pointer
}

func newWriter(e *Engine, tx datastore.Tx, requestID func() string) *Writer {
	return &Writer{
		engine:    e,
		tx:        tx,
		requestID: requestID,
		pending:   make(map[string]*attempt),
	}
}

// RequestID returns the correlation id stamped on this transaction's audits.
func (w *Writer) RequestID() string { return w.requestID() }

func (w *Writer) stagedAttempt(ks audit.KeySource) (*attempt, bool) {
	key := ks.Key()
	if key == nil {
		return nil, false
	}
	a, ok := w.pending[key.String()]
	return a, ok
}

// Entry returns the audit entry this transaction writes for the record
// named by ks, or nil if the record was not saved here or its content is
// unchanged. The entry carries the request id as stored.
func (w *Writer) Entry(ks audit.KeySource) *audit.Entry {
	if a, ok := w.stagedAttempt(ks); ok {
		return a.entry
	}
	return nil
}

func (w *Writer) checkOpen(key *datastore.Key) error {
	if w.done || !w.tx.Active() {
		return audit.Errorf(audit.CodePreconditionFailed, key, "write attempted outside a transaction")
	}
	return nil
}

// Save hashes each record and decides its audit entry now; the writes
// happen when the transaction commits. Saving the same key twice in one
// transaction chains the second change onto the first.
//
// Any error aborts the whole transaction once returned from the Update
// function.
func (w *Writer) Save(recs ...audit.Record) error {
	for _, rec := range recs {
		if err := w.checkOpen(rec.Key()); err != nil {
			return err
		}

		base := audit.State(rec)
		var keyPath string
		if rec.Key() != nil {
			keyPath = rec.Key().String()
			if prev, ok := w.pending[keyPath]; ok {
				base = prev.next
			}
		}

		a := newAttempt(rec, base)
		w.attempts = append(w.attempts, a)

		if err := a.hash(w.engine); err != nil {
			return err
		}
		if err := a.decide(w.engine, w.requestID, w.engine.clock.Now()); err != nil {
			return err
		}
		w.pending[keyPath] = a
	}
	return nil
}

// Tag stages a tag pointer. An empty dataHash points at the hash the
// record named by ks has after this transaction, which must be a record
// saved in it or one with a committed hash.
func (w *Writer) Tag(ks audit.KeySource, label, dataHash string) (*tag.Pointer, error) {
	if err := w.checkOpen(ks.Key()); err != nil {
		return nil, err
	}
	ts := w.engine.clock.Now()
	a, staged := w.stagedAttempt(ks)
	rec, isRecord := ks.(audit.Record)

	var p *tag.Pointer
	var err error
	switch {
	case dataHash != "":
		p, err = tag.New(ks, label, dataHash, ts)
	case staged:
		p, err = tag.New(ks, label, a.next.DataHash, ts)
	case isRecord:
		p, err = tag.FromRecord(rec, label, ts)
	default:
		err = audit.Errorf(audit.CodePreconditionFailed, ks.Key(), "record has no data hash to tag")
	}
	if err != nil {
		return nil, err
	}
	w.tags = append(w.tags, p)
	return p, nil
}

// flush issues the single PutMulti of the transaction.
func (w *Writer) flush(ctx context.Context) error {
	if err := w.checkOpen(nil); err != nil {
		return err
	}
	for _, a := range w.attempts {
		if a.state == stateFailed {
			return a.err
		}
	}

	var entities []*datastore.Entity
	index := make(map[string]int)
	add := func(ent *datastore.Entity) {
		k := ent.Key.String()
		if i, ok := index[k]; ok {
			entities[i] = ent
			return
		}
		index[k] = len(entities)
		entities = append(entities, ent)
	}

	for _, a := range w.attempts {
		for _, ent := range a.entities(w.engine) {
			add(ent)
		}
	}
	for _, p := range w.tags {
		add(p.Entity())
	}
	if len(entities) == 0 {
		return nil
	}

	if err := w.tx.PutMulti(ctx, entities); err != nil {
		return fmt.Errorf("write batch: %w", err)
	}
	return nil
}

// finish closes the writer and settles every attempt.
func (w *Writer) finish(committed bool) {
	w.done = true
	for _, a := range w.attempts {
		a.finish(committed)
	}
}

// outcomes reports the state of each staged record, in staging order.
func (w *Writer) outcomes() []state {
	out := make([]state, len(w.attempts))
	for i, a := range w.attempts {
		out[i] = a.state
	}
	return out
}

func isNotFound(err error) bool {
	return errors.Is(err, datastore.ErrNotFound)
}
