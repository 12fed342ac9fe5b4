package engine

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/roach88/chronicle/internal/audit"
	"github.com/roach88/chronicle/internal/datastore"
	"github.com/roach88/chronicle/internal/field"
)

// state is the position of one record's write attempt.
type state int

const (
	stateIdle state = iota
	stateHashComputed
	stateAuditDecided
	stateCommitted
	stateSkipped
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateHashComputed:
		return "hash_computed"
	case stateAuditDecided:
		return "audit_decided"
	case stateCommitted:
		return "committed"
	case stateSkipped:
		return "skipped"
	case stateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// attempt carries one record through hash, decide and commit. It replaces
// any per-record "skip the hook once" flag: the state lives here and dies
// with the attempt.
type attempt struct {
	rec   audit.Record
	state state

	// base is the hash state the attempt started from: the record's
	// committed state, or the pending result of an earlier attempt on the
	// same key in this transaction.
	base audit.Revision

	account  string
	fields   field.Set
	view     snapshot
	dataHash string
	changed  bool
	ts       time.Time

	next  audit.Revision
	entry *audit.Entry
	err   error
}

// snapshot freezes a record's fields for the length of one attempt so the
// hash, the audit entry and the live entity all see the same content.
type snapshot struct {
	audit.Record
	fields field.Set
}

func (s snapshot) Fields() field.Set { return s.fields.Clone() }

func newAttempt(rec audit.Record, base audit.Revision) *attempt {
	return &attempt{rec: rec, base: base, state: stateIdle}
}

func (a *attempt) fail(err error) error {
	a.state = stateFailed
	a.err = err
	return err
}

func (a *attempt) expect(s state) error {
	if a.state != s {
		return fmt.Errorf("attempt for %s: expected state %s, in %s", a.rec.Key(), s, a.state)
	}
	return nil
}

// hash resolves the author and computes the data hash.
// Idle -> HashComputed.
func (a *attempt) hash(e *Engine) error {
	if err := a.expect(stateIdle); err != nil {
		return a.fail(err)
	}
	if a.rec.Key() == nil {
		return a.fail(audit.Errorf(audit.CodeInvalidArgument, nil, "record has no key"))
	}

	account, err := a.rec.Account()
	if err != nil {
		return a.fail(fmt.Errorf("resolve account for %s: %w", a.rec.Key(), err))
	}
	if account == "" {
		return a.fail(audit.Errorf(audit.CodePreconditionFailed, a.rec.Key(), "account is not resolvable"))
	}
	if !utf8.ValidString(account) {
		return a.fail(audit.Errorf(audit.CodeInvalidArgument, a.rec.Key(), "account %q is not valid UTF-8", account))
	}
	a.account = account

	a.fields = a.rec.Fields()
	a.view = snapshot{Record: a.rec, fields: a.fields}
	if e.validator != nil {
		if err := e.validator.Validate(a.rec.Key().Kind(), a.fields); err != nil {
			return a.fail(err)
		}
	}

	dataHash, changed, err := e.chain.Compute(a.view, a.base.DataHash)
	if err != nil {
		// Values the hasher cannot render cannot be stored either.
		return a.fail(audit.Errorf(audit.CodeInvalidArgument, a.rec.Key(), "%v", err))
	}
	a.dataHash = dataHash
	a.changed = changed
	a.state = stateHashComputed
	return nil
}

// decide builds the audit entry if content changed.
// HashComputed -> AuditDecided.
func (a *attempt) decide(e *Engine, requestID func() string, ts time.Time) error {
	if err := a.expect(stateHashComputed); err != nil {
		return a.fail(err)
	}
	a.ts = ts

	if !a.changed {
		a.next = a.base
		a.state = stateAuditDecided
		e.log.Debug("blind put, content unchanged",
			"key", a.rec.Key().String(),
			"data_hash", a.dataHash,
		)
		return nil
	}

	entry, err := e.auditor.CreateAudit(a.view, a.dataHash, a.base.RevHash, a.account, requestID(), ts)
	if err != nil {
		return a.fail(err)
	}
	a.entry = entry
	a.next = audit.Revision{DataHash: a.dataHash, RevHash: entry.RevHash}
	a.state = stateAuditDecided
	e.log.Debug("audit created",
		"key", a.rec.Key().String(),
		"data_hash", a.dataHash,
		"parent_hash", a.base.RevHash,
		"rev_hash", entry.RevHash,
		"account", a.account,
	)
	return nil
}

// entities returns the live entity and, if any, the audit entity.
func (a *attempt) entities(e *Engine) []*datastore.Entity {
	live := audit.LiveEntity(a.rec, a.next, a.fields)
	live.Timestamp = a.ts
	if a.entry == nil {
		return []*datastore.Entity{live}
	}
	return []*datastore.Entity{live, e.auditor.Entity(a.entry)}
}

// finish ends the attempt. On commit the new hash state is applied to the
// record; otherwise the record is left at its committed state.
func (a *attempt) finish(committed bool) {
	switch {
	case !committed:
		if a.state != stateFailed {
			a.state = stateFailed
		}
	case a.state != stateAuditDecided:
		// Never decided; nothing to apply.
	case a.changed:
		audit.Apply(a.rec, a.next)
		a.state = stateCommitted
	default:
		a.state = stateSkipped
	}
}
