package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/chronicle/internal/audit"
	"github.com/roach88/chronicle/internal/datastore"
	"github.com/roach88/chronicle/internal/engine"
)

// AssertionError provides detailed context for assertion failures.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Key      string // Record the assertion read
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s on %s\n", e.Type, e.Key)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual:   %s", e.Actual)
	return buf.String()
}

// evaluateAssertion checks one assertion against the engine's final state.
func evaluateAssertion(ctx context.Context, eng *engine.Engine, a Assertion) error {
	key, err := datastore.ParseKey(a.Key)
	if err != nil {
		return err
	}

	switch a.Type {
	case AssertHistoryCount:
		entries, err := eng.History(ctx, key)
		if err != nil {
			return err
		}
		if len(entries) != a.Count {
			return &AssertionError{Type: a.Type, Key: a.Key,
				Expected: fmt.Sprintf("%d entries", a.Count),
				Actual:   fmt.Sprintf("%d entries", len(entries))}
		}

	case AssertHistoryAccounts:
		entries, err := eng.History(ctx, key)
		if err != nil {
			return err
		}
		accounts := make([]string, len(entries))
		for i, e := range entries {
			accounts[i] = e.Account
		}
		if !slices.Equal(accounts, a.Accounts) {
			return &AssertionError{Type: a.Type, Key: a.Key,
				Expected: fmt.Sprintf("%v", a.Accounts),
				Actual:   fmt.Sprintf("%v", accounts)}
		}

	case AssertHead:
		doc, ok, err := eng.Load(ctx, key, "")
		if err != nil {
			return err
		}
		if !ok {
			return &AssertionError{Type: a.Type, Key: a.Key, Expected: "a saved record", Actual: "no record"}
		}
		return checkHashes(a, audit.State(doc))

	case AssertVerify:
		if _, err := eng.Verify(ctx, key); err != nil {
			return &AssertionError{Type: a.Type, Key: a.Key, Expected: "an intact chain", Actual: err.Error()}
		}

	case AssertTag:
		p, ok, err := eng.TagNamed(ctx, key, a.Label)
		if err != nil {
			return err
		}
		if !ok {
			return &AssertionError{Type: a.Type, Key: a.Key,
				Expected: fmt.Sprintf("tag %q", a.Label), Actual: "no such tag"}
		}
		return checkHashes(a, audit.Revision{DataHash: p.DataHash})
	}
	return nil
}

func checkHashes(a Assertion, got audit.Revision) error {
	if a.DataHash != "" && got.DataHash != a.DataHash {
		return &AssertionError{Type: a.Type, Key: a.Key,
			Expected: "data_hash " + a.DataHash, Actual: "data_hash " + got.DataHash}
	}
	if a.RevHash != "" && got.RevHash != a.RevHash {
		return &AssertionError{Type: a.Type, Key: a.Key,
			Expected: "rev_hash " + a.RevHash, Actual: "rev_hash " + got.RevHash}
	}
	return nil
}

// errorCode names err for expect clauses: the audit error code when there
// is one, otherwise a short class.
func errorCode(err error) string {
	var ae *audit.Error
	switch {
	case errors.As(err, &ae):
		return string(ae.Code)
	case errors.Is(err, datastore.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, datastore.ErrConflict):
		return "CONFLICT"
	default:
		return "ERROR"
	}
}
