package harness

import (
	"github.com/roach88/chronicle/internal/field"
)

// Result contains the outcome of running a scenario.
type Result struct {
	// Pass indicates overall success: every step matched its expect clause
	// and every assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per step, in flow order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// AddError records a failure.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// TraceEvent records what one step wrote.
type TraceEvent struct {
	// Step is the zero-based flow index.
	Step int `json:"step"`

	// Type is "save" or "tag".
	Type string `json:"type"`

	// RequestID is the request id stamped on the step's audit entries.
	// Empty when nothing changed.
	RequestID string `json:"request_id,omitempty"`

	// Records lists the saved records in step order.
	Records []RecordTrace `json:"records,omitempty"`

	// Tag is set for tag steps.
	Tag *TagTrace `json:"tag,omitempty"`

	// Error is the error code the step failed with.
	Error string `json:"error,omitempty"`
}

// RecordTrace is the hash state of one record after its step.
type RecordTrace struct {
	Key      string `json:"key"`
	DataHash string `json:"data_hash"`
	RevHash  string `json:"rev_hash"`
	Changed  bool   `json:"changed"`
}

// TagTrace is the pointer a tag step wrote.
type TagTrace struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	DataHash string `json:"data_hash"`
}

// Value renders the event as a field group for canonical serialization.
// Empty optional members are omitted.
func (e TraceEvent) Value() field.Group {
	g := field.Group{
		"step": field.Int(e.Step),
		"type": field.String(e.Type),
	}
	if e.RequestID != "" {
		g["request_id"] = field.String(e.RequestID)
	}
	if len(e.Records) > 0 {
		recs := make(field.List, len(e.Records))
		for i, r := range e.Records {
			recs[i] = field.Group{
				"key":       field.String(r.Key),
				"data_hash": field.String(r.DataHash),
				"rev_hash":  field.String(r.RevHash),
				"changed":   field.Bool(r.Changed),
			}
		}
		g["records"] = recs
	}
	if e.Tag != nil {
		g["tag"] = field.Group{
			"key":       field.String(e.Tag.Key),
			"label":     field.String(e.Tag.Label),
			"data_hash": field.String(e.Tag.DataHash),
		}
	}
	if e.Error != "" {
		g["error"] = field.String(e.Error)
	}
	return g
}
