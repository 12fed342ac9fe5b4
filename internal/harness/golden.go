package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/chronicle/internal/field"
)

// TraceSnapshot captures the complete trace for a scenario execution.
type TraceSnapshot struct {
	ScenarioName string
	Trace        []TraceEvent
}

// Value renders the snapshot as a field group for canonical serialization.
func (s *TraceSnapshot) Value() field.Group {
	trace := make(field.List, len(s.Trace))
	for i, event := range s.Trace {
		trace[i] = event.Value()
	}
	return field.Group{
		"scenario_name": field.String(s.ScenarioName),
		"trace":         trace,
	}
}

// MarshalTrace serializes the trace of result as canonical JSON.
func MarshalTrace(scenario *Scenario, result *Result) ([]byte, error) {
	snapshot := &TraceSnapshot{ScenarioName: scenario.Name, Trace: result.Trace}
	return field.MarshalCanonical(snapshot.Value())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. Test failure (via goldie)
// occurs if the trace doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}

	AssertGolden(t, scenario, result)
	return result, nil
}

// AssertGolden compares the trace of result against the scenario's golden
// file.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) {
	t.Helper()

	data, err := MarshalTrace(scenario, result)
	if err != nil {
		t.Fatalf("failed to marshal trace: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
}
