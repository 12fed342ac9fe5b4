package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines one reproducible run.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Backend selects the store: "sqlite" (default) or "badger".
	Backend string `yaml:"backend,omitempty"`

	// Flow contains the steps, one transaction each.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one transaction. Exactly one of Save and Tag is set.
type Step struct {
	// Save lists the record changes written together.
	Save []RecordChange `yaml:"save,omitempty"`

	// Tag points a label at a record.
	Tag *TagStep `yaml:"tag,omitempty"`

	// RequestID overrides the generated request id of this step.
	RequestID string `yaml:"request_id,omitempty"`

	// Expect specifies the expected failure. Nil means the step must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// RecordChange modifies one record before it is saved.
type RecordChange struct {
	Key     string         `yaml:"key"`
	Account string         `yaml:"account"`
	Fields  map[string]any `yaml:"fields,omitempty"`
	Unset   []string       `yaml:"unset,omitempty"`

	// Fresh saves through a new, never-loaded instance.
	Fresh bool `yaml:"fresh,omitempty"`
}

// TagStep tags a record. An empty DataHash tags the record's current hash.
type TagStep struct {
	Key      string `yaml:"key"`
	Label    string `yaml:"label"`
	DataHash string `yaml:"data_hash,omitempty"`
}

// ExpectClause names the error code a step must fail with, e.g.
// INVALID_ARGUMENT or PRECONDITION_FAILED.
type ExpectClause struct {
	Error string `yaml:"error"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Key is the record key path the assertion reads.
	Key string `yaml:"key"`

	// Count is the expected number of audit entries (history_count).
	Count int `yaml:"count,omitempty"`

	// DataHash and RevHash are expected hashes (head, tag). Empty values
	// are not checked.
	DataHash string `yaml:"data_hash,omitempty"`
	RevHash  string `yaml:"rev_hash,omitempty"`

	// Label names the tag (tag).
	Label string `yaml:"label,omitempty"`

	// Accounts are the expected authors, newest first (history_accounts).
	Accounts []string `yaml:"accounts,omitempty"`
}

// Assertion type constants.
const (
	AssertHistoryCount    = "history_count"
	AssertHistoryAccounts = "history_accounts"
	AssertHead            = "head"
	AssertVerify          = "verify"
	AssertTag             = "tag"
)

var assertionTypes = map[string]bool{
	AssertHistoryCount:    true,
	AssertHistoryAccounts: true,
	AssertHead:            true,
	AssertVerify:          true,
	AssertTag:             true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	switch s.Backend {
	case "", "sqlite", "badger":
	default:
		return fmt.Errorf("backend %q: must be sqlite or badger", s.Backend)
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		if (len(step.Save) > 0) == (step.Tag != nil) {
			return fmt.Errorf("flow[%d]: exactly one of save or tag is required", i)
		}
		for j, change := range step.Save {
			if change.Key == "" {
				return fmt.Errorf("flow[%d].save[%d]: key is required", i, j)
			}
		}
		if step.Tag != nil && step.Tag.Key == "" {
			return fmt.Errorf("flow[%d].tag: key is required", i)
		}
		if step.Expect != nil && step.Expect.Error == "" {
			return fmt.Errorf("flow[%d].expect: error is required", i)
		}
	}

	for i, a := range s.Assertions {
		if !assertionTypes[a.Type] {
			return fmt.Errorf("assertions[%d]: unknown type %q", i, a.Type)
		}
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required", i)
		}
		if a.Type == AssertTag && a.Label == "" {
			return fmt.Errorf("assertions[%d]: label is required", i)
		}
	}
	return nil
}
