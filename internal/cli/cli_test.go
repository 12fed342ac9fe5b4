package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chronicle/internal/audit"
	"github.com/roach88/chronicle/internal/field"
)

// execute runs the root command and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// executeJSON runs the command with --format json and decodes the response.
func executeJSON(t *testing.T, args ...string) (CLIResponse, error) {
	t.Helper()
	out, err := execute(t, append(args, "--format", "json")...)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp, err
}

func dataMap(t *testing.T, resp CLIResponse) map[string]any {
	t.Helper()
	m, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data is %T", resp.Data)
	return m
}

func dataList(t *testing.T, resp CLIResponse) []any {
	t.Helper()
	l, ok := resp.Data.([]any)
	require.True(t, ok, "data is %T", resp.Data)
	return l
}

func testDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "chronicle.db")
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "chronicle", cmd.Use)
	assert.Contains(t, cmd.Long, "audit entry")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"save", "batch", "show", "history", "tag", "tags", "verify", "hash"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	for _, name := range []string{"config", "db", "backend"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "hash", "a=1", "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestSaveAndHistory(t *testing.T) {
	db := testDB(t)

	resp, err := executeJSON(t, "save", "Note:n1", "title=hello", "count=3",
		"--account", "alice", "--request-id", "req-1", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "req-1", resp.RequestID)

	saved := dataMap(t, resp)
	assert.Equal(t, "Note:n1", saved["key"])
	assert.Equal(t, "9ed2ba28", saved["data_hash"]) // {v1}count=3|title=hello
	assert.Equal(t, "7de0abcc", saved["rev_hash"])  // |alice|9ed2ba28
	assert.Equal(t, true, saved["changed"])

	resp, err = executeJSON(t, "save", "Note:n1", "count=4", "--account", "bob", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "2e5dea2d", dataMap(t, resp)["rev_hash"])
	assert.Len(t, resp.RequestID, 16)

	resp, err = executeJSON(t, "history", "Note:n1", "--db", db)
	require.NoError(t, err)
	entries := dataList(t, resp)
	require.Len(t, entries, 2)

	newest := entries[0].(map[string]any)
	assert.Equal(t, "96d2b700", newest["data_hash"])
	assert.Equal(t, "7de0abcc", newest["parent_hash"])
	assert.Equal(t, "bob", newest["account"])
	assert.Equal(t, map[string]any{"count": float64(4), "title": "hello"}, newest["fields"])

	oldest := entries[1].(map[string]any)
	assert.Equal(t, "req-1", oldest["request_id"])
	assert.Equal(t, "", oldest["parent_hash"])

	resp, err = executeJSON(t, "history", "Note:n1", "-n", "1", "--db", db)
	require.NoError(t, err)
	assert.Len(t, dataList(t, resp), 1)
}

func TestSaveUnchanged(t *testing.T) {
	db := testDB(t)

	_, err := execute(t, "save", "Note:n1", "title=hello", "--account", "alice", "--db", db)
	require.NoError(t, err)

	resp, err := executeJSON(t, "save", "Note:n1", "title=hello", "--account", "alice", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, false, dataMap(t, resp)["changed"])
	assert.Empty(t, resp.RequestID)

	out, err := execute(t, "history", "Note:n1", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "rev="))
}

func TestSaveUnsetAndReplace(t *testing.T) {
	db := testDB(t)

	_, err := execute(t, "save", "Note:n1", "title=hello", "count=3", "draft=true", "--account", "alice", "--db", db)
	require.NoError(t, err)

	_, err = execute(t, "save", "Note:n1", "--unset", "draft", "--account", "alice", "--db", db)
	require.NoError(t, err)
	resp, err := executeJSON(t, "show", "Note:n1", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "9ed2ba28", dataMap(t, resp)["data_hash"])

	_, err = execute(t, "save", "Note:n1", "title=only", "--replace", "--account", "alice", "--db", db)
	require.NoError(t, err)
	resp, err = executeJSON(t, "show", "Note:n1", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "only"}, dataMap(t, resp)["fields"])
}

func TestSaveErrors(t *testing.T) {
	db := testDB(t)

	_, err := execute(t, "save", "Note:n1", "title=hello", "--db", db)
	require.Error(t, err, "account is required")

	resp, err := executeJSON(t, "save", "Note:n1", "novalue", "--account", "alice", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ErrCodeInvalidArgument, resp.Error.Code)

	resp, err = executeJSON(t, "save", "Note:n1", "data_hash=x", "--account", "alice", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ErrCodeInvalidArgument, resp.Error.Code)

	resp, err = executeJSON(t, "save", "not a key", "a=1", "--account", "alice", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ErrCodeInvalidArgument, resp.Error.Code)
}

func TestShowMissing(t *testing.T) {
	resp, err := executeJSON(t, "show", "Note:absent", "--db", testDB(t))
	require.Error(t, err)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
}

func TestTagCommands(t *testing.T) {
	db := testDB(t)

	_, err := execute(t, "save", "Note:n1", "title=hello", "count=3", "--account", "alice", "--db", db)
	require.NoError(t, err)

	resp, err := executeJSON(t, "tag", "Note:n1", "published", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "9ed2ba28", dataMap(t, resp)["data_hash"])
	assert.Equal(t, "published", dataMap(t, resp)["label"])

	_, err = execute(t, "tag", "Note:n1", "pinned", "deadbeef", "--db", db)
	require.NoError(t, err)

	resp, err = executeJSON(t, "tags", "Note:n1", "--db", db)
	require.NoError(t, err)
	assert.Len(t, dataList(t, resp), 2)

	resp, err = executeJSON(t, "tag", "Note:unsaved", "v1", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ErrCodePreconditionFailed, resp.Error.Code)
}

func TestBatch(t *testing.T) {
	db := testDB(t)
	path := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
request_id: import-42
records:
  - key: Note:n1
    account: alice
    fields: {title: hello, count: 3}
  - key: Item:i1
    account: importer
    fields:
      name: x
tags:
  - key: Note:n1
    label: imported
`), 0o644))

	resp, err := executeJSON(t, "batch", path, "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "import-42", resp.RequestID)

	res := dataMap(t, resp)
	records := res["records"].([]any)
	require.Len(t, records, 2)
	assert.Equal(t, "7de0abcc", records[0].(map[string]any)["rev_hash"])
	assert.Equal(t, "08f4d742", records[1].(map[string]any)["rev_hash"]) // |importer|70d9d8ba

	tags := res["tags"].([]any)
	require.Len(t, tags, 1)
	assert.Equal(t, "9ed2ba28", tags[0].(map[string]any)["data_hash"])

	for _, key := range []string{"Note:n1", "Item:i1"} {
		resp, err := executeJSON(t, "history", key, "--db", db)
		require.NoError(t, err)
		entries := dataList(t, resp)
		require.Len(t, entries, 1)
		assert.Equal(t, "import-42", entries[0].(map[string]any)["request_id"])
	}
}

func TestBatchIsAtomic(t *testing.T) {
	db := testDB(t)
	path := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
records:
  - key: Note:n1
    account: alice
    fields: {title: hello}
tags:
  - key: Note:n1
    label: ""
`), 0o644))

	_, err := execute(t, "batch", path, "--db", db)
	require.Error(t, err)

	resp, err := executeJSON(t, "history", "Note:n1", "--db", db)
	require.NoError(t, err)
	assert.Empty(t, dataList(t, resp))
}

func TestParseBatch(t *testing.T) {
	b, err := ParseBatch(strings.NewReader("records:\n  - key: Note:n1\n    account: a\n    fields: {n: 1, tags: [x, y]}\n"))
	require.NoError(t, err)
	require.Len(t, b.Records, 1)
	fields, err := field.SetFromGo(b.Records[0].Fields)
	require.NoError(t, err)
	assert.Equal(t, field.Set{"n": field.Int(1), "tags": field.List{field.String("x"), field.String("y")}}, fields)

	_, err = ParseBatch(strings.NewReader("recordz: []\n"))
	assert.Error(t, err)

	b, err = ParseBatch(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, b.Records)
}

func TestVerifyCommand(t *testing.T) {
	db := testDB(t)
	for _, title := range []string{"a", "b", "c"} {
		_, err := execute(t, "save", "Note:n1", "title="+title, "--account", "alice", "--db", db)
		require.NoError(t, err)
	}

	out, err := execute(t, "verify", "Note:n1", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "ok, 3 revisions")

	resp, err := executeJSON(t, "verify", "Note:n1", "--db", db)
	require.NoError(t, err)
	assert.Len(t, dataMap(t, resp)["links"], 3)
}

func TestBadgerBackend(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "badger")

	_, err := execute(t, "save", "Note:n1", "title=hello", "count=3", "--account", "alice",
		"--backend", "badger", "--db", dir)
	require.NoError(t, err)

	resp, err := executeJSON(t, "show", "Note:n1", "--backend", "badger", "--db", dir)
	require.NoError(t, err)
	assert.Equal(t, "7de0abcc", dataMap(t, resp)["rev_hash"])
}

func TestUnknownBackend(t *testing.T) {
	resp, err := executeJSON(t, "show", "Note:n1", "--backend", "postgres", "--db", testDB(t))
	require.Error(t, err)
	assert.Equal(t, ErrCodeConfig, resp.Error.Code)
}

func TestSchemaFromConfig(t *testing.T) {
	dir := t.TempDir()
	schemas := filepath.Join(dir, "schemas")
	require.NoError(t, os.Mkdir(schemas, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(schemas, "notes.cue"), []byte(`package notes

kind: Note: {
	title: string
	count?: int & >=0
}
`), 0o644))
	cfgPath := filepath.Join(dir, "chronicle.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("schema:\n  dir: "+schemas+"\n"), 0o644))
	db := filepath.Join(dir, "chronicle.db")

	resp, err := executeJSON(t, "save", "Note:n1", "count=-1", "title=x", "--account", "alice",
		"--config", cfgPath, "--db", db)
	require.Error(t, err)
	assert.Equal(t, ErrCodeInvalidArgument, resp.Error.Code)

	_, err = execute(t, "save", "Note:n1", "count=1", "title=x", "--account", "alice",
		"--config", cfgPath, "--db", db)
	require.NoError(t, err)
}

func TestHashCommand(t *testing.T) {
	resp, err := executeJSON(t, "hash", "foo=a", "bar=1", "--account", "foo-account")
	require.NoError(t, err)
	res := dataMap(t, resp)
	assert.Equal(t, "{v1}bar=1|foo=a", res["canonical"])
	assert.Equal(t, "1d670f75", res["data_hash"])
	assert.Equal(t, "a0c39d3c", res["rev_hash"])

	out, err := execute(t, "hash", "foo=a", "bar=1")
	require.NoError(t, err)
	assert.Equal(t, "canonical {v1}bar=1|foo=a\ndata_hash 1d670f75\n", out)
}

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{"s=hello", "n=42", "b=true", "z=null", "l=[1,2]", "g={\"a\":1}", "e="})
	require.NoError(t, err)
	assert.Equal(t, field.Set{
		"s": field.String("hello"),
		"n": field.Int(42),
		"b": field.Bool(true),
		"z": field.Null{},
		"l": field.List{field.Int(1), field.Int(2)},
		"g": field.Group{"a": field.Int(1)},
		"e": field.String(""),
	}, got)

	_, err = parseAssignments([]string{"a=1", "a=2"})
	assert.Error(t, err)
	_, err = parseAssignments([]string{"=1"})
	assert.Error(t, err)
}

func TestParseAssignmentsNormalizesText(t *testing.T) {
	got, err := parseAssignments([]string{"cafe\u0301=cre\u0300me", `l=["e\u0301"]`})
	require.NoError(t, err)
	assert.Equal(t, field.Set{
		"caf\u00e9": field.String("cr\u00e8me"),
		"l":         field.List{field.String("\u00e9")},
	}, got)

	_, err = parseAssignments([]string{"e\u0301=1", "\u00e9=2"})
	assert.True(t, audit.IsInvalidArgument(err))
}

func TestFormatFields(t *testing.T) {
	s := field.Set{"b": field.Int(1), "a": field.String("x")}
	assert.Equal(t, `a="x" b=1`, formatFields(s))
}
