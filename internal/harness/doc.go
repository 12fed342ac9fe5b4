// Package harness runs YAML scenarios against a real engine and compares the
// resulting write trace with golden files.
//
// A scenario is a flow of steps. Each step is one transaction: it saves one
// or more records, or tags one. Records are held in memory across steps
// like long-lived instances in an application, so a later step sees the hash
// state the earlier commit left behind. A change marked fresh uses a
// never-loaded instance instead, which starts a new chain root.
//
// Every run uses an empty database, a step clock starting at testutil.Epoch
// and request ids req-0001, req-0002, ... so traces are reproducible.
//
//	name: edit_note
//	description: two edits chain by rev hash
//	flow:
//	  - save:
//	      - {key: "Note:n1", account: alice, fields: {title: a}}
//	  - save:
//	      - {key: "Note:n1", account: alice, fields: {title: b}}
//	assertions:
//	  - {type: history_count, key: "Note:n1", count: 2}
//	  - {type: verify, key: "Note:n1"}
package harness
