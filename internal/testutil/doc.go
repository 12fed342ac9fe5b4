// Package testutil provides deterministic clocks and sample audited record
// types for tests.
package testutil
