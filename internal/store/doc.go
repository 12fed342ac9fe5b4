// Package store is the SQLite implementation of datastore.Datastore.
//
// Every entity, whatever its kind, is one row of the entities table:
//
//	key        canonical key path (datastore.Key.String), primary key
//	parent     parent key path, '' for root keys
//	kind       last segment kind label
//	properties field.Encode output (canonical JSON)
//	ts         entity timestamp, Unix nanoseconds
//
// Key paths sort every descendant of K inside [K+"/", K+"0"), so an
// ancestor query is a primary key range scan.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
//
// SQLITE_BUSY and SQLITE_LOCKED surface as datastore.ErrConflict.
package store
