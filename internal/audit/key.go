package audit

import (
	"github.com/roach88/chronicle/internal/canon"
	"github.com/roach88/chronicle/internal/datastore"
)

// KeyName returns the audit key name {v1}<parent>|<account>|<data>.
func KeyName(dataHash, parentHash, account string) string {
	return canon.FormatTag + parentHash + "|" + account + "|" + dataHash
}

// BuildKey returns the key of the audit record for one change of the record
// at recordKey. Identical inputs always give the identical key.
func BuildKey(recordKey *datastore.Key, dataHash, parentHash, account string) (*datastore.Key, error) {
	if recordKey == nil {
		return nil, Errorf(CodeInvalidArgument, nil, "audit key needs a record key")
	}
	if account == "" {
		return nil, Errorf(CodeInvalidArgument, recordKey, "account is required")
	}
	return datastore.NewKey(Kind, KeyName(dataHash, parentHash, account), recordKey), nil
}
