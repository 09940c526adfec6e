// Package store persists the catalog and the job ledger in an embedded
// badgerhold database. All writes key on natural external identifiers
// (URLs, slugs) so re-running an extraction is idempotent. The crawl
// pipeline is the only writer; readers only read.
package store

import (
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

// Store wraps a badgerhold instance with catalog and ledger operations.
type Store struct {
	db *badgerhold.Store
}

// Open initialises the database under dir.
func Open(dir string) (*Store, error) {
	options := badgerhold.DefaultOptions
	options.Options = badger.DefaultOptions(dir).WithLogger(nil)
	options.Dir = dir
	options.ValueDir = dir

	db, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
