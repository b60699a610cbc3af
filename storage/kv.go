package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a key has no value, including keys whose
// TTL has expired.
var ErrNotFound = errors.New("entry not found")

// KVConfig contains settings specific to BadgerDB connections
type KVConfig struct {
	StorageDirPath string
	// Zero keeps entries forever
	KeyTTLDuration time.Duration
	// Keep everything in memory, ignoring StorageDirPath. Used by tests.
	InMemory bool
}

// KeyValue exposes a common interface for performing CRUD operations on an
// underlying storage layer.
//
// Implentations need to include connection logic in code to initialize
// a Store.
type KeyValue interface {
	// Replace the value of an entry or create a new one if it doesn't exist
	Put(KVEntry) error
	// Return an entry given its key
	Read(key []byte) (KVEntry, error)
	// Return every live entry whose key starts with prefix, in key order
	List(prefix []byte) ([]KVEntry, error)
	Delete(key []byte) error
	// Cleanup performs routine deletion of old records. We assign
	// TTLs to KV pairs and delete them periodically.
	Cleanup() error
	// Drain/tear down the connection, or something analogous for
	// an embedded database
	Close() error
}

// KVEntry is what we'll write to and read from the KV store
type KVEntry struct {
	Key   []byte
	Value []byte
}
