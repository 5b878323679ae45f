// Package storage defines the narrow contract between the table engine and
// an embedded ordered byte-KV store. Concrete engines live in subpackages
// (storage/pebble, storage/badger, storage/bbolt, storage/memkv); nothing in
// this package or its callers may depend on a specific engine's types.
package storage

import "context"

// Op is one entry of a write batch: either a Put or a Delete (tombstone,
// signalled by a nil Value).
type Op struct {
	Key   []byte
	Value []byte
}

// Options configures an engine at Open time. Fields not meaningful to a
// given engine are ignored.
type Options struct {
	WriteBufferBytes   int
	CacheBytes         int
	FileSizeBytes      int
	MaxOpenFiles       int
	CompressionEnabled bool
	ReuseLogs          bool
}

// Iterator is a positioned, single-threaded cursor over a key range.
// Iteration order is lexicographic on the raw key bytes.
type Iterator interface {
	Valid() bool
	Next()
	Prev()
	Key() []byte
	Value() []byte
	Close() error
}

// SeekMode selects how Iterate positions its returned Iterator relative to
// the supplied key, mirroring the four range-endpoint modes of §4.B.
type SeekMode int

const (
	SeekGE SeekMode = iota // first key >= k
	SeekGT                 // first key > k
	SeekLE                 // last key <= k
	SeekLT                 // last key < k
)

// Engine is the full Storage Adapter contract (§4.B): open, get, iterate
// range, atomic batch write, hot backup, close, property.
type Engine interface {
	// Get performs a point read; ok is false if the key is absent.
	Get(key []byte) (value []byte, ok bool, err error)

	// Iterate returns an iterator positioned relative to key per mode.
	Iterate(key []byte, mode SeekMode) (Iterator, error)

	// WriteBatch atomically applies ops against concurrent readers.
	WriteBatch(ops []Op) error

	// Sync forces the most recent WriteBatch durably to disk.
	Sync() error

	// HotBackup copies a consistent snapshot to dstPath without blocking
	// writers, returning the number of bytes copied.
	HotBackup(ctx context.Context, dstPath string) (int64, error)

	// Property returns implementation-defined diagnostics.
	Property(name string) string

	// Close releases all engine resources.
	Close() error
}

// Open is implemented by each engine package as a package-level function
// (e.g. pebble.Open, badger.Open, bbolt.Open, memkv.Open) rather than a
// method here, since opening requires engine-specific arguments (a
// filesystem path for the durable engines, none for memkv).
