// Package table implements the Table/TableLong cached KV abstraction: a
// bounded read_cache, an unbounded modified_map of dirty records, and the
// per-key lock sharding that procedures use to serialize access (§4.C).
package table

import (
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/shoaldb/keel/locks"
	"github.com/shoaldb/keel/octets"
	"github.com/shoaldb/keel/record"
	"github.com/shoaldb/keel/storage"
	"github.com/shoaldb/keel/txnerr"
)

// modEntry is one entry of the modified_map: either a dirty record or a
// tombstone standing in for a pending delete.
type modEntry[V any] struct {
	value     V
	tombstone bool
}

// Config wires a Table to its key/value codec and backing collaborators.
// There is no way to express "K implements a codec" generically without an
// interface per K, so the codec is supplied as plain functions instead of a
// generated stub type.
type Config[K comparable, V any] struct {
	TableID   int32
	Name      string
	Engine    storage.Engine
	Locks     *locks.Pool
	CacheSize int

	EncodeKey func(o *octets.Octets, k K)
	DecodeKey func(o *octets.Octets) (K, error)
	KeyBytes  func(k K) []byte // bytes hashed for lock_id; defaults to EncodeKey's output

	NewRecord func() V
	Marshal   func(v V, o *octets.Octets)
	Unmarshal func(o *octets.Octets) (V, error)
	Equal     func(a, b V) bool
}

// Table is the generic cached KV abstraction of §3/§4.C.
type Table[K comparable, V any] struct {
	cfg Config[K, V]

	readCache *lru[K, V]
	modified  *xsync.MapOf[K, modEntry[V]]
}

// New constructs a Table from cfg. cfg.Engine may be nil for a memory-only
// table (no backing storage.Engine), matching DBManager.openTable's
// null-stub_v convention for ephemeral tables.
func New[K comparable, V any](cfg Config[K, V]) *Table[K, V] {
	if cfg.KeyBytes == nil {
		cfg.KeyBytes = func(k K) []byte {
			o := octets.New()
			cfg.EncodeKey(o, k)
			return o.Bytes()
		}
	}
	return &Table[K, V]{
		cfg:       cfg,
		readCache: newLRU[K, V](cfg.CacheSize),
		modified:  xsync.NewMapOf[K, modEntry[V]](),
	}
}

// storageKey returns the physical key: varuint(table_id) || encode(key).
func (t *Table[K, V]) storageKey(k K) []byte {
	o := octets.New()
	o.MarshalUvarint(uint32(t.cfg.TableID))
	t.cfg.EncodeKey(o, k)
	return o.Bytes()
}

// RangePrefix returns the [lo, hi) physical key bounds for a full-table scan,
// per §6's "upper-bounded by varuint(table_id+1)" rule.
func (t *Table[K, V]) RangePrefix() (lo, hi []byte) {
	lo0 := octets.New()
	lo0.MarshalUvarint(uint32(t.cfg.TableID))
	hi0 := octets.New()
	hi0.MarshalUvarint(uint32(t.cfg.TableID + 1))
	return lo0.Bytes(), hi0.Bytes()
}

// LockID returns the table-salted, hash-derived lock id for k (§4.C).
func (t *Table[K, V]) LockID(k K) int32 {
	return locks.Hash(t.cfg.TableID, t.cfg.KeyBytes(k))
}

func (t *Table[K, V]) checkLocked(holder uint64, k K) error {
	if !t.cfg.Locks.IsLockedBy(holder, t.LockID(k)) {
		return txnerr.ErrLockViolation
	}
	return nil
}

// loadStorage reads k from the backing storage.Engine, decoding the value.
// ok is false if absent or there is no backing engine.
func (t *Table[K, V]) loadStorage(k K) (V, bool, error) {
	var zero V
	if t.cfg.Engine == nil {
		return zero, false, nil
	}
	raw, ok, err := t.cfg.Engine.Get(t.storageKey(k))
	if err != nil {
		return zero, false, &txnerr.StorageError{Op: "get", Err: err}
	}
	if !ok {
		return zero, false, nil
	}
	o := octets.Wrap(raw)
	format, err := o.Unmarshal1()
	if err != nil {
		return zero, false, err
	}
	if format != record.Format {
		return zero, false, octets.ErrBadFormat
	}
	v, err := t.cfg.Unmarshal(o)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// GetNoLock looks up k without checking that the caller holds its lock.
// Lookup order: modified_map -> read_cache -> storage (promoting into
// read_cache on a storage hit), per §4.C.
func (t *Table[K, V]) GetNoLock(k K) (V, bool, error) {
	var zero V
	if e, ok := t.modified.Load(k); ok {
		if e.tombstone {
			return zero, false, nil
		}
		return e.value, true, nil
	}
	if v, ok := t.readCache.get(k); ok {
		return v, true, nil
	}
	v, ok, err := t.loadStorage(k)
	if err != nil {
		return zero, false, err
	}
	if !ok {
		return zero, false, nil
	}
	t.readCache.put(k, v)
	return v, true, nil
}

// Get looks up k, requiring holder to already hold k's record lock.
func (t *Table[K, V]) Get(holder uint64, k K) (V, bool, error) {
	var zero V
	if err := t.checkLocked(holder, k); err != nil {
		return zero, false, err
	}
	return t.GetNoLock(k)
}

// GetNoCacheUnsafe looks up k without checking the lock and without
// promoting a storage hit into read_cache.
func (t *Table[K, V]) GetNoCacheUnsafe(k K) (V, bool, error) {
	var zero V
	if e, ok := t.modified.Load(k); ok {
		if e.tombstone {
			return zero, false, nil
		}
		return e.value, true, nil
	}
	if v, ok := t.readCache.get(k); ok {
		return v, true, nil
	}
	return t.loadStorage(k)
}

// GetNoCache looks up k, requiring holder to hold k's record lock, without
// promoting a storage hit into read_cache.
func (t *Table[K, V]) GetNoCache(holder uint64, k K) (V, bool, error) {
	var zero V
	if err := t.checkLocked(holder, k); err != nil {
		return zero, false, err
	}
	return t.GetNoCacheUnsafe(k)
}

// GetCacheUnsafe only checks read_cache/modified_map, never touching storage.
func (t *Table[K, V]) GetCacheUnsafe(k K) (V, bool) {
	var zero V
	if e, ok := t.modified.Load(k); ok {
		if e.tombstone {
			return zero, false
		}
		return e.value, true
	}
	return t.readCache.get(k)
}

// PutUnsafe installs v as the cached value for k without recording undo or
// checking the lock. incMod is called when a previously-clean key becomes
// dirty (used to drive DBManager's global dirty counter).
func (t *Table[K, V]) PutUnsafe(k K, v V, incMod func()) error {
	if prev, had := t.readCache.get(k); had && t.cfg.Equal != nil && t.cfg.Equal(prev, v) {
		// Re-putting the exact cached instance: treat as modify.
		return t.ModifyUnsafe(k, v, incMod)
	}
	t.readCache.put(k, v)
	_, existed := t.modified.Load(k)
	t.modified.Store(k, modEntry[V]{value: v})
	if !existed && incMod != nil {
		incMod()
	}
	return nil
}

// Put installs a fresh record v for k, requiring holder to hold k's lock.
func (t *Table[K, V]) Put(holder uint64, k K, v V, incMod func()) error {
	if err := t.checkLocked(holder, k); err != nil {
		return err
	}
	return t.PutUnsafe(k, v, incMod)
}

// modify transitions the canonical cached instance for k from Shared to
// Dirty. strict controls whether an unmatched instance is a hard error (the
// ModifyUnsafe path, §9 Open Question 1) or silently ignored (the
// ModifyLenient path used by Wrapper.Dirty, where a put/remove in the same
// transaction may already have replaced k's modified_map entry).
func (t *Table[K, V]) modify(k K, v V, incMod func(), strict bool) error {
	if e, ok := t.modified.Load(k); ok {
		if !e.tombstone && t.cfg.Equal != nil && t.cfg.Equal(e.value, v) {
			return nil
		}
		if strict {
			return txnerr.ErrStateViolation
		}
		return nil
	}
	t.modified.Store(k, modEntry[V]{value: v})
	if incMod != nil {
		incMod()
	}
	return nil
}

// ModifyUnsafe is the strict, lock-checked-by-caller public Modify path.
func (t *Table[K, V]) ModifyUnsafe(k K, v V, incMod func()) error {
	return t.modify(k, v, incMod, true)
}

// ModifyLenient is the internal path invoked by Wrapper.Dirty; an unmatched
// instance is ignored rather than erroring (§9 Open Question 1 resolves
// ModifyUnsafe to strict; this path stays lenient because a put/remove in the
// same transaction may already have superseded the wrapper's target key).
func (t *Table[K, V]) ModifyLenient(k K, v V, incMod func()) error {
	return t.modify(k, v, incMod, false)
}

// UnmodifyUnsafe reverts k from Dirty back to Shared by dropping its
// modified_map entry without touching read_cache, used to undo a wrapper's
// Dirty() transition on rollback.
func (t *Table[K, V]) UnmodifyUnsafe(k K) {
	t.modified.Delete(k)
}

// RemoveUnsafe installs a tombstone for k and evicts it from read_cache.
func (t *Table[K, V]) RemoveUnsafe(k K, incMod func()) {
	t.readCache.delete(k)
	_, existed := t.modified.Load(k)
	t.modified.Store(k, modEntry[V]{tombstone: true})
	if !existed && incMod != nil {
		incMod()
	}
}

// Remove removes k, requiring holder to hold k's lock.
func (t *Table[K, V]) Remove(holder uint64, k K, incMod func()) error {
	if err := t.checkLocked(holder, k); err != nil {
		return err
	}
	t.RemoveUnsafe(k, incMod)
	return nil
}

// WalkCache iterates read_cache only, in unspecified order.
func (t *Table[K, V]) WalkCache(fn func(k K, v V) bool) {
	t.readCache.walk(func(k K, v V) {
		fn(k, v)
	})
}

// Walk scans committed storage only (never the modified_map), ascending or
// descending, per §4.C. lo/hi are physical keys as returned by a caller
// composing table-prefixed bounds (see RangePrefix, or per-key encode for a
// narrower range).
func (t *Table[K, V]) Walk(lo, hi []byte, reverse bool, handler func(k K, v V) bool) error {
	if t.cfg.Engine == nil {
		return nil
	}

	var it storage.Iterator
	var err error
	if reverse {
		it, err = t.cfg.Engine.Iterate(hi, storage.SeekLT)
	} else {
		it, err = t.cfg.Engine.Iterate(lo, storage.SeekGE)
	}
	if err != nil {
		return &txnerr.StorageError{Op: "iterate", Err: err}
	}
	defer it.Close()

	for it.Valid() {
		key := it.Key()
		if !reverse && bytesGE(key, hi) {
			break
		}
		if reverse && bytesLT(key, lo) {
			break
		}

		ko := octets.Wrap(key)
		if _, err := ko.UnmarshalUvarint(); err != nil { // consume table_id
			return err
		}
		k, err := t.cfg.DecodeKey(ko)
		if err != nil {
			return err
		}

		vo := octets.Wrap(it.Value())
		format, err := vo.Unmarshal1()
		if err != nil {
			return err
		}
		if format != record.Format {
			return octets.ErrBadFormat
		}
		v, err := t.cfg.Unmarshal(vo)
		if err != nil {
			return err
		}

		if !handler(k, v) {
			return nil
		}

		if reverse {
			it.Prev()
		} else {
			it.Next()
		}
	}
	return nil
}

func bytesGE(a, b []byte) bool {
	if len(b) == 0 {
		return false
	}
	return compareBytes(a, b) >= 0
}

func bytesLT(a, b []byte) bool {
	if len(b) == 0 {
		return false
	}
	return compareBytes(a, b) < 0
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return len(a) - len(b)
}

// TrySaveModified iterates modified_map and, for each entry, attempts a
// non-blocking acquisition of its record lock; acquired entries are staged
// into ops and removed from modified_map with their state reset to Shared.
// Returns (sizeBefore, sizeAfter, savedCount), matching the three counters
// CommitTask._counts accumulates across all tables (§4.F Phase A/B).
func (t *Table[K, V]) TrySaveModified(holder uint64, ops *[]storage.Op) (before, after, saved int) {
	before = t.modified.Size()

	t.modified.Range(func(k K, e modEntry[V]) bool {
		lockID := t.LockID(k)
		if !t.cfg.Locks.TryLock(holder, lockID) {
			return true
		}
		defer t.cfg.Locks.Unlock(holder, lockID)

		if ok := t.modified.CompareAndDelete(k, e); !ok {
			return true
		}
		saved++
		if e.tombstone {
			*ops = append(*ops, storage.Op{Key: t.storageKey(k), Value: nil})
		} else {
			vo := octets.New()
			vo.Marshal1(record.Format)
			t.cfg.Marshal(e.value, vo)
			*ops = append(*ops, storage.Op{Key: t.storageKey(k), Value: vo.Bytes()})
			t.readCache.put(k, e.value)
		}
		return true
	})

	after = t.modified.Size()
	return
}

// SaveModified drains every remaining modified_map entry unconditionally,
// called only under Checkpoint's exclusive quiesce gate (§4.F Phase C).
func (t *Table[K, V]) SaveModified(ops *[]storage.Op) int {
	n := 0
	t.modified.Range(func(k K, e modEntry[V]) bool {
		n++
		if e.tombstone {
			*ops = append(*ops, storage.Op{Key: t.storageKey(k), Value: nil})
		} else {
			vo := octets.New()
			vo.Marshal1(record.Format)
			t.cfg.Marshal(e.value, vo)
			*ops = append(*ops, storage.Op{Key: t.storageKey(k), Value: vo.Bytes()})
			t.readCache.put(k, e.value)
		}
		return true
	})
	t.modified = xsync.NewMapOf[K, modEntry[V]]()
	return n
}

// ModifiedCount reports the number of entries currently pending flush.
func (t *Table[K, V]) ModifiedCount() int {
	return t.modified.Size()
}
