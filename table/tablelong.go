package table

import (
	"sync/atomic"

	"github.com/shoaldb/keel/locks"
	"github.com/shoaldb/keel/octets"
	"github.com/shoaldb/keel/storage"
)

// idCounterPrefix is the reserved first byte for TableLong's id-counter key,
// chosen because no legal varuint(table_id) first byte can equal 0xF1: the
// unsigned-varint prefix bit patterns are 0xxxxxxx, 10xxxxxx, 110xxxxx,
// 1110xxxx or exactly 0xF0 (§6).
const idCounterPrefix = 0xF1

// TableLong specializes Table for non-negative int64 keys and adds a
// persisted id counter under the reserved 0xF1 key prefix (§3).
type TableLong[V any] struct {
	*Table[int64, V]
	counter int64 // atomic; loaded lazily from storage on first use
	loaded  int32 // atomic bool
}

// NewLong constructs a TableLong with the int64 key codec wired in.
func NewLong[V any](cfg Config[int64, V]) *TableLong[V] {
	cfg.EncodeKey = func(o *octets.Octets, k int64) { o.MarshalVarlong(k) }
	cfg.DecodeKey = func(o *octets.Octets) (int64, error) { return o.UnmarshalVarlong() }
	// The embedded Table's lock checks use KeyBytes, so it must hash the same
	// raw 8-byte form as TableLong.LockID below.
	cfg.KeyBytes = func(k int64) []byte {
		b := make([]byte, 8)
		for i := 0; i < 8; i++ {
			b[i] = byte(k >> (8 * uint(i)))
		}
		return b
	}
	return &TableLong[V]{Table: New(cfg)}
}

// LockID for TableLong hashes the raw 8-byte key rather than its encoded
// form, since varlong is a variable-length prefix code and two numerically
// close keys should not collide more than a fixed-width hash would cause.
func (t *TableLong[V]) LockID(k int64) int32 {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(k >> (8 * uint(i)))
	}
	return locks.Hash(t.cfg.TableID, b)
}

func (t *TableLong[V]) idCounterKeyPrefix() []byte {
	o := octets.New()
	o.Marshal1(idCounterPrefix)
	o.MarshalUvarint(uint32(t.cfg.TableID))
	return o.Bytes()
}

func (t *TableLong[V]) counterSnapshot() int64 {
	return atomic.LoadInt64(&t.counter)
}

// LoadIDCounter reads the persisted counter value from storage, defaulting
// to 0 (so the first assigned id is 1, per §5's "0 reserved" rule) the first
// time it is called in this process.
func (t *TableLong[V]) LoadIDCounter() (int64, error) {
	if atomic.LoadInt32(&t.loaded) == 1 {
		return t.counterSnapshot(), nil
	}
	if t.cfg.Engine == nil {
		atomic.StoreInt32(&t.loaded, 1)
		return 0, nil
	}

	prefix := t.idCounterKeyPrefix()
	it, err := t.cfg.Engine.Iterate(prefix, storage.SeekGE)
	if err != nil {
		return 0, err
	}
	defer it.Close()

	var value int64
	if it.Valid() && hasPrefix(it.Key(), prefix) {
		ko := octets.Wrap(it.Key()[len(prefix):])
		v, err := ko.UnmarshalVarlong()
		if err == nil {
			value = v
		}
	}
	atomic.StoreInt64(&t.counter, value)
	atomic.StoreInt32(&t.loaded, 1)
	return value, nil
}

// SetIDCounter persists a new counter value. The stored key layout is
// 0xF1 || uvarint(table_id) || varlong(value) (§6) -- the value is encoded
// into the key itself, so any previous counter key must be removed first;
// callers invoke this only while holding the table's write path (normally
// from within a procedure that owns the relevant administrative lock).
func (t *TableLong[V]) SetIDCounter(ops *[]storage.Op, value int64) {
	prefix := t.idCounterKeyPrefix()
	old := atomic.LoadInt64(&t.counter)
	if old != value {
		oldKey := append(append([]byte{}, prefix...), varlongBytes(old)...)
		*ops = append(*ops, storage.Op{Key: oldKey, Value: nil})
	}
	newKey := append(append([]byte{}, prefix...), varlongBytes(value)...)
	*ops = append(*ops, storage.Op{Key: newKey, Value: []byte{}})
	atomic.StoreInt64(&t.counter, value)
}

// NextID atomically increments and returns the next id (first call after a
// fresh table returns 1).
func (t *TableLong[V]) NextID(ops *[]storage.Op) int64 {
	v := atomic.AddInt64(&t.counter, 1)
	prefix := t.idCounterKeyPrefix()
	oldKey := append(append([]byte{}, prefix...), varlongBytes(v-1)...)
	*ops = append(*ops, storage.Op{Key: oldKey, Value: nil})
	newKey := append(append([]byte{}, prefix...), varlongBytes(v)...)
	*ops = append(*ops, storage.Op{Key: newKey, Value: []byte{}})
	return v
}

func varlongBytes(v int64) []byte {
	o := octets.New()
	o.MarshalVarlong(v)
	return o.Bytes()
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}
