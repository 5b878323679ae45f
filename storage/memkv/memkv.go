// Package memkv is an in-memory storage.Engine backed by github.com/google/btree,
// used by unit tests and wherever a real LSM store is unnecessary.
package memkv

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/btree"

	"github.com/shoaldb/keel/storage"
)

type item struct {
	key, value []byte
}

func (a *item) Less(b btree.Item) bool {
	return bytes.Compare(a.key, b.(*item).key) < 0
}

type engine struct {
	mutex sync.RWMutex
	tree  *btree.BTree
}

// Open returns a fresh empty in-memory engine. dataDir and opts are ignored.
func Open(dataDir string, opts storage.Options) (storage.Engine, error) {
	return &engine{tree: btree.New(32)}, nil
}

func (e *engine) Get(key []byte) ([]byte, bool, error) {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	it := e.tree.Get(&item{key: key})
	if it == nil {
		return nil, false, nil
	}
	v := it.(*item).value
	return append([]byte(nil), v...), true, nil
}

func (e *engine) WriteBatch(ops []storage.Op) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	for _, op := range ops {
		if op.Value == nil {
			e.tree.Delete(&item{key: op.Key})
		} else {
			k := append([]byte(nil), op.Key...)
			v := append([]byte(nil), op.Value...)
			e.tree.ReplaceOrInsert(&item{key: k, value: v})
		}
	}
	return nil
}

func (e *engine) Sync() error { return nil }

type iterator struct {
	entries []*item
	pos     int
}

func (e *engine) Iterate(key []byte, mode storage.SeekMode) (storage.Iterator, error) {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	var entries []*item
	e.tree.Ascend(func(i btree.Item) bool {
		entries = append(entries, i.(*item))
		return true
	})

	pos := 0
	switch mode {
	case storage.SeekGE:
		pos = lowerBound(entries, key, true)
	case storage.SeekGT:
		pos = lowerBound(entries, key, false)
	case storage.SeekLE:
		pos = upperBound(entries, key, true) - 1
	case storage.SeekLT:
		pos = upperBound(entries, key, false) - 1
	}
	return &iterator{entries: entries, pos: pos}, nil
}

func lowerBound(entries []*item, key []byte, inclusive bool) int {
	if len(key) == 0 {
		return 0
	}
	for i, it := range entries {
		c := bytes.Compare(it.key, key)
		if c > 0 || (inclusive && c == 0) {
			return i
		}
	}
	return len(entries)
}

func upperBound(entries []*item, key []byte, inclusive bool) int {
	if len(key) == 0 {
		return len(entries)
	}
	for i := len(entries) - 1; i >= 0; i-- {
		c := bytes.Compare(entries[i].key, key)
		if c < 0 || (inclusive && c == 0) {
			return i + 1
		}
	}
	return 0
}

func (i *iterator) Valid() bool { return i.pos >= 0 && i.pos < len(i.entries) }
func (i *iterator) Next()       { i.pos++ }
func (i *iterator) Prev()       { i.pos-- }
func (i *iterator) Key() []byte { return i.entries[i.pos].key }
func (i *iterator) Value() []byte { return i.entries[i.pos].value }
func (i *iterator) Close() error  { return nil }

func (e *engine) HotBackup(ctx context.Context, dstPath string) (int64, error) {
	dst, err := Open(dstPath, storage.Options{})
	if err != nil {
		return 0, err
	}
	d := dst.(*engine)

	e.mutex.RLock()
	defer e.mutex.RUnlock()

	var n int64
	var ops []storage.Op
	e.tree.Ascend(func(i btree.Item) bool {
		it := i.(*item)
		ops = append(ops, storage.Op{Key: it.key, Value: it.value})
		n += int64(len(it.key) + len(it.value))
		return true
	})
	d.mutex.Lock()
	for _, op := range ops {
		d.tree.ReplaceOrInsert(&item{key: op.Key, value: op.Value})
	}
	d.mutex.Unlock()
	return n, nil
}

func (e *engine) Property(name string) string {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return name + ": len=" + itoa(e.tree.Len())
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

func (e *engine) Close() error { return nil }
