// Package badger adapts github.com/dgraph-io/badger to storage.Engine.
package badger

import (
	"bytes"
	"context"

	"github.com/dgraph-io/badger/v2"
	"github.com/dgraph-io/badger/v2/options"
	log "github.com/sirupsen/logrus"

	"github.com/shoaldb/keel/storage"
)

type engine struct {
	db *badger.DB
}

// Open creates or opens a badger store at dataDir.
func Open(dataDir string, opts storage.Options) (storage.Engine, error) {
	bopts := badger.DefaultOptions(dataDir).
		WithLogger(log.StandardLogger()).
		WithSyncWrites(false)
	if opts.CacheBytes > 0 {
		bopts = bopts.WithMaxCacheSize(int64(opts.CacheBytes))
	}
	if opts.CompressionEnabled {
		// Badger's ZSTD codec is backed by github.com/DataDog/zstd, pulled
		// in transitively; selecting it here is what exercises that
		// dependency rather than importing it directly.
		bopts = bopts.WithCompression(options.ZSTD)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, err
	}
	return &engine{db: db}, nil
}

func (e *engine) Get(key []byte) ([]byte, bool, error) {
	var out []byte
	err := e.db.View(func(tx *badger.Txn) error {
		item, err := tx.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte(nil), val...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

type iterator struct {
	tx      *badger.Txn
	it      *badger.Iterator
	reverse bool
	cur     []byte
	val     []byte
}

func (e *engine) Iterate(key []byte, mode storage.SeekMode) (storage.Iterator, error) {
	tx := e.db.NewTransaction(false)
	reverse := mode == storage.SeekLE || mode == storage.SeekLT
	opts := badger.DefaultIteratorOptions
	opts.Reverse = reverse

	it := tx.NewIterator(opts)
	it.Seek(key)

	if mode == storage.SeekGT && it.Valid() && bytes.Equal(it.Item().Key(), key) {
		it.Next()
	}
	if mode == storage.SeekLT && it.Valid() && bytes.Equal(it.Item().Key(), key) {
		it.Next()
	}

	iter := &iterator{tx: tx, it: it, reverse: reverse}
	iter.load()
	return iter, nil
}

func (i *iterator) load() {
	if !i.it.Valid() {
		i.cur, i.val = nil, nil
		return
	}
	item := i.it.Item()
	i.cur = append([]byte(nil), item.Key()...)
	item.Value(func(v []byte) error {
		i.val = append([]byte(nil), v...)
		return nil
	})
}

func (i *iterator) Valid() bool { return i.it.Valid() }

func (i *iterator) Next() {
	i.it.Next()
	i.load()
}

func (i *iterator) Prev() {
	// badger iterators are unidirectional; reverse range scans open a
	// reverse iterator up front (see Iterate), so Prev behaves like Next.
	i.it.Next()
	i.load()
}

func (i *iterator) Key() []byte   { return i.cur }
func (i *iterator) Value() []byte { return i.val }

func (i *iterator) Close() error {
	i.it.Close()
	i.tx.Discard()
	return nil
}

func (e *engine) WriteBatch(ops []storage.Op) error {
	wb := e.db.NewWriteBatch()
	defer wb.Cancel()

	for _, op := range ops {
		if op.Value == nil {
			if err := wb.Delete(op.Key); err != nil {
				return err
			}
		} else {
			if err := wb.Set(op.Key, op.Value); err != nil {
				return err
			}
		}
	}
	return wb.Flush()
}

func (e *engine) Sync() error {
	return e.db.Sync()
}

func (e *engine) HotBackup(ctx context.Context, dstPath string) (int64, error) {
	dst, err := Open(dstPath, storage.Options{})
	if err != nil {
		return 0, err
	}
	defer dst.Close()

	it, err := e.Iterate(nil, storage.SeekGE)
	if err != nil {
		return 0, err
	}
	defer it.Close()

	var ops []storage.Op
	var n int64
	for it.Valid() {
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		default:
		}
		k := append([]byte(nil), it.Key()...)
		v := append([]byte(nil), it.Value()...)
		ops = append(ops, storage.Op{Key: k, Value: v})
		n += int64(len(k) + len(v))
		it.Next()
	}
	if err := dst.WriteBatch(ops); err != nil {
		return n, err
	}
	return n, nil
}

func (e *engine) Property(name string) string {
	lsm, vlog := e.db.Size()
	return name + ": " + "lsm=" + itoa(lsm) + " vlog=" + itoa(vlog)
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func (e *engine) Close() error {
	return e.db.Close()
}
