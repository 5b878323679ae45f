// Package pebble adapts github.com/cockroachdb/pebble to storage.Engine.
package pebble

import (
	"context"
	"os"

	"github.com/cockroachdb/pebble"
	log "github.com/sirupsen/logrus"

	"github.com/shoaldb/keel/storage"
)

type engine struct {
	path string
	db   *pebble.DB
}

// Open creates or opens a pebble store at dataDir.
func Open(dataDir string, opts storage.Options) (storage.Engine, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}

	popts := &pebble.Options{
		Logger: log.StandardLogger(),
	}
	if opts.WriteBufferBytes > 0 {
		popts.MemTableSize = uint64(opts.WriteBufferBytes)
	}
	if opts.CompressionEnabled {
		popts.Levels = []pebble.LevelOptions{{Compression: pebble.SnappyCompression}}
	}

	db, err := pebble.Open(dataDir, popts)
	if err != nil {
		return nil, err
	}
	return &engine{path: dataDir, db: db}, nil
}

func (e *engine) Get(key []byte) ([]byte, bool, error) {
	val, closer, err := e.db.Get(key)
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer closer.Close()

	out := make([]byte, len(val))
	copy(out, val)
	return out, true, nil
}

type iterator struct {
	it      *pebble.Iterator
	reverse bool
}

func (e *engine) Iterate(key []byte, mode storage.SeekMode) (storage.Iterator, error) {
	it, err := e.db.NewIter(nil)
	if err != nil {
		return nil, err
	}

	switch mode {
	case storage.SeekGE:
		it.SeekGE(key)
		return &iterator{it: it}, nil
	case storage.SeekGT:
		it.SeekGE(key)
		if it.Valid() && string(it.Key()) == string(key) {
			it.Next()
		}
		return &iterator{it: it}, nil
	case storage.SeekLE:
		it.SeekLT(key)
		if !it.Valid() {
			// No key is < k: only an exact match at the first key qualifies.
			if it.First() && string(it.Key()) != string(key) {
				it.Prev()
			}
		} else {
			// SeekLT gives strictly-less; check for exact match forward.
			it.Next()
			if it.Valid() && string(it.Key()) == string(key) {
				return &iterator{it: it, reverse: true}, nil
			}
			it.Prev()
		}
		return &iterator{it: it, reverse: true}, nil
	case storage.SeekLT:
		it.SeekLT(key)
		return &iterator{it: it, reverse: true}, nil
	default:
		it.SeekGE(key)
		return &iterator{it: it}, nil
	}
}

func (i *iterator) Valid() bool    { return i.it.Valid() }
func (i *iterator) Next()         { i.it.Next() }
func (i *iterator) Prev()         { i.it.Prev() }
func (i *iterator) Key() []byte   { return i.it.Key() }
func (i *iterator) Value() []byte { return i.it.Value() }
func (i *iterator) Close() error  { return i.it.Close() }

func (e *engine) WriteBatch(ops []storage.Op) error {
	b := e.db.NewBatch()
	defer b.Close()

	for _, op := range ops {
		if op.Value == nil {
			if err := b.Delete(op.Key, nil); err != nil {
				return err
			}
		} else {
			if err := b.Set(op.Key, op.Value, nil); err != nil {
				return err
			}
		}
	}
	return e.db.Apply(b, pebble.NoSync)
}

func (e *engine) Sync() error {
	return e.db.Flush()
}

func (e *engine) HotBackup(ctx context.Context, dstPath string) (int64, error) {
	if err := os.MkdirAll(dstPath, 0755); err != nil {
		return 0, err
	}

	snap := e.db.NewSnapshot()
	defer snap.Close()

	it, err := snap.NewIter(nil)
	if err != nil {
		return 0, err
	}
	defer it.Close()

	dstEng, err := Open(dstPath, storage.Options{})
	if err != nil {
		return 0, err
	}
	defer dstEng.Close()

	var ops []storage.Op
	var n int64
	for it.First(); it.Valid(); it.Next() {
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		default:
		}
		k := append([]byte(nil), it.Key()...)
		v := append([]byte(nil), it.Value()...)
		ops = append(ops, storage.Op{Key: k, Value: v})
		n += int64(len(k) + len(v))
	}
	if err := dstEng.WriteBatch(ops); err != nil {
		return n, err
	}
	return n, nil
}

func (e *engine) Property(name string) string {
	return e.db.Metrics().String()
}

func (e *engine) Close() error {
	return e.db.Close()
}
