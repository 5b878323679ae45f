// Package bbolt adapts go.etcd.io/bbolt to storage.Engine. cmd opens one at
// the backup directory and passes it as checkpoint.Config.BackupEngine, where
// it only switches Phase F backups on; the snapshots themselves are written
// by the primary engine's HotBackup.
package bbolt

import (
	"context"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/shoaldb/keel/storage"
)

var bucketName = []byte("keel")

type engine struct {
	db *bolt.DB
}

// Open creates or opens a bbolt store at dataDir/data.db.
func Open(dataDir string, opts storage.Options) (storage.Engine, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}

	db, err := bolt.Open(filepath.Join(dataDir, "data.db"), 0600, nil)
	if err != nil {
		return nil, err
	}
	db.NoFreelistSync = true
	db.NoSync = !opts.ReuseLogs

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &engine{db: db}, nil
}

func (e *engine) Get(key []byte) ([]byte, bool, error) {
	var out []byte
	err := e.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get(key)
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

type iterator struct {
	tx      *bolt.Tx
	c       *bolt.Cursor
	reverse bool
	k, v    []byte
}

func (e *engine) Iterate(key []byte, mode storage.SeekMode) (storage.Iterator, error) {
	tx, err := e.db.Begin(false)
	if err != nil {
		return nil, err
	}
	c := tx.Bucket(bucketName).Cursor()
	reverse := mode == storage.SeekLE || mode == storage.SeekLT

	var k, v []byte
	if len(key) == 0 {
		if reverse {
			k, v = c.Last()
		} else {
			k, v = c.First()
		}
	} else {
		k, v = c.Seek(key)
		switch mode {
		case storage.SeekGT:
			if k != nil && string(k) == string(key) {
				k, v = c.Next()
			}
		case storage.SeekLE, storage.SeekLT:
			if k == nil || string(k) != string(key) {
				k, v = c.Prev()
			} else if mode == storage.SeekLT {
				k, v = c.Prev()
			}
		}
	}

	return &iterator{tx: tx, c: c, reverse: reverse, k: k, v: v}, nil
}

func (i *iterator) Valid() bool { return i.k != nil }

func (i *iterator) Next() {
	i.k, i.v = i.c.Next()
}

func (i *iterator) Prev() {
	i.k, i.v = i.c.Prev()
}

func (i *iterator) Key() []byte   { return i.k }
func (i *iterator) Value() []byte { return i.v }

func (i *iterator) Close() error {
	return i.tx.Rollback()
}

func (e *engine) WriteBatch(ops []storage.Op) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		for _, op := range ops {
			if op.Value == nil {
				if err := b.Delete(op.Key); err != nil {
					return err
				}
			} else {
				if err := b.Put(op.Key, op.Value); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (e *engine) Sync() error {
	return e.db.Sync()
}

func (e *engine) HotBackup(ctx context.Context, dstPath string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return 0, err
	}
	var n int64
	err := e.db.View(func(tx *bolt.Tx) error {
		f, err := os.Create(dstPath)
		if err != nil {
			return err
		}
		defer f.Close()
		n, err = tx.WriteTo(f)
		return err
	})
	return n, err
}

func (e *engine) Property(name string) string {
	return e.db.Path()
}

func (e *engine) Close() error {
	return e.db.Close()
}
