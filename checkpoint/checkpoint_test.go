package checkpoint

import (
	"testing"
	"time"

	"github.com/shoaldb/keel/locks"
	"github.com/shoaldb/keel/octets"
	"github.com/shoaldb/keel/storage"
	"github.com/shoaldb/keel/storage/memkv"
	"github.com/shoaldb/keel/table"
	"github.com/shoaldb/keel/txn"
)

type rec struct{ N int64 }

func newTable(t *testing.T, eng storage.Engine, pool *locks.Pool) *table.Table[int32, rec] {
	return table.New(table.Config[int32, rec]{
		TableID:   1,
		Engine:    eng,
		Locks:     pool,
		CacheSize: 8,
		EncodeKey: func(o *octets.Octets, k int32) { o.MarshalVarint(int64(k)) },
		DecodeKey: func(o *octets.Octets) (int32, error) {
			v, err := o.UnmarshalVarint()
			return int32(v), err
		},
		NewRecord: func() rec { return rec{} },
		Marshal: func(v rec, o *octets.Octets) {
			o.WriteFieldHeader(1, octets.KindInt)
			o.MarshalVarint(v.N)
			o.WriteFieldTerminator()
		},
		Unmarshal: func(o *octets.Octets) (rec, error) {
			var v rec
			for {
				tag, kind, end, err := o.ReadFieldHeader()
				if err != nil {
					return v, err
				}
				if end {
					return v, nil
				}
				if kind != octets.KindInt {
					return v, octets.ErrBadFormat
				}
				n, err := o.UnmarshalVarint()
				if err != nil {
					return v, err
				}
				if tag == 1 {
					v.N = n
				}
			}
		},
		Equal: func(a, b rec) bool { return a == b },
	})
}

func TestRunDrainsModifiedIntoStorage(t *testing.T) {
	eng, _ := memkv.Open("", storage.Options{})
	pool := locks.NewPool(64)
	tbl := newTable(t, eng, pool)

	holder := uint64(1)
	k := int32(1)
	lockID := tbl.LockID(k)
	pool.Lock(holder, lockID)
	if err := tbl.Put(holder, k, rec{N: 42}, nil); err != nil {
		t.Fatal(err)
	}
	pool.Unlock(holder, lockID)

	gate := &txn.CommitGate{}
	mgr := NewManager(Config{ResaveCount: 0}, eng, gate, 999)
	mgr.Register(tbl)

	if err := mgr.Run(); err != nil {
		t.Fatal(err)
	}
	if tbl.ModifiedCount() != 0 {
		t.Fatalf("expected empty modified_map after checkpoint, got %d", tbl.ModifiedCount())
	}

	pool.Lock(holder, lockID)
	defer pool.Unlock(holder, lockID)
	v, ok, err := tbl.Get(holder, k)
	if err != nil || !ok || v.N != 42 {
		t.Fatalf("got %v ok=%v err=%v", v, ok, err)
	}
}

func TestRunSkipsBackupWithoutEngine(t *testing.T) {
	eng, _ := memkv.Open("", storage.Options{})
	pool := locks.NewPool(64)
	tbl := newTable(t, eng, pool)
	gate := &txn.CommitGate{}
	mgr := NewManager(Config{BackupPeriod: time.Nanosecond}, eng, gate, 999)
	mgr.Register(tbl)

	if err := mgr.Run(); err != nil {
		t.Fatal(err)
	}
}
