package txn

import (
	"context"
	"errors"
	"testing"

	"github.com/shoaldb/keel/locks"
	"github.com/shoaldb/keel/octets"
	"github.com/shoaldb/keel/storage"
	"github.com/shoaldb/keel/storage/memkv"
	"github.com/shoaldb/keel/table"
)

type counter struct {
	N int64
}

func newCounterTable(t *testing.T) (*table.Table[int32, *counter], *locks.Pool) {
	eng, err := memkv.Open("", storage.Options{})
	if err != nil {
		t.Fatal(err)
	}
	pool := locks.NewPool(64)
	tbl := table.New(table.Config[int32, *counter]{
		TableID:   1,
		Engine:    eng,
		Locks:     pool,
		CacheSize: 16,
		EncodeKey: func(o *octets.Octets, k int32) { o.MarshalVarint(int64(k)) },
		DecodeKey: func(o *octets.Octets) (int32, error) {
			v, err := o.UnmarshalVarint()
			return int32(v), err
		},
		NewRecord: func() *counter { return &counter{} },
		Marshal: func(v *counter, o *octets.Octets) {
			o.WriteFieldHeader(1, octets.KindInt)
			o.MarshalVarint(v.N)
			o.WriteFieldTerminator()
		},
		Unmarshal: func(o *octets.Octets) (*counter, error) {
			v := &counter{}
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
		Equal: func(a, b *counter) bool { return a == b },
	})
	return tbl, pool
}

func TestSContextCommitRunsInOrder(t *testing.T) {
	s := NewSContext()
	var order []int
	s.AddOnCommit(func() { order = append(order, 1) })
	s.AddOnCommit(func() { order = append(order, 2) })
	s.Commit()
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("unexpected commit order: %v", order)
	}
}

func TestSContextRollbackRunsLIFO(t *testing.T) {
	s := NewSContext()
	var order []int
	s.AddOnRollback(func() { order = append(order, 1) })
	s.AddOnRollback(func() { order = append(order, 2) })
	s.Rollback()
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("unexpected rollback order: %v", order)
	}
}

func TestWrapperIdentityPreserved(t *testing.T) {
	tbl, pool := newCounterTable(t)
	holder := uint64(1)
	k := int32(3)
	lockID := tbl.LockID(k)
	pool.Lock(holder, lockID)
	defer pool.Unlock(holder, lockID)

	s := NewSContext()
	if err := Put(s, tbl, holder, k, &counter{N: 1}, nil); err != nil {
		t.Fatal(err)
	}

	w1, ok, err := Wrap(s, tbl, holder, k)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	w2, ok, err := Wrap(s, tbl, holder, k)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if w1 != w2 {
		t.Fatal("expected identical wrapper instance on second Wrap call")
	}
}

func TestPutRollbackRestoresPriorState(t *testing.T) {
	tbl, pool := newCounterTable(t)
	holder := uint64(1)
	k := int32(5)
	lockID := tbl.LockID(k)
	pool.Lock(holder, lockID)
	defer pool.Unlock(holder, lockID)

	s := NewSContext()
	if err := Put(s, tbl, holder, k, &counter{N: 1}, nil); err != nil {
		t.Fatal(err)
	}
	v, ok, err := tbl.Get(holder, k)
	if err != nil || !ok || v.N != 1 {
		t.Fatalf("got %v ok=%v err=%v", v, ok, err)
	}

	s.Rollback()
	_, ok, err = tbl.Get(holder, k)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected record absent after rollback of a fresh Put")
	}
}

func TestRemoveRollbackReinstatesRecord(t *testing.T) {
	tbl, pool := newCounterTable(t)
	holder := uint64(1)
	k := int32(6)
	lockID := tbl.LockID(k)
	pool.Lock(holder, lockID)
	defer pool.Unlock(holder, lockID)

	s := NewSContext()
	if err := Put(s, tbl, holder, k, &counter{N: 7}, nil); err != nil {
		t.Fatal(err)
	}
	s.Commit()

	s2 := NewSContext()
	if err := Remove(s2, tbl, holder, k, nil); err != nil {
		t.Fatal(err)
	}
	_, ok, err := tbl.Get(holder, k)
	if err != nil || ok {
		t.Fatalf("expected removed, ok=%v err=%v", ok, err)
	}

	s2.Rollback()
	v, ok, err := tbl.Get(holder, k)
	if err != nil || !ok || v.N != 7 {
		t.Fatalf("expected record restored, got %v ok=%v err=%v", v, ok, err)
	}
}

type incrementOnce struct {
	tbl  *table.Table[int32, *counter]
	k    int32
	fail bool
}

func (p *incrementOnce) OnProcess(ctx *Context) error {
	v, ok, err := p.tbl.Get(ctx.Holder, p.k)
	if err != nil {
		return err
	}
	if !ok {
		if err := Put(ctx.SCtx, p.tbl, ctx.Holder, p.k, &counter{}, nil); err != nil {
			return err
		}
	} else {
		w, _, err := Wrap(ctx.SCtx, p.tbl, ctx.Holder, p.k)
		if err != nil {
			return err
		}
		if err := w.Mutate(nil, func(c *counter) { c.N++ }); err != nil {
			return err
		}
	}
	if p.fail {
		return errors.New("boom")
	}
	return nil
}

func TestProcedureCommitsOnSuccess(t *testing.T) {
	tbl, pool := newCounterTable(t)
	holder := uint64(1)
	k := int32(9)
	lockID := tbl.LockID(k)
	pool.Lock(holder, lockID)
	defer pool.Unlock(holder, lockID)

	ctx := NewContext(1, holder, &CommitGate{})
	gate := &CommitGate{}
	proc := NewProcedure(1, &incrementOnce{tbl: tbl, k: k}, 0)

	ok, err := proc.Execute(ctx, gate, context.Background())
	if err != nil || !ok {
		t.Fatalf("expected commit, got ok=%v err=%v", ok, err)
	}

	v, ok, err := tbl.Get(holder, k)
	if err != nil || !ok || v.N != 0 {
		t.Fatalf("got %v ok=%v err=%v", v, ok, err)
	}
}

func TestProcedureRollsBackOnFailure(t *testing.T) {
	tbl, pool := newCounterTable(t)
	holder := uint64(1)
	k := int32(10)
	lockID := tbl.LockID(k)
	pool.Lock(holder, lockID)
	defer pool.Unlock(holder, lockID)

	ctx := NewContext(1, holder, &CommitGate{})
	gate := &CommitGate{}
	proc := NewProcedure(1, &incrementOnce{tbl: tbl, k: k, fail: true}, 0)

	ok, err := proc.Execute(ctx, gate, context.Background())
	if err == nil || ok {
		t.Fatalf("expected failure, got ok=%v err=%v", ok, err)
	}

	_, ok, err = tbl.Get(holder, k)
	if err != nil || ok {
		t.Fatalf("expected rollback to leave record absent, ok=%v err=%v", ok, err)
	}
}
