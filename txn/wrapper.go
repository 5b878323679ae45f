package txn

import "github.com/shoaldb/keel/table"

// Wrapper is the safe-wrapper handle §4.D describes: a transaction-scoped,
// identity-preserving handle on a cached record. V is expected to be a
// pointer type (or otherwise carry reference semantics) so that a mutation
// performed through any alias of the same (table,key) within one procedure
// is visible through every other alias.
type Wrapper[K comparable, V any] struct {
	sctx    *SContext
	tbl     *table.Table[K, V]
	key     K
	value   V
	dirtied bool
}

// Wrap returns the transaction-scoped safe wrapper for (tbl,k), fetching it
// via tbl.Get (which enforces that holder holds k's record lock) on first
// access and returning the identical wrapper instance on every subsequent
// call within the same SContext.
func Wrap[K comparable, V any](s *SContext, tbl *table.Table[K, V], holder uint64, k K) (*Wrapper[K, V], bool, error) {
	if w, ok := wrapperFor(s, tbl, k); ok {
		return w.(*Wrapper[K, V]), true, nil
	}

	v, ok, err := tbl.Get(holder, k)
	if err != nil || !ok {
		return nil, ok, err
	}

	w := &Wrapper[K, V]{sctx: s, tbl: tbl, key: k, value: v}
	setWrapper(s, tbl, k, w)
	return w, true, nil
}

// Get returns the wrapped record's current value.
func (w *Wrapper[K, V]) Get() V { return w.value }

// Dirty marks the wrapper dirty and calls Table.modify(k,v) exactly once,
// per §4.D. Calling it more than once within the same transaction is a no-op.
func (w *Wrapper[K, V]) Dirty(incMod func()) error {
	if w.dirtied {
		return nil
	}
	w.dirtied = true
	w.sctx.MarkDirty()
	key := w.key
	tbl := w.tbl
	w.sctx.AddOnRollback(func() {
		tbl.UnmodifyUnsafe(key)
	})
	return w.tbl.ModifyLenient(w.key, w.value, incMod)
}

// Mutate dirties the wrapper (if not already) and applies fn to the
// underlying record.
func (w *Wrapper[K, V]) Mutate(incMod func(), fn func(v V)) error {
	if err := w.Dirty(incMod); err != nil {
		return err
	}
	fn(w.value)
	return nil
}

// Put installs a fresh record v for k within the transaction, registering an
// undo that restores the prior state (either the prior record or absence),
// per §4.D.
func Put[K comparable, V any](s *SContext, tbl *table.Table[K, V], holder uint64, k K, v V, incMod func()) error {
	vOld, had, err := tbl.GetNoCacheUnsafe(k)
	if err != nil {
		return err
	}
	if err := tbl.Put(holder, k, v, incMod); err != nil {
		return err
	}
	s.AddOnRollback(func() {
		if had {
			tbl.PutUnsafe(k, vOld, nil)
		} else {
			tbl.RemoveUnsafe(k, nil)
		}
	})
	s.MarkDirty()
	return nil
}

// Remove removes k within the transaction, registering an undo that
// reinstalls the prior record with its prior state. A no-op if k is absent.
func Remove[K comparable, V any](s *SContext, tbl *table.Table[K, V], holder uint64, k K, incMod func()) error {
	vOld, had, err := tbl.GetNoCacheUnsafe(k)
	if err != nil {
		return err
	}
	if !had {
		return nil
	}
	if err := tbl.Remove(holder, k, incMod); err != nil {
		return err
	}
	s.AddOnRollback(func() {
		tbl.PutUnsafe(k, vOld, nil)
	})
	s.MarkDirty()
	return nil
}
