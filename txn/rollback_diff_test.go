package txn

import (
	"fmt"
	"testing"

	"github.com/andreyvit/diff"

	"github.com/shoaldb/keel/table"
)

// dumpCounter renders a stable snapshot of tbl's cached value for k, for
// before/after comparison.
func dumpCounter(tbl *table.Table[int32, *counter], k int32) string {
	v, ok := tbl.GetCacheUnsafe(k)
	if !ok {
		return fmt.Sprintf("%d: <absent>", k)
	}
	return fmt.Sprintf("%d: N=%d", k, v.N)
}

// TestRollbackLeavesNoDiff checks that a procedure which mutates a record
// and then rolls back leaves the cache exactly as it was before the
// procedure ran. The before/after dumps are compared with a line-oriented
// diff so a future regression shows exactly which fields changed instead of
// just "not equal".
func TestRollbackLeavesNoDiff(t *testing.T) {
	tbl, pool := newCounterTable(t)
	holder := uint64(1)
	k := int32(4)
	lockID := tbl.LockID(k)
	pool.Lock(holder, lockID)
	defer pool.Unlock(holder, lockID)

	s := NewSContext()
	if err := Put(s, tbl, holder, k, &counter{N: 11}, nil); err != nil {
		t.Fatal(err)
	}
	s.Commit()

	before := dumpCounter(tbl, k)

	s2 := NewSContext()
	w, _, err := Wrap(s2, tbl, holder, k)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Mutate(nil, func(c *counter) { c.N = 999 }); err != nil {
		t.Fatal(err)
	}
	s2.Rollback()

	after := dumpCounter(tbl, k)

	if before != after {
		t.Fatalf("rollback left a diff:\n%s", diff.LineDiff(before, after))
	}
}
