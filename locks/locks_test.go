package locks

import "testing"

func TestReentrant(t *testing.T) {
	p := NewPool(16)
	p.Lock(1, 5)
	p.Lock(1, 5) // reentrant
	if !p.IsLockedBy(1, 5) {
		t.Fatal("expected holder 1 to hold lock 5")
	}
	if p.TryLock(2, 5) {
		t.Fatal("expected holder 2 to fail")
	}
	p.Unlock(1, 5)
	p.Unlock(1, 5)
	if p.IsLocked(5) {
		t.Fatal("expected lock 5 released")
	}
}

func TestLockAllOrdering(t *testing.T) {
	p := NewPool(64)
	idx := p.LockAll(1, []int32{40, 10, 25, 10})
	if len(idx) != 3 {
		t.Fatalf("expected 3 distinct indexes, got %v", idx)
	}
	for i := 1; i < len(idx); i++ {
		if idx[i] <= idx[i-1] {
			t.Fatalf("not ascending: %v", idx)
		}
	}
	p.UnlockIndexes(1, idx)
}

func TestLockAll2And4FastPaths(t *testing.T) {
	p := NewPool(64)
	idx2 := p.LockAll2(1, 9, 3)
	p.UnlockIndexes(1, []int{idx2[0], idx2[1]})

	idx4 := p.LockAll4(1, 30, 5, 20, 1)
	p.UnlockIndexes(1, idx4[:])
}
