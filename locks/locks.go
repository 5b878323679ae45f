// Package locks implements the fixed, power-of-two pool of reentrant record
// locks described in §4.C/§4.E/§9: lock_id = table_salt XOR hash(key); the
// actual lock is lock_id & (pool_size-1). Collisions across tables/keys are
// intentional and bound total lock memory.
package locks

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Hash returns the table-salted lock id for an encoded key, per §4.C.
func Hash(tableSalt int32, keyBytes []byte) int32 {
	h := xxhash.Sum64(keyBytes)
	return tableSalt ^ int32(h)
}

// reentrant is a simple owner-counted mutex: the owning goroutine is tracked
// by an opaque holder token rather than goroutine id (Go has none), matching
// the per-procedure Context a Procedure carries its locks under.
type reentrant struct {
	mutex   sync.Mutex
	holder  uint64 // 0 means unheld
	depth   int
	waiters []chan struct{}
}

func (l *reentrant) tryLock(holder uint64) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.holder == 0 {
		l.holder = holder
		l.depth = 1
		return true
	}
	if l.holder == holder {
		l.depth++
		return true
	}
	return false
}

// lock is only reachable from the exported Pool API below; when another
// holder owns the lock it parks on a channel-based wait list, kept simple
// because contention is expected to be rare (lock collisions are deliberate
// but sparse).
func (l *reentrant) lock(holder uint64) {
	for {
		if l.tryLock(holder) {
			return
		}
		l.mutex.Lock()
		ch := make(chan struct{})
		l.waiters = append(l.waiters, ch)
		l.mutex.Unlock()
		<-ch
	}
}

func (l *reentrant) unlock() {
	l.mutex.Lock()
	l.depth--
	var wake chan struct{}
	if l.depth == 0 {
		l.holder = 0
		if len(l.waiters) > 0 {
			wake = l.waiters[0]
			l.waiters = l.waiters[1:]
		}
	}
	l.mutex.Unlock()
	if wake != nil {
		close(wake)
	}
}

// Pool is a fixed-size array of lazily-materialized reentrant locks.
type Pool struct {
	once  []sync.Once
	locks []*reentrant
	mask  int32
}

// NewPool returns a pool with the given power-of-two size.
func NewPool(size int) *Pool {
	if size <= 0 || size&(size-1) != 0 {
		panic("locks: pool size must be a positive power of two")
	}
	return &Pool{
		once:  make([]sync.Once, size),
		locks: make([]*reentrant, size),
		mask:  int32(size - 1),
	}
}

// Index returns the pool slot for a lock id.
func (p *Pool) Index(lockID int32) int {
	idx := lockID & p.mask
	if idx < 0 {
		idx = -idx
	}
	return int(idx)
}

func (p *Pool) get(idx int) *reentrant {
	p.once[idx].Do(func() {
		p.locks[idx] = &reentrant{}
	})
	return p.locks[idx]
}

// TryLock attempts a non-blocking acquisition, used only by Checkpoint's
// try_save_modified (§4.F Phase A).
func (p *Pool) TryLock(holder uint64, lockID int32) bool {
	return p.get(p.Index(lockID)).tryLock(holder)
}

// IsLocked reports whether the lock id is currently held by anyone.
func (p *Pool) IsLocked(lockID int32) bool {
	l := p.get(p.Index(lockID))
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.holder != 0
}

// IsLockedBy reports whether holder currently holds the lock id.
func (p *Pool) IsLockedBy(holder uint64, lockID int32) bool {
	l := p.get(p.Index(lockID))
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.holder == holder
}

// Lock acquires a single lock, blocking.
func (p *Pool) Lock(holder uint64, lockID int32) {
	p.get(p.Index(lockID)).lock(holder)
}

// Unlock releases a single previously acquired lock.
func (p *Pool) Unlock(holder uint64, lockID int32) {
	p.get(p.Index(lockID)).unlock()
}

// sortedIndexes returns the distinct pool slot indexes for lockIDs, sorted
// ascending, per §4.E's deadlock-avoidance ordering rule.
func (p *Pool) sortedIndexes(lockIDs []int32) []int {
	idx := make([]int, len(lockIDs))
	for i, id := range lockIDs {
		idx[i] = p.Index(id)
	}
	sort.Ints(idx)
	out := idx[:0:0]
	for i, v := range idx {
		if i == 0 || v != idx[i-1] {
			out = append(out, v)
		}
	}
	return out
}

// LockAll acquires every lock id in ascending pool-index order, deduplicating
// collisions. This is the general path; LockAll2/LockAll3/LockAll4 below are
// fixed-arity variants for the common 2/3/4-lock cases: LockAll2 compares its
// two indexes directly, while LockAll3/LockAll4 sort a copy of their fixed
// index array.
func (p *Pool) LockAll(holder uint64, lockIDs []int32) []int {
	idx := p.sortedIndexes(lockIDs)
	for _, i := range idx {
		p.get(i).lock(holder)
	}
	return idx
}

// LockAll2 acquires two lock ids in ascending index order without sorting.
func (p *Pool) LockAll2(holder uint64, id0, id1 int32) [2]int {
	i0, i1 := p.Index(id0), p.Index(id1)
	if i0 == i1 {
		p.get(i0).lock(holder)
		return [2]int{i0, i1}
	}
	if i0 < i1 {
		p.get(i0).lock(holder)
		p.get(i1).lock(holder)
	} else {
		p.get(i1).lock(holder)
		p.get(i0).lock(holder)
	}
	return [2]int{i0, i1}
}

// LockAll3 acquires three lock ids in ascending, deduplicated index order.
func (p *Pool) LockAll3(holder uint64, id0, id1, id2 int32) [3]int {
	idx := [3]int{p.Index(id0), p.Index(id1), p.Index(id2)}
	ordered := dedupSort3(idx)
	for _, i := range ordered {
		p.get(i).lock(holder)
	}
	return idx
}

// LockAll4 acquires four lock ids in ascending, deduplicated index order.
func (p *Pool) LockAll4(holder uint64, id0, id1, id2, id3 int32) [4]int {
	idx := [4]int{p.Index(id0), p.Index(id1), p.Index(id2), p.Index(id3)}
	ordered := dedupSort4(idx)
	for _, i := range ordered {
		p.get(i).lock(holder)
	}
	return idx
}

func dedupSort3(a [3]int) []int {
	s := a[:]
	sort.Ints(s)
	return dedup(s)
}

func dedupSort4(a [4]int) []int {
	s := a[:]
	sort.Ints(s)
	return dedup(s)
}

func dedup(s []int) []int {
	out := s[:0:0]
	for i, v := range s {
		if i == 0 || v != s[i-1] {
			out = append(out, v)
		}
	}
	return out
}

// UnlockIndexes releases locks at pool slot indexes in reverse order, the
// order Procedure.java's unlock() uses.
func (p *Pool) UnlockIndexes(holder uint64, idx []int) {
	for i := len(idx) - 1; i >= 0; i-- {
		p.get(idx[i]).unlock()
	}
}
