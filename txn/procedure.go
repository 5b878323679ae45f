package txn

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rcrowley/go-metrics"

	"github.com/shoaldb/keel/txnerr"
)

// CommitGate arbitrates between concurrently-running procedures and the
// Checkpoint actor's exclusive quiesce phase (§4.F Phase C, §5): procedures
// take the shared side while they run; Checkpoint takes the exclusive side
// only to drain every table's modified_map in one atomic sweep.
type CommitGate struct {
	mu sync.RWMutex
}

// RLock acquires the gate's shared (procedure) side.
func (g *CommitGate) RLock() { g.mu.RLock() }

// RUnlock releases the gate's shared side.
func (g *CommitGate) RUnlock() { g.mu.RUnlock() }

// Lock acquires the gate's exclusive (checkpoint) side.
func (g *CommitGate) Lock() { g.mu.Lock() }

// Unlock releases the gate's exclusive side.
func (g *CommitGate) Unlock() { g.mu.Unlock() }

// Context is the per-worker execution context handed to a running Proc. It
// carries the holder token the procedure takes pool locks under and owns the
// SContext undo journal (§4.E). Execute neither fills LockIdx nor releases
// any locks recorded there.
type Context struct {
	Sid       int64
	Holder    uint64
	SCtx      *SContext
	LockIdx   []int
	beginTime int64 // atomic unix nanos; read by the watchdog
	gate      *CommitGate
}

// NewContext constructs a fresh per-procedure Context. holder is the opaque
// lock-ownership token (see locks.Pool) identifying this worker.
func NewContext(sid int64, holder uint64, gate *CommitGate) *Context {
	return &Context{Sid: sid, Holder: holder, SCtx: NewSContext(), gate: gate}
}

// BeginTime returns the unix-nanos timestamp this procedure started
// executing, or 0 if it is not currently running. Used by the watchdog to
// detect procedures stuck past procedureTimeout (§5).
func (c *Context) BeginTime() int64 { return atomic.LoadInt64(&c.beginTime) }

func (c *Context) markBegin() { atomic.StoreInt64(&c.beginTime, time.Now().UnixNano()) }
func (c *Context) markIdle()  { atomic.StoreInt64(&c.beginTime, 0) }

// Proc is the unit of work DBManager dispatches onto a session's FIFO queue
// (§4.E, §4.G). OnProcess may return txnerr.Redo to ask for another attempt
// with fresh locks, txnerr.Undo to request a clean rollback with no retry, or
// any other error to roll back and fail the submission.
type Proc interface {
	OnProcess(ctx *Context) error
}

// OnExceptioner is an optional extension a Proc can implement to observe a
// non-Redo/Undo failure before it propagates to the submitter.
type OnExceptioner interface {
	OnException(ctx *Context, err error)
}

var (
	procTimer      = metrics.NewTimer()
	redoCounter    = metrics.NewCounter()
	rollbackCtr    = metrics.NewCounter()
	committedCtr   = metrics.NewCounter()
	procRegistered sync.Once
)

func registerProcMetrics() {
	procRegistered.Do(func() {
		metrics.Register("txn.procedure.duration", procTimer)
		metrics.Register("txn.procedure.redo", redoCounter)
		metrics.Register("txn.procedure.rollback", rollbackCtr)
		metrics.Register("txn.procedure.committed", committedCtr)
	})
}

// Procedure wraps a Proc with the INIT -> EXECUTING -> {COMMITTED,
// ROLLED_BACK, REDO} state machine of §4.E. running guards against
// reentrant execution of the same Procedure value from two goroutines.
type Procedure struct {
	Sid     int64
	Proc    Proc
	MaxRedo int

	running int32 // atomic bool, CAS-guarded
}

// NewProcedure wraps p for sid with a redo budget (0 means no limit).
func NewProcedure(sid int64, p Proc, maxRedo int) *Procedure {
	registerProcMetrics()
	return &Procedure{Sid: sid, Proc: p, MaxRedo: maxRedo}
}

// Execute drives the procedure's state machine to completion or until
// shutdownCtx is cancelled. It acquires gate's shared side for the duration
// of each attempt, releasing it across redo attempts so Checkpoint is never
// starved by a procedure that redoes indefinitely. Returns (committed, err):
// committed is true only on a clean commit; err is nil on commit or a clean
// rollback requested via txnerr.Undo, and non-nil for any other failure.
func (p *Procedure) Execute(ctx *Context, gate *CommitGate, shutdownCtx context.Context) (bool, error) {
	if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
		return false, txnerr.ErrStateViolation
	}
	defer atomic.StoreInt32(&p.running, 0)

	attempts := 0
	start := time.Now()
	defer func() { procTimer.UpdateSince(start) }()

	for {
		select {
		case <-shutdownCtx.Done():
			return false, txnerr.ErrInterrupted
		default:
		}

		gate.RLock()
		ctx.markBegin()
		err := p.Proc.OnProcess(ctx)
		ctx.markIdle()

		switch {
		case err == nil:
			ctx.SCtx.Commit()
			gate.RUnlock()
			committedCtr.Inc(1)
			return true, nil

		case err == txnerr.Redo:
			ctx.SCtx.Rollback()
			gate.RUnlock()
			redoCounter.Inc(1)
			attempts++
			if p.MaxRedo > 0 && attempts >= p.MaxRedo {
				return false, txnerr.ErrRedoExhausted
			}
			continue

		case err == txnerr.Undo:
			ctx.SCtx.Rollback()
			gate.RUnlock()
			rollbackCtr.Inc(1)
			return false, nil

		default:
			ctx.SCtx.Rollback()
			gate.RUnlock()
			rollbackCtr.Inc(1)
			if oe, ok := p.Proc.(OnExceptioner); ok {
				oe.OnException(ctx, err)
			}
			return false, err
		}
	}
}
