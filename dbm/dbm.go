// Package dbm implements the DBManager session dispatcher of §4.G: a bounded
// worker pool, a sid -> FIFO map with self-resubmitting drainers, and the
// watchdog that interrupts over-time procedures, grounded on
// original_source/src/jane/core/DBManager.java.
package dbm

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shoaldb/keel/checkpoint"
	"github.com/shoaldb/keel/locks"
	"github.com/shoaldb/keel/storage"
	"github.com/shoaldb/keel/table"
	"github.com/shoaldb/keel/txn"
)

// Config enumerates the §6 tunables governing the dispatcher and watchdog.
type Config struct {
	WorkerCount            int
	LockPoolSize           int
	MaxSessionProcedure    int
	MaxBatchProceduer      int
	ProcedureTimeout       time.Duration
	ProcedureDeadlockTimeout time.Duration
	DeadlockCheckInterval  time.Duration
	CheckpointInterval     time.Duration
}

// queuedProc is one pending submission on a session's FIFO queue.
type queuedProc struct {
	proc *txn.Procedure
	done chan error
}

// sidQueue is the per-session FIFO queue plus its drain state.
type sidQueue struct {
	mu      sync.Mutex
	items   []*queuedProc
	draining bool
}

// runningProc tracks one in-flight procedure for the watchdog.
type runningProc struct {
	ctx    *txn.Context
	cancel context.CancelFunc
	marked bool // already interrupted once
}

// Manager is the DBManager equivalent: it owns the worker pool, the per-sid
// FIFO queues, the lock pool, the commit gate, and the checkpoint.Manager.
type Manager struct {
	cfg    Config
	engine storage.Engine
	Locks  *locks.Pool
	gate   *txn.CommitGate
	ckpt   *checkpoint.Manager

	sem chan struct{} // worker pool admission semaphore

	queues sync.Map // sid int64 -> *sidQueue
	holder uint64   // atomic counter minting lock-pool holder tokens

	runningMu sync.Mutex
	running   map[uint64]*runningProc

	wg         sync.WaitGroup
	shutdownFn context.CancelFunc
	shutdownCtx context.Context

	stopCheckpoint chan struct{}
	stopWatchdog   chan struct{}
}

// Startup constructs a Manager, its lock pool, and its checkpoint.Manager,
// but does not yet start the commit thread or the watchdog. Submissions are
// accepted as soon as Startup returns.
func Startup(cfg Config, engine storage.Engine, ckptCfg checkpoint.Config) *Manager {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 8
	}
	if cfg.LockPoolSize <= 0 {
		cfg.LockPoolSize = 1024
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:         cfg,
		engine:      engine,
		Locks:       locks.NewPool(cfg.LockPoolSize),
		gate:        &txn.CommitGate{},
		sem:         make(chan struct{}, cfg.WorkerCount),
		running:     make(map[uint64]*runningProc),
		shutdownFn:  cancel,
		shutdownCtx: ctx,
	}
	m.ckpt = checkpoint.NewManager(ckptCfg, engine, m.gate, m.nextHolder())
	m.ckpt.SetQueueSweeper(m)
	return m
}

func (m *Manager) nextHolder() uint64 {
	return atomic.AddUint64(&m.holder, 1)
}

// OpenTable constructs a table.Table[K,V] against the Manager's engine and
// lock pool, registering it with the checkpoint.Manager.
func OpenTable[K comparable, V any](m *Manager, cfg table.Config[K, V]) *table.Table[K, V] {
	if cfg.Engine == nil {
		cfg.Engine = m.engine
	}
	cfg.Locks = m.Locks
	t := table.New(cfg)
	m.ckpt.Register(t)
	return t
}

// OpenTableLong is OpenTable's TableLong counterpart.
func OpenTableLong[V any](m *Manager, cfg table.Config[int64, V]) *table.TableLong[V] {
	if cfg.Engine == nil {
		cfg.Engine = m.engine
	}
	cfg.Locks = m.Locks
	t := table.NewLong(cfg)
	m.ckpt.Register(t)
	return t
}

// StartCommitThread starts the periodic checkpoint actor and the watchdog.
func (m *Manager) StartCommitThread() {
	m.stopCheckpoint = make(chan struct{})
	m.stopWatchdog = make(chan struct{})

	if m.cfg.CheckpointInterval > 0 {
		m.wg.Add(1)
		go m.checkpointLoop()
	}
	if m.cfg.DeadlockCheckInterval > 0 {
		m.wg.Add(1)
		go m.watchdogLoop()
	}
}

func (m *Manager) checkpointLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.CheckpointInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := m.ckpt.Run(); err != nil {
				logrus.WithError(err).Error("checkpoint run failed")
			}
		case <-m.stopCheckpoint:
			return
		}
	}
}

func (m *Manager) watchdogLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.DeadlockCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.inspectRunning()
		case <-m.stopWatchdog:
			return
		}
	}
}

// inspectRunning cancels any procedure's context whose begin_time exceeds
// procedureTimeout, letting Procedure.Execute observe ctx.Done() and abort
// cleanly on its next redo check (§4.E interruption policy). A begin_time of
// 0 means the procedure is idle between attempts and is skipped. There is no
// way for a procedure to mark itself non-interruptible, and
// ProcedureDeadlockTimeout is not consulted.
func (m *Manager) inspectRunning() {
	now := time.Now().UnixNano()
	m.runningMu.Lock()
	defer m.runningMu.Unlock()
	for _, rp := range m.running {
		begin := rp.ctx.BeginTime()
		if begin == 0 || rp.marked {
			continue
		}
		elapsed := time.Duration(now - begin)
		if elapsed > m.cfg.ProcedureTimeout {
			rp.marked = true
			rp.cancel()
			logrus.WithField("sid", rp.ctx.Sid).Warn("watchdog interrupted over-time procedure")
		}
	}
}

// Checkpoint runs one checkpoint cycle synchronously.
func (m *Manager) Checkpoint() error { return m.ckpt.Run() }

// CheckpointAsync schedules one checkpoint cycle without blocking the caller.
func (m *Manager) CheckpointAsync() {
	go func() {
		if err := m.ckpt.Run(); err != nil {
			logrus.WithError(err).Error("async checkpoint failed")
		}
	}()
}

// BackupNextCheckpoint forces the next Run to treat the backup interval as
// elapsed, by resetting the cooldown kept inside checkpoint.Manager. Exposed
// here because the admin surface names it as a DBManager operation (§6).
func (m *Manager) BackupNextCheckpoint() {
	m.ckpt.ForceBackupNext()
}

// Submit directly enqueues proc on the worker pool with no session ordering.
func (m *Manager) Submit(proc *txn.Procedure) <-chan error {
	done := make(chan error, 1)
	m.runOnPool(proc, done)
	return done
}

// SubmitSession enqueues proc on sid's FIFO queue (§4.G). Returns an error
// synchronously if the queue is already at maxSessionProcedure.
func (m *Manager) SubmitSession(sid int64, proc *txn.Procedure) (<-chan error, error) {
	qv, _ := m.queues.LoadOrStore(sid, &sidQueue{})
	q := qv.(*sidQueue)

	done := make(chan error, 1)
	q.mu.Lock()
	if m.cfg.MaxSessionProcedure > 0 && len(q.items) >= m.cfg.MaxSessionProcedure {
		q.mu.Unlock()
		return nil, errQueueFull
	}
	wasEmpty := len(q.items) == 0
	q.items = append(q.items, &queuedProc{proc: proc, done: done})
	q.mu.Unlock()

	if wasEmpty {
		m.submitDrainer(sid, q)
	}
	return done, nil
}

func (m *Manager) submitDrainer(sid int64, q *sidQueue) {
	select {
	case m.sem <- struct{}{}:
	case <-m.shutdownCtx.Done():
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() { <-m.sem }()
		m.drain(sid, q)
	}()
}

// drain pops up to MaxBatchProceduer procedures in FIFO order and runs them
// inline; if the batch is exhausted but the queue is still non-empty, it
// resubmits itself rather than recursing, so one slow session cannot pin a
// worker goroutine forever.
func (m *Manager) drain(sid int64, q *sidQueue) {
	max := m.cfg.MaxBatchProceduer
	if max <= 0 {
		max = 1
	}

	for i := 0; i < max; i++ {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.mu.Unlock()
			return
		}
		next := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		m.execute(sid, next.proc, next.done)
	}

	q.mu.Lock()
	remaining := len(q.items) > 0
	q.mu.Unlock()
	if remaining {
		m.submitDrainer(sid, q)
	}
}

func (m *Manager) runOnPool(proc *txn.Procedure, done chan error) {
	select {
	case m.sem <- struct{}{}:
	case <-m.shutdownCtx.Done():
		done <- txnErrInterrupted()
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() { <-m.sem }()
		m.execute(proc.Sid, proc, done)
	}()
}

func (m *Manager) execute(sid int64, proc *txn.Procedure, done chan error) {
	holder := m.nextHolder()
	ctx := txn.NewContext(sid, holder, m.gate)
	procCtx, cancel := context.WithCancel(m.shutdownCtx)
	defer cancel()

	rp := &runningProc{ctx: ctx, cancel: cancel}
	m.runningMu.Lock()
	m.running[holder] = rp
	m.runningMu.Unlock()
	defer func() {
		m.runningMu.Lock()
		delete(m.running, holder)
		m.runningMu.Unlock()
	}()

	_, err := proc.Execute(ctx, m.gate, procCtx)
	done <- err
}

// SweepEmptyQueues implements checkpoint.QueueSweeper (§4.F Phase G).
func (m *Manager) SweepEmptyQueues() {
	m.queues.Range(func(key, value any) bool {
		q := value.(*sidQueue)
		q.mu.Lock()
		empty := len(q.items) == 0
		q.mu.Unlock()
		if empty {
			m.queues.Delete(key)
		}
		return true
	})
}

// StopQueue drops sid's queue, failing any procedures still pending on it.
func (m *Manager) StopQueue(sid int64) {
	qv, ok := m.queues.LoadAndDelete(sid)
	if !ok {
		return
	}
	q := qv.(*sidQueue)
	q.mu.Lock()
	pending := q.items
	q.items = nil
	q.mu.Unlock()
	for _, p := range pending {
		p.done <- errQueueStopped
	}
}

// Shutdown stops accepting new work, cancels all running procedures, and
// waits for in-flight work to finish.
func (m *Manager) Shutdown() {
	if m.stopCheckpoint != nil {
		close(m.stopCheckpoint)
	}
	if m.stopWatchdog != nil {
		close(m.stopWatchdog)
	}
	m.shutdownFn()
	m.wg.Wait()
}
