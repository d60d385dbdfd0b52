package world

import (
	"fmt"
	"log/slog"
	"sync"
)

type opKind int

const (
	opDestroy opKind = iota + 1
	opContinuation
)

// deferredOp is work held until the tick's deferred phase.
type deferredOp struct {
	kind   opKind
	target Simulant
	fn     func(*World) error
}

// deferredQueue is a FIFO of deferred operations.
//
// It is the only kernel structure touched from other goroutines:
// collaborators inject results with Schedule while the simulation thread
// drains the queue at the tick boundary.
type deferredQueue struct {
	mu  sync.Mutex
	ops []deferredOp
}

func newDeferredQueue() *deferredQueue {
	return &deferredQueue{ops: make([]deferredOp, 0, 16)}
}

func (q *deferredQueue) Enqueue(op deferredOp) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = append(q.ops, op)
}

// TryDequeue removes the front operation without blocking.
func (q *deferredQueue) TryDequeue() (deferredOp, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ops) == 0 {
		return deferredOp{}, false
	}
	op := q.ops[0]
	// Clear the slot so the closure can be collected.
	q.ops[0] = deferredOp{}
	if len(q.ops) == 1 {
		q.ops = q.ops[:0]
	} else {
		q.ops = q.ops[1:]
	}
	return op, true
}

func (q *deferredQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Destroy schedules the simulant at addr for destruction in the deferred
// phase. It stays live, with its subscriptions, until then. If the
// address has been destroyed or recreated by then, the operation is a
// no-op.
func (w *World) Destroy(addr Address) error {
	e, ok := w.entries[addr]
	if !ok {
		return notLive(addr)
	}
	if addr == GameAddress {
		return &Error{Code: ErrCodeInvalidAddress, Message: "the game cannot be destroyed"}
	}
	w.deferred.Enqueue(deferredOp{kind: opDestroy, target: e.handle()})
	return nil
}

// Schedule queues fn to run in the deferred phase of the current (or
// next) tick. Safe to call from any goroutine.
func (w *World) Schedule(fn func(*World) error) {
	w.deferred.Enqueue(deferredOp{kind: opContinuation, fn: fn})
}

// Pending returns the number of queued deferred operations.
func (w *World) Pending() int {
	return w.deferred.Len()
}

// RunDeferred drains the deferred queue in FIFO order. Operations
// queued while draining run in the same pass. The first failure stops the
// drain; remaining operations stay queued.
func (w *World) RunDeferred() error {
	for {
		op, ok := w.deferred.TryDequeue()
		if !ok {
			return nil
		}
		switch op.kind {
		case opDestroy:
			if !w.IsCurrent(op.target) {
				w.logger.Debug("deferred destroy skipped", slog.String("address", op.target.Address.String()))
				continue
			}
			if err := w.DestroyImmediate(op.target.Address); err != nil {
				return fmt.Errorf("deferred destroy %s: %w", op.target.Address, err)
			}
		case opContinuation:
			if err := op.fn(w); err != nil {
				return fmt.Errorf("deferred continuation: %w", err)
			}
		}
	}
}
