// Package waitq implements the FIFO wait queues that back every blocking
// sync primitive and pipe end (§5: "wait queues are FIFO; wake preserves
// arrival order"). A thread is never on more than one queue at a time
// (invariant 2 / invariant 7); Queue itself does not enforce that, and
// neither do its users (ksync, pipe and sched), which use Queue purely as
// ordered storage of thread ids.
package waitq

import (
	"container/list"

	"nanokern/defs"
)

/// Queue is an intrusive-order FIFO of waiting thread ids, grounded on the
/// teacher's use of container/list for ordered block bookkeeping
/// (biscuit/src/fs/blk.go's BlkList_t).
type Queue struct {
	l *list.List
}

/// New returns an empty wait queue.
func New() *Queue {
	return &Queue{l: list.New()}
}

/// Push enqueues tid at the tail.
func (q *Queue) Push(tid defs.Tid_t) {
	q.l.PushBack(tid)
}

/// Pop dequeues and returns the head, if any.
func (q *Queue) Pop() (defs.Tid_t, bool) {
	e := q.l.Front()
	if e == nil {
		return 0, false
	}
	q.l.Remove(e)
	return e.Value.(defs.Tid_t), true
}

/// Peek returns the head without removing it.
func (q *Queue) Peek() (defs.Tid_t, bool) {
	e := q.l.Front()
	if e == nil {
		return 0, false
	}
	return e.Value.(defs.Tid_t), true
}

/// Remove deletes the first occurrence of tid from the queue, wherever it
/// is. Used when a waiting thread's process is terminated (§5 cancellation)
/// and the thread must be forcibly pulled off its wait list.
func (q *Queue) Remove(tid defs.Tid_t) bool {
	for e := q.l.Front(); e != nil; e = e.Next() {
		if e.Value.(defs.Tid_t) == tid {
			q.l.Remove(e)
			return true
		}
	}
	return false
}

/// Len returns the number of waiting threads.
func (q *Queue) Len() int {
	return q.l.Len()
}

/// Empty reports whether no thread is waiting.
func (q *Queue) Empty() bool {
	return q.l.Len() == 0
}

/// All returns the waiters in FIFO order, for diagnostics.
func (q *Queue) All() []defs.Tid_t {
	out := make([]defs.Tid_t, 0, q.l.Len())
	for e := q.l.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(defs.Tid_t))
	}
	return out
}
