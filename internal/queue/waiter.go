package queue

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// waiterEntry ties a pending consumer's callback to a deadline timer. Only
// one of {spinWaiters, its own timeout} may resolve a given waiter; resolved
// arbitrates the race between the two with a single CompareAndSwap.
type waiterEntry struct {
	cb       func(error)
	timer    *time.Timer
	resolved atomic.Bool
	elem     *list.Element
}

// waitList is the FIFO list of pending waiters described in the package
// doc's wait coordinator. It may be driven by spinWaiters from the caller's
// goroutine while a waiter's own deadline timer fires concurrently from the
// Go runtime's timer goroutine, so list membership is guarded by a mutex;
// per-waiter resolution is guarded independently via resolved.
type waitList struct {
	mu sync.Mutex
	l  *list.List
}

func newWaitList() *waitList {
	return &waitList{l: list.New()}
}

// add appends a new waiter and arms its deadline timer. deadline <= 0 means
// "already expired": the timer fires on the next scheduler turn. add itself
// never checks availability; Queue.Wait runs spinWaiters right after add,
// which resolves the new waiter synchronously if an item is already
// available.
func (wl *waitList) add(deadline time.Duration, cb func(error)) *waiterEntry {
	we := &waiterEntry{cb: cb}
	wl.mu.Lock()
	we.elem = wl.l.PushBack(we)
	wl.mu.Unlock()
	we.timer = time.AfterFunc(deadline, func() { wl.fireTimeout(we) })
	return we
}

// len reports the number of waiters currently queued.
func (wl *waitList) len() int {
	wl.mu.Lock()
	defer wl.mu.Unlock()
	return wl.l.Len()
}

func (wl *waitList) fireTimeout(we *waiterEntry) {
	if !we.resolved.CompareAndSwap(false, true) {
		return
	}
	wl.mu.Lock()
	wl.l.Remove(we.elem)
	wl.mu.Unlock()
	we.cb(ErrTimeout)
}

// spinWaiters wakes waiters in arrival order as long as available reports
// true, which it re-evaluates after each wakeup since a woken waiter's own
// pop_open (run by the caller, not by this loop) is what actually consumes
// availability. Each dispatched waiter gets its timer stopped and its
// callback invoked with a nil error; onDispatch runs exactly once per
// waiter actually dispatched (not per peek), so callers can track how many
// optimistic wakeups they've issued.
func (wl *waitList) spinWaiters(available func() bool, onDispatch func()) {
	for {
		wl.mu.Lock()
		if wl.l.Len() == 0 || !available() {
			wl.mu.Unlock()
			return
		}
		front := wl.l.Front()
		we := front.Value.(*waiterEntry)
		wl.l.Remove(front)
		wl.mu.Unlock()

		if !we.resolved.CompareAndSwap(false, true) {
			// Lost the race to its own timeout; that path already dispatched it.
			continue
		}
		we.timer.Stop()
		onDispatch()
		we.cb(nil)
	}
}

// closeAll resolves every remaining waiter with err, for use when the queue
// is being shut down with waiters still pending.
func (wl *waitList) closeAll(err error) {
	wl.mu.Lock()
	var pending []*waiterEntry
	for e := wl.l.Front(); e != nil; e = e.Next() {
		pending = append(pending, e.Value.(*waiterEntry))
	}
	wl.l.Init()
	wl.mu.Unlock()

	for _, we := range pending {
		if we.resolved.CompareAndSwap(false, true) {
			we.timer.Stop()
			we.cb(err)
		}
	}
}
