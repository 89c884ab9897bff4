package gatt

import "sync"

// operationQueue serializes GATT operations for one device. The underlying
// radio supports a single outstanding transaction per connection, so the
// queue guarantees that exec is never invoked concurrently: enqueue appends
// and, if the queue is idle, starts a drain goroutine that runs operations
// strictly in FIFO order. There is no priority and no cancellation of
// queued entries other than close.
type operationQueue struct {
	mu      sync.Mutex
	pending []*PendingOperation
	busy    bool
	closed  bool
	exec    func(*PendingOperation)
}

func newOperationQueue(exec func(*PendingOperation)) *operationQueue {
	return &operationQueue{exec: exec}
}

// enqueue appends op and starts the drain loop if it is not already
// running. Returns ErrConnectionClosed if the queue was closed.
func (q *operationQueue) enqueue(op *PendingOperation) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrConnectionClosed
	}
	q.pending = append(q.pending, op)
	if q.busy {
		q.mu.Unlock()
		return nil
	}
	q.busy = true
	q.mu.Unlock()

	go q.drain()
	return nil
}

// drain executes operations one at a time until the queue is empty or
// closed. At most one drain goroutine exists per queue; busy guards the
// invariant.
func (q *operationQueue) drain() {
	for {
		q.mu.Lock()
		if q.closed || len(q.pending) == 0 {
			q.busy = false
			q.mu.Unlock()
			return
		}
		op := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.exec(op)
	}
}

// close marks the queue dead and hands back every operation that never
// started so the caller can fail them. Idempotent.
func (q *operationQueue) close() []*PendingOperation {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	rest := q.pending
	q.pending = nil
	return rest
}

// isClosed reports whether close has been called. The executor checks this
// after a transport call returns so an operation caught mid-flight by a
// teardown resolves as ErrConnectionClosed rather than success.
func (q *operationQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// depth returns the number of queued (not yet started) operations.
func (q *operationQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
