package gatt

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOp(kind OperationKind) *PendingOperation {
	return newPendingOperation(kind, "AA:BB:CC:DD:EE:FF", "ffe1", nil, false)
}

func TestQueueRunsInEnqueueOrder(t *testing.T) {
	var mu sync.Mutex
	var started []*PendingOperation
	done := make(chan struct{}, 64)

	q := newOperationQueue(func(op *PendingOperation) {
		mu.Lock()
		started = append(started, op)
		mu.Unlock()
		done <- struct{}{}
	})

	ops := make([]*PendingOperation, 20)
	for i := range ops {
		ops[i] = newOp(OpWrite)
		require.NoError(t, q.enqueue(ops[i]))
	}

	for range ops {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("queue stalled")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, started, len(ops))
	for i, op := range ops {
		assert.Same(t, op, started[i], "operation %d started out of order", i)
	}
}

func TestQueueNeverRunsConcurrently(t *testing.T) {
	var inFlight, maxSeen int64
	var executed int64
	total := 80

	q := newOperationQueue(func(op *PendingOperation) {
		cur := atomic.AddInt64(&inFlight, 1)
		for {
			seen := atomic.LoadInt64(&maxSeen)
			if cur <= seen || atomic.CompareAndSwapInt64(&maxSeen, seen, cur) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		atomic.AddInt64(&executed, 1)
	})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < total/8; i++ {
				assert.NoError(t, q.enqueue(newOp(OpWrite)))
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&executed) == int64(total)
	}, 5*time.Second, 5*time.Millisecond)

	assert.EqualValues(t, 1, atomic.LoadInt64(&maxSeen), "operations overlapped")
}

func TestQueueCloseReturnsPendingAndRejectsNew(t *testing.T) {
	block := make(chan struct{})
	q := newOperationQueue(func(op *PendingOperation) {
		<-block
	})

	first := newOp(OpWrite)
	require.NoError(t, q.enqueue(first))

	queued := []*PendingOperation{newOp(OpWrite), newOp(OpRead)}
	for _, op := range queued {
		require.NoError(t, q.enqueue(op))
	}

	// Let the drain goroutine pick up the first operation.
	require.Eventually(t, func() bool { return q.depth() == len(queued) }, time.Second, time.Millisecond)

	rest := q.close()
	require.Len(t, rest, len(queued))
	for i, op := range queued {
		assert.Same(t, op, rest[i])
	}

	assert.True(t, q.isClosed())
	assert.ErrorIs(t, q.enqueue(newOp(OpWrite)), ErrConnectionClosed)

	close(block)
}
