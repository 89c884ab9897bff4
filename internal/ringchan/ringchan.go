// Package ringchan provides a bounded channel-like buffer with
// overwrite-oldest semantics: producers never block indefinitely, slow
// consumers lose the oldest elements first.
package ringchan

// RingChannel wraps a buffered channel. Writers use Send/ForceSend;
// readers range over C() or poll with TryReceive.
type RingChannel[T any] struct {
	ch chan T
}

// New creates a RingChannel with the given capacity.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel. Consumers can range over
// it until Close.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts v, discarding the oldest element if the buffer is full.
func (rc *RingChannel[T]) Send(v T) {
	select {
	case rc.ch <- v:
	default:
		<-rc.ch // drop oldest
		rc.ch <- v
	}
}

// ForceSend inserts v without ever blocking, discarding the oldest element
// if needed. Returns true when an element was dropped.
func (rc *RingChannel[T]) ForceSend(v T) bool {
	dropped := false
	select {
	case rc.ch <- v:
	default:
		select {
		case <-rc.ch: // drop oldest
			dropped = true
		default:
		}
		rc.ch <- v
	}
	return dropped
}

// TryReceive attempts a non-blocking receive. Returns (zero, false) if no
// value is ready.
func (rc *RingChannel[T]) TryReceive() (T, bool) {
	select {
	case v, ok := <-rc.ch:
		return v, ok
	default:
		var zero T
		return zero, false
	}
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int { return len(rc.ch) }

// Cap returns the channel capacity.
func (rc *RingChannel[T]) Cap() int { return cap(rc.ch) }

// Close closes the underlying channel. Sends after Close panic.
func (rc *RingChannel[T]) Close() { close(rc.ch) }
