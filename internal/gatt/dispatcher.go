package gatt

import (
	"sync"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/sirupsen/logrus"

	"github.com/srg/blectl/internal/ringchan"
)

// Dispatcher fans events out to registered listeners. A single goroutine
// consumes the event channel, so dispatch is strictly sequential: every
// listener fully processes event N before any listener sees event N+1.
// Registration and unregistration are safe concurrently with dispatch; a
// listener added while event N is being delivered is only guaranteed to
// see N+1 onward, and a removed listener sees nothing after removal takes
// effect.
//
// Besides listener fan-out the dispatcher keeps a bounded overlapped ring
// of recent events for polling consumers and exposes a drop-oldest stream
// channel for consumers that prefer ranging over a channel.
type Dispatcher struct {
	logger *logrus.Logger

	mu        sync.RWMutex
	listeners []*Listener

	events  chan Event
	history mpmc.RichOverlappedRingBuffer[Event]
	stream  *ringchan.RingChannel[Event]

	// pubMu guards the closed flag against publishes racing Close; a send
	// on the closed events channel would panic.
	pubMu  sync.RWMutex
	closed bool
	done   chan struct{}
}

func newDispatcher(buffer int, history uint32, logger *logrus.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	if history == 0 {
		history = 512
	}
	d := &Dispatcher{
		logger:  logger,
		events:  make(chan Event, buffer),
		history: mpmc.NewOverlappedRingBuffer[Event](history),
		stream:  ringchan.New[Event](buffer),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Register adds a listener. It will receive events published after
// registration takes effect.
func (d *Dispatcher) Register(l *Listener) {
	if l == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.listeners {
		if existing == l {
			return
		}
	}
	d.listeners = append(d.listeners, l)
}

// Unregister removes a previously registered listener. Unknown listeners
// are ignored.
func (d *Dispatcher) Unregister(l *Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, existing := range d.listeners {
		if existing == l {
			d.listeners = append(d.listeners[:i], d.listeners[i+1:]...)
			return
		}
	}
}

// publish hands an event to the dispatch goroutine. Events published after
// Close are dropped.
func (d *Dispatcher) publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	d.pubMu.RLock()
	defer d.pubMu.RUnlock()
	if d.closed {
		d.logger.WithField("event", ev.Type).Debug("Dispatcher closed, dropping event")
		return
	}
	d.events <- ev
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.events {
		if _, err := d.history.EnqueueM(ev); err != nil {
			d.logger.WithField("error", err).Warn("Failed to record event in history buffer")
		}
		d.stream.ForceSend(ev)

		d.mu.RLock()
		snapshot := make([]*Listener, len(d.listeners))
		copy(snapshot, d.listeners)
		d.mu.RUnlock()

		for _, l := range snapshot {
			l.deliver(ev)
		}
	}
}

// Stream returns a receive-only channel of all dispatched events. The
// channel is bounded with drop-oldest semantics: a slow consumer loses the
// oldest events, never blocks dispatch.
func (d *Dispatcher) Stream() <-chan Event {
	return d.stream.C()
}

// DrainRecent removes and returns the buffered recent events, oldest
// first. Events dispatched while draining may or may not be included.
func (d *Dispatcher) DrainRecent() []Event {
	var events []Event
	for !d.history.IsEmpty() {
		ev, err := d.history.Dequeue()
		if err != nil {
			break
		}
		events = append(events, ev)
	}
	return events
}

// Close stops dispatch after delivering already-published events and
// closes the stream channel.
func (d *Dispatcher) Close() {
	d.pubMu.Lock()
	if d.closed {
		d.pubMu.Unlock()
		return
	}
	d.closed = true
	d.pubMu.Unlock()

	close(d.events)
	<-d.done
	d.stream.Close()
}
