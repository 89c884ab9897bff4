package gatt

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// recorder is a listener that counts deliveries per event type and,
// optionally, appends a tag to a shared delivery log.
type recorder struct {
	mu     sync.Mutex
	counts map[EventType]int
	log    *deliveryLog
	tag    string
}

type deliveryLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *deliveryLog) append(tag string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, tag)
}

func (l *deliveryLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}

func newRecorder(log *deliveryLog, tag string) *recorder {
	return &recorder{counts: make(map[EventType]int), log: log, tag: tag}
}

func (r *recorder) record(ev Event) {
	r.mu.Lock()
	r.counts[ev.Type]++
	r.mu.Unlock()
	if r.log != nil {
		r.log.append(r.tag)
	}
}

func (r *recorder) count(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[t]
}

func (r *recorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.counts {
		n += c
	}
	return n
}

func (r *recorder) listener() *Listener {
	return &Listener{
		OnConnectionSetupComplete: r.record,
		OnDisconnect:              r.record,
		OnCharacteristicRead:      r.record,
		OnCharacteristicWrite:     r.record,
		OnCharacteristicChanged:   r.record,
		OnNotificationsEnabled:    r.record,
		OnNotificationsDisabled:   r.record,
		OnMtuChanged:              r.record,
		OnError:                   r.record,
	}
}

func TestDispatcherFanOut(t *testing.T) {
	d := newDispatcher(16, 16, quietLogger())
	defer d.Close()

	a := newRecorder(nil, "a")
	b := newRecorder(nil, "b")
	c := newRecorder(nil, "c")

	d.Register(a.listener())
	d.Register(b.listener())
	removed := c.listener()
	d.Register(removed)
	d.Unregister(removed) // removed before any event: must see nothing

	d.publish(Event{Type: EventCharacteristicWrite, Device: "AA", Characteristic: "ffe1"})

	require.Eventually(t, func() bool {
		return a.count(EventCharacteristicWrite) == 1 && b.count(EventCharacteristicWrite) == 1
	}, time.Second, time.Millisecond)

	assert.Equal(t, 1, a.count(EventCharacteristicWrite))
	assert.Equal(t, 1, b.count(EventCharacteristicWrite))
	assert.Zero(t, c.total())
	assert.Zero(t, a.count(EventCharacteristicRead))
}

func TestDispatcherSequentialDelivery(t *testing.T) {
	d := newDispatcher(16, 16, quietLogger())
	defer d.Close()

	log := &deliveryLog{}
	d.Register(newRecorder(log, "first").listener())
	d.Register(newRecorder(log, "second").listener())

	d.publish(Event{Type: EventCharacteristicWrite})
	d.publish(Event{Type: EventCharacteristicRead})

	require.Eventually(t, func() bool { return len(log.snapshot()) == 4 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"first", "second", "first", "second"}, log.snapshot())
}

func TestDispatcherRegisterDuringStreamSeesLaterEvents(t *testing.T) {
	d := newDispatcher(16, 16, quietLogger())
	defer d.Close()

	late := newRecorder(nil, "late")
	d.publish(Event{Type: EventCharacteristicWrite})

	// Give the first event time to flow before registering.
	time.Sleep(20 * time.Millisecond)
	d.Register(late.listener())
	d.publish(Event{Type: EventCharacteristicWrite})

	require.Eventually(t, func() bool {
		return late.count(EventCharacteristicWrite) == 1
	}, time.Second, time.Millisecond)
}

func TestDispatcherDrainRecent(t *testing.T) {
	d := newDispatcher(16, 8, quietLogger())
	defer d.Close()

	d.publish(Event{Type: EventCharacteristicWrite, Device: "AA"})
	d.publish(Event{Type: EventCharacteristicRead, Device: "AA"})

	var drained []Event
	require.Eventually(t, func() bool {
		drained = append(drained, d.DrainRecent()...)
		return len(drained) == 2
	}, time.Second, time.Millisecond)

	assert.Equal(t, EventCharacteristicWrite, drained[0].Type)
	assert.Equal(t, EventCharacteristicRead, drained[1].Type)
	assert.False(t, drained[0].Timestamp.IsZero(), "publish must stamp events")

	// Drained events are gone.
	assert.Empty(t, d.DrainRecent())
}

func TestDispatcherStream(t *testing.T) {
	d := newDispatcher(4, 4, quietLogger())

	d.publish(Event{Type: EventDisconnect, Device: "AA"})

	select {
	case ev := <-d.Stream():
		assert.Equal(t, EventDisconnect, ev.Type)
		assert.Equal(t, "AA", ev.Device)
	case <-time.After(time.Second):
		t.Fatal("no event on stream")
	}

	d.Close()
	_, open := <-d.Stream()
	assert.False(t, open, "stream must close with the dispatcher")

	// Publishing after Close must not panic, events are dropped.
	d.publish(Event{Type: EventError})
	d.Close() // idempotent
}
