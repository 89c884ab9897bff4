package gatt

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies a connection or characteristic event.
type EventType int

const (
	EventConnectionSetupComplete EventType = iota
	EventDisconnect
	EventCharacteristicRead
	EventCharacteristicWrite
	EventCharacteristicChanged
	EventNotificationsEnabled
	EventNotificationsDisabled
	EventMTUChanged
	EventError
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventConnectionSetupComplete:
		return "connection-setup-complete"
	case EventDisconnect:
		return "disconnect"
	case EventCharacteristicRead:
		return "characteristic-read"
	case EventCharacteristicWrite:
		return "characteristic-write"
	case EventCharacteristicChanged:
		return "characteristic-changed"
	case EventNotificationsEnabled:
		return "notifications-enabled"
	case EventNotificationsDisabled:
		return "notifications-disabled"
	case EventMTUChanged:
		return "mtu-changed"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a single occurrence delivered to listeners. Device is always
// set; Characteristic, Value, MTU, Err and OperationID are populated where
// the event type calls for them. Value is owned by the event and must not
// be mutated by listeners.
type Event struct {
	Type           EventType
	Device         string
	Service        string
	Characteristic string
	Value          []byte
	MTU            int
	Err            error
	OperationID    uuid.UUID
	Timestamp      time.Time
}

// Listener is a set of optional callbacks expressing interest in events.
// Nil callbacks are skipped. Listeners are identified by pointer for
// unregistration; register each instance once.
type Listener struct {
	OnConnectionSetupComplete func(Event)
	OnDisconnect              func(Event)
	OnCharacteristicRead      func(Event)
	OnCharacteristicWrite     func(Event)
	OnCharacteristicChanged   func(Event)
	OnNotificationsEnabled    func(Event)
	OnNotificationsDisabled   func(Event)
	OnMtuChanged              func(Event)
	OnError                   func(Event)
}

// deliver invokes the callback matching the event type, if set.
func (l *Listener) deliver(ev Event) {
	var fn func(Event)
	switch ev.Type {
	case EventConnectionSetupComplete:
		fn = l.OnConnectionSetupComplete
	case EventDisconnect:
		fn = l.OnDisconnect
	case EventCharacteristicRead:
		fn = l.OnCharacteristicRead
	case EventCharacteristicWrite:
		fn = l.OnCharacteristicWrite
	case EventCharacteristicChanged:
		fn = l.OnCharacteristicChanged
	case EventNotificationsEnabled:
		fn = l.OnNotificationsEnabled
	case EventNotificationsDisabled:
		fn = l.OnNotificationsDisabled
	case EventMTUChanged:
		fn = l.OnMtuChanged
	case EventError:
		fn = l.OnError
	}
	if fn != nil {
		fn(ev)
	}
}
