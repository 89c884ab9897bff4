package gatt

import "context"

// RemoteCharacteristic describes a characteristic as reported by the
// platform stack during discovery. UUIDs are in normalized form.
type RemoteCharacteristic struct {
	UUID         string
	Capabilities Capability
}

// RemoteService describes a discovered service and its characteristics,
// in the order the stack reported them.
type RemoteService struct {
	UUID            string
	Characteristics []RemoteCharacteristic
}

// Transport abstracts the platform BLE stack. Implementations must be safe
// for concurrent Dial calls; each returned Client represents one live link.
type Transport interface {
	// Dial establishes a connection to the peripheral at addr. It blocks
	// until the link is up or ctx is done.
	Dial(ctx context.Context, addr string) (Client, error)
}

// Client is a live GATT connection to a single peripheral. The session
// layer guarantees at most one outstanding operation per Client; an
// implementation does not need to serialize calls itself.
type Client interface {
	// DiscoverServices walks the remote GATT table. Called once per
	// connection, before any other operation.
	DiscoverServices() ([]RemoteService, error)

	// Read reads the current value of the characteristic.
	Read(charUUID string) ([]byte, error)

	// Write writes data to the characteristic, without waiting for an ACK
	// when withoutResponse is set.
	Write(charUUID string, data []byte, withoutResponse bool) error

	// Subscribe enables notifications (or indications) and installs the
	// value handler. The handler may be invoked from stack goroutines; the
	// data slice is only valid for the duration of the call.
	Subscribe(charUUID string, indicate bool, handler func(data []byte)) error

	// Unsubscribe disables notifications (or indications).
	Unsubscribe(charUUID string, indicate bool) error

	// ExchangeMTU negotiates the connection MTU and returns the granted
	// value.
	ExchangeMTU(mtu int) (int, error)

	// Disconnected returns a channel that is closed when the link drops,
	// whether by the peripheral, the stack, or CancelConnection.
	Disconnected() <-chan struct{}

	// CancelConnection tears the link down.
	CancelConnection() error
}
