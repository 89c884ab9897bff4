package gatt

import (
	"sync"

	"github.com/google/uuid"
)

// OperationKind identifies what a pending operation does once it reaches
// the head of its device queue.
type OperationKind int

const (
	OpRead OperationKind = iota
	OpWrite
	OpEnableNotify
	OpDisableNotify
)

// String returns the operation kind name.
func (k OperationKind) String() string {
	switch k {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpEnableNotify:
		return "enable-notify"
	case OpDisableNotify:
		return "disable-notify"
	default:
		return "unknown"
	}
}

// OperationResult is the terminal outcome of a pending operation. Value is
// only set for reads.
type OperationResult struct {
	Value []byte
	Err   error
}

// PendingOperation represents one queued GATT request against a
// (device, characteristic) pair. It is created on submission, executed in
// FIFO order, and resolved exactly once; completion is observable both via
// Done and via the dispatched event stream.
type PendingOperation struct {
	id              uuid.UUID
	kind            OperationKind
	device          string
	charUUID        string
	payload         []byte
	withoutResponse bool

	once sync.Once
	done chan OperationResult
}

func newPendingOperation(kind OperationKind, device, charUUID string, payload []byte, withoutResponse bool) *PendingOperation {
	return &PendingOperation{
		id:              uuid.New(),
		kind:            kind,
		device:          device,
		charUUID:        charUUID,
		payload:         payload,
		withoutResponse: withoutResponse,
		done:            make(chan OperationResult, 1),
	}
}

// ID returns the unique identity of this operation, also carried by the
// events it produces.
func (op *PendingOperation) ID() uuid.UUID { return op.id }

// Kind returns what the operation does.
func (op *PendingOperation) Kind() OperationKind { return op.kind }

// Device returns the target device address.
func (op *PendingOperation) Device() string { return op.device }

// Characteristic returns the normalized target characteristic UUID.
func (op *PendingOperation) Characteristic() string { return op.charUUID }

// Done returns a channel that receives the operation result once and is
// then closed.
func (op *PendingOperation) Done() <-chan OperationResult { return op.done }

// resolve fulfils the operation. Safe to call more than once; only the
// first result wins.
func (op *PendingOperation) resolve(res OperationResult) {
	op.once.Do(func() {
		op.done <- res
		close(op.done)
	})
}
