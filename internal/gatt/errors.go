package gatt

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the package.
var (
	// ErrConnectionClosed is delivered to every queued and in-flight
	// operation when a device is torn down or the link drops.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrAlreadyConnected is returned by Connect when a connection attempt
	// for the device is already in progress or established.
	ErrAlreadyConnected = errors.New("already connected")
)

// CapabilityError reports an operation requested against a characteristic
// that lacks the required property. It is rejected before the operation
// reaches the queue and is never retried.
type CapabilityError struct {
	Device         string
	Characteristic string
	Operation      OperationKind
	Required       Capability
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("characteristic %q on %s does not support %s (requires %s)",
		e.Characteristic, e.Device, e.Operation, e.Required)
}

// SubmissionError reports that an operation could not be handed to the
// underlying stack at all, e.g. the device is not connected or the
// characteristic is unknown. Surfaced immediately, never enqueued.
type SubmissionError struct {
	Device string
	Reason string
	Err    error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot submit operation for %s: %s: %v", e.Device, e.Reason, e.Err)
	}
	return fmt.Sprintf("cannot submit operation for %s: %s", e.Device, e.Reason)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// DiscoveryError reports a failed service/characteristic discovery after a
// link was established. The record is forced back to Disconnected.
type DiscoveryError struct {
	Device string
	Err    error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("service discovery failed for %s: %v", e.Device, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }
