package main

import (
	"errors"
	"fmt"

	"github.com/srg/blectl/internal/gatt"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the BLE connection was unexpectedly lost
	// during an operation, as opposed to a device that was never connected.
	ErrConnectionLost = errors.New("connection lost")
)

// FormatUserError rewrites well-known error types into actionable one-line
// messages for the terminal. Unknown errors pass through unchanged.
func FormatUserError(err error) string {
	var capErr *gatt.CapabilityError
	if errors.As(err, &capErr) {
		return fmt.Sprintf("characteristic %s on %s does not support %s (requires %s)",
			capErr.Characteristic, capErr.Device, capErr.Operation, capErr.Required)
	}

	var subErr *gatt.SubmissionError
	if errors.As(err, &subErr) {
		return fmt.Sprintf("cannot reach %s: %s", subErr.Device, subErr.Reason)
	}

	var discErr *gatt.DiscoveryError
	if errors.As(err, &discErr) {
		return fmt.Sprintf("service discovery on %s failed: %v", discErr.Device, discErr.Err)
	}

	switch {
	case errors.Is(err, gatt.ErrConnectionClosed):
		return "connection closed - the device disconnected or went out of range"
	case errors.Is(err, gatt.ErrAlreadyConnected):
		return "a connection to this device already exists"
	case errors.Is(err, ErrConnectionLost):
		return "connection lost - the device disconnected or went out of range"
	}

	return err.Error()
}
