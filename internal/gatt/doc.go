// Package gatt implements a BLE GATT client session manager: connection
// lifecycle and service discovery per device, strictly serialized
// read/write/notification operations against the platform stack, and
// fan-out of connection and characteristic events to registered listeners.
//
// The package is platform-agnostic; the actual radio stack is reached
// through the Transport interface (see the goble subpackage for the
// go-ble backed implementation, and internal/gatttest for a scripted
// fake used in tests).
package gatt
