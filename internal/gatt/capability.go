package gatt

import "strings"

// Capability is a bit set of operations a characteristic supports, derived
// from the platform-reported GATT properties.
type Capability uint8

const (
	CapRead Capability = 1 << iota
	CapWrite
	CapWriteWithoutResponse
	CapNotify
	CapIndicate
)

// Has reports whether every capability in flags is present.
func (c Capability) Has(flags Capability) bool {
	return c&flags == flags
}

// HasAny reports whether at least one capability in mask is present.
func (c Capability) HasAny(mask Capability) bool {
	return c&mask != 0
}

// String renders the set as a pipe-separated list, e.g. "Read|Notify".
func (c Capability) String() string {
	if c == 0 {
		return "None"
	}
	var names []string
	if c.Has(CapRead) {
		names = append(names, "Read")
	}
	if c.Has(CapWrite) {
		names = append(names, "Write")
	}
	if c.Has(CapWriteWithoutResponse) {
		names = append(names, "WriteWithoutResponse")
	}
	if c.Has(CapNotify) {
		names = append(names, "Notify")
	}
	if c.Has(CapIndicate) {
		names = append(names, "Indicate")
	}
	return strings.Join(names, "|")
}

// NormalizeUUID converts a UUID string to the internal format used for all
// lookups (lowercase, no dashes). Handles both standard dashed UUIDs and
// already-normalized input.
func NormalizeUUID(uuid string) string {
	return strings.ToLower(strings.ReplaceAll(uuid, "-", ""))
}
