package gatt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeUUID(t *testing.T) {
	assert.Equal(t, "2a37", NormalizeUUID("2A37"))
	assert.Equal(t, "6e400001b5a3f393e0a9e50e24dcca9e", NormalizeUUID("6E400001-B5A3-F393-E0A9-E50E24DCCA9E"))
	assert.Equal(t, "ffe1", NormalizeUUID("ffe1"))
}

func TestCapabilitySet(t *testing.T) {
	caps := CapRead | CapNotify

	assert.True(t, caps.Has(CapRead))
	assert.True(t, caps.HasAny(CapNotify|CapIndicate))
	assert.False(t, caps.Has(CapWrite))
	assert.False(t, caps.HasAny(CapWrite|CapWriteWithoutResponse))

	assert.Equal(t, "Read|Notify", caps.String())
	assert.Equal(t, "None", Capability(0).String())
}

func TestConnectionStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "discovering", StateDiscovering.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "disconnecting", StateDisconnecting.String())
}

func TestRecordAdvance(t *testing.T) {
	rec := newConnectionRecord("AA:BB:CC:DD:EE:FF")

	assert.True(t, rec.advance(StateDisconnected, StateConnecting))
	assert.Equal(t, StateConnecting, rec.currentState())

	// Wrong expected state leaves the record untouched.
	assert.False(t, rec.advance(StateDisconnected, StateConnecting))
	assert.Equal(t, StateConnecting, rec.currentState())
}

func TestInstallProfilePreservesDiscoveryOrder(t *testing.T) {
	rec := newConnectionRecord("AA:BB:CC:DD:EE:FF")
	rec.installProfile([]RemoteService{
		{UUID: "FFE0", Characteristics: []RemoteCharacteristic{
			{UUID: "FFE1", Capabilities: CapWrite},
		}},
		{UUID: "180D", Characteristics: []RemoteCharacteristic{
			{UUID: "2A37", Capabilities: CapNotify},
			{UUID: "2A38", Capabilities: CapRead},
		}},
	})
	rec.state = StateReady

	services := rec.servicesSnapshot()
	require.Len(t, services, 2)
	assert.Equal(t, "ffe0", services[0].UUID())
	assert.Equal(t, "180d", services[1].UUID())

	chars := services[1].Characteristics()
	require.Len(t, chars, 2)
	assert.Equal(t, "2a37", chars[0].UUID())
	assert.Equal(t, "2a38", chars[1].UUID())
	assert.Equal(t, "180d", chars[0].ServiceUUID())

	char, state := rec.characteristic("2a37")
	require.NotNil(t, char)
	assert.Equal(t, StateReady, state)
	assert.Equal(t, CapNotify, char.Capabilities())

	// Lookup accepts dashed and uppercase forms.
	byForm, ok := services[1].Characteristic("2A38")
	require.True(t, ok)
	assert.Equal(t, "2a38", byForm.UUID())
}

func TestServicesSnapshotNilUnlessReady(t *testing.T) {
	rec := newConnectionRecord("AA:BB:CC:DD:EE:FF")
	rec.installProfile([]RemoteService{{UUID: "ffe0"}})

	assert.Nil(t, rec.servicesSnapshot(), "not ready yet")

	rec.state = StateReady
	assert.NotNil(t, rec.servicesSnapshot())

	rec.state = StateDisconnected
	assert.Nil(t, rec.servicesSnapshot(), "disconnected again")
}

func TestCharacteristicValueIsACopy(t *testing.T) {
	char := &Characteristic{uuid: "2a38"}
	char.setValue([]byte{1, 2, 3})

	v := char.Value()
	v[0] = 0xFF
	assert.Equal(t, []byte{1, 2, 3}, char.Value())
}

func TestRegistryObtainLookupDrop(t *testing.T) {
	r := newRegistry(quietLogger())

	rec := r.obtain("AA")
	again := r.obtain("AA")
	assert.Same(t, rec, again)

	got, ok := r.lookup("AA")
	require.True(t, ok)
	assert.Same(t, rec, got)

	assert.ElementsMatch(t, []string{"AA"}, r.addresses())

	r.drop("AA")
	_, ok = r.lookup("AA")
	assert.False(t, ok)
}

func TestNotificationStateTracking(t *testing.T) {
	rec := newConnectionRecord("AA")

	assert.False(t, rec.isNotifying("2a37"))
	rec.setNotifying("2a37", true)
	assert.True(t, rec.isNotifying("2A37"), "lookup normalizes")
	rec.setNotifying("2a37", false)
	assert.False(t, rec.isNotifying("2a37"))
}
