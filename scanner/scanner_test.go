package scanner

import (
	"io"
	"testing"
	"time"

	blelib "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdvertisement implements blelib.Advertisement for filter tests.
type fakeAdvertisement struct {
	addr        string
	name        string
	rssi        int
	txPower     int
	connectable bool
	services    []blelib.UUID
}

func (a *fakeAdvertisement) LocalName() string              { return a.name }
func (a *fakeAdvertisement) ManufacturerData() []byte       { return nil }
func (a *fakeAdvertisement) ServiceData() []blelib.ServiceData {
	return nil
}
func (a *fakeAdvertisement) Services() []blelib.UUID         { return a.services }
func (a *fakeAdvertisement) OverflowService() []blelib.UUID  { return nil }
func (a *fakeAdvertisement) TxPowerLevel() int               { return a.txPower }
func (a *fakeAdvertisement) Connectable() bool               { return a.connectable }
func (a *fakeAdvertisement) SolicitedService() []blelib.UUID { return nil }
func (a *fakeAdvertisement) RSSI() int                       { return a.rssi }
func (a *fakeAdvertisement) Addr() blelib.Addr               { return blelib.NewAddr(a.addr) }

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestScanner(t *testing.T, opts *ScanOptions) *Scanner {
	t.Helper()
	s, err := NewScanner(quietLogger())
	require.NoError(t, err)
	s.scanOptions = opts
	return s
}

func TestNewScanner(t *testing.T) {
	t.Run("creates scanner with provided logger", func(t *testing.T) {
		s, err := NewScanner(quietLogger())
		assert.NoError(t, err)
		assert.NotNil(t, s)
	})

	t.Run("creates scanner with nil logger", func(t *testing.T) {
		s, err := NewScanner(nil)
		assert.NoError(t, err)
		assert.NotNil(t, s)
	})
}

func TestDefaultScanOptions(t *testing.T) {
	opts := DefaultScanOptions()

	assert.Equal(t, 10*time.Second, opts.Duration)
	assert.True(t, opts.DuplicateFilter)
	assert.Nil(t, opts.ServiceUUIDs)
	assert.Nil(t, opts.AllowList)
	assert.Nil(t, opts.BlockList)
}

func TestShouldIncludeDevice(t *testing.T) {
	adv := &fakeAdvertisement{
		addr:     "aa:bb:cc:dd:ee:ff",
		services: []blelib.UUID{blelib.UUID16(0x180F)},
	}

	tests := []struct {
		name string
		opts *ScanOptions
		want bool
	}{
		{"no filters", &ScanOptions{}, true},
		{"on block list", &ScanOptions{BlockList: []string{"aa:bb:cc:dd:ee:ff"}}, false},
		{"on allow list", &ScanOptions{AllowList: []string{"aa:bb:cc:dd:ee:ff"}}, true},
		{"not on allow list", &ScanOptions{AllowList: []string{"11:22:33:44:55:66"}}, false},
		{"matching service", &ScanOptions{ServiceUUIDs: []blelib.UUID{blelib.UUID16(0x180F)}}, true},
		{"non-matching service", &ScanOptions{ServiceUUIDs: []blelib.UUID{blelib.UUID16(0x1234)}}, false},
		{
			"block list wins over allow list",
			&ScanOptions{
				AllowList: []string{"aa:bb:cc:dd:ee:ff"},
				BlockList: []string{"aa:bb:cc:dd:ee:ff"},
			},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestScanner(t, tt.opts)
			assert.Equal(t, tt.want, s.shouldIncludeDevice(adv, tt.opts))
		})
	}
}

func TestHandleAdvertisementTracksDevices(t *testing.T) {
	s := newTestScanner(t, &ScanOptions{})

	first := &fakeAdvertisement{
		addr:        "aa:bb:cc:dd:ee:ff",
		name:        "Pad Device",
		rssi:        -45,
		txPower:     11,
		connectable: true,
		services:    []blelib.UUID{blelib.UUID16(0x180F)},
	}
	s.handleAdvertisement(first)

	dev, ok := s.devices.Get("aa:bb:cc:dd:ee:ff")
	require.True(t, ok)
	assert.Equal(t, "Pad Device", dev.Name)
	assert.Equal(t, -45, dev.RSSI)
	assert.True(t, dev.Connectable)
	assert.Equal(t, 1, dev.AdvCount)
	assert.False(t, dev.LastSeen.IsZero())

	select {
	case ev := <-s.Events():
		assert.Equal(t, EventNew, ev.Type)
		assert.Equal(t, "aa:bb:cc:dd:ee:ff", ev.DeviceInfo.Address)
	default:
		t.Fatal("expected a new-device event")
	}

	// A scan response without a name must not erase the known one.
	s.handleAdvertisement(&fakeAdvertisement{addr: "aa:bb:cc:dd:ee:ff", rssi: -50})

	dev, _ = s.devices.Get("aa:bb:cc:dd:ee:ff")
	assert.Equal(t, "Pad Device", dev.Name)
	assert.Equal(t, -50, dev.RSSI)
	assert.Equal(t, 2, dev.AdvCount)

	select {
	case ev := <-s.Events():
		assert.Equal(t, EventUpdated, ev.Type)
	default:
		t.Fatal("expected an updated-device event")
	}
}

func TestHandleAdvertisementRespectsFilters(t *testing.T) {
	opts := &ScanOptions{BlockList: []string{"aa:bb:cc:dd:ee:ff"}}
	s := newTestScanner(t, opts)

	s.handleAdvertisement(&fakeAdvertisement{addr: "aa:bb:cc:dd:ee:ff"})
	s.handleAdvertisement(&fakeAdvertisement{addr: "11:22:33:44:55:66"})

	assert.Equal(t, 1, s.devices.Len())
	_, ok := s.devices.Get("11:22:33:44:55:66")
	assert.True(t, ok)
}
