// Package scanner handles BLE device discovery: it collects advertisements
// into a device table and streams new/updated device events.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cornelk/hashmap"
	blelib "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/blectl/internal/gatt/goble"
	"github.com/srg/blectl/internal/ringchan"
)

// ProgressCallback is called when the scan phase changes.
type ProgressCallback func(phase string)

// DeviceEventType marks if the device was newly discovered or updated.
type DeviceEventType int

const (
	EventNew DeviceEventType = iota
	EventUpdated
)

// DeviceInfo is a snapshot of a discovered device.
type DeviceInfo struct {
	Address     string    `json:"address"`
	Name        string    `json:"name"`
	RSSI        int       `json:"rssi"`
	TxPower     int       `json:"txPower"`
	Connectable bool      `json:"connectable"`
	Services    []string  `json:"services"`
	AdvCount    int       `json:"advCount"`
	LastSeen    time.Time `json:"lastSeen"`
}

// DeviceEvent is emitted on the event channel for every advertisement that
// passed the filters.
type DeviceEvent struct {
	Type       DeviceEventType
	DeviceInfo DeviceInfo
}

// ScanOptions configures scanning behavior.
type ScanOptions struct {
	Duration        time.Duration
	DuplicateFilter bool
	ServiceUUIDs    []blelib.UUID
	AllowList       []string
	BlockList       []string
}

// DefaultScanOptions returns default scanning options.
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		Duration:        10 * time.Second,
		DuplicateFilter: true,
	}
}

// Scanner handles BLE device discovery.
type Scanner struct {
	devices *hashmap.Map[string, *DeviceInfo]
	events  *ringchan.RingChannel[DeviceEvent]
	logger  *logrus.Logger

	scanOptions *ScanOptions
}

// NewScanner creates a new BLE scanner.
func NewScanner(logger *logrus.Logger) (*Scanner, error) {
	if logger == nil {
		logger = logrus.New()
	}

	return &Scanner{
		devices: hashmap.New[string, *DeviceInfo](),
		events:  ringchan.New[DeviceEvent](100),
		logger:  logger,
	}, nil
}

// Scan performs BLE discovery with the provided options. It blocks until the
// duration elapses or ctx is done, then returns the device table keyed by
// address.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions, progressCallback ProgressCallback) (map[string]DeviceInfo, error) {
	s.devices = hashmap.New[string, *DeviceInfo]()

	if opts == nil {
		opts = DefaultScanOptions()
	}
	if progressCallback == nil {
		progressCallback = func(string) {}
	}

	s.logger.WithField("duration", opts.Duration).Info("Starting BLE scan...")
	progressCallback("Scanning")

	dev, err := goble.DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}

	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	s.scanOptions = opts
	defer func() {
		s.scanOptions = nil
	}()
	err = dev.Scan(ctx, opts.DuplicateFilter, s.handleAdvertisement)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	s.logger.WithField("device_count", s.devices.Len()).Info("BLE scan completed")
	progressCallback("Processing results")

	devices := make(map[string]DeviceInfo, s.devices.Len())
	s.devices.Range(func(key string, value *DeviceInfo) bool {
		devices[key] = *value
		return true
	})

	return devices, nil
}

// handleAdvertisement updates an existing device entry or adds a new one.
func (s *Scanner) handleAdvertisement(adv blelib.Advertisement) {
	addr := adv.Addr().String()

	dev, existing := s.devices.Get(addr)
	if !existing {
		if !s.shouldIncludeDevice(adv, s.scanOptions) {
			return
		}
		dev, existing = s.devices.GetOrInsert(addr, newDeviceInfo(adv))
	}

	event := DeviceEvent{}
	if existing {
		dev.update(adv)
		event.Type = EventUpdated
	} else {
		s.logger.WithFields(logrus.Fields{
			"device":  dev.Name,
			"address": dev.Address,
			"rssi":    dev.RSSI,
		}).Info("Discovered new device")
		event.Type = EventNew
	}
	event.DeviceInfo = *dev

	s.events.ForceSend(event)
}

// Events returns a read-only channel of device events. Slow consumers lose
// the oldest events first.
func (s *Scanner) Events() <-chan DeviceEvent {
	return s.events.C()
}

func newDeviceInfo(adv blelib.Advertisement) *DeviceInfo {
	d := &DeviceInfo{Address: adv.Addr().String()}
	d.update(adv)
	return d
}

// update refreshes the snapshot from a fresh advertisement. Scan responses
// may omit fields the initial advertisement carried, so empty values never
// overwrite known ones.
func (d *DeviceInfo) update(adv blelib.Advertisement) {
	if name := adv.LocalName(); name != "" {
		d.Name = name
	}
	d.RSSI = adv.RSSI()
	d.TxPower = adv.TxPowerLevel()
	d.Connectable = adv.Connectable()
	if services := adv.Services(); len(services) > 0 {
		d.Services = d.Services[:0]
		for _, u := range services {
			d.Services = append(d.Services, u.String())
		}
	}
	d.AdvCount++
	d.LastSeen = time.Now()
}

// shouldIncludeDevice applies the allow/block/service filters.
func (s *Scanner) shouldIncludeDevice(adv blelib.Advertisement, opts *ScanOptions) bool {
	addr := adv.Addr().String()

	for _, blocked := range opts.BlockList {
		if addr == blocked {
			return false
		}
	}

	if len(opts.AllowList) > 0 {
		allowed := false
		for _, a := range opts.AllowList {
			if addr == a {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if len(opts.ServiceUUIDs) > 0 {
		hasRequired := false
		for _, required := range opts.ServiceUUIDs {
			for _, advUUID := range adv.Services() {
				if required.Equal(advUUID) {
					hasRequired = true
					break
				}
			}
			if hasRequired {
				break
			}
		}
		if !hasRequired {
			return false
		}
	}

	return true
}
