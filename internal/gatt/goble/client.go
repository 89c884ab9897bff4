// Package goble implements the gatt.Transport interface on top of
// github.com/go-ble/ble.
package goble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
	"github.com/sirupsen/logrus"

	"github.com/srg/blectl/internal/gatt"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests).
var DeviceFactory = func() (ble.Device, error) {
	dev, err := darwin.NewDevice()
	if err != nil {
		// Wrap Bluetooth state errors with clearer messages
		if strings.Contains(err.Error(), "central manager has invalid state") {
			if strings.Contains(err.Error(), "have=4") { // StatePoweredOff
				return nil, fmt.Errorf("Bluetooth is turned off - please enable Bluetooth and retry")
			}
			return nil, fmt.Errorf("Bluetooth is not ready - %w", err)
		}
		return nil, err
	}
	return dev, nil
}

// Transport dials go-ble clients. Safe for concurrent use.
type Transport struct {
	logger *logrus.Logger

	mu          sync.Mutex
	initialized bool
}

// NewTransport creates a go-ble backed transport.
func NewTransport(logger *logrus.Logger) *Transport {
	if logger == nil {
		logger = logrus.New()
	}
	return &Transport{logger: logger}
}

// ensureDevice creates and installs the default ble.Device once.
func (t *Transport) ensureDevice() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.initialized {
		return nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		return fmt.Errorf("failed to create BLE device: %w", err)
	}
	ble.SetDefaultDevice(dev)
	t.initialized = true
	return nil
}

// Dial connects to the peripheral at addr and returns a live client.
func (t *Transport) Dial(ctx context.Context, addr string) (gatt.Client, error) {
	if err := t.ensureDevice(); err != nil {
		return nil, err
	}

	cl, err := ble.Dial(ctx, ble.NewAddr(addr))
	if err != nil {
		return nil, err
	}

	return &client{
		client:  cl,
		logger:  t.logger,
		handles: make(map[string]*ble.Characteristic),
	}, nil
}

// client adapts ble.Client to gatt.Client. Characteristic handles are
// indexed by normalized UUID during discovery.
type client struct {
	client ble.Client
	logger *logrus.Logger

	mu      sync.RWMutex
	handles map[string]*ble.Characteristic
}

func (c *client) DiscoverServices() ([]gatt.RemoteService, error) {
	profile, err := c.client.DiscoverProfile(true)
	if err != nil {
		return nil, err
	}

	handles := make(map[string]*ble.Characteristic)
	services := make([]gatt.RemoteService, 0, len(profile.Services))
	for _, svc := range profile.Services {
		svcUUID := gatt.NormalizeUUID(svc.UUID.String())
		remote := gatt.RemoteService{UUID: svcUUID}
		for _, char := range svc.Characteristics {
			charUUID := gatt.NormalizeUUID(char.UUID.String())
			c.logger.WithFields(logrus.Fields{
				"service_uuid": svcUUID,
				"char_uuid":    charUUID,
			}).Debug("Found characteristic")
			handles[charUUID] = char
			remote.Characteristics = append(remote.Characteristics, gatt.RemoteCharacteristic{
				UUID:         charUUID,
				Capabilities: capabilitiesFrom(char.Property),
			})
		}
		services = append(services, remote)
	}

	c.mu.Lock()
	c.handles = handles
	c.mu.Unlock()
	return services, nil
}

func (c *client) handle(charUUID string) (*ble.Characteristic, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.handles[gatt.NormalizeUUID(charUUID)]
	if !ok {
		return nil, fmt.Errorf("characteristic %q not discovered", charUUID)
	}
	return h, nil
}

func (c *client) Read(charUUID string) ([]byte, error) {
	h, err := c.handle(charUUID)
	if err != nil {
		return nil, err
	}
	return c.client.ReadCharacteristic(h)
}

func (c *client) Write(charUUID string, data []byte, withoutResponse bool) error {
	h, err := c.handle(charUUID)
	if err != nil {
		return err
	}
	return c.client.WriteCharacteristic(h, data, withoutResponse)
}

func (c *client) Subscribe(charUUID string, indicate bool, handler func([]byte)) error {
	h, err := c.handle(charUUID)
	if err != nil {
		return err
	}
	return c.client.Subscribe(h, indicate, handler)
}

func (c *client) Unsubscribe(charUUID string, indicate bool) error {
	h, err := c.handle(charUUID)
	if err != nil {
		return err
	}
	return c.client.Unsubscribe(h, indicate)
}

func (c *client) ExchangeMTU(mtu int) (int, error) {
	return c.client.ExchangeMTU(mtu)
}

func (c *client) Disconnected() <-chan struct{} {
	return c.client.Disconnected()
}

func (c *client) CancelConnection() error {
	return c.client.CancelConnection()
}

// capabilitiesFrom maps ble.Property bit flags to the capability set used
// by the session layer.
func capabilitiesFrom(p ble.Property) gatt.Capability {
	var caps gatt.Capability
	if p&ble.CharRead != 0 {
		caps |= gatt.CapRead
	}
	if p&ble.CharWrite != 0 {
		caps |= gatt.CapWrite
	}
	if p&ble.CharWriteNR != 0 {
		caps |= gatt.CapWriteWithoutResponse
	}
	if p&ble.CharNotify != 0 {
		caps |= gatt.CapNotify
	}
	if p&ble.CharIndicate != 0 {
		caps |= gatt.CapIndicate
	}
	return caps
}
