// Package gatttest provides a scripted in-memory gatt.Transport for tests:
// peripherals are declared builder-style with services, characteristics and
// canned values, and the fake records every operation the session layer
// issues so tests can assert on ordering, payloads and concurrency.
package gatttest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/srg/blectl/internal/gatt"
)

// Characteristic is a scripted characteristic on a fake peripheral.
type Characteristic struct {
	UUID  string
	Caps  gatt.Capability
	Value []byte

	ReadErr      error
	WriteErr     error
	SubscribeErr error
}

type service struct {
	uuid  string
	chars []*Characteristic
}

// Peripheral is a scripted remote device. Build it with WithService /
// WithCharacteristic, hand it to NewTransport, then use Push, DropLink and
// the recorded-state accessors from the test body.
type Peripheral struct {
	addr string

	// DialErr makes every Dial attempt fail.
	DialErr error
	// DiscoverErr makes service discovery fail after a successful dial.
	DiscoverErr error
	// OperationDelay is applied inside every read/write/subscribe to widen
	// race windows in serialization tests.
	OperationDelay time.Duration

	mu          sync.Mutex
	services    []*service
	writes      map[string][][]byte
	handlers    map[string]func([]byte)
	startOrder  []string
	inFlight    int
	maxInFlight int
	mtu         int
	conn        *conn
}

// NewPeripheral creates an empty fake peripheral reachable at addr.
func NewPeripheral(addr string) *Peripheral {
	return &Peripheral{
		addr:     addr,
		writes:   make(map[string][][]byte),
		handlers: make(map[string]func([]byte)),
		mtu:      23,
	}
}

// WithService appends a service; subsequent WithCharacteristic calls attach
// to it.
func (p *Peripheral) WithService(uuid string) *Peripheral {
	p.services = append(p.services, &service{uuid: gatt.NormalizeUUID(uuid)})
	return p
}

// WithCharacteristic adds a characteristic to the last added service.
func (p *Peripheral) WithCharacteristic(uuid string, caps gatt.Capability, value []byte) *Peripheral {
	if len(p.services) == 0 {
		panic("gatttest: WithCharacteristic called before WithService")
	}
	svc := p.services[len(p.services)-1]
	svc.chars = append(svc.chars, &Characteristic{
		UUID:  gatt.NormalizeUUID(uuid),
		Caps:  caps,
		Value: value,
	})
	return p
}

// WithMTU sets the MTU granted by ExchangeMTU.
func (p *Peripheral) WithMTU(mtu int) *Peripheral {
	p.mtu = mtu
	return p
}

// Characteristic returns the scripted characteristic by UUID, nil if absent.
func (p *Peripheral) Characteristic(uuid string) *Characteristic {
	norm := gatt.NormalizeUUID(uuid)
	for _, svc := range p.services {
		for _, ch := range svc.chars {
			if ch.UUID == norm {
				return ch
			}
		}
	}
	return nil
}

// Writes returns the payloads written to the characteristic, in order.
func (p *Peripheral) Writes(uuid string) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	src := p.writes[gatt.NormalizeUUID(uuid)]
	out := make([][]byte, len(src))
	copy(out, src)
	return out
}

// StartOrder returns "kind:uuid" markers in the order operations started.
func (p *Peripheral) StartOrder() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.startOrder))
	copy(out, p.startOrder)
	return out
}

// MaxInFlight returns the highest number of operations observed running
// concurrently against this peripheral.
func (p *Peripheral) MaxInFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxInFlight
}

// Subscribed reports whether a notification handler is currently installed
// for the characteristic.
func (p *Peripheral) Subscribed(uuid string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.handlers[gatt.NormalizeUUID(uuid)]
	return ok
}

// Push delivers a notification value to the installed handler, as the real
// stack would. Returns false when nothing is subscribed.
func (p *Peripheral) Push(uuid string, data []byte) bool {
	p.mu.Lock()
	handler := p.handlers[gatt.NormalizeUUID(uuid)]
	p.mu.Unlock()
	if handler == nil {
		return false
	}
	handler(data)
	return true
}

// DropLink simulates spontaneous link loss.
func (p *Peripheral) DropLink() {
	p.mu.Lock()
	c := p.conn
	p.mu.Unlock()
	if c != nil {
		c.drop()
	}
}

func (p *Peripheral) begin(marker string) {
	p.mu.Lock()
	p.startOrder = append(p.startOrder, marker)
	p.inFlight++
	if p.inFlight > p.maxInFlight {
		p.maxInFlight = p.inFlight
	}
	p.mu.Unlock()
	if p.OperationDelay > 0 {
		time.Sleep(p.OperationDelay)
	}
}

func (p *Peripheral) end() {
	p.mu.Lock()
	p.inFlight--
	p.mu.Unlock()
}

// Transport is a gatt.Transport serving fake peripherals by address.
type Transport struct {
	mu          sync.Mutex
	peripherals map[string]*Peripheral
}

// NewTransport creates a transport serving the given peripherals.
func NewTransport(peripherals ...*Peripheral) *Transport {
	t := &Transport{peripherals: make(map[string]*Peripheral)}
	for _, p := range peripherals {
		t.peripherals[p.addr] = p
	}
	return t
}

// Add registers another peripheral.
func (t *Transport) Add(p *Peripheral) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peripherals[p.addr] = p
}

// Dial implements gatt.Transport.
func (t *Transport) Dial(ctx context.Context, addr string) (gatt.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	p, ok := t.peripherals[addr]
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no peripheral at %q", addr)
	}
	if p.DialErr != nil {
		return nil, p.DialErr
	}

	c := &conn{p: p, closed: make(chan struct{})}
	p.mu.Lock()
	p.conn = c
	p.mu.Unlock()
	return c, nil
}

// conn is one live link to a fake peripheral.
type conn struct {
	p    *Peripheral
	once sync.Once

	closed chan struct{}
}

func (c *conn) drop() {
	c.once.Do(func() { close(c.closed) })
}

func (c *conn) DiscoverServices() ([]gatt.RemoteService, error) {
	if c.p.DiscoverErr != nil {
		return nil, c.p.DiscoverErr
	}
	out := make([]gatt.RemoteService, 0, len(c.p.services))
	for _, svc := range c.p.services {
		remote := gatt.RemoteService{UUID: svc.uuid}
		for _, ch := range svc.chars {
			remote.Characteristics = append(remote.Characteristics, gatt.RemoteCharacteristic{
				UUID:         ch.UUID,
				Capabilities: ch.Caps,
			})
		}
		out = append(out, remote)
	}
	return out, nil
}

func (c *conn) Read(charUUID string) ([]byte, error) {
	c.p.begin("read:" + gatt.NormalizeUUID(charUUID))
	defer c.p.end()

	ch := c.p.Characteristic(charUUID)
	if ch == nil {
		return nil, fmt.Errorf("unknown characteristic %q", charUUID)
	}
	if ch.ReadErr != nil {
		return nil, ch.ReadErr
	}
	out := make([]byte, len(ch.Value))
	copy(out, ch.Value)
	return out, nil
}

func (c *conn) Write(charUUID string, data []byte, _ bool) error {
	norm := gatt.NormalizeUUID(charUUID)
	c.p.begin("write:" + norm)
	defer c.p.end()

	ch := c.p.Characteristic(norm)
	if ch == nil {
		return fmt.Errorf("unknown characteristic %q", charUUID)
	}
	if ch.WriteErr != nil {
		return ch.WriteErr
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	c.p.mu.Lock()
	c.p.writes[norm] = append(c.p.writes[norm], buf)
	c.p.mu.Unlock()
	ch.Value = buf
	return nil
}

func (c *conn) Subscribe(charUUID string, _ bool, handler func([]byte)) error {
	norm := gatt.NormalizeUUID(charUUID)
	c.p.begin("subscribe:" + norm)
	defer c.p.end()

	ch := c.p.Characteristic(norm)
	if ch == nil {
		return fmt.Errorf("unknown characteristic %q", charUUID)
	}
	if ch.SubscribeErr != nil {
		return ch.SubscribeErr
	}
	c.p.mu.Lock()
	c.p.handlers[norm] = handler
	c.p.mu.Unlock()
	return nil
}

func (c *conn) Unsubscribe(charUUID string, _ bool) error {
	norm := gatt.NormalizeUUID(charUUID)
	c.p.begin("unsubscribe:" + norm)
	defer c.p.end()

	c.p.mu.Lock()
	delete(c.p.handlers, norm)
	c.p.mu.Unlock()
	return nil
}

func (c *conn) ExchangeMTU(int) (int, error) {
	return c.p.mtu, nil
}

func (c *conn) Disconnected() <-chan struct{} {
	return c.closed
}

func (c *conn) CancelConnection() error {
	c.drop()
	return nil
}
