package gatt

import (
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ConnectionState is the lifecycle state of a device record:
// Disconnected → Connecting → Discovering → Ready → Disconnecting →
// Disconnected. Any state may drop straight to Disconnected on link loss
// or teardown.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateDiscovering
	StateReady
	StateDisconnecting
)

// String returns the state name.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateDiscovering:
		return "discovering"
	case StateReady:
		return "ready"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// Characteristic is a single addressable data item discovered on a device.
// Its cached value is updated exclusively by the session's completion path
// (reads and notifications); everyone else observes a snapshot.
type Characteristic struct {
	uuid        string
	serviceUUID string
	caps        Capability

	mu    sync.RWMutex
	value []byte
}

// UUID returns the normalized characteristic UUID.
func (c *Characteristic) UUID() string { return c.uuid }

// ServiceUUID returns the normalized UUID of the owning service.
func (c *Characteristic) ServiceUUID() string { return c.serviceUUID }

// Capabilities returns the capability set derived from the
// platform-reported properties.
func (c *Characteristic) Capabilities() Capability { return c.caps }

// Value returns a copy of the most recent value observed via read or
// notification, nil if none was observed yet.
func (c *Characteristic) Value() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.value == nil {
		return nil
	}
	out := make([]byte, len(c.value))
	copy(out, c.value)
	return out
}

func (c *Characteristic) setValue(data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)
	c.mu.Lock()
	c.value = buf
	c.mu.Unlock()
}

// Service is a discovered group of characteristics, preserved in the order
// the stack reported them.
type Service struct {
	uuid  string
	chars *orderedmap.OrderedMap[string, *Characteristic]
}

// UUID returns the normalized service UUID.
func (s *Service) UUID() string { return s.uuid }

// Characteristics returns the characteristics in discovery order.
func (s *Service) Characteristics() []*Characteristic {
	out := make([]*Characteristic, 0, s.chars.Len())
	for pair := s.chars.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Characteristic looks up a characteristic by UUID (any form).
func (s *Service) Characteristic(uuid string) (*Characteristic, bool) {
	return s.chars.Get(NormalizeUUID(uuid))
}

// connectionRecord is the per-device source of truth: state, live client,
// discovered services and client-side notification state. Services are
// replaced wholesale on rediscovery.
type connectionRecord struct {
	addr string

	mu        sync.RWMutex
	state     ConnectionState
	client    Client
	queue     *operationQueue
	services  *orderedmap.OrderedMap[string, *Service]
	charIndex map[string]*Characteristic
	notifying map[string]struct{}
}

func newConnectionRecord(addr string) *connectionRecord {
	return &connectionRecord{
		addr:      addr,
		state:     StateDisconnected,
		notifying: make(map[string]struct{}),
	}
}

// advance moves the state machine from → to. Returns false without
// touching anything if the record is not in the expected state (e.g. a
// teardown raced the connect flow).
func (rec *connectionRecord) advance(from, to ConnectionState) bool {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.state != from {
		return false
	}
	rec.state = to
	return true
}

func (rec *connectionRecord) currentState() ConnectionState {
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	return rec.state
}

// installProfile replaces the record's services wholesale and indexes
// characteristics for flat lookup.
func (rec *connectionRecord) installProfile(remote []RemoteService) {
	services := orderedmap.New[string, *Service]()
	index := make(map[string]*Characteristic)

	for _, rs := range remote {
		svcUUID := NormalizeUUID(rs.UUID)
		svc, ok := services.Get(svcUUID)
		if !ok {
			svc = &Service{uuid: svcUUID, chars: orderedmap.New[string, *Characteristic]()}
			services.Set(svcUUID, svc)
		}
		for _, rc := range rs.Characteristics {
			charUUID := NormalizeUUID(rc.UUID)
			char := &Characteristic{
				uuid:        charUUID,
				serviceUUID: svcUUID,
				caps:        rc.Capabilities,
			}
			svc.chars.Set(charUUID, char)
			index[charUUID] = char
		}
	}

	rec.mu.Lock()
	rec.services = services
	rec.charIndex = index
	rec.mu.Unlock()
}

// characteristic returns the characteristic and whether the record is
// Ready to accept operations for it.
func (rec *connectionRecord) characteristic(uuid string) (*Characteristic, ConnectionState) {
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	if rec.charIndex == nil {
		return nil, rec.state
	}
	return rec.charIndex[NormalizeUUID(uuid)], rec.state
}

// servicesSnapshot returns the discovered services in discovery order, nil
// unless the record is Ready.
func (rec *connectionRecord) servicesSnapshot() []*Service {
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	if rec.state != StateReady || rec.services == nil {
		return nil
	}
	out := make([]*Service, 0, rec.services.Len())
	for pair := rec.services.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

func (rec *connectionRecord) setNotifying(charUUID string, on bool) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if on {
		rec.notifying[NormalizeUUID(charUUID)] = struct{}{}
	} else {
		delete(rec.notifying, NormalizeUUID(charUUID))
	}
}

// isNotifying reports the client-side notification state for a
// characteristic. Tracked locally only; there is no reconciliation against
// the peripheral after a reconnect.
func (rec *connectionRecord) isNotifying(charUUID string) bool {
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	_, ok := rec.notifying[NormalizeUUID(charUUID)]
	return ok
}

// Registry tracks live connection records keyed by device address. Records
// for unrelated devices are fully independent; the concurrent map avoids a
// global lock across devices.
type Registry struct {
	records *hashmap.Map[string, *connectionRecord]
	logger  *logrus.Logger
}

func newRegistry(logger *logrus.Logger) *Registry {
	return &Registry{
		records: hashmap.New[string, *connectionRecord](),
		logger:  logger,
	}
}

// obtain returns the record for addr, creating it if needed.
func (r *Registry) obtain(addr string) *connectionRecord {
	rec, _ := r.records.GetOrInsert(addr, newConnectionRecord(addr))
	return rec
}

// lookup returns the record for addr if one exists.
func (r *Registry) lookup(addr string) (*connectionRecord, bool) {
	return r.records.Get(addr)
}

// drop releases the registry entry for addr.
func (r *Registry) drop(addr string) {
	r.records.Del(addr)
}

// addresses returns the addresses of all tracked records.
func (r *Registry) addresses() []string {
	addrs := make([]string, 0, r.records.Len())
	r.records.Range(func(addr string, _ *connectionRecord) bool {
		addrs = append(addrs, addr)
		return true
	})
	return addrs
}
