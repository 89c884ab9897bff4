package gatt

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Options configures a Session.
type Options struct {
	// ConnectTimeout bounds the dial phase of Connect.
	ConnectTimeout time.Duration

	// RequestMTU, when > 0, is negotiated right after discovery and
	// surfaced via an MTU-changed event.
	RequestMTU int

	// EventBuffer is the dispatch channel capacity.
	EventBuffer int

	// EventHistory is the size of the recent-events ring.
	EventHistory uint32

	// CommandCharacteristic is the UUID of the single-byte command
	// characteristic used by PerformAction.
	CommandCharacteristic string
}

// DefaultOptions returns the options used for zero fields.
func DefaultOptions() Options {
	return Options{
		ConnectTimeout:        30 * time.Second,
		EventBuffer:           256,
		EventHistory:          512,
		CommandCharacteristic: "ffe1",
	}
}

// Session is the top-level GATT client facade: it owns the connection
// registry, the per-device operation queues and the event dispatcher.
// All characteristic operations are fire-and-forget; immediate validation
// failures are returned synchronously, everything else surfaces as events.
// A single Session may drive multiple devices concurrently; operations for
// different devices never contend.
type Session struct {
	transport  Transport
	opts       Options
	logger     *logrus.Logger
	registry   *Registry
	dispatcher *Dispatcher
}

// NewSession creates a session on top of the given transport.
func NewSession(transport Transport, opts Options, logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.New()
	}
	def := DefaultOptions()
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = def.ConnectTimeout
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = def.EventBuffer
	}
	if opts.EventHistory == 0 {
		opts.EventHistory = def.EventHistory
	}
	if opts.CommandCharacteristic == "" {
		opts.CommandCharacteristic = def.CommandCharacteristic
	}
	opts.CommandCharacteristic = NormalizeUUID(opts.CommandCharacteristic)

	return &Session{
		transport:  transport,
		opts:       opts,
		logger:     logger,
		registry:   newRegistry(logger),
		dispatcher: newDispatcher(opts.EventBuffer, opts.EventHistory, logger),
	}
}

// RegisterListener adds a listener to the event dispatcher.
func (s *Session) RegisterListener(l *Listener) { s.dispatcher.Register(l) }

// UnregisterListener removes a listener from the event dispatcher.
func (s *Session) UnregisterListener(l *Listener) { s.dispatcher.Unregister(l) }

// Events returns a bounded drop-oldest stream of all dispatched events.
func (s *Session) Events() <-chan Event { return s.dispatcher.Stream() }

// RecentEvents drains and returns the buffered recent events, oldest first.
func (s *Session) RecentEvents() []Event { return s.dispatcher.DrainRecent() }

// State returns the connection state for addr, StateDisconnected for
// unknown devices.
func (s *Session) State(addr string) ConnectionState {
	rec, ok := s.registry.lookup(addr)
	if !ok {
		return StateDisconnected
	}
	return rec.currentState()
}

// Services returns the discovered services for addr in discovery order,
// nil unless the device is Ready.
func (s *Session) Services(addr string) []*Service {
	rec, ok := s.registry.lookup(addr)
	if !ok {
		return nil
	}
	return rec.servicesSnapshot()
}

// Notifying reports whether the client-side notification state has the
// characteristic subscribed.
func (s *Session) Notifying(addr, charUUID string) bool {
	rec, ok := s.registry.lookup(addr)
	return ok && rec.isNotifying(charUUID)
}

// Connect starts a connection attempt to addr. It returns immediately;
// the outcome arrives as a connection-setup-complete event once discovery
// finished, or a disconnect event carrying the failure. Returns
// ErrAlreadyConnected if an attempt is in progress or established.
func (s *Session) Connect(ctx context.Context, addr string) error {
	rec := s.registry.obtain(addr)
	if !rec.advance(StateDisconnected, StateConnecting) {
		return fmt.Errorf("%w: %s is %s", ErrAlreadyConnected, addr, rec.currentState())
	}

	s.logger.WithField("address", addr).Info("Connecting to BLE device...")
	go s.establish(ctx, rec)
	return nil
}

// establish runs the dial + discovery flow for a record in Connecting
// state. Every early return transitions the record back to Disconnected
// and emits exactly one disconnect event.
func (s *Session) establish(ctx context.Context, rec *connectionRecord) {
	dialCtx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()

	client, err := s.transport.Dial(dialCtx, rec.addr)
	if err != nil {
		s.failEstablish(rec, StateConnecting, fmt.Errorf("failed to connect to device %q: %w", rec.addr, err))
		return
	}

	rec.mu.Lock()
	if rec.state != StateConnecting {
		// Torn down while dialing.
		rec.mu.Unlock()
		_ = client.CancelConnection()
		return
	}
	rec.state = StateDiscovering
	rec.client = client
	rec.mu.Unlock()

	remote, err := client.DiscoverServices()
	if err != nil {
		s.disconnectRecord(rec, &DiscoveryError{Device: rec.addr, Err: err})
		return
	}
	rec.installProfile(remote)

	var q *operationQueue
	q = newOperationQueue(func(op *PendingOperation) { s.execute(rec, q, op) })

	rec.mu.Lock()
	if rec.state != StateDiscovering {
		rec.mu.Unlock()
		q.close()
		_ = client.CancelConnection()
		return
	}
	rec.queue = q
	rec.state = StateReady
	rec.mu.Unlock()

	if s.opts.RequestMTU > 0 {
		if mtu, err := client.ExchangeMTU(s.opts.RequestMTU); err != nil {
			s.logger.WithFields(logrus.Fields{
				"address": rec.addr,
				"error":   err,
			}).Warn("MTU exchange failed")
		} else {
			s.dispatcher.publish(Event{Type: EventMTUChanged, Device: rec.addr, MTU: mtu})
		}
	}

	go s.watchLink(rec, client)

	s.logger.WithFields(logrus.Fields{
		"address":  rec.addr,
		"services": len(remote),
	}).Info("BLE device connected")
	s.dispatcher.publish(Event{Type: EventConnectionSetupComplete, Device: rec.addr})
}

// failEstablish handles a failure before the record owns a client: drop
// back to Disconnected (unless a teardown already did) and emit the
// disconnect event with the cause.
func (s *Session) failEstablish(rec *connectionRecord, from ConnectionState, cause error) {
	if !rec.advance(from, StateDisconnected) {
		return
	}
	s.logger.WithFields(logrus.Fields{
		"address": rec.addr,
		"error":   cause,
	}).Warn("Connection attempt failed")
	s.dispatcher.publish(Event{Type: EventDisconnect, Device: rec.addr, Err: cause})
}

// watchLink waits for the platform stack to report link loss and runs the
// shared disconnect path. After an explicit teardown the record is already
// Disconnected and this is a no-op.
func (s *Session) watchLink(rec *connectionRecord, client Client) {
	<-client.Disconnected()
	if s.disconnectRecord(rec, ErrConnectionClosed) {
		s.logger.WithField("address", rec.addr).Warn("BLE link lost")
	}
}

// disconnectRecord is the single path from any live state to Disconnected.
// It fails every queued operation with ErrConnectionClosed, clears the
// notification state, cancels the link and emits exactly one disconnect
// event. Returns false if the record was already Disconnected.
func (s *Session) disconnectRecord(rec *connectionRecord, cause error) bool {
	rec.mu.Lock()
	if rec.state == StateDisconnected {
		rec.mu.Unlock()
		return false
	}
	rec.state = StateDisconnecting
	client := rec.client
	q := rec.queue
	rec.client = nil
	rec.queue = nil
	rec.notifying = make(map[string]struct{})
	rec.state = StateDisconnected
	rec.mu.Unlock()

	if q != nil {
		for _, op := range q.close() {
			s.fail(op, ErrConnectionClosed)
		}
	}
	if client != nil {
		if err := client.CancelConnection(); err != nil {
			s.logger.WithFields(logrus.Fields{
				"address": rec.addr,
				"error":   err,
			}).Warn("BLE device disconnected with errors")
		}
	}

	s.dispatcher.publish(Event{Type: EventDisconnect, Device: rec.addr, Err: cause})
	return true
}

// Teardown disconnects addr and releases its registry entry. Queued and
// in-flight operations fail with ErrConnectionClosed. Idempotent: a second
// call is a no-op and emits no further events.
func (s *Session) Teardown(addr string) error {
	rec, ok := s.registry.lookup(addr)
	if !ok {
		s.logger.WithField("address", addr).Debug("Teardown of unknown device, nothing to do")
		return nil
	}
	if s.disconnectRecord(rec, nil) {
		s.logger.WithField("address", addr).Info("BLE device disconnected")
	}
	s.registry.drop(addr)
	return nil
}

// Close tears down every tracked device and stops the dispatcher.
func (s *Session) Close() {
	for _, addr := range s.registry.addresses() {
		_ = s.Teardown(addr)
	}
	s.dispatcher.Close()
}

// ReadCharacteristic enqueues a read. The cached value and a
// characteristic-read event are produced on completion.
func (s *Session) ReadCharacteristic(addr, charUUID string) (*PendingOperation, error) {
	return s.submit(addr, charUUID, OpRead, nil, false)
}

// WriteCharacteristic enqueues a write of payload.
func (s *Session) WriteCharacteristic(addr, charUUID string, payload []byte, withoutResponse bool) (*PendingOperation, error) {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	return s.submit(addr, charUUID, OpWrite, buf, withoutResponse)
}

// EnableNotifications enqueues a notification (or indication) subscribe.
func (s *Session) EnableNotifications(addr, charUUID string) (*PendingOperation, error) {
	return s.submit(addr, charUUID, OpEnableNotify, nil, false)
}

// DisableNotifications enqueues a notification (or indication)
// unsubscribe.
func (s *Session) DisableNotifications(addr, charUUID string) (*PendingOperation, error) {
	return s.submit(addr, charUUID, OpDisableNotify, nil, false)
}

// PerformAction encodes the action and writes it to the configured command
// characteristic.
func (s *Session) PerformAction(addr string, a Action) (*PendingOperation, error) {
	return s.WriteCharacteristic(addr, s.opts.CommandCharacteristic, []byte{Encode(a)}, false)
}

// requiredCapability maps an operation to the capability mask of which at
// least one bit must be present.
func requiredCapability(kind OperationKind, withoutResponse bool) Capability {
	switch kind {
	case OpRead:
		return CapRead
	case OpWrite:
		if withoutResponse {
			return CapWriteWithoutResponse
		}
		return CapWrite | CapWriteWithoutResponse
	case OpEnableNotify, OpDisableNotify:
		return CapNotify | CapIndicate
	default:
		return 0
	}
}

// submit validates state and capability, then hands the operation to the
// device queue. Validation failures are returned synchronously and never
// reach the queue.
func (s *Session) submit(addr, charUUID string, kind OperationKind, payload []byte, withoutResponse bool) (*PendingOperation, error) {
	rec, ok := s.registry.lookup(addr)
	if !ok {
		return nil, &SubmissionError{Device: addr, Reason: "device not connected"}
	}

	char, state := rec.characteristic(charUUID)
	if state != StateReady {
		return nil, &SubmissionError{Device: addr, Reason: fmt.Sprintf("device is %s", state)}
	}
	if char == nil {
		return nil, &SubmissionError{Device: addr, Reason: fmt.Sprintf("characteristic %q not found", charUUID)}
	}

	required := requiredCapability(kind, withoutResponse)
	if !char.caps.HasAny(required) {
		return nil, &CapabilityError{
			Device:         addr,
			Characteristic: char.uuid,
			Operation:      kind,
			Required:       required,
		}
	}

	op := newPendingOperation(kind, addr, char.uuid, payload, withoutResponse)

	rec.mu.RLock()
	q := rec.queue
	rec.mu.RUnlock()
	if q == nil {
		return nil, &SubmissionError{Device: addr, Reason: "device is disconnecting"}
	}
	if err := q.enqueue(op); err != nil {
		return nil, &SubmissionError{Device: addr, Reason: "device is disconnecting", Err: err}
	}

	s.logger.WithFields(logrus.Fields{
		"address":   addr,
		"char":      char.uuid,
		"operation": kind.String(),
		"op_id":     op.id,
	}).Debug("Operation enqueued")
	return op, nil
}

// fail resolves an operation with err and surfaces it as an error event.
func (s *Session) fail(op *PendingOperation, err error) {
	op.resolve(OperationResult{Err: err})
	s.dispatcher.publish(Event{
		Type:           EventError,
		Device:         op.device,
		Characteristic: op.charUUID,
		Err:            err,
		OperationID:    op.id,
	})
}

// execute runs a single operation against the live client. It is only
// ever invoked by the device's queue drain loop, one operation at a time.
func (s *Session) execute(rec *connectionRecord, q *operationQueue, op *PendingOperation) {
	rec.mu.RLock()
	client := rec.client
	rec.mu.RUnlock()
	if client == nil {
		s.fail(op, ErrConnectionClosed)
		return
	}

	char, _ := rec.characteristic(op.charUUID)
	if char == nil {
		s.fail(op, &SubmissionError{Device: op.device, Reason: fmt.Sprintf("characteristic %q vanished", op.charUUID)})
		return
	}

	switch op.kind {
	case OpRead:
		data, err := client.Read(op.charUUID)
		if done := s.settle(q, op, err); done {
			return
		}
		char.setValue(data)
		op.resolve(OperationResult{Value: data})
		s.dispatcher.publish(Event{
			Type:           EventCharacteristicRead,
			Device:         op.device,
			Service:        char.serviceUUID,
			Characteristic: char.uuid,
			Value:          data,
			OperationID:    op.id,
		})

	case OpWrite:
		err := client.Write(op.charUUID, op.payload, op.withoutResponse)
		if done := s.settle(q, op, err); done {
			return
		}
		op.resolve(OperationResult{})
		s.dispatcher.publish(Event{
			Type:           EventCharacteristicWrite,
			Device:         op.device,
			Service:        char.serviceUUID,
			Characteristic: char.uuid,
			Value:          op.payload,
			OperationID:    op.id,
		})

	case OpEnableNotify:
		// Prefer notifications; fall back to indications when that is all
		// the characteristic offers.
		indicate := !char.caps.Has(CapNotify)
		rec.setNotifying(char.uuid, true)
		err := client.Subscribe(op.charUUID, indicate, func(data []byte) {
			s.handleValueChange(rec, char, data)
		})
		if done := s.settle(q, op, err); done {
			rec.setNotifying(char.uuid, false)
			return
		}
		op.resolve(OperationResult{})
		s.dispatcher.publish(Event{
			Type:           EventNotificationsEnabled,
			Device:         op.device,
			Service:        char.serviceUUID,
			Characteristic: char.uuid,
			OperationID:    op.id,
		})

	case OpDisableNotify:
		err := s.unsubscribe(client, char)
		if done := s.settle(q, op, err); done {
			return
		}
		rec.setNotifying(char.uuid, false)
		op.resolve(OperationResult{})
		s.dispatcher.publish(Event{
			Type:           EventNotificationsDisabled,
			Device:         op.device,
			Service:        char.serviceUUID,
			Characteristic: char.uuid,
			OperationID:    op.id,
		})
	}
}

// settle handles the common post-transport outcome: an operation caught by
// a teardown resolves as ErrConnectionClosed, a stack error resolves as a
// failure. Returns true when the operation is finished.
func (s *Session) settle(q *operationQueue, op *PendingOperation, err error) bool {
	if q.isClosed() {
		s.fail(op, ErrConnectionClosed)
		return true
	}
	if err != nil {
		s.fail(op, fmt.Errorf("%s failed: %w", op.kind, err))
		return true
	}
	return false
}

// unsubscribe tries every mode the characteristic supports and fails only
// if all of them fail.
func (s *Session) unsubscribe(client Client, char *Characteristic) error {
	var firstErr error
	attempted := false
	if char.caps.Has(CapNotify) {
		attempted = true
		if err := client.Unsubscribe(char.uuid, false); err == nil {
			return nil
		} else if firstErr == nil {
			firstErr = err
		}
	}
	if char.caps.Has(CapIndicate) {
		attempted = true
		if err := client.Unsubscribe(char.uuid, true); err == nil {
			return nil
		} else if firstErr == nil {
			firstErr = err
		}
	}
	if !attempted {
		return nil
	}
	return firstErr
}

// handleValueChange is the notification/indication delivery path: update
// the cached value and publish a characteristic-changed event. Values
// arriving after the subscription was dropped are ignored.
func (s *Session) handleValueChange(rec *connectionRecord, char *Characteristic, data []byte) {
	if !rec.isNotifying(char.uuid) {
		return
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	char.setValue(buf)
	s.dispatcher.publish(Event{
		Type:           EventCharacteristicChanged,
		Device:         rec.addr,
		Service:        char.serviceUUID,
		Characteristic: char.uuid,
		Value:          buf,
	})
}
