// Package fake provides an in-memory display that implements device.ConnectedSession.
//
// A Peripheral is described by a YAML Fixture. Writes to writable characteristics are
// recorded and reassembled into length-prefixed blocks; each block is answered by a
// Responder (by default an emulation of the panel's acknowledgement behaviour) whose
// notifications are delivered on the subscribed notify characteristic.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/underwhelmingperformance/idm-sub000/internal/device"
)

// DefaultMaxWrite is used when a fixture leaves max_write unset.
const DefaultMaxWrite = 20

// DefaultNotificationBuffer is the notification channel capacity.
const DefaultNotificationBuffer = 256

// WriteRecord is one transport write observed by the Peripheral.
type WriteRecord struct {
	UUID         string
	Data         []byte
	WithResponse bool
}

// Option configures a Peripheral.
type Option func(*Peripheral)

// WithResponder replaces the built-in display emulation.
func WithResponder(r Responder) Option {
	return func(p *Peripheral) { p.responder = r }
}

// WithWriteError makes the n-th write (1-based) fail when fn returns an error.
func WithWriteError(fn func(n int, rec WriteRecord) error) Option {
	return func(p *Peripheral) { p.writeErr = fn }
}

// WithSubscribeError makes every Subscribe fail.
func WithSubscribeError(err error) Option {
	return func(p *Peripheral) { p.subscribeErr = err }
}

// WithUnsubscribeError makes every Unsubscribe fail.
func WithUnsubscribeError(err error) Option {
	return func(p *Peripheral) { p.unsubscribeErr = err }
}

// WithDisconnectError makes Disconnect fail.
func WithDisconnectError(err error) Option {
	return func(p *Peripheral) { p.disconnectErr = err }
}

// WithDisconnectDelay makes Disconnect block for d or until its context ends.
func WithDisconnectDelay(d time.Duration) Option {
	return func(p *Peripheral) { p.disconnectDelay = d }
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(p *Peripheral) { p.logger = logger }
}

// Peripheral is an emulated display.
type Peripheral struct {
	mu sync.Mutex

	fixture  *Fixture
	services []device.ServiceInfo
	props    map[string]device.Properties
	values   map[string][]byte
	maxWrite int

	notifications chan device.RawNotification
	closeOnce     sync.Once
	connected     bool

	subscribed      map[string]bool
	pendingQueued   bool
	subscribeCalls  int
	unsubscribeCall int

	assembler *blockAssembler
	emulator  *displayEmulator
	responder Responder

	writes  []WriteRecord
	blocks  [][]byte
	dropped int

	writeErr        func(n int, rec WriteRecord) error
	subscribeErr    error
	unsubscribeErr  error
	disconnectErr   error
	disconnectDelay time.Duration

	logger *logrus.Logger
}

var _ device.ConnectedSession = (*Peripheral)(nil)

// New returns a connected Peripheral built from fixture.
func New(fixture *Fixture, opts ...Option) *Peripheral {
	p := &Peripheral{
		fixture:       fixture,
		services:      fixture.serviceInfos(),
		props:         make(map[string]device.Properties),
		values:        make(map[string][]byte),
		maxWrite:      fixture.MaxWrite,
		notifications: make(chan device.RawNotification, DefaultNotificationBuffer),
		connected:     true,
		subscribed:    make(map[string]bool),
		assembler:     newBlockAssembler(DefaultAssemblerCapacity),
		emulator:      &displayEmulator{behavior: fixture.Behavior},
	}
	if p.maxWrite <= 0 {
		p.maxWrite = DefaultMaxWrite
	}
	p.responder = p.emulator.respond

	for _, svc := range fixture.Services {
		for _, c := range svc.Characteristics {
			uuid := device.MustCanonicalUUID(c.UUID)
			props, _ := parseProperties(c.Properties)
			p.props[uuid] |= props
			if len(c.Value) > 0 {
				p.values[uuid] = append([]byte(nil), c.Value...)
			}
		}
	}

	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logrus.New()
	}
	return p
}

// Fixture returns the fixture the Peripheral was built from.
func (p *Peripheral) Fixture() *Fixture { return p.fixture }

// Services implements device.ConnectedSession.
func (p *Peripheral) Services() []device.ServiceInfo {
	return p.services
}

func (p *Peripheral) characteristic(uuid string) (string, device.Properties, error) {
	canonical, err := device.CanonicalUUID(uuid)
	if err != nil {
		return "", 0, err
	}
	props, ok := p.props[canonical]
	if !ok {
		return "", 0, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{canonical}}
	}
	return canonical, props, nil
}

// Read implements device.ConnectedSession.
func (p *Peripheral) Read(_ context.Context, uuid string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return nil, device.ErrNotConnected
	}
	canonical, _, err := p.characteristic(uuid)
	if err != nil {
		return nil, err
	}
	value, ok := p.values[canonical]
	if !ok {
		return nil, device.ErrNoValue
	}
	return append([]byte(nil), value...), nil
}

// Write implements device.ConnectedSession.
func (p *Peripheral) Write(_ context.Context, uuid string, data []byte, withResponse bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return device.ErrNotConnected
	}
	canonical, props, err := p.characteristic(uuid)
	if err != nil {
		return err
	}
	if !props.CanWrite() {
		return fmt.Errorf("characteristic %s is not writable", canonical)
	}

	rec := WriteRecord{UUID: canonical, Data: append([]byte(nil), data...), WithResponse: withResponse}
	if p.writeErr != nil {
		if err := p.writeErr(len(p.writes)+1, rec); err != nil {
			return err
		}
	}
	if limit := p.fixture.Behavior.MaxFragment; limit > 0 && !withResponse && len(data) > limit {
		return fmt.Errorf("write of %d bytes exceeds link limit %d", len(data), limit)
	}
	p.writes = append(p.writes, rec)

	blocks, err := p.assembler.Feed(rec.Data)
	if err != nil {
		return err
	}
	for _, block := range blocks {
		p.blocks = append(p.blocks, block)
		for _, reply := range p.responder(len(p.blocks), block) {
			p.emitLocked(reply)
		}
	}
	return nil
}

// emitLocked sends value on the first subscribed notifying characteristic.
func (p *Peripheral) emitLocked(value []byte) {
	for _, svc := range p.services {
		for _, c := range svc.Characteristics {
			if c.Properties.CanNotify() && p.subscribed[c.UUID] {
				p.sendLocked(device.RawNotification{UUID: c.UUID, Value: value})
				return
			}
		}
	}
	p.dropped++
	p.logger.WithField("value", fmt.Sprintf("% x", value)).Debug("Dropping notification with no subscriber")
}

func (p *Peripheral) sendLocked(n device.RawNotification) {
	if !p.connected {
		return
	}
	select {
	case p.notifications <- n:
	default:
		p.dropped++
		p.logger.WithField("uuid", n.UUID).Warn("Notification buffer full, dropping notification")
	}
}

// Subscribe implements device.ConnectedSession.
func (p *Peripheral) Subscribe(_ context.Context, uuid string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return device.ErrNotConnected
	}
	p.subscribeCalls++
	if p.subscribeErr != nil {
		return p.subscribeErr
	}
	canonical, props, err := p.characteristic(uuid)
	if err != nil {
		return err
	}
	if !props.CanNotify() {
		return fmt.Errorf("characteristic %s does not support notifications", canonical)
	}
	p.subscribed[canonical] = true

	if !p.pendingQueued {
		p.pendingQueued = true
		for _, pending := range p.fixture.Pending {
			p.sendLocked(device.RawNotification{UUID: canonical, Value: append([]byte(nil), pending...)})
		}
	}
	return nil
}

// Unsubscribe implements device.ConnectedSession.
func (p *Peripheral) Unsubscribe(_ context.Context, uuid string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return device.ErrNotConnected
	}
	p.unsubscribeCall++
	if p.unsubscribeErr != nil {
		return p.unsubscribeErr
	}
	canonical, _, err := p.characteristic(uuid)
	if err != nil {
		return err
	}
	delete(p.subscribed, canonical)
	return nil
}

// Notifications implements device.ConnectedSession.
func (p *Peripheral) Notifications() <-chan device.RawNotification {
	return p.notifications
}

// MaxWriteWithoutResponse implements device.ConnectedSession.
func (p *Peripheral) MaxWriteWithoutResponse() int {
	return p.maxWrite
}

// Disconnect implements device.ConnectedSession.
func (p *Peripheral) Disconnect(ctx context.Context) error {
	if p.disconnectDelay > 0 {
		select {
		case <-time.After(p.disconnectDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disconnectErr != nil {
		return p.disconnectErr
	}
	p.dropLinkLocked()
	return nil
}

// Deliver injects a notification as if the display had sent it.
func (p *Peripheral) Deliver(uuid string, value []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sendLocked(device.RawNotification{UUID: device.MustCanonicalUUID(uuid), Value: append([]byte(nil), value...)})
}

// DropLink simulates the display going away.
func (p *Peripheral) DropLink() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dropLinkLocked()
}

func (p *Peripheral) dropLinkLocked() {
	p.connected = false
	p.closeOnce.Do(func() { close(p.notifications) })
}

// Connected reports whether the link is up.
func (p *Peripheral) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Writes returns a copy of every recorded write.
func (p *Peripheral) Writes() []WriteRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]WriteRecord(nil), p.writes...)
}

// Blocks returns every reassembled block.
func (p *Peripheral) Blocks() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.blocks...)
}

// Subscribed reports whether uuid currently has notifications enabled.
func (p *Peripheral) Subscribed(uuid string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.subscribed[device.MustCanonicalUUID(uuid)]
}

// SubscribeCalls returns how many times Subscribe was called.
func (p *Peripheral) SubscribeCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.subscribeCalls
}

// UnsubscribeCalls returns how many times Unsubscribe was called.
func (p *Peripheral) UnsubscribeCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unsubscribeCall
}

// Dropped returns how many notifications had nowhere to go.
func (p *Peripheral) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// PendingBytes reports written bytes not yet forming a complete block.
func (p *Peripheral) PendingBytes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.assembler.Pending()
}
