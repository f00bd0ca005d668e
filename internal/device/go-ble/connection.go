package goble

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/sirupsen/logrus"

	"github.com/underwhelmingperformance/idm-sub000/internal/device"
	"github.com/underwhelmingperformance/idm-sub000/internal/groutine"
)

const (
	// DefaultConnectTimeout bounds dialing and profile discovery.
	DefaultConnectTimeout = 15 * time.Second

	// DefaultNotificationBuffer is the capacity of the overlapped notification ring.
	// When full the oldest notification is overwritten.
	DefaultNotificationBuffer uint32 = 256

	attHeaderSize = 3
	defaultATTMTU = 23
	requestedMTU  = 517
)

// gattClient is the subset of ble.Client the connection relies on.
type gattClient interface {
	DiscoverProfile(force bool) (*ble.Profile, error)
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	CancelConnection() error
}

// ConnectOptions selects the peripheral to connect to. Address wins over NamePrefix.
type ConnectOptions struct {
	Address    string
	NamePrefix string
	Timeout    time.Duration
}

func (o ConnectOptions) describe() string {
	if o.Address != "" {
		return o.Address
	}
	return "name prefix " + o.NamePrefix
}

// Connection is a device.ConnectedSession over a go-ble client.
type Connection struct {
	client   gattClient
	logger   *logrus.Logger
	txMTU    int
	services []device.ServiceInfo
	chars    map[string]*ble.Characteristic

	ring          mpmc.RichOverlappedRingBuffer[device.RawNotification]
	wake          chan struct{}
	notifications chan device.RawNotification

	writeMu    sync.Mutex
	subMu      sync.Mutex
	subscribed map[string]bool

	done      chan struct{}
	closeOnce sync.Once
	pumpDone  <-chan struct{}
}

var _ device.ConnectedSession = (*Connection)(nil)

// Connect dials the peripheral selected by opts, discovers its GATT profile and starts the
// notification pump.
func Connect(ctx context.Context, opts ConnectOptions, logger *logrus.Logger) (*Connection, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if strings.TrimSpace(opts.Address) == "" && strings.TrimSpace(opts.NamePrefix) == "" {
		return nil, errors.New("device address or name prefix is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultConnectTimeout
	}

	dev, err := DeviceFactory()
	if err != nil {
		logger.WithError(err).Error("Failed to create BLE device")
		return nil, fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	ble.SetDefaultDevice(dev)

	connCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	logger.WithFields(logrus.Fields{
		"target":  opts.describe(),
		"timeout": opts.Timeout,
	}).Info("Connecting to BLE device...")

	var client ble.Client
	if opts.Address != "" {
		client, err = ble.Dial(connCtx, ble.NewAddr(opts.Address))
	} else {
		prefix := opts.NamePrefix
		client, err = ble.Connect(connCtx, func(a ble.Advertisement) bool {
			return strings.HasPrefix(a.LocalName(), prefix)
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", opts.describe(), NormalizeError(err))
	}

	txMTU := negotiateMTU(client, logger)

	c, err := newConnection(client, txMTU, logger)
	if err != nil {
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection during profile discovery failure")
		}
		return nil, err
	}

	// CoreBluetooth and the HCI backend both expose a disconnect signal on the client.
	if watcher, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		groutine.Go(context.Background(), "goble-disconnect-monitor", func(context.Context) {
			select {
			case <-watcher.Disconnected():
				logger.Warn("BLE link reported disconnection")
				c.shutdown()
			case <-c.done:
			}
		})
	} else {
		logger.Debug("Client does not expose a Disconnected() channel")
	}

	logger.WithFields(logrus.Fields{
		"target":   opts.describe(),
		"services": len(c.services),
		"tx_mtu":   txMTU,
	}).Info("BLE device connected successfully")
	return c, nil
}

func negotiateMTU(client ble.Client, logger *logrus.Logger) int {
	if exchanger, ok := client.(interface{ ExchangeMTU(int) (int, error) }); ok {
		if mtu, err := exchanger.ExchangeMTU(requestedMTU); err == nil && mtu > 0 {
			return mtu
		} else if err != nil {
			logger.WithError(err).Debug("MTU exchange not supported, using connection MTU")
		}
	}
	if conn := client.Conn(); conn != nil && conn.TxMTU() > 0 {
		return conn.TxMTU()
	}
	return defaultATTMTU
}

// newConnection discovers the profile of an established client.
func newConnection(client gattClient, txMTU int, logger *logrus.Logger) (*Connection, error) {
	if logger == nil {
		logger = logrus.New()
	}

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		return nil, fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}

	c := &Connection{
		client:        client,
		logger:        logger,
		txMTU:         txMTU,
		chars:         make(map[string]*ble.Characteristic),
		ring:          mpmc.NewOverlappedRingBuffer[device.RawNotification](DefaultNotificationBuffer),
		wake:          make(chan struct{}, 1),
		notifications: make(chan device.RawNotification),
		subscribed:    make(map[string]bool),
		done:          make(chan struct{}),
	}
	if err := c.indexProfile(profile); err != nil {
		return nil, err
	}

	c.pumpDone = groutine.GoDone(context.Background(), "goble-notification-pump", c.pump)
	return c, nil
}

func (c *Connection) indexProfile(profile *ble.Profile) error {
	if profile == nil {
		return nil
	}
	for _, svc := range profile.Services {
		svcUUID, err := canonicalUUID(svc.UUID)
		if err != nil {
			return fmt.Errorf("service %s: %w", svc.UUID, err)
		}
		info := device.ServiceInfo{UUID: svcUUID}
		for _, ch := range svc.Characteristics {
			charUUID, err := canonicalUUID(ch.UUID)
			if err != nil {
				return fmt.Errorf("characteristic %s: %w", ch.UUID, err)
			}
			info.Characteristics = append(info.Characteristics, device.CharacteristicInfo{
				UUID:       charUUID,
				Properties: convertProperties(ch.Property),
			})
			if _, dup := c.chars[charUUID]; !dup {
				c.chars[charUUID] = ch
			}
			c.logger.WithFields(logrus.Fields{
				"service_uuid": svcUUID,
				"char_uuid":    charUUID,
				"properties":   convertProperties(ch.Property).String(),
			}).Debug("Found characteristic")
		}
		c.services = append(c.services, info)
	}
	sort.Slice(c.services, func(i, j int) bool { return c.services[i].UUID < c.services[j].UUID })
	return nil
}

// Services returns the discovered services sorted by UUID.
func (c *Connection) Services() []device.ServiceInfo {
	return c.services
}

func (c *Connection) lookup(uuid string) (*ble.Characteristic, error) {
	select {
	case <-c.done:
		return nil, device.ErrNotConnected
	default:
	}
	canonical, err := device.CanonicalUUID(uuid)
	if err != nil {
		return nil, err
	}
	ch, ok := c.chars[canonical]
	if !ok {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{uuid}}
	}
	return ch, nil
}

// Read reads the characteristic value. go-ble reads are not cancellable; ctx is checked
// before the request is issued.
func (c *Connection) Read(ctx context.Context, uuid string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch, err := c.lookup(uuid)
	if err != nil {
		return nil, err
	}
	value, err := c.client.ReadCharacteristic(ch)
	if err != nil {
		return nil, NormalizeError(err)
	}
	return value, nil
}

// Write sends data to the characteristic. Writes are serialised.
func (c *Connection) Write(ctx context.Context, uuid string, data []byte, withResponse bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ch, err := c.lookup(uuid)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return NormalizeError(c.client.WriteCharacteristic(ch, data, !withResponse))
}

// useIndication reports whether the characteristic only supports indications.
func useIndication(ch *ble.Characteristic) bool {
	return ch.Property&ble.CharNotify == 0 && ch.Property&ble.CharIndicate != 0
}

// Subscribe enables notifications (or indications) on the characteristic.
func (c *Connection) Subscribe(ctx context.Context, uuid string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ch, err := c.lookup(uuid)
	if err != nil {
		return err
	}
	canonical, _ := device.CanonicalUUID(uuid)

	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.subscribed[canonical] {
		return nil
	}
	if err := c.client.Subscribe(ch, useIndication(ch), c.handler(canonical)); err != nil {
		return NormalizeError(err)
	}
	c.subscribed[canonical] = true
	c.logger.WithField("uuid", canonical).Debug("Subscribed to characteristic notifications")
	return nil
}

// Unsubscribe disables notifications on the characteristic.
func (c *Connection) Unsubscribe(ctx context.Context, uuid string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ch, err := c.lookup(uuid)
	if err != nil {
		return err
	}
	canonical, _ := device.CanonicalUUID(uuid)

	c.subMu.Lock()
	defer c.subMu.Unlock()
	if !c.subscribed[canonical] {
		return nil
	}
	if err := c.client.Unsubscribe(ch, useIndication(ch)); err != nil {
		return NormalizeError(err)
	}
	delete(c.subscribed, canonical)
	c.logger.WithField("uuid", canonical).Debug("Unsubscribed from characteristic notifications")
	return nil
}

// handler copies each value into the ring; go-ble reuses the callback buffer.
func (c *Connection) handler(uuid string) ble.NotificationHandler {
	return func(data []byte) {
		n := device.RawNotification{UUID: uuid, Value: bytes.Clone(data)}
		overwrites, err := c.ring.EnqueueM(n)
		if err != nil {
			c.logger.WithError(err).WithField("uuid", uuid).Warn("Failed to buffer notification")
			return
		}
		if overwrites > 0 {
			c.logger.WithFields(logrus.Fields{
				"uuid":        uuid,
				"overwritten": overwrites,
			}).Warn("Notification buffer full, oldest notifications dropped")
		}
		select {
		case c.wake <- struct{}{}:
		default:
		}
	}
}

// pump moves buffered notifications to the consumer channel until the link goes away.
func (c *Connection) pump(context.Context) {
	defer close(c.notifications)
	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
		}
		for !c.ring.IsEmpty() {
			n, err := c.ring.Dequeue()
			if err != nil {
				break
			}
			select {
			case c.notifications <- n:
			case <-c.done:
				return
			}
		}
	}
}

// Notifications carries values of every subscribed characteristic. It is closed on disconnect.
func (c *Connection) Notifications() <-chan device.RawNotification {
	return c.notifications
}

// MaxWriteWithoutResponse is the ATT payload available to a write command.
func (c *Connection) MaxWriteWithoutResponse() int {
	if c.txMTU <= attHeaderSize {
		return defaultATTMTU - attHeaderSize
	}
	return c.txMTU - attHeaderSize
}

func (c *Connection) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Disconnect stops the notification pump and cancels the connection.
func (c *Connection) Disconnect(ctx context.Context) error {
	select {
	case <-c.done:
		c.logger.Debug("Disconnect called but already disconnected")
		return nil
	default:
	}
	c.shutdown()

	var cancelErr error
	cancelled := groutine.GoDone(ctx, "goble-cancel-connection", func(context.Context) {
		cancelErr = c.client.CancelConnection()
	})

	select {
	case <-cancelled:
	case <-ctx.Done():
		return ctx.Err()
	}
	<-c.pumpDone

	if cancelErr != nil {
		c.logger.WithError(cancelErr).Warn("BLE device disconnected with errors")
		return NormalizeError(cancelErr)
	}
	c.logger.Info("BLE device disconnected successfully")
	return nil
}
