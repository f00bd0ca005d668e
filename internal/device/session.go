package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/underwhelmingperformance/idm-sub000/internal/groutine"
)

// SessionCloseTimeout bounds Session.Close.
const SessionCloseTimeout = 3 * time.Second

// ErrNotificationSourceClosed is returned when the transport's notification channel closes.
var ErrNotificationSourceClosed = errors.New("notification source closed")

// WriteMode selects acknowledged or unacknowledged GATT writes.
type WriteMode int

const (
	WriteWithoutResponse WriteMode = iota
	WriteWithResponse
)

func (m WriteMode) String() string {
	if m == WriteWithResponse {
		return "with-response"
	}
	return "without-response"
}

// Session is a negotiated connection to one display.
type Session struct {
	handle     *transportHandle
	gatt       GattProfile
	roles      *RoleMap
	profile    DeviceProfile
	subscribed mapset.Set[EndpointRole]
	logger     *logrus.Logger

	closeMu  sync.Mutex
	closing  <-chan struct{}
	closeErr error // written by the teardown worker before closing is closed
}

// Open negotiates endpoint roles on conn and returns a Session owning it.
// On failure conn is disconnected before the error is returned.
func Open(ctx context.Context, conn ConnectedSession, profile DeviceProfile, logger *logrus.Logger) (*Session, error) {
	if conn == nil {
		return nil, ErrNotInitialized
	}
	if logger == nil {
		logger = logrus.New()
	}

	negotiation, err := Negotiate(conn.Services())
	if err != nil {
		if derr := conn.Disconnect(ctx); derr != nil {
			logger.WithError(derr).Warn("Failed to disconnect after negotiation failure")
		}
		return nil, err
	}

	s := &Session{
		handle:     newTransportHandle(conn),
		gatt:       negotiation.Profile,
		roles:      negotiation.Roles,
		profile:    profile,
		subscribed: mapset.NewSet[EndpointRole](),
		logger:     logger,
	}

	fields := logrus.Fields{"gatt_profile": s.gatt.String()}
	for _, role := range AllRoles {
		uuid, _ := s.roles.Get(role)
		fields[roleField(role)] = uuid
	}
	logger.WithFields(fields).Info("Device session opened")
	return s, nil
}

func roleField(role EndpointRole) string {
	switch role {
	case RoleControlService:
		return "service_uuid"
	case RoleWriteCharacteristic:
		return "write_uuid"
	default:
		return "notify_uuid"
	}
}

// Profile returns the device profile supplied at Open.
func (s *Session) Profile() DeviceProfile { return s.profile }

// GattProfile returns the negotiated GATT profile.
func (s *Session) GattProfile() GattProfile { return s.gatt }

// Logger returns the session logger.
func (s *Session) Logger() *logrus.Logger { return s.logger }

// Endpoint returns the canonical UUID bound to role.
func (s *Session) Endpoint(role EndpointRole) (string, error) {
	uuid, ok := s.roles.Get(role)
	if !ok {
		return "", &NotFoundError{Resource: role.String()}
	}
	return uuid, nil
}

// Endpoints returns every resolved role in resolution order.
func (s *Session) Endpoints() *orderedmap.OrderedMap[EndpointRole, string] {
	out := orderedmap.New[EndpointRole, string]()
	for _, role := range AllRoles {
		if uuid, ok := s.roles.Get(role); ok {
			out.Set(role, uuid)
		}
	}
	return out
}

// WriteLimit reports the transport's current write-without-response ceiling.
func (s *Session) WriteLimit() int {
	conn, err := s.handle.get()
	if err != nil {
		return 0
	}
	return conn.MaxWriteWithoutResponse()
}

func (s *Session) target(role EndpointRole) (ConnectedSession, string, error) {
	conn, err := s.handle.get()
	if err != nil {
		return nil, "", err
	}
	uuid, err := s.Endpoint(role)
	if err != nil {
		return nil, "", err
	}
	return conn, uuid, nil
}

// Read reads the value of role's characteristic.
func (s *Session) Read(ctx context.Context, role EndpointRole) ([]byte, error) {
	conn, uuid, err := s.target(role)
	if err != nil {
		return nil, err
	}
	value, err := conn.Read(ctx, uuid)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", role, err)
	}
	return value, nil
}

// ReadOptional is Read that reports an absent value as (nil, false, nil).
func (s *Session) ReadOptional(ctx context.Context, role EndpointRole) ([]byte, bool, error) {
	value, err := s.Read(ctx, role)
	if errors.Is(err, ErrNoValue) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Write writes data to role's characteristic.
func (s *Session) Write(ctx context.Context, role EndpointRole, data []byte, mode WriteMode) error {
	conn, uuid, err := s.target(role)
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, uuid, data, mode == WriteWithResponse); err != nil {
		return fmt.Errorf("write %s: %w", role, err)
	}
	return nil
}

// SendCommand writes a short frame to the write characteristic.
func (s *Session) SendCommand(ctx context.Context, frame []byte) error {
	s.logger.WithField("frame", fmt.Sprintf("% x", frame)).Debug("Sending command")
	return s.Write(ctx, RoleWriteCharacteristic, frame, WriteWithoutResponse)
}

// Subscribe enables notifications on role's characteristic.
func (s *Session) Subscribe(ctx context.Context, role EndpointRole) error {
	conn, uuid, err := s.target(role)
	if err != nil {
		return err
	}
	if err := conn.Subscribe(ctx, uuid); err != nil {
		return fmt.Errorf("subscribe %s: %w", role, err)
	}
	s.subscribed.Add(role)
	s.logger.WithFields(logrus.Fields{"role": role.String(), "uuid": uuid}).Debug("Subscribed")
	return nil
}

// Unsubscribe disables notifications on role's characteristic.
func (s *Session) Unsubscribe(ctx context.Context, role EndpointRole) error {
	conn, uuid, err := s.target(role)
	if err != nil {
		return err
	}
	if err := conn.Unsubscribe(ctx, uuid); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", role, err)
	}
	s.subscribed.Remove(role)
	s.logger.WithFields(logrus.Fields{"role": role.String(), "uuid": uuid}).Debug("Unsubscribed")
	return nil
}

// AwaitNotification blocks until a notification from role's characteristic arrives.
// Notifications from other characteristics are discarded. It returns ctx.Err() when
// ctx ends first and ErrNotificationSourceClosed when the transport goes away.
func (s *Session) AwaitNotification(ctx context.Context, role EndpointRole) (RawNotification, error) {
	conn, uuid, err := s.target(role)
	if err != nil {
		return RawNotification{}, err
	}
	source := conn.Notifications()
	for {
		select {
		case <-ctx.Done():
			return RawNotification{}, ctx.Err()
		case n, ok := <-source:
			if !ok {
				return RawNotification{}, ErrNotificationSourceClosed
			}
			if !SameUUID(n.UUID, uuid) {
				continue
			}
			return n, nil
		}
	}
}

// NotificationStream returns a single-consumer stream of decoded notifications from role.
// A nil limit means unbounded. cancel may be nil.
func (s *Session) NotificationStream(ctx context.Context, role EndpointRole, limit *int, cancel <-chan struct{}) (*NotificationStream, error) {
	_, uuid, err := s.target(role)
	if err != nil {
		return nil, err
	}
	if limit != nil && *limit < 0 {
		return nil, fmt.Errorf("notification limit must be >= 0, got %d", *limit)
	}
	return newNotificationStream(s, role, uuid, limit, cancel), nil
}

// Close unsubscribes every subscribed role and disconnects. Teardown runs once,
// bounded by SessionCloseTimeout, and is not interrupted by cancelling ctx; a
// cancelled ctx only stops the wait and returns ctx.Err(). Later calls wait for the
// same teardown and return its result: nil, ErrSessionCloseTimeout or a *SessionCloseError.
func (s *Session) Close(ctx context.Context) error {
	s.closeMu.Lock()
	if s.closing == nil {
		if s.handle.isClosed() {
			s.closeMu.Unlock()
			return nil
		}
		teardownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), SessionCloseTimeout)
		s.closing = groutine.GoDone(teardownCtx, "device-session-close", func(ctx context.Context) {
			defer cancel()
			s.closeErr = s.teardown(ctx)
			if s.closeErr == nil {
				s.logger.Info("Device session closed")
			}
		})
	}
	done := s.closing
	s.closeMu.Unlock()

	timer := time.NewTimer(SessionCloseTimeout)
	defer timer.Stop()

	select {
	case <-done:
		return s.closeResult()
	case <-ctx.Done():
	case <-timer.C:
	}

	select {
	case <-done:
		return s.closeResult()
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.WithField("timeout", SessionCloseTimeout).Warn("Device session close timed out")
	return ErrSessionCloseTimeout
}

// closeResult classifies the teardown error. Call only after the teardown worker finished.
func (s *Session) closeResult() error {
	switch {
	case s.closeErr == nil:
		return nil
	case errors.Is(s.closeErr, context.DeadlineExceeded):
		return ErrSessionCloseTimeout
	default:
		return &SessionCloseError{Err: s.closeErr}
	}
}

func (s *Session) teardown(ctx context.Context) error {
	for _, role := range s.subscribed.ToSlice() {
		if err := s.Unsubscribe(ctx, role); err != nil {
			s.logger.WithFields(logrus.Fields{
				"role":  role.String(),
				"error": err,
			}).Warn("Failed to unsubscribe during close")
		}
	}

	if refs := s.handle.release(); refs > 0 {
		s.logger.WithField("open_streams", refs).Debug("Closing session with notification streams still open")
	}
	return s.handle.close(ctx)
}
