package device

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/underwhelmingperformance/idm-sub000/internal/notify"
)

// Stream summary errors
var (
	ErrStreamNotExhausted = errors.New("notification stream not exhausted")
	ErrSummaryTaken       = errors.New("notification stream summary already taken")
)

// StopReason explains why a notification stream ended.
type StopReason interface {
	fmt.Stringer
	stopReason()
}

// ReachedLimit means the configured number of notifications was delivered.
type ReachedLimit struct {
	N int
}

// Interrupted means the cancel signal fired or the context ended.
type Interrupted struct{}

// NotificationStreamClosed means the transport's notification source closed.
type NotificationStreamClosed struct{}

func (ReachedLimit) stopReason()             {}
func (Interrupted) stopReason()              {}
func (NotificationStreamClosed) stopReason() {}

func (r ReachedLimit) String() string           { return fmt.Sprintf("reached limit of %d", r.N) }
func (Interrupted) String() string              { return "interrupted" }
func (NotificationStreamClosed) String() string { return "notification stream closed" }

// StreamSummary is the terminal state of an exhausted stream.
type StreamSummary struct {
	Received int
	Reason   StopReason
}

// Notification is one decoded value from the stream's characteristic.
type Notification struct {
	Index int // 1-based
	UUID  string
	Raw   []byte
	Event notify.Event
	Err   error // decode failure, Event is nil when set
}

// NotificationStream yields decoded notifications from one role. It is not safe for
// concurrent use.
//
//	for stream.Next(ctx) {
//	    n := stream.Notification()
//	}
//	summary, err := stream.Summary()
type NotificationStream struct {
	session *Session
	handle  *transportHandle
	role    EndpointRole
	uuid    string
	limit   *int
	cancel  <-chan struct{}
	logger  *logrus.Logger

	subscribed   bool
	received     int
	current      Notification
	summary      *StreamSummary
	err          error
	summaryTaken bool
	closed       bool
}

func newNotificationStream(s *Session, role EndpointRole, uuid string, limit *int, cancel <-chan struct{}) *NotificationStream {
	return &NotificationStream{
		session: s,
		handle:  s.handle.retain(),
		role:    role,
		uuid:    uuid,
		limit:   limit,
		cancel:  cancel,
		logger:  s.logger,
	}
}

// Next advances to the next notification. It returns false once the stream stops.
func (ns *NotificationStream) Next(ctx context.Context) bool {
	if ns.summary != nil || ns.err != nil || ns.closed {
		return false
	}

	if ns.limit != nil && ns.received >= *ns.limit {
		return ns.stop(ReachedLimit{N: ns.received})
	}
	if ns.cancelled(ctx) {
		return ns.stop(Interrupted{})
	}

	if !ns.subscribed {
		if err := ns.session.Subscribe(ctx, ns.role); err != nil {
			ns.err = err
			return false
		}
		ns.subscribed = true
	}

	conn, err := ns.handle.get()
	if err != nil {
		return ns.stop(NotificationStreamClosed{})
	}
	source := conn.Notifications()

	for {
		if ns.cancelled(ctx) {
			return ns.stop(Interrupted{})
		}
		select {
		case <-ns.cancel:
			return ns.stop(Interrupted{})
		case <-ctx.Done():
			return ns.stop(Interrupted{})
		case raw, ok := <-source:
			if !ok {
				return ns.stop(NotificationStreamClosed{})
			}
			if !SameUUID(raw.UUID, ns.uuid) {
				continue
			}
			ns.received++
			ev, decodeErr := notify.Decode(raw.Value)
			ns.current = Notification{
				Index: ns.received,
				UUID:  ns.uuid,
				Raw:   raw.Value,
				Event: ev,
				Err:   decodeErr,
			}
			return true
		}
	}
}

func (ns *NotificationStream) cancelled(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-ns.cancel:
		return true
	default:
		return false
	}
}

func (ns *NotificationStream) stop(reason StopReason) bool {
	ns.summary = &StreamSummary{Received: ns.received, Reason: reason}
	ns.logger.WithFields(logrus.Fields{
		"role":     ns.role.String(),
		"received": ns.received,
		"reason":   reason.String(),
	}).Debug("Notification stream stopped")
	return false
}

// Notification returns the value produced by the last successful Next.
func (ns *NotificationStream) Notification() Notification {
	return ns.current
}

// Err returns the error that stopped the stream, if any.
func (ns *NotificationStream) Err() error {
	return ns.err
}

// Summary reports why the stream stopped. It succeeds exactly once, after Next has
// returned false.
func (ns *NotificationStream) Summary() (StreamSummary, error) {
	if ns.err != nil {
		return StreamSummary{}, ns.err
	}
	if ns.summary == nil {
		return StreamSummary{}, ErrStreamNotExhausted
	}
	if ns.summaryTaken {
		return StreamSummary{}, ErrSummaryTaken
	}
	ns.summaryTaken = true
	return *ns.summary, nil
}

// Close releases the stream. If it subscribed, it unsubscribes on a best-effort
// basis; failures are logged only.
func (ns *NotificationStream) Close() {
	if ns.closed {
		return
	}
	ns.closed = true
	defer ns.handle.release()

	if !ns.subscribed || ns.handle.isClosed() {
		return
	}
	if err := ns.session.Unsubscribe(context.Background(), ns.role); err != nil {
		ns.logger.WithFields(logrus.Fields{
			"role":  ns.role.String(),
			"error": err,
		}).Warn("Failed to unsubscribe dropped notification stream")
	}
}
