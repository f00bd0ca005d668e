package device

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/underwhelmingperformance/idm-sub000/internal/protocol"
)

// NotFoundError represents an error when a GATT resource is not found
type NotFoundError struct {
	Resource string   // "service", "characteristic"
	UUIDs    []string // One or more UUIDs (e.g., [serviceUUID] or [serviceUUID, charUUID])
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	NotInitialized   ConnectionState = "not_initialized"
	BluetoothOff     ConnectionState = "bluetooth_off"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrNotInitialized   = &ConnectionError{State: NotInitialized}
	ErrBluetoothOff     = &ConnectionError{State: BluetoothOff}
)

// Operation errors
var (
	// ErrNoValue is returned by a transport read that has nothing to give.
	ErrNoValue = errors.New("characteristic has no value")

	ErrTimeout             = errors.New("timeout")
	ErrSessionCloseTimeout = errors.New("session close timed out")
)

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// SessionCloseError wraps a transport failure raised while closing a session.
type SessionCloseError struct {
	Err error
}

func (e *SessionCloseError) Error() string {
	return fmt.Sprintf("failed to close session: %v", e.Err)
}

func (e *SessionCloseError) Unwrap() error { return e.Err }

// Properties is the GATT characteristic property bitmask in its Bluetooth Core encoding.
type Properties uint8

const (
	PropBroadcast            Properties = 0x01
	PropRead                 Properties = 0x02
	PropWriteWithoutResponse Properties = 0x04
	PropWrite                Properties = 0x08
	PropNotify               Properties = 0x10
	PropIndicate             Properties = 0x20
)

// CanWrite reports write or write-without-response support.
func (p Properties) CanWrite() bool {
	return p&(PropWrite|PropWriteWithoutResponse) != 0
}

// CanNotify reports notify or indicate support.
func (p Properties) CanNotify() bool {
	return p&(PropNotify|PropIndicate) != 0
}

func (p Properties) String() string {
	names := make([]string, 0, 6)
	for _, f := range []struct {
		flag Properties
		name string
	}{
		{PropBroadcast, "broadcast"},
		{PropRead, "read"},
		{PropWriteWithoutResponse, "write-without-response"},
		{PropWrite, "write"},
		{PropNotify, "notify"},
		{PropIndicate, "indicate"},
	} {
		if p&f.flag != 0 {
			names = append(names, f.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// CharacteristicInfo describes a discovered characteristic.
type CharacteristicInfo struct {
	UUID       string
	Properties Properties
}

// ServiceInfo describes a discovered service and its characteristics.
type ServiceInfo struct {
	UUID            string
	Characteristics []CharacteristicInfo
}

// RawNotification is a notification value as delivered by the transport.
type RawNotification struct {
	UUID  string
	Value []byte
}

// ConnectedSession is the capability set a transport backend provides once connected.
//
// UUIDs are exchanged in canonical form (see CanonicalUUID). The Notifications channel
// carries values of every subscribed characteristic and is closed when the link goes away.
type ConnectedSession interface {
	Services() []ServiceInfo
	Read(ctx context.Context, uuid string) ([]byte, error)
	Write(ctx context.Context, uuid string, data []byte, withResponse bool) error
	Subscribe(ctx context.Context, uuid string) error
	Unsubscribe(ctx context.Context, uuid string) error
	Notifications() <-chan RawNotification
	MaxWriteWithoutResponse() int
	Disconnect(ctx context.Context) error
}

// ImageUploadMode selects how still images are sent to the panel.
type ImageUploadMode int

const (
	// ImageFile uploads encoded image bytes verbatim.
	ImageFile ImageUploadMode = iota
	// ImageRawRGB uploads exactly width*height*3 bytes of RGB pixels.
	ImageRawRGB
)

func (m ImageUploadMode) String() string {
	switch m {
	case ImageFile:
		return "file"
	case ImageRawRGB:
		return "raw-rgb"
	default:
		return fmt.Sprintf("image-mode(%d)", int(m))
	}
}

// ParseImageUploadMode parses "file" or "raw-rgb".
func ParseImageUploadMode(s string) (ImageUploadMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "file", "":
		return ImageFile, nil
	case "raw-rgb", "rgb":
		return ImageRawRGB, nil
	default:
		return 0, fmt.Errorf("unknown image upload mode %q", s)
	}
}

// DeviceProfile carries the per-model facts the protocol core needs.
type DeviceProfile struct {
	PanelWidth        int // 0 when unknown
	PanelHeight       int // 0 when unknown
	FallbackChunkSize int
	GifHeader         protocol.GifHeaderProfile
	ImageMode         ImageUploadMode
}

// HasPanelSize reports whether both panel dimensions are known.
func (p DeviceProfile) HasPanelSize() bool {
	return p.PanelWidth > 0 && p.PanelHeight > 0
}
