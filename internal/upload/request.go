package upload

import (
	"time"

	"github.com/underwhelmingperformance/idm-sub000/internal/protocol"
)

const (
	// LogicalChunkSize is the body size of every GIF/image chunk but the last.
	LogicalChunkSize = 4096

	DefaultAckTimeout        = 5 * time.Second
	DefaultTextFragmentDelay = 20 * time.Millisecond

	drainLimit   = 8
	drainTimeout = 50 * time.Millisecond
)

// Pacing controls fragment spacing and acknowledgement patience.
type Pacing struct {
	FragmentDelay time.Duration
	AckTimeout    time.Duration // 0 means DefaultAckTimeout
}

func (p Pacing) ackTimeout() time.Duration {
	if p.AckTimeout <= 0 {
		return DefaultAckTimeout
	}
	return p.AckTimeout
}

// DefaultTextPacing spaces text fragments by DefaultTextFragmentDelay.
func DefaultTextPacing() Pacing {
	return Pacing{FragmentDelay: DefaultTextFragmentDelay, AckTimeout: DefaultAckTimeout}
}

// DefaultPacing sends GIF and image fragments back to back.
func DefaultPacing() Pacing {
	return Pacing{AckTimeout: DefaultAckTimeout}
}

// TextRequest uploads scrolling text.
type TextRequest struct {
	Text    string
	Options protocol.TextOptions
	Pacing  Pacing
}

// NewTextRequest returns a request with default options and pacing.
func NewTextRequest(text string) TextRequest {
	return TextRequest{Text: text, Options: protocol.DefaultTextOptions(), Pacing: DefaultTextPacing()}
}

// GifRequest uploads an animated GIF file verbatim.
type GifRequest struct {
	Data          []byte
	Width, Height int
	Pacing        Pacing
}

// ImageRequest uploads a still image, either encoded or raw RGB per the device profile.
type ImageRequest struct {
	Data          []byte
	Width, Height int
	Pacing        Pacing
}

// Receipt summarises a completed upload.
type Receipt struct {
	BytesWritten    int
	TransportChunks int
	LogicalChunks   int
	Cached          bool
}
