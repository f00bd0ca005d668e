package upload

import (
	"errors"
	"fmt"

	"github.com/underwhelmingperformance/idm-sub000/internal/notify"
)

// Validation errors, raised before any write
var (
	ErrEmptyPayload     = errors.New("upload payload is empty")
	ErrPayloadTooLarge  = errors.New("upload payload exceeds 32-bit length")
	ErrZeroChunkSize    = errors.New("chunk size is zero")
	ErrPanelSizeUnknown = errors.New("device panel size is unknown")
	ErrInvalidDimension = errors.New("invalid image dimensions")
)

// Acknowledgement errors
var (
	ErrMissingNotifyAck = errors.New("notification source closed before acknowledgement")
	ErrNotifyAckTimeout = errors.New("timed out waiting for acknowledgement")
)

// PanelSizeMismatchError reports content whose dimensions differ from the panel.
type PanelSizeMismatchError struct {
	PanelWidth, PanelHeight int
	Width, Height           int
}

func (e *PanelSizeMismatchError) Error() string {
	return fmt.Sprintf("content is %dx%d but panel is %dx%d", e.Width, e.Height, e.PanelWidth, e.PanelHeight)
}

// RawSizeMismatchError reports a raw RGB payload of the wrong length.
type RawSizeMismatchError struct {
	Expected, Actual int
}

func (e *RawSizeMismatchError) Error() string {
	return fmt.Sprintf("raw RGB payload is %d bytes, expected %d", e.Actual, e.Expected)
}

// TransferRejectedError reports an Error acknowledgement from the display.
type TransferRejectedError struct {
	Family notify.Family
	Status byte
}

func (e *TransferRejectedError) Error() string {
	return fmt.Sprintf("%s transfer rejected by device with status 0x%02x", e.Family, e.Status)
}

// PrematureFinishError reports a Finished acknowledgement before the last chunk.
type PrematureFinishError struct {
	Family notify.Family
	Chunk  int // 0-based index of the acknowledged chunk
	Total  int
}

func (e *PrematureFinishError) Error() string {
	return fmt.Sprintf("%s transfer finished after chunk %d of %d", e.Family, e.Chunk+1, e.Total)
}

// UnexpectedNotifyEventError reports an acknowledgement that does not fit the transfer.
type UnexpectedNotifyEventError struct {
	Expected notify.Family
	Event    notify.Event
}

func (e *UnexpectedNotifyEventError) Error() string {
	return fmt.Sprintf("unexpected notification %s while awaiting %s acknowledgement", e.Event, e.Expected)
}
