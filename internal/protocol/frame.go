package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// ShortHeaderSize is the size of the short frame header: length, command id, namespace.
	ShortHeaderSize = 4

	// MaxShortPayload is the largest payload a short frame can carry.
	MaxShortPayload = math.MaxUint16 - ShortHeaderSize
)

// Codec errors
var (
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrFrameTooShort   = errors.New("frame too short")
	ErrLengthMismatch  = errors.New("frame length mismatch")
	ErrChunkTooLarge   = errors.New("chunk too large")
)

// ShortFrame is a decoded control frame.
type ShortFrame struct {
	CommandID byte
	Namespace byte
	Payload   []byte
}

// EncodeShort builds a short frame. The declared length always covers the header.
func EncodeShort(commandID, namespace byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxShortPayload {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrPayloadTooLarge, len(payload), MaxShortPayload)
	}

	frame := make([]byte, ShortHeaderSize+len(payload))
	binary.LittleEndian.PutUint16(frame[0:2], uint16(len(frame)))
	frame[2] = commandID
	frame[3] = namespace
	copy(frame[ShortHeaderSize:], payload)
	return frame, nil
}

// DecodeShort parses a short frame. The returned payload aliases b.
func DecodeShort(b []byte) (ShortFrame, error) {
	if len(b) < ShortHeaderSize {
		return ShortFrame{}, fmt.Errorf("%w: got %d bytes, need at least %d", ErrFrameTooShort, len(b), ShortHeaderSize)
	}

	declared := int(binary.LittleEndian.Uint16(b[0:2]))
	if declared != len(b) {
		return ShortFrame{}, fmt.Errorf("%w: declared %d, actual %d", ErrLengthMismatch, declared, len(b))
	}

	return ShortFrame{
		CommandID: b[2],
		Namespace: b[3],
		Payload:   b[ShortHeaderSize:],
	}, nil
}
