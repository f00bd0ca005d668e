package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeShortRoundTrip(t *testing.T) {
	sizes := []int{0, 1, 5, 255, 256, 4096, MaxShortPayload}

	for _, size := range sizes {
		payload := bytes.Repeat([]byte{0xa5}, size)
		for i := range payload {
			payload[i] = byte(i * 7)
		}

		frame, err := EncodeShort(0x12, 0x80, payload)
		require.NoError(t, err, "encode MUST succeed for %d byte payload", size)
		assert.Len(t, frame, size+ShortHeaderSize, "frame MUST be header plus payload")

		decoded, err := DecodeShort(frame)
		require.NoError(t, err, "decode MUST succeed for %d byte payload", size)
		assert.Equal(t, byte(0x12), decoded.CommandID)
		assert.Equal(t, byte(0x80), decoded.Namespace)
		assert.Equal(t, payload, decoded.Payload, "payload MUST survive the round trip")
	}
}

func TestEncodeShortRejectsOversizedPayload(t *testing.T) {
	_, err := EncodeShort(1, 0, make([]byte, MaxShortPayload+1))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)

	_, err = EncodeShort(1, 0, make([]byte, MaxShortPayload))
	assert.NoError(t, err, "the largest payload MUST still fit")
}

func TestEncodeShortLayout(t *testing.T) {
	frame, err := EncodeShort(0x07, 0x01, []byte{0x01})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x05, 0x00, 0x07, 0x01, 0x01}, frame)
}

func TestDecodeShortErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		wantErr error
	}{
		{name: "empty", input: nil, wantErr: ErrFrameTooShort},
		{name: "three bytes", input: []byte{0x03, 0x00, 0x01}, wantErr: ErrFrameTooShort},
		{name: "declared longer than actual", input: []byte{0x06, 0x00, 0x01, 0x00, 0x01}, wantErr: ErrLengthMismatch},
		{name: "declared shorter than actual", input: []byte{0x04, 0x00, 0x01, 0x00, 0x01}, wantErr: ErrLengthMismatch},
		{name: "header only", input: []byte{0x04, 0x00, 0x03, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeShort(tt.input)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
