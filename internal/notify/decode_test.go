package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected Event
	}{
		{"gif next package", []byte{0x05, 0x00, 0x01, 0x00, 0x01}, NextPackage{Family: FamilyGif}},
		{"gif finished", []byte{0x05, 0x00, 0x01, 0x00, 0x03}, Finished{Family: FamilyGif}},
		{"gif rejected", []byte{0x05, 0x00, 0x01, 0x00, 0x02}, Error{Family: FamilyGif, Status: 0x02}},
		{"image next package", []byte{0x05, 0x00, 0x02, 0x00, 0x01}, NextPackage{Family: FamilyImage}},
		{"image finished", []byte{0x05, 0x00, 0x02, 0x00, 0x03}, Finished{Family: FamilyImage}},
		{"text next package", []byte{0x05, 0x00, 0x03, 0x00, 0x01}, NextPackage{Family: FamilyText}},
		{"text status zero", []byte{0x05, 0x00, 0x03, 0x00, 0x00}, Error{Family: FamilyText, Status: 0x00}},
		{"led info", []byte{0x09, 0x00, 0x01, 0x80, 0x02, 0x07, 0x04, 0x32, 0x01}, LedInfo{MCUMajor: 2, MCUMinor: 7, ScreenType: 4, Brightness: 50, PowerOn: true}},
		{"schedule ack", []byte{0x05, 0x00, 0x05, 0x80, 0x01}, ScheduleAck{Status: 0x01}},
		{"screen light timeout", []byte{0x05, 0x00, 0x0f, 0x80, 0x1e}, ScreenLightTimeout{Value: 30}},
		{"unknown family", []byte{0x05, 0x00, 0x09, 0x00, 0x01}, Unknown{Raw: []byte{0x05, 0x00, 0x09, 0x00, 0x01}}},
		{"ack with extra byte", []byte{0x06, 0x00, 0x01, 0x00, 0x01, 0x01}, Unknown{Raw: []byte{0x06, 0x00, 0x01, 0x00, 0x01, 0x01}}},
		{"short led info", []byte{0x06, 0x00, 0x01, 0x80, 0x02, 0x07}, Unknown{Raw: []byte{0x06, 0x00, 0x01, 0x80, 0x02, 0x07}}},
		{"length mismatch", []byte{0x09, 0x00, 0x01, 0x00, 0x01}, Unknown{Raw: []byte{0x09, 0x00, 0x01, 0x00, 0x01}}},
		{"single byte", []byte{0xff}, Unknown{Raw: []byte{0xff}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode(tt.input)
			require.NoError(t, err, "non-empty payloads MUST never fail")
			assert.Equal(t, tt.expected, ev)
		})
	}
}

func TestDecodeEmpty(t *testing.T) {
	ev, err := Decode(nil)
	assert.ErrorIs(t, err, ErrEmptyPayload)
	assert.Nil(t, ev)

	_, err = Decode([]byte{})
	assert.ErrorIs(t, err, ErrEmptyPayload)
}

func TestDecodeUnknownCopiesInput(t *testing.T) {
	input := []byte{0x01, 0x02}
	ev, err := Decode(input)
	require.NoError(t, err)

	input[0] = 0xff
	assert.Equal(t, Unknown{Raw: []byte{0x01, 0x02}}, ev, "Unknown MUST not alias the transport buffer")
}

func TestFamilyOf(t *testing.T) {
	family, ok := FamilyOf(Error{Family: FamilyImage, Status: 4})
	assert.True(t, ok)
	assert.Equal(t, FamilyImage, family)

	_, ok = FamilyOf(ScheduleAck{})
	assert.False(t, ok)
}

func TestEventStrings(t *testing.T) {
	assert.Equal(t, "next-package(gif)", NextPackage{Family: FamilyGif}.String())
	assert.Equal(t, "error(text, status=0x02)", Error{Family: FamilyText, Status: 2}.String())
	assert.Equal(t, "unknown(0a0b)", Unknown{Raw: []byte{0x0a, 0x0b}}.String())
}
