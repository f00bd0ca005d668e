package fake

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/underwhelmingperformance/idm-sub000/internal/device"
	"github.com/underwhelmingperformance/idm-sub000/internal/notify"
	"github.com/underwhelmingperformance/idm-sub000/internal/protocol"
)

func TestLoadFixture(t *testing.T) {
	f, err := LoadFixture("testdata/fafa02.yaml")
	require.NoError(t, err)

	assert.Equal(t, "IDM-Test", f.Name)
	assert.Equal(t, 509, f.MaxWrite)
	require.Len(t, f.Pending, 2)
	assert.Equal(t, HexBytes{0x05, 0x00, 0x01, 0x00, 0x01}, f.Pending[0])

	infos := f.serviceInfos()
	require.Len(t, infos, 1)
	assert.Equal(t, "000000fa-0000-1000-8000-00805f9b34fb", infos[0].UUID)
	require.Len(t, infos[0].Characteristics, 2)
	assert.Equal(t, device.PropWrite|device.PropWriteWithoutResponse, infos[0].Characteristics[0].Properties)
}

func TestParseFixtureErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no services", "name: empty\n"},
		{"bad uuid", "services:\n  - uuid: nope\n"},
		{"bad property", "services:\n  - uuid: fa\n    characteristics:\n      - uuid: fa02\n        properties: [teleport]\n"},
		{"bad hex", "services:\n  - uuid: fa\npending: [\"zz\"]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFixture([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestBlockAssemblerAcrossFragments(t *testing.T) {
	a := newBlockAssembler(1024)

	first := []byte{0x06, 0x00, 0xaa, 0xbb, 0xcc, 0xdd}
	second := []byte{0x05, 0x00, 0x01, 0x02, 0x03}
	stream := append(append([]byte{}, first...), second...)

	var got [][]byte
	for _, b := range stream {
		blocks, err := a.Feed([]byte{b})
		require.NoError(t, err)
		got = append(got, blocks...)
	}

	assert.Equal(t, [][]byte{first, second}, got, "blocks MUST be rebuilt byte by byte")
	assert.Zero(t, a.Pending())
}

func TestBlockAssemblerRejectsBadPrefix(t *testing.T) {
	a := newBlockAssembler(64)
	_, err := a.Feed([]byte{0x01, 0x00})
	assert.ErrorIs(t, err, errInvalidBlockLength)
}

func TestEmulatorAcknowledgesChunks(t *testing.T) {
	payload := make([]byte, 100)
	crc := protocol.Checksum(payload)

	header := func(first bool, n int) []byte {
		h, err := protocol.EncodeGifHeader(n, first, uint32(len(payload)), crc, protocol.GifHeaderTimed)
		require.NoError(t, err)
		return append(h, make([]byte, n)...)
	}

	emu := &displayEmulator{}
	assert.Equal(t, [][]byte{AckFrame(notify.FamilyGif, notify.StatusNextPackage)}, emu.respond(1, header(true, 60)))
	assert.Equal(t, [][]byte{AckFrame(notify.FamilyGif, notify.StatusFinished)}, emu.respond(2, header(false, 40)))

	diyOn, err := protocol.DIYModeFrame(protocol.DIYOn)
	require.NoError(t, err)
	assert.Nil(t, emu.respond(3, diyOn))
	assert.Equal(t, [][]byte{AckFrame(notify.FamilyImage, notify.StatusNextPackage)}, emu.respond(4, header(true, 60)),
		"chunks after DIY mode MUST be acknowledged as image")
}

func TestPeripheralWriteProducesAck(t *testing.T) {
	p := New(FaFa02Fixture())
	ctx := context.Background()

	require.NoError(t, p.Subscribe(ctx, "fa03"))

	framed, err := protocol.EncodeText("Hi", protocol.DefaultTextOptions())
	require.NoError(t, err)
	require.NoError(t, p.Write(ctx, "fa02", framed[:30], false))
	require.NoError(t, p.Write(ctx, "fa02", framed[30:], false))

	require.Len(t, p.Blocks(), 1)
	assert.Equal(t, framed, p.Blocks()[0])

	select {
	case n := <-p.Notifications():
		assert.Equal(t, "0000fa03-0000-1000-8000-00805f9b34fb", n.UUID)
		assert.Equal(t, AckFrame(notify.FamilyText, notify.StatusFinished), n.Value)
	default:
		require.Fail(t, "text block MUST be acknowledged")
	}
}

func TestPeripheralReadAndLifecycle(t *testing.T) {
	f, err := LoadFixture("testdata/fafa02.yaml")
	require.NoError(t, err)
	p := New(f)
	ctx := context.Background()

	value, err := p.Read(ctx, "fa03")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x09, 0x00, 0x01, 0x80, 0x02, 0x07, 0x04, 0x32, 0x01}, value)

	_, err = p.Read(ctx, "fa02")
	assert.ErrorIs(t, err, device.ErrNoValue)

	require.NoError(t, p.Subscribe(ctx, "fa03"))
	assert.Len(t, p.Notifications(), 2, "pending notifications MUST be queued on first subscribe")

	require.NoError(t, p.Disconnect(ctx))
	assert.False(t, p.Connected())
	assert.ErrorIs(t, p.Write(ctx, "fa02", []byte{1}, false), device.ErrNotConnected)
}

func TestPeripheralFaultInjection(t *testing.T) {
	boom := errors.New("boom")
	p := New(FaFa02Fixture(), WithWriteError(func(n int, _ WriteRecord) error {
		if n == 2 {
			return boom
		}
		return nil
	}))
	ctx := context.Background()

	assert.NoError(t, p.Write(ctx, "fa02", []byte{0x04, 0x00, 0x03, 0x00}, false))
	assert.ErrorIs(t, p.Write(ctx, "fa02", []byte{0x04}, false), boom)
	assert.Len(t, p.Writes(), 1, "failed writes MUST not be recorded")
}
