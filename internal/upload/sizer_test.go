package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/underwhelmingperformance/idm-sub000/internal/protocol"
)

func TestNewChunkSizer(t *testing.T) {
	tests := []struct {
		baseline int
		expected int
	}{
		{0, MTUReadyChunkSize},
		{18, MTUReadyChunkSize},
		{19, 19},
		{244, 244},
		{509, 509},
		{1024, MTUReadyChunkSize},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, NewChunkSizer(tt.baseline).Size(), "baseline %d", tt.baseline)
	}
}

func TestChunkSizerReduceSequence(t *testing.T) {
	s := NewChunkSizer(FallbackChunkSize)

	sizes := []int{s.Size()}
	for s.ReduceOnFailure() {
		sizes = append(sizes, s.Size())
	}

	assert.Equal(t, []int{509, 254, 127, 63, 31, 18}, sizes)
	for i := 0; i < 3; i++ {
		assert.False(t, s.ReduceOnFailure(), "reduction at the floor MUST keep failing")
		assert.Equal(t, FallbackChunkSize, s.Size())
	}
}

func TestFrameChunks(t *testing.T) {
	data := make([]byte, 2*LogicalChunkSize+10)
	for i := range data {
		data[i] = byte(i)
	}

	blocks, err := frameChunks(data, protocol.GifHeaderTimed, protocol.EncodeGifHeader)
	require.NoError(t, err)
	require.Len(t, blocks, 3)

	crc := protocol.Checksum(data)
	for i, block := range blocks {
		h, err := protocol.DecodeChunkHeader(block)
		require.NoError(t, err)
		assert.Equal(t, uint32(len(data)), h.TotalLen, "chunk %d MUST carry the total length", i)
		assert.Equal(t, crc, h.CRC, "chunk %d MUST carry the whole-payload CRC", i)
		assert.Equal(t, len(block)-protocol.ChunkHeaderSize, h.ChunkLen)
	}
	assert.Equal(t, protocol.ChunkFlagFirst, blocks[0][4])
	assert.Equal(t, protocol.ChunkFlagContinuation, blocks[1][4])
	assert.Len(t, blocks[2], protocol.ChunkHeaderSize+10)

	_, err = frameChunks(nil, protocol.GifHeaderTimed, protocol.EncodeGifHeader)
	assert.ErrorIs(t, err, ErrEmptyPayload)
}
