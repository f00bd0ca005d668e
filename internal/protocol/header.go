package protocol

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
)

const (
	// ChunkHeaderSize is the fixed size of a bulk-transfer chunk header.
	ChunkHeaderSize = 16

	// MaxChunkPayload is the largest chunk body that fits the 16-bit block length.
	MaxChunkPayload = math.MaxUint16 - ChunkHeaderSize
)

// Transfer type tags
const (
	TypeTagGif   byte = 0x01
	TypeTagImage byte = 0x01
	TypeTagText  byte = 0x03
)

// Chunk flags
const (
	ChunkFlagFirst        byte = 0x00
	ChunkFlagContinuation byte = 0x02
)

// GifHeaderProfile selects the trailer bytes of a chunk header. Firmware generations
// disagree on them.
type GifHeaderProfile int

const (
	GifHeaderTimed GifHeaderProfile = iota
	GifHeaderNoTimeSignature
)

var gifHeaderProfileNames = map[GifHeaderProfile]string{
	GifHeaderTimed:           "timed",
	GifHeaderNoTimeSignature: "no-time-signature",
}

func (p GifHeaderProfile) String() string {
	if name, ok := gifHeaderProfileNames[p]; ok {
		return name
	}
	return fmt.Sprintf("GifHeaderProfile(%d)", int(p))
}

// ParseGifHeaderProfile maps a configuration string onto a profile.
func ParseGifHeaderProfile(s string) (GifHeaderProfile, error) {
	for p, name := range gifHeaderProfileNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown gif header profile %q (use timed or no-time-signature)", s)
}

// Trailer returns the three trailing header bytes for the profile.
func (p GifHeaderProfile) Trailer() [3]byte {
	if p == GifHeaderNoTimeSignature {
		return [3]byte{0x00, 0x00, 0x0c}
	}
	return [3]byte{0x05, 0x00, 0x0d}
}

// ChunkHeader describes one logical chunk of a bulk transfer.
type ChunkHeader struct {
	TypeTag    byte
	Flag       byte
	ChunkLen   int    // chunk body length, excluding the header
	TotalLen   uint32 // length of the whole logical payload
	CRC        uint32 // CRC-32 of the whole logical payload
	HeaderTail GifHeaderProfile
}

// Encode renders the 16-byte header.
func (h ChunkHeader) Encode() ([]byte, error) {
	if h.ChunkLen < 0 || h.ChunkLen > MaxChunkPayload {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrChunkTooLarge, h.ChunkLen, MaxChunkPayload)
	}

	out := make([]byte, ChunkHeaderSize)
	binary.LittleEndian.PutUint16(out[0:2], uint16(ChunkHeaderSize+h.ChunkLen))
	out[2] = h.TypeTag
	out[3] = 0x00
	out[4] = h.Flag
	binary.LittleEndian.PutUint32(out[5:9], h.TotalLen)
	binary.LittleEndian.PutUint32(out[9:13], h.CRC)
	tail := h.HeaderTail.Trailer()
	copy(out[13:16], tail[:])
	return out, nil
}

// Checksum is the CRC-32 (IEEE) of a full logical payload.
func Checksum(payload []byte) uint32 {
	return crc32.ChecksumIEEE(payload)
}

func continuationFlag(first bool) byte {
	if first {
		return ChunkFlagFirst
	}
	return ChunkFlagContinuation
}

// EncodeTextHeader builds the header for a text transfer. Text is always sent as a single
// first chunk with the no-time-signature trailer.
func EncodeTextHeader(chunkLen int, totalLen, crc uint32) ([]byte, error) {
	return ChunkHeader{
		TypeTag:    TypeTagText,
		Flag:       ChunkFlagFirst,
		ChunkLen:   chunkLen,
		TotalLen:   totalLen,
		CRC:        crc,
		HeaderTail: GifHeaderNoTimeSignature,
	}.Encode()
}

// EncodeGifHeader builds the header for one GIF chunk.
func EncodeGifHeader(chunkLen int, first bool, totalLen, crc uint32, tail GifHeaderProfile) ([]byte, error) {
	return ChunkHeader{
		TypeTag:    TypeTagGif,
		Flag:       continuationFlag(first),
		ChunkLen:   chunkLen,
		TotalLen:   totalLen,
		CRC:        crc,
		HeaderTail: tail,
	}.Encode()
}

// EncodeImageHeader builds the header for one still-image chunk.
func EncodeImageHeader(chunkLen int, first bool, totalLen, crc uint32, tail GifHeaderProfile) ([]byte, error) {
	return ChunkHeader{
		TypeTag:    TypeTagImage,
		Flag:       continuationFlag(first),
		ChunkLen:   chunkLen,
		TotalLen:   totalLen,
		CRC:        crc,
		HeaderTail: tail,
	}.Encode()
}

// DecodeChunkHeader parses the first 16 bytes of a block. It is used by transports that
// emulate the display.
func DecodeChunkHeader(b []byte) (ChunkHeader, error) {
	if len(b) < ChunkHeaderSize {
		return ChunkHeader{}, fmt.Errorf("%w: got %d bytes, need %d", ErrFrameTooShort, len(b), ChunkHeaderSize)
	}
	blockLen := int(binary.LittleEndian.Uint16(b[0:2]))
	if blockLen < ChunkHeaderSize {
		return ChunkHeader{}, fmt.Errorf("%w: block length %d below header size", ErrLengthMismatch, blockLen)
	}
	tail := GifHeaderTimed
	if b[13] == 0x00 && b[15] == 0x0c {
		tail = GifHeaderNoTimeSignature
	}
	return ChunkHeader{
		TypeTag:    b[2],
		Flag:       b[4],
		ChunkLen:   blockLen - ChunkHeaderSize,
		TotalLen:   binary.LittleEndian.Uint32(b[5:9]),
		CRC:        binary.LittleEndian.Uint32(b[9:13]),
		HeaderTail: tail,
	}, nil
}
