package fake

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/smallnest/ringbuffer"

	"github.com/underwhelmingperformance/idm-sub000/internal/notify"
	"github.com/underwhelmingperformance/idm-sub000/internal/protocol"
)

// Responder receives each reassembled block written to the display, numbered from 1,
// and returns the notification payloads the display sends back.
type Responder func(index int, block []byte) [][]byte

// DefaultAssemblerCapacity fits the largest framed block plus one transport fragment.
const DefaultAssemblerCapacity = 128 * 1024

var errInvalidBlockLength = errors.New("invalid block length prefix")

// blockAssembler rebuilds length-prefixed blocks from transport fragments.
type blockAssembler struct {
	buf    *ringbuffer.RingBuffer
	prefix [2]byte
	want   int // remaining body bytes of the current block, 0 while awaiting a prefix
}

func newBlockAssembler(capacity int) *blockAssembler {
	return &blockAssembler{buf: ringbuffer.New(capacity)}
}

// Feed appends a fragment and returns every block it completes.
func (a *blockAssembler) Feed(fragment []byte) ([][]byte, error) {
	if _, err := a.buf.Write(fragment); err != nil {
		return nil, fmt.Errorf("block assembler: %w", err)
	}

	var blocks [][]byte
	for {
		if a.want == 0 {
			if a.buf.Length() < len(a.prefix) {
				return blocks, nil
			}
			if _, err := a.buf.TryRead(a.prefix[:]); err != nil {
				return blocks, fmt.Errorf("block assembler: %w", err)
			}
			total := int(binary.LittleEndian.Uint16(a.prefix[:]))
			if total <= len(a.prefix) {
				return blocks, fmt.Errorf("%w: %d", errInvalidBlockLength, total)
			}
			a.want = total - len(a.prefix)
		}

		if a.buf.Length() < a.want {
			return blocks, nil
		}
		block := make([]byte, len(a.prefix)+a.want)
		copy(block, a.prefix[:])
		if _, err := a.buf.TryRead(block[len(a.prefix):]); err != nil {
			return blocks, fmt.Errorf("block assembler: %w", err)
		}
		a.want = 0
		blocks = append(blocks, block)
	}
}

// Pending reports buffered bytes that do not yet form a block.
func (a *blockAssembler) Pending() int {
	n := a.buf.Length()
	if a.want > 0 {
		n += len(a.prefix)
	}
	return n
}

// displayEmulator acknowledges transfers the way the panel firmware does.
type displayEmulator struct {
	behavior Behavior
	diy      bool
	chunks   int
	received uint32
}

func (d *displayEmulator) respond(_ int, block []byte) [][]byte {
	if len(block) < protocol.ChunkHeaderSize {
		d.observeCommand(block)
		return nil
	}

	header, err := protocol.DecodeChunkHeader(block)
	if err != nil {
		return nil
	}

	family := notify.FamilyGif
	switch {
	case header.TypeTag == protocol.TypeTagText:
		family = notify.FamilyText
	case d.diy:
		family = notify.FamilyImage
	}

	if header.Flag == protocol.ChunkFlagFirst {
		d.chunks = 0
		d.received = 0
	}
	d.chunks++
	d.received += uint32(header.ChunkLen)

	b := d.behavior
	switch {
	case b.Silent:
		return nil
	case b.RejectStatus != 0:
		return [][]byte{AckFrame(family, b.RejectStatus)}
	case family == notify.FamilyText:
		return [][]byte{AckFrame(family, notify.StatusFinished)}
	case family == notify.FamilyGif && b.GifCached && d.chunks == 1:
		return [][]byte{AckFrame(family, notify.StatusFinished)}
	case b.FinishAfterChunks > 0 && d.chunks == b.FinishAfterChunks:
		return [][]byte{AckFrame(family, notify.StatusFinished)}
	case d.received >= header.TotalLen:
		if family == notify.FamilyImage {
			d.diy = false
		}
		return [][]byte{AckFrame(family, notify.StatusFinished)}
	default:
		return [][]byte{AckFrame(family, notify.StatusNextPackage)}
	}
}

func (d *displayEmulator) observeCommand(block []byte) {
	frame, err := protocol.DecodeShort(block)
	if err != nil || len(frame.Payload) == 0 {
		return
	}
	if frame.Namespace == protocol.NamespaceMode && frame.CommandID == protocol.CmdDIYMode {
		mode := protocol.DIYMode(frame.Payload[0])
		d.diy = mode == protocol.DIYOn || mode == protocol.DIYOnKeep
	}
}

// AckFrame builds a transfer acknowledgement notification.
func AckFrame(family notify.Family, status byte) []byte {
	frame, err := protocol.EncodeShort(byte(family), protocol.NamespaceTransfer, []byte{status})
	if err != nil {
		panic(err)
	}
	return frame
}
