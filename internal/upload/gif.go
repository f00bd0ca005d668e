package upload

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/underwhelmingperformance/idm-sub000/internal/device"
	"github.com/underwhelmingperformance/idm-sub000/internal/notify"
	"github.com/underwhelmingperformance/idm-sub000/internal/protocol"
)

type headerFunc func(chunkLen int, first bool, totalLen, crc uint32, tail protocol.GifHeaderProfile) ([]byte, error)

// frameChunks splits data into LogicalChunkSize chunks, each prefixed with its header.
func frameChunks(data []byte, tail protocol.GifHeaderProfile, header headerFunc) ([][]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}
	if uint64(len(data)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(data))
	}

	total := uint32(len(data))
	crc := protocol.Checksum(data)

	blocks := make([][]byte, 0, (len(data)+LogicalChunkSize-1)/LogicalChunkSize)
	for offset := 0; offset < len(data); offset += LogicalChunkSize {
		chunk := data[offset:min(offset+LogicalChunkSize, len(data))]
		h, err := header(len(chunk), offset == 0, total, crc, tail)
		if err != nil {
			return nil, err
		}
		block := make([]byte, 0, len(h)+len(chunk))
		block = append(block, h...)
		block = append(block, chunk...)
		blocks = append(blocks, block)
	}
	return blocks, nil
}

func checkPanelSize(profile device.DeviceProfile, width, height int) error {
	if width != profile.PanelWidth || height != profile.PanelHeight {
		return &PanelSizeMismatchError{
			PanelWidth:  profile.PanelWidth,
			PanelHeight: profile.PanelHeight,
			Width:       width,
			Height:      height,
		}
	}
	return nil
}

// UploadGif sends a GIF file. Panel size is only checked when the profile knows it.
// A Finished acknowledgement of the first chunk means the display already has the
// animation; the receipt then reports Cached.
func (u *Uploader) UploadGif(ctx context.Context, req GifRequest) (Receipt, error) {
	profile := u.session.Profile()
	if profile.HasPanelSize() {
		if err := checkPanelSize(profile, req.Width, req.Height); err != nil {
			return Receipt{}, err
		}
	}

	blocks, err := frameChunks(req.Data, profile.GifHeader, protocol.EncodeGifHeader)
	if err != nil {
		return Receipt{}, err
	}

	u.logger.WithFields(logrus.Fields{
		"bytes":  len(req.Data),
		"width":  req.Width,
		"height": req.Height,
		"header": profile.GifHeader.String(),
	}).Debug("Uploading GIF")

	return u.execute(ctx, transfer{
		family: notify.FamilyGif,
		blocks: blocks,
		pacing: req.Pacing,
		policy: ackBulkCacheable,
	})
}

// UploadGif uploads req on session with a one-shot Uploader.
func UploadGif(ctx context.Context, session *device.Session, req GifRequest, logger *logrus.Logger) (Receipt, error) {
	return NewUploader(session, logger).UploadGif(ctx, req)
}
