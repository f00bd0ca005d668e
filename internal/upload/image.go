package upload

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/underwhelmingperformance/idm-sub000/internal/device"
	"github.com/underwhelmingperformance/idm-sub000/internal/notify"
	"github.com/underwhelmingperformance/idm-sub000/internal/protocol"
)

// UploadImage sends a still image after switching the panel into DIY mode. The panel
// size must be known and match the request.
func (u *Uploader) UploadImage(ctx context.Context, req ImageRequest) (Receipt, error) {
	profile := u.session.Profile()
	if !profile.HasPanelSize() {
		return Receipt{}, ErrPanelSizeUnknown
	}
	if req.Width <= 0 || req.Height <= 0 {
		return Receipt{}, ErrInvalidDimension
	}
	if err := checkPanelSize(profile, req.Width, req.Height); err != nil {
		return Receipt{}, err
	}
	if profile.ImageMode == device.ImageRawRGB {
		if expected := req.Width * req.Height * 3; len(req.Data) != expected {
			return Receipt{}, &RawSizeMismatchError{Expected: expected, Actual: len(req.Data)}
		}
	}

	blocks, err := frameChunks(req.Data, profile.GifHeader, protocol.EncodeImageHeader)
	if err != nil {
		return Receipt{}, err
	}
	diyOn, err := protocol.DIYModeFrame(protocol.DIYOn)
	if err != nil {
		return Receipt{}, err
	}

	u.logger.WithFields(logrus.Fields{
		"bytes":  len(req.Data),
		"width":  req.Width,
		"height": req.Height,
		"mode":   profile.ImageMode.String(),
	}).Debug("Uploading image")

	return u.execute(ctx, transfer{
		family: notify.FamilyImage,
		blocks: blocks,
		pacing: req.Pacing,
		policy: ackBulk,
		prelude: func(ctx context.Context) error {
			return u.session.SendCommand(ctx, diyOn)
		},
	})
}

// UploadImage uploads req on session with a one-shot Uploader.
func UploadImage(ctx context.Context, session *device.Session, req ImageRequest, logger *logrus.Logger) (Receipt, error) {
	return NewUploader(session, logger).UploadImage(ctx, req)
}
