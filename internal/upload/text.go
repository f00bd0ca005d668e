package upload

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/underwhelmingperformance/idm-sub000/internal/device"
	"github.com/underwhelmingperformance/idm-sub000/internal/notify"
	"github.com/underwhelmingperformance/idm-sub000/internal/protocol"
)

// UploadText frames req as one text block and waits for a single acknowledgement.
func (u *Uploader) UploadText(ctx context.Context, req TextRequest) (Receipt, error) {
	framed, err := protocol.EncodeText(req.Text, req.Options)
	if err != nil {
		return Receipt{}, err
	}

	u.logger.WithFields(logrus.Fields{
		"characters": len([]rune(req.Text)),
		"bytes":      len(framed),
		"mode":       req.Options.Mode.String(),
	}).Debug("Uploading text")

	return u.execute(ctx, transfer{
		family: notify.FamilyText,
		blocks: [][]byte{framed},
		pacing: req.Pacing,
		policy: ackAny,
	})
}

// UploadText uploads req on session with a one-shot Uploader.
func UploadText(ctx context.Context, session *device.Session, req TextRequest, logger *logrus.Logger) (Receipt, error) {
	return NewUploader(session, logger).UploadText(ctx, req)
}
