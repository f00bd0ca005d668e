// Package upload pushes text, GIF and image payloads to a display session.
//
// Every upload follows one state machine:
//
//	Idle → Subscribed&Draining → {SendFragment → AwaitAck}* → Done | Rejected | PrematureFinish | AckTimeout
//
// The read/notify role is always unsubscribed on the way out. An unsubscribe failure is
// returned only when the upload itself succeeded.
package upload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/underwhelmingperformance/idm-sub000/internal/device"
	"github.com/underwhelmingperformance/idm-sub000/internal/notify"
)

type state int

const (
	stateIdle state = iota
	stateDraining
	stateSendFragment
	stateAwaitAck
	stateDone
	stateRejected
	statePrematureFinish
	stateAckTimeout
	stateFailed
)

var stateNames = [...]string{"idle", "subscribed-draining", "send-fragment", "await-ack", "done", "rejected", "premature-finish", "ack-timeout", "failed"}

func (s state) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Uploader runs uploads on one session and keeps its chunk sizer across uploads.
type Uploader struct {
	session *device.Session
	sizer   *ChunkSizer
	logger  *logrus.Logger
}

// NewUploader creates an Uploader for session.
func NewUploader(session *device.Session, logger *logrus.Logger) *Uploader {
	if logger == nil {
		logger = session.Logger()
	}
	return &Uploader{session: session, logger: logger}
}

// ChunkSize returns the fragment size the next upload will use.
func (u *Uploader) ChunkSize() int {
	return u.chunkSizer().Size()
}

func (u *Uploader) chunkSizer() *ChunkSizer {
	if u.sizer == nil {
		baseline := u.session.WriteLimit()
		if baseline <= UnusableWriteLimit {
			baseline = u.session.Profile().FallbackChunkSize
		}
		u.sizer = NewChunkSizer(baseline)
	}
	return u.sizer
}

// ackPolicy decides how a family acknowledgement moves the transfer forward.
type ackPolicy int

const (
	// ackBulk: NextPackage continues, Finished only on the last chunk.
	ackBulk ackPolicy = iota
	// ackBulkCacheable: ackBulk plus Finished on chunk 0 as a cache hit.
	ackBulkCacheable
	// ackAny: NextPackage or Finished both complete the transfer.
	ackAny
)

// transfer is a prepared upload: framed blocks ready for the fragment loop.
type transfer struct {
	family  notify.Family
	blocks  [][]byte
	pacing  Pacing
	policy  ackPolicy
	prelude func(ctx context.Context) error
}

type run struct {
	*Uploader
	t       transfer
	log     *logrus.Entry
	state   state
	receipt Receipt
}

func (r *run) transition(next state, fields logrus.Fields) {
	r.log.WithFields(fields).WithFields(logrus.Fields{
		"from": r.state.String(),
		"to":   next.String(),
	}).Debug("Upload state transition")
	r.state = next
}

// execute drives t through the state machine.
func (u *Uploader) execute(ctx context.Context, t transfer) (Receipt, error) {
	chunkSize := u.chunkSizer().Size()
	if chunkSize <= 0 {
		return Receipt{}, ErrZeroChunkSize
	}

	r := &run{
		Uploader: u,
		t:        t,
		log: u.logger.WithFields(logrus.Fields{
			"family":     t.family.String(),
			"chunks":     len(t.blocks),
			"chunk_size": chunkSize,
		}),
	}

	if err := u.session.Subscribe(ctx, device.RoleReadNotifyCharacteristic); err != nil {
		return Receipt{}, err
	}
	r.transition(stateDraining, nil)

	receipt, err := r.transfer(ctx, chunkSize)

	if unsubErr := u.session.Unsubscribe(context.WithoutCancel(ctx), device.RoleReadNotifyCharacteristic); unsubErr != nil {
		if err == nil {
			return receipt, unsubErr
		}
		r.log.WithError(unsubErr).Warn("Failed to unsubscribe after failed upload")
	}

	if err != nil {
		return Receipt{}, err
	}
	r.log.WithFields(logrus.Fields{
		"bytes_written":    receipt.BytesWritten,
		"transport_chunks": receipt.TransportChunks,
		"cached":           receipt.Cached,
	}).Info("Upload complete")
	return receipt, nil
}

func (r *run) transfer(ctx context.Context, chunkSize int) (Receipt, error) {
	if err := r.drain(ctx); err != nil {
		r.transition(stateFailed, logrus.Fields{"error": err})
		return Receipt{}, err
	}

	if r.t.prelude != nil {
		if err := r.t.prelude(ctx); err != nil {
			r.transition(stateFailed, logrus.Fields{"error": err})
			return Receipt{}, err
		}
	}

	last := len(r.t.blocks) - 1
	for i, block := range r.t.blocks {
		if err := r.sendBlock(ctx, i, block, chunkSize); err != nil {
			if ctx.Err() == nil && r.sizer.ReduceOnFailure() {
				r.log.WithField("next_chunk_size", r.sizer.Size()).Debug("Reduced chunk size after write failure")
			}
			r.transition(stateFailed, logrus.Fields{"chunk": i, "error": err})
			return Receipt{}, err
		}
		r.receipt.LogicalChunks++

		r.transition(stateAwaitAck, logrus.Fields{"chunk": i})
		ev, err := r.awaitAck(ctx)
		if err != nil {
			next := stateFailed
			if errors.Is(err, ErrNotifyAckTimeout) {
				next = stateAckTimeout
			}
			r.transition(next, logrus.Fields{"chunk": i, "error": err})
			return Receipt{}, err
		}

		done, err := r.evaluate(ev, i, last)
		if err != nil {
			return Receipt{}, err
		}
		if done {
			r.transition(stateDone, logrus.Fields{"chunk": i, "cached": r.receipt.Cached})
			return r.receipt, nil
		}
	}

	r.transition(stateDone, nil)
	return r.receipt, nil
}

// evaluate applies one acknowledgement for chunk i. It returns true when the transfer is complete.
func (r *run) evaluate(ev notify.Event, i, last int) (bool, error) {
	family := r.t.family
	switch e := ev.(type) {
	case notify.NextPackage:
		if e.Family != family {
			break
		}
		if r.t.policy == ackAny {
			return true, nil
		}
		return i == last, nil
	case notify.Finished:
		if e.Family != family {
			break
		}
		switch {
		case r.t.policy == ackAny || i == last:
			return true, nil
		case r.t.policy == ackBulkCacheable && i == 0:
			r.receipt.Cached = true
			return true, nil
		default:
			r.transition(statePrematureFinish, logrus.Fields{"chunk": i})
			return false, &PrematureFinishError{Family: family, Chunk: i, Total: last + 1}
		}
	case notify.Error:
		if e.Family != family {
			break
		}
		r.transition(stateRejected, logrus.Fields{"chunk": i, "status": e.Status})
		return false, &TransferRejectedError{Family: family, Status: e.Status}
	}

	r.transition(stateFailed, logrus.Fields{"chunk": i, "event": ev.String()})
	return false, &UnexpectedNotifyEventError{Expected: family, Event: ev}
}

// drain discards stale notifications left over from earlier operations.
func (r *run) drain(ctx context.Context) error {
	for i := 0; i < drainLimit; i++ {
		waitCtx, cancel := context.WithTimeout(ctx, drainTimeout)
		n, err := r.session.AwaitNotification(waitCtx, device.RoleReadNotifyCharacteristic)
		cancel()

		switch {
		case err == nil:
			r.log.WithField("value", fmt.Sprintf("% x", n.Value)).Debug("Discarded stale notification")
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			return nil
		case errors.Is(err, device.ErrNotificationSourceClosed):
			return ErrMissingNotifyAck
		default:
			return err
		}
	}
	return nil
}

func (r *run) sendBlock(ctx context.Context, index int, block []byte, chunkSize int) error {
	for offset, fragment := 0, 0; offset < len(block); fragment++ {
		end := min(offset+chunkSize, len(block))

		if r.state != stateSendFragment {
			r.transition(stateSendFragment, logrus.Fields{"chunk": index})
		}
		r.log.WithFields(logrus.Fields{
			"chunk":    index,
			"fragment": fragment,
			"bytes":    end - offset,
		}).Trace("Writing fragment")

		if err := r.session.Write(ctx, device.RoleWriteCharacteristic, block[offset:end], device.WriteWithoutResponse); err != nil {
			return err
		}
		r.receipt.BytesWritten += end - offset
		r.receipt.TransportChunks++
		offset = end

		if delay := r.t.pacing.FragmentDelay; delay > 0 {
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *run) awaitAck(ctx context.Context) (notify.Event, error) {
	waitCtx, cancel := context.WithTimeout(ctx, r.t.pacing.ackTimeout())
	defer cancel()

	n, err := r.session.AwaitNotification(waitCtx, device.RoleReadNotifyCharacteristic)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return nil, ErrNotifyAckTimeout
	case errors.Is(err, device.ErrNotificationSourceClosed):
		return nil, ErrMissingNotifyAck
	default:
		return nil, err
	}

	ev, err := notify.Decode(n.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to decode acknowledgement: %w", err)
	}
	r.log.WithField("event", ev.String()).Debug("Received acknowledgement")
	return ev, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
