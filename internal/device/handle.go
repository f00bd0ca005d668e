package device

import (
	"context"
	"sync"
	"sync/atomic"
)

// transportHandle shares one ConnectedSession between a Session and its streams.
// Streams retain it for opportunistic cleanup but never own the transport: only
// close disconnects, and only the first call does so.
type transportHandle struct {
	conn     ConnectedSession
	refs     atomic.Int32
	closed   atomic.Bool
	once     sync.Once
	closeErr error
}

func newTransportHandle(conn ConnectedSession) *transportHandle {
	h := &transportHandle{conn: conn}
	h.refs.Store(1)
	return h
}

// get returns the transport or ErrNotConnected once closed.
func (h *transportHandle) get() (ConnectedSession, error) {
	if h.closed.Load() {
		return nil, ErrNotConnected
	}
	return h.conn, nil
}

func (h *transportHandle) retain() *transportHandle {
	h.refs.Add(1)
	return h
}

// release drops one reference and returns how many remain.
func (h *transportHandle) release() int32 {
	return h.refs.Add(-1)
}

func (h *transportHandle) isClosed() bool {
	return h.closed.Load()
}

// close disconnects exactly once; later calls return the first result.
func (h *transportHandle) close(ctx context.Context) error {
	h.once.Do(func() {
		h.closed.Store(true)
		h.closeErr = h.conn.Disconnect(ctx)
	})
	return h.closeErr
}
