package bridge

import (
	"io"
	"sync"

	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ByteStream is either side of an Attach stream.
type ByteStream interface {
	Send(*wrapperspb.BytesValue) error
	Recv() (*wrapperspb.BytesValue, error)
}

// StreamConn adapts a ByteStream to an io.ReadWriteCloser. Message boundaries
// are not preserved. Reads and writes may run concurrently with each other but
// not with themselves.
type StreamConn struct {
	s       ByteStream
	pending []byte

	closeOnce sync.Once
	closeFn   func() error
	closeErr  error
}

var _ io.ReadWriteCloser = (*StreamConn)(nil)

// NewStreamConn wraps s. closeFn, if non-nil, is called once by Close and
// must unblock pending Recv calls.
func NewStreamConn(s ByteStream, closeFn func() error) *StreamConn {
	return &StreamConn{s: s, closeFn: closeFn}
}

func (c *StreamConn) Read(p []byte) (int, error) {
	for len(c.pending) == 0 {
		m, err := c.s.Recv()
		if err != nil {
			return 0, err
		}
		c.pending = m.GetValue()
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

// Write sends p as one message. The message is serialized before Send
// returns, so p may be reused.
func (c *StreamConn) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := c.s.Send(wrapperspb.Bytes(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *StreamConn) Close() error {
	c.closeOnce.Do(func() {
		if c.closeFn != nil {
			c.closeErr = c.closeFn()
		}
	})
	return c.closeErr
}
