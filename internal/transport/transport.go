// Package transport carries JDWP packets between the engine and a debugger.
// Every transport begins with the JDWP-Handshake exchange and then moves
// whole packets.
package transport

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"

	"github.com/DataExMachina-dev/side-eye-jdwp/internal/framing"
)

// Conn is an established debugger session.
type Conn interface {
	// ReadPacket returns the next packet including its header.
	ReadPacket() ([]byte, error)
	// WriteBuffers writes the concatenation of bufs. Callers serialize writes.
	WriteBuffers(bufs ...[]byte) error
	// Close unblocks any pending ReadPacket.
	Close() error
	RemoteAddr() string
}

// Acceptor produces debugger sessions, one at a time.
type Acceptor interface {
	// Accept blocks until a debugger is connected and has completed the
	// handshake, or ctx is done.
	Accept(ctx context.Context) (Conn, error)
	Close() error
	Addr() string
}

// streamConn frames packets over a byte stream.
type streamConn struct {
	rwc    io.ReadWriteCloser
	r      *bufio.Reader
	maxLen uint32
	remote string

	closeOnce sync.Once
	closeErr  error
}

// NewStreamConn wraps a byte stream on which the handshake has already been
// exchanged.
func NewStreamConn(rwc io.ReadWriteCloser, remote string) Conn {
	return &streamConn{
		rwc:    rwc,
		r:      bufio.NewReader(rwc),
		maxLen: framing.DefaultMaxPacketLen,
		remote: remote,
	}
}

func (c *streamConn) ReadPacket() ([]byte, error) {
	return framing.ReadPacket(c.r, c.maxLen)
}

func (c *streamConn) WriteBuffers(bufs ...[]byte) error {
	if nc, ok := c.rwc.(net.Conn); ok {
		nb := make(net.Buffers, len(bufs))
		copy(nb, bufs)
		_, err := nb.WriteTo(nc)
		return err
	}
	n := 0
	for _, b := range bufs {
		n += len(b)
	}
	joined := make([]byte, 0, n)
	for _, b := range bufs {
		joined = append(joined, b...)
	}
	_, err := c.rwc.Write(joined)
	return err
}

func (c *streamConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.rwc.Close()
	})
	return c.closeErr
}

func (c *streamConn) RemoteAddr() string {
	return c.remote
}
