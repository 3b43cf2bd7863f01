package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-logr/logr"
)

// SocketListener accepts debuggers on a TCP port (server=y).
type SocketListener struct {
	l                net.Listener
	log              logr.Logger
	handshakeTimeout time.Duration
}

var _ Acceptor = (*SocketListener)(nil)

// ListenSocket binds addr. Binding happens here so that a port conflict is
// reported to the caller rather than discovered later.
func ListenSocket(addr string, log logr.Logger, handshakeTimeout time.Duration) (*SocketListener, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return &SocketListener{l: l, log: log, handshakeTimeout: handshakeTimeout}, nil
}

// Accept implements Acceptor. Connections that fail the handshake are
// dropped and accepting continues. Canceling ctx closes the listener.
func (s *SocketListener) Accept(ctx context.Context) (Conn, error) {
	stop := context.AfterFunc(ctx, func() { _ = s.l.Close() })
	defer stop()
	for {
		nc, err := s.l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		remote := nc.RemoteAddr().String()
		if err := handshake(ctx, nc, s.handshakeTimeout, serverHandshake); err != nil {
			_ = nc.Close()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.log.Info("rejecting connection", "remote", remote, "err", err)
			continue
		}
		return NewStreamConn(nc, remote), nil
	}
}

func (s *SocketListener) Close() error {
	if err := s.l.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func (s *SocketListener) Addr() string {
	return s.l.Addr().String()
}
