package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
)

// Dialer connects out to a listening debugger (server=n). Failed attempts are
// retried with the backoff policy until it gives up or ctx is done.
type Dialer struct {
	addr             string
	log              logr.Logger
	newBackOff       func() backoff.BackOff
	handshakeTimeout time.Duration
	d                net.Dialer
}

var _ Acceptor = (*Dialer)(nil)

func NewDialer(
	addr string,
	log logr.Logger,
	newBackOff func() backoff.BackOff,
	handshakeTimeout time.Duration,
) *Dialer {
	return &Dialer{
		addr:             addr,
		log:              log,
		newBackOff:       newBackOff,
		handshakeTimeout: handshakeTimeout,
	}
}

// Accept implements Acceptor.
func (d *Dialer) Accept(ctx context.Context) (Conn, error) {
	return backoff.RetryNotifyWithData(
		func() (Conn, error) {
			nc, err := d.d.DialContext(ctx, "tcp", d.addr)
			if err != nil {
				return nil, fmt.Errorf("failed to dial %s: %w", d.addr, err)
			}
			if err := handshake(ctx, nc, d.handshakeTimeout, clientHandshake); err != nil {
				_ = nc.Close()
				return nil, err
			}
			return NewStreamConn(nc, d.addr), nil
		},
		backoff.WithContext(d.newBackOff(), ctx),
		func(err error, wait time.Duration) {
			d.log.V(1).Info("debugger connection failed, retrying", "err", err, "wait", wait)
		},
	)
}

func (d *Dialer) Close() error {
	return nil
}

func (d *Dialer) Addr() string {
	return d.addr
}
