package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Handshake is exchanged by both sides before the first packet.
const Handshake = "JDWP-Handshake"

var ErrHandshake = errors.New("JDWP handshake failed")

// serverHandshake waits for the debugger's handshake and echoes it.
func serverHandshake(rw io.ReadWriter) error {
	if err := readHandshake(rw); err != nil {
		return err
	}
	return writeHandshake(rw)
}

// clientHandshake sends the handshake and waits for the echo.
func clientHandshake(rw io.ReadWriter) error {
	if err := writeHandshake(rw); err != nil {
		return err
	}
	return readHandshake(rw)
}

func readHandshake(r io.Reader) error {
	var buf [len(Handshake)]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	if !bytes.Equal(buf[:], []byte(Handshake)) {
		return fmt.Errorf("%w: unexpected %q", ErrHandshake, buf[:])
	}
	return nil
}

func writeHandshake(w io.Writer) error {
	toWrite := []byte(Handshake)
	for len(toWrite) > 0 {
		n, err := w.Write(toWrite)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrHandshake, err)
		}
		toWrite = toWrite[n:]
	}
	return nil
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// withTimeout runs the handshake fn on rwc, giving up after timeout. Streams
// without deadlines are closed to unblock fn. A zero timeout waits forever.
func withTimeout(rwc io.ReadWriteCloser, timeout time.Duration, fn func(io.ReadWriter) error) error {
	if timeout <= 0 {
		return fn(rwc)
	}
	if d, ok := rwc.(deadliner); ok {
		if err := d.SetDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
		err := fn(rwc)
		if resetErr := d.SetDeadline(time.Time{}); err == nil {
			err = resetErr
		}
		return err
	}
	t := time.AfterFunc(timeout, func() { _ = rwc.Close() })
	err := fn(rwc)
	if !t.Stop() {
		return fmt.Errorf("%w: timed out after %s", ErrHandshake, timeout)
	}
	return err
}

// handshake runs fn on conn under the timeout. Canceling ctx closes conn so
// that a peer that never completes the handshake cannot hold the caller.
func handshake(
	ctx context.Context, conn io.ReadWriteCloser, timeout time.Duration, fn func(io.ReadWriter) error,
) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	err := withTimeout(conn, timeout, fn)
	if !stop() {
		return ctx.Err()
	}
	return err
}
