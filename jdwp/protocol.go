package jdwp

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/DataExMachina-dev/side-eye-jdwp/internal/framing"
	"github.com/DataExMachina-dev/side-eye-jdwp/internal/osthread"
	"github.com/DataExMachina-dev/side-eye-jdwp/internal/transport"
)

// PanicError is returned by the protocol goroutine when it panics.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v\n%s", e.Value, e.Stack)
}

// run is the protocol goroutine. It establishes sessions one at a time and
// serves each until it ends.
func (e *Engine) run() (err error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	e.debugThread.Store(int64(osthread.Current()))
	defer e.debugThread.Store(0)
	defer e.terminate()
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
			e.log.Error(err, "jdwp protocol goroutine panicked")
		}
	}()

	for {
		conn, err := e.acceptor.Accept(e.ctx)
		if err != nil {
			if e.ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to establish debugger session on %s: %w", e.acceptor.Addr(), err)
		}
		if !e.attach(conn) {
			_ = conn.Close()
			return nil
		}
		e.serve(conn)
		e.endSession(conn)
		if e.ctx.Err() != nil || !e.reconnects() {
			return nil
		}
	}
}

// reconnects reports whether the engine waits for another debugger once a
// session ends.
func (e *Engine) reconnects() bool {
	switch e.params.Transport {
	case TransportSocket:
		return e.params.Server
	case TransportBridge:
		return true
	case TransportUnknown:
		return false
	default:
		panic(fmt.Sprintf("unexpected transport: %d", int(e.params.Transport)))
	}
}

// serve processes commands until the connection fails or the debugger
// disposes of it.
func (e *Engine) serve(conn transport.Conn) {
	for {
		pkt, err := conn.ReadPacket()
		if err != nil {
			if e.ctx.Err() == nil {
				e.log.V(1).Info("debugger connection closed", "remote", conn.RemoteAddr(), "err", err)
			}
			return
		}
		hdr, err := framing.ParseHeader(pkt)
		if err != nil {
			e.log.Info("dropping malformed packet", "err", err)
			return
		}
		if hdr.IsReply() {
			// We never wait for replies to our events.
			e.log.V(1).Info("ignoring reply", "id", hdr.ID, "error", ErrorCode(hdr.ErrorCode).String())
			continue
		}

		if err := e.waitForEventThread(); err != nil {
			return
		}
		e.markBusy()
		reply, dispose := e.handle(hdr, pkt[framing.HeaderLen:])
		if err := e.sendPacket(conn, false, reply); err != nil {
			return
		}
		e.markActivity()
		if dispose {
			e.log.V(1).Info("debugger disposed of the connection", "remote", conn.RemoteAddr())
			return
		}
	}
}

// waitForEventThread blocks until no event thread is about to suspend,
// logging if that takes suspiciously long.
func (e *Engine) waitForEventThread() error {
	if e.cfg.suspendWarnAfter <= 0 {
		return e.slot.Wait(e.ctx)
	}
	for {
		ctx, cancel := context.WithTimeout(e.ctx, e.cfg.suspendWarnAfter)
		err := e.slot.Wait(ctx)
		cancel()
		if err == nil || e.ctx.Err() != nil || !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		thread, _ := e.slot.Get()
		e.log.Info("still waiting for event thread to suspend",
			"thread", thread, "after", e.cfg.suspendWarnAfter)
	}
}
