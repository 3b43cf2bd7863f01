// Package jdwp is a JDWP event and suspension engine for an embedding
// runtime. The runtime reports thread, exception, location, class and VM
// lifecycle events through the Post methods; the engine encodes the ones the
// attached debugger asked for into Composite event packets and coordinates
// thread suspension so the debugger always sees a stopped event thread.
//
// A dedicated protocol goroutine owns the receive side of the debugger
// connection and answers a minimal set of commands itself. Everything else is
// forwarded to a CommandHandler.
package jdwp

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/DataExMachina-dev/side-eye-jdwp/internal/framing"
	"github.com/DataExMachina-dev/side-eye-jdwp/internal/osthread"
	"github.com/DataExMachina-dev/side-eye-jdwp/internal/suspend"
	"github.com/DataExMachina-dev/side-eye-jdwp/internal/transport"
	"github.com/DataExMachina-dev/side-eye-jdwp/internal/vmident"
)

// ErrClosed is returned by Startup when the engine stopped before a debugger
// attached.
var ErrClosed = errors.New("jdwp engine closed")

// errNotAttached means a packet was dropped because its session is gone.
var errNotAttached = errors.New("no debugger attached")

// Packet ids of packets we originate start high so they are easy to tell
// apart from debugger ids in traces.
const firstSerial = 0x10000000

// Engine is the per-VM JDWP state. It is created by Startup and released by
// Shutdown. All methods are safe for concurrent use.
type Engine struct {
	cfg      config
	log      logr.Logger
	params   StartupParams
	ident    vmident.Identity
	acceptor transport.Acceptor

	slot     *suspend.Slot
	requests *eventRequests

	serial        atomic.Uint32
	debugThread   atomic.Int64
	vmStartPosted atomic.Bool

	// sendMu orders every outbound packet on the connection. It is taken
	// before mu when both are needed.
	sendMu sync.Mutex

	mu struct {
		sync.Mutex
		state        State
		conn         transport.Conn
		session      uuid.UUID
		lastActivity time.Time
		// busy is set while a debugger command is being processed.
		busy bool
	}

	// attached is closed the first time a debugger attaches.
	attached     chan struct{}
	attachedOnce sync.Once

	// ctx is canceled when the engine terminates.
	ctx    context.Context
	cancel context.CancelFunc
	g      *errgroup.Group

	terminateOnce sync.Once
}

func newEngine(
	cfg config, params StartupParams, ident vmident.Identity, acceptor transport.Acceptor,
) *Engine {
	g, gctx := errgroup.WithContext(context.Background())
	ctx, cancel := context.WithCancel(gctx)
	e := &Engine{
		cfg:      cfg,
		log:      cfg.log,
		params:   params,
		ident:    ident,
		acceptor: acceptor,
		slot:     suspend.NewSlot(),
		requests: newEventRequests(),
		attached: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		g:        g,
	}
	e.serial.Store(firstSerial)
	e.mu.state = Detached
	return e
}

func (e *Engine) start() {
	e.g.Go(e.run)
}

// State returns the current attachment state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mu.state
}

// IsActive reports whether a debugger is attached.
func (e *Engine) IsActive() bool {
	return e.State() == Attached
}

// DebugThread returns the OS thread id of the protocol goroutine, or 0 if it
// is not running.
func (e *Engine) DebugThread() int {
	return int(e.debugThread.Load())
}

// onDebugThread reports whether the caller is the protocol goroutine, e.g. a
// CommandHandler that prepares a class while answering a command. The
// protocol goroutine is locked to its OS thread, so the thread id identifies
// it.
func (e *Engine) onDebugThread() bool {
	if !osthread.Comparable {
		return false
	}
	id := e.debugThread.Load()
	return id != 0 && int64(osthread.Current()) == id
}

// eventThread returns the thread an event raised by the caller is reported
// on. Events raised by the protocol goroutine carry no thread.
func (e *Engine) eventThread() ObjectID {
	if e.onDebugThread() {
		return 0
	}
	return e.cfg.vm.ThreadSelfID()
}

// LastDebuggerActivity returns the milliseconds since the debugger last sent
// a command. It returns -1 when no debugger is attached and 0 while a command
// is being processed.
func (e *Engine) LastDebuggerActivity() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mu.state != Attached {
		return -1
	}
	if e.mu.busy {
		return 0
	}
	return e.cfg.now().Sub(e.mu.lastActivity).Milliseconds()
}

// Status is a snapshot of the engine for display.
type Status struct {
	State        State
	Session      uuid.UUID
	RemoteAddr   string
	ListenAddr   string
	Transport    TransportType
	Server       bool
	LastActivity int64
	DebugThread  int
	Requests     int
	Identity     vmident.Identity
}

// Status returns a snapshot of the engine.
func (e *Engine) Status() Status {
	last := e.LastDebuggerActivity()
	e.mu.Lock()
	s := Status{
		State:        e.mu.state,
		Session:      e.mu.session,
		LastActivity: last,
	}
	if e.mu.conn != nil {
		s.RemoteAddr = e.mu.conn.RemoteAddr()
	}
	e.mu.Unlock()
	s.ListenAddr = e.acceptor.Addr()
	s.Transport = e.params.Transport
	s.Server = e.params.Server
	s.DebugThread = e.DebugThread()
	s.Requests = e.requests.len()
	s.Identity = e.ident
	return s
}

// SetWaitForEventThread records threadID as the thread that must suspend
// before the debugger's next command is processed. It must be called before
// the event packet that caused the suspension is sent. If another thread's
// episode is in progress it blocks until that one is cleared.
//
// Calling it twice for the same thread without ClearWaitForEventThread in
// between panics.
func (e *Engine) SetWaitForEventThread(threadID ObjectID) {
	e.slot.Set(uint64(threadID))
}

// ClearWaitForEventThread is called once the flagged thread has actually
// parked. It lets the protocol goroutine continue.
func (e *Engine) ClearWaitForEventThread() {
	e.slot.Clear()
}

// WaitForEventThread blocks until no thread is flagged. It never times out
// on its own.
func (e *Engine) WaitForEventThread(ctx context.Context) error {
	return e.slot.Wait(ctx)
}

// Disconnect drops the current debugger session, if any. In server mode the
// engine then waits for the next debugger.
func (e *Engine) Disconnect() {
	e.mu.Lock()
	conn := e.mu.conn
	e.mu.Unlock()
	if conn != nil {
		e.dropSession(conn, nil)
	}
}

// Shutdown stops the protocol goroutine, releases the transport and waits
// for everything to exit. It must not be called from a CommandHandler.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	if e.mu.state != Closed {
		e.mu.state = ShuttingDown
	}
	e.mu.Unlock()
	e.terminate()
	if err := e.g.Wait(); err != nil {
		e.log.Error(err, "jdwp protocol goroutine failed")
	}
}

// terminate releases the transport and unblocks everything waiting on the
// engine. It does not wait for the protocol goroutine.
func (e *Engine) terminate() {
	e.terminateOnce.Do(func() {
		e.mu.Lock()
		conn := e.mu.conn
		e.mu.conn = nil
		if e.mu.state != Closed {
			e.mu.state = ShuttingDown
		}
		e.mu.Unlock()

		e.cancel()
		e.slot.Close()
		var errs []error
		if conn != nil {
			errs = append(errs, conn.Close())
		}
		errs = append(errs, e.acceptor.Close())
		if err := errors.Join(errs...); err != nil {
			e.log.V(1).Info("error releasing transport", "err", err)
		}

		e.mu.Lock()
		e.mu.state = Closed
		e.mu.Unlock()
	})
}

func (e *Engine) nextSerial() uint32 {
	return e.serial.Add(1)
}

// attachedConn returns the session connection if a debugger is attached.
func (e *Engine) attachedConn() transport.Conn {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mu.state != Attached {
		return nil
	}
	return e.mu.conn
}

func (e *Engine) isAttachedConn(conn transport.Conn) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mu.state == Attached && e.mu.conn == conn
}

// sendPacket writes one packet, given as consecutive pieces, under the send
// lock. With attachedOnly set the packet is dropped unless conn is still the
// attached session. A write failure drops the session.
func (e *Engine) sendPacket(conn transport.Conn, attachedOnly bool, bufs ...[]byte) error {
	e.sendMu.Lock()
	defer e.sendMu.Unlock()
	if attachedOnly && !e.isAttachedConn(conn) {
		return errNotAttached
	}
	if err := conn.WriteBuffers(bufs...); err != nil {
		e.dropSession(conn, err)
		return err
	}
	return nil
}

// dropSession detaches conn if it is still the current session and closes
// it. The protocol goroutine notices the closed connection and cleans up.
func (e *Engine) dropSession(conn transport.Conn, err error) {
	e.mu.Lock()
	current := e.mu.conn == conn
	if current && e.mu.state == Attached {
		e.mu.state = Detached
	}
	e.mu.Unlock()
	if !current {
		return
	}
	if err != nil {
		e.log.Info("debugger connection failed", "remote", conn.RemoteAddr(), "err", err)
	}
	_ = conn.Close()
}

// attach makes conn the current session. It fails if the engine is shutting
// down.
func (e *Engine) attach(conn transport.Conn) bool {
	e.mu.Lock()
	if e.mu.state != Detached {
		e.mu.Unlock()
		return false
	}
	e.mu.state = Attached
	e.mu.conn = conn
	e.mu.session = uuid.New()
	e.mu.lastActivity = e.cfg.now()
	e.mu.busy = false
	session := e.mu.session
	e.mu.Unlock()

	e.attachedOnce.Do(func() { close(e.attached) })
	e.log.Info("debugger attached", "session", session, "remote", conn.RemoteAddr())
	return true
}

// endSession forgets everything the debugger set up and lets the VM run
// again.
func (e *Engine) endSession(conn transport.Conn) {
	e.mu.Lock()
	session := e.mu.session
	if e.mu.conn == conn {
		e.mu.conn = nil
	}
	if e.mu.state == Attached {
		e.mu.state = Detached
	}
	shuttingDown := e.mu.state == ShuttingDown || e.mu.state == Closed
	e.mu.Unlock()
	_ = conn.Close()

	e.notifyRemoved(e.requests.clear())
	if !shuttingDown {
		e.cfg.vm.ResumeAllThreads()
	}
	e.log.Info("debugger detached", "session", session, "remote", conn.RemoteAddr())
}

func (e *Engine) markBusy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mu.busy = true
}

func (e *Engine) markActivity() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mu.busy = false
	e.mu.lastActivity = e.cfg.now()
}

func (e *Engine) notifyAdded(req EventRequest) {
	if obs, ok := e.cfg.vm.(EventRequestObserver); ok {
		obs.EventRequestAdded(req)
	}
}

func (e *Engine) notifyRemoved(reqs []EventRequest) {
	obs, ok := e.cfg.vm.(EventRequestObserver)
	if !ok {
		return
	}
	for _, req := range reqs {
		obs.EventRequestRemoved(req)
	}
}

// newPacketBuf returns a buffer with room reserved for the packet header.
func newPacketBuf() *ExpandBuf {
	buf := NewExpandBuf(128)
	buf.Reserve(framing.HeaderLen)
	return buf
}

// finishCommand fills in the header of a command packet built with
// newPacketBuf.
func (e *Engine) finishCommand(buf *ExpandBuf, cmdSet, cmd uint8) []byte {
	b := buf.Bytes()
	framing.Header{
		Length:     uint32(len(b)),
		ID:         e.nextSerial(),
		CommandSet: cmdSet,
		Command:    cmd,
	}.Put(b)
	return b
}

// finishReply fills in the header of a reply packet built with newPacketBuf.
func finishReply(buf *ExpandBuf, id uint32, code ErrorCode) []byte {
	b := buf.Bytes()
	framing.Header{
		Length:    uint32(len(b)),
		ID:        id,
		Flags:     framing.FlagReply,
		ErrorCode: uint16(code),
	}.Put(b)
	return b
}
