package jdwp

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DataExMachina-dev/side-eye-jdwp/internal/framing"
	"github.com/DataExMachina-dev/side-eye-jdwp/internal/transport"
	"github.com/DataExMachina-dev/side-eye-jdwp/internal/vmident"
)

const testTimeout = 5 * time.Second

// fakeConn is an in-memory session that records every packet written to it.
type fakeConn struct {
	in  chan []byte
	out chan []byte

	failWrites atomic.Bool
	writes     atomic.Int32

	closeOnce sync.Once
	closed    chan struct{}
}

var _ transport.Conn = (*fakeConn)(nil)

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadPacket() ([]byte, error) {
	select {
	case p := <-c.in:
		return p, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeConn) WriteBuffers(bufs ...[]byte) error {
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}
	if c.failWrites.Load() {
		return io.ErrClosedPipe
	}
	var joined []byte
	for _, b := range bufs {
		joined = append(joined, b...)
	}
	c.writes.Add(1)
	c.out <- joined
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) RemoteAddr() string {
	return "fake"
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// next returns the next packet the engine wrote.
func (c *fakeConn) next(t *testing.T) []byte {
	t.Helper()
	select {
	case p := <-c.out:
		return p
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for a packet")
		return nil
	}
}

func (c *fakeConn) requireNoPacket(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case p := <-c.out:
		t.Fatalf("unexpected packet: %x", p)
	case <-time.After(d):
	}
}

// command sends a command packet and returns the payload of its reply.
func (c *fakeConn) command(t *testing.T, id uint32, cmdSet, cmd uint8, payload []byte) (ErrorCode, []byte) {
	t.Helper()
	c.in <- commandPacket(id, cmdSet, cmd, payload)
	p := c.next(t)
	h, err := framing.ParseHeader(p)
	require.NoError(t, err)
	require.True(t, h.IsReply(), "expected a reply, got command %d/%d", h.CommandSet, h.Command)
	require.Equal(t, id, h.ID)
	require.Equal(t, int(h.Length), len(p))
	return ErrorCode(h.ErrorCode), p[framing.HeaderLen:]
}

func commandPacket(id uint32, cmdSet, cmd uint8, payload []byte) []byte {
	b := make([]byte, framing.HeaderLen, framing.HeaderLen+len(payload))
	framing.Header{
		Length:     uint32(framing.HeaderLen + len(payload)),
		ID:         id,
		CommandSet: cmdSet,
		Command:    cmd,
	}.Put(b)
	return append(b, payload...)
}

// fakeAcceptor hands out connections pushed by the test.
type fakeAcceptor struct {
	conns     chan transport.Conn
	closeOnce sync.Once
	closed    chan struct{}
}

var _ transport.Acceptor = (*fakeAcceptor)(nil)

func newFakeAcceptor() *fakeAcceptor {
	return &fakeAcceptor{
		conns:  make(chan transport.Conn),
		closed: make(chan struct{}),
	}
}

func (a *fakeAcceptor) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case c := <-a.conns:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-a.closed:
		return nil, net.ErrClosed
	}
}

func (a *fakeAcceptor) Close() error {
	a.closeOnce.Do(func() { close(a.closed) })
	return nil
}

func (a *fakeAcceptor) Addr() string {
	return "fake:0"
}

func withClock(now func() time.Time) Option {
	return optionFunc(func(cfg *config) {
		cfg.now = now
	})
}

// startTestEngine runs an engine in server mode over a fakeAcceptor.
func startTestEngine(t *testing.T, opts ...Option) (*Engine, *fakeAcceptor) {
	t.Helper()
	cfg := makeDefaultConfig()
	cfg.suspendWarnAfter = 0
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	acc := newFakeAcceptor()
	params := StartupParams{Transport: TransportSocket, Server: true}
	e, err := startEngine(context.Background(), cfg, params, vmident.Identity{Pid: 1234}, acc)
	require.NoError(t, err)
	t.Cleanup(e.Shutdown)
	return e, acc
}

// attach connects a new debugger and waits for the engine to notice.
func attach(t *testing.T, e *Engine, acc *fakeAcceptor) *fakeConn {
	t.Helper()
	conn := newFakeConn()
	select {
	case acc.conns <- conn:
	case <-time.After(testTimeout):
		t.Fatal("engine is not accepting")
	}
	require.Eventually(t, func() bool { return e.isAttachedConn(conn) }, testTimeout, time.Millisecond)
	return conn
}

// modifier encodes one EventRequest.Set modifier.
type modifier func(b *ExpandBuf)

func countMod(n int32) modifier {
	return func(b *ExpandBuf) {
		b.Add1(uint8(ModCount))
		b.Add4BE(uint32(n))
	}
}

func threadOnlyMod(id ObjectID) modifier {
	return func(b *ExpandBuf) {
		b.Add1(uint8(ModThreadOnly))
		b.AddObjectID(id)
	}
}

func locationOnlyMod(l Location) modifier {
	return func(b *ExpandBuf) {
		b.Add1(uint8(ModLocationOnly))
		b.AddLocation(l)
	}
}

func exceptionOnlyMod(class RefTypeID, caught, uncaught bool) modifier {
	return func(b *ExpandBuf) {
		b.Add1(uint8(ModExceptionOnly))
		b.AddRefTypeID(class)
		b.Add1(boolByte(caught))
		b.Add1(boolByte(uncaught))
	}
}

func classMatchMod(pattern string) modifier {
	return func(b *ExpandBuf) {
		b.Add1(uint8(ModClassMatch))
		b.AddUTF8String(pattern)
	}
}

func boolByte(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}

func eventRequestPayload(kind EventKind, policy SuspendPolicy, mods ...modifier) []byte {
	b := NewExpandBuf(32)
	b.Add1(uint8(kind))
	b.Add1(uint8(policy))
	b.Add4BE(uint32(len(mods)))
	for _, m := range mods {
		m(b)
	}
	return b.Bytes()
}

var nextCommandID atomic.Uint32

// setRequest registers an event request and returns its id.
func setRequest(t *testing.T, conn *fakeConn, kind EventKind, policy SuspendPolicy, mods ...modifier) uint32 {
	t.Helper()
	code, reply := conn.command(t, nextCommandID.Add(1), CmdSetEventRequest, CmdEventRequestSet,
		eventRequestPayload(kind, policy, mods...))
	require.Equal(t, ErrNone, code)
	r := NewReader(reply)
	require.Equal(t, 4, r.Remaining())
	id := r.Read4BE()
	require.NotZero(t, id)
	return id
}

type compositeEntry struct {
	kind      EventKind
	requestID uint32
}

// readComposite checks that pkt is an Event.Composite packet and returns its
// policy and a reader positioned at the first entry.
func readComposite(t *testing.T, pkt []byte) (SuspendPolicy, uint32, *Reader) {
	t.Helper()
	h, err := framing.ParseHeader(pkt)
	require.NoError(t, err)
	require.False(t, h.IsReply())
	require.Equal(t, CmdSetEvent, h.CommandSet)
	require.Equal(t, CmdEventComposite, h.Command)
	require.Equal(t, int(h.Length), len(pkt))
	r := NewReader(pkt[framing.HeaderLen:])
	policy := SuspendPolicy(r.Read1())
	count := r.Read4BE()
	return policy, count, r
}

func readEntryHeader(r *Reader) compositeEntry {
	return compositeEntry{kind: EventKind(r.Read1()), requestID: r.Read4BE()}
}

// testVM records what the engine asks of it. SuspendSelf reports the thread
// parked immediately.
type testVM struct {
	self ObjectID

	suspendAll  atomic.Int32
	resumeAll   atomic.Int32
	suspendSelf atomic.Int32
	exitStatus  atomic.Int32

	mu      sync.Mutex
	added   []EventRequest
	removed []EventRequest
	classes map[RefTypeID]string
}

var (
	_ VM                   = (*testVM)(nil)
	_ EventRequestObserver = (*testVM)(nil)
)

func (v *testVM) ThreadSelfID() ObjectID { return v.self }
func (v *testVM) SuspendAllThreads()     { v.suspendAll.Add(1) }
func (v *testVM) ResumeAllThreads()      { v.resumeAll.Add(1) }
func (v *testVM) Exit(status int32)      { v.exitStatus.Store(status) }

func (v *testVM) SuspendSelf(parked func()) {
	v.suspendSelf.Add(1)
	parked()
}

func (v *testVM) ClassDescriptor(id RefTypeID) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.classes[id]
	return s, ok
}

func (v *testVM) EventRequestAdded(req EventRequest) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.added = append(v.added, req)
}

func (v *testVM) EventRequestRemoved(req EventRequest) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.removed = append(v.removed, req)
}

func (v *testVM) removedCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.removed)
}
