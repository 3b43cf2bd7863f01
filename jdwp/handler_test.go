package jdwp

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DataExMachina-dev/side-eye-jdwp/internal/ddm"
)

func TestVersionAndIDSizes(t *testing.T) {
	t.Parallel()

	v := VersionInfo{Description: "test vm", JDWPMajor: 1, JDWPMinor: 8, VMVersion: "0.1", VMName: "testvm"}
	e, acc := startTestEngine(t, WithVersion(v))
	conn := attach(t, e, acc)

	code, reply := conn.command(t, 1, CmdSetVirtualMachine, CmdVMVersion, nil)
	require.Equal(t, ErrNone, code)
	r := NewReader(reply)
	desc, ok := r.ReadUTF8String()
	require.True(t, ok)
	require.Equal(t, "test vm", desc)
	require.Equal(t, uint32(1), r.Read4BE())
	require.Equal(t, uint32(8), r.Read4BE())
	vmVersion, _ := r.ReadUTF8String()
	require.Equal(t, "0.1", vmVersion)
	vmName, _ := r.ReadUTF8String()
	require.Equal(t, "testvm", vmName)
	require.Zero(t, r.Remaining())

	code, reply = conn.command(t, 2, CmdSetVirtualMachine, CmdVMIDSizes, nil)
	require.Equal(t, ErrNone, code)
	require.Len(t, reply, 20)
	var sizes []uint32
	for i := 0; i < 5; i++ {
		sizes = append(sizes, binary.BigEndian.Uint32(reply[4*i:]))
	}
	require.Equal(t, []uint32{4, 4, 8, 8, 8}, sizes)
}

func TestSuspendResumeExit(t *testing.T) {
	t.Parallel()

	vm := &testVM{}
	e, acc := startTestEngine(t, WithVM(vm))
	conn := attach(t, e, acc)

	code, _ := conn.command(t, 1, CmdSetVirtualMachine, CmdVMSuspend, nil)
	require.Equal(t, ErrNone, code)
	require.Equal(t, int32(1), vm.suspendAll.Load())
	code, _ = conn.command(t, 2, CmdSetVirtualMachine, CmdVMResume, nil)
	require.Equal(t, ErrNone, code)
	require.Equal(t, int32(1), vm.resumeAll.Load())

	code, _ = conn.command(t, 3, CmdSetVirtualMachine, CmdVMExit, nil)
	require.Equal(t, ErrIllegalArgument, code)
	code, _ = conn.command(t, 4, CmdSetVirtualMachine, CmdVMExit, []byte{0, 0, 0, 3})
	require.Equal(t, ErrNone, code)
	require.Equal(t, int32(3), vm.exitStatus.Load())
}

func TestUnknownCommand(t *testing.T) {
	t.Parallel()

	e, acc := startTestEngine(t)
	conn := attach(t, e, acc)
	code, reply := conn.command(t, 1, 2, 1, nil)
	require.Equal(t, ErrNotImplemented, code)
	require.Empty(t, reply)
}

func TestCommandHandler(t *testing.T) {
	t.Parallel()

	h := CommandHandlerFunc(func(cmdSet, cmd uint8, r *Reader, reply *ExpandBuf) ErrorCode {
		if cmdSet != 11 || cmd != 1 {
			reply.Add1(0xFF)
			return ErrNotImplemented
		}
		if r.Remaining() < ObjectIDSize {
			return ErrIllegalArgument
		}
		thread := ReadObjectID(r)
		reply.AddUTF8String("thread-" + string(rune('0'+thread)))
		return ErrNone
	})
	e, acc := startTestEngine(t, WithCommandHandler(h))
	conn := attach(t, e, acc)

	b := NewExpandBuf(8)
	b.AddObjectID(7)
	code, reply := conn.command(t, 1, 11, 1, b.Bytes())
	require.Equal(t, ErrNone, code)
	name, ok := NewReader(reply).ReadUTF8String()
	require.True(t, ok)
	require.Equal(t, "thread-7", name)

	code, reply = conn.command(t, 2, 11, 1, []byte{1})
	require.Equal(t, ErrIllegalArgument, code)
	require.Empty(t, reply)

	// Error replies carry no payload even if the handler wrote one.
	code, reply = conn.command(t, 3, 12, 1, nil)
	require.Equal(t, ErrNotImplemented, code)
	require.Empty(t, reply)
}

func TestEventRequestSetErrors(t *testing.T) {
	t.Parallel()

	e, acc := startTestEngine(t)
	conn := attach(t, e, acc)

	for _, tc := range []struct {
		name    string
		payload []byte
		want    ErrorCode
	}{
		{"empty", nil, ErrIllegalArgument},
		{"truncated header", []byte{6, 0, 0}, ErrIllegalArgument},
		{"unknown kind", eventRequestPayload(EventKind(77), SuspendNone), ErrInvalidEventType},
		{"bad policy", eventRequestPayload(EventThreadStart, SuspendPolicy(9)), ErrIllegalArgument},
		{"too many modifiers", []byte{6, 0, 0, 0, 0, 5, 1}, ErrIllegalArgument},
		{"truncated count", []byte{6, 0, 0, 0, 0, 1, byte(ModCount), 0, 0}, ErrIllegalArgument},
		{"zero count", eventRequestPayload(EventThreadStart, SuspendNone, countMod(0)), ErrIllegalArgument},
		{"truncated location", []byte{2, 0, 0, 0, 0, 1, byte(ModLocationOnly), 1, 0, 0}, ErrIllegalArgument},
		{"truncated pattern", []byte{8, 0, 0, 0, 0, 1, byte(ModClassMatch), 0, 0, 0, 9, 'a'}, ErrIllegalArgument},
		{"conditional", []byte{2, 0, 0, 0, 0, 1, byte(ModConditional), 0, 0, 0, 1}, ErrNotImplemented},
		{"source name", []byte{2, 0, 0, 0, 0, 1, byte(ModSourceNameMatch), 0, 0, 0, 1, 'x'}, ErrNotImplemented},
		{"unknown modifier", []byte{2, 0, 0, 0, 0, 1, 99}, ErrNotImplemented},
	} {
		code, reply := conn.command(t, nextCommandID.Add(1), CmdSetEventRequest, CmdEventRequestSet, tc.payload)
		require.Equal(t, tc.want, code, tc.name)
		require.Empty(t, reply, tc.name)
	}
	require.Zero(t, e.requests.len())
}

func TestEventRequestClear(t *testing.T) {
	t.Parallel()

	vm := &testVM{}
	e, acc := startTestEngine(t, WithVM(vm))
	conn := attach(t, e, acc)
	start := setRequest(t, conn, EventThreadStart, SuspendNone)
	setRequest(t, conn, EventBreakpoint, SuspendAll)
	setRequest(t, conn, EventBreakpoint, SuspendNone, countMod(3))
	require.Equal(t, 3, e.requests.len())

	vm.mu.Lock()
	require.Len(t, vm.added, 3)
	require.Equal(t, EventBreakpoint, vm.added[2].Kind)
	require.Equal(t, []Modifier{{Kind: ModCount, Count: 3}}, vm.added[2].Modifiers)
	vm.mu.Unlock()

	// The kind must match the id.
	b := NewExpandBuf(5)
	b.Add1(uint8(EventBreakpoint))
	b.Add4BE(start)
	code, _ := conn.command(t, 1, CmdSetEventRequest, CmdEventRequestClear, b.Bytes())
	require.Equal(t, ErrNone, code)
	require.Equal(t, 3, e.requests.len())

	b = NewExpandBuf(5)
	b.Add1(uint8(EventThreadStart))
	b.Add4BE(start)
	code, _ = conn.command(t, 2, CmdSetEventRequest, CmdEventRequestClear, b.Bytes())
	require.Equal(t, ErrNone, code)
	require.Equal(t, 2, e.requests.len())
	require.False(t, e.PostThreadChange(1, true))

	code, _ = conn.command(t, 3, CmdSetEventRequest, CmdEventRequestClear, []byte{1})
	require.Equal(t, ErrIllegalArgument, code)

	code, _ = conn.command(t, 4, CmdSetEventRequest, CmdEventRequestClearAllBreakpoints, nil)
	require.Equal(t, ErrNone, code)
	require.Zero(t, e.requests.len())
	require.Equal(t, 3, vm.removedCount())
}

func TestDdmHelo(t *testing.T) {
	t.Parallel()

	e, acc := startTestEngine(t, WithAppName("demo"))
	conn := attach(t, e, acc)

	chunk := ddm.AppendChunk(nil, ddm.TypeHELO, []byte{0, 0, 0, 1})
	code, reply := conn.command(t, 1, CmdSetDDM, CmdDDMChunk, chunk)
	require.Equal(t, ErrNone, code)
	c, err := ddm.ParseChunk(reply)
	require.NoError(t, err)
	require.Equal(t, ddm.TypeHELO, c.Type)
	require.Equal(t, uint32(ddm.ProtocolVersion), binary.BigEndian.Uint32(c.Data[0:]))
	require.Equal(t, uint32(1234), binary.BigEndian.Uint32(c.Data[4:]))
	identLen := int(binary.BigEndian.Uint32(c.Data[8:]))
	appLen := int(binary.BigEndian.Uint32(c.Data[12:]))
	app, ok := ddm.DecodeUTF16(c.Data[16+2*identLen:], appLen)
	require.True(t, ok)
	require.Equal(t, "demo", app)

	code, _ = conn.command(t, 2, CmdSetDDM, CmdDDMChunk, []byte{1, 2})
	require.Equal(t, ErrIllegalArgument, code)

	// Without a handler other chunks get a FAIL chunk back.
	code, reply = conn.command(t, 3, CmdSetDDM, CmdDDMChunk, ddm.AppendChunk(nil, ddm.TypeCode("THEN"), nil))
	require.Equal(t, ErrNone, code)
	c, err = ddm.ParseChunk(reply)
	require.NoError(t, err)
	require.Equal(t, ddm.TypeFAIL, c.Type)
}

type echoDdm struct{}

func (echoDdm) HandleChunk(typ uint32, data []byte) (uint32, []byte, bool) {
	if len(data) == 0 {
		return 0, nil, false
	}
	return typ, append([]byte("re:"), data...), true
}

func TestDdmHandler(t *testing.T) {
	t.Parallel()

	e, acc := startTestEngine(t, WithDdmHandler(echoDdm{}))
	conn := attach(t, e, acc)
	typ := ddm.TypeCode("ECHO")

	code, reply := conn.command(t, 1, CmdSetDDM, CmdDDMChunk, ddm.AppendChunk(nil, typ, []byte("hi")))
	require.Equal(t, ErrNone, code)
	c, err := ddm.ParseChunk(reply)
	require.NoError(t, err)
	require.Equal(t, typ, c.Type)
	require.Equal(t, []byte("re:hi"), c.Data)

	code, reply = conn.command(t, 2, CmdSetDDM, CmdDDMChunk, ddm.AppendChunk(nil, typ, nil))
	require.Equal(t, ErrNone, code)
	require.Empty(t, reply)
}

func TestRepliesFromDebuggerAreIgnored(t *testing.T) {
	t.Parallel()

	e, acc := startTestEngine(t)
	conn := attach(t, e, acc)

	reply := commandPacket(5, 0, 0, nil)
	reply[8] = 0x80
	conn.in <- reply
	code, _ := conn.command(t, 6, CmdSetVirtualMachine, CmdVMIDSizes, nil)
	require.Equal(t, ErrNone, code)
	require.True(t, e.IsActive())
}
