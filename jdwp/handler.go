package jdwp

import (
	"github.com/DataExMachina-dev/side-eye-jdwp/internal/ddm"
	"github.com/DataExMachina-dev/side-eye-jdwp/internal/framing"
)

// CommandHandler answers debugger commands the engine does not handle
// itself. It reads the command payload from r and appends the reply payload
// to reply. Anything appended is discarded when the result is not ErrNone.
//
// Handlers must check r.Remaining before reading; reading past the end
// panics.
type CommandHandler interface {
	HandleCommand(cmdSet, cmd uint8, r *Reader, reply *ExpandBuf) ErrorCode
}

// CommandHandlerFunc adapts a function to CommandHandler.
type CommandHandlerFunc func(cmdSet, cmd uint8, r *Reader, reply *ExpandBuf) ErrorCode

func (f CommandHandlerFunc) HandleCommand(cmdSet, cmd uint8, r *Reader, reply *ExpandBuf) ErrorCode {
	return f(cmdSet, cmd, r, reply)
}

// DdmHandler answers inbound DDM chunks other than HELO. Returning ok false
// sends an empty reply.
type DdmHandler interface {
	HandleChunk(typ uint32, data []byte) (replyType uint32, reply []byte, ok bool)
}

// handle runs one command and returns the complete reply packet. dispose is
// set when the debugger is done with the connection.
func (e *Engine) handle(hdr framing.Header, payload []byte) (reply []byte, dispose bool) {
	buf := newPacketBuf()
	code, dispose := e.dispatch(hdr.CommandSet, hdr.Command, NewReader(payload), buf)
	if code != ErrNone {
		buf = newPacketBuf()
	}
	if e.log.V(1).Enabled() {
		e.log.V(1).Info("handled command",
			"id", hdr.ID, "set", hdr.CommandSet, "cmd", hdr.Command, "result", code.String())
	}
	return finishReply(buf, hdr.ID, code), dispose
}

func (e *Engine) dispatch(cmdSet, cmd uint8, r *Reader, reply *ExpandBuf) (ErrorCode, bool) {
	switch cmdSet {
	case CmdSetVirtualMachine:
		switch cmd {
		case CmdVMVersion:
			v := e.cfg.version
			reply.AddUTF8String(v.Description)
			reply.Add4BE(uint32(v.JDWPMajor))
			reply.Add4BE(uint32(v.JDWPMinor))
			reply.AddUTF8String(v.VMVersion)
			reply.AddUTF8String(v.VMName)
			return ErrNone, false
		case CmdVMIDSizes:
			reply.Add4BE(FieldIDSize)
			reply.Add4BE(MethodIDSize)
			reply.Add4BE(ObjectIDSize)
			reply.Add4BE(RefTypeIDSize)
			reply.Add4BE(FrameIDSize)
			return ErrNone, false
		case CmdVMDispose:
			return ErrNone, true
		case CmdVMSuspend:
			e.cfg.vm.SuspendAllThreads()
			return ErrNone, false
		case CmdVMResume:
			e.cfg.vm.ResumeAllThreads()
			return ErrNone, false
		case CmdVMExit:
			if r.Remaining() < 4 {
				return ErrIllegalArgument, false
			}
			status := int32(r.Read4BE())
			e.log.Info("debugger requested exit", "status", status)
			e.cfg.vm.Exit(status)
			return ErrNone, false
		}
	case CmdSetEventRequest:
		switch cmd {
		case CmdEventRequestSet:
			return e.handleEventRequestSet(r, reply), false
		case CmdEventRequestClear:
			if r.Remaining() < 5 {
				return ErrIllegalArgument, false
			}
			kind := EventKind(r.Read1())
			id := r.Read4BE()
			if req, ok := e.requests.remove(kind, id); ok {
				e.notifyRemoved([]EventRequest{req})
			}
			return ErrNone, false
		case CmdEventRequestClearAllBreakpoints:
			e.notifyRemoved(e.requests.removeKind(EventBreakpoint))
			return ErrNone, false
		}
	case CmdSetDDM:
		if cmd == CmdDDMChunk {
			return e.handleDdmChunk(r, reply), false
		}
	}
	if e.cfg.commandHandler != nil {
		return e.cfg.commandHandler.HandleCommand(cmdSet, cmd, r, reply), false
	}
	return ErrNotImplemented, false
}

func (e *Engine) handleEventRequestSet(r *Reader, reply *ExpandBuf) ErrorCode {
	req, code := parseEventRequest(r)
	if code != ErrNone {
		return code
	}
	if !req.Kind.reportable() {
		e.log.V(1).Info("accepting request for an event that is never posted", "kind", req.Kind.String())
	}
	req = e.requests.add(req)
	e.notifyAdded(req)
	reply.Add4BE(req.ID)
	return ErrNone
}

// parseEventRequest decodes the payload of EventRequest.Set, checking that
// every field is present before reading it.
func parseEventRequest(r *Reader) (EventRequest, ErrorCode) {
	if r.Remaining() < 6 {
		return EventRequest{}, ErrIllegalArgument
	}
	req := EventRequest{
		Kind:   EventKind(r.Read1()),
		Policy: SuspendPolicy(r.Read1()),
	}
	n := r.Read4BE()
	if !req.Kind.known() {
		return EventRequest{}, ErrInvalidEventType
	}
	if !req.Policy.valid() {
		return EventRequest{}, ErrIllegalArgument
	}
	// Each modifier is at least one byte.
	if uint64(n) > uint64(r.Remaining()) {
		return EventRequest{}, ErrIllegalArgument
	}
	for i := uint32(0); i < n; i++ {
		if r.Remaining() < 1 {
			return EventRequest{}, ErrIllegalArgument
		}
		m := Modifier{Kind: ModifierKind(r.Read1())}
		var want int
		switch m.Kind {
		case ModCount, ModConditional:
			want = 4
		case ModThreadOnly, ModInstanceOnly:
			want = ObjectIDSize
		case ModClassOnly:
			want = RefTypeIDSize
		case ModLocationOnly:
			want = LocationSize
		case ModExceptionOnly:
			want = RefTypeIDSize + 2
		case ModFieldOnly:
			want = RefTypeIDSize + FieldIDSize
		case ModStep:
			want = ObjectIDSize + 8
		case ModClassMatch, ModClassExclude, ModSourceNameMatch:
			s, ok := r.ReadUTF8String()
			if !ok {
				return EventRequest{}, ErrIllegalArgument
			}
			if m.Kind == ModSourceNameMatch {
				return EventRequest{}, ErrNotImplemented
			}
			m.Pattern = s
			req.Modifiers = append(req.Modifiers, m)
			continue
		default:
			return EventRequest{}, ErrNotImplemented
		}
		if r.Remaining() < want {
			return EventRequest{}, ErrIllegalArgument
		}
		switch m.Kind {
		case ModCount:
			m.Count = int32(r.Read4BE())
			if m.Count <= 0 {
				return EventRequest{}, ErrIllegalArgument
			}
		case ModConditional:
			return EventRequest{}, ErrNotImplemented
		case ModThreadOnly:
			m.ThreadID = ReadObjectID(r)
		case ModInstanceOnly:
			m.InstanceID = ReadObjectID(r)
		case ModClassOnly:
			m.ClassID = ReadRefTypeID(r)
		case ModLocationOnly:
			m.Location = ReadLocation(r)
		case ModExceptionOnly:
			m.ClassID = ReadRefTypeID(r)
			m.Caught = r.Read1() != 0
			m.Uncaught = r.Read1() != 0
		case ModFieldOnly:
			m.ClassID = ReadRefTypeID(r)
			m.FieldID = ReadFieldID(r)
		case ModStep:
			m.ThreadID = ReadObjectID(r)
			m.StepSize = int32(r.Read4BE())
			m.StepDepth = int32(r.Read4BE())
		}
		req.Modifiers = append(req.Modifiers, m)
	}
	return req, ErrNone
}

// handleDdmChunk answers a DDM.Chunk command. HELO is answered here; other
// chunks go to the DdmHandler.
func (e *Engine) handleDdmChunk(r *Reader, reply *ExpandBuf) ErrorCode {
	c, err := ddm.ParseChunk(r.ReadBytes(r.Remaining()))
	if err != nil {
		e.log.V(1).Info("malformed ddm chunk", "err", err)
		return ErrIllegalArgument
	}
	e.log.V(1).Info("ddm chunk", "type", ddm.TypeName(c.Type), "len", len(c.Data))
	if c.Type == ddm.TypeHELO {
		data := ddm.HeloReply(e.ident.Pid, e.ident.String(), e.cfg.appName)
		reply.AddBytes(ddm.AppendChunk(nil, ddm.TypeHELO, data))
		return ErrNone
	}
	if e.cfg.ddmHandler == nil {
		msg := "unsupported chunk " + ddm.TypeName(c.Type)
		reply.AddBytes(ddm.AppendChunk(nil, ddm.TypeFAIL, ddm.FailReply(1, msg)))
		return ErrNone
	}
	typ, data, ok := e.cfg.ddmHandler.HandleChunk(c.Type, c.Data)
	if ok {
		reply.AddBytes(ddm.AppendChunk(nil, typ, data))
	}
	return ErrNone
}
