package jdwp

import "github.com/DataExMachina-dev/side-eye-jdwp/internal/transport"

// PostVMStart reports that VM initialization finished. It is sent at most
// once, regardless of event requests, and only if a debugger is already
// attached. With suspend set, all threads are suspended and the caller parks
// itself until the debugger resumes the VM.
func (e *Engine) PostVMStart(suspend bool) bool {
	conn := e.attachedConn()
	if conn == nil {
		return false
	}
	if !e.vmStartPosted.CompareAndSwap(false, true) {
		return false
	}
	policy := SuspendNone
	if suspend {
		policy = SuspendAll
	}
	b := &eventBasket{thread: e.eventThread()}
	matched := []matchedEvent{{kind: EventVMStart}}
	return e.sendEvent(conn, matched, policy, b)
}

// PostLocationEvent reports that one or more of breakpoint, single step,
// method entry and method exit happened at loc. Coinciding events go out in
// one packet. thisPtr is the receiver of the executing method, or 0.
func (e *Engine) PostLocationEvent(loc *Location, thisPtr ObjectID, eventFlags LocationEventFlags) bool {
	if loc == nil {
		panic("jdwp: PostLocationEvent without a location")
	}
	if e.attachedConn() == nil {
		return false
	}
	kinds := make([]EventKind, 0, len(locationEventOrder))
	for _, ev := range locationEventOrder {
		if eventFlags&ev.flag != 0 {
			kinds = append(kinds, ev.kind)
		}
	}
	if len(kinds) == 0 {
		return false
	}
	b := &eventBasket{
		thread:  e.eventThread(),
		loc:     *loc,
		hasLoc:  true,
		thisPtr: thisPtr,
	}
	return e.postEvent(kinds, b)
}

// PostException reports a thrown exception. catchLoc is nil or zero when
// the exception is not caught.
func (e *Engine) PostException(
	throwLoc *Location,
	excepID ObjectID,
	excepClassID RefTypeID,
	catchLoc *Location,
	thisPtr ObjectID,
) bool {
	if e.attachedConn() == nil {
		return false
	}
	b := &eventBasket{
		thread:       e.eventThread(),
		thisPtr:      thisPtr,
		excepID:      excepID,
		excepClassID: excepClassID,
	}
	if throwLoc != nil {
		b.loc = *throwLoc
		b.hasLoc = true
	}
	if catchLoc != nil {
		b.catchLoc = *catchLoc
	}
	return e.postEvent([]EventKind{EventException}, b)
}

// PostThreadChange reports that threadID started or is about to die. It is
// called on that thread.
func (e *Engine) PostThreadChange(threadID ObjectID, start bool) bool {
	if e.attachedConn() == nil {
		return false
	}
	kind := EventThreadDeath
	if start {
		kind = EventThreadStart
	}
	return e.postEvent([]EventKind{kind}, &eventBasket{thread: threadID})
}

// PostClassPrepare reports that a type finished preparation. signature is
// its JNI descriptor and status a combination of ClassStatus bits.
func (e *Engine) PostClassPrepare(tag TypeTag, refTypeID RefTypeID, signature string, status ClassStatus) bool {
	if e.attachedConn() == nil {
		return false
	}
	b := &eventBasket{
		thread:    e.eventThread(),
		tag:       tag,
		classID:   refTypeID,
		signature: signature,
		status:    status,
	}
	return e.postEvent([]EventKind{EventClassPrepare}, b)
}

// PostVMDeath sends the final event and shuts the engine down. No event is
// sent afterwards. It reports whether the death event reached a debugger.
func (e *Engine) PostVMDeath() bool {
	e.mu.Lock()
	prev := e.mu.state
	conn := e.mu.conn
	if prev == ShuttingDown || prev == Closed {
		e.mu.Unlock()
		return false
	}
	e.mu.state = ShuttingDown
	e.mu.Unlock()

	delivered := false
	if prev == Attached && conn != nil {
		b := &eventBasket{}
		explicit, _, expired := e.requests.match([]EventKind{EventVMDeath}, b, e.cfg.vm)
		e.notifyRemoved(expired)
		matched := append([]matchedEvent{{kind: EventVMDeath}}, explicit...)
		pkt := e.encodeComposite(matched, SuspendNone, b)
		delivered = e.sendPacket(conn, false, pkt) == nil
	}
	e.log.Info("vm death posted", "delivered", delivered)
	e.terminate()
	return delivered
}

// postEvent reports the event to every request that matches it.
func (e *Engine) postEvent(kinds []EventKind, b *eventBasket) bool {
	conn := e.attachedConn()
	if conn == nil {
		return false
	}
	matched, policy, expired := e.requests.match(kinds, b, e.cfg.vm)
	e.notifyRemoved(expired)
	if len(matched) == 0 {
		return false
	}
	return e.sendEvent(conn, matched, policy, b)
}

// sendEvent sends one Composite packet and applies the suspend policy. The
// caller must hold no engine locks: with any policy but SuspendNone it parks
// in VM.SuspendSelf until the debugger resumes it.
func (e *Engine) sendEvent(
	conn transport.Conn, matched []matchedEvent, policy SuspendPolicy, b *eventBasket,
) bool {
	// The protocol goroutine must never park: it is what processes the
	// debugger's Resume. Its events are reported without a thread and an
	// event-thread policy stops everything else instead.
	onDebugThread := e.onDebugThread()
	if onDebugThread {
		b.thread = 0
		if policy == SuspendEventThread {
			policy = SuspendAll
		}
	}
	pkt := e.encodeComposite(matched, policy, b)
	if e.log.V(1).Enabled() {
		e.log.V(1).Info("posting event",
			"kind", matched[0].kind.String(), "count", len(matched),
			"policy", policy.String(), "thread", uint64(b.thread))
	}

	// The slot is taken before the packet goes out so the debugger's reply
	// to the event is not processed until this thread is parked.
	waiting := false
	if policy != SuspendNone && b.thread != 0 {
		if !e.slot.Set(uint64(b.thread)) {
			return false
		}
		waiting = true
	}
	if err := e.sendPacket(conn, true, pkt); err != nil {
		if waiting {
			e.slot.Clear()
		}
		return false
	}
	if policy == SuspendAll {
		e.cfg.vm.SuspendAllThreads()
	}
	if waiting {
		e.cfg.vm.SuspendSelf(e.ClearWaitForEventThread)
	}
	return true
}

// encodeComposite builds an Event.Composite packet with one entry per
// matched request.
func (e *Engine) encodeComposite(matched []matchedEvent, policy SuspendPolicy, b *eventBasket) []byte {
	buf := newPacketBuf()
	buf.Add1(uint8(policy))
	buf.Add4BE(uint32(len(matched)))
	for _, m := range matched {
		buf.Add1(uint8(m.kind))
		buf.Add4BE(m.requestID)
		encodeEvent(buf, m.kind, b)
	}
	return e.finishCommand(buf, CmdSetEvent, CmdEventComposite)
}

// encodeEvent appends the kind-specific part of an event entry.
func encodeEvent(buf *ExpandBuf, kind EventKind, b *eventBasket) {
	switch kind {
	case EventVMStart, EventThreadStart, EventThreadDeath:
		buf.AddObjectID(b.thread)
	case EventBreakpoint, EventSingleStep, EventMethodEntry, EventMethodExit:
		buf.AddObjectID(b.thread)
		buf.AddLocation(b.loc)
	case EventException:
		buf.AddObjectID(b.thread)
		buf.AddLocation(b.loc)
		buf.Add1(TagObject)
		buf.AddObjectID(b.excepID)
		buf.AddLocation(b.catchLoc)
	case EventClassPrepare:
		buf.AddObjectID(b.thread)
		buf.Add1(uint8(b.tag))
		buf.AddRefTypeID(b.classID)
		buf.AddUTF8String(b.signature)
		buf.Add4BE(uint32(b.status))
	case EventVMDeath:
	default:
		panic("jdwp: cannot encode event kind " + kind.String())
	}
}
