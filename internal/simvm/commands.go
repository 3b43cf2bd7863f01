package simvm

import (
	"sort"

	"github.com/DataExMachina-dev/side-eye-jdwp/jdwp"
)

// Command sets and commands answered by the runtime rather than the engine.
const (
	cmdSetReferenceType   uint8 = 2
	cmdSetThreadReference uint8 = 11

	cmdVMClassesBySignature uint8 = 2
	cmdVMAllThreads         uint8 = 4
	cmdRefTypeSignature     uint8 = 1
	cmdThreadName           uint8 = 1
)

// HandleCommand implements jdwp.CommandHandler for the handful of lookups a
// debugger needs to make sense of the events the runtime posts.
func (rt *Runtime) HandleCommand(cmdSet, cmd uint8, r *jdwp.Reader, reply *jdwp.ExpandBuf) jdwp.ErrorCode {
	switch {
	case cmdSet == jdwp.CmdSetVirtualMachine && cmd == cmdVMAllThreads:
		ids := rt.threadIDs()
		reply.Add4BE(uint32(len(ids)))
		for _, id := range ids {
			reply.AddObjectID(id)
		}
		return jdwp.ErrNone

	case cmdSet == jdwp.CmdSetVirtualMachine && cmd == cmdVMClassesBySignature:
		sig, ok := r.ReadUTF8String()
		if !ok {
			return jdwp.ErrIllegalArgument
		}
		rt.mu.Lock()
		var matches []class
		for _, c := range rt.mu.classes {
			if c.signature == sig {
				matches = append(matches, c)
			}
		}
		rt.mu.Unlock()
		reply.Add4BE(uint32(len(matches)))
		for _, c := range matches {
			reply.Add1(uint8(c.tag))
			reply.AddRefTypeID(c.id)
			reply.Add4BE(uint32(c.status))
		}
		return jdwp.ErrNone

	case cmdSet == cmdSetReferenceType && cmd == cmdRefTypeSignature:
		if r.Remaining() < jdwp.RefTypeIDSize {
			return jdwp.ErrIllegalArgument
		}
		sig, ok := rt.ClassDescriptor(jdwp.ReadRefTypeID(r))
		if !ok {
			return jdwp.ErrInvalidClass
		}
		reply.AddUTF8String(sig)
		return jdwp.ErrNone

	case cmdSet == cmdSetThreadReference && cmd == cmdThreadName:
		if r.Remaining() < jdwp.ObjectIDSize {
			return jdwp.ErrIllegalArgument
		}
		id := jdwp.ReadObjectID(r)
		rt.mu.Lock()
		t, ok := rt.mu.threads[id]
		rt.mu.Unlock()
		if !ok {
			return jdwp.ErrInvalidThread
		}
		reply.AddUTF8String(t.name)
		return jdwp.ErrNone
	}
	return jdwp.ErrNotImplemented
}

func (rt *Runtime) threadIDs() []jdwp.ObjectID {
	rt.mu.Lock()
	ids := make([]jdwp.ObjectID, 0, len(rt.mu.threads))
	for id := range rt.mu.threads {
		ids = append(ids, id)
	}
	rt.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
