package jdwp

import (
	"github.com/DataExMachina-dev/side-eye-jdwp/internal/ddm"
	"github.com/DataExMachina-dev/side-eye-jdwp/internal/framing"
)

// DdmSendChunkV sends the concatenation of bufs as one DDM chunk of type
// typ. It is dropped silently when no debugger is attached. The buffers are
// written as they are, after a shared header, without being joined first.
func (e *Engine) DdmSendChunkV(typ uint32, bufs [][]byte) {
	conn := e.attachedConn()
	if conn == nil {
		return
	}
	n := 0
	for _, b := range bufs {
		n += len(b)
	}
	hdr := make([]byte, framing.HeaderLen, framing.HeaderLen+ddm.HeaderLen)
	framing.Header{
		Length:     uint32(framing.HeaderLen + ddm.HeaderLen + n),
		ID:         e.nextSerial(),
		CommandSet: CmdSetDDM,
		Command:    CmdDDMChunk,
	}.Put(hdr)
	hdr = ddm.AppendHeader(hdr, typ, n)

	out := make([][]byte, 0, len(bufs)+1)
	out = append(out, hdr)
	out = append(out, bufs...)
	if err := e.sendPacket(conn, true, out...); err != nil {
		e.log.V(1).Info("ddm chunk dropped", "type", ddm.TypeName(typ), "err", err)
	}
}

// DdmSendChunk sends a single-buffer DDM chunk.
func (e *Engine) DdmSendChunk(typ uint32, data []byte) {
	e.DdmSendChunkV(typ, [][]byte{data})
}
