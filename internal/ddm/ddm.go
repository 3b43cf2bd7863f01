// Package ddm implements the chunk format of the DDM (Dalvik Debug Monitor)
// side channel. A chunk is a 4 byte type code, a 4 byte length and the data,
// carried as the payload of a DDM.Chunk packet.
package ddm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf16"
)

// HeaderLen is the size of a chunk header.
const HeaderLen = 8

// ProtocolVersion is reported in the HELO reply.
const ProtocolVersion = 1

var (
	TypeHELO = TypeCode("HELO")
	TypeFAIL = TypeCode("FAIL")
	TypeAPNM = TypeCode("APNM")
)

var ErrShortChunk = errors.New("ddm chunk shorter than its header")

// TypeCode packs a four character chunk name.
func TypeCode(name string) uint32 {
	if len(name) != 4 {
		panic(fmt.Sprintf("ddm: chunk type %q is not four characters", name))
	}
	return binary.BigEndian.Uint32([]byte(name))
}

// TypeName unpacks a chunk type for logging.
func TypeName(t uint32) string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], t)
	return string(b[:])
}

// Chunk is one decoded chunk. Data aliases the packet it came from.
type Chunk struct {
	Type uint32
	Data []byte
}

// ParseChunk decodes the chunk at the start of payload.
func ParseChunk(payload []byte) (Chunk, error) {
	if len(payload) < HeaderLen {
		return Chunk{}, ErrShortChunk
	}
	typ := binary.BigEndian.Uint32(payload)
	n := binary.BigEndian.Uint32(payload[4:])
	if uint64(n) > uint64(len(payload)-HeaderLen) {
		return Chunk{}, fmt.Errorf("%w: %s declares %d bytes, %d present",
			ErrShortChunk, TypeName(typ), n, len(payload)-HeaderLen)
	}
	return Chunk{Type: typ, Data: payload[HeaderLen : HeaderLen+int(n)]}, nil
}

// AppendHeader appends a chunk header for dataLen bytes of data.
func AppendHeader(b []byte, typ uint32, dataLen int) []byte {
	b = binary.BigEndian.AppendUint32(b, typ)
	return binary.BigEndian.AppendUint32(b, uint32(dataLen))
}

// AppendChunk appends a complete chunk.
func AppendChunk(b []byte, typ uint32, data []byte) []byte {
	return append(AppendHeader(b, typ, len(data)), data...)
}

// HeloReply builds the data of the HELO reply: protocol version, pid, and the
// VM identity and application name as UTF-16BE strings with their lengths in
// code units up front.
func HeloReply(pid int, vmIdent, appName string) []byte {
	ident := utf16.Encode([]rune(vmIdent))
	app := utf16.Encode([]rune(appName))
	b := make([]byte, 0, 16+2*(len(ident)+len(app)))
	b = binary.BigEndian.AppendUint32(b, ProtocolVersion)
	b = binary.BigEndian.AppendUint32(b, uint32(pid))
	b = binary.BigEndian.AppendUint32(b, uint32(len(ident)))
	b = binary.BigEndian.AppendUint32(b, uint32(len(app)))
	for _, u := range ident {
		b = binary.BigEndian.AppendUint16(b, u)
	}
	for _, u := range app {
		b = binary.BigEndian.AppendUint16(b, u)
	}
	return b
}

// FailReply builds the data of a FAIL chunk: an error code and a UTF-16BE
// message.
func FailReply(code uint32, msg string) []byte {
	m := utf16.Encode([]rune(msg))
	b := make([]byte, 0, 8+2*len(m))
	b = binary.BigEndian.AppendUint32(b, code)
	b = binary.BigEndian.AppendUint32(b, uint32(len(m)))
	for _, u := range m {
		b = binary.BigEndian.AppendUint16(b, u)
	}
	return b
}

// DecodeUTF16 decodes n UTF-16BE code units from b.
func DecodeUTF16(b []byte, n int) (string, bool) {
	if len(b) < 2*n {
		return "", false
	}
	u := make([]uint16, n)
	for i := range u {
		u[i] = binary.BigEndian.Uint16(b[2*i:])
	}
	return string(utf16.Decode(u)), true
}
