package jdwp

import (
	"encoding/binary"
	"fmt"
)

// ExpandBuf is an append-only buffer used to build outbound packets. It grows
// as needed and supports back-patching values, such as the packet length,
// once the contents are known. It is owned by a single goroutine.
type ExpandBuf struct {
	b []byte
}

// NewExpandBuf returns an empty buffer with room for sizeHint bytes.
func NewExpandBuf(sizeHint int) *ExpandBuf {
	return &ExpandBuf{b: make([]byte, 0, sizeHint)}
}

// Len returns the number of bytes written so far.
func (e *ExpandBuf) Len() int {
	return len(e.b)
}

// Bytes returns the buffer contents. The slice aliases the buffer.
func (e *ExpandBuf) Bytes() []byte {
	return e.b
}

// Reserve appends n zero bytes and returns their offset, to be filled in
// later with the Set methods.
func (e *ExpandBuf) Reserve(n int) int {
	off := len(e.b)
	e.b = append(e.b, make([]byte, n)...)
	return off
}

func (e *ExpandBuf) Add1(v uint8) {
	e.b = append(e.b, v)
}

func (e *ExpandBuf) Add2BE(v uint16) {
	e.b = binary.BigEndian.AppendUint16(e.b, v)
}

func (e *ExpandBuf) Add4BE(v uint32) {
	e.b = binary.BigEndian.AppendUint32(e.b, v)
}

func (e *ExpandBuf) Add8BE(v uint64) {
	e.b = binary.BigEndian.AppendUint64(e.b, v)
}

// AddBytes appends p verbatim.
func (e *ExpandBuf) AddBytes(p []byte) {
	e.b = append(e.b, p...)
}

// AddUTF8String appends a JDWP string: a 4 byte length followed by the
// modified UTF-8 bytes.
func (e *ExpandBuf) AddUTF8String(s string) {
	e.Add4BE(uint32(len(s)))
	e.b = append(e.b, s...)
}

// Set4BE overwrites 4 bytes at off. The bytes must already exist.
func (e *ExpandBuf) Set4BE(off int, v uint32) {
	binary.BigEndian.PutUint32(e.b[off:], v)
}

// Set8BE overwrites 8 bytes at off. The bytes must already exist.
func (e *ExpandBuf) Set8BE(off int, v uint64) {
	binary.BigEndian.PutUint64(e.b[off:], v)
}

// Reader is a cursor over an inbound payload. Reads past the end are a
// contract violation and panic; callers check Remaining first.
type Reader struct {
	b   []byte
	off int
}

// NewReader returns a Reader positioned at the start of b.
func NewReader(b []byte) *Reader {
	return &Reader{b: b}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.b) - r.off
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int {
	return r.off
}

func (r *Reader) take(n int) []byte {
	if r.Remaining() < n {
		panic(fmt.Sprintf("jdwp: read of %d bytes with only %d remaining", n, r.Remaining()))
	}
	p := r.b[r.off : r.off+n]
	r.off += n
	return p
}

func (r *Reader) Read1() uint8 {
	return r.take(1)[0]
}

func (r *Reader) Read2BE() uint16 {
	return binary.BigEndian.Uint16(r.take(2))
}

func (r *Reader) Read4BE() uint32 {
	return binary.BigEndian.Uint32(r.take(4))
}

func (r *Reader) Read8BE() uint64 {
	return binary.BigEndian.Uint64(r.take(8))
}

// ReadBytes consumes n bytes. The result aliases the underlying payload.
func (r *Reader) ReadBytes(n int) []byte {
	return r.take(n)
}

// ReadUTF8String consumes a length-prefixed JDWP string, or reports false
// without consuming anything if the payload is too short for it.
func (r *Reader) ReadUTF8String() (string, bool) {
	if r.Remaining() < 4 {
		return "", false
	}
	n := binary.BigEndian.Uint32(r.b[r.off:])
	if uint64(r.Remaining()-4) < uint64(n) {
		return "", false
	}
	r.off += 4
	return string(r.take(int(n))), true
}
