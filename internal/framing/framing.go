// Package framing contains type definitions for the JDWP packet framing: an
// 11 byte header followed by a command-set specific payload. All integers are
// big-endian.
package framing

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderLen is the size of a packet header on the wire.
const HeaderLen = 11

// FlagReply marks a reply packet. Command packets have no flags set.
const FlagReply uint8 = 0x80

// DefaultMaxPacketLen bounds inbound packets. Debuggers never send anything
// close to this; a larger length means the stream is out of sync.
const DefaultMaxPacketLen = 8 << 20

var (
	ErrShortPacket    = errors.New("packet shorter than its header")
	ErrPacketTooLarge = errors.New("packet exceeds maximum length")
)

// Header is the fixed part of every packet. Command packets use CommandSet
// and Command; reply packets use ErrorCode in the same two bytes.
type Header struct {
	Length     uint32
	ID         uint32
	Flags      uint8
	CommandSet uint8
	Command    uint8
	ErrorCode  uint16
}

// IsReply reports whether the header belongs to a reply packet.
func (h Header) IsReply() bool {
	return h.Flags&FlagReply != 0
}

// Put writes the header into the first HeaderLen bytes of b.
func (h Header) Put(b []byte) {
	_ = b[HeaderLen-1]
	binary.BigEndian.PutUint32(b[0:], h.Length)
	binary.BigEndian.PutUint32(b[4:], h.ID)
	b[8] = h.Flags
	if h.IsReply() {
		binary.BigEndian.PutUint16(b[9:], h.ErrorCode)
	} else {
		b[9] = h.CommandSet
		b[10] = h.Command
	}
}

// ParseHeader decodes the header at the start of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, ErrShortPacket
	}
	h := Header{
		Length: binary.BigEndian.Uint32(b[0:]),
		ID:     binary.BigEndian.Uint32(b[4:]),
		Flags:  b[8],
	}
	if h.IsReply() {
		h.ErrorCode = binary.BigEndian.Uint16(b[9:])
	} else {
		h.CommandSet = b[9]
		h.Command = b[10]
	}
	if h.Length < HeaderLen {
		return Header{}, fmt.Errorf("%w: length %d", ErrShortPacket, h.Length)
	}
	return h, nil
}

// ReadPacket reads one complete packet, header included, from r.
func ReadPacket(r io.Reader, maxLen uint32) ([]byte, error) {
	var hdr [HeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	h, err := ParseHeader(hdr[:])
	if err != nil {
		return nil, err
	}
	if maxLen == 0 {
		maxLen = DefaultMaxPacketLen
	}
	if h.Length > maxLen {
		return nil, fmt.Errorf("%w: %d > %d", ErrPacketTooLarge, h.Length, maxLen)
	}
	pkt := make([]byte, h.Length)
	copy(pkt, hdr[:])
	if _, err := io.ReadFull(r, pkt[HeaderLen:]); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("failed to read packet body: %w", err)
	}
	return pkt, nil
}
