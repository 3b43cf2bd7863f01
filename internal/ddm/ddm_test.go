package ddm

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTypeCode(t *testing.T) {
	t.Parallel()

	require.Equal(t, uint32(0x48454c4f), TypeHELO)
	require.Equal(t, "HELO", TypeName(TypeHELO))
	require.Panics(t, func() { TypeCode("TOOLONG") })
}

func TestChunkRoundTrip(t *testing.T) {
	t.Parallel()

	b := AppendChunk(nil, TypeAPNM, []byte("abc"))
	c, err := ParseChunk(b)
	require.NoError(t, err)
	require.Equal(t, TypeAPNM, c.Type)
	require.Equal(t, []byte("abc"), c.Data)
}

func TestParseChunkShort(t *testing.T) {
	t.Parallel()

	_, err := ParseChunk([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrShortChunk)

	b := AppendHeader(nil, TypeHELO, 10)
	_, err = ParseChunk(append(b, 1, 2))
	require.ErrorIs(t, err, ErrShortChunk)
}

func TestHeloReply(t *testing.T) {
	t.Parallel()

	b := HeloReply(1234, "vm", "app")
	require.Equal(t, uint32(ProtocolVersion), binary.BigEndian.Uint32(b[0:]))
	require.Equal(t, uint32(1234), binary.BigEndian.Uint32(b[4:]))
	require.Equal(t, uint32(2), binary.BigEndian.Uint32(b[8:]))
	require.Equal(t, uint32(3), binary.BigEndian.Uint32(b[12:]))

	ident, ok := DecodeUTF16(b[16:], 2)
	require.True(t, ok)
	require.Equal(t, "vm", ident)
	app, ok := DecodeUTF16(b[20:], 3)
	require.True(t, ok)
	require.Equal(t, "app", app)

	_, ok = DecodeUTF16(b[20:], 4)
	require.False(t, ok)
}
