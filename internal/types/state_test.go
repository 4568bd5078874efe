package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_LittleEndian(t *testing.T) {
	s := NewState()
	s.Write16(0x1234)
	s.Write32(0xdeadbeef)
	s.Write64(0x0102030405060708)

	assert.Equal(t, []byte{
		0x34, 0x12,
		0xef, 0xbe, 0xad, 0xde,
		0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01,
	}, s.Bytes())
	assert.Equal(t, 14, s.Len())
}

func TestState_ReadBack(t *testing.T) {
	s := NewState()
	s.Write8(7)
	s.WriteBool(true)
	s.WriteInt64(-42)
	s.WriteData([]byte("abc"))

	r := StateFromBytes(s.Bytes())
	require.NoError(t, r.Need(1+1+8+3))
	assert.Equal(t, uint8(7), r.Read8())
	assert.True(t, r.ReadBool())
	assert.Equal(t, int64(-42), r.ReadInt64())
	p := make([]byte, 3)
	r.ReadData(p)
	assert.Equal(t, "abc", string(p))
	assert.Equal(t, 0, r.Remaining())
	assert.ErrorIs(t, r.Need(1), ErrShortState)
}
