package binary

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGet(t *testing.T) {
	key, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	buf := make([]byte, 32+8+4+1+1+36+3)

	var offset int
	PutKey32(buf[offset:], key, &offset)
	PutUint64(buf[offset:], 1<<40, &offset)
	PutUint32(buf[offset:], 1<<20, &offset)
	PutUint8(buf[offset:], 7, &offset)
	PutBool(buf[offset:], true, &offset)
	PutOptionalKey32(buf[offset:], nil, &offset, 4)
	PutZeroes(buf[offset:], 3, &offset)
	require.Equal(t, len(buf), offset)

	var actualKey, optionalKey ed25519.PublicKey
	var u64 uint64
	var u32 uint32
	var u8 uint8
	var flag bool

	offset = 0
	GetKey32(buf[offset:], &actualKey, &offset)
	GetUint64(buf[offset:], &u64, &offset)
	GetUint32(buf[offset:], &u32, &offset)
	GetUint8(buf[offset:], &u8, &offset)
	GetBool(buf[offset:], &flag, &offset)
	GetOptionalKey32(buf[offset:], &optionalKey, &offset, 4)
	assert.True(t, AreZeroes(buf[offset:], 3, &offset))
	require.Equal(t, len(buf), offset)

	assert.EqualValues(t, key, actualKey)
	assert.EqualValues(t, 1<<40, u64)
	assert.EqualValues(t, 1<<20, u32)
	assert.EqualValues(t, 7, u8)
	assert.True(t, flag)
	assert.Nil(t, optionalKey)

	buf[len(buf)-1] = 1
	offset = len(buf) - 3
	assert.False(t, AreZeroes(buf[offset:], 3, &offset))
}
