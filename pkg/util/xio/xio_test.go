package xio

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFull(t *testing.T) {
	buf := make([]byte, 4)
	require.NoError(t, ReadFull(strings.NewReader("abcd"), buf))
	assert.Equal(t, []byte("abcd"), buf)

	err := ReadFull(strings.NewReader("ab"), make([]byte, 4))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	err = ReadFull(strings.NewReader(""), make([]byte, 4))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadAtMost(t *testing.T) {
	got, err := ReadAtMost(strings.NewReader("abcdef"), 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcd"), got)

	got, err = ReadAtMost(strings.NewReader("ab"), 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("ab"), got)
}

func TestDrain(t *testing.T) {
	r := strings.NewReader(strings.Repeat("x", 1024))
	require.NoError(t, Drain(r))
	assert.Zero(t, r.Len())
}

func TestCeilDiv(t *testing.T) {
	assert.Equal(t, uint64(0), CeilDiv(0, 8))
	assert.Equal(t, uint64(1), CeilDiv(1, 8))
	assert.Equal(t, uint64(1), CeilDiv(8, 8))
	assert.Equal(t, uint64(2), CeilDiv(9, 8))
	assert.Equal(t, uint64(0), CeilDiv(9, 0))
}

func TestDrainLargeBody(t *testing.T) {
	var src bytes.Buffer
	src.Write(bytes.Repeat([]byte{0xab}, 4*MiB))
	require.NoError(t, Drain(&src))
	assert.Zero(t, src.Len())
}
