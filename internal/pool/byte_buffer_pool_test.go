package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewByteBuffer(t *testing.T) {
	bb := NewByteBuffer(64)

	require.NotNil(t, bb)
	assert.Equal(t, 0, bb.Len())
	assert.Equal(t, 64, bb.Cap())
}

func TestByteBuffer_Append(t *testing.T) {
	bb := NewByteBuffer(4)

	off := bb.Append([]byte("hello"))
	assert.Equal(t, 0, off)
	assert.Equal(t, []byte("hello"), bb.Bytes())

	off = bb.Append([]byte("!"))
	assert.Equal(t, 5, off)
	assert.Equal(t, []byte("hello!"), bb.Bytes())
}

func TestByteBuffer_AppendZeros(t *testing.T) {
	bb := NewByteBuffer(0)

	off := bb.AppendZeros(3)
	assert.Equal(t, 0, off)
	assert.Equal(t, []byte{0, 0, 0}, bb.Bytes())
}

func TestByteBuffer_Reset(t *testing.T) {
	bb := NewByteBuffer(16)
	bb.Append([]byte("data"))
	cap0 := bb.Cap()

	bb.Reset()

	assert.Equal(t, 0, bb.Len())
	assert.Equal(t, cap0, bb.Cap())
}

func TestByteBuffer_GrowsPastInitialCapacity(t *testing.T) {
	bb := NewByteBuffer(2)

	bb.Append([]byte("this string is longer than the initial capacity"))

	assert.Equal(t, "this string is longer than the initial capacity", string(bb.Bytes()))
}

func TestPool_GetReturnsResetBuffer(t *testing.T) {
	p := New(8, 256)

	bb := p.Get()
	bb.Append([]byte("xyz"))
	p.Put(bb)

	bb2 := p.Get()
	assert.Equal(t, 0, bb2.Len(), "a buffer drawn from the pool must be reset")
}

func TestPool_DropsOversizedBuffers(t *testing.T) {
	p := New(8, 16)

	bb := NewByteBuffer(1024)
	p.Put(bb) // larger than maxRetained, should be dropped silently

	bb2 := p.Get()
	assert.Less(t, bb2.Cap(), 1024, "an oversized buffer must not be handed back by the pool")
}
