package xdpbuf

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func frameOf(n int) []byte {
	f := make([]byte, n)
	for i := range f {
		f[i] = byte(i)
	}
	return f
}

func TestViewBounds(t *testing.T) {
	b := New(frameOf(60), DefaultHeadroom)
	require.Equal(t, 60, b.Len())

	v, ok := b.View(0, 60)
	require.True(t, ok)
	assert.Len(t, v, 60)
	assert.Equal(t, 60, cap(v))

	v, ok = b.View(54, 2)
	require.True(t, ok)
	assert.Equal(t, []byte{54, 55}, v)

	for _, tc := range []struct{ off, size int }{
		{0, 61},
		{59, 2},
		{60, 1},
		{-1, 2},
		{0, -1},
		{1 << 62, 1 << 62},
	} {
		_, ok := b.View(tc.off, tc.size)
		assert.False(t, ok, "off=%d size=%d", tc.off, tc.size)
	}
}

func TestAdjustHeadGrow(t *testing.T) {
	b := New(frameOf(64), 56)
	gen := b.Generation()

	require.NoError(t, b.AdjustHead(-56))
	assert.Equal(t, 120, b.Len())
	assert.Equal(t, 0, b.Headroom())
	assert.Greater(t, b.Generation(), gen)

	head, ok := b.View(0, 56)
	require.True(t, ok)
	assert.Equal(t, make([]byte, 56), head)

	tail, ok := b.View(56, 64)
	require.True(t, ok)
	assert.Equal(t, frameOf(64), tail)

	err := b.AdjustHead(-1)
	require.ErrorIs(t, err, ErrNoHeadroom)
	assert.Equal(t, 120, b.Len())
}

func TestAdjustHeadShrink(t *testing.T) {
	b := New(frameOf(70), 0)

	require.NoError(t, b.AdjustHead(56))
	assert.Equal(t, 14, b.Len())
	assert.Equal(t, frameOf(70)[56:], b.Bytes())

	err := b.AdjustHead(1)
	require.ErrorIs(t, err, ErrTooShort)
	assert.Equal(t, 14, b.Len())
}

func TestViewAfterResize(t *testing.T) {
	b := New(frameOf(20), 8)
	_, ok := b.View(20, 8)
	require.False(t, ok)

	require.NoError(t, b.AdjustHead(-8))
	v, ok := b.View(20, 8)
	require.True(t, ok)
	assert.Equal(t, frameOf(20)[12:20], v)
}
