package serial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderConsumesWriterOutput(t *testing.T) {
	t.Parallel()

	var w Writer
	w.PutUint32(7)
	w.PutString("main")
	w.PutUint64(1 << 40)
	_, _ = w.Write([]byte{1, 2, 3})

	r := NewReader(w.Bytes())
	v, err := r.Uint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(7), v)

	s, err := r.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "main", s)

	big, err := r.Uint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<40), big)

	assert.False(t, r.Done())
	assert.Equal(t, []byte{1, 2, 3}, r.Rest())
	assert.True(t, r.Done())
	assert.Equal(t, r.Len(), r.Offset())
}

func TestReaderOverrun(t *testing.T) {
	t.Parallel()

	r := NewReader([]byte{1, 2, 3})
	_, err := r.Uint32()
	assert.ErrorIs(t, err, ErrOverrun)
	assert.Equal(t, 0, r.Offset(), "failed reads consume nothing")

	_, err = r.Bytes(-1)
	assert.ErrorIs(t, err, ErrOverrun)

	var w Writer
	w.PutUint32(100)
	_, err = NewReader(w.Bytes()).ReadString()
	assert.ErrorIs(t, err, ErrOverrun)
}

func TestWriterPad(t *testing.T) {
	t.Parallel()

	var w Writer
	_, _ = w.Write([]byte{1})
	w.Pad(8)
	assert.Equal(t, 8, w.Len())
	w.Pad(8)
	assert.Equal(t, 8, w.Len())
}
