package bucketfs

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAllFrom(t *testing.T, b *Body) string {
	t.Helper()
	_, err := b.Seek(0, io.SeekStart)
	require.NoError(t, err)
	data, err := io.ReadAll(b)
	require.NoError(t, err)
	return string(data)
}

func TestSpoolBody_InMemory(t *testing.T) {
	b, err := SpoolBody(strings.NewReader("hello"), -1, 16)
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	assert.EqualValues(t, 5, b.Size())
	assert.Equal(t, "hello", readAllFrom(t, b))
	assert.Equal(t, "hello", readAllFrom(t, b), "body rewinds")
	_, isFile := b.ReadSeeker.(*os.File)
	assert.False(t, isFile)
}

func TestSpoolBody_SpoolsLargeBody(t *testing.T) {
	payload := strings.Repeat("abcdefgh", 8)
	b, err := SpoolBody(strings.NewReader(payload), -1, 10)
	require.NoError(t, err)

	f, isFile := b.ReadSeeker.(*os.File)
	require.True(t, isFile)
	assert.EqualValues(t, len(payload), b.Size())
	assert.Equal(t, payload, readAllFrom(t, b))
	assert.Equal(t, payload, readAllFrom(t, b))

	require.NoError(t, b.Close())
	_, err = os.Stat(f.Name())
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, b.Close(), "second close is a no-op")
}

func TestSpoolBody_KnownSize(t *testing.T) {
	b, err := SpoolBody(strings.NewReader("hello world"), 5, 16)
	require.NoError(t, err)
	assert.Equal(t, "hello", readAllFrom(t, b))

	_, err = SpoolBody(strings.NewReader("hi"), 5, 16)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = SpoolBody(strings.NewReader(strings.Repeat("x", 20)), 30, 8)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
