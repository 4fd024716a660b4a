package mmap

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_ReadClose(t *testing.T) {
	content := []byte("node0node1node2")
	path := filepath.Join(t.TempDir(), "model.lod")
	require.NoError(t, os.WriteFile(path, content, 0644))

	m, err := Open(path)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, len(content), m.Size())
	assert.Equal(t, content, m.Bytes())
	assert.False(t, m.Writable())

	// 1. Positioned read of one node
	buf := make([]byte, 5)
	n, err := m.ReadAt(buf, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "node1", string(buf))

	// 2. Out of bounds
	n, err = m.ReadAt(buf, 100)
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)

	// 3. Partial tail
	buf = make([]byte, 10)
	n, err = m.ReadAt(buf, 10)
	assert.Equal(t, 5, n)
	assert.Equal(t, io.EOF, err)

	// 4. Negative offset
	_, err = m.ReadAt(buf, -1)
	assert.Equal(t, ErrInvalidOffset, err)
}

func TestOpen_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.lod")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	m, err := Open(path)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, 0, m.Size())
}

func TestAnonymous_Slots(t *testing.T) {
	const slotSize = 256

	m, err := Anonymous(4 * slotSize)
	require.NoError(t, err)
	assert.True(t, m.Writable())
	require.NoError(t, m.Advise(AccessRandom))

	data := m.Bytes()
	require.Len(t, data, 4*slotSize)
	assert.Zero(t, data[3*slotSize])

	copy(data[2*slotSize:], "surfels")
	assert.Equal(t, "surfels", string(m.Bytes()[2*slotSize:2*slotSize+7]))

	require.NoError(t, m.Close())
	require.NoError(t, m.Close(), "close is idempotent")

	assert.Nil(t, m.Bytes())
	assert.ErrorIs(t, m.Advise(AccessDefault), ErrClosed)

	_, err = m.ReadAt(make([]byte, 1), 0)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestAnonymous_InvalidSize(t *testing.T) {
	_, err := Anonymous(-1)
	assert.ErrorIs(t, err, ErrInvalidSize)

	m, err := Anonymous(0)
	require.NoError(t, err)
	assert.Empty(t, m.Bytes())
}
