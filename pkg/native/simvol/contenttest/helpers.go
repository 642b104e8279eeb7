package contenttest

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/gfapi/pkg/native/simvol"
)

func mustWriteAt(t *testing.T, store simvol.ContentStore, id simvol.ContentID, data []byte, offset int64) {
	t.Helper()
	err := store.WriteAt(testContext(), id, data, offset)
	require.NoError(t, err, "WriteAt should succeed")
}

func mustTruncate(t *testing.T, store simvol.ContentStore, id simvol.ContentID, size int64) {
	t.Helper()
	err := store.Truncate(testContext(), id, size)
	require.NoError(t, err, "Truncate should succeed")
}

func mustZeroRange(t *testing.T, z simvol.RangeZeroer, id simvol.ContentID, offset, n int64) {
	t.Helper()
	err := z.ZeroRange(testContext(), id, offset, n)
	require.NoError(t, err, "ZeroRange should succeed")
}

func mustDelete(t *testing.T, store simvol.ContentStore, id simvol.ContentID) {
	t.Helper()
	err := store.Delete(testContext(), id)
	require.NoError(t, err, "Delete should succeed")
}

// readAll reads the whole stored content through ReadAt.
func readAll(t *testing.T, store simvol.ContentStore, id simvol.ContentID) []byte {
	t.Helper()
	var out []byte
	buf := make([]byte, 7)
	for off := int64(0); ; {
		n, err := store.ReadAt(testContext(), id, buf, off)
		out = append(out, buf[:n]...)
		off += int64(n)
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err, "ReadAt should succeed")
		if n == 0 {
			return out
		}
	}
}

func assertContentEquals(t *testing.T, store simvol.ContentStore, id simvol.ContentID, expected []byte) {
	t.Helper()
	assert.Equal(t, expected, readAll(t, store, id), "Content data mismatch")
}

func assertContentSize(t *testing.T, store simvol.ContentStore, id simvol.ContentID, expected int64) {
	t.Helper()
	size, err := store.Size(testContext(), id)
	require.NoError(t, err, "Size should succeed")
	assert.Equal(t, expected, size, "Content size mismatch")
}

func assertNotFound(t *testing.T, store simvol.ContentStore, id simvol.ContentID) {
	t.Helper()
	_, err := store.Size(testContext(), id)
	assert.ErrorIs(t, err, simvol.ErrContentNotFound)
}

func generateTestData(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 256)
	}
	return data
}

func generateTestID(name string) simvol.ContentID {
	return simvol.ContentID("test-" + name)
}
