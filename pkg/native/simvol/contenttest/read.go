package contenttest

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunReadTests executes the ReadAt and Size tests.
func (suite *StoreTestSuite) RunReadTests(t *testing.T) {
	t.Run("ReadAt_Missing", suite.testReadAtMissing)
	t.Run("ReadAt_Middle", suite.testReadAtMiddle)
	t.Run("ReadAt_ShortAtEnd", suite.testReadAtShortAtEnd)
	t.Run("ReadAt_PastEnd", suite.testReadAtPastEnd)
	t.Run("ReadAt_NegativeOffset", suite.testReadAtNegativeOffset)
	t.Run("Size_NotFound", suite.testSizeNotFound)
}

func (suite *StoreTestSuite) testReadAtMissing(t *testing.T) {
	store := suite.NewStore()

	buf := make([]byte, 8)
	n, err := store.ReadAt(testContext(), generateTestID("read-missing"), buf, 0)
	assert.ErrorIs(t, err, io.EOF)
	assert.Zero(t, n)
}

func (suite *StoreTestSuite) testReadAtMiddle(t *testing.T) {
	store := suite.NewStore()
	id := generateTestID("read-middle")
	mustWriteAt(t, store, id, []byte("Hello, World!"), 0)

	buf := make([]byte, 5)
	n, err := store.ReadAt(testContext(), id, buf, 7)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "World", string(buf))
}

func (suite *StoreTestSuite) testReadAtShortAtEnd(t *testing.T) {
	store := suite.NewStore()
	id := generateTestID("read-short")
	mustWriteAt(t, store, id, []byte("abcdef"), 0)

	buf := make([]byte, 10)
	n, err := store.ReadAt(testContext(), id, buf, 4)
	if err != nil {
		assert.ErrorIs(t, err, io.EOF)
	}
	assert.Equal(t, 2, n)
	assert.Equal(t, "ef", string(buf[:n]))
}

func (suite *StoreTestSuite) testReadAtPastEnd(t *testing.T) {
	store := suite.NewStore()
	id := generateTestID("read-past-end")
	mustWriteAt(t, store, id, []byte("abc"), 0)

	n, err := store.ReadAt(testContext(), id, make([]byte, 4), 3)
	assert.ErrorIs(t, err, io.EOF)
	assert.Zero(t, n)
}

func (suite *StoreTestSuite) testReadAtNegativeOffset(t *testing.T) {
	store := suite.NewStore()

	_, err := store.ReadAt(testContext(), generateTestID("read-negative"), make([]byte, 1), -1)
	assert.Error(t, err)
}

func (suite *StoreTestSuite) testSizeNotFound(t *testing.T) {
	store := suite.NewStore()
	assertNotFound(t, store, generateTestID("size-missing"))
}
