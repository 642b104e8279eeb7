package contenttest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marmos91/gfapi/pkg/native/simvol"
)

// RunWriteTests executes the WriteAt, Truncate and Delete tests.
func (suite *StoreTestSuite) RunWriteTests(t *testing.T) {
	t.Run("WriteAt_Basic", suite.testWriteAtBasic)
	t.Run("WriteAt_Overwrite", suite.testWriteAtOverwrite)
	t.Run("WriteAt_SparseFile", suite.testWriteAtSparseFile)
	t.Run("WriteAt_NegativeOffset", suite.testWriteAtNegativeOffset)
	t.Run("WriteAt_Large", suite.testWriteAtLarge)
	t.Run("Truncate_Shrink", suite.testTruncateShrink)
	t.Run("Truncate_Grow", suite.testTruncateGrow)
	t.Run("Truncate_ShrinkThenGrow", suite.testTruncateShrinkThenGrow)
	t.Run("Truncate_CreatesContent", suite.testTruncateCreatesContent)
	t.Run("ZeroRange", suite.testZeroRange)
	t.Run("Delete_Success", suite.testDeleteSuccess)
	t.Run("Delete_Idempotent", suite.testDeleteIdempotent)
}

// ============================================================================
// WriteAt Tests
// ============================================================================

func (suite *StoreTestSuite) testWriteAtBasic(t *testing.T) {
	store := suite.NewStore()
	id := generateTestID("writeat-basic")

	mustWriteAt(t, store, id, []byte("Hello"), 0)
	assertContentEquals(t, store, id, []byte("Hello"))

	// Append
	mustWriteAt(t, store, id, []byte(", World"), 5)
	assertContentEquals(t, store, id, []byte("Hello, World"))
	assertContentSize(t, store, id, 12)
}

func (suite *StoreTestSuite) testWriteAtOverwrite(t *testing.T) {
	store := suite.NewStore()
	id := generateTestID("writeat-overwrite")

	mustWriteAt(t, store, id, []byte("Hello, World"), 0)
	mustWriteAt(t, store, id, []byte("Gopher"), 7)
	assertContentEquals(t, store, id, []byte("Hello, Gopher"))
}

func (suite *StoreTestSuite) testWriteAtSparseFile(t *testing.T) {
	store := suite.NewStore()
	id := generateTestID("writeat-sparse")

	mustWriteAt(t, store, id, []byte("Data"), 100)

	expected := make([]byte, 104)
	copy(expected[100:], "Data")
	assertContentEquals(t, store, id, expected)
	assertContentSize(t, store, id, 104)
}

func (suite *StoreTestSuite) testWriteAtNegativeOffset(t *testing.T) {
	store := suite.NewStore()

	err := store.WriteAt(testContext(), generateTestID("writeat-negative"), []byte("x"), -1)
	assert.ErrorIs(t, err, simvol.ErrInvalidOffset)
}

func (suite *StoreTestSuite) testWriteAtLarge(t *testing.T) {
	store := suite.NewStore()
	id := generateTestID("writeat-large")
	data := generateTestData(256 * 1024)

	mustWriteAt(t, store, id, data, 0)
	assertContentSize(t, store, id, int64(len(data)))

	buf := make([]byte, 1000)
	n, err := store.ReadAt(testContext(), id, buf, 100_000)
	assert.NoError(t, err)
	assert.Equal(t, data[100_000:100_000+n], buf[:n])
}

// ============================================================================
// Truncate Tests
// ============================================================================

func (suite *StoreTestSuite) testTruncateShrink(t *testing.T) {
	store := suite.NewStore()
	id := generateTestID("truncate-shrink")

	mustWriteAt(t, store, id, []byte("Hello, World!"), 0)
	mustTruncate(t, store, id, 5)

	assertContentEquals(t, store, id, []byte("Hello"))
	assertContentSize(t, store, id, 5)
}

func (suite *StoreTestSuite) testTruncateGrow(t *testing.T) {
	store := suite.NewStore()
	id := generateTestID("truncate-grow")

	mustWriteAt(t, store, id, []byte("Hi"), 0)
	mustTruncate(t, store, id, 6)

	assertContentEquals(t, store, id, []byte{'H', 'i', 0, 0, 0, 0})
	assertContentSize(t, store, id, 6)
}

// Bytes cut by a shrink must not come back when the content grows again.
func (suite *StoreTestSuite) testTruncateShrinkThenGrow(t *testing.T) {
	store := suite.NewStore()
	id := generateTestID("truncate-shrink-grow")

	mustWriteAt(t, store, id, []byte("abcdef"), 0)
	mustTruncate(t, store, id, 2)
	mustTruncate(t, store, id, 6)

	assertContentEquals(t, store, id, []byte{'a', 'b', 0, 0, 0, 0})
}

func (suite *StoreTestSuite) testTruncateCreatesContent(t *testing.T) {
	store := suite.NewStore()
	id := generateTestID("truncate-create")

	mustTruncate(t, store, id, 0)
	assertContentSize(t, store, id, 0)
}

// testZeroRange runs only for stores that implement simvol.RangeZeroer.
func (suite *StoreTestSuite) testZeroRange(t *testing.T) {
	store := suite.NewStore()
	z, ok := store.(simvol.RangeZeroer)
	if !ok {
		t.Skip("store does not implement RangeZeroer")
	}
	id := generateTestID("zero-range")

	mustWriteAt(t, store, id, []byte("abcdef"), 0)
	mustZeroRange(t, z, id, 2, 2)
	assertContentEquals(t, store, id, []byte{'a', 'b', 0, 0, 'e', 'f'})

	// Zeroing past the end grows the content.
	mustZeroRange(t, z, id, 4, 6)
	assertContentSize(t, store, id, 10)
	assertContentEquals(t, store, id, []byte{'a', 'b', 0, 0, 0, 0, 0, 0, 0, 0})
}

// ============================================================================
// Delete Tests
// ============================================================================

func (suite *StoreTestSuite) testDeleteSuccess(t *testing.T) {
	store := suite.NewStore()
	id := generateTestID("delete-success")

	mustWriteAt(t, store, id, []byte("doomed"), 0)
	mustDelete(t, store, id)
	assertNotFound(t, store, id)
}

func (suite *StoreTestSuite) testDeleteIdempotent(t *testing.T) {
	store := suite.NewStore()
	id := generateTestID("delete-idempotent")

	mustDelete(t, store, id)
	mustDelete(t, store, id)
}
