package fscontent

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/gfapi/pkg/native/simvol"
	"github.com/marmos91/gfapi/pkg/native/simvol/contenttest"
)

func TestStore(t *testing.T) {
	suite := &contenttest.StoreTestSuite{
		NewStore: func() simvol.ContentStore {
			store, err := New(context.Background(), t.TempDir())
			require.NoError(t, err)
			return store
		},
	}

	suite.Run(t)
}

func TestNew_CreatesBaseDirectory(t *testing.T) {
	base := filepath.Join(t.TempDir(), "a", "b")
	_, err := New(context.Background(), base)
	require.NoError(t, err)

	info, err := os.Stat(base)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(context.Background(), "")
	assert.ErrorContains(t, err, "base path is required")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New(ctx, t.TempDir())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStore_LargeWrite(t *testing.T) {
	ctx := context.Background()
	store, err := New(ctx, t.TempDir())
	require.NoError(t, err)

	data := make([]byte, 3*1024*1024+17)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.NoError(t, store.WriteAt(ctx, "big", data, 10))

	size, err := store.Size(ctx, "big")
	require.NoError(t, err)
	assert.EqualValues(t, len(data)+10, size)

	got := make([]byte, 100)
	n, err := store.ReadAt(ctx, "big", got, 2*1024*1024)
	require.NoError(t, err)
	require.Equal(t, 100, n)
	assert.Equal(t, data[2*1024*1024-10:2*1024*1024+90], got)
}
