package chronicle

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlockMap_AcquireExtendsAndZeroFills(t *testing.T) {
	dir := t.TempDir()

	bm, err := OpenBlockMap(filepath.Join(dir, "data"), 4096)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bm.close() })

	blk, err := bm.acquire(0)
	require.NoError(t, err)
	require.Len(t, blk.Bytes, 4096)

	for _, b := range blk.Bytes {
		require.Zero(t, b)
	}

	size, err := bm.size()
	require.NoError(t, err)
	require.Equal(t, int64(4096), size)

	bm.release(blk)
}

func TestBlockMap_RefcountSharesMapping(t *testing.T) {
	dir := t.TempDir()

	bm, err := OpenBlockMap(filepath.Join(dir, "data"), 4096)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bm.close() })

	first, err := bm.acquire(2)
	require.NoError(t, err)

	second, err := bm.acquire(2)
	require.NoError(t, err)

	first.Bytes[0] = 0x7F
	require.Equal(t, byte(0x7F), second.Bytes[0], "both acquires must alias the same mapping")

	// One release still leaves the block pinned by the other acquire.
	bm.release(first)
	require.Equal(t, byte(0x7F), second.Bytes[0])

	bm.release(second)
}

func TestBlockMap_CloseFailsWhilePinned(t *testing.T) {
	dir := t.TempDir()

	bm, err := OpenBlockMap(filepath.Join(dir, "data"), 4096)
	require.NoError(t, err)

	blk, err := bm.acquire(0)
	require.NoError(t, err)

	require.ErrorIs(t, bm.close(), ErrBusy)

	bm.release(blk)
	require.NoError(t, bm.close())
}

func TestBlockMap_SparseBlockIndexExtendsFileAcross(t *testing.T) {
	dir := t.TempDir()

	bm, err := OpenBlockMap(filepath.Join(dir, "data"), 4096)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bm.close() })

	blk, err := bm.acquire(3)
	require.NoError(t, err)
	defer bm.release(blk)

	size, err := bm.size()
	require.NoError(t, err)
	require.Equal(t, int64(4*4096), size)
}
