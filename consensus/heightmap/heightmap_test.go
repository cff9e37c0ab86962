package heightmap

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func setupMap(t testing.TB, flushThreshold int) *Map {
	m, err := Open(filepath.Join(t.TempDir(), "height-index.db"), flushThreshold)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, m.Close())
	})
	return m
}

func TestMap_UpdateAndGetHash_BeforeFlush(t *testing.T) {
	m := setupMap(t, 32)

	hash := [32]byte{1, 2, 3}
	m.UpdateHeight(5, hash, nil)

	ok, err := m.ContainsHeight(5)
	require.NoError(t, err)
	require.True(t, ok)

	got, ok, err := m.GetHash(5)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, hash, got)
}

func TestMap_MaybeFlush_FlushesAtThreshold(t *testing.T) {
	m := setupMap(t, 3)

	for h := uint64(0); h < 3; h++ {
		m.UpdateHeight(h, [32]byte{byte(h + 1)}, nil)
	}
	require.NoError(t, m.MaybeFlush())

	m.mu.Lock()
	dirtyCount := len(m.dirty)
	m.mu.Unlock()
	require.Equal(t, 0, dirtyCount)

	got, ok, err := m.GetHash(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, [32]byte{1}, got)
}

func TestMap_GetSES_ReturnsNilWhenAbsent(t *testing.T) {
	m := setupMap(t, 32)
	m.UpdateHeight(1, [32]byte{1}, nil)

	ses, ok, err := m.GetSES(1)
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, ses)
}

func TestMap_GetSESHeights_IncludesBufferedAndFlushed(t *testing.T) {
	m := setupMap(t, 32)

	ses1 := [32]byte{0xAA}
	m.UpdateHeight(1, [32]byte{1}, &ses1)
	m.UpdateHeight(2, [32]byte{2}, nil)
	require.NoError(t, m.Flush())

	ses3 := [32]byte{0xBB}
	m.UpdateHeight(3, [32]byte{3}, &ses3)

	heights, err := m.GetSESHeights()
	require.NoError(t, err)
	require.ElementsMatch(t, []uint64{1, 3}, heights)
}

func TestMap_Rollback_DropsEntriesAboveForkHeight(t *testing.T) {
	m := setupMap(t, 32)

	for h := uint64(0); h < 5; h++ {
		m.UpdateHeight(h, [32]byte{byte(h + 1)}, nil)
	}
	require.NoError(t, m.Flush())

	require.NoError(t, m.Rollback(2))

	for h := uint64(0); h <= 2; h++ {
		ok, err := m.ContainsHeight(h)
		require.NoError(t, err)
		require.True(t, ok, "height %d should survive rollback", h)
	}
	for h := uint64(3); h < 5; h++ {
		ok, err := m.ContainsHeight(h)
		require.NoError(t, err)
		require.False(t, ok, "height %d should be dropped by rollback", h)
	}
}

func TestMap_Rollback_DropsBufferedEntriesNotYetFlushed(t *testing.T) {
	m := setupMap(t, 32)

	m.UpdateHeight(1, [32]byte{1}, nil)
	m.UpdateHeight(2, [32]byte{2}, nil)

	require.NoError(t, m.Rollback(1))

	ok, err := m.ContainsHeight(2)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = m.ContainsHeight(1)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMap_MaybeFlush_NoOpBelowThreshold(t *testing.T) {
	m := setupMap(t, 100)
	m.UpdateHeight(1, [32]byte{1}, nil)
	require.NoError(t, m.MaybeFlush())

	m.mu.Lock()
	dirtyCount := len(m.dirty)
	m.mu.Unlock()
	require.Equal(t, 1, dirtyCount)
}

func TestMap_UpdateHeight_OverwritesPriorEntry(t *testing.T) {
	m := setupMap(t, 32)

	m.UpdateHeight(1, [32]byte{1}, nil)
	m.UpdateHeight(1, [32]byte{2}, nil)

	got, ok, err := m.GetHash(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, [32]byte{2}, got)
}
