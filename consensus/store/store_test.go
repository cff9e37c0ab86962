package store

import (
	"context"
	"fmt"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corpochain-network/beacon-core/consensus/blockrecord"
	"github.com/corpochain-network/beacon-core/consensus/types"
	"github.com/corpochain-network/beacon-core/internal/testlog"
)

func setupStore(t testing.TB) *Store {
	s, err := Open(filepath.Join(t.TempDir(), "beacon.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})
	return s
}

func sampleBlockAndRecord(height uint64, tag byte) (*types.FullBlock, *blockrecord.Record) {
	block := &types.FullBlock{
		RewardChainBlock: &types.RewardChainBlock{Height: height},
		Foliage: &types.Foliage{
			PrevBlockHash: [32]byte{tag - 1},
		},
	}
	rec := &blockrecord.Record{
		PrevHash:   [32]byte{tag - 1},
		Height:     height,
		Weight:     big.NewInt(int64(height)),
		TotalIters: big.NewInt(int64(height)),
	}
	h, err := blockrecord.ComputeHeaderHash(rec)
	if err != nil {
		panic(err)
	}
	rec.HeaderHash = h
	return block, rec
}

func TestStore_AddAndGetFullBlock(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	block, rec := sampleBlockAndRecord(1, 1)
	err := s.Writer(ctx, func(w *Writer) error {
		return w.AddFullBlock(rec.HeaderHash, block, rec)
	})
	require.NoError(t, err)

	got, err := s.GetFullBlock(ctx, rec.HeaderHash)
	require.NoError(t, err)
	require.Equal(t, block.RewardChainBlock.Height, got.RewardChainBlock.Height)

	gotRec, err := s.GetBlockRecord(ctx, rec.HeaderHash)
	require.NoError(t, err)
	require.Equal(t, rec.Height, gotRec.Height)
}

func TestStore_GetFullBlock_NotFound(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	_, err := s.GetFullBlock(ctx, [32]byte{0xFF})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SetPeakAndGetBlockRecordsCloseToPeak(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	var last *blockrecord.Record
	for h := uint64(0); h < 10; h++ {
		block, rec := sampleBlockAndRecord(h, byte(h+1))
		err := s.Writer(ctx, func(w *Writer) error {
			if err := w.AddFullBlock(rec.HeaderHash, block, rec); err != nil {
				return err
			}
			return w.SetInChain([][32]byte{rec.HeaderHash})
		})
		require.NoError(t, err)
		last = rec
	}
	err := s.Writer(ctx, func(w *Writer) error {
		return w.SetPeak(last.HeaderHash)
	})
	require.NoError(t, err)

	records, peak, err := s.GetBlockRecordsCloseToPeak(ctx, 3)
	require.NoError(t, err)
	require.NotNil(t, peak)
	require.Equal(t, last.HeaderHash, *peak)
	require.Len(t, records, 3)
}

func TestStore_Writer_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	block, rec := sampleBlockAndRecord(1, 1)
	err := s.Writer(ctx, func(w *Writer) error {
		if err := w.AddFullBlock(rec.HeaderHash, block, rec); err != nil {
			return err
		}
		return fmt.Errorf("forced failure")
	})
	require.Error(t, err)

	_, getErr := s.GetFullBlock(ctx, rec.HeaderHash)
	require.ErrorIs(t, getErr, ErrNotFound)
}

func TestStore_Rollback_ClearsMembershipAboveHeight(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	for h := uint64(0); h < 5; h++ {
		block, rec := sampleBlockAndRecord(h, byte(h+1))
		err := s.Writer(ctx, func(w *Writer) error {
			if err := w.AddFullBlock(rec.HeaderHash, block, rec); err != nil {
				return err
			}
			return w.SetInChain([][32]byte{rec.HeaderHash})
		})
		require.NoError(t, err)
	}

	_, recAt4 := sampleBlockAndRecord(4, 5)
	err := s.Writer(ctx, func(w *Writer) error {
		return w.Rollback(2)
	})
	require.NoError(t, err)

	err = s.Writer(ctx, func(w *Writer) error {
		if w.InChain(recAt4.HeaderHash) {
			t.Error("expected height-4 membership to be cleared by rollback(2)")
		}
		return nil
	})
	require.NoError(t, err)
}

func TestStore_PersistAndGetSubEpochChallengeSegments(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	sesHash := [32]byte{0xAA}
	segments := [][]byte{{1, 2, 3}, {4, 5}}
	err := s.Writer(ctx, func(w *Writer) error {
		return w.PersistSubEpochChallengeSegments(sesHash, segments)
	})
	require.NoError(t, err)

	got, err := s.GetSubEpochChallengeSegments(ctx, sesHash)
	require.NoError(t, err)
	require.Equal(t, segments, got)
}

func TestRollbackCacheBlock_LogsTrace(t *testing.T) {
	s := setupStore(t)
	hook := testlog.CaptureGlobal(t)

	s.RollbackCacheBlock([32]byte{0xAB})

	testlog.AssertContains(t, hook, "rollback cache block")
}
