// Package store implements the Block Store: durable, transactional
// storage of full blocks, block records, chain-membership flags, the peak
// pointer, and sub-epoch challenge segments, backed by an embedded bbolt
// database. At most one writer transaction is in flight globally; readers
// observe a consistent snapshot of the last committed state.
package store

import (
	"context"
	"sync"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/corpochain-network/beacon-core/consensus/blockrecord"
	"github.com/corpochain-network/beacon-core/consensus/types"
)

var log = logrus.WithField("prefix", "store")

// Store is the bbolt-backed Block Store.
type Store struct {
	db *bolt.DB

	writerMu sync.Mutex
}

// Open creates or opens the bbolt database at path and ensures every bucket
// from the schema exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, errors.Wrap(err, "store: opening bbolt database")
	}
	s := &Store{db: db}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return errors.Wrapf(err, "store: creating bucket %s", b)
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying bbolt database handle, so collaborating stores
// (the Height Map) can share one file and one writer-serialization domain
// instead of opening a second database.
func (s *Store) DB() *bolt.DB {
	return s.db
}

// GetFullBlock returns the full block stored under hash, or ErrNotFound.
func (s *Store) GetFullBlock(ctx context.Context, hash [32]byte) (*types.FullBlock, error) {
	var out *types.FullBlock
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(blocksBucket).Get(hash[:])
		if raw == nil {
			return ErrNotFound
		}
		decompressed, err := snappy.Decode(nil, raw)
		if err != nil {
			return errors.Wrap(err, "store: decompressing block blob")
		}
		b := &types.FullBlock{}
		if err := b.UnmarshalBinary(decompressed); err != nil {
			return errors.Wrap(err, "store: decoding block")
		}
		out = b
		return nil
	})
	return out, err
}

// GetBlockRecord returns the block record stored under hash, or ErrNotFound.
func (s *Store) GetBlockRecord(ctx context.Context, hash [32]byte) (*blockrecord.Record, error) {
	var out *blockrecord.Record
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(blockRecordsBucket).Get(hash[:])
		if raw == nil {
			return ErrNotFound
		}
		r := &blockrecord.Record{}
		if err := r.UnmarshalBinary(raw); err != nil {
			return errors.Wrap(err, "store: decoding block record")
		}
		out = r
		return nil
	})
	return out, err
}

// GetBlockRecordsByHash returns the block records for each of hashes, in the
// same order; entries for hashes that are not present are omitted.
func (s *Store) GetBlockRecordsByHash(ctx context.Context, hashes [][32]byte) ([]*blockrecord.Record, error) {
	out := make([]*blockrecord.Record, 0, len(hashes))
	err := s.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(blockRecordsBucket)
		for _, h := range hashes {
			raw := bkt.Get(h[:])
			if raw == nil {
				continue
			}
			r := &blockrecord.Record{}
			if err := r.UnmarshalBinary(raw); err != nil {
				return errors.Wrap(err, "store: decoding block record")
			}
			out = append(out, r)
		}
		return nil
	})
	return out, err
}

// GetBlockRecordsInRange returns every block record whose height falls in
// [lo, hi], keyed by header hash.
func (s *Store) GetBlockRecordsInRange(ctx context.Context, lo, hi uint64) (map[[32]byte]*blockrecord.Record, error) {
	out := make(map[[32]byte]*blockrecord.Record)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(blockRecordsBucket).ForEach(func(k, v []byte) error {
			r := &blockrecord.Record{}
			if err := r.UnmarshalBinary(v); err != nil {
				return errors.Wrap(err, "store: decoding block record")
			}
			if r.Height >= lo && r.Height <= hi {
				out[r.HeaderHash] = r
			}
			return nil
		})
	})
	return out, err
}

// GetBlockRecordsCloseToPeak returns every stored block record whose height
// lies within the n heights ending at the peak's height (orphans included,
// so the map may hold more than n records; map order is unspecified), and
// the current peak hash (nil if no peak is set).
func (s *Store) GetBlockRecordsCloseToPeak(ctx context.Context, n int) (map[[32]byte]*blockrecord.Record, *[32]byte, error) {
	peak, err := s.peakHash()
	if err != nil {
		return nil, nil, err
	}
	if peak == nil {
		return map[[32]byte]*blockrecord.Record{}, nil, nil
	}
	peakRecord, err := s.GetBlockRecord(ctx, *peak)
	if err != nil {
		return nil, nil, err
	}
	lo := uint64(0)
	if peakRecord.Height >= uint64(n) {
		lo = peakRecord.Height - uint64(n) + 1
	}
	records, err := s.GetBlockRecordsInRange(ctx, lo, peakRecord.Height)
	if err != nil {
		return nil, nil, err
	}
	return records, peak, nil
}

func (s *Store) peakHash() (*[32]byte, error) {
	var out *[32]byte
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(peakBucket).Get(peakKey)
		if raw == nil {
			return nil
		}
		var h [32]byte
		copy(h[:], raw)
		out = &h
		return nil
	})
	return out, err
}

// Writer opens a scoped writer transaction: fn runs inside a single bbolt
// Update transaction, which commits on a nil return and rolls back on any
// error, so callers get commit-on-success, rollback-on-error. At most one writer
// transaction is in flight globally.
func (s *Store) Writer(ctx context.Context, fn func(w *Writer) error) error {
	if !s.writerMu.TryLock() {
		return ErrWriterInFlight
	}
	defer s.writerMu.Unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		w := &Writer{tx: tx}
		return fn(w)
	})
}

// Writer is the scoped writer-transaction handle passed to Store.Writer's
// callback. All mutating Block Store operations live here so call sites
// cannot accidentally mutate storage outside a committed transaction.
type Writer struct {
	tx *bolt.Tx
}

// AddFullBlock writes a full block and its derived record in one
// transaction.
func (w *Writer) AddFullBlock(hash [32]byte, block *types.FullBlock, record *blockrecord.Record) error {
	encoded, err := block.MarshalBinary()
	if err != nil {
		return errors.Wrap(err, "store: encoding block")
	}
	compressed := snappy.Encode(nil, encoded)
	if err := w.tx.Bucket(blocksBucket).Put(hash[:], compressed); err != nil {
		return errors.Wrap(err, "store: writing block blob")
	}

	recEncoded, err := record.MarshalBinary()
	if err != nil {
		return errors.Wrap(err, "store: encoding block record")
	}
	if err := w.tx.Bucket(blockRecordsBucket).Put(hash[:], recEncoded); err != nil {
		return errors.Wrap(err, "store: writing block record")
	}
	return nil
}

// SetInChain marks every hash in hashes as canonical.
func (w *Writer) SetInChain(hashes [][32]byte) error {
	bkt := w.tx.Bucket(chainMembershipBucket)
	for _, h := range hashes {
		if err := bkt.Put(h[:], []byte{1}); err != nil {
			return errors.Wrap(err, "store: marking chain membership")
		}
	}
	return nil
}

// InChain reports whether hash is marked canonical.
func (w *Writer) InChain(hash [32]byte) bool {
	return w.tx.Bucket(chainMembershipBucket).Get(hash[:]) != nil
}

// SetPeak updates the singleton peak pointer.
func (w *Writer) SetPeak(hash [32]byte) error {
	if err := w.tx.Bucket(peakBucket).Put(peakKey, hash[:]); err != nil {
		return errors.Wrap(err, "store: setting peak")
	}
	return nil
}

// Rollback drops sub-epoch summaries strictly above height and clears chain
// membership for any record above height, so a subsequent replay starts from a clean slate.
func (w *Writer) Rollback(height uint64) error {
	return w.rollbackAbove(int64(height))
}

// RollbackAll clears chain membership and sub-epoch summaries for every
// record in the store, including height 0. Used by reconsiderPeak's full
// reorg case, where the new peak shares no ancestor with the previously
// canonical chain, not even genesis.
func (w *Writer) RollbackAll() error {
	return w.rollbackAbove(-1)
}

// rollbackAbove clears chain membership and sub-epoch summaries for every
// record whose height is strictly greater than above; above == -1 clears
// everything.
func (w *Writer) rollbackAbove(above int64) error {
	segBkt := w.tx.Bucket(subEpochSegmentsBucket)
	recBkt := w.tx.Bucket(blockRecordsBucket)
	memBkt := w.tx.Bucket(chainMembershipBucket)

	c := recBkt.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		r := &blockrecord.Record{}
		if err := r.UnmarshalBinary(v); err != nil {
			return errors.Wrap(err, "store: decoding block record during rollback")
		}
		if int64(r.Height) <= above {
			continue
		}
		if err := memBkt.Delete(k); err != nil {
			return errors.Wrap(err, "store: clearing chain membership during rollback")
		}
		if r.SubEpochSummaryIncluded != nil {
			if err := segBkt.Delete(r.SubEpochSummaryIncluded[:]); err != nil {
				return errors.Wrap(err, "store: dropping sub-epoch segment during rollback")
			}
		}
	}
	return nil
}

// PersistSubEpochChallengeSegments stores the challenge segments computed for
// a sub-epoch summary, keyed by its hash.
func (w *Writer) PersistSubEpochChallengeSegments(sesHash [32]byte, segments [][]byte) error {
	e := newRawEncoder()
	e.writeU64(uint64(len(segments)))
	for _, seg := range segments {
		e.writeBytes(seg)
	}
	if err := w.tx.Bucket(subEpochSegmentsBucket).Put(sesHash[:], e.bytes()); err != nil {
		return errors.Wrap(err, "store: persisting sub-epoch challenge segments")
	}
	return nil
}

// GetSubEpochChallengeSegments reads back the segments persisted by
// PersistSubEpochChallengeSegments, or ErrNotFound.
func (s *Store) GetSubEpochChallengeSegments(ctx context.Context, sesHash [32]byte) ([][]byte, error) {
	var out [][]byte
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(subEpochSegmentsBucket).Get(sesHash[:])
		if raw == nil {
			return ErrNotFound
		}
		d := newRawDecoder(raw)
		n, err := d.readU64()
		if err != nil {
			return err
		}
		out = make([][]byte, n)
		for i := range out {
			if out[i], err = d.readBytes(); err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// RollbackCacheBlock is a store-side hook the Blockchain Manager calls when
// it drops a just-cached record because its writer transaction failed. The
// Block Store itself has no in-process memoization beyond bbolt's own page
// cache, so this only logs a trace line; kept as an
// explicit method (rather than omitted) so callers have one stable call
// site regardless of whether a future revision adds store-side memoization.
func (s *Store) RollbackCacheBlock(hash [32]byte) {
	log.WithField("hash", hash).Trace("rollback cache block: no store-side memoization to evict")
}
