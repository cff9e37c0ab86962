// Package heightmap implements the canonical height↔hash index: a
// durable, write-behind-buffered map from block height to header hash (plus
// the sub-epoch summary hash infused at that height, if any), backed by a
// dedicated bbolt bucket.
package heightmap

import (
	"sync"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var heightIndexBucket = []byte("height-index")

// defaultFlushThreshold is the number of pending buffered changes at which
// MaybeFlush forces a flush to the durable bucket.
const defaultFlushThreshold = 32

// entry is one row of the height index: the canonical hash at a height, and
// the sub-epoch summary hash infused there, if this height is a sub-epoch
// boundary.
type entry struct {
	hash [32]byte
	ses  *[32]byte
}

// Map is the height↔hash index. All mutation (UpdateHeight, Rollback) lands
// in an in-memory write-behind buffer; the durable bucket is only touched by
// Flush and MaybeFlush, so callers may mutate the Map from inside their own
// open bbolt transaction on the shared database handle without nesting write
// transactions. A flush may lag the mutation that made the buffer dirty;
// callers that need durability before acknowledging a write must call Flush
// explicitly.
type Map struct {
	db             *bolt.DB
	owned          bool
	flushThreshold int

	mu      sync.Mutex
	dirty   map[uint64]entry
	deleted map[uint64]struct{}
}

// OpenIn creates or opens the height-index bucket inside an existing bbolt
// database (typically the Block Store's own database handle, so both share
// one file and one writer-serialization domain). Use Open to manage a
// standalone database file instead.
func OpenIn(db *bolt.DB, flushThreshold int) (*Map, error) {
	if flushThreshold <= 0 {
		flushThreshold = defaultFlushThreshold
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(heightIndexBucket)
		return err
	}); err != nil {
		return nil, errors.Wrap(err, "heightmap: creating height-index bucket")
	}
	return &Map{
		db:             db,
		flushThreshold: flushThreshold,
		dirty:          make(map[uint64]entry),
		deleted:        make(map[uint64]struct{}),
	}, nil
}

// Open creates or opens a standalone bbolt database at path for the height
// index. Call Close when done.
func Open(path string, flushThreshold int) (*Map, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, errors.Wrap(err, "heightmap: opening bbolt database")
	}
	m, err := OpenIn(db, flushThreshold)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	m.owned = true
	return m, nil
}

// Close flushes any buffered writes and, if this Map opened its own database
// file (via Open rather than OpenIn), closes it.
func (m *Map) Close() error {
	if err := m.Flush(); err != nil {
		return err
	}
	if m.owned {
		return m.db.Close()
	}
	return nil
}

// ContainsHeight reports whether height has a canonical entry, consulting
// the write-behind buffer first.
func (m *Map) ContainsHeight(height uint64) (bool, error) {
	m.mu.Lock()
	if _, deleted := m.deleted[height]; deleted {
		m.mu.Unlock()
		return false, nil
	}
	if _, ok := m.dirty[height]; ok {
		m.mu.Unlock()
		return true, nil
	}
	m.mu.Unlock()

	var found bool
	err := m.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(heightIndexBucket).Get(encodeHeight(height)) != nil
		return nil
	})
	return found, err
}

// GetHash returns the canonical hash at height, or ok=false if absent.
func (m *Map) GetHash(height uint64) (hash [32]byte, ok bool, err error) {
	m.mu.Lock()
	if _, deleted := m.deleted[height]; deleted {
		m.mu.Unlock()
		return hash, false, nil
	}
	if e, found := m.dirty[height]; found {
		m.mu.Unlock()
		return e.hash, true, nil
	}
	m.mu.Unlock()

	err = m.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(heightIndexBucket).Get(encodeHeight(height))
		if raw == nil {
			return nil
		}
		ok = true
		decodeEntry(raw, &hash, nil)
		return nil
	})
	return hash, ok, err
}

// GetSES returns the sub-epoch summary hash infused at height, if any.
func (m *Map) GetSES(height uint64) (ses *[32]byte, ok bool, err error) {
	m.mu.Lock()
	if _, deleted := m.deleted[height]; deleted {
		m.mu.Unlock()
		return nil, false, nil
	}
	if e, found := m.dirty[height]; found {
		m.mu.Unlock()
		return e.ses, e.ses != nil, nil
	}
	m.mu.Unlock()

	err = m.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(heightIndexBucket).Get(encodeHeight(height))
		if raw == nil {
			return nil
		}
		var h [32]byte
		decodeEntry(raw, &h, &ses)
		ok = ses != nil
		return nil
	})
	return ses, ok, err
}

// GetSESHeights returns every height at which a sub-epoch summary is
// recorded, across both the flushed bucket and the in-memory buffer.
func (m *Map) GetSESHeights() ([]uint64, error) {
	seen := make(map[uint64]bool)

	err := m.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(heightIndexBucket).ForEach(func(k, v []byte) error {
			var h [32]byte
			var ses *[32]byte
			decodeEntry(v, &h, &ses)
			if ses != nil {
				seen[decodeHeight(k)] = true
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	for height, e := range m.dirty {
		if e.ses != nil {
			seen[height] = true
		}
	}
	for height := range m.deleted {
		delete(seen, height)
	}
	m.mu.Unlock()

	out := make([]uint64, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	return out, nil
}

// UpdateHeight records the canonical hash (and optional sub-epoch summary
// hash) for height in the write-behind buffer. Durability is deferred to the
// next MaybeFlush or Flush call.
func (m *Map) UpdateHeight(height uint64, hash [32]byte, ses *[32]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.deleted, height)
	m.dirty[height] = entry{hash: hash, ses: ses}
}

// Rollback drops all entries strictly above forkHeight. Buffered entries are
// dropped immediately; already-flushed entries are marked deleted in the
// buffer and removed from the durable bucket on the next flush.
func (m *Map) Rollback(forkHeight uint64) error {
	return m.rollbackAbove(int64(forkHeight))
}

// RollbackAll drops every entry in the index, including height 0. Used by
// reconsiderPeak's full reorg case, where the new peak shares no common
// ancestor with the previously canonical chain.
func (m *Map) RollbackAll() error {
	return m.rollbackAbove(-1)
}

// rollbackAbove drops all entries with height strictly greater than above;
// above == -1 drops everything.
func (m *Map) rollbackAbove(above int64) error {
	var flushed []uint64
	err := m.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(heightIndexBucket).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if h := decodeHeight(k); int64(h) > above {
				flushed = append(flushed, h)
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "heightmap: scanning entries to roll back")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for height := range m.dirty {
		if int64(height) > above {
			delete(m.dirty, height)
			m.deleted[height] = struct{}{}
		}
	}
	for _, height := range flushed {
		m.deleted[height] = struct{}{}
	}
	return nil
}

// MaybeFlush flushes the write-behind buffer to bbolt once its pending
// changes reach flushThreshold; it is always safe to call and is a no-op
// otherwise.
func (m *Map) MaybeFlush() error {
	m.mu.Lock()
	pending := len(m.dirty) + len(m.deleted)
	m.mu.Unlock()
	if pending < m.flushThreshold {
		return nil
	}
	return m.Flush()
}

// Flush unconditionally writes every buffered entry to the durable bucket
// and clears the buffer.
func (m *Map) Flush() error {
	m.mu.Lock()
	dirty := m.dirty
	m.dirty = make(map[uint64]entry)
	deleted := m.deleted
	m.deleted = make(map[uint64]struct{})
	m.mu.Unlock()

	return m.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(heightIndexBucket)
		for height := range deleted {
			if err := bkt.Delete(encodeHeight(height)); err != nil {
				return errors.Wrap(err, "heightmap: deleting entry on flush")
			}
		}
		for height, e := range dirty {
			if err := bkt.Put(encodeHeight(height), encodeEntry(e.hash, e.ses)); err != nil {
				return errors.Wrap(err, "heightmap: writing entry on flush")
			}
		}
		return nil
	})
}

func encodeHeight(height uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(height)
		height >>= 8
	}
	return b
}

func decodeHeight(b []byte) uint64 {
	var h uint64
	for _, c := range b {
		h = h<<8 | uint64(c)
	}
	return h
}

func encodeEntry(hash [32]byte, ses *[32]byte) []byte {
	if ses == nil {
		out := make([]byte, 33)
		copy(out, hash[:])
		return out
	}
	out := make([]byte, 65)
	copy(out, hash[:])
	out[32] = 1
	copy(out[33:], ses[:])
	return out
}

func decodeEntry(raw []byte, hash *[32]byte, ses **[32]byte) {
	copy(hash[:], raw[:32])
	if ses == nil {
		return
	}
	if len(raw) >= 65 && raw[32] == 1 {
		var h [32]byte
		copy(h[:], raw[33:65])
		*ses = &h
	} else {
		*ses = nil
	}
}
