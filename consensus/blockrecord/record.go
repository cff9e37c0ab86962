// Package blockrecord defines BlockRecord, the immutable, hashable summary of
// a block that the rest of the consensus packages reason about instead of
// passing full blocks around.
package blockrecord

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"

	"golang.org/x/crypto/sha3"
)

// SubEpochSummaryHash is the hash-chain anchor inserted at sub-epoch
// boundaries; see Record.SubEpochSummaryIncluded.
type SubEpochSummaryHash [32]byte

// Record is an immutable, content-addressed summary of a block used by
// consensus. Two Records are Equal iff their HeaderHash matches; Less orders
// Records by (Weight, TotalIters, HeaderHash) for deterministic fork-choice
// tie-breaks.
type Record struct {
	HeaderHash                  [32]byte
	PrevHash                    [32]byte
	Height                      uint64
	Weight                      *big.Int
	TotalIters                  *big.Int
	SignagePointIndex           uint8
	RequiredIters               *big.Int
	Deficit                     uint8
	Overflow                    bool
	FirstInSubSlot              bool
	IsTransactionBlock          bool
	SubSlotIters                uint64
	SubEpochSummaryIncluded     *SubEpochSummaryHash
	FinishedChallengeSlotHashes [][32]byte
	FinishedRewardSlotHashes    [][32]byte
	LastWithdrawalIndex         *uint64
	Coinbase                    [20]byte
	RewardInfusionNewChallenge  [32]byte
}

// Equal compares Records by identity (HeaderHash), matching the "equality by
// header_hash" invariant.
func (r *Record) Equal(other *Record) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.HeaderHash == other.HeaderHash
}

// Less implements the deterministic fork-choice tie-break ordering
// (weight, total_iters, header_hash).
func (r *Record) Less(other *Record) bool {
	if c := r.Weight.Cmp(other.Weight); c != 0 {
		return c < 0
	}
	if c := r.TotalIters.Cmp(other.TotalIters); c != 0 {
		return c < 0
	}
	return bytes.Compare(r.HeaderHash[:], other.HeaderHash[:]) < 0
}

// hashableFields returns the encoding of everything except HeaderHash itself,
// i.e. the bytes that HeaderHash is a digest of.
func (r *Record) hashableFields(buf *bytes.Buffer) {
	buf.Write(r.PrevHash[:])
	writeUint64(buf, r.Height)
	writeBigInt(buf, r.Weight)
	writeBigInt(buf, r.TotalIters)
	buf.WriteByte(r.SignagePointIndex)
	writeBigInt(buf, r.RequiredIters)
	buf.WriteByte(r.Deficit)
	writeBool(buf, r.Overflow)
	writeBool(buf, r.FirstInSubSlot)
	writeBool(buf, r.IsTransactionBlock)
	writeUint64(buf, r.SubSlotIters)
	if r.SubEpochSummaryIncluded != nil {
		buf.WriteByte(1)
		buf.Write(r.SubEpochSummaryIncluded[:])
	} else {
		buf.WriteByte(0)
	}
	writeHashes(buf, r.FinishedChallengeSlotHashes)
	writeHashes(buf, r.FinishedRewardSlotHashes)
	if r.LastWithdrawalIndex != nil {
		buf.WriteByte(1)
		writeUint64(buf, *r.LastWithdrawalIndex)
	} else {
		buf.WriteByte(0)
	}
	buf.Write(r.Coinbase[:])
	buf.Write(r.RewardInfusionNewChallenge[:])
}

// MarshalBinary deterministically encodes the Record, HeaderHash included, so
// it round-trips through UnmarshalBinary unchanged. The layout is a fixed
// big-endian encoding rather than a reflection-based codec so HeaderHash can
// be derived directly from hashableFields.
func (r *Record) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(r.HeaderHash[:])
	r.hashableFields(buf)
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a Record previously produced by MarshalBinary.
func (r *Record) UnmarshalBinary(data []byte) error {
	br := bytes.NewReader(data)
	if _, err := io.ReadFull(br, r.HeaderHash[:]); err != nil {
		return fmt.Errorf("blockrecord: reading header hash: %w", err)
	}
	if _, err := io.ReadFull(br, r.PrevHash[:]); err != nil {
		return fmt.Errorf("blockrecord: reading prev hash: %w", err)
	}
	var err error
	if r.Height, err = readUint64(br); err != nil {
		return err
	}
	if r.Weight, err = readBigInt(br); err != nil {
		return err
	}
	if r.TotalIters, err = readBigInt(br); err != nil {
		return err
	}
	if r.SignagePointIndex, err = readByte(br); err != nil {
		return err
	}
	if r.RequiredIters, err = readBigInt(br); err != nil {
		return err
	}
	if r.Deficit, err = readByte(br); err != nil {
		return err
	}
	if r.Overflow, err = readBool(br); err != nil {
		return err
	}
	if r.FirstInSubSlot, err = readBool(br); err != nil {
		return err
	}
	if r.IsTransactionBlock, err = readBool(br); err != nil {
		return err
	}
	if r.SubSlotIters, err = readUint64(br); err != nil {
		return err
	}
	hasSES, err := readByte(br)
	if err != nil {
		return err
	}
	if hasSES == 1 {
		var h SubEpochSummaryHash
		if _, err := io.ReadFull(br, h[:]); err != nil {
			return fmt.Errorf("blockrecord: reading sub epoch summary hash: %w", err)
		}
		r.SubEpochSummaryIncluded = &h
	} else {
		r.SubEpochSummaryIncluded = nil
	}
	if r.FinishedChallengeSlotHashes, err = readHashes(br); err != nil {
		return err
	}
	if r.FinishedRewardSlotHashes, err = readHashes(br); err != nil {
		return err
	}
	hasLWI, err := readByte(br)
	if err != nil {
		return err
	}
	if hasLWI == 1 {
		idx, err := readUint64(br)
		if err != nil {
			return err
		}
		r.LastWithdrawalIndex = &idx
	} else {
		r.LastWithdrawalIndex = nil
	}
	if _, err := io.ReadFull(br, r.Coinbase[:]); err != nil {
		return fmt.Errorf("blockrecord: reading coinbase: %w", err)
	}
	if _, err := io.ReadFull(br, r.RewardInfusionNewChallenge[:]); err != nil {
		return fmt.Errorf("blockrecord: reading reward infusion challenge: %w", err)
	}
	return nil
}

// ComputeHeaderHash returns the sha3-256 digest of the Record's deterministic
// encoding of everything except HeaderHash itself. Callers assign the result
// to HeaderHash once, at construction time; Records are never mutated after.
func ComputeHeaderHash(r *Record) ([32]byte, error) {
	buf := new(bytes.Buffer)
	r.hashableFields(buf)
	return sha3.Sum256(buf.Bytes()), nil
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeBool(buf *bytes.Buffer, v bool) {
	if v {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func writeBigInt(buf *bytes.Buffer, v *big.Int) {
	if v == nil {
		writeUint64(buf, 0)
		return
	}
	b := v.Bytes()
	writeUint64(buf, uint64(len(b)))
	buf.Write(b)
}

func writeHashes(buf *bytes.Buffer, hs [][32]byte) {
	writeUint64(buf, uint64(len(hs)))
	for _, h := range hs {
		buf.Write(h[:])
	}
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("blockrecord: reading uint64: %w", err)
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readByte(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("blockrecord: reading byte: %w", err)
	}
	return b[0], nil
}

func readBool(r io.Reader) (bool, error) {
	b, err := readByte(r)
	if err != nil {
		return false, err
	}
	return b == 1, nil
}

func readBigInt(r io.Reader) (*big.Int, error) {
	n, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, fmt.Errorf("blockrecord: reading big.Int body: %w", err)
		}
	}
	return new(big.Int).SetBytes(b), nil
}

func readHashes(r io.Reader) ([][32]byte, error) {
	n, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	hs := make([][32]byte, n)
	for i := range hs {
		if _, err := io.ReadFull(r, hs[i][:]); err != nil {
			return nil, fmt.Errorf("blockrecord: reading hash %d: %w", i, err)
		}
	}
	return hs, nil
}
