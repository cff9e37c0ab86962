package types

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"
)

// encoder/decoder implement the same "fixed field order, explicit
// length-prefixed writes" codec style consensus/blockrecord uses, extended
// here with presence bytes for the many optional pointer fields a FullBlock
// carries. There is no reflection-based (de)serialization anywhere in this
// module; every wire shape gets its own hand-written codec.
type encoder struct {
	buf *bytes.Buffer
}

func newEncoder() *encoder { return &encoder{buf: new(bytes.Buffer)} }

func (e *encoder) bytes() []byte { return e.buf.Bytes() }

func (e *encoder) writeU64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) writeI64(v int64) { e.writeU64(uint64(v)) }

func (e *encoder) writeU8(v uint8) { e.buf.WriteByte(v) }

func (e *encoder) writeBool(v bool) {
	if v {
		e.buf.WriteByte(1)
	} else {
		e.buf.WriteByte(0)
	}
}

func (e *encoder) writeFixed(b []byte) { e.buf.Write(b) }

func (e *encoder) writeBytes(b []byte) {
	e.writeU64(uint64(len(b)))
	e.buf.Write(b)
}

func (e *encoder) writePresence(present bool) { e.writeBool(present) }

func (e *encoder) writeBigInt(v *big.Int) {
	if v == nil {
		e.writeBytes(nil)
		return
	}
	e.writeBytes(v.Bytes())
}

type decoder struct {
	r io.Reader
}

func newDecoder(data []byte) *decoder { return &decoder{r: bytes.NewReader(data)} }

func (d *decoder) readU64() (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return 0, fmt.Errorf("types: reading uint64: %w", err)
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func (d *decoder) readI64() (int64, error) {
	v, err := d.readU64()
	return int64(v), err
}

func (d *decoder) readU8() (uint8, error) {
	var b [1]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return 0, fmt.Errorf("types: reading uint8: %w", err)
	}
	return b[0], nil
}

func (d *decoder) readBool() (bool, error) {
	v, err := d.readU8()
	return v == 1, err
}

func (d *decoder) readFixed(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(d.r, b); err != nil {
		return nil, fmt.Errorf("types: reading %d fixed bytes: %w", n, err)
	}
	return b, nil
}

func (d *decoder) readBytes() ([]byte, error) {
	n, err := d.readU64()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return d.readFixed(int(n))
}

func (d *decoder) readPresence() (bool, error) { return d.readBool() }

func (d *decoder) readBigInt() (*big.Int, error) {
	b, err := d.readBytes()
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}

func (e *encoder) writeVDFProof(p *VDFProof) {
	if p == nil {
		e.writePresence(false)
		return
	}
	e.writePresence(true)
	e.writeU8(p.WitnessType)
	e.writeBytes(p.Witness)
	e.writeBool(p.NormalizedToIdentity)
}

func (d *decoder) readVDFProof() (*VDFProof, error) {
	present, err := d.readPresence()
	if err != nil || !present {
		return nil, err
	}
	p := &VDFProof{}
	if p.WitnessType, err = d.readU8(); err != nil {
		return nil, err
	}
	if p.Witness, err = d.readBytes(); err != nil {
		return nil, err
	}
	if p.NormalizedToIdentity, err = d.readBool(); err != nil {
		return nil, err
	}
	return p, nil
}

func (e *encoder) writeVDFInfo(v *VDFInfo) {
	if v == nil {
		e.writePresence(false)
		return
	}
	e.writePresence(true)
	e.writeFixed(v.Challenge[:])
	e.writeU64(v.NumberOfIterations)
	e.writeFixed(v.Output[:])
}

func (d *decoder) readVDFInfo() (*VDFInfo, error) {
	present, err := d.readPresence()
	if err != nil || !present {
		return nil, err
	}
	v := &VDFInfo{}
	ch, err := d.readFixed(32)
	if err != nil {
		return nil, err
	}
	copy(v.Challenge[:], ch)
	if v.NumberOfIterations, err = d.readU64(); err != nil {
		return nil, err
	}
	out, err := d.readFixed(DiscriminantBytes)
	if err != nil {
		return nil, err
	}
	copy(v.Output[:], out)
	return v, nil
}

func (e *encoder) writeProofOfSpace(p *ProofOfSpace) {
	if p == nil {
		e.writePresence(false)
		return
	}
	e.writePresence(true)
	e.writeFixed(p.Challenge[:])
	e.writeBytes(p.PoolPublicKey)
	e.writeBytes(p.PlotPublicKey)
	e.writeU8(p.Size)
	e.writeBytes(p.Proof)
}

func (d *decoder) readProofOfSpace() (*ProofOfSpace, error) {
	present, err := d.readPresence()
	if err != nil || !present {
		return nil, err
	}
	p := &ProofOfSpace{}
	ch, err := d.readFixed(32)
	if err != nil {
		return nil, err
	}
	copy(p.Challenge[:], ch)
	if p.PoolPublicKey, err = d.readBytes(); err != nil {
		return nil, err
	}
	if p.PlotPublicKey, err = d.readBytes(); err != nil {
		return nil, err
	}
	if p.Size, err = d.readU8(); err != nil {
		return nil, err
	}
	if p.Proof, err = d.readBytes(); err != nil {
		return nil, err
	}
	return p, nil
}

func (e *encoder) writeOptionalHash(h *[32]byte) {
	if h == nil {
		e.writePresence(false)
		return
	}
	e.writePresence(true)
	e.writeFixed(h[:])
}

func (d *decoder) readOptionalHash() (*[32]byte, error) {
	present, err := d.readPresence()
	if err != nil || !present {
		return nil, err
	}
	var h [32]byte
	b, err := d.readFixed(32)
	if err != nil {
		return nil, err
	}
	copy(h[:], b)
	return &h, nil
}

func (e *encoder) writeOptionalU64(v *uint64) {
	if v == nil {
		e.writePresence(false)
		return
	}
	e.writePresence(true)
	e.writeU64(*v)
}

func (d *decoder) readOptionalU64() (*uint64, error) {
	present, err := d.readPresence()
	if err != nil || !present {
		return nil, err
	}
	v, err := d.readU64()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (e *encoder) writeChallengeChainSubSlot(c *ChallengeChainSubSlot) {
	if c == nil {
		e.writePresence(false)
		return
	}
	e.writePresence(true)
	e.writeVDFInfo(c.ChallengeChainEndOfSlotVDF)
	e.writeOptionalHash(c.InfusedChallengeChainSubSlotHash)
	e.writeOptionalHash(c.SubEpochSummaryHash)
	e.writeOptionalU64(c.NewSubSlotIters)
	e.writeOptionalU64(c.NewDifficulty)
}

func (d *decoder) readChallengeChainSubSlot() (*ChallengeChainSubSlot, error) {
	present, err := d.readPresence()
	if err != nil || !present {
		return nil, err
	}
	c := &ChallengeChainSubSlot{}
	if c.ChallengeChainEndOfSlotVDF, err = d.readVDFInfo(); err != nil {
		return nil, err
	}
	if c.InfusedChallengeChainSubSlotHash, err = d.readOptionalHash(); err != nil {
		return nil, err
	}
	if c.SubEpochSummaryHash, err = d.readOptionalHash(); err != nil {
		return nil, err
	}
	if c.NewSubSlotIters, err = d.readOptionalU64(); err != nil {
		return nil, err
	}
	if c.NewDifficulty, err = d.readOptionalU64(); err != nil {
		return nil, err
	}
	return c, nil
}

func (e *encoder) writeRewardChainSubSlot(r *RewardChainSubSlot) {
	if r == nil {
		e.writePresence(false)
		return
	}
	e.writePresence(true)
	e.writeVDFInfo(r.EndOfSlotVDF)
	e.writeFixed(r.ChallengeChainSubSlotHash[:])
	e.writeOptionalHash(r.InfusedChallengeChainSubSlotHash)
	e.writeU8(r.Deficit)
}

func (d *decoder) readRewardChainSubSlot() (*RewardChainSubSlot, error) {
	present, err := d.readPresence()
	if err != nil || !present {
		return nil, err
	}
	r := &RewardChainSubSlot{}
	if r.EndOfSlotVDF, err = d.readVDFInfo(); err != nil {
		return nil, err
	}
	b, err := d.readFixed(32)
	if err != nil {
		return nil, err
	}
	copy(r.ChallengeChainSubSlotHash[:], b)
	if r.InfusedChallengeChainSubSlotHash, err = d.readOptionalHash(); err != nil {
		return nil, err
	}
	if r.Deficit, err = d.readU8(); err != nil {
		return nil, err
	}
	return r, nil
}

func (e *encoder) writeInfusedChallengeChainSubSlot(i *InfusedChallengeChainSubSlot) {
	if i == nil {
		e.writePresence(false)
		return
	}
	e.writePresence(true)
	e.writeVDFInfo(i.InfusedChallengeChainEndOfSlotVDF)
}

func (d *decoder) readInfusedChallengeChainSubSlot() (*InfusedChallengeChainSubSlot, error) {
	present, err := d.readPresence()
	if err != nil || !present {
		return nil, err
	}
	i := &InfusedChallengeChainSubSlot{}
	if i.InfusedChallengeChainEndOfSlotVDF, err = d.readVDFInfo(); err != nil {
		return nil, err
	}
	return i, nil
}

func (e *encoder) writeEndOfSubSlotBundle(b *EndOfSubSlotBundle) {
	if b == nil {
		e.writePresence(false)
		return
	}
	e.writePresence(true)
	e.writeChallengeChainSubSlot(b.ChallengeChain)
	e.writeInfusedChallengeChainSubSlot(b.InfusedChallengeChain)
	e.writeRewardChainSubSlot(b.RewardChain)
	e.writeU64(uint64(len(b.Proofs)))
	for _, p := range b.Proofs {
		e.writeVDFProof(p)
	}
}

func (d *decoder) readEndOfSubSlotBundle() (*EndOfSubSlotBundle, error) {
	present, err := d.readPresence()
	if err != nil || !present {
		return nil, err
	}
	b := &EndOfSubSlotBundle{}
	if b.ChallengeChain, err = d.readChallengeChainSubSlot(); err != nil {
		return nil, err
	}
	if b.InfusedChallengeChain, err = d.readInfusedChallengeChainSubSlot(); err != nil {
		return nil, err
	}
	if b.RewardChain, err = d.readRewardChainSubSlot(); err != nil {
		return nil, err
	}
	n, err := d.readU64()
	if err != nil {
		return nil, err
	}
	b.Proofs = make([]*VDFProof, n)
	for i := range b.Proofs {
		if b.Proofs[i], err = d.readVDFProof(); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (e *encoder) writeFoliageBlockData(f *FoliageBlockData) {
	if f == nil {
		e.writePresence(false)
		return
	}
	e.writePresence(true)
	e.writeFixed(f.UnfinishedRewardBlockHash[:])
	e.writeBytes(f.PoolTarget)
	e.writeFixed(f.FarmerRewardPuzzleHash[:])
	e.writeFixed(f.ExtensionData[:])
}

func (d *decoder) readFoliageBlockData() (*FoliageBlockData, error) {
	present, err := d.readPresence()
	if err != nil || !present {
		return nil, err
	}
	f := &FoliageBlockData{}
	b, err := d.readFixed(32)
	if err != nil {
		return nil, err
	}
	copy(f.UnfinishedRewardBlockHash[:], b)
	if f.PoolTarget, err = d.readBytes(); err != nil {
		return nil, err
	}
	if b, err = d.readFixed(32); err != nil {
		return nil, err
	}
	copy(f.FarmerRewardPuzzleHash[:], b)
	if b, err = d.readFixed(32); err != nil {
		return nil, err
	}
	copy(f.ExtensionData[:], b)
	return f, nil
}

func (e *encoder) writeFoliage(f *Foliage) {
	if f == nil {
		e.writePresence(false)
		return
	}
	e.writePresence(true)
	e.writeFixed(f.PrevBlockHash[:])
	e.writeFixed(f.RewardBlockHash[:])
	e.writeFoliageBlockData(f.FoliageBlockData)
	e.writeBytes(f.FoliageBlockDataSignature)
	e.writeOptionalHash(f.FoliageTransactionBlockHash)
	e.writeBytes(f.FoliageTransactionBlockSignature)
}

func (d *decoder) readFoliage() (*Foliage, error) {
	present, err := d.readPresence()
	if err != nil || !present {
		return nil, err
	}
	f := &Foliage{}
	b, err := d.readFixed(32)
	if err != nil {
		return nil, err
	}
	copy(f.PrevBlockHash[:], b)
	if b, err = d.readFixed(32); err != nil {
		return nil, err
	}
	copy(f.RewardBlockHash[:], b)
	if f.FoliageBlockData, err = d.readFoliageBlockData(); err != nil {
		return nil, err
	}
	if f.FoliageBlockDataSignature, err = d.readBytes(); err != nil {
		return nil, err
	}
	if f.FoliageTransactionBlockHash, err = d.readOptionalHash(); err != nil {
		return nil, err
	}
	if f.FoliageTransactionBlockSignature, err = d.readBytes(); err != nil {
		return nil, err
	}
	return f, nil
}

func (e *encoder) writeFoliageTransactionBlock(f *FoliageTransactionBlock) {
	if f == nil {
		e.writePresence(false)
		return
	}
	e.writePresence(true)
	e.writeFixed(f.PrevTransactionBlockHash[:])
	e.writeI64(f.Timestamp)
	e.writeFixed(f.ExecutionPayloadHash[:])
}

func (d *decoder) readFoliageTransactionBlock() (*FoliageTransactionBlock, error) {
	present, err := d.readPresence()
	if err != nil || !present {
		return nil, err
	}
	f := &FoliageTransactionBlock{}
	b, err := d.readFixed(32)
	if err != nil {
		return nil, err
	}
	copy(f.PrevTransactionBlockHash[:], b)
	if f.Timestamp, err = d.readI64(); err != nil {
		return nil, err
	}
	if b, err = d.readFixed(32); err != nil {
		return nil, err
	}
	copy(f.ExecutionPayloadHash[:], b)
	return f, nil
}

func (e *encoder) writeExecutionPayload(p *ExecutionPayload) {
	if p == nil {
		e.writePresence(false)
		return
	}
	e.writePresence(true)
	e.writeFixed(p.ParentHash[:])
	e.writeFixed(p.FeeRecipient[:])
	e.writeFixed(p.StateRoot[:])
	e.writeFixed(p.ReceiptsRoot[:])
	e.writeBytes(p.LogsBloom)
	e.writeFixed(p.PrevRandao[:])
	e.writeU64(p.BlockNumber)
	e.writeU64(p.GasLimit)
	e.writeU64(p.GasUsed)
	e.writeU64(p.Timestamp)
	e.writeBytes(p.ExtraData)
	e.writeBigInt(p.BaseFeePerGas)
	e.writeFixed(p.BlockHash[:])
	e.writeU64(uint64(len(p.Transactions)))
	for _, tx := range p.Transactions {
		e.writeBytes(tx)
	}
}

func (d *decoder) readExecutionPayload() (*ExecutionPayload, error) {
	present, err := d.readPresence()
	if err != nil || !present {
		return nil, err
	}
	p := &ExecutionPayload{}
	b, err := d.readFixed(32)
	if err != nil {
		return nil, err
	}
	copy(p.ParentHash[:], b)
	if b, err = d.readFixed(20); err != nil {
		return nil, err
	}
	copy(p.FeeRecipient[:], b)
	if b, err = d.readFixed(32); err != nil {
		return nil, err
	}
	copy(p.StateRoot[:], b)
	if b, err = d.readFixed(32); err != nil {
		return nil, err
	}
	copy(p.ReceiptsRoot[:], b)
	if p.LogsBloom, err = d.readBytes(); err != nil {
		return nil, err
	}
	if b, err = d.readFixed(32); err != nil {
		return nil, err
	}
	copy(p.PrevRandao[:], b)
	if p.BlockNumber, err = d.readU64(); err != nil {
		return nil, err
	}
	if p.GasLimit, err = d.readU64(); err != nil {
		return nil, err
	}
	if p.GasUsed, err = d.readU64(); err != nil {
		return nil, err
	}
	if p.Timestamp, err = d.readU64(); err != nil {
		return nil, err
	}
	if p.ExtraData, err = d.readBytes(); err != nil {
		return nil, err
	}
	if p.BaseFeePerGas, err = d.readBigInt(); err != nil {
		return nil, err
	}
	if b, err = d.readFixed(32); err != nil {
		return nil, err
	}
	copy(p.BlockHash[:], b)
	n, err := d.readU64()
	if err != nil {
		return nil, err
	}
	p.Transactions = make([][]byte, n)
	for i := range p.Transactions {
		if p.Transactions[i], err = d.readBytes(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (e *encoder) writeRewardChainBlock(r *RewardChainBlock) {
	if r == nil {
		e.writePresence(false)
		return
	}
	e.writePresence(true)
	e.writeBigInt(r.Weight)
	e.writeU64(r.Height)
	e.writeBigInt(r.TotalIters)
	e.writeU8(r.SignagePointIndex)
	e.writeVDFInfo(r.POSSignagePointCCVDF)
	e.writeBytes(r.POSSignagePointCCSignature)
	e.writeProofOfSpace(r.ProofOfSpace)
	e.writeVDFInfo(r.ChallengeChainIPVDF)
	e.writeVDFInfo(r.RewardChainSPVDF)
	e.writeBytes(r.RewardChainSPSignature)
	e.writeVDFInfo(r.RewardChainIPVDF)
	e.writeVDFInfo(r.InfusedChallengeChainIPVDF)
	e.writeBool(r.IsTransactionBlock)
}

func (d *decoder) readRewardChainBlock() (*RewardChainBlock, error) {
	present, err := d.readPresence()
	if err != nil || !present {
		return nil, err
	}
	r := &RewardChainBlock{}
	if r.Weight, err = d.readBigInt(); err != nil {
		return nil, err
	}
	if r.Height, err = d.readU64(); err != nil {
		return nil, err
	}
	if r.TotalIters, err = d.readBigInt(); err != nil {
		return nil, err
	}
	if r.SignagePointIndex, err = d.readU8(); err != nil {
		return nil, err
	}
	if r.POSSignagePointCCVDF, err = d.readVDFInfo(); err != nil {
		return nil, err
	}
	if r.POSSignagePointCCSignature, err = d.readBytes(); err != nil {
		return nil, err
	}
	if r.ProofOfSpace, err = d.readProofOfSpace(); err != nil {
		return nil, err
	}
	if r.ChallengeChainIPVDF, err = d.readVDFInfo(); err != nil {
		return nil, err
	}
	if r.RewardChainSPVDF, err = d.readVDFInfo(); err != nil {
		return nil, err
	}
	if r.RewardChainSPSignature, err = d.readBytes(); err != nil {
		return nil, err
	}
	if r.RewardChainIPVDF, err = d.readVDFInfo(); err != nil {
		return nil, err
	}
	if r.InfusedChallengeChainIPVDF, err = d.readVDFInfo(); err != nil {
		return nil, err
	}
	if r.IsTransactionBlock, err = d.readBool(); err != nil {
		return nil, err
	}
	return r, nil
}

// MarshalBinary encodes a FullBlock deterministically; used by the Block
// Store to persist blobs (ahead of snappy compression) and by any transport
// that needs a byte-stable block representation.
func (b *FullBlock) MarshalBinary() ([]byte, error) {
	e := newEncoder()
	e.writeU64(uint64(len(b.FinishedSubSlots)))
	for _, ss := range b.FinishedSubSlots {
		e.writeEndOfSubSlotBundle(ss)
	}
	e.writeRewardChainBlock(b.RewardChainBlock)
	e.writeVDFProof(b.ChallengeChainSPProof)
	e.writeVDFProof(b.ChallengeChainIPProof)
	e.writeVDFProof(b.RewardChainSPProof)
	e.writeVDFProof(b.RewardChainIPProof)
	e.writeVDFProof(b.InfusedChallengeChainIPProof)
	e.writeFoliage(b.Foliage)
	e.writeFoliageTransactionBlock(b.FoliageTransactionBlock)
	e.writeExecutionPayload(b.ExecutionPayload)
	return e.bytes(), nil
}

// UnmarshalBinary decodes a FullBlock previously produced by MarshalBinary.
func (b *FullBlock) UnmarshalBinary(data []byte) error {
	d := newDecoder(data)
	n, err := d.readU64()
	if err != nil {
		return err
	}
	b.FinishedSubSlots = make([]*EndOfSubSlotBundle, n)
	for i := range b.FinishedSubSlots {
		if b.FinishedSubSlots[i], err = d.readEndOfSubSlotBundle(); err != nil {
			return err
		}
	}
	if b.RewardChainBlock, err = d.readRewardChainBlock(); err != nil {
		return err
	}
	if b.ChallengeChainSPProof, err = d.readVDFProof(); err != nil {
		return err
	}
	if b.ChallengeChainIPProof, err = d.readVDFProof(); err != nil {
		return err
	}
	if b.RewardChainSPProof, err = d.readVDFProof(); err != nil {
		return err
	}
	if b.RewardChainIPProof, err = d.readVDFProof(); err != nil {
		return err
	}
	if b.InfusedChallengeChainIPProof, err = d.readVDFProof(); err != nil {
		return err
	}
	if b.Foliage, err = d.readFoliage(); err != nil {
		return err
	}
	if b.FoliageTransactionBlock, err = d.readFoliageTransactionBlock(); err != nil {
		return err
	}
	if b.ExecutionPayload, err = d.readExecutionPayload(); err != nil {
		return err
	}
	return nil
}
