// Package types defines the wire-level block shapes the consensus packages
// consume: FullBlock, UnfinishedBlock, HeaderBlock and their building blocks
// (finished sub-slots, signage/infusion VDF proofs, foliage).  These are pure
// data types; the cryptographic verification of their VDF/PoSpace contents is
// delegated to collaborator functions the validation package calls out to
// (VDF arithmetic, BLS verification and PoSpace quality computation are
// explicitly out of scope for this module, per the system's contract with
// its farmer/timelord collaborators).
package types

import (
	"bytes"
	"encoding/binary"
	"math/big"

	"golang.org/x/crypto/sha3"
)

// ClassgroupElement is an opaque VDF output/witness element. Its internal
// representation and the arithmetic over it belong to the VDF collaborator;
// the core only ever stores, hashes and compares these bytes.
type ClassgroupElement [DiscriminantBytes]byte

// DiscriminantBytes bounds the encoded width of a ClassgroupElement.
const DiscriminantBytes = 128

// VDFProof is a single verifiable-delay-function proof: an opaque witness the
// VDF collaborator can check against the VDFInfo (challenge, iteration count,
// output) it is claimed for.
type VDFProof struct {
	WitnessType          uint8
	Witness              []byte
	NormalizedToIdentity bool
}

// VDFInfo names the VDF instance (challenge + iteration count) a VDFProof is
// claimed against, and the resulting output.
type VDFInfo struct {
	Challenge          [32]byte
	NumberOfIterations uint64
	Output             ClassgroupElement
}

// ProofOfSpace is the opaque farmer-submitted proof; quality-string
// extraction and the PoSpace-filter check belong to the PoSpace collaborator.
type ProofOfSpace struct {
	Challenge     [32]byte
	PoolPublicKey []byte
	PlotPublicKey []byte
	Size          uint8
	Proof         []byte
}

// SignagePoint bundles the challenge-chain and reward-chain VDF info/proof
// pairs produced at one of NumSPsSubSlot signage points within a sub-slot.
type SignagePoint struct {
	CCVDF   *VDFInfo
	CCProof *VDFProof
	RCVDF   *VDFInfo
	RCProof *VDFProof
}

// InfusionPoint bundles the challenge-chain, reward-chain, and optional
// infused-challenge-chain VDF info/proof pairs at a block's infusion point.
type InfusionPoint struct {
	CCVDF    *VDFInfo
	CCProof  *VDFProof
	RCVDF    *VDFInfo
	RCProof  *VDFProof
	ICCVDF   *VDFInfo
	ICCProof *VDFProof
}

// ChallengeChainSubSlot carries the end-of-sub-slot challenge-chain VDF
// output, plus the optional links a sub-epoch/epoch boundary requires.
type ChallengeChainSubSlot struct {
	ChallengeChainEndOfSlotVDF       *VDFInfo
	InfusedChallengeChainSubSlotHash *[32]byte
	SubEpochSummaryHash              *[32]byte
	NewSubSlotIters                  *uint64
	NewDifficulty                    *uint64
}

// RewardChainSubSlot carries the end-of-sub-slot reward-chain VDF output and
// the deficit/challenge-slot linkage needed to re-derive the next challenge.
type RewardChainSubSlot struct {
	EndOfSlotVDF                     *VDFInfo
	ChallengeChainSubSlotHash        [32]byte
	InfusedChallengeChainSubSlotHash *[32]byte
	Deficit                          uint8
}

// InfusedChallengeChainSubSlot carries the optional infused-challenge-chain
// end-of-slot VDF output, present iff deficit < MinBlocksPerChallengeBlock.
type InfusedChallengeChainSubSlot struct {
	InfusedChallengeChainEndOfSlotVDF *VDFInfo
}

// EndOfSubSlotBundle is one finished sub-slot: the three (possibly partial)
// sub-slot VDF outputs plus their proofs.
type EndOfSubSlotBundle struct {
	ChallengeChain        *ChallengeChainSubSlot
	InfusedChallengeChain *InfusedChallengeChainSubSlot
	RewardChain           *RewardChainSubSlot
	Proofs                []*VDFProof
}

// FoliageBlockData carries the block's non-transaction identity fields.
type FoliageBlockData struct {
	UnfinishedRewardBlockHash [32]byte
	PoolTarget                []byte
	FarmerRewardPuzzleHash    [32]byte
	ExtensionData             [32]byte
}

// Foliage is the per-block identity wrapper: linkage to the previous block
// plus the signed block-data commitment.
type Foliage struct {
	PrevBlockHash                    [32]byte
	RewardBlockHash                  [32]byte
	FoliageBlockData                 *FoliageBlockData
	FoliageBlockDataSignature        []byte
	FoliageTransactionBlockHash      *[32]byte
	FoliageTransactionBlockSignature []byte
}

// FoliageTransactionBlock is present iff the block is a transaction block; it
// is the root under which the execution payload and withdrawal metadata are
// committed.
type FoliageTransactionBlock struct {
	PrevTransactionBlockHash [32]byte
	Timestamp                int64
	ExecutionPayloadHash     [32]byte
}

// ExecutionPayload is the opaque block produced and validated by the
// external execution engine. The core never interprets its contents beyond
// the fields needed to drive the Engine API and withdrawal derivation.
type ExecutionPayload struct {
	ParentHash    [32]byte
	FeeRecipient  [20]byte
	StateRoot     [32]byte
	ReceiptsRoot  [32]byte
	LogsBloom     []byte
	PrevRandao    [32]byte
	BlockNumber   uint64
	GasLimit      uint64
	GasUsed       uint64
	Timestamp     uint64
	ExtraData     []byte
	BaseFeePerGas *big.Int
	BlockHash     [32]byte
	Transactions  [][]byte
}

// RewardChainBlock is the reward-chain "trunk" of an unfinished block: the
// signage-point and infusion-point reward-chain VDF outputs and the PoSpace
// proof that must satisfy RequiredIters for this challenge.
type RewardChainBlock struct {
	Weight                     *big.Int
	Height                     uint64
	TotalIters                 *big.Int
	SignagePointIndex          uint8
	POSSignagePointCCVDF       *VDFInfo
	POSSignagePointCCSignature []byte
	ProofOfSpace               *ProofOfSpace
	ChallengeChainIPVDF        *VDFInfo
	RewardChainSPVDF           *VDFInfo
	RewardChainSPSignature     []byte
	RewardChainIPVDF           *VDFInfo
	InfusedChallengeChainIPVDF *VDFInfo
	IsTransactionBlock         bool
}

// UnfinishedHeaderBlock is a FullBlock stripped of its infusion-point VDF
// proofs; it is what header validation runs against before a block is
// infused into the chain.
type UnfinishedHeaderBlock struct {
	FinishedSubSlots        []*EndOfSubSlotBundle
	RewardChainBlock        *RewardChainBlock
	ChallengeChainSPProof   *VDFProof
	RewardChainSPProof      *VDFProof
	Foliage                 *Foliage
	FoliageTransactionBlock *FoliageTransactionBlock
}

// UnfinishedBlock is an UnfinishedHeaderBlock plus the (unvalidated)
// execution payload a farmer proposed.
type UnfinishedBlock struct {
	UnfinishedHeaderBlock
	ExecutionPayload *ExecutionPayload
}

// AsHeaderBlock builds a HeaderBlock view of u with nil infusion-point VDF
// proofs, the shape ValidateUnfinishedBlock runs header validation against
// in UnfinishedMode.
func (u *UnfinishedHeaderBlock) AsHeaderBlock() *HeaderBlock {
	return &HeaderBlock{
		FinishedSubSlots:        u.FinishedSubSlots,
		RewardChainBlock:        u.RewardChainBlock,
		ChallengeChainSPProof:   u.ChallengeChainSPProof,
		RewardChainSPProof:      u.RewardChainSPProof,
		Foliage:                 u.Foliage,
		FoliageTransactionBlock: u.FoliageTransactionBlock,
	}
}

// HeaderBlock is a FullBlock stripped of its execution payload; it carries
// everything header validation needs.
type HeaderBlock struct {
	FinishedSubSlots             []*EndOfSubSlotBundle
	RewardChainBlock             *RewardChainBlock
	ChallengeChainSPProof        *VDFProof
	ChallengeChainIPProof        *VDFProof
	RewardChainSPProof           *VDFProof
	RewardChainIPProof           *VDFProof
	InfusedChallengeChainIPProof *VDFProof
	Foliage                      *Foliage
	FoliageTransactionBlock      *FoliageTransactionBlock
}

// FullBlock is the complete, infused representation of one block: finished
// sub-slot bundles, the reward-chain trunk, all signage/infusion VDF proofs,
// foliage, and (iff this is a transaction block) the execution payload.
type FullBlock struct {
	FinishedSubSlots             []*EndOfSubSlotBundle
	RewardChainBlock             *RewardChainBlock
	ChallengeChainSPProof        *VDFProof
	ChallengeChainIPProof        *VDFProof
	RewardChainSPProof           *VDFProof
	RewardChainIPProof           *VDFProof
	InfusedChallengeChainIPProof *VDFProof
	Foliage                      *Foliage
	FoliageTransactionBlock      *FoliageTransactionBlock
	ExecutionPayload             *ExecutionPayload
}

// Header returns the HeaderBlock view of a FullBlock (everything except the
// execution payload), the shape the header validator consumes.
func (b *FullBlock) Header() *HeaderBlock {
	return &HeaderBlock{
		FinishedSubSlots:             b.FinishedSubSlots,
		RewardChainBlock:             b.RewardChainBlock,
		ChallengeChainSPProof:        b.ChallengeChainSPProof,
		ChallengeChainIPProof:        b.ChallengeChainIPProof,
		RewardChainSPProof:           b.RewardChainSPProof,
		RewardChainIPProof:           b.RewardChainIPProof,
		InfusedChallengeChainIPProof: b.InfusedChallengeChainIPProof,
		Foliage:                      b.Foliage,
		FoliageTransactionBlock:      b.FoliageTransactionBlock,
	}
}

// SubEpochSummary is the hash-chain anchor inserted at sub-epoch boundaries
// to anchor weight proofs.
type SubEpochSummary struct {
	PrevSubEpochSummaryHash [32]byte
	RewardChainHash         [32]byte
	NumBlocksOverflow       uint8
	NewSubSlotIters         *uint64
	NewDifficulty           *uint64
}

// Hash returns the deterministic digest of a SubEpochSummary, used both as
// its own chain-linkage key and as the value stored in
// Record.SubEpochSummaryIncluded.
func (s *SubEpochSummary) Hash() [32]byte {
	buf := new(bytes.Buffer)
	buf.Write(s.PrevSubEpochSummaryHash[:])
	buf.Write(s.RewardChainHash[:])
	buf.WriteByte(s.NumBlocksOverflow)
	writeOptionalUint64(buf, s.NewSubSlotIters)
	writeOptionalUint64(buf, s.NewDifficulty)
	return sha3.Sum256(buf.Bytes())
}

func writeOptionalUint64(buf *bytes.Buffer, v *uint64) {
	if v == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], *v)
	buf.Write(b[:])
}
