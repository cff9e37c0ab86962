// Package engineapi is a thin JSON-RPC client for the Engine API surface an
// execution client exposes: payload validation, fork-choice updates, and
// historical block lookups, with JWT bearer authentication on every call.
package engineapi

import (
	"math/big"

	"github.com/corpochain-network/beacon-core/consensus/types"
)

// RPC method names, exactly as specified by the Engine API.
const (
	NewPayloadMethod           = "engine_newPayloadV2"
	ForkchoiceUpdatedMethod    = "engine_forkchoiceUpdatedV2"
	GetPayloadMethod           = "engine_getPayloadV2"
	LatestExecutionBlockMethod = "eth_getBlockByNumber"
	ExecutionBlockByHashMethod = "eth_getBlockByHash"
)

// PayloadStatus mirrors the Engine API's status-string enum.
type PayloadStatus int

const (
	StatusUnknown PayloadStatus = iota
	StatusValid
	StatusInvalid
	StatusInvalidBlockHash
	StatusSyncing
	StatusAccepted
)

func (s PayloadStatus) String() string {
	switch s {
	case StatusValid:
		return "VALID"
	case StatusInvalid:
		return "INVALID"
	case StatusInvalidBlockHash:
		return "INVALID_BLOCK_HASH"
	case StatusSyncing:
		return "SYNCING"
	case StatusAccepted:
		return "ACCEPTED"
	default:
		return "UNKNOWN"
	}
}

// ParsePayloadStatus maps a raw status string onto a typed PayloadStatus;
// anything not in the known set decodes to StatusUnknown.
func ParsePayloadStatus(raw string) PayloadStatus {
	switch raw {
	case "VALID":
		return StatusValid
	case "INVALID":
		return StatusInvalid
	case "INVALID_BLOCK_HASH":
		return StatusInvalidBlockHash
	case "SYNCING":
		return StatusSyncing
	case "ACCEPTED":
		return StatusAccepted
	default:
		return StatusUnknown
	}
}

// PayloadStatusResponse is the result of engine_newPayloadVx and the
// payloadStatus field of engine_forkchoiceUpdatedVx.
type PayloadStatusResponse struct {
	Status          PayloadStatus
	LatestValidHash *[32]byte
	ValidationError *string
}

// jsonPayloadStatus is the wire shape decoded from the RPC response before
// its status string is mapped onto PayloadStatus.
type jsonPayloadStatus struct {
	Status          string  `json:"status"`
	LatestValidHash *string `json:"latestValidHash"`
	ValidationError *string `json:"validationError"`
}

// ForkchoiceState is the head/safe/finalized triple sent on every
// forkchoiceUpdated call.
type ForkchoiceState struct {
	HeadBlockHash      [32]byte
	SafeBlockHash      [32]byte
	FinalizedBlockHash [32]byte
}

// Withdrawal is one credit instruction carried in PayloadAttributes and
// materialized into the execution layer during a fork-choice update.
type Withdrawal struct {
	Index          uint64
	ValidatorIndex uint64
	Address        [20]byte
	AmountGwei     uint64
}

// PayloadAttributes requests building a new payload atop the forkchoice
// head.
type PayloadAttributes struct {
	Timestamp             uint64
	PrevRandao            [32]byte
	SuggestedFeeRecipient [20]byte
	Withdrawals           []Withdrawal
}

// ForkchoiceUpdatedResponse is the result of engine_forkchoiceUpdatedVx.
type ForkchoiceUpdatedResponse struct {
	PayloadStatus PayloadStatusResponse
	PayloadID     *[8]byte
}

// PayloadIDBytes is the wire representation of an 8-byte payload identifier,
// hex-encoded on the JSON boundary by its MarshalText method.
type PayloadIDBytes [8]byte

// MarshalText renders the payload ID as a 0x-prefixed hex string, the shape
// the Engine API's getPayload call expects for its single argument.
func (p PayloadIDBytes) MarshalText() ([]byte, error) {
	return []byte(hexEncode(p[:])), nil
}

// ExecutionBlock is the subset of an execution block's header the core reads
// back from eth_getBlockByNumber / eth_getBlockByHash.
type ExecutionBlock struct {
	Number     uint64
	Hash       [32]byte
	ParentHash [32]byte
	Timestamp  uint64
}

// payloadWire is the JSON representation of types.ExecutionPayload on the
// Engine API boundary; hex-string fields are converted to/from the core's
// fixed-size and big.Int representations in client.go.
type payloadWire struct {
	ParentHash    string   `json:"parentHash"`
	FeeRecipient  string   `json:"feeRecipient"`
	StateRoot     string   `json:"stateRoot"`
	ReceiptsRoot  string   `json:"receiptsRoot"`
	LogsBloom     string   `json:"logsBloom"`
	PrevRandao    string   `json:"prevRandao"`
	BlockNumber   string   `json:"blockNumber"`
	GasLimit      string   `json:"gasLimit"`
	GasUsed       string   `json:"gasUsed"`
	Timestamp     string   `json:"timestamp"`
	ExtraData     string   `json:"extraData"`
	BaseFeePerGas string   `json:"baseFeePerGas"`
	BlockHash     string   `json:"blockHash"`
	Transactions  []string `json:"transactions"`
}

func toPayloadWire(p *types.ExecutionPayload) *payloadWire {
	txs := make([]string, len(p.Transactions))
	for i, tx := range p.Transactions {
		txs[i] = hexEncode(tx)
	}
	baseFee := p.BaseFeePerGas
	if baseFee == nil {
		baseFee = big.NewInt(0)
	}
	return &payloadWire{
		ParentHash:    hexEncode(p.ParentHash[:]),
		FeeRecipient:  hexEncode(p.FeeRecipient[:]),
		StateRoot:     hexEncode(p.StateRoot[:]),
		ReceiptsRoot:  hexEncode(p.ReceiptsRoot[:]),
		LogsBloom:     hexEncode(p.LogsBloom),
		PrevRandao:    hexEncode(p.PrevRandao[:]),
		BlockNumber:   hexEncodeUint(p.BlockNumber),
		GasLimit:      hexEncodeUint(p.GasLimit),
		GasUsed:       hexEncodeUint(p.GasUsed),
		Timestamp:     hexEncodeUint(p.Timestamp),
		ExtraData:     hexEncode(p.ExtraData),
		BaseFeePerGas: hexEncodeBig(baseFee),
		BlockHash:     hexEncode(p.BlockHash[:]),
		Transactions:  txs,
	}
}
