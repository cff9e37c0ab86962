package engineapi

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/corpochain-network/beacon-core/consensus/types"
)

var log = logrus.WithField("prefix", "engineapi")

// Client is a thin Engine API JSON-RPC client: a wrapped *rpc.Client with a
// JWT secret re-signed into a fresh bearer token ahead of every call, as the
// Engine API authentication scheme requires.
type Client struct {
	rpc       *rpc.Client
	jwtSecret []byte
}

// DialHTTP connects to an execution client's Engine API endpoint over HTTP
// and authenticates every call with a bearer token derived from jwtSecret.
func DialHTTP(ctx context.Context, url string, jwtSecret []byte) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, errors.Wrap(err, "engineapi: dialing execution client over HTTP")
	}
	return &Client{rpc: rpcClient, jwtSecret: jwtSecret}, nil
}

// DialIPC connects over a local IPC socket. No JWT auth is applied on IPC
// transports, matching the Engine API's trusted-local-socket exemption.
func DialIPC(ctx context.Context, path string) (*Client, error) {
	rpcClient, err := rpc.DialIPC(ctx, path)
	if err != nil {
		return nil, errors.Wrap(err, "engineapi: dialing execution client over IPC")
	}
	return &Client{rpc: rpcClient}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.rpc.Close()
}

func (c *Client) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	if len(c.jwtSecret) > 0 {
		token, err := mintBearerToken(c.jwtSecret)
		if err != nil {
			return err
		}
		c.rpc.SetHeader("Authorization", "Bearer "+token)
	}
	if err := c.rpc.CallContext(ctx, result, method, args...); err != nil {
		return errors.Wrapf(err, "engineapi: calling %s", method)
	}
	return nil
}

// NewPayload submits an execution payload for validation.
func (c *Client) NewPayload(ctx context.Context, payload *types.ExecutionPayload) (*PayloadStatusResponse, error) {
	var raw jsonPayloadStatus
	if err := c.call(ctx, &raw, NewPayloadMethod, toPayloadWire(payload)); err != nil {
		return nil, err
	}
	return decodePayloadStatus(raw)
}

// ForkchoiceUpdated notifies the execution client of a new canonical head,
// optionally (when attrs is non-nil) requesting it build a new payload atop
// it, carrying the withdrawals due at that head.
func (c *Client) ForkchoiceUpdated(ctx context.Context, state *ForkchoiceState, attrs *PayloadAttributes) (*ForkchoiceUpdatedResponse, error) {
	var raw struct {
		PayloadStatus jsonPayloadStatus `json:"payloadStatus"`
		PayloadID     *string           `json:"payloadId"`
	}
	var attrsWire interface{}
	if attrs != nil {
		attrsWire = toPayloadAttributesWire(attrs)
	}
	if err := c.call(ctx, &raw, ForkchoiceUpdatedMethod, forkchoiceStateWire(state), attrsWire); err != nil {
		return nil, err
	}
	status, err := decodePayloadStatus(raw.PayloadStatus)
	if err != nil {
		return nil, err
	}
	out := &ForkchoiceUpdatedResponse{PayloadStatus: *status}
	if raw.PayloadID != nil {
		var id [8]byte
		if err := hexDecodeFixed(*raw.PayloadID, id[:]); err != nil {
			return nil, errors.Wrap(err, "engineapi: decoding payloadId")
		}
		out.PayloadID = &id
	}
	return out, nil
}

// GetPayload retrieves a previously requested payload by its build ID.
func (c *Client) GetPayload(ctx context.Context, id [8]byte) (*types.ExecutionPayload, error) {
	var raw payloadWire
	if err := c.call(ctx, &raw, GetPayloadMethod, PayloadIDBytes(id)); err != nil {
		return nil, err
	}
	return fromPayloadWire(&raw)
}

// LatestExecutionBlock polls the execution client for its current head
// block, used on startup to learn the engine's latest known hash.
func (c *Client) LatestExecutionBlock(ctx context.Context) (*ExecutionBlock, error) {
	var raw executionBlockWire
	if err := c.call(ctx, &raw, LatestExecutionBlockMethod, "latest", false); err != nil {
		return nil, err
	}
	return decodeExecutionBlock(&raw)
}

// ExecutionBlockByHash looks up a historical execution block by hash.
func (c *Client) ExecutionBlockByHash(ctx context.Context, hash [32]byte) (*ExecutionBlock, error) {
	var raw executionBlockWire
	if err := c.call(ctx, &raw, ExecutionBlockByHashMethod, hexEncode(hash[:]), false); err != nil {
		return nil, err
	}
	return decodeExecutionBlock(&raw)
}

type executionBlockWire struct {
	Number     string `json:"number"`
	Hash       string `json:"hash"`
	ParentHash string `json:"parentHash"`
	Timestamp  string `json:"timestamp"`
}

func decodeExecutionBlock(raw *executionBlockWire) (*ExecutionBlock, error) {
	number, err := hexDecodeUint(raw.Number)
	if err != nil {
		return nil, errors.Wrap(err, "engineapi: decoding block number")
	}
	timestamp, err := hexDecodeUint(raw.Timestamp)
	if err != nil {
		return nil, errors.Wrap(err, "engineapi: decoding block timestamp")
	}
	out := &ExecutionBlock{Number: number, Timestamp: timestamp}
	if err := hexDecodeFixed(raw.Hash, out.Hash[:]); err != nil {
		return nil, errors.Wrap(err, "engineapi: decoding block hash")
	}
	if err := hexDecodeFixed(raw.ParentHash, out.ParentHash[:]); err != nil {
		return nil, errors.Wrap(err, "engineapi: decoding parent hash")
	}
	return out, nil
}

func decodePayloadStatus(raw jsonPayloadStatus) (*PayloadStatusResponse, error) {
	out := &PayloadStatusResponse{
		Status:          ParsePayloadStatus(raw.Status),
		ValidationError: raw.ValidationError,
	}
	if out.Status == StatusUnknown {
		log.WithField("status", raw.Status).Warn("unrecognized payload status from execution client")
	}
	if raw.LatestValidHash != nil {
		var h [32]byte
		if err := hexDecodeFixed(*raw.LatestValidHash, h[:]); err != nil {
			return nil, errors.Wrap(err, "engineapi: decoding latestValidHash")
		}
		out.LatestValidHash = &h
	}
	return out, nil
}

func forkchoiceStateWire(s *ForkchoiceState) interface{} {
	return struct {
		HeadBlockHash      string `json:"headBlockHash"`
		SafeBlockHash      string `json:"safeBlockHash"`
		FinalizedBlockHash string `json:"finalizedBlockHash"`
	}{
		HeadBlockHash:      hexEncode(s.HeadBlockHash[:]),
		SafeBlockHash:      hexEncode(s.SafeBlockHash[:]),
		FinalizedBlockHash: hexEncode(s.FinalizedBlockHash[:]),
	}
}

// payloadAttributesWire is the JSON shape of PayloadAttributes sent with
// engine_forkchoiceUpdatedVx.
type payloadAttributesWire struct {
	Timestamp             string           `json:"timestamp"`
	PrevRandao            string           `json:"prevRandao"`
	SuggestedFeeRecipient string           `json:"suggestedFeeRecipient"`
	Withdrawals           []withdrawalWire `json:"withdrawals"`
}

type withdrawalWire struct {
	Index          string `json:"index"`
	ValidatorIndex string `json:"validatorIndex"`
	Address        string `json:"address"`
	Amount         string `json:"amount"`
}

func toPayloadAttributesWire(a *PayloadAttributes) *payloadAttributesWire {
	withdrawals := make([]withdrawalWire, len(a.Withdrawals))
	for i, w := range a.Withdrawals {
		withdrawals[i] = withdrawalWire{
			Index:          hexEncodeUint(w.Index),
			ValidatorIndex: hexEncodeUint(w.ValidatorIndex),
			Address:        hexEncode(w.Address[:]),
			Amount:         hexEncodeUint(w.AmountGwei),
		}
	}
	return &payloadAttributesWire{
		Timestamp:             hexEncodeUint(a.Timestamp),
		PrevRandao:            hexEncode(a.PrevRandao[:]),
		SuggestedFeeRecipient: hexEncode(a.SuggestedFeeRecipient[:]),
		Withdrawals:           withdrawals,
	}
}

func fromPayloadWire(raw *payloadWire) (*types.ExecutionPayload, error) {
	out := &types.ExecutionPayload{}
	var err error
	if err = hexDecodeFixed(raw.ParentHash, out.ParentHash[:]); err != nil {
		return nil, errors.Wrap(err, "engineapi: decoding parentHash")
	}
	if err = hexDecodeFixed(raw.FeeRecipient, out.FeeRecipient[:]); err != nil {
		return nil, errors.Wrap(err, "engineapi: decoding feeRecipient")
	}
	if err = hexDecodeFixed(raw.StateRoot, out.StateRoot[:]); err != nil {
		return nil, errors.Wrap(err, "engineapi: decoding stateRoot")
	}
	if err = hexDecodeFixed(raw.ReceiptsRoot, out.ReceiptsRoot[:]); err != nil {
		return nil, errors.Wrap(err, "engineapi: decoding receiptsRoot")
	}
	if out.LogsBloom, err = hexDecode(raw.LogsBloom); err != nil {
		return nil, errors.Wrap(err, "engineapi: decoding logsBloom")
	}
	if err = hexDecodeFixed(raw.PrevRandao, out.PrevRandao[:]); err != nil {
		return nil, errors.Wrap(err, "engineapi: decoding prevRandao")
	}
	if out.BlockNumber, err = hexDecodeUint(raw.BlockNumber); err != nil {
		return nil, errors.Wrap(err, "engineapi: decoding blockNumber")
	}
	if out.GasLimit, err = hexDecodeUint(raw.GasLimit); err != nil {
		return nil, errors.Wrap(err, "engineapi: decoding gasLimit")
	}
	if out.GasUsed, err = hexDecodeUint(raw.GasUsed); err != nil {
		return nil, errors.Wrap(err, "engineapi: decoding gasUsed")
	}
	if out.Timestamp, err = hexDecodeUint(raw.Timestamp); err != nil {
		return nil, errors.Wrap(err, "engineapi: decoding timestamp")
	}
	if out.ExtraData, err = hexDecode(raw.ExtraData); err != nil {
		return nil, errors.Wrap(err, "engineapi: decoding extraData")
	}
	if raw.BaseFeePerGas == "" {
		out.BaseFeePerGas = big.NewInt(0)
	} else if out.BaseFeePerGas, err = hexDecodeBig(raw.BaseFeePerGas); err != nil {
		return nil, errors.Wrap(err, "engineapi: decoding baseFeePerGas")
	}
	if err = hexDecodeFixed(raw.BlockHash, out.BlockHash[:]); err != nil {
		return nil, errors.Wrap(err, "engineapi: decoding blockHash")
	}
	out.Transactions = make([][]byte, len(raw.Transactions))
	for i, tx := range raw.Transactions {
		if out.Transactions[i], err = hexDecode(tx); err != nil {
			return nil, errors.Wrapf(err, "engineapi: decoding transaction %d", i)
		}
	}
	return out, nil
}
