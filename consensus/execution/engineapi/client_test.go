package engineapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"

	"github.com/corpochain-network/beacon-core/consensus/types"
	"github.com/corpochain-network/beacon-core/internal/testlog"
)

func repeatHex(b byte, n int) string {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return hexEncode(out)[2:]
}

func jsonRPCServer(t *testing.T, result interface{}) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		defer func() { require.NoError(t, r.Body.Close()) }()
		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      1,
			"result":  result,
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func dialTestClient(t *testing.T, srv *httptest.Server) *Client {
	rpcClient, err := rpc.DialHTTP(srv.URL)
	require.NoError(t, err)
	t.Cleanup(rpcClient.Close)
	return &Client{rpc: rpcClient, jwtSecret: []byte("test-secret")}
}

func TestClient_NewPayload(t *testing.T) {
	ctx := context.Background()
	srv := jsonRPCServer(t, map[string]interface{}{"status": "VALID"})
	defer srv.Close()
	client := dialTestClient(t, srv)

	resp, err := client.NewPayload(ctx, &types.ExecutionPayload{
		BaseFeePerGas: nil,
	})
	require.NoError(t, err)
	require.Equal(t, StatusValid, resp.Status)
}

func TestClient_ForkchoiceUpdated_WithAttributes(t *testing.T) {
	ctx := context.Background()
	payloadID := "0x0102030405060708"
	srv := jsonRPCServer(t, map[string]interface{}{
		"payloadStatus": map[string]interface{}{"status": "SYNCING"},
		"payloadId":     payloadID,
	})
	defer srv.Close()
	client := dialTestClient(t, srv)

	resp, err := client.ForkchoiceUpdated(ctx, &ForkchoiceState{HeadBlockHash: [32]byte{1}}, &PayloadAttributes{
		Timestamp:             100,
		SuggestedFeeRecipient: [20]byte{2},
		Withdrawals: []Withdrawal{
			{Index: 0, Address: [20]byte{3}, AmountGwei: 21_000_000_000},
		},
	})
	require.NoError(t, err)
	require.Equal(t, StatusSyncing, resp.PayloadStatus.Status)
	require.NotNil(t, resp.PayloadID)
	require.Equal(t, [8]byte{1, 2, 3, 4, 5, 6, 7, 8}, *resp.PayloadID)
}

func TestClient_ForkchoiceUpdated_NoAttributes(t *testing.T) {
	ctx := context.Background()
	srv := jsonRPCServer(t, map[string]interface{}{
		"payloadStatus": map[string]interface{}{"status": "VALID"},
	})
	defer srv.Close()
	client := dialTestClient(t, srv)

	resp, err := client.ForkchoiceUpdated(ctx, &ForkchoiceState{}, nil)
	require.NoError(t, err)
	require.Equal(t, StatusValid, resp.PayloadStatus.Status)
	require.Nil(t, resp.PayloadID)
}

func TestClient_GetPayload_RoundTrips(t *testing.T) {
	ctx := context.Background()
	hash32 := func(b byte) string { return "0x" + repeatHex(b, 32) }
	addr20 := func(b byte) string { return "0x" + repeatHex(b, 20) }
	srv := jsonRPCServer(t, map[string]interface{}{
		"parentHash":    hash32(0x11),
		"feeRecipient":  addr20(0x22),
		"stateRoot":     hash32(0x33),
		"receiptsRoot":  hash32(0x44),
		"logsBloom":     "0x",
		"prevRandao":    hash32(0x55),
		"blockNumber":   "0x5",
		"gasLimit":      "0x100",
		"gasUsed":       "0x10",
		"timestamp":     "0x64",
		"extraData":     "0x",
		"baseFeePerGas": "0x0",
		"blockHash":     hash32(0x66),
		"transactions":  []string{"0xdead"},
	})
	defer srv.Close()
	client := dialTestClient(t, srv)

	payload, err := client.GetPayload(ctx, [8]byte{9})
	require.NoError(t, err)
	require.Equal(t, uint64(5), payload.BlockNumber)
	require.Equal(t, uint64(0x100), payload.GasLimit)
	require.Len(t, payload.Transactions, 1)
}

func TestClient_LatestExecutionBlock(t *testing.T) {
	ctx := context.Background()
	srv := jsonRPCServer(t, map[string]interface{}{
		"number":     "0xa",
		"hash":       "0x" + repeatHex(0x77, 32),
		"parentHash": "0x" + repeatHex(0x88, 32),
		"timestamp":  "0x1",
	})
	defer srv.Close()
	client := dialTestClient(t, srv)

	block, err := client.LatestExecutionBlock(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(10), block.Number)
}

func TestClient_NewPayload_UnrecognizedStatusWarns(t *testing.T) {
	ctx := context.Background()
	srv := jsonRPCServer(t, map[string]interface{}{"status": "SOMETHING_ELSE"})
	defer srv.Close()
	client := dialTestClient(t, srv)
	hook := testlog.CaptureGlobal(t)

	resp, err := client.NewPayload(ctx, &types.ExecutionPayload{})
	require.NoError(t, err)
	require.Equal(t, StatusUnknown, resp.Status)
	testlog.AssertContains(t, hook, "unrecognized payload status")
}

func TestParsePayloadStatus_UnknownFallback(t *testing.T) {
	require.Equal(t, StatusUnknown, ParsePayloadStatus("SOMETHING_ELSE"))
	require.Equal(t, "UNKNOWN", StatusUnknown.String())
	require.Equal(t, "VALID", StatusValid.String())
}
