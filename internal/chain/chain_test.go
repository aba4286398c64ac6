package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligun0805/safe-batch/internal/safecore"
)

var testSafe = common.HexToAddress("0x3E5c63644E683549055b9Be8653de26E0B4CD36E")

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcErr struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// fakeNode answers eth_call by selector, any other method through handlers,
// and counts requests.
type fakeNode struct {
	calls    atomic.Int32
	failures atomic.Int32 // respond 503 this many times first
	results  map[string]string
	handlers map[string]func(params []json.RawMessage) (any, *rpcErr)

	mu       sync.Mutex
	counts   map[string]int
	failNext map[string]int // respond 503 to this method this many times
}

func (n *fakeNode) count(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.counts[method]
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n.calls.Add(1)
	if n.failures.Load() > 0 {
		n.failures.Add(-1)
		http.Error(w, "upstream busy", http.StatusServiceUnavailable)
		return
	}
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n.mu.Lock()
	if n.counts == nil {
		n.counts = map[string]int{}
	}
	n.counts[req.Method]++
	busy := n.failNext[req.Method] > 0
	if busy {
		n.failNext[req.Method]--
	}
	h := n.handlers[req.Method]
	n.mu.Unlock()
	if busy {
		http.Error(w, "upstream busy", http.StatusServiceUnavailable)
		return
	}
	if h != nil {
		result, e := h(req.Params)
		writeRPC(w, req.ID, result, e)
		return
	}

	var result any
	switch req.Method {
	case "eth_chainId":
		result = "0x89"
	case "eth_call":
		var msg struct {
			Data  string `json:"data"`
			Input string `json:"input"`
		}
		_ = json.Unmarshal(req.Params[0], &msg)
		data := msg.Input
		if data == "" {
			data = msg.Data
		}
		result = "0x"
		if len(data) >= 10 {
			if out, ok := n.results[strings.ToLower(data[:10])]; ok {
				result = out
			}
		}
	default:
		writeRPC(w, req.ID, nil, &rpcErr{-32601, "method not found"})
		return
	}
	writeRPC(w, req.ID, result, nil)
}

func writeRPC(w http.ResponseWriter, id json.RawMessage, result any, e *rpcErr) {
	resp := map[string]any{"jsonrpc": "2.0", "id": id}
	if e != nil {
		resp["error"] = e
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func word(x int64) string {
	return hexutil.Encode(common.LeftPadBytes(big.NewInt(x).Bytes(), 32))
}

func dialFake(t *testing.T, n *fakeNode) *Client {
	return dialFakeWith(t, n, Options{})
}

func dialFakeWith(t *testing.T, n *fakeNode, o Options) *Client {
	t.Helper()
	srv := httptest.NewServer(n)
	t.Cleanup(srv.Close)
	o.RPCURL, o.Safe = srv.URL, testSafe
	c, err := Dial(context.Background(), o)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestSafeReads(t *testing.T) {
	ownersOut, err := safeABI.Methods["getOwners"].Outputs.Pack([]common.Address{
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		common.HexToAddress("0x2222222222222222222222222222222222222222"),
	})
	require.NoError(t, err)
	versionOut, err := safeABI.Methods["VERSION"].Outputs.Pack("1.3.0")
	require.NoError(t, err)

	n := &fakeNode{results: map[string]string{
		hexutil.Encode(safeABI.Methods["nonce"].ID):        word(42),
		hexutil.Encode(safeABI.Methods["getThreshold"].ID): word(1),
		hexutil.Encode(safeABI.Methods["getOwners"].ID):    hexutil.Encode(ownersOut),
		hexutil.Encode(safeABI.Methods["VERSION"].ID):      hexutil.Encode(versionOut),
	}}
	c := dialFake(t, n)
	ctx := context.Background()
	assert.Equal(t, int64(137), c.ChainID().Int64())

	nonce, err := c.SafeNonce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), nonce.Int64())

	th, err := c.Threshold(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), th.Int64())

	owners, err := c.Owners(ctx)
	require.NoError(t, err)
	assert.Len(t, owners, 2)

	d, v, err := c.Domain(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.3.0", v)
	assert.False(t, d.Legacy)
	assert.Equal(t, testSafe, d.Safe)
}

func TestReadsRetryTransientErrors(t *testing.T) {
	n := &fakeNode{results: map[string]string{
		hexutil.Encode(safeABI.Methods["nonce"].ID): word(7),
	}}
	c := dialFake(t, n)
	before := n.calls.Load()
	n.failures.Store(2)

	nonce, err := c.SafeNonce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), nonce.Int64())
	assert.Equal(t, int32(3), n.calls.Load()-before)
}

func TestEmptySafeResult(t *testing.T) {
	c := dialFake(t, &fakeNode{results: map[string]string{}})
	_, err := c.SafeNonce(context.Background())
	assert.ErrorContains(t, err, "is "+testSafe.Hex()+" a Safe?")
}

func TestTokenReads(t *testing.T) {
	symOut := "0x" +
		"0000000000000000000000000000000000000000000000000000000000000020" +
		"0000000000000000000000000000000000000000000000000000000000000004" +
		"5553444300000000000000000000000000000000000000000000000000000000"
	n := &fakeNode{results: map[string]string{
		"0x313ce567": word(6),
		"0x95d89b41": symOut,
		"0x70a08231": word(2_500_000),
	}}
	c := dialFake(t, n)
	token := common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
	ctx := context.Background()

	dec, err := c.TokenDecimals(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, 6, dec)

	sym, err := c.TokenSymbol(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "USDC", sym)

	bal, err := c.TokenBalance(ctx, token, testSafe)
	require.NoError(t, err)
	assert.Equal(t, int64(2_500_000), bal.Int64())
}

func TestDecodeSymbolBytes32(t *testing.T) {
	raw := common.RightPadBytes([]byte("MKR"), 32)
	assert.Equal(t, "MKR", decodeSymbol(raw))
}

func TestPackExecTransaction(t *testing.T) {
	data := common.FromHex("0xa9059cbb" + strings.Repeat("00", 64))
	tx := &safecore.SafeTransaction{
		To: common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"), Value: new(big.Int), Data: data,
		Operation: safecore.Call, SafeTxGas: new(big.Int), BaseGas: new(big.Int), GasPrice: new(big.Int),
		Nonce: big.NewInt(3),
	}
	sig := make([]byte, 65)
	sig[64] = 27

	packed, err := PackExecTransaction(tx, sig)
	require.NoError(t, err)
	m := safeABI.Methods["execTransaction"]
	assert.Equal(t, m.ID, packed[:4])

	vals, err := m.Inputs.Unpack(packed[4:])
	require.NoError(t, err)
	require.Len(t, vals, 10)
	assert.Equal(t, tx.To, vals[0].(common.Address))
	assert.Equal(t, data, vals[2].([]byte))
	assert.Equal(t, uint8(0), vals[3].(uint8))
	assert.Equal(t, common.Address{}, vals[8].(common.Address))
	assert.Equal(t, sig, vals[9].([]byte))
}

func TestExecFailedLog(t *testing.T) {
	other := common.HexToAddress("0x9999999999999999999999999999999999999999")
	r := &types.Receipt{Logs: []*types.Log{{Address: other, Topics: []common.Hash{executionFailureTopic}}}}
	assert.False(t, execFailed(r, testSafe))
	r.Logs = append(r.Logs, &types.Log{Address: testSafe, Topics: []common.Hash{executionFailureTopic}})
	assert.True(t, execFailed(r, testSafe))
}

func TestClassifyRPCError(t *testing.T) {
	cases := map[string]error{
		"rpc_timeout":        context.DeadlineExceeded,
		"revert":             errors.New("execution reverted: GS026"),
		"rpc_rate_limited":   rpc.HTTPError{StatusCode: http.StatusTooManyRequests, Status: "429 Too Many Requests"},
		"rpc_unavailable":    fmt.Errorf("read tcp: %w", syscall.ECONNRESET),
		"sender_nonce":       errors.New("nonce too low"),
		"insufficient_funds": errors.New("insufficient funds for gas * price + value"),
		"rpc_error":          errors.New("boom"),
	}
	for want, err := range cases {
		assert.Equal(t, want, ClassifyRPCError(err), err.Error())
	}
	assert.Equal(t, "", ClassifyRPCError(nil))
}

func TestRevertReason(t *testing.T) {
	assert.Equal(t, "GS026 (invalid owner provided)", RevertReason(errors.New("execution reverted: GS026")))
	assert.Equal(t, "custom", RevertReason(errors.New("execution reverted: custom")))
	assert.Equal(t, "execution reverted", RevertReason(errors.New("execution reverted")))
	assert.Equal(t, "", RevertReason(errors.New("dial tcp: refused")))
}

func TestTransientErrors(t *testing.T) {
	assert.True(t, isTransientNetworkError(rpc.HTTPError{StatusCode: http.StatusServiceUnavailable, Status: "503 Service Unavailable"}))
	assert.True(t, isTransientNetworkError(fmt.Errorf("post: %w", io.ErrUnexpectedEOF)))
	assert.False(t, isTransientNetworkError(context.DeadlineExceeded))
	assert.False(t, isTransientNetworkError(rpc.HTTPError{StatusCode: http.StatusBadRequest, Status: "400 Bad Request"}))
	// message text alone is not a transport failure
	assert.False(t, isTransientNetworkError(errors.New("503 Service Unavailable")))
	assert.False(t, isTransientNetworkError(errors.New("execution reverted: 0x4f4f45503")))
	assert.False(t, isRateLimitError(errors.New("execution reverted: 0x429")))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "1.50", FormatGwei(big.NewInt(1_500_000_000)))
	assert.Equal(t, "0.000001", FormatEther(big.NewInt(1_000_000_000_000)))
	assert.Equal(t, "0", FormatEther(nil))
}

func TestTokenPaused(t *testing.T) {
	token := common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")

	c := dialFake(t, &fakeNode{results: map[string]string{hexutil.Encode(sel("paused()")): word(1)}})
	known, paused := c.TokenPaused(context.Background(), token)
	assert.True(t, known)
	assert.True(t, paused)

	c = dialFake(t, &fakeNode{results: map[string]string{hexutil.Encode(sel("transferEnabled()")): word(1)}})
	known, paused = c.TokenPaused(context.Background(), token)
	assert.True(t, known)
	assert.False(t, paused)

	c = dialFake(t, &fakeNode{results: map[string]string{}})
	known, _ = c.TokenPaused(context.Background(), token)
	assert.False(t, known)
}
