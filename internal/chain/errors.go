package chain

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/rpc"
)

// JSON-RPC codes providers use for throttling.
const (
	codeLimitExceeded = -32005
	codeRevert        = 3
)

func httpStatus(err error) int {
	var he rpc.HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}

// rpcError returns the node's JSON-RPC error, if the node answered with one.
func rpcError(err error) (rpc.Error, bool) {
	var re rpc.Error
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	if httpStatus(err) == http.StatusTooManyRequests {
		return true
	}
	re, ok := rpcError(err)
	if !ok || re.ErrorCode() == codeRevert {
		return false
	}
	if re.ErrorCode() == codeLimitExceeded {
		return true
	}
	s := strings.ToLower(re.Error())
	return strings.Contains(s, "too many requests") || strings.Contains(s, "rate limit")
}

// isTransientNetworkError detects short-lived provider/transport failures worth retrying.
// A per-call deadline is not one of them: the caller's budget is spent.
// Any JSON-RPC error means the node answered, so it is never transient.
func isTransientNetworkError(err error) bool {
	if err == nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	if _, ok := rpcError(err); ok {
		return false
	}
	switch httpStatus(err) {
	case 0:
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// ClassifyRPCError returns a coarse class for RPC errors, used in logs and metrics labels.
func ClassifyRPCError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(strings.ToLower(err.Error()), "context deadline exceeded") {
		return "rpc_timeout"
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return "rpc_timeout"
	}
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "execution reverted") {
		return "revert"
	}
	if strings.Contains(s, "nonce too low") || strings.Contains(s, "replacement transaction underpriced") || strings.Contains(s, "already known") {
		return "sender_nonce"
	}
	if strings.Contains(s, "insufficient funds") {
		return "insufficient_funds"
	}
	if isRateLimitError(err) {
		return "rpc_rate_limited"
	}
	if isTransientNetworkError(err) {
		return "rpc_unavailable"
	}
	return "rpc_error"
}

// RevertReason pulls the short reason out of "execution reverted: <reason>".
// Safe contracts revert with GSxxx codes; known ones are spelled out.
func RevertReason(err error) string {
	if err == nil {
		return ""
	}
	s := err.Error()
	const p = "execution reverted"
	i := strings.Index(strings.ToLower(s), p)
	if i < 0 {
		return ""
	}
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s[i+len(p):]), ":"))
	if rest == "" {
		return p
	}
	if d, ok := safeErrorCodes[rest]; ok {
		return rest + " (" + d + ")"
	}
	return rest
}

var safeErrorCodes = map[string]string{
	"GS010": "not enough gas to execute safe transaction",
	"GS011": "could not pay gas costs with ether",
	"GS012": "could not pay gas costs with token",
	"GS013": "safe transaction failed when gasPrice and safeTxGas were 0",
	"GS020": "signatures data too short",
	"GS021": "invalid contract signature location",
	"GS022": "invalid contract signature location: length not present",
	"GS023": "invalid contract signature location: data not complete",
	"GS024": "invalid contract signature provided",
	"GS025": "hash has not been approved",
	"GS026": "invalid owner provided",
}
