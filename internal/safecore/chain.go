package safecore

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ExecCall is one execTransaction invocation: the signed fields plus the
// concatenated owner signatures.
type ExecCall struct {
	Tx         *SafeTransaction
	Signatures []byte
}

// ChainClient is the Safe-bound view of the chain the pipeline needs.
// Implementations must not retry Exec.
type ChainClient interface {
	// SafeNonce reads the Safe's nonce().
	SafeNonce(ctx context.Context) (*big.Int, error)
	// EstimateExec estimates gas for execTransaction sent by the executor.
	EstimateExec(ctx context.Context, call ExecCall) (uint64, error)
	// Exec sends execTransaction and returns the outer transaction hash.
	Exec(ctx context.Context, call ExecCall, gasLimit uint64) (common.Hash, error)
	// WaitReceipt blocks until txHash is mined.
	WaitReceipt(ctx context.Context, txHash common.Hash) (*Receipt, error)
}
