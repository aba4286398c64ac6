package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ligun0805/safe-batch/internal/safecore"
)

const safeABIJSON = `[
{"type":"function","name":"nonce","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"getOwners","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address[]"}]},
{"type":"function","name":"getThreshold","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"VERSION","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"getTransactionHash","stateMutability":"view","inputs":[
 {"name":"to","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"},{"name":"operation","type":"uint8"},
 {"name":"safeTxGas","type":"uint256"},{"name":"baseGas","type":"uint256"},{"name":"gasPrice","type":"uint256"},
 {"name":"gasToken","type":"address"},{"name":"refundReceiver","type":"address"},{"name":"_nonce","type":"uint256"}],
 "outputs":[{"name":"","type":"bytes32"}]},
{"type":"function","name":"execTransaction","stateMutability":"payable","inputs":[
 {"name":"to","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"},{"name":"operation","type":"uint8"},
 {"name":"safeTxGas","type":"uint256"},{"name":"baseGas","type":"uint256"},{"name":"gasPrice","type":"uint256"},
 {"name":"gasToken","type":"address"},{"name":"refundReceiver","type":"address"},{"name":"signatures","type":"bytes"}],
 "outputs":[{"name":"success","type":"bool"}]}
]`

var safeABI abi.ABI

func init() {
	var err error
	safeABI, err = abi.JSON(strings.NewReader(safeABIJSON))
	if err != nil {
		panic(err)
	}
}

// PackExecTransaction encodes execTransaction with exactly the hashed fields.
func PackExecTransaction(tx *safecore.SafeTransaction, signatures []byte) ([]byte, error) {
	return safeABI.Pack("execTransaction",
		tx.To, tx.Value, tx.Data, uint8(tx.Operation),
		tx.SafeTxGas, tx.BaseGas, tx.GasPrice,
		tx.GasToken, tx.RefundReceiver, signatures)
}

func (c *Client) safeCall(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := safeABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	to := c.safe
	out, err := c.callContract(ctx, method, ethereum.CallMsg{To: &to, Data: data})
	if err != nil {
		return nil, fmt.Errorf("%s(safe): %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s(safe): empty result, is %s a Safe?", method, c.safe.Hex())
	}
	vals, err := safeABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("%s(safe): %w", method, err)
	}
	return vals, nil
}

// SafeNonce reads nonce().
func (c *Client) SafeNonce(ctx context.Context) (*big.Int, error) {
	vals, err := c.safeCall(ctx, "nonce")
	if err != nil {
		return nil, err
	}
	return vals[0].(*big.Int), nil
}

func (c *Client) Owners(ctx context.Context) ([]common.Address, error) {
	vals, err := c.safeCall(ctx, "getOwners")
	if err != nil {
		return nil, err
	}
	return vals[0].([]common.Address), nil
}

func (c *Client) Threshold(ctx context.Context) (*big.Int, error) {
	vals, err := c.safeCall(ctx, "getThreshold")
	if err != nil {
		return nil, err
	}
	return vals[0].(*big.Int), nil
}

func (c *Client) Version(ctx context.Context) (string, error) {
	vals, err := c.safeCall(ctx, "VERSION")
	if err != nil {
		return "", err
	}
	return vals[0].(string), nil
}

// OnChainTxHash asks the Safe for the SafeTx hash of tx, for cross-checking
// the locally computed one.
func (c *Client) OnChainTxHash(ctx context.Context, tx *safecore.SafeTransaction) (common.Hash, error) {
	vals, err := c.safeCall(ctx, "getTransactionHash",
		tx.To, tx.Value, tx.Data, uint8(tx.Operation),
		tx.SafeTxGas, tx.BaseGas, tx.GasPrice,
		tx.GasToken, tx.RefundReceiver, tx.Nonce)
	if err != nil {
		return common.Hash{}, err
	}
	return common.Hash(vals[0].([32]byte)), nil
}

// Domain reads VERSION() and returns the matching signing domain.
func (c *Client) Domain(ctx context.Context) (safecore.Domain, string, error) {
	v, err := c.Version(ctx)
	if err != nil {
		return safecore.Domain{}, "", err
	}
	return safecore.DomainForVersion(c.ChainID(), c.safe, v), v, nil
}

func (c *Client) executor() (common.Address, error) {
	if c.exec == nil {
		return common.Address{}, fmt.Errorf("%w: no executor credential", safecore.ErrConfig)
	}
	return c.exec.Address(), nil
}

// EstimateExec estimates execTransaction as sent by the executor.
func (c *Client) EstimateExec(ctx context.Context, call safecore.ExecCall) (uint64, error) {
	from, err := c.executor()
	if err != nil {
		return 0, err
	}
	data, err := PackExecTransaction(call.Tx, call.Signatures)
	if err != nil {
		return 0, err
	}
	to := c.safe
	msg := ethereum.CallMsg{From: from, To: &to, Value: big.NewInt(0), Data: data}
	g, err := withRetry(ctx, c, "eth_estimateGas", func(ctx context.Context) (uint64, error) {
		return c.ec.EstimateGas(ctx, msg)
	})
	if err != nil {
		if r := RevertReason(err); r != "" {
			return 0, fmt.Errorf("estimate execTransaction: %s: %w", r, err)
		}
		return 0, err
	}
	return g, nil
}

// Exec signs and broadcasts one execTransaction from the executor account.
// The send itself is attempted once.
func (c *Client) Exec(ctx context.Context, call safecore.ExecCall, gasLimit uint64) (common.Hash, error) {
	from, err := c.executor()
	if err != nil {
		return common.Hash{}, err
	}
	data, err := PackExecTransaction(call.Tx, call.Signatures)
	if err != nil {
		return common.Hash{}, err
	}
	q, err := c.QuoteFees(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("fees: %w", err)
	}
	nonce, err := withRetry(ctx, c, "eth_getTransactionCount", func(ctx context.Context) (uint64, error) {
		return c.ec.PendingNonceAt(ctx, from)
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("executor nonce: %w", err)
	}
	to := c.safe
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.ChainID(),
		Nonce:     nonce,
		Gas:       gasLimit,
		GasTipCap: q.Tip,
		GasFeeCap: q.MaxFee,
		To:        &to,
		Value:     new(big.Int),
		Data:      data,
	})
	opts, err := c.exec.Transactor(c.chainID)
	if err != nil {
		return common.Hash{}, err
	}
	signed, err := opts.Signer(from, tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign outer tx: %w", err)
	}
	c.log.Debug("sending execTransaction", "from", from.Hex(), "nonce", nonce, "gas", gasLimit,
		"tipGwei", FormatGwei(q.Tip), "maxFeeGwei", FormatGwei(q.MaxFee), "tx", signed.Hash().Hex())
	start := time.Now()
	err = c.ec.SendTransaction(ctx, signed)
	c.observe("eth_sendRawTransaction", start, err)
	if err != nil {
		if r := RevertReason(err); r != "" {
			return common.Hash{}, fmt.Errorf("%s: %w", r, err)
		}
		return common.Hash{}, err
	}
	return signed.Hash(), nil
}

// WaitReceipt polls until txHash is mined or ctx ends.
func (c *Client) WaitReceipt(ctx context.Context, txHash common.Hash) (*safecore.Receipt, error) {
	t := time.NewTicker(c.poll)
	defer t.Stop()
	for {
		start := time.Now()
		r, err := c.ec.TransactionReceipt(ctx, txHash)
		c.observe("eth_getTransactionReceipt", start, err)
		if err == nil && r != nil {
			return &safecore.Receipt{
				TxHash:      txHash,
				Success:     r.Status == types.ReceiptStatusSuccessful && !execFailed(r, c.safe),
				BlockNumber: r.BlockNumber,
				GasUsed:     r.GasUsed,
			}, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			c.log.Debug("receipt poll", "tx", txHash.Hex(), "class", ClassifyRPCError(err), "err", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

var executionFailureTopic = crypto.Keccak256Hash([]byte("ExecutionFailure(bytes32,uint256)"))

// execFailed detects a Safe that swallowed an inner failure (possible when
// safeTxGas or gasPrice is non-zero): the outer tx succeeds but logs ExecutionFailure.
func execFailed(r *types.Receipt, safe common.Address) bool {
	for _, l := range r.Logs {
		if l.Address == safe && len(l.Topics) > 0 && l.Topics[0] == executionFailureTopic {
			return true
		}
	}
	return false
}
