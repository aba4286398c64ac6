package safecore

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BuildSafeTransaction wraps one transfer into a plain CALL to the token with
// no refund parameters.
func BuildSafeTransaction(t Transfer, nonce *big.Int) (*SafeTransaction, error) {
	if nonce == nil || nonce.Sign() < 0 {
		return nil, fmt.Errorf("%w: invalid nonce %v", ErrEncoding, nonce)
	}
	data, err := EncodeTransfer(t)
	if err != nil {
		return nil, err
	}
	return &SafeTransaction{
		To:             t.Token,
		Value:          new(big.Int),
		Data:           data,
		Operation:      Call,
		SafeTxGas:      new(big.Int),
		BaseGas:        new(big.Int),
		GasPrice:       new(big.Int),
		GasToken:       common.Address{},
		RefundReceiver: common.Address{},
		Nonce:          new(big.Int).Set(nonce),
	}, nil
}
