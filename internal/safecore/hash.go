package safecore

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Domain identifies the Safe a SafeTx hash is bound to.
type Domain struct {
	ChainID *big.Int
	Safe    common.Address
	// Legacy drops chainId from the domain, as Safe contracts before 1.3.0 do.
	Legacy bool
}

// DomainForVersion picks the domain layout matching the Safe's VERSION().
// Unparseable versions get the current layout.
func DomainForVersion(chainID *big.Int, safe common.Address, version string) Domain {
	return Domain{ChainID: chainID, Safe: safe, Legacy: versionBefore(version, 1, 3)}
}

func versionBefore(v string, major, minor int) bool {
	parts := strings.SplitN(strings.TrimPrefix(strings.TrimSpace(v), "v"), ".", 3)
	if len(parts) < 2 {
		return false
	}
	ma, err1 := strconv.Atoi(parts[0])
	mi, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return false
	}
	return ma < major || (ma == major && mi < minor)
}

var safeTxFields = []apitypes.Type{
	{Name: "to", Type: "address"},
	{Name: "value", Type: "uint256"},
	{Name: "data", Type: "bytes"},
	{Name: "operation", Type: "uint8"},
	{Name: "safeTxGas", Type: "uint256"},
	{Name: "baseGas", Type: "uint256"},
	{Name: "gasPrice", Type: "uint256"},
	{Name: "gasToken", Type: "address"},
	{Name: "refundReceiver", Type: "address"},
	{Name: "nonce", Type: "uint256"},
}

// TypedData renders tx as EIP-712 typed data under d.
func TypedData(tx *SafeTransaction, d Domain) apitypes.TypedData {
	domainType := []apitypes.Type{{Name: "verifyingContract", Type: "address"}}
	domain := apitypes.TypedDataDomain{VerifyingContract: d.Safe.Hex()}
	if !d.Legacy {
		domainType = append([]apitypes.Type{{Name: "chainId", Type: "uint256"}}, domainType...)
		domain.ChainId = (*math.HexOrDecimal256)(new(big.Int).Set(bigOrZero(d.ChainID)))
	}
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainType,
			"SafeTx":       safeTxFields,
		},
		PrimaryType: "SafeTx",
		Domain:      domain,
		Message: apitypes.TypedDataMessage{
			"to":             tx.To.Hex(),
			"value":          bigOrZero(tx.Value).String(),
			"data":           append([]byte{}, tx.Data...),
			"operation":      strconv.Itoa(int(tx.Operation)),
			"safeTxGas":      bigOrZero(tx.SafeTxGas).String(),
			"baseGas":        bigOrZero(tx.BaseGas).String(),
			"gasPrice":       bigOrZero(tx.GasPrice).String(),
			"gasToken":       tx.GasToken.Hex(),
			"refundReceiver": tx.RefundReceiver.Hex(),
			"nonce":          bigOrZero(tx.Nonce).String(),
		},
	}
}

// SafeTxHash is the digest the Safe's owners sign.
func SafeTxHash(tx *SafeTransaction, d Domain) (common.Hash, error) {
	if tx == nil {
		return common.Hash{}, fmt.Errorf("%w: nil transaction", ErrSigning)
	}
	if !d.Legacy && d.ChainID == nil {
		return common.Hash{}, fmt.Errorf("%w: chain id required", ErrSigning)
	}
	h, _, err := apitypes.TypedDataAndHash(TypedData(tx, d))
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: typed data: %w", ErrSigning, err)
	}
	return common.BytesToHash(h), nil
}

func bigOrZero(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return x
}
