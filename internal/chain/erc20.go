package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	selDecimals  = common.FromHex("0x313ce567") // decimals()
	selSymbol    = common.FromHex("0x95d89b41") // symbol()
	selBalanceOf = common.FromHex("0x70a08231") // balanceOf(address)
)

// TokenDecimals reads decimals(). Tokens that return nothing are not ERC20 enough to scale.
func (c *Client) TokenDecimals(ctx context.Context, token common.Address) (int, error) {
	res, err := c.callContract(ctx, "decimals", ethereum.CallMsg{To: &token, Data: selDecimals})
	if err != nil {
		return 0, fmt.Errorf("decimals(%s): %w", token.Hex(), err)
	}
	if len(res) == 0 {
		return 0, fmt.Errorf("decimals(%s): empty result, not a token contract?", token.Hex())
	}
	// ABI uint8 encoded as 32 bytes (big-endian)
	if len(res) > 32 {
		res = res[:32]
	}
	d := new(big.Int).SetBytes(res)
	if !d.IsInt64() || d.Int64() > 77 {
		return 0, fmt.Errorf("decimals(%s): implausible value %s", token.Hex(), d)
	}
	return int(d.Int64()), nil
}

func (c *Client) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	data := append(append([]byte{}, selBalanceOf...), common.LeftPadBytes(owner.Bytes(), 32)...)
	res, err := c.callContract(ctx, "balanceOf", ethereum.CallMsg{To: &token, Data: data})
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return big.NewInt(0), nil
	}
	if len(res) > 32 {
		res = res[:32]
	}
	return new(big.Int).SetBytes(res), nil
}

func (c *Client) TokenSymbol(ctx context.Context, token common.Address) (string, error) {
	out, err := c.callContract(ctx, "symbol", ethereum.CallMsg{To: &token, Data: selSymbol})
	if err != nil || len(out) == 0 {
		return "", err
	}
	return decodeSymbol(out), nil
}

// decodeSymbol handles both string and bytes32 (MKR-style) returns.
func decodeSymbol(out []byte) string {
	// dynamic string: offset @0, length @32, bytes after
	if len(out) >= 64 {
		l := new(big.Int).SetBytes(out[32:64])
		if l.IsInt64() && l.Int64() > 0 && 64+int(l.Int64()) <= len(out) {
			return string(out[64 : 64+int(l.Int64())])
		}
	}
	return strings.TrimRight(string(out), "\x00")
}

// Pause flags seen in the wild. A true from an "enabled" flag means not paused.
var pauseViews = []struct {
	sel     []byte
	enabled bool
}{
	{sel("paused()"), false},
	{sel("isPaused()"), false},
	{sel("transfersPaused()"), false},
	{sel("transferEnabled()"), true},
}

func sel(sig string) []byte { return crypto.Keccak256([]byte(sig))[:4] }

// TokenPaused probes common pause views. known is false when the token
// exposes none of them.
func (c *Client) TokenPaused(ctx context.Context, token common.Address) (known, paused bool) {
	for _, v := range pauseViews {
		res, err := c.callContract(ctx, "pauseView", ethereum.CallMsg{To: &token, Data: v.sel})
		if err != nil || len(res) != 32 {
			continue
		}
		on := res[31] == 1
		if v.enabled {
			return true, !on
		}
		return true, on
	}
	return false, false
}
