package transfers

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/ligun0805/safe-batch/internal/safecore"
)

// ParseAddress accepts 0x-prefixed hex. All-lower or all-upper input is taken
// as is; mixed case must carry a valid EIP-55 checksum.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) || !strings.HasPrefix(strings.ToLower(s), "0x") {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	a := common.HexToAddress(s)
	body := s[2:]
	if body != strings.ToLower(body) && body != strings.ToUpper(body) && a.Hex()[2:] != body {
		return common.Address{}, fmt.Errorf("bad EIP-55 checksum in %q (expected %s)", s, a.Hex())
	}
	return a, nil
}

// ParseAmount scales a whole-token decimal string to base units.
func ParseAmount(s string, decimals int) (*big.Int, error) {
	if decimals < 0 || decimals > 77 {
		return nil, fmt.Errorf("unsupported decimals %d", decimals)
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative amount %q", s)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", s, decimals)
	}
	return scaled.BigInt(), nil
}

// FormatUnits renders base units as a whole-token decimal string.
func FormatUnits(x *big.Int, decimals int) string {
	if x == nil {
		return "0"
	}
	return decimal.NewFromBigInt(x, int32(-decimals)).String()
}

// DecimalsSource reads a token's decimals() from chain.
type DecimalsSource interface {
	TokenDecimals(ctx context.Context, token common.Address) (int, error)
}

// Resolver caches decimals per token. A non-nil Override skips the chain.
type Resolver struct {
	Source   DecimalsSource
	Override *int

	mu    sync.Mutex
	cache map[common.Address]int
}

func (r *Resolver) Decimals(ctx context.Context, token common.Address) (int, error) {
	if r.Override != nil {
		return *r.Override, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.cache[token]; ok {
		return d, nil
	}
	if r.Source == nil {
		return 0, errors.New("no decimals source")
	}
	d, err := r.Source.TokenDecimals(ctx, token)
	if err != nil {
		return 0, err
	}
	if r.cache == nil {
		r.cache = map[common.Address]int{}
	}
	r.cache[token] = d
	return d, nil
}

// Resolve validates rows and scales amounts. Every bad row is reported;
// any failure makes the whole batch invalid.
func Resolve(ctx context.Context, rows []Row, res *Resolver) ([]safecore.Transfer, error) {
	out := make([]safecore.Transfer, 0, len(rows))
	var errs []error
	for _, row := range rows {
		t, err := resolveRow(ctx, row, res)
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", row.Line, err))
			continue
		}
		out = append(out, t)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", safecore.ErrInputParse, errors.Join(errs...))
	}
	return out, nil
}

func resolveRow(ctx context.Context, row Row, res *Resolver) (safecore.Transfer, error) {
	token, err := ParseAddress(row.Token)
	if err != nil {
		return safecore.Transfer{}, fmt.Errorf("TOKEN: %w", err)
	}
	if token == (common.Address{}) {
		return safecore.Transfer{}, errors.New("TOKEN is the zero address")
	}
	to, err := ParseAddress(row.To)
	if err != nil {
		return safecore.Transfer{}, fmt.Errorf("TO: %w", err)
	}
	if to == (common.Address{}) {
		return safecore.Transfer{}, errors.New("TO is the zero address")
	}
	dec, err := res.Decimals(ctx, token)
	if err != nil {
		return safecore.Transfer{}, fmt.Errorf("decimals for %s: %w", token.Hex(), err)
	}
	amount, err := ParseAmount(row.Amount, dec)
	if err != nil {
		return safecore.Transfer{}, fmt.Errorf("AMOUNT: %w", err)
	}
	return safecore.Transfer{Token: token, Recipient: to, Amount: amount, Line: row.Line}, nil
}
