package safecore

import (
	"context"
	"fmt"
	"strings"
)

type GasStrategy string

const (
	GasFixed GasStrategy = "fixed"
	GasQuery GasStrategy = "query"
)

// DefaultFixedGasLimit covers execTransaction around a plain ERC20 transfer.
const DefaultFixedGasLimit uint64 = 150_000

func ParseGasStrategy(s string) (GasStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "query", "estimate", "chain":
		return GasQuery, nil
	case "fixed", "constant":
		return GasFixed, nil
	}
	return "", fmt.Errorf("%w: unknown gas policy %q (want fixed|query)", ErrConfig, s)
}

// GasPolicy picks the outer gas limit for each execTransaction.
// In query mode Limit, when set, caps the buffered estimate.
type GasPolicy struct {
	Strategy  GasStrategy
	Limit     uint64
	BufferPct int64
}

func (p GasPolicy) Validate() error {
	switch p.Strategy {
	case GasFixed:
		if p.Limit == 0 {
			return fmt.Errorf("%w: fixed gas policy needs a gas limit", ErrConfig)
		}
	case GasQuery:
		if p.BufferPct < 0 {
			return fmt.Errorf("%w: negative gas buffer", ErrConfig)
		}
	default:
		return fmt.Errorf("%w: unknown gas policy %q", ErrConfig, p.Strategy)
	}
	return nil
}

func (p GasPolicy) String() string {
	if p.Strategy == GasFixed {
		return fmt.Sprintf("fixed(%d)", p.Limit)
	}
	if p.Limit > 0 {
		return fmt.Sprintf("query(+%d%%, cap %d)", p.BufferPct, p.Limit)
	}
	return fmt.Sprintf("query(+%d%%)", p.BufferPct)
}

// GasLimit resolves the limit for call. Estimation errors come back unwrapped.
func (p GasPolicy) GasLimit(ctx context.Context, cc ChainClient, call ExecCall) (uint64, error) {
	if p.Strategy == GasFixed {
		return p.Limit, nil
	}
	est, err := cc.EstimateExec(ctx, call)
	if err != nil {
		return 0, err
	}
	g := est + est*uint64(p.BufferPct)/100
	if p.Limit > 0 && g > p.Limit {
		g = p.Limit
	}
	return g, nil
}
