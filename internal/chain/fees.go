package chain

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ligun0805/safe-batch/internal/gasoracle"
)

// FeeOracle is an external tip source (e.g. a gas station).
type FeeOracle interface {
	SuggestFees(ctx context.Context) (tip, maxFee *big.Int, err error)
}

type FeeOptions struct {
	// BaseMul multiplies the latest base fee when computing maxFee.
	BaseMul int64
	// TipGwei is the fallback tip when neither oracle nor node answers.
	TipGwei int64
	Oracle  FeeOracle
	// OracleTimeout bounds one oracle query. It is further capped to a third
	// of the caller's remaining deadline so the node fallback still fits.
	OracleTimeout time.Duration
	// OracleCooldown skips the oracle for this long after it fails.
	OracleCooldown time.Duration
}

func (o FeeOptions) withDefaults() FeeOptions {
	if o.BaseMul <= 0 {
		o.BaseMul = 2
	}
	if o.TipGwei <= 0 {
		o.TipGwei = 30
	}
	if o.OracleTimeout <= 0 {
		o.OracleTimeout = 5 * time.Second
	}
	if o.OracleCooldown <= 0 {
		o.OracleCooldown = time.Minute
	}
	return o
}

// FeeQuote is the EIP-1559 pricing for the next outer transaction.
type FeeQuote struct {
	BaseFee *big.Int
	Tip     *big.Int
	MaxFee  *big.Int
	Source  string
}

// QuoteFees returns tip and maxFee = baseFee*BaseMul + tip, never below the oracle's maxFee.
func (c *Client) QuoteFees(ctx context.Context) (FeeQuote, error) {
	base, err := c.latestBaseFee(ctx)
	if err != nil {
		return FeeQuote{}, err
	}
	q := FeeQuote{BaseFee: base}
	var oracleMax *big.Int
	if c.fees.Oracle != nil && c.oracleUsable() {
		octx, cancel := c.oracleContext(ctx)
		tip, maxFee, err := c.fees.Oracle.SuggestFees(octx)
		cancel()
		if err == nil && tip != nil {
			q.Tip, oracleMax, q.Source = tip, maxFee, "oracle"
		} else {
			c.oracleFailed()
			c.log.Warn("gas oracle unavailable, using node tip", "err", err, "retryIn", c.fees.OracleCooldown)
		}
	}
	if q.Tip == nil {
		tip, err := withRetry(ctx, c, "eth_maxPriorityFeePerGas", c.ec.SuggestGasTipCap)
		if err == nil {
			q.Tip, q.Source = tip, "node"
		} else {
			q.Tip, q.Source = gasoracle.GweiToWei(float64(c.fees.TipGwei)), "fixed"
		}
	}
	q.MaxFee = new(big.Int).Mul(base, big.NewInt(c.fees.BaseMul))
	q.MaxFee.Add(q.MaxFee, q.Tip)
	if oracleMax != nil && oracleMax.Cmp(q.MaxFee) > 0 {
		q.MaxFee = new(big.Int).Set(oracleMax)
	}
	return q, nil
}

func (c *Client) oracleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	budget := c.fees.OracleTimeout
	if dl, ok := ctx.Deadline(); ok {
		if share := time.Until(dl) / 3; share < budget {
			budget = share
		}
	}
	return context.WithTimeout(ctx, budget)
}

func (c *Client) oracleUsable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().After(c.oracleDownUntil)
}

func (c *Client) oracleFailed() {
	c.mu.Lock()
	c.oracleDownUntil = time.Now().Add(c.fees.OracleCooldown)
	c.mu.Unlock()
}

// Latest base fee.
func (c *Client) latestBaseFee(ctx context.Context) (*big.Int, error) {
	h, err := withRetry(ctx, c, "eth_getBlockByNumber", func(ctx context.Context) (*types.Header, error) {
		return c.ec.HeaderByNumber(ctx, nil)
	})
	if err != nil {
		return nil, err
	}
	if h.BaseFee == nil {
		return nil, errors.New("no baseFee (pre-1559?)")
	}
	return new(big.Int).Set(h.BaseFee), nil
}

// RewardStats aggregates min/avg/max priority fee for one percentile.
type RewardStats struct {
	Min *big.Int
	Avg *big.Int
	Max *big.Int
}

// FeeHistoryStats returns min/avg/max over the last N blocks for given percentiles.
func (c *Client) FeeHistoryStats(ctx context.Context, blocks int, percentiles []float64) (map[float64]RewardStats, error) {
	if blocks <= 0 {
		blocks = 100
	}
	if len(percentiles) == 0 {
		percentiles = []float64{50, 95, 99}
	}
	sort.Float64s(percentiles)
	fh, err := c.ec.FeeHistory(ctx, uint64(blocks), nil, percentiles)
	if err != nil {
		return nil, err
	}
	if len(fh.Reward) == 0 {
		return nil, errors.New("feeHistory: empty reward")
	}
	res := make(map[float64]RewardStats, len(percentiles))
	for j, p := range percentiles {
		st := RewardStats{Avg: new(big.Int), Max: new(big.Int)}
		n := 0
		for _, row := range fh.Reward {
			if j >= len(row) || row[j] == nil {
				continue
			}
			v := row[j]
			if st.Min == nil || v.Cmp(st.Min) < 0 {
				st.Min = new(big.Int).Set(v)
			}
			if v.Cmp(st.Max) > 0 {
				st.Max = new(big.Int).Set(v)
			}
			st.Avg.Add(st.Avg, v)
			n++
		}
		if n > 0 {
			st.Avg.Div(st.Avg, big.NewInt(int64(n)))
		}
		if st.Min == nil {
			st.Min = new(big.Int)
		}
		res[p] = st
	}
	return res, nil
}
