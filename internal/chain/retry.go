package chain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/sethvargo/go-retry"
)

const (
	readAttempts = 3
	readBackoff  = 200 * time.Millisecond
)

func readBackoffPolicy() retry.Backoff {
	return retry.WithMaxRetries(readAttempts-1, retry.NewExponential(readBackoff))
}

// withRetry runs a read-only call, retrying transport hiccups and rate limits.
// Reverts and other deterministic failures return immediately. Never use for sends.
func withRetry[T any](ctx context.Context, c *Client, method string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := retry.Do(ctx, readBackoffPolicy(), func(ctx context.Context) error {
		start := time.Now()
		v, err := fn(ctx)
		c.observe(method, start, err)
		if err != nil {
			if isRateLimitError(err) || isTransientNetworkError(err) {
				c.log.Debug("rpc retry", "method", method, "class", ClassifyRPCError(err), "err", err)
				return retry.RetryableError(err)
			}
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// callContract is eth_call at latest with retry.
func (c *Client) callContract(ctx context.Context, method string, msg ethereum.CallMsg) ([]byte, error) {
	return withRetry(ctx, c, method, func(ctx context.Context) ([]byte, error) {
		return c.ec.CallContract(ctx, msg, nil)
	})
}
