// Package gasoracle reads EIP-1559 fee suggestions from a Polygon-style gas station.
//
// Sample usage:
//
//	station := &gasoracle.Station{URL: gasoracle.PolygonMainnet, Speed: gasoracle.Fast}
//	latest, err := station.Latest(ctx)
//	tip, maxFee, err := station.SuggestFees(ctx)
package gasoracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
)

const (
	PolygonMainnet = "https://gasstation.polygon.technology/v2"
	PolygonAmoy    = "https://gasstation.polygon.technology/amoy"
)

type Speed string

const (
	SafeLow  Speed = "safeLow"
	Standard Speed = "standard"
	Fast     Speed = "fast"
)

func ParseSpeed(s string) (Speed, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard", "average":
		return Standard, nil
	case "safelow", "slow", "low":
		return SafeLow, nil
	case "fast":
		return Fast, nil
	}
	return "", fmt.Errorf("unknown gas speed %q (want safelow|standard|fast)", s)
}

// Tier prices are in gwei.
type Tier struct {
	MaxPriorityFee float64 `json:"maxPriorityFee"`
	MaxFee         float64 `json:"maxFee"`
}

type Latest struct {
	SafeLow          Tier    `json:"safeLow"`
	Standard         Tier    `json:"standard"`
	Fast             Tier    `json:"fast"`
	EstimatedBaseFee float64 `json:"estimatedBaseFee"`
	BlockTime        float64 `json:"blockTime"`
	BlockNumber      int64   `json:"blockNumber"`
}

func (l *Latest) Tier(s Speed) Tier {
	switch s {
	case SafeLow:
		return l.SafeLow
	case Fast:
		return l.Fast
	}
	return l.Standard
}

type Station struct {
	URL     string
	Speed   Speed
	Timeout time.Duration
	Client  *http.Client
}

func (s *Station) Latest(ctx context.Context) (*Latest, error) {
	url := s.URL
	if url == "" {
		url = PolygonMainnet
	}
	var latest Latest
	b := retry.WithMaxRetries(2, retry.NewExponential(250*time.Millisecond))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		body, status, err := s.fetch(ctx, url)
		if err != nil {
			return retry.RetryableError(err)
		}
		if status >= 500 || status == http.StatusTooManyRequests {
			return retry.RetryableError(fmt.Errorf("gas station: http %d", status))
		}
		if status != http.StatusOK {
			return fmt.Errorf("gas station: http %d", status)
		}
		return json.Unmarshal(body, &latest)
	})
	if err != nil {
		return nil, err
	}
	if latest.Standard.MaxPriorityFee <= 0 && latest.Fast.MaxPriorityFee <= 0 {
		return nil, fmt.Errorf("gas station: no fee data in response")
	}
	return &latest, nil
}

// SuggestFees returns the configured tier converted to wei.
func (s *Station) SuggestFees(ctx context.Context) (tip, maxFee *big.Int, err error) {
	latest, err := s.Latest(ctx)
	if err != nil {
		return nil, nil, err
	}
	t := latest.Tier(s.Speed)
	return GweiToWei(t.MaxPriorityFee), GweiToWei(t.MaxFee), nil
}

// GweiToWei converts a fractional gwei price without float rounding drift.
func GweiToWei(g float64) *big.Int {
	return decimal.NewFromFloat(g).Shift(9).Truncate(0).BigInt()
}

func (s *Station) fetch(ctx context.Context, url string) ([]byte, int, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	hc := s.Client
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return body, resp.StatusCode, err
}
