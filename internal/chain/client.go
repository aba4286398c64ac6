package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/ligun0805/safe-batch/internal/safecore"
)

// Options configures a Client. Only RPCURL and Safe are required for reads;
// Executor is needed to send execTransaction.
type Options struct {
	RPCURL      string
	ChainID     *big.Int // read from the node when nil
	Safe        common.Address
	Executor    *safecore.Credential
	Fees        FeeOptions
	HTTPTimeout time.Duration
	ReceiptPoll time.Duration
	Logger      *slog.Logger
	// OnCall observes every RPC round trip (method, latency, error).
	OnCall func(method string, d time.Duration, err error)
}

// Client talks to one Safe through a JSON-RPC node.
type Client struct {
	ec      *ethclient.Client
	chainID *big.Int
	safe    common.Address
	exec    *safecore.Credential
	fees    FeeOptions
	poll    time.Duration
	log     *slog.Logger
	onCall  func(string, time.Duration, error)

	mu              sync.Mutex
	oracleDownUntil time.Time
}

// Dial connects with keep-alives and a bounded HTTP timeout.
func Dial(ctx context.Context, o Options) (*Client, error) {
	if o.RPCURL == "" {
		return nil, fmt.Errorf("%w: rpc url is empty", safecore.ErrConfig)
	}
	timeout := o.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:    100,
		IdleConnTimeout: 90 * time.Second,
	}
	rc, err := rpc.DialOptions(ctx, o.RPCURL, rpc.WithHTTPClient(&http.Client{Timeout: timeout, Transport: transport}))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", o.RPCURL, err)
	}
	c := NewClient(ethclient.NewClient(rc), o)
	if c.chainID == nil {
		id, err := c.ec.ChainID(ctx)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("chain id: %w", err)
		}
		c.chainID = id
	}
	return c, nil
}

// NewClient wraps an existing ethclient.
func NewClient(ec *ethclient.Client, o Options) *Client {
	log := o.Logger
	if log == nil {
		log = slog.Default()
	}
	poll := o.ReceiptPoll
	if poll <= 0 {
		poll = 2 * time.Second
	}
	c := &Client{
		ec:     ec,
		safe:   o.Safe,
		exec:   o.Executor,
		fees:   o.Fees.withDefaults(),
		poll:   poll,
		log:    log,
		onCall: o.OnCall,
	}
	if o.ChainID != nil {
		c.chainID = new(big.Int).Set(o.ChainID)
	}
	return c
}

func (c *Client) Close() { c.ec.Close() }

func (c *Client) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

func (c *Client) Safe() common.Address { return c.safe }

func (c *Client) Eth() *ethclient.Client { return c.ec }

func (c *Client) observe(method string, start time.Time, err error) {
	if c.onCall != nil {
		c.onCall(method, time.Since(start), err)
	}
}

var _ safecore.ChainClient = (*Client)(nil)
