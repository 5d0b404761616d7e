package evm

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"rrpnode/internal/txbuilder"
)

// Client rate limits and meters calls to an underlying chain client.
type Client struct {
	inner   txbuilder.ChainClient
	limiter *Limiter
	chainID string
	closer  func()
}

var _ txbuilder.ChainClient = (*Client)(nil)

func Dial(ctx context.Context, url, chainID string, rps float64, burst int) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	c := Wrap(ec, chainID, NewLimiter(rps, burst, chainID))
	c.closer = ec.Close
	return c, nil
}

func Wrap(inner txbuilder.ChainClient, chainID string, limiter *Limiter) *Client {
	return &Client{inner: inner, limiter: limiter, chainID: chainID}
}

func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	n, err := c.inner.BlockNumber(ctx)
	recordCall(c.chainID, "eth_blockNumber", err)
	return n, err
}

func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	h, err := c.inner.HeaderByNumber(ctx, number)
	recordCall(c.chainID, "eth_getBlockByNumber", err)
	return h, err
}

func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	v, err := c.inner.SuggestGasPrice(ctx)
	recordCall(c.chainID, "eth_gasPrice", err)
	return v, err
}

func (c *Client) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	v, err := c.inner.SuggestGasTipCap(ctx)
	recordCall(c.chainID, "eth_maxPriorityFeePerGas", err)
	return v, err
}

func (c *Client) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	v, err := c.inner.BalanceAt(ctx, account, blockNumber)
	recordCall(c.chainID, "eth_getBalance", err)
	return v, err
}

func (c *Client) NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	v, err := c.inner.NonceAt(ctx, account, blockNumber)
	recordCall(c.chainID, "eth_getTransactionCount", err)
	return v, err
}

func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	v, err := c.inner.EstimateGas(ctx, msg)
	recordCall(c.chainID, "eth_estimateGas", err)
	return v, err
}

func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	v, err := c.inner.CallContract(ctx, msg, blockNumber)
	recordCall(c.chainID, "eth_call", err)
	return v, err
}

func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	err := c.inner.SendTransaction(ctx, tx)
	recordCall(c.chainID, "eth_sendRawTransaction", err)
	return err
}
