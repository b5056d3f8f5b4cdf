// Package chain provides the block-height source the cooldown gate is
// measured against.
package chain

import (
	"context"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
)

// EthHeights reads the current height over JSON-RPC.
type EthHeights struct {
	client *ethclient.Client
}

func NewEthHeights(rpcURL string) (*EthHeights, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, errors.Wrap(err, "chain: dial rpc")
	}
	return &EthHeights{client: client}, nil
}

func (h *EthHeights) CurrentHeight(ctx context.Context) (uint64, error) {
	n, err := h.client.BlockNumber(ctx)
	return n, errors.Wrap(err, "chain: block number")
}

// Counter is a manual height source for dry-run mode: each Advance call
// moves the clock one block.
type Counter struct {
	height atomic.Uint64
}

func NewCounter(start uint64) *Counter {
	c := &Counter{}
	c.height.Store(start)
	return c
}

func (c *Counter) CurrentHeight(context.Context) (uint64, error) {
	return c.height.Load(), nil
}

func (c *Counter) Advance() uint64 {
	return c.height.Add(1)
}
