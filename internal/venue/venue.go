// Package venue abstracts the external yield-bearing pool that custody
// principal is supplied to.
package venue

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Pool is the surface the vault consumes. Supply moves reference asset into
// the pool on behalf of the vault; Withdraw pulls it back out and reports how
// much actually came back (partial liquidity is possible); ReceiptBalance is
// the pool's accounting of principal plus accrued interest for the owner.
type Pool interface {
	Supply(ctx context.Context, asset common.Address, amount *big.Int) error
	Withdraw(ctx context.Context, asset common.Address, amount *big.Int, to common.Address) (*big.Int, error)
	ReceiptBalance(ctx context.Context, owner common.Address) (*big.Int, error)
}
