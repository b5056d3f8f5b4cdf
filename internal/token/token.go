// Package token abstracts the two token collaborators: the reference asset
// the vault custodies, and the synthetic token it mints and burns.
package token

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PermitSignature is a signed allowance. Verification internals live with
// the token collaborator: the vault treats "verify signature then set
// allowance" as a trusted capability.
type PermitSignature struct {
	Value    *big.Int
	Deadline *big.Int
	V        uint8
	R        [32]byte
	S        [32]byte
}

// Reference is the stable deposit currency.
type Reference interface {
	TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error
	Transfer(ctx context.Context, to common.Address, amount *big.Int) error
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	Permit(ctx context.Context, owner, spender common.Address, sig PermitSignature) error
}

// Synth is the mint/burn-capable pegged balance ledger.
type Synth interface {
	Mint(ctx context.Context, to common.Address, amount *big.Int) error
	Burn(ctx context.Context, from common.Address, amount *big.Int) error
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	Permit(ctx context.Context, owner, spender common.Address, sig PermitSignature) error
}
