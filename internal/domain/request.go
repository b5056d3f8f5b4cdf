package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// WithdrawalRequest is the single pending redemption slot of an account.
// It is created by a withdrawal request and deleted (never mutated) when the
// request is executed after the cooldown.
type WithdrawalRequest struct {
	Account         common.Address
	SynthAmount     *big.Int // synthetic units burned at request time
	ReferenceAmount *big.Int // reference asset reserved in custody
	RequestHeight   uint64   // block height the request was created at
}

// IsZero reports whether the slot is empty. An empty slot is the NONE state;
// a populated one is PENDING.
func (r *WithdrawalRequest) IsZero() bool {
	if r == nil {
		return true
	}
	return (r.SynthAmount == nil || r.SynthAmount.Sign() == 0) &&
		(r.ReferenceAmount == nil || r.ReferenceAmount.Sign() == 0)
}

// Clone returns a deep copy so callers cannot alias the stored amounts.
func (r *WithdrawalRequest) Clone() *WithdrawalRequest {
	if r == nil {
		return nil
	}
	out := &WithdrawalRequest{
		Account:       r.Account,
		RequestHeight: r.RequestHeight,
	}
	if r.SynthAmount != nil {
		out.SynthAmount = new(big.Int).Set(r.SynthAmount)
	}
	if r.ReferenceAmount != nil {
		out.ReferenceAmount = new(big.Int).Set(r.ReferenceAmount)
	}
	return out
}
