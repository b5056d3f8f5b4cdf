package venue

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Fake is an in-memory pool for tests and dry-run mode. It supports yield
// accrual (AccrueYield), losses (ApplyLoss) and constrained liquidity
// (SetLiquidityCap) so solvency edge cases can be exercised.
type Fake struct {
	mu sync.Mutex

	receipts     map[common.Address]*big.Int
	liquidityCap *big.Int // nil means unconstrained
	owner        common.Address
}

func NewFake(owner common.Address) *Fake {
	return &Fake{
		receipts: make(map[common.Address]*big.Int),
		owner:    owner,
	}
}

func (f *Fake) receipt(owner common.Address) *big.Int {
	if b, ok := f.receipts[owner]; ok {
		return b
	}
	b := new(big.Int)
	f.receipts[owner] = b
	return b
}

func (f *Fake) Supply(_ context.Context, _ common.Address, amount *big.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.receipt(f.owner)
	b.Add(b, amount)
	return nil
}

// Withdraw returns min(amount, receipt, liquidity cap), mirroring a pool
// under liquidity pressure.
func (f *Fake) Withdraw(_ context.Context, _ common.Address, amount *big.Int, _ common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.receipt(f.owner)
	actual := new(big.Int).Set(amount)
	if actual.Cmp(b) > 0 {
		actual.Set(b)
	}
	if f.liquidityCap != nil && actual.Cmp(f.liquidityCap) > 0 {
		actual.Set(f.liquidityCap)
	}
	b.Sub(b, actual)
	return actual, nil
}

func (f *Fake) ReceiptBalance(_ context.Context, owner common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.receipt(owner)), nil
}

// AccrueYield grows the owner's receipt balance, simulating interest.
func (f *Fake) AccrueYield(amount *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.receipt(f.owner)
	b.Add(b, amount)
}

// ApplyLoss shrinks the owner's receipt balance, simulating a venue loss.
func (f *Fake) ApplyLoss(amount *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.receipt(f.owner)
	b.Sub(b, amount)
	if b.Sign() < 0 {
		b.SetInt64(0)
	}
}

// SetLiquidityCap bounds what a single Withdraw can return. Nil removes the
// cap.
func (f *Fake) SetLiquidityCap(cap *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cap == nil {
		f.liquidityCap = nil
		return
	}
	f.liquidityCap = new(big.Int).Set(cap)
}
