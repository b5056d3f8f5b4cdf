// Package ledger keeps the vault's own bookkeeping of principal, accrued
// fees and minted synthetic supply. The totals are the contract-side view:
// principal is always ≤ the yield venue's receipt balance, and the gap is
// unrealized profit.
package ledger

import (
	"encoding/json"
	"math/big"
	"sync"

	"github.com/pkg/errors"

	"github.com/synthvault/govault/internal/domain"
)

// BpsDenominator converts basis points to a fraction.
const BpsDenominator = 10_000

// Ledger is safe for concurrent use. All amounts are non-negative.
type Ledger struct {
	mu sync.Mutex

	totalReferenceDeposited *big.Int // net-of-fee principal held at the venue
	totalSynthMinted        *big.Int
	totalFeeAccrued         *big.Int
}

func New() *Ledger {
	return &Ledger{
		totalReferenceDeposited: new(big.Int),
		totalSynthMinted:        new(big.Int),
		totalFeeAccrued:         new(big.Int),
	}
}

// ApplyDeposit splits a gross deposit into fee and net principal and
// accumulates both. Fee truncates toward zero, so the depositor keeps the
// rounding dust.
func (l *Ledger) ApplyDeposit(gross *big.Int, feeBps uint64) (net, fee *big.Int, err error) {
	if gross == nil || gross.Sign() <= 0 {
		return nil, nil, domain.ErrZeroAmount
	}
	fee = new(big.Int).Mul(gross, new(big.Int).SetUint64(feeBps))
	fee.Quo(fee, big.NewInt(BpsDenominator))
	net = new(big.Int).Sub(gross, fee)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.totalFeeAccrued.Add(l.totalFeeAccrued, fee)
	l.totalReferenceDeposited.Add(l.totalReferenceDeposited, net)
	return net, fee, nil
}

// ReverseDeposit backs out a deposit whose downstream effects could not be
// completed: the net principal and the fee leave the totals again, so a
// refunded deposit is invisible to the ledger.
func (l *Ledger) ReverseDeposit(net, fee *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.totalFeeAccrued.Sub(l.totalFeeAccrued, fee)
	l.totalReferenceDeposited.Sub(l.totalReferenceDeposited, net)
}

// RecordMint accumulates newly minted synthetic supply.
func (l *Ledger) RecordMint(synth *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.totalSynthMinted.Add(l.totalSynthMinted, synth)
}

// RecordBurn subtracts burned synthetic supply.
func (l *Ledger) RecordBurn(synth *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.totalSynthMinted.Sub(l.totalSynthMinted, synth)
}

// RecordWithdrawalExecuted releases principal that has been paid back out.
func (l *Ledger) RecordWithdrawalExecuted(referenceAmount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.totalReferenceDeposited.Cmp(referenceAmount) < 0 {
		return errors.Errorf("ledger underflow: withdrawing %v of %v principal",
			referenceAmount, l.totalReferenceDeposited)
	}
	l.totalReferenceDeposited.Sub(l.totalReferenceDeposited, referenceAmount)
	return nil
}

// ReduceDeposited decrements principal, flooring at zero. It reports whether
// flooring occurred. Used when a payout has already happened and failing the
// caller would be worse than clamping the bookkeeping.
func (l *Ledger) ReduceDeposited(referenceAmount *big.Int) (clamped bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.totalReferenceDeposited.Cmp(referenceAmount) < 0 {
		l.totalReferenceDeposited.SetInt64(0)
		return true
	}
	l.totalReferenceDeposited.Sub(l.totalReferenceDeposited, referenceAmount)
	return false
}

// Profit is the venue receipt balance minus recorded principal. A negative
// result means the venue lost principal; that is surfaced, never floored.
func (l *Ledger) Profit(receiptBalance *big.Int) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if receiptBalance.Cmp(l.totalReferenceDeposited) < 0 {
		return nil, &domain.VenueLossError{
			Receipt:   new(big.Int).Set(receiptBalance),
			Principal: new(big.Int).Set(l.totalReferenceDeposited),
		}
	}
	return new(big.Int).Sub(receiptBalance, l.totalReferenceDeposited), nil
}

// TakeFee returns the entire accrued fee and resets it to zero. The caller
// is responsible for actually transferring the amount.
func (l *Ledger) TakeFee() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := new(big.Int).Set(l.totalFeeAccrued)
	l.totalFeeAccrued.SetInt64(0)
	return out
}

// CreditFee puts fee back after a failed payout, so TakeFee + transfer stays
// all-or-nothing.
func (l *Ledger) CreditFee(amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.totalFeeAccrued.Add(l.totalFeeAccrued, amount)
}

// Totals returns a consistent copy of all three counters.
func (l *Ledger) Totals() (deposited, minted, feeAccrued *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.totalReferenceDeposited),
		new(big.Int).Set(l.totalSynthMinted),
		new(big.Int).Set(l.totalFeeAccrued)
}

type snapshot struct {
	Deposited  string `json:"deposited"`
	Minted     string `json:"minted"`
	FeeAccrued string `json:"feeAccrued"`
}

// MarshalBinary serializes the totals for persistence.
func (l *Ledger) MarshalBinary() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return json.Marshal(snapshot{
		Deposited:  l.totalReferenceDeposited.String(),
		Minted:     l.totalSynthMinted.String(),
		FeeAccrued: l.totalFeeAccrued.String(),
	})
}

// UnmarshalBinary restores totals from a snapshot.
func (l *Ledger) UnmarshalBinary(data []byte) error {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrap(err, "ledger snapshot")
	}
	dep, ok := new(big.Int).SetString(s.Deposited, 10)
	if !ok {
		return errors.Errorf("ledger snapshot: bad deposited %q", s.Deposited)
	}
	minted, ok := new(big.Int).SetString(s.Minted, 10)
	if !ok {
		return errors.Errorf("ledger snapshot: bad minted %q", s.Minted)
	}
	fee, ok := new(big.Int).SetString(s.FeeAccrued, 10)
	if !ok {
		return errors.Errorf("ledger snapshot: bad feeAccrued %q", s.FeeAccrued)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.totalReferenceDeposited = dep
	l.totalSynthMinted = minted
	l.totalFeeAccrued = fee
	return nil
}
