package domain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Sentinel errors shared across the vault. Every boundary violation is a hard
// stop: no clamping, no partial effects, no retries.
var (
	ErrZeroAmount         = fmt.Errorf("amount must be non-zero")
	ErrZeroAddress        = fmt.Errorf("address must be non-zero")
	ErrPriceFeedNotSet    = fmt.Errorf("price feed not configured for asset")
	ErrNegativeMantissa   = fmt.Errorf("pull oracle returned negative mantissa")
	ErrNoWithdrawalRequest = fmt.Errorf("no pending withdrawal request")
	ErrWithdrawalRequestPending = fmt.Errorf("withdrawal request already pending")
	ErrPaused             = fmt.Errorf("vault is paused")
)

// InvalidPriceError rejects a zero/negative or otherwise unusable oracle
// reading. Feed names the side ("push" or "pull") so monitoring can tell the
// two feeds apart.
type InvalidPriceError struct {
	Feed   string
	Price  *big.Int
	Reason string
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("invalid %s price %v: %s", e.Feed, e.Price, e.Reason)
}

// StalePriceError rejects an oracle reading older than the configured window.
type StalePriceError struct {
	Feed      string
	Age       int64 // seconds
	MaxAge    int64 // seconds
	Timestamp int64 // unix seconds reported by the feed
}

func (e *StalePriceError) Error() string {
	return fmt.Sprintf("stale %s price: age %ds exceeds max %ds (feed timestamp %d)",
		e.Feed, e.Age, e.MaxAge, e.Timestamp)
}

// ExponentOverflowError guards 256-bit fixed-point rescaling.
type ExponentOverflowError struct {
	Exponent int64
	Bound    int64
}

func (e *ExponentOverflowError) Error() string {
	return fmt.Sprintf("price exponent %d outside ±%d", e.Exponent, e.Bound)
}

// CooldownNotMetError tells the caller exactly when the pending request
// becomes executable.
type CooldownNotMetError struct {
	CurrentHeight uint64
	AvailableAt   uint64 // first height at which execution succeeds
}

func (e *CooldownNotMetError) Error() string {
	return fmt.Sprintf("cooldown not met: current height %d, executable at height %d",
		e.CurrentHeight, e.AvailableAt)
}

// InsufficientWithdrawnError surfaces a venue shortfall instead of silently
// reducing the payout.
type InsufficientWithdrawnError struct {
	Requested *big.Int
	Actual    *big.Int
}

func (e *InsufficientWithdrawnError) Error() string {
	return fmt.Sprintf("yield venue returned %v of requested %v", e.Actual, e.Requested)
}

// ExceedsPrincipalError rejects a withdrawal request whose reference amount
// is larger than the recorded principal. The rate moved against the vault
// since the deposit; paying it out would overstate the ledger later.
type ExceedsPrincipalError struct {
	Requested *big.Int
	Principal *big.Int
}

func (e *ExceedsPrincipalError) Error() string {
	return fmt.Sprintf("withdrawal of %v exceeds recorded principal %v", e.Requested, e.Principal)
}

// OutOfRangeError names the attempted value and both bounds so callers never
// need to re-derive the policy.
type OutOfRangeError struct {
	Param string
	Value uint64
	Min   uint64
	Max   uint64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%s=%d outside [%d, %d]", e.Param, e.Value, e.Min, e.Max)
}

// UnauthorizedError is returned uniformly for any missing capability.
type UnauthorizedError struct {
	Caller     common.Address
	Capability string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("caller %s lacks capability %q", e.Caller.Hex(), e.Capability)
}

// VenueLossError reports a receipt balance below recorded principal. This is
// an external loss and is never floored to zero.
type VenueLossError struct {
	Receipt   *big.Int
	Principal *big.Int
}

func (e *VenueLossError) Error() string {
	return fmt.Sprintf("yield venue loss: receipt balance %v below principal %v",
		e.Receipt, e.Principal)
}

// InvalidDecimalsError rejects a feed configuration with decimals outside the
// supported range.
type InvalidDecimalsError struct {
	Decimals uint8
	Max      uint8
}

func (e *InvalidDecimalsError) Error() string {
	return fmt.Sprintf("feed decimals %d outside (0, %d]", e.Decimals, e.Max)
}
