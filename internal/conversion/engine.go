// Package conversion composes the two oracle readings into a single
// reference-asset → synthetic-unit exchange rate and applies it to amounts.
// Everything here is pure: no state, no I/O.
package conversion

import (
	"math/big"

	"github.com/synthvault/govault/internal/domain"
	"github.com/synthvault/govault/internal/oracle"
)

// RateDecimals is the fixed precision of the composed exchange rate.
const RateDecimals = 8

// MaxCombinedExponent bounds the pull-feed rescaling so the intermediate
// products stay well inside 256 bits.
const MaxCombinedExponent = 58

// RateScale is 10^RateDecimals.
var RateScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(RateDecimals), nil)

func pow10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}

// scalePush rescales a push reading to RateDecimals, truncating toward zero.
func scalePush(r oracle.PushReading) (*big.Int, error) {
	if r.Price == nil || r.Price.Sign() <= 0 {
		return nil, &domain.InvalidPriceError{Feed: "push", Price: r.Price, Reason: "zero or negative"}
	}
	d := int64(r.Decimals)
	switch {
	case d == RateDecimals:
		return new(big.Int).Set(r.Price), nil
	case d < RateDecimals:
		return new(big.Int).Mul(r.Price, pow10(RateDecimals-d)), nil
	default:
		scaled := new(big.Int).Quo(r.Price, pow10(d-RateDecimals))
		if scaled.Sign() == 0 {
			return nil, &domain.InvalidPriceError{Feed: "push", Price: r.Price, Reason: "rounds to zero at rate precision"}
		}
		return scaled, nil
	}
}

// scalePull converts the pull feed's native (mantissa, exponent) form to
// RateDecimals. The combined exponent is capped so a hostile feed cannot
// force an overflow-sized power of ten.
func scalePull(r oracle.PullReading) (*big.Int, error) {
	if r.Price < 0 {
		return nil, domain.ErrNegativeMantissa
	}
	if r.Price == 0 {
		return nil, &domain.InvalidPriceError{Feed: "pull", Price: big.NewInt(0), Reason: "zero"}
	}
	combined := int64(r.Expo) + RateDecimals
	if combined > MaxCombinedExponent || combined < -MaxCombinedExponent {
		return nil, &domain.ExponentOverflowError{Exponent: combined, Bound: MaxCombinedExponent}
	}
	mantissa := big.NewInt(r.Price)
	if combined >= 0 {
		return new(big.Int).Mul(mantissa, pow10(combined)), nil
	}
	scaled := new(big.Int).Quo(mantissa, pow10(-combined))
	if scaled.Sign() == 0 {
		return nil, &domain.InvalidPriceError{Feed: "pull", Price: mantissa, Reason: "rounds to zero at rate precision"}
	}
	return scaled, nil
}

// validateTimes rejects stale or future-dated readings. The staleness window
// applies to the pull feed only; the push feed keeps reporting on-chain and
// is checked for future timestamps.
func validateTimes(push oracle.PushReading, pull oracle.PullReading, now, maxAge int64) error {
	if push.UpdatedAt > now {
		return &domain.InvalidPriceError{Feed: "push", Price: push.Price, Reason: "future timestamp"}
	}
	if pull.PublishTime > now {
		return &domain.InvalidPriceError{Feed: "pull", Price: big.NewInt(pull.Price), Reason: "future timestamp"}
	}
	if age := now - pull.PublishTime; age > maxAge {
		return &domain.StalePriceError{Feed: "pull", Age: age, MaxAge: maxAge, Timestamp: pull.PublishTime}
	}
	return nil
}

// Rate composes the reference-asset/USD push reading and the USD/synthetic
// pull reading into the reference-asset price expressed directly in synthetic
// units, at RateDecimals fixed precision.
func Rate(push oracle.PushReading, pull oracle.PullReading, now, maxAge int64) (*big.Int, error) {
	if err := validateTimes(push, pull, now, maxAge); err != nil {
		return nil, err
	}
	a, err := scalePush(push)
	if err != nil {
		return nil, err
	}
	b, err := scalePull(pull)
	if err != nil {
		return nil, err
	}
	rate := new(big.Int).Mul(a, b)
	rate.Quo(rate, RateScale)
	if rate.Sign() == 0 {
		return nil, &domain.InvalidPriceError{Feed: "composed", Price: rate, Reason: "rate truncates to zero"}
	}
	return rate, nil
}

// ToSynth converts a reference-asset amount to synthetic units, truncating
// toward zero. It must never round up: rounding up would over-mint.
func ToSynth(referenceAmount, rate *big.Int) *big.Int {
	out := new(big.Int).Mul(referenceAmount, rate)
	return out.Quo(out, RateScale)
}

// ToReference converts a synthetic amount back to the reference asset,
// truncating toward zero. It must never round up: rounding up would promise
// more reference asset than the rate covers.
func ToReference(synthAmount, rate *big.Int) (*big.Int, error) {
	if rate == nil || rate.Sign() <= 0 {
		return nil, &domain.InvalidPriceError{Feed: "composed", Price: rate, Reason: "zero or negative rate"}
	}
	out := new(big.Int).Mul(synthAmount, RateScale)
	return out.Quo(out, rate), nil
}
