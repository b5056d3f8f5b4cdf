package conversion

import (
	"math/big"
	"testing"
	"testing/quick"
)

// Round-trip truncation must never favor the depositor: converting to
// synthetic units and back can only lose dust, never create it.
func TestProperty_RoundTripNeverExceedsInput(t *testing.T) {
	property := func(amount uint64, rateRaw uint64) bool {
		if amount == 0 {
			return true
		}
		// keep the rate positive and inside a realistic band (1e4 .. 1e12)
		rate := big.NewInt(int64(rateRaw%1_000_000_000_000) + 10_000)
		x := new(big.Int).SetUint64(amount)

		synth := ToSynth(x, rate)
		back, err := ToReference(synth, rate)
		if err != nil {
			t.Logf("unexpected err: %v", err)
			return false
		}
		if back.Cmp(x) > 0 {
			t.Logf("round trip grew: x=%v synth=%v back=%v rate=%v", x, synth, back, rate)
			return false
		}
		return true
	}
	if err := quick.Check(property, &quick.Config{MaxCount: 5000}); err != nil {
		t.Fatal(err)
	}
}

// The truncation loss of a single round trip is bounded by one rate unit of
// the reference asset.
func TestProperty_RoundTripLossBounded(t *testing.T) {
	property := func(amount uint32, rateRaw uint32) bool {
		rate := big.NewInt(int64(rateRaw%100_000_000) + 100_000_000) // ≥ 1.0 at 8 decimals
		x := new(big.Int).SetUint64(uint64(amount))

		synth := ToSynth(x, rate)
		back, err := ToReference(synth, rate)
		if err != nil {
			return false
		}
		loss := new(big.Int).Sub(x, back)
		// worst case: one unit lost at ToSynth plus one at ToReference
		bound := new(big.Int).Quo(RateScale, rate)
		bound.Add(bound, big.NewInt(2))
		return loss.Sign() >= 0 && loss.Cmp(bound) <= 0
	}
	if err := quick.Check(property, &quick.Config{MaxCount: 5000}); err != nil {
		t.Fatal(err)
	}
}
