package ledger

import (
	"math/big"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synthvault/govault/internal/domain"
)

func TestApplyDeposit_SplitsFeeExactly(t *testing.T) {
	l := New()
	net, fee, err := l.ApplyDeposit(big.NewInt(1000), 100) // 1%
	require.NoError(t, err)
	assert.Equal(t, int64(10), fee.Int64())
	assert.Equal(t, int64(990), net.Int64())

	dep, _, acc := l.Totals()
	assert.Equal(t, int64(990), dep.Int64())
	assert.Equal(t, int64(10), acc.Int64())
}

func TestApplyDeposit_ZeroFee(t *testing.T) {
	l := New()
	net, fee, err := l.ApplyDeposit(big.NewInt(1000), 0)
	require.NoError(t, err)
	assert.Zero(t, fee.Sign())
	assert.Equal(t, int64(1000), net.Int64())
}

func TestApplyDeposit_RejectsZero(t *testing.T) {
	l := New()
	_, _, err := l.ApplyDeposit(big.NewInt(0), 50)
	require.ErrorIs(t, err, domain.ErrZeroAmount)
}

func TestReverseDeposit_RestoresTotals(t *testing.T) {
	l := New()
	net, fee, err := l.ApplyDeposit(big.NewInt(1000), 100)
	require.NoError(t, err)

	l.ReverseDeposit(net, fee)

	dep, _, acc := l.Totals()
	assert.Zero(t, dep.Sign())
	assert.Zero(t, acc.Sign())
}

func TestReduceDeposited_FloorsAtZero(t *testing.T) {
	l := New()
	_, _, err := l.ApplyDeposit(big.NewInt(1000), 0)
	require.NoError(t, err)

	assert.False(t, l.ReduceDeposited(big.NewInt(600)))
	dep, _, _ := l.Totals()
	assert.Equal(t, int64(400), dep.Int64())

	assert.True(t, l.ReduceDeposited(big.NewInt(600)))
	dep, _, _ = l.Totals()
	assert.Zero(t, dep.Sign())
}

// Fee arithmetic is exact for any amount and any fee inside the policy range.
func TestProperty_FeeArithmeticExact(t *testing.T) {
	property := func(amountRaw uint64, feeRaw uint8) bool {
		amount := amountRaw%1_000_000_000_000 + 1 // [1, 1e12]
		feeBps := uint64(feeRaw) % 101            // [0, 100]

		l := New()
		net, fee, err := l.ApplyDeposit(new(big.Int).SetUint64(amount), feeBps)
		if err != nil {
			return false
		}
		wantFee := amount * feeBps / BpsDenominator
		if fee.Uint64() != wantFee || net.Uint64() != amount-wantFee {
			return false
		}
		dep, _, acc := l.Totals()
		return dep.Uint64() == amount-wantFee && acc.Uint64() == wantFee
	}
	if err := quick.Check(property, &quick.Config{MaxCount: 5000}); err != nil {
		t.Fatal(err)
	}
}

// With no fee or profit withdrawals, principal equals net deposits minus
// executed withdrawals, exactly.
func TestProperty_LedgerConservation(t *testing.T) {
	property := func(deposits []uint32, withdrawFrac uint8) bool {
		if len(deposits) == 0 {
			return true
		}
		l := New()
		sumNet := new(big.Int)
		for _, d := range deposits {
			if d == 0 {
				continue
			}
			net, _, err := l.ApplyDeposit(big.NewInt(int64(d)), 25)
			if err != nil {
				return false
			}
			sumNet.Add(sumNet, net)
		}
		// withdraw a fraction of what was deposited
		out := new(big.Int).Mul(sumNet, big.NewInt(int64(withdrawFrac)%100))
		out.Quo(out, big.NewInt(100))
		if out.Sign() > 0 {
			if err := l.RecordWithdrawalExecuted(out); err != nil {
				return false
			}
		}
		dep, _, _ := l.Totals()
		want := new(big.Int).Sub(sumNet, out)
		return dep.Cmp(want) == 0
	}
	if err := quick.Check(property, &quick.Config{MaxCount: 2000}); err != nil {
		t.Fatal(err)
	}
}

func TestRecordWithdrawalExecuted_Underflow(t *testing.T) {
	l := New()
	_, _, err := l.ApplyDeposit(big.NewInt(100), 0)
	require.NoError(t, err)
	require.Error(t, l.RecordWithdrawalExecuted(big.NewInt(101)))
}

func TestProfit(t *testing.T) {
	l := New()
	_, _, err := l.ApplyDeposit(big.NewInt(1000), 0)
	require.NoError(t, err)

	p, err := l.Profit(big.NewInt(1040))
	require.NoError(t, err)
	assert.Equal(t, int64(40), p.Int64())

	// a receipt balance below principal is a loss, not zero profit
	_, err = l.Profit(big.NewInt(999))
	var loss *domain.VenueLossError
	require.ErrorAs(t, err, &loss)
	assert.Equal(t, int64(999), loss.Receipt.Int64())
	assert.Equal(t, int64(1000), loss.Principal.Int64())
}

func TestTakeFee_Resets(t *testing.T) {
	l := New()
	_, _, err := l.ApplyDeposit(big.NewInt(10_000), 100)
	require.NoError(t, err)

	got := l.TakeFee()
	assert.Equal(t, int64(100), got.Int64())
	_, _, acc := l.Totals()
	assert.Zero(t, acc.Sign())
}

func TestSnapshotRoundTrip(t *testing.T) {
	l := New()
	_, _, err := l.ApplyDeposit(big.NewInt(5000), 50)
	require.NoError(t, err)
	l.RecordMint(big.NewInt(123456))

	raw, err := l.MarshalBinary()
	require.NoError(t, err)

	restored := New()
	require.NoError(t, restored.UnmarshalBinary(raw))

	d1, m1, f1 := l.Totals()
	d2, m2, f2 := restored.Totals()
	assert.Zero(t, d1.Cmp(d2))
	assert.Zero(t, m1.Cmp(m2))
	assert.Zero(t, f1.Cmp(f2))
}
