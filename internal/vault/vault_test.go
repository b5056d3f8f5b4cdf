package vault

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synthvault/govault/internal/domain"
	"github.com/synthvault/govault/internal/events"
	"github.com/synthvault/govault/internal/ledger"
	"github.com/synthvault/govault/internal/oracle"
	"github.com/synthvault/govault/internal/reqstore"
	"github.com/synthvault/govault/internal/token"
	"github.com/synthvault/govault/internal/venue"
)

const testNow = int64(1_700_000_000)

var (
	vaultAddr = common.HexToAddress("0x0000000000000000000000000000000000000f00")
	assetAddr = common.HexToAddress("0x0000000000000000000000000000000000000aaa")
	feedAddr  = common.HexToAddress("0x0000000000000000000000000000000000000fee")
	admin     = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	alice     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob       = common.HexToAddress("0x00000000000000000000000000000000000000b0")
)

type staticPush struct {
	reading oracle.PushReading
	err     error
}

func (s *staticPush) LatestReading(context.Context) (oracle.PushReading, error) {
	return s.reading, s.err
}

type staticPull struct {
	reading oracle.PullReading
	err     error
}

func (s *staticPull) ReadingNoOlderThan(context.Context, int64) (oracle.PullReading, error) {
	return s.reading, s.err
}

type fakeHeights struct {
	height uint64
}

func (f *fakeHeights) CurrentHeight(context.Context) (uint64, error) {
	return f.height, nil
}

type fixture struct {
	vault   *Vault
	ref     *token.FakeERC20
	synth   *token.FakeERC20
	pool    *venue.Fake
	heights *fakeHeights
	ledger  *ledger.Ledger
	pull    *staticPull
	push    *staticPush
}

// newFixture builds a vault at 1 unit = 150.0 synthetic units with the given
// fee, cooldown 10 blocks, staleness window 60s. Hooks may wrap collaborators
// before the vault is built, e.g. to inject failures.
func newFixture(t *testing.T, feeBps uint64, hooks ...func(*Deps)) *fixture {
	t.Helper()
	store, err := reqstore.Open(reqstore.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{
		ref:     token.NewFakeERC20(),
		synth:   token.NewFakeERC20(),
		pool:    venue.NewFake(vaultAddr),
		heights: &fakeHeights{height: 100},
		ledger:  ledger.New(),
		push: &staticPush{reading: oracle.PushReading{
			Price: big.NewInt(100_000_000), Decimals: 8, UpdatedAt: testNow - 1,
		}},
		pull: &staticPull{reading: oracle.PullReading{
			Price: 15_000_000_000, Expo: -8, PublishTime: testNow - 1,
		}},
	}
	deps := Deps{
		Ledger:    f.ledger,
		Store:     store,
		Events:    events.NewLog(),
		Heights:   f.heights,
		Reference: f.ref,
		Synth:     f.synth,
		Pool:      f.pool,
		Now:       func() int64 { return testNow },
	}
	for _, hook := range hooks {
		hook(&deps)
	}
	v, err := New(Config{
		Address:        vaultAddr,
		Asset:          assetAddr,
		Admin:          admin,
		CooldownBlocks: 10,
		ProtocolFeeBps: feeBps,
		PythMaxAge:     60,
	}, deps)
	require.NoError(t, err)
	require.NoError(t, v.SetPriceFeed(admin, oracle.PriceFeedInfo{Source: feedAddr, Decimals: 8}, f.push))
	require.NoError(t, v.SetPullFeed(admin, f.pull))
	f.vault = v
	return f
}

func (f *fixture) fund(t *testing.T, account common.Address, amount int64) {
	t.Helper()
	f.ref.SetBalance(account, big.NewInt(amount))
	f.ref.Approve(account, vaultAddr, big.NewInt(amount))
}

func TestDeposit_MintsAtComposedRate(t *testing.T) {
	f := newFixture(t, 0)
	f.fund(t, alice, 1000)

	require.NoError(t, f.vault.Deposit(context.Background(), alice, alice, big.NewInt(1000)))

	bal, err := f.synth.BalanceOf(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, int64(150_000), bal.Int64())

	deposited, minted, fee := f.vault.Totals()
	assert.Equal(t, int64(1000), deposited.Int64())
	assert.Equal(t, int64(150_000), minted.Int64())
	assert.Zero(t, fee.Sign())

	receipt, err := f.pool.ReceiptBalance(context.Background(), vaultAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), receipt.Int64())
}

func TestDeposit_FeeTakenBeforeConversion(t *testing.T) {
	f := newFixture(t, 100) // 1%
	f.fund(t, alice, 1000)

	require.NoError(t, f.vault.Deposit(context.Background(), alice, alice, big.NewInt(1000)))

	deposited, _, fee := f.vault.Totals()
	assert.Equal(t, int64(990), deposited.Int64())
	assert.Equal(t, int64(10), fee.Int64())

	// minted from the net 990, not the gross 1000
	bal, err := f.synth.BalanceOf(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, int64(990*150), bal.Int64())
}

func TestDeposit_Rejections(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	require.ErrorIs(t, f.vault.Deposit(ctx, alice, alice, big.NewInt(0)), domain.ErrZeroAmount)
	require.ErrorIs(t, f.vault.Deposit(ctx, alice, common.Address{}, big.NewInt(1)), domain.ErrZeroAddress)
}

func TestDeposit_FailsOnStalePrice(t *testing.T) {
	f := newFixture(t, 0)
	f.fund(t, alice, 1000)
	f.pull.reading.PublishTime = testNow - 120 // past the 60s window

	err := f.vault.Deposit(context.Background(), alice, alice, big.NewInt(1000))
	var stale *domain.StalePriceError
	require.ErrorAs(t, err, &stale)

	// nothing moved
	bal, _ := f.ref.BalanceOf(context.Background(), alice)
	assert.Equal(t, int64(1000), bal.Int64())
	deposited, _, _ := f.vault.Totals()
	assert.Zero(t, deposited.Sign())
}

func TestDeposit_FailsWithoutFeeds(t *testing.T) {
	f := newFixture(t, 0)
	f.fund(t, alice, 1000)
	// a fresh vault without feed wiring
	store, err := reqstore.Open(reqstore.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	bare, err := New(Config{
		Address: vaultAddr, Asset: assetAddr, Admin: admin,
		CooldownBlocks: 10, ProtocolFeeBps: 0, PythMaxAge: 60,
	}, Deps{
		Ledger: ledger.New(), Store: store, Events: events.NewLog(),
		Heights: f.heights, Reference: f.ref, Synth: f.synth, Pool: f.pool,
		Now: func() int64 { return testNow },
	})
	require.NoError(t, err)

	require.ErrorIs(t, bare.Deposit(context.Background(), alice, alice, big.NewInt(1)), domain.ErrPriceFeedNotSet)
}

func TestDepositWithPermit(t *testing.T) {
	f := newFixture(t, 0)
	f.ref.SetBalance(alice, big.NewInt(1000)) // no direct allowance

	sig := token.PermitSignature{Value: big.NewInt(1000), Deadline: big.NewInt(testNow + 600)}
	require.NoError(t, f.vault.DepositWithPermit(context.Background(), alice, alice, big.NewInt(1000), sig))

	bal, err := f.synth.BalanceOf(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, int64(150_000), bal.Int64())
}

func TestWithdrawalLifecycle(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	f.fund(t, alice, 1000)
	require.NoError(t, f.vault.Deposit(ctx, alice, alice, big.NewInt(1000)))

	// request the full balance back
	require.NoError(t, f.vault.RequestWithdrawal(ctx, alice, big.NewInt(150_000)))

	req, err := f.vault.PendingRequest(alice)
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.True(t, req.ReferenceAmount.Cmp(big.NewInt(1000)) <= 0, "truncation must not over-promise")
	assert.Equal(t, uint64(100), req.RequestHeight)

	// synth burned
	synthBal, _ := f.synth.BalanceOf(ctx, alice)
	assert.Zero(t, synthBal.Sign())
	_, minted, _ := f.vault.Totals()
	assert.Zero(t, minted.Sign())

	// a second request while pending always fails, regardless of amount
	f.synth.SetBalance(bob, big.NewInt(1)) // unrelated account unaffected
	require.ErrorIs(t, f.vault.RequestWithdrawal(ctx, alice, big.NewInt(1)), domain.ErrWithdrawalRequestPending)

	// before the cooldown boundary
	f.heights.height = 109
	var cool *domain.CooldownNotMetError
	require.ErrorAs(t, f.vault.ExecuteWithdrawal(ctx, alice), &cool)

	// at exactly request+cooldown it still fails
	f.heights.height = 110
	require.ErrorAs(t, f.vault.ExecuteWithdrawal(ctx, alice), &cool)
	assert.Equal(t, uint64(111), cool.AvailableAt)

	// one block later it succeeds
	f.heights.height = 111
	refBefore, _ := f.ref.BalanceOf(ctx, alice)
	require.NoError(t, f.vault.ExecuteWithdrawal(ctx, alice))
	refAfter, _ := f.ref.BalanceOf(ctx, alice)

	delta := new(big.Int).Sub(refAfter, refBefore)
	assert.Zero(t, delta.Cmp(req.ReferenceAmount))

	// slot back to empty, principal released
	gone, err := f.vault.PendingRequest(alice)
	require.NoError(t, err)
	assert.Nil(t, gone)
	deposited, _, _ := f.vault.Totals()
	want := new(big.Int).Sub(big.NewInt(1000), req.ReferenceAmount)
	assert.Zero(t, deposited.Cmp(want))

	// nothing left to execute
	require.ErrorIs(t, f.vault.ExecuteWithdrawal(ctx, alice), domain.ErrNoWithdrawalRequest)
}

func TestRequestWithdrawal_VenueShortfall(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	f.fund(t, alice, 1000)
	require.NoError(t, f.vault.Deposit(ctx, alice, alice, big.NewInt(1000)))

	f.pool.SetLiquidityCap(big.NewInt(100))

	err := f.vault.RequestWithdrawal(ctx, alice, big.NewInt(150_000))
	var short *domain.InsufficientWithdrawnError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, int64(100), short.Actual.Int64())

	// the burn was compensated and no slot was opened
	synthBal, _ := f.synth.BalanceOf(ctx, alice)
	assert.Equal(t, int64(150_000), synthBal.Int64())
	req, err := f.vault.PendingRequest(alice)
	require.NoError(t, err)
	assert.Nil(t, req)

	// venue holds the full principal again
	receipt, _ := f.pool.ReceiptBalance(ctx, vaultAddr)
	assert.Equal(t, int64(1000), receipt.Int64())
}

func TestRequestWithdrawal_RejectsZero(t *testing.T) {
	f := newFixture(t, 0)
	require.ErrorIs(t, f.vault.RequestWithdrawal(context.Background(), alice, big.NewInt(0)), domain.ErrZeroAmount)
}

func TestPauseHaltsEntryPoints(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	f.fund(t, alice, 1000)

	require.NoError(t, f.vault.Pause(admin))
	require.ErrorIs(t, f.vault.Deposit(ctx, alice, alice, big.NewInt(1)), domain.ErrPaused)
	require.ErrorIs(t, f.vault.RequestWithdrawal(ctx, alice, big.NewInt(1)), domain.ErrPaused)
	require.ErrorIs(t, f.vault.ExecuteWithdrawal(ctx, alice), domain.ErrPaused)

	// reads stay available
	_, _, _, paused := f.vault.Params()
	assert.True(t, paused)

	require.NoError(t, f.vault.Unpause(admin))
	require.NoError(t, f.vault.Deposit(ctx, alice, alice, big.NewInt(1000)))
}

func TestAdmin_BoundsRejection(t *testing.T) {
	f := newFixture(t, 0)

	var oor *domain.OutOfRangeError
	err := f.vault.SetCooldownBlocks(admin, 0)
	require.ErrorAs(t, err, &oor)
	assert.Equal(t, uint64(MinCooldownBlocks), oor.Min)
	assert.Equal(t, uint64(MaxCooldownBlocks), oor.Max)

	require.ErrorAs(t, f.vault.SetCooldownBlocks(admin, 101), &oor)
	assert.Equal(t, uint64(101), oor.Value)

	require.ErrorAs(t, f.vault.SetProtocolFeeBps(admin, 101), &oor)
	assert.Equal(t, uint64(MaxProtocolFeeBps), oor.Max)

	require.ErrorAs(t, f.vault.SetPythValidTimePeriod(admin, 0), &oor)

	// in-range values apply
	require.NoError(t, f.vault.SetCooldownBlocks(admin, 100))
	require.NoError(t, f.vault.SetProtocolFeeBps(admin, 0))
	cooldown, feeBps, _, _ := f.vault.Params()
	assert.Equal(t, uint64(100), cooldown)
	assert.Equal(t, uint64(0), feeBps)
}

func TestAdmin_RequiresOperator(t *testing.T) {
	f := newFixture(t, 0)

	var unauthorized *domain.UnauthorizedError
	require.ErrorAs(t, f.vault.SetCooldownBlocks(alice, 5), &unauthorized)
	require.ErrorAs(t, f.vault.SetProtocolFeeBps(alice, 5), &unauthorized)
	require.ErrorAs(t, f.vault.Pause(alice), &unauthorized)
	require.ErrorAs(t, f.vault.WithdrawFee(context.Background(), alice, bob), &unauthorized)
	require.ErrorAs(t, f.vault.WithdrawVenueProfit(context.Background(), alice, bob), &unauthorized)

	// a granted operator may tune parameters
	require.NoError(t, f.vault.ACL().Grant(admin, bob, "operator"))
	require.NoError(t, f.vault.SetCooldownBlocks(bob, 5))
}

func TestWithdrawFee(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	f.fund(t, alice, 10_000)
	require.NoError(t, f.vault.Deposit(ctx, alice, alice, big.NewInt(10_000)))

	before, _ := f.ref.BalanceOf(ctx, bob)
	require.NoError(t, f.vault.WithdrawFee(ctx, admin, bob))
	after, _ := f.ref.BalanceOf(ctx, bob)
	assert.Equal(t, int64(100), new(big.Int).Sub(after, before).Int64())

	_, _, fee := f.vault.Totals()
	assert.Zero(t, fee.Sign())

	// nothing accrued now
	require.ErrorIs(t, f.vault.WithdrawFee(ctx, admin, bob), domain.ErrZeroAmount)
}

func TestWithdrawVenueProfit(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	f.fund(t, alice, 1000)
	require.NoError(t, f.vault.Deposit(ctx, alice, alice, big.NewInt(1000)))

	f.pool.AccrueYield(big.NewInt(40))
	require.NoError(t, f.vault.WithdrawVenueProfit(ctx, admin, bob))

	// principal untouched
	deposited, _, _ := f.vault.Totals()
	assert.Equal(t, int64(1000), deposited.Int64())
	receipt, _ := f.pool.ReceiptBalance(ctx, vaultAddr)
	assert.Equal(t, int64(1000), receipt.Int64())
}

func TestWithdrawVenueProfit_LossSurfaced(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	f.fund(t, alice, 1000)
	require.NoError(t, f.vault.Deposit(ctx, alice, alice, big.NewInt(1000)))

	f.pool.ApplyLoss(big.NewInt(5))

	err := f.vault.WithdrawVenueProfit(ctx, admin, bob)
	var loss *domain.VenueLossError
	require.ErrorAs(t, err, &loss)
	assert.Equal(t, int64(995), loss.Receipt.Int64())
	assert.Equal(t, int64(1000), loss.Principal.Int64())
}

func TestNew_ConfigValidation(t *testing.T) {
	store, err := reqstore.Open(reqstore.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	deps := Deps{Ledger: ledger.New(), Store: store, Events: events.NewLog()}

	_, err = New(Config{Asset: assetAddr, Admin: admin, CooldownBlocks: 10, ProtocolFeeBps: 0, PythMaxAge: 60}, deps)
	require.ErrorIs(t, err, domain.ErrZeroAddress)

	var oor *domain.OutOfRangeError
	_, err = New(Config{Address: vaultAddr, Asset: assetAddr, Admin: admin, CooldownBlocks: 0, PythMaxAge: 60}, deps)
	require.ErrorAs(t, err, &oor)

	_, err = New(Config{Address: vaultAddr, Asset: assetAddr, Admin: admin, CooldownBlocks: 10, ProtocolFeeBps: 200, PythMaxAge: 60}, deps)
	require.ErrorAs(t, err, &oor)

	_, err = New(Config{Address: vaultAddr, Asset: assetAddr, Admin: admin, CooldownBlocks: 10, PythMaxAge: 0}, deps)
	require.ErrorAs(t, err, &oor)
}

// failingPool delegates to the fake pool but fails Supply when armed.
type failingPool struct {
	venue.Pool
	supplyErr error
}

func (p *failingPool) Supply(ctx context.Context, asset common.Address, amount *big.Int) error {
	if p.supplyErr != nil {
		return p.supplyErr
	}
	return p.Pool.Supply(ctx, asset, amount)
}

// mintFailSynth delegates to the fake token but fails Mint when armed.
type mintFailSynth struct {
	token.Synth
	mintErr error
}

func (s *mintFailSynth) Mint(ctx context.Context, to common.Address, amount *big.Int) error {
	if s.mintErr != nil {
		return s.mintErr
	}
	return s.Synth.Mint(ctx, to, amount)
}

func TestDeposit_SupplyFailureFullyUnwound(t *testing.T) {
	f := newFixture(t, 100, func(d *Deps) {
		d.Pool = &failingPool{Pool: d.Pool, supplyErr: errors.New("venue unavailable")}
	})
	ctx := context.Background()
	f.fund(t, alice, 1000)

	require.EqualError(t, f.vault.Deposit(ctx, alice, alice, big.NewInt(1000)), "venue unavailable")

	// the gross pull is refunded, fee included
	refBal, err := f.ref.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), refBal.Int64())

	// the ledger never saw the deposit
	deposited, minted, fee := f.vault.Totals()
	assert.Zero(t, deposited.Sign())
	assert.Zero(t, minted.Sign())
	assert.Zero(t, fee.Sign())

	// nothing reached the venue, nothing was minted
	receipt, err := f.pool.ReceiptBalance(ctx, vaultAddr)
	require.NoError(t, err)
	assert.Zero(t, receipt.Sign())
	synthBal, err := f.synth.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Zero(t, synthBal.Sign())
}

func TestDeposit_MintFailureUnwindsVenueAndLedger(t *testing.T) {
	f := newFixture(t, 100, func(d *Deps) {
		d.Synth = &mintFailSynth{Synth: d.Synth, mintErr: errors.New("mint reverted")}
	})
	ctx := context.Background()
	f.fund(t, alice, 1000)

	require.EqualError(t, f.vault.Deposit(ctx, alice, alice, big.NewInt(1000)), "mint reverted")

	// the net 990 that reached the venue came back out
	receipt, err := f.pool.ReceiptBalance(ctx, vaultAddr)
	require.NoError(t, err)
	assert.Zero(t, receipt.Sign())

	refBal, err := f.ref.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), refBal.Int64())

	deposited, minted, fee := f.vault.Totals()
	assert.Zero(t, deposited.Sign())
	assert.Zero(t, minted.Sign())
	assert.Zero(t, fee.Sign())
}

func TestRequestWithdrawal_RejectsBeyondPrincipal(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	f.fund(t, alice, 1000)
	require.NoError(t, f.vault.Deposit(ctx, alice, alice, big.NewInt(1000)))

	// the rate halves after the deposit: redeeming all 150_000 synth would
	// now need 2000 of principal against the recorded 1000
	f.pull.reading.Price = 7_500_000_000

	err := f.vault.RequestWithdrawal(ctx, alice, big.NewInt(150_000))
	var exceeds *domain.ExceedsPrincipalError
	require.ErrorAs(t, err, &exceeds)
	assert.Equal(t, int64(2000), exceeds.Requested.Int64())
	assert.Equal(t, int64(1000), exceeds.Principal.Int64())

	// rejected before anything moved: synth intact, no slot
	synthBal, _ := f.synth.BalanceOf(ctx, alice)
	assert.Equal(t, int64(150_000), synthBal.Int64())
	req, err := f.vault.PendingRequest(alice)
	require.NoError(t, err)
	assert.Nil(t, req)
}

func TestExecuteWithdrawal_ClampsPrincipalAfterRateMove(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	f.fund(t, alice, 1000)
	require.NoError(t, f.vault.Deposit(ctx, alice, alice, big.NewInt(1000)))

	// rate halves, then the synth is split across two accounts so each
	// request individually stays within recorded principal
	f.pull.reading.Price = 7_500_000_000
	f.synth.SetBalance(alice, big.NewInt(75_000))
	f.synth.SetBalance(bob, big.NewInt(75_000))

	require.NoError(t, f.vault.RequestWithdrawal(ctx, alice, big.NewInt(75_000)))
	f.pool.AccrueYield(big.NewInt(1000)) // yield lets the venue cover the second request
	require.NoError(t, f.vault.RequestWithdrawal(ctx, bob, big.NewInt(75_000)))

	f.heights.height = 111
	require.NoError(t, f.vault.ExecuteWithdrawal(ctx, alice))

	// the second payout exceeds the remaining principal; the caller is still
	// paid in full and the bookkeeping floors at zero
	bobBefore, _ := f.ref.BalanceOf(ctx, bob)
	require.NoError(t, f.vault.ExecuteWithdrawal(ctx, bob))
	bobAfter, _ := f.ref.BalanceOf(ctx, bob)
	assert.Equal(t, int64(1000), new(big.Int).Sub(bobAfter, bobBefore).Int64())

	deposited, _, _ := f.vault.Totals()
	assert.Zero(t, deposited.Sign())
}
