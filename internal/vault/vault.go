// Package vault sequences deposits and withdrawals across the conversion
// engine, the ledger, the request store and the external collaborators.
// Every public operation is all-or-nothing: oracle reads happen before any
// value moves, and value movements that cannot be completed are compensated
// before the error is returned.
package vault

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"

	"github.com/synthvault/govault/internal/access"
	"github.com/synthvault/govault/internal/conversion"
	"github.com/synthvault/govault/internal/domain"
	"github.com/synthvault/govault/internal/events"
	"github.com/synthvault/govault/internal/ledger"
	"github.com/synthvault/govault/internal/metrics"
	"github.com/synthvault/govault/internal/oracle"
	"github.com/synthvault/govault/internal/reqstore"
	"github.com/synthvault/govault/internal/token"
	"github.com/synthvault/govault/internal/venue"
)

// Cooldown and fee policy bounds. Setters reject anything outside.
const (
	MinCooldownBlocks = 1
	MaxCooldownBlocks = 100
	MinProtocolFeeBps = 0
	MaxProtocolFeeBps = 100
)

// HeightSource reports the current block height the cooldown is measured
// against.
type HeightSource interface {
	CurrentHeight(ctx context.Context) (uint64, error)
}

// Config wires a vault. All addresses must be non-zero.
type Config struct {
	Address        common.Address // the vault's own custody address
	Asset          common.Address // reference asset contract
	Admin          common.Address // bootstrap principal, holds both capabilities
	CooldownBlocks uint64
	ProtocolFeeBps uint64
	PythMaxAge     int64 // staleness window for the pull feed, seconds
}

// Vault is the deposit/withdrawal orchestrator.
type Vault struct {
	mu sync.Mutex // guards params, pause flag and feed wiring

	address  common.Address
	asset    common.Address
	cooldown uint64
	feeBps   uint64
	maxAge   int64
	paused   bool

	pushInfo *oracle.PriceFeedInfo
	push     oracle.PushFeed
	pull     oracle.PullFeed

	// per-account locks serialize the request-slot transitions
	accMu    sync.Mutex
	accounts map[common.Address]*sync.Mutex

	ledger    *ledger.Ledger
	store     *reqstore.Store
	acl       *access.Controller
	log       *events.Log
	heights   HeightSource
	reference token.Reference
	synth     token.Synth
	pool      venue.Pool

	now func() int64

	logger *log.Entry
}

// Deps carries the collaborators.
type Deps struct {
	Ledger    *ledger.Ledger
	Store     *reqstore.Store
	ACL       *access.Controller
	Events    *events.Log
	Heights   HeightSource
	Reference token.Reference
	Synth     token.Synth
	Pool      venue.Pool
	Now       func() int64 // unix seconds; defaults to time.Now
}

func New(cfg Config, deps Deps) (*Vault, error) {
	for _, a := range []common.Address{cfg.Address, cfg.Asset, cfg.Admin} {
		if a == (common.Address{}) {
			return nil, domain.ErrZeroAddress
		}
	}
	if cfg.CooldownBlocks < MinCooldownBlocks || cfg.CooldownBlocks > MaxCooldownBlocks {
		return nil, &domain.OutOfRangeError{Param: "cooldownBlocks", Value: cfg.CooldownBlocks, Min: MinCooldownBlocks, Max: MaxCooldownBlocks}
	}
	if cfg.ProtocolFeeBps > MaxProtocolFeeBps {
		return nil, &domain.OutOfRangeError{Param: "protocolFeeBps", Value: cfg.ProtocolFeeBps, Min: MinProtocolFeeBps, Max: MaxProtocolFeeBps}
	}
	if cfg.PythMaxAge <= 0 {
		return nil, &domain.OutOfRangeError{Param: "pythValidTimePeriod", Value: uint64(cfg.PythMaxAge), Min: 1, Max: ^uint64(0)}
	}
	if deps.Now == nil {
		deps.Now = func() int64 { return time.Now().Unix() }
	}
	if deps.ACL == nil {
		acl, err := access.New(cfg.Admin)
		if err != nil {
			return nil, err
		}
		deps.ACL = acl
	}
	v := &Vault{
		address:   cfg.Address,
		asset:     cfg.Asset,
		cooldown:  cfg.CooldownBlocks,
		feeBps:    cfg.ProtocolFeeBps,
		maxAge:    cfg.PythMaxAge,
		accounts:  make(map[common.Address]*sync.Mutex),
		ledger:    deps.Ledger,
		store:     deps.Store,
		acl:       deps.ACL,
		log:       deps.Events,
		heights:   deps.Heights,
		reference: deps.Reference,
		synth:     deps.Synth,
		pool:      deps.Pool,
		now:       deps.Now,
		logger:    log.WithField("component", "vault"),
	}
	return v, nil
}

// ACL exposes the capability controller for administration.
func (v *Vault) ACL() *access.Controller { return v.acl }

// Address returns the vault's custody address.
func (v *Vault) Address() common.Address { return v.address }

func (v *Vault) accountLock(a common.Address) *sync.Mutex {
	v.accMu.Lock()
	defer v.accMu.Unlock()
	m, ok := v.accounts[a]
	if !ok {
		m = &sync.Mutex{}
		v.accounts[a] = m
	}
	return m
}

func (v *Vault) checkActive() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.paused {
		return domain.ErrPaused
	}
	return nil
}

// rate reads both feeds and composes the deposit rate. Read-only, so it is
// always performed before any value moves.
func (v *Vault) rate(ctx context.Context) (*big.Int, error) {
	v.mu.Lock()
	push, pull, maxAge := v.push, v.pull, v.maxAge
	configured := v.pushInfo != nil && pull != nil
	v.mu.Unlock()
	if !configured {
		return nil, domain.ErrPriceFeedNotSet
	}
	pushReading, err := push.LatestReading(ctx)
	if err != nil {
		metrics.OracleErrors.Add(1)
		return nil, err
	}
	pullReading, err := pull.ReadingNoOlderThan(ctx, maxAge)
	if err != nil {
		metrics.OracleErrors.Add(1)
		return nil, err
	}
	rate, err := conversion.Rate(pushReading, pullReading, v.now(), maxAge)
	if err != nil {
		metrics.OracleErrors.Add(1)
		return nil, err
	}
	return rate, nil
}

// CurrentRate is the monitoring view of the composed deposit rate.
func (v *Vault) CurrentRate(ctx context.Context) (*big.Int, error) {
	return v.rate(ctx)
}

// Deposit pulls amount of reference asset from the caller, takes the
// protocol fee, supplies the net to the yield venue and mints synthetic
// units to the recipient at the current composed rate.
func (v *Vault) Deposit(ctx context.Context, caller, to common.Address, amount *big.Int) error {
	if err := v.checkActive(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrZeroAmount
	}
	if to == (common.Address{}) {
		return domain.ErrZeroAddress
	}
	rate, err := v.rate(ctx)
	if err != nil {
		return err
	}
	v.mu.Lock()
	feeBps := v.feeBps
	v.mu.Unlock()

	if err := v.reference.TransferFrom(ctx, caller, v.address, amount); err != nil {
		return err
	}
	net, fee, err := v.ledger.ApplyDeposit(amount, feeBps)
	if err != nil {
		v.refundDeposit(ctx, caller, amount)
		return err
	}
	if err := v.pool.Supply(ctx, v.asset, net); err != nil {
		v.ledger.ReverseDeposit(net, fee)
		v.refundDeposit(ctx, caller, amount)
		return err
	}
	synth := conversion.ToSynth(net, rate)
	if err := v.synth.Mint(ctx, to, synth); err != nil {
		if actual, wErr := v.pool.Withdraw(ctx, v.asset, net, v.address); wErr != nil {
			v.logger.WithError(wErr).Error("deposit compensation: venue withdraw failed")
		} else if actual.Cmp(net) < 0 {
			v.logger.WithFields(log.Fields{
				"requested": net.String(),
				"actual":    actual.String(),
			}).Error("deposit compensation: venue returned short")
		}
		v.ledger.ReverseDeposit(net, fee)
		v.refundDeposit(ctx, caller, amount)
		return err
	}
	v.ledger.RecordMint(synth)
	metrics.Deposits.Add(1)

	v.logger.WithFields(log.Fields{
		"to":    to.Hex(),
		"gross": amount.String(),
		"fee":   fee.String(),
		"net":   net.String(),
		"synth": synth.String(),
		"rate":  rate.String(),
	}).Info("deposit")
	v.log.Emit(events.TypeDeposit, map[string]string{
		"to":     to.Hex(),
		"amount": amount.String(),
		"synth":  synth.String(),
	})
	return nil
}

// DepositWithPermit sets the allowance from a signed permit first, then runs
// the regular deposit path.
func (v *Vault) DepositWithPermit(ctx context.Context, caller, to common.Address, amount *big.Int, sig token.PermitSignature) error {
	if err := v.checkActive(); err != nil {
		return err
	}
	if err := v.reference.Permit(ctx, caller, v.address, sig); err != nil {
		return err
	}
	return v.Deposit(ctx, caller, to, amount)
}

// RequestWithdrawal burns the caller's synthetic units, reserves the
// corresponding reference asset out of the yield venue into the vault's own
// custody, and opens the account's single pending request slot.
func (v *Vault) RequestWithdrawal(ctx context.Context, caller common.Address, synthAmount *big.Int) error {
	if err := v.checkActive(); err != nil {
		return err
	}
	if synthAmount == nil || synthAmount.Sign() <= 0 {
		return domain.ErrZeroAmount
	}

	lock := v.accountLock(caller)
	lock.Lock()
	defer lock.Unlock()

	// reject a duplicate before anything irreversible happens
	if pending, err := v.store.Get(caller); err != nil {
		return err
	} else if pending != nil {
		return domain.ErrWithdrawalRequestPending
	}

	rate, err := v.rate(ctx)
	if err != nil {
		return err
	}
	referenceAmount, err := conversion.ToReference(synthAmount, rate)
	if err != nil {
		return err
	}
	// executing this request must not underflow the principal later
	if deposited, _, _ := v.ledger.Totals(); referenceAmount.Cmp(deposited) > 0 {
		return &domain.ExceedsPrincipalError{
			Requested: referenceAmount,
			Principal: deposited,
		}
	}
	height, err := v.heights.CurrentHeight(ctx)
	if err != nil {
		return err
	}

	if err := v.synth.Burn(ctx, caller, synthAmount); err != nil {
		return err
	}
	v.ledger.RecordBurn(synthAmount)

	actual, err := v.pool.Withdraw(ctx, v.asset, referenceAmount, v.address)
	if err != nil {
		v.compensateBurn(ctx, caller, synthAmount)
		return err
	}
	if actual.Cmp(referenceAmount) < 0 {
		// a shortfall is surfaced, never accepted; undo the partial effects
		metrics.VenueShortfalls.Add(1)
		if supplyErr := v.pool.Supply(ctx, v.asset, actual); supplyErr != nil {
			v.logger.WithError(supplyErr).Error("shortfall compensation: re-supply failed")
		}
		v.compensateBurn(ctx, caller, synthAmount)
		return &domain.InsufficientWithdrawnError{
			Requested: referenceAmount,
			Actual:    actual,
		}
	}

	if err := v.store.Create(caller, synthAmount, referenceAmount, height); err != nil {
		// cannot happen while the account lock is held, but stay safe
		if supplyErr := v.pool.Supply(ctx, v.asset, actual); supplyErr != nil {
			v.logger.WithError(supplyErr).Error("request compensation: re-supply failed")
		}
		v.compensateBurn(ctx, caller, synthAmount)
		return err
	}
	metrics.WithdrawalRequests.Add(1)

	v.logger.WithFields(log.Fields{
		"account":   caller.Hex(),
		"synth":     synthAmount.String(),
		"reference": referenceAmount.String(),
		"height":    height,
	}).Info("withdrawal requested")
	v.log.Emit(events.TypeWithdrawalRequested, map[string]string{
		"account":   caller.Hex(),
		"synth":     synthAmount.String(),
		"reference": referenceAmount.String(),
	})
	return nil
}

// RequestWithdrawalWithPermit sets a burn allowance from a signed permit,
// then runs the regular request path.
func (v *Vault) RequestWithdrawalWithPermit(ctx context.Context, caller common.Address, synthAmount *big.Int, sig token.PermitSignature) error {
	if err := v.checkActive(); err != nil {
		return err
	}
	if err := v.synth.Permit(ctx, caller, v.address, sig); err != nil {
		return err
	}
	return v.RequestWithdrawal(ctx, caller, synthAmount)
}

// refundDeposit sends a pulled gross amount back to the depositor.
func (v *Vault) refundDeposit(ctx context.Context, caller common.Address, gross *big.Int) {
	if err := v.reference.Transfer(ctx, caller, gross); err != nil {
		v.logger.WithError(err).WithField("account", caller.Hex()).
			Error("deposit compensation: refund failed, funds stranded in custody")
	}
}

// compensateBurn re-mints synthetic units whose request could not complete.
func (v *Vault) compensateBurn(ctx context.Context, account common.Address, synthAmount *big.Int) {
	if err := v.synth.Mint(ctx, account, synthAmount); err != nil {
		v.logger.WithError(err).WithField("account", account.Hex()).
			Error("compensation re-mint failed, synthetic supply diverged")
		return
	}
	v.ledger.RecordMint(synthAmount)
}

// ExecuteWithdrawal pays out the caller's pending request once the cooldown
// has elapsed. The reference asset has been in vault custody since the
// request, so no venue call is needed here.
func (v *Vault) ExecuteWithdrawal(ctx context.Context, caller common.Address) error {
	if err := v.checkActive(); err != nil {
		return err
	}

	lock := v.accountLock(caller)
	lock.Lock()
	defer lock.Unlock()

	height, err := v.heights.CurrentHeight(ctx)
	if err != nil {
		return err
	}
	v.mu.Lock()
	cooldown := v.cooldown
	v.mu.Unlock()

	req, err := v.store.Consume(caller, height, cooldown)
	if err != nil {
		return err
	}
	if err := v.reference.Transfer(ctx, caller, req.ReferenceAmount); err != nil {
		// put the slot back so the payout can be retried
		if createErr := v.store.Create(caller, req.SynthAmount, req.ReferenceAmount, req.RequestHeight); createErr != nil {
			v.logger.WithError(createErr).Error("execute compensation: restore slot failed")
		}
		return err
	}
	if err := v.ledger.RecordWithdrawalExecuted(req.ReferenceAmount); err != nil {
		// the payout already happened; clamp the bookkeeping instead of
		// failing a caller who has been paid
		v.ledger.ReduceDeposited(req.ReferenceAmount)
		v.logger.WithError(err).WithField("account", caller.Hex()).
			Error("principal clamped to zero after payout")
	}
	metrics.WithdrawalsExecuted.Add(1)

	v.logger.WithFields(log.Fields{
		"account":   caller.Hex(),
		"reference": req.ReferenceAmount.String(),
	}).Info("withdrawal executed")
	v.log.Emit(events.TypeWithdrawalExecuted, map[string]string{
		"account":   caller.Hex(),
		"reference": req.ReferenceAmount.String(),
	})
	return nil
}

// PendingRequest is the monitoring view of an account's request slot, nil
// when empty.
func (v *Vault) PendingRequest(account common.Address) (*domain.WithdrawalRequest, error) {
	return v.store.Get(account)
}

// Totals returns the ledger counters.
func (v *Vault) Totals() (deposited, minted, feeAccrued *big.Int) {
	return v.ledger.Totals()
}

// Params returns the current policy parameters.
func (v *Vault) Params() (cooldownBlocks, feeBps uint64, pythMaxAge int64, paused bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cooldown, v.feeBps, v.maxAge, v.paused
}
