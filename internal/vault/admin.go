package vault

import (
	"context"
	"math"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"

	"github.com/synthvault/govault/internal/access"
	"github.com/synthvault/govault/internal/domain"
	"github.com/synthvault/govault/internal/events"
	"github.com/synthvault/govault/internal/metrics"
	"github.com/synthvault/govault/internal/oracle"
)

// SetPriceFeed configures the push-style reference-asset/USD feed.
func (v *Vault) SetPriceFeed(caller common.Address, info oracle.PriceFeedInfo, feed oracle.PushFeed) error {
	if err := v.acl.Require(caller, access.CapOperator); err != nil {
		return err
	}
	if err := info.Validate(); err != nil {
		return err
	}
	if feed == nil {
		return domain.ErrZeroAddress
	}
	v.mu.Lock()
	v.pushInfo = &info
	v.push = feed
	v.mu.Unlock()

	v.log.Emit(events.TypePriceFeedUpdated, map[string]string{
		"source":   info.Source.Hex(),
		"decimals": itoa(uint64(info.Decimals)),
	})
	return nil
}

// SetPullFeed configures the pull-style USD/synthetic feed.
func (v *Vault) SetPullFeed(caller common.Address, feed oracle.PullFeed) error {
	if err := v.acl.Require(caller, access.CapOperator); err != nil {
		return err
	}
	if feed == nil {
		return domain.ErrZeroAddress
	}
	v.mu.Lock()
	v.pull = feed
	v.mu.Unlock()
	return nil
}

// SetPythValidTimePeriod updates the pull-feed staleness window (seconds).
func (v *Vault) SetPythValidTimePeriod(caller common.Address, seconds int64) error {
	if err := v.acl.Require(caller, access.CapOperator); err != nil {
		return err
	}
	if seconds <= 0 {
		return &domain.OutOfRangeError{Param: "pythValidTimePeriod", Value: uint64(seconds), Min: 1, Max: math.MaxUint64}
	}
	v.mu.Lock()
	v.maxAge = seconds
	v.mu.Unlock()

	v.log.Emit(events.TypeStalenessWindowUpdated, map[string]string{
		"seconds": itoa(uint64(seconds)),
	})
	return nil
}

// SetCooldownBlocks updates the withdrawal cooldown.
func (v *Vault) SetCooldownBlocks(caller common.Address, blocks uint64) error {
	if err := v.acl.Require(caller, access.CapOperator); err != nil {
		return err
	}
	if blocks < MinCooldownBlocks || blocks > MaxCooldownBlocks {
		return &domain.OutOfRangeError{Param: "cooldownBlocks", Value: blocks, Min: MinCooldownBlocks, Max: MaxCooldownBlocks}
	}
	v.mu.Lock()
	v.cooldown = blocks
	v.mu.Unlock()

	v.log.Emit(events.TypeCooldownUpdated, map[string]string{
		"blocks": itoa(blocks),
	})
	return nil
}

// SetProtocolFeeBps updates the deposit fee.
func (v *Vault) SetProtocolFeeBps(caller common.Address, bps uint64) error {
	if err := v.acl.Require(caller, access.CapOperator); err != nil {
		return err
	}
	if bps > MaxProtocolFeeBps {
		return &domain.OutOfRangeError{Param: "protocolFeeBps", Value: bps, Min: MinProtocolFeeBps, Max: MaxProtocolFeeBps}
	}
	v.mu.Lock()
	v.feeBps = bps
	v.mu.Unlock()

	v.log.Emit(events.TypeFeeUpdated, map[string]string{
		"bps": itoa(bps),
	})
	return nil
}

// WithdrawFee pays the entire accrued fee to the recipient and resets it.
func (v *Vault) WithdrawFee(ctx context.Context, caller, to common.Address) error {
	if err := v.acl.Require(caller, access.CapOperator); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return domain.ErrZeroAddress
	}
	fee := v.ledger.TakeFee()
	if fee.Sign() == 0 {
		return domain.ErrZeroAmount
	}
	if err := v.reference.Transfer(ctx, to, fee); err != nil {
		v.ledger.CreditFee(fee)
		return err
	}
	metrics.FeeWithdrawals.Add(1)

	v.logger.WithFields(log.Fields{
		"to":  to.Hex(),
		"fee": fee.String(),
	}).Info("fee withdrawn")
	v.log.Emit(events.TypeFeeWithdrawn, map[string]string{
		"to":     to.Hex(),
		"amount": fee.String(),
	})
	return nil
}

// WithdrawVenueProfit realizes accrued yield: everything the venue holds
// above recorded principal goes to the recipient. Principal is untouched.
func (v *Vault) WithdrawVenueProfit(ctx context.Context, caller, to common.Address) error {
	if err := v.acl.Require(caller, access.CapOperator); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return domain.ErrZeroAddress
	}
	receipt, err := v.pool.ReceiptBalance(ctx, v.address)
	if err != nil {
		return err
	}
	profit, err := v.ledger.Profit(receipt)
	if err != nil {
		return err
	}
	if profit.Sign() == 0 {
		return domain.ErrZeroAmount
	}
	actual, err := v.pool.Withdraw(ctx, v.asset, profit, to)
	if err != nil {
		return err
	}
	if actual.Cmp(profit) < 0 {
		metrics.VenueShortfalls.Add(1)
		return &domain.InsufficientWithdrawnError{Requested: profit, Actual: actual}
	}
	metrics.ProfitWithdrawals.Add(1)

	v.logger.WithFields(log.Fields{
		"to":     to.Hex(),
		"profit": profit.String(),
	}).Info("venue profit withdrawn")
	v.log.Emit(events.TypeProfitWithdrawn, map[string]string{
		"to":     to.Hex(),
		"amount": profit.String(),
	})
	return nil
}

// Pause halts every state-changing entry point. Reads stay available.
func (v *Vault) Pause(caller common.Address) error {
	if err := v.acl.Require(caller, access.CapOperator); err != nil {
		return err
	}
	v.mu.Lock()
	v.paused = true
	v.mu.Unlock()
	v.log.Emit(events.TypePaused, map[string]string{"by": caller.Hex()})
	return nil
}

// Unpause re-enables state-changing entry points.
func (v *Vault) Unpause(caller common.Address) error {
	if err := v.acl.Require(caller, access.CapOperator); err != nil {
		return err
	}
	v.mu.Lock()
	v.paused = false
	v.mu.Unlock()
	v.log.Emit(events.TypeUnpaused, map[string]string{"by": caller.Hex()})
	return nil
}

func itoa(n uint64) string {
	return strconv.FormatUint(n, 10)
}
