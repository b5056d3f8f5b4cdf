package oracle

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/synthvault/govault/internal/domain"
)

// MaxFeedDecimals bounds the configurable decimal precision of a push feed.
const MaxFeedDecimals = 18

// PushReading is one observation from a push-style feed (reference asset/USD).
// Only Price and UpdatedAt are consumed from the underlying round data.
type PushReading struct {
	Price     *big.Int
	Decimals  uint8
	UpdatedAt int64 // unix seconds
}

// PullReading is one observation from a pull-style feed (USD/synthetic unit)
// in its native exponential form: value = Price * 10^Expo.
type PullReading struct {
	Price       int64
	Expo        int32
	PublishTime int64 // unix seconds
}

// PushFeed continuously reports the latest reference-asset/USD price.
type PushFeed interface {
	LatestReading(ctx context.Context) (PushReading, error)
}

// PullFeed fetches the USD/synthetic-unit price with a freshness bound. The
// feed itself rejects readings older than maxAge.
type PullFeed interface {
	ReadingNoOlderThan(ctx context.Context, maxAge int64) (PullReading, error)
}

// PriceFeedInfo describes where to read a push price for one reference asset
// and how to scale it.
type PriceFeedInfo struct {
	Source   common.Address
	Decimals uint8
}

// Validate rejects unusable configuration before any funds move.
func (p PriceFeedInfo) Validate() error {
	if p.Source == (common.Address{}) {
		return domain.ErrZeroAddress
	}
	if p.Decimals == 0 || p.Decimals > MaxFeedDecimals {
		return &domain.InvalidDecimalsError{Decimals: p.Decimals, Max: MaxFeedDecimals}
	}
	return nil
}
