package oracle

import (
	"context"
	"math/big"
	"sync"
	"time"
)

// StaticPush reports a fixed price with a current timestamp. Dry-run only.
type StaticPush struct {
	mu       sync.Mutex
	price    *big.Int
	decimals uint8
}

func NewStaticPush(price *big.Int, decimals uint8) *StaticPush {
	return &StaticPush{price: new(big.Int).Set(price), decimals: decimals}
}

func (s *StaticPush) SetPrice(price *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.price = new(big.Int).Set(price)
}

func (s *StaticPush) LatestReading(context.Context) (PushReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return PushReading{
		Price:     new(big.Int).Set(s.price),
		Decimals:  s.decimals,
		UpdatedAt: time.Now().Unix(),
	}, nil
}

// StaticPull reports a fixed exponential price with a current publish time.
// Dry-run only.
type StaticPull struct {
	mu    sync.Mutex
	price int64
	expo  int32
}

func NewStaticPull(price int64, expo int32) *StaticPull {
	return &StaticPull{price: price, expo: expo}
}

func (s *StaticPull) SetPrice(price int64, expo int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.price = price
	s.expo = expo
}

func (s *StaticPull) ReadingNoOlderThan(context.Context, int64) (PullReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return PullReading{
		Price:       s.price,
		Expo:        s.expo,
		PublishTime: time.Now().Unix(),
	}, nil
}
