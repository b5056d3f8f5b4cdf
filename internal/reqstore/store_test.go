package reqstore

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synthvault/govault/internal/domain"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b0")
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndGet(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Create(alice, big.NewInt(150_000), big.NewInt(999), 42))

	req, err := s.Get(alice)
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, alice, req.Account)
	assert.Equal(t, int64(150_000), req.SynthAmount.Int64())
	assert.Equal(t, int64(999), req.ReferenceAmount.Int64())
	assert.Equal(t, uint64(42), req.RequestHeight)

	// other accounts are unaffected
	other, err := s.Get(bob)
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestCreate_SecondRequestAlwaysFails(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Create(alice, big.NewInt(1), big.NewInt(1), 10))

	// regardless of amount
	err := s.Create(alice, big.NewInt(999_999), big.NewInt(999_999), 11)
	require.ErrorIs(t, err, domain.ErrWithdrawalRequestPending)
}

func TestConsume_CooldownBoundary(t *testing.T) {
	const (
		height   = uint64(100)
		cooldown = uint64(10)
	)
	s := newStore(t)
	require.NoError(t, s.Create(alice, big.NewInt(5), big.NewInt(5), height))

	// before the boundary
	_, err := s.Consume(alice, height+cooldown-1, cooldown)
	var cool *domain.CooldownNotMetError
	require.ErrorAs(t, err, &cool)

	// at exactly height+cooldown it still fails (strict inequality)
	_, err = s.Consume(alice, height+cooldown, cooldown)
	require.ErrorAs(t, err, &cool)
	assert.Equal(t, height+cooldown+1, cool.AvailableAt)

	// one block later it succeeds
	req, err := s.Consume(alice, height+cooldown+1, cooldown)
	require.NoError(t, err)
	assert.Equal(t, int64(5), req.ReferenceAmount.Int64())

	// the slot is empty again
	got, err := s.Get(alice)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = s.Consume(alice, height+cooldown+2, cooldown)
	require.ErrorIs(t, err, domain.ErrNoWithdrawalRequest)
}

func TestConsume_Empty(t *testing.T) {
	s := newStore(t)
	_, err := s.Consume(bob, 1000, 1)
	require.ErrorIs(t, err, domain.ErrNoWithdrawalRequest)
}

func TestCreate_RejectsEmptyRequest(t *testing.T) {
	s := newStore(t)
	err := s.Create(alice, big.NewInt(0), big.NewInt(0), 1)
	require.ErrorIs(t, err, domain.ErrZeroAmount)
}

func TestCreate_AfterConsumeAllowsNewRequest(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Create(alice, big.NewInt(1), big.NewInt(1), 1))
	_, err := s.Consume(alice, 100, 1)
	require.NoError(t, err)
	require.NoError(t, s.Create(alice, big.NewInt(2), big.NewInt(2), 100))
}
