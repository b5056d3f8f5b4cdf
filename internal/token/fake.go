package token

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// FakeERC20 is an in-memory token for tests and dry-run mode. It implements
// both Reference and Synth. Permit sets an allowance without signature
// verification, matching the trusted-capability contract of the real token.
type FakeERC20 struct {
	mu         sync.Mutex
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
	supply     *big.Int
}

func NewFakeERC20() *FakeERC20 {
	return &FakeERC20{
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
		supply:     new(big.Int),
	}
}

func (t *FakeERC20) balance(a common.Address) *big.Int {
	if b, ok := t.balances[a]; ok {
		return b
	}
	b := new(big.Int)
	t.balances[a] = b
	return b
}

func (t *FakeERC20) allowance(owner, spender common.Address) *big.Int {
	m, ok := t.allowances[owner]
	if !ok {
		m = make(map[common.Address]*big.Int)
		t.allowances[owner] = m
	}
	if a, ok := m[spender]; ok {
		return a
	}
	a := new(big.Int)
	m[spender] = a
	return a
}

// SetBalance seeds a balance for tests.
func (t *FakeERC20) SetBalance(a common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances[a] = new(big.Int).Set(amount)
}

// Approve sets a direct allowance, the non-permit path.
func (t *FakeERC20) Approve(owner, spender common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.allowance(owner, spender).Set(amount)
}

func (t *FakeERC20) Transfer(_ context.Context, to common.Address, amount *big.Int) error {
	// the fake has no msg.sender; Transfer is modeled as a mint-free credit
	// from unbounded custody, so tests assert recipient deltas only
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.balance(to)
	b.Add(b, amount)
	return nil
}

// TransferBetween moves balance with an explicit sender, which tests use
// where the real chain would use msg.sender.
func (t *FakeERC20) TransferBetween(from, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	fb := t.balance(from)
	if fb.Cmp(amount) < 0 {
		return errors.Errorf("fake token: balance %v below transfer %v", fb, amount)
	}
	fb.Sub(fb, amount)
	tb := t.balance(to)
	tb.Add(tb, amount)
	return nil
}

func (t *FakeERC20) TransferFrom(_ context.Context, from, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	allowed := t.allowance(from, to)
	if allowed.Cmp(amount) < 0 {
		return errors.Errorf("fake token: allowance %v below transfer %v", allowed, amount)
	}
	fb := t.balance(from)
	if fb.Cmp(amount) < 0 {
		return errors.Errorf("fake token: balance %v below transfer %v", fb, amount)
	}
	allowed.Sub(allowed, amount)
	fb.Sub(fb, amount)
	tb := t.balance(to)
	tb.Add(tb, amount)
	return nil
}

func (t *FakeERC20) BalanceOf(_ context.Context, owner common.Address) (*big.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.balance(owner)), nil
}

func (t *FakeERC20) Permit(_ context.Context, owner, spender common.Address, sig PermitSignature) error {
	if sig.Value == nil {
		return errors.New("fake token: permit without value")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.allowance(owner, spender).Set(sig.Value)
	return nil
}

func (t *FakeERC20) Mint(_ context.Context, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.balance(to)
	b.Add(b, amount)
	t.supply.Add(t.supply, amount)
	return nil
}

func (t *FakeERC20) Burn(_ context.Context, from common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.balance(from)
	if b.Cmp(amount) < 0 {
		return errors.Errorf("fake token: balance %v below burn %v", b, amount)
	}
	b.Sub(b, amount)
	t.supply.Sub(t.supply, amount)
	return nil
}

// TotalSupply is exposed for test assertions.
func (t *FakeERC20) TotalSupply() *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.supply)
}
