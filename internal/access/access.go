// Package access implements capability-based authorization. Capabilities are
// an explicit set per principal; there is no inheritance between them.
package access

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/synthvault/govault/internal/domain"
)

// Capability names one privileged surface. Operator covers day-to-day
// parameter tuning and fee/profit withdrawal; Upgrade authorizes capability
// administration and schema migration.
type Capability string

const (
	CapOperator Capability = "operator"
	CapUpgrade  Capability = "upgrade"
)

// Controller holds the capability sets. Safe for concurrent use.
type Controller struct {
	mu     sync.RWMutex
	grants map[common.Address]map[Capability]struct{}
}

// New bootstraps a controller with an admin holding both capabilities.
func New(admin common.Address) (*Controller, error) {
	if admin == (common.Address{}) {
		return nil, domain.ErrZeroAddress
	}
	c := &Controller{grants: make(map[common.Address]map[Capability]struct{})}
	c.grant(admin, CapOperator)
	c.grant(admin, CapUpgrade)
	return c, nil
}

func (c *Controller) grant(p common.Address, cap Capability) {
	set, ok := c.grants[p]
	if !ok {
		set = make(map[Capability]struct{})
		c.grants[p] = set
	}
	set[cap] = struct{}{}
}

// Require fails uniformly for any missing capability, regardless of which
// operation was attempted.
func (c *Controller) Require(caller common.Address, cap Capability) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if set, ok := c.grants[caller]; ok {
		if _, ok := set[cap]; ok {
			return nil
		}
	}
	return &domain.UnauthorizedError{Caller: caller, Capability: string(cap)}
}

// Grant adds a capability to a principal. Only Upgrade holders administer
// capabilities.
func (c *Controller) Grant(caller, principal common.Address, cap Capability) error {
	if err := c.Require(caller, CapUpgrade); err != nil {
		return err
	}
	if principal == (common.Address{}) {
		return domain.ErrZeroAddress
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.grant(principal, cap)
	return nil
}

// Revoke removes a capability from a principal.
func (c *Controller) Revoke(caller, principal common.Address, cap Capability) error {
	if err := c.Require(caller, CapUpgrade); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if set, ok := c.grants[principal]; ok {
		delete(set, cap)
		if len(set) == 0 {
			delete(c.grants, principal)
		}
	}
	return nil
}
