package access

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/synthvault/govault/internal/domain"
)

var (
	admin    = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	operator = common.HexToAddress("0x000000000000000000000000000000000000000b")
	nobody   = common.HexToAddress("0x00000000000000000000000000000000000000ee")
)

func TestBootstrap(t *testing.T) {
	c, err := New(admin)
	require.NoError(t, err)
	require.NoError(t, c.Require(admin, CapOperator))
	require.NoError(t, c.Require(admin, CapUpgrade))
}

func TestBootstrap_ZeroAdmin(t *testing.T) {
	_, err := New(common.Address{})
	require.ErrorIs(t, err, domain.ErrZeroAddress)
}

func TestGrantRevoke(t *testing.T) {
	c, err := New(admin)
	require.NoError(t, err)

	var unauthorized *domain.UnauthorizedError
	require.ErrorAs(t, c.Require(operator, CapOperator), &unauthorized)

	require.NoError(t, c.Grant(admin, operator, CapOperator))
	require.NoError(t, c.Require(operator, CapOperator))

	// operator capability does not imply upgrade capability
	require.ErrorAs(t, c.Require(operator, CapUpgrade), &unauthorized)
	// nor the right to grant
	require.ErrorAs(t, c.Grant(operator, nobody, CapOperator), &unauthorized)

	require.NoError(t, c.Revoke(admin, operator, CapOperator))
	require.ErrorAs(t, c.Require(operator, CapOperator), &unauthorized)
}
