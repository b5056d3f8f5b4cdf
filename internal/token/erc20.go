package token

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
)

// erc20ABI covers the transfer/allowance/permit surface plus mint and burn
// for tokens that expose them.
const erc20ABI = `[
	{"name":"transfer","type":"function","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"transferFrom","type":"function","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"permit","type":"function","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"},{"name":"value","type":"uint256"},{"name":"deadline","type":"uint256"},{"name":"v","type":"uint8"},{"name":"r","type":"bytes32"},{"name":"s","type":"bytes32"}],"outputs":[]},
	{"name":"mint","type":"function","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"name":"burn","type":"function","inputs":[{"name":"from","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]}
]`

// ERC20 is a JSON-RPC adapter implementing both Reference and Synth against
// a deployed contract.
type ERC20 struct {
	client     *ethclient.Client
	address    common.Address
	privateKey *ecdsa.PrivateKey
	chainID    *big.Int
	abi        abi.ABI
}

func NewERC20(rpcURL string, address common.Address, chainID int64, privateKey *ecdsa.PrivateKey) (*ERC20, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, errors.Wrap(err, "token: dial rpc")
	}
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, errors.Wrap(err, "token: parse abi")
	}
	return &ERC20{
		client:     client,
		address:    address,
		privateKey: privateKey,
		chainID:    big.NewInt(chainID),
		abi:        parsed,
	}, nil
}

func (t *ERC20) send(ctx context.Context, data []byte) error {
	from := crypto.PubkeyToAddress(t.privateKey.PublicKey)
	nonce, err := t.client.PendingNonceAt(ctx, from)
	if err != nil {
		return errors.Wrap(err, "token: nonce")
	}
	gasPrice, err := t.client.SuggestGasPrice(ctx)
	if err != nil {
		return errors.Wrap(err, "token: gas price")
	}
	gasLimit, err := t.client.EstimateGas(ctx, ethereum.CallMsg{
		From: from,
		To:   &t.address,
		Data: data,
	})
	if err != nil {
		return errors.Wrap(err, "token: estimate gas")
	}
	tx := ethtypes.NewTransaction(nonce, t.address, big.NewInt(0), gasLimit, gasPrice, data)
	signed, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(t.chainID), t.privateKey)
	if err != nil {
		return errors.Wrap(err, "token: sign tx")
	}
	return errors.Wrap(t.client.SendTransaction(ctx, signed), "token: send tx")
}

func (t *ERC20) pack(method string, args ...interface{}) ([]byte, error) {
	data, err := t.abi.Pack(method, args...)
	return data, errors.Wrapf(err, "token: pack %s", method)
}

func (t *ERC20) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	data, err := t.pack("transfer", to, amount)
	if err != nil {
		return err
	}
	return t.send(ctx, data)
}

func (t *ERC20) TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error {
	data, err := t.pack("transferFrom", from, to, amount)
	if err != nil {
		return err
	}
	return t.send(ctx, data)
}

func (t *ERC20) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	data, err := t.pack("balanceOf", owner)
	if err != nil {
		return nil, err
	}
	result, err := t.client.CallContract(ctx, ethereum.CallMsg{To: &t.address, Data: data}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "token: call balanceOf")
	}
	var balance *big.Int
	if err := t.abi.UnpackIntoInterface(&balance, "balanceOf", result); err != nil {
		return nil, errors.Wrap(err, "token: unpack balanceOf")
	}
	return balance, nil
}

func (t *ERC20) Permit(ctx context.Context, owner, spender common.Address, sig PermitSignature) error {
	data, err := t.pack("permit", owner, spender, sig.Value, sig.Deadline, sig.V, sig.R, sig.S)
	if err != nil {
		return err
	}
	return t.send(ctx, data)
}

func (t *ERC20) Mint(ctx context.Context, to common.Address, amount *big.Int) error {
	data, err := t.pack("mint", to, amount)
	if err != nil {
		return err
	}
	return t.send(ctx, data)
}

func (t *ERC20) Burn(ctx context.Context, from common.Address, amount *big.Int) error {
	data, err := t.pack("burn", from, amount)
	if err != nil {
		return err
	}
	return t.send(ctx, data)
}
