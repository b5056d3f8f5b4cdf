package venue

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

// poolABI is the subset of the Aave v3 pool surface the vault touches.
const poolABI = `[
	{"name":"supply","type":"function","inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"onBehalfOf","type":"address"},{"name":"referralCode","type":"uint16"}],"outputs":[]},
	{"name":"withdraw","type":"function","inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"to","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const erc20BalanceABI = `[
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// AavePool talks to an Aave-v3-compatible pool over JSON-RPC. The receipt
// balance is read from the pool's aToken for the supplied asset.
type AavePool struct {
	client       *ethclient.Client
	poolAddress  common.Address
	aToken       common.Address
	privateKey   *ecdsa.PrivateKey
	chainID      *big.Int
	poolABI      abi.ABI
	balanceABI   abi.ABI
}

type AavePoolConfig struct {
	RPCURL      string
	PoolAddress common.Address
	AToken      common.Address // receipt token of the reference asset
	ChainID     int64
}

func NewAavePool(cfg AavePoolConfig, privateKey *ecdsa.PrivateKey) (*AavePool, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, errors.Wrap(err, "venue: dial rpc")
	}
	pABI, err := abi.JSON(strings.NewReader(poolABI))
	if err != nil {
		return nil, errors.Wrap(err, "venue: parse pool abi")
	}
	bABI, err := abi.JSON(strings.NewReader(erc20BalanceABI))
	if err != nil {
		return nil, errors.Wrap(err, "venue: parse balance abi")
	}
	return &AavePool{
		client:      client,
		poolAddress: cfg.PoolAddress,
		aToken:      cfg.AToken,
		privateKey:  privateKey,
		chainID:     big.NewInt(cfg.ChainID),
		poolABI:     pABI,
		balanceABI:  bABI,
	}, nil
}

func (p *AavePool) from() common.Address {
	return crypto.PubkeyToAddress(p.privateKey.PublicKey)
}

func (p *AavePool) send(ctx context.Context, data []byte) error {
	from := p.from()
	nonce, err := p.client.PendingNonceAt(ctx, from)
	if err != nil {
		return errors.Wrap(err, "venue: nonce")
	}
	gasPrice, err := p.client.SuggestGasPrice(ctx)
	if err != nil {
		return errors.Wrap(err, "venue: gas price")
	}
	gasLimit, err := p.client.EstimateGas(ctx, ethereum.CallMsg{
		From: from,
		To:   &p.poolAddress,
		Data: data,
	})
	if err != nil {
		return errors.Wrap(err, "venue: estimate gas")
	}
	tx := ethtypes.NewTransaction(nonce, p.poolAddress, big.NewInt(0), gasLimit, gasPrice, data)
	signed, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(p.chainID), p.privateKey)
	if err != nil {
		return errors.Wrap(err, "venue: sign tx")
	}
	return errors.Wrap(p.client.SendTransaction(ctx, signed), "venue: send tx")
}

func (p *AavePool) Supply(ctx context.Context, asset common.Address, amount *big.Int) error {
	data, err := p.poolABI.Pack("supply", asset, amount, p.from(), uint16(0))
	if err != nil {
		return errors.Wrap(err, "venue: pack supply")
	}
	return p.send(ctx, data)
}

// Withdraw simulates the call first to learn the actual amount the pool will
// release, then submits the transaction.
func (p *AavePool) Withdraw(ctx context.Context, asset common.Address, amount *big.Int, to common.Address) (*big.Int, error) {
	data, err := p.poolABI.Pack("withdraw", asset, amount, to)
	if err != nil {
		return nil, errors.Wrap(err, "venue: pack withdraw")
	}
	from := p.from()
	result, err := p.client.CallContract(ctx, ethereum.CallMsg{
		From: from,
		To:   &p.poolAddress,
		Data: data,
	}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "venue: simulate withdraw")
	}
	var actual *big.Int
	if err := p.poolABI.UnpackIntoInterface(&actual, "withdraw", result); err != nil {
		return nil, errors.Wrap(err, "venue: unpack withdraw")
	}
	if err := p.send(ctx, data); err != nil {
		return nil, err
	}
	return actual, nil
}

func (p *AavePool) ReceiptBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	data, err := p.balanceABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, errors.Wrap(err, "venue: pack balanceOf")
	}
	result, err := p.client.CallContract(ctx, ethereum.CallMsg{
		To:   &p.aToken,
		Data: data,
	}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "venue: call balanceOf")
	}
	var balance *big.Int
	if err := p.balanceABI.UnpackIntoInterface(&balance, "balanceOf", result); err != nil {
		return nil, errors.Wrap(err, "venue: unpack balanceOf")
	}
	return balance, nil
}
