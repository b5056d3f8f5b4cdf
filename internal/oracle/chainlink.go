package oracle

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
)

// aggregatorABI is the read surface of a Chainlink-compatible aggregator.
const aggregatorABI = `[
	{"name":"latestRoundData","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"roundId","type":"uint80"},{"name":"answer","type":"int256"},{"name":"startedAt","type":"uint256"},{"name":"updatedAt","type":"uint256"},{"name":"answeredInRound","type":"uint80"}]}
]`

// ChainlinkFeed reads latestRoundData from an on-chain aggregator. Only the
// answer and updatedAt fields are consumed; decimals are fixed per feed at
// configuration time.
type ChainlinkFeed struct {
	client  *ethclient.Client
	info    PriceFeedInfo
	feedABI abi.ABI
}

func NewChainlinkFeed(rpcURL string, info PriceFeedInfo) (*ChainlinkFeed, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, errors.Wrap(err, "oracle: dial rpc")
	}
	parsed, err := abi.JSON(strings.NewReader(aggregatorABI))
	if err != nil {
		return nil, errors.Wrap(err, "oracle: parse aggregator abi")
	}
	return &ChainlinkFeed{client: client, info: info, feedABI: parsed}, nil
}

func (f *ChainlinkFeed) LatestReading(ctx context.Context) (PushReading, error) {
	data, err := f.feedABI.Pack("latestRoundData")
	if err != nil {
		return PushReading{}, errors.Wrap(err, "oracle: pack latestRoundData")
	}
	source := f.info.Source
	result, err := f.client.CallContract(ctx, ethereum.CallMsg{To: &source, Data: data}, nil)
	if err != nil {
		return PushReading{}, errors.Wrap(err, "oracle: call latestRoundData")
	}
	out, err := f.feedABI.Unpack("latestRoundData", result)
	if err != nil {
		return PushReading{}, errors.Wrap(err, "oracle: unpack latestRoundData")
	}
	answer, ok := out[1].(*big.Int)
	if !ok {
		return PushReading{}, errors.New("oracle: unexpected answer type")
	}
	updatedAt, ok := out[3].(*big.Int)
	if !ok {
		return PushReading{}, errors.New("oracle: unexpected updatedAt type")
	}
	return PushReading{
		Price:     answer,
		Decimals:  f.info.Decimals,
		UpdatedAt: updatedAt.Int64(),
	}, nil
}

var _ PushFeed = (*ChainlinkFeed)(nil)
