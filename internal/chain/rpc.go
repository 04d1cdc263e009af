package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/and161185/paywall/internal/model"
	"github.com/and161185/paywall/internal/wallet"
)

// transferTopic is the ERC-20 Transfer(address,address,uint256) event signature.
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// LogFilterer is the subset of ethclient.Client used by RPCSource.
type LogFilterer interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// RPCSource reads transfers straight from a node with eth_getLogs.
type RPCSource struct {
	client   LogFilterer
	token    common.Address
	decimals int
}

// NewRPCSource constructs a source for the token contract.
func NewRPCSource(client LogFilterer, token string, decimals int) *RPCSource {
	return &RPCSource{client: client, token: common.HexToAddress(token), decimals: decimals}
}

// TransfersTo lists Transfer events to q.Recipient, newest first.
func (s *RPCSource) TransfersTo(ctx context.Context, q Query) ([]model.Transfer, error) {
	var fromTopics []common.Hash
	if q.From != "" {
		fromTopics = []common.Hash{addressTopic(q.From)}
	}
	fq := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(q.SinceBlock),
		Addresses: []common.Address{s.token},
		Topics: [][]common.Hash{
			{transferTopic},
			fromTopics,
			{addressTopic(q.Recipient)},
		},
	}
	logs, err := s.client.FilterLogs(ctx, fq)
	if err != nil {
		return nil, err
	}

	out := make([]model.Transfer, 0, len(logs))
	for i := len(logs) - 1; i >= 0; i-- {
		l := logs[i]
		if l.Removed || len(l.Topics) != 3 || l.Topics[0] != transferTopic {
			continue
		}
		out = append(out, model.Transfer{
			BlockNumber:   l.BlockNumber,
			TxHash:        l.TxHash.Hex(),
			From:          wallet.Lower(common.BytesToAddress(l.Topics[1].Bytes()).Hex()),
			To:            wallet.Lower(common.BytesToAddress(l.Topics[2].Bytes()).Hex()),
			Value:         new(big.Int).SetBytes(l.Data),
			TokenDecimals: s.decimals,
		})
	}
	return out, nil
}

func addressTopic(addr string) common.Hash {
	return common.BytesToHash(common.HexToAddress(addr).Bytes())
}
