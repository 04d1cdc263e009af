package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

type fakeFilterer struct {
	got  ethereum.FilterQuery
	logs []types.Log
	err  error
}

func (f *fakeFilterer) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.got = q
	return f.logs, f.err
}

func transferLog(block uint64, from, to string, value int64) types.Log {
	return types.Log{
		Address:     common.HexToAddress(testToken),
		Topics:      []common.Hash{transferTopic, addressTopic(from), addressTopic(to)},
		Data:        common.LeftPadBytes(big.NewInt(value).Bytes(), 32),
		BlockNumber: block,
		TxHash:      common.BigToHash(big.NewInt(int64(block))),
	}
}

func TestRPCSource_TransfersTo(t *testing.T) {
	removed := transferLog(12, testPayer, testRecipient, 5)
	removed.Removed = true
	f := &fakeFilterer{logs: []types.Log{
		transferLog(10, testPayer, testRecipient, 1500000),
		transferLog(11, testPayer, testRecipient, 2000000),
		removed,
	}}
	src := NewRPCSource(f, testToken, 6)

	got, err := src.TransfersTo(context.Background(), Query{Recipient: testRecipient, From: testPayer, SinceBlock: 7})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, uint64(11), got[0].BlockNumber, "newest first")
	require.Equal(t, testPayer, got[0].From)
	require.Equal(t, testRecipient, got[0].To)
	require.Equal(t, int64(2000000), got[0].Value.Int64())

	require.Equal(t, int64(7), f.got.FromBlock.Int64())
	require.Equal(t, []common.Address{common.HexToAddress(testToken)}, f.got.Addresses)
	require.Len(t, f.got.Topics, 3)
	require.Equal(t, []common.Hash{addressTopic(testPayer)}, f.got.Topics[1])
}

func TestRPCSource_AnySender(t *testing.T) {
	f := &fakeFilterer{}
	_, err := NewRPCSource(f, testToken, 6).TransfersTo(context.Background(), Query{Recipient: testRecipient})
	require.NoError(t, err)
	require.Nil(t, f.got.Topics[1])
}

func TestRPCSource_Error(t *testing.T) {
	f := &fakeFilterer{err: errors.New("node down")}
	_, err := NewRPCSource(f, testToken, 6).TransfersTo(context.Background(), Query{Recipient: testRecipient})
	require.Error(t, err)
}
