package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	native   *big.Int
	balances map[common.Address]*big.Int
	decimals map[common.Address]uint8
	calls    int
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls++
	method, err := parsedERC20.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "decimals":
		return method.Outputs.Pack(f.decimals[*msg.To])
	case "balanceOf":
		bal, ok := f.balances[*msg.To]
		if !ok {
			return nil, errors.New("execution reverted")
		}
		return method.Outputs.Pack(bal)
	}
	return nil, errors.New("unexpected method")
}

func (f *fakeBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return f.native, nil
}

const (
	usdc = "0xaf88d065e77c8cC2239327C5EDb3A432268e5831"
	weth = "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"
	me   = "0x1111111111111111111111111111111111111111"
)

func TestERC20Balances(t *testing.T) {
	b := &fakeBackend{
		native: new(big.Int).Mul(big.NewInt(2), big.NewInt(1e18)),
		balances: map[common.Address]*big.Int{
			common.HexToAddress(usdc): big.NewInt(3_000_500_000),
		},
		decimals: map[common.Address]uint8{common.HexToAddress(usdc): 6},
	}
	e := NewERC20Balances(b)
	zero := common.Address{}.Hex()

	got, err := e.Balances(context.Background(), me, []string{usdc, zero})
	require.NoError(t, err)
	assert.True(t, got[usdc].Equal(decimal.RequireFromString("3000.5")), "usdc %s", got[usdc])
	assert.True(t, got[zero].Equal(decimal.NewFromInt(2)), "native %s", got[zero])

	calls := b.calls
	_, err = e.Balances(context.Background(), me, []string{usdc})
	require.NoError(t, err)
	assert.Equal(t, calls+1, b.calls, "decimals should be cached")

	dec, err := e.TokenDecimals(context.Background(), zero)
	require.NoError(t, err)
	assert.Equal(t, int32(18), dec)
}

func TestERC20BalancesErrors(t *testing.T) {
	e := NewERC20Balances(&fakeBackend{decimals: map[common.Address]uint8{}})
	_, err := e.Balances(context.Background(), "nope", nil)
	assert.Error(t, err)
	_, err = e.Balances(context.Background(), me, []string{"nope"})
	assert.Error(t, err)
	_, err = e.Balances(context.Background(), me, []string{weth})
	assert.Error(t, err)
}
