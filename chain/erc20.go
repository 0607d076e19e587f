// Package chain 封装 go-ethereum 读操作：ERC-20 余额与 Uniswap-V3 成交日志。
package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const erc20ABI = `[
{"constant":true,"inputs":[{"name":"","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

var parsedERC20 = mustABI(erc20ABI)

func mustABI(raw string) abi.ABI {
	a, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return a
}

// Backend 是余额查询所需的最小 RPC 能力，*ethclient.Client 满足该接口。
type Backend interface {
	ethereum.ContractCaller
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// ERC20Balances 读取账户余额；零地址表示原生币（18 位小数）。
type ERC20Balances struct {
	backend Backend

	mu       sync.Mutex
	decimals map[common.Address]int32
}

func NewERC20Balances(b Backend) *ERC20Balances {
	return &ERC20Balances{backend: b, decimals: make(map[common.Address]int32)}
}

// Balances 返回 token -> 人类可读余额。
func (e *ERC20Balances) Balances(ctx context.Context, account string, tokens []string) (map[string]decimal.Decimal, error) {
	if !common.IsHexAddress(account) {
		return nil, fmt.Errorf("invalid account %q", account)
	}
	owner := common.HexToAddress(account)
	out := make(map[string]decimal.Decimal, len(tokens))
	for _, t := range tokens {
		if !common.IsHexAddress(t) {
			return nil, fmt.Errorf("invalid token %q", t)
		}
		token := common.HexToAddress(t)
		bal, err := e.balance(ctx, owner, token)
		if err != nil {
			return nil, fmt.Errorf("balance %s: %w", t, err)
		}
		out[t] = bal
	}
	return out, nil
}

func (e *ERC20Balances) balance(ctx context.Context, owner, token common.Address) (decimal.Decimal, error) {
	if token == (common.Address{}) {
		wei, err := e.backend.BalanceAt(ctx, owner, nil)
		if err != nil {
			return decimal.Zero, err
		}
		return ToDecimal(wei, 18), nil
	}
	dec, err := e.tokenDecimals(ctx, token)
	if err != nil {
		return decimal.Zero, err
	}
	var raw *big.Int
	if err := e.call(ctx, token, "balanceOf", &raw, owner); err != nil {
		return decimal.Zero, err
	}
	return ToDecimal(raw, dec), nil
}

// TokenDecimals 返回 token 精度（带缓存）。
func (e *ERC20Balances) TokenDecimals(ctx context.Context, token string) (int32, error) {
	if !common.IsHexAddress(token) {
		return 0, fmt.Errorf("invalid token %q", token)
	}
	addr := common.HexToAddress(token)
	if addr == (common.Address{}) {
		return 18, nil
	}
	return e.tokenDecimals(ctx, addr)
}

func (e *ERC20Balances) tokenDecimals(ctx context.Context, token common.Address) (int32, error) {
	e.mu.Lock()
	d, ok := e.decimals[token]
	e.mu.Unlock()
	if ok {
		return d, nil
	}
	var v uint8
	if err := e.call(ctx, token, "decimals", &v); err != nil {
		return 0, err
	}
	e.mu.Lock()
	e.decimals[token] = int32(v)
	e.mu.Unlock()
	return int32(v), nil
}

func (e *ERC20Balances) call(ctx context.Context, to common.Address, method string, out interface{}, args ...interface{}) error {
	data, err := parsedERC20.Pack(method, args...)
	if err != nil {
		return err
	}
	res, err := e.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if err := parsedERC20.UnpackIntoInterface(out, method, res); err != nil {
		return fmt.Errorf("%s unpack: %w", method, err)
	}
	return nil
}

// ToDecimal 最小单位 -> 人类可读数量。
func ToDecimal(v *big.Int, decimals int32) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -decimals)
}
