package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shadowtick/liquidator/internal/chain/contractclient"
	"github.com/shadowtick/liquidator/internal/health"
	"github.com/shadowtick/liquidator/internal/oracle"
	"github.com/shadowtick/liquidator/internal/orchestrator"
	"github.com/shadowtick/liquidator/internal/presim"
	"github.com/shadowtick/liquidator/internal/token"
	"github.com/shadowtick/liquidator/pkg/types"
)

// PlanConfig carries the tunables BuildPlan needs beyond what
// orchestrator.PlanBuilder's narrow signature passes through: the
// liquidation bonus percentage.
type PlanConfig struct {
	LiquidationBonusPct float64
}

// RegisterPricing gives the Client the oracle/token-registry references
// BuildPlan needs to rank a liquidatable user's reserves by USD value; these
// are relations (spec.md §3 "HealthFactorEngine holds weak references"), not
// ownership, mirrored here for the plan builder's own read-only lookups.
func (c *Client) RegisterPricing(o *oracle.Oracle, reg *token.Registry, planCfg PlanConfig) {
	c.priceOracle = o
	c.tokenRegistry = reg
	c.planCfg = planCfg
}

type reserveBalance struct {
	reserve types.Address
	amount  *big.Int
	usd     float64
}

// reservesListCached fetches and caches getReservesList(); the reserve set
// changes only on a protocol listing event, far rarer than any per-user
// decision path.
func (c *Client) reservesListCached(ctx context.Context) ([]common.Address, error) {
	c.reservesMu.Lock()
	defer c.reservesMu.Unlock()
	if c.reservesList != nil {
		return c.reservesList, nil
	}
	out, err := c.pool.Call(ctx, nil, "getReservesList")
	if err != nil {
		return nil, fmt.Errorf("chain: getReservesList: %w", err)
	}
	list, ok := out[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("chain: unexpected getReservesList return type")
	}
	c.reservesList = list
	return list, nil
}

// userConfiguration decodes Aave v3's packed per-reserve bitmap: bit 2*i is
// "borrowing reserve i", bit 2*i+1 is "using reserve i as collateral".
func (c *Client) userConfiguration(ctx context.Context, user types.Address) (*big.Int, error) {
	out, err := c.pool.Call(ctx, nil, "getUserConfiguration", user.Common())
	if err != nil {
		return nil, fmt.Errorf("chain: getUserConfiguration: %w", err)
	}
	cfg, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain: unexpected getUserConfiguration return type")
	}
	return cfg, nil
}

func bitSet(cfg *big.Int, bit uint) bool {
	return cfg.Bit(int(bit)) == 1
}

// reserveTokenAddrs reads a reserve's aToken/variableDebtToken addresses.
func (c *Client) reserveTokenAddrs(ctx context.Context, reserve common.Address) (aToken, debtToken common.Address, err error) {
	out, err := c.pool.Call(ctx, nil, "getReserveData", reserve)
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("chain: getReserveData(%s): %w", reserve, err)
	}
	a, _ := out[8].(common.Address)
	d, _ := out[10].(common.Address)
	return a, d, nil
}

func (c *Client) erc20BalanceOf(ctx context.Context, tokenAddr, owner common.Address) (*big.Int, error) {
	holder := contractclient.NewContractClient(c.public, tokenAddr, c.token.ABI()).WithChainID(c.chainID)
	out, err := holder.Call(ctx, nil, "balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("chain: balanceOf(%s, %s): %w", tokenAddr, owner, err)
	}
	v, _ := out[0].(*big.Int)
	return v, nil
}

// usdValue prices a raw token amount via the registered oracle/registry,
// falling back to 0 (never selected) when either collaborator or the
// token's metadata is missing, since BuildPlan must never panic on an
// unregistered reserve.
func (c *Client) usdValue(ctx context.Context, reserve types.Address, amount *big.Int) float64 {
	if c.priceOracle == nil || c.tokenRegistry == nil || amount == nil {
		return 0
	}
	meta, ok := c.tokenRegistry.Get(reserve)
	if !ok {
		return 0
	}
	price, err := c.priceOracle.GetPrice(ctx, meta.Symbol)
	if err != nil {
		return 0
	}
	priceInt := new(big.Int).SetInt64(int64(price.Price * 1e8))
	v, err := c.tokenRegistry.USDValue(reserve, amount, priceInt, 8)
	if err != nil {
		return 0
	}
	return v
}

// BuildPlan implements orchestrator.PlanBuilder: selects the user's largest
// outstanding debt reserve and largest collateral reserve by USD value, and
// sizes the repay amount by the configured close-factor mode, per spec.md
// §4.13 "chose debt asset / collateral / repayAmount via close-factor mode".
func (c *Client) BuildPlan(ctx context.Context, user types.Address, data health.AccountData, mode orchestrator.CloseFactorMode) (presim.LiquidationPlan, error) {
	reserves, err := c.reservesListCached(ctx)
	if err != nil {
		return presim.LiquidationPlan{}, err
	}
	cfg, err := c.userConfiguration(ctx, user)
	if err != nil {
		return presim.LiquidationPlan{}, err
	}

	var bestDebt, bestCollat reserveBalance
	for i, r := range reserves {
		borrowing := bitSet(cfg, uint(2*i))
		collateral := bitSet(cfg, uint(2*i+1))
		if !borrowing && !collateral {
			continue
		}
		aToken, debtToken, err := c.reserveTokenAddrs(ctx, r)
		if err != nil {
			continue
		}
		reserveAddr := types.FromCommon(r)
		if borrowing {
			amt, err := c.erc20BalanceOf(ctx, debtToken, user.Common())
			if err == nil && amt != nil && amt.Sign() > 0 {
				usd := c.usdValue(ctx, reserveAddr, amt)
				if usd > bestDebt.usd {
					bestDebt = reserveBalance{reserve: reserveAddr, amount: amt, usd: usd}
				}
			}
		}
		if collateral {
			amt, err := c.erc20BalanceOf(ctx, aToken, user.Common())
			if err == nil && amt != nil && amt.Sign() > 0 {
				usd := c.usdValue(ctx, reserveAddr, amt)
				if usd > bestCollat.usd {
					bestCollat = reserveBalance{reserve: reserveAddr, amount: amt, usd: usd}
				}
			}
		}
	}

	if bestDebt.amount == nil || bestCollat.amount == nil {
		return presim.LiquidationPlan{}, fmt.Errorf("chain: could not identify debt/collateral reserves for %s", user)
	}

	closeFactor := 0.5
	if mode == orchestrator.CloseFactorMode("max") {
		closeFactor = 1.0
	}
	repay := new(big.Int).Div(new(big.Int).Mul(bestDebt.amount, big.NewInt(int64(closeFactor*1e4))), big.NewInt(1e4))
	repayUsd := bestDebt.usd * closeFactor

	bonus := 1 + c.planCfg.LiquidationBonusPct/100
	estProfitUsd := repayUsd * (c.planCfg.LiquidationBonusPct / 100)
	expectedCollateral := new(big.Int).Div(new(big.Int).Mul(repay, big.NewInt(int64(bonus*1e4))), big.NewInt(1e4))

	return presim.LiquidationPlan{
		Key: presim.PlanKey{
			User:            user,
			DebtAsset:       bestDebt.reserve,
			CollateralAsset: bestCollat.reserve,
		},
		RepayAmount:        repay,
		ExpectedCollateral: expectedCollateral,
		DebtUsd:            bestDebt.usd,
		RepayUsd:           repayUsd,
		EstimatedProfitUsd: estProfitUsd,
	}, nil
}
