package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

// FeeOptions selects how top-up transactions are priced.
type FeeOptions struct {
	Legacy            bool
	LegacyMultiplier  float64
	BaseFeeMultiplier float64
	// PriorityFee overrides the node's suggested tip when set.
	PriorityFee *big.Int
}

// GasParams is the fee target for one transaction. Either GasPrice (legacy)
// or GasFeeCap and GasTipCap (dynamic) are set.
type GasParams struct {
	GasPrice  *big.Int
	GasFeeCap *big.Int
	GasTipCap *big.Int
}

// Legacy reports whether the params describe a legacy transaction.
func (g *GasParams) Legacy() bool {
	return g.GasPrice != nil
}

func (g *GasParams) String() string {
	if g.Legacy() {
		return fmt.Sprintf("gasPrice=%s", g.GasPrice)
	}
	return fmt.Sprintf("maxFeePerGas=%s maxPriorityFeePerGas=%s", g.GasFeeCap, g.GasTipCap)
}

// SuggestFees computes a fee target for the chain b is connected to.
func SuggestFees(ctx context.Context, b Backend, opts FeeOptions) (*GasParams, error) {
	if opts.Legacy {
		price, err := b.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get gas price: %w", err)
		}
		return &GasParams{GasPrice: scale(price, opts.LegacyMultiplier)}, nil
	}

	head, err := b.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest header: %w", err)
	}
	if head.BaseFee == nil {
		// Chain has not activated London; fall back to a legacy price.
		price, err := b.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get gas price: %w", err)
		}
		return &GasParams{GasPrice: scale(price, opts.LegacyMultiplier)}, nil
	}

	tip := opts.PriorityFee
	if tip == nil {
		tip, err = b.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get priority fee: %w", err)
		}
	}
	feeCap := new(big.Int).Add(scale(head.BaseFee, opts.BaseFeeMultiplier), tip)
	return &GasParams{GasFeeCap: feeCap, GasTipCap: new(big.Int).Set(tip)}, nil
}

// scale multiplies v by m, truncating toward zero. A non-positive m leaves v
// unchanged.
func scale(v *big.Int, m float64) *big.Int {
	if m <= 0 {
		return new(big.Int).Set(v)
	}
	return decimal.NewFromBigInt(v, 0).Mul(decimal.NewFromFloat(m)).BigInt()
}

// txData builds the unsigned payload for a value transfer.
func (g *GasParams) txData(chainID *big.Int, nonce, gas uint64, to common.Address, value *big.Int) types.TxData {
	if g.Legacy() {
		return &types.LegacyTx{
			Nonce:    nonce,
			GasPrice: g.GasPrice,
			Gas:      gas,
			To:       &to,
			Value:    value,
		}
	}
	return &types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: g.GasTipCap,
		GasFeeCap: g.GasFeeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
	}
}
