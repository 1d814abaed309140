package evm

import (
	"context"
	"math/big"
	"testing"
)

func TestSuggestFees(t *testing.T) {
	tests := []struct {
		name    string
		opts    FeeOptions
		baseFee *big.Int
		legacy  bool
		price   int64
		feeCap  int64
		tipCap  int64
	}{
		{name: "legacy", opts: FeeOptions{Legacy: true, LegacyMultiplier: 1}, baseFee: big.NewInt(100), legacy: true, price: 10},
		{name: "legacy multiplied", opts: FeeOptions{Legacy: true, LegacyMultiplier: 2.5}, baseFee: big.NewInt(100), legacy: true, price: 25},
		{name: "eip1559 suggested tip", opts: FeeOptions{BaseFeeMultiplier: 2}, baseFee: big.NewInt(100), feeCap: 202, tipCap: 2},
		{name: "eip1559 fixed tip", opts: FeeOptions{BaseFeeMultiplier: 2, PriorityFee: big.NewInt(7)}, baseFee: big.NewInt(100), feeCap: 207, tipCap: 7},
		{name: "pre-london fallback", opts: FeeOptions{BaseFeeMultiplier: 2}, baseFee: nil, legacy: true, price: 10},
	}

	for _, tt := range tests {
		backend := newFakeBackend()
		backend.baseFee = tt.baseFee

		got, err := SuggestFees(context.Background(), backend, tt.opts)
		if err != nil {
			t.Fatalf("%s: SuggestFees failed: %v", tt.name, err)
		}
		if got.Legacy() != tt.legacy {
			t.Errorf("%s: Legacy() = %v, want %v", tt.name, got.Legacy(), tt.legacy)
			continue
		}
		if tt.legacy {
			if got.GasPrice.Int64() != tt.price {
				t.Errorf("%s: gas price = %s, want %d", tt.name, got.GasPrice, tt.price)
			}
			continue
		}
		if got.GasFeeCap.Int64() != tt.feeCap || got.GasTipCap.Int64() != tt.tipCap {
			t.Errorf("%s: got %s, want feeCap=%d tipCap=%d", tt.name, got, tt.feeCap, tt.tipCap)
		}
	}
}
