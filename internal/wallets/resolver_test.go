package wallets

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/api3dao/wallet-watcher/internal/core/domain"
)

const (
	testXpub     = "xpub6Cqm1pKEocHJDZ6Ghdau2wmwaCxRUfnmFUrEvuTcsjj6c4bVMuq8MCypeJxMeYNgCupj23hrrpkWmdrTB7Q5MpGFMFtVuyYx7nGSRXhc8rH"
	testSponsor  = "0x9fEe9F24ab79adacbB51af82fb82CFb9D818c6d9"
	testAddress  = "0xC26f10e1b37A1E7A7De266FeF0c19533489C3e75"
	derivedPSP   = "0x39634c6f035DfEcC1da51bbd7dA9a26f5871BA9F"
	providerXpub = "xpub661MyMwAqRbcFeZ1CUvUpMs5bBSVLPHiuTqj7dZPertAGtd3xyTW1vrPspz7B34A7sdPahw7psrJjCXmn8KpF92jQssoqmsTk8fZ9PZN8xK"
)

func threshold(v string) *domain.Threshold {
	return &domain.Threshold{Value: decimal.RequireFromString(v), Unit: domain.UnitEther}
}

var chainNames = map[domain.ChainID]string{"31337": "localhost", "1": "ethereum"}

func TestResolve_DirectAndDerived(t *testing.T) {
	in := map[domain.ChainID][]domain.Wallet{
		"31337": {
			{Type: domain.WalletTypeAPI3, Address: testAddress, LowThreshold: threshold("0.2")},
			{Type: domain.WalletTypeProviderSponsor, Sponsor: testSponsor, ProviderXpub: testXpub, LowThreshold: threshold("0.2")},
			{Type: domain.WalletTypeAirseeker, Sponsor: testSponsor, ProviderXpub: testXpub, LowThreshold: threshold("0.2")},
		},
	}

	res, err := Resolve(in, chainNames, NewProtocolRegistry(""), false)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(res.Wallets) != 3 {
		t.Fatalf("Expected 3 wallets, got %d", len(res.Wallets))
	}
	if res.Wallets[0].Address != common.HexToAddress(testAddress) {
		t.Errorf("Expected direct address, got %s", res.Wallets[0].Address.Hex())
	}
	if res.Wallets[1].Address != common.HexToAddress(derivedPSP) {
		t.Errorf("Expected derived PSP address %s, got %s", derivedPSP, res.Wallets[1].Address.Hex())
	}
	if res.Wallets[2].Address == res.Wallets[1].Address {
		t.Error("Expected Airseeker wallet to differ from PSP wallet")
	}
	if res.Wallets[0].ChainName != "localhost" {
		t.Errorf("Expected chain name localhost, got %s", res.Wallets[0].ChainName)
	}
}

func TestResolve_API3SponsorUsesOperatorKey(t *testing.T) {
	in := map[domain.ChainID][]domain.Wallet{
		"1": {{Type: domain.WalletTypeAPI3Sponsor, Sponsor: testSponsor}},
	}
	res, err := Resolve(in, chainNames, NewProtocolRegistry(testXpub), false)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Wallets[0].Address != common.HexToAddress(derivedPSP) {
		t.Errorf("Expected %s, got %s", derivedPSP, res.Wallets[0].Address.Hex())
	}

	if _, err := Resolve(in, chainNames, NewProtocolRegistry(""), false); err == nil {
		t.Error("Expected error without operator key")
	}
}

func TestResolve_DedupKeepsHighestThreshold(t *testing.T) {
	in := map[domain.ChainID][]domain.Wallet{
		"31337": {
			{Type: domain.WalletTypeAPI3, Name: "low", Address: testAddress, LowThreshold: threshold("0.15")},
			{Type: domain.WalletTypeProvider, Name: "high", Address: testAddress, ProviderXpub: providerXpub, LowThreshold: threshold("0.2")},
			{Type: domain.WalletTypeMonitor, Name: "none", Address: testAddress},
		},
		"1": {
			{Type: domain.WalletTypeAPI3, Address: testAddress, LowThreshold: threshold("0.1")},
		},
	}

	res, err := Resolve(in, chainNames, NewProtocolRegistry(""), false)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(res.Wallets) != 2 {
		t.Fatalf("Expected one wallet per chain, got %d", len(res.Wallets))
	}
	if res.Wallets[0].ChainID != "1" || res.Wallets[1].ChainID != "31337" {
		t.Errorf("Expected chain order [1 31337], got [%s %s]", res.Wallets[0].ChainID, res.Wallets[1].ChainID)
	}
	if res.Wallets[1].Wallet.Name != "high" {
		t.Errorf("Expected highest threshold entry to win, got %q", res.Wallets[1].Wallet.Name)
	}
}

func TestResolve_Idempotent(t *testing.T) {
	in := map[domain.ChainID][]domain.Wallet{
		"31337": {
			{Type: domain.WalletTypeAPI3, Address: testAddress, LowThreshold: threshold("0.3")},
			{Type: domain.WalletTypeAirseeker, Sponsor: testSponsor, ProviderXpub: testXpub, LowThreshold: threshold("0.2")},
		},
		"1": {
			{Type: domain.WalletTypeAPI3, Address: testAddress, LowThreshold: threshold("0.1")},
		},
	}

	first, err := Resolve(in, chainNames, NewProtocolRegistry(""), false)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	second, err := Resolve(in, chainNames, NewProtocolRegistry(""), false)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(first.Wallets) != len(second.Wallets) {
		t.Fatalf("Expected same length, got %d and %d", len(first.Wallets), len(second.Wallets))
	}
	for i := range first.Wallets {
		if first.Wallets[i].Key() != second.Wallets[i].Key() {
			t.Errorf("Wallet %d differs: %s vs %s", i, first.Wallets[i].Key(), second.Wallets[i].Key())
		}
	}
}

func TestResolve_UnconfiguredChains(t *testing.T) {
	in := map[domain.ChainID][]domain.Wallet{
		"31337": {{Type: domain.WalletTypeAPI3, Address: testAddress}},
		"10":    {{Type: domain.WalletTypeAPI3, Address: testAddress}},
	}

	res, err := Resolve(in, chainNames, NewProtocolRegistry(""), false)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(res.Wallets) != 1 || len(res.Unconfigured) != 0 {
		t.Errorf("Expected unconfigured chain silently dropped, got %d wallets %v", len(res.Wallets), res.Unconfigured)
	}

	res, err = Resolve(in, chainNames, NewProtocolRegistry(""), true)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(res.Unconfigured) != 1 || res.Unconfigured[0] != "10" {
		t.Errorf("Expected chain 10 reported in monitor-only mode, got %v", res.Unconfigured)
	}
}

func TestResolve_UnknownType(t *testing.T) {
	in := map[domain.ChainID][]domain.Wallet{
		"1": {{Type: "Relayer", Address: testAddress}},
	}
	_, err := Resolve(in, chainNames, NewProtocolRegistry(""), false)
	if !errors.Is(err, ErrUnknownWalletType) {
		t.Errorf("Expected ErrUnknownWalletType, got %v", err)
	}
}
