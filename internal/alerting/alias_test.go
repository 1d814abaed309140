package alerting

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func TestAlias_Stable(t *testing.T) {
	addr := common.HexToAddress("0xC26f10e1b37A1E7A7De266FeF0c19533489C3e75")

	want := "low-balance-" + crypto.Keccak256Hash([]byte("0xC26f10e1b37A1E7A7De266FeF0c19533489C3e75"+"31337")).Hex()
	if got := Alias(ConcernLowBalance, addr, "31337"); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
	if Alias(ConcernLowBalance, addr, "31337") != Alias(ConcernLowBalance, addr, "31337") {
		t.Error("Expected identical aliases across calls")
	}
}

func TestAlias_Distinct(t *testing.T) {
	addr := common.HexToAddress("0xC26f10e1b37A1E7A7De266FeF0c19533489C3e75")
	other := common.HexToAddress("0x9fEe9F24ab79adacbB51af82fb82CFb9D818c6d9")

	base := Alias(ConcernLowBalance, addr, "1")
	for _, alias := range []string{
		Alias(ConcernLowBalance, other, "1"),
		Alias(ConcernLowBalance, addr, "137"),
		Alias(ConcernCriticalLowBalance, addr, "1"),
	} {
		if alias == base {
			t.Errorf("Expected %s to differ from %s", alias, base)
		}
	}
}

func TestAlias_CaseInsensitiveAddress(t *testing.T) {
	lower := common.HexToAddress(strings.ToLower("0xC26f10e1b37A1E7A7De266FeF0c19533489C3e75"))
	mixed := common.HexToAddress("0xC26f10e1b37A1E7A7De266FeF0c19533489C3e75")
	if Alias(ConcernNoSponsor, lower, "1") != Alias(ConcernNoSponsor, mixed, "1") {
		t.Error("Expected alias to ignore address casing")
	}
}
