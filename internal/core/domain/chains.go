package domain

import (
	"math/big"
	"sort"
	"strconv"
)

// ChainID is the decimal EIP-155 chain id as it appears in configuration keys.
type ChainID string

// BigInt returns the chain id as a signer-ready integer.
func (id ChainID) BigInt() (*big.Int, bool) {
	return new(big.Int).SetString(string(id), 10)
}

// SortChainIDs orders ids numerically, falling back to lexical order for
// ids that are not plain integers.
func SortChainIDs(ids []ChainID) {
	sort.SliceStable(ids, func(i, j int) bool {
		a, errA := strconv.ParseUint(string(ids[i]), 10, 64)
		b, errB := strconv.ParseUint(string(ids[j]), 10, 64)
		if errA == nil && errB == nil {
			return a < b
		}
		return ids[i] < ids[j]
	})
}
