// Package derivation derives sponsor wallet addresses from extended public
// keys and the funder signing key from a mnemonic.
package derivation

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

// Protocol ids scope derivation paths so that one sponsor gets a distinct
// wallet per protocol.
const (
	ProtocolPSP       = "2"
	ProtocolAirseeker = "5"
)

// FunderPath is the path of the funder account under the mnemonic root.
const FunderPath = "m/44'/60'/0'/0/0"

const (
	segmentBits  = 31
	segmentCount = 6
)

var (
	ErrPrivateKey      = errors.New("extended key must be public")
	ErrInvalidMnemonic = errors.New("invalid mnemonic")
	ErrInvalidProtocol = errors.New("invalid protocol id")
)

// SponsorPath returns the path, relative to the extended key, of the wallet
// that protocolID uses for sponsor.
func SponsorPath(sponsor common.Address, protocolID string) ([]uint32, error) {
	protocol, err := strconv.ParseUint(protocolID, 10, 32)
	if err != nil || protocol >= hdkeychain.HardenedKeyStart {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProtocol, protocolID)
	}

	n := new(big.Int).SetBytes(sponsor.Bytes())
	mask := big.NewInt(1<<segmentBits - 1)

	path := make([]uint32, 0, segmentCount+1)
	path = append(path, uint32(protocol))
	for i := 0; i < segmentCount; i++ {
		seg := new(big.Int).Rsh(n, uint(segmentBits*i))
		seg.And(seg, mask)
		path = append(path, uint32(seg.Uint64()))
	}
	return path, nil
}

// Derive returns the address of the wallet derived from xpub for sponsor
// under protocolID.
func Derive(sponsor common.Address, xpub string, protocolID string) (common.Address, error) {
	key, err := hdkeychain.NewKeyFromString(xpub)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to parse extended key: %w", err)
	}
	if key.IsPrivate() {
		return common.Address{}, ErrPrivateKey
	}

	path, err := SponsorPath(sponsor, protocolID)
	if err != nil {
		return common.Address{}, err
	}
	for _, idx := range path {
		key, err = key.Derive(idx)
		if err != nil {
			return common.Address{}, fmt.Errorf("failed to derive child %d: %w", idx, err)
		}
	}

	pub, err := key.ECPubKey()
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to get public key: %w", err)
	}
	ecPub, err := crypto.UnmarshalPubkey(pub.SerializeUncompressed())
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to convert public key: %w", err)
	}
	return crypto.PubkeyToAddress(*ecPub), nil
}

// FunderKey derives the funder signing key at FunderPath from mnemonic.
func FunderKey(mnemonic string) (*ecdsa.PrivateKey, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed := bip39.NewSeed(mnemonic, "")

	key, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}
	path, err := accounts.ParseDerivationPath(FunderPath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse funder path: %w", err)
	}
	for _, idx := range path {
		key, err = key.Derive(idx)
		if err != nil {
			return nil, fmt.Errorf("failed to derive child %d: %w", idx, err)
		}
	}

	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("failed to get private key: %w", err)
	}
	return priv.ToECDSA(), nil
}
