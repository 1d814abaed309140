package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// transferGas is used when the node cannot estimate a plain transfer.
const transferGas = 21000

// Funder sends native-currency transfers from one key on one chain. Sends
// are serialized and nonces are tracked locally so concurrent top-ups never
// reuse a nonce.
type Funder struct {
	backend Backend
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	signer  types.Signer
	log     *slog.Logger

	txMutex      sync.Mutex
	nonceLoaded  bool
	pendingNonce uint64
}

// NewFunder binds key to the chain b is connected to.
func NewFunder(b Backend, key *ecdsa.PrivateKey, chainID *big.Int) *Funder {
	address := crypto.PubkeyToAddress(key.PublicKey)
	return &Funder{
		backend: b,
		key:     key,
		address: address,
		chainID: chainID,
		signer:  types.LatestSignerForChainID(chainID),
		log:     slog.Default().With("funder", address.Hex(), "chain", chainID.String()),
	}
}

func (f *Funder) Address() common.Address {
	return f.address
}

// Balance returns the funder's latest balance.
func (f *Funder) Balance(ctx context.Context) (*big.Int, error) {
	balance, err := f.backend.BalanceAt(ctx, f.address, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get funder balance: %w", err)
	}
	return balance, nil
}

// Send signs and submits a transfer of value to to. The nonce is reloaded
// from the node after a failed submission.
func (f *Funder) Send(ctx context.Context, to common.Address, value *big.Int, fees *GasParams) (*types.Transaction, error) {
	f.txMutex.Lock()
	defer f.txMutex.Unlock()

	if !f.nonceLoaded {
		nonce, err := f.backend.PendingNonceAt(ctx, f.address)
		if err != nil {
			return nil, fmt.Errorf("failed to get pending nonce: %w", err)
		}
		f.pendingNonce = nonce
		f.nonceLoaded = true
	}

	gas, err := f.backend.EstimateGas(ctx, ethereum.CallMsg{From: f.address, To: &to, Value: value})
	if err != nil {
		f.log.Warn("Gas estimation failed, using transfer default", "to", to.Hex(), "error", err)
		gas = transferGas
	}

	tx, err := types.SignNewTx(f.key, f.signer, fees.txData(f.chainID, f.pendingNonce, gas, to, value))
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := f.backend.SendTransaction(ctx, tx); err != nil {
		f.nonceLoaded = false
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}
	f.pendingNonce = tx.Nonce() + 1

	f.log.Debug("Transaction submitted", "hash", tx.Hash().Hex(), "nonce", tx.Nonce(), "to", to.Hex(), "value", value.String())
	return tx, nil
}

// Wait blocks until tx is mined.
func (f *Funder) Wait(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	return WaitMined(ctx, f.backend, tx)
}
