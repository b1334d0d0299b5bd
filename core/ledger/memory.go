// Package ledger provides an in-process asset ledger implementing
// types.AssetLedger. Production deployments are expected to plug in
// their own collaborator (a token contract, a payments core); this one
// backs tests, examples and single-process embeddings.
package ledger

import (
	"context"
	"sync"

	"github.com/cockroachdb/apd/v3"
	"github.com/paystream/sdk-go/core/types"
	"github.com/paystream/sdk-go/core/util"
	"github.com/pkg/errors"
)

// ErrorInsufficientBalance rejects a transfer whose source account does
// not hold the requested amount of the asset.
var ErrorInsufficientBalance = errors.New("insufficient balance")

type balanceKey struct {
	account util.AccountID
	assetID string
}

// Memory holds per-(account, asset) balances as exact big integers.
// Safe for concurrent use; each transfer is atomic.
type Memory struct {
	mu       sync.Mutex
	balances map[balanceKey]*apd.BigInt
}

var _ types.AssetLedger = (*Memory)(nil)

// NewMemory creates an empty ledger. All balances start at zero.
func NewMemory() *Memory {
	return &Memory{balances: make(map[balanceKey]*apd.BigInt)}
}

// Mint credits an account with new units of an asset. Test and demo
// funding only; streams themselves never mint.
func (m *Memory) Mint(account util.AccountID, assetID string, amount *apd.BigInt) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.credit(account, assetID, amount)
}

// Transfer moves amount of assetID from one account to another
// atomically, failing with ErrorInsufficientBalance if the source does
// not cover it.
func (m *Memory) Transfer(_ context.Context, from, to util.AccountID, assetID string, amount *apd.BigInt) error {
	if amount == nil || amount.Sign() < 0 {
		return errors.Errorf("invalid transfer amount")
	}
	if amount.Sign() == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	fromKey := balanceKey{account: from, assetID: assetID}
	balance, ok := m.balances[fromKey]
	if !ok || balance.Cmp(amount) < 0 {
		return errors.Wrapf(ErrorInsufficientBalance,
			"account %s holds %s of %s, needs %s", from, m.balanceLocked(fromKey), assetID, amount)
	}

	balance.Sub(balance, amount)
	m.credit(to, assetID, amount)
	return nil
}

// BalanceOf returns the current balance of an account for an asset.
func (m *Memory) BalanceOf(account util.AccountID, assetID string) *apd.BigInt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return util.CloneAmount(m.balanceLocked(balanceKey{account: account, assetID: assetID}))
}

func (m *Memory) credit(account util.AccountID, assetID string, amount *apd.BigInt) {
	key := balanceKey{account: account, assetID: assetID}
	balance, ok := m.balances[key]
	if !ok {
		balance = new(apd.BigInt)
		m.balances[key] = balance
	}
	balance.Add(balance, amount)
}

func (m *Memory) balanceLocked(key balanceKey) *apd.BigInt {
	if balance, ok := m.balances[key]; ok {
		return balance
	}
	return new(apd.BigInt)
}
