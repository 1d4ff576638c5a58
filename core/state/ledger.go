package state

import (
	"fmt"
	"math"

	"agrichain/core/types"
	"agrichain/native/escrow"
)

func balanceKey(holder [20]byte) []byte {
	return prefixedKey(balancePrefix, holder[:])
}

// Balance returns the ledger balance of holder. Unknown holders have zero.
func (t *Txn) Balance(holder [20]byte) (uint64, error) {
	var balance uint64
	if _, err := t.getRLP(balanceKey(holder), &balance); err != nil {
		return 0, err
	}
	return balance, nil
}

func (t *Txn) setBalance(holder [20]byte, amount uint64) error {
	if amount == 0 {
		t.remove(balanceKey(holder))
		return nil
	}
	return t.putRLP(balanceKey(holder), amount)
}

// Transfer moves amount from one holder to another. A self transfer only
// checks that the holder can cover the amount.
func (t *Txn) Transfer(from, to [20]byte, amount uint64) error {
	if amount == 0 {
		return nil
	}
	fromBalance, err := t.Balance(from)
	if err != nil {
		return err
	}
	if fromBalance < amount {
		return escrow.ErrInsufficientFunds
	}
	if from == to {
		return nil
	}
	toBalance, err := t.Balance(to)
	if err != nil {
		return err
	}
	if toBalance > math.MaxUint64-amount {
		return escrow.ErrBalanceOverflow
	}
	if err := t.setBalance(from, fromBalance-amount); err != nil {
		return err
	}
	return t.setBalance(to, toBalance+amount)
}

// Credit mints amount to holder and grows the total supply. Only genesis
// allocation uses it.
func (t *Txn) Credit(holder [20]byte, amount uint64) error {
	if amount == 0 {
		return nil
	}
	balance, err := t.Balance(holder)
	if err != nil {
		return err
	}
	supply, err := t.totalSupply()
	if err != nil {
		return err
	}
	if balance > math.MaxUint64-amount || supply > math.MaxUint64-amount {
		return escrow.ErrBalanceOverflow
	}
	if err := t.setBalance(holder, balance+amount); err != nil {
		return err
	}
	return t.putRLP(supplyKey, supply+amount)
}

func (t *Txn) totalSupply() (uint64, error) {
	var supply uint64
	if _, err := t.getRLP(supplyKey, &supply); err != nil {
		return 0, fmt.Errorf("state: load supply: %w", err)
	}
	return supply, nil
}

// TotalSupply returns the sum of everything credited at genesis. Transfers
// never change it.
func (m *Manager) TotalSupply() (uint64, error) {
	var supply uint64
	err := m.View(func(t *Txn) error {
		var err error
		supply, err = t.totalSupply()
		return err
	})
	return supply, err
}

// Account returns the ledger view of one holder.
func (m *Manager) Account(holder [20]byte) (*types.Account, error) {
	account := &types.Account{Address: holder}
	err := m.View(func(t *Txn) error {
		balance, err := t.Balance(holder)
		if err != nil {
			return err
		}
		account.Balance = balance
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}
