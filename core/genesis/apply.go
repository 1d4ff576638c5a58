package genesis

import (
	"fmt"

	"agrichain/core/state"
)

var appliedKey = []byte("genesis/applied")

// Apply credits the genesis allocations in one unit of work. It is a no-op
// returning false when the state already carries a genesis.
func Apply(manager *state.Manager, spec *Spec) (bool, error) {
	if manager == nil {
		return false, fmt.Errorf("genesis: state manager must not be nil")
	}
	if spec == nil {
		return false, fmt.Errorf("genesis: spec must not be nil")
	}
	applied := false
	err := manager.Update(func(txn *state.Txn) error {
		var marker uint64
		ok, err := txn.KVGet(appliedKey, &marker)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		for _, alloc := range spec.Allocations() {
			if err := txn.Credit(alloc.Holder, alloc.Amount); err != nil {
				return fmt.Errorf("genesis: credit %x: %w", alloc.Holder, err)
			}
		}
		applied = true
		return txn.KVPut(appliedKey, uint64(len(spec.balances)))
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}
