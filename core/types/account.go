package types

// Account is the ledger view of a single holder. Escrow custody slots are
// ordinary accounts whose address is derived from the record key.
type Account struct {
	Address [20]byte `json:"address"`
	Balance uint64   `json:"balance"`
}
