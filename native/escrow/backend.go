package escrow

// Ledger is the value-moving capability the engine consumes. Transfer must be
// atomic: it either debits from and credits to as one unit or fails without
// effect, returning ErrInsufficientFunds when from cannot cover amount.
type Ledger interface {
	Balance(holder [20]byte) (uint64, error)
	Transfer(from, to [20]byte, amount uint64) error
}

// Store is keyed persistence for escrow records. It holds no business logic.
type Store interface {
	// CreateRecord persists a new record, failing with ErrDuplicateKey when a
	// record already exists under the same key.
	CreateRecord(rec *Record) error
	// LoadRecord fails with ErrNotFound when no record exists.
	LoadRecord(key Key) (*Record, error)
	StoreRecord(rec *Record) error
	DestroyRecord(key Key) error
}

// Tx is the view of state available to one unit of work.
type Tx interface {
	Store
	Ledger
}

// Backend runs units of work. Update must serialize callers and either commit
// every write made through the Tx (fn returned nil) or none of them. View runs
// fn without committing anything.
type Backend interface {
	Update(fn func(Tx) error) error
	View(fn func(Tx) error) error
}
