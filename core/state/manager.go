package state

import (
	"errors"
	"fmt"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"agrichain/storage"
)

// Manager owns the persisted ledger and record state. All mutations run
// through Update, one at a time, and reach the database as a single batch.
type Manager struct {
	db storage.Database
	mu sync.RWMutex
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

var (
	balancePrefix   = []byte("balance:")
	escrowPrefix    = []byte("escrow:")
	pollPrefix      = []byte("poll:")
	candidatePrefix = []byte("candidate:")
	supplyKey       = ethcrypto.Keccak256([]byte("supply"))
)

func prefixedKey(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, part := range parts {
		size += len(part)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for _, part := range parts {
		buf = append(buf, part...)
	}
	return ethcrypto.Keccak256(buf)
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// Update runs fn as one unit of work. Writes made through the Txn become
// visible to later units only if fn returns nil and the batch commits.
func (m *Manager) Update(fn func(*Txn) error) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state manager unavailable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	txn := newTxn(m.db)
	if err := fn(txn); err != nil {
		return err
	}
	return txn.commit()
}

// View runs fn against the committed state. Writes made by fn are dropped.
func (m *Manager) View(fn func(*Txn) error) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state manager unavailable")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(newTxn(m.db))
}

// Txn is the working set of one unit of work: reads fall through to the
// database, writes stay in the overlay until commit.
type Txn struct {
	db      storage.Database
	overlay map[string][]byte
	deleted map[string]bool
}

func newTxn(db storage.Database) *Txn {
	return &Txn{db: db, overlay: make(map[string][]byte), deleted: make(map[string]bool)}
}

func (t *Txn) get(key []byte) ([]byte, error) {
	k := string(key)
	if t.deleted[k] {
		return nil, nil
	}
	if value, ok := t.overlay[k]; ok {
		return value, nil
	}
	value, err := t.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return value, err
}

func (t *Txn) set(key []byte, value []byte) {
	k := string(key)
	delete(t.deleted, k)
	t.overlay[k] = value
}

func (t *Txn) remove(key []byte) {
	k := string(key)
	delete(t.overlay, k)
	t.deleted[k] = true
}

func (t *Txn) commit() error {
	if len(t.overlay) == 0 && len(t.deleted) == 0 {
		return nil
	}
	batch := t.db.NewBatch()
	for k, v := range t.overlay {
		batch.Put([]byte(k), v)
	}
	for k := range t.deleted {
		batch.Delete([]byte(k))
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: commit batch: %w", err)
	}
	return nil
}

func (t *Txn) putRLP(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	t.set(key, encoded)
	return nil
}

func (t *Txn) getRLP(key []byte, out interface{}) (bool, error) {
	data, err := t.get(key)
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is hashed with keccak256 before it reaches the database.
func (t *Txn) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return t.putRLP(kvKey(key), value)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (t *Txn) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	return t.getRLP(kvKey(key), out)
}
