package state

import (
	"fmt"

	"agrichain/native/escrow"
)

type storedRecord struct {
	Key          [32]byte
	Buyer        [20]byte
	Seller       [20]byte
	Receiver     [20]byte
	OrderDetails string
	Amount       uint64
	Funded       uint64
	Reserve      uint64
	Status       uint8
	Bump         uint8
	CreatedAt    uint64
	UpdatedAt    uint64
}

func escrowRecordKey(key escrow.Key) []byte {
	return prefixedKey(escrowPrefix, key[:])
}

func newStoredRecord(rec *escrow.Record) *storedRecord {
	return &storedRecord{
		Key:          rec.Key,
		Buyer:        rec.Buyer,
		Seller:       rec.Seller,
		Receiver:     rec.Receiver,
		OrderDetails: rec.OrderDetails,
		Amount:       rec.Amount,
		Funded:       rec.Funded,
		Reserve:      rec.Reserve,
		Status:       uint8(rec.Status),
		Bump:         rec.Bump,
		CreatedAt:    uint64(rec.CreatedAt),
		UpdatedAt:    uint64(rec.UpdatedAt),
	}
}

func (s *storedRecord) toRecord() *escrow.Record {
	return &escrow.Record{
		Key:          escrow.Key(s.Key),
		Buyer:        s.Buyer,
		Seller:       s.Seller,
		Receiver:     s.Receiver,
		OrderDetails: s.OrderDetails,
		Amount:       s.Amount,
		Funded:       s.Funded,
		Reserve:      s.Reserve,
		Status:       escrow.Status(s.Status),
		Bump:         s.Bump,
		CreatedAt:    int64(s.CreatedAt),
		UpdatedAt:    int64(s.UpdatedAt),
	}
}

// CreateRecord persists a new escrow record.
func (t *Txn) CreateRecord(rec *escrow.Record) error {
	if rec == nil {
		return fmt.Errorf("state: nil escrow record")
	}
	existing, err := t.get(escrowRecordKey(rec.Key))
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return escrow.ErrDuplicateKey
	}
	return t.StoreRecord(rec)
}

// LoadRecord returns the record stored under key.
func (t *Txn) LoadRecord(key escrow.Key) (*escrow.Record, error) {
	var stored storedRecord
	ok, err := t.getRLP(escrowRecordKey(key), &stored)
	if err != nil {
		return nil, fmt.Errorf("state: decode escrow %s: %w", key, err)
	}
	if !ok {
		return nil, escrow.ErrNotFound
	}
	return stored.toRecord(), nil
}

// StoreRecord overwrites the record after checking its structural invariants.
func (t *Txn) StoreRecord(rec *escrow.Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("state: %w", err)
	}
	return t.putRLP(escrowRecordKey(rec.Key), newStoredRecord(rec))
}

// DestroyRecord removes the record. Its custody balance must have been moved
// out by the caller.
func (t *Txn) DestroyRecord(key escrow.Key) error {
	t.remove(escrowRecordKey(key))
	return nil
}

type escrowBackend struct{ m *Manager }

// EscrowBackend adapts the manager to the escrow engine.
func (m *Manager) EscrowBackend() escrow.Backend { return escrowBackend{m: m} }

func (b escrowBackend) Update(fn func(escrow.Tx) error) error {
	return b.m.Update(func(t *Txn) error { return fn(t) })
}

func (b escrowBackend) View(fn func(escrow.Tx) error) error {
	return b.m.View(func(t *Txn) error { return fn(t) })
}
