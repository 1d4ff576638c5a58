package escrow

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Status represents the lifecycle states of an escrow record.
type Status uint8

const (
	StatusInitialized Status = iota + 1
	StatusConfirmed
	StatusCompleted
	StatusRefunded
	StatusFailed
)

var statusNames = map[Status]string{
	StatusInitialized: "initialized",
	StatusConfirmed:   "confirmed",
	StatusCompleted:   "completed",
	StatusRefunded:    "refunded",
	StatusFailed:      "failed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// Terminal reports whether only Close may act on a record in this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusRefunded, StatusFailed:
		return true
	default:
		return false
	}
}

// Key uniquely names one escrow record.
type Key [32]byte

func (k Key) String() string { return hex.EncodeToString(k[:]) }

// ParseKey decodes the hex form produced by Key.String. A 0x prefix is
// accepted.
func ParseKey(raw string) (Key, error) {
	var key Key
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return key, fmt.Errorf("invalid escrow key: %w", err)
	}
	if len(decoded) != len(key) {
		return key, fmt.Errorf("escrow key must be %d bytes", len(key))
	}
	copy(key[:], decoded)
	return key, nil
}

var (
	keyDomain     = []byte("escrow")
	custodyDomain = []byte("escrow/custody")
)

// DeriveKey returns the record key for a (buyer, seller, order details) tuple.
// The order details are length-prefixed so that no two distinct tuples share
// the hash preimage.
func DeriveKey(buyer, seller [20]byte, orderDetails string) Key {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(orderDetails)))
	return Key(ethcrypto.Keccak256Hash(keyDomain, buyer[:], seller[:], length[:], []byte(orderDetails)))
}

// Custody returns the ledger holder that owns the funds of the record named
// by key. Records hold their own funds; there is no shared vault.
func Custody(key Key) [20]byte {
	var holder [20]byte
	digest := ethcrypto.Keccak256(custodyDomain, key[:])
	copy(holder[:], digest[len(digest)-len(holder):])
	return holder
}

// bump returns the derivation nonce stored alongside the record. It only
// lets storage re-derive the record address and carries no business meaning.
func bump(key Key) uint8 {
	return key[len(key)-1]
}

// Record captures the persisted state of a single escrow.
type Record struct {
	Key          Key
	Buyer        [20]byte
	Seller       [20]byte
	Receiver     [20]byte // optional party that may close besides the buyer
	OrderDetails string
	Amount       uint64 // value currently held in custody for this record
	Funded       uint64 // value moved into custody by Initialize
	Reserve      uint64 // storage reservation returned on Close
	Status       Status
	Bump         uint8
	CreatedAt    int64
	UpdatedAt    int64
}

// Clone returns a copy of the record so callers can safely mutate it without
// affecting the stored instance.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// Paid returns the value that has left custody for this record.
func (r *Record) Paid() uint64 {
	if r == nil || r.Amount > r.Funded {
		return 0
	}
	return r.Funded - r.Amount
}

// CanClose reports whether id is allowed to close the record.
func (r *Record) CanClose(id [20]byte) bool {
	if r == nil {
		return false
	}
	if id == r.Buyer {
		return true
	}
	return r.Receiver != ([20]byte{}) && id == r.Receiver
}

// Validate checks the structural invariants of a stored record.
func (r *Record) Validate() error {
	if r == nil {
		return fmt.Errorf("nil escrow record")
	}
	if !r.Status.Valid() {
		return fmt.Errorf("invalid escrow status: %d", r.Status)
	}
	if r.Amount > r.Funded {
		return fmt.Errorf("escrow amount %d exceeds funded amount %d", r.Amount, r.Funded)
	}
	switch r.Status {
	case StatusInitialized, StatusConfirmed:
		if r.Amount == 0 {
			return fmt.Errorf("escrow in status %s must hold funds", r.Status)
		}
	default:
		if r.Amount != 0 {
			return fmt.Errorf("escrow in status %s must not hold funds", r.Status)
		}
	}
	return nil
}
