// Package orderbook keeps off-chain commodity orders and links each one to
// the escrow that settles it.
package orderbook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	MaxCommodityLen = 128
	MaxUnitLen      = 16
)

// Status of an order book entry.
type Status string

const (
	StatusOpen      Status = "open"
	StatusEscrowed  Status = "escrowed"
	StatusCancelled Status = "cancelled"
)

var (
	ErrNotFound      = errors.New("orderbook: entry not found")
	ErrForbidden     = errors.New("orderbook: caller is not the creator")
	ErrInvalid       = errors.New("orderbook: invalid entry")
	ErrNotOpen       = errors.New("orderbook: entry is not open")
	ErrAlreadyLinked = errors.New("orderbook: escrow already linked to another entry")
)

// Entry is one commodity order. EscrowKey is empty until the order is linked.
type Entry struct {
	ID            string `gorm:"primaryKey;size:36"`
	Creator       string `gorm:"size:90;not null;index"`
	CommodityName string `gorm:"size:128;not null"`
	Unit          string `gorm:"size:16;not null"`
	TotalUnit     uint64 `gorm:"not null"`
	UnitPrice     uint64
	Status        Status `gorm:"size:16;not null;index"`
	SendDate      int64
	ExpiredDate   int64
	EscrowKey     string `gorm:"size:64;index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName keeps the table name stable across gorm naming strategies.
func (Entry) TableName() string { return "order_book_entries" }

func (e *Entry) validate() error {
	name := strings.TrimSpace(e.CommodityName)
	switch {
	case name == "":
		return fmt.Errorf("%w: commodity name required", ErrInvalid)
	case utf8.RuneCountInString(name) > MaxCommodityLen:
		return fmt.Errorf("%w: commodity name exceeds %d characters", ErrInvalid, MaxCommodityLen)
	case strings.TrimSpace(e.Unit) == "":
		return fmt.Errorf("%w: unit required", ErrInvalid)
	case utf8.RuneCountInString(e.Unit) > MaxUnitLen:
		return fmt.Errorf("%w: unit exceeds %d characters", ErrInvalid, MaxUnitLen)
	case e.TotalUnit == 0:
		return fmt.Errorf("%w: total unit must be positive", ErrInvalid)
	case e.SendDate < 0 || e.ExpiredDate < 0:
		return fmt.Errorf("%w: dates must be unix seconds", ErrInvalid)
	case e.ExpiredDate != 0 && e.ExpiredDate < e.SendDate:
		return fmt.Errorf("%w: expiry precedes send date", ErrInvalid)
	}
	return nil
}

// Patch carries the mutable fields of an entry. Nil fields are left as they
// are. Status may only move an open entry to cancelled.
type Patch struct {
	CommodityName *string
	Unit          *string
	TotalUnit     *uint64
	UnitPrice     *uint64
	SendDate      *int64
	ExpiredDate   *int64
	Status        *Status
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Creator   string
	Status    Status
	EscrowKey string
	Limit     int
}

const defaultListLimit = 100

// Store persists entries through gorm.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore wraps an existing connection and migrates the schema.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("orderbook: migrate: %w", err)
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Create validates and stores a new open entry owned by creator.
func (s *Store) Create(ctx context.Context, creator string, entry Entry) (*Entry, error) {
	entry.ID = uuid.NewString()
	entry.Creator = creator
	entry.CommodityName = strings.TrimSpace(entry.CommodityName)
	entry.Unit = strings.TrimSpace(entry.Unit)
	entry.Status = StatusOpen
	entry.EscrowKey = ""
	if err := entry.validate(); err != nil {
		return nil, err
	}
	now := s.now()
	entry.CreatedAt, entry.UpdatedAt = now, now
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// Get loads one entry.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	return get(s.db.WithContext(ctx), id)
}

func get(db *gorm.DB, id string) (*Entry, error) {
	var entry Entry
	err := db.Where("id = ?", id).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// List returns entries newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]Entry, error) {
	query := s.db.WithContext(ctx).Model(&Entry{})
	if filter.Creator != "" {
		query = query.Where("creator = ?", filter.Creator)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.EscrowKey != "" {
		query = query.Where("escrow_key = ?", filter.EscrowKey)
	}
	limit := filter.Limit
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	var entries []Entry
	if err := query.Order("created_at DESC").Order("id").Limit(limit).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// Update applies patch to an open entry owned by creator.
func (s *Store) Update(ctx context.Context, id, creator string, patch Patch) (*Entry, error) {
	var out *Entry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := owned(tx, id, creator)
		if err != nil {
			return err
		}
		if entry.Status != StatusOpen {
			return ErrNotOpen
		}
		if patch.CommodityName != nil {
			entry.CommodityName = strings.TrimSpace(*patch.CommodityName)
		}
		if patch.Unit != nil {
			entry.Unit = strings.TrimSpace(*patch.Unit)
		}
		if patch.TotalUnit != nil {
			entry.TotalUnit = *patch.TotalUnit
		}
		if patch.UnitPrice != nil {
			entry.UnitPrice = *patch.UnitPrice
		}
		if patch.SendDate != nil {
			entry.SendDate = *patch.SendDate
		}
		if patch.ExpiredDate != nil {
			entry.ExpiredDate = *patch.ExpiredDate
		}
		if patch.Status != nil {
			switch *patch.Status {
			case StatusOpen, StatusCancelled:
				entry.Status = *patch.Status
			default:
				return fmt.Errorf("%w: status %q cannot be set directly", ErrInvalid, *patch.Status)
			}
		}
		if err := entry.validate(); err != nil {
			return err
		}
		entry.UpdatedAt = s.now()
		if err := tx.Save(entry).Error; err != nil {
			return err
		}
		out = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes an entry owned by creator. Entries linked to an escrow stay
// as the settlement record.
func (s *Store) Delete(ctx context.Context, id, creator string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := owned(tx, id, creator)
		if err != nil {
			return err
		}
		if entry.Status == StatusEscrowed {
			return ErrNotOpen
		}
		return tx.Delete(&Entry{}, "id = ?", id).Error
	})
}

// LinkEscrow marks an open entry owned by creator as settled by the escrow
// with the given key. An escrow settles at most one entry.
func (s *Store) LinkEscrow(ctx context.Context, id, creator, escrowKey string) (*Entry, error) {
	if escrowKey == "" {
		return nil, fmt.Errorf("%w: escrow key required", ErrInvalid)
	}
	var out *Entry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := owned(tx, id, creator)
		if err != nil {
			return err
		}
		if entry.Status != StatusOpen {
			return ErrNotOpen
		}
		var linked int64
		if err := tx.Model(&Entry{}).Where("escrow_key = ?", escrowKey).Count(&linked).Error; err != nil {
			return err
		}
		if linked > 0 {
			return ErrAlreadyLinked
		}
		entry.EscrowKey = escrowKey
		entry.Status = StatusEscrowed
		entry.UpdatedAt = s.now()
		if err := tx.Save(entry).Error; err != nil {
			return err
		}
		out = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func owned(tx *gorm.DB, id, creator string) (*Entry, error) {
	entry, err := get(tx, id)
	if err != nil {
		return nil, err
	}
	if entry.Creator != creator {
		return nil, ErrForbidden
	}
	return entry, nil
}
