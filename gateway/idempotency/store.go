package idempotency

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"lukechampine.com/blake3"
)

// ErrMismatch is returned when a key is reused with a different request.
var ErrMismatch = errors.New("idempotency key reuse with different request")

// Response is a cached response keyed by the authenticated subject and the
// client supplied Idempotency-Key.
type Response struct {
	Subject     string `gorm:"primaryKey;size:128"`
	Key         string `gorm:"column:idem_key;primaryKey;size:128"`
	RequestHash string `gorm:"size:64;not null"`
	Status      int    `gorm:"not null"`
	Body        []byte
	CreatedAt   time.Time `gorm:"index"`
}

// TableName keeps the table name stable across gorm naming strategies.
func (Response) TableName() string { return "idempotency_responses" }

// Store persists cached responses through gorm.
type Store struct {
	db *gorm.DB
}

// Open connects to the configured database and migrates the schema. Driver
// is "sqlite" or "postgres".
func Open(driver, dsn string) (*Store, error) {
	db, err := Dial(driver, dsn)
	if err != nil {
		return nil, err
	}
	return NewStore(db)
}

// Dial opens the gateway database without migrating anything, so other
// gateway stores can share the connection pool.
func Dial(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("idempotency: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("idempotency: open %s: %w", driver, err)
	}
	return db, nil
}

// NewStore wraps an existing connection and migrates the schema.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Response{}); err != nil {
		return nil, fmt.Errorf("idempotency: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Lookup returns the cached response, nil when none exists, or ErrMismatch
// when the key was first used for a different request.
func (s *Store) Lookup(ctx context.Context, subject, key, requestHash string) (*Response, error) {
	var resp Response
	err := s.db.WithContext(ctx).Where("subject = ? AND idem_key = ?", subject, key).Take(&resp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if resp.RequestHash != requestHash {
		return nil, ErrMismatch
	}
	return &resp, nil
}

// Save records a response. The first writer for a key wins.
func (s *Store) Save(ctx context.Context, resp *Response) error {
	if resp.CreatedAt.IsZero() {
		resp.CreatedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(resp).Error
}

// Prune removes responses older than cutoff and reports how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&Response{})
	return res.RowsAffected, res.Error
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// HashRequest fingerprints a request so key reuse with a different payload
// can be detected.
func HashRequest(method, path string, body []byte) string {
	h := blake3.New(32, nil)
	_, _ = h.Write([]byte(strings.ToUpper(method)))
	_, _ = h.Write([]byte{'\n'})
	_, _ = h.Write([]byte(path))
	_, _ = h.Write([]byte{'\n'})
	_, _ = h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
