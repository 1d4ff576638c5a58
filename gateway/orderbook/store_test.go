package orderbook

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	alice = "agri1alice"
	bob   = "agri1bob"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	store, err := NewStore(db)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return store
}

func rice() Entry {
	return Entry{CommodityName: " Beras Premium ", Unit: "kg", TotalUnit: 500, UnitPrice: 12, SendDate: 100, ExpiredDate: 200}
}

func TestCreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, alice, Entry{CommodityName: "x", Unit: "kg", TotalUnit: 1, Status: StatusEscrowed, EscrowKey: "ff"})
	require.NoError(t, err)
	require.Equal(t, StatusOpen, created.Status)
	require.Empty(t, created.EscrowKey)

	entry, err := store.Create(ctx, alice, rice())
	require.NoError(t, err)
	require.NotEqual(t, created.ID, entry.ID)
	require.Equal(t, "Beras Premium", entry.CommodityName)

	loaded, err := store.Get(ctx, entry.ID)
	require.NoError(t, err)
	require.Equal(t, alice, loaded.Creator)
	require.Equal(t, uint64(500), loaded.TotalUnit)

	_, err = store.Get(ctx, uuid.NewString())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*Entry)
	}{
		{"empty commodity", func(e *Entry) { e.CommodityName = "  " }},
		{"long commodity", func(e *Entry) { e.CommodityName = strings.Repeat("a", MaxCommodityLen+1) }},
		{"empty unit", func(e *Entry) { e.Unit = "" }},
		{"long unit", func(e *Entry) { e.Unit = strings.Repeat("u", MaxUnitLen+1) }},
		{"zero quantity", func(e *Entry) { e.TotalUnit = 0 }},
		{"negative date", func(e *Entry) { e.SendDate = -1 }},
		{"expiry before send", func(e *Entry) { e.ExpiredDate = 50 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			entry := rice()
			tc.mutate(&entry)
			_, err := store.Create(ctx, alice, entry)
			require.ErrorIs(t, err, ErrInvalid)
		})
	}

	entry := rice()
	entry.ExpiredDate = 0
	_, err := store.Create(ctx, alice, entry)
	require.NoError(t, err)
}

func TestUpdateAndDeleteRequireCreator(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	entry, err := store.Create(ctx, alice, rice())
	require.NoError(t, err)

	qty := uint64(750)
	_, err = store.Update(ctx, entry.ID, bob, Patch{TotalUnit: &qty})
	require.ErrorIs(t, err, ErrForbidden)
	require.ErrorIs(t, store.Delete(ctx, entry.ID, bob), ErrForbidden)

	updated, err := store.Update(ctx, entry.ID, alice, Patch{TotalUnit: &qty})
	require.NoError(t, err)
	require.Equal(t, qty, updated.TotalUnit)
	require.Equal(t, "kg", updated.Unit)

	zero := uint64(0)
	_, err = store.Update(ctx, entry.ID, alice, Patch{TotalUnit: &zero})
	require.ErrorIs(t, err, ErrInvalid)

	escrowed := StatusEscrowed
	_, err = store.Update(ctx, entry.ID, alice, Patch{Status: &escrowed})
	require.ErrorIs(t, err, ErrInvalid)

	cancelled := StatusCancelled
	updated, err = store.Update(ctx, entry.ID, alice, Patch{Status: &cancelled})
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, updated.Status)

	_, err = store.Update(ctx, entry.ID, alice, Patch{TotalUnit: &qty})
	require.ErrorIs(t, err, ErrNotOpen)

	require.NoError(t, store.Delete(ctx, entry.ID, alice))
	_, err = store.Get(ctx, entry.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, store.Delete(ctx, entry.ID, alice), ErrNotFound)
}

func TestLinkEscrow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	first, err := store.Create(ctx, alice, rice())
	require.NoError(t, err)
	second, err := store.Create(ctx, alice, rice())
	require.NoError(t, err)
	key := strings.Repeat("ab", 32)

	_, err = store.LinkEscrow(ctx, first.ID, alice, "")
	require.ErrorIs(t, err, ErrInvalid)
	_, err = store.LinkEscrow(ctx, first.ID, bob, key)
	require.ErrorIs(t, err, ErrForbidden)

	linked, err := store.LinkEscrow(ctx, first.ID, alice, key)
	require.NoError(t, err)
	require.Equal(t, StatusEscrowed, linked.Status)
	require.Equal(t, key, linked.EscrowKey)

	_, err = store.LinkEscrow(ctx, first.ID, alice, strings.Repeat("cd", 32))
	require.ErrorIs(t, err, ErrNotOpen)
	_, err = store.LinkEscrow(ctx, second.ID, alice, key)
	require.ErrorIs(t, err, ErrAlreadyLinked)

	require.ErrorIs(t, store.Delete(ctx, first.ID, alice), ErrNotOpen)
	loaded, err := store.Get(ctx, second.ID)
	require.NoError(t, err)
	require.Equal(t, StatusOpen, loaded.Status)
}

func TestListFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	clock := time.Unix(1_700_000_000, 0).UTC()
	store.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	older, err := store.Create(ctx, alice, rice())
	require.NoError(t, err)
	newer, err := store.Create(ctx, alice, rice())
	require.NoError(t, err)
	_, err = store.Create(ctx, bob, rice())
	require.NoError(t, err)
	key := strings.Repeat("0f", 32)
	_, err = store.LinkEscrow(ctx, older.ID, alice, key)
	require.NoError(t, err)

	all, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	mine, err := store.List(ctx, Filter{Creator: alice})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	require.Equal(t, newer.ID, mine[0].ID)
	require.Equal(t, older.ID, mine[1].ID)

	open, err := store.List(ctx, Filter{Creator: alice, Status: StatusOpen})
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, newer.ID, open[0].ID)

	byKey, err := store.List(ctx, Filter{EscrowKey: key})
	require.NoError(t, err)
	require.Len(t, byKey, 1)
	require.Equal(t, older.ID, byKey[0].ID)

	limited, err := store.List(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
}
