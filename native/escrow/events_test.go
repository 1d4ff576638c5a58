package escrow

import (
	"testing"

	"github.com/stretchr/testify/require"

	"agrichain/crypto"
)

func TestRecordEventPayload(t *testing.T) {
	rec := &Record{
		Key:          DeriveKey(buyer, seller, "rice"),
		Buyer:        buyer,
		Seller:       seller,
		OrderDetails: "rice",
		Amount:       0,
		Funded:       90,
		Status:       StatusCompleted,
		UpdatedAt:    1_700_000_123,
	}
	evt := NewRecordEvent(EventTypeWithdrawn, rec)
	require.Equal(t, EventTypeWithdrawn, evt.Type)
	require.Equal(t, map[string]string{
		"key":          rec.Key.String(),
		"buyer":        crypto.FormatIdentity(buyer),
		"seller":       crypto.FormatIdentity(seller),
		"orderDetails": "rice",
		"amount":       "0",
		"funded":       "90",
		"status":       "completed",
		"updatedAt":    "1700000123",
	}, evt.Attributes)
}

func TestClosedEventCarriesResidual(t *testing.T) {
	rec := &Record{Key: DeriveKey(buyer, seller, "rice"), Buyer: buyer, Seller: seller, Receiver: receiver, Status: StatusRefunded}
	evt := closedEvent{rec: rec, receiver: receiver, residual: 12}.Event()
	require.Equal(t, EventTypeClosed, evt.Type)
	require.Equal(t, "12", evt.Attributes["residual"])
	require.Equal(t, crypto.FormatIdentity(receiver), evt.Attributes["receiver"])
}

func TestNilRecordEvent(t *testing.T) {
	evt := NewRecordEvent(EventTypeConfirmed, nil)
	require.Empty(t, evt.Attributes)
}

func TestStatusAndKeyHelpers(t *testing.T) {
	for _, status := range []Status{StatusInitialized, StatusConfirmed, StatusCompleted, StatusRefunded, StatusFailed} {
		require.True(t, status.Valid())
	}
	require.False(t, Status(9).Valid())
	require.Equal(t, "status(9)", Status(9).String())
	require.False(t, StatusConfirmed.Terminal())
	require.True(t, StatusFailed.Terminal())

	key := DeriveKey(buyer, seller, "rice")
	parsed, err := ParseKey("0x" + key.String())
	require.NoError(t, err)
	require.Equal(t, key, parsed)
	_, err = ParseKey("abcd")
	require.Error(t, err)

	// Length prefixing keeps these tuples apart.
	require.NotEqual(t, DeriveKey(buyer, seller, "ab"), DeriveKey(buyer, seller, "a"))
	require.NotEqual(t, Custody(key), Custody(DeriveKey(seller, buyer, "rice")))
}
