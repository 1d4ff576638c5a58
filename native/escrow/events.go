package escrow

import (
	"strconv"

	"agrichain/core/types"
	"agrichain/crypto"
)

const (
	EventTypeInitialized = "escrow.initialized"
	EventTypeConfirmed   = "escrow.confirmed"
	EventTypeRefunded    = "escrow.refunded"
	EventTypeFailed      = "escrow.failed"
	EventTypeWithdrawn   = "escrow.withdrawn"
	EventTypeClosed      = "escrow.closed"
)

// recordEvent reports a committed status change of one record.
type recordEvent struct {
	typ string
	rec *Record
}

func (e recordEvent) EventType() string { return e.typ }

func (e recordEvent) Event() *types.Event { return newRecordEvent(e.typ, e.rec) }

// closedEvent reports the destruction of a record and the residual returned.
type closedEvent struct {
	rec      *Record
	receiver [20]byte
	residual uint64
}

func (closedEvent) EventType() string { return EventTypeClosed }

func (e closedEvent) Event() *types.Event {
	evt := newRecordEvent(EventTypeClosed, e.rec)
	evt.Attributes["receiver"] = crypto.FormatIdentity(e.receiver)
	evt.Attributes["residual"] = strconv.FormatUint(e.residual, 10)
	return evt
}

// NewRecordEvent returns the canonical event payload describing rec under the
// provided event type.
func NewRecordEvent(eventType string, rec *Record) *types.Event {
	return newRecordEvent(eventType, rec)
}

func newRecordEvent(eventType string, rec *Record) *types.Event {
	attrs := make(map[string]string)
	if rec == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["key"] = rec.Key.String()
	attrs["buyer"] = crypto.FormatIdentity(rec.Buyer)
	attrs["seller"] = crypto.FormatIdentity(rec.Seller)
	attrs["orderDetails"] = rec.OrderDetails
	attrs["amount"] = strconv.FormatUint(rec.Amount, 10)
	attrs["funded"] = strconv.FormatUint(rec.Funded, 10)
	attrs["status"] = rec.Status.String()
	attrs["updatedAt"] = strconv.FormatInt(rec.UpdatedAt, 10)
	if rec.Receiver != ([20]byte{}) {
		attrs["receiver"] = crypto.FormatIdentity(rec.Receiver)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
