package events

import (
	"strconv"

	"agrichain/core/types"
	"agrichain/crypto"
)

const (
	// TypeTransfer is emitted for every committed ledger movement.
	TypeTransfer = "ledger.transfer"
)

type Transfer struct {
	From   [20]byte
	To     [20]byte
	Amount uint64
	Reason string
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	attrs := map[string]string{
		"from":   crypto.FormatIdentity(e.From),
		"to":     crypto.FormatIdentity(e.To),
		"amount": strconv.FormatUint(e.Amount, 10),
	}
	if reason := normalizeReason(e.Reason); reason != "" {
		attrs["reason"] = reason
	}
	return &types.Event{Type: TypeTransfer, Attributes: attrs}
}
