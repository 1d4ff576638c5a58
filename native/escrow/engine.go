package escrow

import (
	"errors"
	"fmt"
	"time"

	"agrichain/core/events"
)

var errNilState = errors.New("escrow engine: state not configured")

const (
	// ProfileCompact is the order details limit of the compact deployment.
	ProfileCompact = 32
	// ProfileExtended is the order details limit of the extended deployment.
	ProfileExtended = 100
)

// Config carries the deployment-time parameters of the engine.
type Config struct {
	// MaxOrderDetailsLen bounds the order details in bytes.
	MaxOrderDetailsLen int
	// Reserve is the storage reservation the buyer deposits next to the
	// escrowed amount. It stays in custody until Close returns it.
	Reserve uint64
}

// DefaultConfig returns the compact profile without a storage reservation.
func DefaultConfig() Config {
	return Config{MaxOrderDetailsLen: ProfileCompact}
}

// InitializeParams describes a new escrow. The buyer is always the caller.
type InitializeParams struct {
	Seller       [20]byte
	OrderDetails string
	Amount       uint64
	// Receiver optionally names a second party allowed to close the record.
	Receiver [20]byte
}

// Engine is the escrow state machine. Every operation authorizes the caller,
// checks the status against the transition table, moves funds at most once
// and commits the new status inside one unit of work of the backend.
type Engine struct {
	state   Backend
	emitter events.Emitter
	cfg     Config
	nowFn   func() int64
}

// NewEngine creates an escrow engine with a no-op emitter. Callers configure
// the backend via SetState.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.MaxOrderDetailsLen <= 0 {
		return nil, fmt.Errorf("escrow engine: max order details length must be positive")
	}
	return &Engine{
		emitter: events.NoopEmitter{},
		cfg:     cfg,
		nowFn:   func() int64 { return time.Now().Unix() },
	}, nil
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state Backend) { e.state = state }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// update runs fn as one unit of work and emits the collected events only
// after the backend committed.
func (e *Engine) update(fn func(tx Tx, out *[]events.Event) error) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	var pending []events.Event
	if err := e.state.Update(func(tx Tx) error {
		pending = pending[:0]
		return fn(tx, &pending)
	}); err != nil {
		return err
	}
	for _, evt := range pending {
		e.emitter.Emit(evt)
	}
	return nil
}

func (e *Engine) transfer(tx Tx, from, to [20]byte, amount uint64, reason string, out *[]events.Event) error {
	if amount == 0 {
		return nil
	}
	if err := tx.Transfer(from, to, amount); err != nil {
		var classified *Error
		if errors.As(err, &classified) {
			return err
		}
		return ErrTransferFailed.withf("transfer failed: %v", err)
	}
	*out = append(*out, events.Transfer{From: from, To: to, Amount: amount, Reason: reason})
	return nil
}

func load(tx Tx, key Key) (*Record, error) {
	rec, err := tx.LoadRecord(key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

// Initialize creates a funded escrow record. The caller is the buyer and
// must hold Amount plus the configured reservation.
func (e *Engine) Initialize(caller [20]byte, params InitializeParams) (*Record, error) {
	if params.Amount == 0 {
		return nil, ErrInvalidAmount
	}
	if len(params.OrderDetails) > e.cfg.MaxOrderDetailsLen {
		return nil, ErrDescriptionTooLong.withf("order details exceed maximum length of %d bytes", e.cfg.MaxOrderDetailsLen)
	}
	if caller == ([20]byte{}) || params.Seller == ([20]byte{}) || caller == params.Seller {
		return nil, ErrInvalidParty
	}
	deposit := params.Amount + e.cfg.Reserve
	if deposit < params.Amount {
		return nil, ErrInvalidAmount.withf("amount plus reservation overflows")
	}
	key := DeriveKey(caller, params.Seller, params.OrderDetails)
	now := e.now()
	rec := &Record{
		Key:          key,
		Buyer:        caller,
		Seller:       params.Seller,
		Receiver:     params.Receiver,
		OrderDetails: params.OrderDetails,
		Amount:       params.Amount,
		Funded:       params.Amount,
		Reserve:      e.cfg.Reserve,
		Status:       StatusInitialized,
		Bump:         bump(key),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := e.update(func(tx Tx, out *[]events.Event) error {
		if err := tx.CreateRecord(rec); err != nil {
			return err
		}
		if err := e.transfer(tx, caller, Custody(key), deposit, "fund", out); err != nil {
			return err
		}
		*out = append(*out, recordEvent{typ: EventTypeInitialized, rec: rec.Clone()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// Confirm records the seller's acceptance. No funds move.
func (e *Engine) Confirm(key Key, caller [20]byte) (*Record, error) {
	return e.transition(key, func(tx Tx, rec *Record, out *[]events.Event) error {
		if caller != rec.Seller {
			return ErrUnauthorized.withf("only the seller may confirm")
		}
		if rec.Status != StatusInitialized {
			return ErrWrongState.withf("cannot confirm escrow in status %s", rec.Status)
		}
		rec.Status = StatusConfirmed
		*out = append(*out, recordEvent{typ: EventTypeConfirmed, rec: rec.Clone()})
		return nil
	})
}

// Refund returns the escrowed amount to the buyer.
func (e *Engine) Refund(key Key, caller [20]byte) (*Record, error) {
	return e.transition(key, func(tx Tx, rec *Record, out *[]events.Event) error {
		if caller != rec.Buyer {
			return ErrUnauthorized.withf("only the buyer may refund")
		}
		if rec.Status != StatusInitialized {
			return ErrWrongState.withf("cannot refund escrow in status %s", rec.Status)
		}
		return e.release(tx, rec, rec.Buyer, StatusRefunded, EventTypeRefunded, out)
	})
}

// Fail marks the order as failed and returns the escrowed amount to the
// buyer. Either party may invoke it.
func (e *Engine) Fail(key Key, caller [20]byte) (*Record, error) {
	return e.transition(key, func(tx Tx, rec *Record, out *[]events.Event) error {
		if caller != rec.Buyer && caller != rec.Seller {
			return ErrUnauthorized.withf("only the buyer or seller may fail an order")
		}
		if rec.Status != StatusInitialized {
			return ErrWrongState.withf("cannot fail escrow in status %s", rec.Status)
		}
		return e.release(tx, rec, rec.Buyer, StatusFailed, EventTypeFailed, out)
	})
}

// Withdraw pays the escrowed amount out to the seller of a confirmed record.
func (e *Engine) Withdraw(key Key, caller [20]byte) (*Record, error) {
	return e.transition(key, func(tx Tx, rec *Record, out *[]events.Event) error {
		if caller != rec.Seller {
			return ErrUnauthorized.withf("only the seller may withdraw")
		}
		switch {
		case rec.Status == StatusCompleted:
			return ErrAlreadyWithdrawn
		case rec.Status != StatusConfirmed:
			return ErrWrongState.withf("cannot withdraw escrow in status %s", rec.Status)
		case rec.Amount == 0:
			return ErrAlreadyWithdrawn
		}
		return e.release(tx, rec, rec.Seller, StatusCompleted, EventTypeWithdrawn, out)
	})
}

// Close destroys a record in a terminal status and returns whatever is left
// in its custody slot (the storage reservation) to the caller, who must be
// the buyer or the designated receiver.
func (e *Engine) Close(key Key, caller [20]byte) (uint64, error) {
	var residual uint64
	err := e.update(func(tx Tx, out *[]events.Event) error {
		rec, err := load(tx, key)
		if err != nil {
			return err
		}
		if !rec.CanClose(caller) {
			return ErrUnauthorized.withf("only the buyer or designated receiver may close")
		}
		if !rec.Status.Terminal() {
			return ErrWrongState.withf("cannot close escrow in status %s", rec.Status)
		}
		custody := Custody(key)
		balance, err := tx.Balance(custody)
		if err != nil {
			return err
		}
		if err := e.transfer(tx, custody, caller, balance, "close", out); err != nil {
			return err
		}
		if err := tx.DestroyRecord(key); err != nil {
			return err
		}
		residual = balance
		*out = append(*out, closedEvent{rec: rec.Clone(), receiver: caller, residual: balance})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return residual, nil
}

// Get returns the stored record.
func (e *Engine) Get(key Key) (*Record, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var rec *Record
	err := e.state.View(func(tx Tx) error {
		loaded, err := load(tx, key)
		if err != nil {
			return err
		}
		rec = loaded.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// CustodyBalance returns the ledger balance of the record's custody slot.
func (e *Engine) CustodyBalance(key Key) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	var balance uint64
	err := e.state.View(func(tx Tx) error {
		var err error
		balance, err = tx.Balance(Custody(key))
		return err
	})
	return balance, err
}

func (e *Engine) transition(key Key, fn func(tx Tx, rec *Record, out *[]events.Event) error) (*Record, error) {
	var result *Record
	err := e.update(func(tx Tx, out *[]events.Event) error {
		rec, err := load(tx, key)
		if err != nil {
			return err
		}
		if err := fn(tx, rec, out); err != nil {
			return err
		}
		rec.UpdatedAt = e.now()
		if err := tx.StoreRecord(rec); err != nil {
			return err
		}
		result = rec.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// release moves the full escrowed amount out of custody and records the
// terminal status. The transfer happens before the status changes so a
// refused transfer leaves the record untouched.
func (e *Engine) release(tx Tx, rec *Record, to [20]byte, status Status, eventType string, out *[]events.Event) error {
	if rec.Amount == 0 {
		return ErrZeroAmount
	}
	if err := e.transfer(tx, Custody(rec.Key), to, rec.Amount, status.String(), out); err != nil {
		return err
	}
	rec.Amount = 0
	rec.Status = status
	*out = append(*out, recordEvent{typ: eventType, rec: rec.Clone()})
	return nil
}
