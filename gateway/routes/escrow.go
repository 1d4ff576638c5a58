package routes

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"agrichain/crypto"
	"agrichain/gateway/middleware"
	"agrichain/native/escrow"
)

const (
	opInitialize = "initialize"
	opConfirm    = "confirm"
	opRefund     = "refund"
	opFail       = "fail"
	opWithdraw   = "withdraw"
	opClose      = "close"
)

const maxRequestBody = 64 << 10

type initializeRequest struct {
	Seller       string `json:"seller"`
	OrderDetails string `json:"orderDetails"`
	Amount       string `json:"amount"`
	Receiver     string `json:"receiver,omitempty"`
}

type escrowView struct {
	Key          string `json:"key"`
	Custody      string `json:"custody"`
	Buyer        string `json:"buyer"`
	Seller       string `json:"seller"`
	Receiver     string `json:"receiver,omitempty"`
	OrderDetails string `json:"orderDetails"`
	Amount       string `json:"amount"`
	Funded       string `json:"funded"`
	Paid         string `json:"paid"`
	Reserve      string `json:"reserve"`
	Status       string `json:"status"`
	Bump         uint8  `json:"bump"`
	CreatedAt    int64  `json:"createdAt"`
	UpdatedAt    int64  `json:"updatedAt"`
}

type closeView struct {
	Key      string `json:"key"`
	Residual string `json:"residual"`
}

func newEscrowView(rec *escrow.Record) escrowView {
	view := escrowView{
		Key:          rec.Key.String(),
		Custody:      crypto.FormatIdentity(escrow.Custody(rec.Key)),
		Buyer:        crypto.FormatIdentity(rec.Buyer),
		Seller:       crypto.FormatIdentity(rec.Seller),
		OrderDetails: rec.OrderDetails,
		Amount:       strconv.FormatUint(rec.Amount, 10),
		Funded:       strconv.FormatUint(rec.Funded, 10),
		Paid:         strconv.FormatUint(rec.Paid(), 10),
		Reserve:      strconv.FormatUint(rec.Reserve, 10),
		Status:       rec.Status.String(),
		Bump:         rec.Bump,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
	if rec.Receiver != ([20]byte{}) {
		view.Receiver = crypto.FormatIdentity(rec.Receiver)
	}
	return view
}

func callerFrom(w http.ResponseWriter, r *http.Request) ([20]byte, bool) {
	caller, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "missing identity", "unauthenticated")
	}
	return caller, ok
}

func keyFrom(w http.ResponseWriter, r *http.Request) (escrow.Key, bool) {
	key, err := escrow.ParseKey(chi.URLParam(r, "key"))
	if err != nil {
		badRequest(w, err.Error())
		return key, false
	}
	return key, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		badRequest(w, "invalid JSON payload: "+err.Error())
		return false
	}
	return true
}

func (h *handlers) initializeEscrow(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req initializeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	seller, err := crypto.ParseIdentity(req.Seller)
	if err != nil {
		badRequest(w, "seller: "+err.Error())
		return
	}
	params := escrow.InitializeParams{Seller: seller, OrderDetails: req.OrderDetails}
	if strings.TrimSpace(req.Receiver) != "" {
		params.Receiver, err = crypto.ParseIdentity(req.Receiver)
		if err != nil {
			badRequest(w, "receiver: "+err.Error())
			return
		}
	}
	params.Amount, err = strconv.ParseUint(strings.TrimSpace(req.Amount), 10, 64)
	if err != nil {
		badRequest(w, "amount must be a base-10 unsigned integer")
		return
	}
	rec, err := h.escrow.Initialize(caller, params)
	if err != nil {
		h.reject(w, r, opInitialize, err)
		return
	}
	writeJSON(w, http.StatusCreated, newEscrowView(rec))
}

func (h *handlers) getEscrow(w http.ResponseWriter, r *http.Request) {
	key, ok := keyFrom(w, r)
	if !ok {
		return
	}
	rec, err := h.escrow.Get(key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newEscrowView(rec))
}

type transitionFunc func(key escrow.Key, caller [20]byte) (*escrow.Record, error)

func (h *handlers) transition(op string, fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerFrom(w, r)
		if !ok {
			return
		}
		key, ok := keyFrom(w, r)
		if !ok {
			return
		}
		rec, err := fn(key, caller)
		if err != nil {
			h.reject(w, r, op, err)
			return
		}
		writeJSON(w, http.StatusOK, newEscrowView(rec))
	}
}

func (h *handlers) closeEscrow(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	key, ok := keyFrom(w, r)
	if !ok {
		return
	}
	residual, err := h.escrow.Close(key, caller)
	if err != nil {
		h.reject(w, r, opClose, err)
		return
	}
	writeJSON(w, http.StatusOK, closeView{Key: key.String(), Residual: strconv.FormatUint(residual, 10)})
}

func (h *handlers) reject(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.metrics.RecordRejection(op, escrow.CodeOf(err))
	h.writeError(w, r, err)
}
