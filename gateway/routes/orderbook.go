package routes

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"agrichain/crypto"
	"agrichain/gateway/middleware"
	"agrichain/gateway/orderbook"
	"agrichain/native/escrow"
)

type orderRequest struct {
	CommodityName string `json:"commodityName"`
	Unit          string `json:"unit"`
	TotalUnit     uint64 `json:"totalUnit"`
	UnitPrice     uint64 `json:"unitPrice,omitempty"`
	SendDate      int64  `json:"sendDate,omitempty"`
	ExpiredDate   int64  `json:"expiredDate,omitempty"`
}

type orderPatchRequest struct {
	CommodityName *string           `json:"commodityName,omitempty"`
	Unit          *string           `json:"unit,omitempty"`
	TotalUnit     *uint64           `json:"totalUnit,omitempty"`
	UnitPrice     *uint64           `json:"unitPrice,omitempty"`
	SendDate      *int64            `json:"sendDate,omitempty"`
	ExpiredDate   *int64            `json:"expiredDate,omitempty"`
	Status        *orderbook.Status `json:"status,omitempty"`
}

type linkRequest struct {
	Key string `json:"key"`
}

type orderView struct {
	ID            string `json:"id"`
	Creator       string `json:"creator"`
	CommodityName string `json:"commodityName"`
	Unit          string `json:"unit"`
	TotalUnit     uint64 `json:"totalUnit"`
	UnitPrice     uint64 `json:"unitPrice"`
	TotalPrice    string `json:"totalPrice"`
	Status        string `json:"status"`
	SendDate      int64  `json:"sendDate,omitempty"`
	ExpiredDate   int64  `json:"expiredDate,omitempty"`
	EscrowKey     string `json:"escrowKey,omitempty"`
	CreatedAt     int64  `json:"createdAt"`
	UpdatedAt     int64  `json:"updatedAt"`
}

func newOrderView(e *orderbook.Entry) orderView {
	view := orderView{
		ID:            e.ID,
		Creator:       e.Creator,
		CommodityName: e.CommodityName,
		Unit:          e.Unit,
		TotalUnit:     e.TotalUnit,
		UnitPrice:     e.UnitPrice,
		Status:        string(e.Status),
		SendDate:      e.SendDate,
		ExpiredDate:   e.ExpiredDate,
		EscrowKey:     e.EscrowKey,
		CreatedAt:     e.CreatedAt.Unix(),
		UpdatedAt:     e.UpdatedAt.Unix(),
	}
	// Totals past uint64 are reported as unknown rather than wrapped.
	if e.UnitPrice == 0 || e.TotalUnit <= ^uint64(0)/e.UnitPrice {
		view.TotalPrice = strconv.FormatUint(e.TotalUnit*e.UnitPrice, 10)
	}
	return view
}

func (h *handlers) createOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req orderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	entry, err := h.orders.Create(r.Context(), crypto.FormatIdentity(caller), orderbook.Entry{
		CommodityName: req.CommodityName,
		Unit:          req.Unit,
		TotalUnit:     req.TotalUnit,
		UnitPrice:     req.UnitPrice,
		SendDate:      req.SendDate,
		ExpiredDate:   req.ExpiredDate,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newOrderView(entry))
}

func (h *handlers) listOrders(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := orderbook.Filter{
		Creator:   query.Get("creator"),
		Status:    orderbook.Status(query.Get("status")),
		EscrowKey: query.Get("escrowKey"),
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			badRequest(w, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}
	entries, err := h.orders.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	views := make([]orderView, 0, len(entries))
	for i := range entries {
		views = append(views, newOrderView(&entries[i]))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handlers) getOrder(w http.ResponseWriter, r *http.Request) {
	entry, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderView(entry))
}

func (h *handlers) updateOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req orderPatchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	entry, err := h.orders.Update(r.Context(), chi.URLParam(r, "id"), crypto.FormatIdentity(caller), orderbook.Patch{
		CommodityName: req.CommodityName,
		Unit:          req.Unit,
		TotalUnit:     req.TotalUnit,
		UnitPrice:     req.UnitPrice,
		SendDate:      req.SendDate,
		ExpiredDate:   req.ExpiredDate,
		Status:        req.Status,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderView(entry))
}

func (h *handlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	if err := h.orders.Delete(r.Context(), chi.URLParam(r, "id"), crypto.FormatIdentity(caller)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// linkOrder ties an order to an existing escrow. The order creator must be
// the buyer or the seller of that escrow.
func (h *handlers) linkOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req linkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	key, err := escrow.ParseKey(req.Key)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	rec, err := h.escrow.Get(key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if caller != rec.Buyer && caller != rec.Seller {
		middleware.WriteError(w, http.StatusForbidden, "caller is not a party to the escrow", "not_escrow_party")
		return
	}
	entry, err := h.orders.LinkEscrow(r.Context(), chi.URLParam(r, "id"), crypto.FormatIdentity(caller), key.String())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderView(entry))
}
