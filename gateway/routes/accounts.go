package routes

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"agrichain/crypto"
)

type accountView struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

func (h *handlers) getAccount(w http.ResponseWriter, r *http.Request) {
	holder, err := crypto.ParseIdentity(chi.URLParam(r, "address"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	acc, err := h.accounts.Account(holder)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accountView{
		Address: crypto.FormatIdentity(acc.Address),
		Balance: strconv.FormatUint(acc.Balance, 10),
	})
}
