package routes

import (
	"encoding/json"
	"errors"
	"net/http"

	"agrichain/gateway/middleware"
	"agrichain/gateway/orderbook"
	"agrichain/native/escrow"
	"agrichain/native/poll"
)

var errorCodes = []struct {
	err    error
	status int
	code   string
}{
	{poll.ErrPollNotFound, http.StatusNotFound, "poll_not_found"},
	{poll.ErrCandidateNotFound, http.StatusNotFound, "candidate_not_found"},
	{poll.ErrDescriptionTooLong, http.StatusBadRequest, "description_too_long"},
	{poll.ErrNameTooLong, http.StatusBadRequest, "name_too_long"},
	{poll.ErrEmptyName, http.StatusBadRequest, "invalid_name"},
	{poll.ErrInvalidWindow, http.StatusBadRequest, "invalid_window"},
	{poll.ErrPollExists, http.StatusConflict, "poll_exists"},
	{poll.ErrCandidateExists, http.StatusConflict, "candidate_exists"},
	{poll.ErrVoteOverflow, http.StatusConflict, "vote_overflow"},
	{orderbook.ErrNotFound, http.StatusNotFound, "order_not_found"},
	{orderbook.ErrInvalid, http.StatusBadRequest, "invalid_order"},
	{orderbook.ErrForbidden, http.StatusForbidden, "not_order_creator"},
	{orderbook.ErrNotOpen, http.StatusConflict, "order_not_open"},
	{orderbook.ErrAlreadyLinked, http.StatusConflict, "escrow_already_linked"},
}

// statusFor maps an engine error to its HTTP status and machine code.
func statusFor(err error) (int, string) {
	if errors.Is(err, escrow.ErrNotFound) {
		return http.StatusNotFound, escrow.CodeOf(err)
	}
	switch escrow.KindOf(err) {
	case escrow.ErrValidation:
		return http.StatusBadRequest, escrow.CodeOf(err)
	case escrow.ErrAuthorization:
		return http.StatusForbidden, escrow.CodeOf(err)
	case escrow.ErrState:
		return http.StatusConflict, escrow.CodeOf(err)
	case escrow.ErrLedger:
		return http.StatusUnprocessableEntity, escrow.CodeOf(err)
	}
	for _, entry := range errorCodes {
		if errors.Is(err, entry.err) {
			return entry.status, entry.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			"request_id", middleware.RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err)
		message = "internal error"
	}
	middleware.WriteError(w, status, message, code)
}

func badRequest(w http.ResponseWriter, message string) {
	middleware.WriteError(w, http.StatusBadRequest, message, "invalid_request")
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
