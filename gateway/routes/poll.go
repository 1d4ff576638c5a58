package routes

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"agrichain/crypto"
	"agrichain/native/poll"
)

type createPollRequest struct {
	ID          uint64 `json:"id"`
	Description string `json:"description"`
	Start       uint64 `json:"start"`
	End         uint64 `json:"end"`
}

type candidateRequest struct {
	Name string `json:"name"`
}

type candidateView struct {
	Name  string `json:"name"`
	Votes uint64 `json:"votes"`
}

type pollView struct {
	ID             uint64          `json:"id"`
	Description    string          `json:"description"`
	Start          uint64          `json:"start"`
	End            uint64          `json:"end"`
	Creator        string          `json:"creator"`
	CandidateCount uint64          `json:"candidateCount"`
	Candidates     []candidateView `json:"candidates,omitempty"`
}

func newPollView(p *poll.Poll, candidates []*poll.Candidate) pollView {
	view := pollView{
		ID:             p.ID,
		Description:    p.Description,
		Start:          p.Start,
		End:            p.End,
		Creator:        crypto.FormatIdentity(p.Creator),
		CandidateCount: p.CandidateCount,
	}
	for _, c := range candidates {
		view.Candidates = append(view.Candidates, candidateView{Name: c.Name, Votes: c.Votes})
	}
	return view
}

func pollIDFrom(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		badRequest(w, "poll id must be an unsigned integer")
		return 0, false
	}
	return id, true
}

func (h *handlers) createPoll(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req createPollRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := h.polls.InitializePoll(caller, poll.InitializeParams{
		ID:          req.ID,
		Description: req.Description,
		Start:       req.Start,
		End:         req.End,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newPollView(p, nil))
}

func (h *handlers) getPoll(w http.ResponseWriter, r *http.Request) {
	id, ok := pollIDFrom(w, r)
	if !ok {
		return
	}
	p, err := h.polls.Poll(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	candidates, err := h.polls.Candidates(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPollView(p, candidates))
}

func (h *handlers) createCandidate(w http.ResponseWriter, r *http.Request) {
	id, ok := pollIDFrom(w, r)
	if !ok {
		return
	}
	var req candidateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := h.polls.InitCandidate(id, req.Name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, candidateView{Name: c.Name, Votes: c.Votes})
}

func (h *handlers) vote(w http.ResponseWriter, r *http.Request) {
	id, ok := pollIDFrom(w, r)
	if !ok {
		return
	}
	c, err := h.polls.Vote(id, chi.URLParam(r, "name"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, candidateView{Name: c.Name, Votes: c.Votes})
}
