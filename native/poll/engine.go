package poll

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"agrichain/core/events"
	"agrichain/core/types"
	"agrichain/crypto"
)

var errNilState = errors.New("poll engine: state not configured")

const (
	EventTypePollCreated      = "poll.created"
	EventTypeCandidateCreated = "poll.candidate.created"
	EventTypeVoted            = "poll.voted"
)

// Store persists polls and candidates.
type Store interface {
	// CreatePoll fails with ErrPollExists when the id is taken.
	CreatePoll(p *Poll) error
	// LoadPoll fails with ErrPollNotFound when the poll does not exist.
	LoadPoll(id uint64) (*Poll, error)
	StorePoll(p *Poll) error
	// CreateCandidate fails with ErrCandidateExists for a repeated name.
	CreateCandidate(c *Candidate) error
	// LoadCandidate fails with ErrCandidateNotFound when absent.
	LoadCandidate(pollID uint64, name string) (*Candidate, error)
	StoreCandidate(c *Candidate) error
}

// Backend runs serialized all-or-nothing units of work over a Store.
type Backend interface {
	Update(fn func(Store) error) error
	View(fn func(Store) error) error
}

// InitializeParams describes a new poll.
type InitializeParams struct {
	ID          uint64
	Description string
	Start       uint64
	End         uint64
}

type pollEvent struct {
	typ   string
	attrs map[string]string
}

func (e pollEvent) EventType() string { return e.typ }

func (e pollEvent) Event() *types.Event {
	attrs := make(map[string]string, len(e.attrs))
	for k, v := range e.attrs {
		attrs[k] = v
	}
	return &types.Event{Type: e.typ, Attributes: attrs}
}

// Engine implements the poll and vote ledger.
type Engine struct {
	state   Backend
	emitter events.Emitter
}

// NewEngine creates a poll engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state Backend) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) update(fn func(Store) error, evt events.Event) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.state.Update(fn); err != nil {
		return err
	}
	e.emitter.Emit(evt)
	return nil
}

// InitializePoll creates an empty poll owned by caller.
func (e *Engine) InitializePoll(caller [20]byte, params InitializeParams) (*Poll, error) {
	if len(params.Description) > MaxDescriptionLen {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrDescriptionTooLong, len(params.Description), MaxDescriptionLen)
	}
	if params.End != 0 && params.End < params.Start {
		return nil, ErrInvalidWindow
	}
	p := &Poll{
		ID:          params.ID,
		Description: params.Description,
		Start:       params.Start,
		End:         params.End,
		Creator:     caller,
	}
	evt := pollEvent{typ: EventTypePollCreated, attrs: map[string]string{
		"pollId":  strconv.FormatUint(p.ID, 10),
		"creator": crypto.FormatIdentity(caller),
	}}
	if err := e.update(func(s Store) error { return s.CreatePoll(p) }, evt); err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

// InitCandidate registers a named candidate on an existing poll.
func (e *Engine) InitCandidate(pollID uint64, name string) (*Candidate, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	c := &Candidate{PollID: pollID, Name: name}
	evt := pollEvent{typ: EventTypeCandidateCreated, attrs: map[string]string{
		"pollId": strconv.FormatUint(pollID, 10),
		"name":   name,
	}}
	err := e.update(func(s Store) error {
		p, err := s.LoadPoll(pollID)
		if err != nil {
			return err
		}
		if err := s.CreateCandidate(c); err != nil {
			return err
		}
		p.CandidateCount++
		p.Candidates = append(p.Candidates, name)
		return s.StorePoll(p)
	}, evt)
	if err != nil {
		return nil, err
	}
	return c.Clone(), nil
}

// Vote adds one vote for the named candidate. Voters are not tracked, so
// repeated votes from the same identity all count.
func (e *Engine) Vote(pollID uint64, name string) (*Candidate, error) {
	var result *Candidate
	evt := pollEvent{typ: EventTypeVoted, attrs: map[string]string{
		"pollId": strconv.FormatUint(pollID, 10),
		"name":   name,
	}}
	err := e.update(func(s Store) error {
		c, err := s.LoadCandidate(pollID, name)
		if err != nil {
			return err
		}
		if c.Votes == math.MaxUint64 {
			return ErrVoteOverflow
		}
		c.Votes++
		if err := s.StoreCandidate(c); err != nil {
			return err
		}
		result = c.Clone()
		return nil
	}, evt)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Poll returns the stored poll.
func (e *Engine) Poll(id uint64) (*Poll, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var out *Poll
	err := e.state.View(func(s Store) error {
		p, err := s.LoadPoll(id)
		if err != nil {
			return err
		}
		out = p.Clone()
		return nil
	})
	return out, err
}

// Candidates returns the candidates of a poll in registration order.
func (e *Engine) Candidates(id uint64) ([]*Candidate, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var out []*Candidate
	err := e.state.View(func(s Store) error {
		p, err := s.LoadPoll(id)
		if err != nil {
			return err
		}
		out = make([]*Candidate, 0, len(p.Candidates))
		for _, name := range p.Candidates {
			c, err := s.LoadCandidate(id, name)
			if err != nil {
				return err
			}
			out = append(out, c.Clone())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
