package state

import (
	"encoding/binary"
	"fmt"

	"agrichain/native/poll"
)

func pollKey(id uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return prefixedKey(pollPrefix, buf[:])
}

func candidateKey(pollID uint64, name string) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], pollID)
	return prefixedKey(candidatePrefix, buf[:], []byte(":"), []byte(name))
}

// CreatePoll persists a new poll.
func (t *Txn) CreatePoll(p *poll.Poll) error {
	existing, err := t.get(pollKey(p.ID))
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return poll.ErrPollExists
	}
	return t.StorePoll(p)
}

// LoadPoll returns the poll stored under id.
func (t *Txn) LoadPoll(id uint64) (*poll.Poll, error) {
	var p poll.Poll
	ok, err := t.getRLP(pollKey(id), &p)
	if err != nil {
		return nil, fmt.Errorf("state: decode poll %d: %w", id, err)
	}
	if !ok {
		return nil, poll.ErrPollNotFound
	}
	return &p, nil
}

func (t *Txn) StorePoll(p *poll.Poll) error {
	return t.putRLP(pollKey(p.ID), p)
}

// CreateCandidate persists a new candidate with zero votes.
func (t *Txn) CreateCandidate(c *poll.Candidate) error {
	existing, err := t.get(candidateKey(c.PollID, c.Name))
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return poll.ErrCandidateExists
	}
	return t.StoreCandidate(c)
}

// LoadCandidate returns the named candidate of a poll.
func (t *Txn) LoadCandidate(pollID uint64, name string) (*poll.Candidate, error) {
	var c poll.Candidate
	ok, err := t.getRLP(candidateKey(pollID, name), &c)
	if err != nil {
		return nil, fmt.Errorf("state: decode candidate %q: %w", name, err)
	}
	if !ok {
		return nil, poll.ErrCandidateNotFound
	}
	return &c, nil
}

func (t *Txn) StoreCandidate(c *poll.Candidate) error {
	return t.putRLP(candidateKey(c.PollID, c.Name), c)
}

type pollBackend struct{ m *Manager }

// PollBackend adapts the manager to the poll engine.
func (m *Manager) PollBackend() poll.Backend { return pollBackend{m: m} }

func (b pollBackend) Update(fn func(poll.Store) error) error {
	return b.m.Update(func(t *Txn) error { return fn(t) })
}

func (b pollBackend) View(fn func(poll.Store) error) error {
	return b.m.View(func(t *Txn) error { return fn(t) })
}
