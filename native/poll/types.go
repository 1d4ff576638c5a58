package poll

import (
	"errors"
	"fmt"
)

const (
	// MaxDescriptionLen bounds a poll description in bytes.
	MaxDescriptionLen = 280
	// MaxCandidateNameLen bounds a candidate name in bytes.
	MaxCandidateNameLen = 32
)

var (
	ErrDescriptionTooLong = errors.New("poll: description too long")
	ErrNameTooLong        = errors.New("poll: candidate name too long")
	ErrEmptyName          = errors.New("poll: candidate name required")
	ErrInvalidWindow      = errors.New("poll: end precedes start")
	ErrPollExists         = errors.New("poll: already exists")
	ErrCandidateExists    = errors.New("poll: candidate already exists")
	ErrPollNotFound       = errors.New("poll: not found")
	ErrCandidateNotFound  = errors.New("poll: candidate not found")
	ErrVoteOverflow       = errors.New("poll: vote count overflow")
)

// Poll is a named ballot. Start and End are informational; voting is not
// restricted to the window.
type Poll struct {
	ID             uint64
	Description    string
	Start          uint64
	End            uint64
	CandidateCount uint64
	Creator        [20]byte
	Candidates     []string
}

// Clone returns a deep copy of the poll.
func (p *Poll) Clone() *Poll {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Candidates = append([]string(nil), p.Candidates...)
	return &clone
}

// Candidate tracks the tally of one option of a poll.
type Candidate struct {
	PollID uint64
	Name   string
	Votes  uint64
}

// Clone returns a copy of the candidate.
func (c *Candidate) Clone() *Candidate {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

func validateName(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	if len(name) > MaxCandidateNameLen {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrNameTooLong, len(name), MaxCandidateNameLen)
	}
	return nil
}
