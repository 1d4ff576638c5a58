package events

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"agrichain/core/types"
)

const (
	defaultHistoryLimit     = 1024
	defaultSubscriberBuffer = 32
)

// Envelope is an event stamped with its position in the broadcast stream.
type Envelope struct {
	Sequence uint64       `json:"sequence"`
	Cursor   string       `json:"cursor"`
	Event    *types.Event `json:"event"`
}

// Broadcaster is an Emitter that fans committed events out to live
// subscribers and keeps a bounded history so late subscribers can resume from
// a cursor. Slow subscribers miss events rather than blocking emitters.
type Broadcaster struct {
	mu      sync.RWMutex
	seq     uint64
	nextID  uint64
	subs    map[uint64]chan Envelope
	history []Envelope
	limit   int
}

// NewBroadcaster creates a broadcaster retaining up to historyLimit events.
func NewBroadcaster(historyLimit int) *Broadcaster {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	return &Broadcaster{
		subs:  make(map[uint64]chan Envelope),
		limit: historyLimit,
	}
}

// Emit implements the Emitter interface.
func (b *Broadcaster) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	payload := evt.Event()
	if payload == nil {
		return
	}

	// Append and fan-out happen under one lock: live delivery follows sequence
	// order and a concurrent Subscribe gets each event exactly once.
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	env := Envelope{Sequence: b.seq, Cursor: strconv.FormatUint(b.seq, 10), Event: payload.Clone()}
	b.history = append(b.history, env)
	if len(b.history) > b.limit {
		excess := len(b.history) - b.limit
		trimmed := make([]Envelope, b.limit)
		copy(trimmed, b.history[excess:])
		b.history = trimmed
	}
	for _, ch := range b.subs {
		select {
		case ch <- Envelope{Sequence: env.Sequence, Cursor: env.Cursor, Event: env.Event.Clone()}:
		default:
		}
	}
}

// Subscribe registers a subscriber for events emitted after the supplied
// cursor. It returns the live channel, a cancel function and the backlog of
// retained events newer than the cursor. The subscription ends when ctx is
// done or cancel is called.
func (b *Broadcaster) Subscribe(ctx context.Context, cursor string) (<-chan Envelope, func(), []Envelope) {
	updates := make(chan Envelope, defaultSubscriberBuffer)

	var since uint64
	if trimmed := strings.TrimSpace(cursor); trimmed != "" {
		if parsed, err := strconv.ParseUint(trimmed, 10, 64); err == nil {
			since = parsed
		}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = updates
	backlog := make([]Envelope, 0, len(b.history))
	for _, entry := range b.history {
		if entry.Sequence > since {
			backlog = append(backlog, Envelope{Sequence: entry.Sequence, Cursor: entry.Cursor, Event: entry.Event.Clone()})
		}
	}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
			b.mu.Unlock()
		})
	}

	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}

	return updates, cancel, backlog
}

// Subscribers reports the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
