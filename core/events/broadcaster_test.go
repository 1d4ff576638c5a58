package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBroadcasterDeliversLiveEvents(t *testing.T) {
	b := NewBroadcaster(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, stop, backlog := b.Subscribe(ctx, "")
	defer stop()
	require.Empty(t, backlog)

	b.Emit(Transfer{From: [20]byte{1}, To: [20]byte{2}, Amount: 5})

	select {
	case env := <-updates:
		require.Equal(t, uint64(1), env.Sequence)
		require.Equal(t, "1", env.Cursor)
		require.Equal(t, TypeTransfer, env.Event.Type)
		require.Equal(t, "5", env.Event.Attributes["amount"])
	case <-time.After(time.Second):
		t.Fatal("expected event to be delivered")
	}
}

func TestBroadcasterBacklogHonoursCursorAndLimit(t *testing.T) {
	b := NewBroadcaster(3)
	for i := 0; i < 5; i++ {
		b.Emit(Transfer{Amount: uint64(i)})
	}

	_, stop, backlog := b.Subscribe(context.Background(), "")
	stop()
	require.Len(t, backlog, 3)
	require.Equal(t, uint64(3), backlog[0].Sequence)

	_, stop, backlog = b.Subscribe(context.Background(), "4")
	stop()
	require.Len(t, backlog, 1)
	require.Equal(t, uint64(5), backlog[0].Sequence)
}

func TestBroadcasterCancelClosesChannel(t *testing.T) {
	b := NewBroadcaster(0)
	ctx, cancel := context.WithCancel(context.Background())
	updates, _, _ := b.Subscribe(ctx, "")
	require.Equal(t, 1, b.Subscribers())

	cancel()
	select {
	case _, ok := <-updates:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("expected channel to close after context cancellation")
	}
	require.Equal(t, 0, b.Subscribers())

	// Emitting after every subscriber left must not panic.
	b.Emit(Transfer{Amount: 1})
}

func TestRecorderAndMulti(t *testing.T) {
	first := &Recorder{}
	second := &Recorder{}
	Multi{first, nil, second}.Emit(Transfer{Amount: 9, Reason: " Refund "})

	require.Equal(t, []string{TypeTransfer}, first.Types())
	require.Equal(t, "refund", second.Events()[0].Attributes["reason"])
}

func drain(ch <-chan Envelope) []uint64 {
	var seqs []uint64
	for {
		select {
		case env, ok := <-ch:
			if !ok {
				return seqs
			}
			seqs = append(seqs, env.Sequence)
		default:
			return seqs
		}
	}
}

func TestBroadcasterConcurrentEmitOrderAndResume(t *testing.T) {
	const emitters, perEmitter = 4, 8
	total := emitters * perEmitter
	b := NewBroadcaster(64)
	early, stopEarly, _ := b.Subscribe(context.Background(), "")
	defer stopEarly()

	var (
		wg       sync.WaitGroup
		late     <-chan Envelope
		stopLate func()
		backlog  []Envelope
	)
	start := make(chan struct{})
	for i := 0; i < emitters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < perEmitter; j++ {
				b.Emit(Transfer{Amount: uint64(j + 1)})
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		late, stopLate, backlog = b.Subscribe(context.Background(), "")
	}()
	close(start)
	wg.Wait()
	defer stopLate()

	seqs := drain(early)
	require.Len(t, seqs, total)
	for i, seq := range seqs {
		require.Equal(t, uint64(i+1), seq)
	}

	var resumed []uint64
	for _, env := range backlog {
		resumed = append(resumed, env.Sequence)
	}
	resumed = append(resumed, drain(late)...)
	require.Len(t, resumed, total)
	for i, seq := range resumed {
		require.Equal(t, uint64(i+1), seq)
	}
}
