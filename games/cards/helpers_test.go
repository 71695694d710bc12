package cards

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

func testRand() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

// testPack builds a pack with the given number of cards; every black card
// needs spaces answers.
func testPack(white, black, spaces int) *Pack {
	p := &Pack{Name: "test"}
	for i := range black {
		p.Black = append(p.Black, Card{ID: i, Text: fmt.Sprintf("prompt %d", i), Color: Black, Spaces: spaces})
	}
	for i := range white {
		p.White = append(p.White, Card{ID: i, Text: fmt.Sprintf("answer %d", i), Color: White})
	}
	return p
}

func testOptions() Options {
	return Options{
		HandSize:         5,
		CardsToWin:       3,
		MaxPlayers:       5,
		MinPlayers:       3,
		SubmissionWindow: 30 * time.Second,
		SelectionWindow:  90 * time.Second,
		RestartDelay:     20 * time.Second,
	}
}

type sentEvent struct {
	name    string
	payload any
}

// fakeChannel records everything sent to it and lets tests play the
// participant's side.
type fakeChannel struct {
	id string

	mu           sync.Mutex
	events       []sentEvent
	handlers     map[string]func(json.RawMessage)
	onDisconnect []func()
}

func newFakeChannel(id string) *fakeChannel {
	return &fakeChannel{
		id:       id,
		handlers: make(map[string]func(json.RawMessage)),
	}
}

func (f *fakeChannel) ID() string { return f.id }

func (f *fakeChannel) Send(event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, sentEvent{name: event, payload: payload})
}

func (f *fakeChannel) OnMessage(event string, handler func(json.RawMessage)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = handler
}

func (f *fakeChannel) OnDisconnect(handler func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onDisconnect = append(f.onDisconnect, handler)
}

func (f *fakeChannel) deliver(t *testing.T, event string, payload any) {
	t.Helper()

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	f.mu.Lock()
	h := f.handlers[event]
	f.mu.Unlock()

	require.NotNil(t, h, "no handler for %s", event)
	h(data)
}

func (f *fakeChannel) disconnect() {
	f.mu.Lock()
	handlers := append([]func(){}, f.onDisconnect...)
	f.mu.Unlock()

	for _, h := range handlers {
		h()
	}
}

func (f *fakeChannel) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, e := range f.events {
		if e.name == event {
			n++
		}
	}
	return n
}

func (f *fakeChannel) last(event string) (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := len(f.events) - 1; i >= 0; i-- {
		if f.events[i].name == event {
			return f.events[i].payload, true
		}
	}
	return nil, false
}

func lastPayload[T any](t *testing.T, f *fakeChannel, event string) T {
	t.Helper()

	p, ok := f.last(event)
	require.True(t, ok, "%s never sent to %s", event, f.id)

	v, ok := p.(T)
	require.True(t, ok, "%s payload has type %T", event, p)
	return v
}

// hand returns the ids of the last hand sent to f.
func hand(t *testing.T, f *fakeChannel) []int {
	t.Helper()
	return cardIDs(lastPayload[HandUpdate](t, f, EventHand).Cards)
}

type testTable struct {
	game     *Game
	clock    *quartz.Mock
	channels []*fakeChannel
}

// newTestTable seats players participants. The game starts once the last
// of them has joined, so everyone is dealt into the first round.
func newTestTable(t *testing.T, opts Options, pack *Pack, players int) *testTable {
	t.Helper()

	if players > opts.MinPlayers {
		opts.MinPlayers = players
	}

	clock := quartz.NewMock(t)
	g, err := NewGame("test", opts, pack, clock, testLogger(), testRand())
	require.NoError(t, err)

	tt := &testTable{game: g, clock: clock}
	for i := range players {
		tt.join(t, fmt.Sprintf("player%d", i))
	}
	return tt
}

func (tt *testTable) join(t *testing.T, name string) *fakeChannel {
	t.Helper()

	ch := newFakeChannel(name)
	require.NoError(t, tt.game.Join(ch, name))
	tt.channels = append(tt.channels, ch)
	return ch
}

func (tt *testTable) channel(name string) *fakeChannel {
	for _, ch := range tt.channels {
		if ch.id == name {
			return ch
		}
	}
	return nil
}

func (tt *testTable) czar(t *testing.T) *fakeChannel {
	t.Helper()

	info := tt.game.Info()
	require.NotEmpty(t, info.Czar)
	ch := tt.channel(info.Czar)
	require.NotNil(t, ch)
	return ch
}

// submitters lists the channels of connected non-czar participants.
func (tt *testTable) submitters(t *testing.T) []*fakeChannel {
	t.Helper()

	info := tt.game.Info()
	out := make([]*fakeChannel, 0, len(info.Players))
	for _, name := range info.Players {
		if name != info.Czar {
			out = append(out, tt.channel(name))
		}
	}
	return out
}

// submit plays the first spaces cards of ch's hand.
func (tt *testTable) submit(t *testing.T, ch *fakeChannel) []int {
	t.Helper()

	info := tt.game.Info()
	require.NotNil(t, info.BlackCard)

	ids := hand(t, ch)[:info.BlackCard.Spaces]
	ch.deliver(t, EventSubmitResponse, SubmitResponse{Cards: ids})
	return ids
}

func (tt *testTable) tableSize() int {
	tt.game.mu.Lock()
	defer tt.game.mu.Unlock()
	return len(tt.game.table)
}

func (tt *testTable) counts(color Color) PoolCounts {
	tt.game.mu.Lock()
	defer tt.game.mu.Unlock()
	return tt.game.deck.Counts(color)
}

// heldCards counts white cards in hands and on the table.
func (tt *testTable) heldCards() int {
	tt.game.mu.Lock()
	defer tt.game.mu.Unlock()

	n := 0
	for _, p := range tt.game.players {
		n += len(p.hand)
	}
	for _, group := range tt.game.table {
		n += len(group)
	}
	return n
}

func (tt *testTable) advanceNext(t *testing.T) time.Duration {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	d, w := tt.clock.AdvanceNext()
	w.MustWait(ctx)
	return d
}
