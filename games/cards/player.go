package cards

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var (
	ErrInvalidSubmission     = errors.New("invalid submission")
	ErrUnauthorizedSelection = errors.New("unauthorized selection")
)

// SubmitFunc receives the cards a participant moved to the table, or
// ok=false when their response was rejected.
type SubmitFunc func(cards []Card, ok bool)

// SelectFunc receives the submission group the czar picked, or ok=false
// when the picked id is not on the table.
type SelectFunc func(group []Card, ok bool)

type submitRequest struct {
	black Card
	done  SubmitFunc
}

type selectRequest struct {
	table [][]Card
	done  SelectFunc
}

// Player is one participant's hand and round state. It brokers at most
// one outstanding submission and one outstanding selection with its
// channel; a new request replaces the old one wholesale.
//
// All fields are guarded by lock, which is the owning game's mutex.
type Player struct {
	ch     Channel
	name   string
	lock   sync.Locker
	logger *log.Logger

	hand         []Card
	submitted    []Card
	hasSubmitted bool
	isCzar       bool
	inRound      bool
	hasSelected  bool
	selected     *Card
	won          []Card

	pendingSubmit *submitRequest
	pendingSelect *selectRequest
}

func newPlayer(ch Channel, name string, lock sync.Locker, logger *log.Logger) *Player {
	p := &Player{
		ch:     ch,
		name:   name,
		lock:   lock,
		logger: logger.With("player", name),
	}

	ch.OnMessage(EventSubmitResponse, p.handleSubmit)
	ch.OnMessage(EventSelectResponse, p.handleSelect)

	return p
}

func (p *Player) Name() string { return p.name }

func (p *Player) ID() string { return p.ch.ID() }

func (p *Player) sendHand() {
	p.ch.Send(EventHand, HandUpdate{Cards: slices.Clone(p.hand)})
}

func (p *Player) dealInitialHand(deck *Deck, handSize int) {
	p.hand = make([]Card, 0, handSize)
	for range handSize {
		p.hand = append(p.hand, deck.DrawWhite())
	}
	p.sendHand()
}

func (p *Player) refillHand(deck *Deck, handSize int) {
	for len(p.hand) < handSize {
		p.hand = append(p.hand, deck.DrawWhite())
	}
	p.sendHand()
}

func (p *Player) requestSubmission(black Card, window time.Duration, done SubmitFunc) {
	p.pendingSubmit = &submitRequest{black: black, done: done}
	p.ch.Send(EventSubmitRequest, SubmitRequest{
		BlackCard: black,
		Spaces:    black.Spaces,
		Seconds:   int(window / time.Second),
	})
}

func (p *Player) requestSelection(table [][]Card, window time.Duration, done SelectFunc) {
	snapshot := make([][]Card, len(table))
	for i, group := range table {
		snapshot[i] = slices.Clone(group)
	}

	p.pendingSelect = &selectRequest{table: snapshot, done: done}
	p.ch.Send(EventSelectRequest, SelectRequest{
		Table:   displayTable(snapshot),
		Seconds: int(window / time.Second),
	})
}

func (p *Player) cancelPending() {
	p.pendingSubmit = nil
	p.pendingSelect = nil
}

func (p *Player) handleSubmit(data json.RawMessage) {
	var resp SubmitResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		p.logger.Debug("Ignoring malformed submission", "error", err)
		return
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	req := p.pendingSubmit
	if req == nil {
		p.logger.Debug("Dropping stale submission", "cards", resp.Cards)
		return
	}

	cards, err := p.takeSubmission(req.black, resp.Cards)
	if err != nil {
		p.logger.Debug("Rejected submission", "error", err)
		req.done(nil, false)
		return
	}

	p.pendingSubmit = nil
	req.done(cards, true)
}

// takeSubmission moves exactly black.Spaces of the named cards, in the
// order named, from the hand to the submitted set.
func (p *Player) takeSubmission(black Card, ids []int) ([]Card, error) {
	switch {
	case p.isCzar:
		return nil, fmt.Errorf("%w: the czar does not submit", ErrInvalidSubmission)
	case p.hasSubmitted:
		return nil, fmt.Errorf("%w: already submitted this round", ErrInvalidSubmission)
	case len(ids) < black.Spaces:
		return nil, fmt.Errorf("%w: need %d cards, got %d", ErrInvalidSubmission, black.Spaces, len(ids))
	}

	inHand := make(map[int]int, len(p.hand))
	for i, c := range p.hand {
		inHand[c.ID] = i
	}
	for _, id := range ids {
		if _, ok := inHand[id]; !ok {
			return nil, fmt.Errorf("%w: card %d is not in hand", ErrInvalidSubmission, id)
		}
	}

	picked := ids[:black.Spaces]
	taken := make(map[int]bool, len(picked))
	submitted := make([]Card, 0, len(picked))
	for _, id := range picked {
		if taken[id] {
			return nil, fmt.Errorf("%w: card %d named twice", ErrInvalidSubmission, id)
		}
		taken[id] = true
		submitted = append(submitted, p.hand[inHand[id]])
	}

	p.hand = slices.DeleteFunc(p.hand, func(c Card) bool { return taken[c.ID] })
	p.submitted = submitted
	p.hasSubmitted = true
	p.sendHand()

	return slices.Clone(submitted), nil
}

// reclaimSubmission returns submitted cards to the hand when the game
// could not place them on the table.
func (p *Player) reclaimSubmission() {
	if len(p.submitted) == 0 {
		return
	}
	p.hand = append(p.hand, p.submitted...)
	p.submitted = nil
	p.hasSubmitted = false
	p.sendHand()
}

func (p *Player) handleSelect(data json.RawMessage) {
	var resp SelectResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		p.logger.Debug("Ignoring malformed selection", "error", err)
		return
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	req := p.pendingSelect
	if req == nil {
		p.logger.Debug("Dropping stale selection", "card", resp.Card)
		return
	}

	if !p.isCzar || p.hasSelected {
		p.logger.Debug("Ignoring selection", "error", ErrUnauthorizedSelection, "czar", p.isCzar, "selected", p.hasSelected)
		return
	}

	var group []Card
	for _, g := range req.table {
		if len(g) > 0 && g[0].ID == resp.Card {
			group = g
			break
		}
	}
	if group == nil {
		p.logger.Debug("Selected card is not on the table", "card", resp.Card)
		req.done(nil, false)
		return
	}

	selected := group[0]
	p.hasSelected = true
	p.selected = &selected
	p.pendingSelect = nil
	req.done(group, true)
}

func (p *Player) awardTrophy(black Card) {
	p.won = append(p.won, black)
}

func (p *Player) resetFlags(isCzar bool) {
	p.submitted = nil
	p.hasSubmitted = false
	p.hasSelected = false
	p.selected = nil
	p.isCzar = isCzar
	p.inRound = true
	p.cancelPending()
}

func (p *Player) resetForRound(deck *Deck, handSize int, isCzar bool) {
	p.refillHand(deck, handSize)
	p.resetFlags(isCzar)
}

func (p *Player) resetForGame(deck *Deck, handSize int, isCzar bool) {
	p.dealInitialHand(deck, handSize)
	p.resetFlags(isCzar)
	p.won = nil
}

// leaveRound clears round state without touching cards.
func (p *Player) leaveRound() {
	p.resetFlags(false)
	p.inRound = false
}

func displayTable(table [][]Card) []TableEntry {
	entries := make([]TableEntry, 0, len(table))
	for _, group := range table {
		if len(group) == 0 {
			continue
		}
		entries = append(entries, combineGroup(group))
	}
	return entries
}
