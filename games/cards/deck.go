/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package cards

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

var ErrNotInPlay = errors.New("card is not in play")

// pile tracks one color. Every card of the pack is in exactly one of
// active, discard or out (dealt to a hand, the table or the black slot).
type pile struct {
	color   Color
	active  []Card
	discard []Card
	out     map[int]struct{}
}

func newPile(color Color, cards []Card) *pile {
	active := make([]Card, len(cards))
	copy(active, cards)
	return &pile{
		color:  color,
		active: active,
		out:    make(map[int]struct{}, len(cards)),
	}
}

func (p *pile) draw(rng *rand.Rand) Card {
	if len(p.active) == 0 {
		p.active, p.discard = p.discard, nil
	}
	if len(p.active) == 0 {
		panic(fmt.Sprintf("cards: %s pool exhausted with nothing to recycle", p.color))
	}

	i := rng.IntN(len(p.active))
	c := p.active[i]
	last := len(p.active) - 1
	p.active[i] = p.active[last]
	p.active = p.active[:last]

	p.out[c.ID] = struct{}{}
	return c
}

func (p *pile) put(c Card) error {
	if c.Color != p.color {
		return fmt.Errorf("%w: %s card %d in %s pile", ErrNotInPlay, c.Color, c.ID, p.color)
	}
	if _, ok := p.out[c.ID]; !ok {
		return fmt.Errorf("%w: %s card %d", ErrNotInPlay, c.Color, c.ID)
	}
	delete(p.out, c.ID)
	p.discard = append(p.discard, c)
	return nil
}

// Deck hands out cards without replacement and recycles the discard
// pile once the active pile runs dry. It is not safe for concurrent use;
// a Deck belongs to a single Game and is only touched under its lock.
type Deck struct {
	rng   *rand.Rand
	white *pile
	black *pile
}

func NewDeck(pack *Pack, rng *rand.Rand) *Deck {
	return &Deck{
		rng:   rng,
		white: newPile(White, pack.White),
		black: newPile(Black, pack.Black),
	}
}

// DrawWhite panics if both the active and discard piles are empty; a
// pack that passed Pack.Check never gets there.
func (d *Deck) DrawWhite() Card { return d.white.draw(d.rng) }

func (d *Deck) DrawBlack() Card { return d.black.draw(d.rng) }

func (d *Deck) DiscardWhite(c Card) error { return d.white.put(c) }

func (d *Deck) DiscardBlack(c Card) error { return d.black.put(c) }

// PoolCounts is a census of one color.
type PoolCounts struct {
	Active  int
	Discard int
	InPlay  int
}

func (c PoolCounts) Total() int { return c.Active + c.Discard + c.InPlay }

func (d *Deck) Counts(color Color) PoolCounts {
	p := d.white
	if color == Black {
		p = d.black
	}
	return PoolCounts{
		Active:  len(p.active),
		Discard: len(p.discard),
		InPlay:  len(p.out),
	}
}
