/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package cards

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidPack  = errors.New("invalid card pack")
	ErrPackTooSmall = errors.New("card pack too small for options")
)

//go:embed packs/base.yaml
var basePack []byte

// Pack is the full set of cards a deck is built from.
type Pack struct {
	Name  string
	Black []Card
	White []Card
}

type packFile struct {
	Name  string `yaml:"name"`
	Black []struct {
		Text string `yaml:"text"`
		Pick int    `yaml:"pick"`
	} `yaml:"black"`
	White []string `yaml:"white"`
}

// ParsePack decodes a YAML card pack.
func ParsePack(r io.Reader) (*Pack, error) {
	var f packFile

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPack, err)
	}

	p := &Pack{
		Name:  f.Name,
		Black: make([]Card, 0, len(f.Black)),
		White: make([]Card, 0, len(f.White)),
	}

	for i, b := range f.Black {
		text := strings.TrimSpace(b.Text)
		if text == "" {
			return nil, fmt.Errorf("%w: black card %d has no text", ErrInvalidPack, i)
		}
		spaces := b.Pick
		if spaces == 0 {
			spaces = 1
		}
		if spaces < 0 {
			return nil, fmt.Errorf("%w: black card %d has negative pick %d", ErrInvalidPack, i, b.Pick)
		}
		p.Black = append(p.Black, Card{ID: i, Text: text, Color: Black, Spaces: spaces})
	}

	for i, w := range f.White {
		text := strings.TrimSpace(w)
		if text == "" {
			return nil, fmt.Errorf("%w: white card %d has no text", ErrInvalidPack, i)
		}
		p.White = append(p.White, Card{ID: i, Text: text, Color: White})
	}

	if len(p.Black) == 0 || len(p.White) == 0 {
		return nil, fmt.Errorf("%w: need at least one black and one white card", ErrInvalidPack)
	}

	return p, nil
}

// DefaultPack returns the embedded base pack.
func DefaultPack() *Pack {
	p, err := ParsePack(strings.NewReader(string(basePack)))
	if err != nil {
		panic("cards: embedded pack: " + err.Error())
	}
	return p
}

// MaxSpaces is the largest pick of any black card in the pack.
func (p *Pack) MaxSpaces() int {
	spaces := 0
	for _, c := range p.Black {
		spaces = max(spaces, c.Spaces)
	}
	return spaces
}

// Check reports whether a full session using opts can never run the
// pools dry. Every hand can hold at most HandSize white cards and the
// table is returned to the pool before hands are refilled.
func (p *Pack) Check(opts Options) error {
	if len(p.Black) == 0 {
		return fmt.Errorf("%w: no black cards", ErrPackTooSmall)
	}
	if need := opts.HandSize * opts.MaxPlayers; len(p.White) < need {
		return fmt.Errorf("%w: %d white cards, need %d (%d players x %d cards)",
			ErrPackTooSmall, len(p.White), need, opts.MaxPlayers, opts.HandSize)
	}
	if spaces := p.MaxSpaces(); spaces > opts.HandSize {
		return fmt.Errorf("%w: a black card needs %d answers but hands hold %d",
			ErrInvalidOptions, spaces, opts.HandSize)
	}
	return nil
}
