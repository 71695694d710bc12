/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package cards

import (
	"fmt"
	"strings"
)

// Color separates the prompt pool from the answer pool.
type Color int

const (
	White Color = iota
	Black
)

func (c Color) String() string {
	switch c {
	case White:
		return "white"
	case Black:
		return "black"
	default:
		return fmt.Sprintf("color(%d)", int(c))
	}
}

func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Color) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "white":
		*c = White
	case "black":
		*c = Black
	default:
		return fmt.Errorf("unknown card color %q", text)
	}
	return nil
}

// Card is immutable once created. ID is unique within its color pool.
// Spaces is only set for black cards.
type Card struct {
	ID     int    `json:"id"`
	Text   string `json:"text"`
	Color  Color  `json:"color"`
	Spaces int    `json:"spaces,omitempty"`
}

// TableEntry is one submission group as shown on the table: the group's
// card texts joined into a single unit, keyed by its leading card id.
type TableEntry struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

const groupSeparator = "\n"

func combineGroup(group []Card) TableEntry {
	texts := make([]string, 0, len(group))
	for _, c := range group {
		texts = append(texts, c.Text)
	}
	return TableEntry{
		ID:   group[0].ID,
		Text: strings.Join(texts, groupSeparator),
	}
}

func cardIDs(cards []Card) []int {
	ids := make([]int, 0, len(cards))
	for _, c := range cards {
		ids = append(ids, c.ID)
	}
	return ids
}
