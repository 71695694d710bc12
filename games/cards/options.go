package cards

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidOptions = errors.New("invalid game options")

// Options configure a single game session.
type Options struct {
	HandSize         int
	CardsToWin       int
	MaxPlayers       int
	MinPlayers       int
	SubmissionWindow time.Duration
	SelectionWindow  time.Duration
	RestartDelay     time.Duration
}

func DefaultOptions() Options {
	return Options{
		HandSize:         7,
		CardsToWin:       7,
		MaxPlayers:       10,
		MinPlayers:       3,
		SubmissionWindow: 30 * time.Second,
		SelectionWindow:  90 * time.Second,
		RestartDelay:     20 * time.Second,
	}
}

func (o Options) Validate() error {
	switch {
	case o.HandSize < 1:
		return fmt.Errorf("%w: hand size must be at least 1, got %d", ErrInvalidOptions, o.HandSize)
	case o.CardsToWin < 1:
		return fmt.Errorf("%w: cards to win must be at least 1, got %d", ErrInvalidOptions, o.CardsToWin)
	case o.MinPlayers < 2:
		return fmt.Errorf("%w: min players must be at least 2, got %d", ErrInvalidOptions, o.MinPlayers)
	case o.MaxPlayers < o.MinPlayers:
		return fmt.Errorf("%w: max players (%d) below min players (%d)", ErrInvalidOptions, o.MaxPlayers, o.MinPlayers)
	case o.SubmissionWindow <= 0:
		return fmt.Errorf("%w: submission window must be positive", ErrInvalidOptions)
	case o.SelectionWindow <= 0:
		return fmt.Errorf("%w: selection window must be positive", ErrInvalidOptions)
	case o.RestartDelay <= 0:
		return fmt.Errorf("%w: restart delay must be positive", ErrInvalidOptions)
	}
	return nil
}

// Config is the game configuration as shown to participants.
func (o Options) Config() GameConfig {
	return GameConfig{
		HandSize:          o.HandSize,
		CardsToWin:        o.CardsToWin,
		MaxPlayers:        o.MaxPlayers,
		MinPlayers:        o.MinPlayers,
		SubmissionSeconds: int(o.SubmissionWindow / time.Second),
		SelectionSeconds:  int(o.SelectionWindow / time.Second),
		RestartSeconds:    int(o.RestartDelay / time.Second),
	}
}
