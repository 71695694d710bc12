/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"os"

	"github.com/Seednode/cardparty/games/cards"
)

func humanReadableSize(bytes int64) string {
	const unit int64 = 1000
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := unit, 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB",
		float64(bytes)/float64(div),
		"kMGTPE"[exp])
}

// loadPack reads the pack named by --cards, falling back to the built-in one.
func (c *Config) loadPack() (*cards.Pack, error) {
	if c.cardsFile == "" {
		return cards.DefaultPack(), nil
	}

	f, err := os.Open(c.cardsFile)
	if err != nil {
		return nil, fmt.Errorf("open card pack: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat card pack: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("card pack %s is not a regular file", c.cardsFile)
	}

	pack, err := cards.ParsePack(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.cardsFile, err)
	}

	if c.logger != nil {
		c.logger.Info("Loaded card pack",
			"path", c.cardsFile,
			"name", pack.Name,
			"size", humanReadableSize(info.Size()),
			"black", len(pack.Black),
			"white", len(pack.White),
		)
	}

	return pack, nil
}
