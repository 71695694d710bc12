package cards

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	mrand "math/rand/v2"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
)

const gameIDLength = 8

type RegistryConfig struct {
	Pack        *Pack
	Defaults    Options
	Clock       quartz.Clock
	Logger      *log.Logger
	IdleTimeout time.Duration
}

// Registry holds the live games keyed by id. It only guards its own map;
// each game serializes itself.
type Registry struct {
	mu    sync.Mutex
	games map[string]*Game

	pack        *Pack
	defaults    Options
	clock       quartz.Clock
	logger      *log.Logger
	idleTimeout time.Duration
}

func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Pack == nil {
		cfg.Pack = DefaultPack()
	}
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard)
	}
	if cfg.Defaults == (Options{}) {
		cfg.Defaults = DefaultOptions()
	}

	return &Registry{
		games:       make(map[string]*Game),
		pack:        cfg.Pack,
		defaults:    cfg.Defaults,
		clock:       cfg.Clock,
		logger:      cfg.Logger.WithPrefix("registry"),
		idleTimeout: cfg.IdleTimeout,
	}
}

// CreateSession starts a new, empty game. A nil opts uses the registry
// defaults.
func (r *Registry) CreateSession(opts *Options) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, err := r.createLocked(opts)
	if err != nil {
		return "", err
	}
	return g.id, nil
}

func (r *Registry) createLocked(opts *Options) (*Game, error) {
	o := r.defaults
	if opts != nil {
		o = *opts
	}

	id := r.newGameIDLocked()
	rng := mrand.New(mrand.NewPCG(mrand.Uint64(), mrand.Uint64()))

	g, err := NewGame(id, o, r.pack, r.clock, r.logger, rng)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	r.games[id] = g
	go r.watch(g)

	r.logger.Info("Created game", "game", id, "max_players", o.MaxPlayers)
	return g, nil
}

// watch forgets a game once it reports that it has shut down.
func (r *Registry) watch(g *Game) {
	<-g.Done()

	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.games[g.id]; ok && cur == g {
		delete(r.games, g.id)
		r.logger.Info("Destroyed game", "game", g.id, "age", r.clock.Now().Sub(g.CreatedAt()).Round(time.Second))
	}
}

// JoinSession seats ch in the game with the given id. Failures are also
// reported to ch.
func (r *Registry) JoinSession(id string, ch Channel, name string) error {
	g, ok := r.Game(id)
	if !ok {
		ch.Send(EventJoinResponse, JoinResponse{Success: false, GameID: id, Error: ErrSessionNotFound.Error()})
		return fmt.Errorf("join %s: %w", id, ErrSessionNotFound)
	}

	if err := g.Join(ch, name); err != nil {
		return fmt.Errorf("join %s: %w", id, err)
	}
	return nil
}

// FindOrCreateOpenSession returns a random game with a free seat,
// creating one when every game is full.
func (r *Registry) FindOrCreateOpenSession() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	open := make([]*Game, 0, len(r.games))
	for _, g := range r.games {
		if g.IsOpen() {
			open = append(open, g)
		}
	}

	if len(open) > 0 {
		return open[mrand.IntN(len(open))].id, nil
	}

	g, err := r.createLocked(nil)
	if err != nil {
		return "", err
	}
	return g.id, nil
}

func (r *Registry) Game(id string) (*Game, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.games[id]
	return g, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.games)
}

// newGameIDLocked generates a crypto-random game ID that doesn't collide
// with an existing game.
func (r *Registry) newGameIDLocked() string {
	for {
		id := randomGameID(gameIDLength)
		if _, exists := r.games[id]; !exists {
			return id
		}
	}
}

func randomGameID(n int) string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	const maxByte = byte(255 - (256 % len(letters)))

	out := make([]byte, 0, n)
	buf := make([]byte, n*2)

	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}

		for _, b := range buf {
			if b <= maxByte {
				out = append(out, letters[int(b)%len(letters)])
				if len(out) == n {
					return string(out)
				}
			}
		}
	}

	return string(out)
}

// Reap closes games that have been idle longer than the idle timeout and
// returns how many it closed.
func (r *Registry) Reap() int {
	if r.idleTimeout <= 0 {
		return 0
	}

	cutoff := r.clock.Now().Add(-r.idleTimeout)

	r.mu.Lock()
	stale := make([]*Game, 0)
	for id, g := range r.games {
		if g.LastActive().Before(cutoff) {
			stale = append(stale, g)
			delete(r.games, id)
		}
	}
	r.mu.Unlock()

	for _, g := range stale {
		r.logger.Info("Reaping idle game", "game", g.id)
		g.Close("idle timeout")
	}

	return len(stale)
}

// Run reaps idle games until ctx is done.
func (r *Registry) Run(ctx context.Context) error {
	if r.idleTimeout <= 0 {
		<-ctx.Done()
		return nil
	}

	w := r.clock.TickerFunc(ctx, r.idleTimeout/2, func() error {
		r.Reap()
		return nil
	}, "registry", "reap")

	if err := w.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// Close shuts down every game.
func (r *Registry) Close(reason string) {
	r.mu.Lock()
	games := make([]*Game, 0, len(r.games))
	for id, g := range r.games {
		games = append(games, g)
		delete(r.games, id)
	}
	r.mu.Unlock()

	for _, g := range games {
		g.Close(reason)
	}
}
