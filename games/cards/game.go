// Round orchestration for one session of the card game.
//
// A Game owns the round state machine:
//
//	lobby -> submission -> selection -> resolved -> submission ...
//	                                            \-> game over -> (restart delay) -> submission
//
// Every mutation happens with Game.mu held: participant responses arrive
// through Player handlers that take the same lock, and timer callbacks
// take it before re-checking the round epoch and phase they were armed
// for. Whichever of a timer and a response gets the lock first closes
// the phase; the other finds the phase already moved on and does nothing.

package cards

import (
	"encoding/json"
	"errors"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
)

var (
	ErrSessionFull     = errors.New("session is full")
	ErrSessionNotFound = errors.New("session not found")
	ErrNameTaken       = errors.New("name already taken")
	ErrAlreadyJoined   = errors.New("already joined")
)

const maxChatLength = 500

type Game struct {
	id     string
	opts   Options
	pack   *Pack
	clock  quartz.Clock
	rng    *rand.Rand
	logger *log.Logger

	mu      sync.Mutex
	players []*Player
	czar    *Player
	deck    *Deck
	black   *Card
	table   [][]Card
	owners  map[int]*Player
	phase   Phase
	round   int
	started bool
	ended   bool
	closed  bool

	submitTimer    *quartz.Timer
	selectTimer    *quartz.Timer
	restartTimer   *quartz.Timer
	selectDeadline time.Time

	createdAt  time.Time
	lastActive time.Time
	done       chan struct{}
}

// NewGame validates opts against pack up front, so a session that could
// run its card pools dry is never created.
func NewGame(id string, opts Options, pack *Pack, clock quartz.Clock, logger *log.Logger, rng *rand.Rand) (*Game, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := pack.Check(opts); err != nil {
		return nil, err
	}

	now := clock.Now()
	return &Game{
		id:         id,
		opts:       opts,
		pack:       pack,
		clock:      clock,
		rng:        rng,
		logger:     logger.WithPrefix("game").With("game", id),
		owners:     make(map[int]*Player),
		createdAt:  now,
		lastActive: now,
		done:       make(chan struct{}),
	}, nil
}

func (g *Game) ID() string { return g.id }

func (g *Game) Options() Options { return g.opts }

// Done is closed once the game has been shut down, either because its
// last participant left or because Close was called.
func (g *Game) Done() <-chan struct{} { return g.done }

func (g *Game) Phase() Phase {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.phase
}

func (g *Game) PlayerCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.players)
}

// IsOpen reports whether the game accepts another participant.
func (g *Game) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.closed && len(g.players) < g.opts.MaxPlayers
}

func (g *Game) CreatedAt() time.Time { return g.createdAt }

func (g *Game) LastActive() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastActive
}

func (g *Game) Info() GameInfo {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.infoLocked()
}

// Join seats a participant. The outcome is also reported to ch as a
// join response.
func (g *Game) Join(ch Channel, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.admitLocked(ch, name); err != nil {
		g.logger.Debug("Rejected join", "name", name, "error", err)
		ch.Send(EventJoinResponse, JoinResponse{Success: false, GameID: g.id, Error: err.Error()})
		return err
	}

	p := newPlayer(ch, name, &g.mu, g.logger)
	g.players = append(g.players, p)
	g.touchLocked()

	ch.Send(EventJoinResponse, JoinResponse{Success: true, GameID: g.id})
	g.broadcastLocked(EventPlayerJoined, PlayerJoined{Name: p.name, ID: p.ID()})

	ch.OnDisconnect(func() { g.leave(p) })
	ch.OnMessage(EventChatSend, func(data json.RawMessage) { g.relayChat(p, data) })

	ch.Send(EventGameInfo, g.infoLocked())

	g.logger.Info("Player joined", "name", name, "players", len(g.players))

	if g.phase == PhaseLobby && len(g.players) >= g.opts.MinPlayers {
		g.startGameLocked()
	}

	return nil
}

func (g *Game) admitLocked(ch Channel, name string) error {
	if g.closed {
		return ErrSessionNotFound
	}
	if len(g.players) >= g.opts.MaxPlayers {
		return ErrSessionFull
	}
	for _, p := range g.players {
		if p.ID() == ch.ID() {
			return ErrAlreadyJoined
		}
		if strings.EqualFold(p.name, name) {
			return ErrNameTaken
		}
	}
	return nil
}

func (g *Game) leave(p *Player) {
	g.mu.Lock()
	defer g.mu.Unlock()

	i := slices.Index(g.players, p)
	if i < 0 {
		return
	}
	g.players = slices.Delete(g.players, i, i+1)
	g.touchLocked()

	active := g.phase.InRound()
	wasCzar := active && p == g.czar

	p.cancelPending()
	if g.deck != nil {
		g.discardWhiteLocked(p.hand...)
	}
	p.hand = nil

	g.broadcastLocked(EventPlayerLeft, PlayerLeft{Name: p.name, ID: p.ID(), WasCzar: wasCzar})
	g.logger.Info("Player left", "name", p.name, "czar", wasCzar, "players", len(g.players))

	switch {
	case len(g.players) == 0:
		g.closeLocked("")
	case !active:
	case len(g.players) < 2:
		g.returnToLobbyLocked()
	case wasCzar:
		// The round cannot be judged.
		g.abandonRoundLocked()
	default:
		if !g.hasRoundSubmittersLocked() {
			// Nobody dealt into this round is left to play it.
			g.abandonRoundLocked()
			return
		}
		g.pullSubmissionLocked(p)
		if g.phase == PhaseSubmission && g.submissionsCompleteLocked() {
			g.openSelectionLocked()
		}
	}
}

// abandonRoundLocked throws away the current black card and deals a new
// round with a random czar.
func (g *Game) abandonRoundLocked() {
	g.stopTimersLocked()
	if g.black != nil {
		g.discardBlackLocked(*g.black)
		g.black = nil
	}
	g.nextRoundLocked(-1)
}

func (g *Game) hasRoundSubmittersLocked() bool {
	return slices.ContainsFunc(g.players, func(p *Player) bool {
		return p.inRound && p != g.czar
	})
}

// pullSubmissionLocked takes a departed participant's group off the table.
func (g *Game) pullSubmissionLocked(p *Player) {
	if len(p.submitted) == 0 {
		return
	}

	lead := p.submitted[0].ID
	i := slices.IndexFunc(g.table, func(group []Card) bool { return group[0].ID == lead })
	if i < 0 {
		return
	}

	group := g.table[i]
	g.table = slices.Delete(g.table, i, i+1)
	delete(g.owners, lead)
	g.discardWhiteLocked(group...)
	p.submitted = nil

	if g.phase == PhaseSubmission {
		g.broadcastLocked(EventGroupRemovedHidden, GroupRemovedHidden{
			Name:      p.name,
			Spaces:    g.black.Spaces,
			TableSize: len(g.table),
		})
		return
	}

	g.broadcastLocked(EventGroupRemoved, GroupRemoved{Name: p.name, Table: displayTable(g.table)})

	if !g.czar.hasSelected {
		remaining := max(g.selectDeadline.Sub(g.clock.Now()), 0)
		g.czar.requestSelection(g.table, remaining, g.onSelection(g.round))
	}
}

func (g *Game) relayChat(p *Player, data json.RawMessage) {
	var msg ChatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	text := strings.TrimSpace(msg.Message)
	if text == "" {
		return
	}
	if utf8.RuneCountInString(text) > maxChatLength {
		text = string([]rune(text)[:maxChatLength])
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed || !slices.Contains(g.players, p) {
		return
	}
	g.touchLocked()
	g.broadcastLocked(EventChatReceive, ChatMessage{Name: p.name, Message: text})
}

// Close shuts the game down and tells everyone still seated why.
func (g *Game) Close(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closeLocked(reason)
}

func (g *Game) closeLocked(reason string) {
	if g.closed {
		return
	}
	g.closed = true
	g.stopTimersLocked()

	for _, p := range g.players {
		p.cancelPending()
		if reason != "" {
			p.ch.Send(EventGameDestroyed, GameDestroyed{Reason: reason})
		}
	}

	close(g.done)
	g.logger.Info("Game closed", "reason", reason, "rounds", g.round)
}

func (g *Game) startGameLocked() {
	g.stopTimersLocked()

	g.deck = NewDeck(g.pack, g.rng)
	g.black = nil
	g.table = nil
	g.owners = make(map[int]*Player)
	g.started = true
	g.ended = false

	czar := g.rng.IntN(len(g.players))
	cfg := g.opts.Config()
	for i, p := range g.players {
		p.resetForGame(g.deck, g.opts.HandSize, i == czar)
		p.ch.Send(EventGameStart, cfg)
	}

	g.logger.Info("Game started", "players", len(g.players))

	g.nextRoundLocked(czar)
}

// nextRoundLocked deals a new round judged by players[czar]. A czar
// index out of range picks one at random.
func (g *Game) nextRoundLocked(czar int) {
	g.stopTimersLocked()

	if len(g.players) < 2 {
		g.returnToLobbyLocked()
		return
	}
	if czar < 0 || czar >= len(g.players) {
		czar = g.rng.IntN(len(g.players))
	}

	g.czar = g.players[czar]
	g.round++

	black := g.deck.DrawBlack()
	g.black = &black

	g.discardTableLocked()

	for i, p := range g.players {
		p.resetForRound(g.deck, g.opts.HandSize, i == czar)
	}

	g.logger.Info("Round started", "round", g.round, "czar", g.czar.name, "spaces", black.Spaces)

	g.openSubmissionLocked()
}

func (g *Game) openSubmissionLocked() {
	g.phase = PhaseSubmission
	epoch := g.round
	black := *g.black
	scores := g.scoresLocked()

	for _, p := range g.players {
		p.ch.Send(EventRoundStart, RoundStart{
			Round:     g.round,
			BlackCard: black,
			Czar:      g.czar.name,
			IsCzar:    p == g.czar,
			Scores:    scores,
		})
		if p != g.czar {
			p.requestSubmission(black, g.opts.SubmissionWindow, g.onSubmission(p, epoch))
		}
	}

	g.submitTimer = g.clock.AfterFunc(g.opts.SubmissionWindow, func() {
		g.mu.Lock()
		defer g.mu.Unlock()

		if g.round != epoch || g.phase != PhaseSubmission {
			return
		}
		g.logger.Debug("Submission window closed", "round", epoch, "groups", len(g.table))
		g.openSelectionLocked()
	}, "game", "submission")
}

func (g *Game) onSubmission(p *Player, epoch int) SubmitFunc {
	return func(cards []Card, ok bool) {
		if !ok {
			return
		}
		if g.closed || g.round != epoch || g.phase != PhaseSubmission {
			g.logger.Debug("Dropping late submission", "player", p.name, "round", epoch)
			p.reclaimSubmission()
			return
		}

		g.touchLocked()
		g.table = append(g.table, cards)
		g.owners[cards[0].ID] = p

		g.broadcastLocked(EventCardsSubmitted, CardsSubmitted{
			Name:      p.name,
			Spaces:    len(cards),
			TableSize: len(g.table),
		})

		if g.submissionsCompleteLocked() {
			g.openSelectionLocked()
		}
	}
}

// submissionsCompleteLocked reports whether everyone asked to submit
// this round has a group on the table. Participants who joined after
// the round was dealt are not asked.
func (g *Game) submissionsCompleteLocked() bool {
	expected := 0
	for _, p := range g.players {
		if p.inRound && p != g.czar {
			expected++
		}
	}
	return len(g.table) >= expected
}

// openSelectionLocked is a no-op unless submissions are open, so the
// submission timer and the final submission can both call it.
func (g *Game) openSelectionLocked() {
	if g.phase != PhaseSubmission {
		return
	}
	g.phase = PhaseSelection
	stopTimer(&g.submitTimer)

	for _, p := range g.players {
		p.pendingSubmit = nil
	}

	epoch := g.round
	g.broadcastLocked(EventCardsShow, CardsShow{Table: displayTable(g.table)})

	g.selectDeadline = g.clock.Now().Add(g.opts.SelectionWindow)
	g.czar.requestSelection(g.table, g.opts.SelectionWindow, g.onSelection(epoch))

	g.selectTimer = g.clock.AfterFunc(g.opts.SelectionWindow, func() {
		g.mu.Lock()
		defer g.mu.Unlock()

		if g.round != epoch || g.phase != PhaseSelection {
			return
		}
		winner := g.fallbackWinnerLocked()
		g.logger.Info("Selection window closed, picking a winner at random", "round", epoch, "winner", winner.name)
		g.endRoundLocked(winner, true)
	}, "game", "selection")
}

func (g *Game) onSelection(epoch int) SelectFunc {
	return func(group []Card, ok bool) {
		if !ok {
			return
		}
		if g.closed || g.round != epoch || g.phase != PhaseSelection {
			g.logger.Debug("Dropping late selection", "round", epoch)
			return
		}

		winner, found := g.owners[group[0].ID]
		if !found {
			g.logger.Debug("Selected group has no owner", "card", group[0].ID)
			return
		}

		g.touchLocked()
		g.endRoundLocked(winner, false)
	}
}

// fallbackWinnerLocked picks uniformly among the participants whose
// groups are on the table, or among the czar's opponents dealt into this
// round when the table is empty.
func (g *Game) fallbackWinnerLocked() *Player {
	candidates := make([]*Player, 0, len(g.table))
	for _, group := range g.table {
		if p, ok := g.owners[group[0].ID]; ok {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		for _, p := range g.players {
			if p.inRound && p != g.czar {
				candidates = append(candidates, p)
			}
		}
	}
	if len(candidates) == 0 {
		return g.czar
	}
	return candidates[g.rng.IntN(len(candidates))]
}

func (g *Game) endRoundLocked(winner *Player, timedOut bool) {
	g.phase = PhaseResolved
	stopTimer(&g.selectTimer)
	stopTimer(&g.submitTimer)

	for _, p := range g.players {
		p.cancelPending()
	}

	black := *g.black
	g.discardBlackLocked(black)
	g.black = nil
	winner.awardTrophy(black)

	scores := g.scoresLocked()
	cards := slices.Clone(winner.submitted)
	for _, p := range g.players {
		p.ch.Send(EventRoundWinner, RoundWinner{
			Name:     winner.name,
			Self:     p == winner,
			Cards:    cards,
			Scores:   scores,
			TimedOut: timedOut,
		})
	}

	g.logger.Info("Round won", "round", g.round, "winner", winner.name, "score", len(winner.won), "timeout", timedOut)

	if len(winner.won) >= g.opts.CardsToWin {
		g.endGameLocked(winner)
		return
	}

	g.nextRoundLocked(slices.Index(g.players, winner))
}

func (g *Game) endGameLocked(winner *Player) {
	g.phase = PhaseGameOver
	g.started = false
	g.ended = true

	trophies := slices.Clone(winner.won)
	for _, p := range g.players {
		p.ch.Send(EventGameWinner, GameWinner{
			Name:     winner.name,
			Self:     p == winner,
			Trophies: trophies,
		})
	}

	g.logger.Info("Game won", "winner", winner.name, "rounds", g.round)

	g.restartTimer = g.clock.AfterFunc(g.opts.RestartDelay, func() {
		g.mu.Lock()
		defer g.mu.Unlock()

		if g.closed || g.phase != PhaseGameOver {
			return
		}
		g.restartTimer = nil
		if len(g.players) < g.opts.MinPlayers {
			g.returnToLobbyLocked()
			return
		}
		g.startGameLocked()
	}, "game", "restart")
}

// returnToLobbyLocked abandons whatever is underway and waits for enough
// participants to start over.
func (g *Game) returnToLobbyLocked() {
	g.stopTimersLocked()

	if g.deck != nil {
		if g.black != nil {
			g.discardBlackLocked(*g.black)
		}
		g.discardTableLocked()
	}
	g.black = nil
	g.table = nil
	g.czar = nil
	g.phase = PhaseLobby
	g.started = false

	for _, p := range g.players {
		p.leaveRound()
	}

	info := g.infoLocked()
	g.broadcastLocked(EventGameInfo, info)

	g.logger.Info("Waiting for players", "players", len(g.players), "need", g.opts.MinPlayers)
}

func (g *Game) discardTableLocked() {
	for _, group := range g.table {
		g.discardWhiteLocked(group...)
	}
	g.table = nil
	g.owners = make(map[int]*Player)
}

func (g *Game) discardWhiteLocked(cards ...Card) {
	for _, c := range cards {
		if err := g.deck.DiscardWhite(c); err != nil {
			g.logger.Error("Pool accounting fault", "error", err)
		}
	}
}

func (g *Game) discardBlackLocked(c Card) {
	if err := g.deck.DiscardBlack(c); err != nil {
		g.logger.Error("Pool accounting fault", "error", err)
	}
}

func (g *Game) stopTimersLocked() {
	stopTimer(&g.submitTimer)
	stopTimer(&g.selectTimer)
	stopTimer(&g.restartTimer)
}

func stopTimer(t **quartz.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func (g *Game) touchLocked() {
	g.lastActive = g.clock.Now()
}

func (g *Game) broadcastLocked(event string, payload any) {
	for _, p := range g.players {
		p.ch.Send(event, payload)
	}
}

func (g *Game) scoresLocked() []Score {
	scores := make([]Score, 0, len(g.players))
	for _, p := range g.players {
		scores = append(scores, Score{Name: p.name, Score: len(p.won)})
	}
	return scores
}

func (g *Game) infoLocked() GameInfo {
	info := GameInfo{
		ID:           g.id,
		Phase:        g.phase,
		Round:        g.round,
		Players:      make([]string, 0, len(g.players)),
		Table:        []TableEntry{},
		TableSize:    len(g.table),
		Started:      g.started,
		Ended:        g.ended,
		CardsVisible: g.phase == PhaseSelection,
		Scores:       g.scoresLocked(),
	}
	for _, p := range g.players {
		info.Players = append(info.Players, p.name)
	}
	if g.czar != nil && g.phase.InRound() {
		info.Czar = g.czar.name
	}
	if g.black != nil {
		black := *g.black
		info.BlackCard = &black
	}
	if info.CardsVisible {
		info.Table = displayTable(g.table)
	}
	return info
}
