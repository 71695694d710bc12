package cards

// Events exchanged with participants.
const (
	EventJoinRequest        = "self.join.req"
	EventJoinResponse       = "self.join.res"
	EventHand               = "self.cards"
	EventSubmitRequest      = "self.submit.req"
	EventSubmitResponse     = "self.submit.res"
	EventSelectRequest      = "self.select.req"
	EventSelectResponse     = "self.select.res"
	EventGameInfo           = "game.info"
	EventPlayerJoined       = "game.player.join"
	EventPlayerLeft         = "game.player.disconnect"
	EventChatSend           = "chat.send"
	EventChatReceive        = "chat.receive"
	EventGameStart          = "game.start"
	EventRoundStart         = "game.round.start"
	EventCardsSubmitted     = "game.cards.submit"
	EventGroupRemovedHidden = "game.cards.remove.hidden"
	EventGroupRemoved       = "game.cards.remove.visible"
	EventCardsShow          = "game.cards.show"
	EventRoundWinner        = "game.round.winner"
	EventGameWinner         = "game.winner"
	EventGameDestroyed      = "game.destroyed"
)

// Inbound payloads

type JoinRequest struct {
	Name string `json:"name"`
}

type SubmitResponse struct {
	Cards []int `json:"cards"`
}

type SelectResponse struct {
	Card int `json:"card"`
}

type ChatMessage struct {
	Name    string `json:"name,omitempty"`
	Message string `json:"message"`
}

// Outbound payloads

type JoinResponse struct {
	Success bool   `json:"success"`
	GameID  string `json:"game_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

type HandUpdate struct {
	Cards []Card `json:"cards"`
}

type Score struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

type GameConfig struct {
	HandSize          int `json:"hand_size"`
	CardsToWin        int `json:"cards_to_win"`
	MaxPlayers        int `json:"max_players"`
	MinPlayers        int `json:"min_players"`
	SubmissionSeconds int `json:"submission_seconds"`
	SelectionSeconds  int `json:"selection_seconds"`
	RestartSeconds    int `json:"restart_seconds"`
}

// GameInfo is a snapshot of the session. Table is only filled while the
// submissions are revealed; otherwise TableSize tells how many groups
// are face down.
type GameInfo struct {
	ID           string       `json:"id"`
	Phase        Phase        `json:"phase"`
	Round        int          `json:"round"`
	Players      []string     `json:"players"`
	Czar         string       `json:"czar,omitempty"`
	BlackCard    *Card        `json:"black_card,omitempty"`
	Table        []TableEntry `json:"table"`
	TableSize    int          `json:"table_size"`
	Started      bool         `json:"started"`
	Ended        bool         `json:"ended"`
	CardsVisible bool         `json:"cards_visible"`
	Scores       []Score      `json:"scores"`
}

type PlayerJoined struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type PlayerLeft struct {
	Name    string `json:"name"`
	ID      string `json:"id"`
	WasCzar bool   `json:"was_czar"`
}

type RoundStart struct {
	Round     int     `json:"round"`
	BlackCard Card    `json:"black_card"`
	Czar      string  `json:"czar"`
	IsCzar    bool    `json:"is_czar"`
	Scores    []Score `json:"scores"`
}

type SubmitRequest struct {
	BlackCard Card `json:"black_card"`
	Spaces    int  `json:"spaces"`
	Seconds   int  `json:"seconds"`
}

type CardsSubmitted struct {
	Name      string `json:"name"`
	Spaces    int    `json:"spaces"`
	TableSize int    `json:"table_size"`
}

type GroupRemovedHidden struct {
	Name      string `json:"name"`
	Spaces    int    `json:"spaces"`
	TableSize int    `json:"table_size"`
}

type GroupRemoved struct {
	Name  string       `json:"name"`
	Table []TableEntry `json:"table"`
}

type CardsShow struct {
	Table []TableEntry `json:"table"`
}

type SelectRequest struct {
	Table   []TableEntry `json:"table"`
	Seconds int          `json:"seconds"`
}

type RoundWinner struct {
	Name     string  `json:"name"`
	Self     bool    `json:"self"`
	Cards    []Card  `json:"cards"`
	Scores   []Score `json:"scores"`
	TimedOut bool    `json:"timed_out"`
}

type GameWinner struct {
	Name     string `json:"name"`
	Self     bool   `json:"self"`
	Trophies []Card `json:"trophies"`
}

type GameDestroyed struct {
	Reason string `json:"reason"`
}
