// cardparty websocket transport
//
// Each game lives at $prefix/cards/:gameid and speaks JSON envelopes of the
// form {"event": "...", "data": {...}} over $prefix/cards/:gameid/ws.
//
// Routes:
//   - GET  /cards              → redirect to a game with a free seat (or a new one)
//   - POST /cards              → redirect to a brand new game
//   - GET  /cards/:gameid      → landing page
//   - GET  /cards/:gameid/ws   → websocket
//   - GET  /cards/:gameid/info → JSON snapshot of the game
//   - GET  /cards/:gameid/qr   → PNG QR code for the game URL, via go-qrcode

package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Seednode/cardparty/games/cards"
	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 8192
	sendBuffer     = 64
)

// Envelope is the wire format in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Client is one websocket connection. It satisfies cards.Channel.
type Client struct {
	conn   *websocket.Conn
	id     string
	send   chan outbound
	logger *log.Logger

	mu           sync.Mutex
	closed       bool
	handlers     map[string]func(json.RawMessage)
	onDisconnect []func()
}

func newClient(conn *websocket.Conn, logger *log.Logger) *Client {
	id := newConnectionID()
	return &Client{
		conn:     conn,
		id:       id,
		send:     make(chan outbound, sendBuffer),
		logger:   logger.With("conn", id),
		handlers: make(map[string]func(json.RawMessage)),
	}
}

func newConnectionID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}
	return hex.EncodeToString(buf)
}

func (c *Client) ID() string { return c.id }

// Send queues an event without blocking. A client that cannot keep up is
// disconnected rather than allowed to stall its game.
func (c *Client) Send(event string, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- outbound{Event: event, Data: payload}:
	default:
		c.logger.Warn("Dropping slow client", "event", event)
		c.closeLocked()
		return
	}

	if event == cards.EventGameDestroyed {
		c.closeLocked()
	}
}

func (c *Client) OnMessage(event string, handler func(json.RawMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = handler
}

func (c *Client) OnDisconnect(handler func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = append(c.onDisconnect, handler)
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) handler(event string) func(json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers[event]
}

// disconnect closes the send queue and runs the departure handlers once.
func (c *Client) disconnect() {
	c.mu.Lock()
	c.closeLocked()
	handlers := c.onDisconnect
	c.onDisconnect = nil
	c.mu.Unlock()

	for _, h := range handlers {
		h()
	}
}

func (c *Client) readPump(cfg *Config, registry *cards.Registry, gameID string) {
	defer func() {
		c.disconnect()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(cfg.playerTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.playerTimeout))
	})

	joined := false

	for {
		var msg Envelope
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("Connection lost", "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(cfg.playerTimeout))

		if msg.Event == cards.EventJoinRequest {
			if joined {
				continue
			}

			var req cards.JoinRequest
			if err := json.Unmarshal(msg.Data, &req); err != nil || strings.TrimSpace(req.Name) == "" {
				c.Send(cards.EventJoinResponse, cards.JoinResponse{Success: false, GameID: gameID, Error: "a name is required"})
				continue
			}

			if err := registry.JoinSession(gameID, c, strings.TrimSpace(req.Name)); err != nil {
				c.logger.Debug("Join failed", "game", gameID, "error", err)
				continue
			}
			joined = true
			continue
		}

		if h := c.handler(msg.Event); h != nil {
			h(msg.Data)
		}
	}
}

func (c *Client) writePump(cfg *Config) {
	ticker := time.NewTicker(cfg.playerTimeout * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Unknown game ids are still upgraded so the client gets a join response
// explaining why it could not join.
func serveWS(cfg *Config, registry *cards.Registry) httprouter.Handle {
	logger := cfg.logger.WithPrefix("ws")

	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Debug("Upgrade failed", "remote", realIP(r), "error", err)
			return
		}

		client := newClient(conn, logger)
		logger.Debug("Client connected", "game", gameID, "conn", client.id, "remote", realIP(r))

		go client.writePump(cfg)
		client.readPump(cfg, registry, gameID)
	}
}

// qrHandler generates a PNG QR code for the current game URL using go-qrcode.
func qrHandler(cfg *Config, registry *cards.Registry, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if _, ok := registry.Game(ps.ByName("gameid")); !ok {
			serveNotFound(cfg, w, errs)
			return
		}

		// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		// We are at /.../:gameid/qr; strip trailing "/qr" to get the game URL.
		path := strings.TrimSuffix(r.URL.Path, "/qr")

		url := scheme + "://" + r.Host + path

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		securityHeaders(cfg, w)

		if _, err := w.Write(png); err != nil {
			errs <- err
		}
	}
}

func serveGamePage(cfg *Config, registry *cards.Registry, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		g, ok := registry.Game(ps.ByName("gameid"))
		if !ok {
			serveNotFound(cfg, w, errs)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)

		if _, err := io.WriteString(w, gamePage(cfg, g.Info())); err != nil {
			errs <- err
		}
	}
}

func serveGameInfo(cfg *Config, registry *cards.Registry, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		g, ok := registry.Game(ps.ByName("gameid"))
		if !ok {
			http.Error(w, cards.ErrSessionNotFound.Error(), http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)

		if err := json.NewEncoder(w).Encode(g.Info()); err != nil {
			errs <- err
		}
	}
}

// redirectOpenGame handles GET /path by sending the visitor to a game with a
// free seat, creating one when every game is full.
func redirectOpenGame(cfg *Config, path string, registry *cards.Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		gameID, err := registry.FindOrCreateOpenSession()
		if err != nil {
			cfg.logger.Error("Could not find or create a game", "error", err)
			http.Error(w, "unable to create game", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, cfg.prefix+path+"/"+gameID, http.StatusTemporaryRedirect)
	}
}

// redirectNewGame handles POST /path by creating a fresh game and
// redirecting to it.
func redirectNewGame(cfg *Config, path string, registry *cards.Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		gameID, err := registry.CreateSession(nil)
		if err != nil {
			cfg.logger.Error("Could not create a game", "error", err)
			http.Error(w, "unable to create game", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, cfg.prefix+path+"/"+gameID, http.StatusSeeOther)
	}
}

func registerCardsGame(cfg *Config, path string, mux *httprouter.Router, registry *cards.Registry, errs chan<- error) {
	mux.GET(cfg.prefix+path, redirectOpenGame(cfg, path, registry))
	mux.POST(cfg.prefix+path, redirectNewGame(cfg, path, registry))

	mux.GET(cfg.prefix+path+"/:gameid", serveGamePage(cfg, registry, errs))
	mux.GET(cfg.prefix+path+"/:gameid/ws", serveWS(cfg, registry))
	mux.GET(cfg.prefix+path+"/:gameid/info", serveGameInfo(cfg, registry, errs))
	mux.GET(cfg.prefix+path+"/:gameid/qr", qrHandler(cfg, registry, errs))
}
