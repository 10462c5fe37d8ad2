// Duetbox session layer
//
// Connections are matched two at a time: the first websocket opens a room
// and waits, the next one fills it. A connection's position in the room
// (0 or 1) is its player index for the room's lifetime. The instant a room
// fills, each side receives the shared board plus its own private key card,
// and play begins. Either side disconnecting tears the whole room down;
// there is no reconnect or resume.
//
// Features:
// - Auto-pairing: at most one room is ever waiting for a second player
// - Per-room serialization: a room mutex orders both players' actions
// - Asymmetric start payloads: each side sees only its own key card
// - Rejected actions go back to the offending sender only
// - Rooms stuck at one occupant are reaped after a configurable timeout
// - Random 8-char room IDs via crypto/rand, with server-side collision check
// - In-browser QR button to share the lobby URL, backed by go-qrcode

package main

import (
	"crypto/rand"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// Rejection for actions sent before the room has a second player.
var errNotReady = errors.New("notReady")

// Messages coming from clients
type ClientMessage struct {
	Type      string `json:"type"`                 // "clue", "guess", "end_turn"
	Word      string `json:"word,omitempty"`       // clue
	Count     int    `json:"count,omitempty"`      // clue
	CellIndex int    `json:"cell_index,omitempty"` // guess
}

// InitMessage tells a client which seat it was given, before the room fills.
type InitMessage struct {
	Type        string `json:"type"` // "init"
	PlayerIndex int    `json:"player_index"`
}

// StartMessage is sent individually to each participant once the room
// fills. PrivateKey differs per recipient; everything else is identical.
type StartMessage struct {
	Type       string    `json:"type"` // "start"
	Board      []Cell    `json:"board"`
	PrivateKey []Color   `json:"private_key"`
	Tokens     TokenBank `json:"tokens"`
	Snapshot   Snapshot  `json:"snapshot"`
}

// ClueMessage relays a clue to both participants.
type ClueMessage struct {
	Type         string `json:"type"` // "clue"
	Word         string `json:"word"`
	Count        int    `json:"count"`
	ActivePlayer int    `json:"active_player"`
	Phase        Phase  `json:"phase"`
}

// StateMessage carries the public snapshot plus the outcome that produced
// it. Broadcast after every reveal and after terminal turn ends.
type StateMessage struct {
	Type       string   `json:"type"` // "state"
	Snapshot   Snapshot `json:"snapshot"`
	LastResult Result   `json:"last_result"`
}

// NextTurnMessage is broadcast after a non-terminal turn end.
type NextTurnMessage struct {
	Type         string   `json:"type"` // "next_turn"
	ActivePlayer int      `json:"active_player"`
	Phase        Phase    `json:"phase"`
	Snapshot     Snapshot `json:"snapshot"`
	Message      string   `json:"message,omitempty"`
}

// RejectedMessage goes to the offending sender only, never broadcast.
type RejectedMessage struct {
	Type   string `json:"type"` // "action_rejected"
	Reason string `json:"reason"`
}

// SimpleMessage is for generic notifications ("peer_left", "session_ended").
type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type Client struct {
	conn *websocket.Conn
	send chan any
}

// Room pairs exactly two clients with one Game. All gameplay goes through
// handle(), serialized by mu; manager-level add/remove takes the manager
// lock first, then mu.
type Room struct {
	id        string
	gm        *GameManager
	game      *Game
	clients   [2]*Client
	occupants int
	createdAt time.Time
	closed    bool

	mu sync.Mutex
}

// GameManager owns the room registry and the single waiting slot.
type GameManager struct {
	cfg   *Config
	words []string

	mu      sync.Mutex
	rooms   map[string]*Room
	waiting *Room
}

func newGameManager(cfg *Config, words []string) *GameManager {
	gm := &GameManager{
		cfg:   cfg,
		words: words,
		rooms: make(map[string]*Room),
	}
	if cfg.sessionTimeout > 0 {
		go gm.reaperLoop()
	}
	return gm
}

// newRoomID generates a crypto-random room ID and ensures it doesn't
// collide with existing rooms. Callers hold gm.mu.
func (gm *GameManager) newRoomID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 8)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		if _, exists := gm.rooms[id]; !exists {
			return id
		}
	}
}

// join seats a client: into the waiting room as player 1 if one exists,
// otherwise into a fresh room as player 0. The fresh room's board and keys
// are generated immediately; a word-source failure means the room is never
// registered and the connection is refused.
func (gm *GameManager) join(c *Client) (*Room, int, error) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if r := gm.waiting; r != nil {
		gm.waiting = nil

		r.mu.Lock()
		r.clients[1] = c
		r.occupants = 2
		r.sendLocked(1, InitMessage{Type: "init", PlayerIndex: 1})
		r.startLocked()
		r.mu.Unlock()

		return r, 1, nil
	}

	game, err := newGame(gm.words, gm.cfg.tokens, newRNG())
	if err != nil {
		return nil, 0, err
	}

	r := &Room{
		id:        gm.newRoomID(),
		gm:        gm,
		game:      game,
		createdAt: time.Now(),
		occupants: 1,
	}
	r.clients[0] = c
	gm.rooms[r.id] = r
	gm.waiting = r

	r.mu.Lock()
	r.sendLocked(0, InitMessage{Type: "init", PlayerIndex: 0})
	r.mu.Unlock()

	logf(gm.cfg, "GAMES: Opened room %s, waiting for partner", r.id)

	return r, 0, nil
}

// leave tears down the whole room. The surviving participant, if any, is
// told the session is over before its send channel closes. Safe to call
// more than once per room.
func (gm *GameManager) leave(r *Room, leaver int) {
	gm.mu.Lock()
	if gm.waiting == r {
		gm.waiting = nil
	}
	delete(gm.rooms, r.id)
	gm.mu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true

	logf(gm.cfg, "GAMES: Closed room %s", r.id)

	for i, cl := range r.clients {
		if cl == nil {
			continue
		}
		if i != leaver {
			select {
			case cl.send <- SimpleMessage{
				Type:    "peer_left",
				Message: "Your partner has left; the session is over.",
			}:
			default:
			}
		}
		close(cl.send)
	}
}

// reaperLoop periodically removes rooms stuck waiting for a second player
// longer than the session timeout. Full rooms are never reaped: gameplay
// has no wall clock, only the token bank.
func (gm *GameManager) reaperLoop() {
	ticker := time.NewTicker(gm.cfg.sessionTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-gm.cfg.sessionTimeout)

		gm.mu.Lock()
		var stale []*Room
		for _, r := range gm.rooms {
			if r.occupants < 2 && r.createdAt.Before(cutoff) {
				stale = append(stale, r)
			}
		}
		gm.mu.Unlock()

		for _, r := range stale {
			gm.leave(r, -1)
		}
	}
}

// startLocked pushes each side its asymmetric start payload.
func (r *Room) startLocked() {
	snap := r.game.Snapshot()
	for idx := range r.clients {
		r.sendLocked(idx, StartMessage{
			Type:       "start",
			Board:      snap.Board,
			PrivateKey: r.game.PrivateKey(idx),
			Tokens:     snap.Tokens,
			Snapshot:   snap,
		})
	}

	logf(r.gm.cfg, "GAMES: Room %s is full, starting", r.id)
}

// sendLocked queues a message for one seat. A client that can't keep up
// forfeits the room.
func (r *Room) sendLocked(idx int, msg any) {
	cl := r.clients[idx]
	if cl == nil {
		return
	}
	select {
	case cl.send <- msg:
	default:
		go r.gm.leave(r, idx)
	}
}

func (r *Room) broadcastLocked(msg any) {
	for idx := range r.clients {
		r.sendLocked(idx, msg)
	}
}

func (r *Room) rejectLocked(idx int, err error) {
	r.sendLocked(idx, RejectedMessage{
		Type:   "action_rejected",
		Reason: err.Error(),
	})
}

// handle applies one inbound action from seat idx. Both players' actions
// funnel through here in arrival order, so each transition is atomic with
// respect to the next.
func (r *Room) handle(idx int, msg ClientMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	if r.occupants < 2 {
		r.rejectLocked(idx, errNotReady)
		return
	}

	switch msg.Type {
	case "clue":
		res, err := r.game.GiveClue(idx)
		if err != nil {
			r.rejectLocked(idx, err)
			return
		}

		logf(r.gm.cfg, "GAMES: Room %s: player %d clued %q (%d)", r.id, idx, msg.Word, msg.Count)

		r.broadcastLocked(ClueMessage{
			Type:         "clue",
			Word:         msg.Word,
			Count:        msg.Count,
			ActivePlayer: res.ActivePlayer,
			Phase:        res.Phase,
		})

	case "guess":
		res, err := r.game.Reveal(msg.CellIndex, idx)
		if err != nil {
			r.rejectLocked(idx, err)
			return
		}

		logf(r.gm.cfg, "GAMES: Room %s: player %d revealed cell %d (%s)", r.id, idx, msg.CellIndex, res.Tag)

		r.broadcastLocked(StateMessage{
			Type:       "state",
			Snapshot:   r.game.Snapshot(),
			LastResult: res,
		})

		if res.EndTurn {
			r.finishTurnLocked()
		}

	case "end_turn":
		res, err := r.game.EndTurn(idx)
		if err != nil {
			r.rejectLocked(idx, err)
			return
		}
		r.announceTurnLocked(res)
	}
}

// finishTurnLocked closes the round after a forced turn end (bystander
// hit, or the clue-giver's card being solved mid-round).
func (r *Room) finishTurnLocked() {
	r.announceTurnLocked(r.game.finishTurn())
}

func (r *Room) announceTurnLocked(res Result) {
	if res.Tag != "continue" {
		// Terminal: token bank exhausted, or the fallback victory.
		r.broadcastLocked(StateMessage{
			Type:       "state",
			Snapshot:   r.game.Snapshot(),
			LastResult: res,
		})
		return
	}

	r.broadcastLocked(NextTurnMessage{
		Type:         "next_turn",
		ActivePlayer: res.ActivePlayer,
		Phase:        res.Phase,
		Snapshot:     r.game.Snapshot(),
		Message:      fmt.Sprintf("Player %d is giving the next clue.", res.ActivePlayer+1),
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocket handler: every new connection is auto-matched by the manager.
func serveWSForManager(cfg *Config, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn: conn,
			send: make(chan any, 16),
		}

		room, idx, err := gm.join(client)
		if err != nil {
			_ = conn.WriteJSON(SimpleMessage{
				Type:    "session_ended",
				Message: "Unable to start a session: " + err.Error(),
			})
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(room, idx)
	}
}

func (c *Client) readPump(r *Room, idx int) {
	defer func() {
		r.gm.leave(r, idx)
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "clue", "guess", "end_turn":
			r.handle(idx, msg)
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// QR handler: generates a PNG QR code for the lobby URL using go-qrcode,
// so the second player can scan to get auto-matched.
func qrHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../qr; strip trailing "/qr" to get the lobby URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

//go:embed duet/index.html
var duetHTML []byte

func getIndexHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(duetHTML)
	}
}

// registerDuetGame sets up routes so that:
//   - $path        → HTML client (auto-matched on websocket connect)
//   - $path/ws     → WebSocket lobby
//   - $path/qr     → PNG QR code for the lobby URL
func registerDuetGame(cfg *Config, path string, mux *httprouter.Router, words []string) {
	gm := newGameManager(cfg, words)

	mux.GET(cfg.prefix+path, getIndexHandler(cfg))

	mux.GET(cfg.prefix+path+"/ws", serveWSForManager(cfg, gm))

	mux.GET(cfg.prefix+path+"/qr", qrHandler)
}
