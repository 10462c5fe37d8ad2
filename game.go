// Duetbox game engine
//
// Two players share a 5x5 board of words, but each holds a different key
// card. Every position carries one role per side: nine agents and three
// assassins are visible to each player, overlapping so that the board holds
// fifteen distinct agent words and five distinct assassin words overall.
// Players alternate giving one-word clues and guessing; a guess is always
// checked against the clue-giver's key, never the guesser's own. Revealing
// any assassin loses immediately. Running out of turn tokens loses. Finding
// all fifteen agent words wins.
//
// Everything in this file is network-free. Rooms in duet.go drive the
// transitions and relay the outcomes; tests drive them directly.

package main

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	mathrand "math/rand"
)

const (
	boardSize = 25

	sharedAgents  = 3
	sideAgents    = 6 // per side, in addition to the shared ones
	sharedKillers = 1
	sideKillers   = 2 // per side, in addition to the shared one

	// Distinct agent positions across both key cards; finding them all
	// wins the game. Each side sees sharedAgents+sideAgents of them.
	totalAgents = sharedAgents + 2*sideAgents
)

// Color is the role a key card assigns to a board position.
type Color string

const (
	colorAgent     Color = "agent"
	colorAssassin  Color = "assassin"
	colorBystander Color = "bystander"
)

// Phase is the half of a round the session is currently in.
type Phase string

const (
	phaseClue  Phase = "clue"
	phaseGuess Phase = "guess"
)

// Cell is one board position as both players see it. PublicColor is set
// exactly once, at reveal time, and never changes afterward.
type Cell struct {
	Word        string `json:"word"`
	Revealed    bool   `json:"revealed"`
	PublicColor Color  `json:"public_color,omitempty"`
}

// TokenBank is the shared turn budget. Used only ever goes up; reaching
// Bank ends the game in defeat.
type TokenBank struct {
	Bank int `json:"bank"`
	Used int `json:"used"`
}

// AgentTally breaks down the revealed agent words by which key(s) they
// appear on. Total counts each board position once.
type AgentTally struct {
	Player0 int `json:"player0"`
	Player1 int `json:"player1"`
	Shared  int `json:"shared"`
	Total   int `json:"total"`
}

// Snapshot is everything both players are allowed to see. It never
// includes either private key.
type Snapshot struct {
	Board          []Cell     `json:"board"`
	Tokens         TokenBank  `json:"tokens"`
	Turn           int        `json:"turn"`
	Phase          Phase      `json:"phase"`
	ActivePlayer   int        `json:"active_player"`
	GameOver       bool       `json:"game_over"`
	Victory        bool       `json:"victory"`
	Agents         AgentTally `json:"agents"`
	WordsRemaining [2]int     `json:"words_remaining"`
}

// Result reports the outcome of a successful transition.
type Result struct {
	Tag              string `json:"tag"`
	CellIndex        int    `json:"cell_index,omitempty"`
	Color            Color  `json:"color,omitempty"`
	ActivePlayer     int    `json:"active_player"`
	Phase            Phase  `json:"phase"`
	EndTurn          bool   `json:"end_turn,omitempty"`
	ContinueGuessing bool   `json:"continue_guessing,omitempty"`
	CompletedWords   bool   `json:"completed_words,omitempty"`
}

// Rejection reasons. The error text doubles as the wire-level reason tag
// in action_rejected messages, so these strings are part of the protocol.
var (
	errGameOver        = errors.New("gameOver")
	errWrongPhase      = errors.New("wrongPhase")
	errWrongPlayer     = errors.New("wrongPlayer")
	errAlreadyRevealed = errors.New("alreadyRevealed")
	errBadCell         = errors.New("badCell")

	errNotEnoughWords = errors.New("word list must contain at least 25 distinct words")
)

// Game is one session's authoritative state. It is not safe for concurrent
// use; the owning room serializes access.
type Game struct {
	board  [boardSize]Cell
	keys   [2][boardSize]Color
	tokens TokenBank
	turn   int
	phase  Phase
	active int
	over   bool
	won    bool
}

// cryptoSource feeds math/rand's shuffle from the kernel CSPRNG, so board
// permutations are uniform over the full 25! space rather than bounded by
// a 63-bit seed.
type cryptoSource struct{}

func (cryptoSource) Seed(int64) {}

func (s cryptoSource) Int63() int64 {
	return int64(s.Uint64() &^ (1 << 63))
}

func (cryptoSource) Uint64() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}
	return binary.BigEndian.Uint64(b[:])
}

func newRNG() *mathrand.Rand {
	return mathrand.New(cryptoSource{})
}

// newGame selects 25 distinct words from the pool and deals both key cards:
// 3 shared agents, 6 agents per side, 1 shared assassin, 2 assassins per
// side, and 5 positions left bystander on both. The rng is injected so
// tests can fix the layout.
func newGame(words []string, bank int, rng *mathrand.Rand) (*Game, error) {
	if len(words) < boardSize {
		return nil, errNotEnoughWords
	}

	g := &Game{
		tokens: TokenBank{Bank: bank},
		phase:  phaseClue,
	}

	picks := rng.Perm(len(words))[:boardSize]
	for i, w := range picks {
		g.board[i].Word = words[w]
	}

	for i := 0; i < boardSize; i++ {
		g.keys[0][i] = colorBystander
		g.keys[1][i] = colorBystander
	}

	// Deal fixed-size role blocks over a shuffled position list.
	pos := rng.Perm(boardSize)
	next := func(n int) []int {
		block := pos[:n]
		pos = pos[n:]
		return block
	}

	for _, i := range next(sharedAgents) {
		g.keys[0][i] = colorAgent
		g.keys[1][i] = colorAgent
	}
	for _, i := range next(sideAgents) {
		g.keys[0][i] = colorAgent
	}
	for _, i := range next(sideAgents) {
		g.keys[1][i] = colorAgent
	}
	for _, i := range next(sharedKillers) {
		g.keys[0][i] = colorAssassin
		g.keys[1][i] = colorAssassin
	}
	for _, i := range next(sideKillers) {
		g.keys[0][i] = colorAssassin
	}
	for _, i := range next(sideKillers) {
		g.keys[1][i] = colorAssassin
	}

	return g, nil
}

// GiveClue validates that it is player's turn to give a clue and flips the
// session into the guessing phase with the other player active. The clue
// itself is opaque to the engine: the word is never checked against the
// board, and the count does not cap the guesses that follow. The token
// bank, not the clue count, is the resource constraint.
func (g *Game) GiveClue(player int) (Result, error) {
	switch {
	case g.over:
		return Result{}, errGameOver
	case g.phase != phaseClue:
		return Result{}, errWrongPhase
	case player != g.active:
		return Result{}, errWrongPlayer
	}

	g.active = 1 - g.active
	g.phase = phaseGuess

	return Result{
		Tag:          "clue",
		ActivePlayer: g.active,
		Phase:        g.phase,
	}, nil
}

// Reveal applies player's guess of cell idx. The revealed color is read
// from the other side's key card: that side gave the clue this round, so
// its key is the ground truth the clue was derived from. The guesser's own
// key is never consulted for the guessed cell.
func (g *Game) Reveal(idx, player int) (Result, error) {
	switch {
	case g.over:
		return Result{}, errGameOver
	case idx < 0 || idx >= boardSize:
		return Result{}, errBadCell
	case g.board[idx].Revealed:
		return Result{}, errAlreadyRevealed
	case g.phase != phaseGuess:
		return Result{}, errWrongPhase
	case player != g.active:
		return Result{}, errWrongPlayer
	}

	color := g.keys[1-player][idx]
	g.board[idx].Revealed = true
	g.board[idx].PublicColor = color

	res := Result{
		Tag:          string(color),
		CellIndex:    idx,
		Color:        color,
		ActivePlayer: g.active,
		Phase:        g.phase,
	}

	switch color {
	case colorAssassin:
		g.over = true
		g.won = false
		res.Tag = "assassin"

	case colorAgent:
		if g.AgentsFound().Total >= totalAgents {
			g.over = true
			g.won = true
			res.Tag = "victory"
		} else if g.WordsRemaining(1-player) == 0 {
			// The clue-giver's card is fully solved; the round must
			// close even though the guess was correct.
			res.EndTurn = true
			res.CompletedWords = true
		} else {
			res.ContinueGuessing = true
		}

	case colorBystander:
		res.EndTurn = true
	}

	return res, nil
}

// EndTurn is the voluntary form: the active guesser gives up the rest of
// their guesses. Forced turn ends (bystander hit, clue-giver's card
// solved) go through finishTurn directly.
func (g *Game) EndTurn(player int) (Result, error) {
	switch {
	case g.over:
		return Result{}, errGameOver
	case g.phase != phaseGuess:
		return Result{}, errWrongPhase
	case player != g.active:
		return Result{}, errWrongPlayer
	}

	return g.finishTurn(), nil
}

// finishTurn spends one token and starts the next round. The player who
// just guessed becomes the next clue-giver. If that player has no agent
// words left on their own card, the turn skips to the other side; if both
// cards are exhausted the game is won. That last check should be
// unreachable given the fifteen-agent check in Reveal, but the two counts
// are kept independent on purpose.
func (g *Game) finishTurn() Result {
	g.tokens.Used++
	if g.tokens.Used >= g.tokens.Bank {
		g.over = true
		g.won = false
		return Result{
			Tag:          "timeout",
			ActivePlayer: g.active,
			Phase:        g.phase,
		}
	}

	g.phase = phaseClue
	g.turn++

	if g.WordsRemaining(g.active) == 0 {
		g.active = 1 - g.active
		if g.WordsRemaining(g.active) == 0 {
			g.over = true
			g.won = true
			return Result{
				Tag:          "victory",
				ActivePlayer: g.active,
				Phase:        g.phase,
			}
		}
	}

	return Result{
		Tag:          "continue",
		ActivePlayer: g.active,
		Phase:        g.phase,
	}
}

// AgentsFound tallies revealed positions that are agents on either key
// card. Classification is by key card, not by the public color: a word
// revealed as a bystander from one side still counts as found when the
// other side's card marks it an agent, since a revealed cell can never be
// guessed again.
func (g *Game) AgentsFound() AgentTally {
	var t AgentTally
	for i := range g.board {
		if !g.board[i].Revealed {
			continue
		}
		a0 := g.keys[0][i] == colorAgent
		a1 := g.keys[1][i] == colorAgent
		switch {
		case a0 && a1:
			t.Shared++
		case a0:
			t.Player0++
		case a1:
			t.Player1++
		}
	}
	t.Total = t.Player0 + t.Player1 + t.Shared
	return t
}

// WordsRemaining counts un-revealed agent words on one side's key card.
func (g *Game) WordsRemaining(side int) int {
	n := 0
	for i := range g.board {
		if !g.board[i].Revealed && g.keys[side][i] == colorAgent {
			n++
		}
	}
	return n
}

// PrivateKey returns one side's key card. Sent to that player only.
func (g *Game) PrivateKey(side int) []Color {
	key := make([]Color, boardSize)
	copy(key, g.keys[side][:])
	return key
}

// Snapshot returns the shared view of the session: the public board plus
// derived aggregates, with both key cards stripped.
func (g *Game) Snapshot() Snapshot {
	board := make([]Cell, boardSize)
	copy(board, g.board[:])

	return Snapshot{
		Board:          board,
		Tokens:         g.tokens,
		Turn:           g.turn,
		Phase:          g.phase,
		ActivePlayer:   g.active,
		GameOver:       g.over,
		Victory:        g.won,
		Agents:         g.AgentsFound(),
		WordsRemaining: [2]int{g.WordsRemaining(0), g.WordsRemaining(1)},
	}
}
