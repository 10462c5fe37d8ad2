package main

import (
	"fmt"
	"math/rand"
	"testing"
)

func testWords(n int) []string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("WORD%03d", i)
	}
	return words
}

// fixtureGame builds a game with a fixed, rule-compliant layout:
// positions 0-2 shared agents, 3-8 player 0 agents, 9-14 player 1 agents,
// 15 shared assassin, 16-17 player 0 assassins, 18-19 player 1 assassins,
// 20-24 bystanders on both cards.
func fixtureGame(bank int) *Game {
	g := &Game{
		tokens: TokenBank{Bank: bank},
		phase:  phaseClue,
	}

	for i := 0; i < boardSize; i++ {
		g.board[i].Word = fmt.Sprintf("WORD%03d", i)
		g.keys[0][i] = colorBystander
		g.keys[1][i] = colorBystander
	}

	for i := 0; i < 3; i++ {
		g.keys[0][i] = colorAgent
		g.keys[1][i] = colorAgent
	}
	for i := 3; i < 9; i++ {
		g.keys[0][i] = colorAgent
	}
	for i := 9; i < 15; i++ {
		g.keys[1][i] = colorAgent
	}
	g.keys[0][15] = colorAssassin
	g.keys[1][15] = colorAssassin
	for i := 16; i < 18; i++ {
		g.keys[0][i] = colorAssassin
	}
	for i := 18; i < 20; i++ {
		g.keys[1][i] = colorAssassin
	}

	return g
}

func TestRoleAssignmentInvariants(t *testing.T) {
	words := testWords(100)

	for seed := int64(0); seed < 50; seed++ {
		g, err := newGame(words, 9, rand.New(rand.NewSource(seed)))
		if err != nil {
			t.Fatalf("seed %d: newGame: %v", seed, err)
		}

		var shared, only0, only1, unionAgents int
		var sharedKill, kill0, kill1, unionKill int
		var doubleBystanders int

		for i := 0; i < boardSize; i++ {
			a0 := g.keys[0][i] == colorAgent
			a1 := g.keys[1][i] == colorAgent
			k0 := g.keys[0][i] == colorAssassin
			k1 := g.keys[1][i] == colorAssassin

			switch {
			case a0 && a1:
				shared++
			case a0:
				only0++
			case a1:
				only1++
			}
			if a0 || a1 {
				unionAgents++
			}

			switch {
			case k0 && k1:
				sharedKill++
			case k0:
				kill0++
			case k1:
				kill1++
			}
			if k0 || k1 {
				unionKill++
			}

			if g.keys[0][i] == colorBystander && g.keys[1][i] == colorBystander {
				doubleBystanders++
			}
		}

		if shared != 3 || only0 != 6 || only1 != 6 || unionAgents != 15 {
			t.Errorf("seed %d: agents shared=%d only0=%d only1=%d union=%d, want 3/6/6/15",
				seed, shared, only0, only1, unionAgents)
		}
		if sharedKill != 1 || kill0 != 2 || kill1 != 2 || unionKill != 5 {
			t.Errorf("seed %d: assassins shared=%d only0=%d only1=%d union=%d, want 1/2/2/5",
				seed, sharedKill, kill0, kill1, unionKill)
		}
		if doubleBystanders != 5 {
			t.Errorf("seed %d: double bystanders = %d, want 5", seed, doubleBystanders)
		}

		seen := make(map[string]bool)
		for i := 0; i < boardSize; i++ {
			word := g.board[i].Word
			if word == "" || seen[word] {
				t.Fatalf("seed %d: board word %d is %q (empty or duplicate)", seed, i, word)
			}
			seen[word] = true
		}
	}
}

func TestNewGameNotEnoughWords(t *testing.T) {
	_, err := newGame(testWords(24), 9, rand.New(rand.NewSource(1)))
	if err != errNotEnoughWords {
		t.Fatalf("got %v, want %v", err, errNotEnoughWords)
	}
}

func TestTurnLegality(t *testing.T) {
	g := fixtureGame(9)

	// Guessing during the clue phase changes nothing.
	if _, err := g.Reveal(0, 0); err != errWrongPhase {
		t.Fatalf("reveal in clue phase: got %v, want %v", err, errWrongPhase)
	}

	// The non-active player may not give the clue.
	if _, err := g.GiveClue(1); err != errWrongPlayer {
		t.Fatalf("clue from player 1: got %v, want %v", err, errWrongPlayer)
	}

	res, err := g.GiveClue(0)
	if err != nil {
		t.Fatalf("clue from player 0: %v", err)
	}
	if res.ActivePlayer != 1 || res.Phase != phaseGuess {
		t.Fatalf("after clue: active=%d phase=%s, want 1/guess", res.ActivePlayer, res.Phase)
	}

	// Only the active player may guess.
	if _, err := g.Reveal(0, 0); err != errWrongPlayer {
		t.Fatalf("guess from player 0: got %v, want %v", err, errWrongPlayer)
	}

	// A second clue during the guess phase is rejected.
	if _, err := g.GiveClue(1); err != errWrongPhase {
		t.Fatalf("clue in guess phase: got %v, want %v", err, errWrongPhase)
	}

	// None of the rejected actions may have mutated state.
	snap := g.Snapshot()
	if snap.Tokens.Used != 0 || snap.Turn != 0 || snap.ActivePlayer != 1 {
		t.Fatalf("rejections mutated state: %+v", snap)
	}
	for i, cell := range snap.Board {
		if cell.Revealed {
			t.Fatalf("cell %d revealed by a rejected action", i)
		}
	}
}

func TestRevealOutOfRange(t *testing.T) {
	g := fixtureGame(9)
	g.GiveClue(0)

	for _, idx := range []int{-1, boardSize} {
		if _, err := g.Reveal(idx, 1); err != errBadCell {
			t.Fatalf("reveal(%d): got %v, want %v", idx, err, errBadCell)
		}
	}
}

func TestRevealIdempotence(t *testing.T) {
	g := fixtureGame(9)
	g.GiveClue(0)

	res, err := g.Reveal(3, 1)
	if err != nil {
		t.Fatalf("first reveal: %v", err)
	}
	if res.Color != colorAgent {
		t.Fatalf("first reveal color = %s, want agent", res.Color)
	}

	if _, err := g.Reveal(3, 1); err != errAlreadyRevealed {
		t.Fatalf("second reveal: got %v, want %v", err, errAlreadyRevealed)
	}
	if g.board[3].PublicColor != colorAgent {
		t.Fatalf("cell color changed to %s", g.board[3].PublicColor)
	}
}

// The revealed color always comes from the clue-giver's key card, never
// the guesser's own.
func TestRevealTruthSource(t *testing.T) {
	// Cell 3 is an agent for player 0 only.
	// Guessed by player 1 (player 0 clued): reveals as agent.
	g := fixtureGame(9)
	g.GiveClue(0)
	res, err := g.Reveal(3, 1)
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if res.Color != colorAgent || g.board[3].PublicColor != colorAgent {
		t.Fatalf("guessing against player 0's key: got %s, want agent", res.Color)
	}

	// Same cell guessed by player 0 (player 1 clued): reveals as bystander.
	g = fixtureGame(9)
	g.active = 1
	g.GiveClue(1)
	res, err = g.Reveal(3, 0)
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if res.Color != colorBystander || g.board[3].PublicColor != colorBystander {
		t.Fatalf("guessing against player 1's key: got %s, want bystander", res.Color)
	}
}

func TestScenarioClueRoundTrip(t *testing.T) {
	g := fixtureGame(9)

	res, err := g.GiveClue(0)
	if err != nil {
		t.Fatalf("giveClue: %v", err)
	}
	if res.ActivePlayer != 1 || res.Phase != phaseGuess {
		t.Fatalf("after clue: active=%d phase=%s, want 1/guess", res.ActivePlayer, res.Phase)
	}

	// Cell 4 is an agent on player 0's card, and total found stays below 15.
	res, err = g.Reveal(4, 1)
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if res.Tag != "agent" || !res.ContinueGuessing || res.EndTurn {
		t.Fatalf("agent reveal: %+v, want agent/continueGuessing", res)
	}
	if g.active != 1 || g.phase != phaseGuess {
		t.Fatalf("agent reveal moved the turn: active=%d phase=%s", g.active, g.phase)
	}
}

func TestScenarioBystanderEndsTurn(t *testing.T) {
	g := fixtureGame(9)
	g.GiveClue(0)

	// Cell 20 is a bystander on player 0's card.
	res, err := g.Reveal(20, 1)
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if res.Tag != "bystander" || !res.EndTurn {
		t.Fatalf("bystander reveal: %+v, want bystander/endTurn", res)
	}
	if g.tokens.Used != 0 {
		t.Fatalf("reveal consumed a token")
	}

	fin := g.finishTurn()
	if fin.Tag != "continue" {
		t.Fatalf("finishTurn tag = %s, want continue", fin.Tag)
	}
	if g.tokens.Used != 1 || g.phase != phaseClue || g.active != 1 || g.turn != 1 {
		t.Fatalf("after turn end: used=%d phase=%s active=%d turn=%d, want 1/clue/1/1",
			g.tokens.Used, g.phase, g.active, g.turn)
	}
}

func TestVoluntaryEndTurnLegality(t *testing.T) {
	g := fixtureGame(9)

	if _, err := g.EndTurn(0); err != errWrongPhase {
		t.Fatalf("end turn in clue phase: got %v, want %v", err, errWrongPhase)
	}

	g.GiveClue(0)

	if _, err := g.EndTurn(0); err != errWrongPlayer {
		t.Fatalf("end turn from inactive player: got %v, want %v", err, errWrongPlayer)
	}

	res, err := g.EndTurn(1)
	if err != nil {
		t.Fatalf("end turn: %v", err)
	}
	if res.Tag != "continue" || res.ActivePlayer != 1 || res.Phase != phaseClue {
		t.Fatalf("end turn result: %+v, want continue/1/clue", res)
	}
}

func TestTokenMonotonicity(t *testing.T) {
	g := fixtureGame(9)

	for i := 1; i <= 8; i++ {
		if _, err := g.GiveClue(g.active); err != nil {
			t.Fatalf("turn %d: giveClue: %v", i, err)
		}
		res, err := g.EndTurn(g.active)
		if err != nil {
			t.Fatalf("turn %d: endTurn: %v", i, err)
		}
		if g.tokens.Used != i {
			t.Fatalf("turn %d: used = %d", i, g.tokens.Used)
		}
		if res.Tag != "continue" {
			t.Fatalf("turn %d: tag = %s", i, res.Tag)
		}
	}

	g.GiveClue(g.active)
	res, err := g.EndTurn(g.active)
	if err != nil {
		t.Fatalf("final endTurn: %v", err)
	}
	if res.Tag != "timeout" {
		t.Fatalf("final tag = %s, want timeout", res.Tag)
	}
	if !g.over || g.won {
		t.Fatalf("after timeout: over=%v won=%v, want true/false", g.over, g.won)
	}
	if g.tokens.Used != g.tokens.Bank {
		t.Fatalf("used = %d, want %d", g.tokens.Used, g.tokens.Bank)
	}
}

func TestScenarioTimeout(t *testing.T) {
	g := fixtureGame(9)
	g.tokens.Used = 8

	g.GiveClue(0)
	res, err := g.EndTurn(1)
	if err != nil {
		t.Fatalf("endTurn: %v", err)
	}
	if res.Tag != "timeout" || !g.over || g.won {
		t.Fatalf("got tag=%s over=%v won=%v, want timeout/true/false", res.Tag, g.over, g.won)
	}
}

func TestScenarioAssassin(t *testing.T) {
	for _, idx := range []int{15, 16, 17} { // assassins on player 0's card
		g := fixtureGame(9)
		g.GiveClue(0)

		res, err := g.Reveal(idx, 1)
		if err != nil {
			t.Fatalf("reveal(%d): %v", idx, err)
		}
		if res.Tag != "assassin" || !g.over || g.won {
			t.Fatalf("reveal(%d): tag=%s over=%v won=%v, want assassin/true/false",
				idx, res.Tag, g.over, g.won)
		}
	}

	// Cell 18 is an assassin only on player 1's card; against player 0's
	// key it is a plain bystander.
	g := fixtureGame(9)
	g.GiveClue(0)
	res, err := g.Reveal(18, 1)
	if err != nil {
		t.Fatalf("reveal(18): %v", err)
	}
	if res.Tag != "bystander" || g.over {
		t.Fatalf("reveal(18): tag=%s over=%v, want bystander and game on", res.Tag, g.over)
	}
}

func TestNoOperationsAfterGameOver(t *testing.T) {
	g := fixtureGame(9)
	g.GiveClue(0)
	g.Reveal(15, 1) // shared assassin

	if _, err := g.GiveClue(0); err != errGameOver {
		t.Errorf("giveClue after game over: %v", err)
	}
	if _, err := g.Reveal(0, 1); err != errGameOver {
		t.Errorf("reveal after game over: %v", err)
	}
	if _, err := g.EndTurn(1); err != errGameOver {
		t.Errorf("endTurn after game over: %v", err)
	}

	// Snapshot stays readable.
	snap := g.Snapshot()
	if !snap.GameOver || snap.Victory {
		t.Errorf("snapshot after loss: %+v", snap)
	}
}

// Revealing all 15 union-agent positions wins, with the 15th reveal itself
// carrying the victory tag when it lands as an agent color.
func TestVictoryOnFifteenthAgent(t *testing.T) {
	g := fixtureGame(9)

	// Player 0 clues; player 1 clears player 0's nine agent words.
	g.GiveClue(0)
	for i := 0; i < 9; i++ {
		res, err := g.Reveal(i, 1)
		if err != nil {
			t.Fatalf("reveal(%d): %v", i, err)
		}
		if i < 8 {
			if !res.ContinueGuessing {
				t.Fatalf("reveal(%d): %+v, want continueGuessing", i, res)
			}
			continue
		}
		// Ninth agent: player 0's card is solved, so the round must close
		// even though the guess was correct.
		if res.Tag != "agent" || !res.EndTurn || !res.CompletedWords {
			t.Fatalf("reveal(%d): %+v, want agent/endTurn/completedWords", i, res)
		}
	}

	fin := g.finishTurn()
	if fin.Tag != "continue" {
		t.Fatalf("finishTurn: %+v", fin)
	}
	// Player 1 just guessed, so player 1 gives the next clue.
	if fin.ActivePlayer != 1 {
		t.Fatalf("next clue-giver = %d, want 1", fin.ActivePlayer)
	}

	// Player 1 clues; player 0 clears player 1's six remaining agents.
	g.GiveClue(1)
	for i := 9; i < 15; i++ {
		res, err := g.Reveal(i, 0)
		if err != nil {
			t.Fatalf("reveal(%d): %v", i, err)
		}
		if i < 14 {
			if !res.ContinueGuessing {
				t.Fatalf("reveal(%d): %+v, want continueGuessing", i, res)
			}
			continue
		}
		if res.Tag != "victory" {
			t.Fatalf("fifteenth agent: tag = %s, want victory", res.Tag)
		}
	}

	if !g.over || !g.won {
		t.Fatalf("after fifteenth agent: over=%v won=%v", g.over, g.won)
	}
}

// A union agent burned as a bystander (agent only on the guesser's own
// card) still counts as found; the fallback check in finishTurn declares
// the win that Reveal's agent-color path can no longer see.
func TestVictoryFallbackAfterBurnedAgent(t *testing.T) {
	g := fixtureGame(9)

	// Player 0 clues; player 1 burns cell 9 (an agent only on player 1's
	// own card), ending the round as a bystander.
	g.GiveClue(0)
	res, err := g.Reveal(9, 1)
	if err != nil {
		t.Fatalf("reveal(9): %v", err)
	}
	if res.Tag != "bystander" || !res.EndTurn {
		t.Fatalf("burned agent: %+v, want bystander/endTurn", res)
	}
	if got := g.AgentsFound().Total; got != 1 {
		t.Fatalf("burned agent not counted: total = %d, want 1", got)
	}
	if fin := g.finishTurn(); fin.Tag != "continue" {
		t.Fatalf("finishTurn: %+v", fin)
	}

	// Clear the remaining fourteen union agents. Track whose card each
	// reveal is checked against and end rounds as the outcomes demand.
	remaining := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 10, 11, 12, 13, 14}
	for len(remaining) > 0 {
		if g.over {
			break
		}
		if _, err := g.GiveClue(g.active); err != nil {
			t.Fatalf("giveClue: %v", err)
		}
		guesser := g.active
		for len(remaining) > 0 && !g.over && g.phase == phaseGuess {
			idx := remaining[0]
			res, err := g.Reveal(idx, guesser)
			if err != nil {
				t.Fatalf("reveal(%d): %v", idx, err)
			}
			remaining = remaining[1:]
			if res.Tag == "assassin" || res.Tag == "timeout" {
				t.Fatalf("reveal(%d): unexpected terminal %s", idx, res.Tag)
			}
			if res.EndTurn && !g.over {
				g.finishTurn()
				break
			}
		}
	}

	if !g.over || !g.won {
		t.Fatalf("all fifteen union agents revealed, but over=%v won=%v", g.over, g.won)
	}
}

func TestAgentsFoundClassification(t *testing.T) {
	g := fixtureGame(9)

	// Reveal one shared agent, one player-0 agent, one player-1 agent.
	g.board[0].Revealed = true  // shared
	g.board[3].Revealed = true  // agent on card 0 only
	g.board[9].Revealed = true  // agent on card 1 only
	g.board[20].Revealed = true // bystander on both

	tally := g.AgentsFound()
	want := AgentTally{Player0: 1, Player1: 1, Shared: 1, Total: 3}
	if tally != want {
		t.Fatalf("tally = %+v, want %+v", tally, want)
	}
}

func TestWordsRemaining(t *testing.T) {
	g := fixtureGame(9)

	if got := g.WordsRemaining(0); got != 9 {
		t.Fatalf("side 0 remaining = %d, want 9", got)
	}
	if got := g.WordsRemaining(1); got != 9 {
		t.Fatalf("side 1 remaining = %d, want 9", got)
	}

	g.board[0].Revealed = true // shared agent counts against both
	g.board[3].Revealed = true // agent on card 0 only

	if got := g.WordsRemaining(0); got != 7 {
		t.Fatalf("side 0 remaining = %d, want 7", got)
	}
	if got := g.WordsRemaining(1); got != 8 {
		t.Fatalf("side 1 remaining = %d, want 8", got)
	}
}

func TestSnapshotHidesUnrevealedColors(t *testing.T) {
	g := fixtureGame(9)
	g.GiveClue(0)
	g.Reveal(3, 1)

	snap := g.Snapshot()
	for i, cell := range snap.Board {
		if i == 3 {
			if !cell.Revealed || cell.PublicColor != colorAgent {
				t.Fatalf("cell 3 = %+v, want revealed agent", cell)
			}
			continue
		}
		if cell.Revealed || cell.PublicColor != "" {
			t.Fatalf("cell %d leaks %q before reveal", i, cell.PublicColor)
		}
	}
}

func TestPrivateKeyProjection(t *testing.T) {
	g := fixtureGame(9)

	for side := 0; side < 2; side++ {
		key := g.PrivateKey(side)
		if len(key) != boardSize {
			t.Fatalf("side %d key length = %d", side, len(key))
		}
		var agents, assassins int
		for _, c := range key {
			switch c {
			case colorAgent:
				agents++
			case colorAssassin:
				assassins++
			}
		}
		if agents != 9 || assassins != 3 {
			t.Fatalf("side %d sees %d agents and %d assassins, want 9/3", side, agents, assassins)
		}
	}
}
