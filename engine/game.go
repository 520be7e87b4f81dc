package engine

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"sync"

	"movemate/position"
)

// MoveSource tells where a bot move came from.
type MoveSource string

const (
	SourceHuman  MoveSource = "human"
	SourceBook   MoveSource = "book"
	SourceSearch MoveSource = "search"
	SourceRandom MoveSource = "random"
)

// Played is a move that was made in a game.
type Played struct {
	Move   position.Move
	SAN    string
	Source MoveSource
}

// Game is one game in progress. Reads are safe from any goroutine; moves
// and bot searches are serialised, and a second search or move while a
// search runs fails with ErrSearchInProgress.
type Game struct {
	busy sync.Mutex

	mu      sync.RWMutex
	pos     *position.Position
	moves   []string
	history []string
	rng     *rand.Rand

	Logger *log.Logger
}

// NewGame starts a game from p, which the game takes ownership of. A nil p
// starts from the initial position.
func NewGame(p *position.Position, seed int64) *Game {
	if p == nil {
		p = position.New()
	}
	return &Game{
		pos: p,
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Position returns a copy of the current position.
func (g *Game) Position() *position.Position {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.pos.Clone()
}

func (g *Game) FEN() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.pos.FEN()
}

func (g *Game) SideToMove() position.Color {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.pos.SideToMove()
}

// Moves returns the moves played so far in SAN.
func (g *Game) Moves() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.moves...)
}

// History returns the fingerprints reached after each move.
func (g *Game) History() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.history...)
}

// LastMove returns the last move in SAN, or "" before the first move.
func (g *Game) LastMove() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(g.moves) == 0 {
		return ""
	}
	return g.moves[len(g.moves)-1]
}

// Status reports why the game is over and who won. The winner is 0 unless
// the game ended in checkmate.
func (g *Game) Status() (position.Reason, position.Color) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r := g.pos.Terminal()
	if r == position.ReasonCheckmate {
		return r, g.pos.SideToMove().Other()
	}
	return r, 0
}

// Play makes a move for the side to move.
func (g *Game) Play(m position.Move) (Played, error) {
	if !g.busy.TryLock() {
		return Played{}, ErrSearchInProgress
	}
	defer g.busy.Unlock()
	if r, _ := g.Status(); r != position.ReasonNone {
		return Played{}, ErrGameOver
	}
	return g.play(m, SourceHuman)
}

// PlayUCI makes a move given in long algebraic notation.
func (g *Game) PlayUCI(s string) (Played, error) {
	m, err := g.Position().ParseUCI(s)
	if err != nil {
		return Played{}, err
	}
	return g.Play(m)
}

// PlaySAN makes a move given in standard algebraic notation.
func (g *Game) PlaySAN(s string) (Played, error) {
	m, err := g.Position().ParseSAN(s)
	if err != nil {
		return Played{}, err
	}
	return g.Play(m)
}

func (g *Game) play(m position.Move, src MoveSource) (Played, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	san := g.pos.SAN(m)
	if err := g.pos.Apply(m); err != nil {
		return Played{}, err
	}
	g.moves = append(g.moves, san)
	g.history = append(g.history, g.pos.Fingerprint())
	if applied, ok := g.pos.LastMove(); ok {
		m = applied
	}
	return Played{Move: m, SAN: san, Source: src}, nil
}

func (g *Game) turn() Turn {
	g.mu.Lock()
	defer g.mu.Unlock()
	t := Turn{
		Position: g.pos.Clone(),
		History:  append([]string(nil), g.history...),
		Rng:      rand.New(rand.NewSource(g.rng.Int63())),
	}
	if len(g.moves) > 0 {
		t.LastMove = g.moves[len(g.moves)-1]
	}
	return t
}

// BotMove lets pl choose and play a move. The book is tried first when pl
// has one, then the player's own search. A book or player move that turns
// out illegal, or a search that ends without a move, is replaced by a random
// legal move.
func (g *Game) BotMove(ctx context.Context, pl Player) (Played, error) {
	if !g.busy.TryLock() {
		return Played{}, ErrSearchInProgress
	}
	defer g.busy.Unlock()

	if r, _ := g.Status(); r != position.ReasonNone {
		return Played{}, ErrGameOver
	}

	t := g.turn()
	m, src, err := g.choose(ctx, pl, t)
	if err == nil {
		played, perr := g.play(m, src)
		if perr == nil {
			return played, nil
		}
		err = perr
	}
	if errors.Is(err, ErrGameOver) {
		return Played{}, err
	}

	g.logf("falling back to a random move: %v", err)
	m, err = randomMove(t.Position, t.Rng)
	if err != nil {
		return Played{}, err
	}
	return g.play(m, SourceRandom)
}

func (g *Game) choose(ctx context.Context, pl Player, t Turn) (position.Move, MoveSource, error) {
	if bp, ok := pl.(BookPlayer); ok {
		m, hit, err := bp.OpeningBookMove(t)
		if err != nil {
			return position.NullMove, SourceBook, err
		}
		if hit {
			return m, SourceBook, nil
		}
	}
	m, err := pl.FindBestMove(ctx, t)
	if _, random := pl.(RandomPlayer); random {
		return m, SourceRandom, err
	}
	return m, SourceSearch, err
}

func (g *Game) logf(format string, args ...any) {
	if g.Logger != nil {
		g.Logger.Printf(format, args...)
	}
}
