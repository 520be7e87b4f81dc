package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"movemate/position"
)

var (
	ErrGameOver         = errors.New("game over")
	ErrNoMove           = errors.New("search produced no move")
	ErrSearchInProgress = errors.New("search already in progress")
	ErrUnknownBot       = errors.New("unknown bot")
)

// Turn is what a player gets to decide a move: its own copy of the position,
// the game's fingerprint history, the opponent's last move in SAN and a
// random source.
type Turn struct {
	Position *position.Position
	History  []string
	LastMove string
	Rng      *rand.Rand
}

// Player picks a move for the side to move.
type Player interface {
	FindBestMove(ctx context.Context, t Turn) (position.Move, error)
}

// BookPlayer is a Player with an opening book that is consulted before
// FindBestMove.
type BookPlayer interface {
	Player
	OpeningBookMove(t Turn) (position.Move, bool, error)
}

// NegamaxPlayer searches with the built-in engine.
type NegamaxPlayer struct {
	Searcher *Searcher
	Book     *Book
}

func (n *NegamaxPlayer) FindBestMove(ctx context.Context, t Turn) (position.Move, error) {
	res := n.Searcher.Search(ctx, t.Position, t.History)
	switch {
	case res.Reason == NoLegalMoves:
		return position.NullMove, ErrGameOver
	case !res.Found:
		return position.NullMove, ErrNoMove
	}
	return res.Move, nil
}

func (n *NegamaxPlayer) OpeningBookMove(t Turn) (position.Move, bool, error) {
	if n.Book == nil {
		return position.NullMove, false, nil
	}
	return n.Book.Move(t.Position, t.LastMove, t.Rng)
}

// RandomPlayer plays a uniformly random legal move.
type RandomPlayer struct{}

func (RandomPlayer) FindBestMove(_ context.Context, t Turn) (position.Move, error) {
	return randomMove(t.Position, t.Rng)
}

func randomMove(p *position.Position, rng *rand.Rand) (position.Move, error) {
	moves := p.LegalMoves(position.AllMoves)
	if len(moves) == 0 {
		return position.NullMove, ErrGameOver
	}
	return moves[rng.Intn(len(moves))], nil
}

// OracleClient asks an external engine for a move in UCI notation.
type OracleClient interface {
	BestMove(ctx context.Context, fen string) (string, error)
}

// OraclePlayer defers to an external engine. When the oracle is unavailable
// the Fallback player moves instead.
type OraclePlayer struct {
	Client   OracleClient
	Fallback Player
	Logger   *log.Logger
}

func (o *OraclePlayer) FindBestMove(ctx context.Context, t Turn) (position.Move, error) {
	if o.Client == nil {
		return o.fallback(ctx, t, errors.New("no oracle client"))
	}
	uci, err := o.Client.BestMove(ctx, t.Position.FEN())
	if err != nil {
		return o.fallback(ctx, t, err)
	}
	m, err := t.Position.ParseUCI(uci)
	if err != nil {
		return position.NullMove, fmt.Errorf("oracle move: %w", err)
	}
	return m, nil
}

func (o *OraclePlayer) fallback(ctx context.Context, t Turn, cause error) (position.Move, error) {
	if o.Logger != nil {
		o.Logger.Printf("oracle miss: %v", cause)
	}
	if o.Fallback == nil {
		return position.NullMove, fmt.Errorf("oracle: %w", cause)
	}
	return o.Fallback.FindBestMove(ctx, t)
}

// BotKind selects the strategy behind a bot.
type BotKind int

const (
	KindNegamax BotKind = iota
	KindRandom
	KindOracle
)

func (k BotKind) String() string {
	switch k {
	case KindRandom:
		return "random"
	case KindOracle:
		return "oracle"
	}
	return "negamax"
}

func (k BotKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

type BotConfig struct {
	Name      string        `json:"name"`
	Label     string        `json:"label"`
	Kind      BotKind       `json:"kind"`
	MaxDepth  int           `json:"maxDepth,omitempty"`
	TimeLimit time.Duration `json:"timeLimit,omitempty"`
	Book      bool          `json:"book,omitempty"`
	Elo       int           `json:"elo,omitempty"`
}

// DefaultRoster lists the bots offered to players, weakest oracle first.
func DefaultRoster() []BotConfig {
	roster := []BotConfig{
		{Name: "Rookinator", Label: "Sicilian Defence", Kind: KindNegamax, MaxDepth: DefaultMaxDepth, TimeLimit: DefaultTimeLimit, Book: true},
		{Name: "Pawnstar", Label: "Random Mover", Kind: KindRandom},
	}
	ladder := []struct {
		name string
		elo  int
	}{
		{"Knight Fury", 500},
		{"Bishop Blitz", 1000},
		{"Queen Quest", 1250},
		{"King Crusher", 1500},
		{"Castling Conqueror", 1750},
		{"Pawnstorm", 2000},
		{"Checkmate Champ", 2250},
		{"Endgame Expert", 2500},
	}
	for _, l := range ladder {
		roster = append(roster, BotConfig{
			Name:  l.name,
			Label: fmt.Sprintf("Stockfish %d", l.elo),
			Kind:  KindOracle,
			Elo:   l.elo,
		})
	}
	return roster
}

// FindBot looks a bot up by name, ignoring case.
func FindBot(roster []BotConfig, name string) (BotConfig, error) {
	for _, b := range roster {
		if strings.EqualFold(b.Name, name) {
			return b, nil
		}
	}
	return BotConfig{}, fmt.Errorf("%w: %q", ErrUnknownBot, name)
}

// PlayerDeps carries what NewPlayer needs beyond the bot config.
type PlayerDeps struct {
	// Oracle returns a client for the given strength. It may be nil, in
	// which case oracle bots always use their fallback.
	Oracle   func(elo int) (OracleClient, error)
	Progress func(SearchInfo)
	Logger   *log.Logger
}

// Oracle bots fall back to a short negamax search.
const (
	oracleFallbackDepth = 3
	oracleFallbackTime  = 3 * time.Second
)

// NewPlayer builds the player for a bot. Every call returns a fresh player
// so concurrent games never share a Searcher.
func NewPlayer(cfg BotConfig, deps PlayerDeps) (Player, error) {
	switch cfg.Kind {
	case KindNegamax:
		p := &NegamaxPlayer{
			Searcher: NewSearcher(SearchOptions{
				MaxDepth:  cfg.MaxDepth,
				TimeLimit: cfg.TimeLimit,
				Progress:  deps.Progress,
			}),
		}
		if cfg.Book {
			p.Book = SicilianBook()
		}
		return p, nil
	case KindRandom:
		return RandomPlayer{}, nil
	case KindOracle:
		o := &OraclePlayer{
			Fallback: &NegamaxPlayer{Searcher: NewSearcher(SearchOptions{
				MaxDepth:  oracleFallbackDepth,
				TimeLimit: oracleFallbackTime,
				Progress:  deps.Progress,
			})},
			Logger: deps.Logger,
		}
		if deps.Oracle != nil {
			client, err := deps.Oracle(cfg.Elo)
			if err != nil {
				if deps.Logger != nil {
					deps.Logger.Printf("%s: oracle unavailable, using fallback: %v", cfg.Name, err)
				}
			} else {
				o.Client = client
			}
		}
		return o, nil
	}
	return nil, fmt.Errorf("%w: kind %d", ErrUnknownBot, cfg.Kind)
}
