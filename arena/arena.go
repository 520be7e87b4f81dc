// Package arena plays matches between two bots of the roster.
package arena

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"movemate/engine"
	"movemate/position"
)

// Result of one game from White's side.
type Result int

const (
	Draw Result = iota
	WhiteWins
	BlackWins
)

func (r Result) String() string {
	switch r {
	case WhiteWins:
		return "1-0"
	case BlackWins:
		return "0-1"
	}
	return "1/2-1/2"
}

const DefaultMaxPlies = 300

type Config struct {
	BotA, BotB  string
	Games       int
	Concurrency int
	// MaxPlies adjudicates a draw when a game runs this long.
	MaxPlies int
	// MaxDepth and TimeLimit override the negamax bots' limits when > 0.
	MaxDepth  int
	TimeLimit time.Duration
	Seed      int64
	Roster    []engine.BotConfig
	Deps      engine.PlayerDeps
	Logger    *log.Logger
}

type GameResult struct {
	Number   int
	AIsWhite bool
	Result   Result
	Reason   string
	Moves    []string
}

// Summary counts results from bot A's side.
type Summary struct {
	Wins, Losses, Draws int
	Results             []GameResult
}

func (s Summary) Games() int { return s.Wins + s.Losses + s.Draws }

type gameInfo struct {
	number   int
	aIsWhite bool
}

// Run plays cfg.Games games with alternating colours on cfg.Concurrency
// workers. Each worker owns its players.
func Run(ctx context.Context, cfg Config) (Summary, error) {
	if cfg.Games <= 0 {
		return Summary{}, errors.New("arena: no games to play")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxPlies <= 0 {
		cfg.MaxPlies = DefaultMaxPlies
	}
	if cfg.Roster == nil {
		cfg.Roster = engine.DefaultRoster()
	}
	botA, err := cfg.bot(cfg.BotA)
	if err != nil {
		return Summary{}, err
	}
	botB, err := cfg.bot(cfg.BotB)
	if err != nil {
		return Summary{}, err
	}
	cfg.logf("%s vs %s: %d games on %d workers", botA.Name, botB.Name, cfg.Games, cfg.Concurrency)

	g, ctx := errgroup.WithContext(ctx)

	var gameInfos = make(chan gameInfo)
	var gameResults = make(chan GameResult)

	g.Go(func() error {
		defer close(gameInfos)
		for i := 1; i <= cfg.Games; i++ {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case gameInfos <- gameInfo{number: i, aIsWhite: i%2 == 1}:
			}
		}
		return nil
	})

	var summary Summary
	g.Go(func() error {
		for res := range gameResults {
			summary.add(res)
			cfg.logf("finished game %d: %s {%s} score %d - %d - %d",
				res.Number, res.Result, res.Reason, summary.Wins, summary.Losses, summary.Draws)
		}
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			return cfg.playGames(ctx, botA, botB, gameInfos, gameResults)
		})
	}

	g.Go(func() error {
		wg.Wait()
		close(gameResults)
		return nil
	})

	if err := g.Wait(); err != nil {
		return summary, err
	}
	sort.Slice(summary.Results, func(i, j int) bool {
		return summary.Results[i].Number < summary.Results[j].Number
	})
	return summary, nil
}

func (cfg *Config) bot(name string) (engine.BotConfig, error) {
	b, err := engine.FindBot(cfg.Roster, name)
	if err != nil {
		return b, err
	}
	if b.Kind == engine.KindNegamax {
		if cfg.MaxDepth > 0 {
			b.MaxDepth = cfg.MaxDepth
		}
		if cfg.TimeLimit > 0 {
			b.TimeLimit = cfg.TimeLimit
		}
	}
	return b, nil
}

func (cfg *Config) playGames(
	ctx context.Context,
	botA, botB engine.BotConfig,
	gameInfos <-chan gameInfo,
	gameResults chan<- GameResult,
) error {
	playerA, err := engine.NewPlayer(botA, cfg.Deps)
	if err != nil {
		return err
	}
	playerB, err := engine.NewPlayer(botB, cfg.Deps)
	if err != nil {
		return err
	}
	for info := range gameInfos {
		white, black := playerA, playerB
		if !info.aIsWhite {
			white, black = playerB, playerA
		}
		res, err := cfg.playGame(ctx, white, black, info)
		if err != nil {
			return fmt.Errorf("game %d: %w", info.number, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case gameResults <- res:
		}
	}
	return nil
}

func (cfg *Config) playGame(ctx context.Context, white, black engine.Player, info gameInfo) (GameResult, error) {
	game := engine.NewGame(nil, cfg.Seed+int64(info.number))
	game.Logger = cfg.Logger
	res := GameResult{Number: info.number, AIsWhite: info.aIsWhite}

	for ply := 0; ; ply++ {
		reason, winner := game.Status()
		if reason != position.ReasonNone {
			res.Reason = reason.String()
			switch winner {
			case position.White:
				res.Result = WhiteWins
			case position.Black:
				res.Result = BlackWins
			}
			break
		}
		if ply >= cfg.MaxPlies {
			res.Reason = "move limit"
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		pl := white
		if game.SideToMove() == position.Black {
			pl = black
		}
		if _, err := game.BotMove(ctx, pl); err != nil {
			return res, err
		}
	}
	res.Moves = game.Moves()
	return res, nil
}

func (s *Summary) add(res GameResult) {
	s.Results = append(s.Results, res)
	switch {
	case res.Result == Draw:
		s.Draws++
	case res.Result == WhiteWins && res.AIsWhite, res.Result == BlackWins && !res.AIsWhite:
		s.Wins++
	default:
		s.Losses++
	}
}

type GameStatistics struct {
	WinningFraction float64
	EloDifference   float64
	LOS             float64
}

// Stat returns the match statistics of bot A. See
// https://www.chessprogramming.org/Match_Statistics
func (s Summary) Stat() GameStatistics {
	var games = float64(s.Games())
	var winningFraction = (float64(s.Wins) + 0.5*float64(s.Draws)) / games
	var eloDifference = -math.Log(1/winningFraction-1) * 400 / math.Ln10
	var los = 0.5 + 0.5*math.Erf(float64(s.Wins-s.Losses)/math.Sqrt(2*float64(s.Wins+s.Losses)))
	return GameStatistics{
		WinningFraction: winningFraction,
		EloDifference:   eloDifference,
		LOS:             los,
	}
}

func (cfg *Config) logf(format string, args ...any) {
	if cfg.Logger != nil {
		cfg.Logger.Printf(format, args...)
	}
}
