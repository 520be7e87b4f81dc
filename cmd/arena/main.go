package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"movemate/arena"
	"movemate/engine"
	"movemate/oracle"
)

type Config struct {
	BotA, BotB  string
	Games       int
	Concurrency int
	MaxPlies    int
	Depth       int
	MoveTime    time.Duration
	Seed        int64
	Stockfish   string
}

var config Config

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	var err = run()
	if err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

func run() error {
	flag.StringVar(&config.BotA, "a", "Rookinator", "first bot")
	flag.StringVar(&config.BotB, "b", "Pawnstar", "second bot")
	flag.IntVar(&config.Games, "games", 10, "number of games")
	flag.IntVar(&config.Concurrency, "concurrency", 4, "number of games played at once")
	flag.IntVar(&config.MaxPlies, "maxplies", arena.DefaultMaxPlies, "adjudicate a draw after this many plies")
	flag.IntVar(&config.Depth, "depth", 0, "override negamax depth")
	flag.DurationVar(&config.MoveTime, "movetime", time.Second, "override negamax think time")
	flag.Int64Var(&config.Seed, "seed", time.Now().UnixNano(), "random seed")
	flag.StringVar(&config.Stockfish, "stockfish", oracle.DefaultPath, "path of the oracle engine")
	flag.Parse()

	log.Printf("%+v", config)

	pool := oracle.NewPool(oracle.Options{Path: config.Stockfish})
	defer pool.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := log.New(os.Stderr, "[arena] ", log.LstdFlags)
	summary, err := arena.Run(ctx, arena.Config{
		BotA:        config.BotA,
		BotB:        config.BotB,
		Games:       config.Games,
		Concurrency: config.Concurrency,
		MaxPlies:    config.MaxPlies,
		MaxDepth:    config.Depth,
		TimeLimit:   config.MoveTime,
		Seed:        config.Seed,
		Deps: engine.PlayerDeps{
			Oracle: func(elo int) (engine.OracleClient, error) {
				c, err := pool.Get(elo)
				if err != nil {
					return nil, err
				}
				return c, nil
			},
			Logger: logger,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	stat := summary.Stat()
	log.Printf("Score: %v - %v - %v  [%.3f] %v", summary.Wins, summary.Losses, summary.Draws,
		stat.WinningFraction, summary.Games())
	log.Printf("Elo difference: %.1f, LOS: %.1f %%", stat.EloDifference, stat.LOS*100)
	return nil
}
