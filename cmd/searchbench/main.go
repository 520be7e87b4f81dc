package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pkg/profile"

	"movemate/engine"
	"movemate/position"
)

func main() {
	depthFlag := flag.Int("depth", 5, "search depth in plies")
	repeatFlag := flag.Int("repeat", 1, "number of searches to run")
	fenFlag := flag.String("fen", "", "FEN to search (empty = startpos)")
	timeFlag := flag.Duration("time", 0, "time limit per search (0 = depth only)")
	stats := flag.Bool("stats", false, "print search counters after each run")
	prof := flag.String("profile", "", "cpu, mem or block")
	profDir := flag.String("profiledir", ".", "directory for profile output")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if *depthFlag <= 0 {
		log.Fatalf("depth must be positive, got %d", *depthFlag)
	}

	switch *prof {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(*profDir)).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath(*profDir)).Stop()
	case "block":
		defer profile.Start(profile.BlockProfile, profile.ProfilePath(*profDir)).Stop()
	default:
		log.Fatalf("unknown profile %q", *prof)
	}

	fen := position.StartFEN
	if *fenFlag != "" {
		fen = *fenFlag
	}

	fmt.Printf("searchbench: fen=%q depth=%d repeat=%d\n", fen, *depthFlag, *repeatFlag)

	searcher := engine.NewSearcher(engine.SearchOptions{
		MaxDepth:  *depthFlag,
		TimeLimit: *timeFlag,
		Progress: func(info engine.SearchInfo) {
			fmt.Println(info.UCI())
		},
	})

	startAll := time.Now()
	for i := 0; i < *repeatFlag; i++ {
		// Fresh position for each run
		p, err := position.FromFEN(fen)
		if err != nil {
			log.Fatalf("bad fen: %v", err)
		}

		res := searcher.Search(context.Background(), p, nil)
		fmt.Printf("iteration %d: bestmove %v score %d depth %d nodes %d time=%v (%s)\n",
			i+1, res.Move, res.Score, res.Depth, res.Nodes, res.Elapsed, res.Reason)
		if *stats {
			searcher.DumpStats(os.Stdout)
		}
	}
	fmt.Printf("total time: %v\n", time.Since(startAll))
}
