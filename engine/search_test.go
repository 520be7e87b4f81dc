package engine

import (
	"context"
	"testing"
	"time"

	"movemate/position"
)

func depthSearch(t *testing.T, fen string, depth int) SearchResult {
	t.Helper()
	p := mustFEN(t, fen)
	s := NewSearcher(SearchOptions{MaxDepth: depth})
	before := p.FEN()
	res := s.Search(context.Background(), p, nil)
	if p.FEN() != before {
		t.Fatalf("search did not restore the position: %q != %q", p.FEN(), before)
	}
	return res
}

func TestSearchDeterministicWithoutTimeLimit(t *testing.T) {
	a := depthSearch(t, position.StartFEN, 2)
	b := depthSearch(t, position.StartFEN, 2)
	if !a.Found || !b.Found {
		t.Fatalf("no move found")
	}
	if a.Move != b.Move || a.Score != b.Score {
		t.Fatalf("runs differ: %s %d vs %s %d", a.Move, a.Score, b.Move, b.Score)
	}
	if a.Reason != DepthExhausted || a.Depth == 0 {
		t.Fatalf("unexpected result %+v", a)
	}
}

// minimax is a plain full-width reference search using the same leaves.
func minimax(s *Searcher, p *position.Position, depth int, color position.Color) Score {
	if depth == 0 {
		return s.quiescence(p, -Infinity, Infinity, color)
	}
	if p.IsTerminal() {
		return Score(color.Sign()) * Evaluate(p)
	}
	best := -Infinity
	for _, m := range p.LegalMoves(position.AllMoves) {
		p.Push(m)
		best = Max(best, -minimax(s, p, depth-1, color.Other()))
		p.Pop()
	}
	return best
}

func TestAlphaBetaMatchesMinimax(t *testing.T) {
	fens := []string{
		"4k3/8/8/3q4/4P3/2N5/8/4K3 w - - 0 1",
		"6k1/5ppp/8/8/8/8/5PPP/R5K1 b - - 0 1",
	}
	for _, fen := range fens {
		for depth := 1; depth <= 2; depth++ {
			res := depthSearch(t, fen, depth)

			p := mustFEN(t, fen)
			ref := NewSearcher(SearchOptions{MaxDepth: depth})
			ref.prepare(context.Background())
			color := p.SideToMove()
			best := -Infinity
			for _, m := range p.LegalMoves(position.AllMoves) {
				p.Push(m)
				best = Max(best, -minimax(ref, p, depth-1, color.Other()))
				p.Pop()
			}

			if got := Score(color.Sign()) * res.Score; got < best {
				t.Fatalf("%s depth %d: alpha-beta %d worse than minimax %d", fen, depth, got, best)
			}
		}
	}
}

func TestQuiescenceStandPatLowerBound(t *testing.T) {
	for _, fen := range evalFENs {
		p := mustFEN(t, fen)
		s := NewSearcher(SearchOptions{})
		s.prepare(context.Background())
		color := p.SideToMove()
		standPat := Score(color.Sign()) * Evaluate(p)
		if got := s.quiescence(p, -Infinity, Infinity, color); got < standPat {
			t.Fatalf("%s: quiescence %d below stand-pat %d", fen, got, standPat)
		}
	}
}

func TestSearchSingleLegalMove(t *testing.T) {
	for depth := 1; depth <= 3; depth++ {
		res := depthSearch(t, "k7/8/8/8/8/8/8/1R5K b - - 0 1", depth)
		if !res.Found || res.Move.String() != "a8a7" {
			t.Fatalf("depth %d: got %s found=%v", depth, res.Move, res.Found)
		}
	}
}

func TestSearchCheckmateHasNoMove(t *testing.T) {
	res := depthSearch(t, "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3", 3)
	if res.Found || res.Reason != NoLegalMoves {
		t.Fatalf("expected no move, got %+v", res)
	}
}

func TestSearchFindsHangingQueen(t *testing.T) {
	for _, depth := range []int{1, 3} {
		res := depthSearch(t, "4k3/8/8/3q4/4P3/8/8/4K3 w - - 0 1", depth)
		if res.Move.String() != "e4d5" {
			t.Fatalf("depth %d: got %s want e4d5", depth, res.Move)
		}
		if res.Score <= 0 {
			t.Fatalf("depth %d: score %d after winning a queen", depth, res.Score)
		}
	}
}

func TestSearchMateInOne(t *testing.T) {
	res := depthSearch(t, "6k1/5ppp/8/8/8/8/8/R5K1 w - - 0 1", 4)
	if res.Move.String() != "a1a8" {
		t.Fatalf("got %s want a1a8", res.Move)
	}
	if res.Reason != MateFound || res.Depth != 1 {
		t.Fatalf("expected mate at depth 1, got %v at depth %d", res.Reason, res.Depth)
	}
	if res.Score != Infinity {
		t.Fatalf("score %d want %d", res.Score, Infinity)
	}
}

func TestSearchRepetitionPenalty(t *testing.T) {
	first := depthSearch(t, position.StartFEN, 1)

	p := position.New()
	p.Push(first.Move)
	fp := p.Fingerprint()
	p.Pop()

	s := NewSearcher(SearchOptions{MaxDepth: 1})
	res := s.Search(context.Background(), p, []string{fp, fp, fp})
	if res.Move == first.Move {
		t.Fatalf("repeated position %s chosen again", first.Move)
	}
}

func TestSearchProgress(t *testing.T) {
	var depths []int
	s := NewSearcher(SearchOptions{MaxDepth: 2, Progress: func(i SearchInfo) {
		depths = append(depths, i.Depth)
	}})
	s.Search(context.Background(), position.New(), nil)
	if len(depths) != 2 || depths[0] != 1 || depths[1] != 2 {
		t.Fatalf("progress depths: %v", depths)
	}
	if s.Stats().Nodes == 0 || s.Stats().QNodes == 0 {
		t.Fatalf("node counters not updated: %+v", s.Stats())
	}
}

func TestSearchTimeLimit(t *testing.T) {
	s := NewSearcher(SearchOptions{MaxDepth: 8, TimeLimit: 50 * time.Millisecond})
	start := time.Now()
	res := s.Search(context.Background(), position.New(), nil)
	if res.Reason != TimeExpired {
		t.Fatalf("reason: got %v want time expired", res.Reason)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("search overran its budget: %v", elapsed)
	}
}

func TestSearchContextDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	s := NewSearcher(SearchOptions{MaxDepth: 8, TimeLimit: time.Minute})
	start := time.Now()
	res := s.Search(ctx, position.New(), nil)
	if res.Reason != TimeExpired {
		t.Fatalf("reason: got %v want time expired", res.Reason)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("deadline ignored: %v", elapsed)
	}
}
