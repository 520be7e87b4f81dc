package engine

import (
	"context"
	"fmt"
	"io"
	"time"

	"movemate/position"
)

// =============================================================================
// SEARCH PARAMETERS
// =============================================================================
const (
	DefaultMaxDepth  = 8
	DefaultTimeLimit = 10 * time.Second

	// Repeating a position already seen in the game costs this much per
	// earlier occurrence when picking a root move.
	RepetitionPenalty Score = 1000

	// Late move reduction applies from this move index and remaining depth.
	LMRMoveLimit  = 4
	LMRDepthLimit = 3

	// ctx is polled every this many nodes; the clock is read on every node.
	ctxPollInterval = 512
)

// StopReason tells why a search ended.
type StopReason int

const (
	DepthExhausted StopReason = iota
	TimeExpired
	MateFound
	NoLegalMoves
)

func (r StopReason) String() string {
	switch r {
	case TimeExpired:
		return "time expired"
	case MateFound:
		return "mate found"
	case NoLegalMoves:
		return "no legal moves"
	}
	return "depth exhausted"
}

type SearchOptions struct {
	// MaxDepth is the deepest iteration; 0 means DefaultMaxDepth.
	MaxDepth int
	// TimeLimit is the wall-clock budget. Zero searches by depth only and
	// is deterministic.
	TimeLimit time.Duration
	// Progress, if set, is called after every iteration that produced a
	// move.
	Progress func(SearchInfo)
}

// SearchInfo describes one finished iteration.
type SearchInfo struct {
	Depth   int
	Score   Score // White's point of view
	Move    position.Move
	Nodes   uint64
	Elapsed time.Duration
}

// UCI formats the iteration as a UCI info line.
func (i SearchInfo) UCI() string {
	ms := i.Elapsed.Milliseconds()
	if ms == 0 {
		ms = 1
	}
	nps := i.Nodes * 1000 / uint64(ms)
	return fmt.Sprintf("info depth %d score %s nodes %d time %d nps %d pv %s",
		i.Depth, getMateOrCPScore(i.Score), i.Nodes, ms, nps, i.Move)
}

func getMateOrCPScore(score Score) string {
	switch {
	case score >= Infinity:
		return "mate 1"
	case score <= -Infinity:
		return "mate -1"
	}
	return fmt.Sprintf("cp %d", score)
}

type SearchResult struct {
	Move  position.Move
	Found bool
	// Score is from White's point of view.
	Score   Score
	Depth   int
	Nodes   uint64
	Elapsed time.Duration
	Reason  StopReason
}

// Searcher runs iterative deepening negamax searches. A Searcher holds
// per-search state and must not run two searches at once.
type Searcher struct {
	opts        SearchOptions
	timeHandler TimeHandler
	stats       CutStatistics
	ctx         context.Context
	stopped     bool
}

func NewSearcher(opts SearchOptions) *Searcher {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	return &Searcher{opts: opts}
}

func (s *Searcher) Options() SearchOptions { return s.opts }

// Stats returns the counters of the last search.
func (s *Searcher) Stats() CutStatistics { return s.stats }

// DumpStats writes the counters of the last search as UCI info strings.
func (s *Searcher) DumpStats(w io.Writer) { dumpCutStats(w, s.stats) }

// Search looks for the best move for the side to move in p. history holds
// the fingerprints of the positions reached so far in the game and feeds the
// repetition penalty. p is mutated during the search and restored before
// Search returns. A context deadline earlier than the time limit shortens
// the search; cancelling ctx ends it at the next check.
func (s *Searcher) Search(ctx context.Context, p *position.Position, history []string) SearchResult {
	s.prepare(ctx)
	res := s.rootsearch(p, history)
	res.Nodes = s.stats.Total()
	res.Elapsed = s.timeHandler.Elapsed()
	s.ctx = nil
	return res
}

func (s *Searcher) prepare(ctx context.Context) {
	s.ctx = ctx
	s.stopped = false
	s.stats.reset()
	s.timeHandler.initTimemanagement(s.opts.TimeLimit)
	deadline, ok := ctx.Deadline()
	s.timeHandler.StartTime(deadline, ok)
}

func (s *Searcher) rootsearch(p *position.Position, history []string) SearchResult {
	var res SearchResult
	color := p.SideToMove()
	moves := OrderMoves(p, p.LegalMoves(position.AllMoves))
	if len(moves) == 0 {
		res.Reason = NoLegalMoves
		return res
	}

	seen := make(map[string]int, len(history))
	for _, fp := range history {
		seen[fp]++
	}

	// bestScore is from the mover's point of view
	var bestMove position.Move
	var bestScore Score
	found := false

	res.Reason = DepthExhausted
	for depth := 1; depth <= s.opts.MaxDepth; depth++ {
		var iterMove position.Move
		var iterScore Score
		iterFound := false

		for _, m := range moves {
			p.Push(m)
			score := -s.negamax(p, depth-1, -Infinity, Infinity, color.Other())
			fp := p.Fingerprint()
			p.Pop()

			// the subtree ran past the deadline, its score means nothing
			if s.outOfTime() {
				break
			}

			score -= RepetitionPenalty * Score(seen[fp])
			if !iterFound || score > iterScore {
				iterFound = true
				iterMove = m
				iterScore = score
			}
		}

		if iterFound && (!found || iterScore > bestScore) {
			found = true
			bestMove = iterMove
			bestScore = iterScore
			res.Depth = depth
		}

		if iterFound && s.opts.Progress != nil {
			s.opts.Progress(SearchInfo{
				Depth:   depth,
				Score:   Score(color.Sign()) * iterScore,
				Move:    iterMove,
				Nodes:   s.stats.Total(),
				Elapsed: s.timeHandler.Elapsed(),
			})
		}

		if s.outOfTime() {
			res.Reason = TimeExpired
			break
		}
		if found && abs(bestScore) > mateThreshold {
			res.Reason = MateFound
			break
		}
	}

	res.Found = found
	res.Move = bestMove
	res.Score = Score(color.Sign()) * bestScore
	return res
}

// negamax returns the score of p from color's point of view.
func (s *Searcher) negamax(p *position.Position, depth int, alpha, beta Score, color position.Color) Score {
	if s.outOfTime() {
		return 0
	}
	s.stats.Nodes++

	if depth == 0 {
		return s.quiescence(p, alpha, beta, color)
	}
	if p.IsTerminal() {
		return Score(color.Sign()) * Evaluate(p)
	}

	moves := OrderMoves(p, p.LegalMoves(position.AllMoves))
	bestScore := -Infinity

	for i, m := range moves {
		p.Push(m)

		var score Score
		if i >= LMRMoveLimit && depth >= LMRDepthLimit && !p.InCheck() {
			s.stats.LMRReductions++
			score = -s.negamax(p, depth-2, -beta, -alpha, color.Other())
			if score > alpha {
				s.stats.LMRResearches++
				score = -s.negamax(p, depth-1, -beta, -alpha, color.Other())
			}
		} else {
			score = -s.negamax(p, depth-1, -beta, -alpha, color.Other())
		}

		p.Pop()

		bestScore = Max(bestScore, score)
		alpha = Max(alpha, score)
		if alpha >= beta {
			s.stats.BetaCutoffs++
			break
		}
	}

	return bestScore
}

// quiescence extends the search through captures only. The stand-pat score
// is a lower bound and the result is fail-hard within [alpha, beta].
func (s *Searcher) quiescence(p *position.Position, alpha, beta Score, color position.Color) Score {
	if s.outOfTime() {
		return 0
	}
	s.stats.QNodes++

	standPat := Score(color.Sign()) * Evaluate(p)
	if standPat >= beta {
		s.stats.QStandPatCutoffs++
		return beta
	}
	alpha = Max(alpha, standPat)

	for _, m := range OrderMoves(p, p.LegalMoves(position.CapturesOnly)) {
		p.Push(m)
		score := -s.quiescence(p, -beta, -alpha, color.Other())
		p.Pop()

		if score >= beta {
			s.stats.QBetaCutoffs++
			return beta
		}
		alpha = Max(alpha, score)
	}

	return alpha
}

func (s *Searcher) outOfTime() bool {
	if s.stopped {
		return true
	}
	if s.timeHandler.TimeStatus() {
		s.stopped = true
		return true
	}
	if s.ctx != nil && s.stats.Total()%ctxPollInterval == 0 && s.ctx.Err() != nil {
		s.stopped = true
	}
	return s.stopped
}
