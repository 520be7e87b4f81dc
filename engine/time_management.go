package engine

import (
	"math/bits"
	"time"

	"movemate/position"
)

type TimeHandler struct {
	started          time.Time
	timeForMove      time.Time
	budget           time.Duration
	usingCustomDepth bool
}

// initTimemanagement sets the budget for the next search. A zero budget
// means the search is bounded by depth only and never times out.
func (th *TimeHandler) initTimemanagement(budget time.Duration) {
	th.budget = budget
	th.usingCustomDepth = budget <= 0
}

// StartTime fixes the deadline. An earlier deadline carried by the caller
// wins over the configured budget.
func (th *TimeHandler) StartTime(deadline time.Time, hasDeadline bool) {
	th.started = time.Now()
	if th.usingCustomDepth {
		th.timeForMove = time.Time{}
		if hasDeadline {
			th.timeForMove = deadline
			th.usingCustomDepth = false
		}
		return
	}
	th.timeForMove = th.started.Add(th.budget)
	if hasDeadline && deadline.Before(th.timeForMove) {
		th.timeForMove = deadline
	}
}

func (th *TimeHandler) Elapsed() time.Duration { return time.Since(th.started) }

/*
  - True if we're out of time and we're not using a custom depth search
  - False if we still got time
*/
func (th *TimeHandler) TimeStatus() bool {
	return !th.usingCustomDepth && th.timeForMove.Before(time.Now())
}

// ClockBudget turns a UCI clock (remaining time and increment for the side
// to move) into a think time for one move.
func ClockBudget(p *position.Position, remaining, increment time.Duration) time.Duration {
	movesLeft := estimateMovesRemaining(piecePhase(p))

	const overhead = 30 * time.Millisecond
	const minMove = 5 * time.Millisecond
	const panicThresh = time.Second

	var moveTime time.Duration
	if increment > 0 {
		if remaining < panicThresh {
			// bank a little time
			moveTime = increment * 9 / 10
		} else {
			moveTime = remaining/time.Duration(movesLeft) + increment
		}
	} else {
		moveTime = remaining / 40
	}

	moveTime = Min(moveTime, remaining*7/10)
	moveTime = Min(moveTime, remaining-overhead)
	return Max(moveTime, minMove)
}

// piecePhase is 24 with all minor and major pieces on the board and 0 with
// none of them.
func piecePhase(p *position.Position) int {
	phase := 0
	for _, c := range []position.Color{position.White, position.Black} {
		bb := p.Pieces(c)
		phase += bits.OnesCount64(bb.Knights) + bits.OnesCount64(bb.Bishops)
		phase += 2 * bits.OnesCount64(bb.Rooks)
		phase += 4 * bits.OnesCount64(bb.Queens)
	}
	return Min(phase, 24)
}

func estimateMovesRemaining(phase int) int {
	// Linearly interpolate between 20 (endgame) and 45 (opening/midgame)
	return (phase*25)/24 + 20
}
