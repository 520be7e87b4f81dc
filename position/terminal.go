package position

import "math/bits"

// Reason describes why a game is over, or ReasonNone.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonCheckmate
	ReasonStalemate
	// ReasonDraw is the fifty-move rule.
	ReasonDraw
	ReasonThreefold
	ReasonInsufficientMaterial
)

func (r Reason) String() string {
	switch r {
	case ReasonCheckmate:
		return "checkmate"
	case ReasonStalemate:
		return "stalemate"
	case ReasonDraw:
		return "fifty-move rule"
	case ReasonThreefold:
		return "threefold repetition"
	case ReasonInsufficientMaterial:
		return "insufficient material"
	}
	return "none"
}

// IsDraw is true for every terminal reason except checkmate.
func (r Reason) IsDraw() bool { return r != ReasonNone && r != ReasonCheckmate }

const fiftyMoveLimit = 100

func (p *Position) IsTerminal() bool { return p.Terminal() != ReasonNone }

// Terminal classifies the position. Checkmate and stalemate take precedence
// over the draw rules.
func (p *Position) Terminal() Reason {
	if len(p.board.GenerateLegalMoves()) == 0 {
		if p.board.OurKingInCheck() {
			return ReasonCheckmate
		}
		return ReasonStalemate
	}
	return p.drawReason()
}

func (p *Position) drawReason() Reason {
	if p.HalfmoveClock() >= fiftyMoveLimit {
		return ReasonDraw
	}
	if p.insufficientMaterial() {
		return ReasonInsufficientMaterial
	}
	if p.repetitions() >= 2 {
		return ReasonThreefold
	}
	return ReasonNone
}

// repetitions counts earlier occurrences of the current position inside the
// reversible window given by the halfmove clock.
func (p *Position) repetitions() int {
	if len(p.states) <= 1 {
		return 0
	}
	curr := p.states[len(p.states)-1]
	start := len(p.states) - 1 - curr.Rule50
	if start < 0 {
		start = 0
	}
	count := 0
	// the side to move must match, so step two plies at a time
	for i := len(p.states) - 3; i >= start; i -= 2 {
		if p.states[i].Hash == curr.Hash {
			count++
		}
	}
	return count
}

const (
	lightSquares uint64 = 0x55AA55AA55AA55AA
	darkSquares  uint64 = ^lightSquares
)

func (p *Position) insufficientMaterial() bool {
	w, b := p.board.White, p.board.Black
	if w.Pawns|b.Pawns|w.Rooks|b.Rooks|w.Queens|b.Queens != 0 {
		return false
	}
	knights := bits.OnesCount64(w.Knights | b.Knights)
	bishops := w.Bishops | b.Bishops
	minors := knights + bits.OnesCount64(bishops)
	if minors <= 1 {
		return true
	}
	if knights > 0 {
		return false
	}
	return bishops&lightSquares == 0 || bishops&darkSquares == 0
}
