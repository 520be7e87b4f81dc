package engine

import (
	"sort"

	"movemate/position"
)

type move struct {
	move  position.Move
	score uint8
}
type moveList struct {
	moves []move
}

/*
	Move ordering offsets!
	- Captures first, so tactical shots are seen before anything else
	- Promotions next; a capture that also promotes beats a plain capture
	- Checking moves break the remaining ties
	- Everything else keeps the generator's order
*/
const (
	captureOffset   uint8 = 4
	promotionOffset uint8 = 2
	checkOffset     uint8 = 1
)

func scoreMovesList(p *position.Position, moves []position.Move) (movesList moveList) {
	movesList.moves = make([]move, len(moves))
	for i, m := range moves {
		var score uint8
		if m.IsCapture() {
			score += captureOffset
		}
		if m.IsPromotion() {
			score += promotionOffset
		}
		if p.GivesCheck(m) {
			score += checkOffset
		}
		movesList.moves[i] = move{move: m, score: score}
	}
	return movesList
}

// OrderMoves returns the moves sorted so that captures come before
// non-captures, then promotions, then checks. Moves that tie keep their
// original relative order. The input slice is not modified.
func OrderMoves(p *position.Position, moves []position.Move) []position.Move {
	list := scoreMovesList(p, moves)
	sort.SliceStable(list.moves, func(i, j int) bool {
		return list.moves[i].score > list.moves[j].score
	})
	ordered := make([]position.Move, len(list.moves))
	for i, m := range list.moves {
		ordered[i] = m.move
	}
	return ordered
}
