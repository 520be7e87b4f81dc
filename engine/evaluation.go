package engine

import (
	"math"
	"math/bits"

	"movemate/position"
)

// Score is a centipawn evaluation from White's point of view.
type Score int

// Infinity is the mate score. Negating it is always safe.
const Infinity Score = 1_000_000

// mateThreshold marks scores that only a forced mate can produce.
const mateThreshold Score = 9000

var pieceValue = [7]int{
	position.Pawn:   100,
	position.Knight: 320,
	position.Bishop: 330,
	position.Rook:   500,
	position.Queen:  900,
	position.King:   20000,
}

// Piece-square tables are laid out as seen from White: row 0 is the eighth
// rank. Black pieces read the rows mirrored.
var pawnTable = [8][8]int{
	{0, 0, 0, 0, 0, 0, 0, 0},
	{50, 50, 50, 50, 50, 50, 50, 50},
	{10, 10, 20, 30, 30, 20, 10, 10},
	{5, 5, 10, 25, 25, 10, 5, 5},
	{0, 0, 0, 20, 20, 0, 0, 0},
	{5, -5, -10, 0, 0, -10, -5, 5},
	{5, 10, 10, -20, -20, 10, 10, 5},
	{0, 0, 0, 0, 0, 0, 0, 0},
}

var knightTable = [8][8]int{
	{-50, -40, -30, -30, -30, -30, -40, -50},
	{-40, -20, 0, 0, 0, 0, -20, -40},
	{-30, 0, 10, 15, 15, 10, 0, -30},
	{-30, 5, 15, 20, 20, 15, 5, -30},
	{-30, 0, 15, 20, 20, 15, 0, -30},
	{-30, 5, 10, 15, 15, 10, 5, -30},
	{-40, -20, 0, 5, 5, 0, -20, -40},
	{-50, -40, -30, -30, -30, -30, -40, -50},
}

var bishopTable = [8][8]int{
	{-20, -10, -10, -10, -10, -10, -10, -20},
	{-10, 0, 0, 0, 0, 0, 0, -10},
	{-10, 0, 5, 10, 10, 5, 0, -10},
	{-10, 5, 5, 10, 10, 5, 5, -10},
	{-10, 0, 10, 10, 10, 10, 0, -10},
	{-10, 10, 10, 10, 10, 10, 10, -10},
	{-10, 5, 0, 0, 0, 0, 5, -10},
	{-20, -10, -10, -10, -10, -10, -10, -20},
}

var rookTable = [8][8]int{
	{0, 0, 0, 0, 0, 0, 0, 0},
	{5, 10, 10, 10, 10, 10, 10, 5},
	{-5, 0, 0, 0, 0, 0, 0, -5},
	{-5, 0, 0, 0, 0, 0, 0, -5},
	{-5, 0, 0, 0, 0, 0, 0, -5},
	{-5, 0, 0, 0, 0, 0, 0, -5},
	{-5, 0, 0, 0, 0, 0, 0, -5},
	{0, 0, 0, 5, 5, 0, 0, 0},
}

var queenTable = [8][8]int{
	{-20, -10, -10, -5, -5, -10, -10, -20},
	{-10, 0, 0, 0, 0, 0, 0, -10},
	{-10, 0, 5, 5, 5, 5, 0, -10},
	{-5, 0, 5, 5, 5, 5, 0, -5},
	{0, 0, 5, 5, 5, 5, 0, -5},
	{-10, 5, 5, 5, 5, 5, 0, -10},
	{-10, 0, 5, 0, 0, 0, 0, -10},
	{-20, -10, -10, -5, -5, -10, -10, -20},
}

var kingTable = [8][8]int{
	{-30, -40, -40, -50, -50, -40, -40, -30},
	{-30, -40, -40, -50, -50, -40, -40, -30},
	{-30, -40, -40, -50, -50, -40, -40, -30},
	{-30, -40, -40, -50, -50, -40, -40, -30},
	{-20, -30, -30, -40, -40, -30, -30, -20},
	{-10, -20, -20, -20, -20, -20, -20, -10},
	{20, 20, 0, 0, 0, 0, 20, 20},
	{20, 30, 10, 0, 0, 10, 30, 20},
}

var pieceTables = [7]*[8][8]int{
	position.Pawn:   &pawnTable,
	position.Knight: &knightTable,
	position.Bishop: &bishopTable,
	position.Rook:   &rookTable,
	position.Queen:  &queenTable,
	position.King:   &kingTable,
}

// Evaluate scores a position from White's point of view. Checkmate is
// +/-Infinity, any draw is 0.
func Evaluate(p *position.Position) Score {
	switch r := p.Terminal(); {
	case r == position.ReasonCheckmate:
		if p.SideToMove() == position.White {
			return -Infinity
		}
		return Infinity
	case r.IsDraw():
		return 0
	}

	w, b := p.Pieces(position.White), p.Pieces(position.Black)

	score := materialAndPlacement(&w, true) - materialAndPlacement(&b, false)
	score += mobility(p)
	score += pawnStructure(&w, &b)
	score += kingSafety(&w, &b)
	activity := pieceActivity(&w) - pieceActivity(&b)

	return Score(score) + Score(math.Round(activity))
}

// row returns the table row of a square: 0 for the eighth rank.
func row(sq int) int { return 7 - sq/8 }

func col(sq int) int { return sq % 8 }

func pieceBoards(bb *position.Bitboards) [7]uint64 {
	return [7]uint64{
		position.Pawn:   bb.Pawns,
		position.Knight: bb.Knights,
		position.Bishop: bb.Bishops,
		position.Rook:   bb.Rooks,
		position.Queen:  bb.Queens,
		position.King:   bb.Kings,
	}
}

func materialAndPlacement(bb *position.Bitboards, white bool) int {
	score := 0
	boards := pieceBoards(bb)
	for piece := position.Pawn; piece <= position.King; piece++ {
		table := pieceTables[piece]
		for x := boards[piece]; x != 0; x &= x - 1 {
			sq := bits.TrailingZeros64(x)
			y := row(sq)
			if !white {
				y = 7 - y
			}
			score += pieceValue[piece] + table[y][col(sq)]
		}
	}
	return score
}

// mobility compares the move count of the side to move with the count the
// other side would have on the same placement. The difference is turned
// around for Black so the term stays White minus Black.
func mobility(p *position.Position) int {
	own := len(p.LegalMoves(position.AllMoves))
	other := p.OpponentMoveCount()
	return 10 * (own - other) * p.SideToMove().Sign()
}

const fileA uint64 = 0x0101010101010101

func fileMask(file int) uint64 { return fileA << file }

func adjacentFiles(file int) uint64 {
	var m uint64
	if file > 0 {
		m |= fileMask(file - 1)
	}
	if file < 7 {
		m |= fileMask(file + 1)
	}
	return m
}

func pawnStructure(w, b *position.Bitboards) int {
	score := 0
	for file := 0; file < 8; file++ {
		if bits.OnesCount64(w.Pawns&fileMask(file)) > 1 {
			score -= 10
		}
		if bits.OnesCount64(b.Pawns&fileMask(file)) > 1 {
			score += 10
		}
	}
	score -= 20 * isolatedPawns(w.Pawns)
	score += 20 * isolatedPawns(b.Pawns)
	return score
}

func isolatedPawns(pawns uint64) int {
	n := 0
	for x := pawns; x != 0; x &= x - 1 {
		file := bits.TrailingZeros64(x) % 8
		if pawns&adjacentFiles(file) == 0 {
			n++
		}
	}
	return n
}

// Second rank from each side's point of view, little-endian board.
const (
	whiteShieldRank uint64 = 0x000000000000ff00
	blackShieldRank uint64 = 0x00ff000000000000
)

// kingSafety is a coarse proxy: a king whose row index has left the home
// area is penalised, and pawns still on their starting rank count as a
// shield.
func kingSafety(w, b *position.Bitboards) int {
	white, black := 0, 0
	if w.Kings != 0 && row(bits.TrailingZeros64(w.Kings)) > 5 {
		white -= 50
	}
	if b.Kings != 0 && row(bits.TrailingZeros64(b.Kings)) < 2 {
		black -= 50
	}
	white += 10 * bits.OnesCount64(w.Pawns&whiteShieldRank)
	black += 10 * bits.OnesCount64(b.Pawns&blackShieldRank)
	return white - black
}

func centerDistance(sq int) float64 {
	dx := float64(col(sq)) - 3.5
	dy := float64(row(sq)) - 3.5
	return math.Sqrt(dx*dx + dy*dy)
}

func pieceActivity(bb *position.Bitboards) float64 {
	activity := 0.0
	for x := bb.Knights | bb.Bishops; x != 0; x &= x - 1 {
		activity -= 5 * centerDistance(bits.TrailingZeros64(x))
	}
	for x := bb.Queens; x != 0; x &= x - 1 {
		activity -= 2 * centerDistance(bits.TrailingZeros64(x))
	}
	for x := bb.Rooks; x != 0; x &= x - 1 {
		if r := row(bits.TrailingZeros64(x)); r == 3 || r == 4 {
			activity += 20
		}
	}
	return activity
}
