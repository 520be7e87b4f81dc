package position

import (
	"github.com/dylhunn/dragontoothmg"
)

// Piece is a colourless piece type as used by dragontoothmg.
type Piece = dragontoothmg.Piece

const (
	NoPiece = dragontoothmg.Nothing
	Pawn    = dragontoothmg.Pawn
	Knight  = dragontoothmg.Knight
	Bishop  = dragontoothmg.Bishop
	Rook    = dragontoothmg.Rook
	Queen   = dragontoothmg.Queen
	King    = dragontoothmg.King
)

// Bitboards holds one bitboard per piece type for one side.
type Bitboards = dragontoothmg.Bitboards

// Square indexes the board little-endian rank-file: a1 = 0, h1 = 7, a8 = 56.
type Square uint8

func (s Square) File() int { return int(s) % 8 }
func (s Square) Rank() int { return int(s) / 8 }

func (s Square) String() string {
	return string([]byte{byte('a' + s.File()), byte('1' + s.Rank())})
}

// Color is the side to move. Its value doubles as the negamax colour sign.
type Color int8

const (
	White Color = 1
	Black Color = -1
)

func (c Color) Other() Color { return -c }

// Sign returns +1 for White and -1 for Black.
func (c Color) Sign() int { return int(c) }

func (c Color) String() string {
	if c == White {
		return "white"
	}
	return "black"
}

// Move is a legal move produced by the rules adapter. Captured is filled in
// at generation time (en passant reports a captured pawn).
type Move struct {
	From      Square
	To        Square
	Promotion Piece
	Captured  Piece

	raw dragontoothmg.Move
}

// NullMove is the zero Move; it is never legal.
var NullMove Move

func (m Move) IsCapture() bool   { return m.Captured != NoPiece }
func (m Move) IsPromotion() bool { return m.Promotion != NoPiece }

// Same compares two moves by square pair and promotion only.
func (m Move) Same(o Move) bool {
	return m.From == o.From && m.To == o.To && m.Promotion == o.Promotion
}

// String returns the move in long algebraic (UCI) notation, e.g. e2e4, e7e8q.
func (m Move) String() string {
	if m == NullMove {
		return "0000"
	}
	s := m.From.String() + m.To.String()
	switch m.Promotion {
	case Knight:
		s += "n"
	case Bishop:
		s += "b"
	case Rook:
		s += "r"
	case Queen:
		s += "q"
	}
	return s
}

func newMove(b *dragontoothmg.Board, raw dragontoothmg.Move) Move {
	m := Move{
		From:      Square(raw.From()),
		To:        Square(raw.To()),
		Promotion: raw.Promote(),
		raw:       raw,
	}
	own, opp := &b.White, &b.Black
	if !b.Wtomove {
		own, opp = opp, own
	}
	if captured, ok := pieceAt(opp, m.To); ok {
		m.Captured = captured
	} else if own.Pawns&(uint64(1)<<m.From) != 0 && m.From.File() != m.To.File() {
		// diagonal pawn move onto an empty square
		m.Captured = Pawn
	}
	return m
}

func pieceAt(bb *dragontoothmg.Bitboards, sq Square) (Piece, bool) {
	mask := uint64(1) << sq
	switch {
	case bb.Pawns&mask != 0:
		return Pawn, true
	case bb.Knights&mask != 0:
		return Knight, true
	case bb.Bishops&mask != 0:
		return Bishop, true
	case bb.Rooks&mask != 0:
		return Rook, true
	case bb.Queens&mask != 0:
		return Queen, true
	case bb.Kings&mask != 0:
		return King, true
	}
	return NoPiece, false
}
