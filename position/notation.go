package position

import (
	"fmt"
	"strings"

	"github.com/notnil/chess"
)

// ParseSquare parses a square in algebraic form, e.g. "e4".
func ParseSquare(s string) (Square, error) {
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return 0, fmt.Errorf("bad square %q", s)
	}
	return Square(int(s[1]-'1')*8 + int(s[0]-'a')), nil
}

// ParseUCI resolves a long algebraic move string against the legal moves of
// the position.
func (p *Position) ParseUCI(s string) (Move, error) {
	s = strings.TrimSpace(s)
	if len(s) < 4 || len(s) > 5 {
		return NullMove, &IllegalMoveError{Move: s, FEN: p.FEN()}
	}
	from, err := ParseSquare(s[0:2])
	if err != nil {
		return NullMove, &IllegalMoveError{Move: s, FEN: p.FEN()}
	}
	to, err := ParseSquare(s[2:4])
	if err != nil {
		return NullMove, &IllegalMoveError{Move: s, FEN: p.FEN()}
	}
	want := Move{From: from, To: to}
	if len(s) == 5 {
		switch s[4] {
		case 'n', 'N':
			want.Promotion = Knight
		case 'b', 'B':
			want.Promotion = Bishop
		case 'r', 'R':
			want.Promotion = Rook
		case 'q', 'Q':
			want.Promotion = Queen
		default:
			return NullMove, &IllegalMoveError{Move: s, FEN: p.FEN()}
		}
	}
	m, ok := p.find(want)
	if !ok {
		return NullMove, &IllegalMoveError{Move: s, FEN: p.FEN()}
	}
	return m, nil
}

// ParseSAN resolves a standard algebraic move string ("Nf3", "exd5", "O-O").
func (p *Position) ParseSAN(s string) (Move, error) {
	pos, err := p.notationPosition()
	if err != nil {
		return NullMove, err
	}
	cm, err := chess.AlgebraicNotation{}.Decode(pos, strings.TrimSpace(s))
	if err != nil {
		return NullMove, &IllegalMoveError{Move: s, FEN: p.FEN()}
	}
	return p.ParseUCI(cm.String())
}

// SAN renders a legal move in standard algebraic notation. Moves the
// notation library does not recognise fall back to UCI form.
func (p *Position) SAN(m Move) string {
	pos, err := p.notationPosition()
	if err != nil {
		return m.String()
	}
	uci := m.String()
	for _, cm := range pos.ValidMoves() {
		if cm.String() == uci {
			return chess.AlgebraicNotation{}.Encode(pos, cm)
		}
	}
	return uci
}

func (p *Position) notationPosition() (*chess.Position, error) {
	opt, err := chess.FEN(p.FEN())
	if err != nil {
		return nil, fmt.Errorf("notation: %w", err)
	}
	return chess.NewGame(opt).Position(), nil
}
