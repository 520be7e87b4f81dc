// Package position adapts the dragontoothmg move generator into the board
// model used by the engine: checked and unchecked make/unmake, notation,
// terminal detection and the fingerprint used for repetition tracking.
package position

import (
	"fmt"
	"strings"

	"github.com/dylhunn/dragontoothmg"
	"github.com/notnil/chess"
)

const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// MoveFilter selects which legal moves LegalMoves returns.
type MoveFilter int

const (
	AllMoves MoveFilter = iota
	CapturesOnly
)

// State is what we remember about every position reached so far in order to
// reason about repetitions and the fifty-move rule.
type State struct {
	Hash   uint64
	Rule50 int
}

type frame struct {
	move  Move
	undo  func()
	wasEP bool
}

// Position is a mutable board. It must be used through a pointer: the undo
// closures on the frame stack reference the embedded board.
type Position struct {
	board  dragontoothmg.Board
	frames []frame
	states []State
	// ep is true when the side to move may have an en passant capture
	// available, i.e. the last move was a double pawn push.
	ep bool
}

// New returns the standard starting position.
func New() *Position {
	p, err := FromFEN(StartFEN)
	if err != nil {
		panic(err)
	}
	return p
}

// FromFEN parses a FEN string. The FEN is validated before it reaches the
// move generator, which does not tolerate malformed input.
func FromFEN(fen string) (*Position, error) {
	fen = strings.TrimSpace(fen)
	if _, err := chess.FEN(fen); err != nil {
		return nil, fmt.Errorf("invalid fen %q: %w", fen, err)
	}
	fields := strings.Fields(fen)
	// dragontoothmg wants all six fields
	defaults := []string{"", "w", "-", "-", "0", "1"}
	for len(fields) < len(defaults) {
		fields = append(fields, defaults[len(fields)])
	}
	p := &Position{
		board: dragontoothmg.ParseFen(strings.Join(fields, " ")),
		ep:    fields[3] != "-",
	}
	p.pushState()
	return p, nil
}

// Clone returns an independent copy with the same state history but an
// empty undo stack.
func (p *Position) Clone() *Position {
	return &Position{
		board:  p.board,
		states: append([]State(nil), p.states...),
		ep:     p.ep,
	}
}

func (p *Position) SideToMove() Color {
	if p.board.Wtomove {
		return White
	}
	return Black
}

func (p *Position) FEN() string { return p.board.ToFen() }

func (p *Position) Hash() uint64 { return p.board.Hash() }

// Ply returns the number of moves pushed since the position was created.
func (p *Position) Ply() int { return len(p.frames) }

// HalfmoveClock is the number of plies since the last capture or pawn move.
func (p *Position) HalfmoveClock() int { return int(p.board.Halfmoveclock) }

// Pieces returns the bitboards of one side.
func (p *Position) Pieces(c Color) Bitboards {
	if c == White {
		return p.board.White
	}
	return p.board.Black
}

// Fingerprint identifies a position for repetition and book purposes: piece
// placement plus side to move. Castling rights, en passant and the move
// counters are not part of it.
func (p *Position) Fingerprint() string {
	fen := p.board.ToFen()
	fields := strings.SplitN(fen, " ", 3)
	if len(fields) < 2 {
		return fen
	}
	return fields[0] + " " + fields[1]
}

// LegalMoves generates the legal moves of the side to move.
func (p *Position) LegalMoves(filter MoveFilter) []Move {
	raw := p.board.GenerateLegalMoves()
	moves := make([]Move, 0, len(raw))
	for _, r := range raw {
		m := newMove(&p.board, r)
		if filter == CapturesOnly && !m.IsCapture() {
			continue
		}
		moves = append(moves, m)
	}
	return moves
}

// Push plays a move taken from LegalMoves without checking it.
func (p *Position) Push(m Move) {
	wasEP := p.ep
	p.ep = p.isDoublePush(m)
	undo := p.board.Apply(m.raw)
	p.frames = append(p.frames, frame{move: m, undo: undo, wasEP: wasEP})
	p.pushState()
}

// Pop undoes the last pushed move.
func (p *Position) Pop() {
	if len(p.frames) == 0 {
		return
	}
	f := p.frames[len(p.frames)-1]
	p.frames = p.frames[:len(p.frames)-1]
	f.undo()
	p.ep = f.wasEP
	p.states = p.states[:len(p.states)-1]
}

// Apply plays m if it is legal in the current position.
func (p *Position) Apply(m Move) error {
	legal, ok := p.find(m)
	if !ok {
		return &IllegalMoveError{Move: m.String(), FEN: p.FEN()}
	}
	p.Push(legal)
	return nil
}

// LastMove returns the most recently pushed move.
func (p *Position) LastMove() (Move, bool) {
	if len(p.frames) == 0 {
		return NullMove, false
	}
	return p.frames[len(p.frames)-1].move, true
}

func (p *Position) InCheck() bool { return p.board.OurKingInCheck() }

// GivesCheck reports whether m leaves the opponent in check.
func (p *Position) GivesCheck(m Move) bool {
	p.Push(m)
	check := p.board.OurKingInCheck()
	p.Pop()
	return check
}

// OpponentMoveCount counts the legal moves the other side would have if it
// were its turn in the current placement. En passant rights are dropped.
func (p *Position) OpponentMoveCount() int {
	if !p.ep {
		flipped := p.board
		flipped.Wtomove = !flipped.Wtomove
		return len(flipped.GenerateLegalMoves())
	}
	fields := strings.Fields(p.board.ToFen())
	if fields[1] == "w" {
		fields[1] = "b"
	} else {
		fields[1] = "w"
	}
	fields[3] = "-"
	flipped := dragontoothmg.ParseFen(strings.Join(fields, " "))
	return len(flipped.GenerateLegalMoves())
}

// States returns the recorded history, oldest first. The slice must not be
// modified.
func (p *Position) States() []State { return p.states }

func (p *Position) find(m Move) (Move, bool) {
	for _, legal := range p.LegalMoves(AllMoves) {
		if legal.Same(m) {
			return legal, true
		}
	}
	return NullMove, false
}

func (p *Position) isDoublePush(m Move) bool {
	own := p.Pieces(p.SideToMove())
	if own.Pawns&(uint64(1)<<m.From) == 0 {
		return false
	}
	d := int(m.To) - int(m.From)
	return d == 16 || d == -16
}

func (p *Position) pushState() {
	p.states = append(p.states, State{
		Hash:   p.board.Hash(),
		Rule50: int(p.board.Halfmoveclock),
	})
}
