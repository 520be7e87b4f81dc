package position

import (
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/dylhunn/dragontoothmg"
)

func mustFEN(t *testing.T, fen string) *Position {
	t.Helper()
	p, err := FromFEN(fen)
	if err != nil {
		t.Fatalf("FromFEN(%q): %v", fen, err)
	}
	return p
}

func playUCI(t *testing.T, p *Position, moves ...string) {
	t.Helper()
	for _, s := range moves {
		m, err := p.ParseUCI(s)
		if err != nil {
			t.Fatalf("ParseUCI(%s): %v", s, err)
		}
		p.Push(m)
	}
}

func TestPushPopRoundTrip(t *testing.T) {
	fens := []string{
		StartFEN,
		"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
		"4k3/3p4/8/4P3/8/8/8/4K3 b - - 0 1",
	}
	for _, fen := range fens {
		p := mustFEN(t, fen)
		startFEN, startHash := p.FEN(), p.Hash()
		for _, m := range p.LegalMoves(AllMoves) {
			p.Push(m)
			for _, reply := range p.LegalMoves(AllMoves) {
				p.Push(reply)
				p.Pop()
			}
			p.Pop()
			if p.FEN() != startFEN {
				t.Fatalf("FEN mismatch after %s: got %q want %q", m, p.FEN(), startFEN)
			}
			if p.Hash() != startHash {
				t.Fatalf("hash mismatch after %s", m)
			}
		}
		if p.Ply() != 0 || len(p.States()) != 1 {
			t.Fatalf("stacks not empty after pops: ply=%d states=%d", p.Ply(), len(p.States()))
		}
	}
}

func TestPerftInitialPosition(t *testing.T) {
	p := New()
	want := []uint64{1, 20, 400, 8902}
	for depth, n := range want {
		if got := p.Perft(depth); got != n {
			t.Fatalf("perft depth %d: got %d want %d", depth, got, n)
		}
	}
}

func TestPerftKiwipete(t *testing.T) {
	p := mustFEN(t, "r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1")
	if got := p.Perft(1); got != 48 {
		t.Fatalf("perft depth 1: got %d want 48", got)
	}
	if got := p.Perft(2); got != 2039 {
		t.Fatalf("perft depth 2: got %d want 2039", got)
	}
	var total uint64
	for _, n := range p.Divide(2) {
		total += n
	}
	if total != 2039 {
		t.Fatalf("divide total: got %d want 2039", total)
	}
}

func TestFingerprint(t *testing.T) {
	p := New()
	playUCI(t, p, "e2e4")
	want := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b"
	if got := p.Fingerprint(); got != want {
		t.Fatalf("fingerprint: got %q want %q", got, want)
	}
	// counters do not matter
	q := mustFEN(t, "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b - - 7 42")
	if q.Fingerprint() != want {
		t.Fatalf("fingerprint with other counters: got %q", q.Fingerprint())
	}
}

func TestCheckmateFoolsMate(t *testing.T) {
	p := New()
	playUCI(t, p, "f2f3", "e7e5", "g2g4", "d8h4")
	if got := p.Terminal(); got != ReasonCheckmate {
		t.Fatalf("terminal: got %v want checkmate", got)
	}
	if p.SideToMove() != White || !p.InCheck() {
		t.Fatalf("expected white to move and in check")
	}
	if len(p.LegalMoves(AllMoves)) != 0 {
		t.Fatalf("mated side has moves")
	}
}

func TestStalemate(t *testing.T) {
	p := mustFEN(t, "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1")
	if got := p.Terminal(); got != ReasonStalemate {
		t.Fatalf("terminal: got %v want stalemate", got)
	}
	if !ReasonStalemate.IsDraw() || ReasonCheckmate.IsDraw() {
		t.Fatalf("IsDraw classification wrong")
	}
}

func TestInsufficientMaterial(t *testing.T) {
	cases := []struct {
		fen  string
		want Reason
	}{
		{"8/8/8/4k3/8/8/8/4K3 w - - 0 1", ReasonInsufficientMaterial},
		{"8/8/8/4k3/8/8/8/4KN2 w - - 0 1", ReasonInsufficientMaterial},
		{"8/8/8/2b1k3/8/8/8/2B1K3 w - - 0 1", ReasonInsufficientMaterial},
		{"8/8/8/3bk3/8/8/8/2B1K3 w - - 0 1", ReasonNone},
		{"8/8/8/4k3/8/8/4P3/4K3 w - - 0 1", ReasonNone},
	}
	for _, c := range cases {
		p := mustFEN(t, c.fen)
		if r := p.Terminal(); r != c.want {
			t.Fatalf("%s: got %v want %v", c.fen, r, c.want)
		}
	}
}

func TestFiftyMoveRule(t *testing.T) {
	p := mustFEN(t, "8/8/8/4k3/8/8/R7/4K3 w - - 100 80")
	if got := p.Terminal(); got != ReasonDraw {
		t.Fatalf("terminal: got %v want fifty-move draw", got)
	}
}

func TestThreefoldRepetition_KnightShuffle(t *testing.T) {
	p := New()
	cycle := []string{"g1f3", "g8f6", "f3g1", "f6g8"}
	playUCI(t, p, cycle...)
	if p.Terminal() != ReasonNone {
		t.Fatalf("should not be threefold after one cycle")
	}
	playUCI(t, p, cycle...)
	if got := p.Terminal(); got != ReasonThreefold {
		t.Fatalf("terminal: got %v want threefold", got)
	}
	p.Pop()
	if p.Terminal() != ReasonNone {
		t.Fatalf("pop should undo the repetition")
	}
}

func TestEnPassantCountsAsCapture(t *testing.T) {
	p := mustFEN(t, "4k3/3p4/8/4P3/8/8/8/4K3 b - - 0 1")
	playUCI(t, p, "d7d5")
	var found bool
	for _, m := range p.LegalMoves(CapturesOnly) {
		if m.String() == "e5d6" {
			found = true
			if m.Captured != Pawn {
				t.Fatalf("en passant captured piece: got %v", m.Captured)
			}
		}
	}
	if !found {
		t.Fatalf("e5d6 missing from captures")
	}
}

func TestApplyRejectsIllegalMove(t *testing.T) {
	p := New()
	err := p.Apply(Move{From: 12, To: 36}) // e2e5
	if !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove, got %v", err)
	}
	var ime *IllegalMoveError
	if !errors.As(err, &ime) || ime.Move != "e2e5" {
		t.Fatalf("expected IllegalMoveError for e2e5, got %v", err)
	}
	if err := p.Apply(Move{From: 12, To: 28}); err != nil {
		t.Fatalf("e2e4: %v", err)
	}
	if p.SideToMove() != Black {
		t.Fatalf("side to move not updated")
	}
}

func TestNotation(t *testing.T) {
	p := New()
	cases := []struct{ san, uci string }{
		{"e4", "e2e4"},
		{"c5", "c7c5"},
		{"Nf3", "g1f3"},
		{"d6", "d7d6"},
	}
	for _, c := range cases {
		m, err := p.ParseSAN(c.san)
		if err != nil {
			t.Fatalf("ParseSAN(%s): %v", c.san, err)
		}
		if m.String() != c.uci {
			t.Fatalf("ParseSAN(%s): got %s want %s", c.san, m, c.uci)
		}
		if san := p.SAN(m); san != c.san {
			t.Fatalf("SAN(%s): got %s want %s", c.uci, san, c.san)
		}
		p.Push(m)
	}
	if _, err := p.ParseSAN("Qh5"); err == nil {
		t.Fatalf("Qh5 should be illegal here")
	}
}

func TestGivesCheckAndOpponentMoves(t *testing.T) {
	p := New()
	playUCI(t, p, "e2e4", "f7f6")
	m, err := p.ParseUCI("d1h5")
	if err != nil {
		t.Fatal(err)
	}
	if !p.GivesCheck(m) {
		t.Fatalf("Qh5 should give check")
	}
	q := New()
	if n := q.OpponentMoveCount(); n != 20 {
		t.Fatalf("opponent moves at start: got %d want 20", n)
	}
}

// After a double push the en passant square is set; the count must match a
// board with the other side to move and no en passant rights.
func TestOpponentMoveCountAfterDoublePush(t *testing.T) {
	tests := []struct {
		moves   []string
		flipped string
		want    int
	}{
		{[]string{"e2e4"}, "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR w KQkq - 0 1", 30},
		{[]string{"e2e4", "a7a6", "e4e5", "d7d5"}, "rnbqkbnr/1pp1pppp/p7/3pP3/8/8/PPPP1PPP/RNBQKBNR b KQkq - 0 3", 26},
	}
	for _, tt := range tests {
		p := New()
		playUCI(t, p, tt.moves...)
		if fields := strings.Fields(p.FEN()); fields[3] == "-" {
			t.Fatalf("%v: expected an en passant square in %s", tt.moves, p.FEN())
		}
		board := dragontoothmg.ParseFen(tt.flipped)
		want := len(board.GenerateLegalMoves())
		if want != tt.want {
			t.Fatalf("%v: reference board has %d moves, want %d", tt.moves, want, tt.want)
		}
		if got := p.OpponentMoveCount(); got != want {
			t.Fatalf("%v: OpponentMoveCount %d, reference %d", tt.moves, got, want)
		}
	}
}

func TestCapturesOnlyFilter(t *testing.T) {
	tests := []struct {
		fen  string
		want []string
	}{
		{StartFEN, nil},
		{"k7/8/8/3pP3/8/8/8/7K w - d6 0 2", []string{"e5d6"}},
		{"1n5k/P7/8/8/8/8/8/7K w - - 0 1", []string{"a7b8b", "a7b8n", "a7b8q", "a7b8r"}},
	}
	for _, tt := range tests {
		p := mustFEN(t, tt.fen)
		var got []string
		for _, m := range p.LegalMoves(CapturesOnly) {
			got = append(got, m.String())
		}
		sort.Strings(got)
		if strings.Join(got, " ") != strings.Join(tt.want, " ") {
			t.Fatalf("%s: captures %v, want %v", tt.fen, got, tt.want)
		}
	}
}
