package oracle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/notnil/chess/uci"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// answeringEngine speaks just enough UCI to play e2e4 at +17.
const answeringEngine = `#!/bin/sh
while read line; do
  case "$line" in
    uci) echo "id name fake"; echo "option name UCI_Elo type spin default 1350 min 1350 max 2850"; echo "uciok" ;;
    isready) echo "readyok" ;;
    go*) echo "info depth 1 score cp 17 nodes 20"; echo "bestmove e2e4" ;;
    quit) exit 0 ;;
  esac
done
`

// silentEngine completes the handshake and never answers go.
const silentEngine = `#!/bin/sh
while read line; do
  case "$line" in
    uci) echo "id name silent"; echo "uciok" ;;
    isready) echo "readyok" ;;
    go*) exec sleep 30 ;;
  esac
done
`

func writeEngine(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell engines need a unix shell")
	}
	path := filepath.Join(t.TempDir(), "engine")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

// within fails the test if f does not return before d.
func within(t *testing.T, d time.Duration, what string, f func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		f()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("%s did not return within %v", what, d)
	}
}

func TestOpenMissingEngine(t *testing.T) {
	_, err := Open(Options{Path: "/nonexistent/engine-binary"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestPoolMissingEngine(t *testing.T) {
	p := NewPool(Options{Path: "/nonexistent/engine-binary"})
	if _, err := p.Get(1500); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if len(p.clients) != 0 {
		t.Fatalf("failed client cached")
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestStrengthOptions(t *testing.T) {
	if cmds := strengthOptions(0); len(cmds) != 0 {
		t.Fatalf("no elo should send no options, got %d", len(cmds))
	}
	if cmds := strengthOptions(1500); len(cmds) != 3 {
		t.Fatalf("got %d options want 3", len(cmds))
	}
}

func TestClampElo(t *testing.T) {
	o := uci.Option{Name: "UCI_Elo", Type: uci.OptionSpin, Min: "1350", Max: "2850"}
	cases := []struct{ in, want int }{
		{0, 0},
		{600, 1350},
		{1800, 1800},
		{3200, 2850},
	}
	for _, c := range cases {
		if got := clampElo(c.in, o); got != c.want {
			t.Fatalf("clampElo(%d) = %d want %d", c.in, got, c.want)
		}
	}
	if got := clampElo(600, uci.Option{}); got != 600 {
		t.Fatalf("unknown range should keep elo, got %d", got)
	}
}

func TestEngineAnswers(t *testing.T) {
	c, err := Open(Options{Path: writeEngine(t, answeringEngine), Elo: 1500, StartTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if c.name != "fake" {
		t.Fatalf("engine name %q", c.name)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	m, err := c.BestMove(ctx, startFEN)
	if err != nil || m != "e2e4" {
		t.Fatalf("BestMove = %q, %v", m, err)
	}
	cp, err := c.Evaluate(ctx, startFEN, 4)
	if err != nil || cp != 17 {
		t.Fatalf("Evaluate = %d, %v", cp, err)
	}
	// a second search must not see output from the first
	if m, err := c.BestMove(ctx, startFEN); err != nil || m != "e2e4" {
		t.Fatalf("second BestMove = %q, %v", m, err)
	}
	if _, err := c.BestMove(ctx, "not a fen"); err == nil {
		t.Fatalf("expected an error for a bad fen")
	}

	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := c.BestMove(ctx, startFEN); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after Close, got %v", err)
	}
}

func TestHandshakeTimeout(t *testing.T) {
	path := writeEngine(t, "#!/bin/sh\nexec sleep 30\n")
	within(t, 3*time.Second, "Open", func() {
		if _, err := Open(Options{Path: path, StartTimeout: 200 * time.Millisecond}); !errors.Is(err, ErrUnavailable) {
			t.Errorf("expected ErrUnavailable, got %v", err)
		}
	})
}

func TestAbandonedRequestStopsEngine(t *testing.T) {
	c, err := Open(Options{Path: writeEngine(t, silentEngine), StartTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	within(t, 3*time.Second, "BestMove", func() {
		if _, err := c.BestMove(ctx, startFEN); !errors.Is(err, ErrUnavailable) {
			t.Errorf("expected ErrUnavailable, got %v", err)
		}
	})
	if !c.Broken() {
		t.Fatalf("client should be broken after an abandoned request")
	}
	within(t, time.Second, "BestMove on a broken client", func() {
		if _, err := c.Evaluate(context.Background(), startFEN, 1); !errors.Is(err, ErrUnavailable) {
			t.Errorf("expected ErrUnavailable, got %v", err)
		}
	})
	within(t, time.Second, "Close", func() {
		if err := c.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	})
}

func TestCloseInterruptsRequest(t *testing.T) {
	c, err := Open(Options{Path: writeEngine(t, silentEngine), StartTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	errc := make(chan error, 1)
	go func() {
		_, err := c.BestMove(context.Background(), startFEN)
		errc <- err
	}()
	time.Sleep(100 * time.Millisecond)

	within(t, time.Second, "Close", func() { c.Close() })
	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("request still blocked after Close")
	}
}

func TestPoolReplacesBrokenClient(t *testing.T) {
	p := NewPool(Options{Path: writeEngine(t, answeringEngine), StartTimeout: 5 * time.Second})
	defer p.Close()

	first, err := p.Get(1500)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if again, _ := p.Get(1500); again != first {
		t.Fatalf("healthy client should be reused")
	}
	first.kill()

	second, err := p.Get(1500)
	if err != nil {
		t.Fatalf("get after kill: %v", err)
	}
	if second == first {
		t.Fatalf("broken client handed out again")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if m, err := second.BestMove(ctx, startFEN); err != nil || m != "e2e4" {
		t.Fatalf("BestMove = %q, %v", m, err)
	}
}
