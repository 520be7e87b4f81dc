// Package oracle drives an external UCI engine such as Stockfish. A Client
// owns one engine process and serves one request at a time.
package oracle

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/notnil/chess"
	"github.com/notnil/chess/uci"
)

var (
	// ErrUnavailable is returned when the engine cannot be started or does
	// not answer in time. Callers treat it as a miss.
	ErrUnavailable = errors.New("oracle unavailable")
	ErrClosed      = errors.New("oracle closed")
)

const (
	DefaultPath         = "stockfish"
	DefaultMoveTime     = 2 * time.Second
	DefaultEvalDepth    = 10
	DefaultStartTimeout = 10 * time.Second

	// MateCP is reported by Evaluate for a forced mate.
	MateCP = 100000
)

type Options struct {
	// Path of the engine binary.
	Path string
	// Elo limits the playing strength when > 0.
	Elo int
	// MoveTime is the think time per BestMove call. Ignored when Depth > 0.
	MoveTime time.Duration
	// Depth searches to a fixed depth instead of a fixed time.
	Depth int
	// StartTimeout bounds the UCI handshake.
	StartTimeout time.Duration
	Logger       *log.Logger
}

// Client talks UCI to one engine process. When a request is abandoned the
// process is killed and the client reports Broken; a Pool replaces it.
type Client struct {
	opts Options
	name string

	cmd   *exec.Cmd
	stdin io.WriteCloser
	lines chan string

	// sem holds one token per running request.
	sem chan struct{}

	dead     chan struct{}
	killOnce sync.Once
	closed   atomic.Bool
}

// Open starts the engine and runs the UCI handshake.
func Open(opts Options) (*Client, error) {
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.MoveTime <= 0 {
		opts.MoveTime = DefaultMoveTime
	}
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = DefaultStartTimeout
	}
	path, err := exec.LookPath(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrUnavailable, opts.Path, err)
	}
	cmd := exec.Command(path)
	cmd.WaitDelay = time.Second
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrUnavailable, opts.Path, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrUnavailable, opts.Path, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrUnavailable, opts.Path, err)
	}

	c := &Client{
		opts:  opts,
		name:  opts.Path,
		cmd:   cmd,
		stdin: stdin,
		lines: make(chan string, 64),
		sem:   make(chan struct{}, 1),
		dead:  make(chan struct{}),
	}
	go c.readLines(stdout)
	go cmd.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), opts.StartTimeout)
	defer cancel()
	if err := c.handshake(ctx); err != nil {
		c.kill()
		return nil, fmt.Errorf("handshake: %w", err)
	}
	c.logf("started %s (elo %d)", c.name, opts.Elo)
	return c, nil
}

func (c *Client) readLines(r io.Reader) {
	defer close(c.lines)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		select {
		case c.lines <- strings.TrimSpace(scanner.Text()):
		case <-c.dead:
			return
		}
	}
}

func (c *Client) handshake(ctx context.Context) error {
	if err := c.send(uci.CmdUCI); err != nil {
		return err
	}
	options := map[string]uci.Option{}
	err := c.readUntil(ctx, func(line string) bool {
		if name, ok := strings.CutPrefix(line, "id name "); ok {
			c.name = name
			return false
		}
		var o uci.Option
		if o.UnmarshalText([]byte(line)) == nil {
			options[o.Name] = o
			return false
		}
		return line == "uciok"
	})
	if err != nil {
		return err
	}
	cmds := strengthOptions(clampElo(c.opts.Elo, options["UCI_Elo"]))
	cmds = append(cmds, uci.CmdIsReady)
	if err := c.send(cmds...); err != nil {
		return err
	}
	if err := c.readUntil(ctx, isReadyOK); err != nil {
		return err
	}
	if err := c.send(uci.CmdUCINewGame, uci.CmdIsReady); err != nil {
		return err
	}
	return c.readUntil(ctx, isReadyOK)
}

func isReadyOK(line string) bool { return line == "readyok" }

// clampElo keeps elo inside the range the engine advertised for UCI_Elo.
func clampElo(elo int, o uci.Option) int {
	if elo <= 0 {
		return elo
	}
	if lo, err := strconv.Atoi(o.Min); err == nil && elo < lo {
		elo = lo
	}
	if hi, err := strconv.Atoi(o.Max); err == nil && elo > hi {
		elo = hi
	}
	return elo
}

// strengthOptions maps an Elo rating onto the engine's strength settings.
// Skill Level stays at 10 and UCI_Elo sets the strength.
func strengthOptions(elo int) []uci.Cmd {
	if elo <= 0 {
		return nil
	}
	return []uci.Cmd{
		uci.CmdSetOption{Name: "Skill Level", Value: "10"},
		uci.CmdSetOption{Name: "UCI_LimitStrength", Value: "true"},
		uci.CmdSetOption{Name: "UCI_Elo", Value: strconv.Itoa(elo)},
	}
}

// BestMove asks for the best move in the position given by fen and returns
// it in UCI notation.
func (c *Client) BestMove(ctx context.Context, fen string) (string, error) {
	goCmd := uci.CmdGo{MoveTime: c.opts.MoveTime}
	if c.opts.Depth > 0 {
		goCmd = uci.CmdGo{Depth: c.opts.Depth}
	}
	res, err := c.search(ctx, fen, goCmd)
	if err != nil {
		return "", err
	}
	if res.BestMove == nil {
		return "", fmt.Errorf("%w: no bestmove for %s", ErrUnavailable, fen)
	}
	return res.BestMove.String(), nil
}

// Evaluate returns the engine's centipawn score for the side to move after
// searching to depth. A forced mate is reported as +-MateCP.
func (c *Client) Evaluate(ctx context.Context, fen string, depth int) (int, error) {
	if depth <= 0 {
		depth = DefaultEvalDepth
	}
	res, err := c.search(ctx, fen, uci.CmdGo{Depth: depth})
	if err != nil {
		return 0, err
	}
	switch score := res.Info.Score; {
	case score.Mate > 0:
		return MateCP, nil
	case score.Mate < 0:
		return -MateCP, nil
	default:
		return score.CP, nil
	}
}

// search sends the position and goCmd, then collects info lines until
// bestmove. If ctx ends first the engine is killed, since its pending
// output would leak into the next request.
func (c *Client) search(ctx context.Context, fen string, goCmd uci.CmdGo) (uci.SearchResults, error) {
	var res uci.SearchResults
	pos, err := decodeFEN(fen)
	if err != nil {
		return res, err
	}
	if err := c.acquire(ctx); err != nil {
		return res, err
	}
	defer c.release()

	if err := c.send(uci.CmdPosition{Position: pos}, goCmd); err != nil {
		return res, err
	}
	var parseErr error
	err = c.readUntil(ctx, func(line string) bool {
		if strings.HasPrefix(line, "bestmove") {
			res.BestMove, parseErr = parseBestMove(line)
			return true
		}
		if !strings.Contains(line, " score ") {
			return false
		}
		var info uci.Info
		if info.UnmarshalText([]byte(line)) == nil {
			res.Info = info
		}
		return false
	})
	if err != nil {
		return res, err
	}
	if parseErr != nil {
		return res, fmt.Errorf("%w: %v", ErrUnavailable, parseErr)
	}
	return res, nil
}

func parseBestMove(line string) (*chess.Move, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[1] == "(none)" || fields[1] == "0000" {
		return nil, nil
	}
	return chess.UCINotation{}.Decode(nil, fields[1])
}

func (c *Client) acquire(ctx context.Context) error {
	select {
	case <-c.dead:
		return c.deadErr()
	default:
	}
	select {
	case c.sem <- struct{}{}:
	case <-c.dead:
		return c.deadErr()
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	}
	select {
	case <-c.dead:
		c.release()
		return c.deadErr()
	default:
		return nil
	}
}

func (c *Client) release() { <-c.sem }

func (c *Client) send(cmds ...uci.Cmd) error {
	for _, cmd := range cmds {
		if _, err := fmt.Fprintln(c.stdin, cmd.String()); err != nil {
			c.kill()
			return fmt.Errorf("%w: write %q: %v", ErrUnavailable, cmd.String(), err)
		}
	}
	return nil
}

// readUntil feeds engine output to done until it returns true.
func (c *Client) readUntil(ctx context.Context, done func(line string) bool) error {
	for {
		select {
		case line, ok := <-c.lines:
			if !ok {
				c.kill()
				return c.deadErr()
			}
			if done(line) {
				return nil
			}
		case <-ctx.Done():
			c.logf("request abandoned, stopping %s: %v", c.name, ctx.Err())
			c.kill()
			return fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		case <-c.dead:
			return c.deadErr()
		}
	}
}

func (c *Client) deadErr() error {
	if c.closed.Load() {
		return ErrClosed
	}
	return fmt.Errorf("%w: %s stopped", ErrUnavailable, c.name)
}

// kill ends the process without waiting for any request.
func (c *Client) kill() {
	c.killOnce.Do(func() {
		close(c.dead)
		c.stdin.Close()
		if c.cmd.Process != nil {
			c.cmd.Process.Kill()
		}
	})
}

// Broken reports whether the process has been stopped.
func (c *Client) Broken() bool {
	select {
	case <-c.dead:
		return true
	default:
		return false
	}
}

// Close stops the engine process. A running request fails with ErrClosed.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.logf("closing %s", c.name)
	if !c.Broken() {
		fmt.Fprintln(c.stdin, uci.CmdQuit.String())
	}
	c.kill()
	return nil
}

func (c *Client) logf(format string, args ...any) {
	if c.opts.Logger != nil {
		c.opts.Logger.Printf(format, args...)
	}
}

func decodeFEN(fen string) (*chess.Position, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("oracle: %w", err)
	}
	return chess.NewGame(opt).Position(), nil
}
