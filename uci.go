package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"movemate/engine"
	"movemate/oracle"
	"movemate/position"
)

func main() {
	uciLoop(os.Stdin, os.Stdout)
}

type uciSession struct {
	out   io.Writer
	outMu sync.Mutex

	pos     *position.Position
	history []string
	lastSAN string

	bot       engine.BotConfig
	oracleBin string
	oracles   *oracle.Pool
	rng       *rand.Rand

	cancel context.CancelFunc
	done   chan struct{}
}

func newUCISession(out io.Writer) *uciSession {
	roster := engine.DefaultRoster()
	return &uciSession{
		out:       out,
		pos:       position.New(),
		bot:       roster[0],
		oracleBin: oracle.DefaultPath,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *uciSession) println(a ...any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintln(s.out, a...)
}

func uciLoop(in io.Reader, out io.Writer) {
	s := newUCISession(out)
	defer s.close()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		tokens := strings.Fields(line)
		if len(tokens) == 0 { // ignore blank lines
			continue
		}
		switch strings.ToLower(tokens[0]) {
		case "uci":
			s.println("id name Movemate")
			s.println("id author movemate")
			s.println("option name Bot type string default", s.bot.Name)
			s.println("option name Stockfish type string default", oracle.DefaultPath)
			s.println("uciok")
		case "isready":
			s.println("readyok")
		case "ucinewgame":
			s.wait()
			s.pos = position.New()
			s.history = nil
			s.lastSAN = ""
		case "quit":
			s.stop()
			return
		case "stop":
			s.stop()
		case "eval":
			s.wait()
			s.evaluate()
		case "go":
			s.wait()
			s.startSearch(parseGo(s, tokens[1:]))
		case "position":
			s.wait()
			s.setPosition(tokens[1:])
		case "setoption":
			s.wait()
			s.setOption(tokens[1:])
		default:
			s.println("info string Unknown command:", line)
		}
	}
	s.wait()
}

// setPosition handles "position startpos|fen <fen> [moves ...]". The game
// history is rebuilt from the listed moves.
func (s *uciSession) setPosition(tokens []string) {
	if len(tokens) == 0 {
		s.println("info string Malformed position command")
		return
	}
	var rest []string
	switch strings.ToLower(tokens[0]) {
	case "startpos":
		s.pos = position.New()
		rest = tokens[1:]
	case "fen":
		i := 1
		for i < len(tokens) && strings.ToLower(tokens[i]) != "moves" {
			i++
		}
		p, err := position.FromFEN(strings.Join(tokens[1:i], " "))
		if err != nil {
			s.println("info string Invalid fen position:", err)
			return
		}
		s.pos = p
		rest = tokens[i:]
	default:
		s.println("info string Invalid position subcommand")
		return
	}
	s.history = nil
	s.lastSAN = ""
	if len(rest) == 0 || strings.ToLower(rest[0]) != "moves" {
		return
	}
	for _, moveStr := range rest[1:] {
		m, err := s.pos.ParseUCI(strings.ToLower(moveStr))
		if err != nil {
			s.println("info string Move", moveStr, "not found for position", s.pos.FEN())
			return
		}
		s.lastSAN = s.pos.SAN(m)
		s.pos.Push(m)
		s.history = append(s.history, s.pos.Fingerprint())
	}
}

// setOption handles "setoption name <id> value <x>".
func (s *uciSession) setOption(tokens []string) {
	var name, value []string
	target := &name
	for _, tok := range tokens {
		switch strings.ToLower(tok) {
		case "name":
			target = &name
		case "value":
			target = &value
		default:
			*target = append(*target, tok)
		}
	}
	val := strings.Join(value, " ")
	switch strings.ToLower(strings.Join(name, " ")) {
	case "bot":
		bot, err := engine.FindBot(engine.DefaultRoster(), val)
		if err != nil {
			s.println("info string", err)
			return
		}
		s.bot = bot
	case "stockfish":
		if s.oracles != nil {
			s.oracles.Close()
			s.oracles = nil
		}
		s.oracleBin = val
	default:
		s.println("info string Unknown option", strings.Join(name, " "))
	}
}

const oracleEvalTimeout = 10 * time.Second

// evaluate prints the static evaluation and, for an oracle bot, the
// engine's score. Both are from White's point of view.
func (s *uciSession) evaluate() {
	s.println("info string eval", engine.Evaluate(s.pos))
	if s.bot.Kind != engine.KindOracle {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), oracleEvalTimeout)
	defer cancel()
	c, err := s.oraclePool().Get(s.bot.Elo)
	if err == nil {
		var cp int
		cp, err = c.Evaluate(ctx, s.pos.FEN(), oracle.DefaultEvalDepth)
		if err == nil {
			s.println("info string oracle eval", cp*s.pos.SideToMove().Sign())
			return
		}
	}
	s.println("info string oracle eval unavailable:", err)
}

func (s *uciSession) oraclePool() *oracle.Pool {
	if s.oracles == nil {
		s.oracles = oracle.NewPool(oracle.Options{Path: s.oracleBin})
	}
	return s.oracles
}

const maxUCIDepth = 64

type goParams struct {
	depth      int
	moveTime   time.Duration
	wTime      time.Duration
	bTime      time.Duration
	wInc, bInc time.Duration
}

func parseGo(s *uciSession, tokens []string) goParams {
	var gp goParams
	for i := 0; i < len(tokens); i++ {
		nextToken := strings.ToLower(tokens[i])
		var target *time.Duration
		switch nextToken {
		case "infinite":
			continue
		case "depth":
			if i+1 >= len(tokens) {
				s.println("info string Malformed go command option depth")
				continue
			}
			i++
			d, err := strconv.Atoi(tokens[i])
			if err != nil {
				s.println("info string Malformed go command option; could not convert depth")
				continue
			}
			gp.depth = engine.Clamp(d, 1, maxUCIDepth)
			continue
		case "movetime":
			target = &gp.moveTime
		case "wtime":
			target = &gp.wTime
		case "btime":
			target = &gp.bTime
		case "winc":
			target = &gp.wInc
		case "binc":
			target = &gp.bInc
		default:
			s.println("info string Unknown go subcommand", nextToken)
			continue
		}
		if i+1 >= len(tokens) {
			s.println("info string Malformed go command option", nextToken)
			continue
		}
		i++
		ms, err := strconv.Atoi(tokens[i])
		if err != nil {
			s.println("info string Malformed go command option; could not convert", nextToken)
			continue
		}
		*target = time.Duration(ms) * time.Millisecond
	}
	return gp
}

// botConfig applies the go limits to the selected bot. Without limits the
// bot keeps its own depth and think time.
func (s *uciSession) botConfig(gp goParams) engine.BotConfig {
	cfg := s.bot
	remaining, inc := gp.wTime, gp.wInc
	if s.pos.SideToMove() == position.Black {
		remaining, inc = gp.bTime, gp.bInc
	}
	switch {
	case gp.moveTime > 0:
		cfg.TimeLimit = gp.moveTime
	case remaining > 0:
		cfg.TimeLimit = engine.ClockBudget(s.pos, remaining, inc)
	case gp.depth > 0:
		cfg.TimeLimit = 0
	}
	if gp.depth > 0 {
		cfg.MaxDepth = gp.depth
	}
	return cfg
}

func (s *uciSession) startSearch(gp goParams) {
	cfg := s.botConfig(gp)
	oracles := s.oraclePool()
	player, err := engine.NewPlayer(cfg, engine.PlayerDeps{
		Oracle: func(elo int) (engine.OracleClient, error) {
			c, err := oracles.Get(elo)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		Progress: func(info engine.SearchInfo) { s.println(info.UCI()) },
		Logger:   log.New(uciLogWriter{s}, "", 0),
	})
	if err != nil {
		s.println("info string", err)
		s.println("bestmove 0000")
		return
	}

	t := engine.Turn{
		Position: s.pos.Clone(),
		History:  append([]string(nil), s.history...),
		LastMove: s.lastSAN,
		Rng:      rand.New(rand.NewSource(s.rng.Int63())),
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		defer cancel()
		s.println("bestmove", s.chooseMove(ctx, player, t))
	}(s.done)
}

func (s *uciSession) chooseMove(ctx context.Context, player engine.Player, t engine.Turn) position.Move {
	if bp, ok := player.(engine.BookPlayer); ok {
		m, hit, err := bp.OpeningBookMove(t)
		switch {
		case err != nil:
			s.println("info string book:", err)
		case hit:
			s.println("info string book move", m)
			return m
		}
	}
	m, err := player.FindBestMove(ctx, t)
	if err == nil {
		return m
	}
	if errors.Is(err, engine.ErrGameOver) {
		return position.NullMove
	}
	s.println("info string search failed, playing a random move:", err)
	m, err = engine.RandomPlayer{}.FindBestMove(ctx, t)
	if err != nil {
		return position.NullMove
	}
	return m
}

// stop cancels a running search and waits for its bestmove.
func (s *uciSession) stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wait()
}

func (s *uciSession) wait() {
	if s.done != nil {
		<-s.done
		s.done = nil
		s.cancel = nil
	}
}

func (s *uciSession) close() {
	s.stop()
	if s.oracles != nil {
		s.oracles.Close()
	}
}

// uciLogWriter turns log lines into info strings.
type uciLogWriter struct{ s *uciSession }

func (w uciLogWriter) Write(p []byte) (int, error) {
	w.s.println("info string", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
