// Package server exposes games against the bots over HTTP, with a websocket
// feed per game that streams search iterations and moves.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"golang.org/x/exp/maps"

	"movemate/engine"
	"movemate/oracle"
	"movemate/position"
)

var (
	ErrNotFound    = errors.New("game not found")
	ErrNotYourTurn = errors.New("not your turn")
	ErrBadColor    = errors.New("color must be white or black")
)

type Server struct {
	cfg     Config
	roster  []engine.BotConfig
	oracles *oracle.Pool
	logger  *log.Logger
	router  chi.Router

	mu     sync.RWMutex
	games  map[string]*gameEntry
	nextID int
}

type gameEntry struct {
	id      string
	seq     int
	bot     engine.BotConfig
	human   position.Color
	game    *engine.Game
	player  engine.Player
	hub     *Hub
	created time.Time
}

// New builds a server over the default roster.
func New(cfg Config) *Server {
	logger := log.New(os.Stderr, "[server] ", log.LstdFlags)
	oracleOpts := cfg.oracleOptions()
	oracleOpts.Logger = log.New(os.Stderr, "[oracle] ", log.LstdFlags)
	s := &Server{
		cfg:     cfg,
		roster:  engine.DefaultRoster(),
		oracles: oracle.NewPool(oracleOpts),
		logger:  logger,
		games:   make(map[string]*gameEntry),
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
		close(serverErrCh)
	}()
	s.logger.Printf("listening on %s", s.cfg.Addr)

	select {
	case err := <-serverErrCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close ends every game feed and stops the oracle engines.
func (s *Server) Close() error {
	s.mu.Lock()
	for id, e := range s.games {
		e.hub.Close()
		delete(s.games, id)
	}
	s.mu.Unlock()
	return s.oracles.Close()
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/api/ping", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	r.Get("/api/bots", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.roster)
	})

	r.Route("/api/games", func(r chi.Router) {
		r.Get("/", s.listGames)
		r.Post("/", s.createGame)
		r.Get("/{id}", s.getGame)
		r.Delete("/{id}", s.deleteGame)
		r.Post("/{id}/moves", s.postMove)
		r.Get("/{id}/eval", s.evalGame)
	})

	r.Get("/ws/games/{id}", s.serveWS)
	return r
}

type createGameRequest struct {
	Bot   string `json:"bot"`
	FEN   string `json:"fen,omitempty"`
	Color string `json:"color,omitempty"`
}

type moveRequest struct {
	Move string `json:"move"`
}

type moveDTO struct {
	UCI    string `json:"uci"`
	SAN    string `json:"san"`
	Source string `json:"source"`
}

type gameDTO struct {
	ID      string    `json:"id"`
	Bot     string    `json:"bot"`
	Human   string    `json:"human"`
	FEN     string    `json:"fen"`
	Turn    string    `json:"turn"`
	Moves   []string  `json:"moves"`
	Status  string    `json:"status"`
	Winner  string    `json:"winner,omitempty"`
	BotMove *moveDTO  `json:"bot_move,omitempty"`
	Created time.Time `json:"created"`
}

// evalDTO scores are centipawns from White's point of view.
type evalDTO struct {
	FEN         string `json:"fen"`
	EngineCP    int    `json:"engine_cp"`
	OracleCP    *int   `json:"oracle_cp,omitempty"`
	OracleError string `json:"oracle_error,omitempty"`
}

type searchDTO struct {
	Depth     int    `json:"depth"`
	Score     int    `json:"score"`
	Move      string `json:"move"`
	Nodes     uint64 `json:"nodes"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

func (s *Server) createGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid payload"))
		return
	}
	bot, err := engine.FindBot(s.roster, req.Bot)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	human, err := parseColor(req.Color)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	pos := position.New()
	if req.FEN != "" {
		if pos, err = position.FromFEN(req.FEN); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	e, err := s.newEntry(bot, human, pos)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.logger.Printf("game %s: %s vs %s (human plays %s)", e.id, req.Bot, bot.Label, human)

	var reply *engine.Played
	if e.game.SideToMove() != e.human {
		played, err := s.botReply(r.Context(), e)
		if err != nil && !errors.Is(err, engine.ErrGameOver) {
			writeError(w, errorStatus(err), err)
			return
		}
		if err == nil {
			reply = &played
		}
	}
	writeJSON(w, http.StatusCreated, e.dto(reply))
}

func (s *Server) newEntry(bot engine.BotConfig, human position.Color, pos *position.Position) (*gameEntry, error) {
	if bot.Kind == engine.KindNegamax {
		if s.cfg.ThinkTimeMs > 0 {
			bot.TimeLimit = time.Duration(s.cfg.ThinkTimeMs) * time.Millisecond
		}
		if s.cfg.MaxDepth > 0 {
			bot.MaxDepth = s.cfg.MaxDepth
		}
	}

	s.mu.Lock()
	s.nextID++
	seq := s.nextID
	s.mu.Unlock()

	hub := NewHub()
	player, err := engine.NewPlayer(bot, engine.PlayerDeps{
		Oracle: func(elo int) (engine.OracleClient, error) {
			c, err := s.oracles.Get(elo)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		Progress: func(info engine.SearchInfo) {
			hub.Publish("search", searchDTO{
				Depth:     info.Depth,
				Score:     int(info.Score),
				Move:      info.Move.String(),
				Nodes:     info.Nodes,
				ElapsedMs: info.Elapsed.Milliseconds(),
			})
		},
		Logger: s.logger,
	})
	if err != nil {
		return nil, err
	}

	game := engine.NewGame(pos, s.cfg.Seed+int64(seq))
	game.Logger = s.logger
	e := &gameEntry{
		id:      fmt.Sprintf("g%d", seq),
		seq:     seq,
		bot:     bot,
		human:   human,
		game:    game,
		player:  player,
		hub:     hub,
		created: time.Now().UTC(),
	}
	s.mu.Lock()
	s.games[e.id] = e
	s.mu.Unlock()
	return e, nil
}

func (s *Server) listGames(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	entries := maps.Values(s.games)
	s.mu.RUnlock()
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([]gameDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.dto(nil))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getGame(w http.ResponseWriter, r *http.Request) {
	e, err := s.lookup(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, e.dto(nil))
}

func (s *Server) deleteGame(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	e, ok := s.games[id]
	delete(s.games, id)
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, ErrNotFound)
		return
	}
	e.hub.Close()
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "id": id})
}

const evalTimeout = 5 * time.Second

// evalGame scores the current position with the built-in evaluation and,
// when an engine is available, with the oracle at the bot's strength.
func (s *Server) evalGame(w http.ResponseWriter, r *http.Request) {
	e, err := s.lookup(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	pos := e.game.Position()
	out := evalDTO{FEN: pos.FEN(), EngineCP: int(engine.Evaluate(pos))}

	ctx, cancel := context.WithTimeout(r.Context(), evalTimeout)
	defer cancel()
	cp, err := s.oracleEval(ctx, e.bot.Elo, out.FEN)
	if err != nil {
		out.OracleError = err.Error()
	} else {
		cp *= pos.SideToMove().Sign()
		out.OracleCP = &cp
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) oracleEval(ctx context.Context, elo int, fen string) (int, error) {
	c, err := s.oracles.Get(elo)
	if err != nil {
		return 0, err
	}
	return c.Evaluate(ctx, fen, s.cfg.OracleEvalDepth)
}

// postMove plays the human move and then lets the bot answer in the same
// request.
func (s *Server) postMove(w http.ResponseWriter, r *http.Request) {
	e, err := s.lookup(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Move == "" {
		writeError(w, http.StatusBadRequest, errors.New("invalid payload"))
		return
	}
	if e.game.SideToMove() != e.human {
		writeError(w, http.StatusConflict, ErrNotYourTurn)
		return
	}

	m, err := parseMove(e.game.Position(), req.Move)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	played, err := e.game.Play(m)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	e.hub.Publish("move", toMoveDTO(played))

	var reply *engine.Played
	botPlayed, err := s.botReply(r.Context(), e)
	switch {
	case err == nil:
		reply = &botPlayed
	case errors.Is(err, engine.ErrGameOver):
	default:
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, e.dto(reply))
}

func (s *Server) botReply(ctx context.Context, e *gameEntry) (engine.Played, error) {
	played, err := e.game.BotMove(ctx, e.player)
	if err != nil {
		return played, err
	}
	e.hub.Publish("move", toMoveDTO(played))
	if reason, winner := e.game.Status(); reason != position.ReasonNone {
		s.logger.Printf("game %s over: %s (winner %v)", e.id, reason, winner)
		e.hub.Publish("status", e.dto(nil))
	}
	return played, nil
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	e, err := s.lookup(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c, ok := e.hub.register()
	if !ok {
		conn.Close()
		return
	}
	e.hub.sendTo(c, wsMessage{Type: "status", Payload: mustMarshal(e.dto(nil))})

	go func() {
		defer conn.Close()
		if err := writeWSWithHeartbeat(conn, c.send); err != nil {
			return
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			e.hub.unregister(c)
			return
		}
		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "request_status":
			e.hub.sendTo(c, wsMessage{Type: "status", Payload: mustMarshal(e.dto(nil))})
		}
	}
}

func (s *Server) lookup(id string) (*gameEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.games[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

func (e *gameEntry) dto(reply *engine.Played) gameDTO {
	reason, winner := e.game.Status()
	d := gameDTO{
		ID:      e.id,
		Bot:     e.bot.Name,
		Human:   e.human.String(),
		FEN:     e.game.FEN(),
		Turn:    e.game.SideToMove().String(),
		Moves:   e.game.Moves(),
		Status:  reason.String(),
		Created: e.created,
	}
	if winner != 0 {
		d.Winner = winner.String()
	}
	if reply != nil {
		m := toMoveDTO(*reply)
		d.BotMove = &m
	}
	return d
}

func toMoveDTO(p engine.Played) moveDTO {
	return moveDTO{UCI: p.Move.String(), SAN: p.SAN, Source: string(p.Source)}
}

// parseMove accepts long algebraic notation first and SAN second.
func parseMove(p *position.Position, s string) (position.Move, error) {
	if m, err := p.ParseUCI(s); err == nil {
		return m, nil
	}
	return p.ParseSAN(s)
}

func parseColor(s string) (position.Color, error) {
	switch strings.ToLower(s) {
	case "", "white", "w":
		return position.White, nil
	case "black", "b":
		return position.Black, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrBadColor, s)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, position.ErrIllegalMove), errors.Is(err, engine.ErrUnknownBot):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrSearchInProgress), errors.Is(err, ErrNotYourTurn):
		return http.StatusConflict
	case errors.Is(err, engine.ErrGameOver):
		return http.StatusGone
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
