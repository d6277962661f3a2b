// internal/httpserver/routes_game.go
//
// Game endpoints. Every action answers with the resulting snapshot:
//   POST   /game/new               {difficulty?} -> create + Reset
//   GET    /game/{id}              snapshot
//   POST   /game/{id}/initialize   Initialize
//   POST   /game/{id}/shuffle      Shuffle
//   POST   /game/{id}/start        StartTimer
//   POST   /game/{id}/stop         StopTimer
//   POST   /game/{id}/reset        Reset
//   POST   /game/{id}/difficulty   {difficulty}
//   POST   /game/{id}/select       {name}
//   POST   /game/{id}/remove       {name}
//   POST   /game/{id}/evaluate     Evaluate
//   DELETE /game/{id}              Close and forget
//   GET    /game/{id}/ws           event stream (see ws.go)
//
// Actions the engine ignores (wrong phase, duplicate pick, unknown name) still
// return 200 with the unchanged snapshot.

package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/mejikuhibiniu/internal/game"
	"github.com/robalobadob/mejikuhibiniu/internal/history"
	"github.com/robalobadob/mejikuhibiniu/internal/sequence"
	"github.com/robalobadob/mejikuhibiniu/internal/store"
)

type difficultyReq struct {
	Difficulty sequence.Difficulty `json:"difficulty"`
}

type itemReq struct {
	Name string `json:"name"`
}

// gameView is the JSON shape of a snapshot.
type gameView struct {
	GameID string `json:"gameId"`
	game.State
}

func (s *Server) mountGameRoutes(r chi.Router) {
	r.Post("/game/new", s.handleNewGame)
	r.Route("/game/{id}", func(r chi.Router) {
		r.Get("/", s.withGame(func(*game.Game, *http.Request) error { return nil }))
		r.Delete("/", s.handleDeleteGame)
		r.Get("/ws", s.handleGameWS)

		r.Post("/initialize", s.withGame(func(g *game.Game, _ *http.Request) error { g.Initialize(); return nil }))
		r.Post("/shuffle", s.withGame(func(g *game.Game, _ *http.Request) error { g.Shuffle(); return nil }))
		r.Post("/start", s.withGame(func(g *game.Game, _ *http.Request) error { g.StartTimer(); return nil }))
		r.Post("/stop", s.withGame(func(g *game.Game, _ *http.Request) error { g.StopTimer(); return nil }))
		r.Post("/reset", s.withGame(func(g *game.Game, _ *http.Request) error { g.Reset(); return nil }))
		r.Post("/evaluate", s.withGame(func(g *game.Game, _ *http.Request) error { g.Evaluate(); return nil }))
		r.Post("/difficulty", s.withGame(setDifficulty))
		r.Post("/select", s.withGame(selectItem))
		r.Post("/remove", s.withGame(removeItem))
	})
}

// handleNewGame creates a game for the calling player and deals its first round.
func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	var req difficultyReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	if req.Difficulty != "" {
		if _, ok := s.opts.Catalog.Level(req.Difficulty); !ok {
			writeError(w, http.StatusBadRequest, game.ErrUnknownDifficulty.Error())
			return
		}
	}

	owner := s.owner(w, r)
	id := uuid.NewString()
	g := game.New(game.Options{
		ID:         id,
		Catalog:    s.opts.Catalog,
		Difficulty: req.Difficulty,
		Cues:       s.opts.Cues,
		Recorder:   sessionRecorder{s: s, gameID: id, owner: owner},
		Scheduler:  s.opts.Scheduler,
	})
	g.Reset()

	if err := s.opts.Sessions.Save(r.Context(), &store.Session{Game: g, Owner: owner}); err != nil {
		log.Error().Err(err).Msg("save game")
		g.Close()
		writeError(w, http.StatusInternalServerError, "save_failed")
		return
	}
	log.Debug().Str("gameId", g.ID).Str("owner", owner).Str("difficulty", string(g.Snapshot().Difficulty)).Msg("game created")
	writeJSON(w, http.StatusOK, gameView{GameID: g.ID, State: g.Snapshot()})
}

// sessionRecorder logs a game's rounds into the history of whoever owns the
// session when the round settles, so a guest who logs in mid-round keeps it.
type sessionRecorder struct {
	s      *Server
	gameID string
	owner  string // creator, used once the session is gone
}

func (rc sessionRecorder) AddEntry(e history.Entry) history.Entry {
	owner := rc.owner
	if o, err := rc.s.opts.Sessions.OwnerOf(context.Background(), rc.gameID); err == nil {
		owner = o
	}
	return rc.s.opts.History.For(owner).AddEntry(e)
}

func (s *Server) handleDeleteGame(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.opts.Sessions.Get(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err := s.opts.Sessions.Delete(r.Context(), id); err != nil {
		log.Warn().Err(err).Str("gameId", id).Msg("delete game")
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// withGame resolves {id}, applies fn and answers with the new snapshot.
// An error from fn is a client error (400).
func (s *Server) withGame(fn func(g *game.Game, r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.opts.Sessions.Get(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("load game")
			writeError(w, http.StatusInternalServerError, "load_failed")
			return
		}
		if err := fn(sess.Game, r); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, gameView{GameID: sess.Game.ID, State: sess.Game.Snapshot()})
	}
}

func setDifficulty(g *game.Game, r *http.Request) error {
	var req difficultyReq
	if err := decodeJSON(r, &req); err != nil {
		return errors.New("bad_json")
	}
	return g.SetDifficulty(req.Difficulty)
}

func selectItem(g *game.Game, r *http.Request) error {
	var req itemReq
	if err := decodeJSON(r, &req); err != nil {
		return errors.New("bad_json")
	}
	if item, ok := g.DisplayItem(req.Name); ok {
		g.Select(item)
	}
	return nil
}

func removeItem(g *game.Game, r *http.Request) error {
	var req itemReq
	if err := decodeJSON(r, &req); err != nil {
		return errors.New("bad_json")
	}
	g.Remove(req.Name)
	return nil
}
