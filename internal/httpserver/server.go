// internal/httpserver/server.go
//
// HTTP server wiring for the memory game host.
// Responsibilities:
//   - Router + middleware (CORS, timeouts, panic recovery, request IDs, JSON).
//   - Public endpoints: "/", "/health", "/levels".
//   - Game endpoints (optional auth): /game/new, /game/{id}/... and its event stream.
//   - History of the calling player (account or anonymous cookie) and its stream.
//   - Sound settings of the host.
//   - Account endpoints under /auth (503 when no SQL backend is configured).
//
// Notes:
//   - CORS is origin-aware and credentials-enabled (so cookies work).
//   - WebSocket upgrades skip the request timeout.
//   - Error bodies are always {"error": "..."}.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/mejikuhibiniu/internal/account"
	"github.com/robalobadob/mejikuhibiniu/internal/game"
	"github.com/robalobadob/mejikuhibiniu/internal/history"
	"github.com/robalobadob/mejikuhibiniu/internal/kv"
	"github.com/robalobadob/mejikuhibiniu/internal/sequence"
	"github.com/robalobadob/mejikuhibiniu/internal/settings"
	"github.com/robalobadob/mejikuhibiniu/internal/store"
)

// Options wires the server to its collaborators. Users and Tokens may be nil,
// which disables accounts.
type Options struct {
	Sessions store.Store
	History  *history.Book
	Sound    *settings.Sound
	Catalog  *sequence.Catalog
	Users    *account.Users
	Tokens   *account.Tokens

	// Cues receives every game cue on the host (e.g. the speaker player).
	Cues game.Cues
	// Scheduler drives game countdowns; nil means real time.
	Scheduler game.Scheduler

	ClientOrigin string
	CookieName   string
	AnonCookie   string
	Production   bool
}

// Server bundles the router and the game host state.
type Server struct {
	r        *chi.Mux
	opts     Options
	http     *http.Server
	upgrader *websocket.Upgrader
}

// New constructs a Server, installs middleware, and registers routes.
func New(opts Options) *Server {
	if opts.Sessions == nil {
		opts.Sessions = store.NewMemoryStore()
	}
	if opts.History == nil {
		opts.History = history.NewBook(kv.NewMemoryStore())
	}
	if opts.Catalog == nil {
		opts.Catalog = sequence.Default()
	}
	if opts.Sound == nil {
		opts.Sound = settings.LoadSound(nil)
	}
	if opts.ClientOrigin == "" {
		opts.ClientOrigin = "http://localhost:5173"
	}
	if opts.CookieName == "" {
		opts.CookieName = "mejikuhibiniu_token"
	}
	if opts.AnonCookie == "" {
		opts.AnonCookie = "mejikuhibiniu_anon"
	}
	s := &Server{r: chi.NewRouter(), opts: opts}
	s.upgrader = s.newUpgrader()

	// --- middleware ---
	s.r.Use(chimw.RequestID) // add X-Request-ID
	s.r.Use(chimw.RealIP)    // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(chimw.Recoverer) // recover from panics
	s.r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{opts.ClientOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	s.r.Use(s.withOptionalAuth)
	s.r.Use(timeoutUnlessStream(10 * time.Second)) // bound handler time
	s.r.Use(jsonContentType)                       // default JSON responses

	// --- diagnostics ---
	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"service":   "mejikuhibiniu",
			"endpoints": []string{"/health", "/levels", "POST /game/new", "/game/{id}", "/history", "/settings/sound", "/auth/*"},
		})
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "games": s.opts.Sessions.Len()})
	})
	s.r.Get("/levels", s.handleLevels)

	s.mountGameRoutes(s.r)
	s.mountHistoryRoutes(s.r)
	s.mountSettingsRoutes(s.r)
	s.mountAuthRoutes(s.r)

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "path": r.URL.Path})
	})

	return s
}

// Start begins serving HTTP on addr. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.http.ListenAndServe()
}

// Shutdown stops accepting requests and closes every live game.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.http != nil {
		err = s.http.Shutdown(ctx)
	}
	if n, expErr := s.opts.Sessions.Expire(ctx, time.Now().Add(time.Hour)); expErr != nil {
		log.Warn().Err(expErr).Msg("close sessions")
	} else if n > 0 {
		log.Info().Int("count", n).Msg("closed live games")
	}
	return err
}

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// timeoutUnlessStream bounds ordinary requests; WebSocket upgrades are
// long-lived and pass through untouched.
func timeoutUnlessStream(d time.Duration) func(http.Handler) http.Handler {
	timeout := chimw.Timeout(d)
	return func(next http.Handler) http.Handler {
		bounded := timeout(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if websocket.IsWebSocketUpgrade(r) {
				next.ServeHTTP(w, r)
				return
			}
			bounded.ServeHTTP(w, r)
		})
	}
}

// ------------------------------ helpers ------------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads an optional JSON body into v. An empty body is not an error.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
