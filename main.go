// main.go
//
// Entry point of the Mejikuhibiniu game host.
// Startup order:
//   1. .env + logging
//   2. config, catalog
//   3. key-value store (history, sound settings) and, on SQL backends, accounts
//   4. sound output, session registry, idle-session janitor
//   5. HTTP server, stopped gracefully on SIGINT/SIGTERM

package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/mejikuhibiniu/internal/account"
	"github.com/robalobadob/mejikuhibiniu/internal/cleanup"
	"github.com/robalobadob/mejikuhibiniu/internal/config"
	"github.com/robalobadob/mejikuhibiniu/internal/game"
	"github.com/robalobadob/mejikuhibiniu/internal/history"
	"github.com/robalobadob/mejikuhibiniu/internal/httpserver"
	"github.com/robalobadob/mejikuhibiniu/internal/kv"
	"github.com/robalobadob/mejikuhibiniu/internal/sequence"
	"github.com/robalobadob/mejikuhibiniu/internal/settings"
	"github.com/robalobadob/mejikuhibiniu/internal/sound"
	"github.com/robalobadob/mejikuhibiniu/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg.Log)

	if cfg.Catalog != "" {
		log.Info().Str("file", cfg.Catalog).Msg("loading catalog")
	}
	catalog, err := sequence.Load(cfg.Catalog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load catalog")
	}

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	kvStore, err := kv.Open(initCtx, cfg.Store)
	initCancel()
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open store")
	}
	defer kvStore.Close()
	log.Info().Str("driver", cfg.Store.Driver).Msg("store ready")

	var users *account.Users
	var tokens *account.Tokens
	if db, dialect := sqlHandle(kvStore); db != nil {
		users = account.NewUsers(db, dialect)
		tokens = account.NewTokens(cfg.Auth.Secret, cfg.Auth.TTL)
	} else {
		log.Info().Msg("accounts disabled (no SQL backend)")
	}

	soundPrefs := settings.LoadSound(kvStore)
	cues, closeSound := soundOutput(cfg.Sound, soundPrefs)
	defer closeSound()

	sessions := store.NewMemoryStore()
	logs := history.NewBook(kvStore)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cleanup.NewCleaner(sessions, logs, cfg.Cleanup.Idle, cfg.Cleanup.Interval).Start(ctx)

	srv := httpserver.New(httpserver.Options{
		Sessions:     sessions,
		History:      logs,
		Sound:        soundPrefs,
		Catalog:      catalog,
		Users:        users,
		Tokens:       tokens,
		Cues:         cues,
		ClientOrigin: cfg.Server.ClientOrigin,
		CookieName:   cfg.Auth.CookieName,
		AnonCookie:   cfg.Auth.AnonCookie,
		Production:   cfg.Server.Production,
	})

	errc := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting game host")
		errc <- srv.Start(cfg.Addr())
	}()

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server exited")
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed")
		}
	}
}

func setupLogging(c config.LogConfig) {
	if lvl, err := zerolog.ParseLevel(c.Level); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if c.Console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

// sqlHandle exposes the database behind SQL-backed stores for the users table.
func sqlHandle(s kv.Store) (*sql.DB, string) {
	switch st := s.(type) {
	case *kv.SQLite:
		return st.DB(), account.SQLite
	case *kv.Postgres:
		return st.DB(), account.Postgres
	}
	return nil, ""
}

// traceCues logs every cue at trace level.
var traceCues = game.CueFunc(func(c game.Cue) {
	log.Trace().Str("cue", c.String()).Msg("cue")
})

// soundOutput builds the host-side cue receiver.
func soundOutput(mode string, prefs *settings.Sound) (game.Cues, func()) {
	if mode != config.SoundSpeaker {
		return traceCues, func() {}
	}
	spk := sound.NewSpeaker()
	if err := spk.Init(); err != nil {
		log.Warn().Err(err).Msg("audio device unavailable, cues muted")
		return traceCues, func() {}
	}
	log.Info().Msg("speaker output enabled")
	return sound.Multi{sound.NewPlayer(prefs, spk), traceCues}, spk.Close
}
