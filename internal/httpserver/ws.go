// internal/httpserver/ws.go
//
// WebSocket event streams.
//   GET /game/{id}/ws : {"type":"state"|"cue", "cue"?, "state"} for every change
//                       of the game, starting with the current snapshot.
//   GET /history/ws   : {"history", "stats"} for the calling player, on connect
//                       and after every history change.
//
// Streams are server-to-client only; inbound messages are read and discarded so
// close frames and pings are handled. A slow client loses events rather than
// blocking the game.
//
// Browsers send cookies on cross-site WebSocket handshakes and CORS does not
// apply to them, so the handshake Origin must be the client origin or the
// host itself. Requests without an Origin (non-browser clients) pass.

package httpserver

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/mejikuhibiniu/internal/game"
)

const (
	writeWait  = 5 * time.Second
	streamSize = 32
)

func (s *Server) newUpgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.allowOrigin,
	}
}

func (s *Server) allowOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || strings.EqualFold(origin, s.opts.ClientOrigin) {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if !strings.EqualFold(u.Host, r.Host) {
		log.Warn().Str("origin", origin).Str("path", r.URL.Path).Msg("websocket origin rejected")
		return false
	}
	return true
}

func (s *Server) handleGameWS(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.opts.Sessions.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("gameId", id).Msg("websocket upgrade")
		return
	}
	defer conn.Close()

	out := make(chan any, streamSize)
	out <- game.Event{Type: game.EventState, State: sess.Game.Snapshot()}
	unsubscribe := sess.Game.Subscribe(func(e game.Event) { offer(out, e, id) })
	defer unsubscribe()

	log.Debug().Str("gameId", id).Msg("game stream connected")
	pump(conn, out)
	log.Debug().Str("gameId", id).Msg("game stream disconnected")
}

func (s *Server) handleHistoryWS(w http.ResponseWriter, r *http.Request) {
	owner := s.owner(w, r)
	hl := s.opts.History.For(owner)

	// a freshly issued anon cookie has to ride on the handshake
	conn, err := s.upgrader.Upgrade(w, r, http.Header{"Set-Cookie": w.Header().Values("Set-Cookie")})
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade")
		return
	}
	defer conn.Close()

	view := func() historyView {
		return historyView{History: hl.GetHistory(), Stats: hl.GetStats()}
	}
	out := make(chan any, streamSize)
	out <- view()
	unsubscribe := hl.Subscribe(func() { offer(out, view(), owner) })
	defer unsubscribe()

	pump(conn, out)
}

// offer queues v without blocking the notifier.
func offer(out chan<- any, v any, stream string) {
	select {
	case out <- v:
	default:
		log.Debug().Str("stream", stream).Msg("client too slow, dropping event")
	}
}

// pump writes queued values until the client goes away.
func pump(conn *websocket.Conn, out <-chan any) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug().Err(err).Msg("websocket read")
				}
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case v := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(v); err != nil {
				log.Debug().Err(err).Msg("websocket write")
				return
			}
		}
	}
}
