// internal/httpserver/routes_history.go
//
// Per-player history, host sound settings and the level table.
//   GET    /history          entries of the calling player, newest first
//   GET    /history/stats    totals and win rate
//   DELETE /history          clear
//   GET    /history/ws       live view (see ws.go)
//   GET    /settings/sound   {enabled, volume}
//   PUT    /settings/sound   {enabled?, volume?}
//   GET    /levels           {default, levels, items}

package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/robalobadob/mejikuhibiniu/internal/history"
	"github.com/robalobadob/mejikuhibiniu/internal/sequence"
)

func (s *Server) mountHistoryRoutes(r chi.Router) {
	r.Get("/history", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.historyOf(w, r).GetHistory())
	})
	r.Get("/history/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.historyOf(w, r).GetStats())
	})
	r.Get("/history/ws", s.handleHistoryWS)
	r.Delete("/history", func(w http.ResponseWriter, r *http.Request) {
		s.historyOf(w, r).ClearHistory()
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
}

// historyOf returns the log of the calling player.
func (s *Server) historyOf(w http.ResponseWriter, r *http.Request) *history.Log {
	return s.opts.History.For(s.owner(w, r))
}

// historyView is pushed on the history stream.
type historyView struct {
	History []history.Entry `json:"history"`
	Stats   history.Stats   `json:"stats"`
}

// soundReq is a partial update; absent fields keep their value.
type soundReq struct {
	Enabled *bool    `json:"enabled"`
	Volume  *float64 `json:"volume"`
}

func (s *Server) mountSettingsRoutes(r chi.Router) {
	r.Get("/settings/sound", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.opts.Sound.View())
	})
	r.Put("/settings/sound", func(w http.ResponseWriter, r *http.Request) {
		var req soundReq
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_json")
			return
		}
		if req.Enabled != nil {
			s.opts.Sound.SetEnabled(*req.Enabled)
		}
		if req.Volume != nil {
			s.opts.Sound.SetVolume(*req.Volume)
		}
		writeJSON(w, http.StatusOK, s.opts.Sound.View())
	})
}

type levelView struct {
	Key sequence.Difficulty `json:"key"`
	sequence.Level
}

// handleLevels lists the difficulty table and the item catalog.
func (s *Server) handleLevels(w http.ResponseWriter, r *http.Request) {
	c := s.opts.Catalog
	levels := make([]levelView, 0, len(c.Levels))
	for _, d := range c.Difficulties() {
		lv, _ := c.Level(d)
		levels = append(levels, levelView{Key: d, Level: lv})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"default": c.Default,
		"levels":  levels,
		"items":   c.Items,
	})
}
