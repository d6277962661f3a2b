package httpserver

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/robalobadob/mejikuhibiniu/internal/account"
	"github.com/robalobadob/mejikuhibiniu/internal/game"
	"github.com/robalobadob/mejikuhibiniu/internal/history"
	"github.com/robalobadob/mejikuhibiniu/internal/kv"
	"github.com/robalobadob/mejikuhibiniu/internal/settings"
)

// manualScheduler hands the countdown to the test.
type manualScheduler struct {
	mu sync.Mutex
	fn func()
}

type noopTicker struct{}

func (noopTicker) Stop() {}

func (m *manualScheduler) Every(_ time.Duration, fn func()) game.Ticker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	return noopTicker{}
}

func (m *manualScheduler) fire(n int) {
	m.mu.Lock()
	fn := m.fn
	m.mu.Unlock()
	for i := 0; i < n; i++ {
		fn()
	}
}

type harness struct {
	t      *testing.T
	srv    *httptest.Server
	client *http.Client
	sched  *manualScheduler
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	sched := &manualScheduler{}
	opts.Scheduler = sched
	s := New(opts)
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)

	jar, _ := cookiejar.New(nil)
	return &harness{t: t, srv: srv, client: &http.Client{Jar: jar}, sched: sched}
}

func (h *harness) do(method, path string, body any) (int, []byte) {
	h.t.Helper()
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	if err != nil {
		h.t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := h.client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()
	out, _ := io.ReadAll(res.Body)
	return res.StatusCode, out
}

// game performs a game request that must succeed and decodes the snapshot.
func (h *harness) game(method, path string, body any) gameView {
	h.t.Helper()
	code, raw := h.do(method, path, body)
	if code != http.StatusOK {
		h.t.Fatalf("%s %s = %d %s", method, path, code, raw)
	}
	var v gameView
	if err := json.Unmarshal(raw, &v); err != nil {
		h.t.Fatalf("decode %s: %v", raw, err)
	}
	return v
}

// playRound creates an EASY game, runs the countdown and settles it,
// winning when win is set.
func (h *harness) playRound(win bool) gameView {
	h.t.Helper()
	return h.finishRound(h.game("POST", "/game/new", map[string]string{"difficulty": "EASY"}), win)
}

// finishRound runs the countdown of the EASY game v and settles it.
func (h *harness) finishRound(v gameView, win bool) gameView {
	h.t.Helper()
	h.game("POST", "/game/"+v.GameID+"/start", nil)
	h.sched.fire(16)
	if win {
		for _, it := range v.OriginalSequence {
			h.game("POST", "/game/"+v.GameID+"/select", map[string]string{"name": it.Name})
		}
	}
	return h.game("POST", "/game/"+v.GameID+"/evaluate", nil)
}

func TestGameRoundTrip(t *testing.T) {
	h := newHarness(t, Options{})

	v := h.game("POST", "/game/new", map[string]string{"difficulty": "EASY"})
	if v.GameID == "" || len(v.OriginalSequence) != 4 || v.Phase != game.PhaseMemorizing {
		t.Fatalf("new game = %+v", v)
	}
	id := v.GameID

	v = h.game("POST", "/game/"+id+"/start", nil)
	if v.Phase != game.PhaseCountingDown || v.TimerSecond != 15 || !v.TimerActive {
		t.Fatalf("after start = %+v", v)
	}

	h.sched.fire(16)
	v = h.game("GET", "/game/"+id, nil)
	if v.Phase != game.PhaseSelecting || v.SelectionStartedAt == nil {
		t.Fatalf("after countdown = %+v", v)
	}

	for _, it := range v.OriginalSequence {
		h.game("POST", "/game/"+id+"/select", map[string]string{"name": it.Name})
	}
	v = h.game("POST", "/game/"+id+"/evaluate", nil)
	if v.Result.Label != game.WinLabel || !v.Result.Settled || v.Phase != game.PhaseSettled {
		t.Fatalf("after evaluate = %+v", v.Result)
	}

	code, raw := h.do("GET", "/history", nil)
	var entries []history.Entry
	if code != http.StatusOK || json.Unmarshal(raw, &entries) != nil {
		t.Fatalf("history = %d %s", code, raw)
	}
	if len(entries) != 1 || !entries[0].Won || entries[0].Difficulty != "Mudah" || entries[0].Attempts != 4 {
		t.Fatalf("entries = %+v", entries)
	}

	code, raw = h.do("GET", "/history/stats", nil)
	var stats history.Stats
	_ = json.Unmarshal(raw, &stats)
	if code != http.StatusOK || stats.TotalGames != 1 || stats.WinRate != 100 {
		t.Fatalf("stats = %d %+v", code, stats)
	}

	if code, _ := h.do("DELETE", "/history", nil); code != http.StatusOK {
		t.Fatalf("clear = %d", code)
	}
	_, raw = h.do("GET", "/history", nil)
	if strings.TrimSpace(string(raw)) != "[]" {
		t.Fatalf("history after clear = %s", raw)
	}
}

func TestSelectIgnoresUnknownAndEarlyPicks(t *testing.T) {
	h := newHarness(t, Options{})
	v := h.game("POST", "/game/new", nil)
	if len(v.OriginalSequence) != 6 {
		t.Fatalf("default difficulty should deal 6, got %d", len(v.OriginalSequence))
	}
	id := v.GameID

	v = h.game("POST", "/game/"+id+"/select", map[string]string{"name": v.DisplaySequence[0].Name})
	if len(v.PlayerSequence) != 0 {
		t.Fatal("select during memorizing must be ignored")
	}

	h.game("POST", "/game/"+id+"/start", nil)
	h.sched.fire(11)
	v = h.game("POST", "/game/"+id+"/select", map[string]string{"name": "zz"})
	if len(v.PlayerSequence) != 0 {
		t.Fatal("unknown name must be ignored")
	}
	name := v.DisplaySequence[0].Name
	h.game("POST", "/game/"+id+"/select", map[string]string{"name": name})
	v = h.game("POST", "/game/"+id+"/select", map[string]string{"name": name})
	if len(v.PlayerSequence) != 1 {
		t.Fatalf("duplicate pick accepted: %+v", v.PlayerSequence)
	}
	v = h.game("POST", "/game/"+id+"/remove", map[string]string{"name": name})
	if len(v.PlayerSequence) != 0 {
		t.Fatal("remove did not drop the pick")
	}
}

func TestErrors(t *testing.T) {
	h := newHarness(t, Options{})

	if code, raw := h.do("GET", "/game/nope", nil); code != http.StatusNotFound || !strings.Contains(string(raw), `"error"`) {
		t.Fatalf("unknown game = %d %s", code, raw)
	}
	if code, _ := h.do("POST", "/game/nope/start", nil); code != http.StatusNotFound {
		t.Fatalf("unknown game action = %d", code)
	}
	if code, _ := h.do("POST", "/game/new", map[string]string{"difficulty": "NIGHTMARE"}); code != http.StatusBadRequest {
		t.Fatalf("unknown difficulty on create = %d", code)
	}

	v := h.game("POST", "/game/new", nil)
	if code, _ := h.do("POST", "/game/"+v.GameID+"/difficulty", map[string]string{"difficulty": "NIGHTMARE"}); code != http.StatusBadRequest {
		t.Fatalf("unknown difficulty = %d", code)
	}
	v = h.game("POST", "/game/"+v.GameID+"/difficulty", map[string]string{"difficulty": "HARD"})
	if v.Difficulty != "HARD" || len(v.OriginalSequence) != 7 || v.TimerSecond != 7 {
		t.Fatalf("after HARD = %+v", v)
	}

	if code, _ := h.do("DELETE", "/game/"+v.GameID, nil); code != http.StatusOK {
		t.Fatalf("delete = %d", code)
	}
	if code, _ := h.do("GET", "/game/"+v.GameID, nil); code != http.StatusNotFound {
		t.Fatalf("deleted game still served: %d", code)
	}
	if code, _ := h.do("GET", "/no/such/route", nil); code != http.StatusNotFound {
		t.Fatalf("unknown route = %d", code)
	}
}

func TestSoundSettings(t *testing.T) {
	store := kv.NewMemoryStore()
	h := newHarness(t, Options{Sound: settings.LoadSound(store)})

	code, raw := h.do("PUT", "/settings/sound", map[string]any{"enabled": false, "volume": 3})
	var view settings.SoundView
	_ = json.Unmarshal(raw, &view)
	if code != http.StatusOK || view.Enabled || view.Volume != 1 {
		t.Fatalf("put = %d %+v", code, view)
	}

	code, raw = h.do("PUT", "/settings/sound", map[string]any{"volume": 0.25})
	_ = json.Unmarshal(raw, &view)
	if code != http.StatusOK || view.Enabled || view.Volume != 0.25 {
		t.Fatalf("partial put = %d %+v", code, view)
	}

	reloaded := settings.LoadSound(store)
	if reloaded.Enabled() || reloaded.Volume() != 0.25 {
		t.Fatalf("settings not persisted: %+v", reloaded.View())
	}
}

func TestLevels(t *testing.T) {
	h := newHarness(t, Options{})
	code, raw := h.do("GET", "/levels", nil)
	var body struct {
		Default string      `json:"default"`
		Levels  []levelView `json:"levels"`
		Items   []struct {
			Name  string `json:"name"`
			Label string `json:"label"`
		} `json:"items"`
	}
	if code != http.StatusOK || json.Unmarshal(raw, &body) != nil {
		t.Fatalf("levels = %d %s", code, raw)
	}
	if body.Default != "MEDIUM" || len(body.Levels) != 3 || len(body.Items) != 7 {
		t.Fatalf("levels body = %+v", body)
	}
	if body.Levels[0].Key != "EASY" || body.Levels[0].DisplayName != "Mudah" || body.Items[0].Label != "Merah" {
		t.Fatalf("levels order/labels = %+v", body)
	}
}

func TestAccountsUnavailableWithoutSQL(t *testing.T) {
	h := newHarness(t, Options{})
	code, _ := h.do("POST", "/auth/signup", map[string]string{"username": "sari", "password": "rahasia123"})
	if code != http.StatusServiceUnavailable {
		t.Fatalf("signup without accounts = %d", code)
	}
}

func TestSignupClaimsGuestHistory(t *testing.T) {
	db, err := kv.OpenSQLite(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	h := newHarness(t, Options{
		History: history.NewBook(db),
		Users:   account.NewUsers(db.DB(), account.SQLite),
		Tokens:  account.NewTokens("test-secret", time.Hour),
	})

	if v := h.playRound(false); v.Result.Label != game.LoseLabel {
		t.Fatalf("expected a loss, got %+v", v.Result)
	}

	if code, raw := h.do("GET", "/auth/me", nil); code != http.StatusUnauthorized {
		t.Fatalf("me as guest = %d %s", code, raw)
	}
	code, raw := h.do("POST", "/auth/signup", map[string]string{"username": "sari", "password": "rahasia123"})
	if code != http.StatusOK {
		t.Fatalf("signup = %d %s", code, raw)
	}
	if code, _ := h.do("POST", "/auth/signup", map[string]string{"username": "SARI", "password": "rahasia123"}); code != http.StatusConflict {
		t.Fatalf("duplicate signup = %d", code)
	}

	code, raw = h.do("GET", "/auth/me", nil)
	if code != http.StatusOK || !strings.Contains(string(raw), `"sari"`) {
		t.Fatalf("me = %d %s", code, raw)
	}

	var entries []history.Entry
	_, raw = h.do("GET", "/history", nil)
	if err := json.Unmarshal(raw, &entries); err != nil || len(entries) != 1 || entries[0].Won {
		t.Fatalf("claimed history = %s", raw)
	}

	h.playRound(true)
	_, raw = h.do("GET", "/history", nil)
	_ = json.Unmarshal(raw, &entries)
	if len(entries) != 2 || !entries[0].Won {
		t.Fatalf("account history = %+v", entries)
	}

	h.do("POST", "/auth/logout", nil)
	if code, _ := h.do("GET", "/auth/me", nil); code != http.StatusUnauthorized {
		t.Fatalf("me after logout = %d", code)
	}
	if code, _ := h.do("POST", "/auth/login", map[string]string{"username": "sari", "password": "wrong-pass"}); code != http.StatusUnauthorized {
		t.Fatalf("bad login = %d", code)
	}
	if code, _ := h.do("POST", "/auth/login", map[string]string{"username": "sari", "password": "rahasia123"}); code != http.StatusOK {
		t.Fatalf("login = %d", code)
	}
}

func (h *harness) dial(path string) *websocket.Conn {
	h.t.Helper()
	conn, _, err := h.dialOrigin(path, "")
	if err != nil {
		h.t.Fatalf("dial %s: %v", path, err)
	}
	h.t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// dialOrigin opens a stream with the given Origin header (none when empty).
func (h *harness) dialOrigin(path, origin string) (*websocket.Conn, *http.Response, error) {
	d := websocket.Dialer{Jar: h.client.Jar, HandshakeTimeout: 2 * time.Second}
	var hdr http.Header
	if origin != "" {
		hdr = http.Header{"Origin": {origin}}
	}
	return d.Dial("ws"+strings.TrimPrefix(h.srv.URL, "http")+path, hdr)
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(v); err != nil {
		t.Fatalf("read: %v", err)
	}
}

func TestGameStream(t *testing.T) {
	h := newHarness(t, Options{})
	v := h.game("POST", "/game/new", nil)
	conn := h.dial("/game/" + v.GameID + "/ws")

	var ev game.Event
	readJSON(t, conn, &ev)
	if ev.Type != game.EventState || ev.State.Phase != game.PhaseMemorizing {
		t.Fatalf("initial event = %+v", ev)
	}

	h.game("POST", "/game/"+v.GameID+"/start", nil)
	readJSON(t, conn, &ev)
	if ev.Type != game.EventCue || ev.Cue != "start" {
		t.Fatalf("expected start cue, got %+v", ev)
	}
	readJSON(t, conn, &ev)
	if ev.Type != game.EventState || ev.State.Phase != game.PhaseCountingDown {
		t.Fatalf("expected countdown state, got %+v", ev)
	}

	h.sched.fire(1)
	readJSON(t, conn, &ev)
	if ev.State.TimerSecond != 9 {
		t.Fatalf("tick not streamed: %+v", ev.State)
	}
}

func TestHistoryStream(t *testing.T) {
	h := newHarness(t, Options{})
	h.do("GET", "/history", nil) // issue the anon cookie first
	conn := h.dial("/history/ws")

	var view historyView
	readJSON(t, conn, &view)
	if len(view.History) != 0 || view.Stats.TotalGames != 0 {
		t.Fatalf("initial view = %+v", view)
	}

	h.playRound(true)
	readJSON(t, conn, &view)
	if len(view.History) != 1 || view.Stats.Wins != 1 || view.Stats.WinRate != 100 {
		t.Fatalf("pushed view = %+v", view)
	}
}

func TestHealth(t *testing.T) {
	h := newHarness(t, Options{})
	h.game("POST", "/game/new", nil)
	code, raw := h.do("GET", "/health", nil)
	if code != http.StatusOK || !strings.Contains(string(raw), `"games":1`) {
		t.Fatalf("health = %d %s", code, raw)
	}
}

func TestStreamsCheckOrigin(t *testing.T) {
	h := newHarness(t, Options{ClientOrigin: "http://app.example"})
	v := h.game("POST", "/game/new", nil)

	for _, path := range []string{"/history/ws", "/game/" + v.GameID + "/ws"} {
		conn, res, err := h.dialOrigin(path, "http://evil.example")
		if err == nil {
			conn.Close()
			t.Fatalf("%s: foreign origin was upgraded", path)
		}
		if res == nil || res.StatusCode != http.StatusForbidden {
			t.Fatalf("%s: expected 403, got %v (%v)", path, res, err)
		}

		conn, _, err = h.dialOrigin(path, "http://app.example")
		if err != nil {
			t.Fatalf("%s: client origin rejected: %v", path, err)
		}
		conn.Close()
	}
}

func TestRoundStartedAsGuestRecordsToAccount(t *testing.T) {
	db, err := kv.OpenSQLite(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	h := newHarness(t, Options{
		History: history.NewBook(db),
		Users:   account.NewUsers(db.DB(), account.SQLite),
		Tokens:  account.NewTokens("test-secret", time.Hour),
	})

	v := h.game("POST", "/game/new", map[string]string{"difficulty": "EASY"})
	if code, raw := h.do("POST", "/auth/signup", map[string]string{"username": "budi", "password": "rahasia123"}); code != http.StatusOK {
		t.Fatalf("signup = %d %s", code, raw)
	}
	h.finishRound(v, true)

	var entries []history.Entry
	_, raw := h.do("GET", "/history", nil)
	if err := json.Unmarshal(raw, &entries); err != nil || len(entries) != 1 || !entries[0].Won {
		t.Fatalf("account history = %s", raw)
	}
}
