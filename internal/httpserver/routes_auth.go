// internal/httpserver/routes_auth.go
//
// Accounts and player identity.
//   - Every request may carry a JWT (Authorization: Bearer or auth cookie);
//     withOptionalAuth decorates the context when it is valid and never 401s.
//   - Guests get a long-lived anonymous cookie; its ID selects their history.
//   - Signup/login move the guest history into the account.
//   - Without a SQL backend the /auth routes answer 503.

package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/mejikuhibiniu/internal/account"
)

// authUser is placed into request context by withOptionalAuth.
type authUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// ctxUserKey is the context key type for storing authUser.
type ctxUserKey struct{}

type credentialsReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func currentUser(r *http.Request) *authUser {
	u, _ := r.Context().Value(ctxUserKey{}).(*authUser)
	return u
}

func (s *Server) accountsEnabled() bool {
	return s.opts.Users != nil && s.opts.Tokens != nil
}

// mountAuthRoutes registers /auth/*.
func (s *Server) mountAuthRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Use(s.requireAccounts)
		r.Post("/signup", s.handleSignup)
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)
		r.Get("/me", func(w http.ResponseWriter, r *http.Request) {
			me := currentUser(r)
			if me == nil {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			writeJSON(w, http.StatusOK, me)
		})
	})
}

func (s *Server) requireAccounts(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.accountsEnabled() {
			writeError(w, http.StatusServiceUnavailable, "accounts_unavailable")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleSignup creates a new user, signs a JWT, sets the auth cookie and
// claims the guest history and live games.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var body credentialsReq
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	u, err := s.opts.Users.Create(r.Context(), body.Username, body.Password)
	if errors.Is(err, account.ErrUsernameTaken) {
		writeError(w, http.StatusConflict, "Username taken")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.startSession(w, r, u)
}

// handleLogin authenticates the user, sets the cookie and claims the guest history.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body credentialsReq
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	u, err := s.opts.Users.Authenticate(r.Context(), body.Username, body.Password)
	if errors.Is(err, account.ErrBadPassword) {
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("login lookup")
		writeError(w, http.StatusInternalServerError, "login_failed")
		return
	}
	s.startSession(w, r, u)
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, u *account.User) {
	tok, exp, err := s.opts.Tokens.Sign(u)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "sign_failed")
		return
	}
	s.setCookie(w, s.opts.CookieName, tok, exp)
	if c, err := r.Cookie(s.opts.AnonCookie); err == nil && c.Value != "" {
		if n, err := s.opts.Sessions.Reassign(r.Context(), c.Value, u.ID); err != nil {
			log.Warn().Err(err).Msg("reassign guest games")
		} else if n > 0 {
			log.Debug().Int("games", n).Str("user", u.ID).Msg("guest games reassigned")
		}
		s.opts.History.Claim(c.Value, u.ID)
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": u.ID, "username": u.Username, "token": tok})
}

// handleLogout clears the auth cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.setCookie(w, s.opts.CookieName, "", time.Time{})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// --------------------------- optional auth ---------------------------------

// withOptionalAuth decorates requests with user context if a valid JWT is present.
func (s *Server) withOptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.accountsEnabled() {
			if tok := s.bearerOrCookie(r); tok != "" {
				if c, err := s.opts.Tokens.Parse(tok); err == nil {
					if u, err := s.opts.Users.ByID(r.Context(), c.ID); err == nil {
						ctx := context.WithValue(r.Context(), ctxUserKey{}, &authUser{ID: u.ID, Username: u.Username})
						r = r.WithContext(ctx)
					}
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// owner identifies the player behind r: the account ID when logged in,
// otherwise the anonymous cookie (issued on first use).
func (s *Server) owner(w http.ResponseWriter, r *http.Request) string {
	if me := currentUser(r); me != nil {
		return me.ID
	}
	return s.ensureAnonID(w, r)
}

// ensureAnonID returns an existing anon cookie or sets a new one.
func (s *Server) ensureAnonID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(s.opts.AnonCookie); err == nil && c.Value != "" {
		return c.Value
	}
	id := "anon-" + uuid.NewString()
	s.setCookie(w, s.opts.AnonCookie, id, time.Now().Add(180*24*time.Hour))
	// later reads within the same request see the new ID
	r.AddCookie(&http.Cookie{Name: s.opts.AnonCookie, Value: id})
	return id
}

// setCookie writes an HttpOnly cookie; a zero exp deletes it.
func (s *Server) setCookie(w http.ResponseWriter, name, value string, exp time.Time) {
	sameSite := http.SameSiteLaxMode
	if s.opts.Production {
		sameSite = http.SameSiteNoneMode // required for third-party contexts when Secure
	}
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.opts.Production,
		SameSite: sameSite,
		Expires:  exp,
	}
	if exp.IsZero() {
		c.MaxAge = -1
	}
	http.SetCookie(w, c)
}

// bearerOrCookie extracts a bearer token from Authorization header or auth cookie.
func (s *Server) bearerOrCookie(r *http.Request) string {
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	if c, err := r.Cookie(s.opts.CookieName); err == nil {
		return c.Value
	}
	return ""
}
