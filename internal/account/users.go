// internal/account/users.go
//
// Player accounts stored in the users table of the SQL backend.
// Responsibilities:
//   - Signup validation, uniqueness and bcrypt hashing.
//   - Lookup by username (case-insensitive) or ID.
//   - Password checks for login.
//
// The same queries run on SQLite and Postgres; placeholders are written with
// '?' and rebound to $n for Postgres.

package account

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUsernameTaken = errors.New("username taken")
	ErrNotFound      = errors.New("user not found")
	ErrBadPassword   = errors.New("invalid username or password")
)

// Dialects understood by Users.
const (
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// User is a row of the users table.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Users is the account repository.
type Users struct {
	db      *sql.DB
	dialect string
}

// NewUsers wraps db; dialect selects the placeholder style.
func NewUsers(db *sql.DB, dialect string) *Users {
	return &Users{db: db, dialect: dialect}
}

// Create validates input, checks uniqueness, hashes the password and inserts
// a new user.
func (u *Users) Create(ctx context.Context, username, pw string) (*User, error) {
	username = normalizeUsername(username)
	if err := validateSignup(username, pw); err != nil {
		return nil, err
	}
	var exists int
	err := u.db.QueryRowContext(ctx, u.rebind(`SELECT 1 FROM users WHERE lower(username)=lower(?)`), username).Scan(&exists)
	switch {
	case err == nil:
		return nil, ErrUsernameTaken
	case !errors.Is(err, sql.ErrNoRows):
		return nil, err
	}

	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	usr := &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(h),
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	if _, err := u.db.ExecContext(ctx, u.rebind(`INSERT INTO users (id, username, password_hash, created_at) VALUES (?,?,?,?)`),
		usr.ID, usr.Username, usr.PasswordHash, usr.CreatedAt.Format(time.RFC3339)); err != nil {
		return nil, err
	}
	return usr, nil
}

// ByUsername loads a user by case-insensitive username.
func (u *Users) ByUsername(ctx context.Context, username string) (*User, error) {
	row := u.db.QueryRowContext(ctx, u.rebind(`SELECT id, username, password_hash, created_at
	                      FROM users WHERE lower(username)=lower(?)`), normalizeUsername(username))
	return scanUser(row)
}

// ByID loads a user by ID.
func (u *Users) ByID(ctx context.Context, id string) (*User, error) {
	row := u.db.QueryRowContext(ctx, u.rebind(`SELECT id, username, password_hash, created_at
	                      FROM users WHERE id=?`), id)
	return scanUser(row)
}

// Authenticate returns the user when username and password match.
func (u *Users) Authenticate(ctx context.Context, username, pw string) (*User, error) {
	usr, err := u.ByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrBadPassword
	}
	if err != nil {
		return nil, err
	}
	if !checkPassword(usr.PasswordHash, pw) {
		return nil, ErrBadPassword
	}
	return usr, nil
}

// rebind rewrites '?' placeholders for the configured dialect.
func (u *Users) rebind(q string) string {
	if u.dialect != Postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// scanUser converts a *sql.Row into a User.
func scanUser(row *sql.Row) (*User, error) {
	var usr User
	var created string
	if err := row.Scan(&usr.ID, &usr.Username, &usr.PasswordHash, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	usr.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &usr, nil
}

// checkPassword is a bcrypt verifier.
func checkPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// normalizeUsername trims whitespace.
func normalizeUsername(u string) string {
	return strings.TrimSpace(u)
}

// validateSignup enforces basic username/password rules.
func validateSignup(u, p string) error {
	if len(u) < 3 || len(u) > 24 {
		return errors.New("username must be 3-24 chars")
	}
	for _, r := range u {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return errors.New("username: letters, numbers, underscore only")
		}
	}
	if len(p) < 8 || len(p) > 72 {
		return errors.New("password must be 8-72 chars")
	}
	return nil
}
