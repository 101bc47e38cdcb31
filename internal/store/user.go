package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/scriptmark/scriptmark/internal/model"
)

// sessionTTL is how long a login lasts.
const sessionTTL = 24 * time.Hour

// CreateUser inserts a user with a bcrypt-hashed password.
func (s *Store) CreateUser(username, displayName, password string, role model.UserRole) (int64, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}
	res, err := s.db.Exec(`
		INSERT INTO users (username, display_name, password_hash, role) VALUES (?, ?, ?, ?)`,
		username, displayName, string(hash), string(role))
	if err != nil {
		return 0, fmt.Errorf("create user %s: %w", username, err)
	}
	return res.LastInsertId()
}

// GetUserByUsername returns (nil, nil) when the user does not exist.
func (s *Store) GetUserByUsername(username string) (*model.User, error) {
	u := &model.User{}
	var role string
	err := s.db.QueryRow(`
		SELECT id, username, display_name, password_hash, role, active, created_at
		FROM users WHERE username = ?`,
		username).Scan(&u.ID, &u.Username, &u.DisplayName, &u.PasswordHash, &role, &u.Active, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", username, err)
	}
	u.Role = model.UserRole(role)
	return u, nil
}

// Authenticate checks credentials and returns the user, or (nil, nil)
// when the username or password is wrong or the account is disabled.
func (s *Store) Authenticate(username, password string) (*model.User, error) {
	u, err := s.GetUserByUsername(username)
	if err != nil || u == nil {
		return nil, err
	}
	if !u.Active {
		return nil, nil
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, nil
	}
	return u, nil
}

// CountUsers reports how many users exist; used to decide whether to
// seed the initial admin.
func (s *Store) CountUsers() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// CreateSession issues a new session token for the user.
func (s *Store) CreateSession(userID int64) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	token := hex.EncodeToString(raw)

	_, err := s.db.Exec(`
		INSERT INTO auth_sessions (token, user_id, expires_at) VALUES (?, ?, ?)`,
		token, userID, time.Now().UTC().Add(sessionTTL))
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return token, nil
}

// UserBySession resolves a session token to its user. Expired or
// unknown tokens return (nil, nil).
func (s *Store) UserBySession(token string) (*model.User, error) {
	u := &model.User{}
	var role string
	err := s.db.QueryRow(`
		SELECT u.id, u.username, u.display_name, u.password_hash, u.role, u.active, u.created_at
		FROM auth_sessions a JOIN users u ON u.id = a.user_id
		WHERE a.token = ? AND a.expires_at > ? AND u.active = 1`,
		token, time.Now().UTC()).Scan(&u.ID, &u.Username, &u.DisplayName, &u.PasswordHash, &role, &u.Active, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	u.Role = model.UserRole(role)
	return u, nil
}

// DeleteSession logs a session out. Unknown tokens are not an error.
func (s *Store) DeleteSession(token string) error {
	if _, err := s.db.Exec(`DELETE FROM auth_sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// PurgeExpiredSessions removes stale sessions.
func (s *Store) PurgeExpiredSessions() error {
	if _, err := s.db.Exec(`DELETE FROM auth_sessions WHERE expires_at <= ?`, time.Now().UTC()); err != nil {
		return fmt.Errorf("purge sessions: %w", err)
	}
	return nil
}
