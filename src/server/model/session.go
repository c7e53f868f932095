package model

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/apimgr/weatherdash/src/database"
)

// Session represents a logged-in session. The ID is the token's jti.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionModel handles session database operations
type SessionModel struct {
	DB *database.DB
}

const maxUserAgentLen = 255

// truncateUTF8 cuts s to at most n bytes without splitting a rune
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Create stores a new session for userID valid for ttl
func (m *SessionModel) Create(ctx context.Context, userID, ip, userAgent string, ttl time.Duration) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, database.TimeoutWrite)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Second)
	userAgent = truncateUTF8(userAgent, maxUserAgentLen)
	s := &Session{
		ID:        NewID(),
		UserID:    userID,
		IPAddress: ip,
		UserAgent: userAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	_, err := m.DB.ExecContext(ctx, m.DB.Rebind(`
		INSERT INTO sessions (id, user_id, ip_address, user_agent, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), s.ID, s.UserID, s.IPAddress, s.UserAgent, toUnix(s.CreatedAt), toUnix(s.ExpiresAt))
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return s, nil
}

// Get retrieves a session by ID
func (m *SessionModel) Get(ctx context.Context, id string) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, database.TimeoutSimpleSelect)
	defer cancel()

	var (
		s                    Session
		createdAt, expiresAt int64
	)
	err := m.DB.QueryRowContext(ctx, m.DB.Rebind(`
		SELECT id, user_id, ip_address, user_agent, created_at, expires_at
		FROM sessions WHERE id = ?
	`), id).Scan(&s.ID, &s.UserID, &s.IPAddress, &s.UserAgent, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	s.CreatedAt = fromUnix(createdAt)
	s.ExpiresAt = fromUnix(expiresAt)
	return &s, nil
}

// Delete removes a session (logout). Deleting a missing session is not an error.
func (m *SessionModel) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, database.TimeoutWrite)
	defer cancel()

	if _, err := m.DB.ExecContext(ctx, m.DB.Rebind(`DELETE FROM sessions WHERE id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired removes sessions that expired before now and returns how many
func (m *SessionModel) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, database.TimeoutWrite)
	defer cancel()

	res, err := m.DB.ExecContext(ctx, m.DB.Rebind(`DELETE FROM sessions WHERE expires_at <= ?`), toUnix(now))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CountActive returns the number of unexpired sessions
func (m *SessionModel) CountActive(ctx context.Context, now time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, database.TimeoutSimpleSelect)
	defer cancel()

	var n int
	err := m.DB.QueryRowContext(ctx, m.DB.Rebind(`SELECT COUNT(*) FROM sessions WHERE expires_at > ?`), toUnix(now)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}
