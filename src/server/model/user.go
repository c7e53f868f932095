package model

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/apimgr/weatherdash/src/database"
)

// User represents a registered dashboard account
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// ErrDuplicateEmail is returned when an email is already registered
var ErrDuplicateEmail = errors.New("email already registered")

// UserModel handles user database operations
type UserModel struct {
	DB *database.DB
}

// Create inserts a new user. Email must already be normalised.
func (m *UserModel) Create(ctx context.Context, email, passwordHash string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, database.TimeoutWrite)
	defer cancel()

	if _, err := m.GetByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	user := &User{
		ID:           NewID(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}

	_, err := m.DB.ExecContext(ctx, m.DB.Rebind(`
		INSERT INTO users (id, email, password_hash, created_at)
		VALUES (?, ?, ?, ?)
	`), user.ID, user.Email, user.PasswordHash, toUnix(user.CreatedAt))
	if err != nil {
		// a concurrent registration can still lose the UNIQUE race
		if _, lookupErr := m.GetByEmail(ctx, email); lookupErr == nil {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// GetByEmail retrieves a user by email
func (m *UserModel) GetByEmail(ctx context.Context, email string) (*User, error) {
	return m.getOne(ctx, "email", email)
}

// GetByID retrieves a user by ID
func (m *UserModel) GetByID(ctx context.Context, id string) (*User, error) {
	return m.getOne(ctx, "id", id)
}

func (m *UserModel) getOne(ctx context.Context, column, value string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, database.TimeoutSimpleSelect)
	defer cancel()

	var (
		user      User
		createdAt int64
		lastLogin sql.NullInt64
	)
	err := m.DB.QueryRowContext(ctx, m.DB.Rebind(`
		SELECT id, email, password_hash, created_at, last_login_at
		FROM users WHERE `+column+` = ?
	`), value).Scan(&user.ID, &user.Email, &user.PasswordHash, &createdAt, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.CreatedAt = fromUnix(createdAt)
	if lastLogin.Valid {
		t := fromUnix(lastLogin.Int64)
		user.LastLoginAt = &t
	}
	return &user, nil
}

// TouchLogin records a successful login time
func (m *UserModel) TouchLogin(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, database.TimeoutWrite)
	defer cancel()

	_, err := m.DB.ExecContext(ctx, m.DB.Rebind(`UPDATE users SET last_login_at = ? WHERE id = ?`), toUnix(at), id)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// Count returns the number of registered users
func (m *UserModel) Count(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, database.TimeoutSimpleSelect)
	defer cancel()

	var n int
	if err := m.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}
