package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/apimgr/weatherdash/src/config"
	"github.com/apimgr/weatherdash/src/server/metrics"
	"github.com/apimgr/weatherdash/src/server/model"
	"github.com/apimgr/weatherdash/src/utils"
	"github.com/golang-jwt/jwt/v5"
)

// tokenIssuer is the iss claim on every session token
const tokenIssuer = "weatherdash"

// LoginResult is returned by a successful login
type LoginResult struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *model.User `json:"user"`
}

// AuthService manages accounts and sessions. Session tokens are HS256
// JWTs whose jti is the session row ID, so logout is immediate.
type AuthService struct {
	users    *model.UserModel
	sessions *model.SessionModel
	logger   *utils.Logger

	secret       []byte
	ttl          time.Duration
	minPassword  int
	argon2Params utils.Argon2Params
	now          func() time.Time
	verify       func(password, hash string) (bool, error)

	// unknown emails are checked against this so they cost the same as
	// a wrong password
	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates the auth service
func NewAuthService(cfg config.AuthConfig, users *model.UserModel, sessions *model.SessionModel, logger *utils.Logger) *AuthService {
	if logger == nil {
		logger = utils.NewDiscardLogger()
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	minPassword := cfg.MinPasswordLength
	if minPassword <= 0 {
		minPassword = 8
	}
	return &AuthService{
		users:        users,
		sessions:     sessions,
		logger:       logger,
		secret:       []byte(cfg.JWTSecret),
		ttl:          ttl,
		minPassword:  minPassword,
		argon2Params: utils.DefaultArgon2Params,
		now:          time.Now,
		verify:       utils.VerifyPassword,
	}
}

// SetArgon2Params overrides the hashing cost, mainly for tests
func (s *AuthService) SetArgon2Params(p utils.Argon2Params) {
	s.argon2Params = p
	s.dummyOnce = sync.Once{}
	s.dummyHash = ""
}

func (s *AuthService) unknownUserHash() string {
	s.dummyOnce.Do(func() {
		hash, err := utils.HashPasswordWithParams("weatherdash-no-such-user", s.argon2Params)
		if err != nil {
			s.logger.Error("Failed to prepare dummy password hash: %v", err)
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

// NormalizeEmail lowercases and trims an address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account
func (s *AuthService) Register(ctx context.Context, email, password, confirm string) (*model.User, error) {
	email = NormalizeEmail(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		metrics.RecordAuthAttempt("register", "invalid")
		return nil, ErrInvalidEmail
	}
	if password != confirm {
		metrics.RecordAuthAttempt("register", "invalid")
		return nil, ErrPasswordMismatch
	}
	if len(password) < s.minPassword {
		metrics.RecordAuthAttempt("register", "invalid")
		return nil, fmt.Errorf("%w: minimum %d characters", ErrWeakPassword, s.minPassword)
	}

	hash, err := utils.HashPasswordWithParams(password, s.argon2Params)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.users.Create(ctx, email, hash)
	if err != nil {
		if errors.Is(err, model.ErrDuplicateEmail) {
			metrics.RecordAuthAttempt("register", "duplicate")
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	metrics.RecordAuthAttempt("register", "success")
	metrics.UsersTotal.Inc()
	s.logger.Info("User registered: %s", user.ID)
	return user, nil
}

// Login verifies credentials and opens a session
func (s *AuthService) Login(ctx context.Context, email, password, ip, userAgent string) (*LoginResult, error) {
	email = NormalizeEmail(email)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			s.verify(password, s.unknownUserHash())
			metrics.RecordAuthAttempt("login", "failure")
			s.logger.Security(ip, "login_failed", "unknown email")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := s.verify(password, user.PasswordHash)
	if err != nil || !ok {
		metrics.RecordAuthAttempt("login", "failure")
		s.logger.Security(ip, "login_failed", "user="+user.ID)
		return nil, ErrInvalidCredentials
	}

	session, err := s.sessions.Create(ctx, user.ID, ip, userAgent, s.ttl)
	if err != nil {
		return nil, err
	}

	token, err := s.sign(user.ID, session)
	if err != nil {
		s.sessions.Delete(ctx, session.ID)
		return nil, err
	}

	now := s.now()
	if err := s.users.TouchLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("Failed to update last login for %s: %v", user.ID, err)
	}
	user.LastLoginAt = &now

	metrics.RecordAuthAttempt("login", "success")
	metrics.AuthSessionsActive.Inc()
	return &LoginResult{Token: token, ExpiresAt: session.ExpiresAt, User: user}, nil
}

func (s *AuthService) sign(userID string, session *model.Session) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   userID,
		ID:        session.ID,
		IssuedAt:  jwt.NewNumericDate(session.CreatedAt),
		ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *AuthService) parse(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionNotFound, err)
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, ErrSessionNotFound
	}
	return claims, nil
}

// Authenticate resolves a session token to its user
func (s *AuthService) Authenticate(ctx context.Context, token string) (*model.User, *model.Session, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, nil, err
	}

	session, err := s.sessions.Get(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, err
	}
	if session.UserID != claims.Subject || session.Expired(s.now()) {
		return nil, nil, ErrSessionNotFound
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, err
	}
	return user, session, nil
}

// Logout ends the session named by token. Unknown, expired or malformed
// tokens are not an error.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return nil
	}
	if _, err := s.sessions.Get(ctx, claims.ID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		return err
	}
	if err := s.sessions.Delete(ctx, claims.ID); err != nil {
		return err
	}
	metrics.AuthSessionsActive.Dec()
	return nil
}

// PurgeExpired deletes expired sessions and refreshes the session gauges
func (s *AuthService) PurgeExpired(ctx context.Context) (int64, error) {
	now := s.now()
	n, err := s.sessions.DeleteExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	if active, err := s.sessions.CountActive(ctx, now); err == nil {
		metrics.AuthSessionsActive.Set(float64(active))
	}
	if users, err := s.users.Count(ctx); err == nil {
		metrics.UsersTotal.Set(float64(users))
	}
	return n, nil
}
