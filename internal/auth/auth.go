package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/park285/chessnerd/internal/domain"
	"github.com/park285/chessnerd/internal/obslog"
	"github.com/park285/chessnerd/internal/store"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrEmailTaken         = errors.New("email or username already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidResetToken  = errors.New("reset token is invalid or expired")
)

const resetTokenTTL = 15 * time.Minute

// Identity is the authenticated caller.
type Identity struct {
	UserID   string `json:"id"`
	Username string `json:"username"`
}

// Token is a signed session token.
type Token struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Identity  Identity  `json:"user"`
}

type claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type Service struct {
	repo      store.Repository
	resets    ResetStore
	notifier  Notifier
	resetBase string
	secret    []byte
	ttl       time.Duration
	now       func() time.Time
	cost      int
}

type Option func(*Service)

// WithResetStore overrides where password reset tokens are kept.
func WithResetStore(r ResetStore) Option { return func(s *Service) { s.resets = r } }

// WithNotifier sets how reset links reach users. The default only logs that a link was issued.
func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithResetURL is the page that receives the reset token as ?token=.
func WithResetURL(base string) Option { return func(s *Service) { s.resetBase = base } }

func WithNow(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithBcryptCost lowers the hashing cost, mostly for tests.
func WithBcryptCost(cost int) Option { return func(s *Service) { s.cost = cost } }

func NewService(repo store.Repository, secret string, ttl time.Duration, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
		cost:   bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.resets == nil {
		s.resets = NewMemoryResets()
	}
	if s.notifier == nil {
		s.notifier = LogNotifier{}
	}
	if s.ttl <= 0 {
		s.ttl = 14 * 24 * time.Hour
	}
	return s
}

// SignUp creates a user with a default profile and returns a session token.
func (s *Service) SignUp(ctx context.Context, email, password, username string) (*Token, error) {
	email = normalizeEmail(email)
	username = strings.TrimSpace(username)
	if err := validateSignUp(email, password, username); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	u := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    now,
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	prof := domain.NewProfile(u.ID, u.Username, now)
	if err := s.repo.UpsertProfile(ctx, &prof); err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	obslog.L().Info("auth_signup", zap.String("user_id", u.ID), zap.String("username", u.Username))
	return s.issue(u)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (*Token, error) {
	u, err := s.repo.UserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issue(u)
}

// RequestPasswordReset stores a one-time token for known emails and hands the link to the
// notifier. Unknown emails also report success.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if !strings.Contains(email, "@") {
		return fmt.Errorf("%w: email must contain @", ErrInvalidInput)
	}
	u, err := s.repo.UserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			obslog.L().Warn("auth_reset_lookup_error", zap.Error(err))
		}
		return nil
	}
	tok, err := randomToken()
	if err != nil {
		return fmt.Errorf("reset token: %w", err)
	}
	if err := s.resets.Put(ctx, tok, u.ID, resetTokenTTL); err != nil {
		obslog.L().Warn("auth_reset_store_error", zap.String("user_id", u.ID), zap.Error(err))
		return nil
	}
	if err := s.notifier.SendPasswordReset(ctx, u.Email, resetLink(s.resetBase, tok)); err != nil {
		obslog.L().Warn("auth_reset_notify_error", zap.String("user_id", u.ID), zap.Error(err))
		return nil
	}
	obslog.L().Info("auth_reset_requested", zap.String("user_id", u.ID))
	return nil
}

// ConfirmPasswordReset consumes token and sets a new password. A token works once.
func (s *Service) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidResetToken
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	userID, err := s.resets.Take(ctx, token)
	if err != nil {
		if errors.Is(err, ErrInvalidResetToken) {
			return err
		}
		return fmt.Errorf("take reset token: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.UpdatePassword(ctx, userID, string(hash)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return fmt.Errorf("update password: %w", err)
	}
	obslog.L().Info("auth_reset_confirmed", zap.String("user_id", userID))
	return nil
}

// Verify parses a token and returns its identity.
func (s *Service) Verify(token string) (Identity, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid || c.Subject == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: c.Subject, Username: c.Username}, nil
}

func (s *Service) issue(u *domain.User) (*Token, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := t.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Token{Value: signed, ExpiresAt: exp, Identity: Identity{UserID: u.ID, Username: u.Username}}, nil
}

func normalizeEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

func validateSignUp(email, password, username string) error {
	if !strings.Contains(email, "@") {
		return fmt.Errorf("%w: email must contain @", ErrInvalidInput)
	}
	if len(username) < 3 || len(username) > 24 {
		return fmt.Errorf("%w: username must be 3-24 chars", ErrInvalidInput)
	}
	for _, r := range username {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return fmt.Errorf("%w: username: letters, numbers, underscore only", ErrInvalidInput)
		}
	}
	return validatePassword(password)
}

func validatePassword(password string) error {
	if len(password) < 8 || len(password) > 100 {
		return fmt.Errorf("%w: password must be 8-100 chars", ErrInvalidInput)
	}
	return nil
}

func randomToken() (string, error) {
	var b [24]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
