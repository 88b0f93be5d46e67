package auth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/chessnerd/internal/obslog"
)

// ResetStore keeps one-time password reset tokens.
type ResetStore interface {
	Put(ctx context.Context, token, userID string, ttl time.Duration) error
	// Take returns the user bound to token and deletes it. Unknown or expired tokens yield
	// ErrInvalidResetToken.
	Take(ctx context.Context, token string) (string, error)
}

type redisResets struct{ rdb *redis.Client }

func NewRedisResets(rdb *redis.Client) ResetStore { return &redisResets{rdb: rdb} }

func resetKey(token string) string { return "auth:reset:" + strings.TrimSpace(token) }

func (r *redisResets) Put(ctx context.Context, token, userID string, ttl time.Duration) error {
	return r.rdb.Set(ctx, resetKey(token), userID, ttl).Err()
}

func (r *redisResets) Take(ctx context.Context, token string) (string, error) {
	userID, err := r.rdb.GetDel(ctx, resetKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrInvalidResetToken
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

type memoryReset struct {
	userID  string
	expires time.Time
}

type memoryResets struct {
	mu     sync.Mutex
	tokens map[string]memoryReset
	now    func() time.Time
}

func NewMemoryResets() ResetStore {
	return &memoryResets{tokens: make(map[string]memoryReset), now: time.Now}
}

func (m *memoryResets) Put(ctx context.Context, token, userID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, v := range m.tokens {
		if now.After(v.expires) {
			delete(m.tokens, k)
		}
	}
	m.tokens[token] = memoryReset{userID: userID, expires: now.Add(ttl)}
	return nil
}

func (m *memoryResets) Take(ctx context.Context, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.tokens[token]
	if !ok {
		return "", ErrInvalidResetToken
	}
	delete(m.tokens, token)
	if m.now().After(r.expires) {
		return "", ErrInvalidResetToken
	}
	return r.userID, nil
}

// Notifier delivers a reset link to the account owner.
type Notifier interface {
	SendPasswordReset(ctx context.Context, email, link string) error
}

// LogNotifier writes reset links to the log. Links are redacted unless ShowLink is set.
type LogNotifier struct {
	ShowLink bool
}

func (n LogNotifier) SendPasswordReset(_ context.Context, email, link string) error {
	fields := []zap.Field{zap.String("email", email)}
	if n.ShowLink {
		fields = append(fields, zap.String("link", link))
	}
	obslog.L().Info("auth_reset_link", fields...)
	return nil
}

// resetLink appends the token to base as the "token" query parameter.
func resetLink(base, token string) string {
	u, err := url.Parse(base)
	if err != nil || base == "" {
		return "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
