package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/park285/chessnerd/internal/domain"
	"github.com/park285/chessnerd/internal/store"
)

func newTestService(t *testing.T, opts ...Option) (*Service, *store.Memory) {
	t.Helper()
	repo := store.NewMemory()
	opts = append([]Option{WithBcryptCost(bcrypt.MinCost)}, opts...)
	return NewService(repo, "test-secret", time.Hour, opts...), repo
}

func TestSignUpCreatesUserAndProfile(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	tok, err := svc.SignUp(ctx, " Ann@Example.com ", "password123", "ann_1")
	require.NoError(t, err)
	require.NotEmpty(t, tok.Value)
	require.Equal(t, "ann_1", tok.Identity.Username)

	prof, err := repo.GetProfile(ctx, tok.Identity.UserID)
	require.NoError(t, err)
	require.Equal(t, domain.DefaultRating, prof.BlitzElo)
	require.Equal(t, domain.DefaultRating, prof.RapidElo)
	require.Equal(t, domain.DefaultRating, prof.BulletElo)

	u, err := repo.UserByEmail(ctx, "ann@example.com")
	require.NoError(t, err)
	require.NotEqual(t, "password123", u.PasswordHash)

	_, err = svc.SignUp(ctx, "ann@example.com", "password123", "someone")
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestSignUpValidation(t *testing.T) {
	svc, _ := newTestService(t)
	cases := []struct{ email, pw, user string }{
		{"nope", "password123", "ann"},
		{"a@b.c", "short", "ann"},
		{"a@b.c", strings.Repeat("x", 101), "ann"},
		{"a@b.c", "password123", "an"},
		{"a@b.c", "password123", strings.Repeat("a", 25)},
		{"a@b.c", "password123", "ann-1"},
	}
	for _, c := range cases {
		_, err := svc.SignUp(context.Background(), c.email, c.pw, c.user)
		require.ErrorIs(t, err, ErrInvalidInput, "%+v", c)
	}
}

func TestSignInAndVerify(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.SignUp(ctx, "bob@example.com", "password123", "bob")
	require.NoError(t, err)

	_, err = svc.SignIn(ctx, "bob@example.com", "wrong-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.SignIn(ctx, "ghost@example.com", "password123")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	tok, err := svc.SignIn(ctx, "BOB@example.com", "password123")
	require.NoError(t, err)
	id, err := svc.Verify(tok.Value)
	require.NoError(t, err)
	require.Equal(t, tok.Identity, id)

	_, err = svc.Verify(tok.Value + "x")
	require.ErrorIs(t, err, ErrInvalidToken)

	other := NewService(store.NewMemory(), "other-secret", time.Hour)
	_, err = other.Verify(tok.Value)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	svc, _ := newTestService(t, WithNow(clock))
	tok, err := svc.SignUp(context.Background(), "c@example.com", "password123", "carol")
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = svc.Verify(tok.Value)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordResetUsesRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	svc, _ := newTestService(t, WithResetStore(NewRedisResets(rdb)))
	ctx := context.Background()
	_, err = svc.SignUp(ctx, "dave@example.com", "password123", "dave")
	require.NoError(t, err)

	require.NoError(t, svc.RequestPasswordReset(ctx, "nobody@example.com"))
	require.Empty(t, mr.Keys())

	require.NoError(t, svc.RequestPasswordReset(ctx, "dave@example.com"))
	keys := mr.Keys()
	require.Len(t, keys, 1)
	require.True(t, strings.HasPrefix(keys[0], "auth:reset:"))
	require.Equal(t, resetTokenTTL, mr.TTL(keys[0]))

	require.ErrorIs(t, svc.RequestPasswordReset(ctx, "not-an-email"), ErrInvalidInput)
}

type capturedLinks struct {
	mu    sync.Mutex
	links map[string]string
}

func (c *capturedLinks) SendPasswordReset(_ context.Context, email, link string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.links[email] = link
	return nil
}

func (c *capturedLinks) token(t *testing.T, email string) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	u, err := url.Parse(c.links[email])
	require.NoError(t, err)
	tok := u.Query().Get("token")
	require.NotEmpty(t, tok)
	return tok
}

func TestConfirmPasswordResetIsSingleUse(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	links := &capturedLinks{links: map[string]string{}}
	svc, _ := newTestService(t,
		WithResetStore(NewRedisResets(rdb)),
		WithNotifier(links),
		WithResetURL("https://chess.example/reset?lang=en"),
	)
	ctx := context.Background()
	_, err := svc.SignUp(ctx, "erin@example.com", "password123", "erin")
	require.NoError(t, err)

	require.NoError(t, svc.RequestPasswordReset(ctx, "Erin@Example.com"))
	require.True(t, strings.HasPrefix(links.links["erin@example.com"], "https://chess.example/reset?"))
	require.Contains(t, links.links["erin@example.com"], "lang=en")
	tok := links.token(t, "erin@example.com")

	require.ErrorIs(t, svc.ConfirmPasswordReset(ctx, tok, "short"), ErrInvalidInput)
	require.NoError(t, svc.ConfirmPasswordReset(ctx, tok, "new-password-1"))
	require.Empty(t, mr.Keys())
	require.ErrorIs(t, svc.ConfirmPasswordReset(ctx, tok, "new-password-2"), ErrInvalidResetToken)

	_, err = svc.SignIn(ctx, "erin@example.com", "password123")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.SignIn(ctx, "erin@example.com", "new-password-1")
	require.NoError(t, err)

	require.NoError(t, svc.RequestPasswordReset(ctx, "erin@example.com"))
	expired := links.token(t, "erin@example.com")
	mr.FastForward(resetTokenTTL + time.Second)
	require.ErrorIs(t, svc.ConfirmPasswordReset(ctx, expired, "new-password-3"), ErrInvalidResetToken)
	require.ErrorIs(t, svc.ConfirmPasswordReset(ctx, "", "new-password-3"), ErrInvalidResetToken)
}

func TestMemoryResetsExpire(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := &memoryResets{tokens: map[string]memoryReset{}, now: func() time.Time { return now }}
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "a", "u1", time.Minute))
	require.NoError(t, m.Put(ctx, "b", "u2", time.Minute))
	got, err := m.Take(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "u1", got)
	_, err = m.Take(ctx, "a")
	require.ErrorIs(t, err, ErrInvalidResetToken)

	now = now.Add(2 * time.Minute)
	_, err = m.Take(ctx, "b")
	require.ErrorIs(t, err, ErrInvalidResetToken)
}

func TestMiddleware(t *testing.T) {
	svc, _ := newTestService(t)
	tok, err := svc.SignUp(context.Background(), "eve@example.com", "password123", "eve")
	require.NoError(t, err)
	cookies := Cookies{Name: "chessnerd_token"}

	var seen Identity
	h := svc.Require(cookies, func(w http.ResponseWriter, r *http.Request, err error) {
		require.True(t, errors.Is(err, ErrInvalidToken))
		w.WriteHeader(http.StatusUnauthorized)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok.Value)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "eve", seen.Username)

	seen = Identity{}
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: "chessnerd_token", Value: tok.Value})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, tok.Identity.UserID, seen.UserID)
}

func TestCookiesSetAndClear(t *testing.T) {
	c := Cookies{Name: "tok", Secure: true}
	rec := httptest.NewRecorder()
	c.Set(rec, "abc", time.Now().Add(time.Hour))
	got := rec.Result().Cookies()
	require.Len(t, got, 1)
	require.Equal(t, "abc", got[0].Value)
	require.True(t, got[0].HttpOnly)
	require.Equal(t, http.SameSiteNoneMode, got[0].SameSite)

	rec = httptest.NewRecorder()
	c.Clear(rec)
	require.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)
}
