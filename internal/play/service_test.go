package play

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/park285/chessnerd/internal/cache"
	"github.com/park285/chessnerd/internal/domain"
	"github.com/park285/chessnerd/internal/msgcat"
	"github.com/park285/chessnerd/internal/render"
	"github.com/park285/chessnerd/internal/session"
	"github.com/park285/chessnerd/internal/store"
)

type failingGames struct {
	*store.Memory
}

func (failingGames) InsertGame(context.Context, *domain.GameRecord) error {
	return errors.New("insert refused")
}

type countingMetrics struct {
	started, ended int
}

func (m *countingMetrics) GameStarted(string, string) { m.started++ }
func (m *countingMetrics) GameEnded(string, string)   { m.ended++ }

func testConfig() Config {
	return Config{
		MaxConcurrentGames: 5,
		ReplyDelay:         500 * time.Millisecond,
		DefaultTimeControl: 600,
	}
}

func newTestService(t *testing.T, repo store.Repository, opts ...Option) *Service {
	t.Helper()
	msgs, err := msgcat.New("")
	require.NoError(t, err)
	base := []Option{
		WithClock(clockwork.NewFakeClock()),
		WithLogger(zap.NewNop()),
		WithCatalog(msgs),
	}
	svc := NewService(repo, testConfig(), append(base, opts...)...)
	t.Cleanup(svc.Shutdown)
	return svc
}

func play(t *testing.T, svc *Service, id, userID string, moves ...string) MoveResult {
	t.Helper()
	var res MoveResult
	for _, mv := range moves {
		var err error
		res, err = svc.Move(context.Background(), id, userID, session.MoveAttempt{From: mv[:2], To: mv[2:4]})
		require.NoError(t, err)
		require.Truef(t, res.Accepted, "move %s rejected: %s", mv, res.Reason)
	}
	return res
}

func TestStartAppliesPresets(t *testing.T) {
	svc := newTestService(t, store.NewMemory())
	ctx := context.Background()

	st, err := svc.Start(ctx, "u1", StartRequest{GameType: "blitz"})
	require.NoError(t, err)
	require.Equal(t, 180, st.WhiteRemaining)
	require.Equal(t, session.ModeAI, st.Mode)
	require.Equal(t, "random", st.Engine)
	require.Equal(t, "u1", st.WhiteID)
	require.Empty(t, st.BlackID)

	st, err = svc.Start(ctx, "u1", StartRequest{})
	require.NoError(t, err)
	require.Equal(t, 600, st.BlackRemaining)
	require.Equal(t, domain.CategoryRapid, st.GameType)

	st, err = svc.Start(ctx, "u1", StartRequest{Mode: session.ModeLocal, TimeControl: 60})
	require.NoError(t, err)
	require.Equal(t, domain.CategoryCasual, st.GameType)
	require.Empty(t, st.Engine)

	st, err = svc.Start(ctx, "u1", StartRequest{TimeControl: 120, HumanSide: session.Black})
	require.NoError(t, err)
	require.Equal(t, domain.CategoryBullet, st.GameType)
	require.Equal(t, "u1", st.BlackID)
	require.Equal(t, 4, svc.Active())
}

func TestStartRejectsBadRequests(t *testing.T) {
	svc := newTestService(t, store.NewMemory())
	ctx := context.Background()

	_, err := svc.Start(ctx, "u1", StartRequest{GameType: "marathon"})
	require.ErrorIs(t, err, ErrInvalidRequest)
	_, err = svc.Start(ctx, "u1", StartRequest{Mode: session.ModeOnline})
	require.ErrorIs(t, err, ErrInvalidRequest)
	_, err = svc.Start(ctx, "", StartRequest{})
	require.ErrorIs(t, err, ErrInvalidRequest)
	_, err = svc.Start(ctx, "u1", StartRequest{TimeControl: -5})
	require.ErrorIs(t, err, ErrInvalidRequest)
	_, err = svc.Start(ctx, "u1", StartRequest{StartFEN: "not a fen"})
	require.ErrorIs(t, err, ErrInvalidRequest)
	_, err = svc.StartOnline(ctx, "u1", "u1", StartRequest{})
	require.ErrorIs(t, err, ErrInvalidRequest)
	require.Zero(t, svc.Active())
}

func TestMaxConcurrentGames(t *testing.T) {
	svc := newTestService(t, store.NewMemory())
	for i := 0; i < 5; i++ {
		_, err := svc.Start(context.Background(), "u1", StartRequest{})
		require.NoError(t, err)
	}
	_, err := svc.Start(context.Background(), "u1", StartRequest{})
	require.ErrorIs(t, err, ErrTooManyGames)
	require.Equal(t, 5, svc.Active())
}

func TestEndedGamesFreeCapacityAndAreEvicted(t *testing.T) {
	fc := clockwork.NewFakeClock()
	svc := newTestService(t, store.NewMemory(), WithClock(fc))
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		user := fmt.Sprintf("u%d", i)
		st, err := svc.Start(ctx, user, StartRequest{Mode: session.ModeLocal, TimeControl: 3600})
		require.NoError(t, err)
		_, err = svc.Resign(ctx, st.ID, user, session.White)
		require.NoError(t, err)
		ids = append(ids, st.ID)
	}
	require.Zero(t, svc.Active())

	fresh, err := svc.Start(ctx, "fresh-user", StartRequest{Mode: session.ModeLocal, TimeControl: 3600})
	require.NoError(t, err)
	require.Equal(t, 1, svc.Active())

	got, err := svc.Get(ctx, ids[0], "u0")
	require.NoError(t, err)
	require.Equal(t, session.StatusResigned, got.Status)

	revived, err := svc.Reset(ctx, ids[1], "u1")
	require.NoError(t, err)
	require.Equal(t, session.StatusPlaying, revived.Status)
	require.Equal(t, 2, svc.Active())

	events, cancel, err := svc.Subscribe(ctx, ids[2], "u2")
	require.NoError(t, err)
	defer cancel()
	<-events

	fc.Advance(defaultFinishedTTL)
	require.Eventually(t, func() bool {
		_, err := svc.Get(ctx, ids[0], "u0")
		return errors.Is(err, ErrSessionNotFound)
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-events:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	_, err = svc.Get(ctx, ids[1], "u1")
	require.NoError(t, err)
	_, err = svc.Get(ctx, fresh.ID, "fresh-user")
	require.NoError(t, err)
}

func TestResetOfEndedGameRespectsCapacity(t *testing.T) {
	svc := newTestService(t, store.NewMemory())
	ctx := context.Background()

	ended, err := svc.Start(ctx, "u1", StartRequest{Mode: session.ModeLocal})
	require.NoError(t, err)
	_, err = svc.Resign(ctx, ended.ID, "u1", session.White)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := svc.Start(ctx, "u2", StartRequest{})
		require.NoError(t, err)
	}
	_, err = svc.Reset(ctx, ended.ID, "u1")
	require.ErrorIs(t, err, ErrTooManyGames)
}

func TestExplicitZeroIncrement(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultIncrement = 3
	svc := NewService(store.NewMemory(), cfg, WithClock(clockwork.NewFakeClock()), WithLogger(zap.NewNop()))
	t.Cleanup(svc.Shutdown)
	ctx := context.Background()

	st, err := svc.Start(ctx, "u1", StartRequest{Mode: session.ModeLocal})
	require.NoError(t, err)
	require.Equal(t, 3, st.Increment)

	st, err = svc.Start(ctx, "u1", StartRequest{Mode: session.ModeLocal, Increment: Seconds(0)})
	require.NoError(t, err)
	require.Equal(t, 0, st.Increment)

	_, err = svc.Start(ctx, "u1", StartRequest{Increment: Seconds(-1)})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestPublishDropsOutOfOrderStates(t *testing.T) {
	g := &game{subs: make(map[int]chan Event)}
	ch, cancel := g.subscribe()
	defer cancel()

	after := State{Snapshot: session.Snapshot{Seq: 5, FEN: "after"}}
	before := State{Snapshot: session.Snapshot{Seq: 4, FEN: "before"}}
	g.publish(Event{State: &after})
	g.publish(Event{State: &before})
	g.notify(Notice{Kind: "game_end"})

	ev := <-ch
	require.Equal(t, "after", ev.State.FEN)
	ev = <-ch
	require.NotNil(t, ev.Notice)
	require.Empty(t, ch)
}

func TestLookupChecksParticipants(t *testing.T) {
	svc := newTestService(t, store.NewMemory())
	ctx := context.Background()
	st, err := svc.Start(ctx, "u1", StartRequest{})
	require.NoError(t, err)

	_, err = svc.Get(ctx, st.ID, "intruder")
	require.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Get(ctx, "missing", "u1")
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, err = svc.Move(ctx, st.ID, "intruder", session.MoveAttempt{From: "e2", To: "e4"})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestClosedSessionSurfacesError(t *testing.T) {
	svc := newTestService(t, store.NewMemory())
	ctx := context.Background()
	st, err := svc.Start(ctx, "u1", StartRequest{Mode: session.ModeLocal})
	require.NoError(t, err)
	g, err := svc.lookup(st.ID, "u1")
	require.NoError(t, err)
	g.sess.Close()

	_, err = svc.Move(ctx, st.ID, "u1", session.MoveAttempt{From: "e2", To: "e4"})
	require.ErrorIs(t, err, session.ErrClosed)
	_, err = svc.Resign(ctx, st.ID, "u1", session.White)
	require.ErrorIs(t, err, session.ErrClosed)
}

func TestIllegalMoveIsReportedNotFailed(t *testing.T) {
	svc := newTestService(t, store.NewMemory())
	ctx := context.Background()
	st, err := svc.Start(ctx, "u1", StartRequest{})
	require.NoError(t, err)

	res, err := svc.Move(ctx, st.ID, "u1", session.MoveAttempt{From: "e2", To: "e5"})
	require.NoError(t, err)
	require.False(t, res.Accepted)
	require.NotEmpty(t, res.Reason)
	require.Empty(t, res.State.MoveHistory)

	res = play(t, svc, st.ID, "u1", "e2e4")
	require.Equal(t, []string{"e4"}, res.State.MoveHistory)
	require.True(t, res.State.Busy)
}

func TestLocalCheckmatePersistsGame(t *testing.T) {
	repo := store.NewMemory()
	metrics := &countingMetrics{}
	svc := newTestService(t, repo, WithMetrics(metrics))
	ctx := context.Background()
	st, err := svc.Start(ctx, "u1", StartRequest{Mode: session.ModeLocal})
	require.NoError(t, err)

	res := play(t, svc, st.ID, "u1", "f2f3", "e7e5", "g2g4", "d8h4")
	require.Equal(t, session.StatusCheckmate, res.State.Status)
	require.Equal(t, session.BlackWins, res.State.Result)

	games, err := repo.RecentGames(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, games, 1)
	rec := games[0]
	require.Equal(t, "black_wins", rec.Result)
	require.Equal(t, "checkmate", rec.Method)
	require.Equal(t, []string{"f3", "e5", "g4"}, rec.Moves[:3])
	require.True(t, strings.HasPrefix(rec.Moves[3], "Qh4"))
	require.Equal(t, "local", rec.Mode)
	require.Equal(t, "u1", rec.WhitePlayerID)
	require.Empty(t, rec.BlackPlayerID)
	require.Contains(t, rec.PGN, "0-1")
	require.Equal(t, res.State.FEN, rec.FinalFEN)

	_, err = repo.GetProfile(ctx, "u1")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.Equal(t, 1, metrics.started)
	require.Equal(t, 1, metrics.ended)
}

func TestResignUpdatesRatingAgainstEngine(t *testing.T) {
	repo := store.NewMemory()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	profiles := cache.NewProfiles(rdb)

	svc := newTestService(t, repo, WithProfileCache(profiles))
	ctx := context.Background()
	st, err := svc.Start(ctx, "u1", StartRequest{})
	require.NoError(t, err)

	end, err := svc.Resign(ctx, st.ID, "u1", "")
	require.NoError(t, err)
	require.Equal(t, session.StatusResigned, end.Status)
	require.Equal(t, session.BlackWins, end.Result)

	p, err := repo.GetProfile(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 1176, p.RapidElo)
	require.Equal(t, domain.DefaultRating, p.BlitzElo)
	require.Equal(t, 1, p.Losses)
	require.Equal(t, 1, p.TotalGames)

	cached, err := profiles.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, cached)
	require.Equal(t, 1176, cached.RapidElo)

	games, err := repo.RecentGames(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, games, 1)
	require.Equal(t, "resignation", games[0].Method)
	require.Equal(t, "random", games[0].AIEngine)

	_, err = svc.Resign(ctx, st.ID, "u1", "")
	require.ErrorIs(t, err, session.ErrNotPlaying)
}

func TestOnlineGameBindsSides(t *testing.T) {
	repo := store.NewMemory()
	svc := newTestService(t, repo)
	ctx := context.Background()
	st, err := svc.StartOnline(ctx, "w", "b", StartRequest{GameType: "blitz"})
	require.NoError(t, err)
	require.Equal(t, session.ModeOnline, st.Mode)

	res, err := svc.Move(ctx, st.ID, "b", session.MoveAttempt{From: "e2", To: "e4"})
	require.NoError(t, err)
	require.False(t, res.Accepted)

	play(t, svc, st.ID, "w", "e2e4")
	play(t, svc, st.ID, "b", "e7e5")

	_, err = svc.Resign(ctx, st.ID, "b", session.White)
	require.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Reset(ctx, st.ID, "w")
	require.ErrorIs(t, err, ErrUnsupported)

	end, err := svc.Resign(ctx, st.ID, "b", "")
	require.NoError(t, err)
	require.Equal(t, session.WhiteWins, end.Result)

	w, err := repo.GetProfile(ctx, "w")
	require.NoError(t, err)
	b, err := repo.GetProfile(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, 1212, w.BlitzElo)
	require.Equal(t, 1188, b.BlitzElo)
	require.Equal(t, 1, w.Wins)
	require.Equal(t, 1, b.Losses)

	games, err := repo.RecentGames(ctx, "b", 10)
	require.NoError(t, err)
	require.Len(t, games, 1)
	require.Equal(t, "w", games[0].WhitePlayerID)
	require.Equal(t, "b", games[0].BlackPlayerID)
	require.Contains(t, games[0].PGN, "1-0")
}

func TestSubscribeStreamsStateAndNotices(t *testing.T) {
	svc := newTestService(t, store.NewMemory())
	ctx := context.Background()
	st, err := svc.Start(ctx, "u1", StartRequest{Mode: session.ModeLocal})
	require.NoError(t, err)

	events, cancel, err := svc.Subscribe(ctx, st.ID, "u1")
	require.NoError(t, err)
	defer cancel()

	first := <-events
	require.NotNil(t, first.State)
	require.Equal(t, st.ID, first.State.ID)

	_, err = svc.Resign(ctx, st.ID, "u1", session.White)
	require.NoError(t, err)

	var notices []Notice
	var last *State
	for len(events) > 0 {
		ev := <-events
		if ev.Notice != nil {
			notices = append(notices, *ev.Notice)
		}
		if ev.State != nil {
			last = ev.State
		}
	}
	require.NotEmpty(t, notices)
	require.Equal(t, "game_end", notices[0].Kind)
	require.Equal(t, "Resignation. Black wins.", notices[0].Message)
	require.NotNil(t, last)
	require.Equal(t, session.StatusResigned, last.Status)

	require.NoError(t, svc.Close(ctx, st.ID, "u1"))
	_, open := <-events
	require.False(t, open)
	require.ErrorIs(t, svc.Close(ctx, st.ID, "u1"), ErrSessionNotFound)
}

func TestSlowSubscriberDropsFrames(t *testing.T) {
	svc := newTestService(t, store.NewMemory())
	ctx := context.Background()
	st, err := svc.Start(ctx, "u1", StartRequest{Mode: session.ModeLocal})
	require.NoError(t, err)
	events, cancel, err := svc.Subscribe(ctx, st.ID, "u1")
	require.NoError(t, err)

	for i := 0; i < subscriberBuffer*2; i++ {
		svc.Reset(ctx, st.ID, "u1")
	}
	require.Len(t, events, subscriberBuffer)

	cancel()
	cancel()
}

func TestPersistFailureIsNotified(t *testing.T) {
	svc := newTestService(t, failingGames{store.NewMemory()})
	ctx := context.Background()
	st, err := svc.Start(ctx, "u1", StartRequest{Mode: session.ModeLocal})
	require.NoError(t, err)
	events, cancel, err := svc.Subscribe(ctx, st.ID, "u1")
	require.NoError(t, err)
	defer cancel()

	end, err := svc.Resign(ctx, st.ID, "u1", session.Black)
	require.NoError(t, err)
	require.Equal(t, session.WhiteWins, end.Result)

	var failed *Notice
	for len(events) > 0 {
		if ev := <-events; ev.Notice != nil && ev.Notice.Failure {
			failed = ev.Notice
		}
	}
	require.NotNil(t, failed)
	require.Equal(t, "persist_failed", failed.Kind)

	snap, err := svc.Get(ctx, st.ID, "u1")
	require.NoError(t, err)
	require.Equal(t, session.StatusResigned, snap.Status)
}

func TestBoardPNG(t *testing.T) {
	svc := newTestService(t, store.NewMemory())
	ctx := context.Background()
	st, err := svc.Start(ctx, "u1", StartRequest{})
	require.NoError(t, err)
	play(t, svc, st.ID, "u1", "e2e4")

	img, err := svc.BoardPNG(ctx, st.ID, "u1", render.Options{Size: 128})
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(img, []byte("\x89PNG")))
}

func TestApplyResult(t *testing.T) {
	now := time.Unix(1700000000, 0)
	p := domain.NewProfile("u1", "u1", now)

	delta := applyResult(&p, domain.CategoryBlitz, 1, 1200, true, now)
	require.Equal(t, 12, delta)
	require.Equal(t, 1212, p.BlitzElo)

	delta = applyResult(&p, domain.CategoryCasual, 0.5, 1200, false, now)
	require.Zero(t, delta)
	require.Equal(t, domain.DefaultRating, p.RapidElo)
	require.Equal(t, 1, p.Wins)
	require.Equal(t, 1, p.Draws)
	require.Equal(t, 2, p.TotalGames)
}

func TestCategorize(t *testing.T) {
	cases := []struct {
		mode    session.Mode
		seconds int
		want    string
	}{
		{session.ModeAI, 60, domain.CategoryBullet},
		{session.ModeAI, 179, domain.CategoryBullet},
		{session.ModeAI, 180, domain.CategoryBlitz},
		{session.ModeAI, 600, domain.CategoryRapid},
		{session.ModeOnline, 300, domain.CategoryBlitz},
		{session.ModeLocal, 60, domain.CategoryCasual},
	}
	for _, c := range cases {
		if got := categorize(c.mode, c.seconds); got != c.want {
			t.Fatalf("categorize(%s, %d) = %s, want %s", c.mode, c.seconds, got, c.want)
		}
	}
}
