package lobby

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/chessnerd/internal/msgcat"
	"github.com/park285/chessnerd/internal/obslog"
	"github.com/park285/chessnerd/internal/play"
)

// GameStarter opens the online game once both seats are taken.
type GameStarter interface {
	StartOnline(ctx context.Context, whiteID, blackID string, req play.StartRequest) (play.State, error)
}

type Option func(*Manager)

func WithClock(c clockwork.Clock) Option { return func(m *Manager) { m.clock = c } }

func WithCatalog(c *msgcat.Catalog) Option { return func(m *Manager) { m.msgs = c } }

type Manager struct {
	rdb   *redis.Client
	store *Store
	games GameStarter
	msgs  *msgcat.Catalog
	clock clockwork.Clock
}

func NewManager(rdb *redis.Client, games GameStarter, opts ...Option) *Manager {
	m := &Manager{rdb: rdb, store: NewStore(rdb), games: games}
	for _, opt := range opts {
		opt(m)
	}
	if m.clock == nil {
		m.clock = clockwork.NewRealClock()
	}
	return m
}

// Make opens a waiting lobby for userID. A user holds at most one waiting lobby.
func (m *Manager) Make(ctx context.Context, userID, userName string, pref Preference) (*MakeResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidArgs
	}
	if pref.Color == "" {
		pref.Color = ColorRandom
	}
	for i := 0; i < 5; i++ {
		code, err := codeGen()
		if err != nil {
			return nil, err
		}
		ok, err := m.rdb.SetNX(ctx, m.store.keyMeta(code), []byte("{}"), ttlLobby).Result()
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		claimed, err := m.store.ClaimCreator(ctx, userID, code)
		if err != nil || !claimed {
			_ = m.store.Delete(ctx, code)
			if err != nil {
				return nil, err
			}
			return nil, ErrCreatorHasLobby
		}
		meta := &Meta{
			Code:        code,
			State:       StateWaiting,
			CreatedAt:   m.clock.Now(),
			Pref:        pref,
			CreatorID:   userID,
			CreatorName: displayName(userName, userID),
		}
		if err := m.publish(ctx, meta); err != nil {
			m.discard(ctx, code, userID)
			obslog.L().Warn("lobby_make_error", zap.String("code", code), zap.String("creator_id", userID), zap.Error(err))
			return nil, err
		}
		obslog.L().Info("lobby_make", zap.String("code", code), zap.String("creator_id", userID))
		return &MakeResult{
			Code:    code,
			Meta:    meta,
			Message: m.msgs.Text("lobby.created", map[string]string{"Code": code}, "Lobby "+code+" created."),
		}, nil
	}
	return nil, fmt.Errorf("failed to allocate lobby code")
}

func (m *Manager) publish(ctx context.Context, meta *Meta) error {
	if err := m.store.SaveMeta(ctx, meta); err != nil {
		return err
	}
	if err := m.store.AddParticipant(ctx, meta.Code, meta.CreatorID); err != nil {
		return err
	}
	return m.store.AddWaiting(ctx, meta.Code)
}

// discard undoes a partially created lobby so its creator can try again.
func (m *Manager) discard(ctx context.Context, code, userID string) {
	ctx = context.WithoutCancel(ctx)
	_ = m.store.RemoveWaiting(ctx, code)
	_ = m.store.ReleaseCreator(ctx, userID)
	_ = m.store.Delete(ctx, code)
}

// Join takes the second seat. The join that completes the pair assigns colors and starts the game.
func (m *Manager) Join(ctx context.Context, code, userID, userName string) (*JoinResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	userID = strings.TrimSpace(userID)
	if code == "" || userID == "" {
		return nil, ErrInvalidArgs
	}
	meta, err := m.store.LoadMeta(ctx, code)
	if err != nil {
		return nil, err
	}
	if meta == nil || meta.Code == "" {
		return nil, ErrLobbyGone
	}
	if meta.State == StateActive {
		if userID == meta.WhiteID || userID == meta.BlackID {
			return &JoinResult{Started: true, GameID: meta.GameID, Meta: meta}, nil
		}
		return nil, ErrLobbyActive
	}
	if userID == meta.CreatorID {
		return nil, ErrInvalidArgs
	}

	partKey := m.store.keyParticipants(code)
	err = m.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cnt, err := tx.SCard(ctx, partKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cnt >= 2 {
			return ErrFull
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SAdd(ctx, partKey, userID)
			pipe.Expire(ctx, partKey, ttlLobby)
			return nil
		})
		return err
	}, partKey)
	if errors.Is(err, redis.TxFailedErr) {
		err = ErrFull
	}
	if err != nil {
		obslog.L().Warn("lobby_join_error", zap.String("code", code), zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	whiteID, whiteName, blackID, blackName := assignColors(meta, userID, displayName(userName, userID))
	st, err := m.games.StartOnline(ctx, whiteID, blackID, play.StartRequest{
		GameType:    meta.Pref.GameType,
		TimeControl: meta.Pref.TimeControl,
		Increment:   meta.Pref.Increment,
	})
	if err != nil {
		_ = m.store.RemoveParticipant(ctx, code, userID)
		obslog.L().Warn("lobby_start_error", zap.String("code", code), zap.Error(err))
		return nil, err
	}

	meta.WhiteID, meta.WhiteName = whiteID, whiteName
	meta.BlackID, meta.BlackName = blackID, blackName
	meta.State = StateActive
	meta.GameID = st.ID
	if err := m.store.SaveMeta(ctx, meta); err != nil {
		return nil, err
	}
	_ = m.store.RemoveWaiting(ctx, code)
	_ = m.store.ReleaseCreator(ctx, meta.CreatorID)
	obslog.L().Info("lobby_start_game",
		zap.String("code", code),
		zap.String("game_id", st.ID),
		zap.String("white_id", whiteID),
		zap.String("black_id", blackID),
	)
	msg := m.msgs.Text("lobby.started", map[string]string{"White": whiteName, "Black": blackName}, "Game on!")
	return &JoinResult{Started: true, GameID: st.ID, Meta: meta, Message: msg}, nil
}

// Cancel drops a waiting lobby. Only its creator may cancel it.
func (m *Manager) Cancel(ctx context.Context, code, userID string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	meta, err := m.store.LoadMeta(ctx, code)
	if err != nil {
		return err
	}
	if meta == nil || meta.Code == "" {
		return ErrLobbyGone
	}
	if meta.CreatorID != strings.TrimSpace(userID) {
		return ErrNotCreator
	}
	if meta.State != StateWaiting {
		return ErrLobbyActive
	}
	_ = m.store.RemoveWaiting(ctx, code)
	_ = m.store.ReleaseCreator(ctx, meta.CreatorID)
	obslog.L().Info("lobby_cancel", zap.String("code", code), zap.String("creator_id", meta.CreatorID))
	return m.store.Delete(ctx, code)
}

// List returns waiting lobbies.
func (m *Manager) List(ctx context.Context) ([]*Meta, error) { return m.store.ListWaiting(ctx) }

func (m *Manager) Get(ctx context.Context, code string) (*Meta, error) {
	meta, err := m.store.LoadMeta(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, err
	}
	if meta == nil || meta.Code == "" {
		return nil, ErrLobbyGone
	}
	return meta, nil
}

func assignColors(meta *Meta, joinerID, joinerName string) (whiteID, whiteName, blackID, blackName string) {
	creatorWhite := true
	switch meta.Pref.Color {
	case ColorWhite:
	case ColorBlack:
		creatorWhite = false
	default:
		if n, err := rand.Int(rand.Reader, big.NewInt(2)); err == nil && n.Int64() == 0 {
			creatorWhite = false
		}
	}
	if creatorWhite {
		return meta.CreatorID, meta.CreatorName, joinerID, joinerName
	}
	return joinerID, joinerName, meta.CreatorID, meta.CreatorName
}

func displayName(name, fallback string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	return fallback
}
