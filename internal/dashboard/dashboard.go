package dashboard

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chessnerd/internal/cache"
	"github.com/park285/chessnerd/internal/domain"
	"github.com/park285/chessnerd/internal/obslog"
	"github.com/park285/chessnerd/internal/play"
	"github.com/park285/chessnerd/internal/store"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 50
)

// Preset is one quick-start option offered on the dashboard.
type Preset struct {
	GameType    string `json:"game_type"`
	Mode        string `json:"mode"`
	TimeControl int    `json:"time_control"`
}

// Presets lists the quick-start games in display order.
func Presets() []Preset {
	return []Preset{
		{GameType: domain.CategoryBlitz, Mode: "ai", TimeControl: play.Presets[domain.CategoryBlitz]},
		{GameType: domain.CategoryRapid, Mode: "ai", TimeControl: play.Presets[domain.CategoryRapid]},
		{GameType: domain.CategoryBullet, Mode: "ai", TimeControl: play.Presets[domain.CategoryBullet]},
		{GameType: domain.CategoryCasual, Mode: "local", TimeControl: play.Presets[domain.CategoryCasual]},
	}
}

type Summary struct {
	Profile     domain.Profile
	DisplayName string
	WinRate     int
	RecentGames []*domain.GameRecord
	Presets     []Preset
}

type Service struct {
	repo     store.Repository
	profiles *cache.Profiles
	limit    int
	logger   *zap.Logger
}

// NewService builds the dashboard. profiles may be nil; limit <= 0 uses the default.
func NewService(repo store.Repository, profiles *cache.Profiles, limit int) *Service {
	return &Service{repo: repo, profiles: profiles, limit: clampLimit(limit), logger: obslog.L()}
}

// Summary assembles the dashboard for userID. A missing profile reads as a fresh one.
func (s *Service) Summary(ctx context.Context, userID string, limit int) (*Summary, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, store.ErrNotFound
	}
	prof, err := s.profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.limit
	}
	games, err := s.repo.RecentGames(ctx, userID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return &Summary{
		Profile:     *prof,
		DisplayName: prof.Name(),
		WinRate:     WinRate(prof.Wins, prof.TotalGames),
		RecentGames: games,
		Presets:     Presets(),
	}, nil
}

func (s *Service) profile(ctx context.Context, userID string) (*domain.Profile, error) {
	if cached, err := s.profiles.Get(ctx, userID); err != nil {
		s.logger.Warn("dashboard_cache_get_failed", zap.String("user_id", userID), zap.Error(err))
	} else if cached != nil {
		return cached, nil
	}

	prof, err := s.repo.GetProfile(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		fresh := domain.NewProfile(userID, "", time.Now().UTC())
		return &fresh, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.profiles.Set(ctx, prof); err != nil {
		s.logger.Warn("dashboard_cache_set_failed", zap.String("user_id", userID), zap.Error(err))
	}
	return prof, nil
}

// WinRate is wins over total as a rounded percentage, 0 with no games.
func WinRate(wins, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(wins) / float64(total) * 100))
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}
