package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/chessnerd/internal/domain"
)

const ProfileTTL = 6 * time.Hour

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(strings.TrimSpace(url))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// Profiles caches profile rows as JSON. A nil *Profiles is a valid, always-missing cache.
type Profiles struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewProfiles(rdb *redis.Client) *Profiles {
	if rdb == nil {
		return nil
	}
	return &Profiles{rdb: rdb, ttl: ProfileTTL}
}

func (p *Profiles) key(userID string) string { return "profile:" + strings.TrimSpace(userID) }

// Get returns (nil, nil) on a miss.
func (p *Profiles) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	if p == nil {
		return nil, nil
	}
	raw, err := p.rdb.Get(ctx, p.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var prof domain.Profile
	if err := json.Unmarshal(raw, &prof); err != nil {
		return nil, err
	}
	return &prof, nil
}

func (p *Profiles) Set(ctx context.Context, prof *domain.Profile) error {
	if p == nil || prof == nil {
		return nil
	}
	raw, err := json.Marshal(prof)
	if err != nil {
		return err
	}
	return p.rdb.Set(ctx, p.key(prof.ID), raw, p.ttl).Err()
}

func (p *Profiles) Invalidate(ctx context.Context, userID string) error {
	if p == nil {
		return nil
	}
	return p.rdb.Del(ctx, p.key(userID)).Err()
}
