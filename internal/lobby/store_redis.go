package lobby

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const ttlLobby = 24 * time.Hour

type Store struct{ rdb *redis.Client }

func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

func (s *Store) keyMeta(code string) string         { return "lobby:" + strings.TrimSpace(code) }
func (s *Store) keyParticipants(code string) string { return s.keyMeta(code) + ":participants" }
func (s *Store) keyCreator(user string) string {
	return "lobby:index:creator:" + strings.TrimSpace(user)
}
func (s *Store) keyWaiting() string { return "lobby:waiting" }

func (s *Store) SaveMeta(ctx context.Context, meta *Meta) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.keyMeta(meta.Code), raw, ttlLobby).Err(); err != nil {
		return err
	}
	_ = s.rdb.Expire(ctx, s.keyParticipants(meta.Code), ttlLobby).Err()
	return nil
}

// LoadMeta returns (nil, nil) for an unknown or expired code.
func (s *Store) LoadMeta(ctx context.Context, code string) (*Meta, error) {
	raw, err := s.rdb.Get(ctx, s.keyMeta(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m Meta
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) Participants(ctx context.Context, code string) ([]string, error) {
	return s.rdb.SMembers(ctx, s.keyParticipants(code)).Result()
}

func (s *Store) AddParticipant(ctx context.Context, code, userID string) error {
	if err := s.rdb.SAdd(ctx, s.keyParticipants(code), userID).Err(); err != nil {
		return err
	}
	return s.rdb.Expire(ctx, s.keyParticipants(code), ttlLobby).Err()
}

func (s *Store) RemoveParticipant(ctx context.Context, code, userID string) error {
	return s.rdb.SRem(ctx, s.keyParticipants(code), userID).Err()
}

// ClaimCreator marks userID as owning a waiting lobby. False means one already exists.
func (s *Store) ClaimCreator(ctx context.Context, userID, code string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, s.keyCreator(userID), code, ttlLobby).Result()
	if err != nil || ok {
		return ok, err
	}
	// A claim whose lobby no longer waits is stale.
	held, err := s.rdb.Get(ctx, s.keyCreator(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, err
	}
	if meta, _ := s.LoadMeta(ctx, held); meta != nil && meta.State == StateWaiting {
		return false, nil
	}
	return true, s.rdb.Set(ctx, s.keyCreator(userID), code, ttlLobby).Err()
}

func (s *Store) ReleaseCreator(ctx context.Context, userID string) error {
	return s.rdb.Del(ctx, s.keyCreator(userID)).Err()
}

func (s *Store) AddWaiting(ctx context.Context, code string) error {
	if err := s.rdb.SAdd(ctx, s.keyWaiting(), code).Err(); err != nil {
		return err
	}
	_ = s.rdb.Expire(ctx, s.keyWaiting(), ttlLobby).Err()
	return nil
}

func (s *Store) RemoveWaiting(ctx context.Context, code string) error {
	return s.rdb.SRem(ctx, s.keyWaiting(), code).Err()
}

// ListWaiting returns waiting lobbies, oldest first. Expired codes are pruned from the index.
func (s *Store) ListWaiting(ctx context.Context) ([]*Meta, error) {
	codes, err := s.rdb.SMembers(ctx, s.keyWaiting()).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*Meta, 0, len(codes))
	for _, c := range codes {
		m, err := s.LoadMeta(ctx, c)
		if err != nil {
			return nil, err
		}
		if m == nil {
			_ = s.RemoveWaiting(ctx, c)
			continue
		}
		if m.State != StateWaiting {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) Delete(ctx context.Context, code string) error {
	return s.rdb.Del(ctx, s.keyMeta(code), s.keyParticipants(code)).Err()
}

// codeGen returns "CH-" followed by six upper-case alphanumerics.
func codeGen() (string, error) {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return fmt.Sprintf("CH-%s", string(b)), nil
}
