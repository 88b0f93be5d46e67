package cache

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/chessnerd/internal/domain"
)

func newTestProfiles(t *testing.T) (*Profiles, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return NewProfiles(redis.NewClient(&redis.Options{Addr: mr.Addr()})), mr
}

func TestProfilesRoundTripAndTTL(t *testing.T) {
	p, mr := newTestProfiles(t)
	ctx := context.Background()

	got, err := p.Get(ctx, "u1")
	if err != nil || got != nil {
		t.Fatalf("expected miss, got %v %v", got, err)
	}
	if err := p.Set(ctx, &domain.Profile{ID: "u1", Username: "ann", BlitzElo: 1310}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err = p.Get(ctx, "u1")
	if err != nil || got == nil || got.BlitzElo != 1310 {
		t.Fatalf("Get: %+v %v", got, err)
	}
	if ttl := mr.TTL("profile:u1"); ttl != ProfileTTL {
		t.Fatalf("ttl=%v", ttl)
	}

	mr.FastForward(ProfileTTL)
	if got, _ := p.Get(ctx, "u1"); got != nil {
		t.Fatalf("entry should expire")
	}
}

func TestProfilesInvalidate(t *testing.T) {
	p, _ := newTestProfiles(t)
	ctx := context.Background()
	_ = p.Set(ctx, &domain.Profile{ID: "u1"})
	if err := p.Invalidate(ctx, "u1"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if got, _ := p.Get(ctx, "u1"); got != nil {
		t.Fatalf("expected miss after invalidate")
	}
}

func TestNilProfilesIsNoop(t *testing.T) {
	var p *Profiles
	ctx := context.Background()
	if err := p.Set(ctx, &domain.Profile{ID: "u1"}); err != nil {
		t.Fatal(err)
	}
	if got, err := p.Get(ctx, "u1"); got != nil || err != nil {
		t.Fatalf("nil cache returned %v %v", got, err)
	}
	if NewProfiles(nil) != nil {
		t.Fatalf("NewProfiles(nil) should be nil")
	}
}
