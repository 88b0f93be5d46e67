package session

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// MoveSelector picks the automated side's reply. It is called with the session locked and
// must not call back into the session.
type MoveSelector interface {
	SelectMove(ctx context.Context, pos *Position) (string, error)
}

// RandomSelector is the placeholder opponent: a uniformly random legal move, no search and no
// evaluation.
type RandomSelector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandomSelector(seed int64) *RandomSelector {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandomSelector{rng: rand.New(rand.NewSource(seed))}
}

func (r *RandomSelector) SelectMove(ctx context.Context, pos *Position) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	moves := pos.LegalMoves()
	if len(moves) == 0 {
		return "", ErrNoLegalMoves
	}
	r.mu.Lock()
	i := r.rng.Intn(len(moves))
	r.mu.Unlock()
	return moves[i], nil
}
