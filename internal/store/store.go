package store

import (
	"context"
	"errors"
	"sort"

	"github.com/park285/chessnerd/internal/domain"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// Repository is the persistence collaborator. Implementations must be safe for concurrent use.
type Repository interface {
	CreateUser(ctx context.Context, u *domain.User) error
	UserByEmail(ctx context.Context, email string) (*domain.User, error)
	UserByID(ctx context.Context, id string) (*domain.User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error

	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
	UpsertProfile(ctx context.Context, p *domain.Profile) error

	InsertGame(ctx context.Context, g *domain.GameRecord) error
	RecentGames(ctx context.Context, userID string, limit int) ([]*domain.GameRecord, error)

	ActiveLessons(ctx context.Context) ([]*domain.Lesson, error)
	GetLesson(ctx context.Context, id string) (*domain.Lesson, error)
	UpsertLesson(ctx context.Context, l *domain.Lesson) error
	LessonProgress(ctx context.Context, userID string) ([]*domain.LessonProgress, error)
	GetLessonProgress(ctx context.Context, userID, lessonID string) (*domain.LessonProgress, error)
	UpsertLessonProgress(ctx context.Context, p *domain.LessonProgress) error

	Close() error
}

var difficultyRank = map[string]int{
	"beginner":     0,
	"intermediate": 1,
	"advanced":     2,
	"master":       3,
}

// DifficultyRank orders lesson difficulties; unknown values sort last.
func DifficultyRank(d string) int {
	if r, ok := difficultyRank[d]; ok {
		return r
	}
	return len(difficultyRank)
}

// SortLessons orders by difficulty, then title.
func SortLessons(ls []*domain.Lesson) {
	sort.SliceStable(ls, func(i, j int) bool {
		ri, rj := DifficultyRank(ls[i].Difficulty), DifficultyRank(ls[j].Difficulty)
		if ri != rj {
			return ri < rj
		}
		return ls[i].Title < ls[j].Title
	})
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 10
	}
	if limit > 50 {
		return 50
	}
	return limit
}
