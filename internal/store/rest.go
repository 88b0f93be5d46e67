package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/park285/chessnerd/internal/domain"
	"github.com/park285/chessnerd/internal/restdb"
)

// rest is the hosted backend reached through a PostgREST-compatible endpoint.
type rest struct {
	c *restdb.Client
}

func NewREST(c *restdb.Client) Repository {
	return &rest{c: c}
}

func (r *rest) Close() error { return nil }

func mapRESTErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, restdb.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, restdb.ErrConflict):
		return ErrDuplicate
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func (r *rest) CreateUser(ctx context.Context, u *domain.User) error {
	cp := *u
	cp.Email = strings.ToLower(cp.Email)
	return mapRESTErr("insert user", r.c.From("users").Insert(ctx, cp, nil))
}

func (r *rest) UserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	if err := r.c.From("users").Eq("email", strings.ToLower(email)).Single(ctx, &u); err != nil {
		return nil, mapRESTErr("select user", err)
	}
	return &u, nil
}

func (r *rest) UserByID(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	if err := r.c.From("users").Eq("id", id).Single(ctx, &u); err != nil {
		return nil, mapRESTErr("select user", err)
	}
	return &u, nil
}

func (r *rest) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	patch := map[string]any{"password_hash": passwordHash}
	return mapRESTErr("update password", r.c.From("users").Eq("id", userID).Update(ctx, patch))
}

func (r *rest) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	var p domain.Profile
	if err := r.c.From("profiles").Eq("id", userID).Single(ctx, &p); err != nil {
		return nil, mapRESTErr("select profile", err)
	}
	return &p, nil
}

func (r *rest) UpsertProfile(ctx context.Context, p *domain.Profile) error {
	return mapRESTErr("upsert profile", r.c.From("profiles").Upsert(ctx, p, "id", nil))
}

func (r *rest) InsertGame(ctx context.Context, g *domain.GameRecord) error {
	return mapRESTErr("insert game", r.c.From("games").Insert(ctx, g, nil))
}

func (r *rest) RecentGames(ctx context.Context, userID string, limit int) ([]*domain.GameRecord, error) {
	var out []*domain.GameRecord
	err := r.c.From("games").
		Or("white_player_id.eq."+userID+",black_player_id.eq."+userID).
		Order("ended_at", false).
		Limit(clampLimit(limit)).
		Select(ctx, &out)
	if err != nil {
		return nil, mapRESTErr("select games", err)
	}
	return out, nil
}

func (r *rest) ActiveLessons(ctx context.Context) ([]*domain.Lesson, error) {
	var out []*domain.Lesson
	if err := r.c.From("lessons").Eq("is_active", true).Select(ctx, &out); err != nil {
		return nil, mapRESTErr("select lessons", err)
	}
	SortLessons(out)
	return out, nil
}

func (r *rest) GetLesson(ctx context.Context, id string) (*domain.Lesson, error) {
	var l domain.Lesson
	if err := r.c.From("lessons").Eq("id", id).Single(ctx, &l); err != nil {
		return nil, mapRESTErr("select lesson", err)
	}
	return &l, nil
}

func (r *rest) UpsertLesson(ctx context.Context, l *domain.Lesson) error {
	row := map[string]any{
		"id":         l.ID,
		"title":      l.Title,
		"category":   l.Category,
		"difficulty": l.Difficulty,
		"content":    l.Content,
		"is_active":  l.IsActive,
	}
	return mapRESTErr("upsert lesson", r.c.From("lessons").Upsert(ctx, row, "id", nil))
}

func (r *rest) LessonProgress(ctx context.Context, userID string) ([]*domain.LessonProgress, error) {
	var out []*domain.LessonProgress
	if err := r.c.From("user_lesson_progress").Eq("user_id", userID).Order("lesson_id", true).Select(ctx, &out); err != nil {
		return nil, mapRESTErr("select progress", err)
	}
	return out, nil
}

func (r *rest) GetLessonProgress(ctx context.Context, userID, lessonID string) (*domain.LessonProgress, error) {
	var p domain.LessonProgress
	err := r.c.From("user_lesson_progress").Eq("user_id", userID).Eq("lesson_id", lessonID).Single(ctx, &p)
	if err != nil {
		return nil, mapRESTErr("select progress", err)
	}
	return &p, nil
}

func (r *rest) UpsertLessonProgress(ctx context.Context, p *domain.LessonProgress) error {
	return mapRESTErr("upsert progress", r.c.From("user_lesson_progress").Upsert(ctx, p, "user_id,lesson_id", nil))
}
