package lessons

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/park285/chessnerd/internal/domain"
	"github.com/park285/chessnerd/internal/msgcat"
	"github.com/park285/chessnerd/internal/obslog"
	"github.com/park285/chessnerd/internal/store"
)

var (
	ErrLessonNotFound = errors.New("lesson not found")
	ErrInvalidScore   = errors.New("score must be between 0 and 100")
)

type Option func(*Service)

func WithClock(c clockwork.Clock) Option { return func(s *Service) { s.clock = c } }

func WithCatalog(c *msgcat.Catalog) Option { return func(s *Service) { s.msgs = c } }

// Service serves the lesson catalog and per-user progress. Store failures are returned as-is;
// nothing is retried or rolled back.
type Service struct {
	repo  store.Repository
	msgs  *msgcat.Catalog
	clock clockwork.Clock
}

func NewService(repo store.Repository, opts ...Option) *Service {
	s := &Service{repo: repo}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	return s
}

// Update is the result of a progress change plus its user-facing message.
type Update struct {
	Progress *domain.LessonProgress
	Message  string
}

// List returns active lessons by difficulty, then title.
func (s *Service) List(ctx context.Context) ([]*domain.Lesson, error) {
	ls, err := s.repo.ActiveLessons(ctx)
	if err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	store.SortLessons(ls)
	return ls, nil
}

func (s *Service) Get(ctx context.Context, lessonID string) (*domain.Lesson, error) {
	l, err := s.repo.GetLesson(ctx, strings.TrimSpace(lessonID))
	if errors.Is(err, store.ErrNotFound) || (err == nil && !l.IsActive) {
		return nil, ErrLessonNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lesson: %w", err)
	}
	return l, nil
}

func (s *Service) Progress(ctx context.Context, userID string) ([]*domain.LessonProgress, error) {
	ps, err := s.repo.LessonProgress(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lesson progress: %w", err)
	}
	return ps, nil
}

// Start records an attempt: attempts is incremented and last_attempt_at stamped.
func (s *Service) Start(ctx context.Context, userID, lessonID string) (*Update, error) {
	l, err := s.Get(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	p, err := s.current(ctx, userID, l.ID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()
	p.Attempts++
	p.LastAttemptAt = &now
	if err := s.repo.UpsertLessonProgress(ctx, p); err != nil {
		obslog.L().Warn("lesson_progress_error", zap.String("user_id", userID), zap.String("lesson_id", l.ID), zap.Error(err))
		return nil, fmt.Errorf("save lesson progress: %w", err)
	}
	obslog.L().Info("lesson_start", zap.String("user_id", userID), zap.String("lesson_id", l.ID), zap.Int("attempts", p.Attempts))
	return &Update{
		Progress: p,
		Message:  s.msgs.Text("lessons.started", map[string]any{"Title": l.Title}, "Lesson started"),
	}, nil
}

// Complete marks the lesson completed with a score in 0..100.
func (s *Service) Complete(ctx context.Context, userID, lessonID string, score int) (*Update, error) {
	if score < 0 || score > 100 {
		return nil, ErrInvalidScore
	}
	l, err := s.Get(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	p, err := s.current(ctx, userID, l.ID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()
	p.Completed = true
	p.Score = &score
	p.CompletedAt = &now
	if err := s.repo.UpsertLessonProgress(ctx, p); err != nil {
		obslog.L().Warn("lesson_progress_error", zap.String("user_id", userID), zap.String("lesson_id", l.ID), zap.Error(err))
		return nil, fmt.Errorf("save lesson progress: %w", err)
	}
	obslog.L().Info("lesson_complete", zap.String("user_id", userID), zap.String("lesson_id", l.ID), zap.Int("score", score))
	return &Update{
		Progress: p,
		Message:  s.msgs.Text("lessons.completed", map[string]any{"Title": l.Title, "Score": score}, "Lesson completed"),
	}, nil
}

func (s *Service) current(ctx context.Context, userID, lessonID string) (*domain.LessonProgress, error) {
	p, err := s.repo.GetLessonProgress(ctx, userID, lessonID)
	if errors.Is(err, store.ErrNotFound) {
		return &domain.LessonProgress{UserID: userID, LessonID: lessonID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load lesson progress: %w", err)
	}
	return p, nil
}
