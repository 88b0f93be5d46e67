package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/park285/chessnerd/internal/domain"
)

// Memory is a development-only repository kept in process memory.
type Memory struct {
	mu sync.RWMutex

	users       map[string]*domain.User
	usersByMail map[string]string
	usernames   map[string]string
	profiles    map[string]*domain.Profile
	games       []*domain.GameRecord
	gameIDs     map[string]struct{}
	lessons     map[string]*domain.Lesson
	progress    map[string]*domain.LessonProgress // userID|lessonID
}

func NewMemory() *Memory {
	return &Memory{
		users:       make(map[string]*domain.User),
		usersByMail: make(map[string]string),
		usernames:   make(map[string]string),
		profiles:    make(map[string]*domain.Profile),
		gameIDs:     make(map[string]struct{}),
		lessons:     make(map[string]*domain.Lesson),
		progress:    make(map[string]*domain.LessonProgress),
	}
}

// NewSeededMemory returns a Memory preloaded with the embedded lesson catalog.
func NewSeededMemory(ctx context.Context) (*Memory, error) {
	m := NewMemory()
	if _, err := Seed(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Memory) CreateUser(ctx context.Context, u *domain.User) error {
	mail := strings.ToLower(u.Email)
	name := strings.ToLower(u.Username)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; ok {
		return ErrDuplicate
	}
	if _, ok := m.usersByMail[mail]; ok {
		return ErrDuplicate
	}
	if _, ok := m.usernames[name]; ok {
		return ErrDuplicate
	}
	cp := *u
	m.users[u.ID] = &cp
	m.usersByMail[mail] = u.ID
	m.usernames[name] = u.ID
	return nil
}

func (m *Memory) UserByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.usersByMail[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.users[id]
	return &cp, nil
}

func (m *Memory) UserByID(ctx context.Context, id string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (m *Memory) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) UpsertProfile(ctx context.Context, p *domain.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.profiles[p.ID] = &cp
	return nil
}

func (m *Memory) InsertGame(ctx context.Context, g *domain.GameRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.gameIDs[g.ID]; ok {
		return ErrDuplicate
	}
	cp := *g
	cp.Moves = append([]string(nil), g.Moves...)
	m.games = append(m.games, &cp)
	m.gameIDs[g.ID] = struct{}{}
	return nil
}

func (m *Memory) RecentGames(ctx context.Context, userID string, limit int) ([]*domain.GameRecord, error) {
	limit = clampLimit(limit)
	m.mu.RLock()
	var out []*domain.GameRecord
	for _, g := range m.games {
		if g.Involves(userID) {
			cp := *g
			out = append(out, &cp)
		}
	}
	m.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].EndedAt.After(out[j].EndedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ActiveLessons(ctx context.Context) ([]*domain.Lesson, error) {
	m.mu.RLock()
	out := make([]*domain.Lesson, 0, len(m.lessons))
	for _, l := range m.lessons {
		if l.IsActive {
			cp := *l
			out = append(out, &cp)
		}
	}
	m.mu.RUnlock()
	SortLessons(out)
	return out, nil
}

func (m *Memory) GetLesson(ctx context.Context, id string) (*domain.Lesson, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.lessons[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *Memory) UpsertLesson(ctx context.Context, l *domain.Lesson) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *l
	m.lessons[l.ID] = &cp
	return nil
}

func (m *Memory) LessonProgress(ctx context.Context, userID string) ([]*domain.LessonProgress, error) {
	m.mu.RLock()
	var out []*domain.LessonProgress
	for _, p := range m.progress {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].LessonID < out[j].LessonID })
	return out, nil
}

func (m *Memory) GetLessonProgress(ctx context.Context, userID, lessonID string) (*domain.LessonProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.progress[progressKey(userID, lessonID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) UpsertLessonProgress(ctx context.Context, p *domain.LessonProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.progress[progressKey(p.UserID, p.LessonID)] = &cp
	return nil
}

func (m *Memory) Close() error { return nil }

func progressKey(userID, lessonID string) string { return userID + "|" + lessonID }
