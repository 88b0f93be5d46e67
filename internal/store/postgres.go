package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/park285/chessnerd/internal/domain"
)

const pqUniqueViolation = "23505"

type postgres struct {
	db *sql.DB
}

// OpenPostgres connects with lib/pq and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (Repository, *sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgres(db), db, nil
}

func NewPostgres(db *sql.DB) Repository {
	return &postgres{db: db}
}

// Migrate applies the embedded schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema()); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (r *postgres) Close() error { return r.db.Close() }

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation
}

func (r *postgres) CreateUser(ctx context.Context, u *domain.User) error {
	const query = `
		INSERT INTO users (id, email, username, password_hash, created_at)
		VALUES ($1, lower($2), $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, query, u.ID, u.Email, u.Username, u.PasswordHash, u.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *postgres) UserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.user(ctx, `WHERE email = lower($1)`, email)
}

func (r *postgres) UserByID(ctx context.Context, id string) (*domain.User, error) {
	return r.user(ctx, `WHERE id = $1`, id)
}

func (r *postgres) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgres) user(ctx context.Context, where string, arg string) (*domain.User, error) {
	var u domain.User
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, username, password_hash, created_at FROM users `+where, arg,
	).Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	return &u, nil
}

func (r *postgres) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	const query = `
		SELECT id, username, display_name, blitz_elo, rapid_elo, bullet_elo,
			wins, losses, draws, total_games, created_at, updated_at
		FROM profiles
		WHERE id = $1`
	var p domain.Profile
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&p.ID, &p.Username, &p.DisplayName, &p.BlitzElo, &p.RapidElo, &p.BulletElo,
		&p.Wins, &p.Losses, &p.Draws, &p.TotalGames, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select profile: %w", err)
	}
	return &p, nil
}

func (r *postgres) UpsertProfile(ctx context.Context, p *domain.Profile) error {
	const query = `
		INSERT INTO profiles (
			id, username, display_name, blitz_elo, rapid_elo, bullet_elo,
			wins, losses, draws, total_games, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			display_name = EXCLUDED.display_name,
			blitz_elo = EXCLUDED.blitz_elo,
			rapid_elo = EXCLUDED.rapid_elo,
			bullet_elo = EXCLUDED.bullet_elo,
			wins = EXCLUDED.wins,
			losses = EXCLUDED.losses,
			draws = EXCLUDED.draws,
			total_games = EXCLUDED.total_games,
			updated_at = EXCLUDED.updated_at`
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.Username, p.DisplayName, p.BlitzElo, p.RapidElo, p.BulletElo,
		p.Wins, p.Losses, p.Draws, p.TotalGames, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func (r *postgres) InsertGame(ctx context.Context, g *domain.GameRecord) error {
	moves, err := json.Marshal(g.Moves)
	if err != nil {
		return fmt.Errorf("marshal moves: %w", err)
	}
	const query = `
		INSERT INTO games (
			id, white_player_id, black_player_id, mode, game_type, time_control, increment,
			ai_engine, result, result_method, moves, final_fen, pgn, opening, started_at, ended_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query,
		g.ID, nullString(g.WhitePlayerID), nullString(g.BlackPlayerID), g.Mode, g.GameType,
		g.TimeControl, g.Increment, g.AIEngine, g.Result, g.Method, moves, g.FinalFEN, g.PGN,
		g.Opening, g.StartedAt, g.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("insert game: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicate
	}
	return nil
}

func (r *postgres) RecentGames(ctx context.Context, userID string, limit int) ([]*domain.GameRecord, error) {
	const query = `
		SELECT id, COALESCE(white_player_id, ''), COALESCE(black_player_id, ''), mode, game_type,
			time_control, increment, ai_engine, result, result_method, moves, final_fen, pgn, opening,
			started_at, ended_at
		FROM games
		WHERE white_player_id = $1 OR black_player_id = $1
		ORDER BY ended_at DESC
		LIMIT $2`
	limit = clampLimit(limit)
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("select games: %w", err)
	}
	defer rows.Close()

	games := make([]*domain.GameRecord, 0, limit)
	for rows.Next() {
		var (
			g     domain.GameRecord
			moves []byte
		)
		if err := rows.Scan(
			&g.ID, &g.WhitePlayerID, &g.BlackPlayerID, &g.Mode, &g.GameType,
			&g.TimeControl, &g.Increment, &g.AIEngine, &g.Result, &g.Method, &moves, &g.FinalFEN,
			&g.PGN, &g.Opening, &g.StartedAt, &g.EndedAt,
		); err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		if err := json.Unmarshal(moves, &g.Moves); err != nil {
			return nil, fmt.Errorf("unmarshal moves: %w", err)
		}
		games = append(games, &g)
	}
	return games, rows.Err()
}

const lessonColumns = `id, title, category, difficulty, content, is_active, created_at`

func scanLesson(sc interface{ Scan(...any) error }) (*domain.Lesson, error) {
	var l domain.Lesson
	if err := sc.Scan(&l.ID, &l.Title, &l.Category, &l.Difficulty, &l.Content, &l.IsActive, &l.CreatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *postgres) ActiveLessons(ctx context.Context) ([]*domain.Lesson, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+lessonColumns+` FROM lessons WHERE is_active`)
	if err != nil {
		return nil, fmt.Errorf("select lessons: %w", err)
	}
	defer rows.Close()
	var out []*domain.Lesson
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lesson: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	SortLessons(out)
	return out, nil
}

func (r *postgres) GetLesson(ctx context.Context, id string) (*domain.Lesson, error) {
	l, err := scanLesson(r.db.QueryRowContext(ctx, `SELECT `+lessonColumns+` FROM lessons WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select lesson: %w", err)
	}
	return l, nil
}

func (r *postgres) UpsertLesson(ctx context.Context, l *domain.Lesson) error {
	const query = `
		INSERT INTO lessons (id, title, category, difficulty, content, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			category = EXCLUDED.category,
			difficulty = EXCLUDED.difficulty,
			content = EXCLUDED.content,
			is_active = EXCLUDED.is_active`
	if _, err := r.db.ExecContext(ctx, query, l.ID, l.Title, l.Category, l.Difficulty, l.Content, l.IsActive); err != nil {
		return fmt.Errorf("upsert lesson: %w", err)
	}
	return nil
}

const progressColumns = `user_id, lesson_id, attempts, completed, score, completed_at, last_attempt_at`

func scanProgress(sc interface{ Scan(...any) error }) (*domain.LessonProgress, error) {
	var (
		p           domain.LessonProgress
		score       sql.NullInt64
		completedAt sql.NullTime
		lastAttempt sql.NullTime
	)
	if err := sc.Scan(&p.UserID, &p.LessonID, &p.Attempts, &p.Completed, &score, &completedAt, &lastAttempt); err != nil {
		return nil, err
	}
	if score.Valid {
		v := int(score.Int64)
		p.Score = &v
	}
	if completedAt.Valid {
		p.CompletedAt = &completedAt.Time
	}
	if lastAttempt.Valid {
		p.LastAttemptAt = &lastAttempt.Time
	}
	return &p, nil
}

func (r *postgres) LessonProgress(ctx context.Context, userID string) ([]*domain.LessonProgress, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+progressColumns+` FROM user_lesson_progress WHERE user_id = $1 ORDER BY lesson_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("select progress: %w", err)
	}
	defer rows.Close()
	var out []*domain.LessonProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *postgres) GetLessonProgress(ctx context.Context, userID, lessonID string) (*domain.LessonProgress, error) {
	p, err := scanProgress(r.db.QueryRowContext(ctx,
		`SELECT `+progressColumns+` FROM user_lesson_progress WHERE user_id = $1 AND lesson_id = $2`,
		userID, lessonID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select progress: %w", err)
	}
	return p, nil
}

func (r *postgres) UpsertLessonProgress(ctx context.Context, p *domain.LessonProgress) error {
	const query = `
		INSERT INTO user_lesson_progress (` + progressColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, lesson_id) DO UPDATE SET
			attempts = EXCLUDED.attempts,
			completed = EXCLUDED.completed,
			score = EXCLUDED.score,
			completed_at = EXCLUDED.completed_at,
			last_attempt_at = EXCLUDED.last_attempt_at`
	var score sql.NullInt64
	if p.Score != nil {
		score = sql.NullInt64{Int64: int64(*p.Score), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query,
		p.UserID, p.LessonID, p.Attempts, p.Completed, score, nullTime(p.CompletedAt), nullTime(p.LastAttemptAt))
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
