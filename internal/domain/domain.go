package domain

import "time"

// Game categories; each carries its own rating.
const (
	CategoryBlitz  = "blitz"
	CategoryRapid  = "rapid"
	CategoryBullet = "bullet"
	CategoryCasual = "casual"
)

const DefaultRating = 1200

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

type Profile struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	BlitzElo    int       `json:"blitz_elo"`
	RapidElo    int       `json:"rapid_elo"`
	BulletElo   int       `json:"bullet_elo"`
	Wins        int       `json:"wins"`
	Losses      int       `json:"losses"`
	Draws       int       `json:"draws"`
	TotalGames  int       `json:"total_games"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func NewProfile(userID, username string, now time.Time) Profile {
	return Profile{
		ID:          userID,
		Username:    username,
		DisplayName: username,
		BlitzElo:    DefaultRating,
		RapidElo:    DefaultRating,
		BulletElo:   DefaultRating,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Rating returns the rating for a category. Casual games are tracked against rapid.
func (p Profile) Rating(category string) int {
	switch category {
	case CategoryBlitz:
		return p.BlitzElo
	case CategoryBullet:
		return p.BulletElo
	default:
		return p.RapidElo
	}
}

func (p *Profile) SetRating(category string, v int) {
	switch category {
	case CategoryBlitz:
		p.BlitzElo = v
	case CategoryBullet:
		p.BulletElo = v
	default:
		p.RapidElo = v
	}
}

// Name is the display name with fallbacks.
func (p Profile) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	if p.Username != "" {
		return p.Username
	}
	return "Chess Player"
}

// GameRecord is one finished game as persisted in the games table.
type GameRecord struct {
	ID            string    `json:"id"`
	WhitePlayerID string    `json:"white_player_id,omitempty"`
	BlackPlayerID string    `json:"black_player_id,omitempty"`
	Mode          string    `json:"mode"`
	GameType      string    `json:"game_type"`
	TimeControl   int       `json:"time_control"`
	Increment     int       `json:"increment"`
	AIEngine      string    `json:"ai_engine,omitempty"`
	Result        string    `json:"result"`
	Method        string    `json:"result_method"`
	Moves         []string  `json:"moves"`
	FinalFEN      string    `json:"final_fen"`
	PGN           string    `json:"pgn"`
	Opening       string    `json:"opening,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	EndedAt       time.Time `json:"ended_at"`
}

// Involves reports whether userID played either side.
func (g GameRecord) Involves(userID string) bool {
	return userID != "" && (g.WhitePlayerID == userID || g.BlackPlayerID == userID)
}

type Lesson struct {
	ID         string    `json:"id" yaml:"id"`
	Title      string    `json:"title" yaml:"title"`
	Category   string    `json:"category" yaml:"category"`
	Difficulty string    `json:"difficulty" yaml:"difficulty"`
	Content    string    `json:"content" yaml:"content"`
	IsActive   bool      `json:"is_active" yaml:"is_active"`
	CreatedAt  time.Time `json:"created_at" yaml:"-"`
}

type LessonProgress struct {
	UserID        string     `json:"user_id"`
	LessonID      string     `json:"lesson_id"`
	Attempts      int        `json:"attempts"`
	Completed     bool       `json:"completed"`
	Score         *int       `json:"score"`
	CompletedAt   *time.Time `json:"completed_at"`
	LastAttemptAt *time.Time `json:"last_attempt_at"`
}
